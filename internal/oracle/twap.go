package oracle

import "fmt"

// TWAP computes the time-weighted average price over the trailing window ending at the
// newest sample, ignoring samples outside the 3-sigma band.
func TWAP(h History, windowSeconds int64) (float64, error) {
	price, _, _, err := twap(h, windowSeconds, DefaultSigma)
	return price, err
}

// Evaluation is a TWAP together with the band it used and the number of samples the
// band rejected.
type Evaluation struct {
	Price    float64
	Band     Band
	Outliers int
}

// Evaluate is TWAP with an explicit sigma (zero means DefaultSigma) that also reports
// the band and the rejection count, exactly as the engine computes them.
func Evaluate(h History, windowSeconds int64, sigma float64) (Evaluation, error) {
	if sigma == 0 {
		sigma = DefaultSigma
	}
	price, band, rejected, err := twap(h, windowSeconds, sigma)
	if err != nil {
		return Evaluation{}, err
	}
	return Evaluation{Price: price, Band: band, Outliers: rejected}, nil
}

// twap walks the whole history keeping the last accepted sample i. Each accepted
// sample j closes the interval [max(cutoff, t_i), t_j] priced at p_i, so the newest
// price only marks time until a later sample follows it.
func twap(h History, windowSeconds int64, sigma float64) (float64, Band, int, error) {
	if len(h) == 0 {
		return 0, Band{}, 0, ErrInsufficientHistory
	}
	if len(h) == 1 {
		return h[0].Price, Band{Mean: h[0].Price, Low: h[0].Price, High: h[0].Price}, 0, nil
	}

	cutoff := h[len(h)-1].Timestamp - windowSeconds
	band := outlierBand(h, cutoff, sigma)

	var priceTime, elapsedTotal float64
	rejected := 0
	i := 0
	for j := 1; j < len(h); j++ {
		if !band.Contains(h[j].Price) {
			rejected++
			continue
		}
		start := max(cutoff, h[i].Timestamp)
		elapsed := float64(max(h[j].Timestamp-start, 0))
		elapsedTotal += elapsed
		priceTime += h[i].Price * elapsed
		i = j
	}

	if elapsedTotal == 0 {
		return 0, band, rejected, fmt.Errorf("%w: %d samples, %d rejected", ErrDivisionByZero, len(h), rejected)
	}
	return priceTime / elapsedTotal, band, rejected, nil
}
