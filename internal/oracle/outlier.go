package oracle

import "math"

// DefaultSigma is the band half-width in standard deviations.
const DefaultSigma = 3.0

// Band is the accepted price range derived from a trailing window.
type Band struct {
	Mean float64
	Std  float64
	Low  float64
	High float64
}

// Contains reports whether price is an inlier.
func (b Band) Contains(price float64) bool {
	return !(price < b.Low || price > b.High)
}

// OutlierBand computes the 3-sigma band over samples with timestamp >= reference-windowSeconds.
//
// An empty window yields the zero band, which rejects every positive price.
func OutlierBand(h History, windowSeconds, reference int64) Band {
	return outlierBand(h, reference-windowSeconds, DefaultSigma)
}

func outlierBand(h History, cutoff int64, sigma float64) Band {
	prices := make([]float64, 0, len(h))
	for _, s := range h {
		if s.Timestamp >= cutoff {
			prices = append(prices, s.Price)
		}
	}
	mean, std := meanStd(prices)
	return Band{
		Mean: mean,
		Std:  std,
		Low:  math.Max(0, mean-sigma*std),
		High: mean + sigma*std,
	}
}

// meanStd returns the mean and population standard deviation.
func meanStd(values []float64) (float64, float64) {
	if len(values) == 0 {
		return 0, 0
	}
	n := float64(len(values))
	var sum float64
	for _, v := range values {
		sum += v
	}
	mean := sum / n
	var sq float64
	for _, v := range values {
		d := v - mean
		sq += d * d
	}
	return mean, math.Sqrt(sq / n)
}

// Classify splits h into inliers and outliers against b.
func Classify(h History, b Band) (inliers, outliers History) {
	for _, s := range h {
		if b.Contains(s.Price) {
			inliers = append(inliers, s)
		} else {
			outliers = append(outliers, s)
		}
	}
	return inliers, outliers
}
