package oracle

import (
	"encoding/json"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestTWAPEmptyHistory(t *testing.T) {
	_, err := TWAP(nil, 100)
	assert.ErrorIs(t, err, ErrInsufficientHistory)
}

func TestTWAPSingleSample(t *testing.T) {
	price, err := TWAP(History{{Timestamp: 42, Price: 3.25}}, 100)
	require.NoError(t, err)
	assert.Equal(t, 3.25, price)
}

func TestTWAPConstantPrice(t *testing.T) {
	h := History{{Timestamp: 0, Price: 10}, {Timestamp: 100, Price: 10}, {Timestamp: 200, Price: 10}}

	for _, window := range []int64{200, 500, 604800} {
		price, err := TWAP(h, window)
		require.NoError(t, err)
		assert.Equal(t, 10.0, price, "window %d", window)
	}
}

func TestTWAPLeftWeighted(t *testing.T) {
	// 1 for 100s then 3 for 300s; the final price 2 only closes the last interval.
	h := History{{Timestamp: 0, Price: 1}, {Timestamp: 100, Price: 3}, {Timestamp: 400, Price: 2}}

	price, err := TWAP(h, 1000)
	require.NoError(t, err)
	assert.InDelta(t, (1*100+3*300)/400.0, price, 1e-12)
}

func TestTWAPClipsIntervalAtCutoff(t *testing.T) {
	h := History{{Timestamp: 0, Price: 4}, {Timestamp: 100, Price: 4}, {Timestamp: 200, Price: 5}, {Timestamp: 300, Price: 4}}

	// cutoff 150: [150,200] at 4, [200,300] at 5; the sample at 100 contributes nothing.
	price, err := TWAP(h, 150)
	require.NoError(t, err)
	assert.InDelta(t, (4*50+5*100)/150.0, price, 1e-12)
}

func TestTWAPSkipsOutlier(t *testing.T) {
	h := History{}
	for k := int64(0); k < 20; k++ {
		price := 10.0
		if k > 10 {
			price = 20
		}
		if k == 10 {
			price = 1_000_000
		}
		h = append(h, Sample{Timestamp: k * 100, Price: price})
	}

	price, err := TWAP(h, 10_000)
	require.NoError(t, err)

	// The spike at t=1000 is skipped, so the price at t=900 spans [900,1100].
	expected := (10.0*900 + 10.0*200 + 20.0*800) / 1900.0
	assert.InDelta(t, expected, price, 1e-9)

	withoutSpike := append(History{}, h[:10]...)
	withoutSpike = append(withoutSpike, h[11:]...)
	reference, err := TWAP(withoutSpike, 10_000)
	require.NoError(t, err)
	assert.InDelta(t, reference, price, 1e-9)
}

func TestTWAPZeroElapsed(t *testing.T) {
	h := History{{Timestamp: 100, Price: 5}, {Timestamp: 100, Price: 5}}

	_, err := TWAP(h, 10)
	assert.ErrorIs(t, err, ErrDivisionByZero)
}

func TestTWAPRejectedTailLeavesNoElapsedTime(t *testing.T) {
	// Eleven accepted samples sit on the cutoff and the only later sample is a 3-sigma
	// spike, so no accepted interval has any length.
	h := History{{Timestamp: 0, Price: 10}}
	for k := 0; k < 11; k++ {
		h = append(h, Sample{Timestamp: 100, Price: 10})
	}
	h = append(h, Sample{Timestamp: 200, Price: 1_000_000})

	_, err := TWAP(h, 100)
	assert.ErrorIs(t, err, ErrDivisionByZero)

	_, err = Evaluate(h, 100, 0)
	assert.ErrorIs(t, err, ErrDivisionByZero)
}

func TestEvaluateReportsEngineRejections(t *testing.T) {
	h := History{}
	for k := int64(0); k < 20; k++ {
		price := 10.0
		if k == 10 {
			price = 1_000_000
		}
		h = append(h, Sample{Timestamp: k * 100, Price: price})
	}

	ev, err := Evaluate(h, 10_000, 0)
	require.NoError(t, err)
	assert.Equal(t, 1, ev.Outliers)
	assert.InDelta(t, 10.0, ev.Price, 1e-12)
	assert.False(t, ev.Band.Contains(1_000_000))

	res, err := newTestEngine(t, Params{Window: 10_000, Decimals: 0}).UpdateSpot(h[:19], h[19].Price, h[19].Timestamp)
	require.NoError(t, err)
	assert.Equal(t, res.Outliers, ev.Outliers)
	assert.Equal(t, res.Price, ev.Price)
}

func TestTWAPJSONRoundTrip(t *testing.T) {
	h := History{{Timestamp: 1650000000, Price: 0.0513}, {Timestamp: 1650000600, Price: 0.0521}, {Timestamp: 1650001200, Price: 0.0498}, {Timestamp: 1650001800, Price: 0.0507}}

	before, err := TWAP(h, 604800)
	require.NoError(t, err)

	raw, err := json.Marshal(h)
	require.NoError(t, err)
	var reloaded History
	require.NoError(t, json.Unmarshal(raw, &reloaded))

	after, err := TWAP(reloaded, 604800)
	require.NoError(t, err)
	assert.InDelta(t, before, after, 1e-15)
}
