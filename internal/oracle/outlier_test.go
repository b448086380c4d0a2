package oracle

import (
	"testing"

	"github.com/stretchr/testify/assert"
)

func TestOutlierBandPopulationStd(t *testing.T) {
	h := History{{Timestamp: 0, Price: 2}, {Timestamp: 1, Price: 4}, {Timestamp: 2, Price: 4}, {Timestamp: 3, Price: 4}, {Timestamp: 4, Price: 5}, {Timestamp: 5, Price: 5}, {Timestamp: 6, Price: 7}, {Timestamp: 7, Price: 9}}

	band := OutlierBand(h, 100, 7)
	assert.InDelta(t, 5.0, band.Mean, 1e-12)
	assert.InDelta(t, 2.0, band.Std, 1e-12)
	assert.InDelta(t, 0.0, band.Low, 1e-12)
	assert.InDelta(t, 11.0, band.High, 1e-12)
}

func TestOutlierBandWindow(t *testing.T) {
	h := History{{Timestamp: 0, Price: 1000}, {Timestamp: 100, Price: 10}, {Timestamp: 200, Price: 10}}

	band := OutlierBand(h, 100, 200)
	assert.Equal(t, 10.0, band.Mean)
	assert.Equal(t, 0.0, band.Std)
	assert.False(t, band.Contains(1000))
	assert.True(t, band.Contains(10))
}

// The empty window degenerates to [0, 0], which rejects every positive price.
// Suspicious, but kept for compatibility with historical feeds.
func TestOutlierBandEmptyWindowRejectsPositivePrices(t *testing.T) {
	h := History{{Timestamp: 0, Price: 5}}

	band := OutlierBand(h, 10, 1000)
	assert.Equal(t, Band{}, band)
	assert.False(t, band.Contains(5))
	assert.True(t, band.Contains(0))
}

func TestClassify(t *testing.T) {
	band := Band{Low: 1, High: 3}
	h := History{{Timestamp: 0, Price: 0.5}, {Timestamp: 1, Price: 1}, {Timestamp: 2, Price: 3}, {Timestamp: 3, Price: 3.5}}

	in, out := Classify(h, band)
	assert.Equal(t, History{{Timestamp: 1, Price: 1}, {Timestamp: 2, Price: 3}}, in)
	assert.Equal(t, History{{Timestamp: 0, Price: 0.5}, {Timestamp: 3, Price: 3.5}}, out)
}
