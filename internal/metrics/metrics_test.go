package metrics

import (
	"testing"
	"time"

	"github.com/prometheus/client_golang/prometheus/testutil"
	"github.com/stretchr/testify/assert"
)

func TestRecordCycle(t *testing.T) {
	before := testutil.ToFloat64(CyclesTotal.WithLabelValues("test-token", "ok"))
	RecordCycle("test-token", "ok", 150*time.Millisecond)
	assert.Equal(t, before+1, testutil.ToFloat64(CyclesTotal.WithLabelValues("test-token", "ok")))
}

func TestRecordPrice(t *testing.T) {
	RecordPrice("test-price", 1.25, 1.2, 2, 10)

	assert.Equal(t, 1.25, testutil.ToFloat64(SpotPrice.WithLabelValues("test-price")))
	assert.Equal(t, 1.2, testutil.ToFloat64(TWAPPrice.WithLabelValues("test-price")))
	assert.Equal(t, 10.0, testutil.ToFloat64(HistorySamples.WithLabelValues("test-price")))
	assert.Equal(t, 2.0, testutil.ToFloat64(OutlierRejectionsTotal.WithLabelValues("test-price")))
}
