// Package metrics provides Prometheus metrics for the price feed.
package metrics

import (
	"net/http"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promhttp"
)

var (
	// CyclesTotal counts per-token cycles by outcome.
	CyclesTotal = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Name: "pricefeed_cycles_total",
			Help: "Total number of token price cycles by status",
		},
		[]string{"token", "status"},
	)

	// CycleDuration is a histogram of per-token cycle duration.
	CycleDuration = prometheus.NewHistogramVec(
		prometheus.HistogramOpts{
			Name:    "pricefeed_cycle_duration_seconds",
			Help:    "Duration of a token price cycle including fetch and persistence",
			Buckets: prometheus.DefBuckets,
		},
		[]string{"token"},
	)

	// OutlierRejectionsTotal counts samples skipped by the outlier band.
	OutlierRejectionsTotal = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Name: "pricefeed_outlier_rejections_total",
			Help: "Samples rejected by the outlier band during TWAP evaluation",
		},
		[]string{"token"},
	)

	// TWAPPrice is the last published TWAP.
	TWAPPrice = prometheus.NewGaugeVec(
		prometheus.GaugeOpts{
			Name: "pricefeed_twap_price",
			Help: "Last computed time-weighted average price",
		},
		[]string{"token"},
	)

	// SpotPrice is the last blended spot sample.
	SpotPrice = prometheus.NewGaugeVec(
		prometheus.GaugeOpts{
			Name: "pricefeed_spot_price",
			Help: "Last blended spot price sample",
		},
		[]string{"token"},
	)

	// HistorySamples is the persisted history length.
	HistorySamples = prometheus.NewGaugeVec(
		prometheus.GaugeOpts{
			Name: "pricefeed_history_samples",
			Help: "Number of samples in the persisted history",
		},
		[]string{"token"},
	)

	// HTTPRequestsTotal counts API requests.
	HTTPRequestsTotal = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Name: "pricefeed_http_requests_total",
			Help: "Total number of feed API requests",
		},
		[]string{"route", "status"},
	)
)

func init() {
	prometheus.MustRegister(
		CyclesTotal,
		CycleDuration,
		OutlierRejectionsTotal,
		TWAPPrice,
		SpotPrice,
		HistorySamples,
		HTTPRequestsTotal,
	)
}

// RecordCycle records the outcome of one token cycle.
func RecordCycle(token, status string, duration time.Duration) {
	CyclesTotal.WithLabelValues(token, status).Inc()
	CycleDuration.WithLabelValues(token).Observe(duration.Seconds())
}

// RecordPrice records the values produced by a successful cycle.
func RecordPrice(token string, spot, twap float64, outliers, samples int) {
	SpotPrice.WithLabelValues(token).Set(spot)
	TWAPPrice.WithLabelValues(token).Set(twap)
	HistorySamples.WithLabelValues(token).Set(float64(samples))
	if outliers > 0 {
		OutlierRejectionsTotal.WithLabelValues(token).Add(float64(outliers))
	}
}

// RecordHTTPRequest counts one API request.
func RecordHTTPRequest(route, status string) {
	HTTPRequestsTotal.WithLabelValues(route, status).Inc()
}

// Handler returns the Prometheus scrape handler.
func Handler() http.Handler {
	return promhttp.Handler()
}
