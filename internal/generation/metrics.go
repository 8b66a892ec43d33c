package generation

import (
	"time"

	"github.com/prometheus/client_golang/prometheus"
)

var (
	// calls counts finished Generate calls by outcome ("ok" or an error code).
	calls = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Name: "generation_requests_total",
			Help: "Total number of generation gateway calls by outcome.",
		},
		[]string{"outcome"},
	)

	// latency spans the whole call, retries included.
	latency = prometheus.NewHistogram(
		prometheus.HistogramOpts{
			Name:    "generation_request_duration_seconds",
			Help:    "Duration of generation gateway calls in seconds.",
			Buckets: []float64{0.5, 1, 2, 5, 10, 20, 30, 60, 120, 180},
		},
	)

	retries = prometheus.NewCounter(
		prometheus.CounterOpts{
			Name: "generation_retries_total",
			Help: "Total number of retried generation attempts.",
		},
	)
)

func init() {
	prometheus.MustRegister(calls, latency, retries)
}

func observe(code string, d time.Duration) {
	if code == "" {
		code = "ok"
	}
	calls.WithLabelValues(code).Inc()
	latency.Observe(d.Seconds())
}
