// Package middleware contains shared Gin middleware used by the HTTP layer.
//
// This file holds the Prometheus collectors for HTTP traffic, served reports
// and rate-limit rejections. Path labels are route templates
// (/api/v1/reports/:id), never raw URLs, unless no route matched.
package middleware

import (
	"strconv"
	"time"

	"github.com/gin-gonic/gin"
	"github.com/prometheus/client_golang/prometheus"
)

var (
	// httpReqs counts requests by method, route path, and status code.
	httpReqs = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Name: "http_requests_total",
			Help: "Total number of HTTP requests.",
		},
		[]string{"method", "path", "status"},
	)

	// httpLat records request duration by method and route path. The upper
	// buckets cover uncached reports, which wait on generation.
	httpLat = prometheus.NewHistogramVec(
		prometheus.HistogramOpts{
			Name:    "http_request_duration_seconds",
			Help:    "Duration of HTTP requests in seconds.",
			Buckets: []float64{.005, .01, .025, .05, .1, .25, .5, 1, 2.5, 5, 10, 20, 40, 60, 120},
		},
		[]string{"method", "path"},
	)

	// httpInflight gauges the number of in-flight (currently processing) requests.
	httpInflight = prometheus.NewGauge(
		prometheus.GaugeOpts{
			Name: "http_requests_inflight",
			Help: "Current number of in-flight HTTP requests.",
		},
	)

	// httpRespSize captures response sizes in bytes by method and route path.
	// A full report with every section runs to a few tens of KiB.
	httpRespSize = prometheus.NewHistogramVec(
		prometheus.HistogramOpts{
			Name:    "http_response_size_bytes",
			Help:    "Size of HTTP responses in bytes.",
			Buckets: prometheus.ExponentialBuckets(128, 2, 12), // 128B..256KiB
		},
		[]string{"method", "path"},
	)

	// reportsServed counts report responses by kind and result
	// (cached, generated, failed).
	reportsServed = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Name: "reports_served_total",
			Help: "Report requests by kind and result.",
		},
		[]string{"kind", "result"},
	)

	// rateLimited counts requests rejected by the rate limiter per route.
	rateLimited = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Name: "http_rate_limited_total",
			Help: "Requests rejected with 429 by the rate limiter.",
		},
		[]string{"path"},
	)
)

// Report results recorded by ObserveReport.
const (
	ReportCached    = "cached"
	ReportGenerated = "generated"
	ReportFailed    = "failed"
)

func init() {
	prometheus.MustRegister(httpReqs, httpLat, httpInflight, httpRespSize, reportsServed, rateLimited)
}

// ObserveReport records one served report request.
func ObserveReport(kind, result string) {
	reportsServed.WithLabelValues(kind, result).Inc()
}

func observeRateLimited(c *gin.Context) {
	rateLimited.WithLabelValues(routeLabel(c)).Inc()
}

// Metrics returns a Gin middleware that instruments requests with Prometheus:
// http_requests_total(method, path, status), http_request_duration_seconds
// and http_response_size_bytes(method, path), and the http_requests_inflight
// gauge. Handlers that never report a size (hijacked connections) are left out
// of the size histogram.
//
//	r.Use(middleware.Metrics())
//	r.GET("/metrics", gin.WrapH(promhttp.Handler()))
func Metrics() gin.HandlerFunc {
	return func(c *gin.Context) {
		start := time.Now()
		httpInflight.Inc()
		defer httpInflight.Dec()

		c.Next()

		path := routeLabel(c)
		method := c.Request.Method

		httpReqs.WithLabelValues(method, path, strconv.Itoa(c.Writer.Status())).Inc()
		httpLat.WithLabelValues(method, path).Observe(time.Since(start).Seconds())
		if size := c.Writer.Size(); size >= 0 {
			httpRespSize.WithLabelValues(method, path).Observe(float64(size))
		}
	}
}

// routeLabel is the registered route, or the raw path when nothing matched.
func routeLabel(c *gin.Context) string {
	if p := c.FullPath(); p != "" {
		return p
	}
	return c.Request.URL.Path
}
