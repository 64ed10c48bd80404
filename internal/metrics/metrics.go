// Package metrics exposes the service's Prometheus instrumentation.
package metrics

import (
	"net/http"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
	"github.com/prometheus/client_golang/prometheus/promhttp"
)

var (
	// RequestCount counts API requests by method and endpoint.
	RequestCount = promauto.NewCounterVec(prometheus.CounterOpts{
		Name: "api_requests_total",
		Help: "Total API requests",
	}, []string{"method", "endpoint"})

	// RequestDuration observes request latency in seconds.
	RequestDuration = promauto.NewHistogram(prometheus.HistogramOpts{
		Name: "api_request_duration_seconds",
		Help: "Request duration",
	})

	// QueryCount counts queries processed through the pipeline.
	QueryCount = promauto.NewCounter(prometheus.CounterOpts{
		Name: "queries_total",
		Help: "Total queries processed",
	})

	// TranslationCount counts successful Sardaukar translations.
	TranslationCount = promauto.NewCounter(prometheus.CounterOpts{
		Name: "sardaukar_translations_total",
		Help: "Total Sardaukar translations",
	})

	// SynthesisCount counts successful speech syntheses.
	SynthesisCount = promauto.NewCounter(prometheus.CounterOpts{
		Name: "synthesis_total",
		Help: "Total speech syntheses",
	})

	// ErrorCount counts errors by type.
	ErrorCount = promauto.NewCounterVec(prometheus.CounterOpts{
		Name: "errors_total",
		Help: "Total errors",
	}, []string{"error_type"})
)

// Handler serves the Prometheus scrape endpoint.
func Handler() http.Handler {
	return promhttp.Handler()
}
