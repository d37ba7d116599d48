// Package metrics exposes Prometheus counters for the scrape pipeline.
package metrics

import (
	"context"
	"fmt"
	"net/http"
	"strconv"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
	"github.com/prometheus/client_golang/prometheus/promhttp"
)

var (
	FetchAttemptsTotal = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "critic_fetch_attempts_total",
			Help: "Total number of page fetch attempts, including retries",
		},
		[]string{"source", "status_code", "rendered"},
	)

	FetchDuration = promauto.NewHistogramVec(
		prometheus.HistogramOpts{
			Name:    "critic_fetch_duration_seconds",
			Help:    "Duration of page fetches in seconds",
			Buckets: []float64{0.1, 0.5, 1, 2, 5, 10, 30, 60},
		},
		[]string{"source", "rendered"},
	)

	BlockedTotal = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "critic_blocked_total",
			Help: "Fetches rejected by bot protection, by vendor",
		},
		[]string{"source", "vendor"},
	)

	ReviewsParsedTotal = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "critic_reviews_parsed_total",
			Help: "Review records successfully parsed from live pages",
		},
		[]string{"source"},
	)

	FallbackRunsTotal = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "critic_fallback_runs_total",
			Help: "Invocations that fell back to synthetic review data",
		},
		[]string{"source", "reason"},
	)
)

// RecordFetch updates the fetch metrics for a single attempt.
func RecordFetch(source string, statusCode int, rendered bool, duration time.Duration) {
	renderedStr := strconv.FormatBool(rendered)
	status := strconv.Itoa(statusCode)
	if statusCode == 0 {
		status = "error"
	}
	FetchAttemptsTotal.WithLabelValues(source, status, renderedStr).Inc()
	FetchDuration.WithLabelValues(source, renderedStr).Observe(duration.Seconds())
}

// Server encapsulates an HTTP server for Prometheus metrics.
type Server struct {
	srv *http.Server
}

// Start begins listening on the specified port and exposes /metrics.
func Start(port int) *Server {
	mux := http.NewServeMux()
	mux.Handle("/metrics", promhttp.Handler())

	srv := &http.Server{
		Addr:    fmt.Sprintf(":%d", port),
		Handler: mux,
	}

	go func() {
		if err := srv.ListenAndServe(); err != nil && err != http.ErrServerClosed {
			fmt.Printf("metrics server failed: %v\n", err)
		}
	}()

	return &Server{srv: srv}
}

// Stop gracefully shuts down the metrics server.
func (s *Server) Stop(ctx context.Context) error {
	if s.srv == nil {
		return nil
	}
	ctx, cancel := context.WithTimeout(ctx, 5*time.Second)
	defer cancel()
	return s.srv.Shutdown(ctx)
}
