// Package metrics exposes playback and catalog counters for Prometheus.
package metrics

import (
	"context"
	"errors"
	"net/http"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
	"github.com/prometheus/client_golang/prometheus/promhttp"
	"github.com/rs/zerolog/log"
)

// Failure reasons used as label values.
const (
	ReasonTimeout       = "timeout"
	ReasonEngine        = "engine"
	ReasonRejected      = "rejected"
	ReasonUnsupported   = "unsupported"
	ReasonOutput        = "output"
	ResultSuccess       = "success"
	ResultFailure       = "failure"
	serverShutdownGrace = 2 * time.Second
)

var (
	// SessionsStarted counts playback sessions created.
	SessionsStarted = promauto.NewCounter(prometheus.CounterOpts{
		Name: "livetv_sessions_started_total",
		Help: "Total number of playback sessions started",
	})

	PlaybackFailures = promauto.NewCounterVec(prometheus.CounterOpts{
		Name: "livetv_playback_failures_total",
		Help: "Total number of playback failures by reason",
	}, []string{"reason"})

	// EngineWarnings counts non-fatal engine errors. They are never shown to the user.
	EngineWarnings = promauto.NewCounter(prometheus.CounterOpts{
		Name: "livetv_engine_warnings_total",
		Help: "Total number of non-fatal streaming engine errors",
	})

	// ActiveSessions is 0 or 1.
	ActiveSessions = promauto.NewGauge(prometheus.GaugeOpts{
		Name: "livetv_active_sessions",
		Help: "Number of playback sessions currently holding resources",
	})

	StartupLatency = promauto.NewHistogram(prometheus.HistogramOpts{
		Name:    "livetv_startup_latency_seconds",
		Help:    "Time from channel selection to playback start",
		Buckets: []float64{0.25, 0.5, 1, 2, 3, 5, 8, 13},
	})

	CatalogLoads = promauto.NewCounterVec(prometheus.CounterOpts{
		Name: "livetv_catalog_loads_total",
		Help: "Total number of catalog loads by result",
	}, []string{"result"})
)

func RecordPlaybackFailure(reason string) {
	PlaybackFailures.WithLabelValues(reason).Inc()
}

func ObserveStartupLatency(d time.Duration) {
	StartupLatency.Observe(d.Seconds())
}

func RecordCatalogLoad(err error) {
	if err != nil {
		CatalogLoads.WithLabelValues(ResultFailure).Inc()
		return
	}
	CatalogLoads.WithLabelValues(ResultSuccess).Inc()
}

// Serve exposes /metrics on addr until ctx is cancelled.
func Serve(ctx context.Context, addr string) error {
	mux := http.NewServeMux()
	mux.Handle("/metrics", promhttp.Handler())

	srv := &http.Server{
		Addr:              addr,
		Handler:           mux,
		ReadHeaderTimeout: 5 * time.Second,
	}

	go func() {
		<-ctx.Done()
		shutdownCtx, cancel := context.WithTimeout(context.Background(), serverShutdownGrace)
		defer cancel()
		_ = srv.Shutdown(shutdownCtx)
	}()

	log.Debug().Str("addr", addr).Msg("Metrics endpoint listening")
	if err := srv.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
		return err
	}
	return nil
}
