// ABOUTME: Prometheus counters for the ingestion pipeline and supervisor
// ABOUTME: A nil *Recorder is valid and records nothing

package metrics

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"net/http"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/collectors"
	"github.com/prometheus/client_golang/prometheus/promhttp"
)

const namespace = "coven_archiver"

// Event outcomes.
const (
	OutcomeArchived     = "archived"
	OutcomeSelfFiltered = "self_filtered"
	OutcomeCommand      = "command"
	OutcomeDuplicate    = "duplicate"
	OutcomeFailed       = "failed"
)

// Forward results.
const (
	ForwardSent    = "sent"
	ForwardSkipped = "skipped"
	ForwardFailed  = "failed"
)

// Recorder owns a private registry so several can coexist in tests.
type Recorder struct {
	registry *prometheus.Registry

	events        *prometheus.CounterVec
	logLines      *prometheus.CounterVec
	mediaSaved    *prometheus.CounterVec
	fetchFailures prometheus.Counter
	forwards      *prometheus.CounterVec
	commands      *prometheus.CounterVec
	restarts      prometheus.Counter
	connected     prometheus.Gauge
}

// New creates a Recorder with Go runtime and process collectors registered.
func New() *Recorder {
	r := &Recorder{
		registry: prometheus.NewRegistry(),
		events: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "events_total",
			Help:      "Inbound message events by processing outcome.",
		}, []string{"outcome"}),
		logLines: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "log_lines_total",
			Help:      "Lines appended to per-identity logs.",
		}, []string{"category"}),
		mediaSaved: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "media_saved_total",
			Help:      "Media payloads written to the vault.",
		}, []string{"category", "kind"}),
		fetchFailures: prometheus.NewCounter(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "media_fetch_failures_total",
			Help:      "Media fetches that exhausted every attempt.",
		}),
		forwards: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "forwards_total",
			Help:      "Forward decisions towards the backup destination.",
		}, []string{"kind", "result"}),
		commands: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "commands_total",
			Help:      "Administrative commands executed.",
		}, []string{"name"}),
		restarts: prometheus.NewCounter(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "session_restarts_total",
			Help:      "Supervised transport session restarts.",
		}),
		connected: prometheus.NewGauge(prometheus.GaugeOpts{
			Namespace: namespace,
			Name:      "connected",
			Help:      "1 while the transport reports an open connection.",
		}),
	}
	r.registry.MustRegister(
		collectors.NewGoCollector(),
		collectors.NewProcessCollector(collectors.ProcessCollectorOpts{}),
		r.events, r.logLines, r.mediaSaved, r.fetchFailures,
		r.forwards, r.commands, r.restarts, r.connected,
	)
	return r
}

func (r *Recorder) Event(outcome string) {
	if r == nil {
		return
	}
	r.events.WithLabelValues(outcome).Inc()
}

func (r *Recorder) LogLine(category string) {
	if r == nil {
		return
	}
	r.logLines.WithLabelValues(category).Inc()
}

func (r *Recorder) MediaSaved(category, kind string) {
	if r == nil {
		return
	}
	r.mediaSaved.WithLabelValues(category, kind).Inc()
}

func (r *Recorder) FetchFailed() {
	if r == nil {
		return
	}
	r.fetchFailures.Inc()
}

func (r *Recorder) Forward(kind, result string) {
	if r == nil {
		return
	}
	r.forwards.WithLabelValues(kind, result).Inc()
}

func (r *Recorder) Command(name string) {
	if r == nil {
		return
	}
	r.commands.WithLabelValues(name).Inc()
}

func (r *Recorder) Restart() {
	if r == nil {
		return
	}
	r.restarts.Inc()
}

func (r *Recorder) SetConnected(up bool) {
	if r == nil {
		return
	}
	if up {
		r.connected.Set(1)
	} else {
		r.connected.Set(0)
	}
}

// Handler exposes the registry in the Prometheus text format.
func (r *Recorder) Handler() http.Handler {
	if r == nil {
		return http.NotFoundHandler()
	}
	return promhttp.HandlerFor(r.registry, promhttp.HandlerOpts{})
}

// Serve runs an HTTP server exposing Handler at path until ctx is done.
func Serve(ctx context.Context, addr, path string, r *Recorder, logger *slog.Logger) error {
	if path == "" {
		path = "/metrics"
	}
	mux := http.NewServeMux()
	mux.Handle(path, r.Handler())
	srv := &http.Server{
		Addr:              addr,
		Handler:           mux,
		ReadHeaderTimeout: 5 * time.Second,
	}

	errCh := make(chan error, 1)
	go func() {
		logger.Info("metrics endpoint listening", "addr", addr, "path", path)
		errCh <- srv.ListenAndServe()
	}()

	select {
	case <-ctx.Done():
		shutdownCtx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
		defer cancel()
		if err := srv.Shutdown(shutdownCtx); err != nil {
			return fmt.Errorf("shutting down metrics server: %w", err)
		}
		return nil
	case err := <-errCh:
		if errors.Is(err, http.ErrServerClosed) {
			return nil
		}
		return fmt.Errorf("metrics server: %w", err)
	}
}
