// Package metrics exports queue, stage and presentation activity in the
// Prometheus format. A Metrics value is a queue.Observer, a pipeline.Hooks
// and a present.Observer at once, so one instance can be attached to every
// part of a run.
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

	"github.com/zsiec/reel/internal/media"
	"github.com/zsiec/reel/internal/pipeline"
)

const namespace = "reel"

// Metrics holds the collectors of one process on a private registry.
type Metrics struct {
	registry *prometheus.Registry

	queueDepth   *prometheus.GaugeVec
	queueWrites  *prometheus.CounterVec
	queueReads   *prometheus.CounterVec
	queueBlocked *prometheus.CounterVec

	stageState   *prometheus.GaugeVec
	decoded      *prometheus.CounterVec
	dropped      *prometheus.CounterVec
	decodeErrors *prometheus.CounterVec
	presented    *prometheus.CounterVec
}

// New registers every collector on a fresh registry. withRuntime adds the
// Go runtime and process collectors.
func New(withRuntime bool) *Metrics {
	m := &Metrics{
		registry: prometheus.NewRegistry(),
		queueDepth: prometheus.NewGaugeVec(prometheus.GaugeOpts{
			Namespace: namespace, Subsystem: "queue", Name: "depth",
			Help: "Items buffered in a queue after its last operation.",
		}, []string{"queue"}),
		queueWrites: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace, Subsystem: "queue", Name: "writes_total",
			Help: "Items committed to a queue.",
		}, []string{"queue"}),
		queueReads: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace, Subsystem: "queue", Name: "reads_total",
			Help: "Items removed from a queue.",
		}, []string{"queue"}),
		queueBlocked: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace, Subsystem: "queue", Name: "blocked_writes_total",
			Help: "Writes that found the queue full and had to wait.",
		}, []string{"queue"}),
		stageState: prometheus.NewGaugeVec(prometheus.GaugeOpts{
			Namespace: namespace, Subsystem: "stage", Name: "state",
			Help: "Stage state: 0 idle, 1 running, 2 draining, 3 stopped.",
		}, []string{"stage"}),
		decoded: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace, Subsystem: "stage", Name: "frames_decoded_total",
			Help: "Frames pushed downstream by a decode stage.",
		}, []string{"stage", "type"}),
		dropped: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace, Subsystem: "stage", Name: "frames_dropped_total",
			Help: "Frames abandoned because the run was stopping.",
		}, []string{"stage"}),
		decodeErrors: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace, Subsystem: "stage", Name: "decode_errors_total",
			Help: "Packets rejected by a decoder.",
		}, []string{"stage"}),
		presented: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace, Subsystem: "presenter", Name: "frames_total",
			Help: "Frames handed to the presentation sink.",
		}, []string{"type"}),
	}
	m.registry.MustRegister(
		m.queueDepth, m.queueWrites, m.queueReads, m.queueBlocked,
		m.stageState, m.decoded, m.dropped, m.decodeErrors, m.presented,
	)
	if withRuntime {
		m.registry.MustRegister(
			collectors.NewGoCollector(),
			collectors.NewProcessCollector(collectors.ProcessCollectorOpts{}),
		)
	}
	return m
}

// Registry returns the private registry.
func (m *Metrics) Registry() *prometheus.Registry { return m.registry }

// Handler serves the registry in the text exposition format.
func (m *Metrics) Handler() http.Handler {
	return promhttp.HandlerFor(m.registry, promhttp.HandlerOpts{})
}

func (m *Metrics) QueueWrite(name string, depth int) {
	m.queueWrites.WithLabelValues(name).Inc()
	m.queueDepth.WithLabelValues(name).Set(float64(depth))
}

func (m *Metrics) QueueRead(name string, depth int) {
	m.queueReads.WithLabelValues(name).Inc()
	m.queueDepth.WithLabelValues(name).Set(float64(depth))
}

func (m *Metrics) QueueBlocked(name string) {
	m.queueBlocked.WithLabelValues(name).Inc()
}

func (m *Metrics) StageState(_, stage string, state pipeline.StageState) {
	m.stageState.WithLabelValues(stage).Set(float64(state))
}

func (m *Metrics) FrameDecoded(stage string, t media.Type) {
	m.decoded.WithLabelValues(stage, t.String()).Inc()
}

func (m *Metrics) FrameDropped(stage string) {
	m.dropped.WithLabelValues(stage).Inc()
}

func (m *Metrics) DecodeError(stage string, _ error) {
	m.decodeErrors.WithLabelValues(stage).Inc()
}

func (m *Metrics) FramePresented(t media.Type) {
	m.presented.WithLabelValues(t.String()).Inc()
}

// Serve exposes /metrics on addr until ctx is cancelled.
func (m *Metrics) Serve(ctx context.Context, addr string, log *slog.Logger) error {
	if log == nil {
		log = slog.Default()
	}
	mux := http.NewServeMux()
	mux.Handle("/metrics", m.Handler())
	srv := &http.Server{
		Addr:              addr,
		Handler:           mux,
		ReadHeaderTimeout: 5 * time.Second,
	}

	stop := context.AfterFunc(ctx, func() {
		shutdownCtx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
		defer cancel()
		srv.Shutdown(shutdownCtx)
	})
	defer stop()

	log.Info("metrics server listening", "component", "metrics", "addr", addr)
	if err := srv.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
		return fmt.Errorf("metrics server: %w", err)
	}
	return nil
}
