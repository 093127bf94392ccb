// Package metrics holds the agent's prometheus collectors and the optional
// /metrics listener.
package metrics

import (
	"context"
	"errors"
	"net/http"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/collectors"
	"github.com/prometheus/client_golang/prometheus/promhttp"

	"github.com/bft-labs/telship/internal/domain"
	"github.com/bft-labs/telship/pkg/log"
)

const namespace = "telship"

// Metrics is the set of collectors shared by all pipelines of one agent.
type Metrics struct {
	reg *prometheus.Registry

	inEventGroups *prometheus.CounterVec
	inEvents      *prometheus.CounterVec
	inSizeBytes   *prometheus.CounterVec
	packageTimeMs *prometheus.CounterVec
	sendFailures  *prometheus.CounterVec
	sendRetries   *prometheus.CounterVec

	appendedBytes *prometheus.CounterVec
	sealed        *prometheus.CounterVec
	pending       *prometheus.GaugeVec
}

// New creates the collectors on a private registry, together with the Go
// runtime and process collectors.
func New() *Metrics {
	sinkLabels := []string{"pipeline", "sink"}
	m := &Metrics{
		reg: prometheus.NewRegistry(),
		inEventGroups: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace, Subsystem: "flusher", Name: "in_event_groups_total",
			Help: "Sealed batches handed to the sink.",
		}, sinkLabels),
		inEvents: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace, Subsystem: "flusher", Name: "in_events_total",
			Help: "Events handed to the sink.",
		}, sinkLabels),
		inSizeBytes: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace, Subsystem: "flusher", Name: "in_size_bytes",
			Help: "Estimated bytes handed to the sink.",
		}, sinkLabels),
		packageTimeMs: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace, Subsystem: "flusher", Name: "total_package_time_ms",
			Help: "Time spent delivering payloads, retries included.",
		}, sinkLabels),
		sendFailures: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace, Subsystem: "flusher", Name: "send_failures_total",
			Help: "Payloads dropped after the last attempt failed.",
		}, sinkLabels),
		sendRetries: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace, Subsystem: "flusher", Name: "send_retries_total",
			Help: "Delivery attempts after the first one.",
		}, sinkLabels),
		appendedBytes: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace, Subsystem: "batch", Name: "appended_bytes_total",
			Help: "Estimated bytes appended to open batches.",
		}, []string{"pipeline"}),
		sealed: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace, Subsystem: "batch", Name: "sealed_total",
			Help: "Sealed batches by flush reason.",
		}, []string{"pipeline", "reason"}),
		pending: prometheus.NewGaugeVec(prometheus.GaugeOpts{
			Namespace: namespace, Subsystem: "pipeline", Name: "pending_events",
			Help: "Events buffered in open batches.",
		}, []string{"pipeline"}),
	}

	m.reg.MustRegister(
		collectors.NewGoCollector(),
		collectors.NewProcessCollector(collectors.ProcessCollectorOpts{}),
		m.inEventGroups, m.inEvents, m.inSizeBytes, m.packageTimeMs,
		m.sendFailures, m.sendRetries,
		m.appendedBytes, m.sealed, m.pending,
	)
	return m
}

// Registry exposes the underlying registry, mainly for tests.
func (m *Metrics) Registry() *prometheus.Registry { return m.reg }

// Handler serves the registry in the prometheus exposition format.
func (m *Metrics) Handler() http.Handler {
	return promhttp.HandlerFor(m.reg, promhttp.HandlerOpts{})
}

// SinkCounters are the per pipeline/sink counters of a flusher.
type SinkCounters struct {
	InEventGroups prometheus.Counter
	InEvents      prometheus.Counter
	InSizeBytes   prometheus.Counter
	PackageTimeMs prometheus.Counter
	SendFailures  prometheus.Counter
	SendRetries   prometheus.Counter
}

// Sink returns the counters for one pipeline/sink pair.
func (m *Metrics) Sink(pipeline, sink string) SinkCounters {
	return SinkCounters{
		InEventGroups: m.inEventGroups.WithLabelValues(pipeline, sink),
		InEvents:      m.inEvents.WithLabelValues(pipeline, sink),
		InSizeBytes:   m.inSizeBytes.WithLabelValues(pipeline, sink),
		PackageTimeMs: m.packageTimeMs.WithLabelValues(pipeline, sink),
		SendFailures:  m.sendFailures.WithLabelValues(pipeline, sink),
		SendRetries:   m.sendRetries.WithLabelValues(pipeline, sink),
	}
}

// SetPending records the number of buffered events of a pipeline.
func (m *Metrics) SetPending(pipeline string, n int) {
	m.pending.WithLabelValues(pipeline).Set(float64(n))
}

// BatchObserver returns a batch observer that feeds the batch collectors.
func (m *Metrics) BatchObserver(pipeline string) *BatchObserver {
	return &BatchObserver{
		appended: m.appendedBytes.WithLabelValues(pipeline),
		sealed:   m.sealed.MustCurryWith(prometheus.Labels{"pipeline": pipeline}),
	}
}

// BatchObserver implements batch.Observer.
type BatchObserver struct {
	appended prometheus.Counter
	sealed   *prometheus.CounterVec
}

func (o *BatchObserver) OnAppend(_ string, sizeBytes int) {
	o.appended.Add(float64(sizeBytes))
}

func (o *BatchObserver) OnSeal(_ string, reason domain.FlushReason, _ domain.Snapshot) {
	o.sealed.WithLabelValues(string(reason)).Inc()
}

// OnDeliver is a no-op; delivery is accounted by the flusher.
func (o *BatchObserver) OnDeliver(*domain.Payload, error, time.Duration) {}

// Serve runs an HTTP listener for /metrics until ctx is done.
func Serve(ctx context.Context, addr string, m *Metrics, logger log.Logger) error {
	mux := http.NewServeMux()
	mux.Handle("/metrics", m.Handler())
	srv := &http.Server{Addr: addr, Handler: mux, ReadHeaderTimeout: 5 * time.Second}

	errCh := make(chan error, 1)
	go func() {
		logger.Info("metrics listener started", log.String("addr", addr))
		errCh <- srv.ListenAndServe()
	}()

	select {
	case err := <-errCh:
		return err
	case <-ctx.Done():
		shutdownCtx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
		defer cancel()
		if err := srv.Shutdown(shutdownCtx); err != nil {
			return err
		}
		if err := <-errCh; !errors.Is(err, http.ErrServerClosed) {
			return err
		}
		return nil
	}
}
