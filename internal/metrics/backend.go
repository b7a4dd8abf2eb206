package metrics

import (
	"context"
	"time"

	"github.com/prometheus/client_golang/prometheus"

	"github.com/darkace1998/FlowSentry/internal/model"
	"github.com/darkace1998/FlowSentry/internal/session"
)

// Upstream is the backend surface the decorator instruments: the calls the
// scheduler drives plus the ip-stats histogram read by the web layer.
type Upstream interface {
	session.Backend
	FetchIPStats(ctx context.Context) (model.IPStats, error)
}

// Backend wraps an Upstream and records request counts, failures and
// latency per operation.
type Backend struct {
	next     Upstream
	requests *prometheus.CounterVec
	failures *prometheus.CounterVec
	latency  *prometheus.HistogramVec
}

// InstrumentBackend wraps next and registers its metrics with reg.
func InstrumentBackend(next Upstream, reg prometheus.Registerer) *Backend {
	b := &Backend{
		next: next,
		requests: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "backend_requests_total",
			Help:      "Backend requests by operation",
		}, []string{"op"}),
		failures: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "backend_fetch_failures_total",
			Help:      "Backend requests that failed (network, timeout, non-2xx or bad body)",
		}, []string{"op"}),
		latency: prometheus.NewHistogramVec(prometheus.HistogramOpts{
			Namespace: namespace,
			Name:      "backend_request_duration_seconds",
			Help:      "Backend request latency",
			Buckets:   prometheus.DefBuckets,
		}, []string{"op"}),
	}
	reg.MustRegister(b.requests, b.failures, b.latency)
	return b
}

func (b *Backend) observe(op string, start time.Time, err error) {
	b.requests.WithLabelValues(op).Inc()
	b.latency.WithLabelValues(op).Observe(time.Since(start).Seconds())
	if err != nil {
		b.failures.WithLabelValues(op).Inc()
	}
}

func (b *Backend) FetchFlows(ctx context.Context) ([]model.FlowRecord, error) {
	start := time.Now()
	flows, err := b.next.FetchFlows(ctx)
	b.observe("flows", start, err)
	return flows, err
}

func (b *Backend) FetchStatus(ctx context.Context) (model.ApiStatus, error) {
	start := time.Now()
	st, err := b.next.FetchStatus(ctx)
	b.observe("status", start, err)
	return st, err
}

func (b *Backend) StartCapture(ctx context.Context) error {
	start := time.Now()
	err := b.next.StartCapture(ctx)
	b.observe("start", start, err)
	return err
}

func (b *Backend) StopCapture(ctx context.Context) error {
	start := time.Now()
	err := b.next.StopCapture(ctx)
	b.observe("stop", start, err)
	return err
}

func (b *Backend) FetchIPStats(ctx context.Context) (model.IPStats, error) {
	start := time.Now()
	st, err := b.next.FetchIPStats(ctx)
	b.observe("ip-stats", start, err)
	return st, err
}
