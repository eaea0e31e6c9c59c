package main

import (
	"context"
	"net/http"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promhttp"

	"dashboard-service/indicator"
)

// PromSink records dispatcher activity in Prometheus metrics.
type PromSink struct {
	events     *prometheus.CounterVec
	changes    *prometheus.CounterVec
	unresolved *prometheus.CounterVec
	failures   *prometheus.CounterVec
	hostSubs   prometheus.Gauge
}

var _ indicator.Metrics = (*PromSink)(nil)

// NewPromSink registers the dashboard metrics on reg. If reg is nil, the
// default registerer is used. Collectors that are already registered are
// reused.
func NewPromSink(reg prometheus.Registerer) (*PromSink, error) {
	if reg == nil {
		reg = prometheus.DefaultRegisterer
	}

	s := &PromSink{
		events: prometheus.NewCounterVec(prometheus.CounterOpts{
			Name: "dashboard_vehicle_events_total",
			Help: "Raw vehicle events received per interface",
		}, []string{"interface"}),
		changes: prometheus.NewCounterVec(prometheus.CounterOpts{
			Name: "dashboard_signal_changes_total",
			Help: "Normalized value changes delivered per signal",
		}, []string{"signal"}),
		unresolved: prometheus.NewCounterVec(prometheus.CounterOpts{
			Name: "dashboard_unresolved_fields_total",
			Help: "Event fields without a matching signal mapping",
		}, []string{"interface", "field"}),
		failures: prometheus.NewCounterVec(prometheus.CounterOpts{
			Name: "dashboard_handler_failures_total",
			Help: "Listener handlers that panicked",
		}, []string{"signal"}),
		hostSubs: prometheus.NewGauge(prometheus.GaugeOpts{
			Name: "dashboard_host_subscriptions",
			Help: "Active host interface subscriptions",
		}),
	}

	var err error
	if s.events, err = registerCounterVec(reg, s.events); err != nil {
		return nil, err
	}
	if s.changes, err = registerCounterVec(reg, s.changes); err != nil {
		return nil, err
	}
	if s.unresolved, err = registerCounterVec(reg, s.unresolved); err != nil {
		return nil, err
	}
	if s.failures, err = registerCounterVec(reg, s.failures); err != nil {
		return nil, err
	}
	if err := reg.Register(s.hostSubs); err != nil {
		are, ok := err.(prometheus.AlreadyRegisteredError)
		if !ok {
			return nil, err
		}
		s.hostSubs = are.ExistingCollector.(prometheus.Gauge)
	}
	return s, nil
}

func registerCounterVec(reg prometheus.Registerer, c *prometheus.CounterVec) (*prometheus.CounterVec, error) {
	if err := reg.Register(c); err != nil {
		if are, ok := err.(prometheus.AlreadyRegisteredError); ok {
			return are.ExistingCollector.(*prometheus.CounterVec), nil
		}
		return nil, err
	}
	return c, nil
}

func (s *PromSink) EventReceived(iface string) {
	s.events.WithLabelValues(iface).Inc()
}

func (s *PromSink) SignalChanged(sig indicator.Signal) {
	s.changes.WithLabelValues(sig.String()).Inc()
}

func (s *PromSink) UnresolvedField(iface, field string) {
	s.unresolved.WithLabelValues(iface, field).Inc()
}

func (s *PromSink) HandlerFailed(sig indicator.Signal) {
	s.failures.WithLabelValues(sig.String()).Inc()
}

func (s *PromSink) HostSubscriptions(n int) {
	s.hostSubs.Set(float64(n))
}

// StartPromServer serves /metrics from gatherer on addr until ctx is canceled.
func StartPromServer(ctx context.Context, log *LeveledLogger, addr string, gatherer prometheus.Gatherer) error {
	mux := http.NewServeMux()
	mux.Handle("/metrics", promhttp.HandlerFor(gatherer, promhttp.HandlerOpts{}))
	srv := &http.Server{Addr: addr, Handler: mux, ReadHeaderTimeout: 5 * time.Second}
	go func() {
		<-ctx.Done()
		shutdownCtx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
		if err := srv.Shutdown(shutdownCtx); err != nil {
			log.Warnf("prom server shutdown: %v", err)
		}
		cancel()
	}()
	if err := srv.ListenAndServe(); err != nil && err != http.ErrServerClosed {
		return err
	}
	return nil
}
