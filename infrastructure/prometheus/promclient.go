package promclient

import (
	"context"
	"errors"
	"net/http"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/collectors"
	"github.com/prometheus/client_golang/prometheus/promhttp"
	"github.com/spooky-finn/depthbook/infrastructure/logger"
	"go.uber.org/zap"
)

var log = logger.Named("prometheus")

// Metrics implements domain.MaintainerMetrics and tracks open books per provider.
type Metrics struct {
	OpenOrderBooks *prometheus.GaugeVec
	Resyncs        *prometheus.CounterVec
	AppliedUpdates *prometheus.CounterVec

	registry *prometheus.Registry
}

func NewMetrics() *Metrics {
	m := &Metrics{
		OpenOrderBooks: prometheus.NewGaugeVec(
			prometheus.GaugeOpts{
				Name: "depthbook_open_order_books",
				Help: "order books currently maintained",
			},
			[]string{"provider"},
		),
		Resyncs: prometheus.NewCounterVec(
			prometheus.CounterOpts{
				Name: "depthbook_resyncs_total",
				Help: "snapshot reloads caused by sequence gaps",
			},
			[]string{"provider"},
		),
		AppliedUpdates: prometheus.NewCounterVec(
			prometheus.CounterOpts{
				Name: "depthbook_applied_updates_total",
				Help: "depth updates applied to order books",
			},
			[]string{"provider"},
		),
		registry: prometheus.NewRegistry(),
	}

	m.registry.MustRegister(m.OpenOrderBooks)
	m.registry.MustRegister(m.Resyncs)
	m.registry.MustRegister(m.AppliedUpdates)
	m.registry.MustRegister(collectors.NewGoCollector())

	return m
}

func (m *Metrics) UpdateApplied(provider string) {
	m.AppliedUpdates.WithLabelValues(provider).Inc()
}

func (m *Metrics) Resync(provider string) {
	m.Resyncs.WithLabelValues(provider).Inc()
}

func (m *Metrics) OrderBookOpened(provider string) {
	m.OpenOrderBooks.WithLabelValues(provider).Inc()
}

func (m *Metrics) OrderBookClosed(provider string) {
	m.OpenOrderBooks.WithLabelValues(provider).Dec()
}

func (m *Metrics) Handler() http.Handler {
	return promhttp.HandlerFor(m.registry, promhttp.HandlerOpts{})
}

// StartPromClientServer serves /metrics on addr until ctx is done.
func (m *Metrics) StartPromClientServer(ctx context.Context, addr string) error {
	mux := http.NewServeMux()
	mux.Handle("/metrics", m.Handler())

	srv := &http.Server{
		Addr:              addr,
		Handler:           mux,
		ReadHeaderTimeout: 5 * time.Second,
	}

	go func() {
		<-ctx.Done()
		shutdownCtx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
		defer cancel()
		_ = srv.Shutdown(shutdownCtx)
	}()

	log.Info("prometheus server listening", zap.String("addr", addr))
	if err := srv.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
		return err
	}
	return nil
}
