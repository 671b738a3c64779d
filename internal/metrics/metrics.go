// Package metrics exposes console health counters for Prometheus.
package metrics

import (
	"context"
	"errors"
	"net/http"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promhttp"
)

const metricPrefix = "klaxon_"

const (
	resultSuccess = "success"
	resultError   = "error"
)

// StoreStats reports live store sizes for the gauges.
type StoreStats interface {
	Len() int
	OutstandingCount() int
}

// Metrics bundles console metrics. A nil *Metrics is valid and records
// nothing.
type Metrics struct {
	Registry *prometheus.Registry

	NotificationsTotal *prometheus.CounterVec
	ResyncsTotal       *prometheus.CounterVec
	ReconnectsTotal    prometheus.Counter
	ProjectionsTotal   prometheus.Counter
	ProjectionDuration prometheus.Histogram
	SoundsPlayedTotal  *prometheus.CounterVec
	SoundsDroppedTotal prometheus.Counter
	CommandsTotal      *prometheus.CounterVec
}

// New constructs metrics on a private registry. stats may be nil.
func New(stats StoreStats) *Metrics {
	m := &Metrics{
		Registry: prometheus.NewRegistry(),
		NotificationsTotal: prometheus.NewCounterVec(
			prometheus.CounterOpts{
				Name: metricPrefix + "notifications_total",
				Help: "Push notifications applied by kind",
			},
			[]string{"kind"},
		),
		ResyncsTotal: prometheus.NewCounterVec(
			prometheus.CounterOpts{
				Name: metricPrefix + "resyncs_total",
				Help: "Full alarm resyncs by result",
			},
			[]string{"result"},
		),
		ReconnectsTotal: prometheus.NewCounter(prometheus.CounterOpts{
			Name: metricPrefix + "stream_reconnects_total",
			Help: "Notification stream reconnect attempts",
		}),
		ProjectionsTotal: prometheus.NewCounter(prometheus.CounterOpts{
			Name: metricPrefix + "projections_total",
			Help: "Display projection runs",
		}),
		ProjectionDuration: prometheus.NewHistogram(prometheus.HistogramOpts{
			Name:    metricPrefix + "projection_duration_seconds",
			Help:    "Display projection duration in seconds",
			Buckets: prometheus.ExponentialBuckets(0.0001, 4, 8),
		}),
		SoundsPlayedTotal: prometheus.NewCounterVec(
			prometheus.CounterOpts{
				Name: metricPrefix + "sounds_played_total",
				Help: "Sounds played by tag",
			},
			[]string{"tag"},
		),
		SoundsDroppedTotal: prometheus.NewCounter(prometheus.CounterOpts{
			Name: metricPrefix + "sounds_dropped_total",
			Help: "Sounds dropped because the queue was full",
		}),
		CommandsTotal: prometheus.NewCounterVec(
			prometheus.CounterOpts{
				Name: metricPrefix + "commands_total",
				Help: "Operator commands by action and result",
			},
			[]string{"action", "result"},
		),
	}
	m.Registry.MustRegister(
		m.NotificationsTotal,
		m.ResyncsTotal,
		m.ReconnectsTotal,
		m.ProjectionsTotal,
		m.ProjectionDuration,
		m.SoundsPlayedTotal,
		m.SoundsDroppedTotal,
		m.CommandsTotal,
	)
	if stats != nil {
		m.Registry.MustRegister(
			prometheus.NewGaugeFunc(prometheus.GaugeOpts{
				Name: metricPrefix + "alarms",
				Help: "Alarms held in the local store",
			}, func() float64 { return float64(stats.Len()) }),
			prometheus.NewGaugeFunc(prometheus.GaugeOpts{
				Name: metricPrefix + "alarms_outstanding",
				Help: "Outstanding alarms in the local store",
			}, func() float64 { return float64(stats.OutstandingCount()) }),
		)
	}
	return m
}

func result(err error) string {
	if err != nil {
		return resultError
	}
	return resultSuccess
}

// ObserveNotification counts one applied notification.
func (m *Metrics) ObserveNotification(kind string) {
	if m == nil {
		return
	}
	m.NotificationsTotal.WithLabelValues(kind).Inc()
}

// ObserveResync counts one resync attempt.
func (m *Metrics) ObserveResync(err error) {
	if m == nil {
		return
	}
	m.ResyncsTotal.WithLabelValues(result(err)).Inc()
}

// ObserveReconnect counts one stream reconnect.
func (m *Metrics) ObserveReconnect() {
	if m == nil {
		return
	}
	m.ReconnectsTotal.Inc()
}

// ObserveProjection records one projection run.
func (m *Metrics) ObserveProjection(d time.Duration) {
	if m == nil {
		return
	}
	m.ProjectionsTotal.Inc()
	m.ProjectionDuration.Observe(d.Seconds())
}

// ObserveSoundPlayed counts a played sound.
func (m *Metrics) ObserveSoundPlayed(tag string) {
	if m == nil {
		return
	}
	m.SoundsPlayedTotal.WithLabelValues(tag).Inc()
}

// ObserveSoundDropped counts a sound lost to a full queue.
func (m *Metrics) ObserveSoundDropped() {
	if m == nil {
		return
	}
	m.SoundsDroppedTotal.Inc()
}

// ObserveCommand counts one dispatched command.
func (m *Metrics) ObserveCommand(action string, err error) {
	if m == nil {
		return
	}
	m.CommandsTotal.WithLabelValues(action, result(err)).Inc()
}

// Handler serves the registry in the Prometheus text format.
func (m *Metrics) Handler() http.Handler {
	return promhttp.HandlerFor(m.Registry, promhttp.HandlerOpts{})
}

// Serve exposes /metrics on addr until ctx is cancelled.
func (m *Metrics) Serve(ctx context.Context, addr string) error {
	mux := http.NewServeMux()
	mux.Handle("/metrics", m.Handler())
	srv := &http.Server{Addr: addr, Handler: mux, ReadHeaderTimeout: 5 * time.Second}

	errCh := make(chan error, 1)
	go func() { errCh <- srv.ListenAndServe() }()

	select {
	case <-ctx.Done():
		shutdownCtx, cancel := context.WithTimeout(context.Background(), 2*time.Second)
		defer cancel()
		_ = srv.Shutdown(shutdownCtx)
		return nil
	case err := <-errCh:
		if errors.Is(err, http.ErrServerClosed) {
			return nil
		}
		return err
	}
}
