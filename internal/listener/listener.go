// Package listener keeps the alarm store in step with the server: it resyncs
// the full alarm list, applies push notifications in arrival order and tells
// the refresh scheduler when the visible set may have changed.
package listener

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/rs/zerolog"
	"golang.org/x/sync/errgroup"

	"github.com/five82/klaxon/internal/alarm"
	"github.com/five82/klaxon/internal/metrics"
	"github.com/five82/klaxon/internal/session"
	"github.com/five82/klaxon/internal/state"
)

const (
	defaultBaseBackoff = time.Second
	maxBackoff         = 30 * time.Second
	queueSize          = 256
)

// calculateBackoff returns base doubled once per consecutive failure,
// capped at maxBackoff.
func calculateBackoff(failures int, base time.Duration) time.Duration {
	if failures <= 0 {
		return base
	}
	d := base
	for i := 0; i < failures; i++ {
		d *= 2
		if d >= maxBackoff {
			return maxBackoff
		}
	}
	return d
}

// AlarmSource returns the server's full alarm list.
type AlarmSource interface {
	GetAlarms(ctx context.Context) ([]alarm.Alarm, error)
}

// Matcher is the current display filter.
type Matcher interface {
	Matches(alarm.Alarm) bool
}

// Signaler is poked when the display may be stale.
type Signaler interface {
	Execute()
}

// ErrorReporter shows a dismissible error to the operator.
type ErrorReporter interface {
	OnError(msg string)
}

// Config wires a Listener.
type Config struct {
	Store       *state.Store
	Server      AlarmSource
	Stream      session.Stream
	Filter      Matcher
	Scheduler   Signaler
	Reporter    ErrorReporter // optional
	Logger      zerolog.Logger
	Metrics     *metrics.Metrics // optional
	BaseBackoff time.Duration
}

// Listener is the single writer of notification-driven store mutations.
type Listener struct {
	cfg Config
	log zerolog.Logger
}

// New returns a listener for cfg.
func New(cfg Config) *Listener {
	if cfg.BaseBackoff <= 0 {
		cfg.BaseBackoff = defaultBaseBackoff
	}
	return &Listener{cfg: cfg, log: cfg.Logger}
}

// SetReporter replaces the error sink.
func (l *Listener) SetReporter(r ErrorReporter) { l.cfg.Reporter = r }

// Run resyncs, then follows the stream until ctx is cancelled, reconnecting
// with exponential backoff and resyncing after every reconnect.
func (l *Listener) Run(ctx context.Context) error {
	notifications := make(chan alarm.Notification, queueSize)
	g, ctx := errgroup.WithContext(ctx)
	g.Go(func() error { return l.Consume(ctx, notifications) })
	g.Go(func() error { return l.follow(ctx, notifications) })
	return g.Wait()
}

func (l *Listener) follow(ctx context.Context, out chan<- alarm.Notification) error {
	failures := 0
	for {
		// Resync logs and reports its own failure; the stream connects regardless
		// and the next reconnect retries the sync.
		_ = l.Resync(ctx)
		if ctx.Err() != nil {
			return nil
		}

		started := time.Now()
		err := l.cfg.Stream.Run(ctx, out)
		if ctx.Err() != nil {
			return nil
		}
		if time.Since(started) >= maxBackoff {
			failures = 0
		}
		wait := calculateBackoff(failures, l.cfg.BaseBackoff)
		failures++
		l.cfg.Metrics.ObserveReconnect()
		l.log.Warn().Err(err).Dur("retry_in", wait).Int("failures", failures).Msg("notification stream lost")

		select {
		case <-ctx.Done():
			return nil
		case <-time.After(wait):
		}
	}
}

// Consume applies notifications from ch until it is closed or ctx is done.
func (l *Listener) Consume(ctx context.Context, ch <-chan alarm.Notification) error {
	for {
		select {
		case <-ctx.Done():
			return nil
		case n, ok := <-ch:
			if !ok {
				return nil
			}
			if err := l.Handle(n); errors.Is(err, state.ErrClosed) {
				return nil
			}
		}
	}
}

// Handle applies one notification and signals the scheduler when the old or
// new value of any touched alarm passes the current filter.
func (l *Listener) Handle(n alarm.Notification) error {
	ch, err := l.cfg.Store.Apply(n)
	if err != nil {
		l.log.Warn().Err(err).Str("kind", n.Kind.String()).Msg("notification not applied")
		return err
	}
	l.cfg.Metrics.ObserveNotification(n.Kind.String())
	if l.cfg.Filter == nil || ch.Touches(l.cfg.Filter.Matches) {
		l.cfg.Scheduler.Execute()
	}
	return nil
}

// Resync replaces the store with the server's alarm list. On failure the
// store keeps its last contents and the operator sees an error banner.
func (l *Listener) Resync(ctx context.Context) error {
	alarms, err := l.cfg.Server.GetAlarms(ctx)
	if err == nil {
		_, err = l.cfg.Store.ApplyFullSync(alarms)
	}
	l.cfg.Metrics.ObserveResync(err)
	if err != nil {
		if ctx.Err() != nil || errors.Is(err, state.ErrClosed) {
			return err
		}
		l.cfg.Store.RecordSyncError(err)
		l.log.Error().Err(err).Msg("alarm resync failed")
		if l.cfg.Reporter != nil {
			l.cfg.Reporter.OnError(fmt.Sprintf("Cannot synchronize alarm list: %v", err))
		}
		return err
	}
	l.log.Info().Int("alarms", len(alarms)).Msg("alarm list synchronized")
	l.cfg.Scheduler.Execute()
	return nil
}
