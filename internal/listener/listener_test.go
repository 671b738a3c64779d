package listener

import (
	"context"
	"errors"
	"sync"
	"sync/atomic"
	"testing"
	"time"

	"github.com/prometheus/client_golang/prometheus/testutil"
	"github.com/rs/zerolog"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/five82/klaxon/internal/alarm"
	"github.com/five82/klaxon/internal/metrics"
	"github.com/five82/klaxon/internal/state"
)

type fakeServer struct {
	mu     sync.Mutex
	alarms []alarm.Alarm
	err    error
	calls  int
}

func (f *fakeServer) GetAlarms(ctx context.Context) ([]alarm.Alarm, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.calls++
	if f.err != nil {
		return nil, f.err
	}
	return append([]alarm.Alarm(nil), f.alarms...), nil
}

func (f *fakeServer) callCount() int {
	f.mu.Lock()
	defer f.mu.Unlock()
	return f.calls
}

type counter struct{ n atomic.Int32 }

func (c *counter) Execute() { c.n.Add(1) }

type errorSink struct {
	mu   sync.Mutex
	msgs []string
}

func (e *errorSink) OnError(msg string) {
	e.mu.Lock()
	defer e.mu.Unlock()
	e.msgs = append(e.msgs, msg)
}

type severityFilter alarm.Severity

func (s severityFilter) Matches(a alarm.Alarm) bool { return a.Severity == alarm.Severity(s) }

// scriptedStream replays one batch per connection. After the batches run out
// it blocks until cancelled.
type scriptedStream struct {
	mu      sync.Mutex
	batches [][]alarm.Notification
	runs    int
}

func (s *scriptedStream) Run(ctx context.Context, out chan<- alarm.Notification) error {
	s.mu.Lock()
	s.runs++
	var batch []alarm.Notification
	more := len(s.batches) > 0
	if more {
		batch, s.batches = s.batches[0], s.batches[1:]
	}
	s.mu.Unlock()

	if !more {
		<-ctx.Done()
		return nil
	}
	for _, n := range batch {
		select {
		case out <- n:
		case <-ctx.Done():
			return nil
		}
	}
	return errors.New("connection reset")
}

func (s *scriptedStream) runCount() int {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.runs
}

func newAlarm(id int64, sev alarm.Severity) alarm.Alarm {
	return alarm.Alarm{ID: id, Severity: sev, State: alarm.StateOutstanding, Message: "link down"}
}

func TestHandle_SignalsOnlyWhenFilterTouched(t *testing.T) {
	store := state.New()
	sched := &counter{}
	l := New(Config{Store: store, Filter: severityFilter(alarm.SeverityMajor), Scheduler: sched, Logger: zerolog.Nop()})

	require.NoError(t, l.Handle(alarm.Notification{Kind: alarm.KindNewAlarm, Alarm: newAlarm(1, alarm.SeverityMinor)}))
	assert.Equal(t, int32(0), sched.n.Load())

	require.NoError(t, l.Handle(alarm.Notification{Kind: alarm.KindNewAlarm, Alarm: newAlarm(2, alarm.SeverityMajor)}))
	assert.Equal(t, int32(1), sched.n.Load())

	// Promotion into the filter counts through the new value.
	require.NoError(t, l.Handle(alarm.Notification{Kind: alarm.KindAlarmChanged, Alarm: newAlarm(1, alarm.SeverityMajor)}))
	assert.Equal(t, int32(2), sched.n.Load())

	// Leaving the filter counts through the old value.
	require.NoError(t, l.Handle(alarm.Notification{Kind: alarm.KindAlarmChanged, Alarm: newAlarm(2, alarm.SeverityMinor)}))
	assert.Equal(t, int32(3), sched.n.Load())
}

func TestHandle_CountsByKind(t *testing.T) {
	store := state.New()
	m := metrics.New(store)
	l := New(Config{Store: store, Scheduler: &counter{}, Logger: zerolog.Nop(), Metrics: m})

	require.NoError(t, l.Handle(alarm.Notification{Kind: alarm.KindNewAlarm, Alarm: newAlarm(1, alarm.SeverityMinor)}))
	require.NoError(t, l.Handle(alarm.Notification{Kind: alarm.KindBulkResolved, Bulk: alarm.BulkStateChange{IDs: []int64{1}, UserName: "ops"}}))

	assert.Equal(t, 1.0, testutil.ToFloat64(m.NotificationsTotal.WithLabelValues("new_alarm")))
	assert.Equal(t, 1.0, testutil.ToFloat64(m.NotificationsTotal.WithLabelValues("bulk_resolved")))
}

func TestResync_FailureKeepsAlarmsAndReports(t *testing.T) {
	store := state.New()
	server := &fakeServer{alarms: []alarm.Alarm{newAlarm(1, alarm.SeverityMajor)}}
	sink := &errorSink{}
	sched := &counter{}
	m := metrics.New(store)
	l := New(Config{Store: store, Server: server, Scheduler: sched, Reporter: sink, Logger: zerolog.Nop(), Metrics: m})

	require.NoError(t, l.Resync(context.Background()))
	assert.Equal(t, 1, store.Len())
	assert.Equal(t, int32(1), sched.n.Load())

	server.mu.Lock()
	server.err = errors.New("503 Service Unavailable")
	server.mu.Unlock()

	err := l.Resync(context.Background())
	require.Error(t, err)
	assert.Equal(t, 1, store.Len())
	snap := store.Snapshot()
	require.Error(t, snap.LastError)
	assert.Equal(t, 1, snap.ConsecutiveFailures)
	require.Len(t, sink.msgs, 1)
	assert.Contains(t, sink.msgs[0], "503")
	assert.Equal(t, 1.0, testutil.ToFloat64(m.ResyncsTotal.WithLabelValues("success")))
	assert.Equal(t, 1.0, testutil.ToFloat64(m.ResyncsTotal.WithLabelValues("error")))
}

func TestRun_ReconnectsAndResyncs(t *testing.T) {
	store := state.New()
	server := &fakeServer{alarms: []alarm.Alarm{newAlarm(1, alarm.SeverityMajor)}}
	stream := &scriptedStream{batches: [][]alarm.Notification{
		{{Kind: alarm.KindNewAlarm, Alarm: newAlarm(2, alarm.SeverityCritical)}},
	}}
	m := metrics.New(store)
	l := New(Config{
		Store:       store,
		Server:      server,
		Stream:      stream,
		Scheduler:   &counter{},
		Logger:      zerolog.Nop(),
		Metrics:     m,
		BaseBackoff: time.Millisecond,
	})

	ctx, cancel := context.WithCancel(context.Background())
	done := make(chan error, 1)
	go func() { done <- l.Run(ctx) }()

	require.Eventually(t, func() bool { return stream.runCount() == 2 }, 2*time.Second, 5*time.Millisecond)
	require.Eventually(t, func() bool { return server.callCount() == 2 }, 2*time.Second, 5*time.Millisecond)
	assert.Equal(t, 1.0, testutil.ToFloat64(m.ReconnectsTotal))

	cancel()
	select {
	case err := <-done:
		assert.NoError(t, err)
	case <-time.After(2 * time.Second):
		t.Fatal("listener did not stop")
	}
}

func TestConsume_StopsWhenStoreCloses(t *testing.T) {
	store := state.New()
	l := New(Config{Store: store, Scheduler: &counter{}, Logger: zerolog.Nop()})
	store.Close()

	ch := make(chan alarm.Notification, 1)
	ch <- alarm.Notification{Kind: alarm.KindNewAlarm, Alarm: newAlarm(1, alarm.SeverityMajor)}

	done := make(chan error, 1)
	go func() { done <- l.Consume(context.Background(), ch) }()
	select {
	case err := <-done:
		assert.NoError(t, err)
	case <-time.After(2 * time.Second):
		t.Fatal("consume did not stop")
	}
}

func TestCalculateBackoff_ReconnectSchedule(t *testing.T) {
	var got []time.Duration
	for failures := 0; failures <= 6; failures++ {
		got = append(got, calculateBackoff(failures, defaultBaseBackoff))
	}
	want := []time.Duration{
		time.Second, 2 * time.Second, 4 * time.Second, 8 * time.Second,
		16 * time.Second, maxBackoff, maxBackoff,
	}
	assert.Equal(t, want, got)
}

func TestCalculateBackoff_Bounds(t *testing.T) {
	assert.Equal(t, 3*time.Second, calculateBackoff(-2, 3*time.Second), "no failures waits the base")
	assert.Equal(t, maxBackoff, calculateBackoff(1, 20*time.Second))
	for failures := 0; failures <= 64; failures++ {
		require.LessOrEqual(t, calculateBackoff(failures, 1500*time.Millisecond), maxBackoff)
	}
}
