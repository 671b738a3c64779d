package state

import (
	"errors"
	"fmt"
	"sort"
	"sync"
	"time"

	"github.com/five82/klaxon/internal/alarm"
)

// ErrClosed is returned once the store has been torn down.
var ErrClosed = errors.New("alarm store closed")

// Transition is one alarm's value before and after a mutation. Old is nil for
// an insert and New is nil for a removal.
type Transition struct {
	Old *alarm.Alarm
	New *alarm.Alarm
}

// Change describes the effect of a single store mutation.
type Change struct {
	Kind        alarm.Kind // zero for a full sync
	FullSync    bool
	Transitions []Transition
	Outstanding int // outstanding alarms after the mutation
}

// Touches reports whether any transition matches pred before or after.
func (c Change) Touches(pred func(alarm.Alarm) bool) bool {
	for _, t := range c.Transitions {
		if t.Old != nil && pred(*t.Old) {
			return true
		}
		if t.New != nil && pred(*t.New) {
			return true
		}
	}
	return false
}

// Snapshot is a copy of the store suitable for rendering outside the lock.
type Snapshot struct {
	Alarms              []alarm.Alarm // ordered by id
	Outstanding         int
	LastSync            time.Time
	LastError           error
	ConsecutiveFailures int
}

// IsOffline returns true when resync has failed repeatedly.
func (s Snapshot) IsOffline() bool {
	return s.ConsecutiveFailures >= 2
}

// Store is the client-side copy of server alarm state. The alarm map, the
// updated-id set and the new-alarm list share one mutex.
type Store struct {
	mu          sync.Mutex
	alarms      map[int64]alarm.Alarm
	updated     map[int64]struct{}
	newAlarms   []alarm.Alarm
	outstanding int
	lastSync    time.Time
	lastError   error
	failures    int
	closed      bool

	// deliver serializes observer callbacks so they see changes in
	// mutation order without holding mu.
	deliver   sync.Mutex
	subMu     sync.Mutex
	subs      map[int]func(Change)
	nextSubID int
}

// New returns an empty store.
func New() *Store {
	return &Store{
		alarms:  make(map[int64]alarm.Alarm),
		updated: make(map[int64]struct{}),
		subs:    make(map[int]func(Change)),
	}
}

// ApplyFullSync replaces the whole store with alarms.
func (s *Store) ApplyFullSync(alarms []alarm.Alarm) (Change, error) {
	s.deliver.Lock()
	defer s.deliver.Unlock()

	s.mu.Lock()
	if s.closed {
		s.mu.Unlock()
		return Change{}, ErrClosed
	}
	next := make(map[int64]alarm.Alarm, len(alarms))
	outstanding := 0
	for _, a := range alarms {
		if prev, ok := next[a.ID]; ok && prev.IsOutstanding() {
			outstanding--
		}
		next[a.ID] = a
		if a.IsOutstanding() {
			outstanding++
		}
	}
	s.alarms = next
	s.outstanding = outstanding
	for id := range next {
		s.updated[id] = struct{}{}
	}
	s.lastSync = time.Now()
	s.lastError = nil
	s.failures = 0
	ch := Change{FullSync: true, Outstanding: outstanding}
	s.mu.Unlock()

	s.publish(ch)
	return ch, nil
}

// RecordSyncError keeps the last known alarms and records err.
func (s *Store) RecordSyncError(err error) {
	if err == nil {
		return
	}
	s.mu.Lock()
	defer s.mu.Unlock()
	s.lastError = err
	s.failures++
}

// Apply folds one notification into the store.
func (s *Store) Apply(n alarm.Notification) (Change, error) {
	s.deliver.Lock()
	defer s.deliver.Unlock()

	s.mu.Lock()
	if s.closed {
		s.mu.Unlock()
		return Change{}, ErrClosed
	}
	ch := Change{Kind: n.Kind}
	switch n.Kind {
	case alarm.KindNewAlarm, alarm.KindAlarmChanged:
		next := n.Alarm
		old, had := s.alarms[next.ID]
		s.alarms[next.ID] = next
		s.updated[next.ID] = struct{}{}
		if n.Kind == alarm.KindNewAlarm {
			s.newAlarms = append(s.newAlarms, next)
		}
		s.account(old, had, &next)
		ch.Transitions = []Transition{{Old: ptrIf(old, had), New: &next}}
	case alarm.KindAlarmTerminated, alarm.KindAlarmDeleted:
		if old, ok := s.remove(n.Alarm.ID); ok {
			ch.Transitions = []Transition{{Old: &old}}
		}
	case alarm.KindBulkResolved:
		for _, id := range n.Bulk.IDs {
			old, ok := s.alarms[id]
			if !ok {
				continue
			}
			next := old.Resolved(n.Bulk.UserName, n.Bulk.ChangeTime)
			s.alarms[id] = next
			s.updated[id] = struct{}{}
			s.account(old, true, &next)
			ch.Transitions = append(ch.Transitions, Transition{Old: &old, New: &next})
		}
	case alarm.KindBulkTerminated:
		for _, id := range n.Bulk.IDs {
			if old, ok := s.remove(id); ok {
				ch.Transitions = append(ch.Transitions, Transition{Old: &old})
			}
		}
	default:
		s.mu.Unlock()
		return Change{}, fmt.Errorf("apply notification: unknown kind %d", n.Kind)
	}
	ch.Outstanding = s.outstanding
	s.mu.Unlock()

	if len(ch.Transitions) > 0 {
		s.publish(ch)
	}
	return ch, nil
}

// remove deletes id; caller holds mu.
func (s *Store) remove(id int64) (alarm.Alarm, bool) {
	old, ok := s.alarms[id]
	if !ok {
		return alarm.Alarm{}, false
	}
	delete(s.alarms, id)
	delete(s.updated, id)
	s.account(old, true, nil)
	return old, true
}

// account adjusts the outstanding counter; caller holds mu.
func (s *Store) account(old alarm.Alarm, had bool, next *alarm.Alarm) {
	if had && old.IsOutstanding() {
		s.outstanding--
	}
	if next != nil && next.IsOutstanding() {
		s.outstanding++
	}
}

func ptrIf(a alarm.Alarm, ok bool) *alarm.Alarm {
	if !ok {
		return nil
	}
	return &a
}

// Txn is the locked view handed to Project callbacks. It must not escape fn.
type Txn struct {
	s *Store
}

// Alarms calls fn for every stored alarm in unspecified order.
func (t *Txn) Alarms(fn func(alarm.Alarm)) {
	for _, a := range t.s.alarms {
		fn(a)
	}
}

// Len returns the number of stored alarms.
func (t *Txn) Len() int {
	return len(t.s.alarms)
}

// DrainUpdated returns and clears the ids mutated since the last drain,
// sorted ascending.
func (t *Txn) DrainUpdated() []int64 {
	ids := make([]int64, 0, len(t.s.updated))
	for id := range t.s.updated {
		ids = append(ids, id)
	}
	sort.Slice(ids, func(i, j int) bool { return ids[i] < ids[j] })
	t.s.updated = make(map[int64]struct{})
	return ids
}

// DrainNewAlarms returns and clears the alarms received as new since the
// last drain, in arrival order.
func (t *Txn) DrainNewAlarms() []alarm.Alarm {
	out := t.s.newAlarms
	t.s.newAlarms = nil
	return out
}

// Project runs fn with the store lock held so it observes a consistent state.
func (s *Store) Project(fn func(*Txn)) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.closed {
		return ErrClosed
	}
	fn(&Txn{s: s})
	return nil
}

// Get returns the alarm with id.
func (s *Store) Get(id int64) (alarm.Alarm, bool) {
	s.mu.Lock()
	defer s.mu.Unlock()
	a, ok := s.alarms[id]
	return a, ok
}

// Len returns the number of stored alarms.
func (s *Store) Len() int {
	s.mu.Lock()
	defer s.mu.Unlock()
	return len(s.alarms)
}

// OutstandingCount returns the number of outstanding alarms.
func (s *Store) OutstandingCount() int {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.outstanding
}

// Snapshot returns a copy of the current state.
func (s *Store) Snapshot() Snapshot {
	s.mu.Lock()
	defer s.mu.Unlock()

	snap := Snapshot{
		Alarms:              make([]alarm.Alarm, 0, len(s.alarms)),
		Outstanding:         s.outstanding,
		LastSync:            s.lastSync,
		ConsecutiveFailures: s.failures,
	}
	for _, a := range s.alarms {
		snap.Alarms = append(snap.Alarms, a)
	}
	sort.Slice(snap.Alarms, func(i, j int) bool { return snap.Alarms[i].ID < snap.Alarms[j].ID })
	if s.lastError != nil {
		snap.LastError = fmt.Errorf("%w", s.lastError)
	}
	return snap
}

// Subscribe registers fn to receive every change after it is applied. The
// returned function removes the subscription.
func (s *Store) Subscribe(fn func(Change)) (unsubscribe func()) {
	s.subMu.Lock()
	defer s.subMu.Unlock()
	id := s.nextSubID
	s.nextSubID++
	s.subs[id] = fn
	return func() {
		s.subMu.Lock()
		delete(s.subs, id)
		s.subMu.Unlock()
	}
}

// publish is called with deliver held and mu released.
func (s *Store) publish(ch Change) {
	s.subMu.Lock()
	ids := make([]int, 0, len(s.subs))
	for id := range s.subs {
		ids = append(ids, id)
	}
	sort.Ints(ids)
	fns := make([]func(Change), 0, len(ids))
	for _, id := range ids {
		fns = append(fns, s.subs[id])
	}
	s.subMu.Unlock()

	for _, fn := range fns {
		fn(ch)
	}
}

// Close tears the store down and drops every subscription.
func (s *Store) Close() {
	s.mu.Lock()
	s.closed = true
	s.mu.Unlock()

	s.subMu.Lock()
	s.subs = make(map[int]func(Change))
	s.subMu.Unlock()
}
