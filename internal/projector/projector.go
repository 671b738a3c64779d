// Package projector turns the alarm store into the set of rows the operator
// sees: filtered, capped to the display limit and diffed against the rows
// already shown so the view can patch in place when nothing was added or
// removed.
package projector

import (
	"fmt"
	"sort"
	"sync"
	"sync/atomic"
	"time"

	"github.com/rs/zerolog"

	"github.com/five82/klaxon/internal/alarm"
	"github.com/five82/klaxon/internal/metrics"
	"github.com/five82/klaxon/internal/state"
)

// Handle is a displayed row. Its identity is stable for as long as the alarm
// stays in the display set; the value is swapped in place on every update.
type Handle struct {
	id    int64
	value atomic.Pointer[alarm.Alarm]
}

func newHandle(a alarm.Alarm) *Handle {
	h := &Handle{id: a.ID}
	h.value.Store(&a)
	return h
}

// ID returns the alarm id.
func (h *Handle) ID() int64 { return h.id }

// Alarm returns the latest value.
func (h *Handle) Alarm() alarm.Alarm { return *h.value.Load() }

// Update is one delivery to the view. When Structural is set Rows holds the
// full display set ordered newest first; otherwise Rows holds only the rows
// whose values changed.
type Update struct {
	Structural bool
	Rows       []*Handle
	Shown      int
	Total      int
}

// View receives projection results.
type View interface {
	OnDisplaySetChanged(Update)
	OnAdvisory(text string)
}

// Matcher decides which alarms are displayed.
type Matcher interface {
	Matches(alarm.Alarm) bool
}

// SoundTrigger plays the sound for a severity.
type SoundTrigger interface {
	Trigger(alarm.Severity)
}

// Config wires a Projector.
type Config struct {
	Store  *state.Store
	Filter Matcher
	View   View
	Sound  SoundTrigger // optional
	// LocalSound reports whether new visible alarms should play a sound from
	// this view. Nil means never.
	LocalSound func() bool
	Limit      int // 0 shows everything
	Logger     zerolog.Logger
	Metrics    *metrics.Metrics // optional
}

// Projector computes display sets. Run is safe to call from any goroutine but
// is normally driven by a refresh.Scheduler.
type Projector struct {
	store      *state.Store
	view       View
	sound      SoundTrigger
	localSound func() bool
	log        zerolog.Logger
	metrics    *metrics.Metrics

	mu           sync.Mutex // serializes runs; guards the fields below
	filter       Matcher
	limit        int
	handles      map[int64]*Handle
	delivered    bool
	lastAdvisory string

	active atomic.Bool
	closed atomic.Bool
}

// New returns a projector for cfg.
func New(cfg Config) *Projector {
	p := &Projector{
		store:      cfg.Store,
		view:       cfg.View,
		sound:      cfg.Sound,
		localSound: cfg.LocalSound,
		log:        cfg.Logger,
		metrics:    cfg.Metrics,
		filter:     cfg.Filter,
		limit:      cfg.Limit,
		handles:    make(map[int64]*Handle),
	}
	p.active.Store(true)
	return p
}

// SetFilter replaces the matcher. Call Run afterwards to re-project.
func (p *Projector) SetFilter(m Matcher) {
	p.mu.Lock()
	p.filter = m
	p.mu.Unlock()
}

// SetLimit sets the display cap; 0 or less removes it.
func (p *Projector) SetLimit(n int) {
	if n < 0 {
		n = 0
	}
	p.mu.Lock()
	p.limit = n
	p.mu.Unlock()
}

// Limit returns the display cap.
func (p *Projector) Limit() int {
	p.mu.Lock()
	defer p.mu.Unlock()
	return p.limit
}

// SetActive records whether the view is the one the operator is looking at.
// Local sounds play only for the active view.
func (p *Projector) SetActive(active bool) { p.active.Store(active) }

// Close stops deliveries. A run in progress finishes without delivering.
func (p *Projector) Close() { p.closed.Store(true) }

// Refresh forces a full structural delivery on the next run.
func (p *Projector) Refresh() {
	p.mu.Lock()
	p.delivered = false
	p.mu.Unlock()
	p.Run()
}

// Run projects the store once.
func (p *Projector) Run() {
	if p.closed.Load() {
		return
	}
	p.mu.Lock()
	defer p.mu.Unlock()

	var (
		upd      *Update
		advisory string
		sounds   []alarm.Severity
	)
	start := time.Now()
	err := p.store.Project(func(tx *state.Txn) {
		filtered := make([]alarm.Alarm, 0, tx.Len())
		tx.Alarms(func(a alarm.Alarm) {
			if p.filter == nil || p.filter.Matches(a) {
				filtered = append(filtered, a)
			}
		})
		total := len(filtered)
		sortNewestFirst(filtered)
		if p.limit > 0 && total > p.limit {
			filtered = filtered[:p.limit]
			advisory = fmt.Sprintf("showing %d of %d alarms", p.limit, total)
		}

		keep := make(map[int64]struct{}, len(filtered))
		for _, a := range filtered {
			keep[a.ID] = struct{}{}
		}
		structural := !p.delivered
		for id := range p.handles {
			if _, ok := keep[id]; !ok {
				delete(p.handles, id)
				structural = true
			}
		}
		rows := make([]*Handle, 0, len(filtered))
		for _, a := range filtered {
			h, ok := p.handles[a.ID]
			if ok {
				v := a
				h.value.Store(&v)
			} else {
				h = newHandle(a)
				p.handles[a.ID] = h
				structural = true
			}
			rows = append(rows, h)
		}

		updated := tx.DrainUpdated()
		if structural {
			upd = &Update{Structural: true, Rows: rows, Shown: len(rows), Total: total}
		} else {
			var patch []*Handle
			for _, id := range updated {
				if h, ok := p.handles[id]; ok {
					patch = append(patch, h)
				}
			}
			if len(patch) > 0 {
				upd = &Update{Rows: patch, Shown: len(rows), Total: total}
			}
		}

		for _, a := range tx.DrainNewAlarms() {
			if _, ok := keep[a.ID]; ok {
				sounds = append(sounds, a.Severity)
			}
		}
	})
	if err != nil {
		p.log.Debug().Err(err).Msg("projection skipped")
		return
	}
	p.metrics.ObserveProjection(time.Since(start))
	if p.closed.Load() {
		return
	}

	if upd != nil {
		p.delivered = true
		p.view.OnDisplaySetChanged(*upd)
	}
	if advisory != p.lastAdvisory {
		p.lastAdvisory = advisory
		p.view.OnAdvisory(advisory)
	}
	if p.sound != nil && len(sounds) > 0 && p.localSoundOn() {
		for _, sev := range sounds {
			p.sound.Trigger(sev)
		}
	}
}

func (p *Projector) localSoundOn() bool {
	return p.localSound != nil && p.localSound() && p.active.Load()
}

// sortNewestFirst orders by last change descending, then id ascending.
func sortNewestFirst(alarms []alarm.Alarm) {
	sort.Slice(alarms, func(i, j int) bool {
		a, b := alarms[i], alarms[j]
		if !a.LastChangeTime.Equal(b.LastChangeTime) {
			return a.LastChangeTime.After(b.LastChangeTime)
		}
		return a.ID < b.ID
	})
}
