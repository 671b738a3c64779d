// Package refresh coalesces bursts of "the view may be stale" signals into
// at most one projection run per interval.
package refresh

import (
	"sync"
	"time"
)

const (
	// DefaultMinDelay is the shortest wait between a signal and a run.
	DefaultMinDelay = 100 * time.Millisecond
	// floorInterval is the lowest refresh interval regardless of server policy.
	floorInterval = 500 * time.Millisecond
)

// DefaultInterval returns the refresh interval for a server advertising
// serverMin as its minimum view refresh interval.
func DefaultInterval(serverMin time.Duration) time.Duration {
	if serverMin < floorInterval {
		return floorInterval
	}
	return serverMin
}

// Scheduler runs a function no more often than once per interval. Signals
// that arrive while a run is armed collapse into it; signals that arrive
// while a run is executing schedule exactly one more.
type Scheduler struct {
	run func()
	now func() time.Time

	mu       sync.Mutex
	interval time.Duration
	minDelay time.Duration
	lastRun  time.Time
	timer    *time.Timer
	running  bool
	rerun    bool
	pending  bool
	visible  bool
	closed   bool
}

// Option adjusts a Scheduler at construction.
type Option func(*Scheduler)

// WithMinDelay overrides DefaultMinDelay.
func WithMinDelay(d time.Duration) Option {
	return func(s *Scheduler) {
		if d > 0 {
			s.minDelay = d
		}
	}
}

// New returns a visible scheduler calling run at most once per interval.
func New(interval time.Duration, run func(), opts ...Option) *Scheduler {
	s := &Scheduler{
		run:      run,
		now:      time.Now,
		minDelay: DefaultMinDelay,
		visible:  true,
	}
	for _, opt := range opts {
		opt(s)
	}
	s.interval = clamp(interval, s.minDelay)
	return s
}

func clamp(interval, minDelay time.Duration) time.Duration {
	if interval < minDelay {
		return minDelay
	}
	return interval
}

// SetInterval changes the interval for future runs.
func (s *Scheduler) SetInterval(d time.Duration) {
	s.mu.Lock()
	s.interval = clamp(d, s.minDelay)
	s.mu.Unlock()
}

// Interval returns the current interval.
func (s *Scheduler) Interval() time.Duration {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.interval
}

// Execute requests a run.
func (s *Scheduler) Execute() {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.closed {
		return
	}
	if !s.visible {
		s.pending = true
		s.stopTimer()
		return
	}
	if s.running {
		s.rerun = true
		return
	}
	if s.timer != nil {
		return
	}
	s.arm()
}

// arm schedules fire; caller holds mu.
func (s *Scheduler) arm() {
	delay := s.interval - s.now().Sub(s.lastRun)
	if delay < s.minDelay {
		delay = s.minDelay
	}
	s.timer = time.AfterFunc(delay, s.fire)
}

// stopTimer cancels an armed run; caller holds mu.
func (s *Scheduler) stopTimer() {
	if s.timer != nil {
		s.timer.Stop()
		s.timer = nil
	}
}

func (s *Scheduler) fire() {
	s.mu.Lock()
	s.timer = nil
	if s.closed {
		s.mu.Unlock()
		return
	}
	if !s.visible {
		s.pending = true
		s.mu.Unlock()
		return
	}
	s.running = true
	s.mu.Unlock()

	s.run()

	s.mu.Lock()
	defer s.mu.Unlock()
	s.running = false
	s.lastRun = s.now()
	if s.closed {
		return
	}
	if s.rerun {
		s.rerun = false
		if s.visible {
			s.arm()
		} else {
			s.pending = true
		}
	}
}

// SetVisible pauses or resumes runs. Signals received while hidden are
// remembered and flushed when the view becomes visible again.
func (s *Scheduler) SetVisible(visible bool) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.closed || s.visible == visible {
		return
	}
	s.visible = visible
	if !visible {
		if s.timer != nil {
			s.stopTimer()
			s.pending = true
		}
		return
	}
	if s.pending {
		s.pending = false
		if s.running {
			s.rerun = true
		} else if s.timer == nil {
			s.arm()
		}
	}
}

// Visible reports whether runs are enabled.
func (s *Scheduler) Visible() bool {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.visible
}

// Close stops the scheduler. A run already executing completes; nothing
// runs afterwards.
func (s *Scheduler) Close() {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.closed = true
	s.pending = false
	s.rerun = false
	s.stopTimer()
}
