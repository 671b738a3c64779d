package sound

import (
	"context"
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"strings"
	"sync"
	"time"

	"github.com/rs/zerolog"
	"golang.org/x/sync/errgroup"

	"github.com/five82/klaxon/internal/alarm"
	"github.com/five82/klaxon/internal/metrics"
	"github.com/five82/klaxon/internal/state"
)

const (
	// QueueSize bounds pending sounds; further triggers are dropped.
	QueueSize = 4
	// DefaultPollInterval is how often the reminder condition is checked.
	DefaultPollInterval = 10 * time.Second
)

// Downloader fetches sound files from the server.
type Downloader interface {
	DownloadFile(ctx context.Context, name string) ([]byte, error)
}

// Settings is the preference surface the engine reads and updates.
// *prefs.Manager implements it.
type Settings interface {
	Sound(tag string) string
	LocalSound() bool
	Reminder() (enabled bool, interval time.Duration)
	DisableSound(tag string) error
}

// Observer is told about sounds, reminders and asset failures.
type Observer interface {
	OnSoundTrigger(tag string)
	OnReminderDue()
	OnError(msg string)
}

// Config wires an Engine.
type Config struct {
	Dir          string // sound cache directory
	Server       Downloader
	Settings     Settings
	Player       Player
	Observer     Observer // optional
	Logger       zerolog.Logger
	Metrics      *metrics.Metrics // optional
	PollInterval time.Duration    // reminder check cadence
	Now          func() time.Time
}

// Engine plays alarm sounds and outstanding-alarm reminders off the UI path.
type Engine struct {
	cfg   Config
	queue chan string
	log   zerolog.Logger

	cacheMu  sync.Mutex
	failed   map[string]struct{} // file names whose download failed
	notified bool

	mu           sync.Mutex
	outstanding  int
	lastReminder time.Time
	observer     Observer
}

// New returns an engine. Call Run to start playing.
func New(cfg Config) *Engine {
	if cfg.PollInterval <= 0 {
		cfg.PollInterval = DefaultPollInterval
	}
	if cfg.Now == nil {
		cfg.Now = time.Now
	}
	if cfg.Player == nil {
		cfg.Player = NopPlayer{}
	}
	return &Engine{
		cfg:          cfg,
		queue:        make(chan string, QueueSize),
		log:          cfg.Logger,
		failed:       make(map[string]struct{}),
		lastReminder: cfg.Now(),
		observer:     cfg.Observer,
	}
}

// SetObserver replaces the observer.
func (e *Engine) SetObserver(o Observer) {
	e.mu.Lock()
	e.observer = o
	e.mu.Unlock()
}

func (e *Engine) obs() Observer {
	e.mu.Lock()
	defer e.mu.Unlock()
	return e.observer
}

// Trigger queues the sound for sev.
func (e *Engine) Trigger(sev alarm.Severity) {
	e.Enqueue(sev.Tag())
}

// Enqueue offers tag to the play queue without blocking. It reports whether
// the sound was queued.
func (e *Engine) Enqueue(tag string) bool {
	select {
	case e.queue <- tag:
		return true
	default:
		e.cfg.Metrics.ObserveSoundDropped()
		e.log.Debug().Str("tag", tag).Msg("sound queue full, dropping")
		return false
	}
}

// Attach subscribes the engine to store changes. The returned function
// detaches it.
func (e *Engine) Attach(store *state.Store) (detach func()) {
	e.mu.Lock()
	e.outstanding = store.OutstandingCount()
	e.mu.Unlock()
	return store.Subscribe(e.HandleChange)
}

// HandleChange tracks the outstanding count and, when sounds are global,
// queues the sound of every new or changed outstanding alarm.
func (e *Engine) HandleChange(ch state.Change) {
	e.mu.Lock()
	if e.outstanding == 0 && ch.Outstanding > 0 {
		e.lastReminder = e.cfg.Now()
	}
	e.outstanding = ch.Outstanding
	e.mu.Unlock()

	if ch.FullSync || e.cfg.Settings.LocalSound() {
		return
	}
	if ch.Kind != alarm.KindNewAlarm && ch.Kind != alarm.KindAlarmChanged {
		return
	}
	for _, t := range ch.Transitions {
		if t.New != nil && t.New.IsOutstanding() {
			e.Trigger(t.New.Severity)
		}
	}
}

// Run plays queued sounds and checks the reminder until ctx is cancelled.
func (e *Engine) Run(ctx context.Context) error {
	g, ctx := errgroup.WithContext(ctx)
	g.Go(func() error { return e.playLoop(ctx) })
	g.Go(func() error { return e.reminderLoop(ctx) })
	return g.Wait()
}

func (e *Engine) playLoop(ctx context.Context) error {
	for {
		select {
		case <-ctx.Done():
			return nil
		case tag := <-e.queue:
			e.play(ctx, tag)
		}
	}
}

func (e *Engine) play(ctx context.Context, tag string) {
	path := e.resolve(ctx, tag)
	if path == "" {
		return
	}
	if o := e.obs(); o != nil {
		o.OnSoundTrigger(tag)
	}
	if err := e.cfg.Player.Play(ctx, path); err != nil && ctx.Err() == nil {
		e.log.Warn().Err(err).Str("tag", tag).Str("path", path).Msg("sound playback failed")
		return
	}
	e.cfg.Metrics.ObserveSoundPlayed(tag)
}

func (e *Engine) reminderLoop(ctx context.Context) error {
	ticker := time.NewTicker(e.cfg.PollInterval)
	defer ticker.Stop()
	for {
		select {
		case <-ctx.Done():
			return nil
		case <-ticker.C:
			e.CheckReminder()
		}
	}
}

// CheckReminder queues the reminder sound when alarms are outstanding,
// reminders are enabled and the interval has passed since the last one.
func (e *Engine) CheckReminder() bool {
	enabled, interval := e.cfg.Settings.Reminder()
	if !enabled {
		return false
	}
	now := e.cfg.Now()
	e.mu.Lock()
	if e.outstanding == 0 || now.Sub(e.lastReminder) < interval {
		e.mu.Unlock()
		return false
	}
	e.lastReminder = now
	o := e.observer
	e.mu.Unlock()

	if o != nil {
		o.OnReminderDue()
	}
	e.Enqueue(alarm.ReminderTag)
	return true
}

// CheckSounds makes sure every configured sound is cached locally.
func (e *Engine) CheckSounds(ctx context.Context) {
	for _, tag := range alarm.SoundTags() {
		if ctx.Err() != nil {
			return
		}
		e.resolve(ctx, tag)
	}
}

// resolve returns the local path for tag's sound, downloading it on a miss.
// It returns "" when the tag has no usable sound.
func (e *Engine) resolve(ctx context.Context, tag string) string {
	name := sanitize(e.cfg.Settings.Sound(tag))
	if name == "" {
		return ""
	}
	path := filepath.Join(e.cfg.Dir, name)

	e.cacheMu.Lock()
	defer e.cacheMu.Unlock()

	if _, err := os.Stat(path); err == nil {
		return path
	}
	if _, bad := e.failed[name]; bad {
		return ""
	}
	if err := e.download(ctx, name, path); err != nil {
		if ctx.Err() != nil {
			return ""
		}
		e.failed[name] = struct{}{}
		e.log.Error().Err(err).Str("tag", tag).Str("file", name).Msg("sound download failed, disabling")
		if derr := e.cfg.Settings.DisableSound(tag); derr != nil {
			e.log.Warn().Err(derr).Str("tag", tag).Msg("persist disabled sound")
		}
		if !e.notified {
			e.notified = true
			if o := e.obs(); o != nil {
				o.OnError(fmt.Sprintf("Cannot download sound file %q; the %s sound has been disabled", name, strings.ToLower(tag)))
			}
		}
		return ""
	}
	return path
}

// download writes the server file to path through a temp file so readers
// never see a partial sound.
func (e *Engine) download(ctx context.Context, name, path string) error {
	if e.cfg.Server == nil {
		return errors.New("no server to download from")
	}
	data, err := e.cfg.Server.DownloadFile(ctx, name)
	if err != nil {
		return err
	}
	if len(data) == 0 {
		return fmt.Errorf("download %s: empty file", name)
	}
	if err := os.MkdirAll(e.cfg.Dir, 0o755); err != nil {
		return fmt.Errorf("create sound dir: %w", err)
	}
	tmp, err := os.CreateTemp(e.cfg.Dir, "."+name+".*.tmp")
	if err != nil {
		return fmt.Errorf("create temp file: %w", err)
	}
	tmpName := tmp.Name()
	if _, err := tmp.Write(data); err != nil {
		_ = tmp.Close()
		_ = os.Remove(tmpName)
		return fmt.Errorf("write %s: %w", name, err)
	}
	if err := tmp.Close(); err != nil {
		_ = os.Remove(tmpName)
		return fmt.Errorf("close %s: %w", name, err)
	}
	if err := os.Rename(tmpName, path); err != nil {
		_ = os.Remove(tmpName)
		return fmt.Errorf("install %s: %w", name, err)
	}
	e.log.Info().Str("file", name).Int("bytes", len(data)).Msg("sound cached")
	return nil
}

// sanitize keeps only the base name so a server-provided name cannot escape
// the cache directory.
func sanitize(name string) string {
	name = strings.TrimSpace(name)
	if name == "" {
		return ""
	}
	base := filepath.Base(filepath.Clean("/" + name))
	if base == "/" || base == "." || base == ".." {
		return ""
	}
	return base
}
