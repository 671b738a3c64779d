// Package prefs handles klaxon user preferences persistence.
// Preferences are stored in ~/.config/klaxon/prefs.toml.
package prefs

import (
	"errors"
	"fmt"
	"io"
	"os"
	"path/filepath"
	"strings"
	"sync"
	"time"

	toml "github.com/pelletier/go-toml/v2"

	"github.com/five82/klaxon/internal/alarm"
)

// Prefs holds user preferences for klaxon.
type Prefs struct {
	Theme      string `toml:"theme"`
	LocalSound bool   `toml:"local_sound"`
	ShowFilter bool   `toml:"show_filter"`
	// Sounds maps a sound tag (NORMAL..CRITICAL, REMINDER) to a server file
	// name. An empty name disables that sound.
	Sounds                  map[string]string `toml:"sounds"`
	Reminder                bool              `toml:"reminder"`
	ReminderIntervalSeconds int               `toml:"reminder_interval_seconds"`
	AckPresetsSeconds       []int64           `toml:"ack_presets_seconds"`
}

const (
	defaultPrefsPath        = "~/.config/klaxon/prefs.toml"
	defaultTheme            = "Nightfox"
	defaultReminderInterval = 300
)

var defaultSounds = map[string]string{
	"NORMAL":          "",
	"WARNING":         "warning.wav",
	"MINOR":           "minor.wav",
	"MAJOR":           "major.wav",
	"CRITICAL":        "critical.wav",
	alarm.ReminderTag: "reminder.wav",
}

var defaultAckPresets = []int64{3600, 4 * 3600, 24 * 3600, 48 * 3600}

// DefaultPath returns the default preferences file path.
func DefaultPath() string {
	return defaultPrefsPath
}

// Default returns the preferences used when no file exists.
func Default() Prefs {
	p := Prefs{
		Theme:                   defaultTheme,
		Sounds:                  make(map[string]string, len(defaultSounds)),
		ReminderIntervalSeconds: defaultReminderInterval,
		AckPresetsSeconds:       append([]int64(nil), defaultAckPresets...),
	}
	for tag, name := range defaultSounds {
		p.Sounds[tag] = name
	}
	return p
}

// Clone returns a deep copy.
func (p Prefs) Clone() Prefs {
	out := p
	out.Sounds = make(map[string]string, len(p.Sounds))
	for k, v := range p.Sounds {
		out.Sounds[k] = v
	}
	out.AckPresetsSeconds = append([]int64(nil), p.AckPresetsSeconds...)
	return out
}

// Sound returns the file configured for tag.
func (p Prefs) Sound(tag string) string {
	return strings.TrimSpace(p.Sounds[strings.ToUpper(tag)])
}

// ReminderInterval returns the reminder period.
func (p Prefs) ReminderInterval() time.Duration {
	if p.ReminderIntervalSeconds <= 0 {
		return defaultReminderInterval * time.Second
	}
	return time.Duration(p.ReminderIntervalSeconds) * time.Second
}

// AckPresets returns the timed sticky acknowledgement choices.
func (p Prefs) AckPresets() []time.Duration {
	out := make([]time.Duration, 0, len(p.AckPresetsSeconds))
	for _, s := range p.AckPresetsSeconds {
		if s > 0 {
			out = append(out, time.Duration(s)*time.Second)
		}
	}
	return out
}

func (p *Prefs) normalize() {
	if strings.TrimSpace(p.Theme) == "" {
		p.Theme = defaultTheme
	}
	sounds := make(map[string]string, len(defaultSounds))
	for tag, name := range defaultSounds {
		sounds[tag] = name
	}
	for tag, name := range p.Sounds {
		sounds[strings.ToUpper(strings.TrimSpace(tag))] = strings.TrimSpace(name)
	}
	p.Sounds = sounds
	if p.ReminderIntervalSeconds <= 0 {
		p.ReminderIntervalSeconds = defaultReminderInterval
	}
	if len(p.AckPresetsSeconds) == 0 {
		p.AckPresetsSeconds = append([]int64(nil), defaultAckPresets...)
	}
}

// Load reads preferences from the given path, falling back to defaults if missing.
func Load(path string) (Prefs, error) {
	resolved, err := resolvePath(path)
	if err != nil {
		return Default(), nil
	}

	file, err := os.Open(resolved)
	if err != nil {
		if errors.Is(err, os.ErrNotExist) {
			return Default(), nil
		}
		return Default(), nil // Graceful degradation
	}
	defer func() { _ = file.Close() }()

	bytes, err := io.ReadAll(file)
	if err != nil {
		return Default(), nil // Graceful degradation
	}

	var prefs Prefs
	if err := toml.Unmarshal(bytes, &prefs); err != nil {
		return Default(), nil // Graceful degradation
	}
	prefs.normalize()

	return prefs, nil
}

// Save writes preferences to the given path, creating directories as needed.
func Save(path string, p Prefs) error {
	resolved, err := resolvePath(path)
	if err != nil {
		return fmt.Errorf("resolve path: %w", err)
	}

	dir := filepath.Dir(resolved)
	if err := os.MkdirAll(dir, 0o755); err != nil {
		return fmt.Errorf("create prefs dir: %w", err)
	}

	bytes, err := toml.Marshal(p)
	if err != nil {
		return fmt.Errorf("marshal prefs: %w", err)
	}

	if err := os.WriteFile(resolved, bytes, 0o644); err != nil {
		return fmt.Errorf("write prefs: %w", err)
	}

	return nil
}

// Manager serializes runtime reads and updates of the preferences file.
type Manager struct {
	mu    sync.Mutex
	path  string
	prefs Prefs
}

// NewManager loads path (empty for the default) and returns a manager for it.
func NewManager(path string) *Manager {
	if strings.TrimSpace(path) == "" {
		path = defaultPrefsPath
	}
	p, _ := Load(path)
	return &Manager{path: path, prefs: p}
}

// NewManagerWith wraps already-loaded preferences. An empty path keeps
// updates in memory only.
func NewManagerWith(path string, p Prefs) *Manager {
	p = p.Clone()
	p.normalize()
	return &Manager{path: path, prefs: p}
}

// Get returns a copy of the current preferences.
func (m *Manager) Get() Prefs {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.prefs.Clone()
}

// Sound returns the file configured for tag.
func (m *Manager) Sound(tag string) string {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.prefs.Sound(tag)
}

// LocalSound reports whether sounds are played by the alarm view rather than
// globally.
func (m *Manager) LocalSound() bool {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.prefs.LocalSound
}

// Reminder returns whether reminders are enabled and their period.
func (m *Manager) Reminder() (bool, time.Duration) {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.prefs.Reminder, m.prefs.ReminderInterval()
}

// Update applies fn and persists the result.
func (m *Manager) Update(fn func(*Prefs)) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	next := m.prefs.Clone()
	fn(&next)
	next.normalize()
	m.prefs = next
	if m.path == "" {
		return nil
	}
	return Save(m.path, next)
}

// DisableSound clears the sound for tag and persists the change.
func (m *Manager) DisableSound(tag string) error {
	tag = strings.ToUpper(tag)
	return m.Update(func(p *Prefs) { p.Sounds[tag] = "" })
}

func resolvePath(path string) (string, error) {
	if strings.TrimSpace(path) == "" {
		return expandPath(defaultPrefsPath)
	}
	return expandPath(path)
}

// expandPath replaces a leading ~ with the home directory and makes path
// absolute.
func expandPath(path string) (string, error) {
	trimmed := strings.TrimSpace(path)
	if trimmed == "" {
		return "", fmt.Errorf("path is empty")
	}
	if strings.HasPrefix(trimmed, "~") {
		home, err := os.UserHomeDir()
		if err != nil {
			return "", fmt.Errorf("resolve home dir: %w", err)
		}
		trimmed = filepath.Join(home, strings.TrimPrefix(trimmed, "~"))
	}
	return filepath.Abs(trimmed)
}
