package config

import (
	"errors"
	"fmt"
	"io"
	"os"
	"path/filepath"
	"strings"
	"time"

	toml "github.com/pelletier/go-toml/v2"
)

// Transport names accepted for the notification stream.
const (
	TransportWebSocket = "websocket"
	TransportNATS      = "nats"
)

// Config holds the console's connection and storage settings.
type Config struct {
	Server            string
	Transport         string
	NATSURL           string
	NATSSubjectPrefix string
	StateDir          string
	LogFile           string
	LogLevel          string
	DisplayLimit      int           // 0 uses the server's limit
	MinRefresh        time.Duration // 0 uses the server's floor
	MetricsAddr       string        // empty disables /metrics
}

const (
	defaultConfigPath  = "~/.config/klaxon/config.toml"
	defaultStateDir    = "~/.local/share/klaxon"
	defaultServer      = "127.0.0.1:8080"
	defaultNATSURL     = "nats://127.0.0.1:4222"
	defaultNATSPrefix  = "klaxon"
	defaultLogLevel    = "info"
	defaultLogFileName = "klaxon.log"
)

// DefaultPath returns the default config file location.
func DefaultPath() string {
	return defaultConfigPath
}

// Default returns the settings used when no config file exists.
func Default() Config {
	return Config{
		Server:            defaultServer,
		Transport:         TransportWebSocket,
		NATSURL:           defaultNATSURL,
		NATSSubjectPrefix: defaultNATSPrefix,
		StateDir:          mustExpand(defaultStateDir),
		LogLevel:          defaultLogLevel,
	}
}

// Load locates and parses the config, falling back to defaults when missing.
func Load(path string) (Config, error) {
	resolved, err := resolvePath(path)
	if err != nil {
		return Config{}, err
	}

	cfg := Default()

	file, err := os.Open(resolved)
	if err != nil {
		if errors.Is(err, os.ErrNotExist) {
			return cfg, nil
		}
		return Config{}, fmt.Errorf("open config: %w", err)
	}
	defer file.Close()

	bytes, err := io.ReadAll(file)
	if err != nil {
		return Config{}, fmt.Errorf("read config: %w", err)
	}

	var raw struct {
		Server            string `toml:"server"`
		Transport         string `toml:"transport"`
		NATSURL           string `toml:"nats_url"`
		NATSSubjectPrefix string `toml:"nats_subject_prefix"`
		StateDir          string `toml:"state_dir"`
		LogFile           string `toml:"log_file"`
		LogLevel          string `toml:"log_level"`
		DisplayLimit      int    `toml:"display_limit"`
		MinRefreshMS      int    `toml:"min_refresh_ms"`
		MetricsAddr       string `toml:"metrics_addr"`
	}
	if err := toml.Unmarshal(bytes, &raw); err != nil {
		return Config{}, fmt.Errorf("parse config: %w", err)
	}

	if v := strings.TrimSpace(raw.Server); v != "" {
		cfg.Server = v
	}
	switch t := strings.ToLower(strings.TrimSpace(raw.Transport)); t {
	case "":
	case TransportWebSocket, TransportNATS:
		cfg.Transport = t
	default:
		return Config{}, fmt.Errorf("parse config: unknown transport %q", raw.Transport)
	}
	if v := strings.TrimSpace(raw.NATSURL); v != "" {
		cfg.NATSURL = v
	}
	if v := strings.TrimSpace(raw.NATSSubjectPrefix); v != "" {
		cfg.NATSSubjectPrefix = v
	}
	if v := strings.TrimSpace(raw.StateDir); v != "" {
		cfg.StateDir = mustExpand(v)
	}
	if v := strings.TrimSpace(raw.LogFile); v != "" {
		cfg.LogFile = mustExpand(v)
	}
	if v := strings.TrimSpace(raw.LogLevel); v != "" {
		cfg.LogLevel = strings.ToLower(v)
	}
	if raw.DisplayLimit > 0 {
		cfg.DisplayLimit = raw.DisplayLimit
	}
	if raw.MinRefreshMS > 0 {
		cfg.MinRefresh = time.Duration(raw.MinRefreshMS) * time.Millisecond
	}
	cfg.MetricsAddr = strings.TrimSpace(raw.MetricsAddr)

	return cfg, nil
}

// SoundDir returns the directory holding cached sound files.
func (c Config) SoundDir() string {
	return filepath.Join(c.stateDir(), "sounds")
}

// LogPath returns the console log file.
func (c Config) LogPath() string {
	if strings.TrimSpace(c.LogFile) != "" {
		return c.LogFile
	}
	return filepath.Join(c.stateDir(), defaultLogFileName)
}

func (c Config) stateDir() string {
	if strings.TrimSpace(c.StateDir) == "" {
		return mustExpand(defaultStateDir)
	}
	return c.StateDir
}

func resolvePath(path string) (string, error) {
	if strings.TrimSpace(path) == "" {
		return expandPath(defaultConfigPath)
	}
	return expandPath(path)
}

func mustExpand(path string) string {
	expanded, err := expandPath(path)
	if err != nil {
		return path
	}
	return expanded
}

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
