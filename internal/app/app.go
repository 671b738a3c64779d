package app

import (
	"context"
	"fmt"
	"io"
	"strings"
	"time"

	"github.com/rs/zerolog"

	"github.com/five82/klaxon/internal/alarm"
	"github.com/five82/klaxon/internal/command"
	"github.com/five82/klaxon/internal/config"
	"github.com/five82/klaxon/internal/filter"
	"github.com/five82/klaxon/internal/logging"
	"github.com/five82/klaxon/internal/metrics"
	"github.com/five82/klaxon/internal/objects"
	"github.com/five82/klaxon/internal/prefs"
	"github.com/five82/klaxon/internal/projector"
	"github.com/five82/klaxon/internal/session"
	"github.com/five82/klaxon/internal/state"
)

const startupTimeout = 5 * time.Second

// Options configure the klaxon application.
type Options struct {
	ConfigPath string
	PrefsPath  string // empty uses default ~/.config/klaxon/prefs.toml
	// LogOutput overrides where logs go; see logging.Output*. Empty writes
	// to the configured log file.
	LogOutput string
	LogLevel  string // overrides the configured level when set
}

// Core is the wiring shared by the console and one-shot commands.
type Core struct {
	Config     config.Config
	Prefs      *prefs.Manager
	Logger     zerolog.Logger
	Client     *session.Client
	Info       session.ServerInfo
	Objects    *objects.Index
	Store      *state.Store
	Filter     *filter.Filter
	Metrics    *metrics.Metrics
	Dispatcher *command.Dispatcher

	logCloser io.Closer
}

// Open loads configuration, checks the server is reachable and builds the
// shared components. The alarm store starts empty.
func Open(ctx context.Context, opts Options) (*Core, error) {
	cfg, err := config.Load(opts.ConfigPath)
	if err != nil {
		return nil, fmt.Errorf("load config: %w", err)
	}

	logCfg := logging.Config{Level: cfg.LogLevel, Output: logging.OutputFile, File: cfg.LogPath()}
	if opts.LogOutput != "" {
		logCfg.Output = opts.LogOutput
	}
	if opts.LogLevel != "" {
		logCfg.Level = opts.LogLevel
	}
	logger, closer, err := logging.Init(logCfg)
	if err != nil {
		return nil, fmt.Errorf("init logging: %w", err)
	}

	c := &Core{
		Config:    cfg,
		Prefs:     prefs.NewManager(opts.PrefsPath),
		Logger:    logger,
		Objects:   objects.NewIndex(),
		Store:     state.New(),
		logCloser: closer,
	}
	c.Filter = filter.New(c.Objects)
	c.Metrics = metrics.New(c.Store)

	c.Client, err = session.NewClient(cfg.Server)
	if err != nil {
		_ = c.Close()
		return nil, fmt.Errorf("init session client: %w", err)
	}

	startCtx, cancel := context.WithTimeout(ctx, startupTimeout)
	defer cancel()
	c.Info, err = c.Client.ServerInfo(startCtx)
	if err != nil {
		_ = c.Close()
		return nil, fmt.Errorf("server %s unreachable: %w", c.Client.BaseURL(), err)
	}
	log := logging.WithComponent(logger, "app")
	log.Info().
		Str("server", c.Client.BaseURL().String()).
		Int("display_limit", c.Info.AlarmListDisplayLimit).
		Bool("strict_flow", c.Info.StrictAlarmStatusFlow).
		Msg("connected")

	if tree, err := c.Client.ObjectTree(startCtx); err != nil {
		log.Warn().Err(err).Msg("object tree unavailable; sources shown by id")
	} else {
		c.Objects.Load(tree.Objects, tree.Zones)
	}

	c.Dispatcher = command.NewDispatcher(c.Client, nil, logging.WithComponent(logger, "command"))
	c.Dispatcher.SetMetrics(c.Metrics)
	return c, nil
}

// Close releases the store and the log file.
func (c *Core) Close() error {
	if c.Store != nil {
		c.Store.Close()
	}
	if c.logCloser != nil {
		return c.logCloser.Close()
	}
	return nil
}

// DisplayLimit returns the configured display cap, falling back to the
// server's limit.
func (c *Core) DisplayLimit() int {
	if c.Config.DisplayLimit > 0 {
		return c.Config.DisplayLimit
	}
	return c.Info.AlarmListDisplayLimit
}

// Stream returns the notification transport selected in the config.
func (c *Core) Stream() session.Stream {
	log := logging.WithComponent(c.Logger, "stream")
	if strings.EqualFold(c.Config.Transport, config.TransportNATS) {
		return session.NewNATSStream(c.Config.NATSURL, c.Config.NATSSubjectPrefix, log)
	}
	return session.NewWebSocketStream(c.Client.BaseURL(), log)
}

// Sync loads the full alarm list into the store.
func (c *Core) Sync(ctx context.Context) error {
	alarms, err := c.Client.GetAlarms(ctx)
	if err != nil {
		c.Store.RecordSyncError(err)
		return fmt.Errorf("fetch alarms: %w", err)
	}
	if _, err := c.Store.ApplyFullSync(alarms); err != nil {
		return err
	}
	return nil
}

// Listing is one projected view of the store.
type Listing struct {
	Alarms []alarm.Alarm // newest first
	Total  int           // alarms matching the query before the cap
}

type listingView struct {
	rows  []*projector.Handle
	total int
}

func (v *listingView) OnDisplaySetChanged(u projector.Update) {
	if u.Structural {
		v.rows = u.Rows
		v.total = u.Total
	}
}

func (v *listingView) OnAdvisory(string) {}

// List projects the store through query with the given cap (0 for the
// display limit, negative for no cap), as the console would show it.
func (c *Core) List(query string, limit int) Listing {
	f := filter.New(c.Objects)
	f.SetQuery(query)
	if limit == 0 {
		limit = c.DisplayLimit()
	}
	if limit < 0 {
		limit = 0
	}

	view := &listingView{}
	p := projector.New(projector.Config{
		Store:  c.Store,
		Filter: f,
		View:   view,
		Limit:  limit,
		Logger: logging.WithComponent(c.Logger, "projector"),
	})
	p.Run()

	out := Listing{Alarms: make([]alarm.Alarm, len(view.rows)), Total: view.total}
	for i, h := range view.rows {
		out.Alarms[i] = h.Alarm()
	}
	return out
}
