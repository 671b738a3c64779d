package app

import (
	"context"

	"golang.org/x/sync/errgroup"

	"github.com/five82/klaxon/internal/listener"
	"github.com/five82/klaxon/internal/logging"
	"github.com/five82/klaxon/internal/projector"
	"github.com/five82/klaxon/internal/refresh"
	"github.com/five82/klaxon/internal/sound"
	"github.com/five82/klaxon/internal/ui"
)

// Run boots the klaxon console until the operator quits or ctx is cancelled.
func Run(ctx context.Context, opts Options) error {
	core, err := Open(ctx, opts)
	if err != nil {
		return err
	}
	defer func() { _ = core.Close() }()

	ctx, cancel := context.WithCancel(ctx)
	defer cancel()

	renderer := ui.NewRenderer()
	core.Dispatcher.SetReporter(renderer)

	engine := sound.New(sound.Config{
		Dir:      core.Config.SoundDir(),
		Server:   core.Client,
		Settings: core.Prefs,
		Player:   sound.DetectPlayer(""),
		Observer: renderer,
		Logger:   logging.WithComponent(core.Logger, "sound"),
		Metrics:  core.Metrics,
	})
	detach := engine.Attach(core.Store)
	defer detach()

	proj := projector.New(projector.Config{
		Store:      core.Store,
		Filter:     core.Filter,
		View:       renderer,
		Sound:      engine,
		LocalSound: core.Prefs.LocalSound,
		Limit:      core.DisplayLimit(),
		Logger:     logging.WithComponent(core.Logger, "projector"),
		Metrics:    core.Metrics,
	})
	defer proj.Close()

	interval := refresh.DefaultInterval(core.Info.MinViewRefreshInterval())
	if core.Config.MinRefresh > 0 {
		interval = core.Config.MinRefresh
	}
	sched := refresh.New(interval, proj.Run)
	defer sched.Close()

	lst := listener.New(listener.Config{
		Store:     core.Store,
		Server:    core.Client,
		Stream:    core.Stream(),
		Filter:    core.Filter,
		Scheduler: sched,
		Reporter:  renderer,
		Logger:    logging.WithComponent(core.Logger, "listener"),
		Metrics:   core.Metrics,
	})

	g, gctx := errgroup.WithContext(ctx)
	g.Go(func() error { return lst.Run(gctx) })
	g.Go(func() error {
		engine.CheckSounds(gctx)
		return engine.Run(gctx)
	})
	if addr := core.Config.MetricsAddr; addr != "" {
		g.Go(func() error {
			if err := core.Metrics.Serve(gctx, addr); err != nil {
				core.Logger.Error().Err(err).Str("addr", addr).Msg("metrics endpoint stopped")
			}
			return nil
		})
	}
	g.Go(func() error {
		// Quitting the console ends the session.
		defer cancel()
		return ui.Run(gctx, ui.Options{
			Store:      core.Store,
			Names:      core.Objects,
			Filter:     core.Filter,
			Projection: proj,
			Scheduler:  sched,
			Commands:   core.Dispatcher,
			Resync:     lst,
			Prefs:      core.Prefs,
			StrictFlow: func() bool { return core.Info.StrictAlarmStatusFlow },
			TimedAck:   core.Info.TimedAlarmAckEnabled,
			Zoning:     core.Info.ZoningEnabled,
			Server:     core.Client.BaseURL().Host,
		}, renderer)
	})

	err = g.Wait()
	core.Logger.Info().Err(err).Msg("console stopped")
	return err
}
