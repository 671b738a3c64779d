package main

import (
	"github.com/spf13/cobra"

	"github.com/five82/klaxon/internal/app"
	"github.com/five82/klaxon/internal/logging"
)

// oneShotLogLevel keeps one-shot commands quiet on stderr unless asked.
const oneShotLogLevel = "warn"

type rootFlags struct {
	configPath string
	prefsPath  string
	logLevel   string
	jsonOutput bool
}

// options returns app options for the console (logs to the configured file).
func (f *rootFlags) options() app.Options {
	return app.Options{
		ConfigPath: f.configPath,
		PrefsPath:  f.prefsPath,
		LogLevel:   f.logLevel,
	}
}

// oneShotOptions returns app options for commands that print to the terminal.
func (f *rootFlags) oneShotOptions() app.Options {
	opts := f.options()
	opts.LogOutput = logging.OutputConsole
	if f.jsonOutput {
		opts.LogOutput = logging.OutputStderr
	}
	if opts.LogLevel == "" {
		opts.LogLevel = oneShotLogLevel
	}
	return opts
}

func newRootCmd() *cobra.Command {
	flags := &rootFlags{}
	watch := newWatchCmd(flags)

	root := &cobra.Command{
		Use:   "klaxon",
		Short: "Alarm console for network monitoring servers",
		Long: `klaxon follows the alarm list of a monitoring server, plays sounds for
new alarms and lets operators acknowledge, resolve and terminate them.

Run without a subcommand to open the interactive console.`,
		SilenceUsage:  true,
		SilenceErrors: true,
		Args:          cobra.NoArgs,
		RunE:          watch.RunE,
	}

	pf := root.PersistentFlags()
	pf.StringVar(&flags.configPath, "config", "", "config file (default is ~/.config/klaxon/config.toml)")
	pf.StringVar(&flags.prefsPath, "prefs", "", "preferences file (default is ~/.config/klaxon/prefs.toml)")
	pf.StringVar(&flags.logLevel, "log-level", "", "log level override (debug, info, warn, error)")
	pf.BoolVar(&flags.jsonOutput, "json", false, "output results as JSON")

	root.AddCommand(
		watch,
		newAlarmsCmd(flags),
		newAckCmd(flags),
		newBulkCmd(flags, "resolve", "Resolve alarms"),
		newBulkCmd(flags, "terminate", "Terminate alarms"),
		newLogsCmd(flags),
	)
	return root
}

func newWatchCmd(flags *rootFlags) *cobra.Command {
	return &cobra.Command{
		Use:   "watch",
		Short: "Open the interactive alarm console",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, _ []string) error {
			return app.Run(cmd.Context(), flags.options())
		},
	}
}
