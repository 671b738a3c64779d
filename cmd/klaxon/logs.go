package main

import (
	"fmt"
	"strings"

	"github.com/rs/zerolog"
	"github.com/spf13/cobra"

	"github.com/five82/klaxon/internal/config"
	"github.com/five82/klaxon/internal/logtail"
)

func newLogsCmd(flags *rootFlags) *cobra.Command {
	var (
		lines   int
		level   string
		noColor bool
	)
	cmd := &cobra.Command{
		Use:   "logs",
		Short: "Show the end of the console log",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, _ []string) error {
			cfg, err := config.Load(flags.configPath)
			if err != nil {
				return fmt.Errorf("load config: %w", err)
			}
			minLevel, err := zerolog.ParseLevel(strings.ToLower(strings.TrimSpace(level)))
			if err != nil {
				return fmt.Errorf("parse level %q: %w", level, err)
			}
			tail, err := logtail.Tail(cfg.LogPath(), lines)
			if err != nil {
				return err
			}
			if len(tail) == 0 {
				_, err := fmt.Fprintf(cmd.OutOrStdout(), "No log entries in %s\n", cfg.LogPath())
				return err
			}
			return logtail.Render(cmd.OutOrStdout(), tail, logtail.Options{MinLevel: minLevel, NoColor: noColor})
		},
	}
	cmd.Flags().IntVarP(&lines, "lines", "n", 200, "number of lines to read from the end of the log")
	cmd.Flags().StringVar(&level, "level", "debug", "hide entries below this level")
	cmd.Flags().BoolVar(&noColor, "no-color", false, "disable colored output")
	return cmd
}
