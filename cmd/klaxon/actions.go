package main

import (
	"encoding/json"
	"fmt"
	"io"
	"strconv"
	"time"

	"github.com/spf13/cobra"

	"github.com/five82/klaxon/internal/app"
	"github.com/five82/klaxon/internal/command"
)

func newAckCmd(flags *rootFlags) *cobra.Command {
	var (
		sticky  bool
		timeout time.Duration
	)
	cmd := &cobra.Command{
		Use:   "ack ID...",
		Short: "Acknowledge alarms",
		Example: `  klaxon ack 1042 1043
  klaxon ack --sticky --timeout 2h 1042`,
		Args: cobra.MinimumNArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			ids, err := parseIDs(args)
			if err != nil {
				return err
			}
			if timeout < 0 {
				return fmt.Errorf("timeout must not be negative")
			}
			if timeout > 0 && !sticky {
				return fmt.Errorf("--timeout requires --sticky")
			}
			return dispatch(cmd, flags, func(core *app.Core) command.Report {
				return core.Dispatcher.Acknowledge(cmd.Context(), ids, sticky, timeout)
			})
		},
	}
	cmd.Flags().BoolVar(&sticky, "sticky", false, "keep the acknowledgement when the alarm repeats")
	cmd.Flags().DurationVar(&timeout, "timeout", 0, "expire a sticky acknowledgement after this long")
	return cmd
}

// newBulkCmd builds the resolve and terminate commands.
func newBulkCmd(flags *rootFlags, use, short string) *cobra.Command {
	return &cobra.Command{
		Use:   use + " ID...",
		Short: short,
		Args:  cobra.MinimumNArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			ids, err := parseIDs(args)
			if err != nil {
				return err
			}
			return dispatch(cmd, flags, func(core *app.Core) command.Report {
				if use == "terminate" {
					return core.Dispatcher.Terminate(cmd.Context(), ids)
				}
				return core.Dispatcher.Resolve(cmd.Context(), ids)
			})
		},
	}
}

func dispatch(cmd *cobra.Command, flags *rootFlags, do func(*app.Core) command.Report) error {
	core, err := app.Open(cmd.Context(), flags.oneShotOptions())
	if err != nil {
		return err
	}
	defer func() { _ = core.Close() }()

	report := do(core)
	if err := writeReport(cmd.OutOrStdout(), report, flags.jsonOutput); err != nil {
		return err
	}
	return report.Err()
}

// parseIDs converts alarm id arguments, rejecting duplicates.
func parseIDs(args []string) ([]int64, error) {
	ids := make([]int64, 0, len(args))
	seen := make(map[int64]struct{}, len(args))
	for _, arg := range args {
		id, err := strconv.ParseInt(arg, 10, 64)
		if err != nil || id <= 0 {
			return nil, fmt.Errorf("invalid alarm id %q", arg)
		}
		if _, dup := seen[id]; dup {
			continue
		}
		seen[id] = struct{}{}
		ids = append(ids, id)
	}
	return ids, nil
}

type reportJSON struct {
	Action       string            `json:"action"`
	RequestID    string            `json:"request_id"`
	Requested    []int64           `json:"requested"`
	Failures     []command.Failure `json:"failures,omitempty"`
	NotAttempted []int64           `json:"not_attempted,omitempty"`
	Error        string            `json:"error,omitempty"`
}

func writeReport(w io.Writer, r command.Report, asJSON bool) error {
	if !asJSON {
		_, err := fmt.Fprintln(w, r.Summary())
		return err
	}
	out := reportJSON{
		Action:       r.Action.String(),
		RequestID:    r.RequestID,
		Requested:    r.Requested,
		Failures:     r.Failures,
		NotAttempted: r.NotAttempted,
	}
	if r.Transport != nil {
		out.Error = r.Transport.Error()
	}
	enc := json.NewEncoder(w)
	enc.SetIndent("", "  ")
	return enc.Encode(out)
}
