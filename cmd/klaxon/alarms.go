package main

import (
	"encoding/json"
	"fmt"
	"io"
	"strings"
	"text/tabwriter"
	"time"

	"github.com/spf13/cobra"

	"github.com/five82/klaxon/internal/alarm"
	"github.com/five82/klaxon/internal/app"
)

func newAlarmsCmd(flags *rootFlags) *cobra.Command {
	var limit int
	cmd := &cobra.Command{
		Use:   "alarms [query]",
		Short: "List alarms matching a filter query",
		Example: `  klaxon alarms
  klaxon alarms 'Severity:Major,Critical State:Outstanding'
  klaxon alarms --limit 20 --json core-sw`,
		RunE: func(cmd *cobra.Command, args []string) error {
			core, err := app.Open(cmd.Context(), flags.oneShotOptions())
			if err != nil {
				return err
			}
			defer func() { _ = core.Close() }()

			if err := core.Sync(cmd.Context()); err != nil {
				return err
			}
			listing := core.List(strings.Join(args, " "), limit)
			if flags.jsonOutput {
				return writeListingJSON(cmd.OutOrStdout(), listing)
			}
			return writeListingTable(cmd.OutOrStdout(), listing, core.Objects)
		},
	}
	cmd.Flags().IntVar(&limit, "limit", 0, "maximum alarms to show (0 uses the display limit, -1 shows all)")
	return cmd
}

type nameResolver interface {
	Name(id int64) string
}

func writeListingJSON(w io.Writer, listing app.Listing) error {
	enc := json.NewEncoder(w)
	enc.SetIndent("", "  ")
	return enc.Encode(struct {
		Total  int           `json:"total"`
		Alarms []alarm.Alarm `json:"alarms"`
	}{Total: listing.Total, Alarms: listing.Alarms})
}

func writeListingTable(w io.Writer, listing app.Listing, names nameResolver) error {
	if len(listing.Alarms) == 0 {
		_, err := fmt.Fprintln(w, "No matching alarms.")
		return err
	}

	tw := tabwriter.NewWriter(w, 0, 0, 3, ' ', 0)
	fmt.Fprintln(tw, "ID\tTIME\tSEVERITY\tSTATE\tSOURCE\tMESSAGE")
	for _, a := range listing.Alarms {
		fmt.Fprintf(tw, "%d\t%s\t%s\t%s\t%s\t%s\n",
			a.ID,
			a.LastChangeTime.Local().Format(time.DateTime),
			a.Severity,
			a.State,
			names.Name(a.SourceObjectID),
			a.Message,
		)
	}
	if err := tw.Flush(); err != nil {
		return err
	}
	if shown := len(listing.Alarms); shown < listing.Total {
		_, err := fmt.Fprintf(w, "showing %d of %d alarms\n", shown, listing.Total)
		return err
	}
	return nil
}
