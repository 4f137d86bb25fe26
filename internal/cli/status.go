package cli

import (
	"fmt"
	"io"
	"strings"

	"github.com/spf13/cobra"

	"github.com/taskpilot/taskpilot/internal/db"
	"github.com/taskpilot/taskpilot/internal/runstore"
)

var statusCmd = &cobra.Command{
	Use:   "status [run-id]",
	Short: "List recorded runs, or show one run in detail",
	Args:  cobra.MaximumNArgs(1),
	RunE: func(cmd *cobra.Command, args []string) error {
		store, err := runstore.DefaultStore()
		if err != nil {
			return fmt.Errorf("open run store: %w", err)
		}
		w := cmd.OutOrStdout()

		if len(args) == 1 {
			rec, err := store.Get(args[0])
			if err != nil {
				return err
			}
			fmt.Fprintf(w, "run:      %s\n", rec.ID)
			fmt.Fprintf(w, "task:     %s\n", rec.Task)
			fmt.Fprintf(w, "state:    %s\n", rec.State)
			if rec.Branch != "" {
				fmt.Fprintf(w, "branch:   %s\n", rec.Branch)
			}
			if rec.PRNumber != 0 {
				fmt.Fprintf(w, "pr:       #%d\n", rec.PRNumber)
			}
			fmt.Fprintf(w, "started:  %s\n", rec.StartedAt)
			if rec.FinishedAt != "" {
				fmt.Fprintf(w, "finished: %s\n", rec.FinishedAt)
			}
			printEvents(w, rec.ID)
			return nil
		}

		recs, err := store.List()
		if err != nil {
			return err
		}
		if len(recs) == 0 {
			fmt.Fprintln(w, "No runs recorded.")
			return nil
		}
		fmt.Fprintf(w, "%-18s %-22s %-8s %s\n", "RUN", "STATE", "PR", "TASK")
		for _, rec := range recs {
			pr := "-"
			if rec.PRNumber != 0 {
				pr = fmt.Sprintf("#%d", rec.PRNumber)
			}
			task := rec.Task
			if len(task) > 60 {
				task = task[:57] + "..."
			}
			fmt.Fprintf(w, "%-18s %-22s %-8s %s\n", rec.ID, rec.State, pr, strings.ReplaceAll(task, "\n", " "))
		}
		return nil
	},
}

// printEvents appends the recorded event history for a run. The event
// database is optional; when it is missing or unreadable the record alone
// is shown.
func printEvents(w io.Writer, runID string) {
	path, err := db.DefaultDBPath()
	if err != nil {
		return
	}
	d, err := db.Open(path)
	if err != nil {
		return
	}
	defer d.Close()
	if err := d.Migrate(); err != nil {
		return
	}

	events, err := d.Events(runID)
	if err != nil || len(events) == 0 {
		return
	}
	fmt.Fprintln(w, "events:")
	for _, e := range events {
		line := e.State
		if e.Detail != "" {
			line += "  " + e.Detail
		}
		fmt.Fprintf(w, "  %s  %s\n", e.Timestamp, line)
	}
}
