package cli

import (
	"fmt"

	"github.com/spf13/cobra"

	"github.com/taskpilot/taskpilot/internal/db"
)

var statsCmd = &cobra.Command{
	Use:   "stats",
	Short: "Show aggregate counters across all recorded runs",
	RunE: func(cmd *cobra.Command, args []string) error {
		path, err := db.DefaultDBPath()
		if err != nil {
			return err
		}
		d, err := db.Open(path)
		if err != nil {
			return fmt.Errorf("open event database: %w", err)
		}
		defer d.Close()
		if err := d.Migrate(); err != nil {
			return err
		}

		s, err := d.CollectStats()
		if err != nil {
			return err
		}

		w := cmd.OutOrStdout()
		fmt.Fprintf(w, "runs:        %d (%d completed, %d failed)\n", s.Runs, s.Completed, s.Failed)
		fmt.Fprintf(w, "llm calls:   %d (%d errors)\n", s.LLMCalls, s.LLMErrors)
		fmt.Fprintf(w, "ci polls:    %d (%d failures observed)\n", s.CIPolls, s.CIFailures)
		return nil
	},
}
