package cli

import (
	"bufio"
	"fmt"
	"io"
	"os"
	"strings"
	"time"

	"github.com/spf13/cobra"

	"github.com/taskpilot/taskpilot/internal/orchestrator"
	"github.com/taskpilot/taskpilot/internal/plan"
)

var runCmd = &cobra.Command{
	Use:   "run <task description>",
	Short: "Run the full pipeline: plan, apply, validate, PR, review, CI, merge",
	Args:  cobra.MinimumNArgs(1),
	RunE: func(cmd *cobra.Command, args []string) error {
		task := strings.Join(args, " ")
		cfg, err := loadConfig(cmd)
		if err != nil {
			return err
		}

		yes, _ := cmd.Flags().GetBool("yes")
		out := cmd.OutOrStdout()

		hooks := orchestrator.Hooks{
			OnProgress: func(text string) {
				fmt.Fprintf(out, "  %s\n", text)
			},
			OnStateChange: func(s orchestrator.State) {
				fmt.Fprintf(out, "=> %s\n", s)
			},
			ConfirmPlan: func(p *plan.ExecutionPlan) bool {
				printPlan(out, p)
				if yes {
					return true
				}
				return promptYesNo(out, "Apply this plan?")
			},
		}

		logf := func(format string, a ...any) {
			fmt.Fprintf(out, "  %s\n", fmt.Sprintf(format, a...))
		}
		orch, err := buildOrchestrator(cmd.Context(), cfg, hooks, logf)
		if err != nil {
			return err
		}

		report := orch.Run(cmd.Context(), task)
		printReport(out, report)
		if !report.Success {
			os.Exit(1)
		}
		return nil
	},
}

func init() {
	runCmd.Flags().BoolP("yes", "y", false, "apply the plan without asking")
}

func printPlan(out io.Writer, p *plan.ExecutionPlan) {
	fmt.Fprintf(out, "\nPlan: %s\n", p.Summary)
	if p.Degraded {
		fmt.Fprintln(out, "  (structured planning failed; this is a free-form fallback)")
	}
	for _, ch := range p.Changes {
		path := ch.Path
		if path == "" {
			path = "(unresolved)"
		}
		fmt.Fprintf(out, "  %-6s %-40s %s\n", ch.Action, path, ch.Description)
	}
	fmt.Fprintln(out)
}

func printReport(out io.Writer, r *orchestrator.Report) {
	fmt.Fprintln(out)
	if r.Success {
		fmt.Fprintf(out, "OK  %s\n", r.Summary)
	} else {
		fmt.Fprintf(out, "FAILED  %s\n", r.Summary)
	}
	if r.Branch != "" {
		fmt.Fprintf(out, "  branch: %s\n", r.Branch)
	}
	if r.PRURL != "" {
		fmt.Fprintf(out, "  pr:     %s\n", r.PRURL)
	}
	for _, c := range r.ChangedFiles {
		fmt.Fprintf(out, "  %-6s %s (+%d/-%d)\n", c.Action, c.Path, c.Added, c.Removed)
	}
	fmt.Fprintf(out, "  review iterations: %d, ci fix runs: %d, took %s\n",
		r.ReviewIterations, r.CIRuns, r.Duration.Round(time.Second))
	for _, e := range r.Errors {
		fmt.Fprintf(out, "  error: %s\n", e)
	}
}

func promptYesNo(out io.Writer, question string) bool {
	fmt.Fprintf(out, "%s [y/N]: ", question)
	scanner := bufio.NewScanner(os.Stdin)
	if !scanner.Scan() {
		return false
	}
	answer := strings.ToLower(strings.TrimSpace(scanner.Text()))
	return answer == "y" || answer == "yes"
}
