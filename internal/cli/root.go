// Package cli implements the taskpilot command tree.
package cli

import (
	"github.com/spf13/cobra"
)

var version = "dev"

func SetVersion(v string) {
	version = v
}

var rootCmd = &cobra.Command{
	Use:   "taskpilot",
	Short: "taskpilot — task description in, merged pull request out",
	Long: `taskpilot turns a natural-language task into a merged pull request: it
plans file changes, applies them with an LLM, validates locally, pushes a
branch, opens a PR, self-reviews, waits on CI with automated fix-retries,
and merges.

All state is stored in ~/.taskpilot/ (SQLite for events, JSON for run
artifacts). Repository access goes through the git and gh CLIs.`,
}

func Execute() error {
	return rootCmd.Execute()
}

func init() {
	rootCmd.PersistentFlags().String("config", "", "path to taskpilot.yaml (default: ./taskpilot.yaml, then ~/.taskpilot/config.yaml)")

	rootCmd.AddCommand(versionCmd)
	rootCmd.AddCommand(runCmd)
	rootCmd.AddCommand(planCmd)
	rootCmd.AddCommand(statusCmd)
	rootCmd.AddCommand(statsCmd)
	rootCmd.AddCommand(configCmd)
}
