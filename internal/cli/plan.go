package cli

import (
	"strings"

	"github.com/spf13/cobra"

	"github.com/taskpilot/taskpilot/internal/plan"
	"github.com/taskpilot/taskpilot/internal/vcs"
)

var planCmd = &cobra.Command{
	Use:   "plan <task description>",
	Short: "Produce and print an execution plan without applying anything",
	Args:  cobra.MinimumNArgs(1),
	RunE: func(cmd *cobra.Command, args []string) error {
		task := strings.Join(args, " ")
		cfg, err := loadConfig(cmd)
		if err != nil {
			return err
		}
		client, err := newLLMClient(cmd.Context(), cfg, nil)
		if err != nil {
			return err
		}

		projectContext := ""
		if pc, err := newContextProvider(cfg).Search(cmd.Context(), task, cfg.Pipeline.Context.TopK); err == nil {
			projectContext = pc
		}

		driver := vcs.NewDriver(&vcs.ExecGit{}, cfg.Pipeline.Repo.Dir, cfg.Pipeline.Repo.BaseBranch)
		files, _ := driver.ListFiles()

		planner := plan.NewPlanner(client, cfg.Pipeline.Repo.Dir, cfg.Pipeline.LLM.Model)
		p := planner.Build(cmd.Context(), task, projectContext, files)
		printPlan(cmd.OutOrStdout(), p)
		return nil
	},
}
