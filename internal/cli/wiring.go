package cli

import (
	"context"
	"fmt"
	"os"
	"time"

	"github.com/spf13/cobra"

	"github.com/taskpilot/taskpilot/internal/apply"
	"github.com/taskpilot/taskpilot/internal/ci"
	"github.com/taskpilot/taskpilot/internal/config"
	"github.com/taskpilot/taskpilot/internal/db"
	"github.com/taskpilot/taskpilot/internal/gh"
	"github.com/taskpilot/taskpilot/internal/llm"
	"github.com/taskpilot/taskpilot/internal/orchestrator"
	"github.com/taskpilot/taskpilot/internal/plan"
	"github.com/taskpilot/taskpilot/internal/retrieval"
	"github.com/taskpilot/taskpilot/internal/review"
	"github.com/taskpilot/taskpilot/internal/runstore"
	"github.com/taskpilot/taskpilot/internal/validate"
	"github.com/taskpilot/taskpilot/internal/vcs"
)

func loadConfig(cmd *cobra.Command) (*config.Config, error) {
	config.LoadEnv()

	path, _ := cmd.Flags().GetString("config")
	var cfg *config.Config
	var err error
	if path != "" {
		cfg, err = config.Load(path)
	} else {
		cfg, err = config.LoadDefault()
	}
	if err != nil {
		return nil, err
	}
	if cfg.Pipeline.Repo.Dir == "" {
		if wd, werr := os.Getwd(); werr == nil {
			cfg.Pipeline.Repo.Dir = wd
		}
	}
	if err := cfg.Validate(); err != nil {
		return nil, fmt.Errorf("invalid config: %w", err)
	}
	return cfg, nil
}

func newLLMClient(ctx context.Context, cfg *config.Config, logCall func(purpose, model string, elapsed time.Duration, err error)) (llm.Client, error) {
	base, err := llm.NewGeminiClient(ctx, cfg.Pipeline.LLM.Model)
	if err != nil {
		return nil, err
	}
	var inner llm.Client = llm.NewRetry(base)
	if logCall != nil {
		inner = &llm.Logged{Inner: inner, Log: logCall}
	}
	return &llm.Defaults{
		Inner:       inner,
		Temperature: cfg.Pipeline.LLM.Temperature,
		MaxTokens:   cfg.Pipeline.LLM.MaxTokens,
		Model:       cfg.Pipeline.LLM.Model,
	}, nil
}

func newContextProvider(cfg *config.Config) retrieval.Provider {
	if cfg.Pipeline.Context.Command == "" {
		return &retrieval.Git{
			Runner: &vcs.ExecGit{},
			Dir:    cfg.Pipeline.Repo.Dir,
			Base:   cfg.Pipeline.Repo.BaseBranch,
		}
	}
	return &retrieval.Command{
		Cmd:     cfg.Pipeline.Context.Command,
		Dir:     cfg.Pipeline.Repo.Dir,
		Timeout: time.Minute,
	}
}

// buildOrchestrator wires every component from config. logf receives
// progress lines from all components.
func buildOrchestrator(ctx context.Context, cfg *config.Config, hooks orchestrator.Hooks, logf func(string, ...any)) (*orchestrator.Orchestrator, error) {
	// Event log is a convenience; a run proceeds without it.
	var ev *eventLog
	if path, err := db.DefaultDBPath(); err == nil {
		if d, err := db.Open(path); err == nil {
			if err := d.Migrate(); err == nil {
				ev = &eventLog{db: d}
			} else {
				d.Close()
			}
		}
	}

	var logCall func(string, string, time.Duration, error)
	if ev != nil {
		logCall = ev.logLLMCall
	}
	client, err := newLLMClient(ctx, cfg, logCall)
	if err != nil {
		return nil, err
	}

	pl := cfg.Pipeline
	repoDir := pl.Repo.Dir
	model := pl.LLM.Model

	driver := vcs.NewDriver(&vcs.ExecGit{}, repoDir, pl.Repo.BaseBranch)
	gateway := gh.NewClient(&gh.ExecRunner{})
	planner := plan.NewPlanner(client, repoDir, model)
	applier := apply.NewApplier(client, repoDir, model, pl.ProtectedPatterns, logf)
	runner := &validate.ExecRunner{Timeout: cfg.BuildTimeout()}
	validator := validate.NewValidator(runner, applier, driver, repoDir,
		pl.Build.Command, pl.Build.TestCommand,
		pl.Build.MaxCompileAttempts, pl.Build.MaxTestAttempts, logf)
	reviewer := review.NewReviewer(client, repoDir, model)

	deps := orchestrator.Deps{
		Planner:   planner,
		Applier:   applier,
		Validator: validator,
		Repo:      driver,
		Gateway:   gateway,
		Context:   newContextProvider(cfg),
		Review: func(ctx context.Context, task string, pub orchestrator.Publisher) *review.Outcome {
			loop := review.NewLoop(reviewer, applier, pub, driver.Diff,
				pl.Review.MaxIterations, pl.Review.AllowForceApprove, logf)
			return loop.Run(ctx, task)
		},
		CI: func(ctx context.Context, branch string, pub orchestrator.Publisher) *ci.Result {
			watcher := ci.NewWatcher(gateway, applier, pub, validator.EnsureBuilds,
				cfg.CIPollInterval(), cfg.CIWaitWindow(), pl.CI.MaxRetries, logf)
			if ev != nil {
				watcher.OnPoll = func(s ci.Status) { ev.logCIPoll(branch, s) }
			}
			return watcher.Watch(ctx, branch)
		},
	}

	// The artifact store is a convenience too.
	if store, err := runstore.DefaultStore(); err == nil {
		deps.Store = store
	} else {
		logf("run store unavailable: %v", err)
	}
	if ev != nil {
		deps.Events = ev
	}

	return orchestrator.New(pl, deps, hooks), nil
}
