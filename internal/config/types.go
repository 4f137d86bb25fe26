package config

// Config is the top-level configuration structure parsed from YAML.
type Config struct {
	Pipeline Pipeline `yaml:"pipeline"`
}

// Pipeline defines one run of the task-to-merged-PR pipeline. All limits
// are fixed at load time and immutable for the duration of a run.
type Pipeline struct {
	Repo              Repo     `yaml:"repo"`
	Build             Build    `yaml:"build"`
	LLM               LLM      `yaml:"llm"`
	Review            Review   `yaml:"review"`
	CI                CI       `yaml:"ci"`
	Merge             Merge    `yaml:"merge"`
	Context           Context  `yaml:"context"`
	ProtectedPatterns []string `yaml:"protected_patterns"`
}

// Repo identifies the repository and base branch the pipeline targets.
type Repo struct {
	Owner      string `yaml:"owner"`
	Name       string `yaml:"name"`
	BaseBranch string `yaml:"base_branch"`
	Dir        string `yaml:"dir"` // working tree; defaults to cwd
}

// Build configures local validation commands and their retry budgets.
type Build struct {
	Command            string `yaml:"command"`
	TestCommand        string `yaml:"test_command"`
	RunLocalTests      bool   `yaml:"run_local_tests"`
	MaxCompileAttempts int    `yaml:"max_compile_attempts"`
	MaxTestAttempts    int    `yaml:"max_test_attempts"`
	Timeout            string `yaml:"timeout"`
}

// LLM configures the completion service.
type LLM struct {
	Model       string  `yaml:"model"`
	Temperature float32 `yaml:"temperature"`
	MaxTokens   int32   `yaml:"max_tokens"`
}

// Review configures the self-review loop. AllowForceApprove gates the
// stuck/fatigue/ceiling shortcuts; with it off the loop runs every
// configured iteration before deferring to CI.
type Review struct {
	MaxIterations     int  `yaml:"max_iterations"`
	AllowForceApprove bool `yaml:"allow_force_approve"`
}

// CI configures the remote CI wait-and-fix loop.
type CI struct {
	RequirePass  bool   `yaml:"require_pass"`
	MaxRetries   int    `yaml:"max_retries"`
	PollInterval string `yaml:"poll_interval"`
	WaitWindow   string `yaml:"wait_window"`
}

// Merge configures merging behavior. KeepOursOnConflict opts in to the
// lossy automatic conflict resolution that discards upstream edits to
// conflicting paths.
type Merge struct {
	Auto               bool   `yaml:"auto"`
	Strategy           string `yaml:"strategy"`
	KeepOursOnConflict bool   `yaml:"keep_ours_on_conflict"`
}

// Context configures the optional retrieval provider. Command is executed
// with the task appended as the last argument; its stdout is passed to the
// planner as an opaque context string.
type Context struct {
	Command string `yaml:"command"`
	TopK    int    `yaml:"top_k"`
}
