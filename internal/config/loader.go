package config

import (
	"fmt"
	"os"
	"path/filepath"

	"github.com/joho/godotenv"
	"gopkg.in/yaml.v3"
)

// Load reads and parses a pipeline configuration from the given YAML file
// path, then applies defaults for anything unset.
func Load(path string) (*Config, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("reading config file: %w", err)
	}

	var cfg Config
	if err := yaml.Unmarshal(data, &cfg); err != nil {
		return nil, fmt.Errorf("parsing config YAML: %w", err)
	}

	applyDefaults(&cfg)
	return &cfg, nil
}

// LoadDefault searches for a config in standard locations and loads the
// first one found. Search order: ./taskpilot.yaml, ~/.taskpilot/config.yaml.
// A missing config is not an error: defaults apply.
func LoadDefault() (*Config, error) {
	candidates := []string{"taskpilot.yaml"}

	home, err := os.UserHomeDir()
	if err == nil {
		candidates = append(candidates, filepath.Join(home, ".taskpilot", "config.yaml"))
	}

	for _, path := range candidates {
		if _, err := os.Stat(path); err == nil {
			return Load(path)
		}
	}

	cfg := &Config{}
	applyDefaults(cfg)
	return cfg, nil
}

// LoadEnv loads API keys from .env if present. Missing files are ignored;
// the environment may already carry the keys.
func LoadEnv() {
	_ = godotenv.Load()
}

// defaultProtected are always-on protected patterns. User patterns extend,
// never replace, this list.
var defaultProtected = []string{
	".env",
	".env.*",
	"*.pem",
	"*.key",
	"secrets/*",
	"*credentials*",
}

// applyDefaults fills unset fields with working defaults.
func applyDefaults(cfg *Config) {
	p := &cfg.Pipeline

	if p.Repo.BaseBranch == "" {
		p.Repo.BaseBranch = "main"
	}
	if p.Build.Command == "" {
		p.Build.Command = "go build ./..."
	}
	if p.Build.TestCommand == "" {
		p.Build.TestCommand = "go test ./..."
	}
	if p.Build.MaxCompileAttempts <= 0 {
		p.Build.MaxCompileAttempts = 3
	}
	if p.Build.MaxTestAttempts <= 0 {
		p.Build.MaxTestAttempts = 2
	}
	if p.Build.Timeout == "" {
		p.Build.Timeout = "5m"
	}
	if p.LLM.Model == "" {
		p.LLM.Model = "gemini-2.5-pro"
	}
	if p.LLM.MaxTokens <= 0 {
		p.LLM.MaxTokens = 16384
	}
	if p.Review.MaxIterations <= 0 {
		p.Review.MaxIterations = 5
	}
	if p.CI.MaxRetries <= 0 {
		p.CI.MaxRetries = 3
	}
	if p.CI.PollInterval == "" {
		p.CI.PollInterval = "30s"
	}
	if p.CI.WaitWindow == "" {
		p.CI.WaitWindow = "30m"
	}
	if p.Merge.Strategy == "" {
		p.Merge.Strategy = "squash"
	}
	if p.Context.TopK <= 0 {
		p.Context.TopK = 8
	}

	seen := make(map[string]bool)
	for _, pat := range p.ProtectedPatterns {
		seen[pat] = true
	}
	for _, pat := range defaultProtected {
		if !seen[pat] {
			p.ProtectedPatterns = append(p.ProtectedPatterns, pat)
		}
	}
}
