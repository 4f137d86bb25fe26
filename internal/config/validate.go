package config

import (
	"fmt"
	"time"
)

var validStrategies = map[string]bool{
	"squash": true,
	"merge":  true,
	"rebase": true,
}

// Validate checks a loaded configuration for values that would only fail
// mid-run. Durations are parsed here once so later stages can assume they
// are well-formed.
func (c *Config) Validate() error {
	p := &c.Pipeline

	if !validStrategies[p.Merge.Strategy] {
		return fmt.Errorf("invalid merge strategy %q: must be squash, merge, or rebase", p.Merge.Strategy)
	}
	if _, err := time.ParseDuration(p.Build.Timeout); err != nil {
		return fmt.Errorf("invalid build timeout %q: %w", p.Build.Timeout, err)
	}
	if _, err := time.ParseDuration(p.CI.PollInterval); err != nil {
		return fmt.Errorf("invalid CI poll interval %q: %w", p.CI.PollInterval, err)
	}
	if _, err := time.ParseDuration(p.CI.WaitWindow); err != nil {
		return fmt.Errorf("invalid CI wait window %q: %w", p.CI.WaitWindow, err)
	}
	if p.Review.MaxIterations > 50 {
		return fmt.Errorf("review max_iterations %d is unreasonably high", p.Review.MaxIterations)
	}
	return nil
}

// BuildTimeout returns the parsed build timeout.
func (c *Config) BuildTimeout() time.Duration {
	d, err := time.ParseDuration(c.Pipeline.Build.Timeout)
	if err != nil {
		return 5 * time.Minute
	}
	return d
}

// CIPollInterval returns the parsed CI poll interval.
func (c *Config) CIPollInterval() time.Duration {
	d, err := time.ParseDuration(c.Pipeline.CI.PollInterval)
	if err != nil {
		return 30 * time.Second
	}
	return d
}

// CIWaitWindow returns the parsed bound on the total CI wait.
func (c *Config) CIWaitWindow() time.Duration {
	d, err := time.ParseDuration(c.Pipeline.CI.WaitWindow)
	if err != nil {
		return 30 * time.Minute
	}
	return d
}
