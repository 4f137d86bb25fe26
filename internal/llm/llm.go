// Package llm wraps the completion service behind a narrow interface so
// every pipeline component can be tested against a fake.
package llm

import (
	"context"
	"errors"
)

// ErrRateLimited marks a provider rate-limit condition. It is the only
// error class the retry layer is allowed to back off and retry on.
var ErrRateLimited = errors.New("llm: rate limited")

// Message is one turn of a conversation.
type Message struct {
	Role    string // "user" or "model"
	Content string
}

// Request describes a single completion call.
type Request struct {
	System      string
	Messages    []Message
	Temperature float32
	MaxTokens   int32
	Model       string // overrides the client default when non-empty
	Purpose     string // labels the call for the offline call log
}

// Client sends a completion request and returns the response text.
type Client interface {
	Complete(ctx context.Context, req Request) (string, error)
}

// IsRateLimited reports whether err is (or wraps) a rate-limit condition.
func IsRateLimited(err error) bool {
	return errors.Is(err, ErrRateLimited)
}

// Defaults fills unset request fields from configuration before
// delegating, so callers only specify what they need to override.
type Defaults struct {
	Inner       Client
	Temperature float32
	MaxTokens   int32
	Model       string
}

func (d *Defaults) Complete(ctx context.Context, req Request) (string, error) {
	if req.Temperature == 0 {
		req.Temperature = d.Temperature
	}
	if req.MaxTokens == 0 {
		req.MaxTokens = d.MaxTokens
	}
	if req.Model == "" {
		req.Model = d.Model
	}
	return d.Inner.Complete(ctx, req)
}
