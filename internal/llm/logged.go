package llm

import (
	"context"
	"time"
)

// Logged reports the outcome of every completion call to a sink, for the
// offline call log. The sink must not block; persistence failures are its
// own concern.
type Logged struct {
	Inner Client
	Log   func(purpose, model string, elapsed time.Duration, err error)
}

func (l *Logged) Complete(ctx context.Context, req Request) (string, error) {
	start := time.Now()
	resp, err := l.Inner.Complete(ctx, req)
	if l.Log != nil {
		l.Log(req.Purpose, req.Model, time.Since(start), err)
	}
	return resp, err
}
