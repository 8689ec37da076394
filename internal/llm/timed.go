package llm

import (
	"context"
	"time"
)

// Timed reports the duration of every completion, failed or not.
type Timed struct {
	Provider
	observe func(provider string, d time.Duration)
}

// WithTiming wraps p so observe sees each call's latency.
func WithTiming(p Provider, observe func(provider string, d time.Duration)) *Timed {
	return &Timed{Provider: p, observe: observe}
}

func (t *Timed) Complete(ctx context.Context, req Request) (*Response, error) {
	start := time.Now()
	resp, err := t.Provider.Complete(ctx, req)
	t.observe(t.Provider.Name(), time.Since(start))
	return resp, err
}
