package providers

import (
	"context"
	"log/slog"
	"time"
)

const (
	retryBaseDelay = 500 * time.Millisecond
	retryMaxDelay  = 15 * time.Second
)

// Retrying wraps a Provider with bounded exponential backoff on transient
// failures. Terminal errors (auth, bad request) pass through immediately.
type Retrying struct {
	inner      Provider
	maxRetries int
}

// NewRetrying wraps inner. maxRetries <= 0 returns inner unchanged.
func NewRetrying(inner Provider, maxRetries int) Provider {
	if maxRetries <= 0 {
		return inner
	}
	return &Retrying{inner: inner, maxRetries: maxRetries}
}

func (p *Retrying) Name() string { return p.inner.Name() }

func (p *Retrying) Chat(ctx context.Context, req ChatRequest) (*ChatResponse, error) {
	var lastErr error
	for attempt := 0; attempt <= p.maxRetries; attempt++ {
		if attempt > 0 {
			if err := sleepCtx(ctx, backoff(attempt)); err != nil {
				return nil, lastErr
			}
			slog.Warn("retrying model request", "provider", p.Name(), "attempt", attempt, "error", lastErr)
		}
		resp, err := p.inner.Chat(ctx, req)
		if err == nil {
			return resp, nil
		}
		if !IsTransient(err) {
			return nil, err
		}
		lastErr = err
	}
	return nil, lastErr
}

// ChatStream retries only failures that occur before any chunk reaches the
// caller; once onChunk has fired, a mid-stream error is surfaced as-is so
// the caller never sees duplicated output.
func (p *Retrying) ChatStream(ctx context.Context, req ChatRequest, onChunk func(StreamChunk)) (*ChatResponse, error) {
	var lastErr error
	for attempt := 0; attempt <= p.maxRetries; attempt++ {
		if attempt > 0 {
			if err := sleepCtx(ctx, backoff(attempt)); err != nil {
				return nil, lastErr
			}
		}

		delivered := false
		wrapped := onChunk
		if wrapped != nil {
			wrapped = func(c StreamChunk) {
				delivered = true
				onChunk(c)
			}
		}

		resp, err := p.inner.ChatStream(ctx, req, wrapped)
		if err == nil {
			return resp, nil
		}
		if delivered || !IsTransient(err) {
			return nil, err
		}
		lastErr = err
	}
	return nil, lastErr
}

func backoff(attempt int) time.Duration {
	d := retryBaseDelay << (attempt - 1)
	if d > retryMaxDelay {
		return retryMaxDelay
	}
	return d
}

func sleepCtx(ctx context.Context, d time.Duration) error {
	t := time.NewTimer(d)
	defer t.Stop()
	select {
	case <-ctx.Done():
		return ctx.Err()
	case <-t.C:
		return nil
	}
}
