package providers

import (
	"context"
	"log/slog"

	"golang.org/x/time/rate"
)

// RateLimited wraps a Provider with a shared token-bucket limiter so
// concurrent agent runs cannot starve each other: rate.Limiter.Wait hands
// out tokens in request order, which gives first-requested, first-served
// fairness across runs.
type RateLimited struct {
	inner   Provider
	limiter *rate.Limiter
}

// NewRateLimited wraps inner with an rpm requests-per-minute budget.
// rpm <= 0 returns inner unchanged.
func NewRateLimited(inner Provider, rpm int) Provider {
	if rpm <= 0 {
		return inner
	}
	// Burst of 1: strict spacing between requests.
	return &RateLimited{
		inner:   inner,
		limiter: rate.NewLimiter(rate.Limit(float64(rpm)/60.0), 1),
	}
}

func (p *RateLimited) Name() string { return p.inner.Name() }

func (p *RateLimited) Chat(ctx context.Context, req ChatRequest) (*ChatResponse, error) {
	if err := p.limiter.Wait(ctx); err != nil {
		return nil, &ClientError{Provider: p.Name(), Err: err}
	}
	return p.inner.Chat(ctx, req)
}

func (p *RateLimited) ChatStream(ctx context.Context, req ChatRequest, onChunk func(StreamChunk)) (*ChatResponse, error) {
	if err := p.limiter.Wait(ctx); err != nil {
		return nil, &ClientError{Provider: p.Name(), Err: err}
	}
	slog.Debug("rate limiter passed", "provider", p.Name())
	return p.inner.ChatStream(ctx, req, onChunk)
}
