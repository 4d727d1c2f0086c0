package llm

import (
	"context"
	"fmt"

	"golang.org/x/time/rate"
)

// LimitedGenerator caps the rate of model calls. Waiting honors ctx.
type LimitedGenerator struct {
	next    Generator
	limiter *rate.Limiter
}

// NewLimitedGenerator allows perSecond calls with the given burst.
func NewLimitedGenerator(next Generator, perSecond float64, burst int) *LimitedGenerator {
	if burst < 1 {
		burst = 1
	}
	return &LimitedGenerator{next: next, limiter: rate.NewLimiter(rate.Limit(perSecond), burst)}
}

// Generate waits for a token and then calls the wrapped generator.
func (l *LimitedGenerator) Generate(ctx context.Context, prompt string) (string, error) {
	if err := l.limiter.Wait(ctx); err != nil {
		return "", fmt.Errorf("rate limit wait: %w", err)
	}
	return l.next.Generate(ctx, prompt)
}
