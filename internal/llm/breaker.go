package llm

import (
	"context"
	"errors"

	"github.com/sony/gobreaker"
	"go.uber.org/zap"

	"github.com/hyperjump/kensho/internal/config"
	"github.com/hyperjump/kensho/pkg/utils"
)

// BreakerGenerator stops calling the model after repeated failures until the breaker half-opens.
type BreakerGenerator struct {
	next Generator
	cb   *gobreaker.CircuitBreaker
}

// NewBreakerGenerator wraps next. The breaker trips once at least 3 requests in an interval have
// failed at ReadyToTripRatio or more.
func NewBreakerGenerator(next Generator, cfg config.BreakerConfig, name string, logger *zap.Logger) *BreakerGenerator {
	logger = utils.OrNop(logger)
	st := gobreaker.Settings{
		Name:        "llm-" + name,
		MaxRequests: cfg.MaxRequests,
		Interval:    cfg.Interval,
		Timeout:     cfg.Timeout,
		ReadyToTrip: func(counts gobreaker.Counts) bool {
			failureRatio := float64(counts.TotalFailures) / float64(counts.Requests)
			return counts.Requests >= 3 && failureRatio >= cfg.ReadyToTripRatio
		},
		IsSuccessful: func(err error) bool {
			// A caller giving up is not a model failure.
			return err == nil || errors.Is(err, context.Canceled) || errors.Is(err, ErrEmptyPrompt)
		},
		OnStateChange: func(name string, from gobreaker.State, to gobreaker.State) {
			logger.Warn("Circuit breaker state changed",
				zap.String("breaker", name),
				zap.String("from", from.String()),
				zap.String("to", to.String()),
			)
		},
	}
	return &BreakerGenerator{next: next, cb: gobreaker.NewCircuitBreaker(st)}
}

// Generate runs the call through the breaker. An open breaker fails fast with ErrCircuitOpen.
func (b *BreakerGenerator) Generate(ctx context.Context, prompt string) (string, error) {
	out, err := b.cb.Execute(func() (interface{}, error) {
		return b.next.Generate(ctx, prompt)
	})
	if errors.Is(err, gobreaker.ErrOpenState) || errors.Is(err, gobreaker.ErrTooManyRequests) {
		return "", ErrCircuitOpen
	}
	if err != nil {
		return "", err
	}
	return out.(string), nil
}

// State returns the breaker state name.
func (b *BreakerGenerator) State() string {
	return b.cb.State().String()
}
