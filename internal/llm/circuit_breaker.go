package llm

import (
	"context"
	"errors"
	"time"

	"github.com/sony/gobreaker"
)

// ErrCircuitOpen is returned when the provider circuit breaker is open and
// rejects requests to prevent hammering an unhealthy collaborator.
var ErrCircuitOpen = errors.New("llm circuit breaker is open")

// breakerConfig tunes the provider circuit breaker.
type breakerConfig struct {
	maxFailures      uint32        // consecutive failures before the circuit trips
	openTimeout      time.Duration // how long the circuit stays open before half-open probes
	halfOpenRequests uint32        // probe requests allowed in half-open state
}

var defaultBreakerConfig = breakerConfig{
	maxFailures:      3,
	openTimeout:      30 * time.Second,
	halfOpenRequests: 2,
}

// providerBreaker wraps gobreaker for a single named provider. Every HTTP
// call a client makes goes through call so that a dead endpoint trips the
// circuit instead of queueing timeouts behind each other.
type providerBreaker struct {
	breaker *gobreaker.CircuitBreaker
}

func newProviderBreaker(name string, cfg breakerConfig) *providerBreaker {
	return &providerBreaker{
		breaker: gobreaker.NewCircuitBreaker(gobreaker.Settings{
			Name:        name,
			MaxRequests: cfg.halfOpenRequests,
			Timeout:     cfg.openTimeout,
			ReadyToTrip: func(counts gobreaker.Counts) bool {
				return counts.ConsecutiveFailures >= cfg.maxFailures
			},
		}),
	}
}

// call runs fn through the circuit breaker, honoring ctx cancellation on
// entry. When the circuit is open it returns ErrCircuitOpen immediately.
func (pb *providerBreaker) call(ctx context.Context, fn func() (interface{}, error)) (interface{}, error) {
	if err := ctx.Err(); err != nil {
		return nil, err
	}

	result, err := pb.breaker.Execute(func() (interface{}, error) {
		if err := ctx.Err(); err != nil {
			return nil, err
		}
		return fn()
	})
	if errors.Is(err, gobreaker.ErrOpenState) || errors.Is(err, gobreaker.ErrTooManyRequests) {
		return nil, ErrCircuitOpen
	}
	return result, err
}

// State reports the current breaker state: "closed", "open" or "half-open".
func (pb *providerBreaker) State() string {
	switch pb.breaker.State() {
	case gobreaker.StateClosed:
		return "closed"
	case gobreaker.StateOpen:
		return "open"
	case gobreaker.StateHalfOpen:
		return "half-open"
	default:
		return "unknown"
	}
}
