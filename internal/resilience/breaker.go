package resilience

import (
	"context"
	"errors"
	"time"

	"github.com/sony/gobreaker"
	"github.com/upb/inventory-retrieval/config"
	"github.com/upb/inventory-retrieval/internal/observability"
	"go.uber.org/zap"
)

// BreakerSettings configures a circuit breaker.
type BreakerSettings struct {
	Enabled          bool
	MaxRequests      uint32
	Interval         time.Duration
	Timeout          time.Duration
	ReadyToTripRatio float64
}

// SettingsFromConfig builds BreakerSettings from resilience settings.
func SettingsFromConfig(cfg config.ResilienceConfig) BreakerSettings {
	return BreakerSettings{
		Enabled:          cfg.BreakerEnabled,
		MaxRequests:      cfg.BreakerMaxRequests,
		Interval:         cfg.BreakerInterval,
		Timeout:          cfg.BreakerTimeout,
		ReadyToTripRatio: cfg.BreakerReadyToTripRatio,
	}
}

// Breaker guards one dependency. A nil *Breaker passes every call through.
type Breaker struct {
	cb *gobreaker.CircuitBreaker
}

// NewBreaker returns a breaker named name, or nil when settings are disabled.
func NewBreaker(name string, s BreakerSettings, logger *zap.Logger) *Breaker {
	if !s.Enabled {
		return nil
	}
	if logger == nil {
		logger = zap.NewNop()
	}
	ratio := s.ReadyToTripRatio
	if ratio <= 0 {
		ratio = 0.6
	}

	st := gobreaker.Settings{
		Name:        name,
		MaxRequests: s.MaxRequests,
		Interval:    s.Interval,
		Timeout:     s.Timeout,
		ReadyToTrip: func(counts gobreaker.Counts) bool {
			failureRatio := float64(counts.TotalFailures) / float64(counts.Requests)
			return counts.Requests >= 3 && failureRatio >= ratio
		},
		// Caller cancellation says nothing about the dependency's health.
		IsSuccessful: func(err error) bool {
			return err == nil || errors.Is(err, context.Canceled)
		},
		OnStateChange: func(name string, from, to gobreaker.State) {
			observability.CircuitBreakerState.WithLabelValues(name).Set(float64(stateValue(to)))
			if to == gobreaker.StateOpen {
				logger.Warn("circuit breaker opened",
					zap.String("breaker", name),
					zap.String("from", from.String()))
				return
			}
			logger.Info("circuit breaker state changed",
				zap.String("breaker", name),
				zap.String("from", from.String()),
				zap.String("to", to.String()))
		},
	}

	observability.CircuitBreakerState.WithLabelValues(name).Set(0)
	return &Breaker{cb: gobreaker.NewCircuitBreaker(st)}
}

// State reports the breaker state; a nil breaker is always closed.
func (b *Breaker) State() gobreaker.State {
	if b == nil {
		return gobreaker.StateClosed
	}
	return b.cb.State()
}

// Execute runs fn through the breaker.
func Execute[T any](b *Breaker, fn func() (T, error)) (T, error) {
	if b == nil {
		return fn()
	}
	out, err := b.cb.Execute(func() (interface{}, error) {
		return fn()
	})
	v, _ := out.(T)
	return v, err
}

// IsOpen reports whether err came from a breaker rejecting the call.
func IsOpen(err error) bool {
	return errors.Is(err, gobreaker.ErrOpenState) || errors.Is(err, gobreaker.ErrTooManyRequests)
}

func stateValue(s gobreaker.State) int {
	switch s {
	case gobreaker.StateHalfOpen:
		return 1
	case gobreaker.StateOpen:
		return 2
	default:
		return 0
	}
}
