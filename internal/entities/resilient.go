package entities

import (
	"context"
	"errors"
	"fmt"
	"time"

	"go.uber.org/zap"

	"github.com/upb/inventory-retrieval/config"
	"github.com/upb/inventory-retrieval/internal/observability"
	"github.com/upb/inventory-retrieval/internal/resilience"
)

// Instrumented records metrics around an extractor and retries transient
// failures behind a circuit breaker. Model acquisition failures are not retried.
type Instrumented struct {
	inner    Extractor
	provider string
	policy   resilience.RetryPolicy
	breaker  *resilience.Breaker
	logger   *zap.Logger
}

// NewInstrumented wraps inner. breaker may be nil.
func NewInstrumented(inner Extractor, provider string, policy resilience.RetryPolicy, breaker *resilience.Breaker, logger *zap.Logger) *Instrumented {
	return &Instrumented{inner: inner, provider: provider, policy: policy, breaker: breaker, logger: logger}
}

// Extract implements Extractor
func (i *Instrumented) Extract(ctx context.Context, text string) (map[string]string, error) {
	start := time.Now()
	found, err := resilience.RetryValue(ctx, i.policy, i.logger, func(ctx context.Context) (map[string]string, error) {
		out, err := resilience.Execute(i.breaker, func() (map[string]string, error) {
			return i.inner.Extract(ctx, text)
		})
		if resilience.IsOpen(err) || errors.Is(err, ErrModelUnavailable) {
			return nil, resilience.Permanent(err)
		}
		return out, err
	})
	observability.EntityExtractionDuration.WithLabelValues(i.provider).Observe(time.Since(start).Seconds())

	if err != nil {
		observability.EntityExtractionsTotal.WithLabelValues(i.provider, "error").Inc()
		i.logger.Warn("entity extraction failed",
			zap.String("provider", i.provider),
			zap.Error(err))
		if !errors.Is(err, ErrExtraction) && !errors.Is(err, ErrModelUnavailable) {
			err = fmt.Errorf("%w: %w", ErrExtraction, err)
		}
		return nil, err
	}

	observability.EntityExtractionsTotal.WithLabelValues(i.provider, "success").Inc()
	i.logger.Debug("entities extracted",
		zap.String("provider", i.provider),
		zap.Int("entities", len(found)))
	return found, nil
}

// New builds the extractor selected by cfg.Provider, wrapped with retries,
// a breaker and metrics. The returned close func releases local models.
// A GLiNER model is acquired here; when it cannot be and cfg.Fallback is set,
// acquisition is left to the first request.
func New(cfg config.EntitiesConfig, res config.ResilienceConfig, logger *zap.Logger) (Extractor, func(), error) {
	return newExtractor(cfg, res, nil, logger)
}

func newExtractor(cfg config.EntitiesConfig, res config.ResilienceConfig, load ModelLoader, logger *zap.Logger) (Extractor, func(), error) {
	noClose := func() {}
	var inner Extractor

	switch cfg.Provider {
	case "", "none":
		return Noop{}, noClose, nil
	case "gliner":
		g := NewGlinerExtractor(cfg.RecognitionModel, cfg.Labels, cfg.Threshold, load, logger)
		if err := g.Warm(); err != nil {
			if !cfg.Fallback {
				return nil, nil, err
			}
			logger.Warn("recognition model not ready, deferring to first request", zap.Error(err))
		}
		inner = g
		noClose = g.Close
	case "llm":
		l, err := NewLLMExtractor(cfg, logger)
		if err != nil {
			return nil, nil, err
		}
		inner = l
	default:
		return nil, nil, fmt.Errorf("unknown entity provider: %s", cfg.Provider)
	}

	breaker := resilience.NewBreaker("entities-"+cfg.Provider, resilience.SettingsFromConfig(res), logger)
	return NewInstrumented(inner, cfg.Provider, resilience.PolicyFromConfig(res), breaker, logger), noClose, nil
}
