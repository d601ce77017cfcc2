package embedding

import (
	"context"

	"go.uber.org/zap"

	"github.com/upb/inventory-retrieval/internal/resilience"
)

// ResilientEmbedder retries transient provider failures behind a circuit breaker.
// Each attempt goes through the breaker, so an open breaker ends the retries.
type ResilientEmbedder struct {
	inner   Embedder
	policy  resilience.RetryPolicy
	breaker *resilience.Breaker
	logger  *zap.Logger
}

// NewResilientEmbedder wraps inner. breaker may be nil.
func NewResilientEmbedder(inner Embedder, policy resilience.RetryPolicy, breaker *resilience.Breaker, logger *zap.Logger) *ResilientEmbedder {
	return &ResilientEmbedder{inner: inner, policy: policy, breaker: breaker, logger: logger}
}

// Embed implements Embedder
func (r *ResilientEmbedder) Embed(ctx context.Context, text string) ([]float32, error) {
	return resilience.RetryValue(ctx, r.policy, r.logger, func(ctx context.Context) ([]float32, error) {
		vec, err := resilience.Execute(r.breaker, func() ([]float32, error) {
			return r.inner.Embed(ctx, text)
		})
		if resilience.IsOpen(err) {
			return nil, resilience.Permanent(err)
		}
		return vec, err
	})
}

// EmbedBatch implements Embedder
func (r *ResilientEmbedder) EmbedBatch(ctx context.Context, texts []string) ([][]float32, error) {
	return resilience.RetryValue(ctx, r.policy, r.logger, func(ctx context.Context) ([][]float32, error) {
		vecs, err := resilience.Execute(r.breaker, func() ([][]float32, error) {
			return r.inner.EmbedBatch(ctx, texts)
		})
		if resilience.IsOpen(err) {
			return nil, resilience.Permanent(err)
		}
		return vecs, err
	})
}
