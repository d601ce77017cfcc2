// Package embedding turns text into vectors for the retrieval paths.
//
// The provider client is decorated in layers: a circuit breaker and retry
// policy around the remote call, then an in-memory LRU cache with an optional
// badger-backed persistent tier in front of everything.
package embedding

import (
	"context"
	"errors"
)

// Embedder turns text into a vector.
type Embedder interface {
	Embed(ctx context.Context, text string) ([]float32, error)
	EmbedBatch(ctx context.Context, texts []string) ([][]float32, error)
}

var (
	// ErrProvider wraps every failure of the remote embedding provider.
	ErrProvider = errors.New("embedding provider error")
	// ErrEmptyResponse is returned when the provider answers without vectors.
	ErrEmptyResponse = errors.New("empty embedding response")
)
