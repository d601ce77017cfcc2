package retrieval

import (
	"context"
	"errors"
	"sync"

	"github.com/google/uuid"
	"go.uber.org/zap"

	"github.com/upb/inventory-retrieval/repositories"
	"github.com/upb/inventory-retrieval/services"
)

// CollectionResolver resolves the configured collection id once. A configured
// id wins; otherwise the id is looked up by name on first use and cached.
type CollectionResolver struct {
	repo   repositories.DocumentRepository
	name   string
	logger *zap.Logger

	mu sync.Mutex
	id uuid.UUID
}

// NewCollectionResolver validates a configured id up front.
func NewCollectionResolver(repo repositories.DocumentRepository, name, id string, logger *zap.Logger) (*CollectionResolver, error) {
	r := &CollectionResolver{repo: repo, name: name, logger: logger}
	if id != "" {
		parsed, err := uuid.Parse(id)
		if err != nil {
			return nil, services.Validation("invalid collection id %q", id)
		}
		r.id = parsed
	}
	return r, nil
}

// Resolve returns the collection id
func (r *CollectionResolver) Resolve(ctx context.Context) (uuid.UUID, error) {
	r.mu.Lock()
	defer r.mu.Unlock()

	if r.id != uuid.Nil {
		return r.id, nil
	}

	coll, err := r.repo.GetCollectionByName(ctx, r.name)
	if err != nil {
		if errors.Is(err, repositories.ErrNotFound) {
			return uuid.Nil, services.Wrap(services.ErrCollectionNotFound, err).WithDetail("collection", r.name)
		}
		return uuid.Nil, services.WrapStorage("failed to resolve collection", err)
	}

	r.id = coll.UUID
	r.logger.Info("collection resolved",
		zap.String("collection", r.name),
		zap.String("collection_id", r.id.String()))
	return r.id, nil
}

// Name returns the configured collection name
func (r *CollectionResolver) Name() string {
	return r.name
}
