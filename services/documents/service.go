// Package documents loads text documents into the vector collection.
package documents

import (
	"context"
	"strings"
	"sync"

	"github.com/panjf2000/ants/v2"
	"go.uber.org/zap"

	"github.com/upb/inventory-retrieval/internal/embedding"
	"github.com/upb/inventory-retrieval/models"
	"github.com/upb/inventory-retrieval/repositories"
	"github.com/upb/inventory-retrieval/services"
)

// Input is a document to load. Metadata["id"], when present, becomes the
// document id so reloading replaces rather than duplicates.
type Input struct {
	Content  string                 `json:"content" validate:"required"`
	Metadata map[string]interface{} `json:"metadata"`
}

// Failure reports a document that could not be embedded
type Failure struct {
	ID    string `json:"id"`
	Error string `json:"error"`
}

// Result summarizes a load
type Result struct {
	Collection string    `json:"collection"`
	Stored     int       `json:"stored"`
	IDs        []string  `json:"ids"`
	Failed     []Failure `json:"failed,omitempty"`
}

// Service embeds and stores documents
type Service struct {
	docs       repositories.DocumentRepository
	txManager  repositories.TransactionManager
	embedder   embedding.Embedder
	collection string
	pool       *ants.Pool
	logger     *zap.Logger
}

// NewService creates a document service embedding with up to workers
// concurrent calls.
func NewService(
	docs repositories.DocumentRepository,
	txManager repositories.TransactionManager,
	embedder embedding.Embedder,
	collection string,
	workers int,
	logger *zap.Logger,
) (*Service, error) {
	if workers < 1 {
		workers = 1
	}
	pool, err := ants.NewPool(workers)
	if err != nil {
		return nil, err
	}
	return &Service{
		docs:       docs,
		txManager:  txManager,
		embedder:   embedder,
		collection: collection,
		pool:       pool,
		logger:     logger,
	}, nil
}

// Release stops the worker pool
func (s *Service) Release() {
	s.pool.Release()
}

type embedded struct {
	doc *models.Document
	vec []float32
	err error
}

// AddDocuments embeds inputs and upserts them into the collection, creating
// it when absent. Documents whose embedding fails are reported in
// Result.Failed; the rest are stored in a single transaction.
func (s *Service) AddDocuments(ctx context.Context, inputs []Input) (*Result, error) {
	if len(inputs) == 0 {
		return nil, services.Validation("no documents to add")
	}
	for i, in := range inputs {
		if strings.TrimSpace(in.Content) == "" {
			return nil, services.Validation("document %d has no content", i)
		}
	}

	items := make([]embedded, len(inputs))
	var wg sync.WaitGroup
	for i, in := range inputs {
		items[i].doc = models.NewDocument(in.Content, in.Metadata)
		item := &items[i]
		wg.Add(1)
		if err := s.pool.Submit(func() {
			defer wg.Done()
			item.vec, item.err = s.embedder.Embed(ctx, item.doc.Content)
		}); err != nil {
			wg.Done()
			item.err = err
		}
	}
	wg.Wait()

	result := &Result{Collection: s.collection, IDs: []string{}}
	ready := make([]embedded, 0, len(items))
	for _, it := range items {
		if it.err != nil {
			s.logger.Warn("failed to embed document",
				zap.String("id", it.doc.ID),
				zap.Error(it.err))
			result.Failed = append(result.Failed, Failure{ID: it.doc.ID, Error: it.err.Error()})
			continue
		}
		ready = append(ready, it)
	}
	if len(ready) == 0 {
		return result, services.Wrap(services.ErrEmbeddingFailed, nil).WithDetail("failed", len(result.Failed))
	}

	err := services.WithTransaction(ctx, s.txManager, func(ctx context.Context, tx repositories.Transaction) error {
		repo := s.docs.WithTx(tx)
		coll, err := repo.EnsureCollection(ctx, s.collection)
		if err != nil {
			return services.WrapStorage("failed to ensure collection", err)
		}
		for _, it := range ready {
			if err := repo.Upsert(ctx, coll.UUID, it.doc, it.vec); err != nil {
				return services.WrapStorage("failed to store document "+it.doc.ID, err)
			}
		}
		return nil
	})
	if err != nil {
		s.logger.Error("failed to store documents", zap.Error(err))
		return nil, err
	}

	for _, it := range ready {
		result.IDs = append(result.IDs, it.doc.ID)
	}
	result.Stored = len(ready)
	s.logger.Info("documents loaded",
		zap.String("collection", s.collection),
		zap.Int("stored", result.Stored),
		zap.Int("failed", len(result.Failed)))
	return result, nil
}
