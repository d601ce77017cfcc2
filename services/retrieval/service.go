// Package retrieval implements pure vector and lexical+vector fused search
// over the document collection.
package retrieval

import (
	"context"
	"errors"
	"math"
	"strings"
	"time"

	"go.uber.org/zap"

	"github.com/upb/inventory-retrieval/internal/embedding"
	"github.com/upb/inventory-retrieval/internal/entities"
	"github.com/upb/inventory-retrieval/internal/filter"
	"github.com/upb/inventory-retrieval/internal/observability"
	"github.com/upb/inventory-retrieval/models"
	"github.com/upb/inventory-retrieval/repositories"
	"github.com/upb/inventory-retrieval/repositories/pgvectorstore"
	"github.com/upb/inventory-retrieval/services"
)

// Service runs searches against one collection
type Service struct {
	docs        repositories.DocumentRepository
	native      repositories.NativeVectorStore
	embedder    embedding.Embedder
	extractor   entities.Extractor
	collections *CollectionResolver
	opts        Options
	logger      *zap.Logger
}

// NewService creates a retrieval service. native may be nil when the native
// path is disabled; extractor may be nil, in which case expansion finds nothing.
func NewService(
	docs repositories.DocumentRepository,
	native repositories.NativeVectorStore,
	embedder embedding.Embedder,
	extractor entities.Extractor,
	opts Options,
	logger *zap.Logger,
) (*Service, error) {
	collections, err := NewCollectionResolver(docs, opts.CollectionName, opts.CollectionID, logger)
	if err != nil {
		return nil, err
	}
	if extractor == nil {
		extractor = entities.Noop{}
	}
	if opts.DefaultK <= 0 {
		opts.DefaultK = 10
	}
	return &Service{
		docs:        docs,
		native:      native,
		embedder:    embedder,
		extractor:   extractor,
		collections: collections,
		opts:        opts,
		logger:      logger,
	}, nil
}

// Collections exposes the collection resolver
func (s *Service) Collections() *CollectionResolver {
	return s.collections
}

func (s *Service) resolveK(k int) (int, error) {
	if k == 0 {
		return s.opts.DefaultK, nil
	}
	if k < 0 {
		return 0, services.ErrInvalidTopK
	}
	return k, nil
}

func (s *Service) resolveAlpha(alpha *float64) (float64, error) {
	a := s.opts.DefaultAlpha
	if alpha != nil {
		a = *alpha
	}
	if math.IsNaN(a) || a < 0 || a > 1 {
		return 0, services.Wrap(services.ErrInvalidAlpha, nil).WithDetail("alpha", a)
	}
	return a, nil
}

// checkFilter compiles spec against metadata without issuing a query
func checkFilter(spec filter.Spec) error {
	if _, err := filter.Compile(filter.NewBuilder(), spec, filter.Metadata{}); err != nil {
		if derr := services.FromFilterError(err); derr != nil {
			return derr
		}
		return services.Wrap(services.ErrUnsupportedFilter, err)
	}
	return nil
}

// searchError converts a repository failure into a domain error
func searchError(message string, err error) error {
	if derr := services.FromFilterError(err); derr != nil {
		return derr
	}
	return services.WrapStorage(message, err)
}

// SimilaritySearch returns the K nearest documents by ascending distance.
func (s *Service) SimilaritySearch(ctx context.Context, req SimilarityRequest) (resp *SearchResponse, err error) {
	start := time.Now()
	path := observability.PathSimilarity
	if req.Native {
		path = observability.PathNative
	}
	defer func() {
		n := 0
		if resp != nil {
			n = resp.Count
		}
		observability.ObserveSearch(path, start, n, err)
	}()

	query := strings.TrimSpace(req.Query)
	if query == "" {
		return nil, services.ErrEmptyQuery
	}
	k, err := s.resolveK(req.K)
	if err != nil {
		return nil, err
	}

	s.logger.Debug("similarity search",
		zap.String("collection", s.collections.Name()),
		zap.Int("k", k),
		zap.Bool("native", req.Native),
		zap.Strings("filter_fields", req.Filter.Fields()))

	var results []*models.ScoredResult
	if req.Native {
		results, err = s.nativeSearch(ctx, query, req.Filter, k)
	} else {
		results, err = s.sqlSimilarity(ctx, query, req.Filter, k)
	}
	if err != nil {
		return nil, err
	}

	return &SearchResponse{Results: results, Count: len(results), Path: path, K: k}, nil
}

func (s *Service) nativeSearch(ctx context.Context, query string, spec filter.Spec, k int) ([]*models.ScoredResult, error) {
	if !s.opts.NativeEnabled || s.native == nil {
		return nil, services.ErrNativeSearchDisabled
	}
	// The native store matches exact values only; plain strings are taken
	// literally instead of as substrings.
	eq, err := spec.AsEquality()
	if err != nil {
		return nil, services.Wrap(services.ErrUnsupportedFilter, err).
			WithDetail("reason", "native search supports exact-match filters only")
	}

	results, err := s.native.SimilaritySearch(ctx, query, eq, k)
	if err != nil {
		if errors.Is(err, pgvectorstore.ErrUnsupportedFilter) {
			return nil, services.Wrap(services.ErrUnsupportedFilter, err)
		}
		s.logger.Error("native similarity search failed", zap.Error(err))
		return nil, services.WrapStorage("native similarity search failed", err)
	}
	return results, nil
}

func (s *Service) sqlSimilarity(ctx context.Context, query string, spec filter.Spec, k int) ([]*models.ScoredResult, error) {
	if err := checkFilter(spec); err != nil {
		return nil, err
	}
	collectionID, err := s.collections.Resolve(ctx)
	if err != nil {
		return nil, err
	}
	vec, err := s.embedder.Embed(ctx, query)
	if err != nil {
		s.logger.Error("failed to embed query", zap.Error(err))
		return nil, services.Wrap(services.ErrEmbeddingFailed, err)
	}

	results, err := s.docs.SimilaritySearch(ctx, repositories.VectorQuery{
		CollectionID: collectionID,
		Embedding:    vec,
		Filter:       spec,
		K:            k,
	})
	if err != nil {
		s.logger.Error("similarity search failed", zap.Error(err))
		return nil, searchError("similarity search failed", err)
	}
	return results, nil
}

// HybridSearch returns the K best documents by descending fused score. Alpha
// weights the lexical rank and 1-alpha weights vector similarity. When
// UseEntities is set, extracted entity texts are appended to the lexical query;
// the embedding is always computed from the original query.
func (s *Service) HybridSearch(ctx context.Context, req HybridRequest) (resp *SearchResponse, err error) {
	start := time.Now()
	defer func() {
		n := 0
		if resp != nil {
			n = resp.Count
		}
		observability.ObserveSearch(observability.PathHybrid, start, n, err)
	}()

	alpha, err := s.resolveAlpha(req.Alpha)
	if err != nil {
		return nil, err
	}
	query := strings.TrimSpace(req.Query)
	if query == "" {
		return nil, services.ErrEmptyQuery
	}
	k, err := s.resolveK(req.K)
	if err != nil {
		return nil, err
	}
	if err := checkFilter(req.Filter); err != nil {
		return nil, err
	}

	resp = &SearchResponse{Path: observability.PathHybrid, K: k, Alpha: &alpha, LexicalQuery: query}

	if req.UseEntities {
		if err := s.expand(ctx, query, resp); err != nil {
			return nil, err
		}
	}

	s.logger.Debug("hybrid search",
		zap.String("collection", s.collections.Name()),
		zap.Int("k", k),
		zap.Float64("alpha", alpha),
		zap.Bool("expanded", resp.Expanded),
		zap.Strings("filter_fields", req.Filter.Fields()))

	collectionID, err := s.collections.Resolve(ctx)
	if err != nil {
		return nil, err
	}
	vec, err := s.embedder.Embed(ctx, query)
	if err != nil {
		s.logger.Error("failed to embed query", zap.Error(err))
		return nil, services.Wrap(services.ErrEmbeddingFailed, err)
	}

	results, err := s.docs.HybridSearch(ctx, repositories.HybridQuery{
		VectorQuery: repositories.VectorQuery{
			CollectionID: collectionID,
			Embedding:    vec,
			Filter:       req.Filter,
			K:            k,
		},
		LexicalQuery: resp.LexicalQuery,
		Alpha:        alpha,
	})
	if err != nil {
		s.logger.Error("hybrid search failed", zap.Error(err))
		return nil, searchError("hybrid search failed", err)
	}

	resp.Results = results
	resp.Count = len(results)
	return resp, nil
}

// expand fills the entity fields of resp. Extraction failures degrade to the
// original query when fallback is enabled.
func (s *Service) expand(ctx context.Context, query string, resp *SearchResponse) error {
	found, err := s.extractor.Extract(ctx, query)
	if err != nil {
		if !s.opts.ExpansionFallback {
			observability.QueryExpansionsTotal.WithLabelValues("error").Inc()
			return services.Wrap(services.ErrEntityExtractionFailed, err)
		}
		observability.QueryExpansionsTotal.WithLabelValues("fallback").Inc()
		s.logger.Warn("entity expansion failed, using original query", zap.Error(err))
		resp.ExpansionError = err.Error()
		return nil
	}

	resp.Entities = found
	resp.LexicalQuery = entities.Expand(query, found)
	resp.Expanded = len(found) > 0
	if resp.Expanded {
		observability.QueryExpansionsTotal.WithLabelValues("expanded").Inc()
	} else {
		observability.QueryExpansionsTotal.WithLabelValues("empty").Inc()
	}
	return nil
}
