// Package pgvectorstore adapts the langchaingo pgvector vector store to the
// repositories.NativeVectorStore interface.
package pgvectorstore

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"math"
	"regexp"
	"strconv"
	"strings"

	"github.com/tmc/langchaingo/schema"
	"github.com/tmc/langchaingo/vectorstores"
	lcpgvector "github.com/tmc/langchaingo/vectorstores/pgvector"
	"go.uber.org/zap"

	"github.com/upb/inventory-retrieval/internal/embedding"
	"github.com/upb/inventory-retrieval/internal/filter"
	"github.com/upb/inventory-retrieval/models"
	"github.com/upb/inventory-retrieval/repositories"
)

// ErrUnsupportedFilter is returned for filters the native store cannot express
var ErrUnsupportedFilter = errors.New("native search supports exact-match filters on plain keys only")

var keyPattern = regexp.MustCompile(`^[A-Za-z_][A-Za-z0-9_]*$`)

// embedderAdapter exposes an embedding.Embedder as a langchaingo embeddings.Embedder
type embedderAdapter struct {
	inner embedding.Embedder
}

func (a embedderAdapter) EmbedDocuments(ctx context.Context, texts []string) ([][]float32, error) {
	return a.inner.EmbedBatch(ctx, texts)
}

func (a embedderAdapter) EmbedQuery(ctx context.Context, text string) ([]float32, error) {
	return a.inner.Embed(ctx, text)
}

// Store wraps a langchaingo vector store
type Store struct {
	vs     vectorstores.VectorStore
	logger *zap.Logger
}

// Open connects a langchaingo pgvector store for collection at connURL.
func Open(ctx context.Context, connURL, collection string, emb embedding.Embedder, logger *zap.Logger) (*Store, error) {
	vs, err := lcpgvector.New(ctx,
		lcpgvector.WithConnectionURL(connURL),
		lcpgvector.WithEmbedder(embedderAdapter{inner: emb}),
		lcpgvector.WithCollectionName(collection),
	)
	if err != nil {
		return nil, fmt.Errorf("failed to open native vector store: %w", err)
	}
	return New(vs, logger), nil
}

// New wraps an existing vector store
func New(vs vectorstores.VectorStore, logger *zap.Logger) *Store {
	return &Store{vs: vs, logger: logger}
}

// ToEqualityMap converts spec to the key/value map langchaingo filters accept.
// Pattern values are taken as exact strings. The store compares
// `cmetadata ->> key` against the value as text, so every value is rendered
// the way Postgres renders the JSON scalar.
func ToEqualityMap(spec filter.Spec) (map[string]any, error) {
	eq, err := spec.AsEquality()
	if err != nil {
		return nil, fmt.Errorf("%w: %v", ErrUnsupportedFilter, err)
	}
	if len(eq) == 0 {
		return nil, nil
	}
	out := make(map[string]any, len(eq))
	for _, field := range eq.Fields() {
		if !keyPattern.MatchString(field) {
			return nil, fmt.Errorf("%w: key %q", ErrUnsupportedFilter, field)
		}
		text, err := scalarText(eq[field].Scalar())
		if err != nil {
			return nil, fmt.Errorf("%w: value for %q: %v", ErrUnsupportedFilter, field, err)
		}
		if strings.ContainsAny(text, `'\`) {
			return nil, fmt.Errorf("%w: value for %q contains a quote", ErrUnsupportedFilter, field)
		}
		out[field] = text
	}
	return out, nil
}

// scalarText renders v as the text `->>` yields for the same JSON scalar.
func scalarText(v any) (string, error) {
	switch n := v.(type) {
	case string:
		return n, nil
	case bool:
		return strconv.FormatBool(n), nil
	case int:
		return strconv.Itoa(n), nil
	case int32:
		return strconv.FormatInt(int64(n), 10), nil
	case int64:
		return strconv.FormatInt(n, 10), nil
	case float32:
		return strconv.FormatFloat(float64(n), 'f', -1, 32), nil
	case float64:
		if math.IsNaN(n) || math.IsInf(n, 0) {
			return "", fmt.Errorf("non-finite number %v", n)
		}
		return strconv.FormatFloat(n, 'f', -1, 64), nil
	case json.Number:
		if i, err := n.Int64(); err == nil {
			return strconv.FormatInt(i, 10), nil
		}
		f, err := n.Float64()
		if err != nil {
			return "", fmt.Errorf("invalid number %q", n.String())
		}
		return scalarText(f)
	default:
		return "", fmt.Errorf("unsupported type %T", v)
	}
}

// SimilaritySearch implements repositories.NativeVectorStore. Scores are
// reported as distances (1 - similarity) so they order like the SQL path.
func (s *Store) SimilaritySearch(ctx context.Context, query string, spec filter.Spec, k int) ([]*models.ScoredResult, error) {
	filters, err := ToEqualityMap(spec)
	if err != nil {
		return nil, fmt.Errorf("invalid filter: %w", err)
	}

	var opts []vectorstores.Option
	if filters != nil {
		opts = append(opts, vectorstores.WithFilters(filters))
	}

	docs, err := s.vs.SimilaritySearch(ctx, query, k, opts...)
	if err != nil {
		return nil, fmt.Errorf("native similarity search failed: %w", err)
	}

	results := toResults(docs)
	s.logger.Debug("native similarity search completed",
		zap.Int("k", k),
		zap.Int("filters", len(filters)),
		zap.Int("results", len(results)))
	return results, nil
}

func toResults(docs []schema.Document) []*models.ScoredResult {
	results := make([]*models.ScoredResult, 0, len(docs))
	for _, d := range docs {
		md := d.Metadata
		if md == nil {
			md = map[string]any{}
		}
		results = append(results, &models.ScoredResult{
			Content:   d.PageContent,
			Metadata:  md,
			Score:     1 - float64(d.Score),
			ScoreKind: models.ScoreDistance,
		})
	}
	return results
}

var _ repositories.NativeVectorStore = (*Store)(nil)
