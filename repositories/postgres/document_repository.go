package postgres

import (
	"context"
	"database/sql"
	"encoding/json"
	"errors"
	"fmt"

	"github.com/google/uuid"
	"github.com/pgvector/pgvector-go"
	"github.com/upb/inventory-retrieval/internal/filter"
	"github.com/upb/inventory-retrieval/models"
	"github.com/upb/inventory-retrieval/repositories"
	"go.uber.org/zap"
)

// distanceOperators maps configured metric names to pgvector operators.
// Operators are never taken from request input.
var distanceOperators = map[string]string{
	"l2":     "<->",
	"cosine": "<=>",
	"inner":  "<#>",
}

// DistanceOperator returns the pgvector operator for metric. An empty metric selects cosine.
func DistanceOperator(metric string) (string, error) {
	if metric == "" {
		metric = "cosine"
	}
	op, ok := distanceOperators[metric]
	if !ok {
		return "", fmt.Errorf("unknown distance metric %q", metric)
	}
	return op, nil
}

// DocumentOptions configures the SQL emitted by DocumentRepository
type DocumentOptions struct {
	DistanceMetric   string
	TextSearchConfig string
}

// DocumentRepository implements the repositories.DocumentRepository interface
// over the langchain_pg_collection and langchain_pg_embedding tables.
type DocumentRepository struct {
	db       *DB
	tx       *Transaction
	op       string
	tsConfig string
	logger   *zap.Logger
}

// NewDocumentRepository creates a new document repository
func NewDocumentRepository(db *DB, opts DocumentOptions, logger *zap.Logger) (repositories.DocumentRepository, error) {
	op, err := DistanceOperator(opts.DistanceMetric)
	if err != nil {
		return nil, err
	}
	tsConfig := opts.TextSearchConfig
	if tsConfig == "" {
		tsConfig = "english"
	}
	return &DocumentRepository{
		db:       db,
		op:       op,
		tsConfig: tsConfig,
		logger:   logger,
	}, nil
}

func (r *DocumentRepository) executor(ctx context.Context) Executor {
	if r.tx != nil {
		return r.tx.GetTx()
	}
	return GetExecutor(ctx, r.db)
}

// GetCollectionByName resolves a collection by name
func (r *DocumentRepository) GetCollectionByName(ctx context.Context, name string) (*models.Collection, error) {
	query := `
		SELECT uuid, name
		FROM langchain_pg_collection
		WHERE name = $1
	`

	ctx, cancel := r.db.WithQueryTimeout(ctx)
	defer cancel()

	coll := &models.Collection{}
	err := r.executor(ctx).QueryRowContext(ctx, query, name).Scan(&coll.UUID, &coll.Name)
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, fmt.Errorf("collection %q: %w", name, repositories.ErrNotFound)
		}
		return nil, fmt.Errorf("failed to get collection: %w", err)
	}

	return coll, nil
}

// EnsureCollection returns the named collection, creating it when absent
func (r *DocumentRepository) EnsureCollection(ctx context.Context, name string) (*models.Collection, error) {
	query := `
		INSERT INTO langchain_pg_collection (uuid, name, cmetadata)
		VALUES ($1, $2, '{}')
		ON CONFLICT (name) DO NOTHING
	`

	execCtx, cancel := r.db.WithQueryTimeout(ctx)
	defer cancel()

	if _, err := r.executor(execCtx).ExecContext(execCtx, query, uuid.New(), name); err != nil {
		return nil, fmt.Errorf("failed to create collection: %w", err)
	}

	return r.GetCollectionByName(ctx, name)
}

// SimilaritySearch returns up to K documents ordered by ascending distance
func (r *DocumentRepository) SimilaritySearch(ctx context.Context, q repositories.VectorQuery) ([]*models.ScoredResult, error) {
	b := filter.NewBuilder()
	vec := b.Bind(pgvector.NewVector(q.Embedding))
	coll := b.Bind(q.CollectionID)
	frag, err := filter.Compile(b, q.Filter, filter.Metadata{})
	if err != nil {
		return nil, fmt.Errorf("invalid filter: %w", err)
	}
	limit := b.Bind(q.K)

	query := fmt.Sprintf(`
		SELECT document, cmetadata, embedding %s %s AS distance
		FROM langchain_pg_embedding
		WHERE collection_id = %s%s
		ORDER BY distance ASC, id ASC
		LIMIT %s
	`, r.op, vec, coll, frag.And(), limit)

	results, err := r.queryScored(ctx, query, models.ScoreDistance, b.Args()...)
	if err != nil {
		return nil, err
	}

	r.logger.Debug("similarity search completed",
		zap.Int("filters", len(frag.Clauses)),
		zap.Int("results", len(results)))
	return results, nil
}

// HybridSearch returns up to K documents ordered by descending fused score:
// alpha * ts_rank_cd(lexical) + (1 - alpha) * (1 - distance).
//
// Normalization 32 maps the rank into [0, 1). Under cosine the similarity
// term lies in [-1, 1] and in [0, 1] for non-negative embeddings; l2 and
// inner distances are unbounded, so their term is not range-matched.
func (r *DocumentRepository) HybridSearch(ctx context.Context, q repositories.HybridQuery) ([]*models.ScoredResult, error) {
	b := filter.NewBuilder()
	cfg := b.Bind(r.tsConfig)
	text := b.Bind(q.LexicalQuery)
	alpha := b.Bind(q.Alpha)
	vec := b.Bind(pgvector.NewVector(q.Embedding))
	coll := b.Bind(q.CollectionID)
	frag, err := filter.Compile(b, q.Filter, filter.Metadata{})
	if err != nil {
		return nil, fmt.Errorf("invalid filter: %w", err)
	}
	limit := b.Bind(q.K)

	query := fmt.Sprintf(`
		SELECT document, cmetadata,
			%[3]s::float8 * ts_rank_cd(to_tsvector(%[1]s::regconfig, document), plainto_tsquery(%[1]s::regconfig, %[2]s), 32)
			+ (1 - %[3]s::float8) * (1 - (embedding %[4]s %[5]s)) AS score
		FROM langchain_pg_embedding
		WHERE collection_id = %[6]s%[7]s
		ORDER BY score DESC, id ASC
		LIMIT %[8]s
	`, cfg, text, alpha, r.op, vec, coll, frag.And(), limit)

	results, err := r.queryScored(ctx, query, models.ScoreFused, b.Args()...)
	if err != nil {
		return nil, err
	}

	r.logger.Debug("hybrid search completed",
		zap.Float64("alpha", q.Alpha),
		zap.Int("filters", len(frag.Clauses)),
		zap.Int("results", len(results)))
	return results, nil
}

// Upsert inserts or replaces a document and its embedding
func (r *DocumentRepository) Upsert(ctx context.Context, collectionID uuid.UUID, doc *models.Document, embedding []float32) error {
	query := `
		INSERT INTO langchain_pg_embedding (id, collection_id, embedding, document, cmetadata)
		VALUES ($1, $2, $3, $4, $5)
		ON CONFLICT (id) DO UPDATE SET
			collection_id = EXCLUDED.collection_id,
			embedding = EXCLUDED.embedding,
			document = EXCLUDED.document,
			cmetadata = EXCLUDED.cmetadata
	`

	metadata, err := json.Marshal(doc.Metadata)
	if err != nil {
		return fmt.Errorf("failed to encode metadata: %w", err)
	}

	ctx, cancel := r.db.WithQueryTimeout(ctx)
	defer cancel()

	_, err = r.executor(ctx).ExecContext(ctx, query,
		doc.ID,
		collectionID,
		pgvector.NewVector(embedding),
		doc.Content,
		string(metadata),
	)
	if err != nil {
		return fmt.Errorf("failed to upsert document: %w", err)
	}

	r.logger.Debug("document upserted", zap.String("id", doc.ID))
	return nil
}

// WithTx returns a new repository instance bound to the transaction
func (r *DocumentRepository) WithTx(tx repositories.Transaction) repositories.DocumentRepository {
	clone := *r
	if pgTx, ok := tx.(*Transaction); ok {
		clone.tx = pgTx
	}
	return &clone
}

// queryScored runs a search query whose rows are (document, cmetadata, score)
func (r *DocumentRepository) queryScored(ctx context.Context, query string, kind models.ScoreKind, args ...interface{}) ([]*models.ScoredResult, error) {
	ctx, cancel := r.db.WithQueryTimeout(ctx)
	defer cancel()

	rows, err := r.executor(ctx).QueryContext(ctx, query, args...)
	if err != nil {
		return nil, fmt.Errorf("failed to query documents: %w", err)
	}
	defer rows.Close()

	results := make([]*models.ScoredResult, 0)
	for rows.Next() {
		var (
			content  sql.NullString
			metadata []byte
			score    float64
		)
		if err := rows.Scan(&content, &metadata, &score); err != nil {
			return nil, fmt.Errorf("failed to scan document: %w", err)
		}

		md := map[string]interface{}{}
		if len(metadata) > 0 {
			if err := json.Unmarshal(metadata, &md); err != nil {
				return nil, fmt.Errorf("failed to decode metadata: %w", err)
			}
			if md == nil {
				md = map[string]interface{}{}
			}
		}

		results = append(results, &models.ScoredResult{
			Content:   content.String,
			Metadata:  md,
			Score:     score,
			ScoreKind: kind,
		})
	}

	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("error iterating documents: %w", err)
	}

	return results, nil
}
