package repositories

import (
	"context"
	"errors"

	"github.com/google/uuid"
	"github.com/upb/inventory-retrieval/internal/filter"
	"github.com/upb/inventory-retrieval/models"
)

// ErrNotFound is returned when a lookup matches no row
var ErrNotFound = errors.New("not found")

// TransactionManager manages database transactions
type TransactionManager interface {
	// Begin starts a new transaction
	Begin(ctx context.Context) (Transaction, error)

	// InTransaction executes a function within a transaction
	// Automatically commits if function succeeds, rolls back on error
	InTransaction(ctx context.Context, fn func(ctx context.Context, tx Transaction) error) error
}

// Transaction represents a database transaction
type Transaction interface {
	// Commit commits the transaction
	Commit() error

	// Rollback rolls back the transaction
	Rollback() error

	// Context returns the transaction context
	Context() context.Context
}

// VectorQuery describes a nearest-neighbour lookup inside one collection.
type VectorQuery struct {
	CollectionID uuid.UUID
	Embedding    []float32
	Filter       filter.Spec
	K            int
}

// HybridQuery adds a lexical query and a fusion weight to a VectorQuery.
// Alpha weights the lexical rank; 1-Alpha weights vector similarity.
type HybridQuery struct {
	VectorQuery
	LexicalQuery string
	Alpha        float64
}

// DocumentRepository handles embedded document storage and retrieval
type DocumentRepository interface {
	// GetCollectionByName resolves a collection, returning ErrNotFound when absent
	GetCollectionByName(ctx context.Context, name string) (*models.Collection, error)

	// EnsureCollection returns the named collection, creating it when absent
	EnsureCollection(ctx context.Context, name string) (*models.Collection, error)

	// SimilaritySearch returns up to K documents ordered by ascending distance
	SimilaritySearch(ctx context.Context, q VectorQuery) ([]*models.ScoredResult, error)

	// HybridSearch returns up to K documents ordered by descending fused score
	HybridSearch(ctx context.Context, q HybridQuery) ([]*models.ScoredResult, error)

	// Upsert inserts or replaces a document and its embedding
	Upsert(ctx context.Context, collectionID uuid.UUID, doc *models.Document, embedding []float32) error

	// WithTx returns a new repository instance bound to the transaction
	WithTx(tx Transaction) DocumentRepository
}

// BudgetedRecord is an inventory row with its token accounting
type BudgetedRecord struct {
	Record           *models.InventoryRecord
	EstimatedTokens  int
	CumulativeTokens int
}

// InventoryRepository handles vehicle inventory data operations
type InventoryRepository interface {
	// SearchWithinBudget returns matching rows ordered by date_in_stock then vin,
	// cut at the longest prefix whose cumulative token estimate fits limit.
	SearchWithinBudget(ctx context.Context, spec filter.Spec, limit int) ([]*BudgetedRecord, error)

	// Insert inserts or replaces an inventory row keyed by VIN
	Insert(ctx context.Context, rec *models.InventoryRecord) error

	// WithTx returns a new repository instance bound to the transaction
	WithTx(tx Transaction) InventoryRepository
}

// Repositories aggregates all repository interfaces
type Repositories struct {
	Documents DocumentRepository
	Inventory InventoryRepository
}

// NativeVectorStore runs similarity search through a generic vector store
// client that embeds the query itself. It supports exact-match filters only.
type NativeVectorStore interface {
	SimilaritySearch(ctx context.Context, query string, spec filter.Spec, k int) ([]*models.ScoredResult, error)
}
