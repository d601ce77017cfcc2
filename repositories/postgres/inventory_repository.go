package postgres

import (
	"context"
	"fmt"
	"strings"

	"github.com/lib/pq"
	"github.com/upb/inventory-retrieval/internal/budget"
	"github.com/upb/inventory-retrieval/internal/filter"
	"github.com/upb/inventory-retrieval/models"
	"github.com/upb/inventory-retrieval/repositories"
	"go.uber.org/zap"
)

// InventoryRepository implements the repositories.InventoryRepository interface
type InventoryRepository struct {
	db        *DB
	tx        *Transaction
	table     string
	estimator budget.Estimator
	logger    *zap.Logger
}

// NewInventoryRepository creates a new inventory repository over table
func NewInventoryRepository(db *DB, table string, charsPerToken int, logger *zap.Logger) repositories.InventoryRepository {
	if table == "" {
		table = models.InventoryRecord{}.TableName()
	}
	return &InventoryRepository{
		db:        db,
		table:     table,
		estimator: budget.NewEstimator(charsPerToken),
		logger:    logger,
	}
}

func (r *InventoryRepository) executor(ctx context.Context) Executor {
	if r.tx != nil {
		return r.tx.GetTx()
	}
	return GetExecutor(ctx, r.db)
}

// costExpression sums the character length of every costed column
func costExpression() string {
	parts := make([]string, len(models.InventoryCostColumns))
	for i, c := range models.InventoryCostColumns {
		parts[i] = fmt.Sprintf("COALESCE(LENGTH(%s), 0)", pq.QuoteIdentifier(c))
	}
	return "(" + strings.Join(parts, " + ") + ")"
}

func selectList() string {
	cols := make([]string, len(models.InventoryColumns))
	for i, c := range models.InventoryColumns {
		cols[i] = pq.QuoteIdentifier(c)
	}
	return strings.Join(cols, ", ")
}

// SearchWithinBudget returns matching rows ordered by date_in_stock then vin,
// cut at the longest prefix whose cumulative token estimate fits limit.
// A non-positive limit returns no rows without touching the database.
func (r *InventoryRepository) SearchWithinBudget(ctx context.Context, spec filter.Spec, limit int) ([]*repositories.BudgetedRecord, error) {
	if limit <= 0 {
		return []*repositories.BudgetedRecord{}, nil
	}

	b := filter.NewBuilder()
	div := b.Bind(r.estimator.CharsPerToken)
	frag, err := filter.Compile(b, spec, models.InventorySchema)
	if err != nil {
		return nil, fmt.Errorf("invalid filter: %w", err)
	}
	ceiling := b.Bind(limit)

	cols := selectList()
	query := fmt.Sprintf(`
		WITH costed AS (
			SELECT %[1]s,
				%[2]s / %[3]s::int AS estimated_token_count
			FROM %[4]s%[5]s
		), running AS (
			SELECT costed.*,
				SUM(estimated_token_count) OVER (
					ORDER BY date_in_stock ASC, vin ASC
					ROWS BETWEEN UNBOUNDED PRECEDING AND CURRENT ROW
				) AS cumulative_tokens
			FROM costed
		)
		SELECT %[1]s, estimated_token_count, cumulative_tokens
		FROM running
		WHERE cumulative_tokens <= %[6]s
		ORDER BY date_in_stock ASC, vin ASC
	`, cols, costExpression(), div, pq.QuoteIdentifier(r.table), frag.Where(), ceiling)

	ctx, cancel := r.db.WithQueryTimeout(ctx)
	defer cancel()

	rows, err := r.executor(ctx).QueryContext(ctx, query, b.Args()...)
	if err != nil {
		return nil, fmt.Errorf("failed to query inventory: %w", err)
	}
	defer rows.Close()

	records := make([]*repositories.BudgetedRecord, 0)
	mismatches := 0
	for rows.Next() {
		rec := &models.InventoryRecord{}
		var estimated, cumulative int64
		dest := append(rec.ScanTargets(), &estimated, &cumulative)
		if err := rows.Scan(dest...); err != nil {
			return nil, fmt.Errorf("failed to scan inventory record: %w", err)
		}
		// SQL LENGTH and the local estimate count characters the same way
		if r.estimator.Estimate(rec.CostText()...) != int(estimated) {
			mismatches++
		}
		records = append(records, &repositories.BudgetedRecord{
			Record:           rec,
			EstimatedTokens:  int(estimated),
			CumulativeTokens: int(cumulative),
		})
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("error iterating inventory: %w", err)
	}

	// The window already cut the sequence; re-applying the rule keeps the
	// result a prefix even if the database returned rows out of order.
	kept := budget.Truncate(records, limit, func(br *repositories.BudgetedRecord) int {
		return br.EstimatedTokens
	})

	r.logger.Debug("inventory budget search completed",
		zap.Int("filters", len(frag.Clauses)),
		zap.Int("context_limit", limit),
		zap.Int("records", len(kept)),
		zap.Int("estimate_mismatches", mismatches))
	return kept, nil
}

// Insert inserts or replaces an inventory row keyed by VIN
func (r *InventoryRepository) Insert(ctx context.Context, rec *models.InventoryRecord) error {
	if rec.VIN == nil || *rec.VIN == "" {
		return fmt.Errorf("inventory record requires a vin")
	}

	placeholders := make([]string, len(models.InventoryColumns))
	updates := make([]string, 0, len(models.InventoryColumns)-1)
	for i, c := range models.InventoryColumns {
		placeholders[i] = fmt.Sprintf("$%d", i+1)
		if c != "vin" {
			q := pq.QuoteIdentifier(c)
			updates = append(updates, fmt.Sprintf("%s = EXCLUDED.%s", q, q))
		}
	}

	query := fmt.Sprintf(`
		INSERT INTO %s (%s)
		VALUES (%s)
		ON CONFLICT (vin) DO UPDATE SET %s
	`, pq.QuoteIdentifier(r.table), selectList(), strings.Join(placeholders, ", "), strings.Join(updates, ", "))

	ctx, cancel := r.db.WithQueryTimeout(ctx)
	defer cancel()

	if _, err := r.executor(ctx).ExecContext(ctx, query, rec.Values()...); err != nil {
		return fmt.Errorf("failed to insert inventory record: %w", err)
	}

	r.logger.Debug("inventory record stored", zap.String("vin", *rec.VIN))
	return nil
}

// WithTx returns a new repository instance bound to the transaction
func (r *InventoryRepository) WithTx(tx repositories.Transaction) repositories.InventoryRepository {
	clone := *r
	if pgTx, ok := tx.(*Transaction); ok {
		clone.tx = pgTx
	}
	return &clone
}
