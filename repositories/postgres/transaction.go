package postgres

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"time"

	"github.com/upb/inventory-retrieval/repositories"
	"go.uber.org/zap"
)

type txKey struct{}

// TransactionManager opens transactions used to write document and
// inventory batches atomically.
type TransactionManager struct {
	db     *DB
	logger *zap.Logger
}

// NewTransactionManager creates a new transaction manager
func NewTransactionManager(db *DB, logger *zap.Logger) repositories.TransactionManager {
	return &TransactionManager{db: db, logger: logger}
}

// Begin starts a transaction. It is not bound to the per-query timeout;
// statements run inside it apply their own.
func (tm *TransactionManager) Begin(ctx context.Context) (repositories.Transaction, error) {
	sqlTx, err := tm.db.BeginTx(ctx, nil)
	if err != nil {
		return nil, fmt.Errorf("failed to begin transaction: %w", err)
	}
	return &Transaction{
		tx:      sqlTx,
		ctx:     context.WithValue(ctx, txKey{}, sqlTx),
		started: time.Now(),
		logger:  tm.logger,
	}, nil
}

// InTransaction runs fn inside a transaction, committing on success and
// rolling back when fn returns an error or panics. The context passed to fn
// routes GetExecutor to the transaction.
func (tm *TransactionManager) InTransaction(ctx context.Context, fn func(ctx context.Context, tx repositories.Transaction) error) error {
	tx, err := tm.Begin(ctx)
	if err != nil {
		return err
	}

	defer func() {
		if p := recover(); p != nil {
			_ = tx.Rollback()
			panic(p)
		}
	}()

	if err := fn(tx.Context(), tx); err != nil {
		if rbErr := tx.Rollback(); rbErr != nil {
			tm.logger.Error("failed to roll back transaction",
				zap.Error(rbErr),
				zap.NamedError("cause", err))
			return errors.Join(err, rbErr)
		}
		return err
	}

	return tx.Commit()
}

// Transaction wraps sql.Tx. Rollback after Commit is a no-op so callers can
// defer it unconditionally.
type Transaction struct {
	tx      *sql.Tx
	ctx     context.Context
	started time.Time
	done    bool
	logger  *zap.Logger
}

// Commit commits the transaction
func (t *Transaction) Commit() error {
	if t.done {
		return fmt.Errorf("failed to commit transaction: %w", sql.ErrTxDone)
	}
	t.done = true
	if err := t.tx.Commit(); err != nil {
		return fmt.Errorf("failed to commit transaction: %w", err)
	}
	t.logger.Debug("transaction committed", zap.Duration("duration", time.Since(t.started)))
	return nil
}

// Rollback aborts the transaction
func (t *Transaction) Rollback() error {
	if t.done {
		return nil
	}
	t.done = true
	if err := t.tx.Rollback(); err != nil && !errors.Is(err, sql.ErrTxDone) {
		return fmt.Errorf("failed to roll back transaction: %w", err)
	}
	t.logger.Debug("transaction rolled back", zap.Duration("duration", time.Since(t.started)))
	return nil
}

// Context returns a context carrying the transaction
func (t *Transaction) Context() context.Context {
	return t.ctx
}

// GetTx returns the underlying sql.Tx
func (t *Transaction) GetTx() *sql.Tx {
	return t.tx
}

// Executor is satisfied by both *sql.DB and *sql.Tx
type Executor interface {
	ExecContext(ctx context.Context, query string, args ...interface{}) (sql.Result, error)
	QueryContext(ctx context.Context, query string, args ...interface{}) (*sql.Rows, error)
	QueryRowContext(ctx context.Context, query string, args ...interface{}) *sql.Row
}

// GetExecutor returns the transaction carried by ctx, or the pool
func GetExecutor(ctx context.Context, db *DB) Executor {
	if tx, ok := ctx.Value(txKey{}).(*sql.Tx); ok {
		return tx
	}
	return db.DB
}
