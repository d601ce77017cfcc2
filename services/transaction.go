package services

import (
	"context"
	"errors"

	"github.com/upb/inventory-retrieval/repositories"
)

// WithTransaction runs fn inside a transaction. It commits when fn succeeds and
// rolls back when fn fails or panics. Begin and commit failures surface as
// storage errors; errors returned by fn pass through unchanged.
func WithTransaction(ctx context.Context, txMgr repositories.TransactionManager, fn func(ctx context.Context, tx repositories.Transaction) error) error {
	_, err := WithTransactionResult(ctx, txMgr, func(ctx context.Context, tx repositories.Transaction) (struct{}, error) {
		return struct{}{}, fn(ctx, tx)
	})
	return err
}

// WithTransactionResult is WithTransaction for functions that produce a value.
// The zero value is returned whenever the transaction does not commit.
func WithTransactionResult[T any](ctx context.Context, txMgr repositories.TransactionManager, fn func(ctx context.Context, tx repositories.Transaction) (T, error)) (T, error) {
	var zero T

	tx, err := txMgr.Begin(ctx)
	if err != nil {
		return zero, WrapStorage("failed to begin transaction", err)
	}

	defer func() {
		if p := recover(); p != nil {
			_ = tx.Rollback()
			panic(p)
		}
	}()

	result, err := fn(ctx, tx)
	if err != nil {
		if rbErr := tx.Rollback(); rbErr != nil {
			return zero, errors.Join(err, WrapStorage("failed to roll back transaction", rbErr))
		}
		return zero, err
	}

	if err := tx.Commit(); err != nil {
		return zero, WrapStorage("failed to commit transaction", err)
	}

	return result, nil
}
