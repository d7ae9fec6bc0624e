package repository

import (
	"context"
	"errors"
	"fmt"

	"gorm.io/gorm"
)

type contextKey string

const txKey contextKey = "gorm_tx"

var (
	// ErrNoTransaction is returned when a savepoint is requested outside RunInTx.
	ErrNoTransaction = errors.New("savepoint requires an open transaction")
	// ErrSavepointRollback means the transaction is no longer usable and must be aborted.
	ErrSavepointRollback = errors.New("savepoint rollback failed")
)

// TransactionManager manages database transactions via context injection.
type TransactionManager interface {
	RunInTx(ctx context.Context, fn func(txCtx context.Context) error) error
	// RunInSavepoint runs fn inside the transaction already carried by ctx. If fn fails,
	// only its own writes are rolled back and the outer transaction stays usable.
	RunInSavepoint(ctx context.Context, name string, fn func(spCtx context.Context) error) error
}

type transactionManager struct {
	db *gorm.DB
}

func NewTransactionManager(db *gorm.DB) TransactionManager {
	return &transactionManager{db: db}
}

func (t *transactionManager) RunInTx(ctx context.Context, fn func(txCtx context.Context) error) error {
	return t.db.WithContext(ctx).Transaction(func(tx *gorm.DB) error {
		txCtx := context.WithValue(ctx, txKey, tx)
		return fn(txCtx)
	})
}

func (t *transactionManager) RunInSavepoint(ctx context.Context, name string, fn func(spCtx context.Context) error) error {
	tx, ok := ctx.Value(txKey).(*gorm.DB)
	if !ok {
		return ErrNoTransaction
	}

	if err := tx.SavePoint(name).Error; err != nil {
		return fmt.Errorf("failed to create savepoint %s: %w", name, err)
	}

	if err := fn(ctx); err != nil {
		if rbErr := tx.RollbackTo(name).Error; rbErr != nil {
			return errors.Join(err, fmt.Errorf("%w: %s: %v", ErrSavepointRollback, name, rbErr))
		}
		return err
	}
	return nil
}

// GetDB extracts the transaction DB from context if present, otherwise returns root DB.
func GetDB(ctx context.Context, rootDB *gorm.DB) *gorm.DB {
	if tx, ok := ctx.Value(txKey).(*gorm.DB); ok {
		return tx.WithContext(ctx)
	}
	return rootDB.WithContext(ctx)
}
