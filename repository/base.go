// Package repository provides data access layer implementations and interfaces for database operations
package repository

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/jackc/pgx/v5/pgconn"
	"gorm.io/gorm"
)

// ErrStatementTimeout is returned when the server cancels a statement for exceeding its time
// budget or the request deadline passes while it runs.
var ErrStatementTimeout = errors.New("statement timed out")

// pgQueryCanceled is the SQLSTATE raised by statement_timeout.
const pgQueryCanceled = "57014"

// BaseRepository provides common repository functionality with transaction support
type BaseRepository[T any, F any] struct {
	DB *gorm.DB
}

// NewBaseRepository creates a new base repository instance
func NewBaseRepository[T any, F any](db *gorm.DB) *BaseRepository[T, F] {
	return &BaseRepository[T, F]{
		DB: db,
	}
}

// getDB returns the appropriate database connection (with or without transaction)
func (r *BaseRepository[T, F]) getDB(ctx context.Context) *gorm.DB {
	return dbFromContext(ctx, r.DB)
}

func dbFromContext(ctx context.Context, db *gorm.DB) *gorm.DB {
	if tx, ok := ctx.Value(TxContextKey).(*gorm.DB); ok && tx != nil {
		return tx
	}
	return db.WithContext(ctx)
}

// ByID retrieves an entity by its ID
func (r *BaseRepository[T, F]) ByID(ctx context.Context, id uint) (*T, error) {
	db := r.getDB(ctx)

	var entity T
	err := db.Last(&entity, id).Error
	if err != nil {
		if errors.Is(err, gorm.ErrRecordNotFound) {
			return nil, nil
		}
		return nil, fmt.Errorf("failed to find entity by ID %d: %w", id, err)
	}

	return &entity, nil
}

// Save inserts or updates an entity
func (r *BaseRepository[T, F]) Save(ctx context.Context, entity *T) error {
	db := r.getDB(ctx)

	if err := db.Save(entity).Error; err != nil {
		return fmt.Errorf("failed to save entity: %w", err)
	}

	return nil
}

// SaveBatch inserts multiple entities in a single transaction
func (r *BaseRepository[T, F]) SaveBatch(ctx context.Context, entities []*T) error {
	if len(entities) == 0 {
		return nil
	}

	return WithTransaction(ctx, r.DB, func(txCtx context.Context) error {
		db := r.getDB(txCtx)
		if err := db.CreateInBatches(entities, 100).Error; err != nil {
			return fmt.Errorf("failed to save batch entities: %w", err)
		}
		return nil
	})
}

// WithTransaction executes a function within a database transaction
func WithTransaction(ctx context.Context, db *gorm.DB, fn func(context.Context) error) error {
	if tx, ok := ctx.Value(TxContextKey).(*gorm.DB); ok && tx != nil {
		return fn(ctx)
	}

	return db.WithContext(ctx).Transaction(func(tx *gorm.DB) error {
		txCtx := context.WithValue(ctx, TxContextKey, tx)
		return fn(txCtx)
	})
}

// WithStatementTimeout runs fn in a transaction whose statements the server cancels after
// timeout. On backends other than PostgreSQL only the context deadline applies.
func WithStatementTimeout(ctx context.Context, db *gorm.DB, timeout time.Duration, fn func(tx *gorm.DB) error) error {
	err := db.WithContext(ctx).Transaction(func(tx *gorm.DB) error {
		if timeout > 0 && tx.Dialector.Name() == "postgres" {
			// SET does not accept bind parameters; the value is an integer we format ourselves
			stmt := fmt.Sprintf("SET LOCAL statement_timeout = %d", timeout.Milliseconds())
			if err := tx.Exec(stmt).Error; err != nil {
				return err
			}
		}
		return fn(tx)
	})
	return mapDBError(err)
}

// mapDBError folds server-side cancellations and expired deadlines into ErrStatementTimeout.
func mapDBError(err error) error {
	if err == nil {
		return nil
	}
	var pgErr *pgconn.PgError
	if errors.As(err, &pgErr) && pgErr.Code == pgQueryCanceled {
		return fmt.Errorf("%w: %s", ErrStatementTimeout, pgErr.Message)
	}
	if errors.Is(err, context.DeadlineExceeded) {
		return fmt.Errorf("%w: %v", ErrStatementTimeout, err)
	}
	return err
}
