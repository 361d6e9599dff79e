package sqlite

import (
	"context"
	"fmt"

	"github.com/rpggio/fundflow/internal/domain/project"
)

// Store implements project.Repository for SQLite.
type Store struct {
	db   *DB
	q    querier
	inTx bool
}

var _ project.Repository = (*Store)(nil)

// NewStore creates a Store backed by db.
func NewStore(db *DB) *Store {
	return &Store{db: db, q: db.DB}
}

// WithinTx runs fn in a transaction. The Store passed to fn is bound to the
// transaction; fn must not use the outer Store, which would wait on the single
// connection. Nested calls join the outer transaction.
func (s *Store) WithinTx(ctx context.Context, fn func(ctx context.Context, tx project.Store) error) error {
	if s.inTx {
		return fn(ctx, s)
	}

	tx, err := s.db.BeginTx(ctx, nil)
	if err != nil {
		return fmt.Errorf("failed to begin transaction: %w", err)
	}
	defer tx.Rollback()

	if err := fn(ctx, &Store{db: s.db, q: tx, inTx: true}); err != nil {
		return err
	}

	if err := tx.Commit(); err != nil {
		return fmt.Errorf("failed to commit transaction: %w", err)
	}
	return nil
}
