package sqlite

import (
	"context"
	"database/sql"
	"errors"
	"fmt"

	"github.com/rpggio/fundflow/internal/repository"
)

const authorityKey = "authority"

// GetAuthority returns the persisted governing authority.
func (s *Store) GetAuthority(ctx context.Context) (string, error) {
	var identity string
	err := s.q.QueryRowContext(ctx, `SELECT value FROM settings WHERE key = ?`, authorityKey).Scan(&identity)
	if errors.Is(err, sql.ErrNoRows) {
		return "", repository.ErrNotFound
	}
	if err != nil {
		return "", fmt.Errorf("failed to get authority: %w", err)
	}
	return identity, nil
}

// SetAuthority persists the governing authority.
func (s *Store) SetAuthority(ctx context.Context, identity string) error {
	_, err := s.q.ExecContext(ctx, `
		INSERT INTO settings (key, value, updated_at) VALUES (?, ?, CURRENT_TIMESTAMP)
		ON CONFLICT(key) DO UPDATE SET value = excluded.value, updated_at = excluded.updated_at
	`, authorityKey, identity)
	if err != nil {
		return fmt.Errorf("failed to set authority: %w", err)
	}
	return nil
}
