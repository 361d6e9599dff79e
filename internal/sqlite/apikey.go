package sqlite

import (
	"context"
	"crypto/sha256"
	"database/sql"
	"encoding/hex"
	"errors"
	"fmt"
	"strings"

	"github.com/rpggio/fundflow/internal/repository"
)

// APIKeys stores hashed bearer tokens and the identities they act as.
type APIKeys struct {
	db *DB
}

// NewAPIKeys creates an APIKeys store.
func NewAPIKeys(db *DB) *APIKeys {
	return &APIKeys{db: db}
}

// Add registers token for identity. Only the token's hash is stored.
func (k *APIKeys) Add(ctx context.Context, token, identity, description string) error {
	token = strings.TrimSpace(token)
	identity = strings.TrimSpace(identity)
	if token == "" || identity == "" {
		return fmt.Errorf("token and identity are required")
	}

	_, err := k.db.ExecContext(ctx, `
		INSERT INTO api_keys (key_hash, identity, description)
		VALUES (?, ?, ?)
	`, HashToken(token), identity, description)
	if err != nil {
		if isUniqueViolation(err) {
			return repository.ErrConflict
		}
		return fmt.Errorf("failed to add api key: %w", err)
	}
	return nil
}

// ResolveIdentity returns the identity bound to token and records its use.
func (k *APIKeys) ResolveIdentity(ctx context.Context, token string) (string, error) {
	hash := HashToken(token)

	var identity string
	err := k.db.QueryRowContext(ctx, `SELECT identity FROM api_keys WHERE key_hash = ?`, hash).Scan(&identity)
	if errors.Is(err, sql.ErrNoRows) || (err == nil && identity == "") {
		return "", repository.ErrNotFound
	}
	if err != nil {
		return "", fmt.Errorf("failed to resolve api key: %w", err)
	}

	if _, err := k.db.ExecContext(ctx, `UPDATE api_keys SET last_used = CURRENT_TIMESTAMP WHERE key_hash = ?`, hash); err != nil {
		return "", fmt.Errorf("failed to touch api key: %w", err)
	}
	return identity, nil
}

// HashToken returns the hex SHA-256 of a bearer token.
func HashToken(token string) string {
	sum := sha256.Sum256([]byte(token))
	return hex.EncodeToString(sum[:])
}
