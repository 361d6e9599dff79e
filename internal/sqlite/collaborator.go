package sqlite

import (
	"context"
	"database/sql"
	"errors"
	"fmt"

	"github.com/rpggio/fundflow/internal/domain/project"
	"github.com/rpggio/fundflow/internal/repository"
)

// AddCollaborator registers an identity on a package.
func (s *Store) AddCollaborator(ctx context.Context, c *project.Collaborator) error {
	_, err := s.q.ExecContext(ctx, `
		INSERT INTO collaborators (package_id, identity, share, added_at)
		VALUES (?, ?, ?, ?)
	`, c.PackageID, c.Identity, c.Share, c.AddedAt.UTC())
	if err != nil {
		if isUniqueViolation(err) {
			return repository.ErrConflict
		}
		if isForeignKeyViolation(err) {
			return repository.ErrForeignKeyViolation
		}
		return fmt.Errorf("failed to add collaborator: %w", err)
	}
	return nil
}

// GetCollaborator retrieves one collaborator of a package.
func (s *Store) GetCollaborator(ctx context.Context, packageID, identity string) (*project.Collaborator, error) {
	var c project.Collaborator
	err := s.q.QueryRowContext(ctx, `
		SELECT package_id, identity, share, added_at
		FROM collaborators
		WHERE package_id = ? AND identity = ?
	`, packageID, identity).Scan(&c.PackageID, &c.Identity, &c.Share, &c.AddedAt)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, repository.ErrNotFound
	}
	if err != nil {
		return nil, fmt.Errorf("failed to get collaborator: %w", err)
	}
	c.AddedAt = c.AddedAt.UTC()
	return &c, nil
}

// RemoveCollaborator deletes a collaborator from a package.
func (s *Store) RemoveCollaborator(ctx context.Context, packageID, identity string) error {
	result, err := s.q.ExecContext(ctx, `DELETE FROM collaborators WHERE package_id = ? AND identity = ?`, packageID, identity)
	if err != nil {
		return fmt.Errorf("failed to remove collaborator: %w", err)
	}
	return expectOneRow(result)
}

// ListCollaborators returns a package's collaborators in registration order.
func (s *Store) ListCollaborators(ctx context.Context, packageID string) ([]project.Collaborator, error) {
	rows, err := s.q.QueryContext(ctx, `
		SELECT package_id, identity, share, added_at
		FROM collaborators
		WHERE package_id = ?
		ORDER BY added_at ASC, identity ASC
	`, packageID)
	if err != nil {
		return nil, fmt.Errorf("failed to list collaborators: %w", err)
	}
	defer rows.Close()

	var collabs []project.Collaborator
	for rows.Next() {
		var c project.Collaborator
		if err := rows.Scan(&c.PackageID, &c.Identity, &c.Share, &c.AddedAt); err != nil {
			return nil, fmt.Errorf("failed to scan collaborator: %w", err)
		}
		c.AddedAt = c.AddedAt.UTC()
		collabs = append(collabs, c)
	}

	if err = rows.Err(); err != nil {
		return nil, fmt.Errorf("error iterating collaborator rows: %w", err)
	}

	return collabs, nil
}
