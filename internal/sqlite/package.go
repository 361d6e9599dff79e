package sqlite

import (
	"context"
	"database/sql"
	"errors"
	"fmt"

	"github.com/rpggio/fundflow/internal/domain/project"
	"github.com/rpggio/fundflow/internal/repository"
)

const packageSelect = `
	SELECT p.id, p.project_id, p.state, p.budget, p.bonus_budget, p.observer_budget, p.budget_allocated,
		(SELECT COUNT(*) FROM collaborators c WHERE c.package_id = p.id),
		p.time_created, p.time_closed
	FROM packages p
`

// CreatePackage inserts a new package.
func (s *Store) CreatePackage(ctx context.Context, pkg *project.Package) error {
	query := `
		INSERT INTO packages (id, project_id, state, budget, bonus_budget, observer_budget, budget_allocated, time_created, time_closed)
		VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?)
	`

	_, err := s.q.ExecContext(ctx, query,
		pkg.ID,
		pkg.ProjectID,
		string(pkg.State),
		pkg.Budget,
		pkg.BonusBudget,
		pkg.ObserverBudget,
		pkg.BudgetAllocated,
		pkg.TimeCreated.UTC(),
		nullTime(pkg.TimeClosed),
	)
	if err != nil {
		if isForeignKeyViolation(err) {
			return repository.ErrForeignKeyViolation
		}
		if isUniqueViolation(err) {
			return repository.ErrConflict
		}
		return fmt.Errorf("failed to create package: %w", err)
	}

	return nil
}

// GetPackage retrieves a package by ID.
func (s *Store) GetPackage(ctx context.Context, id string) (*project.Package, error) {
	pkg, err := scanPackage(s.q.QueryRowContext(ctx, packageSelect+` WHERE p.id = ?`, id))
	if errors.Is(err, sql.ErrNoRows) {
		return nil, repository.ErrNotFound
	}
	if err != nil {
		return nil, fmt.Errorf("failed to get package: %w", err)
	}
	return pkg, nil
}

// ListPackages returns the packages of a project in creation order.
func (s *Store) ListPackages(ctx context.Context, projectID string) ([]project.Package, error) {
	rows, err := s.q.QueryContext(ctx, packageSelect+` WHERE p.project_id = ? ORDER BY p.time_created ASC, p.rowid ASC`, projectID)
	if err != nil {
		return nil, fmt.Errorf("failed to list packages: %w", err)
	}
	defer rows.Close()

	var packages []project.Package
	for rows.Next() {
		pkg, err := scanPackage(rows)
		if err != nil {
			return nil, fmt.Errorf("failed to scan package: %w", err)
		}
		packages = append(packages, *pkg)
	}

	if err = rows.Err(); err != nil {
		return nil, fmt.Errorf("error iterating package rows: %w", err)
	}

	return packages, nil
}

// UpdatePackage writes the lifecycle fields of a package.
func (s *Store) UpdatePackage(ctx context.Context, pkg *project.Package) error {
	result, err := s.q.ExecContext(ctx, `
		UPDATE packages
		SET state = ?, time_closed = ?
		WHERE id = ?
	`, string(pkg.State), nullTime(pkg.TimeClosed), pkg.ID)
	if err != nil {
		return fmt.Errorf("failed to update package: %w", err)
	}
	return expectOneRow(result)
}

// ReservePackageBudget adds amount to the package's allocation if it still
// fits within the package budget.
func (s *Store) ReservePackageBudget(ctx context.Context, packageID string, amount uint64) error {
	query := `
		UPDATE packages
		SET budget_allocated = budget_allocated + ?
		WHERE id = ? AND budget_allocated + ? <= budget
	`
	result, err := s.q.ExecContext(ctx, query, amount, packageID, amount)
	if err != nil {
		return fmt.Errorf("failed to reserve package budget: %w", err)
	}
	return s.capacityResult(ctx, result, "packages", packageID)
}

// ReleasePackageBudget subtracts amount from the package's allocation.
func (s *Store) ReleasePackageBudget(ctx context.Context, packageID string, amount uint64) error {
	query := `
		UPDATE packages
		SET budget_allocated = budget_allocated - ?
		WHERE id = ? AND budget_allocated >= ?
	`
	result, err := s.q.ExecContext(ctx, query, amount, packageID, amount)
	if err != nil {
		return fmt.Errorf("failed to release package budget: %w", err)
	}
	return s.capacityResult(ctx, result, "packages", packageID)
}

func scanPackage(row scanner) (*project.Package, error) {
	var (
		pkg    project.Package
		state  string
		closed sql.NullTime
	)
	err := row.Scan(
		&pkg.ID,
		&pkg.ProjectID,
		&state,
		&pkg.Budget,
		&pkg.BonusBudget,
		&pkg.ObserverBudget,
		&pkg.BudgetAllocated,
		&pkg.Collaborators,
		&pkg.TimeCreated,
		&closed,
	)
	if err != nil {
		return nil, err
	}
	pkg.State = project.PackageState(state)
	pkg.TimeCreated = pkg.TimeCreated.UTC()
	pkg.TimeClosed = timeOrZero(closed)
	return &pkg, nil
}
