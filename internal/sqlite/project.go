package sqlite

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"strings"

	"github.com/rpggio/fundflow/internal/domain/project"
	"github.com/rpggio/fundflow/internal/repository"
)

const projectColumns = `id, initiator, token, is_own_token, state, budget, net_budget, fee, budget_allocated,
	time_created, time_approved, time_started, time_finished`

// CreateProject inserts a new project.
func (s *Store) CreateProject(ctx context.Context, proj *project.Project) error {
	query := `
		INSERT INTO projects (` + projectColumns + `)
		VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?)
	`

	_, err := s.q.ExecContext(ctx, query,
		proj.ID,
		proj.Initiator,
		proj.Token,
		proj.IsOwnToken,
		string(proj.State),
		proj.Budget,
		proj.NetBudget,
		proj.Fee,
		proj.BudgetAllocated,
		proj.TimeCreated.UTC(),
		nullTime(proj.TimeApproved),
		nullTime(proj.TimeStarted),
		nullTime(proj.TimeFinished),
	)
	if err != nil {
		if isUniqueViolation(err) {
			return repository.ErrConflict
		}
		return fmt.Errorf("failed to create project: %w", err)
	}

	return nil
}

// GetProject retrieves a project by ID.
func (s *Store) GetProject(ctx context.Context, id string) (*project.Project, error) {
	query := `SELECT ` + projectColumns + ` FROM projects WHERE id = ?`

	proj, err := scanProject(s.q.QueryRowContext(ctx, query, id))
	if errors.Is(err, sql.ErrNoRows) {
		return nil, repository.ErrNotFound
	}
	if err != nil {
		return nil, fmt.Errorf("failed to get project: %w", err)
	}

	return proj, nil
}

// ListProjects returns projects matching opts, newest first.
func (s *Store) ListProjects(ctx context.Context, opts project.ListOptions) ([]project.Project, error) {
	var (
		where []string
		args  []any
	)
	if opts.Initiator != "" {
		where = append(where, "initiator = ?")
		args = append(args, opts.Initiator)
	}
	if opts.State != "" {
		where = append(where, "state = ?")
		args = append(args, string(opts.State))
	}

	query := `SELECT ` + projectColumns + ` FROM projects`
	if len(where) > 0 {
		query += " WHERE " + strings.Join(where, " AND ")
	}
	query += " ORDER BY time_created DESC, id LIMIT ? OFFSET ?"
	args = append(args, limitOrAll(opts.Limit), max(opts.Offset, 0))

	rows, err := s.q.QueryContext(ctx, query, args...)
	if err != nil {
		return nil, fmt.Errorf("failed to list projects: %w", err)
	}
	defer rows.Close()

	var projects []project.Project
	for rows.Next() {
		proj, err := scanProject(rows)
		if err != nil {
			return nil, fmt.Errorf("failed to scan project: %w", err)
		}
		projects = append(projects, *proj)
	}

	if err = rows.Err(); err != nil {
		return nil, fmt.Errorf("error iterating project rows: %w", err)
	}

	return projects, nil
}

// UpdateProject writes the lifecycle fields of a project. The allocation
// counter is changed only through Reserve/ReleaseProjectBudget.
func (s *Store) UpdateProject(ctx context.Context, proj *project.Project) error {
	query := `
		UPDATE projects
		SET token = ?, state = ?, net_budget = ?, fee = ?,
			time_approved = ?, time_started = ?, time_finished = ?
		WHERE id = ?
	`

	result, err := s.q.ExecContext(ctx, query,
		proj.Token,
		string(proj.State),
		proj.NetBudget,
		proj.Fee,
		nullTime(proj.TimeApproved),
		nullTime(proj.TimeStarted),
		nullTime(proj.TimeFinished),
		proj.ID,
	)
	if err != nil {
		return fmt.Errorf("failed to update project: %w", err)
	}

	return expectOneRow(result)
}

// ReserveProjectBudget adds amount to the project's allocation if it still
// fits within the net budget.
func (s *Store) ReserveProjectBudget(ctx context.Context, projectID string, amount uint64) error {
	query := `
		UPDATE projects
		SET budget_allocated = budget_allocated + ?
		WHERE id = ? AND budget_allocated + ? <= net_budget
	`
	result, err := s.q.ExecContext(ctx, query, amount, projectID, amount)
	if err != nil {
		return fmt.Errorf("failed to reserve project budget: %w", err)
	}
	return s.capacityResult(ctx, result, "projects", projectID)
}

// ReleaseProjectBudget subtracts amount from the project's allocation.
func (s *Store) ReleaseProjectBudget(ctx context.Context, projectID string, amount uint64) error {
	query := `
		UPDATE projects
		SET budget_allocated = budget_allocated - ?
		WHERE id = ? AND budget_allocated >= ?
	`
	result, err := s.q.ExecContext(ctx, query, amount, projectID, amount)
	if err != nil {
		return fmt.Errorf("failed to release project budget: %w", err)
	}
	return s.capacityResult(ctx, result, "projects", projectID)
}

type scanner interface {
	Scan(dest ...any) error
}

func scanProject(row scanner) (*project.Project, error) {
	var (
		proj                        project.Project
		state                       string
		approved, started, finished sql.NullTime
	)
	err := row.Scan(
		&proj.ID,
		&proj.Initiator,
		&proj.Token,
		&proj.IsOwnToken,
		&state,
		&proj.Budget,
		&proj.NetBudget,
		&proj.Fee,
		&proj.BudgetAllocated,
		&proj.TimeCreated,
		&approved,
		&started,
		&finished,
	)
	if err != nil {
		return nil, err
	}
	proj.State = project.State(state)
	proj.TimeCreated = proj.TimeCreated.UTC()
	proj.TimeApproved = timeOrZero(approved)
	proj.TimeStarted = timeOrZero(started)
	proj.TimeFinished = timeOrZero(finished)
	return &proj, nil
}

func expectOneRow(result sql.Result) error {
	rowsAffected, err := result.RowsAffected()
	if err != nil {
		return fmt.Errorf("failed to get rows affected: %w", err)
	}
	if rowsAffected == 0 {
		return repository.ErrNotFound
	}
	return nil
}

// capacityResult distinguishes a missing row from a failed bound check after
// a conditional allocation update.
func (s *Store) capacityResult(ctx context.Context, result sql.Result, table, id string) error {
	rowsAffected, err := result.RowsAffected()
	if err != nil {
		return fmt.Errorf("failed to get rows affected: %w", err)
	}
	if rowsAffected > 0 {
		return nil
	}

	var exists int
	if err := s.q.QueryRowContext(ctx, `SELECT COUNT(*) FROM `+table+` WHERE id = ?`, id).Scan(&exists); err != nil {
		return fmt.Errorf("failed to check %s: %w", table, err)
	}
	if exists == 0 {
		return repository.ErrNotFound
	}
	return repository.ErrCapacityExceeded
}
