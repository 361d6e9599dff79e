package project

import (
	"context"
	"fmt"

	"github.com/rpggio/fundflow/internal/domain/event"
	"github.com/rpggio/fundflow/internal/domain/fee"
)

// GetProject returns a project by ID.
func (e *Engine) GetProject(ctx context.Context, id string) (*Project, error) {
	return e.loadProject(ctx, e.repo, id)
}

// ListProjects returns projects matching opts, newest first.
func (e *Engine) ListProjects(ctx context.Context, opts ListOptions) ([]Project, error) {
	projects, err := e.repo.ListProjects(ctx, opts)
	if err != nil {
		return nil, fmt.Errorf("listing projects: %w", err)
	}
	return projects, nil
}

// GetPackage returns a package by ID.
func (e *Engine) GetPackage(ctx context.Context, id string) (*Package, error) {
	return e.loadPackage(ctx, e.repo, id)
}

// ListPackages returns the packages of a project in creation order.
func (e *Engine) ListPackages(ctx context.Context, projectID string) ([]Package, error) {
	if _, err := e.loadProject(ctx, e.repo, projectID); err != nil {
		return nil, err
	}
	packages, err := e.repo.ListPackages(ctx, projectID)
	if err != nil {
		return nil, fmt.Errorf("listing packages: %w", err)
	}
	return packages, nil
}

// ListEvents returns committed events in sequence order.
func (e *Engine) ListEvents(ctx context.Context, opts event.ListOptions) ([]event.Event, error) {
	events, err := e.repo.ListEvents(ctx, opts)
	if err != nil {
		return nil, fmt.Errorf("listing events: %w", err)
	}
	return events, nil
}

// Fees returns the treasury fee parameters.
func (e *Engine) Fees() fee.Config {
	return e.fees.Config()
}
