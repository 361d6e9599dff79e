package project

import (
	"context"
	"errors"
	"fmt"
	"strings"

	"github.com/rpggio/fundflow/internal/domain/event"
	"github.com/rpggio/fundflow/internal/repository"
)

// AddCollaboratorRequest registers an identity against a package.
type AddCollaboratorRequest struct {
	PackageID string
	Identity  string
	Share     uint64
}

// AddCollaborator reserves a share of an open package for an identity.
func (e *Engine) AddCollaborator(ctx context.Context, caller string, req AddCollaboratorRequest) (_ *Collaborator, err error) {
	ctx, done := e.observe(ctx, "add_collaborator")
	defer func() { done(err) }()

	pkg, unlock, err := e.lockOpenPackage(ctx, caller, req.PackageID)
	if err != nil {
		return nil, err
	}
	defer unlock()

	identity := strings.TrimSpace(req.Identity)
	if identity == "" {
		return nil, ErrInvalidInput
	}
	if err := validateAmount(req.Share); err != nil {
		return nil, err
	}

	if _, err := e.repo.GetCollaborator(ctx, pkg.ID, identity); err == nil {
		return nil, ErrCollaboratorExists
	} else if !errors.Is(err, repository.ErrNotFound) {
		return nil, fmt.Errorf("loading collaborator: %w", err)
	}

	ledger := pkg.Ledger()
	if err := ledger.Reserve(req.Share); err != nil {
		return nil, err
	}

	collab := &Collaborator{
		PackageID: pkg.ID,
		Identity:  identity,
		Share:     req.Share,
		AddedAt:   e.timestamp(pkg.TimeCreated),
	}

	err = e.commit(ctx, func(ctx context.Context, tx Store) (*change, error) {
		if err := tx.ReservePackageBudget(ctx, pkg.ID, collab.Share); err != nil {
			return nil, capacityError(err, "reserving package budget")
		}
		if err := tx.AddCollaborator(ctx, collab); err != nil {
			if errors.Is(err, repository.ErrConflict) {
				return nil, ErrCollaboratorExists
			}
			return nil, fmt.Errorf("adding collaborator: %w", err)
		}
		ch := &change{}
		err := e.emit(ch, event.TypeCollaboratorAdded, pkg.ProjectID, pkg.ID, event.CollaboratorAdded{
			PackageID: pkg.ID,
			ProjectID: pkg.ProjectID,
			Identity:  collab.Identity,
			Share:     collab.Share,
			At:        collab.AddedAt,
		})
		return ch, err
	})
	if err != nil {
		return nil, err
	}

	e.logger.Info("collaborator added", "package_id", pkg.ID, "identity", identity, "share", collab.Share)
	return collab, nil
}

// RemoveCollaborator releases a collaborator's share back to the package.
func (e *Engine) RemoveCollaborator(ctx context.Context, caller, packageID, identity string) (err error) {
	ctx, done := e.observe(ctx, "remove_collaborator")
	defer func() { done(err) }()

	pkg, unlock, err := e.lockOpenPackage(ctx, caller, packageID)
	if err != nil {
		return err
	}
	defer unlock()

	collab, err := e.repo.GetCollaborator(ctx, pkg.ID, strings.TrimSpace(identity))
	if err != nil {
		if errors.Is(err, repository.ErrNotFound) {
			return ErrCollaboratorNotFound
		}
		return fmt.Errorf("loading collaborator: %w", err)
	}
	ledger := pkg.Ledger()
	if err := ledger.Release(collab.Share); err != nil {
		return err
	}

	err = e.commit(ctx, func(ctx context.Context, tx Store) (*change, error) {
		if err := tx.RemoveCollaborator(ctx, pkg.ID, collab.Identity); err != nil {
			return nil, fmt.Errorf("removing collaborator: %w", err)
		}
		if err := tx.ReleasePackageBudget(ctx, pkg.ID, collab.Share); err != nil {
			return nil, capacityError(err, "releasing package budget")
		}
		ch := &change{}
		err := e.emit(ch, event.TypeCollaboratorRemoved, pkg.ProjectID, pkg.ID, event.CollaboratorRemoved{
			PackageID: pkg.ID,
			ProjectID: pkg.ProjectID,
			Identity:  collab.Identity,
			Share:     collab.Share,
		})
		return ch, err
	})
	if err != nil {
		return err
	}

	e.logger.Info("collaborator removed", "package_id", pkg.ID, "identity", collab.Identity)
	return nil
}

// ListCollaborators returns the collaborators registered on a package.
func (e *Engine) ListCollaborators(ctx context.Context, packageID string) ([]Collaborator, error) {
	if _, err := e.loadPackage(ctx, e.repo, packageID); err != nil {
		return nil, err
	}
	collabs, err := e.repo.ListCollaborators(ctx, packageID)
	if err != nil {
		return nil, fmt.Errorf("listing collaborators: %w", err)
	}
	return collabs, nil
}
