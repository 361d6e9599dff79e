package project

import (
	"context"
	"fmt"

	"github.com/google/uuid"
	"github.com/rpggio/fundflow/internal/domain/event"
)

// CreatePackageRequest describes a package carved out of a project budget.
// BonusBudget and ObserverBudget are sub-allocations reserved inside the
// package at creation; together they may not exceed Budget.
type CreatePackageRequest struct {
	ProjectID      string
	Budget         uint64
	BonusBudget    uint64
	ObserverBudget uint64
}

// CreatePackage reserves budget from a started project and records a package.
//
// Checks run in a fixed order: caller, project existence, project state,
// amounts, then capacity.
func (e *Engine) CreatePackage(ctx context.Context, caller string, req CreatePackageRequest) (_ *Package, err error) {
	ctx, done := e.observe(ctx, "create_package")
	defer func() { done(err) }()

	unlock := e.locks.Lock(req.ProjectID)
	defer unlock()

	proj, err := e.authorizeInitiator(ctx, caller, req.ProjectID)
	if err != nil {
		return nil, err
	}
	if err := requireStarted(proj); err != nil {
		return nil, err
	}

	if err := validateAmount(req.Budget); err != nil {
		return nil, err
	}
	if req.BonusBudget > MaxAmount || req.ObserverBudget > MaxAmount {
		return nil, ErrInvalidAmount
	}

	projectLedger := proj.Ledger()
	if err := projectLedger.Reserve(req.Budget); err != nil {
		return nil, err
	}
	subAllocated := req.BonusBudget + req.ObserverBudget
	packageLedger := Ledger{Budget: req.Budget}
	if subAllocated > 0 {
		if err := packageLedger.Reserve(subAllocated); err != nil {
			return nil, err
		}
	}

	pkg := &Package{
		ID:              uuid.NewString(),
		ProjectID:       proj.ID,
		State:           PackageOpen,
		Budget:          req.Budget,
		BonusBudget:     req.BonusBudget,
		ObserverBudget:  req.ObserverBudget,
		BudgetAllocated: packageLedger.Allocated,
		TimeCreated:     e.timestamp(proj.TimeStarted),
	}

	err = e.commit(ctx, func(ctx context.Context, tx Store) (*change, error) {
		if err := tx.ReserveProjectBudget(ctx, proj.ID, pkg.Budget); err != nil {
			return nil, capacityError(err, "reserving project budget")
		}
		if err := tx.CreatePackage(ctx, pkg); err != nil {
			return nil, fmt.Errorf("creating package: %w", err)
		}
		ch := &change{}
		err := e.emit(ch, event.TypePackageCreated, proj.ID, pkg.ID, event.PackageCreated{
			ID:             pkg.ID,
			ProjectID:      proj.ID,
			Budget:         pkg.Budget,
			BonusBudget:    pkg.BonusBudget,
			ObserverBudget: pkg.ObserverBudget,
			At:             pkg.TimeCreated,
		})
		return ch, err
	})
	if err != nil {
		return nil, err
	}

	e.logger.Info("package created", "project_id", proj.ID, "package_id", pkg.ID, "budget", pkg.Budget)
	return pkg, nil
}

// FinishPackage closes an open package. Its budget stays allocated.
func (e *Engine) FinishPackage(ctx context.Context, caller, packageID string) (_ *Package, err error) {
	ctx, done := e.observe(ctx, "finish_package")
	defer func() { done(err) }()

	pkg, unlock, err := e.lockOpenPackage(ctx, caller, packageID)
	if err != nil {
		return nil, err
	}
	defer unlock()

	pkg.State = PackageFinished
	pkg.TimeClosed = e.timestamp(pkg.TimeCreated)

	err = e.commit(ctx, func(ctx context.Context, tx Store) (*change, error) {
		if err := tx.UpdatePackage(ctx, pkg); err != nil {
			return nil, fmt.Errorf("finishing package: %w", err)
		}
		ch := &change{}
		err := e.emit(ch, event.TypePackageFinished, pkg.ProjectID, pkg.ID, event.PackageFinished{
			ID:        pkg.ID,
			ProjectID: pkg.ProjectID,
			At:        pkg.TimeClosed,
		})
		return ch, err
	})
	if err != nil {
		return nil, err
	}

	e.logger.Info("package finished", "project_id", pkg.ProjectID, "package_id", pkg.ID)
	return pkg, nil
}

// CancelPackage closes an open package without collaborators and returns
// its budget to the project.
func (e *Engine) CancelPackage(ctx context.Context, caller, packageID string) (_ *Package, err error) {
	ctx, done := e.observe(ctx, "cancel_package")
	defer func() { done(err) }()

	pkg, unlock, err := e.lockOpenPackage(ctx, caller, packageID)
	if err != nil {
		return nil, err
	}
	defer unlock()

	if pkg.Collaborators > 0 {
		return nil, ErrCollaboratorsExist
	}

	pkg.State = PackageCancelled
	pkg.TimeClosed = e.timestamp(pkg.TimeCreated)

	err = e.commit(ctx, func(ctx context.Context, tx Store) (*change, error) {
		if err := tx.UpdatePackage(ctx, pkg); err != nil {
			return nil, fmt.Errorf("cancelling package: %w", err)
		}
		if err := tx.ReleaseProjectBudget(ctx, pkg.ProjectID, pkg.Budget); err != nil {
			return nil, capacityError(err, "releasing project budget")
		}
		ch := &change{}
		err := e.emit(ch, event.TypePackageCancelled, pkg.ProjectID, pkg.ID, event.PackageCancelled{
			ID:        pkg.ID,
			ProjectID: pkg.ProjectID,
			Budget:    pkg.Budget,
			At:        pkg.TimeClosed,
		})
		return ch, err
	})
	if err != nil {
		return nil, err
	}

	e.logger.Info("package cancelled", "project_id", pkg.ProjectID, "package_id", pkg.ID, "released", pkg.Budget)
	return pkg, nil
}

// lockOpenPackage locks the parent project and returns the package once the
// caller is confirmed as initiator, the project is started and the package
// is still open. The returned func releases the lock.
func (e *Engine) lockOpenPackage(ctx context.Context, caller, packageID string) (*Package, func(), error) {
	if caller == "" {
		return nil, nil, ErrNotAuthorized
	}
	pkg, err := e.loadPackage(ctx, e.repo, packageID)
	if err != nil {
		return nil, nil, err
	}

	unlock := e.locks.Lock(pkg.ProjectID)
	fail := func(err error) (*Package, func(), error) {
		unlock()
		return nil, nil, err
	}

	// Reload under the project lock.
	pkg, err = e.loadPackage(ctx, e.repo, packageID)
	if err != nil {
		return fail(err)
	}
	proj, err := e.authorizeInitiator(ctx, caller, pkg.ProjectID)
	if err != nil {
		return fail(err)
	}
	if err := requireStarted(proj); err != nil {
		return fail(err)
	}
	if !pkg.Open() {
		return fail(ErrPackageClosed)
	}
	return pkg, unlock, nil
}
