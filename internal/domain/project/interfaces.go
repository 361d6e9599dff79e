package project

import (
	"context"

	"github.com/rpggio/fundflow/internal/domain/event"
)

// Store persists projects, packages, collaborators and the event log.
// Reserve and Release methods must check and update in one step and fail
// with repository.ErrCapacityExceeded when the bound would be crossed.
type Store interface {
	CreateProject(ctx context.Context, proj *Project) error
	GetProject(ctx context.Context, id string) (*Project, error)
	ListProjects(ctx context.Context, opts ListOptions) ([]Project, error)
	UpdateProject(ctx context.Context, proj *Project) error
	ReserveProjectBudget(ctx context.Context, projectID string, amount uint64) error
	ReleaseProjectBudget(ctx context.Context, projectID string, amount uint64) error

	CreatePackage(ctx context.Context, pkg *Package) error
	GetPackage(ctx context.Context, id string) (*Package, error)
	ListPackages(ctx context.Context, projectID string) ([]Package, error)
	UpdatePackage(ctx context.Context, pkg *Package) error
	ReservePackageBudget(ctx context.Context, packageID string, amount uint64) error
	ReleasePackageBudget(ctx context.Context, packageID string, amount uint64) error

	AddCollaborator(ctx context.Context, c *Collaborator) error
	GetCollaborator(ctx context.Context, packageID, identity string) (*Collaborator, error)
	RemoveCollaborator(ctx context.Context, packageID, identity string) error
	ListCollaborators(ctx context.Context, packageID string) ([]Collaborator, error)

	AppendEvent(ctx context.Context, evt *event.Event) error
	ListEvents(ctx context.Context, opts event.ListOptions) ([]event.Event, error)

	GetAuthority(ctx context.Context) (string, error)
	SetAuthority(ctx context.Context, identity string) error
}

// Repository is a Store that can run a unit of work atomically.
type Repository interface {
	Store
	WithinTx(ctx context.Context, fn func(ctx context.Context, tx Store) error) error
}

// TokenLedger moves fungible tokens between accounts.
type TokenLedger interface {
	TransferFrom(ctx context.Context, token, owner, spender, to string, amount uint64) error
	Transfer(ctx context.Context, token, from, to string, amount uint64) error
}

// TokenProvisioner mints a dedicated token for a project into engine custody.
type TokenProvisioner interface {
	MintProjectToken(ctx context.Context, projectID string, supply uint64) (string, error)
}

// Recorder observes engine operations.
type Recorder interface {
	ObserveOperation(op string, err error, seconds float64)
}
