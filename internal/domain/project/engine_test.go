package project_test

import (
	"context"
	"errors"
	"sync/atomic"
	"testing"

	"github.com/rpggio/fundflow/internal/domain/event"
	"github.com/rpggio/fundflow/internal/domain/project"
	"github.com/rpggio/fundflow/internal/repository/mocks"
	"github.com/rpggio/fundflow/internal/testserver"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/mock"
	"github.com/stretchr/testify/require"
	"golang.org/x/sync/errgroup"
)

func listEvents(t *testing.T, env *testserver.Env) []event.Event {
	t.Helper()
	events, err := env.Engine.ListEvents(context.Background(), event.ListOptions{})
	require.NoError(t, err)
	return events
}

func eventTypes(events []event.Event) []event.Type {
	types := make([]event.Type, 0, len(events))
	for _, evt := range events {
		types = append(types, evt.Type)
	}
	return types
}

func TestCreateProject_OwnToken(t *testing.T) {
	env := testserver.NewEnv(t)
	ctx := context.Background()
	env.Fund(t, "tok", "alice", 1000)

	proj, err := env.Engine.CreateProject(ctx, "alice", project.CreateProjectRequest{Token: "tok", Budget: 100})
	require.NoError(t, err)

	assert.Equal(t, project.StateStarted, proj.State)
	assert.True(t, proj.IsOwnToken)
	assert.Equal(t, uint64(100), proj.Budget)
	assert.Equal(t, uint64(95), proj.NetBudget)
	assert.Equal(t, uint64(5), proj.Fee)
	assert.Equal(t, proj.TimeCreated, proj.TimeApproved)
	assert.Equal(t, proj.TimeCreated, proj.TimeStarted)

	assert.Equal(t, uint64(900), env.Balance(t, "tok", "alice"))
	assert.Equal(t, uint64(95), env.Balance(t, "tok", testserver.Custody))
	assert.Equal(t, uint64(5), env.Balance(t, "tok", testserver.Treasury))

	stored, err := env.Engine.GetProject(ctx, proj.ID)
	require.NoError(t, err)
	assert.Equal(t, project.StateStarted, stored.State)
	assert.Equal(t, uint64(95), stored.NetBudget)

	events := listEvents(t, env)
	require.Equal(t, []event.Type{event.TypeProjectCreated}, eventTypes(events))
	var created event.ProjectCreated
	require.NoError(t, events[0].Decode(&created))
	assert.True(t, created.IsOwnToken)
	assert.Equal(t, proj.ID, created.ID)
	assert.Equal(t, uint64(5), created.Fee)
}

func TestCreateProject_FeeRounding(t *testing.T) {
	env := testserver.NewEnv(t)
	ctx := context.Background()
	env.Fund(t, "tok", "alice", 1000)

	proj, err := env.Engine.CreateProject(ctx, "alice", project.CreateProjectRequest{Token: "tok", Budget: 39})
	require.NoError(t, err)

	assert.Equal(t, uint64(1), proj.Fee)
	assert.Equal(t, uint64(38), proj.NetBudget)
	assert.Equal(t, proj.Budget, proj.NetBudget+proj.Fee)
	assert.Equal(t, uint64(961), env.Balance(t, "tok", "alice"))
	assert.Equal(t, uint64(38), env.Balance(t, "tok", testserver.Custody))
	assert.Equal(t, uint64(1), env.Balance(t, "tok", testserver.Treasury))
}

func TestCreateProject_ZeroBudget(t *testing.T) {
	env := testserver.NewEnv(t)
	ctx := context.Background()
	env.Fund(t, "tok", "alice", 1000)

	_, err := env.Engine.CreateProject(ctx, "alice", project.CreateProjectRequest{Token: "tok", Budget: 0})
	require.ErrorIs(t, err, project.ErrInvalidAmount)

	_, err = env.Engine.CreateProject(ctx, "alice", project.CreateProjectRequest{Budget: project.MaxAmount + 1})
	require.ErrorIs(t, err, project.ErrInvalidAmount)

	projects, err := env.Engine.ListProjects(ctx, project.ListOptions{})
	require.NoError(t, err)
	assert.Empty(t, projects)
	assert.Empty(t, listEvents(t, env))
	assert.Equal(t, uint64(1000), env.Balance(t, "tok", "alice"))
}

func TestCreateProject_EmptyCaller(t *testing.T) {
	env := testserver.NewEnv(t)

	_, err := env.Engine.CreateProject(context.Background(), "", project.CreateProjectRequest{Budget: 0})
	require.ErrorIs(t, err, project.ErrNotAuthorized, "authorization is checked before the amount")
}

func TestCreateProject_InsufficientAllowance(t *testing.T) {
	env := testserver.NewEnv(t)
	ctx := context.Background()
	require.NoError(t, env.Ledger.Issue(ctx, "tok", "alice", 1000))
	require.NoError(t, env.Ledger.Approve(ctx, "tok", "alice", testserver.Custody, 50))

	_, err := env.Engine.CreateProject(ctx, "alice", project.CreateProjectRequest{Token: "tok", Budget: 100})
	require.ErrorIs(t, err, project.ErrTokenTransferFailed)
	assert.Equal(t, project.CodeTokenTransferFailed, project.Code(err))

	projects, err := env.Engine.ListProjects(ctx, project.ListOptions{})
	require.NoError(t, err)
	assert.Empty(t, projects)
	assert.Empty(t, listEvents(t, env))
	assert.Equal(t, uint64(1000), env.Balance(t, "tok", "alice"))
	assert.Equal(t, uint64(0), env.Balance(t, "tok", testserver.Custody))
}

func TestCreateProject_MintedToken(t *testing.T) {
	env := testserver.NewEnv(t)

	proj, err := env.Engine.CreateProject(context.Background(), "alice", project.CreateProjectRequest{Budget: 100})
	require.NoError(t, err)

	assert.Equal(t, project.StateCreated, proj.State)
	assert.False(t, proj.IsOwnToken)
	assert.Empty(t, proj.Token)
	assert.Zero(t, proj.NetBudget)
	assert.True(t, proj.TimeApproved.IsZero())
}

func TestApproveProject(t *testing.T) {
	env := testserver.NewEnv(t)
	ctx := context.Background()

	proj, err := env.Engine.CreateProject(ctx, "alice", project.CreateProjectRequest{Budget: 100})
	require.NoError(t, err)

	_, err = env.Engine.ApproveProject(ctx, "alice", proj.ID)
	require.ErrorIs(t, err, project.ErrNotAuthorized)

	_, err = env.Engine.ApproveProject(ctx, "mallory", "missing")
	require.ErrorIs(t, err, project.ErrNotAuthorized, "authorization is checked before existence")

	_, err = env.Engine.ApproveProject(ctx, testserver.Authority, "missing")
	require.ErrorIs(t, err, project.ErrNotFound)

	approved, err := env.Engine.ApproveProject(ctx, testserver.Authority, proj.ID)
	require.NoError(t, err)
	assert.Equal(t, project.StateApproved, approved.State)
	assert.False(t, approved.TimeApproved.IsZero())
	assert.False(t, approved.TimeApproved.Before(approved.TimeCreated))

	_, err = env.Engine.ApproveProject(ctx, testserver.Authority, proj.ID)
	require.ErrorIs(t, err, project.ErrInvalidState)

	stored, err := env.Engine.GetProject(ctx, proj.ID)
	require.NoError(t, err)
	assert.True(t, stored.TimeApproved.Equal(approved.TimeApproved), "second approval must not move the timestamp")
	assert.Equal(t, []event.Type{event.TypeProjectCreated, event.TypeProjectApproved}, eventTypes(listEvents(t, env)))
}

func TestApproveProject_OwnTokenAlreadyStarted(t *testing.T) {
	env := testserver.NewEnv(t)
	proj := env.StartedProject(t, "alice", 100)

	_, err := env.Engine.ApproveProject(context.Background(), testserver.Authority, proj.ID)
	require.ErrorIs(t, err, project.ErrInvalidState)
}

func TestStartProject(t *testing.T) {
	env := testserver.NewEnv(t)
	ctx := context.Background()

	proj, err := env.Engine.CreateProject(ctx, "alice", project.CreateProjectRequest{Budget: 100})
	require.NoError(t, err)

	_, err = env.Engine.StartProject(ctx, "alice", proj.ID)
	require.ErrorIs(t, err, project.ErrInvalidState, "start before approval")

	_, err = env.Engine.ApproveProject(ctx, testserver.Authority, proj.ID)
	require.NoError(t, err)

	_, err = env.Engine.StartProject(ctx, "bob", proj.ID)
	require.ErrorIs(t, err, project.ErrNotAuthorized)

	_, err = env.Engine.StartProject(ctx, "bob", "missing")
	require.ErrorIs(t, err, project.ErrNotFound)

	started, err := env.Engine.StartProject(ctx, "alice", proj.ID)
	require.NoError(t, err)
	assert.Equal(t, project.StateStarted, started.State)
	assert.NotEmpty(t, started.Token)
	assert.Equal(t, uint64(95), started.NetBudget)
	assert.Equal(t, uint64(5), started.Fee)
	assert.False(t, started.TimeStarted.Before(started.TimeApproved))

	assert.Equal(t, uint64(95), env.Balance(t, started.Token, testserver.Custody))
	assert.Equal(t, uint64(5), env.Balance(t, started.Token, testserver.Treasury))

	_, err = env.Engine.StartProject(ctx, "alice", proj.ID)
	require.ErrorIs(t, err, project.ErrInvalidState)

	var startedEvents []event.ProjectStarted
	for _, evt := range listEvents(t, env) {
		if evt.Type != event.TypeProjectStarted {
			continue
		}
		var payload event.ProjectStarted
		require.NoError(t, evt.Decode(&payload))
		startedEvents = append(startedEvents, payload)
	}
	require.Len(t, startedEvents, 1)
	assert.Equal(t, proj.Budget, startedEvents[0].PaidAmount)
	assert.Equal(t, started.Token, startedEvents[0].Token)
}

func TestStartProject_MintFailure(t *testing.T) {
	provisioner := &mocks.TokenProvisioner{}
	provisioner.On("MintProjectToken", mock.Anything, mock.Anything, uint64(100)).Return("", errors.New("minter offline"))

	env := testserver.NewEnv(t, func(cfg *project.Config) {
		cfg.Provisioner = provisioner
	})
	ctx := context.Background()

	proj, err := env.Engine.CreateProject(ctx, "alice", project.CreateProjectRequest{Budget: 100})
	require.NoError(t, err)
	_, err = env.Engine.ApproveProject(ctx, testserver.Authority, proj.ID)
	require.NoError(t, err)

	_, err = env.Engine.StartProject(ctx, "alice", proj.ID)
	require.ErrorIs(t, err, project.ErrTokenTransferFailed)

	stored, err := env.Engine.GetProject(ctx, proj.ID)
	require.NoError(t, err)
	assert.Equal(t, project.StateApproved, stored.State)
	assert.Empty(t, stored.Token)
	provisioner.AssertExpectations(t)
}

func TestCreateProject_FeeTransferFailureCompensatesEscrow(t *testing.T) {
	tokens := &mocks.TokenLedger{}
	tokens.On("TransferFrom", mock.Anything, "tok", "alice", testserver.Custody, testserver.Custody, uint64(100)).Return(nil).Once()
	tokens.On("Transfer", mock.Anything, "tok", testserver.Custody, testserver.Treasury, uint64(5)).Return(errors.New("treasury frozen")).Once()
	tokens.On("Transfer", mock.Anything, "tok", testserver.Custody, "alice", uint64(100)).Return(nil).Once()

	env := testserver.NewEnv(t, func(cfg *project.Config) {
		cfg.Tokens = tokens
	})
	ctx := context.Background()

	_, err := env.Engine.CreateProject(ctx, "alice", project.CreateProjectRequest{Token: "tok", Budget: 100})
	require.ErrorIs(t, err, project.ErrTokenTransferFailed)

	projects, err := env.Engine.ListProjects(ctx, project.ListOptions{})
	require.NoError(t, err)
	assert.Empty(t, projects)
	assert.Empty(t, listEvents(t, env))
	tokens.AssertExpectations(t)
}

var errCommitFailed = errors.New("disk I/O error")

// flakyRepository fails a commit after its writes succeeded. Each WithinTx
// call consumes one entry of plan; true rolls that transaction back.
type flakyRepository struct {
	project.Repository
	plan []bool
}

func (r *flakyRepository) WithinTx(ctx context.Context, fn func(ctx context.Context, tx project.Store) error) error {
	fail := false
	if len(r.plan) > 0 {
		fail, r.plan = r.plan[0], r.plan[1:]
	}
	return r.Repository.WithinTx(ctx, func(ctx context.Context, tx project.Store) error {
		if err := fn(ctx, tx); err != nil {
			return err
		}
		if fail {
			return errCommitFailed
		}
		return nil
	})
}

func flakyEnv(t *testing.T, opts ...testserver.Option) (*testserver.Env, *flakyRepository) {
	t.Helper()
	repo := &flakyRepository{}
	opts = append(opts, func(cfg *project.Config) {
		repo.Repository = cfg.Repository
		cfg.Repository = repo
	})
	return testserver.NewEnv(t, opts...), repo
}

func TestCreateProject_FailedCommitLeavesOtherEscrowIntact(t *testing.T) {
	env, repo := flakyEnv(t)
	ctx := context.Background()

	env.Fund(t, "tok", "alice", 500)
	require.NoError(t, env.Ledger.Mint(ctx, "tok", "bob", 500))
	require.NoError(t, env.Ledger.Approve(ctx, "tok", "bob", testserver.Custody, 500))

	bobs, err := env.Engine.CreateProject(ctx, "bob", project.CreateProjectRequest{Token: "tok", Budget: 100})
	require.NoError(t, err)
	require.Equal(t, uint64(95), env.Balance(t, "tok", testserver.Custody))

	repo.plan = []bool{true}
	_, err = env.Engine.CreateProject(ctx, "alice", project.CreateProjectRequest{Token: "tok", Budget: 100})
	require.ErrorIs(t, err, errCommitFailed)

	// Custody still backs bob's project exactly; only the paid fee is lost.
	assert.Equal(t, bobs.NetBudget, env.Balance(t, "tok", testserver.Custody))
	assert.Equal(t, uint64(400), env.Balance(t, "tok", "bob"))
	assert.Equal(t, uint64(495), env.Balance(t, "tok", "alice"))
	assert.Equal(t, uint64(10), env.Balance(t, "tok", testserver.Treasury))

	projects, err := env.Engine.ListProjects(ctx, project.ListOptions{})
	require.NoError(t, err)
	require.Len(t, projects, 1)
	assert.Equal(t, bobs.ID, projects[0].ID)
}

type countingProvisioner struct {
	next  project.TokenProvisioner
	calls atomic.Int32
}

func (p *countingProvisioner) MintProjectToken(ctx context.Context, projectID string, supply uint64) (string, error) {
	p.calls.Add(1)
	return p.next.MintProjectToken(ctx, projectID, supply)
}

func TestStartProject_RetryAfterFailedCommitMintsOnce(t *testing.T) {
	provisioner := &countingProvisioner{}
	env, repo := flakyEnv(t, func(cfg *project.Config) {
		provisioner.next = cfg.Provisioner
		cfg.Provisioner = provisioner
	})
	ctx := context.Background()

	proj, err := env.Engine.CreateProject(ctx, "alice", project.CreateProjectRequest{Budget: 100})
	require.NoError(t, err)
	_, err = env.Engine.ApproveProject(ctx, testserver.Authority, proj.ID)
	require.NoError(t, err)

	repo.plan = []bool{false, true}
	_, err = env.Engine.StartProject(ctx, "alice", proj.ID)
	require.ErrorIs(t, err, errCommitFailed)

	stored, err := env.Engine.GetProject(ctx, proj.ID)
	require.NoError(t, err)
	assert.Equal(t, project.StateApproved, stored.State)
	require.NotEmpty(t, stored.Token)

	started, err := env.Engine.StartProject(ctx, "alice", proj.ID)
	require.NoError(t, err)
	assert.Equal(t, project.StateStarted, started.State)
	assert.Equal(t, stored.Token, started.Token)
	assert.Equal(t, int32(1), provisioner.calls.Load())

	assert.Equal(t, uint64(95), env.Balance(t, started.Token, testserver.Custody))
	assert.Equal(t, uint64(5), env.Balance(t, started.Token, testserver.Treasury))

	diffs, err := env.Engine.Verify(ctx)
	require.NoError(t, err)
	assert.Empty(t, diffs)
}

func TestCreatePackage_Capacity(t *testing.T) {
	env := testserver.NewEnv(t)
	ctx := context.Background()
	proj := env.StartedProject(t, "alice", 100)

	pkg, err := env.Engine.CreatePackage(ctx, "alice", project.CreatePackageRequest{ProjectID: proj.ID, Budget: 60})
	require.NoError(t, err)
	assert.Equal(t, project.PackageOpen, pkg.State)
	assert.Equal(t, proj.ID, pkg.ProjectID)

	_, err = env.Engine.CreatePackage(ctx, "alice", project.CreatePackageRequest{ProjectID: proj.ID, Budget: 36})
	require.ErrorIs(t, err, project.ErrInsufficientBudget)

	stored, err := env.Engine.GetProject(ctx, proj.ID)
	require.NoError(t, err)
	assert.Equal(t, uint64(60), stored.BudgetAllocated)

	_, err = env.Engine.CreatePackage(ctx, "alice", project.CreatePackageRequest{ProjectID: proj.ID, Budget: 35})
	require.NoError(t, err)

	stored, err = env.Engine.GetProject(ctx, proj.ID)
	require.NoError(t, err)
	assert.Equal(t, stored.NetBudget, stored.BudgetAllocated)

	packages, err := env.Engine.ListPackages(ctx, proj.ID)
	require.NoError(t, err)
	assert.Len(t, packages, 2)
}

func TestCreatePackage_SubAllocations(t *testing.T) {
	env := testserver.NewEnv(t)
	ctx := context.Background()
	proj := env.StartedProject(t, "alice", 100)

	pkg, err := env.Engine.CreatePackage(ctx, "alice", project.CreatePackageRequest{
		ProjectID: proj.ID, Budget: 50, BonusBudget: 10, ObserverBudget: 5,
	})
	require.NoError(t, err)
	assert.Equal(t, uint64(15), pkg.BudgetAllocated)

	_, err = env.Engine.CreatePackage(ctx, "alice", project.CreatePackageRequest{
		ProjectID: proj.ID, Budget: 10, BonusBudget: 6, ObserverBudget: 5,
	})
	require.ErrorIs(t, err, project.ErrInsufficientBudget)

	stored, err := env.Engine.GetProject(ctx, proj.ID)
	require.NoError(t, err)
	assert.Equal(t, uint64(50), stored.BudgetAllocated)
}

func TestCreatePackage_CheckOrder(t *testing.T) {
	env := testserver.NewEnv(t)
	ctx := context.Background()
	proj := env.StartedProject(t, "alice", 100)

	_, err := env.Engine.CreatePackage(ctx, "", project.CreatePackageRequest{ProjectID: proj.ID, Budget: 0})
	require.ErrorIs(t, err, project.ErrNotAuthorized)

	_, err = env.Engine.CreatePackage(ctx, "bob", project.CreatePackageRequest{ProjectID: "missing", Budget: 0})
	require.ErrorIs(t, err, project.ErrNotFound)

	_, err = env.Engine.CreatePackage(ctx, "bob", project.CreatePackageRequest{ProjectID: proj.ID, Budget: 0})
	require.ErrorIs(t, err, project.ErrNotAuthorized)

	_, err = env.Engine.CreatePackage(ctx, "alice", project.CreatePackageRequest{ProjectID: proj.ID, Budget: 0})
	require.ErrorIs(t, err, project.ErrInvalidAmount)

	created, err := env.Engine.CreateProject(ctx, "alice", project.CreateProjectRequest{Budget: 100})
	require.NoError(t, err)
	_, err = env.Engine.CreatePackage(ctx, "alice", project.CreatePackageRequest{ProjectID: created.ID, Budget: 0})
	require.ErrorIs(t, err, project.ErrInvalidState, "state is checked before the amount")
}

func TestCreatePackage_Concurrent(t *testing.T) {
	env := testserver.NewEnv(t)
	ctx := context.Background()
	proj := env.StartedProject(t, "alice", 100)

	var (
		succeeded atomic.Int32
		rejected  atomic.Int32
		g         errgroup.Group
	)
	for range 20 {
		g.Go(func() error {
			_, err := env.Engine.CreatePackage(ctx, "alice", project.CreatePackageRequest{ProjectID: proj.ID, Budget: 10})
			switch {
			case err == nil:
				succeeded.Add(1)
			case errors.Is(err, project.ErrInsufficientBudget):
				rejected.Add(1)
			default:
				return err
			}
			return nil
		})
	}
	require.NoError(t, g.Wait())

	assert.Equal(t, int32(9), succeeded.Load())
	assert.Equal(t, int32(11), rejected.Load())

	stored, err := env.Engine.GetProject(ctx, proj.ID)
	require.NoError(t, err)
	assert.Equal(t, uint64(90), stored.BudgetAllocated)
}

func TestFinishProject(t *testing.T) {
	env := testserver.NewEnv(t)
	ctx := context.Background()
	proj := env.StartedProject(t, "alice", 100)
	balance := env.Balance(t, proj.Token, "alice")

	pkg, err := env.Engine.CreatePackage(ctx, "alice", project.CreatePackageRequest{ProjectID: proj.ID, Budget: 60})
	require.NoError(t, err)

	_, err = env.Engine.FinishProject(ctx, "alice", proj.ID)
	require.ErrorIs(t, err, project.ErrOpenPackagesExist)

	_, err = env.Engine.FinishProject(ctx, "bob", proj.ID)
	require.ErrorIs(t, err, project.ErrNotAuthorized)

	_, err = env.Engine.FinishPackage(ctx, "alice", pkg.ID)
	require.NoError(t, err)

	finished, err := env.Engine.FinishProject(ctx, "alice", proj.ID)
	require.NoError(t, err)
	assert.Equal(t, project.StateFinished, finished.State)
	assert.Equal(t, balance+35, env.Balance(t, proj.Token, "alice"))
	assert.Equal(t, uint64(60), env.Balance(t, proj.Token, testserver.Custody))

	_, err = env.Engine.FinishProject(ctx, "alice", proj.ID)
	require.ErrorIs(t, err, project.ErrInvalidState)

	_, err = env.Engine.CreatePackage(ctx, "alice", project.CreatePackageRequest{ProjectID: proj.ID, Budget: 1})
	require.ErrorIs(t, err, project.ErrProjectFinished)
}

func TestFinishProject_NotStarted(t *testing.T) {
	env := testserver.NewEnv(t)
	ctx := context.Background()

	proj, err := env.Engine.CreateProject(ctx, "alice", project.CreateProjectRequest{Budget: 100})
	require.NoError(t, err)

	_, err = env.Engine.FinishProject(ctx, "alice", proj.ID)
	require.ErrorIs(t, err, project.ErrProjectNotStarted)
}

func TestCancelPackage(t *testing.T) {
	env := testserver.NewEnv(t)
	ctx := context.Background()
	proj := env.StartedProject(t, "alice", 100)

	pkg, err := env.Engine.CreatePackage(ctx, "alice", project.CreatePackageRequest{ProjectID: proj.ID, Budget: 60})
	require.NoError(t, err)

	_, err = env.Engine.AddCollaborator(ctx, "alice", project.AddCollaboratorRequest{PackageID: pkg.ID, Identity: "carol", Share: 10})
	require.NoError(t, err)

	_, err = env.Engine.CancelPackage(ctx, "alice", pkg.ID)
	require.ErrorIs(t, err, project.ErrCollaboratorsExist)

	require.NoError(t, env.Engine.RemoveCollaborator(ctx, "alice", pkg.ID, "carol"))

	cancelled, err := env.Engine.CancelPackage(ctx, "alice", pkg.ID)
	require.NoError(t, err)
	assert.Equal(t, project.PackageCancelled, cancelled.State)
	assert.False(t, cancelled.TimeClosed.IsZero())

	stored, err := env.Engine.GetProject(ctx, proj.ID)
	require.NoError(t, err)
	assert.Zero(t, stored.BudgetAllocated)

	_, err = env.Engine.CancelPackage(ctx, "alice", pkg.ID)
	require.ErrorIs(t, err, project.ErrPackageClosed)

	_, err = env.Engine.FinishPackage(ctx, "alice", "missing")
	require.ErrorIs(t, err, project.ErrNotFound)
}

func TestCollaborators(t *testing.T) {
	env := testserver.NewEnv(t)
	ctx := context.Background()
	proj := env.StartedProject(t, "alice", 100)

	pkg, err := env.Engine.CreatePackage(ctx, "alice", project.CreatePackageRequest{ProjectID: proj.ID, Budget: 50, BonusBudget: 10})
	require.NoError(t, err)

	_, err = env.Engine.AddCollaborator(ctx, "bob", project.AddCollaboratorRequest{PackageID: pkg.ID, Identity: "carol", Share: 10})
	require.ErrorIs(t, err, project.ErrNotAuthorized)

	_, err = env.Engine.AddCollaborator(ctx, "alice", project.AddCollaboratorRequest{PackageID: pkg.ID, Identity: " ", Share: 10})
	require.ErrorIs(t, err, project.ErrInvalidInput)

	_, err = env.Engine.AddCollaborator(ctx, "alice", project.AddCollaboratorRequest{PackageID: pkg.ID, Identity: "carol", Share: 0})
	require.ErrorIs(t, err, project.ErrInvalidAmount)

	collab, err := env.Engine.AddCollaborator(ctx, "alice", project.AddCollaboratorRequest{PackageID: pkg.ID, Identity: "carol", Share: 25})
	require.NoError(t, err)
	assert.Equal(t, "carol", collab.Identity)

	_, err = env.Engine.AddCollaborator(ctx, "alice", project.AddCollaboratorRequest{PackageID: pkg.ID, Identity: "carol", Share: 1})
	require.ErrorIs(t, err, project.ErrCollaboratorExists)

	_, err = env.Engine.AddCollaborator(ctx, "alice", project.AddCollaboratorRequest{PackageID: pkg.ID, Identity: "dave", Share: 16})
	require.ErrorIs(t, err, project.ErrInsufficientBudget)

	_, err = env.Engine.AddCollaborator(ctx, "alice", project.AddCollaboratorRequest{PackageID: pkg.ID, Identity: "dave", Share: 15})
	require.NoError(t, err)

	stored, err := env.Engine.GetPackage(ctx, pkg.ID)
	require.NoError(t, err)
	assert.Equal(t, uint64(50), stored.BudgetAllocated)
	assert.Equal(t, 2, stored.Collaborators)

	collabs, err := env.Engine.ListCollaborators(ctx, pkg.ID)
	require.NoError(t, err)
	assert.Len(t, collabs, 2)

	require.NoError(t, env.Engine.RemoveCollaborator(ctx, "alice", pkg.ID, "carol"))
	err = env.Engine.RemoveCollaborator(ctx, "alice", pkg.ID, "carol")
	require.ErrorIs(t, err, project.ErrNotFound)

	stored, err = env.Engine.GetPackage(ctx, pkg.ID)
	require.NoError(t, err)
	assert.Equal(t, uint64(25), stored.BudgetAllocated)
	assert.Equal(t, 1, stored.Collaborators)

	_, err = env.Engine.FinishPackage(ctx, "alice", pkg.ID)
	require.NoError(t, err)
	_, err = env.Engine.AddCollaborator(ctx, "alice", project.AddCollaboratorRequest{PackageID: pkg.ID, Identity: "erin", Share: 1})
	require.ErrorIs(t, err, project.ErrPackageClosed)
}

func TestTransferAuthority(t *testing.T) {
	env := testserver.NewEnv(t)
	ctx := context.Background()

	err := env.Engine.TransferAuthority(ctx, "mallory", "mallory")
	require.ErrorIs(t, err, project.ErrNotAuthorized)

	err = env.Engine.TransferAuthority(ctx, testserver.Authority, "")
	require.ErrorIs(t, err, project.ErrInvalidInput)

	require.NoError(t, env.Engine.TransferAuthority(ctx, testserver.Authority, "council"))
	assert.Equal(t, "council", env.Engine.Authority())

	proj, err := env.Engine.CreateProject(ctx, "alice", project.CreateProjectRequest{Budget: 100})
	require.NoError(t, err)

	_, err = env.Engine.ApproveProject(ctx, testserver.Authority, proj.ID)
	require.ErrorIs(t, err, project.ErrNotAuthorized)
	_, err = env.Engine.ApproveProject(ctx, "council", proj.ID)
	require.NoError(t, err)

	// A restarted engine keeps the persisted authority over its configured one.
	restarted, err := project.NewEngine(ctx, project.Config{
		Repository:  env.Store,
		Tokens:      env.Ledger,
		Provisioner: &mocks.TokenProvisioner{},
		Fees:        mustPolicy(t),
		Authority:   testserver.Authority,
		Treasury:    testserver.Treasury,
		Custody:     testserver.Custody,
	})
	require.NoError(t, err)
	assert.Equal(t, "council", restarted.Authority())
}

func TestEventsPublishedAfterCommit(t *testing.T) {
	env := testserver.NewEnv(t)
	ctx := context.Background()
	events, cancel := env.Broker.Subscribe()
	defer cancel()

	env.Fund(t, "tok", "alice", 1000)
	_, err := env.Engine.CreateProject(ctx, "alice", project.CreateProjectRequest{Token: "tok", Budget: 0})
	require.Error(t, err)
	proj, err := env.Engine.CreateProject(ctx, "alice", project.CreateProjectRequest{Token: "tok", Budget: 100})
	require.NoError(t, err)

	require.Len(t, events, 1, "failed operations publish nothing")
	evt := <-events
	assert.Equal(t, event.TypeProjectCreated, evt.Type)
	assert.Equal(t, proj.ID, evt.ProjectID)
	assert.NotZero(t, evt.Seq)
}

func TestPublisherFailureDoesNotFailOperation(t *testing.T) {
	publisher := &mocks.Publisher{}
	publisher.On("Publish", mock.Anything, mock.Anything).Return(errors.New("broker down"))

	env := testserver.NewEnv(t, func(cfg *project.Config) {
		cfg.Publisher = publisher
	})

	_, err := env.Engine.CreateProject(context.Background(), "alice", project.CreateProjectRequest{Budget: 100})
	require.NoError(t, err)
	publisher.AssertNumberOfCalls(t, "Publish", 1)
}

func TestRecorderObservesOperations(t *testing.T) {
	recorder := &mocks.Recorder{}
	recorder.On("ObserveOperation", "create_project", mock.Anything, mock.Anything).Return()

	env := testserver.NewEnv(t, func(cfg *project.Config) {
		cfg.Recorder = recorder
	})

	_, err := env.Engine.CreateProject(context.Background(), "alice", project.CreateProjectRequest{Budget: 0})
	require.ErrorIs(t, err, project.ErrInvalidAmount)

	recorder.AssertCalled(t, "ObserveOperation", "create_project", project.ErrInvalidAmount, mock.Anything)
}

func TestNewEngine_Validation(t *testing.T) {
	env := testserver.NewEnv(t)
	ctx := context.Background()

	_, err := project.NewEngine(ctx, project.Config{})
	require.Error(t, err)

	_, err = project.NewEngine(ctx, project.Config{
		Repository:  env.Store,
		Tokens:      env.Ledger,
		Provisioner: &mocks.TokenProvisioner{},
		Fees:        mustPolicy(t),
		Authority:   testserver.Authority,
	})
	require.Error(t, err, "treasury and custody are required")
}

func TestCodes(t *testing.T) {
	assert.Equal(t, "", project.Code(nil))
	assert.Equal(t, project.CodeNotFound, project.Code(project.ErrPackageNotFound))
	assert.Equal(t, project.CodeInvalidState, project.Code(project.ErrCollaboratorsExist))
	assert.Equal(t, project.CodeOpenPackagesExist, project.Code(project.ErrOpenPackagesExist))
	assert.Equal(t, project.CodeInternal, project.Code(errors.New("disk full")))
}
