package integration_test

import (
	"context"
	"path/filepath"
	"testing"

	"github.com/rpggio/fundflow/internal/domain/fee"
	"github.com/rpggio/fundflow/internal/domain/project"
	"github.com/rpggio/fundflow/internal/sqlite"
	"github.com/stretchr/testify/require"
)

type node struct {
	db     *sqlite.DB
	tokens *sqlite.DB
	ledger *sqlite.TokenLedger
	engine *project.Engine
}

func openNode(t *testing.T, dir, authority string) *node {
	t.Helper()
	ctx := context.Background()

	db, err := sqlite.New(filepath.Join(dir, "fundflow.db"))
	require.NoError(t, err)
	require.NoError(t, db.RunMigrations())
	tokens, err := sqlite.New(filepath.Join(dir, "tokens.db"))
	require.NoError(t, err)
	require.NoError(t, tokens.RunMigrations())

	policy, err := fee.NewPolicy(fee.Config{Rate: 25, Precision: fee.DefaultPrecision})
	require.NoError(t, err)

	ledger := sqlite.NewTokenLedger(tokens)
	engine, err := project.NewEngine(ctx, project.Config{
		Repository:  sqlite.NewStore(db),
		Tokens:      ledger,
		Provisioner: sqlite.NewTokenProvisioner(ledger, "custody"),
		Fees:        policy,
		Authority:   authority,
		Treasury:    "treasury",
		Custody:     "custody",
	})
	require.NoError(t, err)
	return &node{db: db, tokens: tokens, ledger: ledger, engine: engine}
}

func (n *node) close() {
	_ = n.db.Close()
	_ = n.tokens.Close()
}

func TestRestartKeepsStateAndAuthority(t *testing.T) {
	ctx := context.Background()
	dir := t.TempDir()

	first := openNode(t, dir, "dao")
	require.NoError(t, first.ledger.Issue(ctx, "gold", "alice", 10_000))
	require.NoError(t, first.ledger.Approve(ctx, "gold", "alice", "custody", 10_000))

	proj, err := first.engine.CreateProject(ctx, "alice", project.CreateProjectRequest{Token: "gold", Budget: 4000})
	require.NoError(t, err)
	require.Equal(t, uint64(3900), proj.NetBudget)

	pkg, err := first.engine.CreatePackage(ctx, "alice", project.CreatePackageRequest{ProjectID: proj.ID, Budget: 1000})
	require.NoError(t, err)
	_, err = first.engine.AddCollaborator(ctx, "alice", project.AddCollaboratorRequest{PackageID: pkg.ID, Identity: "bob", Share: 600})
	require.NoError(t, err)
	require.NoError(t, first.engine.TransferAuthority(ctx, "dao", "council"))
	first.close()

	// The configured authority only seeds an empty database.
	second := openNode(t, dir, "someone-else")
	defer second.close()
	require.Equal(t, "council", second.engine.Authority())

	got, err := second.engine.GetProject(ctx, proj.ID)
	require.NoError(t, err)
	require.Equal(t, uint64(1000), got.BudgetAllocated)
	require.Equal(t, project.StateStarted, got.State)

	gotPkg, err := second.engine.GetPackage(ctx, pkg.ID)
	require.NoError(t, err)
	require.Equal(t, uint64(600), gotPkg.BudgetAllocated)
	require.Equal(t, 1, gotPkg.Collaborators)

	diffs, err := second.engine.Verify(ctx)
	require.NoError(t, err)
	require.Empty(t, diffs)

	// Reservations keep being enforced against the persisted totals.
	_, err = second.engine.AddCollaborator(ctx, "alice", project.AddCollaboratorRequest{PackageID: pkg.ID, Identity: "carol", Share: 401})
	require.ErrorIs(t, err, project.ErrInsufficientBudget)

	balance, err := second.ledger.BalanceOf(ctx, "gold", "treasury")
	require.NoError(t, err)
	require.Equal(t, uint64(100), balance)
}
