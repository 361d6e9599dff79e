package testserver

import (
	"context"
	"fmt"
	"strings"
	"sync"
	"testing"
	"time"

	"github.com/rpggio/fundflow/internal/domain/fee"
	"github.com/rpggio/fundflow/internal/domain/project"
	"github.com/rpggio/fundflow/internal/notify"
	"github.com/rpggio/fundflow/internal/sqlite"
	"github.com/stretchr/testify/require"
)

// Accounts wired into every test engine.
const (
	Authority = "dao"
	Treasury  = "treasury"
	Custody   = "engine"
)

// Clock is a deterministic clock advancing one second per reading.
type Clock struct {
	mu  sync.Mutex
	now time.Time
}

// NewClock starts a clock at start.
func NewClock(start time.Time) *Clock {
	return &Clock{now: start}
}

// Now advances the clock and returns the new time.
func (c *Clock) Now() time.Time {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.now = c.now.Add(time.Second)
	return c.now
}

// Env is an engine over in-memory SQLite stores.
type Env struct {
	DB      *sqlite.DB
	Store   *sqlite.Store
	TokenDB *sqlite.DB
	Ledger  *sqlite.TokenLedger
	Broker  *notify.Broker
	Clock   *Clock
	Engine  *project.Engine
}

// Option adjusts the engine configuration before construction.
type Option func(*project.Config)

// NewDB opens a migrated in-memory database unique to the test and name.
func NewDB(t *testing.T, name string) *sqlite.DB {
	t.Helper()

	dsn := fmt.Sprintf("file:%s_%s?mode=memory&cache=shared", strings.ReplaceAll(t.Name(), "/", "_"), name)
	db, err := sqlite.New(dsn)
	require.NoError(t, err)
	require.NoError(t, db.RunMigrations())

	t.Cleanup(func() {
		_ = db.Close()
	})
	return db
}

// NewEnv builds an engine with a 5% treasury fee, SQLite token ledger and an
// in-process broker.
func NewEnv(t *testing.T, opts ...Option) *Env {
	t.Helper()

	env := &Env{
		DB:      NewDB(t, "engine"),
		TokenDB: NewDB(t, "tokens"),
		Broker:  notify.NewBroker(256, nil),
		Clock:   NewClock(time.Date(2024, 1, 1, 0, 0, 0, 0, time.UTC)),
	}
	env.Store = sqlite.NewStore(env.DB)
	env.Ledger = sqlite.NewTokenLedger(env.TokenDB)

	policy, err := fee.NewPolicy(fee.Config{Rate: 50, Precision: fee.DefaultPrecision})
	require.NoError(t, err)

	cfg := project.Config{
		Repository:  env.Store,
		Tokens:      env.Ledger,
		Provisioner: sqlite.NewTokenProvisioner(env.Ledger, Custody),
		Publisher:   env.Broker,
		Fees:        policy,
		Authority:   Authority,
		Treasury:    Treasury,
		Custody:     Custody,
		Clock:       env.Clock.Now,
	}
	for _, opt := range opts {
		opt(&cfg)
	}

	env.Engine, err = project.NewEngine(context.Background(), cfg)
	require.NoError(t, err)
	return env
}

// Fund issues supply of token to holder and lets custody spend all of it.
func (e *Env) Fund(t *testing.T, token, holder string, supply uint64) {
	t.Helper()
	ctx := context.Background()
	require.NoError(t, e.Ledger.Issue(ctx, token, holder, supply))
	require.NoError(t, e.Ledger.Approve(ctx, token, holder, Custody, supply))
}

// Balance returns holder's balance of token.
func (e *Env) Balance(t *testing.T, token, holder string) uint64 {
	t.Helper()
	balance, err := e.Ledger.BalanceOf(context.Background(), token, holder)
	require.NoError(t, err)
	return balance
}

// StartedProject creates an own-token project of budget for initiator.
func (e *Env) StartedProject(t *testing.T, initiator string, budget uint64) *project.Project {
	t.Helper()
	token := "tok-" + initiator
	if _, err := e.Ledger.BalanceOf(context.Background(), token, initiator); err != nil {
		e.Fund(t, token, initiator, 1_000_000)
	}
	proj, err := e.Engine.CreateProject(context.Background(), initiator, project.CreateProjectRequest{Token: token, Budget: budget})
	require.NoError(t, err)
	return proj
}
