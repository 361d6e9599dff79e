package project

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"math"
	"strings"
	"sync"
	"time"

	"github.com/google/uuid"
	"github.com/rpggio/fundflow/internal/domain/event"
	"github.com/rpggio/fundflow/internal/domain/fee"
	"github.com/rpggio/fundflow/internal/repository"
	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/codes"
	"go.opentelemetry.io/otel/trace"
)

// MaxAmount is the largest budget or share the engine accepts.
const MaxAmount = math.MaxInt64

const tracerName = "github.com/rpggio/fundflow/internal/domain/project"

// Config wires the engine to its collaborators.
type Config struct {
	Repository  Repository
	Tokens      TokenLedger
	Provisioner TokenProvisioner
	Publisher   event.Publisher
	Recorder    Recorder
	Fees        fee.Policy
	// Authority is used only when no authority has been persisted yet.
	Authority string
	Treasury  string
	// Custody is the account holding escrowed funds.
	Custody string
	Clock   func() time.Time
	Logger  *slog.Logger
}

// Engine runs the project and package lifecycle.
type Engine struct {
	repo        Repository
	tokens      TokenLedger
	provisioner TokenProvisioner
	publisher   event.Publisher
	recorder    Recorder
	fees        fee.Policy
	treasury    string
	custody     string
	clock       func() time.Time
	logger      *slog.Logger
	tracer      trace.Tracer

	locks *keyedMutex

	authMu    sync.RWMutex
	authority string
}

// NewEngine creates an engine and loads the persisted governing authority.
func NewEngine(ctx context.Context, cfg Config) (*Engine, error) {
	if cfg.Repository == nil || cfg.Tokens == nil || cfg.Provisioner == nil {
		return nil, fmt.Errorf("engine requires repository, token ledger and provisioner")
	}
	if strings.TrimSpace(cfg.Treasury) == "" || strings.TrimSpace(cfg.Custody) == "" {
		return nil, fmt.Errorf("engine requires treasury and custody accounts")
	}
	if err := cfg.Fees.Config().Validate(); err != nil {
		return nil, err
	}

	e := &Engine{
		repo:        cfg.Repository,
		tokens:      cfg.Tokens,
		provisioner: cfg.Provisioner,
		publisher:   cfg.Publisher,
		recorder:    cfg.Recorder,
		fees:        cfg.Fees,
		treasury:    cfg.Treasury,
		custody:     cfg.Custody,
		clock:       cfg.Clock,
		logger:      cfg.Logger,
		tracer:      otel.Tracer(tracerName),
		locks:       newKeyedMutex(),
	}
	if e.clock == nil {
		e.clock = time.Now
	}
	if e.logger == nil {
		e.logger = slog.New(slog.DiscardHandler)
	}

	authority, err := e.repo.GetAuthority(ctx)
	switch {
	case err == nil:
		e.authority = authority
	case errors.Is(err, repository.ErrNotFound):
		if strings.TrimSpace(cfg.Authority) == "" {
			return nil, fmt.Errorf("engine requires an initial authority")
		}
		if err := e.repo.SetAuthority(ctx, cfg.Authority); err != nil {
			return nil, fmt.Errorf("storing authority: %w", err)
		}
		e.authority = cfg.Authority
	default:
		return nil, fmt.Errorf("loading authority: %w", err)
	}

	return e, nil
}

// CreateProjectRequest describes a new project. An empty Token means a
// dedicated token is minted when the project starts.
type CreateProjectRequest struct {
	Token  string
	Budget uint64
}

// CreateProject records a project. With an existing token the budget is
// escrowed immediately, the fee paid to the treasury and the project is
// approved and started in the same step.
func (e *Engine) CreateProject(ctx context.Context, caller string, req CreateProjectRequest) (_ *Project, err error) {
	ctx, done := e.observe(ctx, "create_project")
	defer func() { done(err) }()

	if strings.TrimSpace(caller) == "" {
		return nil, ErrNotAuthorized
	}
	if err := validateAmount(req.Budget); err != nil {
		return nil, err
	}

	now := e.timestamp()
	proj := &Project{
		ID:          uuid.NewString(),
		Initiator:   caller,
		State:       StateCreated,
		Budget:      req.Budget,
		TimeCreated: now,
	}
	token := strings.TrimSpace(req.Token)
	if token != "" {
		net, f := e.fees.Compute(req.Budget)
		proj.Token = token
		proj.IsOwnToken = true
		proj.NetBudget = net
		proj.Fee = f
		proj.State = StateStarted
		proj.TimeApproved = now
		proj.TimeStarted = now
	}

	err = e.commit(ctx, func(ctx context.Context, tx Store) (*change, error) {
		if err := tx.CreateProject(ctx, proj); err != nil {
			return nil, fmt.Errorf("creating project: %w", err)
		}

		ch := &change{}
		if err := e.emit(ch, event.TypeProjectCreated, proj.ID, "", event.ProjectCreated{
			ID:         proj.ID,
			Initiator:  proj.Initiator,
			Token:      proj.Token,
			Budget:     proj.Budget,
			NetBudget:  proj.NetBudget,
			Fee:        proj.Fee,
			IsOwnToken: proj.IsOwnToken,
			At:         now,
		}); err != nil {
			return nil, err
		}

		if proj.IsOwnToken {
			var paidOut uint64
			ch.effects = append(ch.effects, e.escrowEffect(proj, &paidOut))
			if proj.Fee > 0 {
				ch.effects = append(ch.effects, e.transferEffect("treasury fee", proj.Token, e.treasury, proj.Fee, &paidOut))
			}
		}
		return ch, nil
	})
	if err != nil {
		return nil, err
	}

	e.logger.Info("project created", "project_id", proj.ID, "initiator", proj.Initiator, "own_token", proj.IsOwnToken, "budget", proj.Budget)
	return proj, nil
}

// ApproveProject marks a created project as approved. Only the governing
// authority may approve.
func (e *Engine) ApproveProject(ctx context.Context, caller, id string) (_ *Project, err error) {
	ctx, done := e.observe(ctx, "approve_project")
	defer func() { done(err) }()

	e.authMu.RLock()
	defer e.authMu.RUnlock()
	if caller == "" || caller != e.authority {
		return nil, ErrNotAuthorized
	}

	unlock := e.locks.Lock(id)
	defer unlock()

	proj, err := e.loadProject(ctx, e.repo, id)
	if err != nil {
		return nil, err
	}
	if proj.State != StateCreated {
		return nil, ErrAlreadyApproved
	}

	proj.State = StateApproved
	proj.TimeApproved = e.timestamp(proj.TimeCreated)

	err = e.commit(ctx, func(ctx context.Context, tx Store) (*change, error) {
		if err := tx.UpdateProject(ctx, proj); err != nil {
			return nil, fmt.Errorf("approving project: %w", err)
		}
		ch := &change{}
		err := e.emit(ch, event.TypeProjectApproved, proj.ID, "", event.ProjectApproved{ID: proj.ID, At: proj.TimeApproved})
		return ch, err
	})
	if err != nil {
		return nil, err
	}

	e.logger.Info("project approved", "project_id", proj.ID, "authority", caller)
	return proj, nil
}

// StartProject mints the project token into custody, pays the treasury fee
// and opens the project for packages.
func (e *Engine) StartProject(ctx context.Context, caller, id string) (_ *Project, err error) {
	ctx, done := e.observe(ctx, "start_project")
	defer func() { done(err) }()

	unlock := e.locks.Lock(id)
	defer unlock()

	proj, err := e.authorizeInitiator(ctx, caller, id)
	if err != nil {
		return nil, err
	}
	switch proj.State {
	case StateCreated:
		return nil, ErrNotApproved
	case StateStarted, StateFinished:
		return nil, ErrAlreadyStarted
	}

	if proj.Token == "" {
		if err := e.provisionToken(ctx, proj); err != nil {
			return nil, err
		}
	}

	proj.State = StateStarted
	proj.TimeStarted = e.timestamp(proj.TimeApproved)

	err = e.commit(ctx, func(ctx context.Context, tx Store) (*change, error) {
		if err := tx.UpdateProject(ctx, proj); err != nil {
			return nil, fmt.Errorf("starting project: %w", err)
		}

		ch := &change{}
		if err := e.emit(ch, event.TypeProjectStarted, proj.ID, "", event.ProjectStarted{
			ID:         proj.ID,
			Token:      proj.Token,
			PaidAmount: proj.Budget,
			NetBudget:  proj.NetBudget,
			Fee:        proj.Fee,
			At:         proj.TimeStarted,
		}); err != nil {
			return nil, err
		}
		return ch, nil
	})
	if err != nil {
		return nil, err
	}

	e.logger.Info("project started", "project_id", proj.ID, "token", proj.Token, "paid", proj.Budget)
	return proj, nil
}

// provisionToken mints the project's dedicated token into custody, pays the
// treasury fee from it and records the token on the still approved project.
// A later start reuses the recorded token, so minting happens once.
func (e *Engine) provisionToken(ctx context.Context, proj *Project) error {
	net, f := e.fees.Compute(proj.Budget)
	minted := *proj
	minted.NetBudget = net
	minted.Fee = f

	err := e.commit(ctx, func(ctx context.Context, tx Store) (*change, error) {
		token, err := e.provisioner.MintProjectToken(ctx, proj.ID, proj.Budget)
		if err != nil {
			return nil, fmt.Errorf("%w: minting project token: %w", ErrTokenTransferFailed, err)
		}
		minted.Token = token

		if err := tx.UpdateProject(ctx, &minted); err != nil {
			return nil, fmt.Errorf("recording project token: %w", err)
		}

		ch := &change{}
		if err := e.emit(ch, event.TypeProjectTokenMinted, proj.ID, "", event.ProjectTokenMinted{
			ID:        proj.ID,
			Token:     token,
			Supply:    proj.Budget,
			NetBudget: net,
			Fee:       f,
			At:        e.timestamp(proj.TimeApproved),
		}); err != nil {
			return nil, err
		}
		if f > 0 {
			ch.effects = append(ch.effects, e.transferEffect("treasury fee", token, e.treasury, f, nil))
		}
		return ch, nil
	})
	if err != nil {
		return err
	}

	e.logger.Info("project token minted", "project_id", proj.ID, "token", minted.Token, "supply", proj.Budget)
	*proj = minted
	return nil
}

// FinishProject closes a started project and refunds its unallocated budget
// to the initiator. Every package must be finished or cancelled first.
func (e *Engine) FinishProject(ctx context.Context, caller, id string) (_ *Project, err error) {
	ctx, done := e.observe(ctx, "finish_project")
	defer func() { done(err) }()

	unlock := e.locks.Lock(id)
	defer unlock()

	proj, err := e.authorizeInitiator(ctx, caller, id)
	if err != nil {
		return nil, err
	}
	if err := requireStarted(proj); err != nil {
		return nil, err
	}

	packages, err := e.repo.ListPackages(ctx, proj.ID)
	if err != nil {
		return nil, fmt.Errorf("listing packages: %w", err)
	}
	for _, pkg := range packages {
		if pkg.Open() {
			return nil, ErrOpenPackagesExist
		}
	}

	refund := proj.Ledger().Available()
	proj.State = StateFinished
	proj.TimeFinished = e.timestamp(proj.TimeStarted)

	err = e.commit(ctx, func(ctx context.Context, tx Store) (*change, error) {
		if err := tx.UpdateProject(ctx, proj); err != nil {
			return nil, fmt.Errorf("finishing project: %w", err)
		}
		ch := &change{}
		if err := e.emit(ch, event.TypeProjectFinished, proj.ID, "", event.ProjectFinished{
			ID:     proj.ID,
			Refund: refund,
			At:     proj.TimeFinished,
		}); err != nil {
			return nil, err
		}
		if refund > 0 {
			ch.effects = append(ch.effects, e.transferEffect("refund", proj.Token, proj.Initiator, refund, nil))
		}
		return ch, nil
	})
	if err != nil {
		return nil, err
	}

	e.logger.Info("project finished", "project_id", proj.ID, "refund", refund)
	return proj, nil
}

// escrowEffect pulls the gross budget from the initiator into custody. Undo
// returns only what custody still holds of the deposit: paidOut counts the
// amounts later effects moved out of custody, which cannot be recalled.
func (e *Engine) escrowEffect(proj *Project, paidOut *uint64) effect {
	return effect{
		name: "escrow",
		apply: func(ctx context.Context) error {
			if err := e.tokens.TransferFrom(ctx, proj.Token, proj.Initiator, e.custody, e.custody, proj.Budget); err != nil {
				return fmt.Errorf("%w: escrow: %w", ErrTokenTransferFailed, err)
			}
			return nil
		},
		undo: func(ctx context.Context) error {
			refund := proj.Budget - *paidOut
			if refund == 0 {
				return nil
			}
			if *paidOut > 0 {
				e.logger.Error("escrow refunded short of amounts paid out",
					"project_id", proj.ID, "token", proj.Token, "refund", refund, "unrecoverable", *paidOut)
			}
			return e.tokens.Transfer(ctx, proj.Token, e.custody, proj.Initiator, refund)
		},
	}
}

func (e *Engine) authorizeInitiator(ctx context.Context, caller, projectID string) (*Project, error) {
	if caller == "" {
		return nil, ErrNotAuthorized
	}
	proj, err := e.loadProject(ctx, e.repo, projectID)
	if err != nil {
		return nil, err
	}
	if proj.Initiator != caller {
		return nil, ErrNotAuthorized
	}
	return proj, nil
}

func (e *Engine) loadProject(ctx context.Context, store Store, id string) (*Project, error) {
	if strings.TrimSpace(id) == "" {
		return nil, ErrProjectNotFound
	}
	proj, err := store.GetProject(ctx, id)
	if err != nil {
		if errors.Is(err, repository.ErrNotFound) {
			return nil, ErrProjectNotFound
		}
		return nil, fmt.Errorf("loading project: %w", err)
	}
	return proj, nil
}

func (e *Engine) loadPackage(ctx context.Context, store Store, id string) (*Package, error) {
	if strings.TrimSpace(id) == "" {
		return nil, ErrPackageNotFound
	}
	pkg, err := store.GetPackage(ctx, id)
	if err != nil {
		if errors.Is(err, repository.ErrNotFound) {
			return nil, ErrPackageNotFound
		}
		return nil, fmt.Errorf("loading package: %w", err)
	}
	return pkg, nil
}

// requireStarted rejects projects that do not accept package work.
func requireStarted(proj *Project) error {
	switch proj.State {
	case StateStarted:
		return nil
	case StateFinished:
		return ErrProjectFinished
	default:
		return ErrProjectNotStarted
	}
}

func validateAmount(amount uint64) error {
	if amount == 0 || amount > MaxAmount {
		return ErrInvalidAmount
	}
	return nil
}

// timestamp returns the current time, never earlier than any of after.
func (e *Engine) timestamp(after ...time.Time) time.Time {
	now := e.clock().UTC()
	for _, t := range after {
		if now.Before(t) {
			now = t
		}
	}
	return now
}

func (e *Engine) observe(ctx context.Context, op string) (context.Context, func(error)) {
	ctx, span := e.tracer.Start(ctx, "project."+op, trace.WithAttributes(attribute.String("fundflow.operation", op)))
	start := time.Now()
	return ctx, func(err error) {
		if err != nil {
			span.RecordError(err)
			span.SetStatus(codes.Error, err.Error())
		}
		span.End()
		if e.recorder != nil {
			e.recorder.ObserveOperation(op, err, time.Since(start).Seconds())
		}
	}
}

func capacityError(err error, what string) error {
	if errors.Is(err, repository.ErrCapacityExceeded) {
		return ErrInsufficientBudget
	}
	return fmt.Errorf("%s: %w", what, err)
}
