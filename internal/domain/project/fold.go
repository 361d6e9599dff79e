package project

import (
	"context"
	"fmt"
	"sort"
	"time"

	"github.com/rpggio/fundflow/internal/domain/event"
)

const replayPageSize = 200

// Snapshot is the state reconstructed from the event log.
type Snapshot struct {
	Authority     string
	Projects      map[string]*Project
	Packages      map[string]*Package
	Collaborators map[string]map[string]Collaborator
	LastSeq       int64
}

// NewSnapshot returns an empty snapshot.
func NewSnapshot() *Snapshot {
	return &Snapshot{
		Projects:      make(map[string]*Project),
		Packages:      make(map[string]*Package),
		Collaborators: make(map[string]map[string]Collaborator),
	}
}

// Replay folds events, in order, into a fresh snapshot.
func Replay(events []event.Event) (*Snapshot, error) {
	snap := NewSnapshot()
	for _, evt := range events {
		if err := snap.Apply(evt); err != nil {
			return nil, err
		}
	}
	return snap, nil
}

// Apply folds one event into the snapshot.
func (s *Snapshot) Apply(evt event.Event) error {
	if evt.Seq > s.LastSeq {
		s.LastSeq = evt.Seq
	}

	switch evt.Type {
	case event.TypeProjectCreated:
		var p event.ProjectCreated
		if err := evt.Decode(&p); err != nil {
			return decodeError(evt, err)
		}
		proj := &Project{
			ID:          p.ID,
			Initiator:   p.Initiator,
			Token:       p.Token,
			IsOwnToken:  p.IsOwnToken,
			State:       StateCreated,
			Budget:      p.Budget,
			NetBudget:   p.NetBudget,
			Fee:         p.Fee,
			TimeCreated: p.At,
		}
		if p.IsOwnToken {
			proj.State = StateStarted
			proj.TimeApproved = p.At
			proj.TimeStarted = p.At
		}
		s.Projects[p.ID] = proj

	case event.TypeProjectApproved:
		var p event.ProjectApproved
		if err := evt.Decode(&p); err != nil {
			return decodeError(evt, err)
		}
		proj, err := s.project(evt, p.ID)
		if err != nil {
			return err
		}
		proj.State = StateApproved
		proj.TimeApproved = p.At

	case event.TypeProjectTokenMinted:
		var p event.ProjectTokenMinted
		if err := evt.Decode(&p); err != nil {
			return decodeError(evt, err)
		}
		proj, err := s.project(evt, p.ID)
		if err != nil {
			return err
		}
		proj.Token = p.Token
		proj.NetBudget = p.NetBudget
		proj.Fee = p.Fee

	case event.TypeProjectStarted:
		var p event.ProjectStarted
		if err := evt.Decode(&p); err != nil {
			return decodeError(evt, err)
		}
		proj, err := s.project(evt, p.ID)
		if err != nil {
			return err
		}
		proj.State = StateStarted
		proj.Token = p.Token
		proj.NetBudget = p.NetBudget
		proj.Fee = p.Fee
		proj.TimeStarted = p.At

	case event.TypeProjectFinished:
		var p event.ProjectFinished
		if err := evt.Decode(&p); err != nil {
			return decodeError(evt, err)
		}
		proj, err := s.project(evt, p.ID)
		if err != nil {
			return err
		}
		proj.State = StateFinished
		proj.TimeFinished = p.At

	case event.TypePackageCreated:
		var p event.PackageCreated
		if err := evt.Decode(&p); err != nil {
			return decodeError(evt, err)
		}
		proj, err := s.project(evt, p.ProjectID)
		if err != nil {
			return err
		}
		proj.BudgetAllocated += p.Budget
		s.Packages[p.ID] = &Package{
			ID:              p.ID,
			ProjectID:       p.ProjectID,
			State:           PackageOpen,
			Budget:          p.Budget,
			BonusBudget:     p.BonusBudget,
			ObserverBudget:  p.ObserverBudget,
			BudgetAllocated: p.BonusBudget + p.ObserverBudget,
			TimeCreated:     p.At,
		}

	case event.TypePackageFinished:
		var p event.PackageFinished
		if err := evt.Decode(&p); err != nil {
			return decodeError(evt, err)
		}
		pkg, err := s.pkg(evt, p.ID)
		if err != nil {
			return err
		}
		pkg.State = PackageFinished
		pkg.TimeClosed = p.At

	case event.TypePackageCancelled:
		var p event.PackageCancelled
		if err := evt.Decode(&p); err != nil {
			return decodeError(evt, err)
		}
		pkg, err := s.pkg(evt, p.ID)
		if err != nil {
			return err
		}
		proj, err := s.project(evt, pkg.ProjectID)
		if err != nil {
			return err
		}
		pkg.State = PackageCancelled
		pkg.TimeClosed = p.At
		proj.BudgetAllocated -= p.Budget

	case event.TypeCollaboratorAdded:
		var p event.CollaboratorAdded
		if err := evt.Decode(&p); err != nil {
			return decodeError(evt, err)
		}
		pkg, err := s.pkg(evt, p.PackageID)
		if err != nil {
			return err
		}
		pkg.BudgetAllocated += p.Share
		pkg.Collaborators++
		if s.Collaborators[p.PackageID] == nil {
			s.Collaborators[p.PackageID] = make(map[string]Collaborator)
		}
		s.Collaborators[p.PackageID][p.Identity] = Collaborator{
			PackageID: p.PackageID,
			Identity:  p.Identity,
			Share:     p.Share,
			AddedAt:   p.At,
		}

	case event.TypeCollaboratorRemoved:
		var p event.CollaboratorRemoved
		if err := evt.Decode(&p); err != nil {
			return decodeError(evt, err)
		}
		pkg, err := s.pkg(evt, p.PackageID)
		if err != nil {
			return err
		}
		pkg.BudgetAllocated -= p.Share
		pkg.Collaborators--
		delete(s.Collaborators[p.PackageID], p.Identity)

	case event.TypeAuthorityTransferred:
		var p event.AuthorityTransferred
		if err := evt.Decode(&p); err != nil {
			return decodeError(evt, err)
		}
		s.Authority = p.To

	default:
		return fmt.Errorf("event %d: unknown type %q", evt.Seq, evt.Type)
	}
	return nil
}

// ProjectIDs returns the snapshot's project IDs in sorted order.
func (s *Snapshot) ProjectIDs() []string {
	ids := make([]string, 0, len(s.Projects))
	for id := range s.Projects {
		ids = append(ids, id)
	}
	sort.Strings(ids)
	return ids
}

func (s *Snapshot) project(evt event.Event, id string) (*Project, error) {
	proj, ok := s.Projects[id]
	if !ok {
		return nil, fmt.Errorf("event %d (%s): unknown project %s", evt.Seq, evt.Type, id)
	}
	return proj, nil
}

func (s *Snapshot) pkg(evt event.Event, id string) (*Package, error) {
	pkg, ok := s.Packages[id]
	if !ok {
		return nil, fmt.Errorf("event %d (%s): unknown package %s", evt.Seq, evt.Type, id)
	}
	return pkg, nil
}

func decodeError(evt event.Event, err error) error {
	return fmt.Errorf("event %d (%s): decoding payload: %w", evt.Seq, evt.Type, err)
}

// Rebuild replays the whole event log into a snapshot.
func (e *Engine) Rebuild(ctx context.Context) (*Snapshot, error) {
	snap := NewSnapshot()
	for {
		events, err := e.repo.ListEvents(ctx, event.ListOptions{AfterSeq: snap.LastSeq, Limit: replayPageSize})
		if err != nil {
			return nil, fmt.Errorf("listing events: %w", err)
		}
		if len(events) == 0 {
			return snap, nil
		}
		for _, evt := range events {
			if err := snap.Apply(evt); err != nil {
				return nil, err
			}
		}
	}
}

// Verify compares the replayed event log against stored state and returns
// one line per mismatch.
func (e *Engine) Verify(ctx context.Context) ([]string, error) {
	snap, err := e.Rebuild(ctx)
	if err != nil {
		return nil, err
	}

	var diffs []string
	if snap.Authority != "" && snap.Authority != e.Authority() {
		diffs = append(diffs, fmt.Sprintf("authority: replayed %s, stored %s", snap.Authority, e.Authority()))
	}

	stored, err := e.repo.ListProjects(ctx, ListOptions{})
	if err != nil {
		return nil, fmt.Errorf("listing projects: %w", err)
	}
	if len(stored) != len(snap.Projects) {
		diffs = append(diffs, fmt.Sprintf("projects: replayed %d, stored %d", len(snap.Projects), len(stored)))
	}

	seenProjects := make(map[string]bool, len(stored))
	seenPackages := make(map[string]bool, len(snap.Packages))
	storedPackages := 0
	for i := range stored {
		got := &stored[i]
		seenProjects[got.ID] = true
		want, ok := snap.Projects[got.ID]
		if !ok {
			diffs = append(diffs, fmt.Sprintf("project %s: not in event log", got.ID))
			continue
		}
		diffs = append(diffs, diffProject(want, got)...)

		packages, err := e.repo.ListPackages(ctx, got.ID)
		if err != nil {
			return nil, fmt.Errorf("listing packages: %w", err)
		}
		storedPackages += len(packages)
		for j := range packages {
			pkg := &packages[j]
			seenPackages[pkg.ID] = true
			replayed, ok := snap.Packages[pkg.ID]
			if !ok {
				diffs = append(diffs, fmt.Sprintf("package %s: not in event log", pkg.ID))
				continue
			}
			diffs = append(diffs, diffPackage(replayed, pkg)...)
		}
	}
	if storedPackages != len(snap.Packages) {
		diffs = append(diffs, fmt.Sprintf("packages: replayed %d, stored %d", len(snap.Packages), storedPackages))
	}

	for _, id := range snap.ProjectIDs() {
		if !seenProjects[id] {
			diffs = append(diffs, fmt.Sprintf("project %s: missing from storage", id))
		}
	}
	for _, id := range sortedKeys(snap.Packages) {
		if !seenPackages[id] {
			diffs = append(diffs, fmt.Sprintf("package %s: missing from storage", id))
		}
	}
	return diffs, nil
}

func sortedKeys[V any](m map[string]V) []string {
	keys := make([]string, 0, len(m))
	for k := range m {
		keys = append(keys, k)
	}
	sort.Strings(keys)
	return keys
}

func diffProject(want, got *Project) []string {
	var diffs []string
	add := func(field string, w, g any) {
		diffs = append(diffs, fmt.Sprintf("project %s %s: replayed %v, stored %v", got.ID, field, w, g))
	}
	if want.Initiator != got.Initiator {
		add("initiator", want.Initiator, got.Initiator)
	}
	if want.State != got.State {
		add("state", want.State, got.State)
	}
	if want.Token != got.Token {
		add("token", want.Token, got.Token)
	}
	if want.IsOwnToken != got.IsOwnToken {
		add("is_own_token", want.IsOwnToken, got.IsOwnToken)
	}
	if want.Budget != got.Budget {
		add("budget", want.Budget, got.Budget)
	}
	if want.NetBudget != got.NetBudget {
		add("net_budget", want.NetBudget, got.NetBudget)
	}
	if want.Fee != got.Fee {
		add("fee", want.Fee, got.Fee)
	}
	if want.BudgetAllocated != got.BudgetAllocated {
		add("budget_allocated", want.BudgetAllocated, got.BudgetAllocated)
	}
	for _, ts := range []struct {
		field     string
		want, got time.Time
	}{
		{"time_created", want.TimeCreated, got.TimeCreated},
		{"time_approved", want.TimeApproved, got.TimeApproved},
		{"time_started", want.TimeStarted, got.TimeStarted},
		{"time_finished", want.TimeFinished, got.TimeFinished},
	} {
		if !ts.want.Equal(ts.got) {
			add(ts.field, ts.want, ts.got)
		}
	}
	return diffs
}

func diffPackage(want, got *Package) []string {
	var diffs []string
	add := func(field string, w, g any) {
		diffs = append(diffs, fmt.Sprintf("package %s %s: replayed %v, stored %v", got.ID, field, w, g))
	}
	if want.State != got.State {
		add("state", want.State, got.State)
	}
	if want.ProjectID != got.ProjectID {
		add("project_id", want.ProjectID, got.ProjectID)
	}
	if want.Budget != got.Budget {
		add("budget", want.Budget, got.Budget)
	}
	if want.BonusBudget != got.BonusBudget {
		add("bonus_budget", want.BonusBudget, got.BonusBudget)
	}
	if want.ObserverBudget != got.ObserverBudget {
		add("observer_budget", want.ObserverBudget, got.ObserverBudget)
	}
	if want.BudgetAllocated != got.BudgetAllocated {
		add("budget_allocated", want.BudgetAllocated, got.BudgetAllocated)
	}
	if !want.TimeCreated.Equal(got.TimeCreated) {
		add("time_created", want.TimeCreated, got.TimeCreated)
	}
	if !want.TimeClosed.Equal(got.TimeClosed) {
		add("time_closed", want.TimeClosed, got.TimeClosed)
	}
	if want.Collaborators != got.Collaborators {
		add("collaborators", want.Collaborators, got.Collaborators)
	}
	return diffs
}
