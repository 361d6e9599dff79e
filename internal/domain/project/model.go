package project

import "time"

// State is the lifecycle position of a project.
type State string

const (
	StateCreated  State = "created"
	StateApproved State = "approved"
	StateStarted  State = "started"
	StateFinished State = "finished"
)

// PackageState is the lifecycle position of a package.
type PackageState string

const (
	PackageOpen      PackageState = "open"
	PackageFinished  PackageState = "finished"
	PackageCancelled PackageState = "cancelled"
)

// Project is a funded budget escrowed by its initiator.
//
// Budget is the gross amount the initiator committed. NetBudget is what
// remains after the treasury fee and bounds the sum of package budgets; it is
// zero until funds are actually escrowed.
type Project struct {
	ID              string    `json:"id"`
	Initiator       string    `json:"initiator"`
	Token           string    `json:"token,omitempty"`
	IsOwnToken      bool      `json:"is_own_token"`
	State           State     `json:"state"`
	Budget          uint64    `json:"budget"`
	NetBudget       uint64    `json:"net_budget"`
	Fee             uint64    `json:"fee"`
	BudgetAllocated uint64    `json:"budget_allocated"`
	TimeCreated     time.Time `json:"time_created"`
	TimeApproved    time.Time `json:"time_approved,omitzero"`
	TimeStarted     time.Time `json:"time_started,omitzero"`
	TimeFinished    time.Time `json:"time_finished,omitzero"`
}

// Ledger returns the project's allocation ledger over its net budget.
func (p *Project) Ledger() Ledger {
	return Ledger{Budget: p.NetBudget, Allocated: p.BudgetAllocated}
}

// Package is a slice of a project's budget.
type Package struct {
	ID              string       `json:"id"`
	ProjectID       string       `json:"project_id"`
	State           PackageState `json:"state"`
	Budget          uint64       `json:"budget"`
	BonusBudget     uint64       `json:"bonus_budget"`
	ObserverBudget  uint64       `json:"observer_budget"`
	BudgetAllocated uint64       `json:"budget_allocated"`
	Collaborators   int          `json:"collaborators"`
	TimeCreated     time.Time    `json:"time_created"`
	TimeClosed      time.Time    `json:"time_closed,omitzero"`
}

// Ledger returns the package's allocation ledger.
func (p *Package) Ledger() Ledger {
	return Ledger{Budget: p.Budget, Allocated: p.BudgetAllocated}
}

// Open reports whether the package still accepts changes.
func (p *Package) Open() bool {
	return p.State == PackageOpen
}

// Collaborator is an identity holding a share of a package budget.
type Collaborator struct {
	PackageID string    `json:"package_id"`
	Identity  string    `json:"identity"`
	Share     uint64    `json:"share"`
	AddedAt   time.Time `json:"added_at"`
}

// ListOptions filters project listings.
type ListOptions struct {
	Initiator string
	State     State
	Limit     int
	Offset    int
}
