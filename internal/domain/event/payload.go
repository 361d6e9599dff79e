package event

import "time"

type ProjectCreated struct {
	ID         string    `json:"id"`
	Initiator  string    `json:"initiator"`
	Token      string    `json:"token,omitempty"`
	Budget     uint64    `json:"budget"`
	NetBudget  uint64    `json:"net_budget"`
	Fee        uint64    `json:"fee"`
	IsOwnToken bool      `json:"is_own_token"`
	At         time.Time `json:"at"`
}

type ProjectApproved struct {
	ID string    `json:"id"`
	At time.Time `json:"at"`
}

// ProjectTokenMinted records the dedicated token of a project created without
// one, along with the fee paid from its supply.
type ProjectTokenMinted struct {
	ID        string    `json:"id"`
	Token     string    `json:"token"`
	Supply    uint64    `json:"supply"`
	NetBudget uint64    `json:"net_budget"`
	Fee       uint64    `json:"fee"`
	At        time.Time `json:"at"`
}

// ProjectStarted is emitted once per project. For minted-token projects it
// also carries the token and the fee split of the paid amount.
type ProjectStarted struct {
	ID         string    `json:"id"`
	Token      string    `json:"token"`
	PaidAmount uint64    `json:"paid_amount"`
	NetBudget  uint64    `json:"net_budget"`
	Fee        uint64    `json:"fee"`
	At         time.Time `json:"at"`
}

type ProjectFinished struct {
	ID     string    `json:"id"`
	Refund uint64    `json:"refund"`
	At     time.Time `json:"at"`
}

type PackageCreated struct {
	ID             string    `json:"id"`
	ProjectID      string    `json:"project_id"`
	Budget         uint64    `json:"budget"`
	BonusBudget    uint64    `json:"bonus_budget"`
	ObserverBudget uint64    `json:"observer_budget"`
	At             time.Time `json:"at"`
}

type PackageFinished struct {
	ID        string    `json:"id"`
	ProjectID string    `json:"project_id"`
	At        time.Time `json:"at"`
}

type PackageCancelled struct {
	ID        string    `json:"id"`
	ProjectID string    `json:"project_id"`
	Budget    uint64    `json:"budget"`
	At        time.Time `json:"at"`
}

type CollaboratorAdded struct {
	PackageID string    `json:"package_id"`
	ProjectID string    `json:"project_id"`
	Identity  string    `json:"identity"`
	Share     uint64    `json:"share"`
	At        time.Time `json:"at"`
}

type CollaboratorRemoved struct {
	PackageID string `json:"package_id"`
	ProjectID string `json:"project_id"`
	Identity  string `json:"identity"`
	Share     uint64 `json:"share"`
}

type AuthorityTransferred struct {
	From string    `json:"from"`
	To   string    `json:"to"`
	At   time.Time `json:"at"`
}
