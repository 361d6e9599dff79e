package mcp

import (
	"encoding/json"
	"time"

	"github.com/rpggio/fundflow/internal/domain/event"
	"github.com/rpggio/fundflow/internal/domain/fee"
	"github.com/rpggio/fundflow/internal/domain/project"
)

type CreateProjectParams struct {
	Token  string `json:"token,omitempty" jsonschema:"Existing token to escrow; omit to mint a project token on start"`
	Budget uint64 `json:"budget" jsonschema:"Gross budget in token base units, fee included"`
}

type ProjectIDParams struct {
	ID string `json:"id" jsonschema:"Project ID"`
}

type ListProjectsParams struct {
	Initiator string        `json:"initiator,omitempty" jsonschema:"Only projects created by this identity"`
	State     project.State `json:"state,omitempty" jsonschema:"Only projects in this state: created, approved, started or finished"`
	Limit     int           `json:"limit,omitempty"`
	Offset    int           `json:"offset,omitempty"`
}

type CreatePackageParams struct {
	ProjectID      string `json:"project_id" jsonschema:"Parent project ID"`
	Budget         uint64 `json:"budget" jsonschema:"Package budget reserved from the project's net budget"`
	BonusBudget    uint64 `json:"bonus_budget,omitempty" jsonschema:"Bonus sub-allocation reserved inside the package"`
	ObserverBudget uint64 `json:"observer_budget,omitempty" jsonschema:"Observer sub-allocation reserved inside the package"`
}

type PackageIDParams struct {
	ID string `json:"id" jsonschema:"Package ID"`
}

type AddCollaboratorParams struct {
	PackageID string `json:"package_id" jsonschema:"Package ID"`
	Identity  string `json:"identity" jsonschema:"Collaborator identity"`
	Share     uint64 `json:"share" jsonschema:"Share reserved from the package budget"`
}

type RemoveCollaboratorParams struct {
	PackageID string `json:"package_id" jsonschema:"Package ID"`
	Identity  string `json:"identity" jsonschema:"Collaborator identity"`
}

type TransferAuthorityParams struct {
	To string `json:"to" jsonschema:"Identity that becomes the governing authority"`
}

type ListEventsParams struct {
	ProjectID string `json:"project_id,omitempty" jsonschema:"Only events of this project"`
	AfterSeq  int64  `json:"after_seq,omitempty" jsonschema:"Return events with a greater sequence number"`
	Limit     int    `json:"limit,omitempty"`
}

type EmptyParams struct{}

type ProjectListResponse struct {
	Projects []project.Project `json:"projects"`
}

type PackageListResponse struct {
	Packages []project.Package `json:"packages"`
}

type CollaboratorListResponse struct {
	Collaborators []project.Collaborator `json:"collaborators"`
}

// EventResponse is an event with its payload decoded for clients.
type EventResponse struct {
	Seq       int64          `json:"seq"`
	Type      event.Type     `json:"type"`
	ProjectID string         `json:"project_id,omitempty"`
	PackageID string         `json:"package_id,omitempty"`
	Payload   map[string]any `json:"payload"`
	CreatedAt time.Time      `json:"created_at"`
}

type EventListResponse struct {
	Events []EventResponse `json:"events"`
}

type AuthorityResponse struct {
	Authority string `json:"authority"`
}

type FeeConfigResponse struct {
	Rate      uint64 `json:"rate"`
	Precision uint64 `json:"precision"`
}

type AckResponse struct {
	OK bool `json:"ok"`
}

func newEventResponse(evt event.Event) (EventResponse, error) {
	resp := EventResponse{
		Seq:       evt.Seq,
		Type:      evt.Type,
		ProjectID: evt.ProjectID,
		PackageID: evt.PackageID,
		CreatedAt: evt.CreatedAt,
	}
	if len(evt.Payload) > 0 {
		if err := json.Unmarshal(evt.Payload, &resp.Payload); err != nil {
			return EventResponse{}, err
		}
	}
	return resp, nil
}

func newFeeConfigResponse(cfg fee.Config) FeeConfigResponse {
	return FeeConfigResponse{Rate: cfg.Rate, Precision: cfg.Precision}
}
