package event

import (
	"encoding/json"
	"time"
)

// Type names a committed lifecycle transition.
type Type string

const (
	TypeProjectCreated       Type = "project_created"
	TypeProjectApproved      Type = "project_approved"
	TypeProjectTokenMinted   Type = "project_token_minted"
	TypeProjectStarted       Type = "project_started"
	TypeProjectFinished      Type = "project_finished"
	TypePackageCreated       Type = "package_created"
	TypePackageFinished      Type = "package_finished"
	TypePackageCancelled     Type = "package_cancelled"
	TypeCollaboratorAdded    Type = "collaborator_added"
	TypeCollaboratorRemoved  Type = "collaborator_removed"
	TypeAuthorityTransferred Type = "authority_transferred"
)

// Event is one entry of the append-only transition log.
type Event struct {
	Seq       int64           `json:"seq"`
	Type      Type            `json:"type"`
	ProjectID string          `json:"project_id,omitempty"`
	PackageID string          `json:"package_id,omitempty"`
	Payload   json.RawMessage `json:"payload"`
	CreatedAt time.Time       `json:"created_at"`
}

// ListOptions filters the event log.
type ListOptions struct {
	ProjectID string
	AfterSeq  int64
	Limit     int
}

// New builds an event with a JSON-encoded payload.
func New(typ Type, projectID, packageID string, payload any, at time.Time) (Event, error) {
	data, err := json.Marshal(payload)
	if err != nil {
		return Event{}, err
	}
	return Event{
		Type:      typ,
		ProjectID: projectID,
		PackageID: packageID,
		Payload:   data,
		CreatedAt: at,
	}, nil
}

// Decode unmarshals the payload into dst.
func (e Event) Decode(dst any) error {
	return json.Unmarshal(e.Payload, dst)
}
