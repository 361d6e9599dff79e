package mcp

import (
	"context"
	"encoding/json"
	"fmt"

	"github.com/rpggio/fundflow/internal/domain/event"
	"github.com/rpggio/fundflow/internal/domain/fee"
	"github.com/rpggio/fundflow/internal/domain/project"
)

// Engine defines the lifecycle operations needed by MCP.
type Engine interface {
	CreateProject(ctx context.Context, caller string, req project.CreateProjectRequest) (*project.Project, error)
	ApproveProject(ctx context.Context, caller, id string) (*project.Project, error)
	StartProject(ctx context.Context, caller, id string) (*project.Project, error)
	FinishProject(ctx context.Context, caller, id string) (*project.Project, error)

	CreatePackage(ctx context.Context, caller string, req project.CreatePackageRequest) (*project.Package, error)
	FinishPackage(ctx context.Context, caller, packageID string) (*project.Package, error)
	CancelPackage(ctx context.Context, caller, packageID string) (*project.Package, error)

	AddCollaborator(ctx context.Context, caller string, req project.AddCollaboratorRequest) (*project.Collaborator, error)
	RemoveCollaborator(ctx context.Context, caller, packageID, identity string) error
	ListCollaborators(ctx context.Context, packageID string) ([]project.Collaborator, error)

	TransferAuthority(ctx context.Context, caller, next string) error
	Authority() string
	Fees() fee.Config

	GetProject(ctx context.Context, id string) (*project.Project, error)
	ListProjects(ctx context.Context, opts project.ListOptions) ([]project.Project, error)
	GetPackage(ctx context.Context, id string) (*project.Package, error)
	ListPackages(ctx context.Context, projectID string) ([]project.Package, error)
	ListEvents(ctx context.Context, opts event.ListOptions) ([]event.Event, error)
}

// Handler dispatches MCP commands.
type Handler struct {
	engine Engine
}

// NewHandler creates a new MCP handler.
func NewHandler(engine Engine) *Handler {
	return &Handler{engine: engine}
}

// Handle dispatches a named method with JSON params on behalf of caller.
func (h *Handler) Handle(ctx context.Context, caller, method string, params json.RawMessage) (any, error) {
	switch method {
	case "create_project":
		return dispatch(ctx, caller, params, h.createProject)
	case "approve_project":
		return dispatch(ctx, caller, params, h.approveProject)
	case "start_project":
		return dispatch(ctx, caller, params, h.startProject)
	case "finish_project":
		return dispatch(ctx, caller, params, h.finishProject)
	case "get_project":
		return dispatch(ctx, caller, params, h.getProject)
	case "list_projects":
		return dispatch(ctx, caller, params, h.listProjects)
	case "create_package":
		return dispatch(ctx, caller, params, h.createPackage)
	case "finish_package":
		return dispatch(ctx, caller, params, h.finishPackage)
	case "cancel_package":
		return dispatch(ctx, caller, params, h.cancelPackage)
	case "get_package":
		return dispatch(ctx, caller, params, h.getPackage)
	case "list_packages":
		return dispatch(ctx, caller, params, h.listPackages)
	case "add_collaborator":
		return dispatch(ctx, caller, params, h.addCollaborator)
	case "remove_collaborator":
		return dispatch(ctx, caller, params, h.removeCollaborator)
	case "list_collaborators":
		return dispatch(ctx, caller, params, h.listCollaborators)
	case "transfer_authority":
		return dispatch(ctx, caller, params, h.transferAuthority)
	case "get_authority":
		return dispatch(ctx, caller, params, h.getAuthority)
	case "get_fee_config":
		return dispatch(ctx, caller, params, h.getFeeConfig)
	case "list_events":
		return dispatch(ctx, caller, params, h.listEvents)
	default:
		return nil, fmt.Errorf("%w: %s", ErrUnknownMethod, method)
	}
}

func dispatch[In, Out any](ctx context.Context, caller string, params json.RawMessage, op func(context.Context, string, In) (Out, error)) (any, error) {
	var in In
	if err := decodeParams(params, &in); err != nil {
		return nil, err
	}
	out, err := op(ctx, caller, in)
	if err != nil {
		return nil, err
	}
	return out, nil
}

func decodeParams(params json.RawMessage, out any) error {
	if len(params) == 0 {
		return nil
	}
	if err := json.Unmarshal(params, out); err != nil {
		return fmt.Errorf("%w: %v", ErrInvalidParams, err)
	}
	return nil
}

func (h *Handler) createProject(ctx context.Context, caller string, in CreateProjectParams) (project.Project, error) {
	proj, err := h.engine.CreateProject(ctx, caller, project.CreateProjectRequest{
		Token:  in.Token,
		Budget: in.Budget,
	})
	return projectValue(proj, err)
}

func (h *Handler) approveProject(ctx context.Context, caller string, in ProjectIDParams) (project.Project, error) {
	return projectValue(h.engine.ApproveProject(ctx, caller, in.ID))
}

func (h *Handler) startProject(ctx context.Context, caller string, in ProjectIDParams) (project.Project, error) {
	return projectValue(h.engine.StartProject(ctx, caller, in.ID))
}

func (h *Handler) finishProject(ctx context.Context, caller string, in ProjectIDParams) (project.Project, error) {
	return projectValue(h.engine.FinishProject(ctx, caller, in.ID))
}

func (h *Handler) getProject(ctx context.Context, _ string, in ProjectIDParams) (project.Project, error) {
	return projectValue(h.engine.GetProject(ctx, in.ID))
}

func (h *Handler) listProjects(ctx context.Context, _ string, in ListProjectsParams) (ProjectListResponse, error) {
	projects, err := h.engine.ListProjects(ctx, project.ListOptions{
		Initiator: in.Initiator,
		State:     in.State,
		Limit:     in.Limit,
		Offset:    in.Offset,
	})
	if err != nil {
		return ProjectListResponse{}, mapError(err)
	}
	if projects == nil {
		projects = []project.Project{}
	}
	return ProjectListResponse{Projects: projects}, nil
}

func (h *Handler) createPackage(ctx context.Context, caller string, in CreatePackageParams) (project.Package, error) {
	return packageValue(h.engine.CreatePackage(ctx, caller, project.CreatePackageRequest{
		ProjectID:      in.ProjectID,
		Budget:         in.Budget,
		BonusBudget:    in.BonusBudget,
		ObserverBudget: in.ObserverBudget,
	}))
}

func (h *Handler) finishPackage(ctx context.Context, caller string, in PackageIDParams) (project.Package, error) {
	return packageValue(h.engine.FinishPackage(ctx, caller, in.ID))
}

func (h *Handler) cancelPackage(ctx context.Context, caller string, in PackageIDParams) (project.Package, error) {
	return packageValue(h.engine.CancelPackage(ctx, caller, in.ID))
}

func (h *Handler) getPackage(ctx context.Context, _ string, in PackageIDParams) (project.Package, error) {
	return packageValue(h.engine.GetPackage(ctx, in.ID))
}

func (h *Handler) listPackages(ctx context.Context, _ string, in ProjectIDParams) (PackageListResponse, error) {
	packages, err := h.engine.ListPackages(ctx, in.ID)
	if err != nil {
		return PackageListResponse{}, mapError(err)
	}
	if packages == nil {
		packages = []project.Package{}
	}
	return PackageListResponse{Packages: packages}, nil
}

func (h *Handler) addCollaborator(ctx context.Context, caller string, in AddCollaboratorParams) (project.Collaborator, error) {
	collab, err := h.engine.AddCollaborator(ctx, caller, project.AddCollaboratorRequest{
		PackageID: in.PackageID,
		Identity:  in.Identity,
		Share:     in.Share,
	})
	if err != nil {
		return project.Collaborator{}, mapError(err)
	}
	return *collab, nil
}

func (h *Handler) removeCollaborator(ctx context.Context, caller string, in RemoveCollaboratorParams) (AckResponse, error) {
	if err := h.engine.RemoveCollaborator(ctx, caller, in.PackageID, in.Identity); err != nil {
		return AckResponse{}, mapError(err)
	}
	return AckResponse{OK: true}, nil
}

func (h *Handler) listCollaborators(ctx context.Context, _ string, in PackageIDParams) (CollaboratorListResponse, error) {
	collabs, err := h.engine.ListCollaborators(ctx, in.ID)
	if err != nil {
		return CollaboratorListResponse{}, mapError(err)
	}
	if collabs == nil {
		collabs = []project.Collaborator{}
	}
	return CollaboratorListResponse{Collaborators: collabs}, nil
}

func (h *Handler) transferAuthority(ctx context.Context, caller string, in TransferAuthorityParams) (AuthorityResponse, error) {
	if err := h.engine.TransferAuthority(ctx, caller, in.To); err != nil {
		return AuthorityResponse{}, mapError(err)
	}
	return AuthorityResponse{Authority: h.engine.Authority()}, nil
}

func (h *Handler) getAuthority(_ context.Context, _ string, _ EmptyParams) (AuthorityResponse, error) {
	return AuthorityResponse{Authority: h.engine.Authority()}, nil
}

func (h *Handler) getFeeConfig(_ context.Context, _ string, _ EmptyParams) (FeeConfigResponse, error) {
	return newFeeConfigResponse(h.engine.Fees()), nil
}

func (h *Handler) listEvents(ctx context.Context, _ string, in ListEventsParams) (EventListResponse, error) {
	events, err := h.engine.ListEvents(ctx, event.ListOptions{
		ProjectID: in.ProjectID,
		AfterSeq:  in.AfterSeq,
		Limit:     in.Limit,
	})
	if err != nil {
		return EventListResponse{}, mapError(err)
	}
	resp := EventListResponse{Events: make([]EventResponse, 0, len(events))}
	for _, evt := range events {
		item, err := newEventResponse(evt)
		if err != nil {
			return EventListResponse{}, fmt.Errorf("decoding event %d: %w", evt.Seq, err)
		}
		resp.Events = append(resp.Events, item)
	}
	return resp, nil
}

func projectValue(proj *project.Project, err error) (project.Project, error) {
	if err != nil {
		return project.Project{}, mapError(err)
	}
	return *proj, nil
}

func packageValue(pkg *project.Package, err error) (project.Package, error) {
	if err != nil {
		return project.Package{}, mapError(err)
	}
	return *pkg, nil
}

func mapError(err error) error {
	if apiErr := MapError(err); apiErr != nil {
		return apiErr
	}
	return err
}
