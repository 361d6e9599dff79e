package mcp

import (
	"context"

	sdkmcp "github.com/modelcontextprotocol/go-sdk/mcp"
)

// addTool registers op as a typed tool acting as the identity resolved by
// the middleware chain.
func addTool[In, Out any](server *sdkmcp.Server, name, description string, op func(context.Context, string, In) (Out, error)) {
	sdkmcp.AddTool(server, &sdkmcp.Tool{
		Name:        name,
		Description: description,
	}, func(ctx context.Context, _ *sdkmcp.CallToolRequest, in In) (*sdkmcp.CallToolResult, Out, error) {
		out, err := op(ctx, IdentityFromContext(ctx), in)
		if err != nil {
			var zero Out
			return nil, zero, err
		}
		return nil, out, nil
	})
}

func registerTools(server *sdkmcp.Server, h *Handler) {
	// Projects
	addTool(server, "create_project",
		"Create a project with a gross budget. With an existing token the budget is escrowed, the treasury fee paid and the project started immediately; without one the project waits for approval.",
		h.createProject)
	addTool(server, "approve_project",
		"Approve a created project. Only the governing authority may call this.",
		h.approveProject)
	addTool(server, "start_project",
		"Start an approved project: mints its token into custody and pays the treasury fee. Initiator only.",
		h.startProject)
	addTool(server, "finish_project",
		"Finish a started project and refund its unallocated net budget to the initiator. Every package must be closed.",
		h.finishProject)
	addTool(server, "get_project", "Get a project by ID.", h.getProject)
	addTool(server, "list_projects", "List projects, newest first, optionally filtered by initiator or state.", h.listProjects)

	// Packages
	addTool(server, "create_package",
		"Reserve part of a started project's net budget as a package. Bonus and observer sub-allocations are reserved inside the package.",
		h.createPackage)
	addTool(server, "finish_package", "Close an open package. Its budget stays allocated.", h.finishPackage)
	addTool(server, "cancel_package",
		"Close an open package that has no collaborators and return its budget to the project.",
		h.cancelPackage)
	addTool(server, "get_package", "Get a package by ID.", h.getPackage)
	addTool(server, "list_packages", "List the packages of a project in creation order.", h.listPackages)

	// Collaborators
	addTool(server, "add_collaborator", "Reserve a share of an open package for an identity.", h.addCollaborator)
	addTool(server, "remove_collaborator", "Release a collaborator's share back to the package.", h.removeCollaborator)
	addTool(server, "list_collaborators", "List the collaborators of a package.", h.listCollaborators)

	// Governance
	addTool(server, "transfer_authority", "Hand the approval role to another identity. Authority only.", h.transferAuthority)
	addTool(server, "get_authority", "Get the current governing authority.", h.getAuthority)
	addTool(server, "get_fee_config", "Get the treasury fee rate and precision.", h.getFeeConfig)

	// Event log
	addTool(server, "list_events", "List committed lifecycle events in sequence order. Observers resync from here after a gap in seq.", h.listEvents)
}
