package mcp

import (
	"context"

	sdkmcp "github.com/modelcontextprotocol/go-sdk/mcp"
)

const serverInstructions = `fundflow escrows project budgets and carves them into packages.

Core concepts:
- Project: a budget committed by its initiator. Lifecycle created -> approved -> started -> finished.
- Own-token project: created with an existing token; escrowed, fee paid and started in one step.
- Minted-token project: created without a token; the authority approves it and the initiator starts it,
  which mints the dedicated token prj-<project id> into custody once; a retried start reuses it.
- Net budget: gross budget minus the treasury fee. Packages are reserved from the net budget.
- Package: a slice of the net budget with optional bonus and observer sub-allocations. Open until finished or cancelled.
- Collaborator: an identity holding a share of a package budget.
- Authority: the identity allowed to approve projects and to transfer the role.

Workflow:
1) create_project (initiator). With a token, the initiator must first approve the engine's custody account
   as spender for the full gross budget.
2) approve_project (authority), then start_project (initiator) for minted-token projects.
3) create_package, add_collaborator / remove_collaborator.
4) finish_package or cancel_package for every package.
5) finish_project refunds the unallocated net budget to the initiator.

Every error carries a stable code (NOT_AUTHORIZED, NOT_FOUND, INVALID_STATE, INVALID_AMOUNT,
INSUFFICIENT_BUDGET, TOKEN_TRANSFER_FAILED, OPEN_PACKAGES_EXIST, INVALID_INPUT) and a recovery hint.

Docs:
- fundflow://docs/concepts
- fundflow://docs/accounting
`

type docResource struct {
	URI         string
	Name        string
	Title       string
	Description string
	Content     string
}

var docResources = []docResource{
	{
		URI:         "fundflow://docs/concepts",
		Name:        "docs_concepts",
		Title:       "fundflow concepts",
		Description: "Lifecycle states, roles and the checks each operation performs.",
		Content: `# fundflow concepts

## Roles

- **Initiator**: the identity that created a project. Only the initiator may start or finish it
  and manage its packages and collaborators.
- **Authority**: a single governing identity. It approves minted-token projects and may hand the role over
  with transfer_authority.

## Project states

| State    | Reached by                                   |
|----------|----------------------------------------------|
| created  | create_project without a token               |
| approved | approve_project                              |
| started  | start_project, or create_project with token  |
| finished | finish_project (terminal)                    |

## Package states

open -> finished, or open -> cancelled. Both are terminal.
Cancelling returns the package budget to the project and is only allowed without collaborators.

## Check order

Every operation checks, in order: caller role, existence, lifecycle state, amount, then budget capacity.
The first failing check decides the error code.
`,
	},
	{
		URI:         "fundflow://docs/accounting",
		Name:        "docs_accounting",
		Title:       "fundflow accounting",
		Description: "Fee computation and budget invariants.",
		Content: `# fundflow accounting

## Treasury fee

fee = floor(budget * rate / precision), net = budget - fee. The remainder of the division stays in net,
so net + fee always equals the budget. get_fee_config returns rate and precision.

## Budget bounds

- Sum of package budgets of a project <= its net budget.
- Bonus + observer + collaborator shares of a package <= the package budget.
- Amounts are integers in token base units, between 1 and 2^63-1.

## Refund

finish_project pays net_budget - budget_allocated back to the initiator once every package is closed.
`,
	},
}

func registerDocResources(server *sdkmcp.Server) {
	for _, doc := range docResources {
		server.AddResource(&sdkmcp.Resource{
			URI:         doc.URI,
			Name:        doc.Name,
			Title:       doc.Title,
			Description: doc.Description,
			MIMEType:    "text/markdown",
			Size:        int64(len(doc.Content)),
		}, func(_ context.Context, req *sdkmcp.ReadResourceRequest) (*sdkmcp.ReadResourceResult, error) {
			uri := doc.URI
			if req != nil && req.Params != nil && req.Params.URI != "" {
				uri = req.Params.URI
			}
			return &sdkmcp.ReadResourceResult{
				Contents: []*sdkmcp.ResourceContents{{
					URI:      uri,
					MIMEType: "text/markdown",
					Text:     doc.Content,
				}},
			}, nil
		})
	}
}
