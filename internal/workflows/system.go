package workflows

import (
	"context"

	"github.com/google/uuid"

	"github.com/JaimeStill/arbiter/internal/templates"
	"github.com/JaimeStill/arbiter/pkg/pagination"
)

// CreateCommand carries the data needed to start a workflow for a document.
type CreateCommand struct {
	DocumentID uuid.UUID `json:"document_id"`
	Template   string    `json:"template"`
	CreatedBy  string    `json:"created_by"`
}

// AdvanceCommand carries one action submission against a workflow's current step.
type AdvanceCommand struct {
	WorkflowID uuid.UUID `json:"workflow_id"`
	Action     Action    `json:"action"`
	ActorID    string    `json:"actor_id"`
	Comment    string    `json:"comment,omitempty"`
}

// CancelCommand carries a best-effort cancellation request.
type CancelCommand struct {
	WorkflowID uuid.UUID `json:"workflow_id"`
	ActorID    string    `json:"actor_id"`
	Reason     string    `json:"reason,omitempty"`
}

// System defines the public contract for workflow engine operations.
// The controller layer consumes this surface; ProcessAutomaticActions is
// normally invoked by the background sweeper rather than a client.
type System interface {
	CreateWorkflow(ctx context.Context, cmd CreateCommand) (*Instance, error)
	Find(ctx context.Context, id uuid.UUID) (*Instance, error)

	ListForDocument(
		ctx context.Context,
		documentID uuid.UUID,
		page pagination.PageRequest,
	) (*pagination.PageResult[Instance], error)

	Advance(ctx context.Context, cmd AdvanceCommand) (*Instance, error)
	Cancel(ctx context.Context, cmd CancelCommand) (bool, error)
	ProcessAutomaticActions(ctx context.Context)

	RegisterTemplate(t templates.Template) error
	Templates() []templates.Template
}
