// Package notifications defines workflow lifecycle notification events and
// the sink contract the engine emits them through. Delivery transport is an
// external concern; the engine treats emission as fire-and-forget.
package notifications

import (
	"time"

	"github.com/google/uuid"
)

// Type identifies a workflow lifecycle notification.
type Type string

// Notification types.
const (
	WorkflowStarted   Type = "WorkflowStarted"
	WorkflowCancelled Type = "WorkflowCancelled"
	StepApproved      Type = "StepApproved"
	StepRejected      Type = "StepRejected"
	ChangesRequested  Type = "ChangesRequested"
	StepDelegated     Type = "StepDelegated"
	StepCompleted     Type = "StepCompleted"
	StepTimeout       Type = "StepTimeout"
)

// Event is one outbound workflow notification.
type Event struct {
	WorkflowID uuid.UUID `json:"workflow_id"`
	DocumentID uuid.UUID `json:"document_id"`
	Type       Type      `json:"type"`
	Message    string    `json:"message"`
	ActorID    string    `json:"actor_id,omitempty"`
	Comment    string    `json:"comment,omitempty"`
	OccurredAt time.Time `json:"occurred_at"`
}

// Sink receives notification events. Implementations must never block a
// workflow transition: failures are handled inside the sink, not returned.
type Sink interface {
	Send(event Event)
}
