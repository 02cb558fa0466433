// Package workflows implements the workflow automation engine for Arbiter.
// It drives a document through a sequence of human and automatic approval
// steps: per-step state tracking, action validation, automatic-trigger
// evaluation, timeout detection, and lifecycle notifications.
package workflows

import (
	"time"

	"github.com/google/uuid"

	"github.com/JaimeStill/arbiter/internal/templates"
)

// Status is the overall state of a workflow instance.
type Status string

// Workflow statuses. Created and OnHold are representable but the engine
// constructs instances directly into Active and defines no transition into
// or out of OnHold; it is reserved for a future manual hold/resume action.
const (
	StatusCreated   Status = "Created"
	StatusActive    Status = "Active"
	StatusCompleted Status = "Completed"
	StatusCancelled Status = "Cancelled"
	StatusRejected  Status = "Rejected"
	StatusOnHold    Status = "OnHold"
)

// Terminal reports whether no further transitions are possible.
func (s Status) Terminal() bool {
	return s == StatusCompleted || s == StatusCancelled || s == StatusRejected
}

// StepStatus is the state of a single step within an instance.
type StepStatus string

// Step statuses.
const (
	StepNotStarted       StepStatus = "NotStarted"
	StepPending          StepStatus = "Pending"
	StepInProgress       StepStatus = "InProgress"
	StepCompleted        StepStatus = "Completed"
	StepRejected         StepStatus = "Rejected"
	StepChangesRequested StepStatus = "ChangesRequested"
	StepTimedOut         StepStatus = "Timeout"
	StepSkipped          StepStatus = "Skipped"
)

// Terminal reports whether the step accepts no further actions.
func (s StepStatus) Terminal() bool {
	switch s {
	case StepCompleted, StepRejected, StepSkipped, StepTimedOut:
		return true
	}
	return false
}

// Action is an operation submitted by an actor against the current step.
type Action struct {
	Type       templates.ActionType `json:"type"`
	DelegateTo string               `json:"delegate_to,omitempty"`
	Parameters map[string]string    `json:"parameters,omitempty"`
}

// ActionRecord is one entry in a step's append-only action history,
// ordered by acceptance time.
type ActionRecord struct {
	Action     templates.ActionType `json:"action"`
	ActorID    string               `json:"actor_id"`
	Comment    string               `json:"comment,omitempty"`
	RecordedAt time.Time            `json:"recorded_at"`
}

// Step is a runtime copy of a template step plus execution state.
type Step struct {
	Definition        templates.Step `json:"definition"`
	Status            StepStatus     `json:"status"`
	Assignee          string         `json:"assignee,omitempty"`
	StartedAt         *time.Time     `json:"started_at,omitempty"`
	CompletedAt       *time.Time     `json:"completed_at,omitempty"`
	CompletedBy       string         `json:"completed_by,omitempty"`
	TimeoutNotifiedAt *time.Time     `json:"timeout_notified_at,omitempty"`
	History           []ActionRecord `json:"history,omitempty"`
}

// TimedOut reports whether the step's timeout has elapsed. Steps without a
// timeout, not yet started, or already terminal never time out.
func (s *Step) TimedOut(now time.Time) bool {
	if s.Definition.Timeout <= 0 || s.StartedAt == nil || s.Status.Terminal() {
		return false
	}
	return now.After(s.StartedAt.Add(s.Definition.Timeout))
}

func (s Step) clone() Step {
	c := s
	c.Definition = s.Definition.Clone()
	c.StartedAt = cloneTime(s.StartedAt)
	c.CompletedAt = cloneTime(s.CompletedAt)
	c.TimeoutNotifiedAt = cloneTime(s.TimeoutNotifiedAt)
	c.History = append([]ActionRecord(nil), s.History...)
	return c
}

// Instance is one live execution of a template against a document. Steps are
// deep-copied from the template at creation; later template registration
// never affects existing instances.
//
// Invariants while Status == Active: CurrentStep < len(Steps); exactly one
// step is Pending or InProgress (the current one); all prior steps are
// terminal and all later steps NotStarted.
type Instance struct {
	ID          uuid.UUID         `json:"id"`
	DocumentID  uuid.UUID         `json:"document_id"`
	Template    string            `json:"template"`
	Status      Status            `json:"status"`
	CurrentStep int               `json:"current_step"`
	Steps       []Step            `json:"steps"`
	Variables   map[string]string `json:"variables,omitempty"`
	CreatedBy   string            `json:"created_by"`
	CreatedAt   time.Time         `json:"created_at"`
	UpdatedAt   time.Time         `json:"updated_at"`
	CompletedAt *time.Time        `json:"completed_at,omitempty"`
}

// Current returns the current step, or nil when the instance has advanced
// past its last step.
func (i *Instance) Current() *Step {
	if i.CurrentStep < 0 || i.CurrentStep >= len(i.Steps) {
		return nil
	}
	return &i.Steps[i.CurrentStep]
}

// Clone returns a deep copy of the instance.
func (i *Instance) Clone() *Instance {
	c := *i
	c.Steps = make([]Step, len(i.Steps))
	for idx, s := range i.Steps {
		c.Steps[idx] = s.clone()
	}
	if i.Variables != nil {
		c.Variables = make(map[string]string, len(i.Variables))
		for k, v := range i.Variables {
			c.Variables[k] = v
		}
	}
	c.CompletedAt = cloneTime(i.CompletedAt)
	return &c
}

func cloneTime(t *time.Time) *time.Time {
	if t == nil {
		return nil
	}
	c := *t
	return &c
}
