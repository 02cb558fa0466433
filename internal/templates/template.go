// Package templates implements the workflow template domain for Arbiter.
// It provides immutable, named definitions of ordered step sequences and a
// registry for registering and resolving them by name.
package templates

import (
	"time"
)

// StepType categorizes the kind of work a workflow step represents.
type StepType string

// Step types.
const (
	StepReview       StepType = "Review"
	StepApproval     StepType = "Approval"
	StepProcessing   StepType = "Processing"
	StepNotification StepType = "Notification"
	StepIntegration  StepType = "Integration"
	StepDecision     StepType = "Decision"
)

// ActionType identifies an operation an actor may submit against a step.
type ActionType string

// Action types.
const (
	ActionApprove        ActionType = "Approve"
	ActionReject         ActionType = "Reject"
	ActionRequestChanges ActionType = "RequestChanges"
	ActionDelegate       ActionType = "Delegate"
	ActionComplete       ActionType = "Complete"
	ActionSkip           ActionType = "Skip"
	ActionEscalate       ActionType = "Escalate"
	ActionHold           ActionType = "Hold"
	ActionResume         ActionType = "Resume"
)

// Action describes one operation permitted on a step, with an optional
// delegation target and free-form parameters.
type Action struct {
	Type       ActionType        `json:"type"`
	Label      string            `json:"label"`
	DelegateTo string            `json:"delegate_to,omitempty"`
	Parameters map[string]string `json:"parameters,omitempty"`
}

// Step defines one stage of a workflow template: what kind of step it is,
// who works it, which actions it accepts, which automatic-trigger conditions
// apply (evaluated in declaration order), and an optional timeout.
type Step struct {
	Name              string        `json:"name"`
	Type              StepType      `json:"type"`
	Assignee          string        `json:"assignee,omitempty"`
	RequiredRoles     []string      `json:"required_roles,omitempty"`
	Actions           []Action      `json:"actions"`
	TriggerConditions []string      `json:"trigger_conditions,omitempty"`
	Timeout           time.Duration `json:"timeout,omitempty"`
}

// Allows reports whether the step permits the given action type.
func (s *Step) Allows(action ActionType) bool {
	for _, a := range s.Actions {
		if a.Type == action {
			return true
		}
	}
	return false
}

// Clone returns a deep copy of the step. Workflow instances copy template
// steps at creation time so later template changes never leak into them.
func (s Step) Clone() Step {
	c := s
	c.RequiredRoles = append([]string(nil), s.RequiredRoles...)
	c.TriggerConditions = append([]string(nil), s.TriggerConditions...)
	c.Actions = make([]Action, len(s.Actions))
	for i, a := range s.Actions {
		c.Actions[i] = a
		if a.Parameters != nil {
			params := make(map[string]string, len(a.Parameters))
			for k, v := range a.Parameters {
				params[k] = v
			}
			c.Actions[i].Parameters = params
		}
	}
	return c
}

// Template is an immutable, named workflow definition. Once registered it is
// never mutated; instances deep-copy its steps at creation.
type Template struct {
	Name        string    `json:"name"`
	Description string    `json:"description"`
	Steps       []Step    `json:"steps"`
	Active      bool      `json:"active"`
	CreatedBy   string    `json:"created_by"`
	CreatedAt   time.Time `json:"created_at"`
}

// Clone returns a deep copy of the template.
func (t Template) Clone() Template {
	c := t
	c.Steps = make([]Step, len(t.Steps))
	for i, s := range t.Steps {
		c.Steps[i] = s.Clone()
	}
	return c
}
