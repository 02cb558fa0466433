package workflows

import (
	"fmt"
	"time"

	"github.com/JaimeStill/arbiter/internal/documents"
	"github.com/JaimeStill/arbiter/internal/notifications"
	"github.com/JaimeStill/arbiter/internal/templates"
)

// SystemActor is the actor id recorded for engine-synthesized actions.
const SystemActor = "system"

// Confidence above this threshold satisfies the high_confidence condition.
const highConfidenceThreshold = 0.9

// ValidateAction reports whether the action type is legal for the step:
// the step must not be terminal and the type must appear in the step's
// allowed action set.
func ValidateAction(step *Step, action templates.ActionType) error {
	if step.Status.Terminal() {
		return fmt.Errorf(
			"%w: step %q is already %s",
			ErrActionNotAllowed, step.Definition.Name, step.Status,
		)
	}
	if !step.Definition.Allows(action) {
		return fmt.Errorf(
			"%w: %s on step %q",
			ErrActionNotAllowed, action, step.Definition.Name,
		)
	}
	return nil
}

// ApplyAction mutates the instance according to the transition table for the
// current step and returns the notification type for the transition. It is
// pure over its inputs (no I/O); the engine runs it inside Store.Update so a
// validation failure leaves the stored instance untouched.
func ApplyAction(
	inst *Instance,
	action Action,
	actorID string,
	comment string,
	now time.Time,
) (notifications.Type, error) {
	step := inst.Current()
	if step == nil {
		return "", fmt.Errorf("%w: no current step", ErrInvalidState)
	}

	if err := ValidateAction(step, action.Type); err != nil {
		return "", err
	}

	switch action.Type {
	case templates.ActionApprove, templates.ActionComplete, templates.ActionReject,
		templates.ActionRequestChanges, templates.ActionDelegate, templates.ActionSkip:
	default:
		// Escalate, Hold, and Resume are representable in templates but have
		// no engine transition yet.
		return "", fmt.Errorf("%w: %s has no transition", ErrActionNotAllowed, action.Type)
	}

	step.History = append(step.History, ActionRecord{
		Action:     action.Type,
		ActorID:    actorID,
		Comment:    comment,
		RecordedAt: now,
	})
	inst.UpdatedAt = now

	switch action.Type {
	case templates.ActionApprove:
		finishStep(step, StepCompleted, actorID, now)
		advance(inst, now)
		return notifications.StepApproved, nil

	case templates.ActionComplete:
		finishStep(step, StepCompleted, actorID, now)
		advance(inst, now)
		return notifications.StepCompleted, nil

	case templates.ActionReject:
		finishStep(step, StepRejected, actorID, now)
		inst.Status = StatusRejected
		inst.CompletedAt = &now
		return notifications.StepRejected, nil

	case templates.ActionRequestChanges:
		step.Status = StepChangesRequested
		return notifications.ChangesRequested, nil

	case templates.ActionDelegate:
		step.Status = StepPending
		step.Assignee = action.DelegateTo
		return notifications.StepDelegated, nil

	default: // templates.ActionSkip
		finishStep(step, StepSkipped, actorID, now)
		advance(inst, now)
		return notifications.StepCompleted, nil
	}
}

func finishStep(step *Step, status StepStatus, actorID string, now time.Time) {
	step.Status = status
	step.CompletedAt = &now
	step.CompletedBy = actorID
}

// advance moves the instance to the next step. Past the last step the
// workflow completes; otherwise the next step becomes Pending and starts now.
func advance(inst *Instance, now time.Time) {
	inst.CurrentStep++

	if inst.CurrentStep >= len(inst.Steps) {
		inst.Status = StatusCompleted
		inst.CompletedAt = &now
		return
	}

	next := &inst.Steps[inst.CurrentStep]
	next.Status = StepPending
	next.StartedAt = &now
	if next.Assignee == "" {
		next.Assignee = next.Definition.Assignee
	}
}

// EvaluateTrigger evaluates a named automatic-trigger condition against the
// instance's variables and a document snapshot. Unknown condition names
// evaluate to false so a misconfigured template can never force an
// unintended auto-completion.
func EvaluateTrigger(name string, inst *Instance, doc *documents.Snapshot) bool {
	switch name {
	case templates.CondDocumentClassified:
		return doc != nil && doc.Classified()
	case templates.CondHighConfidence:
		return doc != nil && doc.HighConfidence(highConfidenceThreshold)
	case templates.CondLowRiskDocument:
		return inst.Variables["RiskLevel"] == "Low"
	default:
		return false
	}
}

// FirstTrigger evaluates the current step's conditions in template order and
// returns the first that holds. Later conditions are not evaluated.
func FirstTrigger(inst *Instance, doc *documents.Snapshot) (string, bool) {
	step := inst.Current()
	if step == nil {
		return "", false
	}

	for _, name := range step.Definition.TriggerConditions {
		if EvaluateTrigger(name, inst, doc) {
			return name, true
		}
	}
	return "", false
}
