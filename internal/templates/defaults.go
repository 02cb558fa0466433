package templates

import "time"

// Canonical automatic-trigger condition names. Templates reference conditions
// by name; the engine evaluates them and treats unknown names as false.
const (
	CondDocumentClassified = "document_classified"
	CondHighConfidence     = "high_confidence"
	CondLowRiskDocument    = "low_risk_document"
)

// Default template names.
const (
	DocumentApproval = "DocumentApproval"
	QuickProcessing  = "QuickProcessing"
)

// RegisterDefaults bootstraps the built-in templates. It is called once at
// startup, before any workflow is created.
func RegisterDefaults(r *Registry) error {
	defaults := []Template{
		{
			Name:        DocumentApproval,
			Description: "Standard three-stage document approval",
			Active:      true,
			CreatedBy:   "system",
			Steps: []Step{
				{
					Name:    "Initial Review",
					Type:    StepReview,
					Timeout: 24 * time.Hour,
					Actions: []Action{
						{Type: ActionApprove, Label: "Approve"},
						{Type: ActionReject, Label: "Reject"},
						{Type: ActionRequestChanges, Label: "Request Changes"},
					},
				},
				{
					Name:    "Manager Approval",
					Type:    StepApproval,
					Timeout: 48 * time.Hour,
					Actions: []Action{
						{Type: ActionApprove, Label: "Approve"},
						{Type: ActionReject, Label: "Reject"},
						{Type: ActionDelegate, Label: "Delegate"},
					},
				},
				{
					Name: "Automated Processing",
					Type: StepProcessing,
					Actions: []Action{
						{Type: ActionComplete, Label: "Complete"},
					},
					TriggerConditions: []string{
						CondDocumentClassified,
						CondHighConfidence,
					},
				},
			},
		},
		{
			Name:        QuickProcessing,
			Description: "Single-step automated processing for low-risk documents",
			Active:      true,
			CreatedBy:   "system",
			Steps: []Step{
				{
					Name: "Automated Processing",
					Type: StepProcessing,
					Actions: []Action{
						{Type: ActionComplete, Label: "Complete"},
					},
					TriggerConditions: []string{
						CondLowRiskDocument,
						CondDocumentClassified,
					},
				},
			},
		},
	}

	for _, t := range defaults {
		if err := r.Register(t); err != nil {
			return err
		}
	}
	return nil
}
