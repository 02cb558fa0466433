package workflows

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"strconv"
	"time"

	"github.com/google/uuid"
	"github.com/jellydator/ttlcache/v3"
	"golang.org/x/sync/errgroup"

	"github.com/JaimeStill/arbiter/internal/documents"
	"github.com/JaimeStill/arbiter/internal/notifications"
	"github.com/JaimeStill/arbiter/internal/templates"
	"github.com/JaimeStill/arbiter/pkg/lifecycle"
	"github.com/JaimeStill/arbiter/pkg/pagination"
)

// Sentinels for no-op update paths; never surfaced to callers.
var (
	errAlreadyTerminal = errors.New("workflow already terminal")
	errTimeoutStale    = errors.New("timeout already handled")
)

// Options tunes engine behavior. Zero values fall back to defaults.
type Options struct {
	// SnapshotTTL bounds how long a document snapshot is reused across
	// trigger evaluations before being refetched.
	SnapshotTTL time.Duration
	// SweepConcurrency bounds how many instances one sweep processes in parallel.
	SweepConcurrency int
}

func (o *Options) defaults() {
	if o.SnapshotTTL <= 0 {
		o.SnapshotTTL = 30 * time.Second
	}
	if o.SweepConcurrency <= 0 {
		o.SweepConcurrency = 4
	}
}

// Engine orchestrates workflow creation, manual advancement, cancellation,
// and the periodic automatic-action sweep. It owns all instance mutation;
// every write goes through the Store's atomic Update.
type Engine struct {
	registry  *templates.Registry
	store     Store
	documents documents.Provider
	notifier  notifications.Sink
	logger    *slog.Logger
	snapshots *ttlcache.Cache[uuid.UUID, *documents.Snapshot]
	opts      Options
}

// NewEngine creates a workflow engine implementing the System interface.
func NewEngine(
	registry *templates.Registry,
	store Store,
	provider documents.Provider,
	notifier notifications.Sink,
	logger *slog.Logger,
	opts Options,
) *Engine {
	opts.defaults()

	cache := ttlcache.New(
		ttlcache.WithTTL[uuid.UUID, *documents.Snapshot](opts.SnapshotTTL),
	)

	return &Engine{
		registry:  registry,
		store:     store,
		documents: provider,
		notifier:  notifier,
		logger:    logger.With("system", "workflows"),
		snapshots: cache,
		opts:      opts,
	}
}

// Start registers the snapshot cache eviction loop with the lifecycle
// coordinator. The engine itself has no startup work.
func (e *Engine) Start(lc *lifecycle.Coordinator) error {
	e.logger.Info("starting workflow engine")

	go func() {
		go e.snapshots.Start()
		<-lc.Context().Done()
		e.snapshots.Stop()
	}()

	return nil
}

// CreateWorkflow resolves the template and document, builds an Active
// instance with step 0 Pending, stores it, emits WorkflowStarted, and runs
// the step-0 trigger check (which may cascade through automatic steps).
// An unresolvable document is a hard precondition failure.
func (e *Engine) CreateWorkflow(ctx context.Context, cmd CreateCommand) (*Instance, error) {
	tmpl, ok := e.registry.Get(cmd.Template)
	if !ok {
		return nil, fmt.Errorf("%w: %s", templates.ErrNotFound, cmd.Template)
	}

	snap, err := e.documents.Snapshot(ctx, cmd.DocumentID)
	if err != nil {
		return nil, fmt.Errorf("resolve document %s: %w", cmd.DocumentID, err)
	}

	inst := newInstance(tmpl, snap, cmd.CreatedBy, time.Now())
	if err := e.store.Create(ctx, inst); err != nil {
		return nil, err
	}

	e.logger.Info(
		"workflow created",
		"workflow_id", inst.ID,
		"document_id", inst.DocumentID,
		"template", inst.Template,
	)

	e.notify(inst, notifications.WorkflowStarted, cmd.CreatedBy, "", fmt.Sprintf(
		"Workflow %q started for document %s",
		inst.Template, inst.DocumentID,
	))

	e.checkTriggers(ctx, inst)

	return e.store.Get(ctx, inst.ID)
}

func newInstance(
	tmpl templates.Template,
	snap *documents.Snapshot,
	createdBy string,
	now time.Time,
) *Instance {
	steps := make([]Step, len(tmpl.Steps))
	for i, def := range tmpl.Steps {
		steps[i] = Step{
			Definition: def.Clone(),
			Status:     StepNotStarted,
			Assignee:   def.Assignee,
		}
	}
	steps[0].Status = StepPending
	steps[0].StartedAt = &now

	vars := map[string]string{
		"Filename":       snap.Filename,
		"ContentType":    snap.ContentType,
		"SizeBytes":      strconv.FormatInt(snap.SizeBytes, 10),
		"DocumentStatus": snap.Status,
	}
	for k, v := range snap.Metadata {
		vars[k] = v
	}

	return &Instance{
		ID:          uuid.New(),
		DocumentID:  snap.ID,
		Template:    tmpl.Name,
		Status:      StatusActive,
		CurrentStep: 0,
		Steps:       steps,
		Variables:   vars,
		CreatedBy:   createdBy,
		CreatedAt:   now,
		UpdatedAt:   now,
	}
}

// Find returns a copy of the workflow instance.
func (e *Engine) Find(ctx context.Context, id uuid.UUID) (*Instance, error) {
	return e.store.Get(ctx, id)
}

// ListForDocument returns a page of workflow instances for a document.
func (e *Engine) ListForDocument(
	ctx context.Context,
	documentID uuid.UUID,
	page pagination.PageRequest,
) (*pagination.PageResult[Instance], error) {
	return e.store.ListByDocument(ctx, documentID, page)
}

// Advance validates and applies one action against the workflow's current
// step. Status check, action validation, and the transition all run inside
// the Store's atomic update: racing writers for the same id serialize, and
// the loser observes the committed state. After a successful transition the
// new current step's triggers are re-checked, so automatic steps cascade.
func (e *Engine) Advance(ctx context.Context, cmd AdvanceCommand) (*Instance, error) {
	var (
		event    notifications.Type
		stepName string
	)

	updated, err := e.store.Update(ctx, cmd.WorkflowID, func(inst *Instance) error {
		if inst.Status != StatusActive {
			return fmt.Errorf("%w: workflow is %s", ErrInvalidState, inst.Status)
		}

		stepName = inst.Current().Definition.Name

		ev, err := ApplyAction(inst, cmd.Action, cmd.ActorID, cmd.Comment, time.Now())
		if err != nil {
			return err
		}

		event = ev
		return nil
	})
	if err != nil {
		return nil, err
	}

	e.logger.Info(
		"workflow advanced",
		"workflow_id", updated.ID,
		"action", cmd.Action.Type,
		"actor", cmd.ActorID,
		"step", stepName,
		"status", updated.Status,
	)

	e.notify(updated, event, cmd.ActorID, cmd.Comment, actionMessage(event, stepName, cmd))
	e.checkTriggers(ctx, updated)

	return updated, nil
}

func actionMessage(event notifications.Type, stepName string, cmd AdvanceCommand) string {
	switch event {
	case notifications.StepApproved:
		return fmt.Sprintf("Step %q approved by %s", stepName, cmd.ActorID)
	case notifications.StepRejected:
		return fmt.Sprintf("Step %q rejected by %s", stepName, cmd.ActorID)
	case notifications.ChangesRequested:
		return fmt.Sprintf("Changes requested on step %q by %s", stepName, cmd.ActorID)
	case notifications.StepDelegated:
		return fmt.Sprintf("Step %q delegated to %s", stepName, cmd.Action.DelegateTo)
	default:
		return fmt.Sprintf("Step %q completed by %s", stepName, cmd.ActorID)
	}
}

// Cancel is best-effort and idempotent by outcome: it returns false without
// error when the workflow is absent or already terminal, true when this call
// performed the cancellation.
func (e *Engine) Cancel(ctx context.Context, cmd CancelCommand) (bool, error) {
	updated, err := e.store.Update(ctx, cmd.WorkflowID, func(inst *Instance) error {
		if inst.Status.Terminal() {
			return errAlreadyTerminal
		}

		now := time.Now()
		inst.Status = StatusCancelled
		inst.CompletedAt = &now
		inst.UpdatedAt = now

		if inst.Variables == nil {
			inst.Variables = make(map[string]string)
		}
		inst.Variables["CancelledBy"] = cmd.ActorID
		if cmd.Reason != "" {
			inst.Variables["CancellationReason"] = cmd.Reason
		}
		return nil
	})

	switch {
	case errors.Is(err, ErrNotFound), errors.Is(err, errAlreadyTerminal):
		return false, nil
	case err != nil:
		return false, err
	}

	e.logger.Info(
		"workflow cancelled",
		"workflow_id", updated.ID,
		"actor", cmd.ActorID,
		"reason", cmd.Reason,
	)

	message := "Workflow cancelled"
	if cmd.Reason != "" {
		message = fmt.Sprintf("Workflow cancelled: %s", cmd.Reason)
	}
	e.notify(updated, notifications.WorkflowCancelled, cmd.ActorID, cmd.Reason, message)

	return true, nil
}

// ProcessAutomaticActions is the periodic sweep: for every Active instance
// it fires the first matching trigger condition as a system Complete action,
// or emits a one-time StepTimeout notification when the current step's
// timeout has elapsed. Failures are isolated per instance; one broken
// workflow never halts the sweep for the rest.
func (e *Engine) ProcessAutomaticActions(ctx context.Context) {
	active, err := e.store.ListActive(ctx)
	if err != nil {
		e.logger.Error("sweep failed to list active workflows", "error", err)
		return
	}

	g := new(errgroup.Group)
	g.SetLimit(e.opts.SweepConcurrency)

	for _, inst := range active {
		g.Go(func() error {
			e.processInstance(ctx, inst)
			return nil
		})
	}

	g.Wait()
}

func (e *Engine) processInstance(ctx context.Context, inst *Instance) {
	if e.checkTriggers(ctx, inst) {
		return
	}
	e.checkTimeout(ctx, inst)
}

// checkTimeout emits a one-time StepTimeout notification for an elapsed step
// timeout. Timeout is observational: neither step nor workflow status
// changes; escalation is a human concern outside this engine. The
// notified-at stamp is recorded under the store lock so repeated sweeps
// cannot re-emit.
func (e *Engine) checkTimeout(ctx context.Context, inst *Instance) {
	now := time.Now()
	step := inst.Current()
	if step == nil || !step.TimedOut(now) || step.TimeoutNotifiedAt != nil {
		return
	}

	index := inst.CurrentStep
	var (
		stepName string
		timeout  time.Duration
	)

	updated, err := e.store.Update(ctx, inst.ID, func(latest *Instance) error {
		if latest.Status != StatusActive || latest.CurrentStep != index {
			return errTimeoutStale
		}

		current := latest.Current()
		if current == nil || !current.TimedOut(now) || current.TimeoutNotifiedAt != nil {
			return errTimeoutStale
		}

		current.TimeoutNotifiedAt = &now
		latest.UpdatedAt = now
		stepName = current.Definition.Name
		timeout = current.Definition.Timeout
		return nil
	})
	if err != nil {
		if !errors.Is(err, errTimeoutStale) {
			e.logger.Error("timeout check failed", "workflow_id", inst.ID, "error", err)
		}
		return
	}

	e.logger.Info(
		"step timeout detected",
		"workflow_id", updated.ID,
		"step", stepName,
		"timeout", timeout,
	)

	e.notify(updated, notifications.StepTimeout, SystemActor, "", fmt.Sprintf(
		"Step %q exceeded its %s timeout", stepName, timeout,
	))
}

// RegisterTemplate registers a workflow template.
func (e *Engine) RegisterTemplate(t templates.Template) error {
	return e.registry.Register(t)
}

// Templates returns a snapshot of all registered templates.
func (e *Engine) Templates() []templates.Template {
	return e.registry.List()
}

// checkTriggers fires the first matching trigger condition on the instance's
// current step as a system Complete action, reporting whether it fired.
// Advance re-invokes it after each transition, so consecutive automatic
// steps cascade until a step without a matching condition is reached.
// Collaborator failures are logged and leave the instance waiting for the
// next sweep.
func (e *Engine) checkTriggers(ctx context.Context, inst *Instance) bool {
	if inst.Status != StatusActive {
		return false
	}

	step := inst.Current()
	if step == nil || len(step.Definition.TriggerConditions) == 0 {
		return false
	}

	snap, err := e.snapshot(ctx, inst.DocumentID)
	if err != nil {
		e.logger.Warn("trigger evaluation skipped", "workflow_id", inst.ID, "error", err)
		return false
	}

	name, ok := FirstTrigger(inst, snap)
	if !ok {
		return false
	}

	e.logger.Info(
		"automatic trigger fired",
		"workflow_id", inst.ID,
		"condition", name,
		"step", step.Definition.Name,
	)

	if _, err := e.Advance(ctx, AdvanceCommand{
		WorkflowID: inst.ID,
		Action:     Action{Type: templates.ActionComplete},
		ActorID:    SystemActor,
	}); err != nil {
		e.logger.Error("automatic action failed", "workflow_id", inst.ID, "error", err)
	}

	return true
}

func (e *Engine) snapshot(ctx context.Context, id uuid.UUID) (*documents.Snapshot, error) {
	if item := e.snapshots.Get(id); item != nil {
		return item.Value(), nil
	}

	snap, err := e.documents.Snapshot(ctx, id)
	if err != nil {
		return nil, err
	}

	e.snapshots.Set(id, snap, ttlcache.DefaultTTL)
	return snap, nil
}

func (e *Engine) notify(
	inst *Instance,
	event notifications.Type,
	actorID, comment, message string,
) {
	e.notifier.Send(notifications.Event{
		WorkflowID: inst.ID,
		DocumentID: inst.DocumentID,
		Type:       event,
		Message:    message,
		ActorID:    actorID,
		Comment:    comment,
		OccurredAt: time.Now(),
	})
}
