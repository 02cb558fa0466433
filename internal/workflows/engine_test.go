package workflows_test

import (
	"context"
	"errors"
	"io"
	"log/slog"
	"sync"
	"testing"
	"time"

	"github.com/google/uuid"

	"github.com/JaimeStill/arbiter/internal/documents"
	"github.com/JaimeStill/arbiter/internal/notifications"
	"github.com/JaimeStill/arbiter/internal/templates"
	"github.com/JaimeStill/arbiter/internal/workflows"
	"github.com/JaimeStill/arbiter/pkg/pagination"
)

type fakeProvider struct {
	mu        sync.Mutex
	snapshots map[uuid.UUID]*documents.Snapshot
}

func newFakeProvider() *fakeProvider {
	return &fakeProvider{snapshots: make(map[uuid.UUID]*documents.Snapshot)}
}

func (p *fakeProvider) set(snap *documents.Snapshot) {
	p.mu.Lock()
	defer p.mu.Unlock()
	p.snapshots[snap.ID] = snap
}

func (p *fakeProvider) Snapshot(ctx context.Context, id uuid.UUID) (*documents.Snapshot, error) {
	p.mu.Lock()
	defer p.mu.Unlock()

	snap, ok := p.snapshots[id]
	if !ok {
		return nil, documents.ErrNotFound
	}
	return snap, nil
}

type captureSink struct {
	mu     sync.Mutex
	events []notifications.Event
}

func (s *captureSink) Send(event notifications.Event) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.events = append(s.events, event)
}

func (s *captureSink) types() []notifications.Type {
	s.mu.Lock()
	defer s.mu.Unlock()

	out := make([]notifications.Type, len(s.events))
	for i, e := range s.events {
		out[i] = e.Type
	}
	return out
}

func (s *captureSink) count(t notifications.Type) int {
	s.mu.Lock()
	defer s.mu.Unlock()

	n := 0
	for _, e := range s.events {
		if e.Type == t {
			n++
		}
	}
	return n
}

func newTestEngine(t *testing.T) (*workflows.Engine, *workflows.MemoryStore, *fakeProvider, *captureSink) {
	t.Helper()

	registry := templates.NewRegistry()
	if err := templates.RegisterDefaults(registry); err != nil {
		t.Fatalf("RegisterDefaults failed: %v", err)
	}

	store := testStore()
	provider := newFakeProvider()
	sink := &captureSink{}
	logger := slog.New(slog.NewTextHandler(io.Discard, nil))

	// A nanosecond TTL forces a fresh snapshot fetch on every trigger
	// evaluation so tests can mutate document state between calls.
	engine := workflows.NewEngine(registry, store, provider, sink, logger, workflows.Options{
		SnapshotTTL: time.Nanosecond,
	})

	return engine, store, provider, sink
}

func pendingDocument() *documents.Snapshot {
	return &documents.Snapshot{
		Document: documents.Document{
			ID:          uuid.New(),
			Filename:    "contract.pdf",
			ContentType: "application/pdf",
			SizeBytes:   2048,
			Status:      "Processing",
			UploadedAt:  time.Now(),
		},
	}
}

func TestCreateWorkflow(t *testing.T) {
	engine, _, provider, sink := newTestEngine(t)
	doc := pendingDocument()
	provider.set(doc)

	inst, err := engine.CreateWorkflow(context.Background(), workflows.CreateCommand{
		DocumentID: doc.ID,
		Template:   templates.DocumentApproval,
		CreatedBy:  "alice",
	})
	if err != nil {
		t.Fatalf("CreateWorkflow failed: %v", err)
	}

	if inst.Status != workflows.StatusActive {
		t.Errorf("status = %s, want Active", inst.Status)
	}
	if inst.CurrentStep != 0 {
		t.Errorf("CurrentStep = %d, want 0", inst.CurrentStep)
	}
	if inst.Steps[0].Status != workflows.StepPending {
		t.Errorf("step 0 status = %s, want Pending", inst.Steps[0].Status)
	}
	if inst.Steps[0].StartedAt == nil {
		t.Error("step 0 StartedAt should be set")
	}
	for i := 1; i < len(inst.Steps); i++ {
		if inst.Steps[i].Status != workflows.StepNotStarted {
			t.Errorf("step %d status = %s, want NotStarted", i, inst.Steps[i].Status)
		}
	}

	if inst.Variables["Filename"] != "contract.pdf" {
		t.Errorf("Filename variable = %q, want contract.pdf", inst.Variables["Filename"])
	}
	if inst.Variables["SizeBytes"] != "2048" {
		t.Errorf("SizeBytes variable = %q, want 2048", inst.Variables["SizeBytes"])
	}

	if got := sink.types(); len(got) != 1 || got[0] != notifications.WorkflowStarted {
		t.Errorf("events = %v, want [WorkflowStarted]", got)
	}
}

func TestCreateWorkflowUnknownTemplate(t *testing.T) {
	engine, _, provider, _ := newTestEngine(t)
	doc := pendingDocument()
	provider.set(doc)

	_, err := engine.CreateWorkflow(context.Background(), workflows.CreateCommand{
		DocumentID: doc.ID,
		Template:   "NoSuchTemplate",
		CreatedBy:  "alice",
	})
	if !errors.Is(err, templates.ErrNotFound) {
		t.Errorf("CreateWorkflow = %v, want templates.ErrNotFound", err)
	}
}

func TestCreateWorkflowUnknownDocument(t *testing.T) {
	engine, _, _, sink := newTestEngine(t)

	_, err := engine.CreateWorkflow(context.Background(), workflows.CreateCommand{
		DocumentID: uuid.New(),
		Template:   templates.DocumentApproval,
		CreatedBy:  "alice",
	})
	if !errors.Is(err, documents.ErrNotFound) {
		t.Errorf("CreateWorkflow = %v, want documents.ErrNotFound", err)
	}

	if got := len(sink.types()); got != 0 {
		t.Errorf("events emitted on failed create = %d, want 0", got)
	}
}

func TestCreateQuickProcessingAutoCompletes(t *testing.T) {
	engine, _, provider, sink := newTestEngine(t)

	doc := pendingDocument()
	doc.Metadata = map[string]string{"RiskLevel": "Low"}
	provider.set(doc)

	inst, err := engine.CreateWorkflow(context.Background(), workflows.CreateCommand{
		DocumentID: doc.ID,
		Template:   templates.QuickProcessing,
		CreatedBy:  "alice",
	})
	if err != nil {
		t.Fatalf("CreateWorkflow failed: %v", err)
	}

	if inst.Status != workflows.StatusCompleted {
		t.Fatalf("status = %s, want Completed", inst.Status)
	}
	if inst.Steps[0].CompletedBy != workflows.SystemActor {
		t.Errorf("CompletedBy = %q, want system", inst.Steps[0].CompletedBy)
	}

	history := inst.Steps[0].History
	if len(history) != 1 || history[0].Action != templates.ActionComplete {
		t.Fatalf("history = %+v, want one Complete record", history)
	}
	if history[0].ActorID != workflows.SystemActor {
		t.Errorf("history actor = %q, want system", history[0].ActorID)
	}

	want := []notifications.Type{notifications.WorkflowStarted, notifications.StepCompleted}
	got := sink.types()
	if len(got) != len(want) {
		t.Fatalf("events = %v, want %v", got, want)
	}
	for i := range want {
		if got[i] != want[i] {
			t.Errorf("event[%d] = %s, want %s", i, got[i], want[i])
		}
	}
}

func TestAdvanceApprove(t *testing.T) {
	engine, _, provider, sink := newTestEngine(t)
	doc := pendingDocument()
	provider.set(doc)

	created, err := engine.CreateWorkflow(context.Background(), workflows.CreateCommand{
		DocumentID: doc.ID,
		Template:   templates.DocumentApproval,
		CreatedBy:  "alice",
	})
	if err != nil {
		t.Fatalf("CreateWorkflow failed: %v", err)
	}

	inst, err := engine.Advance(context.Background(), workflows.AdvanceCommand{
		WorkflowID: created.ID,
		Action:     workflows.Action{Type: templates.ActionApprove},
		ActorID:    "bob",
		Comment:    "reviewed",
	})
	if err != nil {
		t.Fatalf("Advance failed: %v", err)
	}

	if inst.CurrentStep != 1 {
		t.Errorf("CurrentStep = %d, want 1", inst.CurrentStep)
	}
	if inst.Steps[0].Status != workflows.StepCompleted {
		t.Errorf("step 0 status = %s, want Completed", inst.Steps[0].Status)
	}
	if inst.Steps[1].Status != workflows.StepPending {
		t.Errorf("step 1 status = %s, want Pending", inst.Steps[1].Status)
	}

	if sink.count(notifications.StepApproved) != 1 {
		t.Errorf("StepApproved events = %d, want 1", sink.count(notifications.StepApproved))
	}
}

func TestAdvanceRejectTerminates(t *testing.T) {
	engine, _, provider, _ := newTestEngine(t)
	doc := pendingDocument()
	provider.set(doc)

	created, err := engine.CreateWorkflow(context.Background(), workflows.CreateCommand{
		DocumentID: doc.ID,
		Template:   templates.DocumentApproval,
		CreatedBy:  "alice",
	})
	if err != nil {
		t.Fatalf("CreateWorkflow failed: %v", err)
	}

	inst, err := engine.Advance(context.Background(), workflows.AdvanceCommand{
		WorkflowID: created.ID,
		Action:     workflows.Action{Type: templates.ActionReject},
		ActorID:    "bob",
	})
	if err != nil {
		t.Fatalf("Advance failed: %v", err)
	}

	if inst.Status != workflows.StatusRejected {
		t.Errorf("status = %s, want Rejected", inst.Status)
	}

	_, err = engine.Advance(context.Background(), workflows.AdvanceCommand{
		WorkflowID: created.ID,
		Action:     workflows.Action{Type: templates.ActionApprove},
		ActorID:    "carol",
	})
	if !errors.Is(err, workflows.ErrInvalidState) {
		t.Errorf("Advance on rejected workflow = %v, want ErrInvalidState", err)
	}
}

func TestAdvanceDisallowedAction(t *testing.T) {
	engine, _, provider, _ := newTestEngine(t)
	doc := pendingDocument()
	provider.set(doc)

	created, err := engine.CreateWorkflow(context.Background(), workflows.CreateCommand{
		DocumentID: doc.ID,
		Template:   templates.DocumentApproval,
		CreatedBy:  "alice",
	})
	if err != nil {
		t.Fatalf("CreateWorkflow failed: %v", err)
	}

	// Delegate is only legal on Manager Approval, not Initial Review.
	_, err = engine.Advance(context.Background(), workflows.AdvanceCommand{
		WorkflowID: created.ID,
		Action:     workflows.Action{Type: templates.ActionDelegate, DelegateTo: "dave"},
		ActorID:    "bob",
	})
	if !errors.Is(err, workflows.ErrActionNotAllowed) {
		t.Errorf("Advance(Delegate) = %v, want ErrActionNotAllowed", err)
	}

	inst, err := engine.Find(context.Background(), created.ID)
	if err != nil {
		t.Fatalf("Find failed: %v", err)
	}
	if len(inst.Steps[0].History) != 0 {
		t.Errorf("rejected action was recorded in history: %+v", inst.Steps[0].History)
	}
}

func TestAdvanceUnknownWorkflow(t *testing.T) {
	engine, _, _, _ := newTestEngine(t)

	_, err := engine.Advance(context.Background(), workflows.AdvanceCommand{
		WorkflowID: uuid.New(),
		Action:     workflows.Action{Type: templates.ActionApprove},
		ActorID:    "bob",
	})
	if !errors.Is(err, workflows.ErrNotFound) {
		t.Errorf("Advance(unknown) = %v, want ErrNotFound", err)
	}
}

func TestAdvanceCascadesThroughAutomaticStep(t *testing.T) {
	engine, _, provider, sink := newTestEngine(t)
	doc := pendingDocument()
	provider.set(doc)

	created, err := engine.CreateWorkflow(context.Background(), workflows.CreateCommand{
		DocumentID: doc.ID,
		Template:   templates.DocumentApproval,
		CreatedBy:  "alice",
	})
	if err != nil {
		t.Fatalf("CreateWorkflow failed: %v", err)
	}

	if _, err := engine.Advance(context.Background(), workflows.AdvanceCommand{
		WorkflowID: created.ID,
		Action:     workflows.Action{Type: templates.ActionApprove},
		ActorID:    "bob",
	}); err != nil {
		t.Fatalf("first approve failed: %v", err)
	}

	// Classification completes while Manager Approval is pending. The final
	// approval should land on Automated Processing, whose trigger now holds,
	// and cascade straight to workflow completion.
	classified := pendingDocument()
	classified.ID = doc.ID
	classified.Status = documents.StatusCompleted
	classified.Results = []documents.ProcessingResult{
		{DocumentID: doc.ID, Kind: "classification", Confidence: 0.97},
	}
	provider.set(classified)

	inst, err := engine.Advance(context.Background(), workflows.AdvanceCommand{
		WorkflowID: created.ID,
		Action:     workflows.Action{Type: templates.ActionApprove},
		ActorID:    "carol",
	})
	if err != nil {
		t.Fatalf("second approve failed: %v", err)
	}
	if inst.Status != workflows.StatusActive {
		t.Fatalf("Advance return status = %s, want Active (cascade runs after)", inst.Status)
	}

	final, err := engine.Find(context.Background(), created.ID)
	if err != nil {
		t.Fatalf("Find failed: %v", err)
	}
	if final.Status != workflows.StatusCompleted {
		t.Errorf("status = %s, want Completed", final.Status)
	}
	if final.Steps[2].CompletedBy != workflows.SystemActor {
		t.Errorf("step 2 CompletedBy = %q, want system", final.Steps[2].CompletedBy)
	}
	if sink.count(notifications.StepCompleted) != 1 {
		t.Errorf("StepCompleted events = %d, want 1", sink.count(notifications.StepCompleted))
	}
}

func TestCancel(t *testing.T) {
	engine, _, provider, sink := newTestEngine(t)
	doc := pendingDocument()
	provider.set(doc)

	created, err := engine.CreateWorkflow(context.Background(), workflows.CreateCommand{
		DocumentID: doc.ID,
		Template:   templates.DocumentApproval,
		CreatedBy:  "alice",
	})
	if err != nil {
		t.Fatalf("CreateWorkflow failed: %v", err)
	}

	cancelled, err := engine.Cancel(context.Background(), workflows.CancelCommand{
		WorkflowID: created.ID,
		ActorID:    "alice",
		Reason:     "superseded",
	})
	if err != nil {
		t.Fatalf("Cancel failed: %v", err)
	}
	if !cancelled {
		t.Fatal("Cancel should report true on first cancellation")
	}

	inst, err := engine.Find(context.Background(), created.ID)
	if err != nil {
		t.Fatalf("Find failed: %v", err)
	}
	if inst.Status != workflows.StatusCancelled {
		t.Errorf("status = %s, want Cancelled", inst.Status)
	}
	if inst.CompletedAt == nil {
		t.Error("CompletedAt should be set")
	}
	if inst.Variables["CancelledBy"] != "alice" {
		t.Errorf("CancelledBy = %q, want alice", inst.Variables["CancelledBy"])
	}
	if inst.Variables["CancellationReason"] != "superseded" {
		t.Errorf("CancellationReason = %q, want superseded", inst.Variables["CancellationReason"])
	}
	if sink.count(notifications.WorkflowCancelled) != 1 {
		t.Errorf("WorkflowCancelled events = %d, want 1", sink.count(notifications.WorkflowCancelled))
	}

	// Second cancel and cancel of an unknown id are no-ops, not errors.
	again, err := engine.Cancel(context.Background(), workflows.CancelCommand{
		WorkflowID: created.ID,
		ActorID:    "bob",
	})
	if err != nil || again {
		t.Errorf("second Cancel = (%v, %v), want (false, nil)", again, err)
	}

	missing, err := engine.Cancel(context.Background(), workflows.CancelCommand{
		WorkflowID: uuid.New(),
		ActorID:    "bob",
	})
	if err != nil || missing {
		t.Errorf("Cancel(unknown) = (%v, %v), want (false, nil)", missing, err)
	}

	if sink.count(notifications.WorkflowCancelled) != 1 {
		t.Error("repeat cancels must not re-emit WorkflowCancelled")
	}
}

func TestSweepFiresTrigger(t *testing.T) {
	engine, _, provider, sink := newTestEngine(t)

	doc := pendingDocument()
	provider.set(doc)

	created, err := engine.CreateWorkflow(context.Background(), workflows.CreateCommand{
		DocumentID: doc.ID,
		Template:   templates.QuickProcessing,
		CreatedBy:  "alice",
	})
	if err != nil {
		t.Fatalf("CreateWorkflow failed: %v", err)
	}
	if created.Status != workflows.StatusActive {
		t.Fatalf("status = %s, want Active (no condition holds yet)", created.Status)
	}

	classified := pendingDocument()
	classified.ID = doc.ID
	classified.Status = documents.StatusCompleted
	provider.set(classified)

	engine.ProcessAutomaticActions(context.Background())

	inst, err := engine.Find(context.Background(), created.ID)
	if err != nil {
		t.Fatalf("Find failed: %v", err)
	}
	if inst.Status != workflows.StatusCompleted {
		t.Errorf("status after sweep = %s, want Completed", inst.Status)
	}
	if sink.count(notifications.StepCompleted) != 1 {
		t.Errorf("StepCompleted events = %d, want 1", sink.count(notifications.StepCompleted))
	}

	// A completed workflow is no longer active; repeat sweeps see nothing.
	engine.ProcessAutomaticActions(context.Background())
	if sink.count(notifications.StepCompleted) != 1 {
		t.Error("repeat sweep re-fired a trigger on a completed workflow")
	}
}

func TestSweepTimeoutNotifiesOnce(t *testing.T) {
	engine, store, provider, sink := newTestEngine(t)
	doc := pendingDocument()
	provider.set(doc)

	created, err := engine.CreateWorkflow(context.Background(), workflows.CreateCommand{
		DocumentID: doc.ID,
		Template:   templates.DocumentApproval,
		CreatedBy:  "alice",
	})
	if err != nil {
		t.Fatalf("CreateWorkflow failed: %v", err)
	}

	// Backdate the step start past its 24h timeout.
	past := time.Now().Add(-25 * time.Hour)
	if _, err := store.Update(context.Background(), created.ID, func(inst *workflows.Instance) error {
		inst.Steps[0].StartedAt = &past
		return nil
	}); err != nil {
		t.Fatalf("backdate failed: %v", err)
	}

	engine.ProcessAutomaticActions(context.Background())

	if got := sink.count(notifications.StepTimeout); got != 1 {
		t.Fatalf("StepTimeout events = %d, want 1", got)
	}

	inst, err := engine.Find(context.Background(), created.ID)
	if err != nil {
		t.Fatalf("Find failed: %v", err)
	}
	if inst.Status != workflows.StatusActive {
		t.Errorf("status = %s, want Active (timeout is notify-only)", inst.Status)
	}
	if inst.Steps[0].Status != workflows.StepPending {
		t.Errorf("step status = %s, want Pending (timeout is notify-only)", inst.Steps[0].Status)
	}
	if inst.Steps[0].TimeoutNotifiedAt == nil {
		t.Error("TimeoutNotifiedAt should be stamped")
	}

	// Sweep again: the stamp suppresses a duplicate notification.
	engine.ProcessAutomaticActions(context.Background())
	if got := sink.count(notifications.StepTimeout); got != 1 {
		t.Errorf("StepTimeout events after second sweep = %d, want 1", got)
	}

	// The step remains actionable after the notification.
	if _, err := engine.Advance(context.Background(), workflows.AdvanceCommand{
		WorkflowID: created.ID,
		Action:     workflows.Action{Type: templates.ActionApprove},
		ActorID:    "bob",
	}); err != nil {
		t.Errorf("Advance after timeout notification failed: %v", err)
	}
}

func TestConcurrentAdvanceSingleWinner(t *testing.T) {
	engine, _, provider, sink := newTestEngine(t)
	doc := pendingDocument()
	provider.set(doc)

	single := templates.Template{
		Name:   "SingleApproval",
		Active: true,
		Steps: []templates.Step{
			{
				Name: "Approval",
				Type: templates.StepApproval,
				Actions: []templates.Action{
					{Type: templates.ActionApprove, Label: "Approve"},
				},
			},
		},
	}
	if err := engine.RegisterTemplate(single); err != nil {
		t.Fatalf("RegisterTemplate failed: %v", err)
	}

	created, err := engine.CreateWorkflow(context.Background(), workflows.CreateCommand{
		DocumentID: doc.ID,
		Template:   "SingleApproval",
		CreatedBy:  "alice",
	})
	if err != nil {
		t.Fatalf("CreateWorkflow failed: %v", err)
	}

	const racers = 16
	var (
		wg        sync.WaitGroup
		successMu sync.Mutex
		successes int
	)
	for range racers {
		wg.Go(func() {
			_, err := engine.Advance(context.Background(), workflows.AdvanceCommand{
				WorkflowID: created.ID,
				Action:     workflows.Action{Type: templates.ActionApprove},
				ActorID:    "racer",
			})
			switch {
			case err == nil:
				successMu.Lock()
				successes++
				successMu.Unlock()
			case errors.Is(err, workflows.ErrInvalidState):
				// Loser: the winner already completed the workflow.
			default:
				t.Errorf("unexpected advance error: %v", err)
			}
		})
	}
	wg.Wait()

	if successes != 1 {
		t.Errorf("successful advances = %d, want exactly 1", successes)
	}
	if sink.count(notifications.StepApproved) != 1 {
		t.Errorf("StepApproved events = %d, want 1", sink.count(notifications.StepApproved))
	}

	inst, err := engine.Find(context.Background(), created.ID)
	if err != nil {
		t.Fatalf("Find failed: %v", err)
	}
	if inst.Status != workflows.StatusCompleted {
		t.Errorf("status = %s, want Completed", inst.Status)
	}
	if len(inst.Steps[0].History) != 1 {
		t.Errorf("history length = %d, want 1", len(inst.Steps[0].History))
	}
}

func TestListForDocument(t *testing.T) {
	engine, _, provider, _ := newTestEngine(t)
	doc := pendingDocument()
	provider.set(doc)

	for range 3 {
		if _, err := engine.CreateWorkflow(context.Background(), workflows.CreateCommand{
			DocumentID: doc.ID,
			Template:   templates.DocumentApproval,
			CreatedBy:  "alice",
		}); err != nil {
			t.Fatalf("CreateWorkflow failed: %v", err)
		}
	}

	page, err := engine.ListForDocument(context.Background(), doc.ID, pagination.PageRequest{})
	if err != nil {
		t.Fatalf("ListForDocument failed: %v", err)
	}
	if page.Total != 3 {
		t.Errorf("Total = %d, want 3", page.Total)
	}
}
