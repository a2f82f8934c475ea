package reconcile

import (
	"context"
	"errors"
	"testing"
	"time"

	"github.com/harrisonrobin/trashtasker/pkg/logging"
	"github.com/harrisonrobin/trashtasker/pkg/model"
	"github.com/harrisonrobin/trashtasker/pkg/provider"
	"github.com/harrisonrobin/trashtasker/pkg/store"
	"github.com/harrisonrobin/trashtasker/pkg/testutil"
)

type clock struct{ t time.Time }

func (c *clock) now() time.Time { return c.t }

func newReconciler(t *testing.T) (*Reconciler, store.Store, *clock) {
	t.Helper()
	s := testutil.OpenStore(t)
	c := &clock{t: time.Date(2024, 3, 10, 9, 0, 0, 0, time.UTC)}
	return New(s, logging.Discard()).WithClock(c.now), s, c
}

func TestReconcileCreatesNewRemoteTask(t *testing.T) {
	ctx := context.Background()
	r, s, _ := newReconciler(t)
	p := testutil.NewFakeProvider("L1")
	p.Put("L1", provider.RemoteTask{ID: "g1", Title: "Call client", Status: provider.StatusNeedsAction})

	res, err := r.Reconcile(ctx, p, "u1")
	if err != nil {
		t.Fatalf("Reconcile failed: %v", err)
	}
	if res.Created != 1 || res.Updated != 0 {
		t.Errorf("Expected {1 0}, got {%d %d}", res.Created, res.Updated)
	}

	task, err := s.FindByRemoteIDs(ctx, "g1", "L1", "u1")
	if err != nil || task == nil {
		t.Fatalf("Expected local task for g1, got %v, %v", task, err)
	}
	if task.Title != "Call client" {
		t.Errorf("Expected title 'Call client', got %q", task.Title)
	}
	if task.Status.IsDone() {
		t.Errorf("Expected non-completed status, got %s", task.Status)
	}
	if task.Priority != model.PriorityMedium {
		t.Errorf("Expected Medium priority, got %s", task.Priority)
	}
	if task.Due != nil || task.CompletedAt != nil {
		t.Errorf("Expected no due and no completedAt, got %v / %v", task.Due, task.CompletedAt)
	}
}

func TestReconcileIsIdempotent(t *testing.T) {
	ctx := context.Background()
	r, s, _ := newReconciler(t)
	p := testutil.NewFakeProvider("L1", "L2")
	p.Put("L1", provider.RemoteTask{ID: "g1", Title: "A", Status: provider.StatusNeedsAction})
	p.Put("L1", provider.RemoteTask{ID: "g2", Title: "B", Status: provider.StatusCompleted})
	p.Put("L2", provider.RemoteTask{ID: "g1", Title: "Same id, other list", Status: provider.StatusNeedsAction})

	first, err := r.Reconcile(ctx, p, "u1")
	if err != nil {
		t.Fatalf("Reconcile failed: %v", err)
	}
	if first.Created != 3 || first.Updated != 0 {
		t.Fatalf("Expected first pass {3 0}, got {%d %d}", first.Created, first.Updated)
	}

	second, err := r.Reconcile(ctx, p, "u1")
	if err != nil {
		t.Fatalf("Reconcile failed: %v", err)
	}
	if second.Created != 0 || second.Updated != 3 {
		t.Errorf("Expected second pass {0 3}, got {%d %d}", second.Created, second.Updated)
	}

	tasks, _ := s.List(ctx, "u1")
	if len(tasks) != 3 {
		t.Errorf("Expected 3 local tasks, got %d", len(tasks))
	}
}

func TestReconcileCompletionIsMonotonic(t *testing.T) {
	ctx := context.Background()
	r, s, c := newReconciler(t)
	p := testutil.NewFakeProvider("L1")
	p.Put("L1", provider.RemoteTask{ID: "g1", Title: "Haul", Status: provider.StatusNeedsAction})

	if _, err := r.Reconcile(ctx, p, "u1"); err != nil {
		t.Fatalf("Reconcile failed: %v", err)
	}

	completedAt := c.t.Add(time.Hour)
	c.t = completedAt
	p.Put("L1", provider.RemoteTask{ID: "g1", Title: "Haul", Status: provider.StatusCompleted})
	if _, err := r.Reconcile(ctx, p, "u1"); err != nil {
		t.Fatalf("Reconcile failed: %v", err)
	}
	task, _ := s.FindByRemoteIDs(ctx, "g1", "L1", "u1")
	if task.Status != model.StatusClosed || task.CompletedAt == nil || !task.CompletedAt.Equal(completedAt) {
		t.Fatalf("Expected Closed with completedAt %v, got %s %v", completedAt, task.Status, task.CompletedAt)
	}

	// Still completed remotely: completedAt must not move.
	c.t = c.t.Add(time.Hour)
	if _, err := r.Reconcile(ctx, p, "u1"); err != nil {
		t.Fatalf("Reconcile failed: %v", err)
	}
	task, _ = s.FindByRemoteIDs(ctx, "g1", "L1", "u1")
	if !task.CompletedAt.Equal(completedAt) {
		t.Errorf("Expected completedAt unchanged at %v, got %v", completedAt, task.CompletedAt)
	}

	// Reopened remotely: completion is sticky.
	p.Put("L1", provider.RemoteTask{ID: "g1", Title: "Haul", Status: provider.StatusNeedsAction})
	if _, err := r.Reconcile(ctx, p, "u1"); err != nil {
		t.Fatalf("Reconcile failed: %v", err)
	}
	task, _ = s.FindByRemoteIDs(ctx, "g1", "L1", "u1")
	if task.Status != model.StatusClosed || task.CompletedAt == nil || !task.CompletedAt.Equal(completedAt) {
		t.Errorf("Expected Closed and unchanged completedAt, got %s %v", task.Status, task.CompletedAt)
	}
}

func TestReconcileKeepsLocalOnlyFieldsAndStatus(t *testing.T) {
	ctx := context.Background()
	r, s, c := newReconciler(t)

	local := &model.Task{
		ID:           "t1",
		OwnerID:      "u1",
		Title:        "Old",
		Status:       model.StatusScheduled,
		Priority:     model.PriorityHigh,
		Type:         model.TypePickup,
		AssignedTo:   "crew-7",
		RemoteTaskID: "g1",
		RemoteListID: "L1",
		CreatedAt:    c.t,
		UpdatedAt:    c.t,
	}
	local.AddNote("side gate", "sam", c.t)
	if err := s.Insert(ctx, local); err != nil {
		t.Fatalf("Insert failed: %v", err)
	}

	p := testutil.NewFakeProvider("L1")
	p.Put("L1", provider.RemoteTask{ID: "g1", Title: "New", Notes: "bring key", Due: "2024-03-15T00:00:00.000Z", Status: provider.StatusNeedsAction})

	res, err := r.Reconcile(ctx, p, "u1")
	if err != nil {
		t.Fatalf("Reconcile failed: %v", err)
	}
	if res.Created != 0 || res.Updated != 1 {
		t.Errorf("Expected {0 1}, got {%d %d}", res.Created, res.Updated)
	}

	got, _ := s.Get(ctx, "t1")
	if got.Status != model.StatusScheduled {
		t.Errorf("Expected Scheduled to survive needsAction, got %s", got.Status)
	}
	if got.Title != "New" || got.Description != "bring key" {
		t.Errorf("Expected remote title/notes, got %q / %q", got.Title, got.Description)
	}
	if got.Due == nil || got.Due.Format("2006-01-02") != "2024-03-15" {
		t.Errorf("Expected due 2024-03-15, got %v", got.Due)
	}
	if got.Priority != model.PriorityHigh || got.Type != model.TypePickup || got.AssignedTo != "crew-7" || len(got.Notes) != 1 {
		t.Errorf("Expected local-only fields untouched, got %+v", got)
	}
}

func TestReconcileMalformedDueKeepsRecord(t *testing.T) {
	ctx := context.Background()
	r, s, _ := newReconciler(t)
	p := testutil.NewFakeProvider("L1")
	p.Put("L1", provider.RemoteTask{ID: "g1", Title: "", Due: "soon", Status: provider.StatusCompleted})

	res, err := r.Reconcile(ctx, p, "u1")
	if err != nil {
		t.Fatalf("Reconcile failed: %v", err)
	}
	if res.Created != 1 {
		t.Fatalf("Expected 1 created, got %d", res.Created)
	}
	task, _ := s.FindByRemoteIDs(ctx, "g1", "L1", "u1")
	if task.Title != "Untitled Task" {
		t.Errorf("Expected 'Untitled Task', got %q", task.Title)
	}
	if task.Due != nil {
		t.Errorf("Expected malformed due to be skipped, got %v", task.Due)
	}
	if task.Status != model.StatusClosed || task.CompletedAt == nil {
		t.Errorf("Expected Closed with completedAt set at creation, got %s %v", task.Status, task.CompletedAt)
	}
}

func TestReconcileProviderFailureMidPass(t *testing.T) {
	ctx := context.Background()
	r, s, _ := newReconciler(t)
	p := testutil.NewFakeProvider("L1", "L2")
	p.Put("L1", provider.RemoteTask{ID: "g1", Title: "First", Status: provider.StatusNeedsAction})
	p.Put("L2", provider.RemoteTask{ID: "g2", Title: "Second", Status: provider.StatusNeedsAction})
	p.Fail("ListTasks:L2", errors.New("503 backend"))

	res, err := r.Reconcile(ctx, p, "u1")
	var pErr *ProviderError
	if !errors.As(err, &pErr) {
		t.Fatalf("Expected *ProviderError, got %v", err)
	}
	if !errors.Is(err, provider.ErrUnavailable) {
		t.Errorf("Expected ErrUnavailable in chain, got %v", err)
	}
	if res != (Result{}) {
		t.Errorf("Expected no counts on failure, got %+v", res)
	}

	kept, _ := s.FindByRemoteIDs(ctx, "g1", "L1", "u1")
	if kept == nil {
		t.Error("Expected first list's task to remain persisted")
	}
	missing, _ := s.FindByRemoteIDs(ctx, "g2", "L2", "u1")
	if missing != nil {
		t.Error("Expected no task from the failed list")
	}
}

func TestReconcileListFailure(t *testing.T) {
	r, _, _ := newReconciler(t)
	p := testutil.NewFakeProvider("L1")
	p.Fail("ListTaskLists", errors.New("token expired"))

	if _, err := r.Reconcile(context.Background(), p, "u1"); err == nil {
		t.Fatal("Expected error when lists cannot be enumerated")
	}
}

type brokenStore struct {
	store.Store
}

func (brokenStore) FindByRemoteIDs(ctx context.Context, remoteID, remoteListID, ownerID string) (*model.Task, error) {
	return nil, &store.Error{Op: "find by remote ids", Err: errors.New("disk full")}
}

func TestReconcileSurfacesStoreError(t *testing.T) {
	r := New(brokenStore{}, logging.Discard())
	p := testutil.NewFakeProvider("L1")
	p.Put("L1", provider.RemoteTask{ID: "g1", Title: "A"})

	_, err := r.Reconcile(context.Background(), p, "u1")
	var sErr *store.Error
	if !errors.As(err, &sErr) {
		t.Errorf("Expected *store.Error, got %v", err)
	}
	var pErr *ProviderError
	if errors.As(err, &pErr) {
		t.Errorf("Store failure must not be reported as a provider error")
	}
}
