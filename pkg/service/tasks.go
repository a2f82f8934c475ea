// Package service exposes the task operations used by the HTTP server and
// the CLI. Every mutation commits to the local store first and then hands
// the remote mirror to the push queue.
package service

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/google/uuid"
	"github.com/harrisonrobin/trashtasker/pkg/model"
	"github.com/harrisonrobin/trashtasker/pkg/overdue"
	"github.com/harrisonrobin/trashtasker/pkg/provider"
	"github.com/harrisonrobin/trashtasker/pkg/push"
	"github.com/harrisonrobin/trashtasker/pkg/reconcile"
	"github.com/harrisonrobin/trashtasker/pkg/store"
	"github.com/harrisonrobin/trashtasker/pkg/util"
	"github.com/sirupsen/logrus"
)

// ErrInvalid is wrapped by every validation failure.
var ErrInvalid = errors.New("invalid task")

// ErrNotFound is returned for unknown tasks and for tasks of another owner.
var ErrNotFound = store.ErrNotFound

// CreateInput holds user-supplied fields for a new task. Enum fields are
// parsed case-insensitively; Due accepts YYYY-MM-DD or RFC 3339.
type CreateInput struct {
	Title       string `json:"title"`
	Description string `json:"description"`
	Due         string `json:"due"`
	Priority    string `json:"priority"`
	Status      string `json:"status"`
	Type        string `json:"type"`
	AssignedTo  string `json:"assigned_to"`
	PropertyID  string `json:"property_id"`
	ContactID   string `json:"contact_id"`
	CompanyID   string `json:"company_id"`
}

// Patch holds the fields of a partial update. Nil fields are left as they
// are; an empty Due clears the due date locally.
type Patch struct {
	Title       *string `json:"title"`
	Description *string `json:"description"`
	Due         *string `json:"due"`
	Priority    *string `json:"priority"`
	Status      *string `json:"status"`
	Type        *string `json:"type"`
	AssignedTo  *string `json:"assigned_to"`
	PropertyID  *string `json:"property_id"`
	ContactID   *string `json:"contact_id"`
	CompanyID   *string `json:"company_id"`
}

// Tasks implements the task operations for a single store.
type Tasks struct {
	store      store.Store
	queue      *push.Queue
	reconciler *reconcile.Reconciler
	providers  provider.Factory
	logger     logrus.FieldLogger
	now        func() time.Time
	newID      func() string
}

// New returns a Tasks service. providers is used for pull reconciliation;
// pushes go through q.
func New(s store.Store, q *push.Queue, r *reconcile.Reconciler, providers provider.Factory, logger logrus.FieldLogger) *Tasks {
	return &Tasks{
		store:      s,
		queue:      q,
		reconciler: r,
		providers:  providers,
		logger:     logger.WithField("component", "service"),
		now:        time.Now,
		newID:      uuid.NewString,
	}
}

// WithClock replaces the time source.
func (t *Tasks) WithClock(now func() time.Time) *Tasks {
	t.now = now
	return t
}

func invalid(format string, args ...any) error {
	return fmt.Errorf("%w: %s", ErrInvalid, fmt.Sprintf(format, args...))
}

// Create validates and stores a new task for ownerID, then queues its remote
// mirror. The returned task is the committed local record.
func (t *Tasks) Create(ctx context.Context, ownerID, credential string, in CreateInput) (*model.Task, error) {
	if strings.TrimSpace(in.Title) == "" {
		return nil, invalid("title is required")
	}
	due, err := util.ParseLocalDue(in.Due)
	if err != nil {
		return nil, invalid("%v", err)
	}
	priority, err := model.ParsePriority(in.Priority)
	if err != nil {
		return nil, invalid("%v", err)
	}
	status := model.StatusOpen
	if in.Status != "" {
		if status, err = model.ParseStatus(in.Status); err != nil {
			return nil, invalid("%v", err)
		}
	}
	taskType, err := model.ParseTaskType(in.Type)
	if err != nil {
		return nil, invalid("%v", err)
	}

	now := t.now()
	task := &model.Task{
		ID:          t.newID(),
		OwnerID:     ownerID,
		Title:       strings.TrimSpace(in.Title),
		Description: in.Description,
		Due:         due,
		Priority:    priority,
		Status:      status,
		Type:        taskType,
		AssignedTo:  in.AssignedTo,
		PropertyID:  in.PropertyID,
		ContactID:   in.ContactID,
		CompanyID:   in.CompanyID,
		CreatedAt:   now,
		UpdatedAt:   now,
	}
	if status.IsDone() {
		task.MarkCompleted(now)
	}
	if err := t.store.Insert(ctx, task); err != nil {
		return nil, err
	}
	t.logger.WithFields(logrus.Fields{"task_id": task.ID, "owner_id": ownerID}).Info("task created")

	t.queue.Enqueue(push.Job{Kind: push.KindCreate, Credential: credential, After: task.Clone()})
	return task, nil
}

// Get returns one of ownerID's tasks.
func (t *Tasks) Get(ctx context.Context, ownerID, id string) (*model.Task, error) {
	task, err := t.store.Get(ctx, id)
	if err != nil {
		return nil, err
	}
	if task.OwnerID != ownerID {
		return nil, &store.Error{Op: "get", Err: ErrNotFound}
	}
	return task, nil
}

// List returns ownerID's tasks, oldest first.
func (t *Tasks) List(ctx context.Context, ownerID string) ([]*model.Task, error) {
	return t.store.List(ctx, ownerID)
}

// Update applies a partial update and queues the changed mirrored fields.
func (t *Tasks) Update(ctx context.Context, ownerID, credential, id string, p Patch) (*model.Task, error) {
	before, err := t.Get(ctx, ownerID, id)
	if err != nil {
		return nil, err
	}
	after := before.Clone()
	if err := applyPatch(after, p); err != nil {
		return nil, err
	}

	now := t.now()
	if after.Status.IsDone() {
		after.MarkCompleted(now)
	}
	after.UpdatedAt = now
	if err := t.store.Save(ctx, after); err != nil {
		return nil, err
	}
	t.logger.WithFields(logrus.Fields{"task_id": id, "owner_id": ownerID}).Info("task updated")

	t.queue.Enqueue(push.Job{Kind: push.KindUpdate, Credential: credential, Before: before, After: after.Clone()})
	return after, nil
}

func applyPatch(task *model.Task, p Patch) error {
	if p.Title != nil {
		title := strings.TrimSpace(*p.Title)
		if title == "" {
			return invalid("title is required")
		}
		task.Title = title
	}
	if p.Description != nil {
		task.Description = *p.Description
	}
	if p.Due != nil {
		due, err := util.ParseLocalDue(*p.Due)
		if err != nil {
			return invalid("%v", err)
		}
		task.Due = due
	}
	if p.Priority != nil {
		priority, err := model.ParsePriority(*p.Priority)
		if err != nil {
			return invalid("%v", err)
		}
		task.Priority = priority
	}
	if p.Status != nil {
		status, err := model.ParseStatus(*p.Status)
		if err != nil {
			return invalid("%v", err)
		}
		task.Status = status
	}
	if p.Type != nil {
		taskType, err := model.ParseTaskType(*p.Type)
		if err != nil {
			return invalid("%v", err)
		}
		task.Type = taskType
	}
	if p.AssignedTo != nil {
		task.AssignedTo = *p.AssignedTo
	}
	if p.PropertyID != nil {
		task.PropertyID = *p.PropertyID
	}
	if p.ContactID != nil {
		task.ContactID = *p.ContactID
	}
	if p.CompanyID != nil {
		task.CompanyID = *p.CompanyID
	}
	return nil
}

// AddNote appends a note. Notes are local-only and never mirrored.
func (t *Tasks) AddNote(ctx context.Context, ownerID, id, content, author string) (*model.Task, error) {
	if strings.TrimSpace(content) == "" {
		return nil, invalid("note content is required")
	}
	task, err := t.Get(ctx, ownerID, id)
	if err != nil {
		return nil, err
	}
	now := t.now()
	task.AddNote(content, author, now)
	task.UpdatedAt = now
	if err := t.store.Save(ctx, task); err != nil {
		return nil, err
	}
	return task, nil
}

// Delete removes the remote counterpart first, best-effort, and then the
// local task regardless of the remote outcome.
func (t *Tasks) Delete(ctx context.Context, ownerID, credential, id string) error {
	task, err := t.Get(ctx, ownerID, id)
	if err != nil {
		return err
	}

	if task.Synced() || task.RemoteEventID != "" {
		done := t.queue.Enqueue(push.Job{Kind: push.KindDelete, Credential: credential, Before: task})
		select {
		case <-done:
		case <-ctx.Done():
			t.logger.WithField("task_id", id).Warn("stopped waiting for remote delete")
		}
	}

	if err := t.store.Delete(context.WithoutCancel(ctx), id); err != nil {
		return err
	}
	t.logger.WithFields(logrus.Fields{"task_id": id, "owner_id": ownerID}).Info("task deleted")
	return nil
}

// SweepOverdue queues a calendar refresh for every overdue task of ownerID
// that has a calendar event, and returns how many were queued.
func (t *Tasks) SweepOverdue(ctx context.Context, ownerID, credential string) (int, error) {
	tasks, err := t.store.List(ctx, ownerID)
	if err != nil {
		return 0, err
	}
	due := overdue.Sweep(tasks, t.now())
	for _, task := range due {
		t.queue.Enqueue(push.Job{Kind: push.KindUpdate, Credential: credential, Before: task, After: task.Clone()})
	}
	if len(due) > 0 {
		t.logger.WithFields(logrus.Fields{"owner_id": ownerID, "count": len(due)}).Info("queued overdue calendar refresh")
	}
	return len(due), nil
}

// Reconcile runs a pull pass for ownerID using credential.
func (t *Tasks) Reconcile(ctx context.Context, ownerID, credential string) (reconcile.Result, error) {
	p, err := t.providers(ctx, credential)
	if err != nil {
		return reconcile.Result{}, &reconcile.ProviderError{Err: err}
	}
	return t.reconciler.Reconcile(ctx, p, ownerID)
}
