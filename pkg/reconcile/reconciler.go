// Package reconcile folds remote task lists into the local task store.
//
// A pass walks every remote list and every task in it, sequentially, and
// upserts the matching local task keyed by (owner, remote task id, remote
// list id). Local tasks are never deleted or marked stale by a pass; remote
// deletions are not observed.
//
// A provider error aborts the pass and no counts are returned. Writes made
// for earlier tasks in the same pass are kept: a failed pass can leave
// partial progress behind, which the next successful pass completes.
package reconcile

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/google/uuid"
	"github.com/harrisonrobin/trashtasker/pkg/metrics"
	"github.com/harrisonrobin/trashtasker/pkg/model"
	"github.com/harrisonrobin/trashtasker/pkg/provider"
	"github.com/harrisonrobin/trashtasker/pkg/store"
	"github.com/harrisonrobin/trashtasker/pkg/util"
	"github.com/sirupsen/logrus"
)

const untitledTask = "Untitled Task"

// Result counts the local writes of a successful pass.
type Result struct {
	Created int `json:"createdCount"`
	Updated int `json:"updatedCount"`
	Lists   int `json:"lists"`
}

// ProviderError is returned when the remote side fails during a pass.
type ProviderError struct {
	Err error
}

func (e *ProviderError) Error() string {
	return fmt.Sprintf("pull reconciliation failed: %v", e.Err)
}

func (e *ProviderError) Unwrap() error { return e.Err }

// Reconciler runs pull passes against a Store.
type Reconciler struct {
	store  store.Store
	logger logrus.FieldLogger
	now    func() time.Time
	newID  func() string
}

// New returns a Reconciler writing to s.
func New(s store.Store, logger logrus.FieldLogger) *Reconciler {
	return &Reconciler{
		store:  s,
		logger: logger.WithField("component", "reconcile"),
		now:    time.Now,
		newID:  func() string { return uuid.NewString() },
	}
}

// WithClock replaces the time source.
func (r *Reconciler) WithClock(now func() time.Time) *Reconciler {
	r.now = now
	return r
}

// Reconcile imports every remote task visible through p into ownerID's
// local tasks.
func (r *Reconciler) Reconcile(ctx context.Context, p provider.Provider, ownerID string) (Result, error) {
	res, err := r.reconcile(ctx, p, ownerID)
	if err != nil {
		metrics.ReconcilePasses.WithLabelValues("failed").Inc()
		return Result{}, err
	}
	metrics.ReconcilePasses.WithLabelValues("ok").Inc()
	metrics.ReconciledTasks.WithLabelValues("created").Add(float64(res.Created))
	metrics.ReconciledTasks.WithLabelValues("updated").Add(float64(res.Updated))
	return res, nil
}

func (r *Reconciler) reconcile(ctx context.Context, p provider.Provider, ownerID string) (Result, error) {
	log := r.logger.WithField("owner_id", ownerID)
	var res Result

	lists, err := p.ListTaskLists(ctx)
	if err != nil {
		return Result{}, &ProviderError{Err: err}
	}

	for _, list := range lists {
		items, err := p.ListTasks(ctx, list.ID)
		if err != nil {
			log.WithError(err).WithField("list_id", list.ID).Warn("aborting pass, earlier writes kept")
			return Result{}, &ProviderError{Err: err}
		}
		for _, item := range items {
			created, err := r.apply(ctx, ownerID, list.ID, item)
			if err != nil {
				return Result{}, err
			}
			if created {
				res.Created++
			} else {
				res.Updated++
			}
		}
		res.Lists++
	}

	log.WithFields(logrus.Fields{
		"created": res.Created,
		"updated": res.Updated,
		"lists":   res.Lists,
	}).Info("pull reconciliation complete")
	return res, nil
}

// apply upserts one remote task and reports whether it created a local task.
func (r *Reconciler) apply(ctx context.Context, ownerID, listID string, item provider.RemoteTask) (bool, error) {
	now := r.now()
	log := r.logger.WithFields(logrus.Fields{"owner_id": ownerID, "remote_id": item.ID, "list_id": listID})

	due, dueErr := util.ParseDueFromRemote(item.Due)
	if dueErr != nil {
		log.WithError(dueErr).Warn("skipping remote due date")
	}

	existing, err := r.store.FindByRemoteIDs(ctx, item.ID, listID, ownerID)
	if err != nil {
		return false, err
	}

	if existing != nil {
		existing.Title = item.Title
		existing.Description = item.Notes
		existing.Status = util.ToLocalStatusOnPull(item.Status, existing.Status)
		if dueErr == nil {
			existing.Due = due
		}
		if existing.Status.IsDone() {
			existing.MarkCompleted(now)
		}
		existing.UpdatedAt = now
		if err := r.store.Save(ctx, existing); err != nil {
			return false, err
		}
		return false, nil
	}

	title := item.Title
	if strings.TrimSpace(title) == "" {
		title = untitledTask
	}
	task := &model.Task{
		ID:           r.newID(),
		OwnerID:      ownerID,
		Title:        title,
		Description:  item.Notes,
		Due:          due,
		Priority:     model.PriorityMedium,
		Status:       util.ToLocalStatusOnPull(item.Status, ""),
		Type:         model.TypeGeneral,
		RemoteTaskID: item.ID,
		RemoteListID: listID,
		CreatedAt:    now,
		UpdatedAt:    now,
	}
	if task.Status.IsDone() {
		task.MarkCompleted(now)
	}
	if err := r.store.Insert(ctx, task); err != nil {
		if errors.Is(err, store.ErrDuplicateRemote) {
			log.WithError(err).Warn("remote task linked concurrently")
		}
		return false, err
	}
	log.WithField("task_id", task.ID).Debug("created local task from remote")
	return true, nil
}
