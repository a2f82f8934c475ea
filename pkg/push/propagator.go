// Package push mirrors local task mutations to the remote provider.
//
// The local write is always committed first and is the source of truth. The
// remote mirror is attempted once; its failures are logged, counted and
// recorded on the Queue but never reverse or block the local change.
package push

import (
	"context"
	"errors"
	"fmt"

	"github.com/harrisonrobin/trashtasker/pkg/metrics"
	"github.com/harrisonrobin/trashtasker/pkg/model"
	"github.com/harrisonrobin/trashtasker/pkg/provider"
	"github.com/harrisonrobin/trashtasker/pkg/store"
	"github.com/harrisonrobin/trashtasker/pkg/util"
	"github.com/sirupsen/logrus"
)

// Kind of local mutation being mirrored.
type Kind string

const (
	KindCreate Kind = "create"
	KindUpdate Kind = "update"
	KindDelete Kind = "delete"
)

// ErrSkipped marks a job that had nothing to mirror.
var ErrSkipped = errors.New("nothing to mirror")

// Mirror is an optional calendar mirror for due-dated tasks.
type Mirror interface {
	SyncEvent(ctx context.Context, task *model.Task) (string, error)
	DeleteEvent(ctx context.Context, eventID string) error
}

// MirrorFactory builds a Mirror for a bearer credential.
type MirrorFactory func(ctx context.Context, credential string) (Mirror, error)

// Job is one mirrored mutation. Before is nil for creates; After is nil for
// deletes. Creates and updates push the task as stored when the job runs;
// After only identifies it.
type Job struct {
	Kind       Kind
	Credential string
	Before     *model.Task
	After      *model.Task
}

func (j Job) task() *model.Task {
	if j.After != nil {
		return j.After
	}
	return j.Before
}

// Propagator performs the remote side of a Job.
type Propagator struct {
	providers   provider.Factory
	mirrors     MirrorFactory
	store       store.Store
	defaultList string
	logger      logrus.FieldLogger
}

// NewPropagator returns a Propagator that stamps remote ids back into s.
// defaultList may be empty, in which case the first remote list is used.
func NewPropagator(providers provider.Factory, s store.Store, defaultList string, logger logrus.FieldLogger) *Propagator {
	return &Propagator{
		providers:   providers,
		store:       s,
		defaultList: defaultList,
		logger:      logger.WithField("component", "push"),
	}
}

// WithMirror enables the calendar mirror.
func (p *Propagator) WithMirror(f MirrorFactory) *Propagator {
	p.mirrors = f
	return p
}

// OnTaskCreated mirrors a newly created local task.
func (p *Propagator) OnTaskCreated(ctx context.Context, credential string, task *model.Task) {
	_ = p.Run(ctx, Job{Kind: KindCreate, Credential: credential, After: task})
}

// OnTaskUpdated mirrors the changed fields of a synced task.
func (p *Propagator) OnTaskUpdated(ctx context.Context, credential string, before, after *model.Task) {
	_ = p.Run(ctx, Job{Kind: KindUpdate, Credential: credential, Before: before, After: after})
}

// OnTaskDeleted removes the remote counterpart of a deleted task.
func (p *Propagator) OnTaskDeleted(ctx context.Context, credential string, task *model.Task) {
	_ = p.Run(ctx, Job{Kind: KindDelete, Credential: credential, Before: task})
}

// Run executes a job, logs and counts its outcome, and returns the error
// for callers that track failures. ErrSkipped is returned when nothing was
// attempted.
func (p *Propagator) Run(ctx context.Context, job Job) error {
	task := job.task()
	if task == nil {
		return ErrSkipped
	}
	log := p.logger.WithFields(logrus.Fields{
		"op":       job.Kind,
		"task_id":  task.ID,
		"owner_id": task.OwnerID,
	})

	var err error
	switch job.Kind {
	case KindCreate:
		err = p.create(ctx, job.Credential, task, log)
	case KindUpdate:
		err = p.update(ctx, job.Credential, job.Before, task, log)
	case KindDelete:
		err = p.delete(ctx, job.Credential, task, log)
	default:
		err = fmt.Errorf("unknown push job kind %q", job.Kind)
	}

	switch {
	case err == nil:
		metrics.PushOutcomes.WithLabelValues(string(job.Kind), "ok").Inc()
	case errors.Is(err, ErrSkipped):
		metrics.PushOutcomes.WithLabelValues(string(job.Kind), "skipped").Inc()
	case errors.Is(err, provider.ErrNotFound):
		metrics.PushOutcomes.WithLabelValues(string(job.Kind), "not_found").Inc()
		log.WithError(err).Warn("remote task vanished, local change kept unmirrored")
	default:
		metrics.PushOutcomes.WithLabelValues(string(job.Kind), "failed").Inc()
		log.WithError(err).Error("remote mirror failed, local change kept")
	}
	return err
}

// create pushes the task as it is stored when the job runs, so edits made
// while the job was queued are included.
func (p *Propagator) create(ctx context.Context, credential string, queued *model.Task, log logrus.FieldLogger) error {
	if credential == "" {
		return ErrSkipped
	}
	task, err := p.current(ctx, queued.ID)
	if err != nil {
		return err
	}
	if task.Due == nil || task.Synced() {
		return ErrSkipped
	}
	remote, err := p.providers(ctx, credential)
	if err != nil {
		return err
	}
	listID, err := p.targetList(ctx, remote)
	if err != nil {
		return err
	}
	remoteID, err := remote.CreateTask(ctx, listID, util.TaskToRemoteFields(task))
	if err != nil {
		return err
	}

	stamped, err := p.stamp(ctx, task.ID, func(t *model.Task) {
		t.RemoteTaskID = remoteID
		t.RemoteListID = listID
	})
	if errors.Is(err, store.ErrNotFound) {
		// Deleted locally while the create was in flight.
		log.WithField("remote_id", remoteID).Warn("local task gone, removing remote copy")
		return remote.DeleteTask(ctx, listID, remoteID)
	}
	if err != nil {
		return err
	}
	log.WithField("remote_id", remoteID).Info("mirrored new task")

	p.syncEvent(ctx, credential, stamped, log)
	return nil
}

// update diffs the job's Before against the stored task, not the job's
// snapshot, so a later edit already committed is pushed too.
func (p *Propagator) update(ctx context.Context, credential string, before, queued *model.Task, log logrus.FieldLogger) error {
	if credential == "" {
		return ErrSkipped
	}
	task, err := p.current(ctx, queued.ID)
	if err != nil {
		return err
	}
	p.syncEvent(ctx, credential, task, log)

	if !task.Synced() {
		return ErrSkipped
	}
	fields := util.ChangedRemoteFields(before, task)
	if fields.Empty() {
		return ErrSkipped
	}
	remote, err := p.providers(ctx, credential)
	if err != nil {
		return err
	}
	if err := remote.UpdateTask(ctx, task.RemoteListID, task.RemoteTaskID, fields); err != nil {
		return err
	}
	log.WithField("remote_id", task.RemoteTaskID).Info("mirrored task update")
	return nil
}

// current loads the stored task for a job. A task deleted before its job ran
// has nothing left to mirror.
func (p *Propagator) current(ctx context.Context, id string) (*model.Task, error) {
	task, err := p.store.Get(ctx, id)
	if errors.Is(err, store.ErrNotFound) {
		return nil, ErrSkipped
	}
	return task, err
}

func (p *Propagator) delete(ctx context.Context, credential string, task *model.Task, log logrus.FieldLogger) error {
	if credential == "" || (!task.Synced() && task.RemoteEventID == "") {
		return ErrSkipped
	}

	if task.RemoteEventID != "" && p.mirrors != nil {
		if m, err := p.mirrors(ctx, credential); err != nil {
			log.WithError(err).Warn("calendar mirror unavailable")
		} else if err := m.DeleteEvent(ctx, task.RemoteEventID); err != nil {
			log.WithError(err).Warn("could not delete calendar event")
		}
	}

	if !task.Synced() {
		return nil
	}
	remote, err := p.providers(ctx, credential)
	if err != nil {
		return err
	}
	// DeleteTask treats an already-gone task as success.
	if err := remote.DeleteTask(ctx, task.RemoteListID, task.RemoteTaskID); err != nil {
		return err
	}
	log.WithField("remote_id", task.RemoteTaskID).Info("mirrored task delete")
	return nil
}

// syncEvent mirrors a due-dated task to the calendar. Failures are logged only.
func (p *Propagator) syncEvent(ctx context.Context, credential string, task *model.Task, log logrus.FieldLogger) {
	if p.mirrors == nil || task.Due == nil {
		return
	}
	m, err := p.mirrors(ctx, credential)
	if err != nil {
		log.WithError(err).Warn("calendar mirror unavailable")
		return
	}
	eventID, err := m.SyncEvent(ctx, task)
	if err != nil {
		log.WithError(err).Warn("could not mirror task to calendar")
		return
	}
	if eventID == task.RemoteEventID {
		return
	}
	if _, err := p.stamp(ctx, task.ID, func(t *model.Task) { t.RemoteEventID = eventID }); err != nil {
		log.WithError(err).Warn("could not record calendar event id")
	}
}

// stamp re-reads the task and applies fn, so that fields written by a
// concurrent local edit are not overwritten with the job's snapshot. Local
// saves in the other direction keep stored remote ids (see store.Store.Save).
func (p *Propagator) stamp(ctx context.Context, id string, fn func(*model.Task)) (*model.Task, error) {
	current, err := p.store.Get(ctx, id)
	if err != nil {
		return nil, err
	}
	fn(current)
	if err := p.store.Save(ctx, current); err != nil {
		return nil, err
	}
	return current, nil
}

func (p *Propagator) targetList(ctx context.Context, remote provider.Provider) (string, error) {
	if p.defaultList != "" {
		return p.defaultList, nil
	}
	lists, err := remote.ListTaskLists(ctx)
	if err != nil {
		return "", err
	}
	if len(lists) == 0 {
		return "", provider.Wrap("pick task list", fmt.Errorf("%w: no task lists", provider.ErrNotFound))
	}
	return lists[0].ID, nil
}
