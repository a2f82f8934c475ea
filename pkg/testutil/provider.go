// Package testutil provides an in-memory task provider and store helpers
// shared by package tests.
package testutil

import (
	"context"
	"fmt"
	"path/filepath"
	"sync"
	"testing"

	"github.com/harrisonrobin/trashtasker/pkg/provider"
	"github.com/harrisonrobin/trashtasker/pkg/store"
	"github.com/harrisonrobin/trashtasker/pkg/util"
)

// FakeProvider is an in-memory provider.Provider. Lists keep insertion order.
type FakeProvider struct {
	mu      sync.Mutex
	order   []string
	lists   map[string][]*provider.RemoteTask
	nextID  int
	failOps map[string]error // keyed by "op" or "op:listID"
	holds   map[string]*hold
	Calls   []string
}

type hold struct {
	entered  chan struct{}
	release  chan struct{}
	enterOne sync.Once
	freeOne  sync.Once
}

// NewFakeProvider returns a provider with the given empty lists.
func NewFakeProvider(listIDs ...string) *FakeProvider {
	f := &FakeProvider{
		lists:   make(map[string][]*provider.RemoteTask),
		failOps: make(map[string]error),
		holds:   make(map[string]*hold),
	}
	for _, id := range listIDs {
		f.AddList(id)
	}
	return f
}

// AddList adds an empty list.
func (f *FakeProvider) AddList(id string) {
	f.mu.Lock()
	defer f.mu.Unlock()
	if _, ok := f.lists[id]; !ok {
		f.order = append(f.order, id)
		f.lists[id] = nil
	}
}

// Put adds or replaces a remote task in list.
func (f *FakeProvider) Put(listID string, task provider.RemoteTask) {
	f.mu.Lock()
	defer f.mu.Unlock()
	for i, t := range f.lists[listID] {
		if t.ID == task.ID {
			f.lists[listID][i] = &task
			return
		}
	}
	f.lists[listID] = append(f.lists[listID], &task)
}

// Task returns a copy of a remote task.
func (f *FakeProvider) Task(listID, id string) (provider.RemoteTask, bool) {
	f.mu.Lock()
	defer f.mu.Unlock()
	for _, t := range f.lists[listID] {
		if t.ID == id {
			return *t, true
		}
	}
	return provider.RemoteTask{}, false
}

// Remove drops a remote task without going through DeleteTask.
func (f *FakeProvider) Remove(listID, id string) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.removeLocked(listID, id)
}

// Fail makes op fail with err. key is an operation name ("ListTasks") or an
// operation scoped to a list ("ListTasks:L2"). A nil err clears it.
func (f *FakeProvider) Fail(key string, err error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	if err == nil {
		delete(f.failOps, key)
		return
	}
	f.failOps[key] = err
}

// Hold blocks calls to op until release is called. entered is closed when
// the first call arrives. release may be called more than once.
func (f *FakeProvider) Hold(op string) (entered <-chan struct{}, release func()) {
	h := &hold{entered: make(chan struct{}), release: make(chan struct{})}
	f.mu.Lock()
	f.holds[op] = h
	f.mu.Unlock()
	return h.entered, func() {
		h.freeOne.Do(func() {
			f.mu.Lock()
			delete(f.holds, op)
			f.mu.Unlock()
			close(h.release)
		})
	}
}

func (f *FakeProvider) wait(ctx context.Context, op string) {
	f.mu.Lock()
	h := f.holds[op]
	f.mu.Unlock()
	if h == nil {
		return
	}
	h.enterOne.Do(func() { close(h.entered) })
	select {
	case <-h.release:
	case <-ctx.Done():
	}
}

func (f *FakeProvider) failure(op, listID string) error {
	f.Calls = append(f.Calls, op+":"+listID)
	if err, ok := f.failOps[op+":"+listID]; ok {
		return provider.Wrap(op, err)
	}
	if err, ok := f.failOps[op]; ok {
		return provider.Wrap(op, err)
	}
	return nil
}

func (f *FakeProvider) ListTaskLists(ctx context.Context) ([]provider.TaskList, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	if err := f.failure("ListTaskLists", ""); err != nil {
		return nil, err
	}
	lists := make([]provider.TaskList, 0, len(f.order))
	for _, id := range f.order {
		lists = append(lists, provider.TaskList{ID: id, Title: id})
	}
	return lists, nil
}

func (f *FakeProvider) ListTasks(ctx context.Context, listID string) ([]provider.RemoteTask, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	if err := f.failure("ListTasks", listID); err != nil {
		return nil, err
	}
	items, ok := f.lists[listID]
	if !ok {
		return nil, provider.Wrap("ListTasks", provider.ErrNotFound)
	}
	out := make([]provider.RemoteTask, 0, len(items))
	for _, t := range items {
		out = append(out, *t)
	}
	return out, nil
}

func (f *FakeProvider) CreateTask(ctx context.Context, listID string, fields provider.Fields) (string, error) {
	f.wait(ctx, "CreateTask")
	f.mu.Lock()
	defer f.mu.Unlock()
	if err := f.failure("CreateTask", listID); err != nil {
		return "", err
	}
	if _, ok := f.lists[listID]; !ok {
		return "", provider.Wrap("CreateTask", provider.ErrNotFound)
	}
	f.nextID++
	task := &provider.RemoteTask{ID: fmt.Sprintf("remote-%d", f.nextID), Status: provider.StatusNeedsAction}
	applyFields(task, fields)
	f.lists[listID] = append(f.lists[listID], task)
	return task.ID, nil
}

func (f *FakeProvider) UpdateTask(ctx context.Context, listID, remoteID string, fields provider.Fields) error {
	f.wait(ctx, "UpdateTask")
	f.mu.Lock()
	defer f.mu.Unlock()
	if err := f.failure("UpdateTask", listID); err != nil {
		return err
	}
	for _, t := range f.lists[listID] {
		if t.ID == remoteID {
			applyFields(t, fields)
			return nil
		}
	}
	return provider.Wrap("UpdateTask", provider.ErrNotFound)
}

func (f *FakeProvider) DeleteTask(ctx context.Context, listID, remoteID string) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	if err := f.failure("DeleteTask", listID); err != nil {
		return err
	}
	f.removeLocked(listID, remoteID)
	return nil
}

func (f *FakeProvider) removeLocked(listID, id string) {
	items := f.lists[listID]
	for i, t := range items {
		if t.ID == id {
			f.lists[listID] = append(items[:i], items[i+1:]...)
			return
		}
	}
}

func applyFields(t *provider.RemoteTask, fields provider.Fields) {
	if fields.Title != nil {
		t.Title = *fields.Title
	}
	if fields.Notes != nil {
		t.Notes = *fields.Notes
	}
	if fields.Due != nil {
		t.Due = util.NormalizeDueForRemote(*fields.Due)
	}
	if fields.Status != nil {
		t.Status = *fields.Status
	}
}

// Factory returns a provider.Factory that hands out f for any non-empty
// credential.
func (f *FakeProvider) Factory() provider.Factory {
	return func(ctx context.Context, credential string) (provider.Provider, error) {
		if credential == "" {
			return nil, provider.Wrap("authenticate", fmt.Errorf("no credential"))
		}
		return f, nil
	}
}

// OpenStore opens a SQLite store in a temporary directory, closed on cleanup.
func OpenStore(t *testing.T) *store.SQLite {
	t.Helper()
	s, err := store.OpenSQLite(context.Background(), filepath.Join(t.TempDir(), "tasks.db"))
	if err != nil {
		t.Fatalf("Failed to open store: %v", err)
	}
	t.Cleanup(func() { s.Close() })
	return s
}
