// Package store persists Trash Tasker tasks.
//
// Every task is a single document; no operation spans documents, so no
// backend needs multi-document transactions. A Store is opened once per
// process and handed to its users.
package store

import (
	"context"
	"errors"
	"fmt"

	"github.com/harrisonrobin/trashtasker/pkg/model"
)

var (
	// ErrNotFound is returned by Get and Save for unknown ids.
	ErrNotFound = errors.New("task not found")
	// ErrDuplicateRemote is returned when a second task would claim the same
	// (owner, remote task, remote list) triple.
	ErrDuplicateRemote = errors.New("remote task already linked to another local task")
)

// Error is a local persistence failure.
type Error struct {
	Op  string
	Err error
}

func (e *Error) Error() string {
	return fmt.Sprintf("store %s: %v", e.Op, e.Err)
}

func (e *Error) Unwrap() error { return e.Err }

func wrap(op string, err error) error {
	if err == nil {
		return nil
	}
	return &Error{Op: op, Err: err}
}

// Store is the local task collection.
type Store interface {
	// FindByRemoteIDs returns the owner's task linked to the remote pair, or
	// nil when there is none.
	FindByRemoteIDs(ctx context.Context, remoteID, remoteListID, ownerID string) (*model.Task, error)
	Get(ctx context.Context, id string) (*model.Task, error)
	// List returns the owner's tasks, oldest first.
	List(ctx context.Context, ownerID string) ([]*model.Task, error)
	Insert(ctx context.Context, task *model.Task) error
	// Save replaces an existing task in place. Remote ids already stored are
	// kept when task carries none, and copied onto task, so a save built from
	// a stale read cannot unlink a task mirrored in the meantime.
	Save(ctx context.Context, task *model.Task) error
	// Delete removes a task. Deleting an unknown id is not an error.
	Delete(ctx context.Context, id string) error
	Close() error
}

// Open returns the backend named by driver.
func Open(ctx context.Context, driver, dsn string) (Store, error) {
	switch driver {
	case "", "sqlite":
		return OpenSQLite(ctx, dsn)
	case "mongo", "mongodb":
		return OpenMongo(ctx, dsn)
	}
	return nil, fmt.Errorf("unsupported store driver %q", driver)
}

// keepRemoteIDs copies the stored remote links onto task where it has none.
func keepRemoteIDs(task, stored *model.Task) {
	if task.RemoteTaskID == "" && stored.RemoteTaskID != "" {
		task.RemoteTaskID = stored.RemoteTaskID
		task.RemoteListID = stored.RemoteListID
	}
	if task.RemoteEventID == "" {
		task.RemoteEventID = stored.RemoteEventID
	}
}
