// Package provider defines the contract of a remote task list service.
//
// Implementations own transport and authentication. Callers only rely on the
// operation semantics documented on Provider and on the two sentinel errors.
package provider

import (
	"context"
	"errors"
	"fmt"
	"time"
)

const (
	StatusNeedsAction = "needsAction"
	StatusCompleted   = "completed"
)

var (
	// ErrUnavailable covers an unreachable service, an invalid or expired
	// credential and unexpected responses.
	ErrUnavailable = errors.New("task provider unavailable")
	// ErrNotFound means the remote object no longer exists.
	ErrNotFound = errors.New("remote task not found")
)

// Error records the provider operation that failed.
type Error struct {
	Op  string
	Err error
}

func (e *Error) Error() string {
	return fmt.Sprintf("%s: %v", e.Op, e.Err)
}

func (e *Error) Unwrap() error { return e.Err }

// Wrap tags err with op and, when it is not already classified, marks it as
// ErrUnavailable.
func Wrap(op string, err error) error {
	if err == nil {
		return nil
	}
	if errors.Is(err, ErrNotFound) || errors.Is(err, ErrUnavailable) {
		return &Error{Op: op, Err: err}
	}
	return &Error{Op: op, Err: fmt.Errorf("%w: %v", ErrUnavailable, err)}
}

// TaskList is a remote list of tasks.
type TaskList struct {
	ID    string
	Title string
}

// RemoteTask is a snapshot of one remote item. Due is the raw date-only value
// the service returned, empty when unset.
type RemoteTask struct {
	ID     string
	Title  string
	Notes  string
	Due    string
	Status string
}

// Completed reports whether the remote side marks the task done.
func (r RemoteTask) Completed() bool {
	return r.Status == StatusCompleted
}

// Fields is a partial set of remote task fields. A nil pointer leaves the
// field untouched on update.
type Fields struct {
	Title  *string
	Notes  *string
	Due    *time.Time
	Status *string
}

// Empty reports whether no field is set.
func (f Fields) Empty() bool {
	return f.Title == nil && f.Notes == nil && f.Due == nil && f.Status == nil
}

// Provider is a remote task list service.
type Provider interface {
	// ListTaskLists returns every list visible to the credential.
	ListTaskLists(ctx context.Context) ([]TaskList, error)
	// ListTasks returns all tasks of a list, completed and hidden ones included.
	ListTasks(ctx context.Context, listID string) ([]RemoteTask, error)
	// CreateTask creates a task and returns its remote id. Due is sent as the
	// end of its calendar day in UTC.
	CreateTask(ctx context.Context, listID string, f Fields) (string, error)
	// UpdateTask patches the set fields. Returns ErrNotFound when the remote
	// task was deleted.
	UpdateTask(ctx context.Context, listID, remoteID string, f Fields) error
	// DeleteTask removes a task. Deleting an id that is already gone succeeds.
	DeleteTask(ctx context.Context, listID, remoteID string) error
}

// Factory builds a Provider for an opaque bearer credential supplied by the
// caller's identity context.
type Factory func(ctx context.Context, credential string) (Provider, error)
