package util

import (
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/harrisonrobin/trashtasker/pkg/model"
	"github.com/harrisonrobin/trashtasker/pkg/provider"
)

const (
	// remoteDueLayout keeps millisecond precision so the end-of-day instant
	// survives the trip as 23:59:59.999.
	remoteDueLayout = "2006-01-02T15:04:05.000Z07:00"
	dateLayout      = "2006-01-02"
)

// ErrMalformedDue is returned when a remote due value cannot be parsed.
var ErrMalformedDue = errors.New("malformed due date")

// MappingError reports a remote field that could not be translated. The
// record it belongs to is still usable; the field is skipped.
type MappingError struct {
	Field string
	Value string
	Err   error
}

func (e *MappingError) Error() string {
	return fmt.Sprintf("could not map %s %q: %v", e.Field, e.Value, e.Err)
}

func (e *MappingError) Unwrap() error { return e.Err }

// ToRemoteStatus maps a local status onto the provider's binary model.
func ToRemoteStatus(s model.Status) string {
	if s.IsDone() {
		return provider.StatusCompleted
	}
	return provider.StatusNeedsAction
}

// ToLocalStatusOnPull folds a remote status into the current local one.
// Remote can move a task into Closed but never out of it, and never
// overwrites Scheduled or Hold.
func ToLocalStatusOnPull(remote string, current model.Status) model.Status {
	if remote == provider.StatusCompleted {
		return model.StatusClosed
	}
	if current == "" {
		return model.StatusOpen
	}
	return current
}

// NormalizeDueForRemote returns the end of due's calendar day in UTC. The
// calendar day is read in due's own location.
func NormalizeDueForRemote(due time.Time) string {
	y, m, d := due.Date()
	return time.Date(y, m, d, 23, 59, 59, 999_000_000, time.UTC).Format(remoteDueLayout)
}

// ParseDueFromRemote parses a remote due value. Empty input yields nil.
func ParseDueFromRemote(s string) (*time.Time, error) {
	s = strings.TrimSpace(s)
	if s == "" {
		return nil, nil
	}
	t, err := time.Parse(time.RFC3339Nano, s)
	if err != nil {
		t, err = time.Parse(dateLayout, s)
	}
	if err != nil {
		return nil, &MappingError{Field: "due", Value: s, Err: ErrMalformedDue}
	}
	return &t, nil
}

// ParseLocalDue parses a user supplied date (YYYY-MM-DD or RFC 3339).
func ParseLocalDue(s string) (*time.Time, error) {
	s = strings.TrimSpace(s)
	if s == "" {
		return nil, nil
	}
	if t, err := time.Parse(dateLayout, s); err == nil {
		return &t, nil
	}
	t, err := time.Parse(time.RFC3339, s)
	if err != nil {
		return nil, fmt.Errorf("invalid due date %q: expected YYYY-MM-DD", s)
	}
	return &t, nil
}

// SameDay reports whether two optional dates fall on the same calendar day.
func SameDay(a, b *time.Time) bool {
	if a == nil || b == nil {
		return a == nil && b == nil
	}
	return a.Format(dateLayout) == b.Format(dateLayout)
}

// TaskToRemoteFields returns every mirrored field of a task.
func TaskToRemoteFields(task *model.Task) provider.Fields {
	title := task.Title
	notes := task.Description
	status := ToRemoteStatus(task.Status)
	f := provider.Fields{Title: &title, Notes: &notes, Status: &status}
	if task.Due != nil {
		due := *task.Due
		f.Due = &due
	}
	return f
}

// ChangedRemoteFields returns only the mirrored fields that differ between
// two versions of a task. A nil before yields all fields.
func ChangedRemoteFields(before, after *model.Task) provider.Fields {
	if before == nil {
		return TaskToRemoteFields(after)
	}
	var f provider.Fields
	if before.Title != after.Title {
		title := after.Title
		f.Title = &title
	}
	if before.Description != after.Description {
		notes := after.Description
		f.Notes = &notes
	}
	if after.Due != nil && !SameDay(before.Due, after.Due) {
		due := *after.Due
		f.Due = &due
	}
	if ToRemoteStatus(before.Status) != ToRemoteStatus(after.Status) {
		status := ToRemoteStatus(after.Status)
		f.Status = &status
	}
	return f
}
