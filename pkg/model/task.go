package model

import (
	"fmt"
	"strings"
	"time"
)

// Status is the local task status. The remote provider only knows
// needsAction/completed, so Scheduled and Hold are local refinements.
type Status string

const (
	StatusOpen      Status = "Open"
	StatusScheduled Status = "Scheduled"
	StatusHold      Status = "Hold"
	StatusClosed    Status = "Closed"
)

// Priority of a task.
type Priority string

const (
	PriorityLow    Priority = "Low"
	PriorityMedium Priority = "Medium"
	PriorityHigh   Priority = "High"
)

// TaskType is the closed set of task categories.
type TaskType string

const (
	TypeGeneral    TaskType = "General"
	TypePickup     TaskType = "Pickup"
	TypeService    TaskType = "Service"
	TypeBilling    TaskType = "Billing"
	TypeFollowUp   TaskType = "FollowUp"
	TypeInspection TaskType = "Inspection"
	TypeCall       TaskType = "Call"
)

var taskTypes = []TaskType{TypeGeneral, TypePickup, TypeService, TypeBilling, TypeFollowUp, TypeInspection, TypeCall}

// ParseStatus accepts the local status names case-insensitively.
// "Completed" and "Done" are accepted as synonyms of Closed.
func ParseStatus(s string) (Status, error) {
	switch strings.ToLower(strings.TrimSpace(s)) {
	case "open", "to do", "todo":
		return StatusOpen, nil
	case "scheduled":
		return StatusScheduled, nil
	case "hold", "on hold":
		return StatusHold, nil
	case "closed", "completed", "done":
		return StatusClosed, nil
	}
	return "", fmt.Errorf("unknown task status %q", s)
}

// IsDone reports whether the status counts as completed.
func (s Status) IsDone() bool {
	return s == StatusClosed
}

// ParsePriority accepts Low/Medium/High case-insensitively.
func ParsePriority(s string) (Priority, error) {
	switch strings.ToLower(strings.TrimSpace(s)) {
	case "low":
		return PriorityLow, nil
	case "medium", "":
		return PriorityMedium, nil
	case "high":
		return PriorityHigh, nil
	}
	return "", fmt.Errorf("unknown task priority %q", s)
}

// ParseTaskType validates a task type, defaulting to General when empty.
func ParseTaskType(s string) (TaskType, error) {
	if strings.TrimSpace(s) == "" {
		return TypeGeneral, nil
	}
	for _, t := range taskTypes {
		if strings.EqualFold(string(t), s) {
			return t, nil
		}
	}
	return "", fmt.Errorf("unknown task type %q", s)
}

// Note is a single append-only entry on a task.
type Note struct {
	Content   string    `json:"content" bson:"content"`
	Author    string    `json:"author" bson:"author"`
	Timestamp time.Time `json:"timestamp" bson:"timestamp"`
}

// Task is a Trash Tasker task record.
type Task struct {
	ID          string     `json:"id" bson:"_id"`
	OwnerID     string     `json:"owner_id" bson:"owner_id"`
	Title       string     `json:"title" bson:"title"`
	Description string     `json:"description,omitempty" bson:"description,omitempty"`
	Due         *time.Time `json:"due,omitempty" bson:"due,omitempty"`
	Priority    Priority   `json:"priority" bson:"priority"`
	Status      Status     `json:"status" bson:"status"`
	Type        TaskType   `json:"type" bson:"type"`

	AssignedTo string `json:"assigned_to,omitempty" bson:"assigned_to,omitempty"`
	PropertyID string `json:"property_id,omitempty" bson:"property_id,omitempty"`
	ContactID  string `json:"contact_id,omitempty" bson:"contact_id,omitempty"`
	CompanyID  string `json:"company_id,omitempty" bson:"company_id,omitempty"`

	// External sync. RemoteTaskID present means the task is synced.
	RemoteTaskID  string `json:"remote_task_id,omitempty" bson:"remote_task_id,omitempty"`
	RemoteListID  string `json:"remote_list_id,omitempty" bson:"remote_list_id,omitempty"`
	RemoteEventID string `json:"remote_event_id,omitempty" bson:"remote_event_id,omitempty"`

	CompletedAt *time.Time `json:"completed_at,omitempty" bson:"completed_at,omitempty"`
	Notes       []Note     `json:"notes,omitempty" bson:"notes,omitempty"`
	CreatedAt   time.Time  `json:"created_at" bson:"created_at"`
	UpdatedAt   time.Time  `json:"updated_at" bson:"updated_at"`
}

// Synced reports whether the task has a remote counterpart.
func (t *Task) Synced() bool {
	return t.RemoteTaskID != ""
}

// MarkCompleted stamps CompletedAt the first time it is called. Later calls
// never move or clear it.
func (t *Task) MarkCompleted(now time.Time) {
	if t.CompletedAt == nil {
		ts := now
		t.CompletedAt = &ts
	}
}

// AddNote appends a note. Notes are never edited or removed.
func (t *Task) AddNote(content, author string, now time.Time) {
	t.Notes = append(t.Notes, Note{Content: content, Author: author, Timestamp: now})
}

// Clone returns a deep copy so callers can keep a pre-mutation snapshot.
func (t *Task) Clone() *Task {
	if t == nil {
		return nil
	}
	c := *t
	if t.Due != nil {
		d := *t.Due
		c.Due = &d
	}
	if t.CompletedAt != nil {
		d := *t.CompletedAt
		c.CompletedAt = &d
	}
	if t.Notes != nil {
		c.Notes = append([]Note(nil), t.Notes...)
	}
	return &c
}
