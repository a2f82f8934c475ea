package util

import (
	"fmt"
	"strings"
	"time"

	"github.com/harrisonrobin/trashtasker/pkg/model"
	"github.com/harrisonrobin/trashtasker/pkg/overdue"
	"google.golang.org/api/calendar/v3"
)

// EventTaskIDKey is the private extended property that links an event to a task.
const EventTaskIDKey = "trashtasker_id"

var priorityColors = map[model.Priority]string{
	model.PriorityLow:    "2",  // sage
	model.PriorityMedium: "5",  // banana
	model.PriorityHigh:   "11", // tomato
}

// TaskToCalendarEvent converts a task with a due date into an all-day event.
func TaskToCalendarEvent(task *model.Task, now time.Time) (*calendar.Event, error) {
	if task == nil {
		return nil, fmt.Errorf("could not convert nil Task")
	}
	if task.Due == nil {
		return nil, fmt.Errorf("task has no due date: %s", task.ID)
	}

	prefix := ""
	day := task.Due.Format(dateLayout)
	if task.Status.IsDone() {
		prefix = "✓"
	} else if overdue.IsOverdue(task, now) {
		prefix = "!"
	}

	summary := task.Title
	if prefix != "" {
		summary = fmt.Sprintf("%s %s", prefix, task.Title)
	}

	colorID, ok := priorityColors[task.Priority]
	if !ok {
		colorID = priorityColors[model.PriorityMedium]
	}

	var desc strings.Builder
	if task.Description != "" {
		desc.WriteString(task.Description)
		desc.WriteString("\n\n")
	}
	desc.WriteString(fmt.Sprintf("Status: %s\n", task.Status))
	desc.WriteString(fmt.Sprintf("Type: %s\n", task.Type))
	desc.WriteString(fmt.Sprintf("Priority: %s\n", task.Priority))
	if task.AssignedTo != "" {
		desc.WriteString(fmt.Sprintf("Assigned: %s\n", task.AssignedTo))
	}
	desc.WriteString(fmt.Sprintf("ID: %s\n", task.ID))
	if len(task.Notes) > 0 {
		desc.WriteString("\nNotes:\n")
		for _, n := range task.Notes {
			desc.WriteString(fmt.Sprintf("‣ %s (%s)\n", n.Content, n.Author))
		}
	}

	end := task.Due.AddDate(0, 0, 1).Format(dateLayout)
	return &calendar.Event{
		Summary:     summary,
		ColorId:     colorID,
		Description: desc.String(),
		Start:       &calendar.EventDateTime{Date: day},
		End:         &calendar.EventDateTime{Date: end},
		ExtendedProperties: &calendar.EventExtendedProperties{
			Private: map[string]string{EventTaskIDKey: task.ID},
		},
	}, nil
}

// EventNeedsUpdate returns a patch holding the fields of target that differ
// from existing, or nil when nothing changed.
func EventNeedsUpdate(existing, target *calendar.Event) *calendar.Event {
	patch := &calendar.Event{}
	needsUpdate := false

	if existing.Summary != target.Summary {
		patch.Summary = target.Summary
		needsUpdate = true
	}
	if existing.Description != target.Description {
		patch.Description = target.Description
		needsUpdate = true
	}
	if existing.ColorId != target.ColorId {
		patch.ColorId = target.ColorId
		needsUpdate = true
	}
	if eventDate(existing.Start) != eventDate(target.Start) || eventDate(existing.End) != eventDate(target.End) {
		patch.Start = target.Start
		patch.End = target.End
		needsUpdate = true
	}

	if needsUpdate {
		return patch
	}
	return nil
}

func eventDate(dt *calendar.EventDateTime) string {
	if dt == nil {
		return ""
	}
	if dt.Date != "" {
		return dt.Date
	}
	if len(dt.DateTime) >= len(dateLayout) {
		return dt.DateTime[:len(dateLayout)]
	}
	return dt.DateTime
}
