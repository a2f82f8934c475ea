// Package overdue selects calendar-mirrored tasks whose due day has passed,
// so their events can be re-rendered with the overdue marker.
package overdue

import (
	"time"

	"github.com/harrisonrobin/trashtasker/pkg/model"
)

const dateLayout = "2006-01-02"

// IsOverdue reports whether an open task's due day lies before now's day.
func IsOverdue(task *model.Task, now time.Time) bool {
	if task.Due == nil || task.Status.IsDone() {
		return false
	}
	return task.Due.Format(dateLayout) < now.Format(dateLayout)
}

// Sweep returns the overdue tasks that carry a calendar event.
func Sweep(tasks []*model.Task, now time.Time) []*model.Task {
	var out []*model.Task
	for _, t := range tasks {
		if t.RemoteEventID != "" && IsOverdue(t, now) {
			out = append(out, t)
		}
	}
	return out
}
