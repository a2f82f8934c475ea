package google

import (
	"context"
	"fmt"
	"time"

	"github.com/harrisonrobin/trashtasker/pkg/model"
	"github.com/harrisonrobin/trashtasker/pkg/util"
	"google.golang.org/api/calendar/v3"
	"google.golang.org/api/option"
)

// CalendarClient is a Google Calendar API client mirroring due-dated tasks
// as all-day events.
type CalendarClient struct {
	srv        *calendar.Service
	calendarID string
	now        func() time.Time
}

// NewCalendarClient creates a new Google Calendar client.
func NewCalendarClient(srv *calendar.Service, calendarID string) *CalendarClient {
	return &CalendarClient{srv: srv, calendarID: calendarID, now: time.Now}
}

// NewCalendarClientByName resolves calendarName among the user's calendars.
func NewCalendarClientByName(ctx context.Context, calendarName string, opts ...option.ClientOption) (*CalendarClient, error) {
	srv, err := calendar.NewService(ctx, opts...)
	if err != nil {
		return nil, fmt.Errorf("unable to retrieve Calendar client: %w", err)
	}

	calendarList, err := srv.CalendarList.List().Context(ctx).Do()
	if err != nil {
		return nil, classify("list calendars", err)
	}

	var calendarID string
	for _, item := range calendarList.Items {
		if item.Summary == calendarName {
			calendarID = item.Id
			break
		}
	}
	if calendarID == "" {
		return nil, fmt.Errorf("calendar '%s' not found", calendarName)
	}

	return NewCalendarClient(srv, calendarID), nil
}

// SyncEvent creates the task's event or patches the existing one and returns
// the event id.
func (c *CalendarClient) SyncEvent(ctx context.Context, task *model.Task) (string, error) {
	event, err := util.TaskToCalendarEvent(task, c.now())
	if err != nil {
		return "", err
	}

	var existing *calendar.Event
	// 1. Try the stored event id first
	if task.RemoteEventID != "" {
		existing, err = c.srv.Events.Get(c.calendarID, task.RemoteEventID).Context(ctx).Do()
		if err != nil {
			existing = nil
		}
	}

	// 2. Fall back to searching by extended property
	if existing == nil {
		existing, err = c.GetEventByTaskID(ctx, task.ID)
		if err != nil {
			return "", fmt.Errorf("error searching for event: %w", err)
		}
	}

	if existing != nil {
		if patch := util.EventNeedsUpdate(existing, event); patch != nil {
			updated, err := c.PatchEvent(ctx, existing.Id, patch)
			if err != nil {
				return "", err
			}
			return updated.Id, nil
		}
		return existing.Id, nil
	}

	created, err := c.srv.Events.Insert(c.calendarID, event).Context(ctx).Do()
	if err != nil {
		return "", classify("create event", err)
	}
	return created.Id, nil
}

// PatchEvent performs a partial update on an event.
func (c *CalendarClient) PatchEvent(ctx context.Context, eventID string, patch *calendar.Event) (*calendar.Event, error) {
	updated, err := c.srv.Events.Patch(c.calendarID, eventID, patch).Context(ctx).Do()
	if err != nil {
		return nil, classify(fmt.Sprintf("patch event %s", eventID), err)
	}
	return updated, nil
}

// DeleteEvent deletes an event. An event that is already gone is not an error.
func (c *CalendarClient) DeleteEvent(ctx context.Context, eventID string) error {
	err := c.srv.Events.Delete(c.calendarID, eventID).Context(ctx).Do()
	if err != nil && !isGone(err) {
		return classify(fmt.Sprintf("delete event %s", eventID), err)
	}
	return nil
}

// GetEventByTaskID searches for an event carrying the task id in its private
// extended properties.
func (c *CalendarClient) GetEventByTaskID(ctx context.Context, taskID string) (*calendar.Event, error) {
	events, err := c.srv.Events.List(c.calendarID).
		PrivateExtendedProperty(fmt.Sprintf("%s=%s", util.EventTaskIDKey, taskID)).
		Context(ctx).
		Do()
	if err != nil {
		return nil, classify("search events", err)
	}
	if len(events.Items) > 0 {
		return events.Items[0], nil
	}
	return nil, nil
}
