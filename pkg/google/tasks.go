package google

import (
	"context"
	"fmt"

	"github.com/harrisonrobin/trashtasker/pkg/provider"
	"github.com/harrisonrobin/trashtasker/pkg/util"
	"google.golang.org/api/option"
	"google.golang.org/api/tasks/v1"
)

const pageSize = 100

// TasksClient is a Google Tasks API client implementing provider.Provider.
type TasksClient struct {
	srv *tasks.Service
}

// NewTasksClient wraps an authenticated Tasks service.
func NewTasksClient(srv *tasks.Service) *TasksClient {
	return &TasksClient{srv: srv}
}

// NewTasksClientWithOptions builds the Tasks service from client options,
// typically option.WithHTTPClient or option.WithTokenSource.
func NewTasksClientWithOptions(ctx context.Context, opts ...option.ClientOption) (*TasksClient, error) {
	srv, err := tasks.NewService(ctx, opts...)
	if err != nil {
		return nil, fmt.Errorf("unable to create Tasks client: %w", err)
	}
	return NewTasksClient(srv), nil
}

// ListTaskLists returns every task list of the authenticated user.
func (c *TasksClient) ListTaskLists(ctx context.Context) ([]provider.TaskList, error) {
	var lists []provider.TaskList
	pageToken := ""
	for {
		call := c.srv.Tasklists.List().MaxResults(pageSize).Context(ctx)
		if pageToken != "" {
			call = call.PageToken(pageToken)
		}
		resp, err := call.Do()
		if err != nil {
			return nil, classify("list task lists", err)
		}
		for _, l := range resp.Items {
			lists = append(lists, provider.TaskList{ID: l.Id, Title: l.Title})
		}
		if resp.NextPageToken == "" {
			return lists, nil
		}
		pageToken = resp.NextPageToken
	}
}

// ListTasks returns all tasks of a list. Completed and hidden tasks are
// requested explicitly; without them completions made remotely are invisible.
func (c *TasksClient) ListTasks(ctx context.Context, listID string) ([]provider.RemoteTask, error) {
	var items []provider.RemoteTask
	pageToken := ""
	for {
		call := c.srv.Tasks.List(listID).
			ShowCompleted(true).
			ShowHidden(true).
			MaxResults(pageSize).
			Context(ctx)
		if pageToken != "" {
			call = call.PageToken(pageToken)
		}
		resp, err := call.Do()
		if err != nil {
			return nil, classify(fmt.Sprintf("list tasks of %s", listID), err)
		}
		for _, t := range resp.Items {
			if t.Deleted {
				continue
			}
			items = append(items, provider.RemoteTask{
				ID:     t.Id,
				Title:  t.Title,
				Notes:  t.Notes,
				Due:    t.Due,
				Status: t.Status,
			})
		}
		if resp.NextPageToken == "" {
			return items, nil
		}
		pageToken = resp.NextPageToken
	}
}

// CreateTask inserts a task into listID and returns its id.
func (c *TasksClient) CreateTask(ctx context.Context, listID string, f provider.Fields) (string, error) {
	created, err := c.srv.Tasks.Insert(listID, toAPITask(f)).Context(ctx).Do()
	if err != nil {
		return "", classify("create task", err)
	}
	return created.Id, nil
}

// UpdateTask patches only the fields set in f.
func (c *TasksClient) UpdateTask(ctx context.Context, listID, remoteID string, f provider.Fields) error {
	if f.Empty() {
		return nil
	}
	if _, err := c.srv.Tasks.Patch(listID, remoteID, toAPITask(f)).Context(ctx).Do(); err != nil {
		return classify(fmt.Sprintf("update task %s", remoteID), err)
	}
	return nil
}

// DeleteTask deletes a task. A task that is already gone is not an error.
func (c *TasksClient) DeleteTask(ctx context.Context, listID, remoteID string) error {
	err := c.srv.Tasks.Delete(listID, remoteID).Context(ctx).Do()
	if err != nil && !isGone(err) {
		return classify(fmt.Sprintf("delete task %s", remoteID), err)
	}
	return nil
}

func toAPITask(f provider.Fields) *tasks.Task {
	t := &tasks.Task{}
	if f.Title != nil {
		t.Title = *f.Title
		t.ForceSendFields = append(t.ForceSendFields, "Title")
	}
	if f.Notes != nil {
		t.Notes = *f.Notes
		t.ForceSendFields = append(t.ForceSendFields, "Notes")
	}
	if f.Due != nil {
		t.Due = util.NormalizeDueForRemote(*f.Due)
	}
	if f.Status != nil {
		t.Status = *f.Status
		if *f.Status == provider.StatusNeedsAction {
			// Reopening requires clearing the completion timestamp.
			t.NullFields = append(t.NullFields, "Completed")
		}
	}
	return t
}
