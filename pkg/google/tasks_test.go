package google

import (
	"context"
	"encoding/json"
	"errors"
	"io"
	"net/http"
	"net/http/httptest"
	"strings"
	"sync"
	"testing"
	"time"

	"github.com/harrisonrobin/trashtasker/pkg/model"
	"github.com/harrisonrobin/trashtasker/pkg/provider"
	"google.golang.org/api/calendar/v3"
	"google.golang.org/api/option"
)

// fakeGoogle is a minimal stand-in for the Tasks and Calendar REST endpoints.
type fakeGoogle struct {
	mu       sync.Mutex
	queries  []string
	bodies   map[string]map[string]any
	requests []string
}

func (f *fakeGoogle) ServeHTTP(w http.ResponseWriter, r *http.Request) {
	f.mu.Lock()
	defer f.mu.Unlock()

	path := r.URL.Path
	f.requests = append(f.requests, r.Method+" "+path)
	if r.Body != nil {
		data, _ := io.ReadAll(r.Body)
		if len(data) > 0 {
			var body map[string]any
			_ = json.Unmarshal(data, &body)
			f.bodies[r.Method+" "+path] = body
		}
	}

	w.Header().Set("Content-Type", "application/json")
	switch {
	case strings.Contains(path, "/gone"):
		w.WriteHeader(http.StatusNotFound)
		io.WriteString(w, `{"error":{"code":404,"message":"Not Found"}}`)
	case strings.Contains(path, "/broken"):
		w.WriteHeader(http.StatusInternalServerError)
		io.WriteString(w, `{"error":{"code":500,"message":"backend error"}}`)
	case r.Method == http.MethodGet && strings.HasSuffix(path, "/users/@me/lists"):
		io.WriteString(w, `{"items":[{"id":"L1","title":"My Tasks"},{"id":"L2","title":"Crew"}]}`)
	case r.Method == http.MethodGet && strings.HasSuffix(path, "/lists/L1/tasks"):
		f.queries = append(f.queries, r.URL.RawQuery)
		if r.URL.Query().Get("pageToken") == "" {
			io.WriteString(w, `{"items":[{"id":"g1","title":"Call client","status":"needsAction"}],"nextPageToken":"p2"}`)
			return
		}
		io.WriteString(w, `{"items":[{"id":"g2","title":"Haul","notes":"dock 3","status":"completed","due":"2024-03-15T00:00:00.000Z","hidden":true},{"id":"g3","deleted":true}]}`)
	case r.Method == http.MethodPost && strings.HasSuffix(path, "/lists/L1/tasks"):
		io.WriteString(w, `{"id":"new1"}`)
	case r.Method == http.MethodPatch && strings.Contains(path, "/lists/L1/tasks/"):
		io.WriteString(w, `{"id":"g1"}`)
	case r.Method == http.MethodDelete:
		w.WriteHeader(http.StatusNoContent)
	case r.Method == http.MethodGet && strings.HasSuffix(path, "/events"):
		io.WriteString(w, `{"items":[]}`)
	case r.Method == http.MethodPost && strings.HasSuffix(path, "/events"):
		io.WriteString(w, `{"id":"ev1"}`)
	default:
		w.WriteHeader(http.StatusNotFound)
		io.WriteString(w, `{"error":{"code":404,"message":"unexpected route"}}`)
	}
}

func newFake(t *testing.T) (*fakeGoogle, []option.ClientOption) {
	t.Helper()
	fake := &fakeGoogle{bodies: make(map[string]map[string]any)}
	srv := httptest.NewServer(fake)
	t.Cleanup(srv.Close)
	return fake, []option.ClientOption{
		option.WithEndpoint(srv.URL + "/"),
		option.WithHTTPClient(srv.Client()),
	}
}

func TestTasksClientListTasksPaginatesAndIncludesCompleted(t *testing.T) {
	fake, opts := newFake(t)
	client, err := NewTasksClientWithOptions(context.Background(), opts...)
	if err != nil {
		t.Fatalf("NewTasksClientWithOptions failed: %v", err)
	}

	lists, err := client.ListTaskLists(context.Background())
	if err != nil {
		t.Fatalf("ListTaskLists failed: %v", err)
	}
	if len(lists) != 2 || lists[0].ID != "L1" {
		t.Fatalf("Expected lists L1,L2, got %+v", lists)
	}

	items, err := client.ListTasks(context.Background(), "L1")
	if err != nil {
		t.Fatalf("ListTasks failed: %v", err)
	}
	if len(items) != 2 {
		t.Fatalf("Expected 2 tasks (deleted one skipped), got %d", len(items))
	}
	if !items[1].Completed() || items[1].Notes != "dock 3" || items[1].Due == "" {
		t.Errorf("Unexpected second task %+v", items[1])
	}
	for _, q := range fake.queries {
		if !strings.Contains(q, "showCompleted=true") || !strings.Contains(q, "showHidden=true") {
			t.Errorf("Expected showCompleted and showHidden in query, got %s", q)
		}
	}
}

func TestTasksClientCreateNormalizesDue(t *testing.T) {
	fake, opts := newFake(t)
	client, _ := NewTasksClientWithOptions(context.Background(), opts...)

	title := "Pickup"
	due := time.Date(2024, 3, 15, 9, 30, 0, 0, time.UTC)
	id, err := client.CreateTask(context.Background(), "L1", provider.Fields{Title: &title, Due: &due})
	if err != nil {
		t.Fatalf("CreateTask failed: %v", err)
	}
	if id != "new1" {
		t.Errorf("Expected id new1, got %s", id)
	}

	var body map[string]any
	for k, v := range fake.bodies {
		if strings.HasPrefix(k, "POST ") {
			body = v
		}
	}
	if body["due"] != "2024-03-15T23:59:59.999Z" {
		t.Errorf("Expected due 2024-03-15T23:59:59.999Z, got %v", body["due"])
	}
	if body["title"] != "Pickup" {
		t.Errorf("Expected title Pickup, got %v", body["title"])
	}
}

func TestTasksClientUpdateNotFound(t *testing.T) {
	_, opts := newFake(t)
	client, _ := NewTasksClientWithOptions(context.Background(), opts...)

	status := provider.StatusCompleted
	err := client.UpdateTask(context.Background(), "L1", "gone", provider.Fields{Status: &status})
	if !errors.Is(err, provider.ErrNotFound) {
		t.Errorf("Expected ErrNotFound, got %v", err)
	}

	if err := client.UpdateTask(context.Background(), "L1", "g1", provider.Fields{Status: &status}); err != nil {
		t.Errorf("UpdateTask failed: %v", err)
	}
}

func TestTasksClientDeleteIsIdempotent(t *testing.T) {
	_, opts := newFake(t)
	client, _ := NewTasksClientWithOptions(context.Background(), opts...)

	if err := client.DeleteTask(context.Background(), "L1", "gone"); err != nil {
		t.Errorf("Expected delete of missing task to succeed, got %v", err)
	}
	if err := client.DeleteTask(context.Background(), "L1", "g1"); err != nil {
		t.Errorf("DeleteTask failed: %v", err)
	}
	err := client.DeleteTask(context.Background(), "L1", "broken")
	if !errors.Is(err, provider.ErrUnavailable) {
		t.Errorf("Expected ErrUnavailable for server error, got %v", err)
	}
}

func TestTasksFactoryRequiresCredential(t *testing.T) {
	_, err := TasksFactory()(context.Background(), "")
	if !errors.Is(err, provider.ErrUnavailable) {
		t.Errorf("Expected ErrUnavailable without credential, got %v", err)
	}
}

func TestCalendarClientSyncEventCreates(t *testing.T) {
	fake, opts := newFake(t)
	srv, err := calendar.NewService(context.Background(), opts...)
	if err != nil {
		t.Fatalf("calendar.NewService failed: %v", err)
	}
	client := NewCalendarClient(srv, "cal1")

	due := time.Date(2024, 3, 15, 0, 0, 0, 0, time.UTC)
	task := &model.Task{ID: "t1", Title: "Pickup", Status: model.StatusOpen, Priority: model.PriorityLow, Due: &due}
	id, err := client.SyncEvent(context.Background(), task)
	if err != nil {
		t.Fatalf("SyncEvent failed: %v", err)
	}
	if id != "ev1" {
		t.Errorf("Expected event id ev1, got %s", id)
	}

	if err := client.DeleteEvent(context.Background(), "gone"); err != nil {
		t.Errorf("Expected delete of missing event to succeed, got %v", err)
	}
	if len(fake.requests) < 3 {
		t.Errorf("Expected list, insert and delete requests, got %v", fake.requests)
	}
}
