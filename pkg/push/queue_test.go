package push

import (
	"errors"
	"testing"
	"time"

	"github.com/harrisonrobin/trashtasker/pkg/logging"
	"github.com/harrisonrobin/trashtasker/pkg/provider"
	"github.com/harrisonrobin/trashtasker/pkg/testutil"
)

func TestQueueRunsJobsAndRecordsFailures(t *testing.T) {
	s := testutil.OpenStore(t)
	fp := testutil.NewFakeProvider("L1")
	fp.Fail("UpdateTask", errors.New("backend down"))
	q := NewQueue(NewPropagator(fp.Factory(), s, "", logging.Discard()), 2, 16, time.Second, logging.Discard())
	defer q.Close()

	a := insertTask(t, s, "a", dueOn(2024, 3, 15))
	b := insertTask(t, s, "b", nil)
	b.RemoteTaskID, b.RemoteListID = "g1", "L1"
	bAfter := b.Clone()
	bAfter.Title = "Renamed"
	saveTask(t, s, bAfter)

	q.Enqueue(Job{Kind: KindCreate, Credential: cred, After: a})
	q.Enqueue(Job{Kind: KindUpdate, Credential: cred, Before: b, After: bAfter})
	q.Drain()

	got, _ := s.Get(t.Context(), "a")
	if !got.Synced() {
		t.Error("Expected queued create to stamp remote ids")
	}

	failures := q.Failures()
	if len(failures) != 1 {
		t.Fatalf("Expected 1 failure, got %d", len(failures))
	}
	if failures[0].Kind != KindUpdate || failures[0].TaskID != "b" {
		t.Errorf("Unexpected failure %+v", failures[0])
	}
	if !errors.Is(failures[0].Err, provider.ErrUnavailable) {
		t.Errorf("Expected ErrUnavailable, got %v", failures[0].Err)
	}
}

func TestQueueDoneChannel(t *testing.T) {
	s := testutil.OpenStore(t)
	fp := testutil.NewFakeProvider("L1")
	fp.Put("L1", provider.RemoteTask{ID: "g1", Title: "Haul"})
	q := NewQueue(NewPropagator(fp.Factory(), s, "", logging.Discard()), 1, 4, time.Second, logging.Discard())
	defer q.Close()

	task := insertTask(t, s, "t1", nil)
	task.RemoteTaskID, task.RemoteListID = "g1", "L1"

	select {
	case <-q.Enqueue(Job{Kind: KindDelete, Credential: cred, Before: task}):
	case <-time.After(5 * time.Second):
		t.Fatal("Timed out waiting for delete job")
	}
	if _, ok := fp.Task("L1", "g1"); ok {
		t.Error("Expected remote task deleted once done is closed")
	}
}

func TestQueueRunsJobsForOneTaskInOrder(t *testing.T) {
	s := testutil.OpenStore(t)
	fp := testutil.NewFakeProvider("L1")
	fp.Put("L1", provider.RemoteTask{ID: "g1", Title: "Pickup t1"})
	q := NewQueue(NewPropagator(fp.Factory(), s, "", logging.Discard()), 4, 64, time.Second, logging.Discard())
	defer q.Close()

	prev := insertTask(t, s, "t1", nil)
	prev.RemoteTaskID, prev.RemoteListID = "g1", "L1"
	saveTask(t, s, prev)
	for _, title := range []string{"First", "Second", "Third"} {
		next := prev.Clone()
		next.Title = title
		saveTask(t, s, next)
		q.Enqueue(Job{Kind: KindUpdate, Credential: cred, Before: prev, After: next})
		prev = next
	}
	q.Drain()

	remote, _ := fp.Task("L1", "g1")
	if remote.Title != "Third" {
		t.Errorf("Expected last title Third, got %q", remote.Title)
	}
	if len(q.Failures()) != 0 {
		t.Errorf("Expected no failures, got %+v", q.Failures())
	}
}

func TestQueueAfterClose(t *testing.T) {
	s := testutil.OpenStore(t)
	fp := testutil.NewFakeProvider("L1")
	q := NewQueue(NewPropagator(fp.Factory(), s, "", logging.Discard()), 1, 4, time.Second, logging.Discard())
	q.Close()
	q.Close()

	task := insertTask(t, s, "t1", dueOn(2024, 3, 15))
	select {
	case <-q.Enqueue(Job{Kind: KindCreate, Credential: cred, After: task}):
	default:
		t.Fatal("Expected done channel to be closed for a closed queue")
	}
	failures := q.Failures()
	if len(failures) != 1 || !errors.Is(failures[0].Err, ErrQueueClosed) {
		t.Errorf("Expected one ErrQueueClosed failure, got %+v", failures)
	}
}
