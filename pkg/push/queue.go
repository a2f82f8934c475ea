package push

import (
	"context"
	"errors"
	"hash/fnv"
	"sync"
	"time"

	"github.com/harrisonrobin/trashtasker/pkg/metrics"
	"github.com/sirupsen/logrus"
)

// ErrQueueFull is recorded when a job could not be queued.
var ErrQueueFull = errors.New("push queue full")

// ErrQueueClosed is recorded for jobs submitted after Close.
var ErrQueueClosed = errors.New("push queue closed")

const maxFailures = 100

// Failure is a mirror attempt that did not succeed.
type Failure struct {
	Kind   Kind
	TaskID string
	Err    error
	At     time.Time
}

type queued struct {
	job  Job
	done chan struct{}
}

// Queue runs Propagator jobs on a fixed pool of workers. Each worker owns a
// lane and every job for a task goes to the same lane, so jobs for one task
// run one at a time in submission order. Jobs are detached from the caller's
// context and bounded by a per-job timeout.
type Queue struct {
	prop    *Propagator
	lanes   []chan queued
	timeout time.Duration
	logger  logrus.FieldLogger

	workers sync.WaitGroup
	pending sync.WaitGroup

	mu       sync.Mutex
	closed   bool
	failures []Failure
}

// NewQueue starts workers goroutines sharing a capacity of size jobs.
func NewQueue(prop *Propagator, workers, size int, timeout time.Duration, logger logrus.FieldLogger) *Queue {
	if workers < 1 {
		workers = 1
	}
	if size < workers {
		size = workers
	}
	if timeout <= 0 {
		timeout = 30 * time.Second
	}
	q := &Queue{
		prop:    prop,
		lanes:   make([]chan queued, workers),
		timeout: timeout,
		logger:  logger.WithField("component", "push-queue"),
	}
	for i := range q.lanes {
		q.lanes[i] = make(chan queued, (size+workers-1)/workers)
		q.workers.Add(1)
		go q.work(q.lanes[i])
	}
	return q
}

// lane picks the worker lane for a job by hashing its task id.
func (q *Queue) lane(job Job) chan queued {
	var id string
	if t := job.task(); t != nil {
		id = t.ID
	}
	h := fnv.New32a()
	h.Write([]byte(id))
	return q.lanes[h.Sum32()%uint32(len(q.lanes))]
}

// Enqueue submits a job and returns a channel closed once the job has run.
// A full or closed queue never blocks the caller: the job is dropped,
// recorded as a failure, and the returned channel is already closed.
func (q *Queue) Enqueue(job Job) <-chan struct{} {
	done := make(chan struct{})

	q.mu.Lock()
	defer q.mu.Unlock()
	if q.closed {
		q.recordLocked(job, ErrQueueClosed)
		close(done)
		return done
	}

	q.pending.Add(1)
	select {
	case q.lane(job) <- queued{job: job, done: done}:
		metrics.PushQueueDepth.Inc()
	default:
		q.pending.Done()
		q.recordLocked(job, ErrQueueFull)
		metrics.PushOutcomes.WithLabelValues(string(job.Kind), "dropped").Inc()
		q.logger.WithField("op", job.Kind).Error("push queue full, dropping mirror")
		close(done)
	}
	return done
}

// Drain waits until every job queued so far has run.
func (q *Queue) Drain() {
	q.pending.Wait()
}

// Failures returns the most recent failed jobs, oldest first.
func (q *Queue) Failures() []Failure {
	q.mu.Lock()
	defer q.mu.Unlock()
	out := make([]Failure, len(q.failures))
	copy(out, q.failures)
	return out
}

// Close stops accepting jobs, runs what is already queued and stops the
// workers.
func (q *Queue) Close() {
	q.mu.Lock()
	if q.closed {
		q.mu.Unlock()
		return
	}
	q.closed = true
	for _, lane := range q.lanes {
		close(lane)
	}
	q.mu.Unlock()
	q.workers.Wait()
}

func (q *Queue) work(lane <-chan queued) {
	defer q.workers.Done()
	for item := range lane {
		metrics.PushQueueDepth.Dec()
		q.run(item)
	}
}

func (q *Queue) run(item queued) {
	defer q.pending.Done()
	defer close(item.done)

	ctx, cancel := context.WithTimeout(context.Background(), q.timeout)
	defer cancel()

	err := q.prop.Run(ctx, item.job)
	if err == nil || errors.Is(err, ErrSkipped) {
		return
	}
	q.mu.Lock()
	q.recordLocked(item.job, err)
	q.mu.Unlock()
}

func (q *Queue) recordLocked(job Job, err error) {
	f := Failure{Kind: job.Kind, Err: err, At: time.Now()}
	if t := job.task(); t != nil {
		f.TaskID = t.ID
	}
	q.failures = append(q.failures, f)
	if len(q.failures) > maxFailures {
		q.failures = q.failures[len(q.failures)-maxFailures:]
	}
}
