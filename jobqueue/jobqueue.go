// Package jobqueue tracks command invocations from the bridge while they wait
// for and run on the runner pool.
package jobqueue

import (
	"context"
	"encoding/json"
	"errors"
	"sync"
	"time"

	"github.com/google/uuid"
	"github.com/rs/zerolog"

	"github.com/stevecastle/vdr/commands"
	"github.com/stevecastle/vdr/logging"
	"github.com/stevecastle/vdr/stream"
)

// JobState represents the current state of a job in the queue.
type JobState int

const (
	StatePending JobState = iota
	StateInProgress
	StateCompleted
	StateError
)

// DefaultRetention is how many finished jobs are kept for inspection.
const DefaultRetention = 200

var (
	ErrJobNotFound   = errors.New("job not found")
	ErrInvalidState  = errors.New("job is not in the expected state")
	ErrQueueShutdown = errors.New("queue is shut down")
)

func (s JobState) String() string {
	switch s {
	case StatePending:
		return "pending"
	case StateInProgress:
		return "in_progress"
	case StateCompleted:
		return "completed"
	case StateError:
		return "error"
	default:
		return "unknown"
	}
}

// MarshalJSON serializes JobState as a lowercase string for JSON.
func (s JobState) MarshalJSON() ([]byte, error) {
	return json.Marshal(s.String())
}

// Finished reports whether the job has reached a terminal state.
func (s JobState) Finished() bool {
	return s == StateCompleted || s == StateError
}

// Job is one bridge invocation.
type Job struct {
	ID       string        `json:"id"`
	Command  string        `json:"command"`
	Args     commands.Args `json:"args"`
	State    JobState      `json:"state"`
	ErrorMsg string        `json:"error,omitempty"`

	Result commands.Result `json:"-"`
	Err    error           `json:"-"`

	CreatedAt   time.Time `json:"created_at"`
	ClaimedAt   time.Time `json:"claimed_at"`
	CompletedAt time.Time `json:"completed_at"`
	ErroredAt   time.Time `json:"errored_at"`

	done      chan struct{}
	abandoned bool // nobody will collect Result
}

// Ticket is the caller's handle on an enqueued job. It stays valid after the
// job has been pruned from the queue.
type Ticket struct {
	ID  string
	q   *Queue
	job *Job
}

// Wait blocks until the job finishes or ctx is done. The result is handed
// over once; the queue keeps only the job's metadata afterwards. Giving up
// does not stop the job.
func (t *Ticket) Wait(ctx context.Context) (Job, error) {
	select {
	case <-t.job.done:
	case <-ctx.Done():
		t.q.mu.Lock()
		t.job.abandoned = true
		t.job.Result = commands.Result{}
		t.q.mu.Unlock()
		return Job{}, ctx.Err()
	}

	t.q.mu.Lock()
	defer t.q.mu.Unlock()
	j := *t.job
	t.job.Result = commands.Result{}
	return j, nil
}

// Publisher receives job updates; *stream.Hub satisfies it.
type Publisher interface {
	Broadcast(stream.Message)
}

// SerializedEvent is the payload of a job stream event.
type SerializedEvent struct {
	UpdateType string `json:"updateType"`
	Job        Job    `json:"job"`
}

// Queue is a thread-safe FIFO of jobs.
type Queue struct {
	mu        sync.Mutex
	Jobs      map[string]*Job
	JobOrder  []string
	Signal    chan string
	retention int
	pub       Publisher
	closed    bool
	log       zerolog.Logger
}

// NewQueue initializes and returns a new Queue. pub may be nil.
func NewQueue(pub Publisher) *Queue {
	return &Queue{
		Jobs:      make(map[string]*Job),
		Signal:    make(chan string, 100),
		retention: DefaultRetention,
		pub:       pub,
		log:       logging.Component("jobqueue"),
	}
}

// SetRetention changes how many finished jobs are kept.
func (q *Queue) SetRetention(n int) {
	q.mu.Lock()
	q.retention = n
	q.pruneLocked()
	q.mu.Unlock()
}

// AddJob enqueues an invocation and signals the runners.
func (q *Queue) AddJob(command string, args commands.Args) (*Ticket, error) {
	q.mu.Lock()
	defer q.mu.Unlock()
	if q.closed {
		return nil, ErrQueueShutdown
	}

	id := uuid.NewString()
	job := &Job{
		ID:        id,
		Command:   command,
		Args:      args,
		State:     StatePending,
		CreatedAt: time.Now(),
		done:      make(chan struct{}),
	}
	q.Jobs[id] = job
	q.JobOrder = append(q.JobOrder, id)

	// runners re-check the queue after every job, so a full buffer is fine
	select {
	case q.Signal <- id:
	default:
	}
	q.publishLocked("create", job)
	return &Ticket{ID: id, q: q, job: job}, nil
}

// ClaimJob moves the oldest pending job to in-progress. It returns nil when
// nothing is pending.
func (q *Queue) ClaimJob() *Job {
	q.mu.Lock()
	defer q.mu.Unlock()

	for _, id := range q.JobOrder {
		job := q.Jobs[id]
		if job.State == StatePending {
			job.State = StateInProgress
			job.ClaimedAt = time.Now()
			q.publishLocked("update", job)
			return job
		}
	}
	return nil
}

// CompleteJob stores the result of a successful run.
func (q *Queue) CompleteJob(id string, res commands.Result) error {
	return q.finish(id, func(j *Job) {
		j.State = StateCompleted
		j.Result = res
		j.CompletedAt = time.Now()
	})
}

// ErrorJob stores the failure of a run.
func (q *Queue) ErrorJob(id string, err error) error {
	return q.finish(id, func(j *Job) {
		j.State = StateError
		j.Err = err
		if err != nil {
			j.ErrorMsg = err.Error()
		}
		j.ErroredAt = time.Now()
	})
}

func (q *Queue) finish(id string, apply func(*Job)) error {
	q.mu.Lock()
	defer q.mu.Unlock()

	job, ok := q.Jobs[id]
	if !ok {
		return ErrJobNotFound
	}
	if job.State != StateInProgress {
		return ErrInvalidState
	}
	apply(job)
	if job.abandoned {
		job.Result = commands.Result{}
	}
	close(job.done)
	q.publishLocked("update", job)
	q.pruneLocked()
	return nil
}

// GetJobs returns a snapshot of all jobs in queue order.
func (q *Queue) GetJobs() []Job {
	q.mu.Lock()
	defer q.mu.Unlock()
	out := make([]Job, 0, len(q.JobOrder))
	for _, id := range q.JobOrder {
		out = append(out, *q.Jobs[id])
	}
	return out
}

// GetJob returns a copy of one job.
func (q *Queue) GetJob(id string) (Job, bool) {
	q.mu.Lock()
	defer q.mu.Unlock()
	job, ok := q.Jobs[id]
	if !ok {
		return Job{}, false
	}
	return *job, true
}

// Counts tallies jobs per state.
func (q *Queue) Counts() map[string]int {
	q.mu.Lock()
	defer q.mu.Unlock()
	counts := map[string]int{"total": len(q.JobOrder)}
	for _, s := range []JobState{StatePending, StateInProgress, StateCompleted, StateError} {
		counts[s.String()] = 0
	}
	for _, id := range q.JobOrder {
		counts[q.Jobs[id].State.String()]++
	}
	return counts
}

// Close rejects new jobs and fails every job still pending with
// ErrQueueShutdown. Jobs already running finish normally.
func (q *Queue) Close() {
	q.mu.Lock()
	defer q.mu.Unlock()
	if q.closed {
		return
	}
	q.closed = true

	now := time.Now()
	for _, id := range q.JobOrder {
		job := q.Jobs[id]
		if job.State != StatePending {
			continue
		}
		job.State = StateError
		job.Err = ErrQueueShutdown
		job.ErrorMsg = ErrQueueShutdown.Error()
		job.ErroredAt = now
		close(job.done)
		q.publishLocked("update", job)
	}
	q.pruneLocked()
}

// pruneLocked drops the oldest finished jobs beyond the retention limit.
func (q *Queue) pruneLocked() {
	finished := 0
	for _, id := range q.JobOrder {
		if q.Jobs[id].State.Finished() {
			finished++
		}
	}
	excess := finished - q.retention
	if excess <= 0 {
		return
	}

	kept := q.JobOrder[:0]
	for _, id := range q.JobOrder {
		if excess > 0 && q.Jobs[id].State.Finished() {
			delete(q.Jobs, id)
			excess--
			continue
		}
		kept = append(kept, id)
	}
	q.JobOrder = kept
}

func (q *Queue) publishLocked(updateType string, job *Job) {
	if q.pub == nil {
		return
	}
	q.pub.Broadcast(stream.JSONMessage(stream.TypeJob, SerializedEvent{UpdateType: updateType, Job: *job}))
	q.log.Debug().
		Str("job", job.ID).
		Str("command", job.Command).
		Str("state", job.State.String()).
		Msg(updateType)
}
