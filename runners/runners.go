package runners

import (
	"context"
	"sync"

	"github.com/rs/zerolog"

	"github.com/stevecastle/vdr/commands"
	"github.com/stevecastle/vdr/jobqueue"
	"github.com/stevecastle/vdr/logging"
)

// Runners manages a pool of concurrent job runners.
type Runners struct {
	queue    *jobqueue.Queue
	registry *commands.Registry
	mu       sync.Mutex
	running  int
	limit    int
	ctx      context.Context
	cancel   context.CancelFunc
	wg       sync.WaitGroup // signal listener
	jobs     sync.WaitGroup // in-flight jobs
	log      zerolog.Logger
}

// New starts a pool that runs at most limit jobs at once.
func New(queue *jobqueue.Queue, registry *commands.Registry, limit int) *Runners {
	if limit < 1 {
		limit = 1
	}
	ctx, cancel := context.WithCancel(context.Background())
	r := &Runners{
		queue:    queue,
		registry: registry,
		limit:    limit,
		ctx:      ctx,
		cancel:   cancel,
		log:      logging.Component("runners"),
	}

	r.wg.Add(1)
	go func() {
		defer r.wg.Done()
		for {
			select {
			case <-r.ctx.Done():
				return
			case <-r.queue.Signal:
				r.CheckForJobs()
			}
		}
	}()

	return r
}

// Shutdown stops picking up new jobs and waits for running ones to finish.
// Calling it more than once is safe.
func (r *Runners) Shutdown() {
	r.cancel()
	r.wg.Wait()
	r.jobs.Wait()
}

// Running returns the number of jobs currently executing.
func (r *Runners) Running() int {
	r.mu.Lock()
	defer r.mu.Unlock()
	return r.running
}

// CheckForJobs claims pending jobs until the pool is full or the queue is empty.
func (r *Runners) CheckForJobs() {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.fillLocked()
}

func (r *Runners) fillLocked() {
	for r.running < r.limit && r.ctx.Err() == nil {
		job := r.queue.ClaimJob()
		if job == nil {
			return
		}
		r.runJob(job)
	}
}

// runJob executes one job on its own goroutine. Panics are deliberately not
// recovered: a poisoned upload history must take the process down.
func (r *Runners) runJob(j *jobqueue.Job) {
	r.running++
	r.jobs.Add(1)
	id, name, args := j.ID, j.Command, j.Args
	go func() {
		defer r.jobs.Done()
		defer func() {
			r.mu.Lock()
			r.running--
			r.fillLocked()
			r.mu.Unlock()
		}()

		res, err := r.registry.Invoke(r.ctx, name, args)
		if err != nil {
			r.log.Debug().Str("job", id).Str("command", name).Err(err).Msg("command failed")
			_ = r.queue.ErrorJob(id, err)
			return
		}
		_ = r.queue.CompleteJob(id, res)
	}()
}
