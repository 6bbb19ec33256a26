package torrent

import (
	"errors"
	"fmt"
	"sync/atomic"

	"torrentutil/internal/hashing"
)

// ErrClosed is returned when a mutation is queued after Close.
var ErrClosed = errors.New("torrent is closed")

// JobState is the lifecycle of a queued mutation. A job never moves
// backward: Pending -> Running -> Succeeded or Failed.
type JobState int32

const (
	JobPending JobState = iota
	JobRunning
	JobSucceeded
	JobFailed
)

func (s JobState) String() string {
	switch s {
	case JobPending:
		return "pending"
	case JobRunning:
		return "running"
	case JobSucceeded:
		return "succeeded"
	case JobFailed:
		return "failed"
	}
	return "unknown"
}

// Job is the handle to one queued mutation. It is created when the mutation
// is accepted, executed once by the torrent's worker, and immutable once
// terminal. A failing job records its reason here and never aborts jobs
// queued after it.
type Job struct {
	name  string
	state atomic.Int32
	prog  *hashing.Progress
	run   func(*Job) error
	done  chan struct{}

	// written by the worker before done is closed
	failed_reason string
	result        any
}

func new_job(name string, prog *hashing.Progress, run func(*Job) error) *Job {
	return &Job{name: name, prog: prog, run: run, done: make(chan struct{})}
}

func (j *Job) Name() string {
	return j.name
}

func (j *Job) State() JobState {
	return JobState(j.state.Load())
}

func (j *Job) Done() bool {
	select {
	case <-j.done:
		return true
	default:
		return false
	}
}

func (j *Job) Succeeded() bool {
	return j.State() == JobSucceeded
}

func (j *Job) Failed() bool {
	return j.State() == JobFailed
}

// FailedReason returns why the job failed, or "" while it has not finished.
func (j *Job) FailedReason() string {
	select {
	case <-j.done:
		return j.failed_reason
	default:
		return ""
	}
}

// Result returns the job's result value (e.g. a verify outcome), or nil
// while it has not finished.
func (j *Job) Result() any {
	select {
	case <-j.done:
		return j.result
	default:
		return nil
	}
}

// Progress reports the job's completion fraction in [0, 1]. Jobs without
// byte-level progress jump straight from 0 to 1.
func (j *Job) Progress() float64 {
	if j.Done() {
		return 1
	}
	if j.prog != nil {
		return j.prog.Fraction()
	}
	return 0
}

// Wait blocks until the job has finished.
func (j *Job) Wait() {
	<-j.done
}

func (j *Job) execute() {
	j.state.Store(int32(JobRunning))
	if err := j.run(j); err != nil {
		j.failed_reason = err.Error()
		j.state.Store(int32(JobFailed))
	} else {
		j.state.Store(int32(JobSucceeded))
	}
	close(j.done)
}

// ---------------------------------------------------------------------------
// the per-torrent worker

// run_jobs drains the queue strictly in order, one job at a time. It keeps
// draining after Close until the queue is empty.
func (t *Torrent) run_jobs() {
	defer close(t.worker)
	for {
		t.queue_mu.Lock()
		for len(t.queue) == 0 && !t.closed {
			t.queue_add.Wait()
		}
		if len(t.queue) == 0 {
			t.queue_mu.Unlock()
			return
		}
		job := t.queue[0]
		t.queue = t.queue[1:]
		t.running = true
		t.queue_mu.Unlock()

		job.execute()

		t.queue_mu.Lock()
		t.running = false
		t.queue_idle.Broadcast()
		t.queue_mu.Unlock()
	}
}

// enqueue appends a pre-validated job and returns its handle immediately.
func (t *Torrent) enqueue(name string, prog *hashing.Progress, run func(*Job) error) (*Job, error) {
	t.queue_mu.Lock()
	defer t.queue_mu.Unlock()
	if t.closed {
		return nil, fmt.Errorf("%w: cannot queue %s", ErrClosed, name)
	}
	job := new_job(name, prog, run)
	t.queue = append(t.queue, job)
	t.queue_add.Signal()
	return job, nil
}

// WaitIdle blocks until every job queued so far has finished.
func (t *Torrent) WaitIdle() {
	t.queue_mu.Lock()
	for len(t.queue) > 0 || t.running {
		t.queue_idle.Wait()
	}
	t.queue_mu.Unlock()
}

// Jobs returns a snapshot of the jobs still waiting to run.
func (t *Torrent) Jobs() []*Job {
	t.queue_mu.Lock()
	defer t.queue_mu.Unlock()
	result := make([]*Job, len(t.queue))
	copy(result, t.queue)
	return result
}

// Close stops accepting new jobs, lets the queued ones finish and stops the
// worker. It is safe to call more than once.
func (t *Torrent) Close() {
	t.queue_mu.Lock()
	if !t.closed {
		t.closed = true
		t.queue_add.Broadcast()
	}
	t.queue_mu.Unlock()
	<-t.worker
}
