package assistant

import "sync"

// jobQueue is an unbounded FIFO drained by one worker.
//
// signal is buffered with size 1 so that bursts of Enqueue coalesce into
// one wakeup; Close closes it, which wakes the worker for good.
type jobQueue struct {
	mu     sync.Mutex
	jobs   []*job
	closed bool
	signal chan struct{}
}

func newJobQueue() *jobQueue {
	return &jobQueue{
		jobs:   make([]*job, 0, 8),
		signal: make(chan struct{}, 1),
	}
}

// Enqueue appends j. Returns false once the queue is closed.
func (q *jobQueue) Enqueue(j *job) bool {
	q.mu.Lock()
	defer q.mu.Unlock()
	if q.closed {
		return false
	}
	q.jobs = append(q.jobs, j)
	select {
	case q.signal <- struct{}{}:
	default:
	}
	return true
}

// TryDequeue pops the front job without blocking.
func (q *jobQueue) TryDequeue() (*job, bool) {
	q.mu.Lock()
	defer q.mu.Unlock()
	if len(q.jobs) == 0 {
		return nil, false
	}
	j := q.jobs[0]
	q.jobs[0] = nil
	if len(q.jobs) == 1 {
		q.jobs = q.jobs[:0]
	} else {
		q.jobs = q.jobs[1:]
	}
	return j, true
}

// Drain removes and returns every queued job.
func (q *jobQueue) Drain() []*job {
	q.mu.Lock()
	defer q.mu.Unlock()
	out := q.jobs
	q.jobs = make([]*job, 0, 8)
	return out
}

// Wait signals that jobs may be available or the queue closed.
func (q *jobQueue) Wait() <-chan struct{} {
	return q.signal
}

// Done reports whether the queue is closed and empty.
func (q *jobQueue) Done() bool {
	q.mu.Lock()
	defer q.mu.Unlock()
	return q.closed && len(q.jobs) == 0
}

// Close stops further enqueues and wakes the worker.
func (q *jobQueue) Close() {
	q.mu.Lock()
	defer q.mu.Unlock()
	if q.closed {
		return
	}
	q.closed = true
	close(q.signal)
}
