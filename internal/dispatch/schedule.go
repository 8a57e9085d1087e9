package dispatch

import (
	"container/heap"
	"context"
	"sync"
	"time"

	"github.com/voxdial/voxdial/pkg/logging"
)

// Scheduled is one deferred call request waiting for its run time.
type Scheduled struct {
	CallID  string
	Request CallRequest
	RunAt   time.Time
	// Attempts counts how many times the guard has bounced this request
	// back onto the queue.
	Attempts int
}

// ScheduledQueue holds deferred requests ordered by run time. It is the
// in-memory half of the window-rejection path; entries are re-dispatched by
// the Runner once due.
type ScheduledQueue struct {
	mu sync.Mutex
	h  scheduledHeap
}

// NewScheduledQueue creates an empty queue.
func NewScheduledQueue() *ScheduledQueue {
	return &ScheduledQueue{}
}

// Push adds a deferred request.
func (q *ScheduledQueue) Push(s Scheduled) {
	q.mu.Lock()
	defer q.mu.Unlock()
	heap.Push(&q.h, s)
}

// Due pops every entry whose run time is at or before now, earliest first.
func (q *ScheduledQueue) Due(now time.Time) []Scheduled {
	q.mu.Lock()
	defer q.mu.Unlock()
	var due []Scheduled
	for q.h.Len() > 0 && !q.h[0].RunAt.After(now) {
		due = append(due, heap.Pop(&q.h).(Scheduled))
	}
	return due
}

// Len reports how many requests are waiting.
func (q *ScheduledQueue) Len() int {
	q.mu.Lock()
	defer q.mu.Unlock()
	return q.h.Len()
}

type scheduledHeap []Scheduled

func (h scheduledHeap) Len() int { return len(h) }
func (h scheduledHeap) Less(i, j int) bool {
	if h[i].RunAt.Equal(h[j].RunAt) {
		return h[i].Request.Priority > h[j].Request.Priority
	}
	return h[i].RunAt.Before(h[j].RunAt)
}
func (h scheduledHeap) Swap(i, j int)       { h[i], h[j] = h[j], h[i] }
func (h *scheduledHeap) Push(x interface{}) { *h = append(*h, x.(Scheduled)) }
func (h *scheduledHeap) Pop() interface{} {
	old := *h
	n := len(old)
	item := old[n-1]
	*h = old[:n-1]
	return item
}

// Runner re-dispatches deferred requests when their window opens.
type Runner struct {
	dispatcher *Dispatcher
	queue      *ScheduledQueue
	logger     *logging.Logger
	tick       time.Duration
}

// NewRunner creates the scheduler loop for the dispatcher's queue.
func NewRunner(d *Dispatcher, tick time.Duration, logger *logging.Logger) *Runner {
	if d == nil {
		panic("dispatch: dispatcher cannot be nil")
	}
	if tick <= 0 {
		tick = 30 * time.Second
	}
	if logger == nil {
		logger = logging.Default()
	}
	return &Runner{dispatcher: d, queue: d.Queue(), logger: logger, tick: tick}
}

// Run ticks until ctx is canceled, re-dispatching every due request. A
// request can bounce back onto the queue if the guard still rejects it.
func (r *Runner) Run(ctx context.Context) {
	ticker := time.NewTicker(r.tick)
	defer ticker.Stop()
	for {
		select {
		case <-ctx.Done():
			return
		case now := <-ticker.C:
			r.drain(ctx, now)
		}
	}
}

func (r *Runner) drain(ctx context.Context, now time.Time) {
	for _, s := range r.queue.Due(now) {
		if err := r.dispatcher.Redispatch(ctx, s); err != nil {
			r.logger.Warn("dispatch: scheduled re-dispatch failed",
				"call_id", s.CallID,
				"error", err,
			)
		}
	}
}
