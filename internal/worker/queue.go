package worker

import (
	"context"
	"sync"

	"github.com/Priya8975/envelope-relay/internal/domain"
)

// Queue carries classified events from the classifier to the dispatcher in
// FIFO order.
type Queue interface {
	Enqueue(ctx context.Context, ev *domain.Event) error
	// Dequeue blocks until an event is available or ctx is done.
	Dequeue(ctx context.Context) (*domain.Event, error)
	Len(ctx context.Context) (int64, error)
}

// MemoryQueue is an unbounded in-process queue. Events still queued when the
// process exits are lost.
type MemoryQueue struct {
	mu     sync.Mutex
	events []*domain.Event
	ready  chan struct{}
}

func NewMemoryQueue() *MemoryQueue {
	return &MemoryQueue{ready: make(chan struct{}, 1)}
}

func (q *MemoryQueue) Enqueue(ctx context.Context, ev *domain.Event) error {
	if err := ctx.Err(); err != nil {
		return err
	}

	q.mu.Lock()
	q.events = append(q.events, ev)
	q.mu.Unlock()

	q.signal()
	return nil
}

func (q *MemoryQueue) Dequeue(ctx context.Context) (*domain.Event, error) {
	for {
		q.mu.Lock()
		if len(q.events) > 0 {
			ev := q.events[0]
			q.events[0] = nil
			q.events = q.events[1:]
			more := len(q.events) > 0
			q.mu.Unlock()
			if more {
				q.signal()
			}
			return ev, nil
		}
		q.mu.Unlock()

		select {
		case <-ctx.Done():
			return nil, ctx.Err()
		case <-q.ready:
		}
	}
}

func (q *MemoryQueue) Len(_ context.Context) (int64, error) {
	q.mu.Lock()
	defer q.mu.Unlock()
	return int64(len(q.events)), nil
}

// signal wakes a waiting consumer without blocking.
func (q *MemoryQueue) signal() {
	select {
	case q.ready <- struct{}{}:
	default:
	}
}
