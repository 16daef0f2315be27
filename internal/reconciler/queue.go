package reconciler

import (
	"context"
	"sync"
)

// writeQueue orders persistence writes per key in the order they were enqueued.
// A barrier entry (enqueueAll) waits for every pending write and blocks every later one.
type writeQueue struct {
	mu      sync.Mutex
	tails   map[string]chan struct{}
	barrier chan struct{}
}

func newWriteQueue() *writeQueue {
	return &writeQueue{tails: make(map[string]chan struct{})}
}

type ticket struct {
	q    *writeQueue
	key  string
	wait []chan struct{}
	done chan struct{}
}

func (q *writeQueue) enqueue(key string) ticket {
	q.mu.Lock()
	defer q.mu.Unlock()

	var wait []chan struct{}
	if prev, ok := q.tails[key]; ok {
		wait = append(wait, prev)
	} else if q.barrier != nil {
		wait = append(wait, q.barrier)
	}
	done := make(chan struct{})
	q.tails[key] = done
	return ticket{q: q, key: key, wait: wait, done: done}
}

func (q *writeQueue) enqueueAll() ticket {
	q.mu.Lock()
	defer q.mu.Unlock()

	wait := make([]chan struct{}, 0, len(q.tails)+1)
	for _, prev := range q.tails {
		wait = append(wait, prev)
	}
	if q.barrier != nil {
		wait = append(wait, q.barrier)
	}
	done := make(chan struct{})
	q.tails = make(map[string]chan struct{})
	q.barrier = done
	return ticket{q: q, wait: wait, done: done}
}

// run waits for the writes ahead of this ticket, then calls fn. When ctx ends
// first, fn is skipped and ctx.Err() returned, but the ticket is released only
// after every earlier write has finished, so later writes keep their order.
// skipped, if set, is called with the error at the point fn would have run.
func (t ticket) run(ctx context.Context, fn func() error, skipped func(error)) error {
	for i, prev := range t.wait {
		select {
		case <-prev:
		case <-ctx.Done():
			err := ctx.Err()
			go t.releaseAfter(t.wait[i:], func() {
				if skipped != nil {
					skipped(err)
				}
			})
			return err
		}
	}
	defer t.release()
	return fn()
}

func (t ticket) releaseAfter(wait []chan struct{}, then func()) {
	for _, prev := range wait {
		<-prev
	}
	then()
	t.release()
}

// release drops the ticket from the queue before signalling the next one.
func (t ticket) release() {
	t.q.mu.Lock()
	if t.key == "" {
		if t.q.barrier == t.done {
			t.q.barrier = nil
		}
	} else if t.q.tails[t.key] == t.done {
		delete(t.q.tails, t.key)
	}
	t.q.mu.Unlock()

	close(t.done)
}
