package pipeline

import (
	"context"
	"errors"
	"fmt"
	"time"

	"lanewatch-go/internal/models"
)

var (
	// ErrPutTimeout means a stage could not hand off a frame within the
	// put timeout. The consumer side has stalled; the pipeline must stop.
	ErrPutTimeout = errors.New("queue put timeout")
	// ErrGetTimeout means a stage waited longer than the get timeout for
	// input. Sources are continuous, so silence this long is a failure.
	ErrGetTimeout = errors.New("queue get timeout")
	// ErrCanceled means the shared pipeline context was cancelled while
	// the stage was blocked on a queue.
	ErrCanceled = errors.New("pipeline canceled")
)

// Item is what travels through a queue: either a frame or the end-of-stream
// marker, never both. Each producing stage sends EOS exactly once, after its
// last frame.
type Item struct {
	Frame *models.Frame
	EOS   bool
}

// Queue is a bounded FIFO between two pipeline stages. Capacity is exact;
// backpressure comes from Put blocking when the buffer is full.
type Queue struct {
	name       string
	ch         chan Item
	putTimeout time.Duration
	getTimeout time.Duration
}

// NewQueue builds a queue with the given capacity and stage-blocking limits.
func NewQueue(name string, capacity int, putTimeout, getTimeout time.Duration) *Queue {
	return &Queue{
		name:       name,
		ch:         make(chan Item, capacity),
		putTimeout: putTimeout,
		getTimeout: getTimeout,
	}
}

// Put blocks until the item is queued, the put timeout expires, or ctx is
// cancelled.
func (q *Queue) Put(ctx context.Context, item Item) error {
	timer := time.NewTimer(q.putTimeout)
	defer timer.Stop()

	select {
	case q.ch <- item:
		return nil
	case <-ctx.Done():
		return ErrCanceled
	case <-timer.C:
		return fmt.Errorf("%w: %s full for %s", ErrPutTimeout, q.name, q.putTimeout)
	}
}

// Get blocks until an item arrives, the get timeout expires, or ctx is
// cancelled.
func (q *Queue) Get(ctx context.Context) (Item, error) {
	timer := time.NewTimer(q.getTimeout)
	defer timer.Stop()

	select {
	case item := <-q.ch:
		return item, nil
	case <-ctx.Done():
		return Item{}, ErrCanceled
	case <-timer.C:
		return Item{}, fmt.Errorf("%w: %s empty for %s", ErrGetTimeout, q.name, q.getTimeout)
	}
}

// PutDetached tries to queue an item without consulting the pipeline
// context. Used to forward EOS while the pipeline is already cancelled, so a
// downstream stage blocked on Get still receives its marker. Returns false
// when the queue stayed full for the whole grace window.
func (q *Queue) PutDetached(item Item, grace time.Duration) bool {
	timer := time.NewTimer(grace)
	defer timer.Stop()

	select {
	case q.ch <- item:
		return true
	case <-timer.C:
		return false
	}
}

// Depth returns the number of queued items.
func (q *Queue) Depth() int { return len(q.ch) }

// Capacity returns the queue's fixed capacity.
func (q *Queue) Capacity() int { return cap(q.ch) }

// Name returns the queue's log name.
func (q *Queue) Name() string { return q.name }
