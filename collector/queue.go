package collector

import (
	"sync"
	"time"

	"github.com/gorillaseg/gorillaseg/block"
)

type entry struct {
	addr       block.Address
	enqueuedAt time.Time
}

// Option configures a Queue at construction time.
type Option func(*Queue)

// WithClock overrides the queue's notion of "now", for deterministic tests.
func WithClock(clock func() time.Time) Option {
	return func(q *Queue) { q.clock = clock }
}

// Queue is a bounded FIFO of pending segment frees. It is safe for
// concurrent Collect (writer side) and FreeCollected (maintenance thread).
type Queue struct {
	mu sync.Mutex

	capacity int
	delay    time.Duration
	freeFn   func(block.Address) error
	clock    func() time.Time

	entries []entry
}

// NewQueue creates a Queue with the given capacity and minimum retirement
// delay. freeFn is invoked, outside the queue's lock, for every address the
// queue releases — either because it aged past delay (FreeCollected) or
// because the queue overflowed capacity (Collect).
func NewQueue(capacity int, delay time.Duration, freeFn func(block.Address) error, opts ...Option) *Queue {
	q := &Queue{
		capacity: capacity,
		delay:    delay,
		freeFn:   freeFn,
		clock:    time.Now,
	}
	for _, opt := range opts {
		opt(q)
	}

	return q
}

// Len returns the number of entries currently queued.
func (q *Queue) Len() int {
	q.mu.Lock()
	defer q.mu.Unlock()

	return len(q.entries)
}

// Collect enqueues addr for a deferred free. If the queue is at capacity,
// the oldest unfreed entry is dropped to Free synchronously, bounding
// queue memory at the cost of an early free.
func (q *Queue) Collect(addr block.Address) error {
	q.mu.Lock()
	q.entries = append(q.entries, entry{addr: addr, enqueuedAt: q.clock()})

	var overflow block.Address
	haveOverflow := false
	if q.capacity > 0 && len(q.entries) > q.capacity {
		overflow = q.entries[0].addr
		haveOverflow = true
		q.entries = q.entries[1:]
	}
	q.mu.Unlock()

	if haveOverflow {
		return q.freeFn(overflow)
	}

	return nil
}

// FreeCollected frees every queued entry whose age has reached the
// configured delay, oldest first.
func (q *Queue) FreeCollected() error {
	q.mu.Lock()
	cutoff := q.clock().Add(-q.delay)

	var toFree []block.Address
	i := 0
	for i < len(q.entries) && !q.entries[i].enqueuedAt.After(cutoff) {
		toFree = append(toFree, q.entries[i].addr)
		i++
	}
	q.entries = q.entries[i:]
	q.mu.Unlock()

	for _, addr := range toFree {
		if err := q.freeFn(addr); err != nil {
			return err
		}
	}

	return nil
}
