package mailbox

import (
	"errors"
	"sync"
)

// ErrEmptyQueue is returned by Take when there is nothing to remove.
var ErrEmptyQueue = errors.New("queue is empty")

// Queue defines the interface for the node's internal mailbox.
type Queue interface {
	// Put appends an entry at the tail.
	Put(entry string)
	// Size returns the current depth.
	Size() int
	// Take removes and returns the oldest entry, or ErrEmptyQueue.
	Take() (string, error)
	// TryTake removes the oldest entry if there is one. It never blocks.
	// The returned depth is the number of entries left after the removal.
	TryTake() (entry string, depth int, ok bool)
}

// InMemoryQueue is a mutex-guarded FIFO implementation of Queue.
type InMemoryQueue struct {
	mu      sync.Mutex
	entries []string
}

// NewInMemoryQueue creates an empty queue.
func NewInMemoryQueue() *InMemoryQueue {
	return &InMemoryQueue{
		entries: make([]string, 0),
	}
}

// Put appends an entry.
func (q *InMemoryQueue) Put(entry string) {
	q.mu.Lock()
	defer q.mu.Unlock()

	q.entries = append(q.entries, entry)
}

// Size returns the number of queued entries.
func (q *InMemoryQueue) Size() int {
	q.mu.Lock()
	defer q.mu.Unlock()

	return len(q.entries)
}

// Take removes the oldest entry. On an empty queue it returns ErrEmptyQueue
// and leaves the queue untouched.
func (q *InMemoryQueue) Take() (string, error) {
	entry, _, ok := q.TryTake()
	if !ok {
		return "", ErrEmptyQueue
	}
	return entry, nil
}

// TryTake removes the oldest entry if present.
// The size check and the removal happen under one lock, so a concurrent
// producer cannot make a checked Take fail.
func (q *InMemoryQueue) TryTake() (string, int, bool) {
	q.mu.Lock()
	defer q.mu.Unlock()

	if len(q.entries) == 0 {
		return "", 0, false
	}

	entry := q.entries[0]
	q.entries[0] = ""
	q.entries = q.entries[1:]

	// Release the backing array once drained so a long backlog does not pin memory.
	if len(q.entries) == 0 {
		q.entries = make([]string, 0)
	}
	return entry, len(q.entries), true
}
