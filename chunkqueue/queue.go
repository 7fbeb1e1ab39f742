// Package chunkqueue implements a FIFO of byte chunks that tracks the total
// number of buffered bytes, used by the stream implementations to measure
// backpressure.
package chunkqueue

import (
	"github.com/eapache/queue"
)

// Queue is a FIFO of owned byte chunks. The zero value is not usable, see
// [New].
//
// Queue is not safe for concurrent use. It is intended to be mutated only
// from the event loop goroutine.
type Queue struct {
	q     *queue.Queue
	total int
}

// New returns an empty Queue.
func New() *Queue {
	return &Queue{q: queue.New()}
}

// Enqueue appends chunk, taking ownership of it. The chunk is not copied.
// Empty chunks are accepted, and count towards Len but not Size.
func (x *Queue) Enqueue(chunk []byte) {
	x.q.Add(chunk)
	x.total += len(chunk)
}

// Dequeue removes and returns the oldest chunk, or false if the queue is
// empty.
func (x *Queue) Dequeue() ([]byte, bool) {
	if x.q.Length() == 0 {
		return nil, false
	}
	chunk := x.q.Remove().([]byte)
	x.total -= len(chunk)
	return chunk, true
}

// Peek returns the oldest chunk without removing it.
func (x *Queue) Peek() ([]byte, bool) {
	if x.q.Length() == 0 {
		return nil, false
	}
	return x.q.Peek().([]byte), true
}

// IsEmpty reports whether no chunks are queued.
func (x *Queue) IsEmpty() bool { return x.q.Length() == 0 }

// Len returns the number of queued chunks.
func (x *Queue) Len() int { return x.q.Length() }

// Size returns the sum of the lengths of all queued chunks.
func (x *Queue) Size() int { return x.total }

// Clear drops every queued chunk, returning how many were dropped.
func (x *Queue) Clear() (n int) {
	for x.q.Length() != 0 {
		x.q.Remove()
		n++
	}
	x.total = 0
	return n
}
