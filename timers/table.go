// Package timers implements the fixed capacity timer table, an arena of
// slots addressed by generation tagged ids.
package timers

import (
	"errors"
)

// DefaultCapacity is the number of slots used when none is specified.
const DefaultCapacity = 1024

// maxID bounds issued ids, so that they remain exactly representable as
// script numbers.
const maxID = 1<<53 - 1

var (
	// ErrTableFull is returned when every slot is in use.
	ErrTableFull = errors.New("timers: too many active timers")
	// ErrIDSpaceExhausted is returned once no further ids can be issued.
	ErrIDSpaceExhausted = errors.New("timers: timer id space exhausted")
)

// ID identifies a slot in a [Table]. It encodes the slot index, and the
// sequence number of the insertion, so that a stale ID never resolves to a
// slot's later occupant. IDs increase monotonically, and zero is never
// issued.
type ID uint64

type slot[T any] struct {
	value T
	seq   uint64
	used  bool
}

// Table is a fixed capacity arena. All operations are O(1). It is not safe
// for concurrent use.
type Table[T any] struct {
	slots  []slot[T]
	free   []int
	seq    uint64
	maxSeq uint64
	active int
}

// NewTable returns a table with the given number of slots. A capacity of
// zero or less selects [DefaultCapacity].
func NewTable[T any](capacity int) *Table[T] {
	if capacity <= 0 {
		capacity = DefaultCapacity
	}
	t := &Table[T]{
		slots:  make([]slot[T], capacity),
		free:   make([]int, capacity),
		maxSeq: (maxID - uint64(capacity-1)) / uint64(capacity),
	}
	for i := range t.free {
		t.free[i] = capacity - 1 - i
	}
	return t
}

// Insert stores v in a free slot.
func (t *Table[T]) Insert(v T) (ID, error) {
	if len(t.free) == 0 {
		return 0, ErrTableFull
	}
	if t.seq >= t.maxSeq {
		return 0, ErrIDSpaceExhausted
	}
	t.seq++
	index := t.free[len(t.free)-1]
	t.free = t.free[:len(t.free)-1]
	t.slots[index] = slot[T]{value: v, seq: t.seq, used: true}
	t.active++
	return ID(t.seq*uint64(len(t.slots)) + uint64(index)), nil
}

func (t *Table[T]) lookup(id ID) (int, bool) {
	n := uint64(len(t.slots))
	index, seq := int(uint64(id)%n), uint64(id)/n
	if seq == 0 || !t.slots[index].used || t.slots[index].seq != seq {
		return 0, false
	}
	return index, true
}

// Get returns the value stored under id.
func (t *Table[T]) Get(id ID) (v T, ok bool) {
	index, ok := t.lookup(id)
	if !ok {
		return v, false
	}
	return t.slots[index].value, true
}

// Remove clears the slot stored under id, returning its value.
func (t *Table[T]) Remove(id ID) (v T, ok bool) {
	index, ok := t.lookup(id)
	if !ok {
		return v, false
	}
	v = t.slots[index].value
	t.slots[index] = slot[T]{}
	t.free = append(t.free, index)
	t.active--
	return v, true
}

// Len returns the number of occupied slots.
func (t *Table[T]) Len() int { return t.active }

// Cap returns the number of slots.
func (t *Table[T]) Cap() int { return len(t.slots) }

// Each calls fn for every occupied slot, in slot order.
func (t *Table[T]) Each(fn func(id ID, v T)) {
	n := uint64(len(t.slots))
	for i, s := range t.slots {
		if s.used {
			fn(ID(s.seq*n+uint64(i)), s.value)
		}
	}
}
