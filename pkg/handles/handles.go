// Package handles maps opaque tokens to per-operation state. A Table
// hands out Handle values that stay unique across slot reuse, so a
// stale token from a completed operation can never alias a newer one.
package handles

import (
	"sync"

	"go.uber.org/atomic"
)

// Handle is an opaque correlation token. The zero Handle is never
// issued and fails every Table operation.
type Handle uint64

// Valid reports whether h could have been issued by a Table. It does
// not check liveness; use Table.Retrieve for that.
func (h Handle) Valid() bool {
	return uint32(h) != 0
}

const _indexBits = 32

func makeHandle(index int, generation uint32) Handle {
	return Handle(uint64(generation)<<_indexBits | uint64(uint32(index+1)))
}

func (h Handle) split() (index int, generation uint32) {
	return int(uint32(h)) - 1, uint32(h >> _indexBits)
}

type slot struct {
	payload    any
	generation uint32
	live       bool
}

// Table is a slot arena for callback state. Handles encode the slot
// index and the slot's generation; freeing a handle bumps the
// generation so recycled slots reject the old token.
type Table struct {
	mu    sync.Mutex
	slots []slot
	free  []int // indices available for reuse

	count *atomic.Int64
}

// NewTable creates an empty handle table.
func NewTable() *Table {
	return &Table{
		count: atomic.NewInt64(0),
	}
}

// Allocate claims a slot and returns its handle. The slot starts with
// no payload; use Attach to set one.
func (t *Table) Allocate() Handle {
	t.mu.Lock()
	defer t.mu.Unlock()

	var idx int
	if n := len(t.free); n > 0 {
		idx = t.free[n-1]
		t.free = t.free[:n-1]
	} else {
		t.slots = append(t.slots, slot{generation: 1})
		idx = len(t.slots) - 1
	}

	s := &t.slots[idx]
	s.live = true
	s.payload = nil
	t.count.Inc()

	return makeHandle(idx, s.generation)
}

// Attach stores payload under a live handle. It reports false when the
// handle is stale, freed, or was never issued.
func (t *Table) Attach(h Handle, payload any) bool {
	idx, gen := h.split()

	t.mu.Lock()
	defer t.mu.Unlock()

	if !t.liveLocked(idx, gen) {
		return false
	}
	t.slots[idx].payload = payload
	return true
}

// Retrieve returns the payload attached to a live handle.
func (t *Table) Retrieve(h Handle) (any, bool) {
	idx, gen := h.split()

	t.mu.Lock()
	defer t.mu.Unlock()

	if !t.liveLocked(idx, gen) {
		return nil, false
	}
	return t.slots[idx].payload, true
}

// Free releases a handle's slot for reuse and drops its payload. It
// reports false when the handle was not live, so double frees are
// detectable but harmless.
func (t *Table) Free(h Handle) bool {
	idx, gen := h.split()

	t.mu.Lock()
	defer t.mu.Unlock()

	if !t.liveLocked(idx, gen) {
		return false
	}

	s := &t.slots[idx]
	s.live = false
	s.payload = nil
	s.generation++
	t.free = append(t.free, idx)
	t.count.Dec()

	return true
}

// Len returns the number of live handles.
func (t *Table) Len() int {
	return int(t.count.Load())
}

func (t *Table) liveLocked(idx int, gen uint32) bool {
	if idx < 0 || idx >= len(t.slots) {
		return false
	}
	s := t.slots[idx]
	return s.live && s.generation == gen
}
