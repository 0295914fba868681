package core

import "sync"

// Handle is the process-local, opaque reference a caller uses to refer
// to an Endpoint. Zero is never allocated and denotes "no handle".
type Handle uint32

// InvalidHandle is the zero Handle value.
const InvalidHandle Handle = 0

// HandleTable maps Handles to their Endpoint, guarded by a single
// mutex that is released before calling into Node or Endpoint. It is
// the process-wide table a mage.Core singleton owns exactly one of.
type HandleTable struct {
	mu      sync.Mutex
	next    uint32
	entries map[Handle]*Endpoint
}

// NewHandleTable returns an empty table.
func NewHandleTable() *HandleTable {
	return &HandleTable{next: 1, entries: make(map[Handle]*Endpoint)}
}

// Allocate assigns e a fresh handle.
func (t *HandleTable) Allocate(e *Endpoint) Handle {
	t.mu.Lock()
	defer t.mu.Unlock()
	h := Handle(t.next)
	t.next++
	t.entries[h] = e
	return h
}

// Lookup returns the Endpoint h refers to.
func (t *HandleTable) Lookup(h Handle) (*Endpoint, bool) {
	t.mu.Lock()
	defer t.mu.Unlock()
	e, ok := t.entries[h]
	return e, ok
}

// Close removes h from the table, returning the Endpoint it referred
// to so the caller can decide what, if anything, happens to it.
func (t *HandleTable) Close(h Handle) (*Endpoint, bool) {
	t.mu.Lock()
	defer t.mu.Unlock()
	e, ok := t.entries[h]
	if ok {
		delete(t.entries, h)
	}
	return e, ok
}
