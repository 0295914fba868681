// Package sync provides the two synchronization primitives the
// scheduling and core runtimes are built on: a Mutex with the extra
// introspection the loops need, and a ConditionVariable with a
// wait-on-predicate contract that re-checks on every wakeup.
package sync

import (
	"errors"
	"sync"
	"sync/atomic"
)

// ErrNotLocked describes an operation that requires the mutex to be
// held by the calling goroutine being called when it is not. No
// operation in this package returns it.
var ErrNotLocked = errors.New("mage/sync: invariant violated, mutex not locked")

// Mutex wraps sync.Mutex adding TryLock/IsLocked, used by Endpoint,
// Node and TaskLoop to guard their internal state per spec.
type Mutex struct {
	mu     sync.Mutex
	locked atomic.Bool
}

func (m *Mutex) Lock() {
	m.mu.Lock()
	m.locked.Store(true)
}

func (m *Mutex) Unlock() {
	m.locked.Store(false)
	m.mu.Unlock()
}

// TryLock attempts to acquire the mutex without blocking.
func (m *Mutex) TryLock() bool {
	if m.mu.TryLock() {
		m.locked.Store(true)
		return true
	}
	return false
}

// IsLocked reports whether the mutex is currently held by anyone. It is
// inherently racy with respect to concurrent Lock/Unlock calls and is
// only meant for assertions and tests.
func (m *Mutex) IsLocked() bool {
	return m.locked.Load()
}

// ConditionVariable exposes a Wait(predicate) contract on top of
// sync.Cond: it atomically drops the mutex, blocks until a Notify call
// wakes it and the predicate holds, then returns with the mutex held.
// Spurious wakeups are absorbed by re-checking the predicate in a loop.
type ConditionVariable struct {
	cond *sync.Cond
}

// NewConditionVariable creates a ConditionVariable guarded by m. m must
// outlive the ConditionVariable and must be the same mutex callers lock
// before calling Wait.
func NewConditionVariable(m *Mutex) *ConditionVariable {
	return &ConditionVariable{cond: sync.NewCond(&m.mu)}
}

// Wait blocks until predicate() returns true, re-checking after every
// wakeup to absorb spurious notifications. The caller must hold the
// guarding mutex locked on entry; Wait returns with it locked again.
func (c *ConditionVariable) Wait(predicate func() bool) {
	for !predicate() {
		c.cond.Wait()
	}
}

// NotifyOne wakes at most one goroutine blocked in Wait.
func (c *ConditionVariable) NotifyOne() {
	c.cond.Signal()
}

// NotifyAll wakes every goroutine blocked in Wait.
func (c *ConditionVariable) NotifyAll() {
	c.cond.Broadcast()
}
