// Package task defines the one-shot, movable unit of work that flows
// through every TaskLoop and TaskRunner in the scheduling package.
package task

import (
	"errors"
	"reflect"
	"sync/atomic"
)

// ErrConsumed is returned when a Task is invoked a second time.
var ErrConsumed = errors.New("mage/task: task already consumed")

// Task is an opaque one-shot callable carrying its own arguments via
// closure capture. It is safe to hand a Task to another goroutine (it
// is logically movable, not copyable: invoking the same Task value from
// two places races on the consumed flag and the loser gets ErrConsumed).
type Task struct {
	fn       func()
	consumed atomic.Bool
}

// New wraps fn as a one-shot Task.
func New(fn func()) Task {
	return Task{fn: fn}
}

// BindOnce binds fn to args now, producing a Task that calls
// fn(args...) when it runs. Mirrors base::BindOnce's "bind the
// callback to its arguments up front" ergonomics, for callers that
// have the arguments in hand at post time rather than wanting to
// capture them in a closure. fn's signature must accept exactly the
// given args; a mismatch panics when the task runs, not when it is
// bound.
func BindOnce(fn interface{}, args ...interface{}) Task {
	fv := reflect.ValueOf(fn)
	in := make([]reflect.Value, len(args))
	for i, a := range args {
		in[i] = reflect.ValueOf(a)
	}
	return New(func() { fv.Call(in) })
}

// Once wraps a plain zero-arg closure as a one-shot Task. Equivalent
// to New; kept so call sites can read "runs once" without reaching for
// BindOnce's reflection-based signature.
func Once(fn func()) Task {
	return New(fn)
}

// Run invokes the task exactly once. A second call returns ErrConsumed
// without touching fn again.
func (t *Task) Run() error {
	if !t.consumed.CompareAndSwap(false, true) {
		return ErrConsumed
	}
	t.fn()
	return nil
}

// MustRun invokes the task, panicking if it was already consumed. This
// is the entry point TaskLoop implementations use: a task popped off a
// loop's own queue is by construction never run twice by the loop
// itself, so a panic here indicates an invariant violation.
func (t *Task) MustRun() {
	if err := t.Run(); err != nil {
		panic(err)
	}
}

// Closure captures a Task by value and returns a zero-arg func() that
// runs it, for interop with APIs (context cancellation, signal
// handlers, defer) that want a plain closure rather than a Task.
func Closure(t Task) func() {
	return func() {
		t.MustRun()
	}
}
