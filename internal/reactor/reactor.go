// Package reactor hides the OS-specific readiness primitive behind one
// contract, exactly the surface the IO task loop needs: register a
// callback against a file descriptor, get woken when it is readable,
// and a dedicated wake channel with semaphore (counting) semantics so
// that N wakeups always yield N drained units, never fewer.
//
// The concrete implementation (reactor_linux.go) is epoll-backed, the
// analogue of the original source's kqueue/Mach-port split kept to a
// single supported platform here; cross-platform support is outside
// this repo's scope, same as the teacher's own OS-specific transport
// files are split per platform upstream.
package reactor

import "errors"

// ErrAlreadyRegistered is returned by Register when fd is already
// watched; a given fd may be registered at most once.
var ErrAlreadyRegistered = errors.New("mage/reactor: fd already registered")

// ErrNotRegistered is returned by Unregister for an fd that was never
// registered (or was already unregistered).
var ErrNotRegistered = errors.New("mage/reactor: fd not registered")

// Reactor is the OS readiness primitive abstraction that backs the IO
// task loop. Register/Unregister are safe to call from any goroutine;
// WaitForEvents is meant to be called only by the loop's own thread.
type Reactor interface {
	// Register arranges for onReadable to be invoked whenever fd
	// becomes readable. fd must not already be registered.
	Register(fd int, onReadable func()) error

	// Unregister stops watching fd. It is a no-op error (ErrNotRegistered)
	// to unregister an fd that isn't currently watched.
	Unregister(fd int) error

	// Wake posts one unit to the reactor's internal wake channel,
	// guaranteeing a single blocked WaitForEvents call returns at
	// least once more and observes exactly one additional wake unit.
	// Safe to call concurrently and from any goroutine.
	Wake() error

	// WaitForEvents blocks until at least one registered fd is
	// readable or the wake channel has pending units, then invokes
	// the corresponding registered callbacks (for readable fds) and
	// reports how many wake units were drained this call. It must
	// only be called by the reactor's owning goroutine.
	WaitForEvents() (wakeUnits int, err error)

	// Close releases the underlying OS resources. Once closed, a
	// Reactor must not be used again.
	Close() error
}
