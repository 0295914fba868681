// Package test is the shared test harness imported by the mage and
// faulttest tests: socket-pair helpers for exercising a real Channel, a
// recording Delegate, and the wait/stack-dump helpers generalized from
// the teacher's own test.WaitThisOrTimeout/PrintStackTrace helpers.
// Because it imports core, the internal tests of core and scheduling
// cannot import it and keep small local copies of the helpers they use.
package test

import (
	"runtime"
	"sync"
	"testing"
	"time"

	"golang.org/x/sys/unix"

	"github.com/jabolina/go-mage/core"
	"github.com/jabolina/go-mage/wire"
)

// PrintStackTrace dumps every goroutine's stack into the test log,
// used when a WaitThisOrTimeout times out and the test wants to see
// what was still running.
func PrintStackTrace(t *testing.T) {
	buf := make([]byte, 1<<16)
	n := runtime.Stack(buf, true)
	t.Errorf("%s", buf[:n])
}

// WaitThisOrTimeout runs cb on its own goroutine and reports whether
// it finished within duration.
func WaitThisOrTimeout(cb func(), duration time.Duration) bool {
	done := make(chan struct{})
	go func() {
		cb()
		close(done)
	}()
	select {
	case <-done:
		return true
	case <-time.After(duration):
		return false
	}
}

// SocketPair creates a connected pair of non-blocking-capable unix
// domain socket fds, standing in for the "fork/exec after creating a
// connected socket pair" bootstrap, entirely in-process.
func SocketPair(t *testing.T) (a, b int) {
	t.Helper()
	fds, err := unix.Socketpair(unix.AF_UNIX, unix.SOCK_STREAM, 0)
	if err != nil {
		t.Fatalf("test: socketpair: %v", err)
	}
	return fds[0], fds[1]
}

// RecordingDelegate implements core.Delegate, collecting every
// message it receives, and any handles recovered from its inline
// descriptors, in arrival order for assertions.
type RecordingDelegate struct {
	mu       sync.Mutex
	messages []*wire.Message
	handles  [][]core.Handle
	notify   chan struct{}
}

// NewRecordingDelegate returns an empty RecordingDelegate.
func NewRecordingDelegate() *RecordingDelegate {
	return &RecordingDelegate{notify: make(chan struct{}, 256)}
}

// OnReceivedMessage implements core.Delegate.
func (d *RecordingDelegate) OnReceivedMessage(msg *wire.Message, handles []core.Handle) {
	d.mu.Lock()
	d.messages = append(d.messages, msg)
	d.handles = append(d.handles, handles)
	d.mu.Unlock()
	select {
	case d.notify <- struct{}{}:
	default:
	}
}

// Messages returns a snapshot of every message received so far.
func (d *RecordingDelegate) Messages() []*wire.Message {
	d.mu.Lock()
	defer d.mu.Unlock()
	out := make([]*wire.Message, len(d.messages))
	copy(out, d.messages)
	return out
}

// Handles returns the handles recovered alongside the nth received
// message (0-indexed), or nil if it carried no inline transfers.
func (d *RecordingDelegate) Handles(n int) []core.Handle {
	d.mu.Lock()
	defer d.mu.Unlock()
	if n < 0 || n >= len(d.handles) {
		return nil
	}
	return d.handles[n]
}

// WaitForCount blocks until at least n messages have arrived or
// timeout elapses, returning whether it succeeded.
func (d *RecordingDelegate) WaitForCount(n int, timeout time.Duration) bool {
	deadline := time.After(timeout)
	for {
		d.mu.Lock()
		have := len(d.messages)
		d.mu.Unlock()
		if have >= n {
			return true
		}
		select {
		case <-d.notify:
		case <-deadline:
			d.mu.Lock()
			have = len(d.messages)
			d.mu.Unlock()
			return have >= n
		}
	}
}
