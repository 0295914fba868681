package scheduling

import (
	"sync"

	"golang.org/x/sys/unix"
)

// Process-wide weak references to the UI and IO task loops, and the
// thread-scoped (OS-thread-scoped, via gettid) current loop/runner
// registry. Setters are invoked by Thread when it starts
// running a loop on its bound OS thread and cleared when that loop
// stops running on it — the Go analogue of "called by the loop's
// constructor / destructor" for an object whose lifetime is otherwise
// managed by the garbage collector rather than RAII.
var (
	processMu sync.Mutex
	uiLoop    Loop
	ioLoop    Loop

	currentMu      sync.Mutex
	currentLoops   = map[int]Loop{}
	currentRunners = map[int]TaskRunner{}
)

func setUILoop(l Loop) {
	processMu.Lock()
	uiLoop = l
	processMu.Unlock()
}

func clearUILoop(l Loop) {
	processMu.Lock()
	if uiLoop == l {
		uiLoop = nil
	}
	processMu.Unlock()
}

func setIOLoop(l Loop) {
	processMu.Lock()
	ioLoop = l
	processMu.Unlock()
}

func clearIOLoop(l Loop) {
	processMu.Lock()
	if ioLoop == l {
		ioLoop = nil
	}
	processMu.Unlock()
}

// GetUIThreadTaskLoop returns the process's UI loop if one is
// currently running, or (nil, false) if none is bound right now.
func GetUIThreadTaskLoop() (Loop, bool) {
	processMu.Lock()
	defer processMu.Unlock()
	return uiLoop, uiLoop != nil
}

// GetIOThreadTaskLoop returns the process's IO loop if one is
// currently running, or (nil, false) if none is bound right now.
func GetIOThreadTaskLoop() (Loop, bool) {
	processMu.Lock()
	defer processMu.Unlock()
	return ioLoop, ioLoop != nil
}

func registerCurrent(tid int, l Loop, r TaskRunner) {
	currentMu.Lock()
	currentLoops[tid] = l
	currentRunners[tid] = r
	currentMu.Unlock()
}

func clearCurrent(tid int) {
	currentMu.Lock()
	delete(currentLoops, tid)
	delete(currentRunners, tid)
	currentMu.Unlock()
}

// GetCurrentTaskLoop returns the loop bound to the calling OS thread,
// if any. Only meaningful when called from a goroutine that locked
// itself to its OS thread via a scheduling.Thread.
func GetCurrentTaskLoop() (Loop, bool) {
	currentMu.Lock()
	defer currentMu.Unlock()
	l, ok := currentLoops[unix.Gettid()]
	return l, ok
}

// GetCurrentTaskRunner returns the TaskRunner for the loop bound to
// the calling OS thread, if any.
func GetCurrentTaskRunner() (TaskRunner, bool) {
	currentMu.Lock()
	defer currentMu.Unlock()
	r, ok := currentRunners[unix.Gettid()]
	return r, ok
}

// ThreadChecker captures the identity of the current thread's loop at
// construction time and asserts equality on later calls. It is a
// programmer-facing debugging aid mirroring the original source's
// base::ThreadChecker.
type ThreadChecker struct {
	loop Loop
}

// NewThreadChecker captures the loop bound to the calling OS thread
// (nil when none is bound).
func NewThreadChecker() *ThreadChecker {
	l, _ := GetCurrentTaskLoop()
	return &ThreadChecker{loop: l}
}

// CalledOnValidThread reports whether the caller is running while bound
// to the same loop that was current when this checker was constructed.
func (c *ThreadChecker) CalledOnValidThread() bool {
	l, _ := GetCurrentTaskLoop()
	return l == c.loop
}
