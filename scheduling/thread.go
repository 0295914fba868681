package scheduling

import (
	"fmt"
	"runtime"
	"sync"

	"golang.org/x/sync/errgroup"
	"golang.org/x/sys/unix"
)

// Flavor selects which TaskLoop implementation a Thread owns.
type Flavor int

const (
	FlavorWorker Flavor = iota
	FlavorUI
	FlavorIO
)

// Thread owns an OS thread (a goroutine locked to it via
// runtime.LockOSThread, so thread-local scheduling handles behave
// correctly) running a TaskLoop of the requested flavor, plus a
// Start/Stop/Join lifecycle. Grounded on the teacher's
// Peer.poll/Unity.run goroutine-plus-done-channel shape, generalized
// into a reusable start/stop/join object whose single goroutine is
// tracked with an errgroup.Group (the pack's p2p.server.go/ddl_puller.go
// one-goroutine-per-errgroup idiom) so a panic inside the loop surfaces
// as an error from Join instead of silently vanishing.
type Thread struct {
	flavor Flavor
	loop   Loop
	ioLoop *IOLoop

	mu      sync.Mutex
	started bool
	eg      *errgroup.Group
}

// NewThread creates a Thread of the given flavor. ioCapacity is only
// meaningful for FlavorIO and sizes the IO loop's reactor.
func NewThread(flavor Flavor, ioCapacity int) (*Thread, error) {
	var l Loop
	var io *IOLoop
	switch flavor {
	case FlavorWorker:
		l = NewWorkerLoop()
	case FlavorUI:
		l = NewUILoop()
	case FlavorIO:
		iol, err := NewIOLoop(ioCapacity)
		if err != nil {
			return nil, err
		}
		l, io = iol, iol
	default:
		return nil, ErrUnknownFlavor
	}
	return &Thread{flavor: flavor, loop: l, ioLoop: io}, nil
}

// Start spawns the OS thread's goroutine and runs its loop on it. It
// fails with ErrAlreadyStarted if a previous Start's goroutine has not
// yet exited.
func (t *Thread) Start() error {
	t.mu.Lock()
	if t.started {
		t.mu.Unlock()
		return ErrAlreadyStarted
	}
	t.started = true
	eg := &errgroup.Group{}
	t.eg = eg
	t.mu.Unlock()

	eg.Go(func() (runErr error) {
		runtime.LockOSThread()
		defer runtime.UnlockOSThread()

		tid := unix.Gettid()
		runner := t.loop.TaskRunner()
		registerCurrent(tid, t.loop, runner)

		switch t.flavor {
		case FlavorUI:
			setUILoop(t.loop)
		case FlavorIO:
			setIOLoop(t.loop)
		}

		func() {
			defer func() {
				if r := recover(); r != nil {
					runErr = fmt.Errorf("mage/scheduling: loop panicked: %v", r)
				}
			}()
			t.loop.Run()
		}()

		switch t.flavor {
		case FlavorUI:
			clearUILoop(t.loop)
		case FlavorIO:
			clearIOLoop(t.loop)
		}
		clearCurrent(tid)

		t.mu.Lock()
		t.started = false
		t.mu.Unlock()
		return runErr
	})
	return nil
}

// Stop requests the loop quit. It is idempotent, and is legal to call
// before Start: the loop's quit flag is latched and consumed by the
// next Run call.
func (t *Thread) Stop() {
	t.loop.Quit()
}

// Join blocks until the most recently started goroutine has exited,
// returning the error the errgroup captured (a recovered loop panic,
// wrapped) or nil on a clean exit. It is a no-op returning nil if Start
// was never called.
func (t *Thread) Join() error {
	t.mu.Lock()
	eg := t.eg
	t.mu.Unlock()
	if eg == nil {
		return nil
	}
	return eg.Wait()
}

// TaskRunner returns a runner posting to this thread's loop.
func (t *Thread) TaskRunner() TaskRunner {
	return t.loop.TaskRunner()
}

// Loop returns the loop this thread owns.
func (t *Thread) Loop() Loop {
	return t.loop
}

// IOLoop returns the thread's IOLoop and true if it was created with
// FlavorIO; otherwise (nil, false).
func (t *Thread) IOLoop() (*IOLoop, bool) {
	return t.ioLoop, t.ioLoop != nil
}
