package scheduling

import (
	"errors"
	"testing"
	"time"

	"go.uber.org/goleak"

	"github.com/jabolina/go-mage/task"
)

func TestThreadStartRunsPostedTaskAndStopJoinReturns(t *testing.T) {
	defer goleak.VerifyNone(t)

	th, err := NewThread(FlavorWorker, 0)
	if err != nil {
		t.Fatalf("NewThread: %v", err)
	}
	if err := th.Start(); err != nil {
		t.Fatalf("Start: %v", err)
	}

	done := make(chan struct{})
	th.TaskRunner().Post(task.New(func() { close(done) }))

	select {
	case <-done:
	case <-time.After(time.Second):
		t.Fatal("task never ran on the started thread")
	}

	th.Stop()
	th.Join()
}

func TestThreadStartTwiceFails(t *testing.T) {
	defer goleak.VerifyNone(t)

	th, err := NewThread(FlavorWorker, 0)
	if err != nil {
		t.Fatalf("NewThread: %v", err)
	}
	if err := th.Start(); err != nil {
		t.Fatalf("Start: %v", err)
	}
	defer func() {
		th.Stop()
		th.Join()
	}()

	if err := th.Start(); !errors.Is(err, ErrAlreadyStarted) {
		t.Fatalf("expected ErrAlreadyStarted, got %v", err)
	}
}

func TestThreadStopBeforeStartIsLatched(t *testing.T) {
	defer goleak.VerifyNone(t)

	th, err := NewThread(FlavorWorker, 0)
	if err != nil {
		t.Fatalf("NewThread: %v", err)
	}
	th.Stop()

	if err := th.Start(); err != nil {
		t.Fatalf("Start: %v", err)
	}
	th.Join()
}

func TestThreadJoinIsNoOpWithoutStart(t *testing.T) {
	th, err := NewThread(FlavorWorker, 0)
	if err != nil {
		t.Fatalf("NewThread: %v", err)
	}
	done := make(chan struct{})
	go func() {
		th.Join()
		close(done)
	}()
	select {
	case <-done:
	case <-time.After(time.Second):
		t.Fatal("Join blocked forever on a never-started thread")
	}
}

func TestThreadIOFlavorExposesIOLoop(t *testing.T) {
	th, err := NewThread(FlavorIO, 8)
	if err != nil {
		t.Fatalf("NewThread: %v", err)
	}
	if _, ok := th.IOLoop(); !ok {
		t.Fatal("FlavorIO thread should expose its IOLoop")
	}

	wth, err := NewThread(FlavorWorker, 0)
	if err != nil {
		t.Fatalf("NewThread: %v", err)
	}
	if _, ok := wth.IOLoop(); ok {
		t.Fatal("FlavorWorker thread should not expose an IOLoop")
	}
}

func TestNewThreadRejectsUnknownFlavor(t *testing.T) {
	if _, err := NewThread(Flavor(99), 0); !errors.Is(err, ErrUnknownFlavor) {
		t.Fatalf("expected ErrUnknownFlavor, got %v", err)
	}
}

func TestThreadJoinSurfacesAPanicFromTheLoop(t *testing.T) {
	th, err := NewThread(FlavorWorker, 0)
	if err != nil {
		t.Fatalf("NewThread: %v", err)
	}
	th.TaskRunner().Post(task.New(func() { panic("boom") }))
	if err := th.Start(); err != nil {
		t.Fatalf("Start: %v", err)
	}

	if err := th.Join(); err == nil {
		t.Fatal("expected Join to return the error recovered from the loop's panic")
	}
}

func TestThreadSetsAndClearsProcessWideUILoop(t *testing.T) {
	defer goleak.VerifyNone(t)

	th, err := NewThread(FlavorUI, 0)
	if err != nil {
		t.Fatalf("NewThread: %v", err)
	}
	if err := th.Start(); err != nil {
		t.Fatalf("Start: %v", err)
	}

	deadline := time.After(time.Second)
	for {
		if _, ok := GetUIThreadTaskLoop(); ok {
			break
		}
		select {
		case <-deadline:
			t.Fatal("UI loop never registered as the process-wide UI loop")
		case <-time.After(time.Millisecond):
		}
	}

	th.Stop()
	th.Join()

	if _, ok := GetUIThreadTaskLoop(); ok {
		t.Fatal("UI loop should be cleared once its thread's Run returns")
	}
}
