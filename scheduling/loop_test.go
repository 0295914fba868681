package scheduling

import (
	"testing"
	"time"

	"github.com/jabolina/go-mage/task"
)

// waitThisOrTimeout runs cb on its own goroutine and reports whether it
// finished within duration. The shared test package cannot be used
// here: it imports core, which imports scheduling.
func waitThisOrTimeout(cb func(), duration time.Duration) bool {
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

func TestWorkerLoopRunsPostedTasksInOrder(t *testing.T) {
	l := NewWorkerLoop()
	var order []int

	go l.Run()
	defer l.Quit()

	done := make(chan struct{})
	for i := 0; i < 3; i++ {
		i := i
		l.Post(task.New(func() { order = append(order, i) }))
	}
	l.Post(task.New(func() { close(done) }))

	select {
	case <-done:
	case <-time.After(time.Second):
		t.Fatal("posted tasks never ran")
	}

	if len(order) != 3 || order[0] != 0 || order[1] != 1 || order[2] != 2 {
		t.Fatalf("expected FIFO order [0 1 2], got %v", order)
	}
}

func TestWorkerLoopRunUntilIdleDrainsWithoutBlocking(t *testing.T) {
	l := NewWorkerLoop()
	calls := 0
	l.Post(task.New(func() { calls++ }))
	l.Post(task.New(func() { calls++ }))

	l.RunUntilIdle()

	if calls != 2 {
		t.Fatalf("expected 2 calls, got %d", calls)
	}
}

func TestWorkerLoopQuitWhenIdleRunsQueuedTasksFirst(t *testing.T) {
	l := NewWorkerLoop()
	ran := false
	l.Post(task.New(func() { ran = true }))
	l.QuitWhenIdle()

	done := make(chan struct{})
	go func() {
		l.Run()
		close(done)
	}()

	select {
	case <-done:
	case <-time.After(time.Second):
		t.Fatal("Run never returned after QuitWhenIdle")
	}

	if !ran {
		t.Fatal("QuitWhenIdle dropped a task that was already queued")
	}
}

func TestWorkerLoopQuitClosurePostedFromAnotherTaskStopsRun(t *testing.T) {
	l := NewWorkerLoop()
	l.Post(task.New(func() { l.Post(l.QuitClosure()) }))

	if !waitThisOrTimeout(l.Run, time.Second) {
		t.Fatal("Run never returned after its own QuitClosure was posted")
	}
}

func TestWorkerLoopRunMayBeCalledAgainAfterQuit(t *testing.T) {
	l := NewWorkerLoop()
	l.Quit()
	if !waitThisOrTimeout(l.Run, time.Second) {
		t.Fatal("first Run never returned")
	}

	calls := 0
	l.Post(task.New(func() { calls++; l.Quit() }))
	if !waitThisOrTimeout(l.Run, time.Second) {
		t.Fatal("second Run never returned")
	}
	if calls != 1 {
		t.Fatalf("expected the task posted between Run calls to execute once, got %d", calls)
	}
}

func TestWorkerLoopTaskRunnerPostsToLoop(t *testing.T) {
	l := NewWorkerLoop()
	r := l.TaskRunner()
	if !r.Valid() {
		t.Fatal("runner handed out by a live loop should be valid")
	}

	done := make(chan struct{})
	r.Post(task.New(func() { close(done) }))
	go l.Run()
	defer l.Quit()

	select {
	case <-done:
	case <-time.After(time.Second):
		t.Fatal("task posted via TaskRunner never ran")
	}
}

func TestWorkerLoopInvalidateRunnersSeversExistingHandles(t *testing.T) {
	l := NewWorkerLoop()
	r := l.TaskRunner()
	l.invalidateRunners()

	if r.Valid() {
		t.Fatal("runner should be invalid after invalidateRunners")
	}

	calls := 0
	r.Post(task.New(func() { calls++ }))
	l.RunUntilIdle()
	if calls != 0 {
		t.Fatal("Post on an invalidated runner should silently drop the task")
	}
}

