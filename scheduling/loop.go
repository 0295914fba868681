// Package scheduling implements the host scheduling substrate the
// message-passing runtime sits on: tasks, task runners, the worker/UI/
// IO task loop flavors, threads, and the process/thread-scoped
// scheduling handles generated stubs rely on.
package scheduling

import (
	"github.com/jabolina/go-mage/task"
	msync "github.com/jabolina/go-mage/sync"
)

// Loop is the common TaskLoop contract every flavor implements.
type Loop interface {
	// Run blocks the calling goroutine, executing posted tasks until
	// Quit or QuitWhenIdle is observed. It may be called again after a
	// prior Run call returns.
	Run()

	// RunUntilIdle drains whatever is currently queued and returns; it
	// never blocks waiting for new work.
	RunUntilIdle()

	// Post is thread-safe: it enqueues t and wakes the loop.
	Post(t task.Task)

	// Quit requests the running Run call return as soon as the task
	// currently executing (if any) completes.
	Quit()

	// QuitWhenIdle requests Run return once the queue is drained,
	// without dropping any task already posted.
	QuitWhenIdle()

	// QuitClosure returns a Task that, when run, calls Quit.
	QuitClosure() task.Task

	// TaskRunner returns a new handle that posts to this loop.
	TaskRunner() TaskRunner
}

// workerQueue is the FIFO queue + predicate condition variable shared
// by the Worker and UI loop flavors, which are behaviorally identical.
type workerQueue struct {
	mu           msync.Mutex
	cond         *msync.ConditionVariable
	tasks        []task.Task
	quit         bool
	quitWhenIdle bool
}

func newWorkerQueue() *workerQueue {
	q := &workerQueue{}
	q.cond = msync.NewConditionVariable(&q.mu)
	return q
}

func (q *workerQueue) shouldWake() bool {
	return len(q.tasks) > 0 || q.quit || (q.quitWhenIdle && len(q.tasks) == 0)
}

// WorkerLoop is the FIFO, mutex+condvar TaskLoop flavor. UI loops use
// the identical implementation.
type WorkerLoop struct {
	q    *workerQueue
	ctrl *runnerControl
}

// UILoop is behaviorally identical to WorkerLoop.
type UILoop = WorkerLoop

// NewWorkerLoop creates a ready-to-run Worker task loop.
func NewWorkerLoop() *WorkerLoop {
	l := &WorkerLoop{q: newWorkerQueue()}
	l.ctrl = newRunnerControl(l)
	return l
}

// NewUILoop creates a Worker-flavored loop. It does not register the
// loop as the process-wide UI loop handle; a FlavorUI Thread does that
// while it runs the loop and clears it once Run returns (see
// scheduling.Thread and handles.go).
func NewUILoop() *UILoop {
	return NewWorkerLoop()
}

func (l *WorkerLoop) Run() {
	for {
		l.q.mu.Lock()
		l.q.cond.Wait(l.q.shouldWake)
		if l.q.quit || (l.q.quitWhenIdle && len(l.q.tasks) == 0) {
			l.q.quit = false
			l.q.quitWhenIdle = false
			l.q.mu.Unlock()
			return
		}
		t := l.q.tasks[0]
		l.q.tasks = l.q.tasks[1:]
		l.q.mu.Unlock()
		t.MustRun()
	}
}

func (l *WorkerLoop) RunUntilIdle() {
	for {
		l.q.mu.Lock()
		if len(l.q.tasks) == 0 {
			l.q.mu.Unlock()
			return
		}
		t := l.q.tasks[0]
		l.q.tasks = l.q.tasks[1:]
		l.q.mu.Unlock()
		t.MustRun()
	}
}

func (l *WorkerLoop) Post(t task.Task) {
	l.q.mu.Lock()
	l.q.tasks = append(l.q.tasks, t)
	l.q.mu.Unlock()
	l.q.cond.NotifyOne()
}

func (l *WorkerLoop) Quit() {
	l.q.mu.Lock()
	l.q.quit = true
	l.q.mu.Unlock()
	l.q.cond.NotifyAll()
}

func (l *WorkerLoop) QuitWhenIdle() {
	l.q.mu.Lock()
	l.q.quitWhenIdle = true
	l.q.mu.Unlock()
	l.q.cond.NotifyAll()
}

func (l *WorkerLoop) QuitClosure() task.Task {
	return task.New(func() { l.Quit() })
}

func (l *WorkerLoop) TaskRunner() TaskRunner {
	return TaskRunner{ctrl: l.ctrl}
}

// invalidateRunners severs every TaskRunner handed out by this loop
// from the loop itself. Thread never calls it: a Thread reuses its loop
// across restarts.
func (l *WorkerLoop) invalidateRunners() {
	l.ctrl.Invalidate()
}
