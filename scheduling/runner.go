package scheduling

import (
	"sync"

	"github.com/jabolina/go-mage/task"
)

// poster is the minimal surface a TaskRunner needs from whatever loop
// backs it; both WorkerLoop and IOLoop satisfy it via Loop.
type poster interface {
	Post(t task.Task)
}

// runnerControl is the shared, invalidatable cell a TaskRunner weakly
// references. The owning loop hands out copies of TaskRunner that all
// point at the same control block; closing the block (via Invalidate)
// is the explicit analogue of the weak_ptr expiring once its owner is
// gone, letting runners outlive loops without keeping them alive.
type runnerControl struct {
	mu   sync.Mutex
	loop poster
}

func newRunnerControl(l poster) *runnerControl {
	return &runnerControl{loop: l}
}

// Invalidate clears the referenced loop; subsequent Post calls on any
// TaskRunner sharing this control block silently drop their task.
func (c *runnerControl) Invalidate() {
	c.mu.Lock()
	c.loop = nil
	c.mu.Unlock()
}

func (c *runnerControl) get() poster {
	c.mu.Lock()
	l := c.loop
	c.mu.Unlock()
	return l
}

// TaskRunner is a thread-safe handle that posts tasks to a TaskLoop via
// a weak reference. It is a small value type: copying a TaskRunner
// shares the same underlying loop reference.
type TaskRunner struct {
	ctrl *runnerControl
}

// Post enqueues t on the referenced loop if it is still alive; if the
// loop is gone, the task is silently dropped.
func (r TaskRunner) Post(t task.Task) {
	if r.ctrl == nil {
		return
	}
	if l := r.ctrl.get(); l != nil {
		l.Post(t)
	}
}

// Valid reports whether the referenced loop is still alive. Mostly
// useful in tests and diagnostics; ordinary callers should just Post.
func (r TaskRunner) Valid() bool {
	return r.ctrl != nil && r.ctrl.get() != nil
}

// Zero reports whether r was never bound to a loop at all (as opposed
// to being bound and then invalidated).
func (r TaskRunner) Zero() bool {
	return r.ctrl == nil
}
