package scheduling

import (
	"sync"

	"github.com/jabolina/go-mage/internal/reactor"
	"github.com/jabolina/go-mage/task"
)

// IOCapableLoop is the Loop contract extended with the fd-watching
// surface only the IO flavor provides.
type IOCapableLoop interface {
	Loop
	WatchFD(fd int, onReadable func()) error
	UnwatchFD(fd int) error
}

// IOLoop additionally watches registered file descriptors, waking on
// OS notification via the Reactor abstraction.
type IOLoop struct {
	reactor reactor.Reactor

	mu           sync.Mutex
	tasks        []task.Task
	quit         bool
	quitWhenIdle bool

	ctrl *runnerControl
}

// NewIOLoop creates an epoll-backed IO task loop whose reactor reports
// up to capacity ready file descriptors (plus the wake fd) per wait.
func NewIOLoop(capacity int) (*IOLoop, error) {
	r, err := reactor.New(capacity)
	if err != nil {
		return nil, err
	}
	l := &IOLoop{reactor: r}
	l.ctrl = newRunnerControl(l)
	return l, nil
}

// WatchFD registers reader's fd so onReadable is invoked whenever it
// becomes readable; a given fd may be registered at most once.
func (l *IOLoop) WatchFD(fd int, onReadable func()) error {
	return l.reactor.Register(fd, onReadable)
}

// UnwatchFD stops watching fd.
func (l *IOLoop) UnwatchFD(fd int) error {
	return l.reactor.Unregister(fd)
}

func (l *IOLoop) shouldStop() (bool, bool) {
	l.mu.Lock()
	defer l.mu.Unlock()
	stop := l.quit || (l.quitWhenIdle && len(l.tasks) == 0)
	if stop {
		l.quit = false
		l.quitWhenIdle = false
	}
	return stop, len(l.tasks) > 0
}

// Run blocks, alternating between waiting for OS readiness events and
// draining wake units from posted tasks. A fatal OS error from the
// reactor panics.
func (l *IOLoop) Run() {
	for {
		if stop, _ := l.shouldStop(); stop {
			return
		}

		wakeUnits, err := l.reactor.WaitForEvents()
		if err != nil {
			panic(err)
		}

		for i := 0; i < wakeUnits; i++ {
			l.mu.Lock()
			if len(l.tasks) == 0 {
				l.mu.Unlock()
				continue
			}
			t := l.tasks[0]
			l.tasks = l.tasks[1:]
			l.mu.Unlock()
			t.MustRun()
		}
	}
}

// RunUntilIdle drains the current queue without blocking on the
// reactor for new IO or task events.
func (l *IOLoop) RunUntilIdle() {
	for {
		l.mu.Lock()
		if len(l.tasks) == 0 {
			l.mu.Unlock()
			return
		}
		t := l.tasks[0]
		l.tasks = l.tasks[1:]
		l.mu.Unlock()
		t.MustRun()
	}
}

func (l *IOLoop) Post(t task.Task) {
	l.mu.Lock()
	l.tasks = append(l.tasks, t)
	l.mu.Unlock()
	if err := l.reactor.Wake(); err != nil {
		panic(err)
	}
}

func (l *IOLoop) Quit() {
	l.mu.Lock()
	l.quit = true
	l.mu.Unlock()
	if err := l.reactor.Wake(); err != nil {
		panic(err)
	}
}

func (l *IOLoop) QuitWhenIdle() {
	l.mu.Lock()
	l.quitWhenIdle = true
	l.mu.Unlock()
	if err := l.reactor.Wake(); err != nil {
		panic(err)
	}
}

func (l *IOLoop) QuitClosure() task.Task {
	return task.New(func() { l.Quit() })
}

func (l *IOLoop) TaskRunner() TaskRunner {
	return TaskRunner{ctrl: l.ctrl}
}

func (l *IOLoop) invalidateRunners() {
	l.ctrl.Invalidate()
}

// Close releases the underlying reactor resources. The loop must not
// be running when Close is called.
func (l *IOLoop) Close() error {
	return l.reactor.Close()
}
