//go:build linux

package reactor

import (
	"fmt"
	"sync"

	"golang.org/x/sys/unix"
)

// epollReactor is the Linux Reactor implementation: one epoll instance
// plus one permanently-registered eventfd used as the wake channel.
// The eventfd is created with EFD_SEMAPHORE so every Wake() increments
// a counter and every drained unit decrements it by exactly one,
// giving the "N posts => N wakes" counting-semaphore guarantee the IO
// loop requires without any extra bookkeeping.
type epollReactor struct {
	epfd   int
	wakeFD int

	mu        sync.Mutex
	callbacks map[int]func()

	events []unix.EpollEvent
}

// New creates an epoll-backed Reactor sized for capacity registered
// fds plus the permanent wake fd.
func New(capacity int) (Reactor, error) {
	epfd, err := unix.EpollCreate1(unix.EPOLL_CLOEXEC)
	if err != nil {
		return nil, fmt.Errorf("mage/reactor: epoll_create1: %w", err)
	}

	wakeFD, err := unix.Eventfd(0, unix.EFD_SEMAPHORE|unix.EFD_NONBLOCK|unix.EFD_CLOEXEC)
	if err != nil {
		_ = unix.Close(epfd)
		return nil, fmt.Errorf("mage/reactor: eventfd: %w", err)
	}

	r := &epollReactor{
		epfd:      epfd,
		wakeFD:    wakeFD,
		callbacks: make(map[int]func()),
		events:    make([]unix.EpollEvent, capacity+1),
	}

	if err := unix.EpollCtl(r.epfd, unix.EPOLL_CTL_ADD, r.wakeFD, &unix.EpollEvent{
		Events: unix.EPOLLIN,
		Fd:     int32(r.wakeFD),
	}); err != nil {
		_ = unix.Close(r.wakeFD)
		_ = unix.Close(r.epfd)
		return nil, fmt.Errorf("mage/reactor: registering wake fd: %w", err)
	}

	return r, nil
}

func (r *epollReactor) Register(fd int, onReadable func()) error {
	r.mu.Lock()
	if _, ok := r.callbacks[fd]; ok {
		r.mu.Unlock()
		return ErrAlreadyRegistered
	}
	r.callbacks[fd] = onReadable
	r.mu.Unlock()

	if err := unix.EpollCtl(r.epfd, unix.EPOLL_CTL_ADD, fd, &unix.EpollEvent{
		Events: unix.EPOLLIN,
		Fd:     int32(fd),
	}); err != nil {
		r.mu.Lock()
		delete(r.callbacks, fd)
		r.mu.Unlock()
		return fmt.Errorf("mage/reactor: epoll_ctl add %d: %w", fd, err)
	}
	return nil
}

func (r *epollReactor) Unregister(fd int) error {
	r.mu.Lock()
	if _, ok := r.callbacks[fd]; !ok {
		r.mu.Unlock()
		return ErrNotRegistered
	}
	delete(r.callbacks, fd)
	r.mu.Unlock()

	if err := unix.EpollCtl(r.epfd, unix.EPOLL_CTL_DEL, fd, nil); err != nil {
		return fmt.Errorf("mage/reactor: epoll_ctl del %d: %w", fd, err)
	}
	return nil
}

// Wake increments the eventfd semaphore by one, guaranteeing exactly
// one additional wake unit is observed by a future WaitForEvents call.
func (r *epollReactor) Wake() error {
	var buf [8]byte
	buf[0] = 1
	for {
		_, err := unix.Write(r.wakeFD, buf[:])
		if err == unix.EINTR {
			continue
		}
		if err != nil {
			return fmt.Errorf("mage/reactor: write wake fd: %w", err)
		}
		return nil
	}
}

// WaitForEvents blocks in epoll_wait, then for each ready fd either
// drains one semaphore unit from the wake fd (reporting it in
// wakeUnits) or invokes the registered callback, with the callback
// invoked outside the reactor's internal lock.
func (r *epollReactor) WaitForEvents() (int, error) {
	n, err := unix.EpollWait(r.epfd, r.events, -1)
	if err != nil {
		if err == unix.EINTR {
			return 0, nil
		}
		return 0, fmt.Errorf("mage/reactor: epoll_wait: %w", err)
	}

	wakeUnits := 0
	for i := 0; i < n; i++ {
		fd := int(r.events[i].Fd)
		if fd == r.wakeFD {
			if drained := r.drainWake(); drained {
				wakeUnits++
			}
			continue
		}

		r.mu.Lock()
		cb := r.callbacks[fd]
		r.mu.Unlock()
		if cb != nil {
			cb()
		}
	}
	return wakeUnits, nil
}

// drainWake reads exactly one semaphore unit. With EFD_SEMAPHORE the
// kernel always returns 1 for a successful read, decrementing the
// counter by one; EAGAIN means another goroutine already drained it.
func (r *epollReactor) drainWake() bool {
	var buf [8]byte
	_, err := unix.Read(r.wakeFD, buf[:])
	return err == nil
}

func (r *epollReactor) Close() error {
	err1 := unix.Close(r.wakeFD)
	err2 := unix.Close(r.epfd)
	if err1 != nil {
		return err1
	}
	return err2
}
