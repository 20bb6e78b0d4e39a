//go:build linux

package reactor

import (
	"time"

	"golang.org/x/sys/unix"
)

// epollReactor implements Reactor on Linux. Grounded on main_linux.go's
// unix.EpollCreate1/EpollWait/EpollCtl usage, generalized from a single
// registered fd to an arbitrary set.
type epollReactor struct {
	epfd   int
	events [maxBatch]unix.EpollEvent
}

func newReactor() (Reactor, error) {
	fd, err := unix.EpollCreate1(0)
	if err != nil {
		return nil, err
	}
	return &epollReactor{epfd: fd}, nil
}

func (r *epollReactor) Register(fd int) error {
	ev := unix.EpollEvent{
		Events: unix.EPOLLIN | unix.EPOLLET | unix.EPOLLERR | unix.EPOLLHUP,
		Fd:     int32(fd),
	}
	return unix.EpollCtl(r.epfd, unix.EPOLL_CTL_ADD, fd, &ev)
}

func (r *epollReactor) Deregister(fd int) error {
	err := unix.EpollCtl(r.epfd, unix.EPOLL_CTL_DEL, fd, nil)
	if err == unix.EBADF || err == unix.ENOENT {
		return nil
	}
	return err
}

func (r *epollReactor) Wait(timeout time.Duration) ([]Event, error) {
	ms := int(timeout.Milliseconds())
	for {
		n, err := unix.EpollWait(r.epfd, r.events[:], ms)
		if err == unix.EINTR {
			continue
		}
		if err != nil {
			return nil, err
		}
		out := make([]Event, n)
		for i := 0; i < n; i++ {
			e := r.events[i]
			out[i] = Event{
				Fd:  int(e.Fd),
				Err: e.Events&(unix.EPOLLERR|unix.EPOLLHUP) != 0,
			}
		}
		return out, nil
	}
}

func (r *epollReactor) Close() error {
	return unix.Close(r.epfd)
}
