//go:build darwin

package reactor

import (
	"time"

	"golang.org/x/sys/unix"
)

// kqueueReactor implements Reactor on Darwin/BSD. Grounded on
// main_darwin.go's unix.Kqueue/Kevent usage, generalized from a single
// registered fd to an arbitrary set. EV_CLEAR requests edge-triggered
// semantics equivalent to epoll's EPOLLET.
type kqueueReactor struct {
	kq     int
	events [maxBatch]unix.Kevent_t
}

func newReactor() (Reactor, error) {
	fd, err := unix.Kqueue()
	if err != nil {
		return nil, err
	}
	return &kqueueReactor{kq: fd}, nil
}

func (r *kqueueReactor) Register(fd int) error {
	ch := []unix.Kevent_t{{
		Ident:  uint64(fd),
		Filter: unix.EVFILT_READ,
		Flags:  unix.EV_ADD | unix.EV_CLEAR,
	}}
	_, err := unix.Kevent(r.kq, ch, nil, nil)
	return err
}

func (r *kqueueReactor) Deregister(fd int) error {
	ch := []unix.Kevent_t{{
		Ident:  uint64(fd),
		Filter: unix.EVFILT_READ,
		Flags:  unix.EV_DELETE,
	}}
	_, err := unix.Kevent(r.kq, ch, nil, nil)
	if err == unix.EBADF || err == unix.ENOENT {
		return nil
	}
	return err
}

func (r *kqueueReactor) Wait(timeout time.Duration) ([]Event, error) {
	ts := unix.NsecToTimespec(timeout.Nanoseconds())
	for {
		n, err := unix.Kevent(r.kq, nil, r.events[:], &ts)
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
				Fd:  int(e.Ident),
				Err: e.Flags&(unix.EV_ERROR|unix.EV_EOF) != 0,
			}
		}
		return out, nil
	}
}

func (r *kqueueReactor) Close() error {
	return unix.Close(r.kq)
}
