package reactor

import (
	"testing"
	"time"

	"golang.org/x/sys/unix"
)

func socketpair(t *testing.T) (int, int) {
	fds, err := unix.Socketpair(unix.AF_UNIX, unix.SOCK_STREAM, 0)
	if err != nil {
		t.Fatalf("Socketpair: %v", err)
	}
	for _, fd := range fds {
		if err := unix.SetNonblock(fd, true); err != nil {
			t.Fatalf("SetNonblock: %v", err)
		}
	}
	return fds[0], fds[1]
}

func TestRegisterWaitDeregister(t *testing.T) {
	r, err := New()
	if err != nil {
		t.Fatalf("New: %v", err)
	}
	defer r.Close()

	a, b := socketpair(t)
	defer unix.Close(a)
	defer unix.Close(b)

	if err := r.Register(a); err != nil {
		t.Fatalf("Register: %v", err)
	}

	if _, err := unix.Write(b, []byte("x")); err != nil {
		t.Fatalf("write: %v", err)
	}

	events, err := r.Wait(500 * time.Millisecond)
	if err != nil {
		t.Fatalf("Wait: %v", err)
	}
	found := false
	for _, ev := range events {
		if ev.Fd == a {
			found = true
			if ev.Err {
				t.Fatalf("unexpected error flag on a readable fd")
			}
		}
	}
	if !found {
		t.Fatalf("expected fd %d to be ready, got %+v", a, events)
	}

	if err := r.Deregister(a); err != nil {
		t.Fatalf("Deregister: %v", err)
	}
	// Deregistering an already-removed fd must not error.
	if err := r.Deregister(a); err != nil {
		t.Fatalf("Deregister of a removed fd should be a no-op: %v", err)
	}
}

func TestWaitTimesOutWithNoReadyFds(t *testing.T) {
	r, err := New()
	if err != nil {
		t.Fatalf("New: %v", err)
	}
	defer r.Close()

	a, b := socketpair(t)
	defer unix.Close(a)
	defer unix.Close(b)

	if err := r.Register(a); err != nil {
		t.Fatalf("Register: %v", err)
	}

	events, err := r.Wait(50 * time.Millisecond)
	if err != nil {
		t.Fatalf("Wait: %v", err)
	}
	if len(events) != 0 {
		t.Fatalf("expected no ready events, got %+v", events)
	}
}

func TestPeerCloseSurfacesAsHangup(t *testing.T) {
	r, err := New()
	if err != nil {
		t.Fatalf("New: %v", err)
	}
	defer r.Close()

	a, b := socketpair(t)
	defer unix.Close(a)

	if err := r.Register(a); err != nil {
		t.Fatalf("Register: %v", err)
	}
	unix.Close(b)

	events, err := r.Wait(500 * time.Millisecond)
	if err != nil {
		t.Fatalf("Wait: %v", err)
	}
	if len(events) == 0 {
		t.Fatalf("expected a readiness event after peer close")
	}
}
