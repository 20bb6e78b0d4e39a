// reactor.go — EventReactor abstraction: edge-triggered readiness
// multiplexing over epoll (Linux) or kqueue (Darwin).
//
// Grounded on main_linux.go/main_darwin.go's parallel epoll/kqueue setup
// for a single upstream fd, generalized here to an arbitrary registered
// fd set (a listener plus N subscriber sockets on the publisher, or one
// outbound connection on the consumer) behind a single interface so
// cmd/publisher and cmd/consumer need no build tags of their own.
package reactor

import "time"

// Event is one readiness notification. Err is set on error or
// peer-hangup conditions so the owner can detach the connection without
// a separate read to discover the failure.
type Event struct {
	Fd  int
	Err bool
}

// Reactor is the platform-independent readiness multiplexer contract.
type Reactor interface {
	// Register begins edge-triggered read-readiness notifications for fd.
	Register(fd int) error
	// Deregister stops notifications for fd. Safe to call after fd is
	// already closed.
	Deregister(fd int) error
	// Wait blocks up to timeout for readiness, returning a bounded batch
	// of ready events (possibly empty on timeout).
	Wait(timeout time.Duration) ([]Event, error)
	// Close releases the underlying kernel object.
	Close() error
}

// New constructs the platform-appropriate Reactor implementation.
func New() (Reactor, error) {
	return newReactor()
}

const maxBatch = 128
