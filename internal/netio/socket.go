// socket.go — raw, non-blocking TCP socket helpers built directly on
// golang.org/x/sys/unix instead of net.Conn.
//
// Grounded on main_linux.go/main_darwin.go's extraction of a raw fd from
// a net.Conn via SyscallConn for epoll/kqueue registration, generalized
// here to build the fd from scratch with unix.Socket/Bind/Listen/Connect.
// A custom single-threaded epoll/kqueue loop juggling many accepted
// connections cannot safely coexist with Go's own internal network
// poller, which is why the publisher/consumer bypass net entirely on
// the hot path.
package netio

import (
	"errors"
	"fmt"
	"net"
	"time"

	"golang.org/x/sys/unix"
)

var ErrConnectTimeout = errors.New("netio: connect timed out")

// Listen creates a non-blocking IPv4 TCP listening socket bound to
// addr:port with SO_REUSEADDR set and a backlog of 128.
func Listen(addr string, port int) (fd int, err error) {
	fd, err = unix.Socket(unix.AF_INET, unix.SOCK_STREAM, 0)
	if err != nil {
		return -1, fmt.Errorf("netio: socket: %w", err)
	}
	if err := unix.SetsockoptInt(fd, unix.SOL_SOCKET, unix.SO_REUSEADDR, 1); err != nil {
		unix.Close(fd)
		return -1, fmt.Errorf("netio: setsockopt SO_REUSEADDR: %w", err)
	}
	ip, err := resolveV4(addr)
	if err != nil {
		unix.Close(fd)
		return -1, err
	}
	sa := &unix.SockaddrInet4{Port: port, Addr: ip}
	if err := unix.Bind(fd, sa); err != nil {
		unix.Close(fd)
		return -1, fmt.Errorf("netio: bind: %w", err)
	}
	if err := unix.Listen(fd, 128); err != nil {
		unix.Close(fd)
		return -1, fmt.Errorf("netio: listen: %w", err)
	}
	if err := unix.SetNonblock(fd, true); err != nil {
		unix.Close(fd)
		return -1, fmt.Errorf("netio: set nonblock: %w", err)
	}
	return fd, nil
}

func resolveV4(addr string) (out [4]byte, err error) {
	if addr == "" || addr == "0.0.0.0" {
		return [4]byte{0, 0, 0, 0}, nil
	}
	ip := net.ParseIP(addr)
	if ip == nil {
		ips, err := net.LookupIP(addr)
		if err != nil || len(ips) == 0 {
			return out, fmt.Errorf("netio: resolve %q: %w", addr, err)
		}
		ip = ips[0]
	}
	v4 := ip.To4()
	if v4 == nil {
		return out, fmt.Errorf("netio: %q is not an IPv4 address", addr)
	}
	copy(out[:], v4)
	return out, nil
}

// LocalPort returns the port a socket is bound to, useful for
// discovering an ephemeral port handed out by Listen(addr, 0).
func LocalPort(fd int) (int, error) {
	sa, err := unix.Getsockname(fd)
	if err != nil {
		return 0, fmt.Errorf("netio: getsockname: %w", err)
	}
	v4, ok := sa.(*unix.SockaddrInet4)
	if !ok {
		return 0, fmt.Errorf("netio: unexpected sockaddr type %T", sa)
	}
	return v4.Port, nil
}

// PeerAddr formats a SockaddrInet4 as "ip:port".
func PeerAddr(sa unix.Sockaddr) string {
	v4, ok := sa.(*unix.SockaddrInet4)
	if !ok {
		return "unknown"
	}
	ip := net.IPv4(v4.Addr[0], v4.Addr[1], v4.Addr[2], v4.Addr[3])
	return fmt.Sprintf("%s:%d", ip.String(), v4.Port)
}

// Connect opens a non-blocking TCP connection to host:port, waiting up
// to timeout for completion via a poll-based readiness check and
// verifying success with SO_ERROR.
func Connect(host string, port int, timeout time.Duration) (fd int, err error) {
	fd, err = unix.Socket(unix.AF_INET, unix.SOCK_STREAM, 0)
	if err != nil {
		return -1, fmt.Errorf("netio: socket: %w", err)
	}
	if err := unix.SetNonblock(fd, true); err != nil {
		unix.Close(fd)
		return -1, err
	}
	ip, err := resolveV4(host)
	if err != nil {
		unix.Close(fd)
		return -1, err
	}
	sa := &unix.SockaddrInet4{Port: port, Addr: ip}
	err = unix.Connect(fd, sa)
	if err != nil && err != unix.EINPROGRESS {
		unix.Close(fd)
		return -1, fmt.Errorf("netio: connect: %w", err)
	}

	deadline := time.Now().Add(timeout)
	pfd := []unix.PollFd{{Fd: int32(fd), Events: unix.POLLOUT}}
	for {
		remaining := deadline.Sub(time.Now())
		if remaining <= 0 {
			unix.Close(fd)
			return -1, ErrConnectTimeout
		}
		n, perr := unix.Poll(pfd, int(remaining.Milliseconds())+1)
		if perr == unix.EINTR {
			continue
		}
		if perr != nil {
			unix.Close(fd)
			return -1, fmt.Errorf("netio: poll: %w", perr)
		}
		if n == 0 {
			continue // spurious wake, recheck deadline
		}
		break
	}

	soerr, err := unix.GetsockoptInt(fd, unix.SOL_SOCKET, unix.SO_ERROR)
	if err != nil {
		unix.Close(fd)
		return -1, fmt.Errorf("netio: getsockopt SO_ERROR: %w", err)
	}
	if soerr != 0 {
		unix.Close(fd)
		return -1, fmt.Errorf("netio: connect failed: %w", unix.Errno(soerr))
	}
	return fd, nil
}

// SetNodelay disables Nagle's algorithm, required on every socket so a
// small frame is never held back waiting to be coalesced.
func SetNodelay(fd int) error {
	return unix.SetsockoptInt(fd, unix.IPPROTO_TCP, unix.TCP_NODELAY, 1)
}

// SetSendBuf requests a kernel send buffer of at least n bytes.
func SetSendBuf(fd, n int) error {
	return unix.SetsockoptInt(fd, unix.SOL_SOCKET, unix.SO_SNDBUF, n)
}

// SetRecvBuf requests a kernel receive buffer of at least n bytes.
func SetRecvBuf(fd, n int) error {
	return unix.SetsockoptInt(fd, unix.SOL_SOCKET, unix.SO_RCVBUF, n)
}

// Read performs one non-blocking read. A zero-length, nil-error result
// signals peer close (EOF); unix.EAGAIN signals "no data now".
func Read(fd int, b []byte) (int, error) {
	return unix.Read(fd, b)
}

// Write performs one non-blocking write. unix.EAGAIN signals the
// kernel send buffer is full.
func Write(fd int, b []byte) (int, error) {
	return unix.Write(fd, b)
}

// Close closes fd exactly once; callers are responsible for ensuring
// they never call it twice on the same fd.
func Close(fd int) error {
	return unix.Close(fd)
}

// IsTransient reports whether err is EAGAIN/EWOULDBLOCK/EINTR: "try
// again later," not a real error.
func IsTransient(err error) bool {
	return errors.Is(err, unix.EAGAIN) || errors.Is(err, unix.EWOULDBLOCK) || errors.Is(err, unix.EINTR)
}
