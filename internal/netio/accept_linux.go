//go:build linux

package netio

import "golang.org/x/sys/unix"

// Accept drains one pending connection from a non-blocking listening
// socket using accept4 with SOCK_NONBLOCK, avoiding the separate
// SetNonblock syscall Darwin needs.
func Accept(listenFd int) (fd int, peer string, err error) {
	nfd, sa, err := unix.Accept4(listenFd, unix.SOCK_NONBLOCK)
	if err != nil {
		return -1, "", err
	}
	return nfd, PeerAddr(sa), nil
}
