//go:build darwin

package netio

import "golang.org/x/sys/unix"

// Accept drains one pending connection. Darwin has no accept4, so the
// accepted fd is set non-blocking in a second syscall.
func Accept(listenFd int) (fd int, peer string, err error) {
	nfd, sa, err := unix.Accept(listenFd)
	if err != nil {
		return -1, "", err
	}
	if err := unix.SetNonblock(nfd, true); err != nil {
		unix.Close(nfd)
		return -1, "", err
	}
	return nfd, PeerAddr(sa), nil
}
