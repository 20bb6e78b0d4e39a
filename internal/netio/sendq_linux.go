//go:build linux

package netio

import "golang.org/x/sys/unix"

// SendQueueDepth reports the number of bytes currently queued in the
// kernel's outbound send buffer for fd, used by the subscriber table's
// slow-consumer detector.
func SendQueueDepth(fd int) (int, error) {
	return unix.IoctlGetInt(fd, unix.SIOCOUTQ)
}
