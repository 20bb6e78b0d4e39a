//go:build darwin

package netio

import "golang.org/x/sys/unix"

// SendQueueDepth reports the number of bytes currently queued in the
// kernel's outbound send buffer for fd. Darwin has no SIOCOUTQ; TIOCOUTQ
// reports the same quantity on BSD-derived kernels and is used here as a
// best-effort parity shim, not a guaranteed-identical syscall (see
// DESIGN.md Open Questions).
func SendQueueDepth(fd int) (int, error) {
	return unix.IoctlGetInt(fd, unix.TIOCOUTQ)
}
