//go:build openbsd

package tproxy

import (
	"syscall"

	"golang.org/x/sys/unix"
)

// control enables the socket-level SO_BINDANY. It needs root.
func control(_, _ string, c syscall.RawConn) error {
	var ctrlErr error
	err := c.Control(func(fd uintptr) {
		ctrlErr = unix.SetsockoptInt(int(fd), unix.SOL_SOCKET, unix.SO_BINDANY, 1)
	})
	if err != nil {
		return err
	}
	return ctrlErr
}
