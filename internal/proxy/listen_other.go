//go:build !unix

package proxy

import (
	"syscall"
)

// controlReuseAddr is a no-op where SO_REUSEADDR is not set through x/sys/unix.
func controlReuseAddr(_, _ string, _ syscall.RawConn) error {
	return nil
}
