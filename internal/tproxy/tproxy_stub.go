//go:build !linux && !freebsd && !openbsd

package tproxy

import (
	"net"
	"syscall"
)

// IsSupported reports whether Listen works on this platform.
const IsSupported = false

func control(_, _ string, _ syscall.RawConn) error {
	return ErrUnsupported
}

// OriginalDst always fails on this platform.
func OriginalDst(_ net.Conn) (string, error) {
	return "", ErrUnsupported
}
