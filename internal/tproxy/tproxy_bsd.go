//go:build freebsd || openbsd

package tproxy

import (
	"net"
)

// IsSupported reports whether Listen works on this platform.
const IsSupported = true

// OriginalDst returns the destination a redirected connection was headed
// to. IPFW fwd and PF rdr-to keep it as the socket's local address.
func OriginalDst(c net.Conn) (string, error) {
	tc, err := tcpConn(c)
	if err != nil {
		return "", err
	}
	return tc.LocalAddr().String(), nil
}
