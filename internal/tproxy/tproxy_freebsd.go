//go:build freebsd

package tproxy

import (
	"syscall"

	"golang.org/x/sys/unix"
)

// control enables IP_BINDANY (IPV6_BINDANY for tcp6) so the socket accepts
// connections for any address. It needs root or PRIV_NETINET_BINDANY.
func control(network, _ string, c syscall.RawConn) error {
	var ctrlErr error
	err := c.Control(func(fd uintptr) {
		if network == "tcp6" {
			ctrlErr = unix.SetsockoptInt(int(fd), unix.IPPROTO_IPV6, unix.IPV6_BINDANY, 1)
		} else {
			ctrlErr = unix.SetsockoptInt(int(fd), unix.IPPROTO_IP, unix.IP_BINDANY, 1)
		}
	})
	if err != nil {
		return err
	}
	return ctrlErr
}
