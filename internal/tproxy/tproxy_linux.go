//go:build linux

package tproxy

import (
	"encoding/binary"
	"fmt"
	"net"
	"strconv"
	"syscall"

	"golang.org/x/sys/unix"
)

// IsSupported reports whether Listen works on this platform.
const IsSupported = true

func control(_, _ string, c syscall.RawConn) error {
	var ctrlErr error
	err := c.Control(func(fd uintptr) {
		ctrlErr = unix.SetsockoptInt(int(fd), unix.SOL_IP, unix.IP_TRANSPARENT, 1)
	})
	if err != nil {
		return err
	}
	return ctrlErr
}

// OriginalDst returns the IPv4 destination a redirected connection was
// headed to, as host:port.
func OriginalDst(c net.Conn) (string, error) {
	tc, err := tcpConn(c)
	if err != nil {
		return "", err
	}
	rc, err := tc.SyscallConn()
	if err != nil {
		return "", fmt.Errorf("original destination: %w", err)
	}

	var (
		mreq   *unix.IPv6Mreq
		optErr error
	)
	err = rc.Control(func(fd uintptr) {
		// SO_ORIGINAL_DST fills a sockaddr_in, which fits in the 20 bytes
		// of an ipv6_mreq.
		mreq, optErr = unix.GetsockoptIPv6Mreq(int(fd), unix.SOL_IP, unix.SO_ORIGINAL_DST)
	})
	if err == nil {
		err = optErr
	}
	if err != nil {
		return "", fmt.Errorf("original destination: %w", err)
	}

	raw := mreq.Multiaddr
	port := binary.BigEndian.Uint16(raw[2:4])
	ip := net.IPv4(raw[4], raw[5], raw[6], raw[7])
	return net.JoinHostPort(ip.String(), strconv.Itoa(int(port))), nil
}
