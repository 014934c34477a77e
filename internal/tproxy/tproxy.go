package tproxy

import (
	"context"
	"errors"
	"fmt"
	"net"

	"github.com/die-net/portcullis/internal/proxy"
)

// ErrUnsupported is returned on platforms without transparent proxy support.
var ErrUnsupported = errors.New("transparent proxy is not supported on this platform")

// Listen listens on addr for redirected connections. Firewall rules that
// send traffic to the listener are still required.
func Listen(ctx context.Context, addr string, cfg proxy.ListenConfig) (net.Listener, error) {
	if !IsSupported {
		return nil, ErrUnsupported
	}

	lc := net.ListenConfig{Control: control}
	ln, err := lc.Listen(ctx, "tcp", addr)
	if err != nil {
		return nil, fmt.Errorf("listen tproxy %s: %w", addr, err)
	}
	return proxy.WrapListener(ln, cfg), nil
}

func tcpConn(c net.Conn) (*net.TCPConn, error) {
	if u, ok := c.(interface{ NetConn() net.Conn }); ok {
		c = u.NetConn()
	}
	tc, ok := c.(*net.TCPConn)
	if !ok {
		return nil, fmt.Errorf("original destination: not a TCP connection (%T)", c)
	}
	return tc, nil
}
