package proxy

import (
	"context"
	"fmt"
	"net"

	"golang.org/x/net/netutil"
)

// ListenConfig describes the client-facing listener.
type ListenConfig struct {
	// KeepAlive is applied to every accepted TCP connection.
	KeepAlive net.KeepAliveConfig
	// MaxConns caps simultaneously open client connections. Zero means no
	// cap.
	MaxConns int
}

// Listen listens on the given network/address with SO_REUSEADDR where the
// platform supports it. The returned listener applies cfg.KeepAlive to
// accepted connections and enforces cfg.MaxConns.
func Listen(ctx context.Context, network, addr string, cfg ListenConfig) (net.Listener, error) {
	lc := net.ListenConfig{Control: controlReuseAddr}

	ln, err := lc.Listen(ctx, network, addr)
	if err != nil {
		return nil, fmt.Errorf("listen %s %s: %w", network, addr, err)
	}

	return WrapListener(ln, cfg), nil
}

// WrapListener applies cfg to an already open listener.
func WrapListener(ln net.Listener, cfg ListenConfig) net.Listener {
	ln = &KeepAliveListener{Listener: ln, KeepAliveConfig: cfg.KeepAlive}
	if cfg.MaxConns > 0 {
		ln = netutil.LimitListener(ln, cfg.MaxConns)
	}
	return ln
}

// KeepAliveListener wraps a net.Listener and applies KeepAliveConfig to any
// accepted *net.TCPConn.
type KeepAliveListener struct {
	net.Listener
	net.KeepAliveConfig
}

// Accept accepts the next connection and applies KeepAliveConfig if the
// connection is a *net.TCPConn.
func (l *KeepAliveListener) Accept() (net.Conn, error) {
	conn, err := l.Listener.Accept()
	if err != nil {
		return nil, err
	}

	if tc, ok := conn.(*net.TCPConn); ok {
		_ = tc.SetKeepAliveConfig(l.KeepAliveConfig)
	}

	return conn, nil
}
