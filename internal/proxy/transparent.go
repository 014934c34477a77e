package proxy

import (
	"context"
	"fmt"
	"net"
)

const kindTransparent = "transparent"

// DestinationFunc recovers the address a redirected connection was headed to.
type DestinationFunc func(net.Conn) (string, error)

// ServeTransparent accepts connections that a firewall redirected to ln,
// looks up each one's original destination with dst, and relays it there
// unless the destination is blocked. It returns like Serve.
func (s *Server) ServeTransparent(ln net.Listener, dst DestinationFunc) error {
	return s.serve(ln, func(ctx context.Context, c net.Conn) error {
		return s.serveTransparent(ctx, c, dst)
	})
}

func (s *Server) serveTransparent(ctx context.Context, c net.Conn, dst DestinationFunc) error {
	s.metrics.requests.WithLabelValues(kindTransparent).Inc()

	addr, err := dst(c)
	if err != nil {
		return fmt.Errorf("original destination: %w", err)
	}

	// There is no request to answer, so a blocked connection is just closed.
	host, _, err := net.SplitHostPort(addr)
	if err != nil {
		return fmt.Errorf("original destination %q: %w", addr, err)
	}
	if s.cfg.Blocklist.IsBlocked(host) {
		s.metrics.blocked.WithLabelValues(kindTransparent).Inc()
		return fmt.Errorf("%w: %s", ErrBlockedHost, host)
	}

	origin, err := s.dial(ctx, addr)
	if err != nil {
		return err
	}
	defer origin.Close()

	return s.relay(ctx, c, origin)
}
