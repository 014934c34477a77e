package proxy

import (
	"context"
	"errors"
	"fmt"
	"net"
	"time"

	"github.com/die-net/portcullis/internal/request"
	"github.com/die-net/portcullis/internal/socks5"
)

const kindSOCKS5 = "socks5"

// ServeSOCKS5 accepts SOCKS5 clients on ln. CONNECT requests are checked
// against the blocklist and relayed like tunnels. It returns like Serve.
func (s *Server) ServeSOCKS5(ln net.Listener) error {
	return s.serve(ln, s.serveSOCKS5)
}

func (s *Server) serveSOCKS5(ctx context.Context, c net.Conn) error {
	if s.cfg.NegotiationTimeout > 0 {
		_ = c.SetDeadline(time.Now().Add(s.cfg.NegotiationTimeout))
	}

	origin, err := socks5.ServerAccept(ctx, c, socks5.Auth{}, func(ctx context.Context, _, address string) (net.Conn, error) {
		s.metrics.requests.WithLabelValues(kindSOCKS5).Inc()

		host, _, err := net.SplitHostPort(address)
		if err != nil {
			return nil, fmt.Errorf("%w: %w", request.ErrMalformed, err)
		}
		if s.cfg.Blocklist.IsBlocked(host) {
			s.metrics.blocked.WithLabelValues(kindSOCKS5).Inc()
			return nil, fmt.Errorf("%w: %s", ErrBlockedHost, host)
		}
		return s.dial(ctx, address)
	})
	if err != nil {
		var originErr *OriginError
		if errors.Is(err, ErrBlockedHost) || errors.Is(err, request.ErrMalformed) || errors.As(err, &originErr) {
			return err
		}
		if isDisconnect(err) {
			return nil
		}
		return fmt.Errorf("%w: socks5 handshake: %w", request.ErrMalformed, err)
	}
	defer origin.Close()
	_ = c.SetDeadline(time.Time{})

	return s.relay(ctx, c, origin)
}
