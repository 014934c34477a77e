package proxy

import (
	"context"
	"fmt"
	"net"

	"github.com/die-net/portcullis/internal/request"
)

// tunnel serves a CONNECT request by opening a raw byte relay between the
// client and the origin. Bytes the client pipelined behind the CONNECT head
// are delivered to the origin before relaying starts.
func (s *Server) tunnel(ctx context.Context, client net.Conn, req *request.Request, head []byte) error {
	s.metrics.requests.WithLabelValues(kindConnect).Inc()

	if s.cfg.Blocklist.IsBlocked(req.Host) {
		s.metrics.blocked.WithLabelValues(kindConnect).Inc()
		writeStatus(client, statusForbidden)
		return fmt.Errorf("%w: %s", ErrBlockedHost, req.Host)
	}

	origin, err := s.dial(ctx, req.Addr())
	if err != nil {
		writeStatus(client, statusBadGateway)
		return err
	}
	defer origin.Close()

	if _, err := client.Write([]byte(statusConnectionEstablished)); err != nil {
		return streamError("write status", err)
	}

	if early := request.Body(head); len(early) > 0 {
		if _, err := origin.Write(early); err != nil {
			return streamError("write pipelined bytes", err)
		}
		s.metrics.relayedBytes.WithLabelValues(directionUpstream).Add(float64(len(early)))
	}

	return s.relay(ctx, client, origin)
}
