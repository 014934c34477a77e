package proxy

import (
	"context"
	"net"
	"sync"
	"time"

	"golang.org/x/sync/errgroup"
)

// relay copies bytes in both directions between client and origin. When
// either direction ends, both connections are closed so the other pump's
// blocked read returns. relay returns only after both pumps are done.
func (s *Server) relay(ctx context.Context, client, origin net.Conn) error {
	var closeOnce sync.Once
	closeBoth := func() {
		closeOnce.Do(func() {
			_ = client.Close()
			_ = origin.Close()
		})
	}
	defer closeBoth()

	stop := context.AfterFunc(ctx, closeBoth)
	defer stop()

	var g errgroup.Group
	g.Go(func() error {
		defer closeBoth()
		return s.pump(origin, client, directionUpstream)
	})
	g.Go(func() error {
		defer closeBoth()
		return s.pump(client, origin, directionDownstream)
	})
	return g.Wait()
}

// pump copies src to dst one buffer at a time until src ends. IdleTimeout,
// when set, bounds every read.
func (s *Server) pump(dst, src net.Conn, direction string) error {
	buf := s.bufs.Get()
	defer s.bufs.Put(buf)

	bytes := s.metrics.relayedBytes.WithLabelValues(direction)
	for {
		if s.cfg.IdleTimeout > 0 {
			_ = src.SetReadDeadline(time.Now().Add(s.cfg.IdleTimeout))
		}
		n, rerr := src.Read(*buf)
		if n > 0 {
			if _, werr := dst.Write((*buf)[:n]); werr != nil {
				return streamError("write "+direction, werr)
			}
			bytes.Add(float64(n))
		}
		if rerr != nil {
			return streamError("read "+direction, rerr)
		}
	}
}
