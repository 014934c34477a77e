package proxy

import (
	"bytes"
	"context"
	"fmt"
	"io"
	"net"
	"time"

	"github.com/die-net/portcullis/internal/request"
)

// forward serves a plain HTTP request: from the cache when a fresh copy
// exists, otherwise by relaying the origin's response and caching it once
// the origin closes cleanly.
func (s *Server) forward(ctx context.Context, client net.Conn, req *request.Request, head []byte) error {
	s.metrics.requests.WithLabelValues(kindHTTP).Inc()

	if s.cfg.Blocklist.IsBlocked(req.Host) {
		s.metrics.blocked.WithLabelValues(kindHTTP).Inc()
		writeStatus(client, statusForbidden)
		return fmt.Errorf("%w: %s", ErrBlockedHost, req.Host)
	}

	if body, ok := s.cfg.Cache.Lookup(req.CacheKey); ok {
		s.metrics.cacheLookups.WithLabelValues("hit").Inc()
		if _, err := client.Write(body); err != nil {
			return streamError("write cached response", err)
		}
		return nil
	}
	s.metrics.cacheLookups.WithLabelValues("miss").Inc()

	origin, err := s.dial(ctx, req.Addr())
	if err != nil {
		writeStatus(client, statusBadGateway)
		return err
	}
	defer origin.Close()
	stop := context.AfterFunc(ctx, func() { _ = origin.Close() })
	defer stop()

	if _, err := origin.Write(request.RewriteHead(head, req)); err != nil {
		writeStatus(client, statusBadGateway)
		return &StreamError{Stage: "write request", Err: err}
	}

	body, cacheable, err := s.relayResponse(client, origin)
	if err != nil || !cacheable {
		return err
	}
	s.cfg.Cache.Store(req.CacheKey, body)
	return nil
}

// relayResponse streams the origin's response to the client until the origin
// closes, collecting it for the cache. cacheable is false when the response
// outgrew MaxCacheEntrySize or did not end in a clean close.
func (s *Server) relayResponse(client, origin net.Conn) (body []byte, cacheable bool, err error) {
	buf := s.bufs.Get()
	defer s.bufs.Put(buf)

	var (
		acc  bytes.Buffer
		sent int
	)
	cacheable = true

	for {
		if s.cfg.IdleTimeout > 0 {
			_ = origin.SetReadDeadline(time.Now().Add(s.cfg.IdleTimeout))
		}
		n, rerr := origin.Read(*buf)
		if n > 0 {
			if _, werr := client.Write((*buf)[:n]); werr != nil {
				return nil, false, streamError("write response", werr)
			}
			sent += n
			s.metrics.relayedBytes.WithLabelValues(directionDownstream).Add(float64(n))

			if cacheable {
				if limit := s.cfg.MaxCacheEntrySize; limit > 0 && acc.Len()+n > limit {
					cacheable = false
					acc = bytes.Buffer{}
				} else {
					acc.Write((*buf)[:n])
				}
			}
		}

		if rerr == io.EOF {
			if !cacheable {
				return nil, false, nil
			}
			return acc.Bytes(), true, nil
		}
		if rerr != nil {
			if sent == 0 {
				writeStatus(client, statusBadGateway)
			}
			return nil, false, &StreamError{Stage: "read response", Err: rerr}
		}
	}
}
