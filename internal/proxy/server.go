package proxy

import (
	"context"
	"errors"
	"fmt"
	"net"
	"runtime/debug"
	"sync"
	"time"

	"github.com/google/uuid"
	"github.com/rs/zerolog"

	"github.com/die-net/portcullis/internal/request"
)

// Server accepts client connections and dispatches each one to the HTTP
// forwarder or the CONNECT tunnel.
type Server struct {
	cfg     Config
	log     zerolog.Logger
	metrics *metrics
	bufs    *bufferPool

	ctx    context.Context
	cancel context.CancelFunc

	mu        sync.Mutex
	closed    bool
	listeners map[net.Listener]struct{}
	conns     map[*onceConn]struct{}
	wg        sync.WaitGroup
}

// NewServer validates cfg and returns a Server ready to Serve.
func NewServer(cfg Config) (*Server, error) {
	if cfg.Dialer == nil {
		return nil, errors.New("proxy: missing dialer")
	}
	if cfg.Blocklist == nil {
		return nil, errors.New("proxy: missing blocklist")
	}
	if cfg.Cache == nil {
		return nil, errors.New("proxy: missing cache")
	}
	if cfg.BufferSize <= 0 {
		cfg.BufferSize = DefaultBufferSize
	}

	ctx, cancel := context.WithCancel(context.Background())
	return &Server{
		cfg:       cfg,
		log:       cfg.Logger,
		metrics:   newMetrics(cfg.Registerer),
		bufs:      newBufferPool(cfg.BufferSize),
		ctx:       ctx,
		cancel:    cancel,
		listeners: make(map[net.Listener]struct{}),
		conns:     make(map[*onceConn]struct{}),
	}, nil
}

// handlerFunc serves one client connection. The caller closes c.
type handlerFunc func(ctx context.Context, c net.Conn) error

// Serve accepts HTTP proxy clients on ln until ln fails or the server is
// closed, handling each one on its own goroutine. It always returns a non-nil
// error, ErrServerClosed after Close.
func (s *Server) Serve(ln net.Listener) error {
	return s.serve(ln, s.serveConn)
}

func (s *Server) serve(ln net.Listener, handler handlerFunc) error {
	if !s.trackListener(ln, true) {
		return ErrServerClosed
	}
	defer s.trackListener(ln, false)

	var tempDelay time.Duration
	for {
		c, err := ln.Accept()
		if err != nil {
			if s.isClosed() {
				return ErrServerClosed
			}
			var ne net.Error
			if errors.As(err, &ne) && ne.Timeout() {
				tempDelay = min(max(2*tempDelay, 5*time.Millisecond), time.Second)
				s.log.Warn().Err(err).Dur("retry_in", tempDelay).Msg("accept failed")
				time.Sleep(tempDelay)
				continue
			}
			return fmt.Errorf("accept: %w", err)
		}
		tempDelay = 0

		oc := s.trackConn(c)
		if oc == nil {
			_ = c.Close()
			continue
		}
		go s.handleConn(oc, handler)
	}
}

// Close stops every Serve loop, closes all client connections and waits for
// their handlers to return.
func (s *Server) Close() error {
	s.mu.Lock()
	s.closed = true
	s.cancel()
	var err error
	for ln := range s.listeners {
		if cerr := ln.Close(); cerr != nil && !errors.Is(cerr, net.ErrClosed) {
			err = errors.Join(err, cerr)
		}
	}
	for c := range s.conns {
		_ = c.Close()
	}
	s.mu.Unlock()

	s.wg.Wait()
	return err
}

func (s *Server) isClosed() bool {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.closed
}

func (s *Server) trackListener(ln net.Listener, add bool) bool {
	s.mu.Lock()
	defer s.mu.Unlock()
	if add {
		if s.closed {
			return false
		}
		s.listeners[ln] = struct{}{}
	} else {
		delete(s.listeners, ln)
	}
	return true
}

// trackConn registers c with the server. It returns nil once the server is
// closed. The WaitGroup is only added to under mu so Close never races a
// new handler.
func (s *Server) trackConn(c net.Conn) *onceConn {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.closed {
		return nil
	}
	oc := &onceConn{Conn: c}
	s.conns[oc] = struct{}{}
	s.wg.Add(1)
	return oc
}

func (s *Server) untrackConn(c *onceConn) {
	s.mu.Lock()
	delete(s.conns, c)
	s.mu.Unlock()
}

// handleConn owns c: it is closed exactly once when handleConn returns,
// whatever path the request takes.
func (s *Server) handleConn(c *onceConn, handler handlerFunc) {
	defer s.wg.Done()
	defer s.untrackConn(c)
	defer c.Close()

	s.metrics.activeConnections.Inc()
	defer s.metrics.activeConnections.Dec()

	log := s.log.With().
		Str("conn", uuid.NewString()).
		Stringer("client", c.RemoteAddr()).
		Logger()

	defer func() {
		if r := recover(); r != nil {
			s.metrics.errors.WithLabelValues("panic").Inc()
			log.Error().
				Interface("panic", r).
				Bytes("stack", debug.Stack()).
				Msg("connection handler panicked")
		}
	}()

	ctx := log.WithContext(s.ctx)
	err := handler(ctx, c)
	s.logResult(zerolog.Ctx(ctx), err)
}

// serveConn reads the request head with a single read, parses it and hands
// the connection to the forwarder or the tunnel.
func (s *Server) serveConn(ctx context.Context, c net.Conn) error {
	buf := s.bufs.Get()
	defer s.bufs.Put(buf)

	if s.cfg.NegotiationTimeout > 0 {
		_ = c.SetReadDeadline(time.Now().Add(s.cfg.NegotiationTimeout))
	}
	n, err := c.Read(*buf)
	if n == 0 {
		return streamError("read request", err)
	}
	_ = c.SetReadDeadline(time.Time{})
	head := (*buf)[:n]

	req, err := request.Parse(head)
	if err != nil {
		return err
	}

	zerolog.Ctx(ctx).UpdateContext(func(zc zerolog.Context) zerolog.Context {
		return zc.Str("method", req.Method).Str("target", req.Target)
	})

	if req.IsConnect() {
		return s.tunnel(ctx, c, req, head)
	}
	return s.forward(ctx, c, req, head)
}

func (s *Server) logResult(log *zerolog.Logger, err error) {
	var (
		originErr *OriginError
		streamErr *StreamError
	)
	switch {
	case err == nil:
		log.Debug().Msg("connection closed")
	case errors.Is(err, request.ErrMalformed):
		s.metrics.errors.WithLabelValues("malformed").Inc()
		log.Debug().Err(err).Msg("dropping malformed request")
	case errors.Is(err, ErrBlockedHost):
		log.Debug().Err(err).Msg("request blocked")
	case errors.As(err, &originErr):
		s.metrics.errors.WithLabelValues("origin").Inc()
		log.Warn().Err(err).Msg("origin unreachable")
	case errors.As(err, &streamErr):
		s.metrics.errors.WithLabelValues("stream").Inc()
		log.Info().Err(err).Msg("stream aborted")
	default:
		s.metrics.errors.WithLabelValues("other").Inc()
		log.Error().Err(err).Msg("connection failed")
	}
}

// dial connects to the origin at addr through the configured dialer.
func (s *Server) dial(ctx context.Context, addr string) (net.Conn, error) {
	c, err := s.cfg.Dialer.DialContext(ctx, "tcp", addr)
	if err != nil {
		return nil, &OriginError{Addr: addr, Err: err}
	}
	return &onceConn{Conn: c}, nil
}
