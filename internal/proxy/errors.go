package proxy

import (
	"errors"
	"io"
	"net"
	"syscall"
)

// ErrBlockedHost is returned when a request names a blocked host.
var ErrBlockedHost = errors.New("blocked host")

// ErrServerClosed is returned by Serve after Close.
var ErrServerClosed = errors.New("proxy: server closed")

// OriginError reports that the origin could not be reached. Nothing has been
// relayed when it is returned.
type OriginError struct {
	Addr string
	Err  error
}

func (e *OriginError) Error() string {
	return "origin " + e.Addr + ": " + e.Err.Error()
}

func (e *OriginError) Unwrap() error {
	return e.Err
}

// StreamError reports a failure after the exchange with the origin began.
type StreamError struct {
	Stage string
	Err   error
}

func (e *StreamError) Error() string {
	return e.Stage + ": " + e.Err.Error()
}

func (e *StreamError) Unwrap() error {
	return e.Err
}

// isDisconnect reports whether err only means that a peer went away.
func isDisconnect(err error) bool {
	return errors.Is(err, io.EOF) ||
		errors.Is(err, net.ErrClosed) ||
		errors.Is(err, io.ErrClosedPipe) ||
		errors.Is(err, syscall.EPIPE) ||
		errors.Is(err, syscall.ECONNRESET)
}

// streamError maps err to nil when it only means a peer hung up.
func streamError(stage string, err error) error {
	if err == nil || isDisconnect(err) {
		return nil
	}
	return &StreamError{Stage: stage, Err: err}
}
