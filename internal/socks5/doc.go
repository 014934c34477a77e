// Package socks5 wraps the wire types of github.com/txthinking/socks5 with
// the handshakes portcullis needs: a client CONNECT used to reach origins
// through a SOCKS5 upstream, and a minimal server side used by tests.
package socks5
