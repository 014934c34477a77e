// Package dialer provides the outbound dialers portcullis uses to reach
// origin servers.
//
// Dialers implement a small interface (DialContext) and connect either
// directly or through an upstream proxy (HTTP CONNECT, SOCKS5, or SSH).
package dialer
