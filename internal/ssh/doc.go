// Package ssh holds the SSH helpers behind the ssh:// upstream: transport
// handshake, key loading (file or agent), and known_hosts verification with
// trust on first use.
package ssh
