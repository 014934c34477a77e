package dialer

import (
	"net"
	"time"
)

// Config holds the settings shared by every outbound dialer.
type Config struct {
	// DialTimeout bounds DNS lookup plus TCP connect. Zero means no limit.
	DialTimeout time.Duration
	// NegotiationTimeout bounds proxy handshakes (TLS, CONNECT, SOCKS5, SSH).
	NegotiationTimeout time.Duration
	KeepAlive          net.KeepAliveConfig

	// SSHKeyPath is "agent", a private key file, or empty.
	SSHKeyPath string
	// SSHKnownHostsPath enables known_hosts verification when non-empty.
	SSHKnownHostsPath string
}
