package proxy

import (
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/rs/zerolog"

	"github.com/die-net/portcullis/internal/dialer"
)

// DefaultBufferSize is the size of the first read and of every relay read.
const DefaultBufferSize = 4096

// Blocklist decides whether a host may be reached.
type Blocklist interface {
	IsBlocked(host string) bool
}

// Cache stores complete origin responses by request URL.
type Cache interface {
	Lookup(key string) ([]byte, bool)
	Store(key string, body []byte)
}

// Config holds the settings and collaborators a Server is built from.
type Config struct {
	// BufferSize bounds the request head read and each relay read.
	BufferSize int

	// NegotiationTimeout bounds the wait for the request head.
	NegotiationTimeout time.Duration
	// IdleTimeout bounds each read while relaying.
	IdleTimeout time.Duration

	// MaxCacheEntrySize stops caching responses larger than this. Zero
	// means no limit.
	MaxCacheEntrySize int

	Dialer    dialer.Dialer
	Blocklist Blocklist
	Cache     Cache

	Logger zerolog.Logger
	// Registerer receives the server's metrics. Nil skips registration.
	Registerer prometheus.Registerer
}
