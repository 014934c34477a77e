package testutil

import (
	"bufio"
	"context"
	"net"
	"strings"
	"sync"
	"sync/atomic"
	"testing"
)

// Origin is a stub origin server. For each connection it reads the request
// head, records its first line, writes Response, and closes.
type Origin struct {
	ln       net.Listener
	accepted atomic.Int64

	mu    sync.Mutex
	lines []string
}

// StartOrigin starts an Origin that answers every request with response.
func StartOrigin(t *testing.T, ctx context.Context, response []byte) *Origin {
	t.Helper()

	o := &Origin{}
	o.ln = StartServer(t, ctx, func(c net.Conn) {
		o.accepted.Add(1)

		br := bufio.NewReader(c)
		line, err := br.ReadString('\n')
		if err != nil {
			return
		}
		o.mu.Lock()
		o.lines = append(o.lines, strings.TrimRight(line, "\r\n"))
		o.mu.Unlock()

		for {
			l, err := br.ReadString('\n')
			if err != nil || l == "\r\n" || l == "\n" {
				break
			}
		}
		_, _ = c.Write(response)
	})
	return o
}

// Addr returns the origin's host:port.
func (o *Origin) Addr() string {
	return o.ln.Addr().String()
}

// Accepted returns how many connections the origin has accepted.
func (o *Origin) Accepted() int {
	return int(o.accepted.Load())
}

// RequestLines returns the request lines received so far.
func (o *Origin) RequestLines() []string {
	o.mu.Lock()
	defer o.mu.Unlock()
	return append([]string(nil), o.lines...)
}
