package proxy

import (
	"context"
	"fmt"
	"io"
	"net"
	"strings"
	"testing"
	"time"

	"github.com/die-net/portcullis/internal/testutil"
)

const originResponse = "HTTP/1.0 200 OK\r\nContent-Type: text/plain\r\n\r\nhello from origin"

func TestForwardRewritesRequestLine(t *testing.T) {
	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()

	origin := testutil.StartOrigin(t, ctx, []byte(originResponse))
	p := startProxy(t, Config{})

	tests := []struct {
		name     string
		raw      string
		wantLine string
	}{
		{
			name:     "absolute",
			raw:      fmt.Sprintf("GET http://%s/a?b=1 HTTP/1.1\r\nHost: %s\r\n\r\n", origin.Addr(), origin.Addr()),
			wantLine: "GET /a?b=1 HTTP/1.1",
		},
		{
			name:     "scheme-less",
			raw:      fmt.Sprintf("GET %s/plain HTTP/1.0\r\n\r\n", origin.Addr()),
			wantLine: "GET /plain HTTP/1.0",
		},
		{
			name:     "origin-form",
			raw:      fmt.Sprintf("HEAD /relative HTTP/1.1\r\nHost: %s\r\n\r\n", origin.Addr()),
			wantLine: "HEAD /relative HTTP/1.1",
		},
		{
			name:     "bare lf",
			raw:      fmt.Sprintf("GET http://%s/lf HTTP/1.1\n\n", origin.Addr()),
			wantLine: "GET /lf HTTP/1.1",
		},
	}
	for i, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			got := p.roundTrip(t, tt.raw)
			if string(got) != originResponse {
				t.Fatalf("got %q", got)
			}
			lines := origin.RequestLines()
			if len(lines) != i+1 {
				t.Fatalf("origin saw %d requests, want %d", len(lines), i+1)
			}
			if lines[i] != tt.wantLine {
				t.Fatalf("origin got %q want %q", lines[i], tt.wantLine)
			}
		})
	}
}

func TestForwardCacheHit(t *testing.T) {
	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()

	origin := testutil.StartOrigin(t, ctx, []byte(originResponse))
	p := startProxy(t, Config{})

	raw := fmt.Sprintf("GET http://%s/cached HTTP/1.1\r\n\r\n", origin.Addr())
	for i := range 3 {
		if got := p.roundTrip(t, raw); string(got) != originResponse {
			t.Fatalf("request %d: got %q", i, got)
		}
	}

	if n := origin.Accepted(); n != 1 {
		t.Fatalf("origin accepted %d connections, want 1", n)
	}
	if got := p.metric(t, "portcullis_cache_lookups_total", "hit"); got != 2 {
		t.Fatalf("cache hits = %v", got)
	}
	if got := p.metric(t, "portcullis_cache_lookups_total", "miss"); got != 1 {
		t.Fatalf("cache misses = %v", got)
	}

	// Origin-form requests for the same resource share the entry.
	body, ok := p.cache.Lookup("http://" + origin.Addr() + "/cached")
	if !ok || string(body) != originResponse {
		t.Fatalf("cache entry = %q, %v", body, ok)
	}
	raw = fmt.Sprintf("GET /cached HTTP/1.1\r\nHost: %s\r\n\r\n", origin.Addr())
	if got := p.roundTrip(t, raw); string(got) != originResponse {
		t.Fatalf("got %q", got)
	}
	if n := origin.Accepted(); n != 1 {
		t.Fatalf("origin accepted %d connections, want 1", n)
	}
}

func TestForwardUnreachableNotCached(t *testing.T) {
	p := startProxy(t, Config{})

	target := "http://" + testutil.ClosedAddr(t) + "/x"
	got := p.roundTrip(t, "GET "+target+" HTTP/1.1\r\n\r\n")
	if string(got) != statusBadGateway {
		t.Fatalf("got %q want %q", got, statusBadGateway)
	}
	if n := p.cache.Len(); n != 0 {
		t.Fatalf("cache has %d entries", n)
	}
}

func TestForwardEmptyResponseCached(t *testing.T) {
	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()

	origin := testutil.StartOrigin(t, ctx, nil)
	p := startProxy(t, Config{})

	target := "http://" + origin.Addr() + "/empty"
	if got := p.roundTrip(t, "GET "+target+" HTTP/1.1\r\n\r\n"); len(got) != 0 {
		t.Fatalf("expected empty response, got %q", got)
	}

	body, ok := p.cache.Lookup(target)
	if !ok {
		t.Fatal("empty response was not cached")
	}
	if len(body) != 0 {
		t.Fatalf("cached %q", body)
	}
}

func TestForwardBlocked(t *testing.T) {
	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()

	origin := testutil.StartOrigin(t, ctx, []byte(originResponse))
	p := startProxy(t, Config{}, "127.0.0.1")

	got := p.roundTrip(t, "GET http://"+origin.Addr()+"/ HTTP/1.1\r\n\r\n")
	if string(got) != statusForbidden {
		t.Fatalf("got %q want %q", got, statusForbidden)
	}
	if n := origin.Accepted(); n != 0 {
		t.Fatalf("origin accepted %d connections", n)
	}
	if n := p.cache.Len(); n != 0 {
		t.Fatalf("cache has %d entries", n)
	}
}

func TestForwardBlockedInternationalized(t *testing.T) {
	tests := []struct {
		name    string
		blocked string
		raw     string
	}{
		{"unicode entry", "münchen.de", "GET http://www.münchen.de/ HTTP/1.1\r\n\r\n"},
		{"punycode entry", "xn--mnchen-3ya.de", "GET http://www.MÜNCHEN.de/ HTTP/1.1\r\n\r\n"},
		{"unicode entry punycode request", "münchen.de", "GET http://xn--mnchen-3ya.de/ HTTP/1.1\r\n\r\n"},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			p := startProxy(t, Config{}, tt.blocked)

			if got := p.roundTrip(t, tt.raw); string(got) != statusForbidden {
				t.Fatalf("got %q want %q", got, statusForbidden)
			}
			if got := p.metric(t, "portcullis_blocked_requests_total", kindHTTP); got != 1 {
				t.Fatalf("blocked counter = %v", got)
			}
		})
	}
}

// resetAfter returns an origin handler that reads the request, writes
// partial, waits for proceed or ctx, and then aborts the connection with a
// RST.
func resetAfter(ctx context.Context, partial []byte, proceed <-chan struct{}) func(net.Conn) {
	return func(c net.Conn) {
		buf := make([]byte, 4096)
		if _, err := c.Read(buf); err != nil {
			return
		}
		if len(partial) > 0 {
			if _, err := c.Write(partial); err != nil {
				return
			}
		}
		if proceed != nil {
			select {
			case <-proceed:
			case <-ctx.Done():
			}
		}
		if tc, ok := c.(*net.TCPConn); ok {
			_ = tc.SetLinger(0)
		}
		_ = c.Close()
	}
}

func TestForwardOriginResetBeforeResponse(t *testing.T) {
	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()

	origin := testutil.StartServer(t, ctx, resetAfter(ctx, nil, nil))
	p := startProxy(t, Config{})

	got := p.roundTrip(t, "GET http://"+origin.Addr().String()+"/reset HTTP/1.1\r\n\r\n")
	if string(got) != statusBadGateway {
		t.Fatalf("got %q want %q", got, statusBadGateway)
	}
	if n := p.cache.Len(); n != 0 {
		t.Fatalf("cache has %d entries", n)
	}
}

func TestForwardOriginResetMidResponse(t *testing.T) {
	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()

	partial := []byte("HTTP/1.0 200 OK\r\nContent-Length: 100\r\n\r\npartial")
	proceed := make(chan struct{})
	origin := testutil.StartServer(t, ctx, resetAfter(ctx, partial, proceed))
	p := startProxy(t, Config{})

	c := p.dial(t)
	defer c.Close()

	if _, err := io.WriteString(c, "GET http://"+origin.Addr().String()+"/partial HTTP/1.1\r\n\r\n"); err != nil {
		t.Fatal(err)
	}
	got := make([]byte, len(partial))
	if _, err := io.ReadFull(c, got); err != nil {
		t.Fatal(err)
	}
	if string(got) != string(partial) {
		t.Fatalf("got %q want %q", got, partial)
	}
	close(proceed)

	rest, err := io.ReadAll(c)
	if err != nil {
		t.Fatal(err)
	}
	if len(rest) != 0 {
		t.Fatalf("unexpected bytes after reset: %q", rest)
	}
	if n := p.cache.Len(); n != 0 {
		t.Fatalf("cache has %d entries", n)
	}
}

func TestForwardMaxCacheEntrySize(t *testing.T) {
	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()

	big := originResponse + strings.Repeat("x", 10_000)
	origin := testutil.StartOrigin(t, ctx, []byte(big))
	p := startProxy(t, Config{MaxCacheEntrySize: 1024})

	raw := "GET http://" + origin.Addr() + "/big HTTP/1.1\r\n\r\n"
	for range 2 {
		if got := p.roundTrip(t, raw); string(got) != big {
			t.Fatalf("response truncated to %d bytes", len(got))
		}
	}
	if n := origin.Accepted(); n != 2 {
		t.Fatalf("origin accepted %d connections, want 2", n)
	}
	if n := p.cache.Len(); n != 0 {
		t.Fatalf("cache has %d entries", n)
	}
}
