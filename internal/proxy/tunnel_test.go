package proxy

import (
	"bufio"
	"bytes"
	"context"
	"fmt"
	"io"
	"net"
	"testing"
	"time"

	"github.com/die-net/portcullis/internal/testutil"
)

// connect sends a CONNECT for addr followed by extra, and returns the status
// head the proxy answered with.
func connect(t *testing.T, c net.Conn, addr, extra string) string {
	t.Helper()

	if _, err := fmt.Fprintf(c, "CONNECT %s HTTP/1.1\r\nHost: %s\r\n\r\n%s", addr, addr, extra); err != nil {
		t.Fatal(err)
	}

	var head bytes.Buffer
	b := make([]byte, 1)
	for !bytes.HasSuffix(head.Bytes(), []byte("\r\n\r\n")) {
		if _, err := c.Read(b); err != nil {
			t.Fatalf("reading status after %q: %v", head.String(), err)
		}
		head.WriteByte(b[0])
	}
	return head.String()
}

func TestTunnelBlocked(t *testing.T) {
	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()

	origin := testutil.StartOrigin(t, ctx, nil)
	_, port, _ := net.SplitHostPort(origin.Addr())

	tests := []struct {
		name    string
		blocked string
		target  string
	}{
		{name: "exact", blocked: "127.0.0.1", target: origin.Addr()},
		{name: "suffix", blocked: "evil.com", target: net.JoinHostPort("www.EVIL.com", port)},
		{name: "unicode entry", blocked: "münchen.de", target: net.JoinHostPort("münchen.de", port)},
		{name: "punycode entry", blocked: "xn--mnchen-3ya.de", target: net.JoinHostPort("www.münchen.de", port)},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			p := startProxy(t, Config{}, tt.blocked)

			got := p.roundTrip(t, "CONNECT "+tt.target+" HTTP/1.1\r\n\r\n")
			if string(got) != statusForbidden {
				t.Fatalf("got %q want %q", got, statusForbidden)
			}
			if got := p.metric(t, "portcullis_blocked_requests_total", kindConnect); got != 1 {
				t.Fatalf("blocked counter = %v", got)
			}
		})
	}

	if n := origin.Accepted(); n != 0 {
		t.Fatalf("origin accepted %d connections", n)
	}
}

func TestTunnelUnreachable(t *testing.T) {
	p := startProxy(t, Config{})

	got := p.roundTrip(t, "CONNECT "+testutil.ClosedAddr(t)+" HTTP/1.1\r\n\r\n")
	if string(got) != statusBadGateway {
		t.Fatalf("got %q want %q", got, statusBadGateway)
	}
	if got := p.metric(t, "portcullis_errors_total", "origin"); got != 1 {
		t.Fatalf("origin errors = %v", got)
	}
}

func TestTunnelBinaryFidelity(t *testing.T) {
	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()

	echoLn := testutil.StartEchoTCPServer(t, ctx)
	p := startProxy(t, Config{BufferSize: 512})

	c := p.dial(t)
	defer c.Close()

	if status := connect(t, c, echoLn.Addr().String(), ""); status != statusConnectionEstablished {
		t.Fatalf("unexpected status %q", status)
	}

	// Every byte value, several buffers long, so reads and writes split it.
	payload := make([]byte, 64*1024)
	for i := range payload {
		payload[i] = byte(i * 7)
	}

	errc := make(chan error, 1)
	go func() {
		_, err := c.Write(payload)
		errc <- err
	}()

	got := make([]byte, len(payload))
	if _, err := io.ReadFull(c, got); err != nil {
		t.Fatal(err)
	}
	if err := <-errc; err != nil {
		t.Fatal(err)
	}
	if !bytes.Equal(got, payload) {
		t.Fatal("payload corrupted in tunnel")
	}
}

func TestTunnelPipelinedBytes(t *testing.T) {
	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()

	echoLn := testutil.StartEchoTCPServer(t, ctx)
	p := startProxy(t, Config{})

	c := p.dial(t)
	defer c.Close()

	if status := connect(t, c, echoLn.Addr().String(), "early"); status != statusConnectionEstablished {
		t.Fatalf("unexpected status %q", status)
	}

	got := make([]byte, len("early"))
	if _, err := io.ReadFull(c, got); err != nil {
		t.Fatal(err)
	}
	if string(got) != "early" {
		t.Fatalf("got %q", got)
	}
	testutil.AssertEcho(t, c, c, []byte("later"))
}

func TestTunnelOriginCloseEndsTunnel(t *testing.T) {
	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()

	originLn, _ := testutil.StartSingleAcceptServer(t, ctx, func(c net.Conn) {
		_, _ = io.WriteString(c, "bye")
	})
	p := startProxy(t, Config{})

	c := p.dial(t)
	defer c.Close()

	if status := connect(t, c, originLn.Addr().String(), ""); status != statusConnectionEstablished {
		t.Fatalf("unexpected status %q", status)
	}
	rest, err := io.ReadAll(bufio.NewReader(c))
	if err != nil {
		t.Fatal(err)
	}
	if string(rest) != "bye" {
		t.Fatalf("got %q", rest)
	}
}

func TestTunnelClientCloseEndsTunnel(t *testing.T) {
	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()

	originDone := make(chan []byte, 1)
	originLn, _ := testutil.StartSingleAcceptServer(t, ctx, func(c net.Conn) {
		b, _ := io.ReadAll(c)
		originDone <- b
	})
	p := startProxy(t, Config{})

	c := p.dial(t)
	if status := connect(t, c, originLn.Addr().String(), ""); status != statusConnectionEstablished {
		t.Fatalf("unexpected status %q", status)
	}
	if _, err := io.WriteString(c, "last words"); err != nil {
		t.Fatal(err)
	}
	_ = c.Close()

	select {
	case b := <-originDone:
		if string(b) != "last words" {
			t.Fatalf("origin got %q", b)
		}
	case <-ctx.Done():
		t.Fatal("origin connection was never closed")
	}
}
