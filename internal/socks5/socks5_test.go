package socks5

import (
	"context"
	"errors"
	"net"
	"testing"

	"golang.org/x/sync/errgroup"
)

func TestClientDialToServer(t *testing.T) {
	tests := []struct {
		name string
		auth Auth
	}{
		{name: "no_auth"},
		{name: "user_pass", auth: Auth{Username: "user", Password: "pass"}},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			clientConn, serverConn := net.Pipe()
			defer clientConn.Close()
			defer serverConn.Close()

			var dialed string
			g := errgroup.Group{}
			g.Go(func() error {
				dst, err := ServerAccept(context.Background(), serverConn, tt.auth, func(_ context.Context, _, address string) (net.Conn, error) {
					dialed = address
					return fakeConn{local: &net.TCPAddr{IP: net.IPv4(127, 0, 0, 1), Port: 12345}}, nil
				})
				if err != nil {
					return err
				}
				return dst.Close()
			})

			if err := ClientDial(clientConn, tt.auth, "example.com:80"); err != nil {
				t.Fatal(err)
			}
			if err := g.Wait(); err != nil {
				t.Fatal(err)
			}
			if dialed != "example.com:80" {
				t.Fatalf("server dialed %q", dialed)
			}
		})
	}
}

func TestClientDialRefused(t *testing.T) {
	clientConn, serverConn := net.Pipe()
	defer clientConn.Close()
	defer serverConn.Close()

	go func() {
		_, _ = ServerAccept(context.Background(), serverConn, Auth{}, func(context.Context, string, string) (net.Conn, error) {
			return nil, errors.New("refused")
		})
	}()

	err := ClientDial(clientConn, Auth{}, "127.0.0.1:1")
	var re *ReplyError
	if !errors.As(err, &re) {
		t.Fatalf("expected ReplyError, got %v", err)
	}
	if re.Error() != "socks5 connect failed: connection refused" {
		t.Fatalf("unexpected message %q", re.Error())
	}
}

func TestClientDialBadPassword(t *testing.T) {
	clientConn, serverConn := net.Pipe()
	defer clientConn.Close()
	defer serverConn.Close()

	go func() {
		_, _ = ServerAccept(context.Background(), serverConn, Auth{Username: "user", Password: "pass"}, nil)
	}()

	err := ClientDial(clientConn, Auth{Username: "user", Password: "wrong"}, "127.0.0.1:1")
	if !errors.Is(err, ErrAuthFailed) {
		t.Fatalf("expected ErrAuthFailed, got %v", err)
	}
}

func TestClientDialAuthRequired(t *testing.T) {
	clientConn, serverConn := net.Pipe()
	defer clientConn.Close()
	defer serverConn.Close()

	go func() {
		_, _ = ServerAccept(context.Background(), serverConn, Auth{Username: "user", Password: "pass"}, nil)
	}()

	if err := ClientDial(clientConn, Auth{}, "127.0.0.1:1"); err == nil {
		t.Fatal("expected error")
	}
}

type fakeConn struct {
	net.Conn
	local net.Addr
}

func (c fakeConn) LocalAddr() net.Addr { return c.local }
func (c fakeConn) Close() error        { return nil }
