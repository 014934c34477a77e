package testutil

import (
	"bufio"
	"context"
	"crypto/ed25519"
	"crypto/rand"
	"errors"
	"fmt"
	"io"
	"net"
	"net/http"
	"sync"
	"testing"

	"golang.org/x/crypto/ssh"
	"golang.org/x/sync/errgroup"

	"github.com/die-net/portcullis/internal/socks5"
)

// Relay copies bytes both ways until either side finishes, then closes both.
func Relay(a, b net.Conn) {
	var once sync.Once
	closeBoth := func() {
		once.Do(func() {
			_ = a.Close()
			_ = b.Close()
		})
	}
	g := errgroup.Group{}
	g.Go(func() error {
		defer closeBoth()
		_, err := io.Copy(a, b)
		return err
	})
	g.Go(func() error {
		defer closeBoth()
		_, err := io.Copy(b, a)
		return err
	})
	_ = g.Wait()
}

// StartHTTPConnectProxy starts an upstream HTTP proxy that answers CONNECT.
// If status is not 200 it replies with that status and closes.
func StartHTTPConnectProxy(t *testing.T, ctx context.Context, status int) net.Listener {
	t.Helper()

	return StartServer(t, ctx, func(c net.Conn) {
		br := bufio.NewReader(c)
		req, err := http.ReadRequest(br)
		if err != nil {
			return
		}
		_ = req.Body.Close()

		if req.Method != http.MethodConnect || status != http.StatusOK {
			_, _ = fmt.Fprintf(c, "HTTP/1.1 %d %s\r\n\r\n", status, http.StatusText(status))
			return
		}

		var d net.Dialer
		dst, err := d.DialContext(ctx, "tcp", req.Host)
		if err != nil {
			_, _ = io.WriteString(c, "HTTP/1.1 502 Bad Gateway\r\n\r\n")
			return
		}
		_, _ = io.WriteString(c, "HTTP/1.1 200 Connection Established\r\n\r\n")
		Relay(c, dst)
	})
}

// StartSOCKS5Server starts a SOCKS5 upstream that requires auth when
// auth.Username is set.
func StartSOCKS5Server(t *testing.T, ctx context.Context, auth socks5.Auth) net.Listener {
	t.Helper()

	var d net.Dialer
	return StartServer(t, ctx, func(c net.Conn) {
		dst, err := socks5.ServerAccept(ctx, c, auth, d.DialContext)
		if err != nil {
			return
		}
		Relay(c, dst)
	})
}

type directTCPIPPayload struct {
	Host       string
	Port       uint32
	OriginHost string
	OriginPort uint32
}

// StartSSHServer starts an SSH server with password auth that serves
// "direct-tcpip" channels, like `ssh -D` expects.
func StartSSHServer(t *testing.T, ctx context.Context, username, password string) net.Listener {
	t.Helper()

	_, priv, err := ed25519.GenerateKey(rand.Reader)
	if err != nil {
		t.Fatal(err)
	}
	signer, err := ssh.NewSignerFromKey(priv)
	if err != nil {
		t.Fatal(err)
	}

	cfg := &ssh.ServerConfig{
		PasswordCallback: func(meta ssh.ConnMetadata, pass []byte) (*ssh.Permissions, error) {
			if meta.User() != username || string(pass) != password {
				return nil, errors.New("invalid credentials")
			}
			return &ssh.Permissions{}, nil
		},
	}
	cfg.AddHostKey(signer)

	return StartServer(t, ctx, func(c net.Conn) {
		sc, chans, reqs, err := ssh.NewServerConn(c, cfg)
		if err != nil {
			return
		}
		defer sc.Close()
		go ssh.DiscardRequests(reqs)

		var wg sync.WaitGroup
		defer wg.Wait()

		for newChan := range chans {
			if newChan.ChannelType() != "direct-tcpip" {
				_ = newChan.Reject(ssh.UnknownChannelType, "unsupported channel")
				continue
			}

			var p directTCPIPPayload
			if err := ssh.Unmarshal(newChan.ExtraData(), &p); err != nil {
				_ = newChan.Reject(ssh.Prohibited, "bad direct-tcpip payload")
				continue
			}

			var d net.Dialer
			dst, err := d.DialContext(ctx, "tcp", net.JoinHostPort(p.Host, fmt.Sprint(p.Port)))
			if err != nil {
				_ = newChan.Reject(ssh.ConnectionFailed, err.Error())
				continue
			}

			ch, chReqs, err := newChan.Accept()
			if err != nil {
				_ = dst.Close()
				continue
			}
			go ssh.DiscardRequests(chReqs)

			wg.Go(func() {
				defer ch.Close()
				defer dst.Close()

				g := errgroup.Group{}
				g.Go(func() error {
					_, err := io.Copy(dst, ch)
					_ = dst.(*net.TCPConn).CloseWrite()
					return err
				})
				g.Go(func() error {
					_, err := io.Copy(ch, dst)
					_ = ch.CloseWrite()
					return err
				})
				_ = g.Wait()
			})
		}
	})
}
