package socks5

import (
	"context"
	"errors"
	"fmt"
	"net"
	"slices"

	txsocks5 "github.com/txthinking/socks5"
)

// DialFunc opens the outbound connection requested by a SOCKS5 client.
type DialFunc func(ctx context.Context, network, address string) (net.Conn, error)

// ServerAccept runs the server half of a CONNECT handshake on conn: method
// negotiation, optional username/password check, request, outbound dial,
// and reply. On success it returns the outbound connection; the caller
// relays bytes and closes both.
func ServerAccept(ctx context.Context, conn net.Conn, auth Auth, dial DialFunc) (net.Conn, error) {
	if err := serverNegotiate(conn, auth); err != nil {
		return nil, err
	}

	req, err := txsocks5.NewRequestFrom(conn)
	if err != nil {
		return nil, fmt.Errorf("read request: %w", err)
	}
	if req.Cmd != txsocks5.CmdConnect {
		_, _ = zeroAddrReply(txsocks5.RepCommandNotSupported, req.Atyp).WriteTo(conn)
		return nil, fmt.Errorf("unsupported command 0x%02x", req.Cmd)
	}

	dst, err := dial(ctx, "tcp", req.Address())
	if err != nil {
		_, _ = zeroAddrReply(txsocks5.RepConnectionRefused, req.Atyp).WriteTo(conn)
		return nil, err
	}

	a, addr, port, err := txsocks5.ParseAddress(dst.LocalAddr().String())
	if err != nil {
		_ = dst.Close()
		return nil, fmt.Errorf("parse local address: %w", err)
	}
	if a == txsocks5.ATYPDomain {
		addr = addr[1:]
	}
	if _, err := txsocks5.NewReply(txsocks5.RepSuccess, a, addr, port).WriteTo(conn); err != nil {
		_ = dst.Close()
		return nil, fmt.Errorf("write reply: %w", err)
	}
	return dst, nil
}

func serverNegotiate(conn net.Conn, auth Auth) error {
	neg, err := txsocks5.NewNegotiationRequestFrom(conn)
	if err != nil {
		return fmt.Errorf("read negotiation: %w", err)
	}

	want := txsocks5.MethodNone
	if auth.Username != "" {
		want = txsocks5.MethodUsernamePassword
	}
	if !slices.Contains(neg.Methods, want) {
		// RFC 1928: 0xFF means no acceptable methods.
		_, _ = txsocks5.NewNegotiationReply(0xff).WriteTo(conn)
		return errors.New("socks5: client offered no acceptable method")
	}
	if _, err := txsocks5.NewNegotiationReply(want).WriteTo(conn); err != nil {
		return fmt.Errorf("write negotiation: %w", err)
	}
	if want == txsocks5.MethodNone {
		return nil
	}

	urq, err := txsocks5.NewUserPassNegotiationRequestFrom(conn)
	if err != nil {
		return fmt.Errorf("read userpass: %w", err)
	}
	if string(urq.Uname) != auth.Username || string(urq.Passwd) != auth.Password {
		_, _ = txsocks5.NewUserPassNegotiationReply(txsocks5.UserPassStatusFailure).WriteTo(conn)
		return ErrAuthFailed
	}
	if _, err := txsocks5.NewUserPassNegotiationReply(txsocks5.UserPassStatusSuccess).WriteTo(conn); err != nil {
		return fmt.Errorf("write userpass: %w", err)
	}
	return nil
}

func zeroAddrReply(rep, atyp byte) *txsocks5.Reply {
	if atyp == txsocks5.ATYPIPv6 {
		return txsocks5.NewReply(rep, txsocks5.ATYPIPv6, []byte(net.IPv6zero), []byte{0x00, 0x00})
	}
	return txsocks5.NewReply(rep, txsocks5.ATYPIPv4, []byte{0x00, 0x00, 0x00, 0x00}, []byte{0x00, 0x00})
}
