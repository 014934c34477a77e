// Package request parses the head of a proxied HTTP request into the target
// the proxy has to reach, and rewrites it for the origin.
package request

import (
	"bytes"
	"errors"
	"fmt"
	"net"
	"net/url"
	"strconv"
	"strings"

	"golang.org/x/net/idna"
)

// ErrMalformed is returned for request heads the proxy cannot route.
var ErrMalformed = errors.New("malformed request")

// DefaultPort is used when a plain HTTP target names no port.
const DefaultPort = "80"

// Request is the parsed first line of a client request.
type Request struct {
	Method string
	// Target is the request-target exactly as the client sent it.
	Target string
	Proto  string

	Host string
	Port string
	// Path is the origin-form target ("/a?b=1"). Empty for CONNECT.
	Path string

	// CacheKey identifies the response in the cache. It is Target for
	// absolute targets and the reconstructed absolute URL for origin-form
	// targets.
	CacheKey string
}

// IsConnect reports whether r asks for a tunnel.
func (r *Request) IsConnect() bool {
	return r.Method == "CONNECT"
}

// Addr returns the origin address as host:port.
func (r *Request) Addr() string {
	return net.JoinHostPort(r.Host, r.Port)
}

// Parse extracts the routing target from a raw request head. Only the first
// line is required; the Host header is consulted for origin-form targets.
func Parse(head []byte) (*Request, error) {
	line, rest, _ := bytes.Cut(head, []byte("\n"))
	fields := strings.Fields(string(bytes.TrimSuffix(line, []byte("\r"))))
	if len(fields) != 3 {
		return nil, fmt.Errorf("%w: request line has %d fields", ErrMalformed, len(fields))
	}

	r := &Request{Method: fields[0], Target: fields[1], Proto: fields[2]}
	if !strings.HasPrefix(r.Proto, "HTTP/") {
		return nil, fmt.Errorf("%w: bad protocol %q", ErrMalformed, r.Proto)
	}

	if r.IsConnect() {
		if err := r.parseAuthority(r.Target, ""); err != nil {
			return nil, err
		}
		return r, nil
	}

	target := r.Target
	if strings.HasPrefix(target, "/") {
		host := headerValue(rest, "Host")
		if host == "" {
			return nil, fmt.Errorf("%w: origin-form target without Host header", ErrMalformed)
		}
		target = "http://" + host + target
		r.CacheKey = target
	} else {
		if !strings.Contains(target, "://") {
			target = "http://" + target
		}
		r.CacheKey = r.Target
	}

	u, err := url.Parse(target)
	if err != nil {
		return nil, fmt.Errorf("%w: %w", ErrMalformed, err)
	}
	if err := r.parseAuthority(u.Host, DefaultPort); err != nil {
		return nil, err
	}
	r.Path = u.RequestURI()

	return r, nil
}

// parseAuthority fills Host and Port from host[:port]. If defaultPort is
// empty the port is mandatory.
func (r *Request) parseAuthority(authority, defaultPort string) error {
	host, port, err := net.SplitHostPort(authority)
	if err != nil {
		if defaultPort == "" {
			return fmt.Errorf("%w: %w", ErrMalformed, err)
		}
		host = strings.TrimSuffix(strings.TrimPrefix(authority, "["), "]")
		port = defaultPort
	}
	if port == "" && defaultPort != "" {
		port = defaultPort
	}

	if n, err := strconv.Atoi(port); err != nil || n < 1 || n > 65535 {
		return fmt.Errorf("%w: bad port %q", ErrMalformed, port)
	}

	host, err = normalizeHost(host)
	if err != nil {
		return err
	}

	r.Host = host
	r.Port = port
	return nil
}

func normalizeHost(host string) (string, error) {
	host = strings.TrimSuffix(strings.ToLower(host), ".")
	if host == "" {
		return "", fmt.Errorf("%w: missing host", ErrMalformed)
	}
	if net.ParseIP(host) != nil {
		return host, nil
	}
	ascii, err := idna.Punycode.ToASCII(host)
	if err != nil {
		return "", fmt.Errorf("%w: host %q: %w", ErrMalformed, host, err)
	}
	return ascii, nil
}

// headerValue returns the first value of the named header in a raw header
// block, or "" if absent. Parsing stops at the blank line ending the head.
func headerValue(headers []byte, name string) string {
	for len(headers) > 0 {
		var line []byte
		line, headers, _ = bytes.Cut(headers, []byte("\n"))
		line = bytes.TrimSuffix(line, []byte("\r"))
		if len(line) == 0 {
			break
		}
		k, v, ok := bytes.Cut(line, []byte(":"))
		if ok && strings.EqualFold(string(bytes.TrimSpace(k)), name) {
			return string(bytes.TrimSpace(v))
		}
	}
	return ""
}

// RewriteHead returns head with its request line replaced by the
// origin-form "METHOD PATH PROTO". The original line terminator and every
// byte after the first line are preserved.
func RewriteHead(head []byte, r *Request) []byte {
	line, rest, found := bytes.Cut(head, []byte("\n"))

	out := make([]byte, 0, len(head))
	out = append(out, r.Method...)
	out = append(out, ' ')
	out = append(out, r.Path...)
	out = append(out, ' ')
	out = append(out, r.Proto...)
	if bytes.HasSuffix(line, []byte("\r")) {
		out = append(out, '\r')
	}
	if found {
		out = append(out, '\n')
		out = append(out, rest...)
	}
	return out
}

// Body returns whatever followed the blank line ending the head, typically
// bytes a client pipelined behind a CONNECT request.
func Body(head []byte) []byte {
	if _, after, ok := bytes.Cut(head, []byte("\r\n\r\n")); ok {
		return after
	}
	if _, after, ok := bytes.Cut(head, []byte("\n\n")); ok {
		return after
	}
	return nil
}
