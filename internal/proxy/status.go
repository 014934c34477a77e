package proxy

import (
	"io"
)

// Status lines written to clients. Nothing else is ever synthesized.
const (
	statusForbidden             = "HTTP/1.1 403 Forbidden\r\n\r\n"
	statusBadGateway            = "HTTP/1.1 502 Bad Gateway\r\n\r\n"
	statusConnectionEstablished = "HTTP/1.1 200 Connection Established\r\n\r\n"
)

// writeStatus writes a canned status line, ignoring errors. It is only used
// on paths that are about to close the client anyway.
func writeStatus(w io.Writer, status string) {
	_, _ = io.WriteString(w, status)
}
