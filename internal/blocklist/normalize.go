package blocklist

import (
	"net"
	"strings"

	"golang.org/x/net/idna"
)

// NormalizeHost reduces a user-supplied host, URL, or host:port to the bare
// lowercased ASCII hostname stored in the blocklist. An http:// or https://
// prefix, any path, query, or port, IPv6 brackets, and a trailing root dot
// are removed, and internationalized names are converted to punycode the
// same way request hosts are. It returns "" if nothing usable remains.
func NormalizeHost(s string) string {
	s = strings.ToLower(strings.TrimSpace(s))

	for _, scheme := range []string{"http://", "https://"} {
		if rest, ok := strings.CutPrefix(s, scheme); ok {
			s = rest
			break
		}
	}

	if i := strings.IndexAny(s, "/?#"); i >= 0 {
		s = s[:i]
	}
	if i := strings.LastIndexByte(s, '@'); i >= 0 {
		s = s[i+1:]
	}

	if h, _, err := net.SplitHostPort(s); err == nil {
		s = h
	} else {
		s = strings.TrimSuffix(strings.TrimPrefix(s, "["), "]")
	}

	s = strings.TrimSuffix(s, ".")
	if s == "" || net.ParseIP(s) != nil {
		return s
	}
	if ascii, err := idna.Punycode.ToASCII(s); err == nil {
		return ascii
	}
	return s
}
