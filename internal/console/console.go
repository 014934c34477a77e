// Package console reads operator commands that change the blocklist and
// the response cache while the proxy runs.
package console

import (
	"bufio"
	"context"
	"fmt"
	"io"
	"strings"

	"github.com/rs/zerolog"

	"github.com/die-net/portcullis/internal/blocklist"
)

// Blocklist is the part of the blocklist the console edits.
type Blocklist interface {
	Add(suffix string) bool
	Remove(suffix string) bool
	List() []string
}

// Cache is the part of the response cache the console can flush.
type Cache interface {
	Purge() int
}

// Console executes one command per input line and writes replies to Out.
type Console struct {
	Blocklist Blocklist
	Cache     Cache
	Out       io.Writer
	Logger    zerolog.Logger
}

const helpText = `commands:
  block <host>    block host and its subdomains
  unblock <host>  remove a blocked host
  list            show blocked hosts
  flush           drop every cached response
  help            show this text
`

// Run executes commands read from r until r is exhausted or ctx is done.
// Reads from r are not interruptible; ctx is checked between lines.
func (c *Console) Run(ctx context.Context, r io.Reader) error {
	sc := bufio.NewScanner(r)
	for sc.Scan() {
		if ctx.Err() != nil {
			return nil
		}
		c.Exec(sc.Text())
	}
	if err := sc.Err(); err != nil {
		return fmt.Errorf("console: %w", err)
	}
	return nil
}

// Exec runs a single command line. Blank lines are ignored; unknown commands
// are reported and otherwise ignored.
func (c *Console) Exec(line string) {
	fields := strings.Fields(line)
	if len(fields) == 0 {
		return
	}

	cmd, args := strings.ToLower(fields[0]), fields[1:]
	switch cmd {
	case "block", "unblock":
		if len(args) != 1 {
			c.printf("usage: %s <host>\n", cmd)
			return
		}
		host := blocklist.NormalizeHost(args[0])
		if host == "" {
			c.printf("invalid host %q\n", args[0])
			return
		}
		c.setBlocked(cmd == "block", host)
	case "list":
		for _, host := range c.Blocklist.List() {
			c.printf("%s\n", host)
		}
	case "flush":
		n := c.Cache.Purge()
		c.Logger.Info().Int("entries", n).Msg("cache flushed")
		c.printf("flushed %d cached responses\n", n)
	case "help", "?":
		c.printf("%s", helpText)
	default:
		c.printf("unknown command %q, try help\n", cmd)
	}
}

func (c *Console) setBlocked(block bool, host string) {
	if block {
		if c.Blocklist.Add(host) {
			c.Logger.Info().Str("host", host).Msg("host blocked")
			c.printf("blocked %s\n", host)
		} else {
			c.printf("%s already blocked\n", host)
		}
		return
	}

	if c.Blocklist.Remove(host) {
		c.Logger.Info().Str("host", host).Msg("host unblocked")
		c.printf("unblocked %s\n", host)
	} else {
		c.printf("%s was not blocked\n", host)
	}
}

func (c *Console) printf(format string, args ...any) {
	if c.Out == nil {
		return
	}
	_, _ = fmt.Fprintf(c.Out, format, args...)
}
