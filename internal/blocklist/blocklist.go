package blocklist

import (
	"slices"
	"strings"
	"sync"

	"github.com/armon/go-radix"
)

// Blocklist is a set of banned host suffixes, safe for concurrent use.
//
// Readers share a read lock; Add and Remove are mutually exclusive with
// readers and with each other.
type Blocklist struct {
	mu   sync.RWMutex
	tree *radix.Tree
}

// New returns a Blocklist seeded with hosts. Each host is normalized with
// NormalizeHost; empty results are skipped.
func New(hosts ...string) *Blocklist {
	b := &Blocklist{tree: radix.New()}
	for _, h := range hosts {
		b.Add(h)
	}
	return b
}

// IsBlocked reports whether host equals a listed entry or ends with
// "." + entry. A port, if present, is ignored.
func (b *Blocklist) IsBlocked(host string) bool {
	host = NormalizeHost(host)
	if host == "" {
		return false
	}
	key := reverseLabels(host)

	b.mu.RLock()
	defer b.mu.RUnlock()

	_, _, ok := b.tree.LongestPrefix(key)
	return ok
}

// Add inserts suffix and reports whether it was not already present.
func (b *Blocklist) Add(suffix string) bool {
	suffix = NormalizeHost(suffix)
	if suffix == "" {
		return false
	}

	b.mu.Lock()
	defer b.mu.Unlock()

	_, updated := b.tree.Insert(reverseLabels(suffix), suffix)
	return !updated
}

// Remove deletes suffix and reports whether it was present.
func (b *Blocklist) Remove(suffix string) bool {
	suffix = NormalizeHost(suffix)
	if suffix == "" {
		return false
	}

	b.mu.Lock()
	defer b.mu.Unlock()

	_, ok := b.tree.Delete(reverseLabels(suffix))
	return ok
}

// List returns the current entries in lexical order.
func (b *Blocklist) List() []string {
	b.mu.RLock()
	out := make([]string, 0, b.tree.Len())
	b.tree.Walk(func(_ string, v any) bool {
		out = append(out, v.(string))
		return false
	})
	b.mu.RUnlock()

	slices.Sort(out)
	return out
}

// Len returns the number of entries.
func (b *Blocklist) Len() int {
	b.mu.RLock()
	defer b.mu.RUnlock()
	return b.tree.Len()
}

// reverseLabels turns "www.evil.com" into "com.evil.www.". The trailing dot
// keeps every stored key aligned on a label boundary, so "com.evil." is a
// prefix of "com.evil.www." but not of "com.notevil.".
func reverseLabels(host string) string {
	labels := strings.Split(host, ".")
	slices.Reverse(labels)
	return strings.Join(labels, ".") + "."
}
