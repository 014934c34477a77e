// Package blocklist holds the set of banned host suffixes consulted on every
// proxied request.
//
// A host is blocked when it equals a listed entry or is a subdomain of one
// (dot-boundary suffix match). Entries live in a radix tree keyed by the
// reversed host labels, so a lookup is a single longest-prefix walk.
package blocklist
