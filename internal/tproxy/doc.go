// Package tproxy provides listeners for transparently redirected TCP
// connections and recovers where each connection was originally headed.
//
// On Linux the socket is opened with IP_TRANSPARENT and the original
// destination is read with SO_ORIGINAL_DST, for iptables/nftables REDIRECT
// and TPROXY rules. On FreeBSD (IP_BINDANY) and OpenBSD (SO_BINDANY) the
// firewall preserves the destination as the accepted socket's local address.
//
// Elsewhere Listen and OriginalDst return errors.
package tproxy
