// Package proxy implements the portcullis forward proxy: the connection
// dispatcher, the plain HTTP forwarder with response caching, and the CONNECT
// tunnel.
//
// It also holds the shared connection plumbing: the listener with socket
// options, the bidirectional relay, and pooled read buffers.
package proxy
