package proxy

import (
	"net"
	"sync"
)

// onceConn closes its underlying connection at most once, so every owner can
// defer Close without coordinating.
type onceConn struct {
	net.Conn
	once sync.Once
	err  error
}

func (c *onceConn) Close() error {
	c.once.Do(func() {
		c.err = c.Conn.Close()
	})
	return c.err
}

// NetConn returns the wrapped connection.
func (c *onceConn) NetConn() net.Conn {
	return c.Conn
}
