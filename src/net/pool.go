package net

import (
	"bufio"
	"net"
	"sync"

	"github.com/ugorji/go/codec"
)

// outConn is an outgoing connection whose handshake has been sent.
type outConn struct {
	target string
	conn   net.Conn
	w      *bufio.Writer
	dec    *codec.Decoder
	enc    *codec.Encoder
}

// Release closes the underlying connection
func (c *outConn) Release() error {
	return c.conn.Close()
}

// connPool keeps up to max idle connections per target.
type connPool struct {
	sync.Mutex
	conns  map[string][]*outConn
	max    int
	closed bool
}

func newConnPool(max int) *connPool {
	return &connPool{
		conns: make(map[string][]*outConn),
		max:   max,
	}
}

// take removes and returns an idle connection to target, or nil.
func (p *connPool) take(target string) *outConn {
	p.Lock()
	defer p.Unlock()

	idle := p.conns[target]
	if len(idle) == 0 {
		return nil
	}

	last := len(idle) - 1
	c := idle[last]
	idle[last] = nil
	p.conns[target] = idle[:last]
	return c
}

// put makes c available again, or closes it if the pool is full or closed.
func (p *connPool) put(c *outConn) {
	p.Lock()
	defer p.Unlock()

	idle := p.conns[c.target]
	if p.closed || len(idle) >= p.max {
		c.Release()
		return
	}
	p.conns[c.target] = append(idle, c)
}

// closeAll closes every idle connection; later puts close their connection.
func (p *connPool) closeAll() {
	p.Lock()
	defer p.Unlock()

	p.closed = true
	for target, idle := range p.conns {
		for _, c := range idle {
			c.Release()
		}
		delete(p.conns, target)
	}
}

func (p *connPool) idle(target string) int {
	p.Lock()
	defer p.Unlock()
	return len(p.conns[target])
}
