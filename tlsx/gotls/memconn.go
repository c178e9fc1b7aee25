package gotls

import (
	"bytes"
	"io"
	"net"
	"sync"
	"time"
)

// memConn is the in-memory net.Conn the tls.Conn runs over. Its read
// side is fed by WriteCiphertext and its write side drained by
// ReadCiphertext, so the session's network byte flow is entirely
// buffer-to-buffer.
type memConn struct {
	mu     sync.Mutex
	rcond  *sync.Cond
	in     bytes.Buffer // ciphertext from the network
	out    bytes.Buffer // ciphertext for the network
	inCap  int
	closed bool
}

func newMemConn(inCap int) *memConn {
	c := &memConn{inCap: inCap}
	c.rcond = sync.NewCond(&c.mu)
	return c
}

// feed queues inbound ciphertext. It reports false on capacity overflow
// without consuming any input.
func (c *memConn) feed(p []byte) (bool, error) {
	c.mu.Lock()
	defer c.mu.Unlock()
	if c.closed {
		return false, net.ErrClosed
	}
	if c.in.Len()+len(p) > c.inCap {
		return false, nil
	}
	c.in.Write(p)
	c.rcond.Broadcast()
	return true, nil
}

// takeOut drains the outbound ciphertext, returning nil when empty.
func (c *memConn) takeOut() []byte {
	c.mu.Lock()
	defer c.mu.Unlock()
	if c.out.Len() == 0 {
		return nil
	}
	p := make([]byte, c.out.Len())
	c.out.Read(p)
	return p
}

func (c *memConn) outLen() int {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.out.Len()
}

// Read blocks until inbound ciphertext is available or the conn closes.
// Only the tls.Conn's internal goroutines ever block here.
func (c *memConn) Read(p []byte) (int, error) {
	c.mu.Lock()
	defer c.mu.Unlock()
	for c.in.Len() == 0 && !c.closed {
		c.rcond.Wait()
	}
	if c.in.Len() == 0 {
		return 0, io.EOF
	}
	return c.in.Read(p)
}

func (c *memConn) Write(p []byte) (int, error) {
	c.mu.Lock()
	defer c.mu.Unlock()
	if c.closed {
		return 0, net.ErrClosed
	}
	return c.out.Write(p)
}

func (c *memConn) Close() error {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.closed = true
	c.rcond.Broadcast()
	return nil
}

func (c *memConn) LocalAddr() net.Addr  { return memAddr{} }
func (c *memConn) RemoteAddr() net.Addr { return memAddr{} }

func (c *memConn) SetDeadline(time.Time) error      { return nil }
func (c *memConn) SetReadDeadline(time.Time) error  { return nil }
func (c *memConn) SetWriteDeadline(time.Time) error { return nil }

type memAddr struct{}

func (memAddr) Network() string { return "mem" }
func (memAddr) String() string  { return "mem" }
