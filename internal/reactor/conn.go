package reactor

import (
	"bufio"
	"net"
	"sync/atomic"
)

// Interest is the readiness a connection is waiting for.
type Interest int

const (
	Read Interest = iota
	Write
)

func (i Interest) String() string {
	if i == Write {
		return "write"
	}
	return "read"
}

// Conn is the per-connection state owned by the reactor while registered
// and by exactly one worker while dispatched.
type Conn struct {
	id     uint64
	nc     net.Conn
	fd     int
	reader *bufio.Reader

	pending  []byte
	interest Interest

	closed atomic.Bool

	r *Reactor
}

func newConn(id uint64, nc net.Conn, bufSize int, r *Reactor) *Conn {
	return &Conn{
		id:       id,
		nc:       nc,
		fd:       -1,
		reader:   bufio.NewReaderSize(nc, bufSize),
		interest: Read,
		r:        r,
	}
}

func (c *Conn) ID() uint64             { return c.id }
func (c *Conn) NetConn() net.Conn      { return c.nc }
func (c *Conn) Reader() *bufio.Reader  { return c.reader }
func (c *Conn) Interest() Interest     { return c.interest }
func (c *Conn) RemoteAddr() net.Addr   { return c.nc.RemoteAddr() }
func (c *Conn) SetInterest(i Interest) { c.interest = i }

// SetPending stores the encoded response to be written on the next write
// dispatch.
func (c *Conn) SetPending(b []byte) { c.pending = b }

// TakePending returns and clears the pending response.
func (c *Conn) TakePending() []byte {
	b := c.pending
	c.pending = nil
	return b
}

// Closed reports whether the connection has been closed by either side.
func (c *Conn) Closed() bool { return c.closed.Load() }

// Close closes the underlying connection. The reactor reclaims the Conn the
// next time it is handed back.
func (c *Conn) Close() error {
	if c.closed.Swap(true) {
		return nil
	}
	return c.nc.Close()
}

// Done returns the connection to the reactor, which re-registers it for its
// current interest or reclaims it if closed. The caller must not touch the
// Conn afterwards.
func (c *Conn) Done() {
	if c.r != nil {
		c.r.resume(c)
	}
}
