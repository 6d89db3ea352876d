package reactor

import (
	"errors"
	"fmt"
	"net"
	"sync"
	"time"
)

var ErrPollerClosed = errors.New("poller closed")

// Poller is the readiness set the reactor waits on. Only the reactor
// goroutine calls Watch, Add, Remove and Wait; Wake may be called from any
// goroutine.
type Poller interface {
	// Watch makes Wait report connections accepted on ln.
	Watch(ln net.Listener) error
	// Add registers c for its current interest.
	Add(c *Conn) error
	// Remove deregisters c. Removing an unregistered Conn is not an error.
	Remove(c *Conn) error
	// Wait blocks until a registered Conn is ready, a connection was
	// accepted, or Wake was called.
	Wait() (ready []*Conn, accepted []net.Conn, err error)
	Wake() error
	Close() error
}

// NewPoller returns the readiness set named by kind: "epoll" or "portable".
func NewPoller(kind string) (Poller, error) {
	switch kind {
	case "", "epoll":
		return newEpollPoller()
	case "portable":
		return NewPortablePoller(), nil
	default:
		return nil, fmt.Errorf("unknown poller %q", kind)
	}
}

// portablePoller detects readiness with one probe goroutine per registered
// connection. A read probe blocks on Peek of the connection's buffered
// reader, so bytes it pulls in stay available to the worker.
type portablePoller struct {
	ready    chan *Conn
	accepted chan net.Conn
	wake     chan struct{}
	done     chan struct{}
	once     sync.Once
}

// NewPortablePoller returns a Poller that works on any platform net.Conn.
func NewPortablePoller() Poller {
	return &portablePoller{
		ready:    make(chan *Conn, 256),
		accepted: make(chan net.Conn, 64),
		wake:     make(chan struct{}, 1),
		done:     make(chan struct{}),
	}
}

func (p *portablePoller) Watch(ln net.Listener) error {
	go func() {
		for {
			nc, err := ln.Accept()
			if err != nil {
				if errors.Is(err, net.ErrClosed) {
					return
				}
				select {
				case <-p.done:
					return
				case <-time.After(10 * time.Millisecond):
					continue
				}
			}
			select {
			case p.accepted <- nc:
				p.Wake()
			case <-p.done:
				nc.Close()
				return
			}
		}
	}()
	return nil
}

func (p *portablePoller) Add(c *Conn) error {
	select {
	case <-p.done:
		return ErrPollerClosed
	default:
	}

	go func() {
		if c.interest == Read {
			// The worker sets its own deadline once dispatched.
			c.nc.SetReadDeadline(time.Time{})
			// Errors surface to the worker on its read.
			c.reader.Peek(1)
		}
		select {
		case p.ready <- c:
		case <-p.done:
		}
	}()
	return nil
}

// Remove is a no-op: every probe reports exactly once.
func (p *portablePoller) Remove(*Conn) error { return nil }

func (p *portablePoller) Wait() ([]*Conn, []net.Conn, error) {
	var (
		ready    []*Conn
		accepted []net.Conn
	)

	select {
	case <-p.done:
		return nil, nil, ErrPollerClosed
	case c := <-p.ready:
		ready = append(ready, c)
	case nc := <-p.accepted:
		accepted = append(accepted, nc)
	case <-p.wake:
	}

	for {
		select {
		case c := <-p.ready:
			ready = append(ready, c)
		case nc := <-p.accepted:
			accepted = append(accepted, nc)
		default:
			return ready, accepted, nil
		}
	}
}

func (p *portablePoller) Wake() error {
	select {
	case p.wake <- struct{}{}:
	default:
	}
	return nil
}

func (p *portablePoller) Close() error {
	p.once.Do(func() { close(p.done) })
	return nil
}
