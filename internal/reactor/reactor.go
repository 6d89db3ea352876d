// Package reactor owns the set of client connections. A single goroutine
// waits for readiness and hands each ready connection to a Dispatcher; it
// never runs request logic itself.
//
// A connection is removed from the readiness set before it is dispatched
// and only re-added once the worker hands it back with Done, so no two
// workers ever hold the same connection.
package reactor

import (
	"context"
	"errors"
	"log/slog"
	"net"
	"sync"
	"sync/atomic"
)

const defaultBufferSize = 4096

// Dispatcher runs one request-response step for a ready connection and
// calls c.Done when finished.
type Dispatcher interface {
	Dispatch(c *Conn)
}

// Options tune a Reactor. Zero values pick defaults.
type Options struct {
	// BufferSize is the size of each connection's read buffer.
	BufferSize int
	// OnClose runs on the reactor goroutine when a connection is reclaimed.
	OnClose func(c *Conn)
	Logger  *slog.Logger
}

type Reactor struct {
	ln         net.Listener
	poller     Poller
	dispatcher Dispatcher
	opts       Options
	logger     *slog.Logger

	// conns is only touched by the loop goroutine.
	conns  map[uint64]*Conn
	nextID atomic.Uint64
	active atomic.Int64
	closed atomic.Bool

	mu      sync.Mutex
	resumed []*Conn
}

func New(ln net.Listener, poller Poller, dispatcher Dispatcher, opts Options) *Reactor {
	if opts.BufferSize <= 0 {
		opts.BufferSize = defaultBufferSize
	}
	logger := opts.Logger
	if logger == nil {
		logger = slog.Default()
	}
	return &Reactor{
		ln:         ln,
		poller:     poller,
		dispatcher: dispatcher,
		opts:       opts,
		logger:     logger,
		conns:      make(map[uint64]*Conn),
	}
}

// Addr returns the listening address.
func (r *Reactor) Addr() net.Addr { return r.ln.Addr() }

// Connections returns the number of open connections.
func (r *Reactor) Connections() int { return int(r.active.Load()) }

// Run is the event loop. It returns when ctx is canceled, after closing the
// listener and every connection.
func (r *Reactor) Run(ctx context.Context) error {
	if err := r.poller.Watch(r.ln); err != nil {
		return err
	}

	stop := context.AfterFunc(ctx, func() { r.poller.Wake() })
	defer stop()
	defer r.shutdown()

	r.logger.Info("Reactor started", slog.String("address", r.ln.Addr().String()))

	for {
		if ctx.Err() != nil {
			return nil
		}

		r.reregister()

		ready, accepted, err := r.poller.Wait()
		if err != nil {
			if errors.Is(err, ErrPollerClosed) {
				return nil
			}
			return err
		}

		for _, nc := range accepted {
			r.accept(nc)
		}
		for _, c := range ready {
			if err := r.poller.Remove(c); err != nil {
				r.logger.Warn("Failed to deregister connection",
					slog.Uint64("conn", c.id),
					slog.String("error", err.Error()))
			}
			r.dispatcher.Dispatch(c)
		}
	}
}

func (r *Reactor) accept(nc net.Conn) {
	c := newConn(r.nextID.Add(1), nc, r.opts.BufferSize, r)
	r.conns[c.id] = c
	r.active.Add(1)

	r.logger.Debug("Connection accepted",
		slog.Uint64("conn", c.id),
		slog.String("remote", nc.RemoteAddr().String()))

	if err := r.poller.Add(c); err != nil {
		r.logger.Error("Failed to register connection",
			slog.Uint64("conn", c.id),
			slog.String("error", err.Error()))
		c.Close()
		r.reclaim(c)
	}
}

// resume is called by workers through Conn.Done.
func (r *Reactor) resume(c *Conn) {
	if r.closed.Load() {
		c.Close()
		return
	}
	r.mu.Lock()
	r.resumed = append(r.resumed, c)
	r.mu.Unlock()
	r.poller.Wake()
}

func (r *Reactor) reregister() {
	r.mu.Lock()
	batch := r.resumed
	r.resumed = nil
	r.mu.Unlock()

	for _, c := range batch {
		if c.Closed() {
			r.reclaim(c)
			continue
		}
		// Bytes already buffered would never trigger readiness.
		if c.interest == Read && c.reader.Buffered() > 0 {
			r.dispatcher.Dispatch(c)
			continue
		}
		if err := r.poller.Add(c); err != nil {
			r.logger.Error("Failed to re-register connection",
				slog.Uint64("conn", c.id),
				slog.String("error", err.Error()))
			c.Close()
			r.reclaim(c)
		}
	}
}

func (r *Reactor) reclaim(c *Conn) {
	if _, ok := r.conns[c.id]; !ok {
		return
	}
	delete(r.conns, c.id)
	r.active.Add(-1)
	r.poller.Remove(c)

	if r.opts.OnClose != nil {
		r.opts.OnClose(c)
	}
	r.logger.Debug("Connection closed", slog.Uint64("conn", c.id))
}

func (r *Reactor) shutdown() {
	r.closed.Store(true)
	r.ln.Close()
	for _, c := range r.conns {
		c.Close()
		r.reclaim(c)
	}
	r.poller.Close()
	r.logger.Info("Reactor stopped")
}
