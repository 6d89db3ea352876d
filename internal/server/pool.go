package server

import (
	"log/slog"
	"sync"

	"github.com/princekumarofficial/winsome/internal/reactor"
)

// ConnHandler runs one request-response step on a dispatched connection.
// The pool hands the connection back to the reactor once Serve returns, so
// handlers must not call c.Done themselves.
type ConnHandler interface {
	Serve(c *reactor.Conn)
}

// Pool is a fixed set of workers fed from a bounded queue. It implements
// reactor.Dispatcher; Dispatch blocks while the queue is full.
type Pool struct {
	tasks   chan *reactor.Conn
	handler ConnHandler
	size    int
	logger  *slog.Logger

	mu      sync.RWMutex
	stopped bool
	wg      sync.WaitGroup
}

func NewPool(size, queue int, handler ConnHandler, logger *slog.Logger) *Pool {
	if size <= 0 {
		size = 4
	}
	if queue < 0 {
		queue = 0
	}
	if logger == nil {
		logger = slog.Default()
	}
	return &Pool{
		tasks:   make(chan *reactor.Conn, queue),
		handler: handler,
		size:    size,
		logger:  logger,
	}
}

// Start launches the workers.
func (p *Pool) Start() {
	p.logger.Info("Starting request workers", slog.Int("workers", p.size))
	for i := 0; i < p.size; i++ {
		p.wg.Add(1)
		go p.worker(i + 1)
	}
}

func (p *Pool) worker(id int) {
	defer p.wg.Done()

	served := 0
	for c := range p.tasks {
		p.serve(c)
		served++
	}

	p.logger.Debug("Worker stopped", slog.Int("worker", id), slog.Int("served", served))
}

// serve keeps one bad request from taking the worker down with it. A
// panicking connection is closed before it goes back to the reactor.
func (p *Pool) serve(c *reactor.Conn) {
	defer c.Done()
	defer func() {
		if r := recover(); r != nil {
			p.logger.Error("Worker recovered from panic",
				slog.Uint64("conn", c.ID()),
				slog.Any("panic", r))
			c.Close()
		}
	}()
	p.handler.Serve(c)
}

// Dispatch queues c for a worker. After Stop the connection is closed and
// handed straight back.
func (p *Pool) Dispatch(c *reactor.Conn) {
	p.mu.RLock()
	defer p.mu.RUnlock()

	if p.stopped {
		c.Close()
		c.Done()
		return
	}
	p.tasks <- c
}

// Stop lets queued work finish and waits for every worker to exit.
func (p *Pool) Stop() {
	p.mu.Lock()
	if !p.stopped {
		p.stopped = true
		close(p.tasks)
	}
	p.mu.Unlock()

	p.wg.Wait()
	p.logger.Info("Request workers stopped")
}
