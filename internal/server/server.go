// Package server runs the request-response cycle for client connections
// handed over by the reactor: decode a frame, check the session, execute
// one domain operation and encode the status.
package server

import (
	"context"
	"errors"
	"io"
	"log/slog"
	"net"
	"time"

	"github.com/princekumarofficial/winsome/internal/reactor"
	"github.com/princekumarofficial/winsome/internal/session"
	"github.com/princekumarofficial/winsome/internal/storage/memory"
	"github.com/princekumarofficial/winsome/internal/types"
	"github.com/princekumarofficial/winsome/internal/utils/password"
	"github.com/princekumarofficial/winsome/internal/wire"
)

const (
	defaultReadTimeout  = 5 * time.Second
	defaultWriteTimeout = 5 * time.Second
	requestTimeout      = 3 * time.Second
)

var errBadCredentials = errors.New("credentials do not match")

// RateLimiter throttles write commands per user.
type RateLimiter interface {
	Allow(ctx context.Context, subject, action string) (bool, error)
}

// Converter prices wincoin in the external unit.
type Converter interface {
	Convert(ctx context.Context, wincoin float64) (types.ExchangeView, error)
}

type Config struct {
	ReadTimeout  time.Duration
	WriteTimeout time.Duration
	MaxFrame     int

	// Broadcast channel advertised to clients at login.
	MulticastIP   string
	MulticastPort int

	// JWTSecret signs notification tokens. Empty disables them.
	JWTSecret string
}

type Server struct {
	store    *memory.Store
	sessions *session.Directory
	limiter  RateLimiter
	exchange Converter
	cfg      Config
	logger   *slog.Logger
}

// New builds a Server. limiter and exchange may be nil.
func New(store *memory.Store, sessions *session.Directory, limiter RateLimiter, exchange Converter, cfg Config, logger *slog.Logger) *Server {
	if cfg.ReadTimeout <= 0 {
		cfg.ReadTimeout = defaultReadTimeout
	}
	if cfg.WriteTimeout <= 0 {
		cfg.WriteTimeout = defaultWriteTimeout
	}
	if cfg.MaxFrame <= 0 {
		cfg.MaxFrame = wire.DefaultMaxFrame
	}
	if logger == nil {
		logger = slog.Default()
	}
	return &Server{
		store:    store,
		sessions: sessions,
		limiter:  limiter,
		exchange: exchange,
		cfg:      cfg,
		logger:   logger,
	}
}

// Serve performs the half of the cycle matching c's interest: read and
// execute one request, or write the pending response. Any I/O error closes
// the connection without a response.
func (s *Server) Serve(c *reactor.Conn) {
	switch c.Interest() {
	case reactor.Read:
		s.readRequest(c)
	case reactor.Write:
		s.writeResponse(c)
	}
}

func (s *Server) readRequest(c *reactor.Conn) {
	c.NetConn().SetReadDeadline(time.Now().Add(s.cfg.ReadTimeout))

	frame, err := wire.ReadFrame(c.Reader(), s.cfg.MaxFrame)
	if err != nil {
		if !errors.Is(err, io.EOF) && !errors.Is(err, net.ErrClosed) {
			s.logger.Warn("Dropping connection on bad frame",
				slog.Uint64("conn", c.ID()),
				slog.String("error", err.Error()))
		}
		c.Close()
		return
	}

	resp, err := s.Handle(c, frame)
	if err != nil {
		s.logger.Warn("Dropping connection on protocol error",
			slog.Uint64("conn", c.ID()),
			slog.String("error", err.Error()))
		c.Close()
		return
	}

	c.SetPending(resp.Encode())
	c.SetInterest(reactor.Write)
}

func (s *Server) writeResponse(c *reactor.Conn) {
	c.NetConn().SetWriteDeadline(time.Now().Add(s.cfg.WriteTimeout))

	if _, err := c.NetConn().Write(c.TakePending()); err != nil {
		s.logger.Warn("Failed to write response",
			slog.Uint64("conn", c.ID()),
			slog.String("error", err.Error()))
		c.Close()
		return
	}
	c.SetInterest(reactor.Read)
}

// Release ends the session bound to a closed connection. It is the
// reactor's close hook.
func (s *Server) Release(c *reactor.Conn) {
	s.sessions.Release(c)
}

// Credentials verifies logins against the password hashes in the store.
type Credentials struct {
	store *memory.Store
}

func NewCredentials(store *memory.Store) *Credentials {
	return &Credentials{store: store}
}

func (c *Credentials) Verify(username, pw string) error {
	hash, err := c.store.PasswordHash(username)
	if err != nil {
		return err
	}
	if !password.CheckPasswordHash(pw, hash) {
		return errBadCredentials
	}
	return nil
}
