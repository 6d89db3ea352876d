// Package session binds logged-in usernames to the connection they logged
// in from. At most one session exists per username at any instant.
package session

import (
	"errors"
	"log/slog"
	"sync"
	"time"

	"github.com/google/uuid"
)

var (
	ErrAlreadyLoggedIn  = errors.New("user already logged in")
	ErrWrongCredentials = errors.New("wrong username or password")
	ErrNoSession        = errors.New("no session")
	ErrHandleInUse      = errors.New("connection already bound to another user")
)

// Handle is the connection a session is bound to.
type Handle interface {
	Closed() bool
}

// Credentials verifies a login attempt. It is called without any directory
// lock held since password hashing is slow.
type Credentials interface {
	Verify(username, password string) error
}

// Subscriptions is torn down together with the session. Only the
// subscription opened under sessionID is dropped, so a late teardown of an
// old session leaves a newer login's stream alone.
type Subscriptions interface {
	Disconnect(username, sessionID string)
}

// Session is one live login.
type Session struct {
	ID        string
	Username  string
	Handle    Handle
	CreatedAt time.Time
}

type Directory struct {
	mu       sync.RWMutex
	byUser   map[string]*Session
	byHandle map[Handle]*Session

	creds  Credentials
	subs   Subscriptions
	logger *slog.Logger
}

// NewDirectory creates an empty directory. subs may be nil.
func NewDirectory(creds Credentials, subs Subscriptions, logger *slog.Logger) *Directory {
	if logger == nil {
		logger = slog.Default()
	}
	return &Directory{
		byUser:   make(map[string]*Session),
		byHandle: make(map[Handle]*Session),
		creds:    creds,
		subs:     subs,
		logger:   logger,
	}
}

// Login binds username to h. It fails with ErrAlreadyLoggedIn when the user
// has a session anywhere, ErrHandleInUse when h already carries another
// user's session, and ErrWrongCredentials when verification fails.
func (d *Directory) Login(username, password string, h Handle) (*Session, error) {
	if err := d.precheck(username, h); err != nil {
		return nil, err
	}

	if err := d.creds.Verify(username, password); err != nil {
		return nil, ErrWrongCredentials
	}

	d.mu.Lock()
	defer d.mu.Unlock()

	// Re-check: a concurrent login may have won while we were hashing.
	if _, ok := d.byUser[username]; ok {
		return nil, ErrAlreadyLoggedIn
	}
	if _, ok := d.byHandle[h]; ok {
		return nil, ErrHandleInUse
	}

	s := &Session{
		ID:        uuid.New().String(),
		Username:  username,
		Handle:    h,
		CreatedAt: time.Now(),
	}
	d.byUser[username] = s
	d.byHandle[h] = s

	d.logger.Info("session opened", slog.String("user", username), slog.String("session_id", s.ID))
	return s, nil
}

func (d *Directory) precheck(username string, h Handle) error {
	d.mu.RLock()
	defer d.mu.RUnlock()

	if _, ok := d.byUser[username]; ok {
		return ErrAlreadyLoggedIn
	}
	if _, ok := d.byHandle[h]; ok {
		return ErrHandleInUse
	}
	return nil
}

// Logout ends username's session, which must be bound to h.
func (d *Directory) Logout(username string, h Handle) error {
	d.mu.Lock()
	s, ok := d.byUser[username]
	if !ok || s.Handle != h {
		d.mu.Unlock()
		return ErrNoSession
	}
	d.removeLocked(s)
	d.mu.Unlock()

	d.teardown(s, "logout")
	return nil
}

// Release ends whatever session is bound to h. It is the disconnect path and
// is a no-op for handles that never logged in.
func (d *Directory) Release(h Handle) {
	d.mu.Lock()
	s, ok := d.byHandle[h]
	if ok {
		d.removeLocked(s)
	}
	d.mu.Unlock()

	if ok {
		d.teardown(s, "disconnect")
	}
}

// Owner returns the username logged in on h.
func (d *Directory) Owner(h Handle) (string, bool) {
	d.mu.RLock()
	defer d.mu.RUnlock()

	s, ok := d.byHandle[h]
	if !ok {
		return "", false
	}
	return s.Username, true
}

// Valid reports whether sessionID is username's current session.
func (d *Directory) Valid(username, sessionID string) bool {
	d.mu.RLock()
	defer d.mu.RUnlock()

	s, ok := d.byUser[username]
	return ok && s.ID == sessionID
}

// Count returns the number of live sessions.
func (d *Directory) Count() int {
	d.mu.RLock()
	defer d.mu.RUnlock()
	return len(d.byUser)
}

// Sweep releases every session whose handle reports closed and returns how
// many it reclaimed.
func (d *Directory) Sweep() int {
	d.mu.Lock()
	var stale []*Session
	for _, s := range d.byUser {
		if s.Handle.Closed() {
			stale = append(stale, s)
			d.removeLocked(s)
		}
	}
	d.mu.Unlock()

	for _, s := range stale {
		d.teardown(s, "sweep")
	}
	return len(stale)
}

func (d *Directory) removeLocked(s *Session) {
	delete(d.byUser, s.Username)
	delete(d.byHandle, s.Handle)
}

func (d *Directory) teardown(s *Session, reason string) {
	if d.subs != nil {
		d.subs.Disconnect(s.Username, s.ID)
	}
	d.logger.Info("session closed",
		slog.String("user", s.Username),
		slog.String("session_id", s.ID),
		slog.String("reason", reason))
}
