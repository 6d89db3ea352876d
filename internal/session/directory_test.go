package session

import (
	"context"
	"errors"
	"sync"
	"sync/atomic"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

type fakeHandle struct{ closed atomic.Bool }

func (h *fakeHandle) Closed() bool { return h.closed.Load() }

type fakeCreds map[string]string

func (c fakeCreds) Verify(username, password string) error {
	if pw, ok := c[username]; ok && pw == password {
		return nil
	}
	return errors.New("nope")
}

type recordingSubs struct {
	mu    sync.Mutex
	names []string
	sids  []string
}

func (r *recordingSubs) Disconnect(username, sessionID string) {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.names = append(r.names, username)
	r.sids = append(r.sids, sessionID)
}

func (r *recordingSubs) sessions() []string {
	r.mu.Lock()
	defer r.mu.Unlock()
	return append([]string(nil), r.sids...)
}

func (r *recordingSubs) disconnected() []string {
	r.mu.Lock()
	defer r.mu.Unlock()
	return append([]string(nil), r.names...)
}

func TestLogin(t *testing.T) {
	creds := fakeCreds{"alice": "pw", "bob": "pw"}

	t.Run("success binds handle", func(t *testing.T) {
		d := NewDirectory(creds, nil, nil)
		h := &fakeHandle{}

		s, err := d.Login("alice", "pw", h)
		require.NoError(t, err)
		assert.NotEmpty(t, s.ID)

		owner, ok := d.Owner(h)
		assert.True(t, ok)
		assert.Equal(t, "alice", owner)
		assert.True(t, d.Valid("alice", s.ID))
		assert.False(t, d.Valid("alice", "other"))
	})

	t.Run("wrong password", func(t *testing.T) {
		d := NewDirectory(creds, nil, nil)
		_, err := d.Login("alice", "bad", &fakeHandle{})
		assert.ErrorIs(t, err, ErrWrongCredentials)
		assert.Equal(t, 0, d.Count())
	})

	t.Run("second login from another connection", func(t *testing.T) {
		d := NewDirectory(creds, nil, nil)
		_, err := d.Login("alice", "pw", &fakeHandle{})
		require.NoError(t, err)

		_, err = d.Login("alice", "pw", &fakeHandle{})
		assert.ErrorIs(t, err, ErrAlreadyLoggedIn)
		// The duplicate check wins over credential checks.
		_, err = d.Login("alice", "bad", &fakeHandle{})
		assert.ErrorIs(t, err, ErrAlreadyLoggedIn)
	})

	t.Run("connection already carries a session", func(t *testing.T) {
		d := NewDirectory(creds, nil, nil)
		h := &fakeHandle{}
		_, err := d.Login("alice", "pw", h)
		require.NoError(t, err)

		_, err = d.Login("bob", "pw", h)
		assert.ErrorIs(t, err, ErrHandleInUse)
	})

	t.Run("concurrent logins yield one session", func(t *testing.T) {
		d := NewDirectory(creds, nil, nil)

		var (
			wg        sync.WaitGroup
			successes atomic.Int32
		)
		for i := 0; i < 50; i++ {
			wg.Add(1)
			go func() {
				defer wg.Done()
				if _, err := d.Login("alice", "pw", &fakeHandle{}); err == nil {
					successes.Add(1)
				} else {
					assert.ErrorIs(t, err, ErrAlreadyLoggedIn)
				}
			}()
		}
		wg.Wait()

		assert.Equal(t, int32(1), successes.Load())
		assert.Equal(t, 1, d.Count())
	})
}

func TestLogoutAndRelease(t *testing.T) {
	creds := fakeCreds{"alice": "pw"}

	t.Run("logout tears down subscription", func(t *testing.T) {
		subs := &recordingSubs{}
		d := NewDirectory(creds, subs, nil)
		h := &fakeHandle{}
		s, err := d.Login("alice", "pw", h)
		require.NoError(t, err)

		assert.ErrorIs(t, d.Logout("alice", &fakeHandle{}), ErrNoSession)
		require.NoError(t, d.Logout("alice", h))
		assert.ErrorIs(t, d.Logout("alice", h), ErrNoSession)

		assert.Equal(t, []string{"alice"}, subs.disconnected())
		assert.Equal(t, []string{s.ID}, subs.sessions())
		_, ok := d.Owner(h)
		assert.False(t, ok)
	})

	t.Run("release on disconnect", func(t *testing.T) {
		subs := &recordingSubs{}
		d := NewDirectory(creds, subs, nil)
		h := &fakeHandle{}
		_, err := d.Login("alice", "pw", h)
		require.NoError(t, err)

		d.Release(h)
		d.Release(h)
		d.Release(&fakeHandle{})

		assert.Equal(t, []string{"alice"}, subs.disconnected())
		_, err = d.Login("alice", "pw", &fakeHandle{})
		assert.NoError(t, err)
	})
}

func TestSweep(t *testing.T) {
	subs := &recordingSubs{}
	d := NewDirectory(fakeCreds{"alice": "pw", "bob": "pw"}, subs, nil)
	live, dead := &fakeHandle{}, &fakeHandle{}
	_, err := d.Login("alice", "pw", live)
	require.NoError(t, err)
	_, err = d.Login("bob", "pw", dead)
	require.NoError(t, err)

	dead.closed.Store(true)
	assert.Equal(t, 1, d.Sweep())
	assert.Equal(t, 1, d.Count())
	assert.Equal(t, []string{"bob"}, subs.disconnected())

	t.Run("sweeper loop", func(t *testing.T) {
		live.closed.Store(true)

		ctx, cancel := context.WithCancel(context.Background())
		defer cancel()
		go NewSweeper(d, 10*time.Millisecond, nil).Run(ctx)

		assert.Eventually(t, func() bool { return d.Count() == 0 }, time.Second, 10*time.Millisecond)
	})
}
