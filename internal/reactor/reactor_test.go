package reactor

import (
	"context"
	"net"
	"sync"
	"sync/atomic"
	"testing"
	"time"

	"github.com/princekumarofficial/winsome/internal/wire"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

// echoDispatcher reads one frame per read dispatch and writes it back on the
// following write dispatch. It records any overlapping dispatch of the same
// connection.
type echoDispatcher struct {
	inflight sync.Map
	overlaps atomic.Int32
	cycles   atomic.Int32
}

func (d *echoDispatcher) Dispatch(c *Conn) {
	go func() {
		if _, busy := d.inflight.LoadOrStore(c.ID(), true); busy {
			d.overlaps.Add(1)
		}
		defer c.Done()
		defer d.inflight.Delete(c.ID())

		switch c.Interest() {
		case Read:
			c.NetConn().SetReadDeadline(time.Now().Add(time.Second))
			frame, err := wire.ReadFrame(c.Reader(), wire.DefaultMaxFrame)
			if err != nil {
				c.Close()
				return
			}
			c.SetPending(wire.AppendFrame(nil, frame))
			c.SetInterest(Write)
		case Write:
			if _, err := c.NetConn().Write(c.TakePending()); err != nil {
				c.Close()
				return
			}
			d.cycles.Add(1)
			c.SetInterest(Read)
		}
	}()
}

func pollers(t *testing.T) map[string]func() Poller {
	out := map[string]func() Poller{
		"portable": NewPortablePoller,
	}
	if p, err := NewPoller("epoll"); err == nil {
		p.Close()
		out["epoll"] = func() Poller {
			p, err := NewPoller("epoll")
			require.NoError(t, err)
			return p
		}
	}
	return out
}

type closeRecorder struct {
	mu     sync.Mutex
	closed []uint64
}

func (r *closeRecorder) record(c *Conn) {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.closed = append(r.closed, c.ID())
}

func (r *closeRecorder) count() int {
	r.mu.Lock()
	defer r.mu.Unlock()
	return len(r.closed)
}

func startReactor(t *testing.T, poller Poller, d Dispatcher, rec *closeRecorder) (*Reactor, context.CancelFunc, chan error) {
	t.Helper()
	ln, err := net.Listen("tcp", "127.0.0.1:0")
	require.NoError(t, err)

	r := New(ln, poller, d, Options{OnClose: rec.record})
	ctx, cancel := context.WithCancel(context.Background())
	errc := make(chan error, 1)
	go func() { errc <- r.Run(ctx) }()
	return r, cancel, errc
}

func roundTrip(t *testing.T, conn net.Conn, msg string) {
	t.Helper()
	require.NoError(t, wire.WriteFrame(conn, []byte(msg)))
	conn.SetReadDeadline(time.Now().Add(2 * time.Second))
	got, err := wire.ReadFrame(conn, wire.DefaultMaxFrame)
	require.NoError(t, err)
	assert.Equal(t, msg, string(got))
}

func TestReactorEcho(t *testing.T) {
	for name, newPoller := range pollers(t) {
		t.Run(name, func(t *testing.T) {
			d := &echoDispatcher{}
			rec := &closeRecorder{}
			r, cancel, errc := startReactor(t, newPoller(), d, rec)

			var wg sync.WaitGroup
			for i := 0; i < 8; i++ {
				wg.Add(1)
				go func() {
					defer wg.Done()
					conn, err := net.Dial("tcp", r.Addr().String())
					require.NoError(t, err)
					defer conn.Close()
					for j := 0; j < 20; j++ {
						roundTrip(t, conn, "list users alice")
					}
				}()
			}
			wg.Wait()

			assert.Equal(t, int32(160), d.cycles.Load())
			assert.Zero(t, d.overlaps.Load())
			assert.Eventually(t, func() bool { return rec.count() == 8 }, 2*time.Second, 10*time.Millisecond)
			assert.Equal(t, 0, r.Connections())

			cancel()
			select {
			case err := <-errc:
				assert.NoError(t, err)
			case <-time.After(2 * time.Second):
				t.Fatal("reactor did not stop")
			}
		})
	}
}

func TestReactorServesPipelinedFrames(t *testing.T) {
	for name, newPoller := range pollers(t) {
		t.Run(name, func(t *testing.T) {
			d := &echoDispatcher{}
			r, cancel, _ := startReactor(t, newPoller(), d, &closeRecorder{})
			defer cancel()

			conn, err := net.Dial("tcp", r.Addr().String())
			require.NoError(t, err)
			defer conn.Close()

			// Both frames arrive in one segment; the second sits in the
			// connection's buffer after the first is read.
			var batch []byte
			batch = wire.AppendFrame(batch, []byte("first"))
			batch = wire.AppendFrame(batch, []byte("second"))
			_, err = conn.Write(batch)
			require.NoError(t, err)

			conn.SetReadDeadline(time.Now().Add(2 * time.Second))
			for _, want := range []string{"first", "second"} {
				got, err := wire.ReadFrame(conn, wire.DefaultMaxFrame)
				require.NoError(t, err)
				assert.Equal(t, want, string(got))
			}
		})
	}
}

func TestReactorShutdownClosesConnections(t *testing.T) {
	for name, newPoller := range pollers(t) {
		t.Run(name, func(t *testing.T) {
			rec := &closeRecorder{}
			r, cancel, errc := startReactor(t, newPoller(), &echoDispatcher{}, rec)

			conn, err := net.Dial("tcp", r.Addr().String())
			require.NoError(t, err)
			defer conn.Close()
			require.Eventually(t, func() bool { return r.Connections() == 1 }, 2*time.Second, 5*time.Millisecond)

			cancel()
			require.NoError(t, <-errc)
			assert.Equal(t, 1, rec.count())

			conn.SetReadDeadline(time.Now().Add(2 * time.Second))
			_, err = conn.Read(make([]byte, 1))
			assert.Error(t, err)
		})
	}
}

func TestNewPollerRejectsUnknownKind(t *testing.T) {
	_, err := NewPoller("kqueue")
	assert.Error(t, err)
}
