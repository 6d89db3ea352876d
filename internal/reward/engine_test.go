package reward

import (
	"context"
	"errors"
	"math"
	"sync"
	"testing"
	"time"

	"github.com/princekumarofficial/winsome/internal/storage/memory"
	"github.com/princekumarofficial/winsome/internal/types"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

type recordingPublisher struct {
	mu     sync.Mutex
	rounds []*types.RewardRoundEvent
}

func (p *recordingPublisher) PublishRewardRound(round *types.RewardRoundEvent) error {
	p.mu.Lock()
	defer p.mu.Unlock()
	p.rounds = append(p.rounds, round)
	return nil
}

func (p *recordingPublisher) count() int {
	p.mu.Lock()
	defer p.mu.Unlock()
	return len(p.rounds)
}

// aliceAndBob builds the scenario where bob follows alice, comments and
// upvotes alice's post 0.
func aliceAndBob(t *testing.T) *memory.Store {
	t.Helper()
	s := memory.New()
	require.NoError(t, s.Register("alice", "h", []string{"tech"}))
	require.NoError(t, s.Register("bob", "h", []string{"tech", "sports"}))
	require.NoError(t, s.Follow("bob", "alice"))

	id, err := s.CreatePost("alice", "Hi", "World")
	require.NoError(t, err)
	require.Equal(t, int64(0), id)

	_, err = s.AddComment("bob", 0, "nice")
	require.NoError(t, err)
	_, err = s.AddComment("alice", 0, "thanks")
	require.ErrorIs(t, err, memory.ErrSelfComment)
	require.NoError(t, s.Rate("bob", 0, memory.Upvote))
	return s
}

func balance(t *testing.T, s *memory.Store, user string) (float64, int) {
	t.Helper()
	w, err := s.Wallet(user)
	require.NoError(t, err)
	return w.Balance, len(w.Transactions)
}

func TestGain(t *testing.T) {
	tests := []struct {
		name string
		act  memory.Activity
		want float64
	}{
		{"nothing", memory.Activity{Iteration: 1}, 0},
		{"downvotes only", memory.Activity{Downvotes: 3, Iteration: 1}, 0},
		{"net votes", memory.Activity{Upvotes: 4, Downvotes: 1, Iteration: 1}, math.Log(4)},
		{"decayed", memory.Activity{Upvotes: 1, Iteration: 2}, math.Log(2) / 2},
		{
			"one comment",
			memory.Activity{Commenters: map[string]int{"bob": 1}, Iteration: 1},
			math.Log(2/(1+math.Exp(-2)) + 1),
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			assert.InDelta(t, tt.want, Gain(tt.act), 1e-12)
		})
	}
}

func TestPassSplitsBetweenAuthorAndCommenters(t *testing.T) {
	s := aliceAndBob(t)
	pub := &recordingPublisher{}
	e := NewEngine(s, pub, 70, time.Minute, nil)

	round := e.Pass()

	gain := math.Log(2) + math.Log(2/(1+math.Exp(-2))+1)
	alice, aliceTx := balance(t, s, "alice")
	bob, bobTx := balance(t, s, "bob")
	assert.InDelta(t, 0.7*gain, alice, 1e-9)
	assert.InDelta(t, 0.3*gain, bob, 1e-9)
	assert.Equal(t, 1, aliceTx)
	assert.Equal(t, 1, bobTx)

	assert.Equal(t, 2, round.Credits)
	assert.Equal(t, 1, round.Rewarded)
	assert.InDelta(t, gain, round.Distributed, 1e-9)
	require.Equal(t, 1, pub.count())
	assert.Equal(t, 2, pub.rounds[0].Credits)
}

func TestZeroGainPassIsIdempotent(t *testing.T) {
	s := aliceAndBob(t)
	pub := &recordingPublisher{}
	e := NewEngine(s, pub, 70, time.Minute, nil)
	e.Pass()

	before, beforeTx := balance(t, s, "alice")
	round := e.Pass()
	after, afterTx := balance(t, s, "alice")

	assert.Equal(t, before, after)
	assert.Equal(t, beforeTx, afterTx)
	assert.Zero(t, round.Credits)
	assert.Equal(t, 1, pub.count(), "no announcement for an empty pass")
}

func TestIterationDecaysLaterPasses(t *testing.T) {
	s := aliceAndBob(t)
	require.NoError(t, s.Register("carol", "h", []string{"tech"}))
	require.NoError(t, s.Follow("carol", "alice"))

	e := NewEngine(s, nil, 100, time.Minute, nil)
	e.Pass()
	first, _ := balance(t, s, "alice")

	require.NoError(t, s.Rate("carol", 0, memory.Upvote))
	e.Pass()
	second, _ := balance(t, s, "alice")

	assert.InDelta(t, math.Log(2)/2, second-first, 1e-9)
	bob, _ := balance(t, s, "bob")
	assert.Zero(t, bob, "author takes everything at 100%")
}

func TestCommentTermUsesLifetimeCount(t *testing.T) {
	s := aliceAndBob(t)
	e := NewEngine(s, nil, 100, time.Minute, nil)
	e.Pass()
	first, _ := balance(t, s, "alice")

	// Three comments by bob in total, two of them in this window.
	_, err := s.AddComment("bob", 0, "again")
	require.NoError(t, err)
	_, err = s.AddComment("bob", 0, "and again")
	require.NoError(t, err)
	e.Pass()
	second, _ := balance(t, s, "alice")

	assert.InDelta(t, math.Log(2/(1+math.Exp(-4))+1)/2, second-first, 1e-9)
}

func TestZeroGainPassMarksStoreDirty(t *testing.T) {
	s := memory.New()
	require.NoError(t, s.Register("alice", "h", []string{"tech"}))
	require.NoError(t, s.Register("bob", "h", []string{"tech"}))
	require.NoError(t, s.Follow("bob", "alice"))
	id, err := s.CreatePost("alice", "Hi", "World")
	require.NoError(t, err)
	require.NoError(t, s.Rate("bob", id, memory.Downvote))

	// The persister has just saved.
	s.TakeDirty()

	round := NewEngine(s, nil, 70, time.Minute, nil).Pass()
	assert.Zero(t, round.Credits)
	assert.True(t, s.TakeDirty(), "drained counters must reach the next snapshot")

	snap, err := s.Snapshot()
	require.NoError(t, err)
	restored, err := memory.Restore(snap)
	require.NoError(t, err)
	posts := restored.Posts()
	require.Len(t, posts, 1)
	up, down, commenters := posts[0].Pending()
	assert.Zero(t, up)
	assert.Zero(t, down)
	assert.Zero(t, commenters)
	assert.Equal(t, 2, posts[0].Drain().Iteration)
}

// flakyStore fails every credit to one user.
type flakyStore struct {
	*memory.Store
	failing string
}

func (f *flakyStore) Credit(username string, amount float64, label string) error {
	if username == f.failing {
		return errors.New("wallet unavailable")
	}
	return f.Store.Credit(username, amount, label)
}

func TestPassIsolatesFailures(t *testing.T) {
	s := memory.New()
	for _, name := range []string{"alice", "bob", "zed"} {
		require.NoError(t, s.Register(name, "h", []string{"tech"}))
	}
	require.NoError(t, s.Follow("bob", "alice"))
	require.NoError(t, s.Follow("bob", "zed"))

	zedPost, err := s.CreatePost("zed", "first", "post")
	require.NoError(t, err)
	alicePost, err := s.CreatePost("alice", "second", "post")
	require.NoError(t, err)
	require.NoError(t, s.Rate("bob", zedPost, memory.Upvote))
	require.NoError(t, s.Rate("bob", alicePost, memory.Upvote))

	e := NewEngine(&flakyStore{Store: s, failing: "zed"}, nil, 100, time.Minute, nil)
	round := e.Pass()

	assert.Equal(t, 1, round.Failures)
	assert.Equal(t, 1, round.Credits)
	alice, _ := balance(t, s, "alice")
	assert.InDelta(t, math.Log(2), alice, 1e-9)
}

func TestRunStopsOnCancel(t *testing.T) {
	s := aliceAndBob(t)
	pub := &recordingPublisher{}
	e := NewEngine(s, pub, 70, 10*time.Millisecond, nil)

	ctx, cancel := context.WithCancel(context.Background())
	done := make(chan error, 1)
	go func() { done <- e.Run(ctx) }()

	assert.Eventually(t, func() bool { return pub.count() == 1 }, time.Second, 5*time.Millisecond)
	cancel()
	select {
	case err := <-done:
		assert.NoError(t, err)
	case <-time.After(time.Second):
		t.Fatal("engine did not stop")
	}
}
