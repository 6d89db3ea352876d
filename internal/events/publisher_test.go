package events

import (
	"context"
	"errors"
	"sync"
	"testing"

	"github.com/princekumarofficial/winsome/internal/storage/memory"
	"github.com/princekumarofficial/winsome/internal/types"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

type pushed struct {
	user  string
	event *types.Event
}

type fakeHub struct {
	mu        sync.Mutex
	connected map[string]bool
	direct    []pushed
	all       []*types.Event
}

func newFakeHub(users ...string) *fakeHub {
	h := &fakeHub{connected: make(map[string]bool)}
	for _, u := range users {
		h.connected[u] = true
	}
	return h
}

func (h *fakeHub) BroadcastToUser(userID string, event *types.Event) {
	h.mu.Lock()
	defer h.mu.Unlock()
	h.direct = append(h.direct, pushed{userID, event})
}

func (h *fakeHub) BroadcastToAll(event *types.Event) {
	h.mu.Lock()
	defer h.mu.Unlock()
	h.all = append(h.all, event)
}

func (h *fakeHub) IsUserConnected(userID string) bool {
	h.mu.Lock()
	defer h.mu.Unlock()
	return h.connected[userID]
}

func (h *fakeHub) pushesTo(user string) []*types.Event {
	h.mu.Lock()
	defer h.mu.Unlock()
	var out []*types.Event
	for _, p := range h.direct {
		if p.user == user {
			out = append(out, p.event)
		}
	}
	return out
}

type fakeAnnouncer struct {
	events []*types.Event
	err    error
}

func (a *fakeAnnouncer) Announce(_ context.Context, event *types.Event) error {
	a.events = append(a.events, event)
	return a.err
}

func TestFollowHookPushesToFollowedUser(t *testing.T) {
	hub := newFakeHub("dave", "erin")
	store := memory.New()
	store.SetFollowHook(FollowHook(NewEventPublisher(hub, nil, nil), nil))
	require.NoError(t, store.Register("dave", "h", []string{"tech"}))
	require.NoError(t, store.Register("erin", "h", []string{"tech"}))

	require.NoError(t, store.Follow("dave", "erin"))
	assert.ErrorIs(t, store.Unfollow("erin", "dave"), memory.ErrNotFollowing)
	assert.Empty(t, hub.pushesTo("dave"))

	require.NoError(t, store.Follow("erin", "dave"))
	got := hub.pushesTo("dave")
	require.Len(t, got, 1)
	assert.Equal(t, types.EventNewFollower, got[0].Type)
	assert.Equal(t, &types.FollowerEvent{Username: "erin"}, got[0].Data)

	require.NoError(t, store.Unfollow("dave", "erin"))
	got = hub.pushesTo("erin")
	require.Len(t, got, 2)
	assert.Equal(t, types.EventNewFollower, got[0].Type)
	assert.Equal(t, types.EventLostFollower, got[1].Type)
}

func TestFollowerEventSkipsOfflineUsers(t *testing.T) {
	hub := newFakeHub()
	p := NewEventPublisher(hub, nil, nil)

	require.NoError(t, p.PublishNewFollower("dave", "erin"))
	assert.Empty(t, hub.pushesTo("dave"))
}

func TestPublishRewardRound(t *testing.T) {
	hub := newFakeHub()
	announcer := &fakeAnnouncer{}
	p := NewEventPublisher(hub, announcer, nil)

	round := &types.RewardRoundEvent{Posts: 2, Credits: 3, Distributed: 1.5}
	require.NoError(t, p.PublishRewardRound(round))

	require.Len(t, hub.all, 1)
	require.Len(t, announcer.events, 1)
	assert.Equal(t, types.EventRewardRound, announcer.events[0].Type)
	assert.NotEmpty(t, round.CompletedAt)

	announcer.err = errors.New("network down")
	assert.Error(t, p.PublishRewardRound(&types.RewardRoundEvent{}))
	assert.Len(t, hub.all, 2)
}
