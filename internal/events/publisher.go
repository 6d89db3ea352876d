package events

import (
	"context"
	"log/slog"
	"time"

	"github.com/princekumarofficial/winsome/internal/types"
)

// Publisher interface for publishing events
type Publisher interface {
	PublishNewFollower(followed, follower string) error
	PublishLostFollower(followed, follower string) error
	PublishRewardRound(round *types.RewardRoundEvent) error
}

// WebSocketHub interface for the WebSocket hub
type WebSocketHub interface {
	BroadcastToUser(userID string, event *types.Event)
	BroadcastToAll(event *types.Event)
	IsUserConnected(userID string) bool
}

// Announcer sends an event on the shared broadcast channel.
type Announcer interface {
	Announce(ctx context.Context, event *types.Event) error
}

// EventPublisher implements the Publisher interface
type EventPublisher struct {
	hub       WebSocketHub
	announcer Announcer
	logger    *slog.Logger
}

// NewEventPublisher creates a new event publisher. announcer may be nil, in
// which case broadcast events only reach websocket subscribers.
func NewEventPublisher(hub WebSocketHub, announcer Announcer, logger *slog.Logger) *EventPublisher {
	if logger == nil {
		logger = slog.Default()
	}
	return &EventPublisher{
		hub:       hub,
		announcer: announcer,
		logger:    logger,
	}
}

// PublishNewFollower tells followed that follower started following them.
func (p *EventPublisher) PublishNewFollower(followed, follower string) error {
	return p.publishFollower(types.EventNewFollower, followed, follower)
}

// PublishLostFollower tells followed that follower stopped following them.
func (p *EventPublisher) PublishLostFollower(followed, follower string) error {
	return p.publishFollower(types.EventLostFollower, followed, follower)
}

func (p *EventPublisher) publishFollower(kind types.EventType, followed, follower string) error {
	// Only send if the followed user is subscribed; there is no replay.
	if !p.hub.IsUserConnected(followed) {
		return nil
	}

	event := types.NewEvent(kind, &types.FollowerEvent{Username: follower})
	p.hub.BroadcastToUser(followed, event)

	return nil
}

// PublishRewardRound announces a completed reward pass to every client.
func (p *EventPublisher) PublishRewardRound(round *types.RewardRoundEvent) error {
	if round.CompletedAt == "" {
		round.CompletedAt = time.Now().UTC().Format(time.RFC3339)
	}

	event := types.NewEvent(types.EventRewardRound, round)
	p.hub.BroadcastToAll(event)

	if p.announcer == nil {
		return nil
	}

	ctx, cancel := context.WithTimeout(context.Background(), time.Second)
	defer cancel()

	return p.announcer.Announce(ctx, event)
}

// FollowHook adapts a Publisher to the store's follow hook. It runs while the
// store still holds the followed user's lock, so pushes to one subscriber
// are enqueued in commit order.
func FollowHook(p Publisher, logger *slog.Logger) func(follower, followed string, following bool) {
	if logger == nil {
		logger = slog.Default()
	}
	return func(follower, followed string, following bool) {
		var err error
		if following {
			err = p.PublishNewFollower(followed, follower)
		} else {
			err = p.PublishLostFollower(followed, follower)
		}
		if err != nil {
			logger.Warn("Failed to publish follower event",
				slog.String("user", followed),
				slog.String("follower", follower),
				slog.String("error", err.Error()))
		}
	}
}
