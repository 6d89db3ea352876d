package types

import "time"

// EventType represents the type of pushed notification
type EventType string

const (
	EventNewFollower  EventType = "follower.new"
	EventLostFollower EventType = "follower.lost"
	EventRewardRound  EventType = "reward.round"
)

// Event represents a notification pushed to subscribers
type Event struct {
	Type      EventType   `json:"type"`
	Data      interface{} `json:"data"`
	Timestamp string      `json:"timestamp"`
}

// FollowerEvent is sent on the followed user's directed channel
type FollowerEvent struct {
	Username string `json:"username"`
}

// RewardRoundEvent is broadcast after a reward pass credited at least one wallet
type RewardRoundEvent struct {
	Posts       int     `json:"posts"`
	Credits     int     `json:"credits"`
	Distributed float64 `json:"distributed"`
	CompletedAt string  `json:"completed_at"`
}

// NewEvent creates a new event with the current timestamp
func NewEvent(eventType EventType, data interface{}) *Event {
	return &Event{
		Type:      eventType,
		Data:      data,
		Timestamp: time.Now().UTC().Format(time.RFC3339),
	}
}
