package storage

import (
	"context"
	"encoding/json"
	"errors"
	"time"
)

// ErrNoSnapshot is returned by Load when nothing has been saved yet.
var ErrNoSnapshot = errors.New("no snapshot found")

// Snapshot is the persisted form of the whole domain store. Users and Posts
// hold the JSON arrays produced by the store; the id counters let a restored
// process resume past the highest id ever assigned.
type Snapshot struct {
	Users         json.RawMessage `json:"users"`
	Posts         json.RawMessage `json:"posts"`
	NextPostID    int64           `json:"next_post_id"`
	NextCommentID int64           `json:"next_comment_id"`
	TakenAt       time.Time       `json:"taken_at"`
}

// Snapshotter is a persistence backend.
type Snapshotter interface {
	Save(ctx context.Context, snap *Snapshot) error
	Load(ctx context.Context) (*Snapshot, error)
}

// Source is what the persistence task reads from: a dirty flag set by every
// mutation and a way to take a consistent-enough copy of the state.
type Source interface {
	Snapshot() (*Snapshot, error)
	TakeDirty() bool
	MarkDirty()
}
