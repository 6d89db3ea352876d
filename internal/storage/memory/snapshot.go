package memory

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"log/slog"
	"slices"
	"sort"

	"github.com/princekumarofficial/winsome/internal/storage"
)

// Snapshot serializes the whole store. Entities are marshalled one at a
// time under their own locks, so the result is per-entity consistent.
func (s *Store) Snapshot() (*storage.Snapshot, error) {
	s.mu.RLock()
	users := make([]*User, 0, len(s.users))
	for _, u := range s.users {
		users = append(users, u)
	}
	posts := make([]*Post, 0, len(s.posts))
	for _, p := range s.posts {
		posts = append(posts, p)
	}
	s.mu.RUnlock()

	sort.Slice(users, func(i, j int) bool { return users[i].Username < users[j].Username })
	sort.Slice(posts, func(i, j int) bool { return posts[i].ID < posts[j].ID })

	usersJSON, err := json.Marshal(users)
	if err != nil {
		return nil, fmt.Errorf("marshal users: %w", err)
	}
	postsJSON, err := json.Marshal(posts)
	if err != nil {
		return nil, fmt.Errorf("marshal posts: %w", err)
	}

	return &storage.Snapshot{
		Users:         usersJSON,
		Posts:         postsJSON,
		NextPostID:    s.nextPostID.Load(),
		NextCommentID: s.nextCommentID.Load(),
		TakenAt:       s.now().UTC(),
	}, nil
}

// Restore rebuilds a store from snap. Cross-entity references are repaired:
// the follower sets are derived from the following sets, blog entries of
// missing posts are dropped and the id counters resume past the highest id
// seen, whatever the snapshot recorded.
func Restore(snap *storage.Snapshot) (*Store, error) {
	var users []*User
	if len(snap.Users) > 0 {
		if err := json.Unmarshal(snap.Users, &users); err != nil {
			return nil, fmt.Errorf("unmarshal users: %w", err)
		}
	}
	var posts []*Post
	if len(snap.Posts) > 0 {
		if err := json.Unmarshal(snap.Posts, &posts); err != nil {
			return nil, fmt.Errorf("unmarshal posts: %w", err)
		}
	}

	s := New()
	for _, u := range users {
		s.users[u.Username] = u
	}

	nextPost, nextComment := snap.NextPostID, snap.NextCommentID
	for _, p := range posts {
		if _, ok := s.users[p.Author]; !ok {
			continue
		}
		s.posts[p.ID] = p
		if p.ID >= nextPost {
			nextPost = p.ID + 1
		}
		for _, c := range p.comments {
			if c.ID >= nextComment {
				nextComment = c.ID + 1
			}
		}
	}
	s.nextPostID.Store(nextPost)
	s.nextCommentID.Store(nextComment)

	for _, u := range s.users {
		u.followers = make(map[string]struct{})
	}
	for _, u := range s.users {
		for name := range u.following {
			other, ok := s.users[name]
			if !ok || name == u.Username {
				delete(u.following, name)
				continue
			}
			other.followers[u.Username] = struct{}{}
		}
		u.blog = slices.DeleteFunc(u.blog, func(id int64) bool {
			_, ok := s.posts[id]
			return !ok
		})
		u.blog = slices.Compact(u.blog)
	}

	return s, nil
}

// Open restores the store saved in backend. A missing or unreadable
// snapshot yields an empty store: corruption is treated as no prior state.
func Open(ctx context.Context, backend storage.Snapshotter, logger *slog.Logger) *Store {
	if logger == nil {
		logger = slog.Default()
	}

	snap, err := backend.Load(ctx)
	if err != nil {
		if errors.Is(err, storage.ErrNoSnapshot) {
			logger.Info("No snapshot found, starting empty")
		} else {
			logger.Warn("Discarding unreadable snapshot", slog.String("error", err.Error()))
		}
		return New()
	}

	s, err := Restore(snap)
	if err != nil {
		logger.Warn("Discarding corrupt snapshot", slog.String("error", err.Error()))
		return New()
	}

	users, posts := s.Stats()
	logger.Info("Restored snapshot",
		slog.Int("users", users),
		slog.Int("posts", posts),
		slog.Time("taken_at", snap.TakenAt))
	return s
}
