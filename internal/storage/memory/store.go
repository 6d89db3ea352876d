// Package memory is the authoritative in-memory domain store: users, posts,
// comments and wallets, shared by every request worker and the reward engine.
//
// A post lock may be held while taking user locks, never the reverse, and
// the store map lock is never held while acquiring either. Two user locks
// are always taken in username order.
package memory

import (
	"sort"
	"strings"
	"sync"
	"sync/atomic"
	"time"

	"github.com/princekumarofficial/winsome/internal/types"
)

// FollowHook observes follow graph changes. It runs while the followed
// user's lock is held, so for any one user the calls arrive in commit order.
// It must not block or call back into the store.
type FollowHook func(follower, followed string, following bool)

type Store struct {
	mu    sync.RWMutex
	users map[string]*User
	posts map[int64]*Post

	nextPostID    atomic.Int64
	nextCommentID atomic.Int64

	// dirty is set by every mutation and cleared only by the persistence task.
	dirty atomic.Bool

	onFollow FollowHook
	now      func() time.Time
}

func New() *Store {
	return &Store{
		users: make(map[string]*User),
		posts: make(map[int64]*Post),
		now:   time.Now,
	}
}

// SetFollowHook installs h. Call it before the store is shared.
func (s *Store) SetFollowHook(h FollowHook) {
	s.onFollow = h
}

func (s *Store) MarkDirty() { s.dirty.Store(true) }

// TakeDirty reports whether anything changed since the last call and resets
// the flag.
func (s *Store) TakeDirty() bool { return s.dirty.Swap(false) }

// NormalizeTags trims and lowercases tags, dropping blanks and repeats.
func NormalizeTags(tags []string) []string {
	normalized := make([]string, 0, len(tags))
	seen := make(map[string]bool, len(tags))
	for _, t := range tags {
		t = strings.ToLower(strings.TrimSpace(t))
		if t == "" || seen[t] {
			continue
		}
		seen[t] = true
		normalized = append(normalized, t)
	}
	return normalized
}

// Register adds a new user. Tags are lowercased and deduplicated; callers
// validate counts and password rules beforehand.
func (s *Store) Register(username, passwordHash string, tags []string) error {
	if username == "" || strings.ContainsAny(username, " /\"") {
		return ErrInvalidUsername
	}

	normalized := NormalizeTags(tags)

	s.mu.Lock()
	defer s.mu.Unlock()

	if _, exists := s.users[username]; exists {
		return ErrUserExists
	}
	s.users[username] = newUser(username, passwordHash, normalized)
	s.MarkDirty()
	return nil
}

// User looks up a user by name.
func (s *Store) User(username string) (*User, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	u, ok := s.users[username]
	if !ok {
		return nil, ErrUserNotFound
	}
	return u, nil
}

// PasswordHash returns the stored hash for username.
func (s *Store) PasswordHash(username string) (string, error) {
	u, err := s.User(username)
	if err != nil {
		return "", err
	}
	return u.PasswordHash, nil
}

// Post looks up a post by id.
func (s *Store) Post(id int64) (*Post, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	p, ok := s.posts[id]
	if !ok {
		return nil, ErrPostNotFound
	}
	return p, nil
}

// Posts returns every live post ordered by id.
func (s *Store) Posts() []*Post {
	s.mu.RLock()
	out := make([]*Post, 0, len(s.posts))
	for _, p := range s.posts {
		out = append(out, p)
	}
	s.mu.RUnlock()

	sort.Slice(out, func(i, j int) bool { return out[i].ID < out[j].ID })
	return out
}

// Drain drains p's recent activity. The drain always advances the post's
// iteration, so the store is marked dirty even when nothing was pending.
func (s *Store) Drain(p *Post) Activity {
	act := p.Drain()
	s.MarkDirty()
	return act
}

// Stats returns the number of users and posts.
func (s *Store) Stats() (users, posts int) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return len(s.users), len(s.posts)
}

// ListUsers returns the users sharing at least one tag with caller.
func (s *Store) ListUsers(caller string) ([]types.UserSummary, error) {
	me, err := s.User(caller)
	if err != nil {
		return nil, err
	}

	s.mu.RLock()
	out := make([]types.UserSummary, 0)
	for name, u := range s.users {
		if name != caller && me.SharesTag(u) {
			out = append(out, u.Summary())
		}
	}
	s.mu.RUnlock()

	sort.Slice(out, func(i, j int) bool { return out[i].Username < out[j].Username })
	return out, nil
}

// Following lists the users caller follows.
func (s *Store) Following(caller string) ([]types.UserSummary, error) {
	me, err := s.User(caller)
	if err != nil {
		return nil, err
	}
	return s.summaries(me.Following()), nil
}

// Followers lists the users following caller.
func (s *Store) Followers(caller string) ([]types.UserSummary, error) {
	me, err := s.User(caller)
	if err != nil {
		return nil, err
	}
	return s.summaries(me.Followers()), nil
}

func (s *Store) summaries(names []string) []types.UserSummary {
	s.mu.RLock()
	defer s.mu.RUnlock()

	out := make([]types.UserSummary, 0, len(names))
	for _, name := range names {
		if u, ok := s.users[name]; ok {
			out = append(out, u.Summary())
		}
	}
	return out
}

// Follow makes follower follow followed.
func (s *Store) Follow(follower, followed string) error {
	return s.setFollowing(follower, followed, true)
}

// Unfollow removes follower from followed's followers.
func (s *Store) Unfollow(follower, followed string) error {
	return s.setFollowing(follower, followed, false)
}

func (s *Store) setFollowing(follower, followed string, follow bool) error {
	from, err := s.User(follower)
	if err != nil {
		return err
	}
	to, err := s.User(followed)
	if err != nil {
		return err
	}
	if follower == followed {
		return ErrSelfFollow
	}

	first, second := from, to
	if second.Username < first.Username {
		first, second = second, first
	}
	first.mu.Lock()
	defer first.mu.Unlock()
	second.mu.Lock()
	defer second.mu.Unlock()

	_, already := from.following[followed]
	switch {
	case follow && already:
		return ErrAlreadyFollowing
	case !follow && !already:
		return ErrNotFollowing
	case follow:
		from.following[followed] = struct{}{}
		to.followers[follower] = struct{}{}
	default:
		delete(from.following, followed)
		delete(to.followers, follower)
	}
	s.MarkDirty()

	if s.onFollow != nil {
		s.onFollow(follower, followed, follow)
	}
	return nil
}

// CreatePost publishes a new post authored by author and returns its id.
func (s *Store) CreatePost(author, title, content string) (int64, error) {
	if err := validatePost(title, content); err != nil {
		return 0, err
	}
	u, err := s.User(author)
	if err != nil {
		return 0, err
	}

	id := s.nextPostID.Add(1) - 1
	p := newPost(id, author, title, content, s.now())

	s.mu.Lock()
	s.posts[id] = p
	s.mu.Unlock()

	u.mu.Lock()
	u.blog = append(u.blog, id)
	u.mu.Unlock()

	s.MarkDirty()
	return id, nil
}

// DeletePost removes a post from the store, its author's blog and the blog
// of every user who rewun it. Only the author may delete.
func (s *Store) DeletePost(caller string, id int64) error {
	p, err := s.Post(id)
	if err != nil {
		return err
	}
	if p.Author != caller {
		return ErrNotAuthor
	}

	s.mu.Lock()
	if _, ok := s.posts[id]; !ok {
		s.mu.Unlock()
		return ErrPostNotFound
	}
	delete(s.posts, id)
	s.mu.Unlock()

	p.mu.Lock()
	defer p.mu.Unlock()
	p.deleted = true

	holders := append(sortedKeys(p.rewinners), p.Author)
	for _, name := range holders {
		if u, err := s.User(name); err == nil {
			u.removeFromBlog(id)
		}
	}
	s.MarkDirty()
	return nil
}

// Blog returns the posts caller authored, in publication order.
func (s *Store) Blog(caller string) ([]types.PostSummary, error) {
	me, err := s.User(caller)
	if err != nil {
		return nil, err
	}

	out := make([]types.PostSummary, 0)
	for _, id := range me.Blog() {
		p, err := s.Post(id)
		if err != nil || p.Author != caller {
			continue
		}
		out = append(out, p.Summary())
	}
	return out, nil
}

// Feed returns the union of the blogs of everyone caller follows, newest
// post id first.
func (s *Store) Feed(caller string) ([]types.PostSummary, error) {
	me, err := s.User(caller)
	if err != nil {
		return nil, err
	}

	ids := make(map[int64]struct{})
	for _, name := range me.Following() {
		u, err := s.User(name)
		if err != nil {
			continue
		}
		for _, id := range u.Blog() {
			ids[id] = struct{}{}
		}
	}

	out := make([]types.PostSummary, 0, len(ids))
	for id := range ids {
		if p, err := s.Post(id); err == nil {
			out = append(out, p.Summary())
		}
	}
	sort.Slice(out, func(i, j int) bool { return out[i].ID > out[j].ID })
	return out, nil
}

// inFeed reports whether post id appears in the blog of someone caller follows.
func (s *Store) inFeed(caller string, id int64) bool {
	me, err := s.User(caller)
	if err != nil {
		return false
	}
	for _, name := range me.Following() {
		if u, err := s.User(name); err == nil && u.blogContains(id) {
			return true
		}
	}
	return false
}

// ShowPost renders a single post.
func (s *Store) ShowPost(id int64) (types.PostView, error) {
	p, err := s.Post(id)
	if err != nil {
		return types.PostView{}, err
	}
	return p.View(), nil
}

// Rewin adds an existing post from caller's feed to caller's blog without
// changing its author.
func (s *Store) Rewin(caller string, id int64) error {
	p, err := s.Post(id)
	if err != nil {
		return err
	}
	if p.Author == caller {
		return ErrSelfRewin
	}
	if !s.inFeed(caller, id) {
		return ErrNotInFeed
	}
	me, err := s.User(caller)
	if err != nil {
		return err
	}

	p.mu.Lock()
	defer p.mu.Unlock()
	if p.deleted {
		return ErrPostNotFound
	}

	me.mu.Lock()
	for _, existing := range me.blog {
		if existing == id {
			me.mu.Unlock()
			return ErrAlreadyRewun
		}
	}
	me.blog = append(me.blog, id)
	me.mu.Unlock()

	p.rewinners[caller] = struct{}{}
	s.MarkDirty()
	return nil
}

// Rate records caller's vote on post id.
func (s *Store) Rate(caller string, id int64, v Vote) error {
	if v != Upvote && v != Downvote {
		return ErrInvalidVote
	}
	p, err := s.Post(id)
	if err != nil {
		return err
	}
	if p.Author == caller {
		return ErrSelfVote
	}
	if !s.inFeed(caller, id) {
		return ErrNotInFeed
	}
	if err := p.vote(caller, v); err != nil {
		return err
	}
	s.MarkDirty()
	return nil
}

// AddComment appends caller's comment to post id and returns the comment id.
func (s *Store) AddComment(caller string, id int64, content string) (int64, error) {
	if strings.TrimSpace(content) == "" {
		return 0, ErrEmptyComment
	}
	p, err := s.Post(id)
	if err != nil {
		return 0, err
	}
	if p.Author == caller {
		return 0, ErrSelfComment
	}
	if !s.inFeed(caller, id) {
		return 0, ErrNotInFeed
	}

	c := Comment{
		ID:        s.nextCommentID.Add(1) - 1,
		Author:    caller,
		Content:   content,
		CreatedAt: s.now(),
	}
	if err := p.addComment(c); err != nil {
		return 0, err
	}
	s.MarkDirty()
	return c.ID, nil
}

// Wallet renders caller's wallet.
func (s *Store) Wallet(caller string) (types.WalletView, error) {
	u, err := s.User(caller)
	if err != nil {
		return types.WalletView{}, err
	}
	return u.Wallet().View(), nil
}

// Credit adds amount wincoin to username's wallet.
func (s *Store) Credit(username string, amount float64, label string) error {
	u, err := s.User(username)
	if err != nil {
		return err
	}
	u.Wallet().Credit(amount, label, s.now())
	s.MarkDirty()
	return nil
}
