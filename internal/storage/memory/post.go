package memory

import (
	"encoding/json"
	"sync"
	"time"
	"unicode/utf8"

	"github.com/princekumarofficial/winsome/internal/types"
)

const (
	MaxTitleLength   = 20
	MaxContentLength = 500
)

// Vote is a rating token: +1 or -1.
type Vote int8

const (
	Upvote   Vote = 1
	Downvote Vote = -1
)

// ParseVote accepts the "+1" and "-1" wire tokens.
func ParseVote(token string) (Vote, error) {
	switch token {
	case "+1":
		return Upvote, nil
	case "-1":
		return Downvote, nil
	}
	return 0, ErrInvalidVote
}

// Comment is immutable once created.
type Comment struct {
	ID        int64     `json:"id"`
	Author    string    `json:"author"`
	Content   string    `json:"content"`
	CreatedAt time.Time `json:"created_at"`
}

// Activity is what one reward pass drains from a post.
type Activity struct {
	Upvotes   int
	Downvotes int
	// Commenters maps each recent commenter to their total comment count
	// on the post.
	Commenters map[string]int
	Iteration  int
}

// Post is a published post. ID, Author, Title, Content and CreatedAt are
// immutable; everything else is guarded by mu, which also makes Drain a
// single atomic read-and-clear of the recent-activity counters.
type Post struct {
	ID        int64
	Author    string
	Title     string
	Content   string
	CreatedAt time.Time

	mu               sync.Mutex
	comments         []Comment
	upvoters         map[string]struct{}
	downvoters       map[string]struct{}
	commentCounts    map[string]int
	recentUpvotes    int
	recentDownvotes  int
	recentCommenters map[string]struct{}
	iteration        int
	rewinners        map[string]struct{}
	deleted          bool
}

func newPost(id int64, author, title, content string, at time.Time) *Post {
	return &Post{
		ID:               id,
		Author:           author,
		Title:            title,
		Content:          content,
		CreatedAt:        at,
		upvoters:         make(map[string]struct{}),
		downvoters:       make(map[string]struct{}),
		commentCounts:    make(map[string]int),
		recentCommenters: make(map[string]struct{}),
		iteration:        1,
		rewinners:        make(map[string]struct{}),
	}
}

func validatePost(title, content string) error {
	if n := utf8.RuneCountInString(title); n == 0 || n > MaxTitleLength {
		return ErrInvalidTitle
	}
	if n := utf8.RuneCountInString(content); n == 0 || n > MaxContentLength {
		return ErrInvalidContent
	}
	return nil
}

// vote records username's rating. A user holds at most one of upvote or
// downvote on a post, and never changes it.
func (p *Post) vote(username string, v Vote) error {
	p.mu.Lock()
	defer p.mu.Unlock()

	if p.deleted {
		return ErrPostNotFound
	}
	if _, ok := p.upvoters[username]; ok {
		return ErrAlreadyVoted
	}
	if _, ok := p.downvoters[username]; ok {
		return ErrAlreadyVoted
	}

	if v == Upvote {
		p.upvoters[username] = struct{}{}
		p.recentUpvotes++
	} else {
		p.downvoters[username] = struct{}{}
		p.recentDownvotes++
	}
	return nil
}

func (p *Post) addComment(c Comment) error {
	p.mu.Lock()
	defer p.mu.Unlock()

	if p.deleted {
		return ErrPostNotFound
	}
	p.comments = append(p.comments, c)
	p.commentCounts[c.Author]++
	p.recentCommenters[c.Author] = struct{}{}
	return nil
}

// Drain returns the activity accumulated since the previous call and clears
// it, advancing the iteration counter. Votes and comments racing with Drain
// land either in this result or in the next one.
func (p *Post) Drain() Activity {
	p.mu.Lock()
	defer p.mu.Unlock()

	act := Activity{
		Upvotes:    p.recentUpvotes,
		Downvotes:  p.recentDownvotes,
		Commenters: make(map[string]int, len(p.recentCommenters)),
		Iteration:  p.iteration,
	}
	for name := range p.recentCommenters {
		act.Commenters[name] = p.commentCounts[name]
	}

	p.recentUpvotes = 0
	p.recentDownvotes = 0
	p.recentCommenters = make(map[string]struct{})
	p.iteration++
	return act
}

// Pending reports the recent-activity counters without draining them.
func (p *Post) Pending() (upvotes, downvotes, commenters int) {
	p.mu.Lock()
	defer p.mu.Unlock()
	return p.recentUpvotes, p.recentDownvotes, len(p.recentCommenters)
}

// Voted reports whether username has rated the post, and how.
func (p *Post) Voted(username string) (Vote, bool) {
	p.mu.Lock()
	defer p.mu.Unlock()

	if _, ok := p.upvoters[username]; ok {
		return Upvote, true
	}
	if _, ok := p.downvoters[username]; ok {
		return Downvote, true
	}
	return 0, false
}

func (p *Post) Summary() types.PostSummary {
	return types.PostSummary{ID: p.ID, Author: p.Author, Title: p.Title}
}

func (p *Post) View() types.PostView {
	p.mu.Lock()
	defer p.mu.Unlock()

	view := types.PostView{
		ID:        p.ID,
		Author:    p.Author,
		Title:     p.Title,
		Content:   p.Content,
		Upvotes:   len(p.upvoters),
		Downvotes: len(p.downvoters),
		Comments:  make([]types.CommentView, 0, len(p.comments)),
		CreatedAt: p.CreatedAt,
	}
	for _, c := range p.comments {
		view.Comments = append(view.Comments, types.CommentView(c))
	}
	return view
}

type postRecord struct {
	ID               int64          `json:"id"`
	Author           string         `json:"author"`
	Title            string         `json:"title"`
	Content          string         `json:"content"`
	CreatedAt        time.Time      `json:"created_at"`
	Comments         []Comment      `json:"comments"`
	Upvoters         []string       `json:"upvoters"`
	Downvoters       []string       `json:"downvoters"`
	CommentCounts    map[string]int `json:"comment_counts"`
	RecentUpvotes    int            `json:"recent_upvotes"`
	RecentDownvotes  int            `json:"recent_downvotes"`
	RecentCommenters []string       `json:"recent_commenters"`
	Iteration        int            `json:"iteration"`
	Rewinners        []string       `json:"rewinners"`
}

func (p *Post) MarshalJSON() ([]byte, error) {
	p.mu.Lock()
	counts := make(map[string]int, len(p.commentCounts))
	for k, v := range p.commentCounts {
		counts[k] = v
	}
	rec := postRecord{
		ID:               p.ID,
		Author:           p.Author,
		Title:            p.Title,
		Content:          p.Content,
		CreatedAt:        p.CreatedAt,
		Comments:         append([]Comment(nil), p.comments...),
		Upvoters:         sortedKeys(p.upvoters),
		Downvoters:       sortedKeys(p.downvoters),
		CommentCounts:    counts,
		RecentUpvotes:    p.recentUpvotes,
		RecentDownvotes:  p.recentDownvotes,
		RecentCommenters: sortedKeys(p.recentCommenters),
		Iteration:        p.iteration,
		Rewinners:        sortedKeys(p.rewinners),
	}
	p.mu.Unlock()

	return json.Marshal(rec)
}

// UnmarshalJSON restores a post, repairing the invariants a hand-edited or
// partially written snapshot could break: a user voting both ways keeps only
// the upvote, and comment counts are recomputed from the comments.
func (p *Post) UnmarshalJSON(data []byte) error {
	var rec postRecord
	if err := json.Unmarshal(data, &rec); err != nil {
		return err
	}

	upvoters := toSet(rec.Upvoters)
	downvoters := make(map[string]struct{}, len(rec.Downvoters))
	for _, name := range rec.Downvoters {
		if _, up := upvoters[name]; !up {
			downvoters[name] = struct{}{}
		}
	}
	counts := make(map[string]int)
	for _, c := range rec.Comments {
		counts[c.Author]++
	}
	iteration := rec.Iteration
	if iteration < 1 {
		iteration = 1
	}

	*p = Post{
		ID:               rec.ID,
		Author:           rec.Author,
		Title:            rec.Title,
		Content:          rec.Content,
		CreatedAt:        rec.CreatedAt,
		comments:         rec.Comments,
		upvoters:         upvoters,
		downvoters:       downvoters,
		commentCounts:    counts,
		recentUpvotes:    rec.RecentUpvotes,
		recentDownvotes:  rec.RecentDownvotes,
		recentCommenters: toSet(rec.RecentCommenters),
		iteration:        iteration,
		rewinners:        toSet(rec.Rewinners),
	}
	return nil
}
