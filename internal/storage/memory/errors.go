package memory

import "errors"

// Argument errors.
var (
	ErrInvalidUsername = errors.New("invalid username")
	ErrInvalidTitle    = errors.New("title must be 1..20 characters")
	ErrInvalidContent  = errors.New("content must be 1..500 characters")
	ErrEmptyComment    = errors.New("comment must not be empty")
	ErrInvalidVote     = errors.New("vote must be +1 or -1")
)

// Lookup errors.
var (
	ErrUserNotFound = errors.New("user not found")
	ErrPostNotFound = errors.New("post not found")
)

// Rule violations.
var (
	ErrUserExists       = errors.New("username already taken")
	ErrSelfFollow       = errors.New("cannot follow yourself")
	ErrAlreadyFollowing = errors.New("already following")
	ErrNotFollowing     = errors.New("not following")
	ErrSelfVote         = errors.New("cannot rate your own post")
	ErrAlreadyVoted     = errors.New("post already rated")
	ErrNotInFeed        = errors.New("post is not in your feed")
	ErrSelfComment      = errors.New("cannot comment your own post")
	ErrNotAuthor        = errors.New("only the author can delete a post")
	ErrSelfRewin        = errors.New("cannot rewin your own post")
	ErrAlreadyRewun     = errors.New("post already in your blog")
)
