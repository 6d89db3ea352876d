package server

import (
	"errors"

	"github.com/princekumarofficial/winsome/internal/session"
	"github.com/princekumarofficial/winsome/internal/storage/memory"
)

// Wire status codes. Zero is success; negative codes mean the request shape
// was not recognized.
const (
	StatusOK               int32 = 0
	StatusNoSession        int32 = 1
	StatusInvalidArguments int32 = 2
	StatusNotFound         int32 = 3
	StatusAlreadyLoggedIn  int32 = 4
	StatusWrongCredentials int32 = 5
	StatusSelfFollow       int32 = 6
	StatusAlreadyFollowing int32 = 7
	StatusNotFollowing     int32 = 8
	StatusSelfVote         int32 = 9
	StatusAlreadyVoted     int32 = 10
	StatusNotInFeed        int32 = 11
	StatusSelfComment      int32 = 12
	StatusNotAuthor        int32 = 13
	StatusSelfRewin        int32 = 14
	StatusAlreadyRewun     int32 = 15
	StatusConnectionInUse  int32 = 16
	StatusServerError      int32 = 17
	StatusRateLimited      int32 = 18
	StatusUnknownCommand   int32 = -1
)

var statusTable = []struct {
	err    error
	status int32
}{
	{session.ErrNoSession, StatusNoSession},
	{session.ErrAlreadyLoggedIn, StatusAlreadyLoggedIn},
	{session.ErrWrongCredentials, StatusWrongCredentials},
	{session.ErrHandleInUse, StatusConnectionInUse},

	{memory.ErrInvalidUsername, StatusInvalidArguments},
	{memory.ErrInvalidTitle, StatusInvalidArguments},
	{memory.ErrInvalidContent, StatusInvalidArguments},
	{memory.ErrEmptyComment, StatusInvalidArguments},
	{memory.ErrInvalidVote, StatusInvalidArguments},

	{memory.ErrUserNotFound, StatusNotFound},
	{memory.ErrPostNotFound, StatusNotFound},

	{memory.ErrSelfFollow, StatusSelfFollow},
	{memory.ErrAlreadyFollowing, StatusAlreadyFollowing},
	{memory.ErrNotFollowing, StatusNotFollowing},
	{memory.ErrSelfVote, StatusSelfVote},
	{memory.ErrAlreadyVoted, StatusAlreadyVoted},
	{memory.ErrNotInFeed, StatusNotInFeed},
	{memory.ErrSelfComment, StatusSelfComment},
	{memory.ErrNotAuthor, StatusNotAuthor},
	{memory.ErrSelfRewin, StatusSelfRewin},
	{memory.ErrAlreadyRewun, StatusAlreadyRewun},
}

// StatusFor maps a domain or session error to its wire status. Unknown
// errors are server errors.
func StatusFor(err error) int32 {
	if err == nil {
		return StatusOK
	}
	for _, e := range statusTable {
		if errors.Is(err, e.err) {
			return e.status
		}
	}
	return StatusServerError
}
