package server

import (
	"context"
	"errors"
	"log/slog"
	"strconv"
	"strings"

	"github.com/princekumarofficial/winsome/internal/ratelimit"
	"github.com/princekumarofficial/winsome/internal/session"
	"github.com/princekumarofficial/winsome/internal/storage/memory"
	"github.com/princekumarofficial/winsome/internal/types"
	"github.com/princekumarofficial/winsome/internal/utils/jwt"
	"github.com/princekumarofficial/winsome/internal/wire"
)

// request is one decoded command issued by a logged-in user.
type request struct {
	ctx  context.Context
	h    session.Handle
	user string
	args []string
}

type handlerFunc func(s *Server, req *request) wire.Response

type command struct {
	// freeText commands carry a title or comment that may contain spaces.
	freeText bool
	// limit names the rate-limited action, if any.
	limit   string
	handler handlerFunc
}

var commands = map[string]command{
	"logout":   {handler: (*Server).logout},
	"list":     {handler: (*Server).list},
	"follow":   {handler: (*Server).follow},
	"unfollow": {handler: (*Server).unfollow},
	"blog":     {handler: (*Server).blog},
	"post":     {freeText: true, limit: ratelimit.ActionPost, handler: (*Server).post},
	"show":     {handler: (*Server).show},
	"delete":   {handler: (*Server).deletePost},
	"rewin":    {limit: ratelimit.ActionRewin, handler: (*Server).rewin},
	"rate":     {limit: ratelimit.ActionRate, handler: (*Server).rate},
	"comment":  {freeText: true, limit: ratelimit.ActionComment, handler: (*Server).comment},
	"wallet":   {handler: (*Server).wallet},
}

// ResponseHasPayload reports, per command name, which statuses carry a
// payload. Clients use it to decode responses.
func ResponseHasPayload(name string) func(status int32) bool {
	switch name {
	case "login", "list", "blog", "post", "show", "comment", "wallet":
		return func(status int32) bool { return status == StatusOK }
	default:
		return nil
	}
}

// Handle executes one request frame on behalf of connection h. A non-nil
// error is a protocol violation and the connection must be dropped.
func (s *Server) Handle(h session.Handle, frame []byte) (wire.Response, error) {
	cmd, err := wire.ParseCommand(frame)
	if errors.Is(err, wire.ErrEmptyCommand) {
		return wire.Status(StatusUnknownCommand), nil
	}
	if err != nil {
		return wire.Response{}, err
	}

	ctx, cancel := context.WithTimeout(context.Background(), requestTimeout)
	defer cancel()

	if cmd.Name == "login" {
		return s.login(h, cmd.Rest), nil
	}

	entry, ok := commands[cmd.Name]
	if !ok {
		return wire.Status(StatusUnknownCommand), nil
	}

	user, args, argsOK := splitArgs(cmd.Rest, entry.freeText)

	owner, loggedIn := s.sessions.Owner(h)
	switch {
	case !loggedIn:
		return wire.Status(StatusNoSession), nil
	case user == "":
		return wire.Status(StatusInvalidArguments), nil
	case user != owner:
		return wire.Status(StatusNoSession), nil
	case !argsOK:
		return wire.Status(StatusInvalidArguments), nil
	}

	if entry.limit != "" && !s.allow(ctx, user, entry.limit) {
		return wire.Status(StatusRateLimited), nil
	}

	return entry.handler(s, &request{ctx: ctx, h: h, user: user, args: args}), nil
}

// splitArgs separates the trailing username from the operation arguments.
// When the arguments are malformed the username is still recovered from
// the last space-separated token so the session check can run first.
func splitArgs(rest string, freeText bool) (user string, args []string, ok bool) {
	if freeText {
		first, middle, last, err := wire.FreeText(rest)
		switch {
		case err == nil && last == "":
			return "", nil, false
		case err == nil:
			return last, []string{first, middle}, true
		}
		return lastToken(rest), nil, false
	}

	fields, err := wire.Fields(rest)
	if err != nil {
		return lastToken(rest), nil, false
	}
	if len(fields) == 0 {
		return "", nil, false
	}
	return fields[len(fields)-1], fields[:len(fields)-1], true
}

func lastToken(s string) string {
	fields := strings.Fields(s)
	if len(fields) == 0 {
		return ""
	}
	return fields[len(fields)-1]
}

func (s *Server) allow(ctx context.Context, user, action string) bool {
	if s.limiter == nil {
		return true
	}
	ok, err := s.limiter.Allow(ctx, user, action)
	if err != nil {
		// The limiter is advisory; an outage must not block users.
		s.logger.Warn("Rate limiter unavailable",
			slog.String("action", action),
			slog.String("error", err.Error()))
		return true
	}
	return ok
}

func (s *Server) status(err error) wire.Response {
	code := StatusFor(err)
	if code == StatusServerError {
		s.logger.Error("Request failed", slog.String("error", err.Error()))
	}
	return wire.Status(code)
}

func (s *Server) payload(v interface{}) wire.Response {
	resp, err := wire.WithJSON(StatusOK, v)
	if err != nil {
		s.logger.Error("Failed to encode payload", slog.String("error", err.Error()))
		return wire.Status(StatusServerError)
	}
	return resp
}

func parseID(token string) (int64, bool) {
	id, err := strconv.ParseInt(token, 10, 64)
	return id, err == nil && id >= 0
}

func (s *Server) login(h session.Handle, rest string) wire.Response {
	fields, err := wire.Fields(rest)
	if err != nil || len(fields) != 2 {
		return wire.Status(StatusInvalidArguments)
	}

	sess, err := s.sessions.Login(fields[0], fields[1], h)
	if err != nil {
		return s.status(err)
	}

	out := types.LoginPayload{
		MulticastIP:   s.cfg.MulticastIP,
		MulticastPort: s.cfg.MulticastPort,
	}
	if s.cfg.JWTSecret != "" {
		token, err := jwt.CreateToken(sess.Username, sess.ID, s.cfg.JWTSecret)
		if err != nil {
			s.logger.Error("Failed to issue notification token", slog.String("error", err.Error()))
		} else {
			out.NotifyToken = token
		}
	}
	return s.payload(out)
}

func (s *Server) logout(req *request) wire.Response {
	if len(req.args) != 0 {
		return wire.Status(StatusInvalidArguments)
	}
	if err := s.sessions.Logout(req.user, req.h); err != nil {
		return s.status(err)
	}
	return wire.Status(StatusOK)
}

func (s *Server) list(req *request) wire.Response {
	if len(req.args) != 1 {
		return wire.Status(StatusInvalidArguments)
	}

	var (
		out []types.UserSummary
		err error
	)
	switch req.args[0] {
	case "users":
		out, err = s.store.ListUsers(req.user)
	case "following":
		out, err = s.store.Following(req.user)
	case "followers":
		out, err = s.store.Followers(req.user)
	default:
		return wire.Status(StatusInvalidArguments)
	}
	if err != nil {
		return s.status(err)
	}
	return s.payload(out)
}

func (s *Server) follow(req *request) wire.Response {
	if len(req.args) != 1 {
		return wire.Status(StatusInvalidArguments)
	}
	return s.status(s.store.Follow(req.user, req.args[0]))
}

func (s *Server) unfollow(req *request) wire.Response {
	if len(req.args) != 1 {
		return wire.Status(StatusInvalidArguments)
	}
	return s.status(s.store.Unfollow(req.user, req.args[0]))
}

func (s *Server) blog(req *request) wire.Response {
	if len(req.args) != 0 {
		return wire.Status(StatusInvalidArguments)
	}
	out, err := s.store.Blog(req.user)
	if err != nil {
		return s.status(err)
	}
	return s.payload(out)
}

func (s *Server) post(req *request) wire.Response {
	id, err := s.store.CreatePost(req.user, req.args[0], req.args[1])
	if err != nil {
		return s.status(err)
	}
	return s.payload(types.CreatedView{ID: id})
}

func (s *Server) show(req *request) wire.Response {
	switch {
	case len(req.args) == 1 && req.args[0] == "feed":
		out, err := s.store.Feed(req.user)
		if err != nil {
			return s.status(err)
		}
		return s.payload(out)

	case len(req.args) == 2 && req.args[0] == "post":
		id, ok := parseID(req.args[1])
		if !ok {
			return wire.Status(StatusInvalidArguments)
		}
		out, err := s.store.ShowPost(id)
		if err != nil {
			return s.status(err)
		}
		return s.payload(out)
	}
	return wire.Status(StatusInvalidArguments)
}

func (s *Server) deletePost(req *request) wire.Response {
	if len(req.args) != 1 {
		return wire.Status(StatusInvalidArguments)
	}
	id, ok := parseID(req.args[0])
	if !ok {
		return wire.Status(StatusInvalidArguments)
	}
	return s.status(s.store.DeletePost(req.user, id))
}

func (s *Server) rewin(req *request) wire.Response {
	if len(req.args) != 1 {
		return wire.Status(StatusInvalidArguments)
	}
	id, ok := parseID(req.args[0])
	if !ok {
		return wire.Status(StatusInvalidArguments)
	}
	return s.status(s.store.Rewin(req.user, id))
}

func (s *Server) rate(req *request) wire.Response {
	if len(req.args) != 2 {
		return wire.Status(StatusInvalidArguments)
	}
	id, ok := parseID(req.args[0])
	if !ok {
		return wire.Status(StatusInvalidArguments)
	}
	vote, err := memory.ParseVote(req.args[1])
	if err != nil {
		return wire.Status(StatusInvalidArguments)
	}
	return s.status(s.store.Rate(req.user, id, vote))
}

func (s *Server) comment(req *request) wire.Response {
	id, ok := parseID(strings.TrimSpace(req.args[0]))
	if !ok {
		return wire.Status(StatusInvalidArguments)
	}
	cid, err := s.store.AddComment(req.user, id, req.args[1])
	if err != nil {
		return s.status(err)
	}
	return s.payload(types.CreatedView{ID: cid})
}

func (s *Server) wallet(req *request) wire.Response {
	view, err := s.store.Wallet(req.user)
	if err != nil {
		return s.status(err)
	}

	switch {
	case len(req.args) == 0:
		return s.payload(view)
	case len(req.args) == 1 && req.args[0] == "btc":
		if s.exchange == nil {
			return wire.Status(StatusServerError)
		}
		out, err := s.exchange.Convert(req.ctx, view.Balance)
		if err != nil {
			s.logger.Warn("Currency conversion failed",
				slog.String("user", req.user),
				slog.String("error", err.Error()))
			return wire.Status(StatusServerError)
		}
		return s.payload(out)
	}
	return wire.Status(StatusInvalidArguments)
}
