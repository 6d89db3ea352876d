package middleware

import (
	"context"
	"errors"
	"net/http"
	"strings"

	"github.com/princekumarofficial/winsome/internal/utils/jwt"
	"github.com/princekumarofficial/winsome/internal/utils/response"
)

type contextKey string

const (
	UserIDKey    contextKey = "userID"
	SessionIDKey contextKey = "sessionID"
)

// SessionValidator reports whether a session id is still the user's live
// session.
type SessionValidator interface {
	Valid(username, sessionID string) bool
}

// AuthMiddleware accepts a notify token from the Authorization header or
// the token query parameter. The token must name the user's current session;
// a token from an earlier login is rejected.
func AuthMiddleware(jwtSecret string, sessions SessionValidator) func(http.Handler) http.Handler {
	return func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			token, err := bearer(r)
			if err != nil {
				response.WriteJSON(w, http.StatusUnauthorized, response.GeneralError(err))
				return
			}

			userID, sessionID, err := jwt.ParseToken(token, jwtSecret)
			if err != nil {
				response.WriteJSON(w, http.StatusUnauthorized, response.GeneralError(
					errors.New("invalid token")))
				return
			}

			if !sessions.Valid(userID, sessionID) {
				response.WriteJSON(w, http.StatusUnauthorized, response.GeneralError(
					errors.New("session expired")))
				return
			}

			ctx := context.WithValue(r.Context(), UserIDKey, userID)
			ctx = context.WithValue(ctx, SessionIDKey, sessionID)
			next.ServeHTTP(w, r.WithContext(ctx))
		})
	}
}

func bearer(r *http.Request) (string, error) {
	if authHeader := r.Header.Get("Authorization"); authHeader != "" {
		if !strings.HasPrefix(authHeader, "Bearer ") {
			return "", errors.New("invalid authorization header format")
		}
		token := strings.TrimPrefix(authHeader, "Bearer ")
		if token == "" {
			return "", errors.New("token not provided")
		}
		return token, nil
	}

	// Browsers cannot set headers on a websocket handshake.
	if token := r.URL.Query().Get("token"); token != "" {
		return token, nil
	}
	return "", errors.New("token required")
}

// GetUserIDFromContext extracts the user ID from the request context
func GetUserIDFromContext(ctx context.Context) (string, bool) {
	userID, ok := ctx.Value(UserIDKey).(string)
	return userID, ok
}

// GetSessionIDFromContext extracts the login session ID from the request context
func GetSessionIDFromContext(ctx context.Context) (string, bool) {
	sessionID, ok := ctx.Value(SessionIDKey).(string)
	return sessionID, ok
}
