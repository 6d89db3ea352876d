package stats

import (
	"net/http"

	"github.com/princekumarofficial/winsome/internal/types/users"
	"github.com/princekumarofficial/winsome/internal/utils/response"
)

type Counter interface {
	Stats() (users, posts int)
}

type SessionCounter interface {
	Count() int
}

type SubscriberCounter interface {
	GetClientCount() int
}

// Health always answers while the process is serving HTTP.
func Health() http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		response.WriteJSON(w, http.StatusOK, map[string]string{"status": "ok"})
	}
}

// Stats reports live counters.
func Stats(store Counter, sessions SessionCounter, subscribers SubscriberCounter) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		u, p := store.Stats()
		response.WriteJSON(w, http.StatusOK, response.RequestOK("Server stats retrieved", users.ServerStats{
			Users:       u,
			Posts:       p,
			Sessions:    sessions.Count(),
			Subscribers: subscribers.GetClientCount(),
		}))
	}
}
