package websocket

import (
	"errors"
	"log/slog"
	"net/http"

	"github.com/gorilla/websocket"
	"github.com/princekumarofficial/winsome/internal/http/middleware"
	"github.com/princekumarofficial/winsome/internal/utils/response"
	wsClient "github.com/princekumarofficial/winsome/internal/websocket"
)

var upgrader = websocket.Upgrader{
	ReadBufferSize:  1024,
	WriteBufferSize: 1024,
	// Native clients send no Origin; the token is the credential.
	CheckOrigin: func(r *http.Request) bool { return true },
}

// Notify upgrades an authenticated request to the user's notification
// stream. It must sit behind middleware.AuthMiddleware. A newer
// subscription for the same user replaces the older one.
func Notify(hub *wsClient.Hub) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		userID, ok := middleware.GetUserIDFromContext(r.Context())
		sessionID, hasSession := middleware.GetSessionIDFromContext(r.Context())
		if !ok || !hasSession {
			response.WriteJSON(w, http.StatusUnauthorized, response.GeneralError(errors.New("unauthorized")))
			return
		}

		conn, err := upgrader.Upgrade(w, r, nil)
		if err != nil {
			slog.Error("failed to upgrade notify connection", slog.String("error", err.Error()))
			return
		}

		client := wsClient.NewClient(conn, userID, sessionID, hub)
		hub.RegisterClient(client)
		client.Start()

		slog.Info("notify subscription established", slog.String("user_id", userID))
	}
}
