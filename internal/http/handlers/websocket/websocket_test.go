package websocket

import (
	"context"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"
	"time"

	"github.com/gorilla/websocket"
	"github.com/princekumarofficial/winsome/internal/http/middleware"
	"github.com/princekumarofficial/winsome/internal/types"
	"github.com/princekumarofficial/winsome/internal/utils/jwt"
	wsClient "github.com/princekumarofficial/winsome/internal/websocket"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

const secret = "notify-secret"

type liveSessions map[string]string

func (l liveSessions) Valid(username, sessionID string) bool { return l[username] == sessionID }

func TestNotifyDeliversDirectedEvents(t *testing.T) {
	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	hub := wsClient.NewHub()
	go hub.Run(ctx)

	mux := http.NewServeMux()
	mux.Handle("GET /notify", middleware.AuthMiddleware(secret, liveSessions{"erin": "s1"})(Notify(hub)))
	srv := httptest.NewServer(mux)
	defer srv.Close()

	token, err := jwt.CreateToken("erin", "s1", secret)
	require.NoError(t, err)

	url := "ws" + strings.TrimPrefix(srv.URL, "http") + "/notify?token=" + token
	conn, _, err := websocket.DefaultDialer.Dial(url, nil)
	require.NoError(t, err)
	defer conn.Close()

	require.Eventually(t, func() bool { return hub.IsUserConnected("erin") }, 2*time.Second, 10*time.Millisecond)

	hub.BroadcastToUser("erin", types.NewEvent(types.EventNewFollower, types.FollowerEvent{Username: "dave"}))

	conn.SetReadDeadline(time.Now().Add(2 * time.Second))
	_, msg, err := conn.ReadMessage()
	require.NoError(t, err)

	var got struct {
		Type string `json:"type"`
		Data struct {
			Username string `json:"username"`
		} `json:"data"`
	}
	require.NoError(t, json.Unmarshal(msg, &got))
	assert.Equal(t, string(types.EventNewFollower), got.Type)
	assert.Equal(t, "dave", got.Data.Username)

	// Teardown of some other session leaves the stream up.
	hub.Disconnect("erin", "s0")
	hub.BroadcastToUser("erin", types.NewEvent(types.EventNewFollower, types.FollowerEvent{Username: "frank"}))
	conn.SetReadDeadline(time.Now().Add(2 * time.Second))
	_, msg, err = conn.ReadMessage()
	require.NoError(t, err)
	assert.Contains(t, string(msg), "frank")

	// Logging out tears the stream down.
	hub.Disconnect("erin", "s1")
	conn.SetReadDeadline(time.Now().Add(2 * time.Second))
	_, _, err = conn.ReadMessage()
	assert.Error(t, err)
}

func TestNotifyRejectsUnauthenticated(t *testing.T) {
	hub := wsClient.NewHub()
	h := middleware.AuthMiddleware(secret, liveSessions{})(Notify(hub))

	rec := httptest.NewRecorder()
	h.ServeHTTP(rec, httptest.NewRequest(http.MethodGet, "/notify", nil))
	assert.Equal(t, http.StatusUnauthorized, rec.Code)
	assert.Equal(t, 0, hub.GetClientCount())
}
