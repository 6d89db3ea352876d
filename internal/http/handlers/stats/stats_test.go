package stats

import (
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"testing"

	"github.com/princekumarofficial/winsome/internal/storage/memory"
	"github.com/princekumarofficial/winsome/internal/types/users"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

type fixed int

func (f fixed) Count() int          { return int(f) }
func (f fixed) GetClientCount() int { return int(f) }

func TestStats(t *testing.T) {
	store := memory.New()
	require.NoError(t, store.Register("alice", "h", []string{"art"}))
	require.NoError(t, store.Register("bob", "h", []string{"art"}))
	_, err := store.CreatePost("alice", "hello", "first post")
	require.NoError(t, err)

	rec := httptest.NewRecorder()
	Stats(store, fixed(2), fixed(1))(rec, httptest.NewRequest(http.MethodGet, "/stats", nil))
	require.Equal(t, http.StatusOK, rec.Code)

	var body struct {
		Data users.ServerStats `json:"data"`
	}
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &body))
	assert.Equal(t, users.ServerStats{Users: 2, Posts: 1, Sessions: 2, Subscribers: 1}, body.Data)
}

func TestHealth(t *testing.T) {
	rec := httptest.NewRecorder()
	Health()(rec, httptest.NewRequest(http.MethodGet, "/health", nil))
	assert.Equal(t, http.StatusOK, rec.Code)
	assert.JSONEq(t, `{"status":"ok"}`, rec.Body.String())
}
