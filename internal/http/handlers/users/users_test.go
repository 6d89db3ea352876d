package users

import (
	"bytes"
	"encoding/json"
	"errors"
	"net/http"
	"net/http/httptest"
	"testing"

	"github.com/princekumarofficial/winsome/internal/storage/memory"
	"github.com/princekumarofficial/winsome/internal/types/users"
	"github.com/princekumarofficial/winsome/internal/utils/password"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func post(t *testing.T, h http.HandlerFunc, body string) (int, users.RegisterResponse) {
	t.Helper()
	rec := httptest.NewRecorder()
	h(rec, httptest.NewRequest(http.MethodPost, "/register", bytes.NewBufferString(body)))

	var resp users.RegisterResponse
	if rec.Code == http.StatusOK {
		require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &resp))
	}
	return rec.Code, resp
}

func TestRegisterCodes(t *testing.T) {
	tests := []struct {
		name string
		body string
		code int
	}{
		{"ok", `{"username":"alice","password":"pw","tags":["art","Music"]}`, users.CodeOK},
		{"empty password", `{"username":"bob","password":"","tags":["art"]}`, users.CodeEmptyPassword},
		{"no tags", `{"username":"bob","password":"pw","tags":[]}`, users.CodeNoTags},
		{"missing tags", `{"username":"bob","password":"pw"}`, users.CodeNoTags},
		{"too many tags", `{"username":"bob","password":"pw","tags":["a","b","c","d","e","f"]}`, users.CodeTooManyTags},
		{"duplicate", `{"username":"alice","password":"other","tags":["art"]}`, users.CodeUsernameTaken},
		{"bad username", `{"username":"bob smith","password":"pw","tags":["art"]}`, users.CodeInvalidUsername},
		{"empty username", `{"username":"","password":"pw","tags":["art"]}`, users.CodeInvalidUsername},
		{"password wins over tags", `{"username":"bob","password":"","tags":[]}`, users.CodeEmptyPassword},
		{"repeated tags count once", `{"username":"dave","password":"pw","tags":["a","A","b","c","d"," e "]}`, users.CodeOK},
		{"blank tags only", `{"username":"erin","password":"pw","tags":[" ",""]}`, users.CodeNoTags},
	}

	store := memory.New()
	h := Register(store)

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			status, resp := post(t, h, tt.body)
			assert.Equal(t, http.StatusOK, status)
			assert.Equal(t, tt.code, resp.Code)
		})
	}

	u, err := store.User("alice")
	require.NoError(t, err)
	assert.ElementsMatch(t, []string{"art", "music"}, u.Tags)
	assert.True(t, password.CheckPasswordHash("pw", u.PasswordHash))

	u, err = store.User("dave")
	require.NoError(t, err)
	assert.Equal(t, []string{"a", "b", "c", "d", "e"}, u.Tags)
}

func TestRegisterMalformedBody(t *testing.T) {
	status, _ := post(t, Register(memory.New()), `{"username":`)
	assert.Equal(t, http.StatusBadRequest, status)
}

type failingStore struct{}

func (failingStore) Register(string, string, []string) error { return errors.New("disk on fire") }

func TestRegisterServerError(t *testing.T) {
	_, resp := post(t, Register(failingStore{}), `{"username":"carol","password":"pw","tags":["x"]}`)
	assert.Equal(t, users.CodeServerError, resp.Code)
}
