package auth0

import (
	"context"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap"

	"github.com/publicai/gateway/internal/store/cache"
)

func TestManagementToken_MintedOnceThenCached(t *testing.T) {
	var tokenCalls int
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		require.Equal(t, "/oauth/token", r.URL.Path)
		tokenCalls++

		var body map[string]string
		require.NoError(t, json.NewDecoder(r.Body).Decode(&body))
		assert.Equal(t, "client_credentials", body["grant_type"])
		assert.Equal(t, "cid", body["client_id"])

		w.Write([]byte(`{"access_token":"mgmt-token","expires_in":86400}`))
	}))
	defer srv.Close()

	c := NewClient(srv.URL, "cid", "secret", http.DefaultClient, cache.NewMemoryCache(), zap.NewNop())

	for i := 0; i < 3; i++ {
		token, err := c.ManagementToken(context.Background())
		require.NoError(t, err)
		assert.Equal(t, "mgmt-token", token)
	}
	assert.Equal(t, 1, tokenCalls)
}

func TestUserBySub_EscapesSubject(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		switch r.URL.Path {
		case "/oauth/token":
			w.Write([]byte(`{"access_token":"mgmt-token"}`))
		default:
			assert.Equal(t, "/api/v2/users/auth0%7C12345", r.URL.EscapedPath())
			assert.Equal(t, "Bearer mgmt-token", r.Header.Get("Authorization"))
			w.Write([]byte(`{"user_id":"auth0|12345","email":"dev@example.com","name":"Dev"}`))
		}
	}))
	defer srv.Close()

	c := NewClient(srv.URL, "cid", "secret", http.DefaultClient, cache.NewMemoryCache(), zap.NewNop())
	user, err := c.UserBySub(context.Background(), "auth0|12345")
	require.NoError(t, err)
	assert.Equal(t, "dev@example.com", user.Email)
}
