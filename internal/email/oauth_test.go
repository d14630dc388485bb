package email

import (
	"context"
	"fmt"
	"net/http"
	"net/http/httptest"
	"net/url"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/mock"
	"github.com/stretchr/testify/require"
)

func TestAuthCodeURL(t *testing.T) {
	tm := NewTokenManager(OAuthConfig{
		ClientID:    "client-id",
		RedirectURL: "http://localhost:8080/api/auth/gmail/callback",
	}, nil, nil, testLogger())

	u, err := url.Parse(tm.AuthCodeURL("nonce-1"))
	require.NoError(t, err)

	q := u.Query()
	assert.Equal(t, "accounts.google.com", u.Host)
	assert.Equal(t, "nonce-1", q.Get("state"))
	assert.Equal(t, "offline", q.Get("access_type"))
	assert.Equal(t, "consent", q.Get("prompt"))
	assert.Equal(t, "client-id", q.Get("client_id"))
	assert.Contains(t, q.Get("scope"), "gmail.readonly")
}

func TestConnect(t *testing.T) {
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		assert.NoError(t, r.ParseForm())
		assert.Equal(t, "authorization_code", r.PostForm.Get("grant_type"))
		w.Header().Set("Content-Type", "application/json")
		if r.PostForm.Get("code") == "empty" {
			fmt.Fprint(w, `{"token_type":"Bearer"}`)
			return
		}
		fmt.Fprint(w, `{"access_token":"access","refresh_token":"refresh","token_type":"Bearer","expires_in":3600}`)
	}))
	defer server.Close()

	store := &MockCredentialStore{}
	store.On("UpdateGmailTokens", mock.Anything, int64(7), "access", "refresh", mock.AnythingOfType("time.Time")).Return(nil).Once()
	tm := newTestTokenManager(server.URL, store)

	acct, err := tm.Connect(context.Background(), 7, "good-code")
	require.NoError(t, err)
	assert.Equal(t, "access", acct.AccessToken)
	assert.Equal(t, "refresh", acct.RefreshToken)

	_, err = tm.Connect(context.Background(), 7, "empty")
	assert.Error(t, err)
	store.AssertExpectations(t)
}

func TestStateStore(t *testing.T) {
	store := NewStateStore(time.Minute)
	now := time.Now()
	store.now = func() time.Time { return now }

	state := store.Issue(42)
	assert.NotEmpty(t, state)

	userID, ok := store.Consume(state)
	assert.True(t, ok)
	assert.Equal(t, int64(42), userID)

	_, ok = store.Consume(state)
	assert.False(t, ok, "nonce must be single use")

	expired := store.Issue(43)
	now = now.Add(2 * time.Minute)
	_, ok = store.Consume(expired)
	assert.False(t, ok)

	_, ok = store.Consume("unknown")
	assert.False(t, ok)
}
