package email

import (
	"context"
	"errors"
	"fmt"
	"sync"
	"time"

	"github.com/google/uuid"
	"golang.org/x/oauth2"
)

// ErrNoAccessToken is returned when a code exchange yields no access token
var ErrNoAccessToken = errors.New("no access token returned")

// AuthCodeURL returns the consent screen URL. Offline access with a forced
// consent prompt makes Google issue a refresh token every time.
func (m *TokenManager) AuthCodeURL(state string) string {
	return m.config.AuthCodeURL(state, oauth2.AccessTypeOffline, oauth2.SetAuthURLParam("prompt", "consent"))
}

// Connect exchanges an authorization code and stores the resulting tokens
// for the user
func (m *TokenManager) Connect(ctx context.Context, userID int64, code string) (Account, error) {
	ctx = context.WithValue(ctx, oauth2.HTTPClient, m.httpClient)
	token, err := m.config.Exchange(ctx, code)
	if err != nil {
		return Account{}, fmt.Errorf("token exchange failed: %w", err)
	}
	if token.AccessToken == "" {
		return Account{}, ErrNoAccessToken
	}

	expiry := token.Expiry
	if expiry.IsZero() {
		expiry = m.now().Add(defaultTokenLifetime)
	}

	acct := Account{
		UserID:       userID,
		AccessToken:  token.AccessToken,
		RefreshToken: token.RefreshToken,
		Expiry:       expiry,
	}

	if m.store != nil {
		if err := m.store.UpdateGmailTokens(ctx, userID, acct.AccessToken, acct.RefreshToken, acct.Expiry); err != nil {
			return Account{}, fmt.Errorf("failed to store tokens: %w", err)
		}
	}

	m.logger.Info("Connected mailbox", "user_id", userID, "has_refresh_token", acct.RefreshToken != "")
	return acct, nil
}

// StateStore binds OAuth state nonces to the user that started the flow
type StateStore struct {
	mu      sync.Mutex
	entries map[string]stateEntry
	ttl     time.Duration
	now     func() time.Time
}

type stateEntry struct {
	userID    int64
	expiresAt time.Time
}

// NewStateStore creates a state store whose nonces expire after ttl
func NewStateStore(ttl time.Duration) *StateStore {
	if ttl <= 0 {
		ttl = 10 * time.Minute
	}
	return &StateStore{
		entries: make(map[string]stateEntry),
		ttl:     ttl,
		now:     time.Now,
	}
}

// Issue creates a new nonce for the user
func (s *StateStore) Issue(userID int64) string {
	state := uuid.NewString()

	s.mu.Lock()
	defer s.mu.Unlock()

	now := s.now()
	for key, entry := range s.entries {
		if now.After(entry.expiresAt) {
			delete(s.entries, key)
		}
	}
	s.entries[state] = stateEntry{userID: userID, expiresAt: now.Add(s.ttl)}
	return state
}

// Consume returns the user bound to state and invalidates it. A nonce can
// only be used once.
func (s *StateStore) Consume(state string) (int64, bool) {
	s.mu.Lock()
	defer s.mu.Unlock()

	entry, ok := s.entries[state]
	if !ok {
		return 0, false
	}
	delete(s.entries, state)
	if s.now().After(entry.expiresAt) {
		return 0, false
	}
	return entry.userID, true
}
