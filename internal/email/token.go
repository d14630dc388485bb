package email

import (
	"context"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"net/http"
	"strings"
	"time"

	"golang.org/x/oauth2"
	"golang.org/x/oauth2/google"
	"google.golang.org/api/gmail/v1"
)

// ExpiryMargin is how long before expiry a token is treated as expired
const ExpiryMargin = 5 * time.Minute

// defaultTokenLifetime applies when the token endpoint omits expires_in
const defaultTokenLifetime = time.Hour

// ErrExpiredNoRefresh is returned when the access token is expired and there
// is no refresh token to renew it with
var ErrExpiredNoRefresh = errors.New("Gmail session expired (no refresh token). Please reconnect Gmail.")

// RefreshFailedError is returned when the token endpoint rejects a refresh
type RefreshFailedError struct {
	StatusCode int
	Body       string
}

func (e *RefreshFailedError) Error() string {
	return fmt.Sprintf("Gmail refresh failed (%d): %s", e.StatusCode, e.Body)
}

// OAuthConfig holds the OAuth client settings for the mail provider
type OAuthConfig struct {
	ClientID     string
	ClientSecret string
	RedirectURL  string
	// AuthURL and TokenURL override Google's endpoints when set
	AuthURL  string
	TokenURL string
}

// TokenManager keeps mailbox access tokens valid. It refreshes ahead of
// expiry and once more on an unexpected 401.
type TokenManager struct {
	config     *oauth2.Config
	store      CredentialStore
	httpClient *http.Client
	logger     *slog.Logger
	now        func() time.Time
}

// NewTokenManager creates a token manager. httpClient is used for calls to
// the token endpoint and may be nil.
func NewTokenManager(cfg OAuthConfig, store CredentialStore, httpClient *http.Client, logger *slog.Logger) *TokenManager {
	if logger == nil {
		logger = slog.Default()
	}
	if httpClient == nil {
		httpClient = &http.Client{Timeout: 30 * time.Second}
	}

	endpoint := google.Endpoint
	if cfg.AuthURL != "" {
		endpoint.AuthURL = cfg.AuthURL
	}
	if cfg.TokenURL != "" {
		endpoint.TokenURL = cfg.TokenURL
	}
	endpoint.AuthStyle = oauth2.AuthStyleInParams

	return &TokenManager{
		config: &oauth2.Config{
			ClientID:     cfg.ClientID,
			ClientSecret: cfg.ClientSecret,
			RedirectURL:  cfg.RedirectURL,
			Scopes:       []string{gmail.GmailReadonlyScope},
			Endpoint:     endpoint,
		},
		store:      store,
		httpClient: httpClient,
		logger:     logger,
		now:        time.Now,
	}
}

// GetValidToken returns the account unchanged while its token is valid for
// longer than ExpiryMargin, and a refreshed account otherwise
func (m *TokenManager) GetValidToken(ctx context.Context, acct Account) (Account, error) {
	if acct.AccessToken != "" && m.now().Add(ExpiryMargin).Before(acct.Expiry) {
		return acct, nil
	}
	if acct.RefreshToken == "" {
		return acct, ErrExpiredNoRefresh
	}
	return m.refresh(ctx, acct)
}

// WithAutoRetry performs do with a valid token. On a 401 it forces a single
// refresh and retries once; whatever the retry returns is handed back as is.
// If the forced refresh fails, the original 401 response is returned.
func (m *TokenManager) WithAutoRetry(ctx context.Context, acct Account, do func(ctx context.Context, accessToken string) (*http.Response, error)) (*http.Response, Account, error) {
	acct, err := m.GetValidToken(ctx, acct)
	if err != nil {
		return nil, acct, err
	}

	resp, err := do(ctx, acct.AccessToken)
	if err != nil {
		return nil, acct, err
	}
	if resp.StatusCode != http.StatusUnauthorized || acct.RefreshToken == "" {
		return resp, acct, nil
	}

	m.logger.Info("Access token rejected, forcing refresh", "user_id", acct.UserID)
	refreshed, err := m.refresh(ctx, acct)
	if err != nil {
		m.logger.Warn("Forced token refresh failed", "user_id", acct.UserID, "error", err)
		return resp, acct, nil
	}

	io.Copy(io.Discard, resp.Body)
	resp.Body.Close()

	resp, err = do(ctx, refreshed.AccessToken)
	if err != nil {
		return nil, refreshed, err
	}
	return resp, refreshed, nil
}

func (m *TokenManager) refresh(ctx context.Context, acct Account) (Account, error) {
	ctx = context.WithValue(ctx, oauth2.HTTPClient, m.httpClient)
	token, err := m.config.TokenSource(ctx, &oauth2.Token{RefreshToken: acct.RefreshToken}).Token()
	if err != nil {
		var retrieveErr *oauth2.RetrieveError
		if errors.As(err, &retrieveErr) && retrieveErr.Response != nil {
			return acct, &RefreshFailedError{
				StatusCode: retrieveErr.Response.StatusCode,
				Body:       strings.TrimSpace(string(retrieveErr.Body)),
			}
		}
		return acct, fmt.Errorf("failed to refresh access token: %w", err)
	}

	expiry := token.Expiry
	if expiry.IsZero() {
		expiry = m.now().Add(defaultTokenLifetime)
	}

	updated := acct
	updated.AccessToken = token.AccessToken
	updated.Expiry = expiry
	newRefresh := ""
	if token.RefreshToken != "" && token.RefreshToken != acct.RefreshToken {
		updated.RefreshToken = token.RefreshToken
		newRefresh = token.RefreshToken
	}

	if m.store != nil {
		if err := m.store.UpdateGmailTokens(ctx, acct.UserID, updated.AccessToken, newRefresh, updated.Expiry); err != nil {
			m.logger.Warn("Failed to persist refreshed token", "user_id", acct.UserID, "error", err)
		}
	}

	m.logger.Debug("Refreshed access token", "user_id", acct.UserID, "expiry", updated.Expiry)
	return updated, nil
}
