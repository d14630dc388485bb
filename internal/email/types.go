package email

import (
	"context"
	"time"

	"booking-tracker/internal/database"
)

// Account is the credential set for one connected mailbox. It is passed by
// value through every call and returned updated after a refresh, so callers
// always hold the latest tokens without sharing mutable state.
type Account struct {
	UserID       int64
	Email        string
	AccessToken  string
	RefreshToken string
	Expiry       time.Time
}

// AccountFromUser builds the mailbox account for a stored user
func AccountFromUser(u *database.User) Account {
	acct := Account{
		UserID:       u.ID,
		Email:        u.Email,
		AccessToken:  u.GmailAccessToken,
		RefreshToken: u.GmailRefreshToken,
	}
	if u.GmailTokenExpiry != nil {
		acct.Expiry = *u.GmailTokenExpiry
	}
	return acct
}

// CredentialStore persists refreshed tokens
type CredentialStore interface {
	UpdateGmailTokens(ctx context.Context, userID int64, accessToken, refreshToken string, expiry time.Time) error
}

// MessageSink receives fetched messages. StoreIfNew reports whether the
// message was new.
type MessageSink interface {
	StoreIfNew(ctx context.Context, b *database.BookingEmail) (bool, error)
}

// FetchFailure describes a single message that could not be fetched or stored
type FetchFailure struct {
	MessageID string `json:"message_id"`
	Error     string `json:"error"`
}

// FetchResult summarizes one mailbox scan
type FetchResult struct {
	Found    int            `json:"found"`
	Stored   int            `json:"stored"`
	Failures []FetchFailure `json:"failures,omitempty"`
}
