package handlers

import (
	"context"
	"errors"
	"log/slog"
	"net/http"

	"booking-tracker/internal/email"
)

// Connector drives the mailbox authorization code flow
type Connector interface {
	AuthCodeURL(state string) string
	Connect(ctx context.Context, userID int64, code string) (email.Account, error)
}

// StateBinder issues and redeems single-use OAuth state nonces
type StateBinder interface {
	Issue(userID int64) string
	Consume(state string) (int64, bool)
}

// GmailAuthHandler handles the mailbox connect flow
type GmailAuthHandler struct {
	connector Connector
	states    StateBinder
	logger    *slog.Logger
}

// NewGmailAuthHandler creates an auth handler. A nil connector means the
// OAuth client is not configured.
func NewGmailAuthHandler(connector Connector, states StateBinder, logger *slog.Logger) *GmailAuthHandler {
	if logger == nil {
		logger = slog.Default()
	}
	return &GmailAuthHandler{connector: connector, states: states, logger: logger}
}

// Start handles GET /api/auth/gmail
func (h *GmailAuthHandler) Start(w http.ResponseWriter, r *http.Request) {
	user, ok := currentUser(w, r)
	if !ok {
		return
	}
	if h.connector == nil {
		writeError(w, http.StatusServiceUnavailable, "Gmail OAuth is not configured")
		return
	}

	state := h.states.Issue(user.ID)
	http.Redirect(w, r, h.connector.AuthCodeURL(state), http.StatusFound)
}

// Callback handles GET /api/auth/gmail/callback. It runs without identity
// headers; the state nonce identifies the user.
func (h *GmailAuthHandler) Callback(w http.ResponseWriter, r *http.Request) {
	query := r.URL.Query()

	if query.Get("error") != "" || h.connector == nil {
		h.logger.Warn("Gmail authorization failed", "error", query.Get("error"))
		h.finish(w, r, "oauth_failed")
		return
	}

	userID, ok := h.states.Consume(query.Get("state"))
	if !ok {
		h.finish(w, r, "invalid_state")
		return
	}

	code := query.Get("code")
	if code == "" {
		h.finish(w, r, "oauth_failed")
		return
	}

	if _, err := h.connector.Connect(r.Context(), userID, code); err != nil {
		h.logger.Error("Gmail token exchange failed", "user_id", userID, "error", err)
		if errors.Is(err, email.ErrNoAccessToken) {
			h.finish(w, r, "no_access_token")
			return
		}
		h.finish(w, r, "token_exchange_failed")
		return
	}

	h.finish(w, r, "")
}

func (h *GmailAuthHandler) finish(w http.ResponseWriter, r *http.Request, reason string) {
	target := "/?gmail=connected"
	if reason != "" {
		target = "/?error=" + reason
	}
	http.Redirect(w, r, target, http.StatusFound)
}
