package handlers

import (
	"context"
	"errors"
	"log/slog"
	"net/http"
	"strconv"

	"booking-tracker/internal/database"
	"booking-tracker/internal/email"
	"booking-tracker/internal/ratelimit"
)

// MailChecker scans one user's mailbox for new booking emails
type MailChecker interface {
	CheckAccount(ctx context.Context, user *database.User) (email.FetchResult, error)
}

// CooldownResponse is returned with 429 while a manual check is throttled
type CooldownResponse struct {
	Error             string `json:"error"`
	RetryAfterSeconds int    `json:"retry_after_seconds"`
}

// MailHandler handles interactive mailbox checks
type MailHandler struct {
	checker  MailChecker
	cooldown *ratelimit.Cooldown
	logger   *slog.Logger
}

// NewMailHandler creates a mail handler
func NewMailHandler(checker MailChecker, cooldown *ratelimit.Cooldown, logger *slog.Logger) *MailHandler {
	if logger == nil {
		logger = slog.Default()
	}
	return &MailHandler{checker: checker, cooldown: cooldown, logger: logger}
}

// CheckMail handles POST /api/mail/check
func (h *MailHandler) CheckMail(w http.ResponseWriter, r *http.Request) {
	user, ok := currentUser(w, r)
	if !ok {
		return
	}
	if !user.GmailConnected() {
		writeError(w, http.StatusBadRequest, "Gmail is not connected")
		return
	}

	limit := h.cooldown.Check(user.LastGmailCheckAt, false)
	if limit.ShouldBlock {
		h.logger.Debug("Mail check throttled", "user_id", user.ID, "remaining", limit.RemainingTime)
		w.Header().Set("Retry-After", strconv.Itoa(limit.RetryAfterSeconds()))
		writeJSON(w, http.StatusTooManyRequests, CooldownResponse{
			Error:             "Mail was checked recently, try again later",
			RetryAfterSeconds: limit.RetryAfterSeconds(),
		})
		return
	}

	result, err := h.checker.CheckAccount(r.Context(), user)
	if errors.Is(err, email.ErrExpiredNoRefresh) {
		writeError(w, http.StatusConflict, "Gmail authorization expired, reconnect your account")
		return
	}
	if err != nil {
		h.logger.Error("Mail check failed", "user_id", user.ID, "error", err)
		writeError(w, http.StatusBadGateway, "Mail check failed")
		return
	}

	writeJSON(w, http.StatusOK, result)
}
