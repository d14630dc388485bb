package handlers

import (
	"log/slog"
	"net/http"

	"booking-tracker/internal/database"
)

// PingResponse confirms the browser extension is talking to a live backend
type PingResponse struct {
	OK             bool   `json:"ok"`
	Email          string `json:"email,omitempty"`
	GmailConnected bool   `json:"gmailConnected"`
}

// CountResponse carries the number of detected reservations
type CountResponse struct {
	Count int `json:"count"`
}

// ExtensionHandler serves the browser extension endpoints
type ExtensionHandler struct {
	db     *database.DB
	logger *slog.Logger
}

// NewExtensionHandler creates an extension handler
func NewExtensionHandler(db *database.DB, logger *slog.Logger) *ExtensionHandler {
	if logger == nil {
		logger = slog.Default()
	}
	return &ExtensionHandler{db: db, logger: logger}
}

// Ping handles GET /api/extension/ping
func (h *ExtensionHandler) Ping(w http.ResponseWriter, r *http.Request) {
	user, ok := currentUser(w, r)
	if !ok {
		return
	}
	writeJSON(w, http.StatusOK, PingResponse{OK: true, Email: user.Email, GmailConnected: user.GmailConnected()})
}

// ReservationCount handles GET /api/extension/reservations/count
func (h *ExtensionHandler) ReservationCount(w http.ResponseWriter, r *http.Request) {
	user, ok := currentUser(w, r)
	if !ok {
		return
	}

	count, err := h.db.Bookings.CountReservations(r.Context(), user.ID)
	if err != nil {
		h.logger.Error("Failed to count reservations", "user_id", user.ID, "error", err)
		writeError(w, http.StatusInternalServerError, "Failed to count reservations")
		return
	}

	writeJSON(w, http.StatusOK, CountResponse{Count: count})
}
