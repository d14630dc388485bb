package handlers

import (
	"context"
	"encoding/json"
	"errors"
	"log/slog"
	"net/http"
	"strings"

	"github.com/go-chi/chi/v5"

	"booking-tracker/internal/database"
)

// PriceRecorder stores a price observation reported by the watcher service
type PriceRecorder interface {
	RecordPriceCheck(ctx context.Context, watcherID, currentPrice string) (*database.PriceCheck, error)
}

// CancelRequest is the body of POST /api/bookings/cancel
type CancelRequest struct {
	WatcherID string `json:"watcherId"`
}

// PriceUpdateRequest is the body of POST /api/watchers/{watcherID}/price
type PriceUpdateRequest struct {
	CurrentPrice string `json:"currentPrice"`
}

// WatcherLookupResponse answers a confirmation reference lookup
type WatcherLookupResponse struct {
	WatcherID string `json:"watcherId"`
}

// WatcherHandler handles cancellation and watcher callbacks
type WatcherHandler struct {
	db     *database.DB
	prices PriceRecorder
	logger *slog.Logger
}

// NewWatcherHandler creates a watcher handler
func NewWatcherHandler(db *database.DB, prices PriceRecorder, logger *slog.Logger) *WatcherHandler {
	if logger == nil {
		logger = slog.Default()
	}
	return &WatcherHandler{db: db, prices: prices, logger: logger}
}

// CancelBooking handles POST /api/bookings/cancel
func (h *WatcherHandler) CancelBooking(w http.ResponseWriter, r *http.Request) {
	var req CancelRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		writeError(w, http.StatusBadRequest, "Invalid JSON")
		return
	}
	watcherID := strings.TrimSpace(req.WatcherID)
	if watcherID == "" {
		writeError(w, http.StatusBadRequest, "Invalid watcherId")
		return
	}

	result, err := h.db.Bookings.MarkAwaitingCancellation(r.Context(), watcherID)
	if err != nil {
		h.logger.Error("Failed to mark cancellation", "watcher_id", watcherID, "error", err)
		writeError(w, http.StatusInternalServerError, "Failed to request cancellation")
		return
	}
	if !result.Found {
		writeJSON(w, http.StatusNotFound, result)
		return
	}

	h.logger.Info("Cancellation requested", "watcher_id", watcherID)
	writeJSON(w, http.StatusOK, result)
}

// GetByConfirmation handles GET /api/watchers/by-confirmation/{ref}
func (h *WatcherHandler) GetByConfirmation(w http.ResponseWriter, r *http.Request) {
	user, ok := currentUser(w, r)
	if !ok {
		return
	}

	watcherID, err := h.db.Bookings.GetWatcherIDByConfirmationRef(r.Context(), user.ID, chi.URLParam(r, "ref"))
	if errors.Is(err, database.ErrNotFound) {
		writeError(w, http.StatusNotFound, "No watcher for confirmation reference")
		return
	}
	if err != nil {
		h.logger.Error("Failed to look up watcher", "user_id", user.ID, "error", err)
		writeError(w, http.StatusInternalServerError, "Failed to look up watcher")
		return
	}

	writeJSON(w, http.StatusOK, WatcherLookupResponse{WatcherID: watcherID})
}

// RecordPrice handles POST /api/watchers/{watcherID}/price
func (h *WatcherHandler) RecordPrice(w http.ResponseWriter, r *http.Request) {
	watcherID := strings.TrimSpace(chi.URLParam(r, "watcherID"))

	var req PriceUpdateRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		writeError(w, http.StatusBadRequest, "Invalid JSON")
		return
	}
	if strings.TrimSpace(req.CurrentPrice) == "" {
		writeError(w, http.StatusBadRequest, "currentPrice is required")
		return
	}

	check, err := h.prices.RecordPriceCheck(r.Context(), watcherID, req.CurrentPrice)
	if errors.Is(err, database.ErrNotFound) {
		writeError(w, http.StatusNotFound, "Price check not found")
		return
	}
	if err != nil {
		h.logger.Error("Failed to record price", "watcher_id", watcherID, "error", err)
		writeError(w, http.StatusInternalServerError, "Failed to record price")
		return
	}

	writeJSON(w, http.StatusOK, check)
}
