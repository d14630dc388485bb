package handlers

import (
	"context"
	"errors"
	"log/slog"
	"net/http"

	"booking-tracker/internal/database"
	"booking-tracker/internal/extraction"
	"booking-tracker/internal/watchers"
)

// Analyzer runs extraction over one stored booking email
type Analyzer interface {
	Analyze(ctx context.Context, id int64) extraction.Result
}

// WatcherCreator registers a watcher for one booking email
type WatcherCreator interface {
	Create(ctx context.Context, id int64) watchers.Result
}

// BookingHandler handles the per-user booking endpoints
type BookingHandler struct {
	db        *database.DB
	analyzer  Analyzer
	registrar WatcherCreator
	logger    *slog.Logger
}

// NewBookingHandler creates a booking handler
func NewBookingHandler(db *database.DB, analyzer Analyzer, registrar WatcherCreator, logger *slog.Logger) *BookingHandler {
	if logger == nil {
		logger = slog.Default()
	}
	return &BookingHandler{
		db:        db,
		analyzer:  analyzer,
		registrar: registrar,
		logger:    logger,
	}
}

// ListBookings handles GET /api/bookings
func (h *BookingHandler) ListBookings(w http.ResponseWriter, r *http.Request) {
	user, ok := currentUser(w, r)
	if !ok {
		return
	}

	bookings, err := h.db.Bookings.ListByUser(r.Context(), user.ID)
	if err != nil {
		h.logger.Error("Failed to list bookings", "user_id", user.ID, "error", err)
		writeError(w, http.StatusInternalServerError, "Failed to list bookings")
		return
	}
	if bookings == nil {
		bookings = []database.BookingEmail{}
	}

	writeJSON(w, http.StatusOK, bookings)
}

// GetBooking handles GET /api/bookings/{id}
func (h *BookingHandler) GetBooking(w http.ResponseWriter, r *http.Request) {
	booking, ok := h.ownedBooking(w, r)
	if !ok {
		return
	}
	writeJSON(w, http.StatusOK, booking)
}

// DeleteBooking handles DELETE /api/bookings/{id}
func (h *BookingHandler) DeleteBooking(w http.ResponseWriter, r *http.Request) {
	user, ok := currentUser(w, r)
	if !ok {
		return
	}
	id, ok := int64Param(r, "id")
	if !ok {
		writeError(w, http.StatusBadRequest, "Invalid booking ID")
		return
	}

	err := h.db.Bookings.Delete(r.Context(), user.ID, id)
	if errors.Is(err, database.ErrNotFound) {
		writeError(w, http.StatusNotFound, "Booking not found")
		return
	}
	if err != nil {
		h.logger.Error("Failed to delete booking", "booking_id", id, "error", err)
		writeError(w, http.StatusInternalServerError, "Failed to delete booking")
		return
	}

	w.WriteHeader(http.StatusNoContent)
}

// AnalyzeBooking handles POST /api/bookings/{id}/analyze
func (h *BookingHandler) AnalyzeBooking(w http.ResponseWriter, r *http.Request) {
	booking, ok := h.ownedBooking(w, r)
	if !ok {
		return
	}

	result := h.analyzer.Analyze(r.Context(), booking.ID)
	switch {
	case result.Success:
		writeJSON(w, http.StatusOK, result)
	case result.Error == extraction.ErrNotConfigured.Error():
		writeJSON(w, http.StatusServiceUnavailable, result)
	default:
		writeJSON(w, http.StatusUnprocessableEntity, result)
	}
}

// CreateWatcher handles POST /api/bookings/{id}/watcher
func (h *BookingHandler) CreateWatcher(w http.ResponseWriter, r *http.Request) {
	booking, ok := h.ownedBooking(w, r)
	if !ok {
		return
	}

	result := h.registrar.Create(r.Context(), booking.ID)
	switch {
	case result.Success:
		writeJSON(w, http.StatusOK, result)
	case result.Error == watchers.ErrNotConfigured.Error():
		writeJSON(w, http.StatusServiceUnavailable, result)
	default:
		writeJSON(w, http.StatusUnprocessableEntity, result)
	}
}

// ownedBooking loads the {id} booking if it belongs to the current user.
// Bookings of other users are reported as not found.
func (h *BookingHandler) ownedBooking(w http.ResponseWriter, r *http.Request) (*database.BookingEmail, bool) {
	user, ok := currentUser(w, r)
	if !ok {
		return nil, false
	}
	id, ok := int64Param(r, "id")
	if !ok {
		writeError(w, http.StatusBadRequest, "Invalid booking ID")
		return nil, false
	}

	booking, err := h.db.Bookings.GetByID(r.Context(), id)
	if errors.Is(err, database.ErrNotFound) || (err == nil && booking.UserID != user.ID) {
		writeError(w, http.StatusNotFound, "Booking not found")
		return nil, false
	}
	if err != nil {
		h.logger.Error("Failed to get booking", "booking_id", id, "error", err)
		writeError(w, http.StatusInternalServerError, "Failed to get booking")
		return nil, false
	}
	return booking, true
}
