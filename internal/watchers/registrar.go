package watchers

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"strings"
	"sync"
	"time"

	"booking-tracker/internal/api"
	"booking-tracker/internal/database"
	"booking-tracker/internal/textnorm"
)

// Result is the outcome of a registration attempt
type Result struct {
	Success   bool   `json:"success"`
	WatcherID string `json:"watcherId,omitempty"`
	Error     string `json:"error,omitempty"`
}

// BookingStore is the subset of booking persistence the registrar needs
type BookingStore interface {
	GetByID(ctx context.Context, id int64) (*database.BookingEmail, error)
	SetWatcherID(ctx context.Context, id int64, watcherID string) (bool, error)
}

// UserLookup resolves the account email sent with a registration
type UserLookup interface {
	GetByID(ctx context.Context, id int64) (*database.User, error)
}

// PriceCheckStore persists price tracking for registered watchers
type PriceCheckStore interface {
	Open(ctx context.Context, p *database.PriceCheck) error
	GetByWatcherID(ctx context.Context, watcherID string) (*database.PriceCheck, error)
	RecordCheck(ctx context.Context, watcherID, currentPrice string, dropDetected bool, at time.Time) error
}

// ErrNotConfigured is reported when no watcher service URL is set
var ErrNotConfigured = errors.New("Watcher service is not configured")

// WatcherAPI creates watchers on the external service
type WatcherAPI interface {
	CreateWatcher(ctx context.Context, request api.WatcherRequest) (string, error)
}

// Registrar registers watchers for analyzed bookings
type Registrar struct {
	bookings BookingStore
	users    UserLookup
	checks   PriceCheckStore
	client   WatcherAPI
	logger   *slog.Logger

	// Registrations are serialized so a message is never posted twice
	mu sync.Mutex
}

// NewRegistrar creates a registrar. users, checks and client may be nil;
// without a client every registration fails with ErrNotConfigured.
func NewRegistrar(bookings BookingStore, users UserLookup, checks PriceCheckStore, client WatcherAPI, logger *slog.Logger) *Registrar {
	if logger == nil {
		logger = slog.Default()
	}
	return &Registrar{
		bookings: bookings,
		users:    users,
		checks:   checks,
		client:   client,
		logger:   logger,
	}
}

// Create registers a watcher for the booking email. A booking that already
// has a watcher returns the stored id without contacting the service.
func (r *Registrar) Create(ctx context.Context, id int64) (result Result) {
	defer func() {
		if p := recover(); p != nil {
			r.logger.Error("Panic during watcher registration", "booking_id", id, "panic", p)
			result = Result{Error: fmt.Sprint(p)}
		}
	}()

	r.mu.Lock()
	defer r.mu.Unlock()

	booking, err := r.bookings.GetByID(ctx, id)
	if errors.Is(err, database.ErrNotFound) {
		return Result{Error: "Message not found"}
	}
	if err != nil {
		return Result{Error: err.Error()}
	}

	if booking.HasWatcher() {
		return Result{Success: true, WatcherID: *booking.WatcherID}
	}

	request, problem := r.buildRequest(ctx, booking)
	if problem != "" {
		r.logger.Debug("Booking not ready for watcher", "booking_id", id, "reason", problem)
		return Result{Error: problem}
	}

	if r.client == nil {
		return Result{Error: ErrNotConfigured.Error()}
	}

	watcherID, err := r.client.CreateWatcher(ctx, request)
	if err != nil {
		r.logger.Warn("Watcher registration failed", "booking_id", id, "error", err)
		return Result{Error: err.Error()}
	}
	if watcherID == "" {
		return Result{Error: "Watcher service returned no watcher id"}
	}

	stored, err := r.bookings.SetWatcherID(ctx, id, watcherID)
	if err != nil {
		r.logger.Error("Failed to persist watcher id", "booking_id", id, "watcher_id", watcherID, "error", err)
		return Result{Error: err.Error()}
	}
	if !stored {
		// Another process registered first; report the id on record
		current, err := r.bookings.GetByID(ctx, id)
		if err == nil && current.HasWatcher() {
			return Result{Success: true, WatcherID: *current.WatcherID}
		}
		r.logger.Error("Watcher id was not persisted", "booking_id", id, "watcher_id", watcherID, "error", err)
		return Result{Error: "Watcher id was not persisted"}
	}

	r.openPriceCheck(ctx, booking, watcherID)

	r.logger.Info("Registered watcher", "booking_id", id, "watcher_id", watcherID)
	return Result{Success: true, WatcherID: watcherID}
}

// buildRequest validates the booking and assembles the registration payload.
// A non-empty problem names the first reason the booking cannot be sent.
func (r *Registrar) buildRequest(ctx context.Context, b *database.BookingEmail) (api.WatcherRequest, string) {
	if !isTrue(b.IsHotelBooking) {
		return api.WatcherRequest{}, "Not a hotel booking"
	}
	if !isTrue(b.IsCancelable) {
		return api.WatcherRequest{}, "Booking is not cancelable"
	}
	if missing := MissingFields(b); len(missing) > 0 {
		return api.WatcherRequest{}, "Missing required booking fields: " + strings.Join(missing, ", ")
	}

	price := textnorm.ParsePrice(*b.TotalCost)
	if !price.HasAmount() {
		return api.WatcherRequest{}, "Missing price amount"
	}
	if price.Currency == "" {
		return api.WatcherRequest{}, "Missing price currency"
	}

	cancelBy, ok := textnorm.NormalizeToYMD(*b.CancelableUntil)
	if !ok {
		return api.WatcherRequest{}, "Missing cancel-by date"
	}

	return api.WatcherRequest{
		Email:                  r.accountEmail(ctx, b.UserID),
		HotelName:              strings.TrimSpace(*b.HotelName),
		CheckInDate:            normalizeOrRaw(*b.CheckInDate),
		CheckOutDate:           normalizeOrRaw(*b.CheckOutDate),
		UserPriceAmount:        *price.Amount,
		UserPriceCurrencyCode:  price.Currency,
		CancellationExpiryDate: cancelBy,
		ModifyBookingLink:      strings.TrimSpace(*b.ModifyBookingLink),
		PinNumber:              strings.TrimSpace(*b.PinNumber),
		IdempotencyKey:         fmt.Sprintf("booking-%d", b.ID),
	}, ""
}

func (r *Registrar) accountEmail(ctx context.Context, userID int64) string {
	if r.users == nil {
		return ""
	}
	user, err := r.users.GetByID(ctx, userID)
	if err != nil {
		r.logger.Warn("Could not resolve account email", "user_id", userID, "error", err)
		return ""
	}
	return user.Email
}

func (r *Registrar) openPriceCheck(ctx context.Context, b *database.BookingEmail, watcherID string) {
	if r.checks == nil {
		return
	}
	err := r.checks.Open(ctx, &database.PriceCheck{
		UserID:         b.UserID,
		BookingEmailID: b.ID,
		WatcherID:      watcherID,
		HotelName:      strings.TrimSpace(*b.HotelName),
		CheckInDate:    normalizeOrRaw(*b.CheckInDate),
		CheckOutDate:   normalizeOrRaw(*b.CheckOutDate),
		OriginalPrice:  strings.TrimSpace(*b.TotalCost),
	})
	if err != nil {
		r.logger.Warn("Failed to open price check", "booking_id", b.ID, "watcher_id", watcherID, "error", err)
	}
}

func normalizeOrRaw(text string) string {
	if ymd, ok := textnorm.NormalizeToYMD(text); ok {
		return ymd
	}
	return strings.TrimSpace(text)
}
