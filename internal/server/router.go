package server

import (
	"log/slog"
	"net/http"

	"github.com/go-chi/chi/v5"

	"booking-tracker/internal/database"
	"booking-tracker/internal/handlers"
	"booking-tracker/internal/ratelimit"
)

// Deps are the collaborators behind the HTTP API. Connector may be nil when
// the OAuth client is not configured, WatcherHealth when no watcher service is.
type Deps struct {
	DB        *database.DB
	Analyzer  handlers.Analyzer
	Watchers  handlers.WatcherCreator
	Prices    handlers.PriceRecorder
	Mail      handlers.MailChecker
	Cooldown  *ratelimit.Cooldown
	Connector handlers.Connector
	States    handlers.StateBinder

	WatcherHealth handlers.WatcherPinger
	APIKey    string
	Logger    *slog.Logger
}

// NewRouter builds the API handler with its middleware stack
func NewRouter(deps Deps) http.Handler {
	logger := deps.Logger
	if logger == nil {
		logger = slog.Default()
	}

	health := handlers.NewHealthHandler(deps.DB, deps.WatcherHealth)
	bookings := handlers.NewBookingHandler(deps.DB, deps.Analyzer, deps.Watchers, logger)
	mail := handlers.NewMailHandler(deps.Mail, deps.Cooldown, logger)
	watchers := handlers.NewWatcherHandler(deps.DB, deps.Prices, logger)
	extension := handlers.NewExtensionHandler(deps.DB, logger)
	auth := handlers.NewGmailAuthHandler(deps.Connector, deps.States, logger)

	r := chi.NewRouter()
	r.Use(
		RequestIDMiddleware,
		LoggingMiddleware(logger),
		RecoveryMiddleware(logger),
		CORSMiddleware,
		ContentTypeMiddleware,
		SecurityMiddleware,
	)

	r.Get("/api/health", health.HealthCheck)
	// The provider redirects here without our headers; the state nonce identifies the user
	r.Get("/api/auth/gmail/callback", auth.Callback)

	r.Group(func(r chi.Router) {
		r.Use(AuthMiddleware(deps.APIKey, logger))
		r.Use(handlers.IdentityMiddleware(deps.DB.Users, logger))

		r.Get("/api/auth/gmail", auth.Start)

		r.Route("/api/bookings", func(r chi.Router) {
			r.Get("/", bookings.ListBookings)
			r.Post("/cancel", watchers.CancelBooking)
			r.Get("/{id}", bookings.GetBooking)
			r.Delete("/{id}", bookings.DeleteBooking)
			r.Post("/{id}/analyze", bookings.AnalyzeBooking)
			r.Post("/{id}/watcher", bookings.CreateWatcher)
		})

		r.Post("/api/mail/check", mail.CheckMail)

		r.Get("/api/watchers/by-confirmation/{ref}", watchers.GetByConfirmation)
		r.Post("/api/watchers/{watcherID}/price", watchers.RecordPrice)

		r.Get("/api/extension/ping", extension.Ping)
		r.Get("/api/extension/reservations/count", extension.ReservationCount)
	})

	r.NotFound(func(w http.ResponseWriter, r *http.Request) {
		writeJSONError(w, http.StatusNotFound, "Not Found")
	})
	r.MethodNotAllowed(func(w http.ResponseWriter, r *http.Request) {
		writeJSONError(w, http.StatusMethodNotAllowed, "Method Not Allowed")
	})

	return r
}
