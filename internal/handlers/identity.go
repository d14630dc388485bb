package handlers

import (
	"context"
	"log/slog"
	"net/http"
	"strings"

	"booking-tracker/internal/database"
)

// Headers set by the upstream identity provider
const (
	HeaderUserSubject   = "X-User-Subject"
	HeaderUserEmail     = "X-User-Email"
	HeaderUserFirstName = "X-User-First-Name"
	HeaderUserLastName  = "X-User-Last-Name"
)

type contextKey string

const userContextKey contextKey = "user"

// IdentityStore resolves upstream identities to local users
type IdentityStore interface {
	EnsureUser(ctx context.Context, identity database.Identity) (int64, error)
	GetByID(ctx context.Context, id int64) (*database.User, error)
}

// WithUser returns a context carrying the authenticated user
func WithUser(ctx context.Context, user *database.User) context.Context {
	return context.WithValue(ctx, userContextKey, user)
}

// UserFromContext returns the authenticated user, or nil
func UserFromContext(ctx context.Context) *database.User {
	user, _ := ctx.Value(userContextKey).(*database.User)
	return user
}

// IdentityMiddleware requires the identity headers and loads (creating on
// first sight) the matching user into the request context
func IdentityMiddleware(users IdentityStore, logger *slog.Logger) func(http.Handler) http.Handler {
	if logger == nil {
		logger = slog.Default()
	}
	return func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			subject := strings.TrimSpace(r.Header.Get(HeaderUserSubject))
			if subject == "" {
				writeError(w, http.StatusUnauthorized, "Unauthorized")
				return
			}

			identity := database.Identity{
				ExternalID: subject,
				Email:      strings.TrimSpace(r.Header.Get(HeaderUserEmail)),
				FirstName:  strings.TrimSpace(r.Header.Get(HeaderUserFirstName)),
				LastName:   strings.TrimSpace(r.Header.Get(HeaderUserLastName)),
			}

			id, err := users.EnsureUser(r.Context(), identity)
			if err != nil {
				logger.Error("Failed to resolve user", "subject", subject, "error", err)
				writeError(w, http.StatusInternalServerError, "Failed to resolve user")
				return
			}
			user, err := users.GetByID(r.Context(), id)
			if err != nil {
				logger.Error("Failed to load user", "user_id", id, "error", err)
				writeError(w, http.StatusInternalServerError, "Failed to resolve user")
				return
			}

			next.ServeHTTP(w, r.WithContext(WithUser(r.Context(), user)))
		})
	}
}

// currentUser fetches the authenticated user, answering 401 when missing
func currentUser(w http.ResponseWriter, r *http.Request) (*database.User, bool) {
	user := UserFromContext(r.Context())
	if user == nil {
		writeError(w, http.StatusUnauthorized, "Unauthorized")
		return nil, false
	}
	return user, true
}
