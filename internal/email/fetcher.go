package email

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"net/http"
	"net/mail"
	"strings"
	"sync"
	"time"

	"github.com/sony/gobreaker"
	"google.golang.org/api/gmail/v1"
	"google.golang.org/api/googleapi"
	"google.golang.org/api/option"

	"booking-tracker/internal/database"
)

// FetcherConfig holds mailbox search settings
type FetcherConfig struct {
	// APIURL overrides the Gmail API base URL
	APIURL         string
	SenderDomain   string
	LookbackDays   int
	MaxResults     int64
	RequestTimeout time.Duration
}

// Fetcher scans a mailbox for booking emails and stores new ones
type Fetcher struct {
	tokens    *TokenManager
	sink      MessageSink
	config    FetcherConfig
	transport http.RoundTripper
	cb        *gobreaker.CircuitBreaker
	logger    *slog.Logger
	now       func() time.Time
}

// NewFetcher creates a mailbox fetcher
func NewFetcher(tokens *TokenManager, sink MessageSink, config FetcherConfig, logger *slog.Logger) *Fetcher {
	if logger == nil {
		logger = slog.Default()
	}
	if config.SenderDomain == "" {
		config.SenderDomain = "booking.com"
	}
	if config.LookbackDays <= 0 {
		config.LookbackDays = 365
	}
	if config.MaxResults <= 0 {
		config.MaxResults = 100
	}
	if config.RequestTimeout <= 0 {
		config.RequestTimeout = 30 * time.Second
	}

	settings := gobreaker.Settings{
		Name:        "gmail-api",
		MaxRequests: 3,
		Interval:    60 * time.Second,
		Timeout:     30 * time.Second,
		ReadyToTrip: func(counts gobreaker.Counts) bool {
			failureRatio := float64(counts.TotalFailures) / float64(counts.Requests)
			return counts.ConsecutiveFailures > 5 ||
				(counts.Requests >= 10 && failureRatio >= 0.6)
		},
		IsSuccessful: func(err error) bool {
			var nce *nonCircuitError
			return err == nil || errors.As(err, &nce)
		},
		OnStateChange: func(name string, from, to gobreaker.State) {
			logger.Warn("Circuit breaker state changed", "name", name, "from", from.String(), "to", to.String())
		},
	}

	return &Fetcher{
		tokens:    tokens,
		sink:      sink,
		config:    config,
		transport: http.DefaultTransport,
		cb:        gobreaker.NewCircuitBreaker(settings),
		logger:    logger,
		now:       time.Now,
	}
}

// SearchQuery returns the mailbox query for booking emails within the lookback window
func (f *Fetcher) SearchQuery() string {
	after := f.now().AddDate(0, 0, -f.config.LookbackDays).Format("2006/01/02")
	return fmt.Sprintf("from:%s after:%s", f.config.SenderDomain, after)
}

// FetchNewBookingMessages searches the mailbox and stores messages not seen
// before. Per-message failures are collected in the result; an error is
// returned only when the search itself fails. The returned account carries
// any refreshed tokens.
func (f *Fetcher) FetchNewBookingMessages(ctx context.Context, acct Account) (FetchResult, Account, error) {
	var result FetchResult

	transport := &authTransport{tokens: f.tokens, base: f.transport, account: acct}
	service, err := f.newService(ctx, transport)
	if err != nil {
		return result, acct, err
	}

	query := f.SearchQuery()
	f.logger.Info("Searching mailbox", "user_id", acct.UserID, "query", query)

	var ids []string
	err = f.execute("search", func() error {
		ids = ids[:0]
		return service.Users.Messages.List("me").Q(query).MaxResults(f.config.MaxResults).
			Pages(ctx, func(page *gmail.ListMessagesResponse) error {
				for _, msg := range page.Messages {
					ids = append(ids, msg.Id)
				}
				return nil
			})
	})
	if err != nil {
		return result, transport.current(), fmt.Errorf("Gmail search failed: %w", err)
	}

	result.Found = len(ids)
	f.logger.Info("Found messages", "user_id", acct.UserID, "count", len(ids))

	for _, id := range ids {
		if err := ctx.Err(); err != nil {
			return result, transport.current(), err
		}

		stored, err := f.fetchAndStore(ctx, service, acct.UserID, id)
		if err != nil {
			f.logger.Warn("Failed to process message", "user_id", acct.UserID, "message_id", id, "error", err)
			result.Failures = append(result.Failures, FetchFailure{MessageID: id, Error: err.Error()})
			continue
		}
		if stored {
			result.Stored++
		}
	}

	f.logger.Info("Mailbox scan complete",
		"user_id", acct.UserID,
		"found", result.Found,
		"stored", result.Stored,
		"failed", len(result.Failures))

	return result, transport.current(), nil
}

func (f *Fetcher) fetchAndStore(ctx context.Context, service *gmail.Service, userID int64, id string) (bool, error) {
	var msg *gmail.Message
	err := f.execute("get", func() error {
		var err error
		msg, err = service.Users.Messages.Get("me", id).Format("full").Context(ctx).Do()
		return err
	})
	if err != nil {
		return false, fmt.Errorf("failed to get message: %w", err)
	}

	booking := f.toBookingEmail(msg)
	booking.UserID = userID

	stored, err := f.sink.StoreIfNew(ctx, booking)
	if err != nil {
		return false, fmt.Errorf("failed to store message: %w", err)
	}
	return stored, nil
}

func (f *Fetcher) toBookingEmail(msg *gmail.Message) *database.BookingEmail {
	var headers []*gmail.MessagePartHeader
	if msg.Payload != nil {
		headers = msg.Payload.Headers
	}

	bodies := ExtractBodies(msg.Payload, f.logger)

	return &database.BookingEmail{
		GmailMessageID: msg.Id,
		Subject:        headerValue(headers, "Subject"),
		Sender:         headerValue(headers, "From"),
		ReceivedAt:     f.receivedAt(msg, headerValue(headers, "Date")),
		Body:           bodies.PlainText,
		BodyHTML:       bodies.HTML,
	}
}

func (f *Fetcher) receivedAt(msg *gmail.Message, dateHeader string) time.Time {
	if dateHeader != "" {
		if date, err := mail.ParseDate(dateHeader); err == nil {
			return date
		}
	}
	if msg.InternalDate > 0 {
		return time.UnixMilli(msg.InternalDate)
	}
	return f.now()
}

// headerValue looks up a header case-insensitively, returning "" when absent
func headerValue(headers []*gmail.MessagePartHeader, name string) string {
	for _, h := range headers {
		if h != nil && strings.EqualFold(h.Name, name) {
			return h.Value
		}
	}
	return ""
}

func (f *Fetcher) newService(ctx context.Context, transport http.RoundTripper) (*gmail.Service, error) {
	opts := []option.ClientOption{
		option.WithHTTPClient(&http.Client{Transport: transport, Timeout: f.config.RequestTimeout}),
	}
	if f.config.APIURL != "" {
		opts = append(opts, option.WithEndpoint(f.config.APIURL))
	}

	service, err := gmail.NewService(ctx, opts...)
	if err != nil {
		return nil, fmt.Errorf("failed to create Gmail service: %w", err)
	}
	return service, nil
}

// execute runs fn behind the circuit breaker. Client errors do not count as
// failures.
func (f *Fetcher) execute(operation string, fn func() error) error {
	_, err := f.cb.Execute(func() (interface{}, error) {
		if err := fn(); err != nil {
			var apiErr *googleapi.Error
			if errors.As(err, &apiErr) {
				switch apiErr.Code {
				case 400, 401, 403, 404:
					return nil, &nonCircuitError{err: err}
				}
			}
			if errors.Is(err, ErrExpiredNoRefresh) {
				return nil, &nonCircuitError{err: err}
			}
			var refreshErr *RefreshFailedError
			if errors.As(err, &refreshErr) {
				return nil, &nonCircuitError{err: err}
			}
			return nil, err
		}
		return nil, nil
	})

	var nce *nonCircuitError
	if errors.As(err, &nce) {
		return nce.err
	}
	if err != nil {
		f.logger.Debug("Gmail call failed", "operation", operation, "breaker", f.cb.State().String(), "error", err)
	}
	return err
}

// nonCircuitError wraps errors that should not trip the circuit breaker
type nonCircuitError struct {
	err error
}

func (e *nonCircuitError) Error() string {
	return e.err.Error()
}

// authTransport signs each request with the account's token, refreshing
// through the token manager, and remembers the latest account state
type authTransport struct {
	tokens *TokenManager
	base   http.RoundTripper

	mu      sync.Mutex
	account Account
}

func (t *authTransport) RoundTrip(req *http.Request) (*http.Response, error) {
	resp, updated, err := t.tokens.WithAutoRetry(req.Context(), t.current(),
		func(ctx context.Context, accessToken string) (*http.Response, error) {
			r := req.Clone(ctx)
			r.Header.Set("Authorization", "Bearer "+accessToken)
			return t.base.RoundTrip(r)
		})

	t.mu.Lock()
	t.account = updated
	t.mu.Unlock()

	return resp, err
}

func (t *authTransport) current() Account {
	t.mu.Lock()
	defer t.mu.Unlock()
	return t.account
}
