package workers

import (
	"context"
	"fmt"
	"log/slog"
	"time"

	"booking-tracker/internal/database"
	"booking-tracker/internal/email"
	"booking-tracker/internal/extraction"
	"booking-tracker/internal/watchers"
)

// DefaultBatchLimit bounds analysis and registration sweeps
const DefaultBatchLimit = 50

// AccountStore lists connected mailboxes and records check times
type AccountStore interface {
	ListConnected(ctx context.Context) ([]database.User, error)
	TouchLastCheck(ctx context.Context, userID int64, at time.Time) error
}

// MailFetcher scans one mailbox for new booking messages
type MailFetcher interface {
	FetchNewBookingMessages(ctx context.Context, acct email.Account) (email.FetchResult, email.Account, error)
}

// PendingStore finds records awaiting analysis or registration
type PendingStore interface {
	ListUnprocessedOrErrored(ctx context.Context, limit int) ([]int64, error)
	ListWatcherCandidates(ctx context.Context, limit int) ([]database.BookingEmail, error)
}

// Analyzer runs extraction for one record
type Analyzer interface {
	Analyze(ctx context.Context, id int64) extraction.Result
}

// Registrar creates a watcher for one record
type Registrar interface {
	Create(ctx context.Context, id int64) watchers.Result
}

// ItemError is a failure for a single user or record inside a batch
type ItemError struct {
	ID    int64  `json:"id"`
	Error string `json:"error"`
}

// BatchResult summarizes one sweep. Error is set only when the batch as a
// whole could not run; per-item failures are collected in Errors.
type BatchResult struct {
	Name      string        `json:"name"`
	Attempted int           `json:"attempted"`
	Succeeded int           `json:"succeeded"`
	Errors    []ItemError   `json:"errors,omitempty"`
	Error     string        `json:"error,omitempty"`
	Duration  time.Duration `json:"duration"`
}

// Failed reports whether anything in the batch went wrong
func (r BatchResult) Failed() bool {
	return r.Error != "" || len(r.Errors) > 0
}

func (r *BatchResult) addError(id int64, message string) {
	r.Errors = append(r.Errors, ItemError{ID: id, Error: message})
}

// SweepConfig bounds the batch sizes
type SweepConfig struct {
	AnalysisLimit int
	WatcherLimit  int
}

// Sweeper runs the scheduled pipeline stages. Items are processed one at a
// time and a failing item never stops its siblings.
type Sweeper struct {
	accounts  AccountStore
	fetcher   MailFetcher
	pending   PendingStore
	analyzer  Analyzer
	registrar Registrar
	config    SweepConfig
	logger    *slog.Logger
	now       func() time.Time
}

// NewSweeper creates a sweeper
func NewSweeper(accounts AccountStore, fetcher MailFetcher, pending PendingStore, analyzer Analyzer, registrar Registrar, config SweepConfig, logger *slog.Logger) *Sweeper {
	if logger == nil {
		logger = slog.Default()
	}
	if config.AnalysisLimit <= 0 {
		config.AnalysisLimit = DefaultBatchLimit
	}
	if config.WatcherLimit <= 0 {
		config.WatcherLimit = DefaultBatchLimit
	}
	return &Sweeper{
		accounts:  accounts,
		fetcher:   fetcher,
		pending:   pending,
		analyzer:  analyzer,
		registrar: registrar,
		config:    config,
		logger:    logger,
		now:       time.Now,
	}
}

// CheckAccount scans one user's mailbox and records the check time
func (s *Sweeper) CheckAccount(ctx context.Context, user *database.User) (email.FetchResult, error) {
	if !user.GmailConnected() {
		return email.FetchResult{}, fmt.Errorf("gmail is not connected")
	}

	result, _, err := s.fetcher.FetchNewBookingMessages(ctx, email.AccountFromUser(user))
	if err != nil {
		return result, err
	}

	if err := s.accounts.TouchLastCheck(ctx, user.ID, s.now()); err != nil {
		s.logger.Warn("Failed to record mailbox check time", "user_id", user.ID, "error", err)
	}
	return result, nil
}

// CheckAllAccounts scans every connected mailbox
func (s *Sweeper) CheckAllAccounts(ctx context.Context) (result BatchResult) {
	start := s.now()
	result = BatchResult{Name: "check-mail"}
	defer s.finish(&result, start)

	users, err := s.accounts.ListConnected(ctx)
	if err != nil {
		result.Error = fmt.Sprintf("failed to list connected accounts: %v", err)
		return result
	}

	stored := 0
	for i := range users {
		if ctx.Err() != nil {
			result.Error = ctx.Err().Error()
			return result
		}

		user := &users[i]
		result.Attempted++

		fetched, err := s.CheckAccount(ctx, user)
		if err != nil {
			s.logger.Warn("Mailbox check failed", "user_id", user.ID, "error", err)
			result.addError(user.ID, err.Error())
			continue
		}

		result.Succeeded++
		stored += fetched.Stored
		for _, f := range fetched.Failures {
			result.addError(user.ID, fmt.Sprintf("message %s: %s", f.MessageID, f.Error))
		}
	}

	s.logger.Info("Mailbox sweep stored new messages", "accounts", len(users), "stored", stored)
	return result
}

// AnalyzePending runs extraction over unprocessed and previously errored records
func (s *Sweeper) AnalyzePending(ctx context.Context) (result BatchResult) {
	start := s.now()
	result = BatchResult{Name: "analyze"}
	defer s.finish(&result, start)

	ids, err := s.pending.ListUnprocessedOrErrored(ctx, s.config.AnalysisLimit)
	if err != nil {
		result.Error = fmt.Sprintf("failed to list pending messages: %v", err)
		return result
	}

	for _, id := range ids {
		if ctx.Err() != nil {
			result.Error = ctx.Err().Error()
			return result
		}

		result.Attempted++
		outcome := s.analyzer.Analyze(ctx, id)
		if !outcome.Success {
			result.addError(id, outcome.Error)
			if outcome.Error == extraction.ErrNotConfigured.Error() {
				// Every remaining item would fail the same way
				result.Error = outcome.Error
				return result
			}
			continue
		}
		result.Succeeded++
	}
	return result
}

// RegisterEligible registers watchers for records that pass the eligibility gate
func (s *Sweeper) RegisterEligible(ctx context.Context) (result BatchResult) {
	start := s.now()
	result = BatchResult{Name: "register-watchers"}
	defer s.finish(&result, start)

	candidates, err := s.pending.ListWatcherCandidates(ctx, 0)
	if err != nil {
		result.Error = fmt.Sprintf("failed to list watcher candidates: %v", err)
		return result
	}

	for i := range candidates {
		if result.Attempted >= s.config.WatcherLimit {
			break
		}
		if ctx.Err() != nil {
			result.Error = ctx.Err().Error()
			return result
		}

		candidate := &candidates[i]
		if !watchers.Eligible(candidate) {
			continue
		}

		result.Attempted++
		outcome := s.registrar.Create(ctx, candidate.ID)
		if !outcome.Success {
			result.addError(candidate.ID, outcome.Error)
			continue
		}
		result.Succeeded++
	}
	return result
}

// RunAll runs every stage in pipeline order
func (s *Sweeper) RunAll(ctx context.Context) []BatchResult {
	return []BatchResult{
		s.CheckAllAccounts(ctx),
		s.AnalyzePending(ctx),
		s.RegisterEligible(ctx),
	}
}

func (s *Sweeper) finish(result *BatchResult, start time.Time) {
	result.Duration = s.now().Sub(start)

	if result.Error != "" {
		s.logger.Error("Batch aborted",
			"batch", result.Name,
			"attempted", result.Attempted,
			"error", result.Error)
		return
	}
	s.logger.Info("Batch completed",
		"batch", result.Name,
		"attempted", result.Attempted,
		"succeeded", result.Succeeded,
		"errors", len(result.Errors),
		"duration", result.Duration)
}
