package extraction

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"time"

	"booking-tracker/internal/database"
)

// Result is the outcome of analyzing one message
type Result struct {
	Success  bool                      `json:"success"`
	Error    string                    `json:"error,omitempty"`
	Analysis *database.BookingAnalysis `json:"analysis,omitempty"`
}

// Store is the message persistence the engine reads from and writes to
type Store interface {
	GetByID(ctx context.Context, id int64) (*database.BookingEmail, error)
	RecordResult(ctx context.Context, id int64, analysis database.BookingAnalysis, at time.Time) error
	RecordError(ctx context.Context, id int64, message string, at time.Time) error
}

// Engine extracts structured booking data from stored messages
type Engine struct {
	store     Store
	completer Completer
	logger    *slog.Logger
	now       func() time.Time
}

// NewEngine creates an extraction engine
func NewEngine(store Store, completer Completer, logger *slog.Logger) *Engine {
	if logger == nil {
		logger = slog.Default()
	}
	return &Engine{
		store:     store,
		completer: completer,
		logger:    logger,
		now:       time.Now,
	}
}

// Analyze runs extraction for one message and stores either the result or
// the error. It never panics and never returns an error; failures are
// reported in the Result.
func (e *Engine) Analyze(ctx context.Context, id int64) (result Result) {
	defer func() {
		if r := recover(); r != nil {
			msg := fmt.Sprint(r)
			e.logger.Error("Panic during analysis", "booking_id", id, "panic", msg)
			result = e.fail(ctx, id, msg)
		}
	}()

	msg, err := e.store.GetByID(ctx, id)
	if errors.Is(err, database.ErrNotFound) {
		return Result{Error: "Message not found"}
	}
	if err != nil {
		return Result{Error: err.Error()}
	}

	content := msg.BodyHTML
	if content == "" {
		content = msg.Body
	}
	if content == "" {
		return e.fail(ctx, id, ErrNoBody.Error())
	}

	e.logger.Debug("Calling language model", "booking_id", id, "provider", e.completer.Name())
	text, err := e.completer.Complete(ctx, BuildPrompt(content))
	if err != nil {
		if errors.Is(err, ErrNotConfigured) {
			return Result{Error: err.Error()}
		}
		return e.fail(ctx, id, e.describe(err))
	}
	if text == "" {
		return e.fail(ctx, id, e.describe(ErrNoContent))
	}

	analysis, err := ParseAnalysis(text)
	if err != nil {
		return e.fail(ctx, id, err.Error())
	}

	if err := e.store.RecordResult(ctx, id, analysis, e.now()); err != nil {
		e.logger.Error("Failed to store analysis", "booking_id", id, "error", err)
		return Result{Error: fmt.Sprintf("failed to store analysis: %v", err)}
	}

	e.logger.Info("Analyzed message",
		"booking_id", id,
		"hotel_booking", analysis.IsHotelBooking != nil && *analysis.IsHotelBooking)
	return Result{Success: true, Analysis: &analysis}
}

// describe maps completion errors to the message stored on the record
func (e *Engine) describe(err error) string {
	var apiErr *APIError
	switch {
	case errors.As(err, &apiErr):
		return apiErr.Error()
	case errors.Is(err, ErrNoContent):
		return fmt.Sprintf("No content in %s response", e.completer.Name())
	default:
		return err.Error()
	}
}

func (e *Engine) fail(ctx context.Context, id int64, message string) Result {
	e.logger.Warn("Analysis failed", "booking_id", id, "error", message)
	if err := e.store.RecordError(ctx, id, message, e.now()); err != nil {
		e.logger.Error("Failed to store analysis error", "booking_id", id, "error", err)
	}
	return Result{Error: message}
}
