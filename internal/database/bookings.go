package database

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"strings"
	"time"
)

// BookingStore handles database operations for booking emails
type BookingStore struct {
	db *sql.DB
}

func NewBookingStore(db *sql.DB) *BookingStore {
	return &BookingStore{db: db}
}

const bookingColumns = `id, user_id, gmail_message_id, subject, sender, received_at, body, body_html,
	status, processed_at, is_hotel_booking, is_cancelable, cancelable_until, customer_name,
	check_in_date, check_out_date, total_cost, hotel_name, hotel_address, pin_number,
	confirmation_reference, modify_booking_link, analysis_error, watcher_id, cancellation_status,
	created_at, updated_at`

func scanBooking(row interface{ Scan(...interface{}) error }) (*BookingEmail, error) {
	var b BookingEmail
	a := &b.BookingAnalysis
	err := row.Scan(&b.ID, &b.UserID, &b.GmailMessageID, &b.Subject, &b.Sender, &b.ReceivedAt,
		&b.Body, &b.BodyHTML, &b.Status, &b.ProcessedAt,
		&a.IsHotelBooking, &a.IsCancelable, &a.CancelableUntil, &a.CustomerName,
		&a.CheckInDate, &a.CheckOutDate, &a.TotalCost, &a.HotelName, &a.HotelAddress,
		&a.PinNumber, &a.ConfirmationReference, &a.ModifyBookingLink,
		&b.AnalysisError, &b.WatcherID, &b.CancellationStatus, &b.CreatedAt, &b.UpdatedAt)
	if err != nil {
		return nil, err
	}
	return &b, nil
}

func (s *BookingStore) queryBookings(ctx context.Context, query string, args ...interface{}) ([]BookingEmail, error) {
	rows, err := s.db.QueryContext(ctx, query, args...)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var bookings []BookingEmail
	for rows.Next() {
		b, err := scanBooking(rows)
		if err != nil {
			return nil, err
		}
		bookings = append(bookings, *b)
	}
	return bookings, rows.Err()
}

// StoreIfNew inserts the message unless one with the same Gmail message id
// already exists. The check and the insert are a single statement, so two
// overlapping scans cannot both insert. Returns true only for a new row.
func (s *BookingStore) StoreIfNew(ctx context.Context, b *BookingEmail) (bool, error) {
	if b.GmailMessageID == "" {
		return false, fmt.Errorf("gmail message id is required")
	}

	query := `INSERT INTO booking_emails (user_id, gmail_message_id, subject, sender, received_at, body, body_html, status)
			  VALUES (?, ?, ?, ?, ?, ?, ?, ?)
			  ON CONFLICT(gmail_message_id) DO NOTHING`

	result, err := s.db.ExecContext(ctx, query,
		b.UserID, b.GmailMessageID, b.Subject, b.Sender, b.ReceivedAt.UTC(),
		truncateRunes(b.Body, MaxBodyLength), truncateRunes(b.BodyHTML, MaxBodyLength), StatusUnprocessed)
	if err != nil {
		return false, fmt.Errorf("failed to store message %s: %w", b.GmailMessageID, err)
	}

	n, err := result.RowsAffected()
	if err != nil {
		return false, err
	}
	if n == 0 {
		return false, nil
	}

	if id, err := result.LastInsertId(); err == nil {
		b.ID = id
	}
	b.Status = StatusUnprocessed
	return true, nil
}

// GetByID retrieves a booking email by id
func (s *BookingStore) GetByID(ctx context.Context, id int64) (*BookingEmail, error) {
	row := s.db.QueryRowContext(ctx, "SELECT "+bookingColumns+" FROM booking_emails WHERE id = ?", id)
	b, err := scanBooking(row)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, ErrNotFound
	}
	return b, err
}

// ListByUser returns a user's booking emails, newest first
func (s *BookingStore) ListByUser(ctx context.Context, userID int64) ([]BookingEmail, error) {
	return s.queryBookings(ctx, "SELECT "+bookingColumns+` FROM booking_emails
		WHERE user_id = ? ORDER BY received_at DESC`, userID)
}

const analysisAssignments = `
	is_hotel_booking = ?, is_cancelable = ?, cancelable_until = ?, customer_name = ?,
	check_in_date = ?, check_out_date = ?, total_cost = ?, hotel_name = ?, hotel_address = ?,
	pin_number = ?, confirmation_reference = ?, modify_booking_link = ?`

func analysisArgs(a BookingAnalysis) []interface{} {
	return []interface{}{
		a.IsHotelBooking, a.IsCancelable, a.CancelableUntil, a.CustomerName,
		a.CheckInDate, a.CheckOutDate, a.TotalCost, a.HotelName, a.HotelAddress,
		a.PinNumber, a.ConfirmationReference, a.ModifyBookingLink,
	}
}

// RecordResult stores an extraction result, clears any previous error and
// marks the message analyzed
func (s *BookingStore) RecordResult(ctx context.Context, id int64, analysis BookingAnalysis, at time.Time) error {
	query := `UPDATE booking_emails SET status = ?, processed_at = ?, analysis_error = NULL,` +
		analysisAssignments + `, updated_at = CURRENT_TIMESTAMP WHERE id = ?`

	args := []interface{}{StatusAnalyzed, at.UTC()}
	args = append(args, analysisArgs(analysis)...)
	args = append(args, id)

	result, err := s.db.ExecContext(ctx, query, args...)
	if err != nil {
		return fmt.Errorf("failed to record analysis for %d: %w", id, err)
	}
	return requireRow(result)
}

// RecordError stores an extraction failure, clears any previous result and
// marks the message errored. Errored messages stay eligible for
// ListUnprocessedOrErrored so a later sweep retries them.
func (s *BookingStore) RecordError(ctx context.Context, id int64, message string, at time.Time) error {
	query := `UPDATE booking_emails SET status = ?, processed_at = ?, analysis_error = ?,` +
		analysisAssignments + `, updated_at = CURRENT_TIMESTAMP WHERE id = ?`

	args := []interface{}{StatusErrored, at.UTC(), message}
	args = append(args, analysisArgs(BookingAnalysis{})...)
	args = append(args, id)

	result, err := s.db.ExecContext(ctx, query, args...)
	if err != nil {
		return fmt.Errorf("failed to record analysis error for %d: %w", id, err)
	}
	return requireRow(result)
}

// ListUnprocessedOrErrored returns ids of messages awaiting analysis or whose
// last analysis failed. Unprocessed messages come first, then errored ones
// starting with the least recently tried.
func (s *BookingStore) ListUnprocessedOrErrored(ctx context.Context, limit int) ([]int64, error) {
	if limit <= 0 {
		limit = 50
	}

	rows, err := s.db.QueryContext(ctx, `SELECT id FROM booking_emails
		WHERE status IN (?, ?) ORDER BY status = ?, processed_at, id LIMIT ?`,
		StatusUnprocessed, StatusErrored, StatusErrored, limit)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var ids []int64
	for rows.Next() {
		var id int64
		if err := rows.Scan(&id); err != nil {
			return nil, err
		}
		ids = append(ids, id)
	}
	return ids, rows.Err()
}

// ListWatcherCandidates returns analyzed, cancelable hotel bookings that have
// no watcher yet. Field completeness is left to the caller. A limit of zero
// or less returns every candidate.
func (s *BookingStore) ListWatcherCandidates(ctx context.Context, limit int) ([]BookingEmail, error) {
	if limit <= 0 {
		limit = -1
	}
	return s.queryBookings(ctx, "SELECT "+bookingColumns+` FROM booking_emails
		WHERE status = ? AND watcher_id IS NULL AND is_hotel_booking = 1 AND is_cancelable = 1
		ORDER BY id LIMIT ?`, StatusAnalyzed, limit)
}

// SetWatcherID records the external watcher id. It only writes when no
// watcher is set yet and reports whether it did.
func (s *BookingStore) SetWatcherID(ctx context.Context, id int64, watcherID string) (bool, error) {
	if watcherID == "" {
		return false, fmt.Errorf("watcher id is required")
	}

	result, err := s.db.ExecContext(ctx, `UPDATE booking_emails
		SET watcher_id = ?, updated_at = CURRENT_TIMESTAMP
		WHERE id = ? AND watcher_id IS NULL`, watcherID, id)
	if err != nil {
		return false, fmt.Errorf("failed to set watcher for %d: %w", id, err)
	}

	n, err := result.RowsAffected()
	if err != nil {
		return false, err
	}
	return n == 1, nil
}

// GetWatcherIDByConfirmationRef finds the watcher registered for a booking
// confirmation reference belonging to the user
func (s *BookingStore) GetWatcherIDByConfirmationRef(ctx context.Context, userID int64, ref string) (string, error) {
	ref = strings.TrimSpace(ref)
	if ref == "" {
		return "", ErrNotFound
	}

	var watcherID string
	err := s.db.QueryRowContext(ctx, `SELECT watcher_id FROM booking_emails
		WHERE user_id = ? AND confirmation_reference = ? AND watcher_id IS NOT NULL
		ORDER BY id DESC LIMIT 1`, userID, ref).Scan(&watcherID)
	if errors.Is(err, sql.ErrNoRows) {
		return "", ErrNotFound
	}
	if err != nil {
		return "", err
	}
	return watcherID, nil
}

// MarkAwaitingCancellation flags the booking watched by watcherID for cancellation
func (s *BookingStore) MarkAwaitingCancellation(ctx context.Context, watcherID string) (CancellationResult, error) {
	result, err := s.db.ExecContext(ctx, `UPDATE booking_emails
		SET cancellation_status = ?, updated_at = CURRENT_TIMESTAMP
		WHERE watcher_id = ?`, CancellationAwaiting, watcherID)
	if err != nil {
		return CancellationResult{}, fmt.Errorf("failed to mark cancellation: %w", err)
	}

	n, err := result.RowsAffected()
	if err != nil {
		return CancellationResult{}, err
	}
	if n == 0 {
		return CancellationResult{Found: false, Status: "not_found"}, nil
	}
	return CancellationResult{Found: true, Status: CancellationAwaiting}, nil
}

// Delete removes a booking email owned by the user
func (s *BookingStore) Delete(ctx context.Context, userID, id int64) error {
	result, err := s.db.ExecContext(ctx, "DELETE FROM booking_emails WHERE id = ? AND user_id = ?", id, userID)
	if err != nil {
		return fmt.Errorf("failed to delete booking %d: %w", id, err)
	}
	return requireRow(result)
}

// CountReservations counts messages identified as hotel bookings
func (s *BookingStore) CountReservations(ctx context.Context, userID int64) (int, error) {
	var count int
	err := s.db.QueryRowContext(ctx, `SELECT COUNT(*) FROM booking_emails
		WHERE user_id = ? AND is_hotel_booking = 1`, userID).Scan(&count)
	return count, err
}
