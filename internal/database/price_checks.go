package database

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"time"
)

// PriceCheckStore handles database operations for price checks
type PriceCheckStore struct {
	db *sql.DB
}

func NewPriceCheckStore(db *sql.DB) *PriceCheckStore {
	return &PriceCheckStore{db: db}
}

const priceCheckColumns = `id, user_id, booking_email_id, watcher_id, hotel_name, check_in_date,
	check_out_date, original_price, current_price, last_checked_at, price_drop_detected,
	is_active, created_at`

func scanPriceCheck(row interface{ Scan(...interface{}) error }) (*PriceCheck, error) {
	var p PriceCheck
	err := row.Scan(&p.ID, &p.UserID, &p.BookingEmailID, &p.WatcherID, &p.HotelName,
		&p.CheckInDate, &p.CheckOutDate, &p.OriginalPrice, &p.CurrentPrice,
		&p.LastCheckedAt, &p.PriceDropDetected, &p.IsActive, &p.CreatedAt)
	if err != nil {
		return nil, err
	}
	return &p, nil
}

// Open starts tracking prices for a booking, reactivating an existing check
func (s *PriceCheckStore) Open(ctx context.Context, p *PriceCheck) error {
	query := `INSERT INTO price_checks (user_id, booking_email_id, watcher_id, hotel_name,
				check_in_date, check_out_date, original_price, last_checked_at, is_active)
			  VALUES (?, ?, ?, ?, ?, ?, ?, ?, TRUE)
			  ON CONFLICT(booking_email_id) DO UPDATE SET
				watcher_id = excluded.watcher_id,
				is_active = TRUE`

	checkedAt := p.LastCheckedAt
	if checkedAt.IsZero() {
		checkedAt = time.Now()
	}

	_, err := s.db.ExecContext(ctx, query, p.UserID, p.BookingEmailID, p.WatcherID, p.HotelName,
		p.CheckInDate, p.CheckOutDate, p.OriginalPrice, checkedAt.UTC())
	if err != nil {
		return fmt.Errorf("failed to open price check: %w", err)
	}
	return nil
}

// GetByWatcherID retrieves the price check attached to a watcher
func (s *PriceCheckStore) GetByWatcherID(ctx context.Context, watcherID string) (*PriceCheck, error) {
	row := s.db.QueryRowContext(ctx, "SELECT "+priceCheckColumns+" FROM price_checks WHERE watcher_id = ?", watcherID)
	p, err := scanPriceCheck(row)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, ErrNotFound
	}
	return p, err
}

// RecordCheck stores the latest observed price. A detected drop stays set
// once seen.
func (s *PriceCheckStore) RecordCheck(ctx context.Context, watcherID, currentPrice string, dropDetected bool, at time.Time) error {
	result, err := s.db.ExecContext(ctx, `UPDATE price_checks SET
			current_price = ?,
			last_checked_at = ?,
			price_drop_detected = price_drop_detected OR ?
		WHERE watcher_id = ?`, currentPrice, at.UTC(), dropDetected, watcherID)
	if err != nil {
		return fmt.Errorf("failed to record price check: %w", err)
	}
	return requireRow(result)
}

// ListActiveByUser returns the user's active price checks
func (s *PriceCheckStore) ListActiveByUser(ctx context.Context, userID int64) ([]PriceCheck, error) {
	rows, err := s.db.QueryContext(ctx, "SELECT "+priceCheckColumns+` FROM price_checks
		WHERE user_id = ? AND is_active = TRUE ORDER BY check_in_date`, userID)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var checks []PriceCheck
	for rows.Next() {
		p, err := scanPriceCheck(rows)
		if err != nil {
			return nil, err
		}
		checks = append(checks, *p)
	}
	return checks, rows.Err()
}
