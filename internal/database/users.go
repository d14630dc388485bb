package database

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"time"
)

// UserStore handles database operations for users and their mailbox credentials
type UserStore struct {
	db *sql.DB
}

func NewUserStore(db *sql.DB) *UserStore {
	return &UserStore{db: db}
}

const userColumns = `id, external_id, COALESCE(email, ''), COALESCE(first_name, ''), COALESCE(last_name, ''),
	COALESCE(gmail_access_token, ''), COALESCE(gmail_refresh_token, ''), gmail_token_expiry,
	last_gmail_check_at, created_at, updated_at`

func scanUser(row interface{ Scan(...interface{}) error }) (*User, error) {
	var u User
	err := row.Scan(&u.ID, &u.ExternalID, &u.Email, &u.FirstName, &u.LastName,
		&u.GmailAccessToken, &u.GmailRefreshToken, &u.GmailTokenExpiry,
		&u.LastGmailCheckAt, &u.CreatedAt, &u.UpdatedAt)
	if err != nil {
		return nil, err
	}
	return &u, nil
}

// EnsureUser returns the id of the user with the given external id, creating
// the row on first sight. Profile fields are only filled in, never cleared.
func (s *UserStore) EnsureUser(ctx context.Context, identity Identity) (int64, error) {
	if identity.ExternalID == "" {
		return 0, fmt.Errorf("external id is required")
	}

	query := `INSERT INTO users (external_id, email, first_name, last_name)
			  VALUES (?, ?, ?, ?)
			  ON CONFLICT(external_id) DO UPDATE SET
				email = COALESCE(users.email, excluded.email),
				first_name = COALESCE(users.first_name, excluded.first_name),
				last_name = COALESCE(users.last_name, excluded.last_name)`

	_, err := s.db.ExecContext(ctx, query, identity.ExternalID,
		nullIfEmpty(identity.Email), nullIfEmpty(identity.FirstName), nullIfEmpty(identity.LastName))
	if err != nil {
		return 0, fmt.Errorf("failed to ensure user: %w", err)
	}

	var id int64
	err = s.db.QueryRowContext(ctx, "SELECT id FROM users WHERE external_id = ?", identity.ExternalID).Scan(&id)
	if err != nil {
		return 0, fmt.Errorf("failed to look up user: %w", err)
	}
	return id, nil
}

// GetByID retrieves a user by id
func (s *UserStore) GetByID(ctx context.Context, id int64) (*User, error) {
	row := s.db.QueryRowContext(ctx, "SELECT "+userColumns+" FROM users WHERE id = ?", id)
	u, err := scanUser(row)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, ErrNotFound
	}
	return u, err
}

// GetByExternalID retrieves a user by identity-provider subject
func (s *UserStore) GetByExternalID(ctx context.Context, externalID string) (*User, error) {
	row := s.db.QueryRowContext(ctx, "SELECT "+userColumns+" FROM users WHERE external_id = ?", externalID)
	u, err := scanUser(row)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, ErrNotFound
	}
	return u, err
}

// ListConnected returns every user with a stored mailbox access token
func (s *UserStore) ListConnected(ctx context.Context) ([]User, error) {
	rows, err := s.db.QueryContext(ctx, "SELECT "+userColumns+` FROM users
		WHERE gmail_access_token IS NOT NULL AND gmail_access_token != ''
		ORDER BY id`)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var users []User
	for rows.Next() {
		u, err := scanUser(rows)
		if err != nil {
			return nil, err
		}
		users = append(users, *u)
	}
	return users, rows.Err()
}

// UpdateGmailTokens stores a new access token and expiry. An empty refresh
// token keeps the one already on file, since providers only send it once.
func (s *UserStore) UpdateGmailTokens(ctx context.Context, userID int64, accessToken, refreshToken string, expiry time.Time) error {
	query := `UPDATE users SET
				gmail_access_token = ?,
				gmail_refresh_token = COALESCE(?, gmail_refresh_token),
				gmail_token_expiry = ?,
				updated_at = CURRENT_TIMESTAMP
			  WHERE id = ?`

	result, err := s.db.ExecContext(ctx, query, accessToken, nullIfEmpty(refreshToken), expiry.UTC(), userID)
	if err != nil {
		return fmt.Errorf("failed to update gmail tokens: %w", err)
	}
	return requireRow(result)
}

// TouchLastCheck records when the user's mailbox was last scanned
func (s *UserStore) TouchLastCheck(ctx context.Context, userID int64, at time.Time) error {
	result, err := s.db.ExecContext(ctx,
		"UPDATE users SET last_gmail_check_at = ?, updated_at = CURRENT_TIMESTAMP WHERE id = ?",
		at.UTC(), userID)
	if err != nil {
		return fmt.Errorf("failed to update last check: %w", err)
	}
	return requireRow(result)
}

func requireRow(result sql.Result) error {
	n, err := result.RowsAffected()
	if err != nil {
		return err
	}
	if n == 0 {
		return ErrNotFound
	}
	return nil
}
