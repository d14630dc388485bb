// Copyright 2024 Package Tracking System
//
// Licensed under the Apache License, Version 2.0 (the "License");
// you may not use this file except in compliance with the License.
// You may obtain a copy of the License at
//
//     http://www.apache.org/licenses/LICENSE-2.0
//
// Unless required by applicable law or agreed to in writing, software
// distributed under the License is distributed on an "AS IS" BASIS,
// WITHOUT WARRANTIES OR CONDITIONS OF ANY KIND, either express or implied.
// See the License for the specific language governing permissions and
// limitations under the License.

package database

import (
	"database/sql"
	"errors"
	"fmt"

	_ "github.com/mattn/go-sqlite3"
)

// ErrNotFound is returned when a lookup matches no row
var ErrNotFound = errors.New("not found")

// DB wraps the sql.DB connection and provides access to stores
type DB struct {
	*sql.DB
	Users       *UserStore
	Bookings    *BookingStore
	PriceChecks *PriceCheckStore
}

// Open opens a database connection and initializes stores
func Open(dbPath string) (*DB, error) {
	db, err := sql.Open("sqlite3", dbPath)
	if err != nil {
		return nil, fmt.Errorf("failed to open database: %w", err)
	}

	// Every connection to ":memory:" is a separate database
	if dbPath == ":memory:" {
		db.SetMaxOpenConns(1)
	}

	if err := db.Ping(); err != nil {
		return nil, fmt.Errorf("failed to ping database: %w", err)
	}

	pragmas := []string{
		"PRAGMA foreign_keys = ON",
		"PRAGMA journal_mode = WAL",
		"PRAGMA busy_timeout = 5000",
	}
	for _, pragma := range pragmas {
		if _, err := db.Exec(pragma); err != nil {
			return nil, fmt.Errorf("failed to apply %q: %w", pragma, err)
		}
	}

	database := &DB{
		DB:          db,
		Users:       NewUserStore(db),
		Bookings:    NewBookingStore(db),
		PriceChecks: NewPriceCheckStore(db),
	}

	if err := database.migrate(); err != nil {
		return nil, fmt.Errorf("failed to run migrations: %w", err)
	}

	return database, nil
}

// migrate creates the database schema
func (db *DB) migrate() error {
	schema := `
	CREATE TABLE IF NOT EXISTS users (
		id INTEGER PRIMARY KEY AUTOINCREMENT,
		external_id TEXT NOT NULL UNIQUE,
		email TEXT,
		first_name TEXT,
		last_name TEXT,
		gmail_access_token TEXT,
		gmail_refresh_token TEXT,
		gmail_token_expiry DATETIME,
		last_gmail_check_at DATETIME,
		created_at DATETIME DEFAULT CURRENT_TIMESTAMP,
		updated_at DATETIME DEFAULT CURRENT_TIMESTAMP
	);

	CREATE TABLE IF NOT EXISTS booking_emails (
		id INTEGER PRIMARY KEY AUTOINCREMENT,
		user_id INTEGER NOT NULL,
		gmail_message_id TEXT NOT NULL UNIQUE,
		subject TEXT NOT NULL DEFAULT '',
		sender TEXT NOT NULL DEFAULT '',
		received_at DATETIME NOT NULL,
		body TEXT NOT NULL DEFAULT '',
		body_html TEXT NOT NULL DEFAULT '',
		status TEXT NOT NULL DEFAULT 'unprocessed',
		processed_at DATETIME,
		is_hotel_booking BOOLEAN,
		is_cancelable BOOLEAN,
		cancelable_until TEXT,
		customer_name TEXT,
		check_in_date TEXT,
		check_out_date TEXT,
		total_cost TEXT,
		hotel_name TEXT,
		hotel_address TEXT,
		pin_number TEXT,
		confirmation_reference TEXT,
		modify_booking_link TEXT,
		analysis_error TEXT,
		created_at DATETIME DEFAULT CURRENT_TIMESTAMP,
		updated_at DATETIME DEFAULT CURRENT_TIMESTAMP,
		FOREIGN KEY (user_id) REFERENCES users(id) ON DELETE CASCADE
	);

	CREATE TABLE IF NOT EXISTS price_checks (
		id INTEGER PRIMARY KEY AUTOINCREMENT,
		user_id INTEGER NOT NULL,
		booking_email_id INTEGER NOT NULL UNIQUE,
		watcher_id TEXT NOT NULL,
		hotel_name TEXT NOT NULL,
		check_in_date TEXT NOT NULL,
		check_out_date TEXT NOT NULL,
		original_price TEXT NOT NULL,
		current_price TEXT,
		last_checked_at DATETIME NOT NULL,
		price_drop_detected BOOLEAN NOT NULL DEFAULT FALSE,
		is_active BOOLEAN NOT NULL DEFAULT TRUE,
		created_at DATETIME DEFAULT CURRENT_TIMESTAMP,
		FOREIGN KEY (user_id) REFERENCES users(id) ON DELETE CASCADE,
		FOREIGN KEY (booking_email_id) REFERENCES booking_emails(id) ON DELETE CASCADE
	);

	CREATE INDEX IF NOT EXISTS idx_booking_emails_user_received ON booking_emails(user_id, received_at);
	CREATE INDEX IF NOT EXISTS idx_booking_emails_status ON booking_emails(status);
	CREATE INDEX IF NOT EXISTS idx_booking_emails_confirmation ON booking_emails(confirmation_reference);
	CREATE INDEX IF NOT EXISTS idx_price_checks_watcher ON price_checks(watcher_id);
	CREATE INDEX IF NOT EXISTS idx_price_checks_active ON price_checks(is_active);
	`

	if _, err := db.Exec(schema); err != nil {
		return fmt.Errorf("failed to create schema: %w", err)
	}

	return db.migrateWatcherFields()
}

// migrateWatcherFields adds the watcher tracking columns to databases created
// before watcher registration existed
func (db *DB) migrateWatcherFields() error {
	columns := []struct {
		name string
		ddl  string
	}{
		{"watcher_id", "ALTER TABLE booking_emails ADD COLUMN watcher_id TEXT"},
		{"cancellation_status", "ALTER TABLE booking_emails ADD COLUMN cancellation_status TEXT"},
	}

	for _, col := range columns {
		var columnExists int
		err := db.QueryRow(`
			SELECT COUNT(*)
			FROM pragma_table_info('booking_emails')
			WHERE name = ?
		`, col.name).Scan(&columnExists)
		if err != nil {
			return fmt.Errorf("failed to check %s column existence: %w", col.name, err)
		}

		if columnExists == 0 {
			if _, err := db.Exec(col.ddl); err != nil {
				return fmt.Errorf("failed to execute migration query '%s': %w", col.ddl, err)
			}
		}
	}

	// The unique index enforces at most one booking per watcher
	_, err := db.Exec("CREATE UNIQUE INDEX IF NOT EXISTS idx_booking_emails_watcher ON booking_emails(watcher_id)")
	if err != nil {
		return fmt.Errorf("failed to create watcher index: %w", err)
	}

	return nil
}

// IsHealthy checks if the database connection is healthy
func (db *DB) IsHealthy() error {
	return db.Ping()
}
