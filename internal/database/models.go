package database

import (
	"time"
)

// Processing states for a booking email
const (
	StatusUnprocessed = "unprocessed"
	StatusAnalyzed    = "analyzed"
	StatusErrored     = "errored"
)

// CancellationAwaiting is set when the user asks to cancel a watched booking
const CancellationAwaiting = "Awaiting Cancellation"

// MaxBodyLength caps stored bodies, in characters
const MaxBodyLength = 10000

// User is an account holder and the owner of a connected mailbox
type User struct {
	ID                int64      `json:"id"`
	ExternalID        string     `json:"external_id"`
	Email             string     `json:"email,omitempty"`
	FirstName         string     `json:"first_name,omitempty"`
	LastName          string     `json:"last_name,omitempty"`
	GmailAccessToken  string     `json:"-"`
	GmailRefreshToken string     `json:"-"`
	GmailTokenExpiry  *time.Time `json:"-"`
	LastGmailCheckAt  *time.Time `json:"last_gmail_check_at,omitempty"`
	CreatedAt         time.Time  `json:"created_at"`
	UpdatedAt         time.Time  `json:"updated_at"`
}

// GmailConnected reports whether the user has completed the mailbox authorization flow
func (u *User) GmailConnected() bool {
	return u.GmailAccessToken != ""
}

// Identity describes a user as asserted by the upstream identity provider
type Identity struct {
	ExternalID string
	Email      string
	FirstName  string
	LastName   string
}

// BookingAnalysis holds the structured fields extracted from a booking email.
// Every field is optional; nil means the model could not determine it.
type BookingAnalysis struct {
	IsHotelBooking        *bool   `json:"is_hotel_booking"`
	IsCancelable          *bool   `json:"is_cancelable"`
	CancelableUntil       *string `json:"cancelable_until"`
	CustomerName          *string `json:"customer_name"`
	CheckInDate           *string `json:"check_in_date"`
	CheckOutDate          *string `json:"check_out_date"`
	TotalCost             *string `json:"total_cost"`
	HotelName             *string `json:"hotel_name"`
	HotelAddress          *string `json:"hotel_address"`
	PinNumber             *string `json:"pin_number"`
	ConfirmationReference *string `json:"confirmation_reference"`
	ModifyBookingLink     *string `json:"modify_booking_link"`
}

// BookingEmail is one inbound message and everything learned about it
type BookingEmail struct {
	ID             int64     `json:"id"`
	UserID         int64     `json:"user_id"`
	GmailMessageID string    `json:"gmail_message_id"`
	Subject        string    `json:"subject"`
	Sender         string    `json:"sender"`
	ReceivedAt     time.Time `json:"received_at"`
	Body           string    `json:"body"`
	BodyHTML       string    `json:"body_html,omitempty"`

	Status      string     `json:"status"`
	ProcessedAt *time.Time `json:"processed_at,omitempty"`
	BookingAnalysis
	AnalysisError *string `json:"analysis_error,omitempty"`

	WatcherID          *string   `json:"watcher_id,omitempty"`
	CancellationStatus *string   `json:"cancellation_status,omitempty"`
	CreatedAt          time.Time `json:"created_at"`
	UpdatedAt          time.Time `json:"updated_at"`
}

// IsProcessed reports whether an analysis result or error has been stored
func (b *BookingEmail) IsProcessed() bool {
	return b.Status == StatusAnalyzed || b.Status == StatusErrored
}

// HasWatcher reports whether a watcher has been registered for this booking
func (b *BookingEmail) HasWatcher() bool {
	return b.WatcherID != nil && *b.WatcherID != ""
}

// CancellationResult reports the outcome of a cancellation request
type CancellationResult struct {
	Found  bool   `json:"found"`
	Status string `json:"status"`
}

// PriceCheck tracks the latest observed price for a watched booking
type PriceCheck struct {
	ID                int64     `json:"id"`
	UserID            int64     `json:"user_id"`
	BookingEmailID    int64     `json:"booking_email_id"`
	WatcherID         string    `json:"watcher_id"`
	HotelName         string    `json:"hotel_name"`
	CheckInDate       string    `json:"check_in_date"`
	CheckOutDate      string    `json:"check_out_date"`
	OriginalPrice     string    `json:"original_price"`
	CurrentPrice      *string   `json:"current_price,omitempty"`
	LastCheckedAt     time.Time `json:"last_checked_at"`
	PriceDropDetected bool      `json:"price_drop_detected"`
	IsActive          bool      `json:"is_active"`
	CreatedAt         time.Time `json:"created_at"`
}

func truncateRunes(s string, max int) string {
	if len(s) <= max {
		return s
	}
	runes := []rune(s)
	if len(runes) <= max {
		return s
	}
	return string(runes[:max])
}

func nullIfEmpty(s string) interface{} {
	if s == "" {
		return nil
	}
	return s
}
