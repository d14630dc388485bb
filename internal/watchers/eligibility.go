// Package watchers decides when a booking may be watched and registers
// watchers with the external price and cancellation service.
package watchers

import (
	"strings"

	"booking-tracker/internal/database"
)

// requiredField pairs a wire name with its accessor on the analysis
type requiredField struct {
	name  string
	value func(a *database.BookingAnalysis) *string
}

// Order matches the registration payload
var requiredFields = []requiredField{
	{"hotelName", func(a *database.BookingAnalysis) *string { return a.HotelName }},
	{"checkInDate", func(a *database.BookingAnalysis) *string { return a.CheckInDate }},
	{"checkOutDate", func(a *database.BookingAnalysis) *string { return a.CheckOutDate }},
	{"totalCost", func(a *database.BookingAnalysis) *string { return a.TotalCost }},
	{"pinNumber", func(a *database.BookingAnalysis) *string { return a.PinNumber }},
	{"modifyBookingLink", func(a *database.BookingAnalysis) *string { return a.ModifyBookingLink }},
	{"cancelableUntil", func(a *database.BookingAnalysis) *string { return a.CancelableUntil }},
}

// MissingFields lists the required booking fields that are absent or blank
func MissingFields(b *database.BookingEmail) []string {
	var missing []string
	for _, f := range requiredFields {
		if v := f.value(&b.BookingAnalysis); v == nil || strings.TrimSpace(*v) == "" {
			missing = append(missing, f.name)
		}
	}
	return missing
}

// Eligible reports whether a watcher may be registered for the booking: no
// watcher yet, a cancelable hotel booking, and every required field present.
func Eligible(b *database.BookingEmail) bool {
	if b == nil || b.HasWatcher() {
		return false
	}
	if !isTrue(b.IsHotelBooking) || !isTrue(b.IsCancelable) {
		return false
	}
	return len(MissingFields(b)) == 0
}

func isTrue(b *bool) bool {
	return b != nil && *b
}
