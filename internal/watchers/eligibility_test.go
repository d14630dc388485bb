package watchers

import (
	"testing"

	"github.com/stretchr/testify/assert"

	"booking-tracker/internal/database"
)

func strPtr(s string) *string { return &s }
func boolPtr(b bool) *bool    { return &b }

func completeBooking() *database.BookingEmail {
	return &database.BookingEmail{
		ID:     1,
		UserID: 1,
		Status: database.StatusAnalyzed,
		BookingAnalysis: database.BookingAnalysis{
			IsHotelBooking:    boolPtr(true),
			IsCancelable:      boolPtr(true),
			CancelableUntil:   strPtr("May 30, 2024"),
			CheckInDate:       strPtr("2024-06-01"),
			CheckOutDate:      strPtr("3 June 2024"),
			TotalCost:         strPtr("€ 412.50"),
			HotelName:         strPtr("Hotel Adlon"),
			PinNumber:         strPtr("1234"),
			ModifyBookingLink: strPtr("https://secure.booking.com/myreservations.html"),
		},
	}
}

func TestEligible_CompleteBooking(t *testing.T) {
	b := completeBooking()
	assert.True(t, Eligible(b))
	assert.Empty(t, MissingFields(b))
}

func TestEligible_RejectsEachMissingField(t *testing.T) {
	clearField := map[string]func(b *database.BookingEmail){
		"hotelName":         func(b *database.BookingEmail) { b.HotelName = nil },
		"checkInDate":       func(b *database.BookingEmail) { b.CheckInDate = nil },
		"checkOutDate":      func(b *database.BookingEmail) { b.CheckOutDate = strPtr("") },
		"totalCost":         func(b *database.BookingEmail) { b.TotalCost = strPtr("   ") },
		"pinNumber":         func(b *database.BookingEmail) { b.PinNumber = nil },
		"modifyBookingLink": func(b *database.BookingEmail) { b.ModifyBookingLink = nil },
		"cancelableUntil":   func(b *database.BookingEmail) { b.CancelableUntil = nil },
	}

	for field, mutate := range clearField {
		t.Run(field, func(t *testing.T) {
			b := completeBooking()
			mutate(b)

			assert.False(t, Eligible(b))
			assert.Equal(t, []string{field}, MissingFields(b))
		})
	}
}

func TestEligible_Flags(t *testing.T) {
	testCases := []struct {
		name   string
		mutate func(b *database.BookingEmail)
	}{
		{"not a hotel booking", func(b *database.BookingEmail) { b.IsHotelBooking = boolPtr(false) }},
		{"hotel booking unknown", func(b *database.BookingEmail) { b.IsHotelBooking = nil }},
		{"not cancelable", func(b *database.BookingEmail) { b.IsCancelable = boolPtr(false) }},
		{"cancelable unknown", func(b *database.BookingEmail) { b.IsCancelable = nil }},
		{"watcher already registered", func(b *database.BookingEmail) { b.WatcherID = strPtr("w-1") }},
	}

	for _, tc := range testCases {
		t.Run(tc.name, func(t *testing.T) {
			b := completeBooking()
			tc.mutate(b)
			assert.False(t, Eligible(b))
		})
	}

	assert.False(t, Eligible(nil))
}

func TestMissingFields_ReportsAllInPayloadOrder(t *testing.T) {
	b := &database.BookingEmail{}
	assert.Equal(t, []string{
		"hotelName", "checkInDate", "checkOutDate", "totalCost",
		"pinNumber", "modifyBookingLink", "cancelableUntil",
	}, MissingFields(b))
}
