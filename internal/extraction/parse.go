package extraction

import (
	"encoding/json"
	"errors"
	"fmt"
	"strconv"
	"strings"

	"booking-tracker/internal/database"
)

// ErrNoJSON is returned when the response contains no JSON object
var ErrNoJSON = errors.New("Could not extract JSON from response")

// extractJSON returns the span from the first '{' to the last '}'
func extractJSON(text string) (string, bool) {
	start := strings.Index(text, "{")
	end := strings.LastIndex(text, "}")
	if start < 0 || end < start {
		return "", false
	}
	return text[start : end+1], true
}

// ParseAnalysis extracts the booking fields from a model response. Only the
// twelve known field names are read; values of an unexpected type are
// treated as missing.
func ParseAnalysis(text string) (database.BookingAnalysis, error) {
	raw, ok := extractJSON(text)
	if !ok {
		return database.BookingAnalysis{}, ErrNoJSON
	}

	var fields map[string]any
	if err := json.Unmarshal([]byte(raw), &fields); err != nil {
		return database.BookingAnalysis{}, fmt.Errorf("Invalid JSON in response: %w", err)
	}

	return database.BookingAnalysis{
		IsHotelBooking:        boolField(fields, "isHotelBooking"),
		IsCancelable:          boolField(fields, "isCancelable"),
		CancelableUntil:       stringField(fields, "cancelableUntil"),
		CustomerName:          stringField(fields, "customerName"),
		CheckInDate:           stringField(fields, "checkInDate"),
		CheckOutDate:          stringField(fields, "checkOutDate"),
		TotalCost:             stringField(fields, "totalCost"),
		HotelName:             stringField(fields, "hotelName"),
		HotelAddress:          stringField(fields, "hotelAddress"),
		PinNumber:             stringField(fields, "pinNumber"),
		ConfirmationReference: stringField(fields, "confirmationReference"),
		ModifyBookingLink:     stringField(fields, "modifyBookingLink"),
	}, nil
}

func boolField(fields map[string]any, name string) *bool {
	switch v := fields[name].(type) {
	case bool:
		return &v
	case string:
		if b, err := strconv.ParseBool(strings.TrimSpace(v)); err == nil {
			return &b
		}
	}
	return nil
}

func stringField(fields map[string]any, name string) *string {
	var s string
	switch v := fields[name].(type) {
	case string:
		s = strings.TrimSpace(v)
	case float64:
		s = strconv.FormatFloat(v, 'f', -1, 64)
	default:
		return nil
	}
	if s == "" || strings.EqualFold(s, "null") {
		return nil
	}
	return &s
}
