package extraction

import (
	"strings"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestParseAnalysis(t *testing.T) {
	analysis, err := ParseAnalysis(modelResponse)
	require.NoError(t, err)

	require.NotNil(t, analysis.IsHotelBooking)
	assert.True(t, *analysis.IsHotelBooking)
	assert.Equal(t, "2024-05-30", *analysis.CancelableUntil)
	assert.Equal(t, "Jane Doe", *analysis.CustomerName)
	assert.Equal(t, "2024-06-01", *analysis.CheckInDate)
	assert.Equal(t, "2024-06-03", *analysis.CheckOutDate)
	assert.Equal(t, "1234", *analysis.PinNumber)
	assert.Equal(t, "4711.123.456", *analysis.ConfirmationReference)
	assert.Equal(t, "https://secure.booking.com/myreservations.html", *analysis.ModifyBookingLink)
	assert.Nil(t, analysis.HotelAddress)
}

func TestParseAnalysis_TolerantFieldTypes(t *testing.T) {
	analysis, err := ParseAnalysis(`{
		"isHotelBooking": "true",
		"isCancelable": "maybe",
		"pinNumber": 1234,
		"totalCost": "  ",
		"hotelName": ["not", "a", "string"],
		"customerName": "null",
		"unexpectedField": "ignored"
	}`)
	require.NoError(t, err)

	require.NotNil(t, analysis.IsHotelBooking)
	assert.True(t, *analysis.IsHotelBooking)
	assert.Nil(t, analysis.IsCancelable)
	require.NotNil(t, analysis.PinNumber)
	assert.Equal(t, "1234", *analysis.PinNumber)
	assert.Nil(t, analysis.TotalCost)
	assert.Nil(t, analysis.HotelName)
	assert.Nil(t, analysis.CustomerName)
}

func TestParseAnalysis_Errors(t *testing.T) {
	_, err := ParseAnalysis("no braces at all")
	assert.ErrorIs(t, err, ErrNoJSON)

	_, err = ParseAnalysis("} backwards {")
	assert.ErrorIs(t, err, ErrNoJSON)

	_, err = ParseAnalysis("{not: valid json}")
	require.Error(t, err)
	assert.NotErrorIs(t, err, ErrNoJSON)
	assert.True(t, strings.HasPrefix(err.Error(), "Invalid JSON in response"))
}

func TestBuildPrompt(t *testing.T) {
	prompt := BuildPrompt("<p>Booking</p>")

	for _, field := range []string{
		"isHotelBooking", "isCancelable", "cancelableUntil", "customerName",
		"checkInDate", "checkOutDate", "totalCost", "hotelName", "hotelAddress",
		"pinNumber", "confirmationReference", "modifyBookingLink",
	} {
		assert.Contains(t, prompt, `"`+field+`"`)
	}
	assert.Contains(t, prompt, "Return ONLY a valid JSON object")
	assert.True(t, strings.HasSuffix(prompt, "Email content:\n<p>Booking</p>"))
}
