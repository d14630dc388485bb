package extraction

import "fmt"

const promptTemplate = `Please analyze the following HTML email content and answer these questions. Return your response as a JSON object with the exact field names specified:

1. Is this email a confirmation of a hotel booking reservation? (boolean field: "isHotelBooking")
2. Is this booking cancelable? (boolean field: "isCancelable")
3. Up till which date is booking cancelable? (string field: "cancelableUntil")
4. What is the customer name who made the booking? (string field: "customerName")
5. What is the check-in date? (string field: "checkInDate")
6. What is the check-out date? (string field: "checkOutDate")
7. What is the total cost? (string field: "totalCost")
8. What is the hotel name? (string field: "hotelName")
9. What is the hotel address? (string field: "hotelAddress")
10. What is the pin number? (string field: "pinNumber")
11. What is the confirmation reference? (string field: "confirmationReference")
12. What is the link to modify or cancel the booking? (string field: "modifyBookingLink")

Return ONLY a valid JSON object with these exact field names. If information is not available, use null for that field. For dates, use ISO format (YYYY-MM-DD) when possible.

Email content:
%s`

// BuildPrompt returns the extraction prompt for an email body
func BuildPrompt(content string) string {
	return fmt.Sprintf(promptTemplate, content)
}
