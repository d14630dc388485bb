package cli

import (
	"bytes"
	"encoding/json"
	"fmt"
	"io"
	"os"
	"strings"
	"text/tabwriter"
	"time"

	"github.com/charmbracelet/lipgloss"
	"github.com/mattn/go-isatty"

	"booking-tracker/internal/database"
	"booking-tracker/internal/email"
	"booking-tracker/internal/workers"
)

var (
	headerStyle  = lipgloss.NewStyle().Bold(true).Foreground(lipgloss.Color("12"))
	successStyle = lipgloss.NewStyle().Foreground(lipgloss.Color("10"))
	errorStyle   = lipgloss.NewStyle().Foreground(lipgloss.Color("9"))
	infoStyle    = lipgloss.NewStyle().Foreground(lipgloss.Color("8"))
)

// OutputFormatter handles different output formats
type OutputFormatter struct {
	format   string
	quiet    bool
	useColor bool
	out      io.Writer
	errOut   io.Writer
}

// NewOutputFormatter creates a formatter writing to stdout. Color is used
// only when stdout is a terminal and noColor is unset.
func NewOutputFormatter(format string, quiet, noColor bool) *OutputFormatter {
	useColor := !noColor && os.Getenv("NO_COLOR") == "" && isatty.IsTerminal(os.Stdout.Fd())
	return &OutputFormatter{
		format:   format,
		quiet:    quiet,
		useColor: useColor,
		out:      os.Stdout,
		errOut:   os.Stderr,
	}
}

// NewWriterFormatter creates an uncolored formatter writing to out and errOut
func NewWriterFormatter(format string, quiet bool, out, errOut io.Writer) *OutputFormatter {
	return &OutputFormatter{format: format, quiet: quiet, out: out, errOut: errOut}
}

// PrintBookings prints a list of booking emails
func (f *OutputFormatter) PrintBookings(bookings []database.BookingEmail) error {
	if f.quiet {
		for _, b := range bookings {
			fmt.Fprintf(f.out, "%d\n", b.ID)
		}
		return nil
	}

	switch f.format {
	case "json":
		return json.NewEncoder(f.out).Encode(bookings)
	case "table":
		return f.printBookingsTable(bookings)
	default:
		return fmt.Errorf("unsupported format: %s", f.format)
	}
}

// PrintBooking prints a single booking email
func (f *OutputFormatter) PrintBooking(b *database.BookingEmail) error {
	if f.quiet {
		fmt.Fprintf(f.out, "%d\n", b.ID)
		return nil
	}

	switch f.format {
	case "json":
		return json.NewEncoder(f.out).Encode(b)
	case "table":
		return f.printBookingDetail(b)
	default:
		return fmt.Errorf("unsupported format: %s", f.format)
	}
}

// PrintBatchResults prints the outcome of one or more sweeps
func (f *OutputFormatter) PrintBatchResults(results []workers.BatchResult) error {
	if f.format == "json" {
		return json.NewEncoder(f.out).Encode(results)
	}

	if f.quiet {
		for _, r := range results {
			fmt.Fprintf(f.out, "%s %d/%d\n", r.Name, r.Succeeded, r.Attempted)
		}
		return nil
	}

	for _, r := range results {
		summary := fmt.Sprintf("%s: %d of %d succeeded in %s", r.Name, r.Succeeded, r.Attempted, r.Duration.Round(time.Millisecond))
		if r.Failed() {
			f.PrintError(fmt.Errorf("%s: %s", r.Name, r.Error))
		} else if len(r.Errors) > 0 {
			f.PrintInfo(summary)
		} else {
			f.PrintSuccess(summary)
		}
		for _, item := range r.Errors {
			fmt.Fprintf(f.out, "    #%d  %s\n", item.ID, item.Error)
		}
	}
	return nil
}

// PrintFetchResult prints the outcome of a single mailbox scan
func (f *OutputFormatter) PrintFetchResult(result email.FetchResult) error {
	if f.format == "json" {
		return json.NewEncoder(f.out).Encode(result)
	}
	f.PrintSuccess(fmt.Sprintf("Found %d messages, stored %d new", result.Found, result.Stored))
	for _, failure := range result.Failures {
		fmt.Fprintf(f.out, "    %s  %s\n", failure.MessageID, failure.Error)
	}
	return nil
}

// PrintSuccess prints a success message
func (f *OutputFormatter) PrintSuccess(message string) {
	if !f.quiet {
		fmt.Fprintln(f.out, f.style(successStyle, "✓")+" "+message)
	}
}

// PrintError prints an error message
func (f *OutputFormatter) PrintError(err error) {
	if !f.quiet {
		fmt.Fprintln(f.errOut, f.style(errorStyle, "✗ Error:")+" "+err.Error())
	}
}

// PrintInfo prints an informational message
func (f *OutputFormatter) PrintInfo(message string) {
	if !f.quiet {
		fmt.Fprintln(f.out, f.style(infoStyle, "ℹ")+" "+message)
	}
}

func (f *OutputFormatter) style(s lipgloss.Style, text string) string {
	if !f.useColor {
		return text
	}
	return s.Render(text)
}

func (f *OutputFormatter) printBookingsTable(bookings []database.BookingEmail) error {
	if len(bookings) == 0 {
		fmt.Fprintln(f.out, "No bookings found.")
		return nil
	}

	// Color codes would break tabwriter alignment, so the header is styled afterwards
	var buf bytes.Buffer
	w := tabwriter.NewWriter(&buf, 0, 0, 2, ' ', 0)
	fmt.Fprintln(w, "ID\tRECEIVED\tSTATUS\tHOTEL\tCHECK-IN\tTOTAL\tWATCHER")
	for _, b := range bookings {
		fmt.Fprintf(w, "%d\t%s\t%s\t%s\t%s\t%s\t%s\n",
			b.ID,
			b.ReceivedAt.Format("2006-01-02"),
			b.Status,
			truncate(deref(b.HotelName), 28),
			deref(b.CheckInDate),
			deref(b.TotalCost),
			truncate(deref(b.WatcherID), 14))
	}
	if err := w.Flush(); err != nil {
		return err
	}

	header, rest, _ := strings.Cut(buf.String(), "\n")
	fmt.Fprintln(f.out, f.style(headerStyle, header))
	_, err := io.WriteString(f.out, rest)
	return err
}

func (f *OutputFormatter) printBookingDetail(b *database.BookingEmail) error {
	row := func(label, value string) {
		if value != "" {
			fmt.Fprintf(f.out, "%s %s\n", f.style(headerStyle, label+":"), value)
		}
	}

	row("Booking ID", fmt.Sprint(b.ID))
	row("Subject", b.Subject)
	row("From", b.Sender)
	row("Received", b.ReceivedAt.Format("2006-01-02 15:04:05"))
	row("Status", b.Status)
	if b.AnalysisError != nil {
		row("Analysis error", *b.AnalysisError)
	}
	row("Hotel booking", boolText(b.IsHotelBooking))
	row("Cancelable", boolText(b.IsCancelable))
	row("Cancel by", deref(b.CancelableUntil))
	row("Guest", deref(b.CustomerName))
	row("Hotel", deref(b.HotelName))
	row("Address", deref(b.HotelAddress))
	row("Check-in", deref(b.CheckInDate))
	row("Check-out", deref(b.CheckOutDate))
	row("Total", deref(b.TotalCost))
	row("Confirmation", deref(b.ConfirmationReference))
	row("Watcher", deref(b.WatcherID))
	row("Cancellation", deref(b.CancellationStatus))
	return nil
}

func deref(s *string) string {
	if s == nil {
		return ""
	}
	return *s
}

func boolText(b *bool) string {
	if b == nil {
		return ""
	}
	if *b {
		return "yes"
	}
	return "no"
}

// truncate shortens s to maxLen runes, marking the cut with "..."
func truncate(s string, maxLen int) string {
	runes := []rune(s)
	if len(runes) <= maxLen {
		return s
	}
	if maxLen <= 3 {
		return "..."
	}
	return string(runes[:maxLen-3]) + "..."
}
