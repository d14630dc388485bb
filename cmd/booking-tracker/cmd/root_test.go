package cmd

import (
	"bytes"
	"context"
	"encoding/json"
	"io"
	"log/slog"
	"os"
	"path/filepath"
	"strings"
	"syscall"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"booking-tracker/internal/database"
	"booking-tracker/internal/workers"
)

// execute runs the root command with fresh global flag state
func execute(t *testing.T, args ...string) (string, error) {
	t.Helper()
	configFile, envFile, logLevel = "", "", ""
	format, quiet, noColor = "table", false, true
	bookingsUser, checkMailUser, connectUser, connectEmail = "", "", "", ""

	var out bytes.Buffer
	rootCmd.SetOut(&out)
	rootCmd.SetErr(&out)
	rootCmd.SetArgs(args)
	t.Cleanup(func() { rootCmd.SetArgs(nil) })

	err := rootCmd.Execute()
	return out.String(), err
}

func seedDatabase(t *testing.T) string {
	t.Helper()
	path := filepath.Join(t.TempDir(), "bookings.db")
	t.Setenv("BOOKING_TRACKER_DATABASE_PATH", path)
	t.Setenv("BOOKING_TRACKER_LLM_PROVIDER", "disabled")

	db, err := database.Open(path)
	require.NoError(t, err)
	defer db.Close()

	ctx := context.Background()
	userID, err := db.Users.EnsureUser(ctx, database.Identity{ExternalID: "sub-1", Email: "guest@example.com"})
	require.NoError(t, err)

	hotel := "Hotel Adlon"
	b := &database.BookingEmail{
		UserID:         userID,
		GmailMessageID: "msg-1",
		Subject:        "Your booking is confirmed",
		ReceivedAt:     time.Now(),
		BodyHTML:       "<p>Hotel Adlon</p>",
	}
	_, err = db.Bookings.StoreIfNew(ctx, b)
	require.NoError(t, err)
	require.NoError(t, db.Bookings.RecordResult(ctx, b.ID, database.BookingAnalysis{HotelName: &hotel}, time.Now()))
	return path
}

func TestCommandTree(t *testing.T) {
	paths := [][]string{
		{"check-mail"},
		{"analyze"},
		{"register-watchers"},
		{"run"},
		{"daemon"},
		{"bookings", "list"},
		{"bookings", "show"},
		{"config"},
		{"connect"},
	}
	for _, path := range paths {
		cmd, _, err := rootCmd.Find(path)
		require.NoError(t, err, strings.Join(path, " "))
		assert.Equal(t, path[len(path)-1], cmd.Name())
	}

	assert.NotNil(t, daemonCmd.Flags().Lookup("interval"))
	assert.NotNil(t, checkMailCmd.Flags().Lookup("user"))
	for _, name := range []string{"config", "env-file", "log-level", "format", "quiet", "no-color"} {
		assert.NotNil(t, rootCmd.PersistentFlags().Lookup(name), name)
	}
}

func TestBookingsList_JSON(t *testing.T) {
	seedDatabase(t)

	out, err := execute(t, "bookings", "list", "--user", "sub-1", "--format", "json")
	require.NoError(t, err)

	var bookings []database.BookingEmail
	require.NoError(t, json.Unmarshal([]byte(out), &bookings))
	require.Len(t, bookings, 1)
	assert.Equal(t, "msg-1", bookings[0].GmailMessageID)
	require.NotNil(t, bookings[0].HotelName)
	assert.Equal(t, "Hotel Adlon", *bookings[0].HotelName)
}

func TestBookingsList_UnknownUser(t *testing.T) {
	seedDatabase(t)

	_, err := execute(t, "bookings", "list", "--user", "nobody")
	require.Error(t, err)
	assert.Contains(t, err.Error(), "no user with external ID nobody")
}

func TestBookingsShow(t *testing.T) {
	seedDatabase(t)

	out, err := execute(t, "bookings", "show", "1", "--quiet")
	require.NoError(t, err)
	assert.Equal(t, "1\n", out)

	_, err = execute(t, "bookings", "show", "99")
	require.Error(t, err)
	assert.Contains(t, err.Error(), "booking 99 not found")

	_, err = execute(t, "bookings", "show", "abc")
	require.Error(t, err)
	assert.Contains(t, err.Error(), "invalid booking ID")
}

func TestConfigCommand_RedactsSecrets(t *testing.T) {
	seedDatabase(t)
	t.Setenv("BOOKING_TRACKER_LLM_PROVIDER", "gemini")
	t.Setenv("BOOKING_TRACKER_LLM_API_KEY", "gemini-secret-key")

	out, err := execute(t, "config")
	require.NoError(t, err)
	assert.NotContains(t, out, "gemini-secret-key")
	assert.Contains(t, out, `"provider": "gemini"`)
}

func TestLoadConfiguration_RejectsBadLogLevel(t *testing.T) {
	seedDatabase(t)

	_, err := execute(t, "config", "--log-level", "verbose")
	require.Error(t, err)
	assert.Contains(t, err.Error(), "invalid log level")
}

func TestSummarize(t *testing.T) {
	assert.NoError(t, summarize([]workers.BatchResult{{Name: "analyze", Attempted: 2, Succeeded: 2}}))

	err := summarize([]workers.BatchResult{
		{Name: "check-mail", Error: "failed to list connected accounts"},
		{Name: "analyze", Attempted: 3, Succeeded: 2, Errors: []workers.ItemError{{ID: 7, Error: "boom"}}},
	})
	require.Error(t, err)
	assert.Equal(t, []string{
		"check-mail: failed to list connected accounts",
		"analyze: 1 of 3 items failed",
	}, strings.Split(err.Error(), "\n"))
}

func TestConnect_RequiresOAuthClient(t *testing.T) {
	seedDatabase(t)
	t.Setenv("BOOKING_TRACKER_GMAIL_CLIENT_ID", "")
	t.Setenv("BOOKING_TRACKER_GMAIL_CLIENT_SECRET", "")
	t.Setenv("GOOGLE_CLIENT_ID", "")
	t.Setenv("GOOGLE_CLIENT_SECRET", "")

	_, err := execute(t, "connect", "--user", "sub-1")
	require.Error(t, err)
	assert.Contains(t, err.Error(), "gmail OAuth client is not configured")
}

func TestHandlePauseSignals(t *testing.T) {
	s := workers.NewScheduler(context.Background(), workers.SchedulerConfig{
		Interval:     time.Hour,
		InitialDelay: time.Hour,
	}, nil, slog.New(slog.NewTextHandler(io.Discard, nil)))

	ctx, cancel := context.WithCancel(context.Background())
	sigs := make(chan os.Signal)
	done := make(chan struct{})
	go func() {
		handlePauseSignals(ctx, sigs, s, slog.New(slog.NewTextHandler(io.Discard, nil)))
		close(done)
	}()

	sigs <- syscall.SIGUSR1
	sigs <- syscall.SIGUSR1
	assert.True(t, s.IsPaused())

	sigs <- syscall.SIGUSR2
	sigs <- syscall.SIGUSR2
	assert.False(t, s.IsPaused())

	cancel()
	select {
	case <-done:
	case <-time.After(time.Second):
		t.Fatal("Expected signal loop to return after cancellation")
	}
}
