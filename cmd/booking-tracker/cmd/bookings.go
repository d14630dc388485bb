package cmd

import (
	"errors"
	"fmt"
	"strconv"

	"github.com/spf13/cobra"

	"booking-tracker/internal/database"
)

var bookingsUser string

var bookingsCmd = &cobra.Command{
	Use:   "bookings",
	Short: "Inspect stored booking emails",
}

var bookingsListCmd = &cobra.Command{
	Use:     "list",
	Aliases: []string{"ls"},
	Short:   "List a user's booking emails",
	Args:    cobra.NoArgs,
	RunE:    runBookingsList,
}

var bookingsShowCmd = &cobra.Command{
	Use:   "show <id>",
	Short: "Show one booking email with its analysis",
	Args:  cobra.ExactArgs(1),
	RunE:  runBookingsShow,
}

func init() {
	bookingsListCmd.Flags().StringVarP(&bookingsUser, "user", "u", "", "external ID of the account")
	bookingsListCmd.MarkFlagRequired("user")

	bookingsCmd.AddCommand(bookingsListCmd, bookingsShowCmd)
	rootCmd.AddCommand(bookingsCmd)
}

func runBookingsList(cmd *cobra.Command, args []string) error {
	ctx, stop := signalContext(cmd)
	defer stop()

	cfg, err := loadConfiguration()
	if err != nil {
		return err
	}
	db, err := database.Open(cfg.Database.Path)
	if err != nil {
		return fmt.Errorf("failed to open database: %w", err)
	}
	defer db.Close()

	user, err := db.Users.GetByExternalID(ctx, bookingsUser)
	if errors.Is(err, database.ErrNotFound) {
		return fmt.Errorf("no user with external ID %s", bookingsUser)
	}
	if err != nil {
		return err
	}

	bookings, err := db.Bookings.ListByUser(ctx, user.ID)
	if err != nil {
		return fmt.Errorf("failed to list bookings: %w", err)
	}
	return newFormatter(cmd).PrintBookings(bookings)
}

func runBookingsShow(cmd *cobra.Command, args []string) error {
	id, err := strconv.ParseInt(args[0], 10, 64)
	if err != nil || id <= 0 {
		return fmt.Errorf("invalid booking ID: %s", args[0])
	}

	ctx, stop := signalContext(cmd)
	defer stop()

	cfg, err := loadConfiguration()
	if err != nil {
		return err
	}
	db, err := database.Open(cfg.Database.Path)
	if err != nil {
		return fmt.Errorf("failed to open database: %w", err)
	}
	defer db.Close()

	booking, err := db.Bookings.GetByID(ctx, id)
	if errors.Is(err, database.ErrNotFound) {
		return fmt.Errorf("booking %d not found", id)
	}
	if err != nil {
		return err
	}
	return newFormatter(cmd).PrintBooking(booking)
}
