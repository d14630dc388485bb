package cmd

import (
	"context"
	"errors"
	"fmt"

	"github.com/spf13/cobra"

	"booking-tracker/internal/cli"
	"booking-tracker/internal/workers"
)

var checkMailUser string

var checkMailCmd = &cobra.Command{
	Use:   "check-mail",
	Short: "Fetch new booking emails from connected accounts",
	Long: `Scan every connected Gmail account for new booking emails and store them.
With --user only that account is scanned. The interactive cooldown does not
apply here.`,
	Args: cobra.NoArgs,
	RunE: runCheckMail,
}

var analyzeCmd = &cobra.Command{
	Use:   "analyze",
	Short: "Extract booking details from pending emails",
	Args:  cobra.NoArgs,
	RunE: func(cmd *cobra.Command, args []string) error {
		return runSweeps(cmd, "Analyzing pending emails", func(ctx context.Context, s *workers.Sweeper) []workers.BatchResult {
			return []workers.BatchResult{s.AnalyzePending(ctx)}
		})
	},
}

var registerWatchersCmd = &cobra.Command{
	Use:   "register-watchers",
	Short: "Register price watchers for eligible bookings",
	Args:  cobra.NoArgs,
	RunE: func(cmd *cobra.Command, args []string) error {
		return runSweeps(cmd, "Registering watchers", func(ctx context.Context, s *workers.Sweeper) []workers.BatchResult {
			return []workers.BatchResult{s.RegisterEligible(ctx)}
		})
	},
}

var runCmd = &cobra.Command{
	Use:   "run",
	Short: "Run check-mail, analyze and register-watchers once",
	Args:  cobra.NoArgs,
	RunE: func(cmd *cobra.Command, args []string) error {
		return runSweeps(cmd, "Running pipeline", func(ctx context.Context, s *workers.Sweeper) []workers.BatchResult {
			return s.RunAll(ctx)
		})
	},
}

func init() {
	checkMailCmd.Flags().StringVarP(&checkMailUser, "user", "u", "", "external ID of a single account to scan")

	rootCmd.AddCommand(checkMailCmd, analyzeCmd, registerWatchersCmd, runCmd)
}

func runCheckMail(cmd *cobra.Command, args []string) error {
	if checkMailUser == "" {
		return runSweeps(cmd, "Checking mail", func(ctx context.Context, s *workers.Sweeper) []workers.BatchResult {
			return []workers.BatchResult{s.CheckAllAccounts(ctx)}
		})
	}

	ctx, stop := signalContext(cmd)
	defer stop()

	a, err := initializeApp(ctx)
	if err != nil {
		return err
	}
	defer a.Close()

	user, err := a.DB.Users.GetByExternalID(ctx, checkMailUser)
	if err != nil {
		return fmt.Errorf("failed to find user %s: %w", checkMailUser, err)
	}

	spinner := cli.NewProgressSpinner("Checking mail for "+checkMailUser, noColor || quiet)
	spinner.Start()
	result, err := a.Sweeper.CheckAccount(ctx, user)
	spinner.Stop()
	if err != nil {
		return err
	}
	return newFormatter(cmd).PrintFetchResult(result)
}

// runSweeps wires the pipeline, runs the given sweeps and reports them. Any
// batch failure or item error makes the command fail.
func runSweeps(cmd *cobra.Command, message string, sweep func(ctx context.Context, s *workers.Sweeper) []workers.BatchResult) error {
	ctx, stop := signalContext(cmd)
	defer stop()

	a, err := initializeApp(ctx)
	if err != nil {
		return err
	}
	defer a.Close()

	spinner := cli.NewProgressSpinner(message, noColor || quiet)
	spinner.Start()
	results := sweep(ctx, a.Sweeper)
	spinner.Stop()

	if err := newFormatter(cmd).PrintBatchResults(results); err != nil {
		return err
	}
	return summarize(results)
}

func summarize(results []workers.BatchResult) error {
	var errs []error
	for _, r := range results {
		if r.Error != "" {
			errs = append(errs, fmt.Errorf("%s: %s", r.Name, r.Error))
		} else if len(r.Errors) > 0 {
			errs = append(errs, fmt.Errorf("%s: %d of %d items failed", r.Name, len(r.Errors), r.Attempted))
		}
	}
	return errors.Join(errs...)
}
