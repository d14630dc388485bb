package cmd

import (
	"context"
	"log/slog"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/spf13/cobra"

	"booking-tracker/internal/workers"
)

var (
	daemonInterval     time.Duration
	daemonInitialDelay time.Duration
	daemonRunTimeout   time.Duration
)

var daemonCmd = &cobra.Command{
	Use:   "daemon",
	Short: "Run the pipeline on a fixed interval",
	Long: `Run every sweep repeatedly until interrupted. The interval defaults to
batch.interval from the configuration.

SIGUSR1 pauses scheduled runs and SIGUSR2 resumes them.`,
	Args: cobra.NoArgs,
	RunE: runDaemon,
}

func init() {
	daemonCmd.Flags().DurationVar(&daemonInterval, "interval", 0, "time between runs (default from batch.interval)")
	daemonCmd.Flags().DurationVar(&daemonInitialDelay, "initial-delay", 0, "delay before the first run")
	daemonCmd.Flags().DurationVar(&daemonRunTimeout, "run-timeout", 0, "limit for a single run (default is the interval)")

	rootCmd.AddCommand(daemonCmd)
}

func runDaemon(cmd *cobra.Command, args []string) error {
	ctx, stop := signalContext(cmd)
	defer stop()

	a, err := initializeApp(ctx)
	if err != nil {
		return err
	}
	defer a.Close()

	interval := daemonInterval
	if interval <= 0 {
		interval = a.Config.Batch.Interval
	}

	scheduler := workers.NewScheduler(ctx, workers.SchedulerConfig{
		Interval:     interval,
		InitialDelay: daemonInitialDelay,
		RunTimeout:   daemonRunTimeout,
	}, a.Sweeper, a.Logger)

	pauseSignals := make(chan os.Signal, 1)
	signal.Notify(pauseSignals, syscall.SIGUSR1, syscall.SIGUSR2)
	defer signal.Stop(pauseSignals)

	a.Logger.Info("Booking tracker daemon started", "version", Version, "interval", interval)
	scheduler.Start()

	handlePauseSignals(ctx, pauseSignals, scheduler, a.Logger)
	a.Logger.Info("Shutdown signal received")
	scheduler.Stop()

	m := scheduler.Metrics()
	a.Logger.Info("Booking tracker daemon stopped",
		"runs", m.TotalRuns.Load(),
		"failed_batches", m.FailedBatches.Load(),
		"item_errors", m.ItemErrors.Load())
	return nil
}

type pausable interface {
	Pause()
	Resume()
	IsPaused() bool
}

// handlePauseSignals toggles the scheduler on SIGUSR1/SIGUSR2 until ctx ends
func handlePauseSignals(ctx context.Context, sigs <-chan os.Signal, p pausable, logger *slog.Logger) {
	for {
		select {
		case <-ctx.Done():
			return
		case sig := <-sigs:
			switch sig {
			case syscall.SIGUSR1:
				p.Pause()
			case syscall.SIGUSR2:
				p.Resume()
			}
			logger.Info("Scheduler state changed", "signal", sig.String(), "paused", p.IsPaused())
		}
	}
}
