// Copyright 2024 Package Tracking System
//
// Licensed under the Apache License, Version 2.0 (the "License");
// you may not use this file except in compliance with the License.
// You may obtain a copy of the License at
//
//     http://www.apache.org/licenses/LICENSE-2.0
//
// Unless required by applicable law or agreed to in writing, software
// distributed under the License is distributed on an "AS IS" BASIS,
// WITHOUT WARRANTIES OR CONDITIONS OF ANY KIND, either express or implied.
// See the License for the specific language governing permissions and
// limitations under the License.

package cmd

import (
	"context"
	"fmt"
	"os"
	"os/signal"
	"syscall"

	"github.com/charmbracelet/fang"
	"github.com/spf13/cobra"

	"booking-tracker/internal/app"
	"booking-tracker/internal/cli"
	"booking-tracker/internal/config"
)

const (
	// Version information
	Version   = "1.0.0"
	BuildDate = "development"
)

var (
	configFile string
	envFile    string
	logLevel   string
	format     string
	quiet      bool
	noColor    bool
)

// rootCmd represents the base command when called without any subcommands
var rootCmd = &cobra.Command{
	Use:   "booking-tracker",
	Short: "Hotel booking email pipeline",
	Long: `Booking Tracker scans connected Gmail accounts for hotel booking
confirmations, extracts reservation details with an LLM and registers
price watchers for cancelable bookings.

CONFIGURATION:
    Settings come from an optional config file (config.yaml in ., ./config
    or $HOME/.booking-tracker), a .env file and the environment. Every key
    maps to a BOOKING_TRACKER_ variable, for example:

        BOOKING_TRACKER_DATABASE_PATH   - SQLite database (default: ./bookings.db)
        GOOGLE_CLIENT_ID                - OAuth client ID
        GOOGLE_CLIENT_SECRET            - OAuth client secret
        GEMINI_API_KEY                  - Enables Gemini extraction
        BOOKING_TRACKER_WATCHER_URL     - Price watcher service base URL

EXAMPLES:
    # Run every sweep once
    booking-tracker run

    # Scan one account
    booking-tracker check-mail --user 108234
    
    # Keep sweeping every six hours
    booking-tracker daemon --interval 6h`,
	Version:       Version,
	SilenceUsage:  true,
	SilenceErrors: true,
}

// Execute adds all child commands to the root command and sets flags appropriately.
// This is called by main.main(). It only needs to happen once to the rootCmd.
func Execute() {
	if err := fang.Execute(context.Background(), rootCmd); err != nil {
		os.Exit(1)
	}
}

func init() {
	rootCmd.PersistentFlags().StringVar(&configFile, "config", "", "config file (default is ./config.yaml)")
	rootCmd.PersistentFlags().StringVar(&envFile, "env-file", "", "env file (default is .env in current directory)")
	rootCmd.PersistentFlags().StringVar(&logLevel, "log-level", "", "log level override (debug, info, warn, error)")
	rootCmd.PersistentFlags().StringVarP(&format, "format", "f", "table", "Output format (table, json)")
	rootCmd.PersistentFlags().BoolVarP(&quiet, "quiet", "q", false, "Quiet mode (minimal output)")
	rootCmd.PersistentFlags().BoolVar(&noColor, "no-color", false, "Disable color output")
}

// loadConfiguration loads settings and applies flag overrides
func loadConfiguration() (*config.Config, error) {
	cfg, err := config.Load(configFile, envFile)
	if err != nil {
		return nil, fmt.Errorf("failed to load configuration: %w", err)
	}
	if logLevel != "" {
		cfg.Logging.Level = logLevel
		if err := cfg.Validate(); err != nil {
			return nil, fmt.Errorf("invalid configuration: %w", err)
		}
	}
	return cfg, nil
}

// initializeApp loads configuration and wires the pipeline. Logs go to
// stderr so command output stays parseable.
func initializeApp(ctx context.Context) (*app.App, error) {
	cfg, err := loadConfiguration()
	if err != nil {
		return nil, err
	}
	return app.Build(ctx, cfg, app.NewLogger(cfg.Logging.Level, os.Stderr))
}

func newFormatter(cmd *cobra.Command) *cli.OutputFormatter {
	if cmd.OutOrStdout() == os.Stdout {
		return cli.NewOutputFormatter(format, quiet, noColor)
	}
	return cli.NewWriterFormatter(format, quiet, cmd.OutOrStdout(), cmd.ErrOrStderr())
}

// signalContext cancels on SIGINT or SIGTERM
func signalContext(cmd *cobra.Command) (context.Context, context.CancelFunc) {
	parent := cmd.Context()
	if parent == nil {
		parent = context.Background()
	}
	return signal.NotifyContext(parent, os.Interrupt, syscall.SIGTERM)
}
