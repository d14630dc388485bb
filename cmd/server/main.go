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

package main

import (
	"context"
	"log/slog"
	"net/http"
	"os"
	"time"

	"booking-tracker/internal/app"
	"booking-tracker/internal/config"
	"booking-tracker/internal/server"
)

const (
	// Version information
	Version   = "1.0.0"
	BuildDate = "development"
)

func main() {
	cfg, err := config.Load(os.Getenv("BOOKING_TRACKER_CONFIG"), "")
	if err != nil {
		slog.Error("Failed to load configuration", "error", err)
		os.Exit(1)
	}

	logger := app.NewLogger(cfg.Logging.Level, os.Stdout)
	logger.Info("Starting booking tracker server", "version", Version, "build_date", BuildDate)

	if configJSON, err := cfg.ToJSON(); err == nil {
		logger.Debug("Configuration details", "config", configJSON)
	}

	ctx := context.Background()
	a, err := app.Build(ctx, cfg, logger)
	if err != nil {
		logger.Error("Failed to initialize", "error", err)
		os.Exit(1)
	}
	defer a.Close()

	srv := &http.Server{
		Addr:    cfg.Address(),
		Handler: server.NewRouter(a.RouterDeps()),

		// Analysis calls block on the LLM, so writes get the provider timeout plus headroom
		ReadTimeout:  15 * time.Second,
		WriteTimeout: cfg.LLM.Timeout + 30*time.Second,
		IdleTimeout:  60 * time.Second,
	}

	if err := server.Serve(ctx, srv, cfg.Server.ShutdownTimeout, logger); err != nil {
		logger.Error("Server error", "error", err)
		a.Close()
		os.Exit(1)
	}
}
