package config

import (
	"os"
	"path/filepath"
	"strings"
	"testing"
	"time"

	"github.com/spf13/viper"
)

// clearEnv blanks every variable the loader reads. Viper ignores empty values.
func clearEnv(t *testing.T) {
	t.Helper()
	for _, key := range configKeys {
		t.Setenv(EnvPrefix+"_"+strings.ToUpper(strings.ReplaceAll(key, ".", "_")), "")
		for _, name := range conventionalEnv[key] {
			t.Setenv(name, "")
		}
	}
}

func TestLoad_Defaults(t *testing.T) {
	clearEnv(t)

	config, err := LoadWithViper(viper.New())
	if err != nil {
		t.Fatalf("Expected no error, got: %v", err)
	}

	if config.Server.Port != "8080" {
		t.Errorf("Expected port 8080, got %s", config.Server.Port)
	}
	if config.Server.ShutdownTimeout != 30*time.Second {
		t.Errorf("Expected shutdown timeout 30s, got %v", config.Server.ShutdownTimeout)
	}
	if config.Database.Path != "./bookings.db" {
		t.Errorf("Expected database path ./bookings.db, got %s", config.Database.Path)
	}
	if config.Gmail.SenderDomain != "booking.com" {
		t.Errorf("Expected sender domain booking.com, got %s", config.Gmail.SenderDomain)
	}
	if config.Gmail.LookbackDays != 365 || config.Gmail.MaxResults != 100 {
		t.Errorf("Unexpected gmail scan defaults: %d days, %d results", config.Gmail.LookbackDays, config.Gmail.MaxResults)
	}
	if config.Gmail.CheckCooldown != 5*time.Minute {
		t.Errorf("Expected check cooldown 5m, got %v", config.Gmail.CheckCooldown)
	}
	if config.LLM.Provider != "disabled" {
		t.Errorf("Expected provider disabled without a key, got %s", config.LLM.Provider)
	}
	if config.LLM.Temperature != 0.1 || config.LLM.TopK != 1 || config.LLM.MaxTokens != 2048 {
		t.Errorf("Unexpected sampling defaults: %+v", config.LLM)
	}
	if config.Watcher.RetryCount != 2 || config.Watcher.RetryDelay != time.Second {
		t.Errorf("Unexpected watcher retry defaults: %+v", config.Watcher)
	}
	if config.Batch.AnalysisLimit != 50 || config.Batch.WatcherLimit != 50 || config.Batch.Interval != 24*time.Hour {
		t.Errorf("Unexpected batch defaults: %+v", config.Batch)
	}
	if config.GmailConfigured() || config.WatcherConfigured() {
		t.Error("Expected gmail and watcher to be unconfigured by default")
	}
}

func TestLoad_PrefixedEnvironment(t *testing.T) {
	clearEnv(t)
	t.Setenv("BOOKING_TRACKER_SERVER_PORT", "9090")
	t.Setenv("BOOKING_TRACKER_DATABASE_PATH", "/tmp/test.db")
	t.Setenv("BOOKING_TRACKER_LOGGING_LEVEL", "DEBUG")
	t.Setenv("BOOKING_TRACKER_LLM_PROVIDER", "openai")
	t.Setenv("BOOKING_TRACKER_LLM_API_KEY", "sk-test")
	t.Setenv("BOOKING_TRACKER_WATCHER_URL", "https://watchers.example.com")
	t.Setenv("BOOKING_TRACKER_BATCH_INTERVAL", "6h")

	config, err := LoadWithViper(viper.New())
	if err != nil {
		t.Fatalf("Expected no error, got: %v", err)
	}

	if config.Server.Port != "9090" {
		t.Errorf("Expected port 9090, got %s", config.Server.Port)
	}
	if config.Database.Path != "/tmp/test.db" {
		t.Errorf("Expected database path /tmp/test.db, got %s", config.Database.Path)
	}
	if config.Logging.Level != "debug" {
		t.Errorf("Expected log level debug, got %s", config.Logging.Level)
	}
	if config.LLM.Provider != "openai" || config.LLM.APIKey != "sk-test" {
		t.Errorf("Unexpected llm config: %+v", config.LLM)
	}
	if !config.WatcherConfigured() {
		t.Error("Expected watcher to be configured")
	}
	if config.Batch.Interval != 6*time.Hour {
		t.Errorf("Expected batch interval 6h, got %v", config.Batch.Interval)
	}
}

func TestLoad_ConventionalEnvironment(t *testing.T) {
	clearEnv(t)
	t.Setenv("GOOGLE_CLIENT_ID", "client-id")
	t.Setenv("GOOGLE_CLIENT_SECRET", "client-secret")
	t.Setenv("GEMINI_API_KEY", "gemini-key")
	t.Setenv("PORT", "3000")

	config, err := LoadWithViper(viper.New())
	if err != nil {
		t.Fatalf("Expected no error, got: %v", err)
	}

	if !config.GmailConfigured() {
		t.Error("Expected gmail to be configured")
	}
	if config.LLM.Provider != "gemini" {
		t.Errorf("Expected provider gemini when a key is present, got %s", config.LLM.Provider)
	}
	if config.Server.Port != "3000" {
		t.Errorf("Expected port 3000, got %s", config.Server.Port)
	}

	// Prefixed names win
	t.Setenv("BOOKING_TRACKER_SERVER_PORT", "4000")
	config, err = LoadWithViper(viper.New())
	if err != nil {
		t.Fatalf("Expected no error, got: %v", err)
	}
	if config.Server.Port != "4000" {
		t.Errorf("Expected prefixed port 4000, got %s", config.Server.Port)
	}
}

func TestLoad_ConfigFile(t *testing.T) {
	clearEnv(t)

	dir := t.TempDir()
	path := filepath.Join(dir, "config.yaml")
	content := `
server:
  port: "7070"
gmail:
  lookback_days: 30
llm:
  provider: ollama
  model: llama3.2
  endpoint: http://localhost:11434
watcher:
  url: http://localhost:9000
  retry_count: 5
`
	if err := os.WriteFile(path, []byte(content), 0o600); err != nil {
		t.Fatalf("Failed to write config file: %v", err)
	}

	v := viper.New()
	v.SetConfigFile(path)
	config, err := LoadWithViper(v)
	if err != nil {
		t.Fatalf("Expected no error, got: %v", err)
	}

	if config.Server.Port != "7070" {
		t.Errorf("Expected port 7070, got %s", config.Server.Port)
	}
	if config.Gmail.LookbackDays != 30 {
		t.Errorf("Expected lookback 30, got %d", config.Gmail.LookbackDays)
	}
	if config.LLM.Provider != "ollama" || config.LLM.Model != "llama3.2" {
		t.Errorf("Unexpected llm config: %+v", config.LLM)
	}
	if config.Watcher.RetryCount != 5 {
		t.Errorf("Expected retry count 5, got %d", config.Watcher.RetryCount)
	}

	// Environment overrides the file
	t.Setenv("BOOKING_TRACKER_SERVER_PORT", "7171")
	v = viper.New()
	v.SetConfigFile(path)
	config, err = LoadWithViper(v)
	if err != nil {
		t.Fatalf("Expected no error, got: %v", err)
	}
	if config.Server.Port != "7171" {
		t.Errorf("Expected env port 7171, got %s", config.Server.Port)
	}
}

func TestLoad_MissingConfigFile(t *testing.T) {
	clearEnv(t)

	v := viper.New()
	v.SetConfigFile(filepath.Join(t.TempDir(), "missing.yaml"))
	if _, err := LoadWithViper(v); err == nil {
		t.Error("Expected error for an explicitly named missing config file")
	}
}

func TestLoadEnvFile(t *testing.T) {
	clearEnv(t)

	dir := t.TempDir()
	path := filepath.Join(dir, "test.env")
	if err := os.WriteFile(path, []byte("BOOKING_TRACKER_BATCH_ANALYSIS_LIMIT=25\n"), 0o600); err != nil {
		t.Fatalf("Failed to write env file: %v", err)
	}
	// godotenv never overrides a variable that exists, even when empty
	os.Unsetenv("BOOKING_TRACKER_BATCH_ANALYSIS_LIMIT")

	config, err := Load("", path)
	if err != nil {
		t.Fatalf("Expected no error, got: %v", err)
	}
	if config.Batch.AnalysisLimit != 25 {
		t.Errorf("Expected analysis limit 25 from env file, got %d", config.Batch.AnalysisLimit)
	}

	if err := LoadEnvFile(filepath.Join(dir, "absent.env")); err == nil {
		t.Error("Expected error for an explicitly named missing env file")
	}
}

func TestValidate(t *testing.T) {
	clearEnv(t)
	valid := func() *Config {
		config, err := LoadWithViper(viper.New())
		if err != nil {
			t.Fatalf("Failed to load defaults: %v", err)
		}
		return config
	}

	testCases := []struct {
		name     string
		mutate   func(c *Config)
		errorMsg string
	}{
		{"empty port", func(c *Config) { c.Server.Port = "" }, "server port cannot be empty"},
		{"invalid port", func(c *Config) { c.Server.Port = "abc" }, "invalid server port"},
		{"port out of range", func(c *Config) { c.Server.Port = "70000" }, "invalid server port"},
		{"empty db path", func(c *Config) { c.Database.Path = "" }, "database path cannot be empty"},
		{"bad log level", func(c *Config) { c.Logging.Level = "verbose" }, "invalid log level"},
		{"half oauth client", func(c *Config) { c.Gmail.ClientID = "id" }, "must be set together"},
		{"gemini without key", func(c *Config) { c.LLM.Provider = "gemini" }, "requires an API key"},
		{"ollama without model", func(c *Config) { c.LLM.Provider = "ollama"; c.LLM.Model = "" }, "requires a model"},
		{"unknown provider", func(c *Config) { c.LLM.Provider = "anthropic" }, "unknown llm provider"},
		{"bad watcher url", func(c *Config) { c.Watcher.URL = "watchers.local" }, "invalid watcher URL"},
		{"negative retries", func(c *Config) { c.Watcher.RetryCount = -1 }, "retry count cannot be negative"},
		{"zero batch limit", func(c *Config) { c.Batch.WatcherLimit = 0 }, "batch limits must be positive"},
	}

	for _, tc := range testCases {
		t.Run(tc.name, func(t *testing.T) {
			config := valid()
			tc.mutate(config)

			err := config.Validate()
			if err == nil {
				t.Fatal("Expected validation error")
			}
			if !strings.Contains(err.Error(), tc.errorMsg) {
				t.Errorf("Expected error containing %q, got %q", tc.errorMsg, err.Error())
			}
		})
	}
}

func TestConversions(t *testing.T) {
	clearEnv(t)
	t.Setenv("BOOKING_TRACKER_SERVER_HOST", "0.0.0.0")
	t.Setenv("BOOKING_TRACKER_LLM_PROVIDER", "Gemini")
	t.Setenv("BOOKING_TRACKER_LLM_API_KEY", "gemini-secret-key")
	t.Setenv("BOOKING_TRACKER_WATCHER_URL", "https://watchers.example.com")

	config, err := LoadWithViper(viper.New())
	if err != nil {
		t.Fatalf("Expected no error, got: %v", err)
	}

	if config.Address() != "0.0.0.0:8080" {
		t.Errorf("Expected address 0.0.0.0:8080, got %s", config.Address())
	}
	if ec := config.ExtractionConfig(); ec.Provider != "gemini" || ec.Timeout != 120*time.Second {
		t.Errorf("Unexpected extraction config: %+v", ec)
	}
	if wc := config.WatcherClientConfig(); wc.BaseURL != "https://watchers.example.com" || wc.RetryCount != 2 {
		t.Errorf("Unexpected watcher client config: %+v", wc)
	}
	if fc := config.FetcherConfig(); fc.SenderDomain != "booking.com" || fc.APIURL != "https://gmail.googleapis.com/" {
		t.Errorf("Unexpected fetcher config: %+v", fc)
	}

	out, err := config.ToJSON()
	if err != nil {
		t.Fatalf("ToJSON failed: %v", err)
	}
	if strings.Contains(out, "gemini-secret-key") {
		t.Error("Expected API key to be redacted")
	}
	if !strings.Contains(out, "gemi***-key") {
		t.Errorf("Expected redacted key in output, got %s", out)
	}
}
