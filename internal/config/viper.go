package config

import (
	"errors"
	"fmt"
	"io/fs"
	"strings"
	"time"

	"github.com/joho/godotenv"
	"github.com/spf13/viper"
)

// EnvPrefix is prepended to every configuration key's environment variable
const EnvPrefix = "BOOKING_TRACKER"

// Load loads configuration from an optional config file, an optional .env
// file and the environment. Empty arguments fall back to the default search
// paths and ./.env.
func Load(configFile, envFile string) (*Config, error) {
	if err := LoadEnvFile(envFile); err != nil {
		return nil, err
	}

	v := viper.New()
	if configFile != "" {
		v.SetConfigFile(configFile)
	}
	return LoadWithViper(v)
}

// LoadEnvFile loads variables from a .env file without overriding variables
// that are already set. A missing default .env is not an error.
func LoadEnvFile(envFile string) error {
	if envFile == "" {
		if err := godotenv.Load(".env"); err != nil && !errors.Is(err, fs.ErrNotExist) {
			return fmt.Errorf("failed to load .env file: %w", err)
		}
		return nil
	}
	if err := godotenv.Load(envFile); err != nil {
		return fmt.Errorf("failed to load env file %s: %w", envFile, err)
	}
	return nil
}

// LoadWithViper loads configuration using the given Viper instance
func LoadWithViper(v *viper.Viper) (*Config, error) {
	setDefaults(v)
	setupEnvBinding(v)

	if err := loadConfigFile(v); err != nil {
		return nil, fmt.Errorf("failed to load config file: %w", err)
	}

	config := &Config{}
	if err := unmarshalConfig(v, config); err != nil {
		return nil, fmt.Errorf("failed to unmarshal config: %w", err)
	}

	if err := config.Validate(); err != nil {
		return nil, fmt.Errorf("invalid configuration: %w", err)
	}

	return config, nil
}

func setDefaults(v *viper.Viper) {
	v.SetDefault("server.host", "localhost")
	v.SetDefault("server.port", "8080")
	v.SetDefault("server.shutdown_timeout", "30s")
	v.SetDefault("server.api_key", "")

	v.SetDefault("database.path", "./bookings.db")

	v.SetDefault("logging.level", "info")

	v.SetDefault("gmail.redirect_url", "http://localhost:8080/api/auth/gmail/callback")
	v.SetDefault("gmail.auth_url", "https://accounts.google.com/o/oauth2/auth")
	v.SetDefault("gmail.token_url", "https://oauth2.googleapis.com/token")
	v.SetDefault("gmail.api_url", "https://gmail.googleapis.com/")
	v.SetDefault("gmail.sender_domain", "booking.com")
	v.SetDefault("gmail.lookback_days", 365)
	v.SetDefault("gmail.max_results", 100)
	v.SetDefault("gmail.request_timeout", "30s")
	v.SetDefault("gmail.check_cooldown", "5m")

	// llm.provider has no default; it is derived from the presence of a key
	v.SetDefault("llm.model", "gemini-1.5-flash")
	v.SetDefault("llm.temperature", 0.1)
	v.SetDefault("llm.top_k", 1)
	v.SetDefault("llm.top_p", 1.0)
	v.SetDefault("llm.max_tokens", 2048)
	v.SetDefault("llm.timeout", "120s")

	v.SetDefault("watcher.url", "")
	v.SetDefault("watcher.timeout", "30s")
	v.SetDefault("watcher.retry_count", 2)
	v.SetDefault("watcher.retry_delay", "1s")
	v.SetDefault("watcher.backoff_factor", 2.0)

	v.SetDefault("batch.analysis_limit", 50)
	v.SetDefault("batch.watcher_limit", 50)
	v.SetDefault("batch.interval", "24h")
}

// conventionalEnv lists unprefixed variable names honored after the prefixed ones
var conventionalEnv = map[string][]string{
	"server.port":         {"PORT"},
	"database.path":       {"DATABASE_PATH"},
	"logging.level":       {"LOG_LEVEL"},
	"gmail.client_id":     {"GOOGLE_CLIENT_ID"},
	"gmail.client_secret": {"GOOGLE_CLIENT_SECRET"},
	"gmail.redirect_url":  {"GOOGLE_REDIRECT_URI"},
	"llm.provider":        {"LLM_PROVIDER"},
	"llm.api_key":         {"GEMINI_API_KEY", "OPENAI_API_KEY"},
	"llm.endpoint":        {"OLLAMA_HOST"},
	"watcher.url":         {"WATCHER_URL"},
}

var configKeys = []string{
	"server.host", "server.port", "server.shutdown_timeout", "server.api_key",
	"database.path",
	"logging.level",
	"gmail.client_id", "gmail.client_secret", "gmail.redirect_url", "gmail.auth_url", "gmail.token_url",
	"gmail.api_url", "gmail.sender_domain", "gmail.lookback_days", "gmail.max_results",
	"gmail.request_timeout", "gmail.check_cooldown",
	"llm.provider", "llm.model", "llm.api_key", "llm.endpoint", "llm.temperature", "llm.top_k",
	"llm.top_p", "llm.max_tokens", "llm.timeout",
	"watcher.url", "watcher.timeout", "watcher.retry_count", "watcher.retry_delay", "watcher.backoff_factor",
	"batch.analysis_limit", "batch.watcher_limit", "batch.interval",
}

func setupEnvBinding(v *viper.Viper) {
	v.SetEnvPrefix(EnvPrefix)
	v.SetEnvKeyReplacer(strings.NewReplacer(".", "_"))
	v.AutomaticEnv()

	// Prefixed names take precedence over conventional ones
	for _, key := range configKeys {
		names := []string{EnvPrefix + "_" + strings.ToUpper(strings.ReplaceAll(key, ".", "_"))}
		names = append(names, conventionalEnv[key]...)
		v.BindEnv(append([]string{key}, names...)...)
	}
}

func loadConfigFile(v *viper.Viper) error {
	if v.ConfigFileUsed() == "" {
		v.AddConfigPath(".")
		v.AddConfigPath("./config")
		v.AddConfigPath("$HOME/.booking-tracker")
		v.SetConfigName("config")
	}

	if err := v.ReadInConfig(); err != nil {
		// Config file is optional
		var notFound viper.ConfigFileNotFoundError
		if !errors.As(err, &notFound) {
			return err
		}
	}
	return nil
}

func unmarshalConfig(v *viper.Viper, config *Config) error {
	var err error
	durations := []struct {
		key    string
		target *time.Duration
	}{
		{"server.shutdown_timeout", &config.Server.ShutdownTimeout},
		{"gmail.request_timeout", &config.Gmail.RequestTimeout},
		{"gmail.check_cooldown", &config.Gmail.CheckCooldown},
		{"llm.timeout", &config.LLM.Timeout},
		{"watcher.timeout", &config.Watcher.Timeout},
		{"watcher.retry_delay", &config.Watcher.RetryDelay},
		{"batch.interval", &config.Batch.Interval},
	}
	for _, d := range durations {
		*d.target, err = time.ParseDuration(v.GetString(d.key))
		if err != nil {
			return fmt.Errorf("invalid %s: %w", d.key, err)
		}
	}

	config.Server.Host = v.GetString("server.host")
	config.Server.Port = v.GetString("server.port")
	config.Server.APIKey = v.GetString("server.api_key")

	config.Database.Path = v.GetString("database.path")

	config.Logging.Level = strings.ToLower(v.GetString("logging.level"))

	config.Gmail.ClientID = v.GetString("gmail.client_id")
	config.Gmail.ClientSecret = v.GetString("gmail.client_secret")
	config.Gmail.RedirectURL = v.GetString("gmail.redirect_url")
	config.Gmail.AuthURL = v.GetString("gmail.auth_url")
	config.Gmail.TokenURL = v.GetString("gmail.token_url")
	config.Gmail.APIURL = v.GetString("gmail.api_url")
	config.Gmail.SenderDomain = v.GetString("gmail.sender_domain")
	config.Gmail.LookbackDays = v.GetInt("gmail.lookback_days")
	config.Gmail.MaxResults = v.GetInt64("gmail.max_results")

	config.LLM.Provider = strings.ToLower(v.GetString("llm.provider"))
	config.LLM.Model = v.GetString("llm.model")
	config.LLM.APIKey = v.GetString("llm.api_key")
	config.LLM.Endpoint = v.GetString("llm.endpoint")
	config.LLM.Temperature = v.GetFloat64("llm.temperature")
	config.LLM.TopK = v.GetInt("llm.top_k")
	config.LLM.TopP = v.GetFloat64("llm.top_p")
	config.LLM.MaxTokens = v.GetInt("llm.max_tokens")
	if config.LLM.Provider == "" {
		config.LLM.Provider = "disabled"
		if config.LLM.APIKey != "" {
			config.LLM.Provider = "gemini"
		}
	}

	config.Watcher.URL = v.GetString("watcher.url")
	config.Watcher.RetryCount = v.GetInt("watcher.retry_count")
	config.Watcher.BackoffFactor = v.GetFloat64("watcher.backoff_factor")

	config.Batch.AnalysisLimit = v.GetInt("batch.analysis_limit")
	config.Batch.WatcherLimit = v.GetInt("batch.watcher_limit")

	return nil
}
