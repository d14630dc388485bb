package config

import (
	"encoding/json"
	"fmt"
	"net"
	"strconv"
	"strings"
	"time"

	"booking-tracker/internal/api"
	"booking-tracker/internal/email"
	"booking-tracker/internal/extraction"
	"booking-tracker/internal/workers"
)

// Config holds all application configuration
type Config struct {
	Server   ServerConfig   `json:"server"`
	Database DatabaseConfig `json:"database"`
	Logging  LoggingConfig  `json:"logging"`
	Gmail    GmailConfig    `json:"gmail"`
	LLM      LLMConfig      `json:"llm"`
	Watcher  WatcherConfig  `json:"watcher"`
	Batch    BatchConfig    `json:"batch"`
}

type ServerConfig struct {
	Host            string        `json:"host"`
	Port            string        `json:"port"`
	ShutdownTimeout time.Duration `json:"shutdown_timeout"`
	// APIKey, when set, is required as a bearer token on authenticated routes
	APIKey string `json:"api_key"`
}

type DatabaseConfig struct {
	Path string `json:"path"`
}

type LoggingConfig struct {
	Level string `json:"level"`
}

// GmailConfig covers the OAuth client and the mailbox scan
type GmailConfig struct {
	ClientID       string        `json:"client_id"`
	ClientSecret   string        `json:"client_secret"`
	RedirectURL    string        `json:"redirect_url"`
	AuthURL        string        `json:"auth_url"`
	TokenURL       string        `json:"token_url"`
	APIURL         string        `json:"api_url"`
	SenderDomain   string        `json:"sender_domain"`
	LookbackDays   int           `json:"lookback_days"`
	MaxResults     int64         `json:"max_results"`
	RequestTimeout time.Duration `json:"request_timeout"`
	CheckCooldown  time.Duration `json:"check_cooldown"`
}

type LLMConfig struct {
	Provider    string        `json:"provider"`
	Model       string        `json:"model"`
	APIKey      string        `json:"api_key"`
	Endpoint    string        `json:"endpoint"`
	Temperature float64       `json:"temperature"`
	TopK        int           `json:"top_k"`
	TopP        float64       `json:"top_p"`
	MaxTokens   int           `json:"max_tokens"`
	Timeout     time.Duration `json:"timeout"`
}

type WatcherConfig struct {
	URL           string        `json:"url"`
	Timeout       time.Duration `json:"timeout"`
	RetryCount    int           `json:"retry_count"`
	RetryDelay    time.Duration `json:"retry_delay"`
	BackoffFactor float64       `json:"backoff_factor"`
}

type BatchConfig struct {
	AnalysisLimit int           `json:"analysis_limit"`
	WatcherLimit  int           `json:"watcher_limit"`
	Interval      time.Duration `json:"interval"`
}

var validLogLevels = map[string]bool{"debug": true, "info": true, "warn": true, "error": true}

// Validate checks if the configuration is usable
func (c *Config) Validate() error {
	if c.Server.Port == "" {
		return fmt.Errorf("server port cannot be empty")
	}
	if port, err := strconv.Atoi(c.Server.Port); err != nil || port <= 0 || port > 65535 {
		return fmt.Errorf("invalid server port: %s", c.Server.Port)
	}
	if c.Server.ShutdownTimeout <= 0 {
		return fmt.Errorf("shutdown timeout must be positive")
	}

	if c.Database.Path == "" {
		return fmt.Errorf("database path cannot be empty")
	}

	if !validLogLevels[strings.ToLower(c.Logging.Level)] {
		return fmt.Errorf("invalid log level: %s", c.Logging.Level)
	}

	if c.Gmail.LookbackDays <= 0 {
		return fmt.Errorf("gmail lookback days must be positive")
	}
	if c.Gmail.MaxResults <= 0 {
		return fmt.Errorf("gmail max results must be positive")
	}
	if (c.Gmail.ClientID == "") != (c.Gmail.ClientSecret == "") {
		return fmt.Errorf("gmail client id and client secret must be set together")
	}

	switch strings.ToLower(c.LLM.Provider) {
	case "gemini", "openai":
		if c.LLM.APIKey == "" {
			return fmt.Errorf("llm provider %s requires an API key", c.LLM.Provider)
		}
	case "ollama":
		if c.LLM.Model == "" {
			return fmt.Errorf("llm provider ollama requires a model")
		}
	case "", "disabled":
	default:
		return fmt.Errorf("unknown llm provider: %s", c.LLM.Provider)
	}
	if c.LLM.Temperature < 0 || c.LLM.Temperature > 2 {
		return fmt.Errorf("llm temperature must be between 0 and 2")
	}

	if c.Watcher.URL != "" && !strings.HasPrefix(c.Watcher.URL, "http://") && !strings.HasPrefix(c.Watcher.URL, "https://") {
		return fmt.Errorf("invalid watcher URL: %s", c.Watcher.URL)
	}
	if c.Watcher.RetryCount < 0 {
		return fmt.Errorf("watcher retry count cannot be negative")
	}

	if c.Batch.AnalysisLimit <= 0 || c.Batch.WatcherLimit <= 0 {
		return fmt.Errorf("batch limits must be positive")
	}
	if c.Batch.Interval <= 0 {
		return fmt.Errorf("batch interval must be positive")
	}

	return nil
}

// Address returns the server listen address
func (c *Config) Address() string {
	return net.JoinHostPort(c.Server.Host, c.Server.Port)
}

// GmailConfigured reports whether the OAuth client is set up
func (c *Config) GmailConfigured() bool {
	return c.Gmail.ClientID != "" && c.Gmail.ClientSecret != ""
}

// WatcherConfigured reports whether watcher registration is possible
func (c *Config) WatcherConfigured() bool {
	return c.Watcher.URL != ""
}

// OAuthConfig returns the token manager settings
func (c *Config) OAuthConfig() email.OAuthConfig {
	return email.OAuthConfig{
		ClientID:     c.Gmail.ClientID,
		ClientSecret: c.Gmail.ClientSecret,
		RedirectURL:  c.Gmail.RedirectURL,
		AuthURL:      c.Gmail.AuthURL,
		TokenURL:     c.Gmail.TokenURL,
	}
}

// FetcherConfig returns the mailbox scan settings
func (c *Config) FetcherConfig() email.FetcherConfig {
	return email.FetcherConfig{
		APIURL:         c.Gmail.APIURL,
		SenderDomain:   c.Gmail.SenderDomain,
		LookbackDays:   c.Gmail.LookbackDays,
		MaxResults:     c.Gmail.MaxResults,
		RequestTimeout: c.Gmail.RequestTimeout,
	}
}

// ExtractionConfig returns the completion provider settings
func (c *Config) ExtractionConfig() extraction.Config {
	return extraction.Config{
		Provider:    strings.ToLower(c.LLM.Provider),
		Model:       c.LLM.Model,
		APIKey:      c.LLM.APIKey,
		Endpoint:    c.LLM.Endpoint,
		Temperature: c.LLM.Temperature,
		TopK:        c.LLM.TopK,
		TopP:        c.LLM.TopP,
		MaxTokens:   c.LLM.MaxTokens,
		Timeout:     c.LLM.Timeout,
	}
}

// WatcherClientConfig returns the watcher service client settings
func (c *Config) WatcherClientConfig() *api.ClientConfig {
	return &api.ClientConfig{
		BaseURL:       c.Watcher.URL,
		Timeout:       c.Watcher.Timeout,
		RetryCount:    c.Watcher.RetryCount,
		RetryDelay:    c.Watcher.RetryDelay,
		BackoffFactor: c.Watcher.BackoffFactor,
	}
}

// SweepConfig returns the batch limits
func (c *Config) SweepConfig() workers.SweepConfig {
	return workers.SweepConfig{
		AnalysisLimit: c.Batch.AnalysisLimit,
		WatcherLimit:  c.Batch.WatcherLimit,
	}
}

// ToJSON serializes the configuration with secrets redacted
func (c *Config) ToJSON() (string, error) {
	safe := *c
	safe.Server.APIKey = redact(safe.Server.APIKey)
	safe.Gmail.ClientSecret = redact(safe.Gmail.ClientSecret)
	safe.LLM.APIKey = redact(safe.LLM.APIKey)

	data, err := json.MarshalIndent(safe, "", "  ")
	if err != nil {
		return "", err
	}
	return string(data), nil
}

func redact(value string) string {
	if value == "" {
		return ""
	}
	if len(value) <= 8 {
		return "***"
	}
	return value[:4] + "***" + value[len(value)-4:]
}
