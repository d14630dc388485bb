package extraction

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"strings"
	"time"
)

// Completer sends a prompt to a language model and returns the generated text
type Completer interface {
	Complete(ctx context.Context, prompt string) (string, error)
	// Name is the provider name used in error messages
	Name() string
}

var (
	// ErrNoContent is returned when the model produced no text
	ErrNoContent = errors.New("empty completion")
	// ErrNotConfigured is returned by the no-op completer
	ErrNotConfigured = errors.New("LLM provider not configured")
	// ErrNoBody is recorded when a message has neither an HTML nor a plain body
	ErrNoBody = errors.New("No email content to analyze")
)

// APIError is a non-success response from a model provider
type APIError struct {
	Provider   string
	StatusCode int
	Body       string
}

func (e *APIError) Error() string {
	return fmt.Sprintf("%s API error: %d", e.Provider, e.StatusCode)
}

// Config holds language model settings
type Config struct {
	Provider    string        `json:"provider"` // "gemini", "openai", "ollama", "disabled"
	Model       string        `json:"model"`
	APIKey      string        `json:"api_key"`
	Endpoint    string        `json:"endpoint"`
	Temperature float64       `json:"temperature"`
	TopK        int           `json:"top_k"`
	TopP        float64       `json:"top_p"`
	MaxTokens   int           `json:"max_tokens"`
	Timeout     time.Duration `json:"timeout"`
}

// DefaultConfig returns low-temperature settings for deterministic extraction
func DefaultConfig() Config {
	return Config{
		Provider:    "gemini",
		Model:       "gemini-1.5-flash",
		Temperature: 0.1,
		TopK:        1,
		TopP:        1.0,
		MaxTokens:   2048,
		Timeout:     120 * time.Second,
	}
}

// requestContext bounds a provider call by timeout; zero leaves ctx as is
func requestContext(ctx context.Context, timeout time.Duration) (context.Context, context.CancelFunc) {
	if timeout <= 0 {
		return context.WithCancel(ctx)
	}
	return context.WithTimeout(ctx, timeout)
}

// NewCompleter creates the completer for the configured provider
func NewCompleter(ctx context.Context, cfg Config, logger *slog.Logger) (Completer, error) {
	if logger == nil {
		logger = slog.Default()
	}

	switch strings.ToLower(cfg.Provider) {
	case "gemini":
		return NewGeminiCompleter(ctx, cfg)
	case "openai":
		return NewOpenAICompleter(cfg), nil
	case "ollama":
		return NewOllamaCompleter(cfg), nil
	case "", "disabled":
		logger.Info("LLM extraction disabled")
		return NewNoOpCompleter(), nil
	default:
		return nil, fmt.Errorf("unknown LLM provider: %s", cfg.Provider)
	}
}

// NoOpCompleter is used when no provider is configured
type NoOpCompleter struct{}

// NewNoOpCompleter creates a no-op completer
func NewNoOpCompleter() *NoOpCompleter {
	return &NoOpCompleter{}
}

// Complete always fails with ErrNotConfigured
func (n *NoOpCompleter) Complete(ctx context.Context, prompt string) (string, error) {
	return "", ErrNotConfigured
}

func (n *NoOpCompleter) Name() string { return "disabled" }
