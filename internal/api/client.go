package api

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"net"
	"net/http"
	"strings"
	"time"
)

// IdempotencyKeyHeader names the header carrying WatcherRequest.IdempotencyKey
const IdempotencyKeyHeader = "Idempotency-Key"

// Client handles HTTP requests to the external watcher service
type Client struct {
	baseURL    string
	httpClient *http.Client
	config     *ClientConfig
	logger     *slog.Logger
}

// ClientConfig configures the API client behavior
type ClientConfig struct {
	BaseURL       string
	Timeout       time.Duration
	RetryCount    int
	RetryDelay    time.Duration
	UserAgent     string
	BackoffFactor float64
}

// WatcherRequest is the registration payload for a price and cancellation watcher
type WatcherRequest struct {
	Email                  string  `json:"email,omitempty"`
	HotelName              string  `json:"hotelName"`
	CheckInDate            string  `json:"checkInDate"`
	CheckOutDate           string  `json:"checkOutDate"`
	UserPriceAmount        float64 `json:"userPriceAmount"`
	UserPriceCurrencyCode  string  `json:"userPriceCurrencyCode"`
	CancellationExpiryDate string  `json:"cancellationExpiryDate"`
	ModifyBookingLink      string  `json:"modifyBookingLink,omitempty"`
	PinNumber              string  `json:"pinNumber,omitempty"`

	// IdempotencyKey is sent as a header so the service can collapse repeats
	IdempotencyKey string `json:"-"`
}

// WatcherResponse is the watcher service reply
type WatcherResponse struct {
	Success   bool   `json:"success"`
	WatcherID string `json:"watcherId,omitempty"`
}

// RegistrationError is a rejected watcher registration. Body carries the
// service's response text for diagnosis.
type RegistrationError struct {
	StatusCode int
	Body       string
}

func (e *RegistrationError) Error() string {
	return strings.TrimSpace(fmt.Sprintf("Watcher create failed (%d) %s", e.StatusCode, e.Body))
}

// NewClient creates a new API client
func NewClient(config *ClientConfig, logger *slog.Logger) (*Client, error) {
	if config == nil {
		return nil, fmt.Errorf("config cannot be nil")
	}
	if config.BaseURL == "" {
		return nil, fmt.Errorf("base URL is required")
	}
	if !strings.HasPrefix(config.BaseURL, "http://") && !strings.HasPrefix(config.BaseURL, "https://") {
		return nil, fmt.Errorf("invalid base URL: %s", config.BaseURL)
	}
	if config.RetryCount < 0 {
		return nil, fmt.Errorf("retry count cannot be negative")
	}
	if logger == nil {
		logger = slog.Default()
	}

	// Set defaults for missing fields
	if config.Timeout == 0 {
		config.Timeout = 30 * time.Second
	}
	if config.UserAgent == "" {
		config.UserAgent = "booking-tracker/1.0"
	}
	if config.RetryDelay == 0 {
		config.RetryDelay = 1 * time.Second
	}
	if config.BackoffFactor == 0 {
		config.BackoffFactor = 2.0
	}

	return &Client{
		baseURL:    strings.TrimRight(config.BaseURL, "/"),
		httpClient: &http.Client{Timeout: config.Timeout},
		config:     config,
		logger:     logger,
	}, nil
}

// CreateWatcher registers a watcher and returns its id. Only failures where
// the service never handled the request are retried: 503 replies and
// connections that could not be dialed. Anything else, including 502, 504 and
// timeouts, may have created the watcher and is returned as is.
func (c *Client) CreateWatcher(ctx context.Context, request WatcherRequest) (string, error) {
	url := fmt.Sprintf("%s/api/watchers", c.baseURL)

	requestBody, err := json.Marshal(request)
	if err != nil {
		return "", fmt.Errorf("failed to marshal request: %w", err)
	}

	var lastErr error
	for attempt := 0; attempt <= c.config.RetryCount; attempt++ {
		watcherID, err := c.executeRequest(ctx, http.MethodPost, url, requestBody, request.IdempotencyKey)
		if err == nil {
			return watcherID, nil
		}

		lastErr = err

		if !c.isRetryableError(err) || ctx.Err() != nil {
			return "", err
		}

		// Don't sleep after the last attempt
		if attempt < c.config.RetryCount {
			delay := c.calculateBackoffDelay(attempt)
			c.logger.Warn("Watcher request failed, retrying", "attempt", attempt+1, "delay", delay, "error", err)
			select {
			case <-ctx.Done():
				return "", ctx.Err()
			case <-time.After(delay):
			}
		}
	}

	return "", fmt.Errorf("failed to create watcher after %d attempts: %w", c.config.RetryCount+1, lastErr)
}

// executeRequest executes a single HTTP request
func (c *Client) executeRequest(ctx context.Context, method, url string, body []byte, idempotencyKey string) (string, error) {
	req, err := http.NewRequestWithContext(ctx, method, url, bytes.NewBuffer(body))
	if err != nil {
		return "", fmt.Errorf("failed to create request: %w", err)
	}

	req.Header.Set("Content-Type", "application/json")
	req.Header.Set("User-Agent", c.config.UserAgent)
	req.Header.Set("Accept", "application/json")
	if idempotencyKey != "" {
		req.Header.Set(IdempotencyKeyHeader, idempotencyKey)
	}

	resp, err := c.httpClient.Do(req)
	if err != nil {
		return "", fmt.Errorf("HTTP request failed: %w", err)
	}
	defer resp.Body.Close()

	respBody, err := io.ReadAll(resp.Body)
	if err != nil {
		return "", fmt.Errorf("failed to read response body: %w", err)
	}

	switch resp.StatusCode {
	case http.StatusOK, http.StatusCreated:
		var watcherResp WatcherResponse
		if err := json.Unmarshal(respBody, &watcherResp); err != nil || !watcherResp.Success {
			return "", &RegistrationError{StatusCode: resp.StatusCode, Body: string(respBody)}
		}
		return watcherResp.WatcherID, nil

	case http.StatusServiceUnavailable:
		// The service refused the request without handling it
		return "", &RetryableError{
			Message:    (&RegistrationError{StatusCode: resp.StatusCode, Body: string(respBody)}).Error(),
			StatusCode: resp.StatusCode,
			Retryable:  true,
		}

	default:
		return "", &RegistrationError{StatusCode: resp.StatusCode, Body: string(respBody)}
	}
}

// HealthCheck verifies the watcher service is accessible
func (c *Client) HealthCheck(ctx context.Context) error {
	url := fmt.Sprintf("%s/api/health", c.baseURL)

	req, err := http.NewRequestWithContext(ctx, http.MethodGet, url, nil)
	if err != nil {
		return fmt.Errorf("failed to create health check request: %w", err)
	}

	req.Header.Set("User-Agent", c.config.UserAgent)

	resp, err := c.httpClient.Do(req)
	if err != nil {
		return fmt.Errorf("health check request failed: %w", err)
	}
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusOK {
		body, _ := io.ReadAll(resp.Body)
		return fmt.Errorf("health check failed with status %d: %s", resp.StatusCode, string(body))
	}

	return nil
}

// isRetryableError determines if an error should trigger a retry
func (c *Client) isRetryableError(err error) bool {
	var retryableErr *RetryableError
	if errors.As(err, &retryableErr) {
		return retryableErr.Retryable
	}

	var registrationErr *RegistrationError
	if errors.As(err, &registrationErr) {
		return false
	}

	// Only a failed dial proves the request was never sent
	var opErr *net.OpError
	return errors.As(err, &opErr) && opErr.Op == "dial"
}

// calculateBackoffDelay calculates the delay for exponential backoff
func (c *Client) calculateBackoffDelay(attempt int) time.Duration {
	baseDelay := c.config.RetryDelay

	// Exponential backoff: delay = baseDelay * (backoffFactor ^ attempt)
	multiplier := 1.0
	for i := 0; i < attempt; i++ {
		multiplier *= c.config.BackoffFactor
	}

	delay := time.Duration(float64(baseDelay) * multiplier)

	// Cap the maximum delay at 30 seconds
	maxDelay := 30 * time.Second
	if delay > maxDelay {
		delay = maxDelay
	}

	return delay
}

// RetryableError represents an error that should be retried
type RetryableError struct {
	Message    string
	StatusCode int
	Retryable  bool
}

func (e *RetryableError) Error() string {
	return e.Message
}
