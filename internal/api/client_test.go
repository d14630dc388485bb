package api

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"net/http"
	"net/http/httptest"
	"strings"
	"sync/atomic"
	"testing"
	"time"
)

func TestNewClient(t *testing.T) {
	testCases := []struct {
		name        string
		config      *ClientConfig
		expectError bool
		errorMsg    string
	}{
		{
			name: "Valid configuration",
			config: &ClientConfig{
				BaseURL:    "http://localhost:8080",
				Timeout:    30 * time.Second,
				RetryCount: 3,
				RetryDelay: 1 * time.Second,
			},
			expectError: false,
		},
		{
			name:        "Nil configuration",
			config:      nil,
			expectError: true,
			errorMsg:    "config cannot be nil",
		},
		{
			name:        "Empty base URL",
			config:      &ClientConfig{BaseURL: ""},
			expectError: true,
			errorMsg:    "base URL is required",
		},
		{
			name:        "Invalid base URL",
			config:      &ClientConfig{BaseURL: "not-a-url"},
			expectError: true,
			errorMsg:    "invalid base URL",
		},
		{
			name:        "Negative retry count",
			config:      &ClientConfig{BaseURL: "http://localhost:8080", RetryCount: -1},
			expectError: true,
			errorMsg:    "retry count cannot be negative",
		},
	}

	for _, tc := range testCases {
		t.Run(tc.name, func(t *testing.T) {
			client, err := NewClient(tc.config, nil)

			if tc.expectError {
				if err == nil {
					t.Errorf("Expected error but got none")
				} else if !strings.Contains(err.Error(), tc.errorMsg) {
					t.Errorf("Expected error containing '%s', got '%s'", tc.errorMsg, err.Error())
				}
				return
			}

			if err != nil {
				t.Fatalf("Unexpected error: %v", err)
			}
			if client == nil {
				t.Fatal("Expected client but got nil")
			}
		})
	}
}

func TestNewClient_Defaults(t *testing.T) {
	config := &ClientConfig{BaseURL: "https://watchers.example.com/"}
	client, err := NewClient(config, nil)
	if err != nil {
		t.Fatalf("Unexpected error: %v", err)
	}

	if client.baseURL != "https://watchers.example.com" {
		t.Errorf("Expected trailing slash trimmed, got %s", client.baseURL)
	}
	if config.Timeout != 30*time.Second {
		t.Errorf("Expected default timeout 30s, got %v", config.Timeout)
	}
	if config.BackoffFactor != 2.0 {
		t.Errorf("Expected default backoff factor 2.0, got %v", config.BackoffFactor)
	}
}

func newTestClient(t *testing.T, url string, retries int) *Client {
	t.Helper()
	client, err := NewClient(&ClientConfig{
		BaseURL:    url,
		Timeout:    5 * time.Second,
		RetryCount: retries,
		RetryDelay: 10 * time.Millisecond,
	}, nil)
	if err != nil {
		t.Fatalf("Failed to create client: %v", err)
	}
	return client
}

func sampleRequest() WatcherRequest {
	return WatcherRequest{
		Email:                  "jane@example.com",
		HotelName:              "Hotel Adlon",
		CheckInDate:            "2024-06-01",
		CheckOutDate:           "2024-06-03",
		UserPriceAmount:        412.5,
		UserPriceCurrencyCode:  "EUR",
		CancellationExpiryDate: "2024-05-30",
	}
}

func TestClient_CreateWatcher(t *testing.T) {
	testCases := []struct {
		name         string
		statusCode   int
		responseBody string
		expectID     string
		expectError  string
	}{
		{
			name:         "Created",
			statusCode:   http.StatusOK,
			responseBody: `{"success": true, "watcherId": "w-123"}`,
			expectID:     "w-123",
		},
		{
			name:         "Created without id",
			statusCode:   http.StatusCreated,
			responseBody: `{"success": true}`,
			expectID:     "",
		},
		{
			name:         "Success flag false",
			statusCode:   http.StatusOK,
			responseBody: `{"success": false}`,
			expectError:  `Watcher create failed (200) {"success": false}`,
		},
		{
			name:         "Unparseable body",
			statusCode:   http.StatusOK,
			responseBody: `<html>ok</html>`,
			expectError:  "Watcher create failed (200) <html>ok</html>",
		},
		{
			name:         "Validation rejected",
			statusCode:   http.StatusBadRequest,
			responseBody: "invalid checkInDate",
			expectError:  "Watcher create failed (400) invalid checkInDate",
		},
		{
			name:         "Server error not retried",
			statusCode:   http.StatusInternalServerError,
			responseBody: "",
			expectError:  "Watcher create failed (500)",
		},
		{
			name:         "Gateway timeout not retried",
			statusCode:   http.StatusGatewayTimeout,
			responseBody: "",
			expectError:  "Watcher create failed (504)",
		},
		{
			name:         "Bad gateway not retried",
			statusCode:   http.StatusBadGateway,
			responseBody: "upstream reset",
			expectError:  "Watcher create failed (502) upstream reset",
		},
	}

	for _, tc := range testCases {
		t.Run(tc.name, func(t *testing.T) {
			var calls int32
			server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
				atomic.AddInt32(&calls, 1)
				if r.Method != http.MethodPost {
					t.Errorf("Expected POST request, got %s", r.Method)
				}
				if r.URL.Path != "/api/watchers" {
					t.Errorf("Expected path /api/watchers, got %s", r.URL.Path)
				}
				if r.Header.Get("Content-Type") != "application/json" {
					t.Errorf("Expected Content-Type application/json, got %s", r.Header.Get("Content-Type"))
				}
				w.WriteHeader(tc.statusCode)
				fmt.Fprint(w, tc.responseBody)
			}))
			defer server.Close()

			client := newTestClient(t, server.URL, 2)
			id, err := client.CreateWatcher(context.Background(), sampleRequest())

			if tc.expectError != "" {
				if err == nil {
					t.Fatal("Expected error but got none")
				}
				if err.Error() != tc.expectError {
					t.Errorf("Expected error %q, got %q", tc.expectError, err.Error())
				}
				var regErr *RegistrationError
				if !errors.As(err, &regErr) {
					t.Errorf("Expected *RegistrationError, got %T", err)
				}
				if calls != 1 {
					t.Errorf("Expected exactly 1 call for rejection, got %d", calls)
				}
				return
			}

			if err != nil {
				t.Fatalf("Unexpected error: %v", err)
			}
			if id != tc.expectID {
				t.Errorf("Expected watcher id %q, got %q", tc.expectID, id)
			}
		})
	}
}

func TestClient_CreateWatcherPayload(t *testing.T) {
	var received map[string]interface{}
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if err := json.NewDecoder(r.Body).Decode(&received); err != nil {
			t.Errorf("Failed to decode request body: %v", err)
		}
		fmt.Fprint(w, `{"success": true, "watcherId": "w-1"}`)
	}))
	defer server.Close()

	req := sampleRequest()
	req.PinNumber = "1234"

	client := newTestClient(t, server.URL, 0)
	if _, err := client.CreateWatcher(context.Background(), req); err != nil {
		t.Fatalf("Unexpected error: %v", err)
	}

	expected := map[string]interface{}{
		"email":                  "jane@example.com",
		"hotelName":              "Hotel Adlon",
		"checkInDate":            "2024-06-01",
		"checkOutDate":           "2024-06-03",
		"userPriceAmount":        412.5,
		"userPriceCurrencyCode":  "EUR",
		"cancellationExpiryDate": "2024-05-30",
		"pinNumber":              "1234",
	}
	for key, want := range expected {
		if received[key] != want {
			t.Errorf("Expected %s=%v, got %v", key, want, received[key])
		}
	}
	if _, ok := received["modifyBookingLink"]; ok {
		t.Error("Expected empty modifyBookingLink to be omitted")
	}
}

func TestClient_CreateWatcherWithRetries(t *testing.T) {
	var attempts int32
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if atomic.AddInt32(&attempts, 1) < 3 {
			w.WriteHeader(http.StatusServiceUnavailable)
			return
		}
		fmt.Fprint(w, `{"success": true, "watcherId": "w-retry"}`)
	}))
	defer server.Close()

	client := newTestClient(t, server.URL, 3)
	id, err := client.CreateWatcher(context.Background(), sampleRequest())
	if err != nil {
		t.Fatalf("Expected success after retries, got error: %v", err)
	}
	if id != "w-retry" {
		t.Errorf("Expected watcher id w-retry, got %s", id)
	}
	if attempts != 3 {
		t.Errorf("Expected 3 attempts, got %d", attempts)
	}
}

func TestClient_CreateWatcherMaxRetriesExceeded(t *testing.T) {
	var attempts int32
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		atomic.AddInt32(&attempts, 1)
		w.WriteHeader(http.StatusServiceUnavailable)
	}))
	defer server.Close()

	client := newTestClient(t, server.URL, 2)
	_, err := client.CreateWatcher(context.Background(), sampleRequest())
	if err == nil {
		t.Fatal("Expected error after max retries")
	}
	if !strings.Contains(err.Error(), "after 3 attempts") {
		t.Errorf("Expected attempts in error, got %s", err.Error())
	}
	var retryErr *RetryableError
	if !errors.As(err, &retryErr) || retryErr.StatusCode != http.StatusServiceUnavailable {
		t.Errorf("Expected wrapped RetryableError with 503, got %v", err)
	}
	if attempts != 3 {
		t.Errorf("Expected 3 attempts, got %d", attempts)
	}
}

func TestClient_CreateWatcherContextCancelled(t *testing.T) {
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusServiceUnavailable)
	}))
	defer server.Close()

	client, err := NewClient(&ClientConfig{
		BaseURL:    server.URL,
		RetryCount: 5,
		RetryDelay: time.Hour,
	}, nil)
	if err != nil {
		t.Fatalf("Failed to create client: %v", err)
	}

	ctx, cancel := context.WithTimeout(context.Background(), 50*time.Millisecond)
	defer cancel()

	_, err = client.CreateWatcher(ctx, sampleRequest())
	if !errors.Is(err, context.DeadlineExceeded) {
		t.Errorf("Expected deadline exceeded, got %v", err)
	}
}

func TestClient_CreateWatcherSendsIdempotencyKey(t *testing.T) {
	var keys []string
	var attempts int32
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		keys = append(keys, r.Header.Get(IdempotencyKeyHeader))
		if atomic.AddInt32(&attempts, 1) == 1 {
			w.WriteHeader(http.StatusServiceUnavailable)
			return
		}
		fmt.Fprint(w, `{"success": true, "watcherId": "w-1"}`)
	}))
	defer server.Close()

	req := sampleRequest()
	req.IdempotencyKey = "booking-7"

	client := newTestClient(t, server.URL, 2)
	if _, err := client.CreateWatcher(context.Background(), req); err != nil {
		t.Fatalf("Unexpected error: %v", err)
	}
	if strings.Join(keys, ",") != "booking-7,booking-7" {
		t.Errorf("Expected the same key on both attempts, got %v", keys)
	}
}

func TestClient_CreateWatcherTimeoutNotRetried(t *testing.T) {
	var attempts int32
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		atomic.AddInt32(&attempts, 1)
		time.Sleep(200 * time.Millisecond)
		fmt.Fprint(w, `{"success": true, "watcherId": "w-late"}`)
	}))
	defer server.Close()

	client, err := NewClient(&ClientConfig{
		BaseURL:    server.URL,
		Timeout:    50 * time.Millisecond,
		RetryCount: 3,
		RetryDelay: time.Millisecond,
	}, nil)
	if err != nil {
		t.Fatalf("Failed to create client: %v", err)
	}

	if _, err := client.CreateWatcher(context.Background(), sampleRequest()); err == nil {
		t.Fatal("Expected timeout error")
	}
	if n := atomic.LoadInt32(&attempts); n != 1 {
		t.Errorf("Expected a single POST after a timeout, got %d", n)
	}
}

func TestClient_CreateWatcherRetriesRefusedConnection(t *testing.T) {
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {}))
	url := server.URL
	server.Close()

	client := newTestClient(t, url, 1)
	_, err := client.CreateWatcher(context.Background(), sampleRequest())
	if err == nil {
		t.Fatal("Expected error for a closed server")
	}
	if !strings.Contains(err.Error(), "after 2 attempts") {
		t.Errorf("Expected the dial failure to be retried, got %v", err)
	}
}

func TestClient_HealthCheck(t *testing.T) {
	testCases := []struct {
		name        string
		statusCode  int
		expectError bool
	}{
		{name: "Healthy service", statusCode: http.StatusOK},
		{name: "Unhealthy service", statusCode: http.StatusServiceUnavailable, expectError: true},
	}

	for _, tc := range testCases {
		t.Run(tc.name, func(t *testing.T) {
			server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
				if r.URL.Path != "/api/health" {
					t.Errorf("Expected path /api/health, got %s", r.URL.Path)
				}
				w.WriteHeader(tc.statusCode)
			}))
			defer server.Close()

			err := newTestClient(t, server.URL, 0).HealthCheck(context.Background())
			if tc.expectError && err == nil {
				t.Error("Expected error but got none")
			}
			if !tc.expectError && err != nil {
				t.Errorf("Unexpected error: %v", err)
			}
		})
	}
}

func TestCalculateBackoffDelay(t *testing.T) {
	client := &Client{config: &ClientConfig{RetryDelay: time.Second, BackoffFactor: 2.0}}

	testCases := []struct {
		attempt int
		want    time.Duration
	}{
		{0, time.Second},
		{1, 2 * time.Second},
		{3, 8 * time.Second},
		{10, 30 * time.Second},
	}

	for _, tc := range testCases {
		if got := client.calculateBackoffDelay(tc.attempt); got != tc.want {
			t.Errorf("attempt %d: expected %v, got %v", tc.attempt, tc.want, got)
		}
	}
}
