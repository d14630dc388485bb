package extraction

import (
	"context"
	"errors"
	"fmt"
	"net/http"
	"strings"
	"time"

	"github.com/google/generative-ai-go/genai"
	"github.com/googleapis/gax-go/v2/apierror"
	"google.golang.org/api/googleapi"
	"google.golang.org/api/option"
	"google.golang.org/grpc/codes"
)

// GeminiCompleter calls Google Gemini
type GeminiCompleter struct {
	client  *genai.Client
	model   *genai.GenerativeModel
	timeout time.Duration
}

// NewGeminiCompleter creates a Gemini completer
func NewGeminiCompleter(ctx context.Context, cfg Config) (*GeminiCompleter, error) {
	if cfg.APIKey == "" {
		return nil, fmt.Errorf("Gemini API key is required")
	}

	opts := []option.ClientOption{option.WithAPIKey(cfg.APIKey)}
	if cfg.Endpoint != "" {
		opts = append(opts, option.WithEndpoint(cfg.Endpoint))
	}

	client, err := genai.NewClient(ctx, opts...)
	if err != nil {
		return nil, fmt.Errorf("failed to create Gemini client: %w", err)
	}

	modelName := cfg.Model
	if modelName == "" {
		modelName = "gemini-1.5-flash"
	}

	model := client.GenerativeModel(modelName)
	model.SetTemperature(float32(cfg.Temperature))
	model.SetTopK(int32(cfg.TopK))
	model.SetTopP(float32(cfg.TopP))
	model.SetMaxOutputTokens(int32(cfg.MaxTokens))

	return &GeminiCompleter{client: client, model: model, timeout: cfg.Timeout}, nil
}

func (g *GeminiCompleter) Name() string { return "Gemini" }

// Complete generates a response for prompt, bounded by the configured timeout
func (g *GeminiCompleter) Complete(ctx context.Context, prompt string) (string, error) {
	ctx, cancel := requestContext(ctx, g.timeout)
	defer cancel()

	resp, err := g.model.GenerateContent(ctx, genai.Text(prompt))
	if err != nil {
		if status := geminiStatus(err); status != 0 {
			return "", &APIError{Provider: g.Name(), StatusCode: status, Body: err.Error()}
		}
		return "", fmt.Errorf("Gemini request failed: %w", err)
	}
	return responseText(resp), nil
}

// Close releases the underlying client
func (g *GeminiCompleter) Close() error {
	return g.client.Close()
}

// responseText joins the text parts of the first candidate
func responseText(resp *genai.GenerateContentResponse) string {
	if resp == nil || len(resp.Candidates) == 0 || resp.Candidates[0].Content == nil {
		return ""
	}

	var sb strings.Builder
	for _, part := range resp.Candidates[0].Content.Parts {
		if text, ok := part.(genai.Text); ok {
			sb.WriteString(string(text))
		}
	}
	return sb.String()
}

var grpcToHTTP = map[codes.Code]int{
	codes.InvalidArgument:   http.StatusBadRequest,
	codes.Unauthenticated:   http.StatusUnauthorized,
	codes.PermissionDenied:  http.StatusForbidden,
	codes.NotFound:          http.StatusNotFound,
	codes.ResourceExhausted: http.StatusTooManyRequests,
	codes.Internal:          http.StatusInternalServerError,
	codes.Unavailable:       http.StatusServiceUnavailable,
	codes.DeadlineExceeded:  http.StatusGatewayTimeout,
}

// geminiStatus returns the HTTP status behind a Gemini error, or 0
func geminiStatus(err error) int {
	var gErr *googleapi.Error
	if errors.As(err, &gErr) {
		return gErr.Code
	}

	var apiErr *apierror.APIError
	if errors.As(err, &apiErr) {
		if code := apiErr.HTTPCode(); code > 0 {
			return code
		}
		if st := apiErr.GRPCStatus(); st != nil {
			if code, ok := grpcToHTTP[st.Code()]; ok {
				return code
			}
			return http.StatusInternalServerError
		}
	}
	return 0
}
