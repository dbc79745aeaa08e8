package ai

import (
	"context"
	"errors"
	"fmt"
	"net/http"
	"strings"
	"time"

	"google.golang.org/genai"
)

// GeminiClient adapts the genai SDK to Runtime. System messages become the
// system instruction; the remaining turns are sent as contents.
type GeminiClient struct {
	client *genai.Client
}

// NewGeminiClient builds a Gemini API client. baseURL is optional and only
// used to point the SDK at a proxy or test server.
func NewGeminiClient(ctx context.Context, apiKey, baseURL string, httpTimeout time.Duration) (*GeminiClient, error) {
	if apiKey == "" {
		return nil, fmt.Errorf("%s: %w", ProviderGemini, ErrMissingAPIKey)
	}
	if httpTimeout <= 0 {
		httpTimeout = 60 * time.Second
	}
	cfg := &genai.ClientConfig{
		APIKey:     apiKey,
		Backend:    genai.BackendGeminiAPI,
		HTTPClient: &http.Client{Timeout: httpTimeout},
	}
	if baseURL != "" {
		cfg.HTTPOptions = genai.HTTPOptions{BaseURL: baseURL}
	}
	client, err := genai.NewClient(ctx, cfg)
	if err != nil {
		return nil, fmt.Errorf("failed to create genai client: %w", err)
	}
	return &GeminiClient{client: client}, nil
}

func (c *GeminiClient) Generate(ctx context.Context, req GenerateRequest) (*GenerateResponse, error) {
	if err := validateRequest(req); err != nil {
		return nil, err
	}
	var system []string
	var contents []*genai.Content
	for _, m := range req.Messages {
		switch m.Role {
		case "system":
			system = append(system, m.Content)
		case "assistant":
			contents = append(contents, genai.NewContentFromText(m.Content, genai.RoleModel))
		default:
			contents = append(contents, genai.NewContentFromText(m.Content, genai.RoleUser))
		}
	}
	if len(contents) == 0 {
		return nil, errMessagesEmpty
	}
	cfg := &genai.GenerateContentConfig{
		Temperature: genai.Ptr(float32(req.Temperature)),
	}
	if len(system) > 0 {
		cfg.SystemInstruction = genai.NewContentFromText(strings.Join(system, "\n\n"), genai.RoleUser)
	}
	if req.MaxTokens > 0 {
		cfg.MaxOutputTokens = int32(req.MaxTokens)
	}

	resp, err := c.client.Models.GenerateContent(ctx, req.Model, contents, cfg)
	if err != nil {
		var apiErr genai.APIError
		if errors.As(err, &apiErr) {
			return nil, classifyGeminiError(apiErr)
		}
		return nil, &UnreachableError{Host: "gemini", Err: err}
	}
	out := &GenerateResponse{
		ID:        resp.ResponseID,
		Choices:   []Choice{{Message: Message{Role: "assistant", Content: resp.Text()}}},
		RequestID: resp.ResponseID,
	}
	if u := resp.UsageMetadata; u != nil {
		out.Usage = Usage{
			PromptTokens:     int(u.PromptTokenCount),
			CompletionTokens: int(u.CandidatesTokenCount),
			TotalTokens:      int(u.TotalTokenCount),
		}
	}
	return out, nil
}

func classifyGeminiError(e genai.APIError) error {
	apiErr := &APIError{StatusCode: e.Code, Code: e.Status, Message: e.Message}
	switch {
	case e.Code == http.StatusUnauthorized || e.Code == http.StatusForbidden:
		return &AuthError{APIError: apiErr}
	case e.Code == http.StatusTooManyRequests:
		return &RateLimitError{APIError: apiErr}
	case e.Code == http.StatusNotFound:
		return &ModelNotFoundError{APIError: apiErr}
	case e.Code == http.StatusBadRequest:
		return &BadRequestError{APIError: apiErr}
	case e.Code >= 500:
		return &ServerError{APIError: apiErr}
	}
	return apiErr
}
