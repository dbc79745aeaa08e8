package ai

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"net/http"
	"strings"
	"time"
)

// OllamaClient is a minimal HTTP client for a local Ollama runtime.
type OllamaClient struct {
	httpClient       *http.Client
	host             string
	retryMaxAttempts int
	retryBaseDelay   time.Duration
}

// NewOllamaClient creates a new client targeting the given host (e.g., http://127.0.0.1:11434).
func NewOllamaClient(host string, httpTimeout time.Duration, retryMax int, baseDelay time.Duration) *OllamaClient {
	if host == "" {
		host = OllamaHost
	}
	if httpTimeout <= 0 {
		httpTimeout = 60 * time.Second
	}
	if retryMax <= 0 {
		retryMax = 1
	}
	if baseDelay <= 0 {
		baseDelay = 200 * time.Millisecond
	}
	return &OllamaClient{
		httpClient:       &http.Client{Timeout: httpTimeout},
		host:             strings.TrimRight(host, "/"),
		retryMaxAttempts: retryMax,
		retryBaseDelay:   baseDelay,
	}
}

// Structures aligned with Ollama /api/chat (non-streaming)
type ollamaChatRequest struct {
	Model    string         `json:"model"`
	Messages []Message      `json:"messages"`
	Stream   bool           `json:"stream"`
	Options  map[string]any `json:"options"`
}

type ollamaChatResponse struct {
	Message         Message `json:"message"`
	Done            bool    `json:"done"`
	PromptEvalCount int     `json:"prompt_eval_count"`
	EvalCount       int     `json:"eval_count"`
}

// Generate sends a chat request to Ollama and maps the response to GenerateResponse.
func (c *OllamaClient) Generate(ctx context.Context, req GenerateRequest) (*GenerateResponse, error) {
	if err := validateRequest(req); err != nil {
		return nil, err
	}
	oreq := ollamaChatRequest{
		Model:    req.Model,
		Messages: req.Messages,
		Options:  map[string]any{"temperature": req.Temperature},
	}
	if req.MaxTokens > 0 {
		oreq.Options["num_predict"] = req.MaxTokens
	}
	payload, err := json.Marshal(oreq)
	if err != nil {
		return nil, fmt.Errorf("marshal request: %w", err)
	}

	endpoint := c.host + "/api/chat"
	backoff := c.retryBaseDelay
	var lastErr error
	for attempt := 1; attempt <= c.retryMaxAttempts; attempt++ {
		if ctx.Err() != nil {
			return nil, ctx.Err()
		}
		httpReq, err := http.NewRequestWithContext(ctx, http.MethodPost, endpoint, bytes.NewReader(payload))
		if err != nil {
			return nil, fmt.Errorf("build request: %w", err)
		}
		httpReq.Header.Set("Content-Type", "application/json")

		resp, err := c.httpClient.Do(httpReq)
		if err != nil {
			if isRetryableNetErr(err) && attempt < c.retryMaxAttempts {
				sleepCtx(ctx, withJitter(backoff))
				backoff *= 2
				continue
			}
			return nil, &UnreachableError{Host: c.host, Err: err}
		}
		out, err := c.readResponse(resp)
		if err == nil {
			return out, nil
		}
		lastErr = err
		if attempt < c.retryMaxAttempts {
			sleepCtx(ctx, withJitter(backoff))
			backoff *= 2
		}
	}
	return nil, lastErr
}

func (c *OllamaClient) readResponse(resp *http.Response) (*GenerateResponse, error) {
	defer resp.Body.Close()
	if resp.StatusCode < 200 || resp.StatusCode >= 300 {
		apiErr := decodeAPIError(resp)
		switch {
		case resp.StatusCode == http.StatusNotFound:
			return nil, &ModelNotFoundError{APIError: apiErr}
		case resp.StatusCode >= 500:
			return nil, &ServerError{APIError: apiErr}
		case resp.StatusCode == http.StatusBadRequest:
			return nil, &BadRequestError{APIError: apiErr}
		}
		return nil, apiErr
	}
	var oresp ollamaChatResponse
	if err := json.NewDecoder(resp.Body).Decode(&oresp); err != nil {
		return nil, fmt.Errorf("decode response: %w", err)
	}
	return &GenerateResponse{
		Choices: []Choice{{Message: Message{Role: "assistant", Content: oresp.Message.Content}}},
		Usage: Usage{
			PromptTokens:     oresp.PromptEvalCount,
			CompletionTokens: oresp.EvalCount,
			TotalTokens:      oresp.PromptEvalCount + oresp.EvalCount,
		},
		RequestID: fmt.Sprintf("ollama_%d", time.Now().UnixNano()),
	}, nil
}
