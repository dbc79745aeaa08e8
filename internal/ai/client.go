package ai

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"math/rand"
	"net"
	"net/http"
	"strconv"
	"strings"
	"time"
)

// Client talks to an OpenAI-compatible /chat/completions endpoint. Groq and
// OpenRouter both speak this protocol and differ only in base URL and key.
type Client struct {
	httpClient       *http.Client
	provider         string
	apiKey           string
	baseURL          string
	retryMaxAttempts int
	retryBaseDelay   time.Duration
	retryMaxDelay    time.Duration
}

// NewClient allows customizing HTTP timeout and retry/backoff behavior.
// retryMax counts attempts, so 1 disables retries.
func NewClient(provider, apiKey string, httpTimeout time.Duration, retryMax int, baseDelay, maxDelay time.Duration) *Client {
	if httpTimeout <= 0 {
		httpTimeout = 60 * time.Second
	}
	if retryMax <= 0 {
		retryMax = 1
	}
	if baseDelay <= 0 {
		baseDelay = 500 * time.Millisecond
	}
	if maxDelay <= 0 {
		maxDelay = 4 * time.Second
	}
	baseURL := GroqBaseURL
	if provider == ProviderOpenRouter {
		baseURL = OpenRouterBaseURL
	}
	return &Client{
		httpClient:       &http.Client{Timeout: httpTimeout},
		provider:         provider,
		apiKey:           apiKey,
		baseURL:          baseURL,
		retryMaxAttempts: retryMax,
		retryBaseDelay:   baseDelay,
		retryMaxDelay:    maxDelay,
	}
}

// NewClientWithBaseURL allows injecting a custom base URL (proxies, tests).
func NewClientWithBaseURL(provider, apiKey string, httpTimeout time.Duration, retryMax int, baseDelay, maxDelay time.Duration, baseURL string) *Client {
	c := NewClient(provider, apiKey, httpTimeout, retryMax, baseDelay, maxDelay)
	if baseURL != "" {
		c.baseURL = strings.TrimRight(baseURL, "/")
	}
	return c
}

// BaseURL returns the endpoint root in use.
func (c *Client) BaseURL() string { return c.baseURL }

func (c *Client) Generate(ctx context.Context, req GenerateRequest) (*GenerateResponse, error) {
	if c.apiKey == "" {
		return nil, fmt.Errorf("%s: %w", c.provider, ErrMissingAPIKey)
	}
	if err := validateRequest(req); err != nil {
		return nil, err
	}
	payload, err := json.Marshal(req)
	if err != nil {
		return nil, fmt.Errorf("marshal request: %w", err)
	}
	endpoint := c.baseURL + "/chat/completions"
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
		httpReq.Header.Set("Authorization", "Bearer "+c.apiKey)
		httpReq.Header.Set("Content-Type", "application/json")
		if c.provider == ProviderOpenRouter {
			httpReq.Header.Set("HTTP-Referer", "https://github.com/KaramelBytes/tabletalk")
			httpReq.Header.Set("X-Title", "tabletalk")
		}

		resp, err := c.httpClient.Do(httpReq)
		if err != nil {
			if isRetryableNetErr(err) && attempt < c.retryMaxAttempts {
				lastErr = err
				sleepCtx(ctx, withJitter(backoff))
				backoff *= 2
				continue
			}
			return nil, &UnreachableError{Host: c.baseURL, Err: err}
		}

		out, wait, err := c.readResponse(resp, attempt)
		if err == nil {
			return out, nil
		}
		lastErr = err
		if wait < 0 {
			break
		}
		if wait == 0 {
			wait = withJitter(backoff)
			if wait > c.retryMaxDelay {
				wait = c.retryMaxDelay
			}
			backoff *= 2
		}
		sleepCtx(ctx, wait)
	}
	return nil, lastErr
}

// readResponse decodes one HTTP response. A negative wait means the error is
// final; otherwise the caller retries after wait (0 = use backoff).
func (c *Client) readResponse(resp *http.Response, attempt int) (*GenerateResponse, time.Duration, error) {
	defer resp.Body.Close()
	if resp.StatusCode >= 200 && resp.StatusCode < 300 {
		var out GenerateResponse
		if err := json.NewDecoder(resp.Body).Decode(&out); err != nil {
			return nil, -1, fmt.Errorf("decode response: %w", err)
		}
		out.RequestID = extractRequestID(resp)
		return &out, 0, nil
	}

	apiErr := decodeAPIError(resp)
	retryable := resp.StatusCode == http.StatusTooManyRequests || resp.StatusCode >= 500
	if !retryable || attempt >= c.retryMaxAttempts {
		return nil, -1, classifyAPIError(apiErr, resp)
	}
	if ra := resp.Header.Get("Retry-After"); ra != "" {
		if secs, err := parseRetryAfterSeconds(ra); err == nil && secs > 0 {
			return nil, time.Duration(secs) * time.Second, &RateLimitError{APIError: apiErr, RetryAfter: time.Duration(secs) * time.Second}
		}
	}
	return nil, 0, apiErr
}

func decodeAPIError(resp *http.Response) *APIError {
	body, _ := io.ReadAll(io.LimitReader(resp.Body, 8<<10))
	var raw map[string]any
	_ = json.Unmarshal(body, &raw)
	apiErr := &APIError{StatusCode: resp.StatusCode, Raw: raw, RequestID: extractRequestID(resp)}
	src := raw
	if v, ok := raw["error"].(map[string]any); ok {
		src = v
	} else if msg, ok := raw["error"].(string); ok {
		// Ollama style: {"error": "..."}
		apiErr.Message = msg
	}
	if msg, ok := src["message"].(string); ok && apiErr.Message == "" {
		apiErr.Message = msg
	}
	if code, ok := src["code"].(string); ok {
		apiErr.Code = code
	}
	return apiErr
}

func isRetryableNetErr(err error) bool {
	var nerr net.Error
	if errors.As(err, &nerr) && nerr.Timeout() {
		return true
	}
	return errors.Is(err, io.EOF)
}

// parseRetryAfterSeconds tries to interpret Retry-After header value as seconds or HTTP date.
func parseRetryAfterSeconds(v string) (int, error) {
	if s, err := strconv.Atoi(v); err == nil {
		return s, nil
	}
	if t, err := http.ParseTime(v); err == nil {
		d := time.Until(t)
		if d < 0 {
			d = 0
		}
		return int(d.Seconds()), nil
	}
	return 0, fmt.Errorf("invalid Retry-After: %q", v)
}

// classifyAPIError maps generic APIError to typed errors.
func classifyAPIError(apiErr *APIError, resp *http.Response) error {
	sc := apiErr.StatusCode
	msg := apiErr.Message
	code := apiErr.Code
	if sc == http.StatusUnauthorized || sc == http.StatusForbidden {
		return &AuthError{APIError: apiErr}
	}
	if sc == http.StatusTooManyRequests {
		var ra time.Duration
		if v := resp.Header.Get("Retry-After"); v != "" {
			if secs, err := parseRetryAfterSeconds(v); err == nil && secs > 0 {
				ra = time.Duration(secs) * time.Second
			}
		}
		return &RateLimitError{APIError: apiErr, RetryAfter: ra}
	}
	if sc == http.StatusNotFound {
		if code == "model_not_found" || containsAllFold(msg, "model", "not", "found") {
			return &ModelNotFoundError{APIError: apiErr}
		}
		return apiErr
	}
	if sc == http.StatusBadRequest {
		return &BadRequestError{APIError: apiErr}
	}
	if code == "quota_exceeded" || containsAnyFold(msg, "quota", "billing", "limit exceeded") {
		return &QuotaExceededError{APIError: apiErr}
	}
	if sc >= 500 && sc <= 599 {
		return &ServerError{APIError: apiErr}
	}
	return apiErr
}

func containsAllFold(s string, subs ...string) bool {
	for _, sub := range subs {
		if !containsFold(s, sub) {
			return false
		}
	}
	return true
}

func containsAnyFold(s string, subs ...string) bool {
	for _, sub := range subs {
		if containsFold(s, sub) {
			return true
		}
	}
	return false
}

func containsFold(s, sub string) bool {
	if s == "" || sub == "" {
		return false
	}
	return strings.Contains(strings.ToLower(s), strings.ToLower(sub))
}

// extractRequestID pulls a best-effort request ID from common headers.
func extractRequestID(resp *http.Response) string {
	if resp == nil {
		return ""
	}
	keys := []string{"X-Request-Id", "X-Request-ID", "OpenAI-Request-ID", "Openrouter-Request-ID", "X-Groq-Id"}
	for _, k := range keys {
		if v := resp.Header.Get(k); v != "" {
			return v
		}
	}
	return ""
}

// withJitter returns a backoff duration with +/- 20% jitter applied.
func withJitter(d time.Duration) time.Duration {
	if d <= 0 {
		return 500 * time.Millisecond
	}
	f := 0.8 + rand.Float64()*0.4
	out := time.Duration(float64(d) * f)
	if out <= 0 {
		return d
	}
	return out
}

func sleepCtx(ctx context.Context, d time.Duration) {
	t := time.NewTimer(d)
	defer t.Stop()
	select {
	case <-ctx.Done():
	case <-t.C:
	}
}
