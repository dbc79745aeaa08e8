package ai

import (
	"context"
	"encoding/json"
	"errors"
	"net/http"
	"strings"
	"testing"
	"time"
)

func TestGeminiGenerate(t *testing.T) {
	var body map[string]any
	var path string
	srv := newIPv4Server(t, http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		path = r.URL.Path
		_ = json.NewDecoder(r.Body).Decode(&body)
		w.Header().Set("Content-Type", "application/json")
		_ = json.NewEncoder(w).Encode(map[string]any{
			"candidates": []any{map[string]any{
				"content": map[string]any{"role": "model", "parts": []any{map[string]any{"text": "YES"}}},
			}},
			"usageMetadata": map[string]any{"promptTokenCount": 10, "candidatesTokenCount": 1, "totalTokenCount": 11},
			"responseId":    "resp-1",
		})
	}))
	defer srv.Close()

	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()
	c, err := NewGeminiClient(ctx, "test-key", srv.URL, 2*time.Second)
	if err != nil {
		t.Fatalf("NewGeminiClient: %v", err)
	}
	resp, err := c.Generate(ctx, GenerateRequest{
		Model: DefaultGeminiModel,
		Messages: []Message{
			{Role: "system", Content: "You classify intent. Output ONLY YES or NO."},
			{Role: "user", Content: "how many open cases"},
		},
	})
	if err != nil {
		t.Fatalf("Generate: %v", err)
	}
	if resp.Text() != "YES" || resp.RequestID != "resp-1" || resp.Usage.TotalTokens != 11 {
		t.Fatalf("unexpected response: %+v", resp)
	}
	if !strings.HasSuffix(path, DefaultGeminiModel+":generateContent") {
		t.Fatalf("unexpected request path %q", path)
	}
	if _, ok := body["systemInstruction"]; !ok {
		t.Fatalf("expected system instruction in request: %v", body)
	}
	gc, _ := body["generationConfig"].(map[string]any)
	if v, ok := gc["temperature"]; !ok || v.(float64) != 0 {
		t.Fatalf("expected temperature 0, got %v", body["generationConfig"])
	}
	contents, _ := body["contents"].([]any)
	if len(contents) != 1 {
		t.Fatalf("expected only the user turn in contents, got %v", body["contents"])
	}
}

func TestGeminiGenerateClassifiesErrors(t *testing.T) {
	srv := newIPv4Server(t, http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.Header().Set("Content-Type", "application/json")
		w.WriteHeader(http.StatusForbidden)
		_ = json.NewEncoder(w).Encode(map[string]any{
			"error": map[string]any{"code": 403, "message": "API key not valid", "status": "PERMISSION_DENIED"},
		})
	}))
	defer srv.Close()

	ctx := context.Background()
	c, err := NewGeminiClient(ctx, "bad-key", srv.URL, 2*time.Second)
	if err != nil {
		t.Fatalf("NewGeminiClient: %v", err)
	}
	_, err = c.Generate(ctx, GenerateRequest{Model: DefaultGeminiModel, Messages: userMessage("hi")})
	var ae *AuthError
	if !errors.As(err, &ae) {
		t.Fatalf("expected AuthError, got %T %v", err, err)
	}
}

func TestGeminiRequiresUserTurn(t *testing.T) {
	c, err := NewGeminiClient(context.Background(), "k", "http://127.0.0.1:1", time.Second)
	if err != nil {
		t.Fatalf("NewGeminiClient: %v", err)
	}
	_, err = c.Generate(context.Background(), GenerateRequest{Model: "m", Messages: []Message{{Role: "system", Content: "only system"}}})
	if err == nil || err.Error() != "messages cannot be empty" {
		t.Fatalf("expected empty messages error, got %v", err)
	}
}
