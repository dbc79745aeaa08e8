package ai

import "context"

// Runtime is the minimal interface implemented by language-model backends
// (OpenAI-compatible HTTP APIs such as Groq and OpenRouter, a local Ollama,
// or Gemini through the genai SDK).
type Runtime interface {
	Generate(ctx context.Context, req GenerateRequest) (*GenerateResponse, error)
}

// Provider identifiers accepted by the registry and the CLI.
const (
	ProviderGroq       = "groq"
	ProviderOpenRouter = "openrouter"
	ProviderOllama     = "ollama"
	ProviderGemini     = "gemini"
)

// Default endpoints and models per provider.
const (
	GroqBaseURL       = "https://api.groq.com/openai/v1"
	OpenRouterBaseURL = "https://openrouter.ai/api/v1"
	OllamaHost        = "http://127.0.0.1:11434"

	DefaultGroqModel   = "llama-3.3-70b-versatile"
	DefaultGeminiModel = "gemini-2.5-flash"
)

// Message is one chat turn.
type Message struct {
	Role    string `json:"role"`
	Content string `json:"content"`
}

// GenerateRequest is the provider-neutral completion request. Temperature is
// always sent, so zero means deterministic sampling rather than "unset".
type GenerateRequest struct {
	Model       string    `json:"model"`
	Messages    []Message `json:"messages"`
	MaxTokens   int       `json:"max_tokens,omitempty"`
	Temperature float64   `json:"temperature"`
}

type Usage struct {
	PromptTokens     int `json:"prompt_tokens"`
	CompletionTokens int `json:"completion_tokens"`
	TotalTokens      int `json:"total_tokens"`
}

type Choice struct {
	Message Message `json:"message"`
}

type GenerateResponse struct {
	ID        string   `json:"id"`
	Choices   []Choice `json:"choices"`
	Usage     Usage    `json:"usage"`
	RequestID string   `json:"-"`
}

// Text returns the content of the first choice, or "".
func (r *GenerateResponse) Text() string {
	if r == nil || len(r.Choices) == 0 {
		return ""
	}
	return r.Choices[0].Message.Content
}

func validateRequest(req GenerateRequest) error {
	if req.Model == "" {
		return errModelEmpty
	}
	if len(req.Messages) == 0 {
		return errMessagesEmpty
	}
	return nil
}
