package llm

import (
	"context"
	"errors"
)

// ErrUnavailable is returned when a provider is not configured to serve requests
var ErrUnavailable = errors.New("llm provider unavailable")

type Config struct {
	Provider  string
	APIKey    string
	Model     string
	BaseURL   string
	MaxTokens int
}

// Message is one role/content entry. Role is "system", "user" or "assistant".
type Message struct {
	Role    string
	Content string
}

type Response struct {
	Content string
	Usage   Usage
}

type Usage struct {
	PromptTokens     int
	CompletionTokens int
	TotalTokens      int
}

// LLM is a text generation provider. Implementations may retry transient
// transport failures but never rewrite the request.
type LLM interface {
	Generate(ctx context.Context, messages []Message) (*Response, error)
	Available() bool
	Provider() string
	Model() string
}
