package embedder

import (
	"fmt"

	"github.com/bowerhall/chordial/pkg/chordialmem"
)

const (
	defaultOllamaURL   = "http://localhost:11434"
	defaultOllamaModel = "nomic-embed-text"
)

type Config struct {
	Provider string
	BaseURL  string
	Model    string
}

// New returns the configured embedder, or nil when embeddings are disabled
func New(cfg Config) (chordialmem.Embedder, error) {
	switch cfg.Provider {
	case "ollama":
		baseURL := cfg.BaseURL
		if baseURL == "" {
			baseURL = defaultOllamaURL
		}
		model := cfg.Model
		if model == "" {
			model = defaultOllamaModel
		}
		return newOllama(baseURL, model), nil
	case "":
		return nil, nil
	default:
		return nil, fmt.Errorf("unknown embedder provider: %s", cfg.Provider)
	}
}
