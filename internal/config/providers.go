package config

import (
	"os"
	"strings"
)

// DetectProvider picks the conversation provider from the keys present:
// OpenAI first, then Claude. With neither it stays on openai so the missing
// key is reported.
func DetectProvider() string {
	switch {
	case os.Getenv("OPENAI_API_KEY") != "":
		return "openai"
	case os.Getenv("ANTHROPIC_API_KEY") != "":
		return "claude"
	default:
		return "openai"
	}
}

// DefaultCompressorModel is the cheap model used for compression and summaries
func DefaultCompressorModel(provider string) string {
	switch provider {
	case "openai":
		return "gpt-4o-mini"
	case "claude":
		return "claude-3-5-haiku-latest"
	default:
		return ""
	}
}

// EnvKeyForProvider returns the environment variable name for a provider's API key
func EnvKeyForProvider(provider string) string {
	switch provider {
	case "claude":
		return "ANTHROPIC_API_KEY"
	case "openai":
		return "OPENAI_API_KEY"
	case "kimi":
		return "KIMI_API_KEY"
	case "ollama":
		return ""
	default:
		return strings.ToUpper(provider) + "_API_KEY"
	}
}
