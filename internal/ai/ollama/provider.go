package ollama

import (
	"time"

	"github.com/kiranshivaraju/mindalert/internal/ai/openai"
	"github.com/kiranshivaraju/mindalert/internal/config"
)

// NewProvider returns a provider for Ollama's OpenAI-compatible /v1 API.
// Ollama ignores the API key but the client requires one.
func NewProvider(cfg config.OllamaConfig, timeout time.Duration) *openai.Provider {
	return openai.NewCompatible(openai.Options{
		Name:    "ollama",
		BaseURL: cfg.BaseURL,
		APIKey:  "ollama",
		Model:   cfg.Model,
		Timeout: timeout,
	})
}
