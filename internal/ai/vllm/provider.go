package vllm

import (
	"time"

	"github.com/kiranshivaraju/mindalert/internal/ai/openai"
	"github.com/kiranshivaraju/mindalert/internal/config"
)

// NewProvider returns a provider for a vLLM server's OpenAI-compatible API.
func NewProvider(cfg config.VLLMConfig, timeout time.Duration) *openai.Provider {
	return openai.NewCompatible(openai.Options{
		Name:    "vllm",
		BaseURL: cfg.BaseURL,
		APIKey:  "vllm",
		Model:   cfg.Model,
		Timeout: timeout,
	})
}
