package ai

import (
	"fmt"

	"github.com/kiranshivaraju/mindalert/internal/ai/ollama"
	"github.com/kiranshivaraju/mindalert/internal/ai/openai"
	"github.com/kiranshivaraju/mindalert/internal/ai/vllm"
	"github.com/kiranshivaraju/mindalert/internal/config"
	"github.com/kiranshivaraju/mindalert/pkg/models"
)

// NewProvider constructs the appropriate AI provider based on config.
// Called once at server startup.
func NewProvider(cfg config.AIConfig) (models.AIProvider, error) {
	switch cfg.Provider {
	case "ollama":
		return ollama.NewProvider(cfg.Ollama, cfg.InferenceTimeout), nil
	case "vllm":
		return vllm.NewProvider(cfg.VLLM, cfg.InferenceTimeout), nil
	case "openai":
		return openai.NewProvider(cfg.OpenAI, cfg.InferenceTimeout), nil
	default:
		return nil, fmt.Errorf("unknown AI provider %q: must be one of ollama, vllm, openai", cfg.Provider)
	}
}
