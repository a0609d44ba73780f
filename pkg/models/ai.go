package models

import (
	"context"
	"errors"
)

// AIProvider is the interface every language-model integration implements.
// Complete returns the raw model output; parsing belongs to the caller.
type AIProvider interface {
	Complete(ctx context.Context, req CompletionRequest) (string, error)
	// Name returns the provider identifier (e.g., "ollama", "openai").
	Name() string
}

// CompletionRequest is one system + user prompt exchange expecting a JSON object back.
type CompletionRequest struct {
	System string
	Prompt string
}

var (
	ErrProviderUnavailable = errors.New("ai provider unavailable")
	ErrInferenceTimeout    = errors.New("ai inference timeout")
	ErrInvalidResponse     = errors.New("ai provider returned invalid response")
)
