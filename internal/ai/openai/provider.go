// Package openai talks to any OpenAI-compatible chat completions endpoint.
// OpenAI itself, vLLM and Ollama all use this provider with different base URLs.
package openai

import (
	"context"
	"errors"
	"fmt"
	"net/http"
	"strings"
	"time"

	"github.com/kiranshivaraju/mindalert/internal/config"
	"github.com/kiranshivaraju/mindalert/pkg/models"
	goopenai "github.com/sashabaranov/go-openai"
)

// Options configures an OpenAI-compatible endpoint.
type Options struct {
	Name    string
	BaseURL string
	APIKey  string
	Model   string
	Timeout time.Duration
}

// Provider implements models.AIProvider.
type Provider struct {
	name    string
	model   string
	timeout time.Duration
	client  *goopenai.Client
}

// NewProvider returns a provider for the hosted OpenAI API.
func NewProvider(cfg config.OpenAIConfig, timeout time.Duration) *Provider {
	return NewCompatible(Options{
		Name:    "openai",
		APIKey:  cfg.APIKey,
		Model:   cfg.Model,
		Timeout: timeout,
	})
}

// NewCompatible returns a provider for a self-hosted OpenAI-compatible server.
func NewCompatible(opts Options) *Provider {
	apiCfg := goopenai.DefaultConfig(opts.APIKey)
	if opts.BaseURL != "" {
		apiCfg.BaseURL = strings.TrimRight(opts.BaseURL, "/")
	}
	apiCfg.HTTPClient = &http.Client{}
	return &Provider{
		name:    opts.Name,
		model:   opts.Model,
		timeout: opts.Timeout,
		client:  goopenai.NewClientWithConfig(apiCfg),
	}
}

func (p *Provider) Name() string { return p.name }

func (p *Provider) Complete(ctx context.Context, req models.CompletionRequest) (string, error) {
	callCtx := ctx
	if p.timeout > 0 {
		var cancel context.CancelFunc
		callCtx, cancel = context.WithTimeout(ctx, p.timeout)
		defer cancel()
	}

	resp, err := p.client.CreateChatCompletion(callCtx, goopenai.ChatCompletionRequest{
		Model: p.model,
		Messages: []goopenai.ChatCompletionMessage{
			{Role: goopenai.ChatMessageRoleSystem, Content: req.System},
			{Role: goopenai.ChatMessageRoleUser, Content: req.Prompt},
		},
		ResponseFormat: &goopenai.ChatCompletionResponseFormat{
			Type: goopenai.ChatCompletionResponseFormatTypeJSONObject,
		},
		Temperature: 0,
	})
	if err != nil {
		if ctx.Err() != nil {
			return "", ctx.Err()
		}
		return "", p.classify(callCtx, err)
	}

	if len(resp.Choices) == 0 {
		return "", fmt.Errorf("%s: %w: no choices", p.name, models.ErrInvalidResponse)
	}
	content := strings.TrimSpace(resp.Choices[0].Message.Content)
	if content == "" {
		return "", fmt.Errorf("%s: %w: empty content (finish reason %q)", p.name, models.ErrInvalidResponse, resp.Choices[0].FinishReason)
	}
	return content, nil
}

func (p *Provider) classify(callCtx context.Context, err error) error {
	if errors.Is(callCtx.Err(), context.DeadlineExceeded) {
		return fmt.Errorf("%s: %w", p.name, models.ErrInferenceTimeout)
	}

	status := 0
	var apiErr *goopenai.APIError
	var reqErr *goopenai.RequestError
	switch {
	case errors.As(err, &apiErr):
		status = apiErr.HTTPStatusCode
	case errors.As(err, &reqErr):
		status = reqErr.HTTPStatusCode
	}

	switch {
	case status == 0,
		status == http.StatusRequestTimeout,
		status == http.StatusTooManyRequests,
		status >= http.StatusInternalServerError:
		return fmt.Errorf("%s: %w: %v", p.name, models.ErrProviderUnavailable, err)
	default:
		return fmt.Errorf("%s: chat completion rejected (status %d): %w", p.name, status, err)
	}
}

var _ models.AIProvider = (*Provider)(nil)
