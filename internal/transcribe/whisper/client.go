// Package whisper transcribes audio through an OpenAI-compatible
// /audio/transcriptions endpoint.
package whisper

import (
	"context"
	"errors"
	"fmt"
	"math"
	"net/http"
	"path"
	"time"

	"github.com/kiranshivaraju/mindalert/internal/blob"
	"github.com/kiranshivaraju/mindalert/internal/config"
	"github.com/kiranshivaraju/mindalert/internal/transcribe"
	"github.com/kiranshivaraju/mindalert/pkg/models"
	openai "github.com/sashabaranov/go-openai"
)

// Client implements transcribe.Client.
type Client struct {
	api     *openai.Client
	blobs   blob.Store
	model   string
	timeout time.Duration
}

func NewClient(cfg config.TranscribeConfig, blobs blob.Store) *Client {
	apiCfg := openai.DefaultConfig(cfg.APIKey)
	apiCfg.BaseURL = cfg.BaseURL
	apiCfg.HTTPClient = &http.Client{}
	return &Client{
		api:     openai.NewClientWithConfig(apiCfg),
		blobs:   blobs,
		model:   cfg.Model,
		timeout: cfg.Timeout,
	}
}

func (c *Client) Name() string { return "whisper" }

func (c *Client) Transcribe(ctx context.Context, ref models.AudioRef) (models.TranscriptionResult, error) {
	start := time.Now()

	callCtx := ctx
	if c.timeout > 0 {
		var cancel context.CancelFunc
		callCtx, cancel = context.WithTimeout(ctx, c.timeout)
		defer cancel()
	}

	audio, err := c.blobs.Open(callCtx, ref.StoragePath)
	if errors.Is(err, blob.ErrNotFound) {
		return models.TranscriptionResult{}, fmt.Errorf("%w: audio %s missing from storage", transcribe.ErrUnsupportedInput, ref.AudioID)
	}
	if err != nil {
		return models.TranscriptionResult{}, fmt.Errorf("%w: open audio: %v", transcribe.ErrTranscriptionUnavailable, err)
	}
	defer audio.Close()

	resp, err := c.api.CreateTranscription(callCtx, openai.AudioRequest{
		Model:    c.model,
		FilePath: path.Base(ref.StoragePath),
		Reader:   audio,
		Format:   openai.AudioResponseFormatVerboseJSON,
	})
	if err != nil {
		if ctx.Err() != nil {
			return models.TranscriptionResult{}, ctx.Err()
		}
		return models.TranscriptionResult{}, classify(err)
	}

	return models.TranscriptionResult{
		Text:       resp.Text,
		Confidence: confidence(resp),
		Latency:    time.Since(start),
	}, nil
}

// classify maps provider failures onto the retryable and terminal sentinels.
func classify(err error) error {
	status := 0
	var apiErr *openai.APIError
	var reqErr *openai.RequestError
	switch {
	case errors.As(err, &apiErr):
		status = apiErr.HTTPStatusCode
	case errors.As(err, &reqErr):
		status = reqErr.HTTPStatusCode
	}

	switch {
	case status == http.StatusBadRequest,
		status == http.StatusRequestEntityTooLarge,
		status == http.StatusUnsupportedMediaType,
		status == http.StatusUnprocessableEntity:
		return fmt.Errorf("%w: %v", transcribe.ErrUnsupportedInput, err)
	default:
		// Timeouts, 429, 5xx, auth and network errors are all worth another try later.
		return fmt.Errorf("%w: %v", transcribe.ErrTranscriptionUnavailable, err)
	}
}

// confidence averages per-segment speech probability onto a 0..100 scale.
// Responses without segments report 0.
func confidence(resp openai.AudioResponse) int {
	if len(resp.Segments) == 0 {
		return 0
	}
	var sum float64
	for _, s := range resp.Segments {
		sum += math.Exp(s.AvgLogprob) * (1 - s.NoSpeechProb)
	}
	score := math.Round(sum / float64(len(resp.Segments)) * 100)
	return int(math.Max(0, math.Min(100, score)))
}

var _ transcribe.Client = (*Client)(nil)
