// Package transcribe turns stored recordings into text.
package transcribe

import (
	"context"
	"errors"

	"github.com/kiranshivaraju/mindalert/pkg/models"
)

var (
	// ErrTranscriptionUnavailable covers timeouts, throttling and provider outages. Retryable.
	ErrTranscriptionUnavailable = errors.New("transcription unavailable")
	// ErrUnsupportedInput means the provider refused the audio itself. Terminal.
	ErrUnsupportedInput = errors.New("transcription input unsupported")
)

// Client transcribes one recording. An empty transcript with zero
// confidence is a valid result, not an error.
type Client interface {
	Name() string
	Transcribe(ctx context.Context, ref models.AudioRef) (models.TranscriptionResult, error)
}

// Retryable reports whether a failed transcription may succeed on another attempt.
func Retryable(err error) bool {
	return errors.Is(err, ErrTranscriptionUnavailable)
}
