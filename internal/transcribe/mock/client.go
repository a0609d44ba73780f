package mock

import (
	"context"
	"sync/atomic"

	"github.com/kiranshivaraju/mindalert/internal/transcribe"
	"github.com/kiranshivaraju/mindalert/pkg/models"
)

// MockClient satisfies transcribe.Client for testing.
type MockClient struct {
	TranscribeFunc func(ctx context.Context, ref models.AudioRef) (models.TranscriptionResult, error)
	calls          atomic.Int64
}

func (m *MockClient) Name() string { return "mock" }

// Calls returns how many times Transcribe was invoked.
func (m *MockClient) Calls() int { return int(m.calls.Load()) }

func (m *MockClient) Transcribe(ctx context.Context, ref models.AudioRef) (models.TranscriptionResult, error) {
	m.calls.Add(1)
	if m.TranscribeFunc != nil {
		return m.TranscribeFunc(ctx, ref)
	}
	return models.TranscriptionResult{}, nil
}

// NewMockClient returns a client that always yields text with the given confidence.
func NewMockClient(text string, confidence int) *MockClient {
	return &MockClient{
		TranscribeFunc: func(context.Context, models.AudioRef) (models.TranscriptionResult, error) {
			return models.TranscriptionResult{Text: text, Confidence: confidence}, nil
		},
	}
}

// NewFailingClient returns a client that always fails with err.
func NewFailingClient(err error) *MockClient {
	return &MockClient{
		TranscribeFunc: func(context.Context, models.AudioRef) (models.TranscriptionResult, error) {
			return models.TranscriptionResult{}, err
		},
	}
}

// NewUnavailableClient returns a client whose provider is always down.
func NewUnavailableClient() *MockClient {
	return NewFailingClient(transcribe.ErrTranscriptionUnavailable)
}

var _ transcribe.Client = (*MockClient)(nil)
