package mock

import (
	"context"
	"sync"

	"github.com/kiranshivaraju/mindalert/internal/ai"
	"github.com/kiranshivaraju/mindalert/pkg/models"
)

// MockProvider satisfies models.AIProvider for testing.
type MockProvider struct {
	Name_        string
	CompleteFunc func(ctx context.Context, req models.CompletionRequest) (string, error)

	mu       sync.Mutex
	requests []models.CompletionRequest
}

func (m *MockProvider) Name() string { return m.Name_ }

func (m *MockProvider) Complete(ctx context.Context, req models.CompletionRequest) (string, error) {
	m.mu.Lock()
	m.requests = append(m.requests, req)
	m.mu.Unlock()
	if m.CompleteFunc != nil {
		return m.CompleteFunc(ctx, req)
	}
	return "", nil
}

// Requests returns every request the provider received, in order.
func (m *MockProvider) Requests() []models.CompletionRequest {
	m.mu.Lock()
	defer m.mu.Unlock()
	return append([]models.CompletionRequest(nil), m.requests...)
}

// NewMockProvider returns a provider that always answers with raw.
func NewMockProvider(raw string) *MockProvider {
	return &MockProvider{
		Name_: "mock",
		CompleteFunc: func(context.Context, models.CompletionRequest) (string, error) {
			return raw, nil
		},
	}
}

// NewSequenceProvider answers with each response in turn, repeating the last one.
// A response that is an error is returned as the call's error.
func NewSequenceProvider(responses ...any) *MockProvider {
	var (
		mu sync.Mutex
		i  int
	)
	return &MockProvider{
		Name_: "mock-sequence",
		CompleteFunc: func(context.Context, models.CompletionRequest) (string, error) {
			mu.Lock()
			defer mu.Unlock()
			r := responses[min(i, len(responses)-1)]
			i++
			if err, ok := r.(error); ok {
				return "", err
			}
			return r.(string), nil
		},
	}
}

// NewFailingProvider returns a MockProvider that always returns the given error.
func NewFailingProvider(err error) *MockProvider {
	return &MockProvider{
		Name_: "mock-failing",
		CompleteFunc: func(context.Context, models.CompletionRequest) (string, error) {
			return "", err
		},
	}
}

// NewTimeoutProvider returns a MockProvider that blocks until context is cancelled.
func NewTimeoutProvider() *MockProvider {
	return &MockProvider{
		Name_: "mock-timeout",
		CompleteFunc: func(ctx context.Context, _ models.CompletionRequest) (string, error) {
			<-ctx.Done()
			return "", ai.ErrInferenceTimeout
		},
	}
}

// Compile-time check that MockProvider implements AIProvider.
var _ models.AIProvider = (*MockProvider)(nil)
