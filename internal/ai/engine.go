package ai

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"time"

	"github.com/kiranshivaraju/mindalert/internal/metrics"
	"github.com/kiranshivaraju/mindalert/pkg/models"
)

const (
	defaultMaxAttempts = 2
	defaultRetryDelay  = 500 * time.Millisecond
	malformedRetries   = 1
)

// Engine turns a transcript or questionnaire answers into a RiskAssessment.
type Engine struct {
	provider    models.AIProvider
	maxAttempts int
	retryDelay  time.Duration
	sleep       func(ctx context.Context, d time.Duration) error
}

type EngineOption func(*Engine)

// WithMaxAttempts bounds attempts for transient provider failures.
func WithMaxAttempts(n int) EngineOption {
	return func(e *Engine) {
		if n > 0 {
			e.maxAttempts = n
		}
	}
}

// WithRetryDelay sets the first backoff delay; it doubles per attempt.
func WithRetryDelay(d time.Duration) EngineOption {
	return func(e *Engine) { e.retryDelay = d }
}

// WithSleeper overrides how retry sleeps are performed (useful for tests).
func WithSleeper(sleep func(ctx context.Context, d time.Duration) error) EngineOption {
	return func(e *Engine) { e.sleep = sleep }
}

func NewEngine(provider models.AIProvider, opts ...EngineOption) *Engine {
	e := &Engine{
		provider:    provider,
		maxAttempts: defaultMaxAttempts,
		retryDelay:  defaultRetryDelay,
		sleep:       sleepCtx,
	}
	for _, opt := range opts {
		opt(e)
	}
	return e
}

// Analyze returns the assessment for in. Transient provider failures are
// retried up to the attempt bound and then returned; output that fails the
// schema is retried once and then reported as ErrMalformedAnalysis.
func (e *Engine) Analyze(ctx context.Context, in models.AnalysisInput) (models.RiskAssessment, error) {
	req, err := buildRequest(in)
	if err != nil {
		return models.RiskAssessment{}, err
	}

	transientFailures, malformed := 0, 0
	for {
		raw, err := e.provider.Complete(ctx, req)
		if err != nil && !errors.Is(err, ErrInvalidResponse) {
			if ctx.Err() != nil {
				return models.RiskAssessment{}, ctx.Err()
			}
			if !Transient(err) {
				metrics.ProviderErrors.WithLabelValues(e.provider.Name(), "rejected").Inc()
				return models.RiskAssessment{}, fmt.Errorf("risk analysis: %w", err)
			}
			metrics.ProviderErrors.WithLabelValues(e.provider.Name(), "transient").Inc()
			transientFailures++
			if transientFailures >= e.maxAttempts {
				return models.RiskAssessment{}, fmt.Errorf("risk analysis failed after %d attempts: %w", transientFailures, err)
			}
			slog.Warn("risk analysis attempt failed", "provider", e.provider.Name(), "attempt", transientFailures, "error", err)
			if err := e.sleep(ctx, e.backoff(transientFailures)); err != nil {
				return models.RiskAssessment{}, err
			}
			continue
		}

		perr := err
		if perr == nil {
			var ra models.RiskAssessment
			if ra, perr = parseAssessment(raw, in.Source); perr == nil {
				return ra, nil
			}
		}
		metrics.ProviderErrors.WithLabelValues(e.provider.Name(), "malformed").Inc()
		if malformed >= malformedRetries {
			return models.RiskAssessment{}, fmt.Errorf("%w: %v", ErrMalformedAnalysis, perr)
		}
		malformed++
		slog.Warn("malformed risk analysis, retrying", "provider", e.provider.Name(), "error", perr)
	}
}

func (e *Engine) backoff(attempt int) time.Duration {
	d := e.retryDelay
	for i := 1; i < attempt; i++ {
		d *= 2
	}
	return d
}

func sleepCtx(ctx context.Context, d time.Duration) error {
	if d <= 0 {
		return ctx.Err()
	}
	timer := time.NewTimer(d)
	defer timer.Stop()
	select {
	case <-ctx.Done():
		return ctx.Err()
	case <-timer.C:
		return nil
	}
}
