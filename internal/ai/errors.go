package ai

import (
	"errors"

	"github.com/kiranshivaraju/mindalert/pkg/models"
)

var (
	ErrProviderUnavailable = models.ErrProviderUnavailable
	ErrInferenceTimeout    = models.ErrInferenceTimeout
	ErrInvalidResponse     = models.ErrInvalidResponse

	// ErrMalformedAnalysis is returned when the model output still fails the
	// schema after a retry. Callers fall back to models.DefaultAssessment.
	ErrMalformedAnalysis = errors.New("malformed risk analysis")
	ErrEmptyInput        = errors.New("nothing to analyze")
)

// Transient reports whether err may clear up on another attempt.
func Transient(err error) bool {
	return errors.Is(err, ErrProviderUnavailable) || errors.Is(err, ErrInferenceTimeout)
}
