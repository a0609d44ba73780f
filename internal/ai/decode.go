package ai

import (
	"encoding/json"
	"errors"
	"fmt"
	"strings"

	"github.com/go-playground/validator/v10"
	"github.com/kiranshivaraju/mindalert/pkg/models"
)

type analysisPayload struct {
	RiskLevel    string                     `json:"risk_level"    validate:"required,oneof=low medium high critical"`
	UrgencyLevel string                     `json:"urgency_level" validate:"required,oneof=low medium high immediate"`
	Indicators   map[string]json.RawMessage `json:"indicators"    validate:"required"`
}

var validate = validator.New(validator.WithRequiredStructEnabled())

// parseAssessment decodes and validates raw model output.
func parseAssessment(raw string, source models.AnalysisSource) (models.RiskAssessment, error) {
	var p analysisPayload
	if err := decodeJSON(raw, &p); err != nil {
		return models.RiskAssessment{}, err
	}
	p.RiskLevel = strings.ToLower(strings.TrimSpace(p.RiskLevel))
	p.UrgencyLevel = strings.ToLower(strings.TrimSpace(p.UrgencyLevel))
	if err := validate.Struct(p); err != nil {
		return models.RiskAssessment{}, fmt.Errorf("schema: %w", err)
	}

	indicators := make(map[string]string, len(p.Indicators))
	for k, v := range p.Indicators {
		var s string
		if err := json.Unmarshal(v, &s); err == nil {
			indicators[k] = s
			continue
		}
		indicators[k] = string(v)
	}

	return models.RiskAssessment{
		RiskLevel:    models.RiskLevel(p.RiskLevel),
		UrgencyLevel: models.UrgencyLevel(p.UrgencyLevel),
		Indicators:   indicators,
		Source:       source,
	}, nil
}

// decodeJSON unmarshals content, falling back to stripping code fences or
// surrounding prose when the model did not return bare JSON.
func decodeJSON(content string, target any) error {
	trimmed := strings.TrimSpace(content)
	if trimmed == "" {
		return errors.New("empty payload")
	}
	directErr := json.Unmarshal([]byte(trimmed), target)
	if directErr == nil {
		return nil
	}

	sanitized := extractObject(trimmed)
	if sanitized == "" || sanitized == trimmed {
		return fmt.Errorf("%w (payload snippet: %s)", directErr, snippet(trimmed))
	}
	if err := json.Unmarshal([]byte(sanitized), target); err != nil {
		return fmt.Errorf("%w (sanitized payload snippet: %s)", err, snippet(sanitized))
	}
	return nil
}

func extractObject(content string) string {
	s := content
	if strings.HasPrefix(s, "```") {
		s = strings.TrimPrefix(s, "```")
		if nl := strings.IndexByte(s, '\n'); nl >= 0 {
			s = s[nl+1:]
		}
		s = strings.TrimSuffix(strings.TrimSpace(s), "```")
	}
	start := strings.Index(s, "{")
	end := strings.LastIndex(s, "}")
	if start < 0 || end <= start {
		return ""
	}
	return strings.TrimSpace(s[start : end+1])
}

func snippet(s string) string {
	const max = 120
	if len(s) <= max {
		return s
	}
	return s[:max] + "..."
}
