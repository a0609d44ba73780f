package models

type RiskLevel string

const (
	RiskLow      RiskLevel = "low"
	RiskMedium   RiskLevel = "medium"
	RiskHigh     RiskLevel = "high"
	RiskCritical RiskLevel = "critical"
)

type UrgencyLevel string

const (
	UrgencyLow       UrgencyLevel = "low"
	UrgencyMedium    UrgencyLevel = "medium"
	UrgencyHigh      UrgencyLevel = "high"
	UrgencyImmediate UrgencyLevel = "immediate"
)

// AnalysisSource records which input produced a RiskAssessment.
type AnalysisSource string

const (
	SourceAudio                 AnalysisSource = "audio"
	SourceQuestionnaireFallback AnalysisSource = "questionnaire_fallback"
)

// RiskAssessment is the structured output of the risk analysis engine.
type RiskAssessment struct {
	RiskLevel    RiskLevel         `json:"risk_level"`
	UrgencyLevel UrgencyLevel      `json:"urgency_level"`
	Indicators   map[string]string `json:"indicators"`
	Source       AnalysisSource    `json:"source"`
}

// DefaultAssessment is the conservative assessment used when analysis
// could not be computed.
func DefaultAssessment(source AnalysisSource) RiskAssessment {
	return RiskAssessment{
		RiskLevel:    RiskMedium,
		UrgencyLevel: UrgencyMedium,
		Indicators:   map[string]string{"analysis": "analysis unavailable"},
		Source:       source,
	}
}

// AnalysisInput is either a transcript or a set of questionnaire answers.
// Exactly one of Transcript or Answers is meaningful, selected by Source.
type AnalysisInput struct {
	Source     AnalysisSource
	Transcript string
	Confidence int
	Answers    map[string]string
}
