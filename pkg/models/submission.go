package models

import (
	"time"

	"github.com/google/uuid"
)

type SubmissionState string

const (
	StateIngested      SubmissionState = "ingested"
	StateTranscribing  SubmissionState = "transcribing"
	StateAnalyzing     SubmissionState = "analyzing"
	StateDeciding      SubmissionState = "deciding"
	StateAlertsCreated SubmissionState = "alerts_created"
	StateDone          SubmissionState = "done"
)

// TriggerType says what started a pipeline run.
type TriggerType string

const (
	TriggerLiveAudio  TriggerType = "live_audio"
	TriggerOnboarding TriggerType = "onboarding_analysis"
)

// Trigger is the decision-policy input describing how a run got here.
// Degraded is set when transcription or analysis failed along the way.
type Trigger struct {
	Type     TriggerType
	Degraded bool
}

// Submission tracks one pipeline run through its state machine.
type Submission struct {
	ID            uuid.UUID       `db:"id"             json:"id"`
	UserID        uuid.UUID       `db:"user_id"        json:"user_id"`
	AudioID       *uuid.UUID      `db:"audio_id"       json:"audio_id,omitempty"`
	Trigger       TriggerType     `db:"trigger"        json:"trigger"`
	State         SubmissionState `db:"state"          json:"state"`
	Degraded      bool            `db:"degraded"       json:"degraded"`
	RiskLevel     *RiskLevel      `db:"risk_level"     json:"risk_level,omitempty"`
	UrgencyLevel  *UrgencyLevel   `db:"urgency_level"  json:"urgency_level,omitempty"`
	Source        *AnalysisSource `db:"source"         json:"source,omitempty"`
	AlertsCreated int             `db:"alerts_created" json:"alerts_created"`
	ConfigGap     bool            `db:"config_gap"     json:"config_gap"`
	ErrorMessage  *string         `db:"error_message"  json:"error_message,omitempty"`
	CreatedAt     time.Time       `db:"created_at"     json:"created_at"`
	UpdatedAt     time.Time       `db:"updated_at"     json:"updated_at"`
}
