package models

import (
	"encoding/json"
	"time"

	"github.com/google/uuid"
)

type AlertType string

const (
	AlertImmediateVoice     AlertType = "immediate_voice"
	AlertOnboardingAnalysis AlertType = "onboarding_analysis"
	AlertCriticalRisk       AlertType = "critical_risk"
	AlertDailySummary       AlertType = "daily_summary"
)

// AlertTypes lists every alert type in display order.
var AlertTypes = []AlertType{
	AlertImmediateVoice,
	AlertOnboardingAnalysis,
	AlertCriticalRisk,
	AlertDailySummary,
}

type RecipientType string

const (
	RecipientCarePerson       RecipientType = "care_person"
	RecipientEmergencyContact RecipientType = "emergency_contact"
)

const (
	DefaultMaxRetries = 3

	// PendingDeliveryMessage is stored on alerts that have not been attempted yet.
	PendingDeliveryMessage = "pending: delivery not yet attempted"
)

// AlertIntent is an in-memory decision to notify one recipient.
type AlertIntent struct {
	UserID                  uuid.UUID
	AudioID                 *uuid.UUID
	SubmissionID            *uuid.UUID
	Type                    AlertType
	RecipientEmail          string
	RecipientType           RecipientType
	UserDisplayName         string
	RiskLevel               *RiskLevel
	UrgencyLevel            *UrgencyLevel
	Assessment              RiskAssessment
	Transcription           *string
	TranscriptionConfidence *int
	Degraded                bool
}

// EmailAlert is the durable record of one notification and its delivery state.
type EmailAlert struct {
	ID                      uuid.UUID       `db:"id"                       json:"id"`
	UserID                  uuid.UUID       `db:"user_id"                  json:"user_id"`
	AudioID                 *uuid.UUID      `db:"audio_id"                 json:"audio_id,omitempty"`
	SubmissionID            *uuid.UUID      `db:"submission_id"            json:"submission_id,omitempty"`
	AlertType               AlertType       `db:"alert_type"               json:"alert_type"`
	RecipientEmail          string          `db:"recipient_email"          json:"recipient_email"`
	RecipientType           RecipientType   `db:"recipient_type"           json:"recipient_type"`
	Subject                 string          `db:"subject"                  json:"subject"`
	Body                    string          `db:"body"                     json:"body"`
	RiskLevel               *RiskLevel      `db:"risk_level"               json:"risk_level,omitempty"`
	UrgencyLevel            *UrgencyLevel   `db:"urgency_level"            json:"urgency_level,omitempty"`
	AnalysisData            json.RawMessage `db:"analysis_data"            json:"analysis_data"`
	Transcription           *string         `db:"transcription"            json:"transcription,omitempty"`
	TranscriptionConfidence *int            `db:"transcription_confidence" json:"transcription_confidence,omitempty"`
	SentSuccessfully        bool            `db:"sent_successfully"        json:"sent_successfully"`
	SentAt                  *time.Time      `db:"sent_at"                  json:"sent_at,omitempty"`
	ErrorMessage            *string         `db:"error_message"            json:"error_message,omitempty"`
	RetryCount              int             `db:"retry_count"              json:"retry_count"`
	MaxRetries              int             `db:"max_retries"              json:"max_retries"`
	NextAttemptAt           time.Time       `db:"next_attempt_at"          json:"next_attempt_at"`
	CreatedAt               time.Time       `db:"created_at"               json:"created_at"`
	UpdatedAt               time.Time       `db:"updated_at"               json:"updated_at"`
}

// Dead reports whether the alert exhausted its automatic retries without success.
func (a *EmailAlert) Dead() bool {
	return !a.SentSuccessfully && a.RetryCount >= a.MaxRetries
}

// Status returns the coarse delivery status used for filtering and stats.
func (a *EmailAlert) Status() AlertStatus {
	switch {
	case a.SentSuccessfully:
		return AlertStatusSent
	case a.Dead():
		return AlertStatusFailed
	default:
		return AlertStatusPending
	}
}

type AlertStatus string

const (
	AlertStatusSent    AlertStatus = "sent"
	AlertStatusFailed  AlertStatus = "failed"
	AlertStatusPending AlertStatus = "pending"
)

// AlertStats is the aggregate delivery view for one user.
// ConfigGaps counts pipeline runs that produced no alert because no
// recipient was configured; those never appear in Total.
type AlertStats struct {
	Total      int               `json:"total"`
	Sent       int               `json:"sent"`
	Failed     int               `json:"failed"`
	Pending    int               `json:"pending"`
	ByType     map[AlertType]int `json:"by_type"`
	ConfigGaps int               `json:"config_gaps"`
}
