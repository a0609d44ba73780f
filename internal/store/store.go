package store

import (
	"context"
	"errors"
	"time"

	"github.com/google/uuid"
	"github.com/kiranshivaraju/mindalert/pkg/models"
)

var (
	ErrNotFound     = errors.New("resource not found")
	ErrDuplicateKey = errors.New("duplicate key violation")
	ErrAlreadySent  = errors.New("alert already sent")
)

// APIKeyStore persists operator API keys.
type APIKeyStore interface {
	GetAPIKeyByPrefix(ctx context.Context, prefix string) ([]*models.APIKey, error)
	UpdateAPIKeyLastUsed(ctx context.Context, id uuid.UUID) error
	CreateAPIKey(ctx context.Context, key *models.APIKey) error
	ListAPIKeys(ctx context.Context) ([]*models.APIKey, error)
	RevokeAPIKey(ctx context.Context, id uuid.UUID) error
}

// UserStore reads user profiles owned by the profile and onboarding services.
type UserStore interface {
	GetUserContext(ctx context.Context, userID uuid.UUID) (*models.UserContext, error)
}

// AudioStore persists uploaded recordings.
type AudioStore interface {
	CreateAudioRecord(ctx context.Context, rec *models.AudioRecord) error
	GetAudioRecord(ctx context.Context, id uuid.UUID, userID uuid.UUID) (*models.AudioRecord, error)
	SetAudioSubmission(ctx context.Context, audioID uuid.UUID, submissionID uuid.UUID) error
}

// SubmissionStore tracks pipeline runs.
type SubmissionStore interface {
	CreateSubmission(ctx context.Context, sub *models.Submission) error
	GetSubmission(ctx context.Context, id uuid.UUID, userID uuid.UUID) (*models.Submission, error)
	UpdateSubmission(ctx context.Context, id uuid.UUID, state models.SubmissionState, opts ...SubmissionUpdateOption) error
}

// AlertStore is the single source of truth for alert delivery state.
type AlertStore interface {
	CreateEmailAlert(ctx context.Context, alert *models.EmailAlert) error
	GetEmailAlert(ctx context.Context, id uuid.UUID) (*models.EmailAlert, error)
	ListEmailAlerts(ctx context.Context, filter AlertFilter) ([]*models.EmailAlert, int, error)
	DeleteEmailAlert(ctx context.Context, id uuid.UUID, userID uuid.UUID) error
	MarkAlertSent(ctx context.Context, id uuid.UUID, sentAt time.Time) error
	RecordAlertFailure(ctx context.Context, id uuid.UUID, failure AlertFailure) (*models.EmailAlert, error)
	DeferAlert(ctx context.Context, id uuid.UUID, until time.Time) error
	ListDueAlerts(ctx context.Context, now time.Time, limit int) ([]*models.EmailAlert, error)
	ListUnsentAlerts(ctx context.Context, userID uuid.UUID) ([]*models.EmailAlert, error)
	ListDeadAlerts(ctx context.Context, limit int) ([]*models.EmailAlert, error)
	AlertStats(ctx context.Context, userID uuid.UUID) (*models.AlertStats, error)
}

// Store is the data access interface. All database operations go through here.
type Store interface {
	Ping(ctx context.Context) error
	APIKeyStore
	UserStore
	AudioStore
	SubmissionStore
	AlertStore
}

// AlertFilter narrows ListEmailAlerts. A nil UserID lists across users.
type AlertFilter struct {
	UserID *uuid.UUID
	Type   models.AlertType
	Status models.AlertStatus
	Page   int
	Limit  int
}

// AlertFailure describes one failed delivery attempt.
// Counted attempts consume a retry; manual ones only record the error.
type AlertFailure struct {
	Message       string
	Counted       bool
	NextAttemptAt time.Time
}

type submissionUpdateParams struct {
	Degraded      *bool
	Assessment    *models.RiskAssessment
	AlertsCreated *int
	ConfigGap     *bool
	ErrorMessage  *string
}

type SubmissionUpdateOption func(*submissionUpdateParams)

func WithDegraded() SubmissionUpdateOption {
	return func(p *submissionUpdateParams) {
		t := true
		p.Degraded = &t
	}
}

func WithAssessment(ra models.RiskAssessment) SubmissionUpdateOption {
	return func(p *submissionUpdateParams) {
		p.Assessment = &ra
	}
}

func WithAlertsCreated(n int) SubmissionUpdateOption {
	return func(p *submissionUpdateParams) {
		p.AlertsCreated = &n
	}
}

func WithConfigGap() SubmissionUpdateOption {
	return func(p *submissionUpdateParams) {
		t := true
		p.ConfigGap = &t
	}
}

func WithErrorMessage(msg string) SubmissionUpdateOption {
	return func(p *submissionUpdateParams) {
		p.ErrorMessage = &msg
	}
}

// ApplySubmissionUpdate applies an update to an in-memory submission the
// same way UpdateSubmission does in the database. It does not check the
// transition.
func ApplySubmissionUpdate(sub *models.Submission, state models.SubmissionState, opts ...SubmissionUpdateOption) {
	params := &submissionUpdateParams{}
	for _, opt := range opts {
		opt(params)
	}
	sub.State = state
	sub.UpdatedAt = time.Now().UTC()
	if params.Degraded != nil {
		sub.Degraded = *params.Degraded
	}
	if params.Assessment != nil {
		risk, urgency, source := params.Assessment.RiskLevel, params.Assessment.UrgencyLevel, params.Assessment.Source
		sub.RiskLevel, sub.UrgencyLevel, sub.Source = &risk, &urgency, &source
	}
	if params.AlertsCreated != nil {
		sub.AlertsCreated = *params.AlertsCreated
	}
	if params.ConfigGap != nil {
		sub.ConfigGap = *params.ConfigGap
	}
	if params.ErrorMessage != nil {
		msg := *params.ErrorMessage
		sub.ErrorMessage = &msg
	}
}
