// Package alert persists alerts and drives their email delivery.
package alert

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"log/slog"
	"time"
	"unicode/utf8"

	"github.com/google/uuid"

	"github.com/kiranshivaraju/mindalert/internal/cache"
	"github.com/kiranshivaraju/mindalert/internal/config"
	"github.com/kiranshivaraju/mindalert/internal/mailer"
	"github.com/kiranshivaraju/mindalert/internal/metrics"
	"github.com/kiranshivaraju/mindalert/internal/store"
	"github.com/kiranshivaraju/mindalert/pkg/models"
)

// Outcome is the result of one delivery attempt.
type Outcome string

const (
	OutcomeSent        Outcome = "sent"
	OutcomeFailed      Outcome = "failed"
	OutcomeDead        Outcome = "dead"
	OutcomeAlreadySent Outcome = "already_sent"
	OutcomeExhausted   Outcome = "exhausted"
	OutcomeNotDue      Outcome = "not_due"
	OutcomeInFlight    Outcome = "in_flight"
	OutcomeUnrecorded  Outcome = "sent_unrecorded"
)

const maxErrorMessageLen = 1000

// Manager owns the email_alerts lifecycle. The table is the only place
// retry state lives; the lock only keeps two attempts from overlapping.
type Manager struct {
	store     store.AlertStore
	transport mailer.Transport
	locker    cache.Locker
	cfg       config.DeliveryConfig
	now       func() time.Time
}

// NewManager creates a delivery manager.
func NewManager(st store.AlertStore, tr mailer.Transport, locker cache.Locker, cfg config.DeliveryConfig) *Manager {
	if cfg.MaxRetries <= 0 {
		cfg.MaxRetries = models.DefaultMaxRetries
	}
	if cfg.BackoffBase <= 0 {
		cfg.BackoffBase = 30 * time.Second
	}
	if cfg.BackoffMax < cfg.BackoffBase {
		cfg.BackoffMax = 30 * time.Minute
	}
	if cfg.LockTTL <= 0 {
		cfg.LockTTL = 2 * time.Minute
	}
	return &Manager{store: st, transport: tr, locker: locker, cfg: cfg, now: time.Now}
}

// Create renders and persists an alert. The alert is due immediately.
func (m *Manager) Create(ctx context.Context, intent models.AlertIntent) (*models.EmailAlert, error) {
	subject, body, err := render(intent)
	if err != nil {
		return nil, err
	}

	analysis, err := json.Marshal(analysisRecord{
		RiskLevel:    intent.Assessment.RiskLevel,
		UrgencyLevel: intent.Assessment.UrgencyLevel,
		Indicators:   intent.Assessment.Indicators,
		Source:       intent.Assessment.Source,
		Degraded:     intent.Degraded,
	})
	if err != nil {
		return nil, fmt.Errorf("encoding analysis data: %w", err)
	}

	now := m.now().UTC()
	pending := models.PendingDeliveryMessage
	a := &models.EmailAlert{
		ID:                      uuid.New(),
		UserID:                  intent.UserID,
		AudioID:                 intent.AudioID,
		SubmissionID:            intent.SubmissionID,
		AlertType:               intent.Type,
		RecipientEmail:          intent.RecipientEmail,
		RecipientType:           intent.RecipientType,
		Subject:                 subject,
		Body:                    body,
		RiskLevel:               intent.RiskLevel,
		UrgencyLevel:            intent.UrgencyLevel,
		AnalysisData:            analysis,
		Transcription:           intent.Transcription,
		TranscriptionConfidence: intent.TranscriptionConfidence,
		ErrorMessage:            &pending,
		MaxRetries:              m.cfg.MaxRetries,
		NextAttemptAt:           now,
		CreatedAt:               now,
		UpdatedAt:               now,
	}
	if err := m.store.CreateEmailAlert(ctx, a); err != nil {
		return nil, fmt.Errorf("creating alert: %w", err)
	}

	metrics.AlertsCreated.WithLabelValues(string(a.AlertType)).Inc()
	slog.Info("alert created",
		"alert_id", a.ID,
		"user_id", a.UserID,
		"alert_type", a.AlertType,
		"recipient_type", a.RecipientType,
	)
	return a, nil
}

type analysisRecord struct {
	RiskLevel    models.RiskLevel      `json:"risk_level"`
	UrgencyLevel models.UrgencyLevel   `json:"urgency_level"`
	Indicators   map[string]string     `json:"indicators"`
	Source       models.AnalysisSource `json:"source"`
	Degraded     bool                  `json:"degraded"`
}

// AttemptDelivery makes one automatic delivery attempt. Failures consume a
// retry and push next_attempt_at out by the backoff. The returned error is
// only set when the attempt could not be made or recorded; a failed send is
// reported through the outcome.
func (m *Manager) AttemptDelivery(ctx context.Context, alertID uuid.UUID) (Outcome, error) {
	return m.attempt(ctx, alertID, false)
}

func (m *Manager) attempt(ctx context.Context, alertID uuid.UUID, manual bool) (Outcome, error) {
	release, ok, err := m.locker.Acquire(ctx, cache.AlertDeliveryLockKey(alertID), m.cfg.LockTTL)
	if err != nil {
		return "", fmt.Errorf("acquiring delivery lock: %w", err)
	}
	if !ok {
		m.record(OutcomeInFlight)
		return OutcomeInFlight, nil
	}
	defer func() {
		if err := release(context.WithoutCancel(ctx)); err != nil {
			slog.Warn("releasing delivery lock failed", "alert_id", alertID, "error", err)
		}
	}()

	a, err := m.store.GetEmailAlert(ctx, alertID)
	if err != nil {
		return "", err
	}

	now := m.now().UTC()
	switch {
	case a.SentSuccessfully:
		return m.record(OutcomeAlreadySent), nil
	case manual:
		// manual attempts ignore backoff and exhaustion
	case a.Dead():
		return m.record(OutcomeExhausted), nil
	case a.NextAttemptAt.After(now):
		return m.record(OutcomeNotDue), nil
	}

	sendErr := m.transport.Send(ctx, mailer.Message{
		To:      a.RecipientEmail,
		Subject: a.Subject,
		Body:    a.Body,
	})
	if sendErr == nil {
		err := m.store.MarkAlertSent(ctx, a.ID, m.now().UTC())
		if errors.Is(err, store.ErrAlreadySent) {
			return m.record(OutcomeAlreadySent), nil
		}
		if err != nil {
			// the relay already has the message
			slog.Error("alert delivered but not recorded", "alert_id", a.ID, "user_id", a.UserID, "error", err)
			if derr := m.store.DeferAlert(context.WithoutCancel(ctx), a.ID, now.Add(m.cfg.BackoffMax)); derr != nil {
				slog.Error("deferring unrecorded alert failed", "alert_id", a.ID, "error", derr)
			}
			return m.record(OutcomeUnrecorded), nil
		}
		slog.Info("alert delivered", "alert_id", a.ID, "user_id", a.UserID, "manual", manual)
		return m.record(OutcomeSent), nil
	}

	failure := store.AlertFailure{Message: truncate(sendErr.Error(), maxErrorMessageLen)}
	if !manual {
		failure.Counted = true
		failure.NextAttemptAt = now.Add(m.Backoff(a.RetryCount + 1))
	}
	updated, err := m.store.RecordAlertFailure(ctx, a.ID, failure)
	if errors.Is(err, store.ErrAlreadySent) {
		return m.record(OutcomeAlreadySent), nil
	}
	if err != nil {
		return "", fmt.Errorf("recording delivery failure: %w", err)
	}

	outcome := OutcomeFailed
	if updated.Dead() && !manual {
		outcome = OutcomeDead
	}
	slog.Warn("alert delivery failed",
		"alert_id", a.ID,
		"user_id", a.UserID,
		"retry_count", updated.RetryCount,
		"max_retries", updated.MaxRetries,
		"manual", manual,
		"outcome", outcome,
		"error", sendErr,
	)
	return m.record(outcome), nil
}

func (m *Manager) record(o Outcome) Outcome {
	metrics.DeliveryAttempts.WithLabelValues(string(o)).Inc()
	return o
}

// Backoff returns the wait before the next automatic attempt once an alert
// has failed retryCount times: base doubling per failure, capped.
func (m *Manager) Backoff(retryCount int) time.Duration {
	if retryCount < 1 {
		retryCount = 1
	}
	d := m.cfg.BackoffBase
	for i := 1; i < retryCount; i++ {
		d *= 2
		if d >= m.cfg.BackoffMax {
			return m.cfg.BackoffMax
		}
	}
	return d
}

// RetryResult is the outcome for one alert in a manual retry.
type RetryResult struct {
	AlertID uuid.UUID `json:"alert_id"`
	Outcome Outcome   `json:"outcome"`
}

// RetryReport summarizes a manual retry run.
type RetryReport struct {
	Attempted int           `json:"attempted"`
	Sent      int           `json:"sent"`
	Failed    int           `json:"failed"`
	Skipped   int           `json:"skipped"`
	Results   []RetryResult `json:"results"`
}

func (r *RetryReport) add(id uuid.UUID, o Outcome) {
	r.Results = append(r.Results, RetryResult{AlertID: id, Outcome: o})
	switch o {
	case OutcomeSent:
		r.Attempted++
		r.Sent++
	case OutcomeFailed, OutcomeDead:
		r.Attempted++
		r.Failed++
	default:
		r.Skipped++
	}
}

// RetryFailed re-attempts the user's unsent alerts, or just alertID when
// given, ignoring backoff and retry exhaustion. Manual attempts never change
// retry_count.
func (m *Manager) RetryFailed(ctx context.Context, userID uuid.UUID, alertID *uuid.UUID) (RetryReport, error) {
	report := RetryReport{Results: []RetryResult{}}

	var ids []uuid.UUID
	if alertID != nil {
		a, err := m.Get(ctx, *alertID, userID)
		if err != nil {
			return report, err
		}
		if a.SentSuccessfully {
			report.add(a.ID, OutcomeAlreadySent)
			return report, nil
		}
		ids = []uuid.UUID{a.ID}
	} else {
		unsent, err := m.store.ListUnsentAlerts(ctx, userID)
		if err != nil {
			return report, fmt.Errorf("listing unsent alerts: %w", err)
		}
		for _, a := range unsent {
			ids = append(ids, a.ID)
		}
	}

	for _, id := range ids {
		o, err := m.attempt(ctx, id, true)
		if err != nil {
			return report, err
		}
		report.add(id, o)
	}

	slog.Info("manual retry finished",
		"user_id", userID,
		"attempted", report.Attempted,
		"sent", report.Sent,
		"failed", report.Failed,
	)
	return report, nil
}

// RetryAlert is the operator variant of RetryFailed for a single alert
// regardless of owner.
func (m *Manager) RetryAlert(ctx context.Context, alertID uuid.UUID) (Outcome, error) {
	return m.attempt(ctx, alertID, true)
}

// Get returns an alert owned by userID. Alerts belonging to someone else
// are reported as not found.
func (m *Manager) Get(ctx context.Context, alertID, userID uuid.UUID) (*models.EmailAlert, error) {
	a, err := m.store.GetEmailAlert(ctx, alertID)
	if err != nil {
		return nil, err
	}
	if a.UserID != userID {
		return nil, store.ErrNotFound
	}
	return a, nil
}

func (m *Manager) List(ctx context.Context, filter store.AlertFilter) ([]*models.EmailAlert, int, error) {
	return m.store.ListEmailAlerts(ctx, filter)
}

func (m *Manager) Delete(ctx context.Context, alertID, userID uuid.UUID) error {
	return m.store.DeleteEmailAlert(ctx, alertID, userID)
}

// Dead lists alerts that exhausted their automatic retries.
func (m *Manager) Dead(ctx context.Context, limit int) ([]*models.EmailAlert, error) {
	return m.store.ListDeadAlerts(ctx, limit)
}

func (m *Manager) Stats(ctx context.Context, userID uuid.UUID) (models.AlertStats, error) {
	stats, err := m.store.AlertStats(ctx, userID)
	if err != nil {
		return models.AlertStats{}, err
	}
	return *stats, nil
}

// Types lists the alert types the service can produce.
func Types() []models.AlertType {
	return append([]models.AlertType(nil), models.AlertTypes...)
}

// truncate cuts s to at most n bytes on a rune boundary.
func truncate(s string, n int) string {
	if len(s) <= n {
		return s
	}
	for n > 0 && !utf8.RuneStart(s[n]) {
		n--
	}
	return s[:n]
}
