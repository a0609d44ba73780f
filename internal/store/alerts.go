package store

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/google/uuid"
	"github.com/jackc/pgx/v5"
	"github.com/kiranshivaraju/mindalert/pkg/models"
)

const alertColumns = `id, user_id, audio_id, submission_id, alert_type, recipient_email, recipient_type,
	subject, body, risk_level, urgency_level, analysis_data, transcription, transcription_confidence,
	sent_successfully, sent_at, error_message, retry_count, max_retries, next_attempt_at, created_at, updated_at`

func scanAlert(row scanner) (*models.EmailAlert, error) {
	var a models.EmailAlert
	err := row.Scan(&a.ID, &a.UserID, &a.AudioID, &a.SubmissionID, &a.AlertType, &a.RecipientEmail,
		&a.RecipientType, &a.Subject, &a.Body, &a.RiskLevel, &a.UrgencyLevel, &a.AnalysisData,
		&a.Transcription, &a.TranscriptionConfidence, &a.SentSuccessfully, &a.SentAt, &a.ErrorMessage,
		&a.RetryCount, &a.MaxRetries, &a.NextAttemptAt, &a.CreatedAt, &a.UpdatedAt)
	return &a, err
}

func collectAlerts(rows pgx.Rows) ([]*models.EmailAlert, error) {
	defer rows.Close()
	alerts := []*models.EmailAlert{}
	for rows.Next() {
		a, err := scanAlert(rows)
		if err != nil {
			return nil, fmt.Errorf("scan email alert: %w", err)
		}
		alerts = append(alerts, a)
	}
	return alerts, rows.Err()
}

// statusCondition maps a coarse status onto SQL over the delivery columns.
func statusCondition(status models.AlertStatus) (string, error) {
	switch status {
	case models.AlertStatusSent:
		return "sent_successfully", nil
	case models.AlertStatusFailed:
		return "NOT sent_successfully AND retry_count >= max_retries", nil
	case models.AlertStatusPending:
		return "NOT sent_successfully AND retry_count < max_retries", nil
	default:
		return "", fmt.Errorf("unknown alert status %q", status)
	}
}

func (s *PostgresStore) CreateEmailAlert(ctx context.Context, a *models.EmailAlert) error {
	if a.MaxRetries == 0 {
		a.MaxRetries = models.DefaultMaxRetries
	}
	if len(a.AnalysisData) == 0 {
		a.AnalysisData = []byte("{}")
	}
	_, err := s.pool.Exec(ctx,
		`INSERT INTO email_alerts (`+alertColumns+`)
		 VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9, $10, $11, $12, $13, $14, $15, $16, $17, $18, $19, $20, $21, $22)`,
		a.ID, a.UserID, a.AudioID, a.SubmissionID, a.AlertType, a.RecipientEmail, a.RecipientType,
		a.Subject, a.Body, a.RiskLevel, a.UrgencyLevel, a.AnalysisData, a.Transcription,
		a.TranscriptionConfidence, a.SentSuccessfully, a.SentAt, a.ErrorMessage, a.RetryCount,
		a.MaxRetries, a.NextAttemptAt, a.CreatedAt, a.UpdatedAt)
	if err != nil {
		if isDuplicateKeyError(err) {
			return ErrDuplicateKey
		}
		return fmt.Errorf("create email alert: %w", err)
	}
	return nil
}

func (s *PostgresStore) GetEmailAlert(ctx context.Context, id uuid.UUID) (*models.EmailAlert, error) {
	a, err := scanAlert(s.pool.QueryRow(ctx,
		`SELECT `+alertColumns+` FROM email_alerts WHERE id = $1`, id))
	if errors.Is(err, pgx.ErrNoRows) {
		return nil, ErrNotFound
	}
	if err != nil {
		return nil, fmt.Errorf("get email alert: %w", err)
	}
	return a, nil
}

func (s *PostgresStore) ListEmailAlerts(ctx context.Context, filter AlertFilter) ([]*models.EmailAlert, int, error) {
	conditions := []string{"TRUE"}
	var args []any
	argIdx := 1

	if filter.UserID != nil {
		conditions = append(conditions, fmt.Sprintf("user_id = $%d", argIdx))
		args = append(args, *filter.UserID)
		argIdx++
	}
	if filter.Type != "" {
		conditions = append(conditions, fmt.Sprintf("alert_type = $%d", argIdx))
		args = append(args, filter.Type)
		argIdx++
	}
	if filter.Status != "" {
		cond, err := statusCondition(filter.Status)
		if err != nil {
			return nil, 0, err
		}
		conditions = append(conditions, cond)
	}

	where := strings.Join(conditions, " AND ")

	var total int
	if err := s.pool.QueryRow(ctx, "SELECT COUNT(*) FROM email_alerts WHERE "+where, args...).Scan(&total); err != nil {
		return nil, 0, fmt.Errorf("count email alerts: %w", err)
	}

	limit := filter.Limit
	if limit <= 0 {
		limit = 20
	}
	if limit > 100 {
		limit = 100
	}
	page := filter.Page
	if page <= 0 {
		page = 1
	}
	offset := (page - 1) * limit

	dataQuery := fmt.Sprintf(
		`SELECT %s FROM email_alerts WHERE %s ORDER BY created_at DESC, id LIMIT $%d OFFSET $%d`,
		alertColumns, where, argIdx, argIdx+1)
	args = append(args, limit, offset)

	rows, err := s.pool.Query(ctx, dataQuery, args...)
	if err != nil {
		return nil, 0, fmt.Errorf("list email alerts: %w", err)
	}
	alerts, err := collectAlerts(rows)
	if err != nil {
		return nil, 0, err
	}
	return alerts, total, nil
}

func (s *PostgresStore) DeleteEmailAlert(ctx context.Context, id uuid.UUID, userID uuid.UUID) error {
	tag, err := s.pool.Exec(ctx, `DELETE FROM email_alerts WHERE id = $1 AND user_id = $2`, id, userID)
	if err != nil {
		return fmt.Errorf("delete email alert: %w", err)
	}
	if tag.RowsAffected() == 0 {
		return ErrNotFound
	}
	return nil
}

// MarkAlertSent records a successful delivery. The write is conditional so a
// second success for the same alert reports ErrAlreadySent instead of
// overwriting sent_at.
func (s *PostgresStore) MarkAlertSent(ctx context.Context, id uuid.UUID, sentAt time.Time) error {
	tag, err := s.pool.Exec(ctx,
		`UPDATE email_alerts
		 SET sent_successfully = TRUE, sent_at = $2, error_message = NULL, updated_at = NOW()
		 WHERE id = $1 AND NOT sent_successfully`, id, sentAt)
	if err != nil {
		return fmt.Errorf("mark alert sent: %w", err)
	}
	if tag.RowsAffected() == 0 {
		return s.missingOrSent(ctx, id)
	}
	return nil
}

// DeferAlert pushes next_attempt_at of an unsent alert out to until without
// consuming a retry.
func (s *PostgresStore) DeferAlert(ctx context.Context, id uuid.UUID, until time.Time) error {
	tag, err := s.pool.Exec(ctx,
		`UPDATE email_alerts SET next_attempt_at = $2, updated_at = NOW()
		 WHERE id = $1 AND NOT sent_successfully`, id, until)
	if err != nil {
		return fmt.Errorf("defer alert: %w", err)
	}
	if tag.RowsAffected() == 0 {
		return s.missingOrSent(ctx, id)
	}
	return nil
}

// RecordAlertFailure stores the error of a failed attempt and returns the
// updated alert. retry_count never exceeds max_retries.
func (s *PostgresStore) RecordAlertFailure(ctx context.Context, id uuid.UUID, failure AlertFailure) (*models.EmailAlert, error) {
	var row pgx.Row
	if failure.Counted {
		row = s.pool.QueryRow(ctx,
			`UPDATE email_alerts
			 SET error_message = $2, retry_count = LEAST(retry_count + 1, max_retries),
			     next_attempt_at = $3, updated_at = NOW()
			 WHERE id = $1 AND NOT sent_successfully
			 RETURNING `+alertColumns, id, failure.Message, failure.NextAttemptAt)
	} else {
		row = s.pool.QueryRow(ctx,
			`UPDATE email_alerts SET error_message = $2, updated_at = NOW()
			 WHERE id = $1 AND NOT sent_successfully
			 RETURNING `+alertColumns, id, failure.Message)
	}
	a, err := scanAlert(row)
	if errors.Is(err, pgx.ErrNoRows) {
		return nil, s.missingOrSent(ctx, id)
	}
	if err != nil {
		return nil, fmt.Errorf("record alert failure: %w", err)
	}
	return a, nil
}

func (s *PostgresStore) missingOrSent(ctx context.Context, id uuid.UUID) error {
	var sent bool
	err := s.pool.QueryRow(ctx, `SELECT sent_successfully FROM email_alerts WHERE id = $1`, id).Scan(&sent)
	if errors.Is(err, pgx.ErrNoRows) {
		return ErrNotFound
	}
	if err != nil {
		return fmt.Errorf("get alert delivery state: %w", err)
	}
	return ErrAlreadySent
}

// ListDueAlerts returns unsent alerts with retries left whose next attempt is due, oldest first.
func (s *PostgresStore) ListDueAlerts(ctx context.Context, now time.Time, limit int) ([]*models.EmailAlert, error) {
	rows, err := s.pool.Query(ctx,
		`SELECT `+alertColumns+` FROM email_alerts
		 WHERE NOT sent_successfully AND retry_count < max_retries AND next_attempt_at <= $1
		 ORDER BY next_attempt_at, created_at LIMIT $2`, now, limit)
	if err != nil {
		return nil, fmt.Errorf("list due alerts: %w", err)
	}
	return collectAlerts(rows)
}

// ListUnsentAlerts returns every unsent alert of a user, dead ones included.
func (s *PostgresStore) ListUnsentAlerts(ctx context.Context, userID uuid.UUID) ([]*models.EmailAlert, error) {
	rows, err := s.pool.Query(ctx,
		`SELECT `+alertColumns+` FROM email_alerts
		 WHERE user_id = $1 AND NOT sent_successfully ORDER BY created_at`, userID)
	if err != nil {
		return nil, fmt.Errorf("list unsent alerts: %w", err)
	}
	return collectAlerts(rows)
}

func (s *PostgresStore) ListDeadAlerts(ctx context.Context, limit int) ([]*models.EmailAlert, error) {
	rows, err := s.pool.Query(ctx,
		`SELECT `+alertColumns+` FROM email_alerts
		 WHERE NOT sent_successfully AND retry_count >= max_retries
		 ORDER BY updated_at DESC LIMIT $1`, limit)
	if err != nil {
		return nil, fmt.Errorf("list dead alerts: %w", err)
	}
	return collectAlerts(rows)
}

func (s *PostgresStore) AlertStats(ctx context.Context, userID uuid.UUID) (*models.AlertStats, error) {
	stats := &models.AlertStats{ByType: map[models.AlertType]int{}}
	for _, t := range models.AlertTypes {
		stats.ByType[t] = 0
	}

	err := s.pool.QueryRow(ctx,
		`SELECT COUNT(*),
		        COUNT(*) FILTER (WHERE sent_successfully),
		        COUNT(*) FILTER (WHERE NOT sent_successfully AND retry_count >= max_retries),
		        COUNT(*) FILTER (WHERE NOT sent_successfully AND retry_count < max_retries)
		 FROM email_alerts WHERE user_id = $1`, userID,
	).Scan(&stats.Total, &stats.Sent, &stats.Failed, &stats.Pending)
	if err != nil {
		return nil, fmt.Errorf("count alert stats: %w", err)
	}

	rows, err := s.pool.Query(ctx,
		`SELECT alert_type, COUNT(*) FROM email_alerts WHERE user_id = $1 GROUP BY alert_type`, userID)
	if err != nil {
		return nil, fmt.Errorf("count alerts by type: %w", err)
	}
	defer rows.Close()
	for rows.Next() {
		var (
			t models.AlertType
			n int
		)
		if err := rows.Scan(&t, &n); err != nil {
			return nil, fmt.Errorf("scan alert type count: %w", err)
		}
		stats.ByType[t] = n
	}
	if err := rows.Err(); err != nil {
		return nil, err
	}

	err = s.pool.QueryRow(ctx,
		`SELECT COUNT(*) FROM submissions WHERE user_id = $1 AND config_gap`, userID,
	).Scan(&stats.ConfigGaps)
	if err != nil {
		return nil, fmt.Errorf("count config gaps: %w", err)
	}
	return stats, nil
}
