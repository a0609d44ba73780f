package store

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/google/uuid"
	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgconn"
	"github.com/jackc/pgx/v5/pgxpool"
	"github.com/kiranshivaraju/mindalert/pkg/models"
)

// PostgresStore implements the Store interface using pgx/v5.
type PostgresStore struct {
	pool *pgxpool.Pool
}

// NewPostgresStore creates a new PostgresStore.
func NewPostgresStore(pool *pgxpool.Pool) *PostgresStore {
	return &PostgresStore{pool: pool}
}

// Ping checks database connectivity.
func (s *PostgresStore) Ping(ctx context.Context) error {
	return s.pool.Ping(ctx)
}

// scanner is satisfied by pgx.Row and pgx.Rows.
type scanner interface {
	Scan(dest ...any) error
}

// --- API Keys ---

const apiKeyColumns = `id, name, key_hash, key_prefix, scopes, last_used_at, deleted_at, created_at, updated_at`

func scanAPIKey(row scanner) (*models.APIKey, error) {
	var k models.APIKey
	err := row.Scan(&k.ID, &k.Name, &k.KeyHash, &k.KeyPrefix, &k.Scopes,
		&k.LastUsedAt, &k.DeletedAt, &k.CreatedAt, &k.UpdatedAt)
	return &k, err
}

func (s *PostgresStore) GetAPIKeyByPrefix(ctx context.Context, prefix string) ([]*models.APIKey, error) {
	rows, err := s.pool.Query(ctx,
		`SELECT `+apiKeyColumns+` FROM api_keys WHERE key_prefix = $1 AND deleted_at IS NULL`, prefix)
	if err != nil {
		return nil, fmt.Errorf("get api key by prefix: %w", err)
	}
	defer rows.Close()

	var keys []*models.APIKey
	for rows.Next() {
		k, err := scanAPIKey(rows)
		if err != nil {
			return nil, fmt.Errorf("scan api key: %w", err)
		}
		keys = append(keys, k)
	}
	return keys, rows.Err()
}

func (s *PostgresStore) UpdateAPIKeyLastUsed(ctx context.Context, id uuid.UUID) error {
	_, err := s.pool.Exec(ctx,
		`UPDATE api_keys SET last_used_at = NOW(), updated_at = NOW() WHERE id = $1`, id)
	if err != nil {
		return fmt.Errorf("update api key last used: %w", err)
	}
	return nil
}

func (s *PostgresStore) CreateAPIKey(ctx context.Context, key *models.APIKey) error {
	_, err := s.pool.Exec(ctx,
		`INSERT INTO api_keys (id, name, key_hash, key_prefix, scopes, created_at, updated_at)
		 VALUES ($1, $2, $3, $4, $5, $6, $7)`,
		key.ID, key.Name, key.KeyHash, key.KeyPrefix, key.Scopes, key.CreatedAt, key.UpdatedAt)
	if err != nil {
		if isDuplicateKeyError(err) {
			return ErrDuplicateKey
		}
		return fmt.Errorf("create api key: %w", err)
	}
	return nil
}

func (s *PostgresStore) ListAPIKeys(ctx context.Context) ([]*models.APIKey, error) {
	rows, err := s.pool.Query(ctx,
		`SELECT `+apiKeyColumns+` FROM api_keys WHERE deleted_at IS NULL ORDER BY created_at DESC`)
	if err != nil {
		return nil, fmt.Errorf("list api keys: %w", err)
	}
	defer rows.Close()

	var keys []*models.APIKey
	for rows.Next() {
		k, err := scanAPIKey(rows)
		if err != nil {
			return nil, fmt.Errorf("scan api key: %w", err)
		}
		keys = append(keys, k)
	}
	return keys, rows.Err()
}

func (s *PostgresStore) RevokeAPIKey(ctx context.Context, id uuid.UUID) error {
	tag, err := s.pool.Exec(ctx,
		`UPDATE api_keys SET deleted_at = NOW(), updated_at = NOW()
		 WHERE id = $1 AND deleted_at IS NULL`, id)
	if err != nil {
		return fmt.Errorf("revoke api key: %w", err)
	}
	if tag.RowsAffected() == 0 {
		return ErrNotFound
	}
	return nil
}

// --- Users ---

func (s *PostgresStore) GetUserContext(ctx context.Context, userID uuid.UUID) (*models.UserContext, error) {
	var (
		u                   models.UserContext
		carePerson, contact *string
	)
	err := s.pool.QueryRow(ctx,
		`SELECT user_id, display_name, care_person_email, emergency_contact_email, onboarding_answers
		 FROM user_profiles WHERE user_id = $1`, userID,
	).Scan(&u.UserID, &u.DisplayName, &carePerson, &contact, &u.OnboardingAnswers)
	if errors.Is(err, pgx.ErrNoRows) {
		return nil, ErrNotFound
	}
	if err != nil {
		return nil, fmt.Errorf("get user context: %w", err)
	}
	if carePerson != nil {
		u.CarePersonEmail = *carePerson
	}
	if contact != nil {
		u.EmergencyContactEmail = *contact
	}
	return &u, nil
}

// --- Audio ---

func (s *PostgresStore) CreateAudioRecord(ctx context.Context, rec *models.AudioRecord) error {
	_, err := s.pool.Exec(ctx,
		`INSERT INTO audio_records (id, user_id, storage_path, format, duration_secs, file_size, description, mood_rating, created_at)
		 VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9)`,
		rec.ID, rec.UserID, rec.StoragePath, rec.Format, rec.DurationSecs, rec.FileSize,
		rec.Description, rec.MoodRating, rec.CreatedAt)
	if err != nil {
		if isDuplicateKeyError(err) {
			return ErrDuplicateKey
		}
		return fmt.Errorf("create audio record: %w", err)
	}
	return nil
}

func (s *PostgresStore) GetAudioRecord(ctx context.Context, id uuid.UUID, userID uuid.UUID) (*models.AudioRecord, error) {
	var a models.AudioRecord
	err := s.pool.QueryRow(ctx,
		`SELECT id, user_id, storage_path, format, duration_secs, file_size, description, mood_rating, submission_id, created_at
		 FROM audio_records WHERE id = $1 AND user_id = $2`, id, userID,
	).Scan(&a.ID, &a.UserID, &a.StoragePath, &a.Format, &a.DurationSecs, &a.FileSize,
		&a.Description, &a.MoodRating, &a.SubmissionID, &a.CreatedAt)
	if errors.Is(err, pgx.ErrNoRows) {
		return nil, ErrNotFound
	}
	if err != nil {
		return nil, fmt.Errorf("get audio record: %w", err)
	}
	return &a, nil
}

func (s *PostgresStore) SetAudioSubmission(ctx context.Context, audioID uuid.UUID, submissionID uuid.UUID) error {
	tag, err := s.pool.Exec(ctx,
		`UPDATE audio_records SET submission_id = $2 WHERE id = $1`, audioID, submissionID)
	if err != nil {
		return fmt.Errorf("set audio submission: %w", err)
	}
	if tag.RowsAffected() == 0 {
		return ErrNotFound
	}
	return nil
}

// --- Submissions ---

const submissionColumns = `id, user_id, audio_id, trigger, state, degraded, risk_level, urgency_level, source,
	alerts_created, config_gap, error_message, created_at, updated_at`

func (s *PostgresStore) CreateSubmission(ctx context.Context, sub *models.Submission) error {
	_, err := s.pool.Exec(ctx,
		`INSERT INTO submissions (id, user_id, audio_id, trigger, state, degraded, created_at, updated_at)
		 VALUES ($1, $2, $3, $4, $5, $6, $7, $8)`,
		sub.ID, sub.UserID, sub.AudioID, sub.Trigger, sub.State, sub.Degraded, sub.CreatedAt, sub.UpdatedAt)
	if err != nil {
		if isDuplicateKeyError(err) {
			return ErrDuplicateKey
		}
		return fmt.Errorf("create submission: %w", err)
	}
	return nil
}

func (s *PostgresStore) GetSubmission(ctx context.Context, id uuid.UUID, userID uuid.UUID) (*models.Submission, error) {
	var sub models.Submission
	err := s.pool.QueryRow(ctx,
		`SELECT `+submissionColumns+` FROM submissions WHERE id = $1 AND user_id = $2`, id, userID,
	).Scan(&sub.ID, &sub.UserID, &sub.AudioID, &sub.Trigger, &sub.State, &sub.Degraded,
		&sub.RiskLevel, &sub.UrgencyLevel, &sub.Source, &sub.AlertsCreated, &sub.ConfigGap,
		&sub.ErrorMessage, &sub.CreatedAt, &sub.UpdatedAt)
	if errors.Is(err, pgx.ErrNoRows) {
		return nil, ErrNotFound
	}
	if err != nil {
		return nil, fmt.Errorf("get submission: %w", err)
	}
	return &sub, nil
}

var stateRank = map[models.SubmissionState]int{
	models.StateIngested:      0,
	models.StateTranscribing:  1,
	models.StateAnalyzing:     2,
	models.StateDeciding:      3,
	models.StateAlertsCreated: 4,
	models.StateDone:          5,
}

// UpdateSubmission moves a submission forward. Stages may be skipped but
// never revisited, and a done submission is final.
func (s *PostgresStore) UpdateSubmission(ctx context.Context, id uuid.UUID, state models.SubmissionState, opts ...SubmissionUpdateOption) error {
	params := &submissionUpdateParams{}
	for _, opt := range opts {
		opt(params)
	}

	next, ok := stateRank[state]
	if !ok {
		return fmt.Errorf("unknown submission state %q", state)
	}

	tx, err := s.pool.Begin(ctx)
	if err != nil {
		return fmt.Errorf("begin submission update: %w", err)
	}
	defer tx.Rollback(ctx) //nolint:errcheck

	var current models.SubmissionState
	err = tx.QueryRow(ctx, `SELECT state FROM submissions WHERE id = $1 FOR UPDATE`, id).Scan(&current)
	if errors.Is(err, pgx.ErrNoRows) {
		return ErrNotFound
	}
	if err != nil {
		return fmt.Errorf("get submission state: %w", err)
	}
	if current == models.StateDone || next < stateRank[current] {
		return fmt.Errorf("invalid submission state transition: %s -> %s", current, state)
	}

	query := `UPDATE submissions SET state = $2, updated_at = $3`
	args := []any{id, state, time.Now().UTC()}
	argIdx := 4

	if params.Degraded != nil {
		query += fmt.Sprintf(", degraded = $%d", argIdx)
		args = append(args, *params.Degraded)
		argIdx++
	}
	if params.Assessment != nil {
		query += fmt.Sprintf(", risk_level = $%d, urgency_level = $%d, source = $%d", argIdx, argIdx+1, argIdx+2)
		args = append(args, params.Assessment.RiskLevel, params.Assessment.UrgencyLevel, params.Assessment.Source)
		argIdx += 3
	}
	if params.AlertsCreated != nil {
		query += fmt.Sprintf(", alerts_created = $%d", argIdx)
		args = append(args, *params.AlertsCreated)
		argIdx++
	}
	if params.ConfigGap != nil {
		query += fmt.Sprintf(", config_gap = $%d", argIdx)
		args = append(args, *params.ConfigGap)
		argIdx++
	}
	if params.ErrorMessage != nil {
		query += fmt.Sprintf(", error_message = $%d", argIdx)
		args = append(args, *params.ErrorMessage)
	}
	query += " WHERE id = $1"

	if _, err := tx.Exec(ctx, query, args...); err != nil {
		return fmt.Errorf("update submission: %w", err)
	}
	if err := tx.Commit(ctx); err != nil {
		return fmt.Errorf("commit submission update: %w", err)
	}
	return nil
}

func isDuplicateKeyError(err error) bool {
	var pgErr *pgconn.PgError
	return errors.As(err, &pgErr) && pgErr.Code == "23505"
}
