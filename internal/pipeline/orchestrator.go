// Package pipeline runs a submission from stored audio (or onboarding
// answers) through transcription, risk analysis and alert creation.
package pipeline

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"strings"
	"sync"
	"time"

	"github.com/google/uuid"

	"github.com/kiranshivaraju/mindalert/internal/alert"
	"github.com/kiranshivaraju/mindalert/internal/cache"
	"github.com/kiranshivaraju/mindalert/internal/config"
	"github.com/kiranshivaraju/mindalert/internal/intake"
	"github.com/kiranshivaraju/mindalert/internal/metrics"
	"github.com/kiranshivaraju/mindalert/internal/policy"
	"github.com/kiranshivaraju/mindalert/internal/store"
	"github.com/kiranshivaraju/mindalert/internal/transcribe"
	"github.com/kiranshivaraju/mindalert/pkg/models"
)

// ErrNoOnboardingAnswers is returned when an onboarding analysis is
// requested for a user who has not answered the questionnaire.
var ErrNoOnboardingAnswers = errors.New("no onboarding answers to analyze")

const stateTTL = 24 * time.Hour

// Intake validates and stores an upload.
type Intake interface {
	Ingest(ctx context.Context, userID uuid.UUID, data []byte, declaredFormat string, meta intake.Metadata) (*models.AudioRecord, error)
}

// Analyzer produces a risk assessment.
type Analyzer interface {
	Analyze(ctx context.Context, in models.AnalysisInput) (models.RiskAssessment, error)
}

// Alerts persists alerts and makes the first delivery attempt.
type Alerts interface {
	Create(ctx context.Context, intent models.AlertIntent) (*models.EmailAlert, error)
	AttemptDelivery(ctx context.Context, alertID uuid.UUID) (alert.Outcome, error)
}

// Store is the persistence the orchestrator needs.
type Store interface {
	store.UserStore
	store.AudioStore
	store.SubmissionStore
}

// Deps holds the collaborators of an Orchestrator.
type Deps struct {
	Intake      Intake
	Transcriber transcribe.Client
	Analyzer    Analyzer
	Alerts      Alerts
	Store       Store
	Cache       cache.Cache
}

// Option configures an Orchestrator.
type Option func(*Orchestrator)

// WithRetryDelay sets the base delay between transcription attempts.
func WithRetryDelay(d time.Duration) Option {
	return func(o *Orchestrator) { o.retryDelay = d }
}

// Orchestrator owns the submission state machine. Each run is sequential;
// runs for different submissions proceed in their own goroutines.
type Orchestrator struct {
	deps       Deps
	cfg        config.PipelineConfig
	retryDelay time.Duration
	wg         sync.WaitGroup
}

// New creates an Orchestrator.
func New(deps Deps, cfg config.PipelineConfig, opts ...Option) *Orchestrator {
	if cfg.TranscribeAttempts < 1 {
		cfg.TranscribeAttempts = 1
	}
	if cfg.RunTimeout <= 0 {
		cfg.RunTimeout = 10 * time.Minute
	}
	o := &Orchestrator{deps: deps, cfg: cfg, retryDelay: time.Second}
	for _, opt := range opts {
		opt(o)
	}
	return o
}

// SubmitResult is returned once an upload is accepted.
type SubmitResult struct {
	Audio      *models.AudioRecord
	Submission *models.Submission
}

// Submit ingests an upload synchronously and starts the rest of the pipeline
// in the background. Only intake and persistence errors are returned.
func (o *Orchestrator) Submit(ctx context.Context, userID uuid.UUID, data []byte, format string, meta intake.Metadata) (*SubmitResult, error) {
	rec, err := o.deps.Intake.Ingest(ctx, userID, data, format, meta)
	if err != nil {
		return nil, err
	}

	sub, err := o.createSubmission(ctx, userID, &rec.ID, models.TriggerLiveAudio)
	if err != nil {
		return nil, err
	}
	if err := o.deps.Store.SetAudioSubmission(ctx, rec.ID, sub.ID); err != nil {
		slog.Warn("linking audio to submission failed", "audio_id", rec.ID, "submission_id", sub.ID, "error", err)
	} else {
		rec.SubmissionID = &sub.ID
	}

	o.dispatch(sub, rec)
	return &SubmitResult{Audio: rec, Submission: sub}, nil
}

// AnalyzeOnboarding starts an onboarding_analysis run over the user's
// questionnaire answers.
func (o *Orchestrator) AnalyzeOnboarding(ctx context.Context, userID uuid.UUID) (*models.Submission, error) {
	uc, err := o.deps.Store.GetUserContext(ctx, userID)
	if err != nil {
		return nil, err
	}
	if len(uc.OnboardingAnswers) == 0 {
		return nil, ErrNoOnboardingAnswers
	}

	sub, err := o.createSubmission(ctx, userID, nil, models.TriggerOnboarding)
	if err != nil {
		return nil, err
	}
	o.dispatch(sub, nil)
	return sub, nil
}

// Status returns a submission owned by userID.
func (o *Orchestrator) Status(ctx context.Context, userID, submissionID uuid.UUID) (*models.Submission, error) {
	return o.deps.Store.GetSubmission(ctx, submissionID, userID)
}

// Wait blocks until all background runs have finished or ctx is done.
func (o *Orchestrator) Wait(ctx context.Context) error {
	done := make(chan struct{})
	go func() {
		o.wg.Wait()
		close(done)
	}()
	select {
	case <-done:
		return nil
	case <-ctx.Done():
		return ctx.Err()
	}
}

func (o *Orchestrator) createSubmission(ctx context.Context, userID uuid.UUID, audioID *uuid.UUID, trigger models.TriggerType) (*models.Submission, error) {
	now := time.Now().UTC()
	sub := &models.Submission{
		ID:        uuid.New(),
		UserID:    userID,
		AudioID:   audioID,
		Trigger:   trigger,
		State:     models.StateIngested,
		CreatedAt: now,
		UpdatedAt: now,
	}
	if err := o.deps.Store.CreateSubmission(ctx, sub); err != nil {
		return nil, fmt.Errorf("creating submission: %w", err)
	}
	o.mirror(ctx, sub.ID, models.StateIngested)
	metrics.Submissions.WithLabelValues(string(trigger)).Inc()
	slog.Info("submission accepted", "submission_id", sub.ID, "user_id", userID, "trigger", trigger)
	return sub, nil
}

// dispatch runs the pipeline on private copies so callers can keep
// reading what Submit returned.
func (o *Orchestrator) dispatch(sub *models.Submission, rec *models.AudioRecord) {
	subCopy := *sub
	var recCopy *models.AudioRecord
	if rec != nil {
		r := *rec
		recCopy = &r
	}
	o.wg.Add(1)
	go func() {
		defer o.wg.Done()
		if _, err := o.Process(context.Background(), &subCopy, recCopy); err != nil {
			slog.Error("pipeline run finished with errors", "submission_id", sub.ID, "error", err)
		}
	}()
}

// RunResult describes a finished run.
type RunResult struct {
	Assessment models.RiskAssessment
	Degraded   bool
	ConfigGap  bool
	Alerts     []*models.EmailAlert
}

// Process runs the pipeline for sub synchronously. rec is nil for
// onboarding runs. Stage failures degrade the run instead of aborting it;
// the returned error only reports alerts that could not be persisted.
func (o *Orchestrator) Process(ctx context.Context, sub *models.Submission, rec *models.AudioRecord) (_ *RunResult, err error) {
	ctx, cancel := context.WithTimeout(ctx, o.cfg.RunTimeout)
	defer cancel()

	tracker := &stateTracker{o: o, sub: sub}
	defer func() {
		if r := recover(); r != nil {
			slog.Error("panic in pipeline run", "error", r, "submission_id", sub.ID)
			tracker.advance(context.WithoutCancel(ctx), models.StateDone,
				store.WithDegraded(), store.WithErrorMessage(fmt.Sprintf("panic: %v", r)))
			err = fmt.Errorf("pipeline panic: %v", r)
		}
	}()

	uc, ucErr := o.deps.Store.GetUserContext(ctx, sub.UserID)
	if ucErr != nil {
		slog.Error("loading user context failed", "user_id", sub.UserID, "submission_id", sub.ID, "error", ucErr)
		uc = &models.UserContext{UserID: sub.UserID}
	}

	var (
		ra       models.RiskAssessment
		tr       *models.TranscriptionResult
		degraded bool
	)
	switch sub.Trigger {
	case models.TriggerOnboarding:
		tracker.advance(ctx, models.StateAnalyzing)
		ra, degraded = o.analyzeAnswers(ctx, uc)
	default:
		ra, tr, degraded = o.analyzeAudio(ctx, tracker, uc, rec)
	}
	if degraded {
		metrics.DegradedRuns.Inc()
	}

	opts := []store.SubmissionUpdateOption{store.WithAssessment(ra)}
	if degraded {
		opts = append(opts, store.WithDegraded())
	}
	tracker.advance(ctx, models.StateDeciding, opts...)

	trigger := models.Trigger{Type: sub.Trigger, Degraded: degraded}
	intents := policy.Decide(*uc, ra, trigger)

	result := &RunResult{Assessment: ra, Degraded: degraded}
	var finalOpts []store.SubmissionUpdateOption
	if len(intents) == 0 && policy.Warranted(ra, trigger) {
		result.ConfigGap = true
		metrics.ConfigGaps.Inc()
		slog.Warn("alert warranted but no recipient configured",
			"user_id", sub.UserID, "submission_id", sub.ID, "risk_level", ra.RiskLevel)
		finalOpts = append(finalOpts, store.WithConfigGap())
	}

	var createErrs []error
	for _, intent := range intents {
		o.attach(&intent, sub, rec, tr)
		a, err := o.deps.Alerts.Create(ctx, intent)
		if err != nil {
			slog.Error("creating alert failed", "submission_id", sub.ID, "recipient_type", intent.RecipientType, "error", err)
			createErrs = append(createErrs, err)
			continue
		}
		result.Alerts = append(result.Alerts, a)
	}
	finalOpts = append(finalOpts, store.WithAlertsCreated(len(result.Alerts)))
	if len(createErrs) > 0 {
		finalOpts = append(finalOpts, store.WithErrorMessage(errors.Join(createErrs...).Error()))
	}
	tracker.advance(ctx, models.StateAlertsCreated, finalOpts...)

	for _, a := range result.Alerts {
		if _, err := o.deps.Alerts.AttemptDelivery(ctx, a.ID); err != nil {
			slog.Warn("first delivery attempt errored; sweeper will retry", "alert_id", a.ID, "error", err)
		}
	}

	tracker.advance(ctx, models.StateDone)
	slog.Info("pipeline run complete",
		"submission_id", sub.ID,
		"user_id", sub.UserID,
		"risk_level", ra.RiskLevel,
		"degraded", degraded,
		"alerts", len(result.Alerts),
	)
	return result, errors.Join(createErrs...)
}

func (o *Orchestrator) analyzeAudio(ctx context.Context, tracker *stateTracker, uc *models.UserContext, rec *models.AudioRecord) (models.RiskAssessment, *models.TranscriptionResult, bool) {
	tracker.advance(ctx, models.StateTranscribing)
	if rec == nil {
		slog.Error("audio submission without audio record", "submission_id", tracker.sub.ID)
		tracker.advance(ctx, models.StateAnalyzing)
		return o.fallback(ctx, uc, models.SourceAudio), nil, true
	}

	start := time.Now()
	res, err := o.transcribe(ctx, rec)
	metrics.StageDuration.WithLabelValues("transcribe").Observe(time.Since(start).Seconds())

	tracker.advance(ctx, models.StateAnalyzing)
	if err != nil {
		slog.Warn("transcription failed, running degraded",
			"submission_id", tracker.sub.ID, "audio_id", rec.ID, "error", err)
		return o.fallback(ctx, uc, models.SourceAudio), nil, true
	}

	start = time.Now()
	ra, err := o.deps.Analyzer.Analyze(ctx, models.AnalysisInput{
		Source:     models.SourceAudio,
		Transcript: res.Text,
		Confidence: res.Confidence,
	})
	metrics.StageDuration.WithLabelValues("analyze").Observe(time.Since(start).Seconds())
	if err != nil {
		slog.Warn("transcript analysis failed, running degraded",
			"submission_id", tracker.sub.ID, "error", err)
		return o.fallback(ctx, uc, models.SourceAudio), &res, true
	}
	return ra, &res, false
}

func (o *Orchestrator) analyzeAnswers(ctx context.Context, uc *models.UserContext) (models.RiskAssessment, bool) {
	start := time.Now()
	ra, err := o.deps.Analyzer.Analyze(ctx, models.AnalysisInput{
		Source:  models.SourceQuestionnaireFallback,
		Answers: uc.OnboardingAnswers,
	})
	metrics.StageDuration.WithLabelValues("analyze").Observe(time.Since(start).Seconds())
	if err != nil {
		slog.Warn("onboarding analysis failed, using default assessment", "user_id", uc.UserID, "error", err)
		return models.DefaultAssessment(models.SourceQuestionnaireFallback), true
	}
	return ra, false
}

// fallback analyzes the onboarding answers when present and otherwise
// returns the conservative default.
func (o *Orchestrator) fallback(ctx context.Context, uc *models.UserContext, source models.AnalysisSource) models.RiskAssessment {
	if len(uc.OnboardingAnswers) > 0 {
		ra, err := o.deps.Analyzer.Analyze(ctx, models.AnalysisInput{
			Source:  models.SourceQuestionnaireFallback,
			Answers: uc.OnboardingAnswers,
		})
		if err == nil {
			return ra
		}
		slog.Warn("questionnaire fallback analysis failed", "user_id", uc.UserID, "error", err)
	}
	return models.DefaultAssessment(source)
}

func (o *Orchestrator) transcribe(ctx context.Context, rec *models.AudioRecord) (models.TranscriptionResult, error) {
	var lastErr error
	for attempt := 1; attempt <= o.cfg.TranscribeAttempts; attempt++ {
		res, err := o.deps.Transcriber.Transcribe(ctx, rec.Ref())
		if err == nil {
			return res, nil
		}
		lastErr = err
		retryable := transcribe.Retryable(err)
		kind := "terminal"
		if retryable {
			kind = "transient"
		}
		metrics.ProviderErrors.WithLabelValues(o.deps.Transcriber.Name(), kind).Inc()
		if !retryable || attempt == o.cfg.TranscribeAttempts {
			break
		}
		slog.Warn("transcription attempt failed", "audio_id", rec.ID, "attempt", attempt, "error", err)
		select {
		case <-ctx.Done():
			return models.TranscriptionResult{}, ctx.Err()
		case <-time.After(o.retryDelay * time.Duration(attempt)):
		}
	}
	return models.TranscriptionResult{}, lastErr
}

// attach adds the references the policy leaves to the caller.
func (o *Orchestrator) attach(intent *models.AlertIntent, sub *models.Submission, rec *models.AudioRecord, tr *models.TranscriptionResult) {
	subID := sub.ID
	intent.SubmissionID = &subID
	if rec != nil {
		audioID := rec.ID
		intent.AudioID = &audioID
	}
	if tr != nil {
		conf := tr.Confidence
		intent.TranscriptionConfidence = &conf
		if text := strings.TrimSpace(tr.Text); text != "" {
			intent.Transcription = &text
		}
	}
}

func (o *Orchestrator) mirror(ctx context.Context, id uuid.UUID, state models.SubmissionState) {
	if o.deps.Cache == nil {
		return
	}
	if err := o.deps.Cache.SetSubmissionState(ctx, id, string(state), stateTTL); err != nil {
		slog.Debug("mirroring submission state failed", "submission_id", id, "error", err)
	}
}

// stateTracker tracks the persisted state of one submission.
type stateTracker struct {
	o   *Orchestrator
	sub *models.Submission
}

func (r *stateTracker) advance(ctx context.Context, state models.SubmissionState, opts ...store.SubmissionUpdateOption) {
	if err := r.o.deps.Store.UpdateSubmission(ctx, r.sub.ID, state, opts...); err != nil {
		slog.Error("updating submission state failed",
			"submission_id", r.sub.ID, "state", state, "error", err)
		return
	}
	r.sub.State = state
	r.o.mirror(ctx, r.sub.ID, state)
}
