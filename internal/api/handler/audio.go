package handler

import (
	"context"
	"errors"
	"io"
	"net/http"
	"path/filepath"
	"strconv"
	"strings"

	"github.com/google/uuid"

	"github.com/kiranshivaraju/mindalert/internal/api/response"
	"github.com/kiranshivaraju/mindalert/internal/intake"
	"github.com/kiranshivaraju/mindalert/internal/pipeline"
	"github.com/kiranshivaraju/mindalert/pkg/models"
)

// multipart framing allowance on top of the audio limit
const formOverhead = 1 << 20

// Pipeline is the orchestrator surface the HTTP layer drives.
type Pipeline interface {
	Submit(ctx context.Context, userID uuid.UUID, data []byte, format string, meta intake.Metadata) (*pipeline.SubmitResult, error)
	AnalyzeOnboarding(ctx context.Context, userID uuid.UUID) (*models.Submission, error)
	Status(ctx context.Context, userID, submissionID uuid.UUID) (*models.Submission, error)
}

type submitResponse struct {
	AudioID      uuid.UUID              `json:"audio_id"`
	SubmissionID uuid.UUID              `json:"submission_id"`
	State        models.SubmissionState `json:"state"`
	DurationSecs *float64               `json:"duration_secs,omitempty"`
}

// NewUploadAudioHandler returns an http.HandlerFunc for POST /api/v1/audio.
// The form carries the recording in "audio" plus optional "description",
// "mood_rating" and "format" fields. The format defaults to the file extension.
func NewUploadAudioHandler(p Pipeline, maxFileBytes int64) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		userID, ok := requireUser(w, r)
		if !ok {
			return
		}

		r.Body = http.MaxBytesReader(w, r.Body, maxFileBytes+formOverhead)
		file, header, err := r.FormFile("audio")
		if err != nil {
			var tooBig *http.MaxBytesError
			if errors.As(err, &tooBig) {
				writeError(w, r, intake.ErrFileTooLarge)
				return
			}
			response.Error(w, http.StatusBadRequest, "INVALID_REQUEST",
				"multipart field \"audio\" is required", nil)
			return
		}
		defer file.Close()

		// one byte past the limit is enough for the gate to reject it
		data, err := io.ReadAll(io.LimitReader(file, maxFileBytes+1))
		if err != nil {
			response.Error(w, http.StatusBadRequest, "INVALID_REQUEST", "Could not read upload", nil)
			return
		}

		format := r.FormValue("format")
		if format == "" {
			format = filepath.Ext(header.Filename)
		}

		meta, err := uploadMetadata(r)
		if err != nil {
			writeError(w, r, err)
			return
		}

		res, err := p.Submit(r.Context(), userID, data, format, meta)
		if err != nil {
			writeError(w, r, err)
			return
		}

		response.Accepted(w, submitResponse{
			AudioID:      res.Audio.ID,
			SubmissionID: res.Submission.ID,
			State:        res.Submission.State,
			DurationSecs: res.Audio.DurationSecs,
		})
	}
}

func uploadMetadata(r *http.Request) (intake.Metadata, error) {
	var meta intake.Metadata
	if d := strings.TrimSpace(r.FormValue("description")); d != "" {
		meta.Description = &d
	}
	if raw := strings.TrimSpace(r.FormValue("mood_rating")); raw != "" {
		n, err := strconv.Atoi(raw)
		if err != nil {
			return meta, intake.ErrInvalidMetadata
		}
		meta.MoodRating = &n
	}
	return meta, nil
}

// NewSubmissionStatusHandler returns an http.HandlerFunc for
// GET /api/v1/submissions/{submissionID}.
func NewSubmissionStatusHandler(p Pipeline) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		userID, ok := requireUser(w, r)
		if !ok {
			return
		}
		subID, ok := uuidParam(w, r, "submissionID")
		if !ok {
			return
		}

		sub, err := p.Status(r.Context(), userID, subID)
		if err != nil {
			writeError(w, r, err)
			return
		}
		response.JSON(w, sub)
	}
}

// NewAnalyzeOnboardingHandler returns an http.HandlerFunc for
// POST /api/v1/onboarding/analyze.
func NewAnalyzeOnboardingHandler(p Pipeline) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		userID, ok := requireUser(w, r)
		if !ok {
			return
		}

		sub, err := p.AnalyzeOnboarding(r.Context(), userID)
		if err != nil {
			writeError(w, r, err)
			return
		}
		response.Accepted(w, sub)
	}
}
