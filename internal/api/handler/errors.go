package handler

import (
	"errors"
	"log/slog"
	"net/http"
	"strconv"

	"github.com/go-chi/chi/v5"
	"github.com/google/uuid"

	mw "github.com/kiranshivaraju/mindalert/internal/api/middleware"
	"github.com/kiranshivaraju/mindalert/internal/api/response"
	"github.com/kiranshivaraju/mindalert/internal/intake"
	"github.com/kiranshivaraju/mindalert/internal/pipeline"
	"github.com/kiranshivaraju/mindalert/internal/store"
)

const (
	defaultPageLimit = 20
	maxPageLimit     = 100
)

// writeError maps domain errors to the HTTP error envelope.
func writeError(w http.ResponseWriter, r *http.Request, err error) {
	switch {
	case errors.Is(err, intake.ErrUnsupportedFormat):
		response.Error(w, http.StatusUnsupportedMediaType, "UNSUPPORTED_FORMAT", err.Error(), nil)
	case errors.Is(err, intake.ErrFileTooLarge):
		response.Error(w, http.StatusRequestEntityTooLarge, "FILE_TOO_LARGE", err.Error(), nil)
	case errors.Is(err, intake.ErrCorruptAudio):
		response.Error(w, http.StatusUnprocessableEntity, "CORRUPT_AUDIO", err.Error(), nil)
	case errors.Is(err, intake.ErrInvalidMetadata):
		response.Error(w, http.StatusUnprocessableEntity, "INVALID_METADATA", err.Error(), nil)
	case errors.Is(err, pipeline.ErrNoOnboardingAnswers):
		response.Error(w, http.StatusUnprocessableEntity, "NO_ONBOARDING_ANSWERS",
			"There are no onboarding answers to analyze", nil)
	case errors.Is(err, store.ErrNotFound):
		response.Error(w, http.StatusNotFound, "RESOURCE_NOT_FOUND", "Resource not found", nil)
	default:
		slog.Error("request failed", "method", r.Method, "path", r.URL.Path, "error", err)
		response.Error(w, http.StatusInternalServerError, "INTERNAL_ERROR",
			"An unexpected error occurred", nil)
	}
}

func requireUser(w http.ResponseWriter, r *http.Request) (uuid.UUID, bool) {
	id, ok := mw.GetUserID(r)
	if !ok {
		response.Error(w, http.StatusUnauthorized, "INVALID_TOKEN", "Missing user", nil)
	}
	return id, ok
}

func uuidParam(w http.ResponseWriter, r *http.Request, name string) (uuid.UUID, bool) {
	id, err := uuid.Parse(chi.URLParam(r, name))
	if err != nil {
		response.Error(w, http.StatusBadRequest, "INVALID_REQUEST", name+" must be a valid UUID", nil)
		return uuid.Nil, false
	}
	return id, true
}

// pagination reads page and limit, clamping them to sane bounds.
func pagination(r *http.Request) (page, limit int) {
	page, _ = strconv.Atoi(r.URL.Query().Get("page"))
	if page < 1 {
		page = 1
	}
	limit, _ = strconv.Atoi(r.URL.Query().Get("limit"))
	switch {
	case limit <= 0:
		limit = defaultPageLimit
	case limit > maxPageLimit:
		limit = maxPageLimit
	}
	return page, limit
}
