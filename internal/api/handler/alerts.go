package handler

import (
	"context"
	"encoding/json"
	"errors"
	"io"
	"net/http"
	"slices"
	"strconv"

	"github.com/google/uuid"

	"github.com/kiranshivaraju/mindalert/internal/alert"
	"github.com/kiranshivaraju/mindalert/internal/api/response"
	"github.com/kiranshivaraju/mindalert/internal/store"
	"github.com/kiranshivaraju/mindalert/pkg/models"
)

const defaultDeadLimit = 100

// AlertService is the alert manager surface the HTTP layer drives.
type AlertService interface {
	List(ctx context.Context, filter store.AlertFilter) ([]*models.EmailAlert, int, error)
	Get(ctx context.Context, alertID, userID uuid.UUID) (*models.EmailAlert, error)
	Delete(ctx context.Context, alertID, userID uuid.UUID) error
	Stats(ctx context.Context, userID uuid.UUID) (models.AlertStats, error)
	RetryFailed(ctx context.Context, userID uuid.UUID, alertID *uuid.UUID) (alert.RetryReport, error)
	RetryAlert(ctx context.Context, alertID uuid.UUID) (alert.Outcome, error)
	Dead(ctx context.Context, limit int) ([]*models.EmailAlert, error)
}

var validStatuses = map[models.AlertStatus]bool{
	models.AlertStatusSent:    true,
	models.AlertStatusFailed:  true,
	models.AlertStatusPending: true,
}

// NewListAlertsHandler returns an http.HandlerFunc for GET /api/v1/alerts.
func NewListAlertsHandler(svc AlertService) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		userID, ok := requireUser(w, r)
		if !ok {
			return
		}

		page, limit := pagination(r)
		filter := store.AlertFilter{UserID: &userID, Page: page, Limit: limit}

		if t := r.URL.Query().Get("type"); t != "" {
			typ := models.AlertType(t)
			if !slices.Contains(models.AlertTypes, typ) {
				response.Error(w, http.StatusBadRequest, "INVALID_REQUEST", "unknown alert type", nil)
				return
			}
			filter.Type = typ
		}
		if s := r.URL.Query().Get("status"); s != "" {
			status := models.AlertStatus(s)
			if !validStatuses[status] {
				response.Error(w, http.StatusBadRequest, "INVALID_REQUEST",
					"status must be one of sent, failed, pending", nil)
				return
			}
			filter.Status = status
		}

		alerts, total, err := svc.List(r.Context(), filter)
		if err != nil {
			writeError(w, r, err)
			return
		}
		if alerts == nil {
			alerts = []*models.EmailAlert{}
		}
		response.Collection(w, alerts, response.Paginate(page, limit, total))
	}
}

// NewGetAlertHandler returns an http.HandlerFunc for GET /api/v1/alerts/{alertID}.
func NewGetAlertHandler(svc AlertService) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		userID, ok := requireUser(w, r)
		if !ok {
			return
		}
		alertID, ok := uuidParam(w, r, "alertID")
		if !ok {
			return
		}

		a, err := svc.Get(r.Context(), alertID, userID)
		if err != nil {
			writeError(w, r, err)
			return
		}
		response.JSON(w, a)
	}
}

// NewDeleteAlertHandler returns an http.HandlerFunc for DELETE /api/v1/alerts/{alertID}.
func NewDeleteAlertHandler(svc AlertService) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		userID, ok := requireUser(w, r)
		if !ok {
			return
		}
		alertID, ok := uuidParam(w, r, "alertID")
		if !ok {
			return
		}

		if err := svc.Delete(r.Context(), alertID, userID); err != nil {
			writeError(w, r, err)
			return
		}
		response.NoContent(w)
	}
}

// NewAlertStatsHandler returns an http.HandlerFunc for GET /api/v1/alerts/stats.
func NewAlertStatsHandler(svc AlertService) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		userID, ok := requireUser(w, r)
		if !ok {
			return
		}

		stats, err := svc.Stats(r.Context(), userID)
		if err != nil {
			writeError(w, r, err)
			return
		}
		response.JSON(w, stats)
	}
}

// NewAlertTypesHandler returns an http.HandlerFunc for GET /api/v1/alerts/types.
func NewAlertTypesHandler() http.HandlerFunc {
	return func(w http.ResponseWriter, _ *http.Request) {
		response.JSON(w, alert.Types())
	}
}

// NewRetryFailedHandler returns an http.HandlerFunc for
// POST /api/v1/alerts/retry-failed. The body is optional; {"alert_id": ...}
// narrows the retry to one alert.
func NewRetryFailedHandler(svc AlertService) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		userID, ok := requireUser(w, r)
		if !ok {
			return
		}

		var req struct {
			AlertID *string `json:"alert_id"`
		}
		if err := json.NewDecoder(r.Body).Decode(&req); err != nil && !errors.Is(err, io.EOF) {
			response.Error(w, http.StatusBadRequest, "INVALID_REQUEST", "Invalid JSON body", nil)
			return
		}

		var alertID *uuid.UUID
		if req.AlertID != nil {
			id, err := uuid.Parse(*req.AlertID)
			if err != nil {
				response.Error(w, http.StatusBadRequest, "INVALID_REQUEST", "alert_id must be a valid UUID", nil)
				return
			}
			alertID = &id
		}

		report, err := svc.RetryFailed(r.Context(), userID, alertID)
		if err != nil {
			writeError(w, r, err)
			return
		}
		response.JSON(w, report)
	}
}

// NewDeadAlertsHandler returns an http.HandlerFunc for GET /api/v1/admin/alerts/dead.
func NewDeadAlertsHandler(svc AlertService) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		limit, _ := strconv.Atoi(r.URL.Query().Get("limit"))
		if limit <= 0 || limit > defaultDeadLimit {
			limit = defaultDeadLimit
		}

		alerts, err := svc.Dead(r.Context(), limit)
		if err != nil {
			writeError(w, r, err)
			return
		}
		if alerts == nil {
			alerts = []*models.EmailAlert{}
		}
		response.JSON(w, alerts)
	}
}

// NewAdminRetryHandler returns an http.HandlerFunc for
// POST /api/v1/admin/alerts/{alertID}/retry.
func NewAdminRetryHandler(svc AlertService) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		alertID, ok := uuidParam(w, r, "alertID")
		if !ok {
			return
		}

		outcome, err := svc.RetryAlert(r.Context(), alertID)
		if err != nil {
			writeError(w, r, err)
			return
		}
		response.JSON(w, alert.RetryResult{AlertID: alertID, Outcome: outcome})
	}
}
