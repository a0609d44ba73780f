package api

import (
	"net/http"

	"github.com/go-chi/chi/v5"

	mw "github.com/kiranshivaraju/mindalert/internal/api/middleware"
	"github.com/kiranshivaraju/mindalert/internal/api/response"
)

// Dependencies holds all handler and middleware dependencies for the router.
type Dependencies struct {
	UserAuth     *mw.UserAuth
	OperatorAuth *mw.Auth
	RateLimit    *mw.RateLimit

	HealthHandler  http.HandlerFunc
	MetricsHandler http.Handler

	UploadAudio       http.HandlerFunc
	SubmissionStatus  http.HandlerFunc
	AnalyzeOnboarding http.HandlerFunc

	ListAlerts  http.HandlerFunc
	GetAlert    http.HandlerFunc
	DeleteAlert http.HandlerFunc
	AlertStats  http.HandlerFunc
	AlertTypes  http.HandlerFunc
	RetryFailed http.HandlerFunc

	DeadAlerts http.HandlerFunc
	AdminRetry http.HandlerFunc
}

// NewRouter builds the Chi router with middleware stack and all routes.
func NewRouter(deps Dependencies) http.Handler {
	r := chi.NewRouter()

	r.Use(mw.Logger)
	r.Use(mw.Recovery)

	r.Get("/api/v1/health", orNotImplemented(deps.HealthHandler))
	if deps.MetricsHandler != nil {
		r.Method(http.MethodGet, "/metrics", deps.MetricsHandler)
	}

	// User routes
	r.Group(func(r chi.Router) {
		r.Use(deps.UserAuth.Authenticate)
		r.Use(deps.RateLimit.Limit)

		r.Post("/api/v1/audio", orNotImplemented(deps.UploadAudio))
		r.Get("/api/v1/submissions/{submissionID}", orNotImplemented(deps.SubmissionStatus))
		r.Post("/api/v1/onboarding/analyze", orNotImplemented(deps.AnalyzeOnboarding))

		r.Get("/api/v1/alerts", orNotImplemented(deps.ListAlerts))
		r.Get("/api/v1/alerts/stats", orNotImplemented(deps.AlertStats))
		r.Get("/api/v1/alerts/types", orNotImplemented(deps.AlertTypes))
		r.Post("/api/v1/alerts/retry-failed", orNotImplemented(deps.RetryFailed))
		r.Get("/api/v1/alerts/{alertID}", orNotImplemented(deps.GetAlert))
		r.Delete("/api/v1/alerts/{alertID}", orNotImplemented(deps.DeleteAlert))
	})

	// Operator routes
	r.Group(func(r chi.Router) {
		r.Use(deps.OperatorAuth.Authenticate)
		r.Use(deps.RateLimit.Limit)
		r.Use(deps.OperatorAuth.RequireScope("admin"))

		r.Get("/api/v1/admin/alerts/dead", orNotImplemented(deps.DeadAlerts))
		r.Post("/api/v1/admin/alerts/{alertID}/retry", orNotImplemented(deps.AdminRetry))
	})

	return r
}

// orNotImplemented returns the handler if non-nil, or a 501 placeholder.
func orNotImplemented(h http.HandlerFunc) http.HandlerFunc {
	if h != nil {
		return h
	}
	return func(w http.ResponseWriter, r *http.Request) {
		response.Error(w, http.StatusNotImplemented, "NOT_IMPLEMENTED", "Endpoint not yet implemented", nil)
	}
}
