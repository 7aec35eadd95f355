package api

import (
	"net/http"

	"github.com/go-chi/chi/v5"
	chimw "github.com/go-chi/chi/v5/middleware"
	mw "github.com/kiranshivaraju/imgjobs/internal/api/middleware"
	"github.com/kiranshivaraju/imgjobs/internal/api/response"
)

// Dependencies holds all handler and middleware dependencies for the router.
type Dependencies struct {
	Auth      *mw.Auth
	RateLimit *mw.RateLimit

	HealthHandler http.HandlerFunc

	SubmitHandler   http.HandlerFunc
	ListJobsHandler http.HandlerFunc
	GetJobHandler   http.HandlerFunc
	ResultHandler   http.HandlerFunc

	GetSessionHandler   http.HandlerFunc
	ResetSessionHandler http.HandlerFunc
	StreamHandler       http.HandlerFunc
}

// NewRouter builds the Chi router with middleware stack and all routes.
func NewRouter(deps Dependencies) http.Handler {
	r := chi.NewRouter()

	// Global middleware
	r.Use(chimw.RequestID)
	r.Use(chimw.RealIP)
	r.Use(mw.Logger)
	r.Use(mw.Recovery)

	r.Get("/api/v1/health", orNotImplemented(deps.HealthHandler))

	r.Group(func(r chi.Router) {
		r.Use(deps.Auth.Authenticate)

		r.Group(func(r chi.Router) {
			// Only submissions reach the backend's worker queue.
			r.Use(deps.RateLimit.Limit)
			r.Post("/api/v1/jobs/{operation}", orNotImplemented(deps.SubmitHandler))
		})

		r.Get("/api/v1/jobs", orNotImplemented(deps.ListJobsHandler))
		r.Get("/api/v1/jobs/{jobID}", orNotImplemented(deps.GetJobHandler))
		r.Get("/api/v1/jobs/{jobID}/result", orNotImplemented(deps.ResultHandler))

		r.Get("/api/v1/session", orNotImplemented(deps.GetSessionHandler))
		r.Delete("/api/v1/session", orNotImplemented(deps.ResetSessionHandler))
		r.Get("/api/v1/session/stream", orNotImplemented(deps.StreamHandler))
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
