package api

import (
	"log/slog"
	"net/http"

	"github.com/go-chi/chi/v5"

	mw "github.com/mimanitas/settlement/internal/api/middleware"
	"github.com/mimanitas/settlement/internal/api/response"
	"github.com/mimanitas/settlement/pkg/models"
)

// Dependencies holds all handler and middleware dependencies for the router.
type Dependencies struct {
	Logger     *slog.Logger
	CallerAuth *mw.CallerAuth
	KeyAuth    *mw.Auth
	RateLimit  *mw.RateLimit

	HealthHandler         http.HandlerFunc
	WebhookHandler        http.HandlerFunc
	CreateIntentHandler   http.HandlerFunc
	CreateCheckoutHandler http.HandlerFunc
	ConfirmHandler        http.HandlerFunc
	VerifyCheckoutHandler http.HandlerFunc
	ReconcileHandler      http.HandlerFunc
}

// NewRouter builds the Chi router with middleware stack and all routes.
func NewRouter(deps Dependencies) http.Handler {
	logger := deps.Logger
	if logger == nil {
		logger = slog.Default()
	}

	r := chi.NewRouter()

	r.Use(mw.RequestID)
	r.Use(mw.Logger(logger))
	r.Use(mw.Recovery(logger))
	r.Use(mw.CORS)

	r.Get("/api/v1/health", orNotImplemented(deps.HealthHandler))

	// Signed by the gateway; method checks happen in the handler.
	r.HandleFunc("/webhooks/stripe", orNotImplemented(deps.WebhookHandler))

	r.Route("/api/v1/payments", func(r chi.Router) {
		r.Use(deps.CallerAuth.Authenticate)
		r.Use(deps.RateLimit.Limit)

		r.Post("/intents", orNotImplemented(deps.CreateIntentHandler))
		r.Post("/checkout-sessions", orNotImplemented(deps.CreateCheckoutHandler))
		r.Post("/confirm", orNotImplemented(deps.ConfirmHandler))
		r.Post("/verify-checkout", orNotImplemented(deps.VerifyCheckoutHandler))
	})

	r.Route("/api/v1/admin", func(r chi.Router) {
		r.Use(deps.KeyAuth.Authenticate)
		r.Use(deps.RateLimit.Limit)
		r.Use(deps.KeyAuth.RequireScope(models.ScopeAdmin))

		r.Post("/reconcile", orNotImplemented(deps.ReconcileHandler))
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
