package handler

import (
	"context"
	"encoding/json"
	"log/slog"
	"net/http"

	"github.com/google/uuid"

	mw "github.com/mimanitas/settlement/internal/api/middleware"
	"github.com/mimanitas/settlement/internal/api/response"
	"github.com/mimanitas/settlement/internal/payment"
)

const maxRequestBody = 64 << 10

// PaymentCreator opens payment attempts.
type PaymentCreator interface {
	CreatePaymentIntent(ctx context.Context, caller, jobID, applicationID uuid.UUID) (*payment.IntentResponse, error)
	CreateCheckoutSession(ctx context.Context, caller, jobID, applicationID uuid.UUID, successURL, cancelURL string) (*payment.IntentResponse, error)
}

// PaymentFinalizer applies completed payments reported by the client.
type PaymentFinalizer interface {
	VerifyCheckout(ctx context.Context, caller uuid.UUID, sessionID string) (*payment.Result, error)
	ConfirmPayment(ctx context.Context, caller uuid.UUID, paymentIntentID string, jobID, applicationID uuid.UUID) (*payment.Result, error)
	Reconcile(ctx context.Context, reference string) (*payment.Result, error)
}

type finalizeResponse struct {
	Success          bool       `json:"success"`
	AlreadyProcessed bool       `json:"already_processed,omitempty"`
	JobID            *uuid.UUID `json:"job_id,omitempty"`
	JobStatus        string     `json:"job_status,omitempty"`
	PaymentStatus    string     `json:"payment_status,omitempty"`
}

func writeResult(w http.ResponseWriter, res *payment.Result) {
	if res.AlreadyProcessed {
		response.OK(w, finalizeResponse{Success: true, AlreadyProcessed: true})
		return
	}
	jobID := res.JobID
	response.OK(w, finalizeResponse{
		Success:       true,
		JobID:         &jobID,
		JobStatus:     res.JobStatus,
		PaymentStatus: res.PaymentStatus,
	})
}

// decodeBody reads a size-limited JSON body into dst, writing a 400 on failure.
func decodeBody(w http.ResponseWriter, r *http.Request, dst any) bool {
	if err := json.NewDecoder(http.MaxBytesReader(w, r.Body, maxRequestBody)).Decode(dst); err != nil {
		badRequest(w, "Invalid JSON body")
		return false
	}
	return true
}

func callerOrUnauthorized(w http.ResponseWriter, r *http.Request) (uuid.UUID, bool) {
	caller, ok := mw.GetCallerID(r)
	if !ok {
		response.Error(w, http.StatusUnauthorized, payment.KindAuthentication.String(), "Missing caller", nil)
	}
	return caller, ok
}

type createRequest struct {
	JobID         uuid.UUID `json:"job_id"`
	ApplicationID uuid.UUID `json:"application_id"`
	SuccessURL    string    `json:"success_url"`
	CancelURL     string    `json:"cancel_url"`
}

// NewCreateIntentHandler serves POST /api/v1/payments/intents.
func NewCreateIntentHandler(svc PaymentCreator, logger *slog.Logger) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		caller, ok := callerOrUnauthorized(w, r)
		if !ok {
			return
		}
		var req createRequest
		if !decodeBody(w, r, &req) {
			return
		}

		res, err := svc.CreatePaymentIntent(r.Context(), caller, req.JobID, req.ApplicationID)
		if err != nil {
			writeError(w, logger, err)
			return
		}
		response.OK(w, res)
	}
}

// NewCreateCheckoutHandler serves POST /api/v1/payments/checkout-sessions.
func NewCreateCheckoutHandler(svc PaymentCreator, logger *slog.Logger) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		caller, ok := callerOrUnauthorized(w, r)
		if !ok {
			return
		}
		var req createRequest
		if !decodeBody(w, r, &req) {
			return
		}

		res, err := svc.CreateCheckoutSession(r.Context(), caller, req.JobID, req.ApplicationID, req.SuccessURL, req.CancelURL)
		if err != nil {
			writeError(w, logger, err)
			return
		}
		response.OK(w, res)
	}
}

// NewConfirmHandler serves POST /api/v1/payments/confirm.
func NewConfirmHandler(svc PaymentFinalizer, logger *slog.Logger) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		caller, ok := callerOrUnauthorized(w, r)
		if !ok {
			return
		}
		var req struct {
			PaymentIntentID string    `json:"payment_intent_id"`
			JobID           uuid.UUID `json:"job_id"`
			ApplicationID   uuid.UUID `json:"application_id"`
		}
		if !decodeBody(w, r, &req) {
			return
		}

		res, err := svc.ConfirmPayment(r.Context(), caller, req.PaymentIntentID, req.JobID, req.ApplicationID)
		if err != nil {
			writeError(w, logger, err)
			return
		}
		writeResult(w, res)
	}
}

// NewVerifyCheckoutHandler serves POST /api/v1/payments/verify-checkout.
func NewVerifyCheckoutHandler(svc PaymentFinalizer, logger *slog.Logger) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		caller, ok := callerOrUnauthorized(w, r)
		if !ok {
			return
		}
		var req struct {
			SessionID string `json:"session_id"`
		}
		if !decodeBody(w, r, &req) {
			return
		}

		res, err := svc.VerifyCheckout(r.Context(), caller, req.SessionID)
		if err != nil {
			writeError(w, logger, err)
			return
		}
		writeResult(w, res)
	}
}

// NewReconcileHandler serves POST /api/v1/admin/reconcile.
func NewReconcileHandler(svc PaymentFinalizer, logger *slog.Logger) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		var req struct {
			PaymentIntentID string `json:"payment_intent_id"`
		}
		if !decodeBody(w, r, &req) {
			return
		}

		res, err := svc.Reconcile(r.Context(), req.PaymentIntentID)
		if err != nil {
			writeError(w, logger, err)
			return
		}
		logger.Info("payment reconciled",
			slog.String("reference", req.PaymentIntentID),
			slog.String("job_id", res.JobID.String()),
			slog.Bool("already_processed", res.AlreadyProcessed))
		response.OK(w, res)
	}
}
