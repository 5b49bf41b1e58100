package handler

import (
	"context"
	"errors"
	"io"
	"log/slog"
	"net/http"

	"github.com/mimanitas/settlement/internal/api/response"
	"github.com/mimanitas/settlement/internal/webhook"
)

const (
	maxWebhookBody  = 1 << 20
	signatureHeader = "Stripe-Signature"
)

// SignatureVerifier authenticates a raw webhook body.
type SignatureVerifier interface {
	Verify(body []byte, header string) error
}

// EventDispatcher applies a verified event.
type EventDispatcher interface {
	Dispatch(ctx context.Context, e webhook.Event) error
}

// NewWebhookHandler returns the gateway callback endpoint. Only an unverifiable body is
// rejected; once the signature checks out the event is acknowledged whatever happens next,
// so the gateway never retries on our processing errors.
func NewWebhookHandler(v SignatureVerifier, d EventDispatcher, logger *slog.Logger) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		if r.Method != http.MethodPost {
			w.Header().Set("Allow", http.MethodPost)
			response.Error(w, http.StatusMethodNotAllowed, "METHOD_NOT_ALLOWED", "Method not allowed", nil)
			return
		}

		body, err := io.ReadAll(http.MaxBytesReader(w, r.Body, maxWebhookBody))
		if err != nil {
			logger.Warn("webhook body unreadable", slog.Any("error", err))
			badRequest(w, "Invalid payload")
			return
		}

		header := r.Header.Get(signatureHeader)
		if err := v.Verify(body, header); err != nil {
			msg := "Invalid signature"
			if errors.Is(err, webhook.ErrMissingSignature) {
				msg = "Missing signature"
			}
			logger.Warn("webhook signature rejected", slog.Any("error", err))
			badRequest(w, msg)
			return
		}

		event, err := webhook.ParseEvent(body)
		if err != nil {
			logger.Error("webhook event undecodable", slog.Any("error", err))
			response.OK(w, map[string]any{"received": true, "error": "Processing error"})
			return
		}

		if err := d.Dispatch(r.Context(), event); err != nil {
			logger.Error("webhook processing failed",
				slog.String("event_id", event.ID),
				slog.String("type", event.Type),
				slog.Any("error", err))
			response.OK(w, map[string]any{"received": true, "error": "Processing error"})
			return
		}

		response.OK(w, map[string]any{"received": true})
	}
}
