package handler

import (
	"errors"
	"log/slog"
	"net/http"

	"github.com/mimanitas/settlement/internal/api/response"
	"github.com/mimanitas/settlement/internal/payment"
)

var kindStatus = map[payment.Kind]int{
	payment.KindAuthentication: http.StatusUnauthorized,
	payment.KindAuthorization:  http.StatusForbidden,
	payment.KindValidation:     http.StatusBadRequest,
	payment.KindNotFound:       http.StatusNotFound,
	payment.KindConflict:       http.StatusConflict,
	payment.KindUpstream:       http.StatusBadGateway,
	payment.KindInternal:       http.StatusInternalServerError,
}

// writeError maps a service error to a response. Causes are logged, never returned.
func writeError(w http.ResponseWriter, logger *slog.Logger, err error) {
	var pe *payment.Error
	if !errors.As(err, &pe) {
		logger.Error("unclassified error", slog.Any("error", err))
		response.Error(w, http.StatusInternalServerError, "INTERNAL_ERROR", "An unexpected error occurred", nil)
		return
	}

	status := kindStatus[pe.Kind]
	if status >= http.StatusInternalServerError {
		logger.Error(pe.Message, slog.String("code", pe.Kind.String()), slog.Any("error", pe.Err))
	}
	response.Error(w, status, pe.Kind.String(), pe.Message, pe.Details)
}

func badRequest(w http.ResponseWriter, message string) {
	response.Error(w, http.StatusBadRequest, payment.KindValidation.String(), message, nil)
}
