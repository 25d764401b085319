package handler

import (
	"errors"
	"log/slog"
	"net/http"

	"github.com/go-enroll-api/internal/domain"
)

// statusFor maps a domain sentinel to its HTTP status. Unknown errors are 500.
func statusFor(err error) int {
	switch {
	case errors.Is(err, domain.ErrValidation):
		return http.StatusUnprocessableEntity
	case errors.Is(err, domain.ErrConflict):
		return http.StatusConflict
	case errors.Is(err, domain.ErrNotFound):
		return http.StatusNotFound
	case errors.Is(err, domain.ErrExpired):
		return http.StatusGone
	case errors.Is(err, domain.ErrInvalidCode), errors.Is(err, domain.ErrUnauthorized):
		return http.StatusUnauthorized
	case errors.Is(err, domain.ErrTooManyAttempts):
		return http.StatusTooManyRequests
	case errors.Is(err, domain.ErrForbidden):
		return http.StatusForbidden
	case errors.Is(err, domain.ErrDelivery):
		return http.StatusBadGateway
	case errors.Is(err, domain.ErrPersistence):
		return http.StatusServiceUnavailable
	default:
		return http.StatusInternalServerError
	}
}

// httpError writes err with the status its sentinel maps to.
// Infrastructure detail is logged, never sent to the client.
func httpError(w http.ResponseWriter, err error) {
	status := statusFor(err)
	switch status {
	case http.StatusInternalServerError:
		slog.Error("unhandled error", "err", err)
		writeError(w, status, "internal server error")
	case http.StatusServiceUnavailable:
		slog.Error("storage unavailable", "err", err)
		writeError(w, status, "service temporarily unavailable")
	case http.StatusBadGateway:
		slog.Warn("code delivery failed", "err", err)
		writeError(w, status, "could not deliver verification code")
	default:
		writeError(w, status, err.Error())
	}
}
