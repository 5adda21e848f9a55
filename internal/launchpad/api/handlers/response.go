// Package handlers implements the launchpad's HTTP surface: one file
// per operation group, each returning a chi-compatible http.HandlerFunc
// closed over the service it fronts.
package handlers

import (
	"encoding/json"
	"errors"
	"log/slog"
	"net/http"

	"github.com/runeforge/launchpad/internal/launchpad/api/middleware"
	"github.com/runeforge/launchpad/internal/launchpad/errs"
)

// APIResponse wraps a successful response payload.
type APIResponse struct {
	Data any `json:"data"`
}

// APIError wraps an error response payload.
type APIError struct {
	Error APIErrorDetail `json:"error"`
}

// APIErrorDetail carries a machine-readable kind alongside a message
// and the request id the failing call was logged under.
type APIErrorDetail struct {
	Kind      string `json:"kind"`
	Message   string `json:"message"`
	RequestID string `json:"request_id,omitempty"`
}

func writeJSON(w http.ResponseWriter, status int, data any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	if err := json.NewEncoder(w).Encode(data); err != nil {
		slog.Error("failed to write JSON response", "error", err)
	}
}

// writeServiceError maps an errs.Kind to an HTTP status and writes the
// error envelope. Errors that don't carry a Kind are treated as
// Internal.
func writeServiceError(w http.ResponseWriter, r *http.Request, err error) {
	kind := errs.KindOf(err)

	status := http.StatusInternalServerError
	switch kind {
	case errs.KindInvalidArgument:
		status = http.StatusBadRequest
	case errs.KindUnauthorized:
		status = http.StatusForbidden
	case errs.KindRateLimited:
		status = http.StatusTooManyRequests
	case errs.KindInsufficientBalance:
		status = http.StatusUnprocessableEntity
	case errs.KindNameAlreadyUsed:
		status = http.StatusConflict
	case errs.KindNetworkError, errs.KindBroadcastLost, errs.KindConfirmationStalled:
		status = http.StatusBadGateway
	case errs.KindSigningError, errs.KindBroadcastRejected, errs.KindInternal:
		status = http.StatusInternalServerError
	}

	var svcErr *errs.Error
	msg := err.Error()
	if errors.As(err, &svcErr) && svcErr.Err != nil {
		msg = svcErr.Err.Error()
	}

	requestID := middleware.RequestIDFrom(r)
	slog.Warn("request failed", "requestId", requestID, "kind", kind, "status", status, "error", msg)

	writeJSON(w, status, APIError{Error: APIErrorDetail{Kind: string(kind), Message: msg, RequestID: requestID}})
}

func writeBadRequest(w http.ResponseWriter, r *http.Request, message string) {
	writeJSON(w, http.StatusBadRequest, APIError{Error: APIErrorDetail{
		Kind:      string(errs.KindInvalidArgument),
		Message:   message,
		RequestID: middleware.RequestIDFrom(r),
	}})
}
