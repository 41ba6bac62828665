package http

import (
	"encoding/json"
	"errors"
	"math"
	"net/http"
	"strconv"

	"github.com/storefeedback/qrverify/internal/common"
)

type apiError struct {
	Code    string `json:"code"`
	Message string `json:"message"`
}

type errorEnvelope struct {
	Success bool     `json:"success"`
	Error   apiError `json:"error"`
}

func writeJSON(w http.ResponseWriter, statusCode int, payload any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(statusCode)
	_ = json.NewEncoder(w).Encode(payload)
}

func writeError(w http.ResponseWriter, statusCode int, code, message string) {
	writeJSON(w, statusCode, errorEnvelope{Error: apiError{Code: code, Message: message}})
}

// mapDomainError selects the HTTP status for err. Anything that is not a
// DomainError is an internal failure and its detail is not exposed.
func mapDomainError(err error) (int, *common.DomainError) {
	var de *common.DomainError
	if !errors.As(err, &de) {
		return http.StatusInternalServerError, common.NewDomainError(common.CodeInternal, common.KindInternal, "internal server error")
	}

	switch de.Code {
	case common.CodeUnauthorized:
		return http.StatusUnauthorized, de
	case common.CodeFraudDetectionBlocked:
		return http.StatusForbidden, de
	case common.CodeSessionInvalidState, common.CodeVerificationAlreadyExists:
		return http.StatusConflict, de
	case common.CodeSessionExpired:
		return http.StatusGone, de
	case common.CodeRateLimitExceeded:
		return http.StatusTooManyRequests, de
	}

	switch de.Kind {
	case common.KindValidation:
		return http.StatusBadRequest, de
	case common.KindNotFound, common.KindState:
		return http.StatusNotFound, de
	default:
		return http.StatusInternalServerError, common.NewDomainError(common.CodeInternal, common.KindInternal, "internal server error")
	}
}

func (h *Handler) writeDomainError(w http.ResponseWriter, r *http.Request, operation string, err error) {
	status, de := mapDomainError(err)

	fields := []any{
		"operation", operation,
		"outcome", "failure",
		"status_code", status,
		"code", de.Code,
		"request_id", requestIDFromContext(r.Context()),
		"error", err,
	}
	if status >= 500 {
		h.log.Error(r.Context(), "http operation failed", fields...)
	} else {
		h.log.Debug(r.Context(), "http operation rejected", fields...)
	}

	if de.RetryAfter > 0 {
		w.Header().Set("Retry-After", strconv.Itoa(int(math.Ceil(de.RetryAfter.Seconds()))))
	}
	writeError(w, status, de.Code, de.Message)
}
