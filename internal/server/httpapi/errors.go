package httpapi

import (
	"encoding/json"
	"errors"
	"math"
	"net/http"

	"github.com/carecircle/carecircle/internal/common"
)

// errorResponse is the JSON body for every non-2xx answer.
type errorResponse struct {
	Error             string `json:"error"`
	RetryAfterSeconds int64  `json:"retry_after_seconds,omitempty"`
	RemainingAttempts *int   `json:"remaining_attempts,omitempty"`
}

func writeJSON(w http.ResponseWriter, status int, v any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	_ = json.NewEncoder(w).Encode(v)
}

func writeErrorMessage(w http.ResponseWriter, status int, message string) {
	writeJSON(w, status, errorResponse{Error: message})
}

// writeError translates a service error into an HTTP status and JSON body.
// Lockouts carry their remaining duration, failed credentials their
// remaining-attempt guidance when the counter had it.
func writeError(w http.ResponseWriter, err error) {
	var locked *common.LockedError
	if errors.As(err, &locked) {
		seconds := int64(math.Ceil(locked.RetryAfter.Seconds()))
		writeJSON(w, http.StatusTooManyRequests, errorResponse{
			Error:             "too many failed attempts, try again later",
			RetryAfterSeconds: seconds,
		})
		return
	}

	var bad *common.BadCredentialsError
	if errors.As(err, &bad) {
		resp := errorResponse{Error: "invalid credentials"}
		if bad.RemainingAttempts >= 0 {
			resp.RemainingAttempts = &bad.RemainingAttempts
		}
		writeJSON(w, http.StatusUnauthorized, resp)
		return
	}

	switch {
	case errors.Is(err, common.ErrTokenExpired):
		writeErrorMessage(w, http.StatusUnauthorized, "token expired")
	case errors.Is(err, common.ErrInvalidToken):
		writeErrorMessage(w, http.StatusUnauthorized, "invalid token")
	case errors.Is(err, common.ErrorUnauthorized):
		writeErrorMessage(w, http.StatusUnauthorized, "unauthorized")
	case errors.Is(err, common.ErrorForbidden):
		writeErrorMessage(w, http.StatusForbidden, "forbidden")
	case errors.Is(err, common.ErrorNotFound):
		writeErrorMessage(w, http.StatusNotFound, "not found")
	case errors.Is(err, common.ErrorConflict):
		writeErrorMessage(w, http.StatusConflict, "conflict")
	case errors.Is(err, common.ErrorUnavailable):
		writeErrorMessage(w, http.StatusServiceUnavailable, "service unavailable")
	default:
		writeErrorMessage(w, http.StatusInternalServerError, "internal error")
	}
}
