package handler

import (
	"encoding/json"
	"errors"
	"net/http"
	"strconv"
	"strings"

	"github.com/outcomebet/paribet/internal/domain"
)

// writeJSON marshals v as JSON and writes it to the response with the given
// HTTP status code. If marshaling fails, it falls back to a plain-text 500.
func writeJSON(w http.ResponseWriter, status int, v any) {
	data, err := json.Marshal(v)
	if err != nil {
		http.Error(w, `{"error":"internal server error"}`, http.StatusInternalServerError)
		return
	}
	w.Header().Set("Content-Type", "application/json; charset=utf-8")
	w.WriteHeader(status)
	w.Write(data)
}

// writeError sends a JSON-formatted error response.
func writeError(w http.ResponseWriter, status int, msg string) {
	writeJSON(w, status, map[string]string{"error": msg})
}

// writeDomainError maps a ledger error to an HTTP status and sends it. The
// error text of sentinel errors is stable API surface; wrapped detail is
// passed through so clients see which rule rejected the request.
func writeDomainError(w http.ResponseWriter, err error) {
	writeError(w, statusOf(err), err.Error())
}

func statusOf(err error) int {
	switch {
	case errors.Is(err, domain.ErrMarketNotFound),
		errors.Is(err, domain.ErrNotFound),
		errors.Is(err, domain.ErrNoFailedPayout):
		return http.StatusNotFound

	case errors.Is(err, domain.ErrUnauthorized):
		return http.StatusForbidden

	case errors.Is(err, domain.ErrEmptyQuestion),
		errors.Is(err, domain.ErrDurationTooShort),
		errors.Is(err, domain.ErrFeeTooHigh),
		errors.Is(err, domain.ErrInvalidSide),
		errors.Is(err, domain.ErrInvalidOutcome),
		errors.Is(err, domain.ErrBetBelowMinimum),
		errors.Is(err, domain.ErrNoFeeRecipient):
		return http.StatusBadRequest

	case errors.Is(err, domain.ErrMarketNotActive),
		errors.Is(err, domain.ErrMarketExpired),
		errors.Is(err, domain.ErrMarketNotResolved),
		errors.Is(err, domain.ErrDeadlineNotReached),
		errors.Is(err, domain.ErrAlreadySettled),
		errors.Is(err, domain.ErrNoWinnings),
		errors.Is(err, domain.ErrFeesAlreadySwept),
		errors.Is(err, domain.ErrPayoutPending),
		errors.Is(err, domain.ErrLockHeld):
		return http.StatusConflict

	case errors.Is(err, domain.ErrTransferFailed):
		return http.StatusBadGateway

	default:
		return http.StatusInternalServerError
	}
}

// marketID parses the {id} path parameter using Go 1.22+ built-in routing.
func marketID(r *http.Request) (uint64, error) {
	return strconv.ParseUint(r.PathValue("id"), 10, 64)
}

// accountFrom extracts the caller's account from the X-Account header. The
// service trusts the gateway in front of it to have authenticated the value.
func accountFrom(r *http.Request) string {
	return strings.TrimSpace(r.Header.Get("X-Account"))
}

// decodeBody decodes a JSON request body into v, rejecting unknown fields.
func decodeBody(r *http.Request, v any) error {
	dec := json.NewDecoder(r.Body)
	dec.DisallowUnknownFields()
	return dec.Decode(v)
}
