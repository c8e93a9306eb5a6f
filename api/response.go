package api

import (
	"net/http"

	"github.com/mezonai/votechain/errors"
	"github.com/mezonai/votechain/jsonx"
	"github.com/mezonai/votechain/logx"
	"github.com/mezonai/votechain/transaction"
)

var (
	errMiningUnavailable = errors.NewError(errors.ErrCodeUnavailable, "Mining scheduler is not configured")
	errEventsUnavailable = errors.NewError(errors.ErrCodeUnavailable, "Event stream is not configured")
)

// txView is a transaction with its id, as clients see it
type txView struct {
	ID string `json:"id"`
	transaction.Transaction
}

func statusFor(code errors.ErrorCode) int {
	switch code {
	case errors.ErrCodeInvalidArgument:
		return http.StatusBadRequest
	case errors.ErrCodeNotFound:
		return http.StatusNotFound
	case errors.ErrCodeMempoolFull, errors.ErrCodeCanceled, errors.ErrCodeUnavailable:
		return http.StatusServiceUnavailable
	case errors.ErrCodeRateLimited:
		return http.StatusTooManyRequests
	default:
		return http.StatusInternalServerError
	}
}

func writeJSON(w http.ResponseWriter, status int, v interface{}) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	if err := jsonx.NewEncoder(w).Encode(v); err != nil {
		logx.Error("API", "Failed to encode response:", err)
	}
}

func writeError(w http.ResponseWriter, err error) {
	var le *errors.LedgerError
	if !errors.As(err, &le) {
		le = &errors.LedgerError{Code: errors.ErrCodeInternal, Message: err.Error()}
	}
	status := statusFor(le.Code)
	if status >= http.StatusInternalServerError {
		logx.Error("API", "Request failed:", err)
	}
	writeJSON(w, status, le)
}
