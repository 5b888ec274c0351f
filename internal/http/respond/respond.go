// Package respond writes JSON bodies and maps domain errors to status codes.
package respond

import (
	"encoding/json"
	"errors"
	"log/slog"
	"net/http"

	"github.com/MrJamesThe3rd/timebank/internal/exchange"
	"github.com/MrJamesThe3rd/timebank/internal/timebank"
)

func JSON(w http.ResponseWriter, status int, v any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)

	if err := json.NewEncoder(w).Encode(v); err != nil {
		slog.Error("failed to encode response", "error", err)
	}
}

// Status returns the HTTP status for err.
func Status(err error) int {
	switch {
	case errors.Is(err, exchange.ErrNotFound), errors.Is(err, timebank.ErrAccountNotFound):
		return http.StatusNotFound
	case errors.Is(err, exchange.ErrForbidden):
		return http.StatusForbidden
	case errors.Is(err, exchange.ErrInvalidState),
		errors.Is(err, exchange.ErrCapacityExceeded),
		errors.Is(err, exchange.ErrWindowExpired),
		errors.Is(err, exchange.ErrConflict),
		errors.Is(err, exchange.ErrNoParticipants),
		errors.Is(err, timebank.ErrAccountExists):
		return http.StatusConflict
	case errors.Is(err, exchange.ErrInvalidInput),
		errors.Is(err, timebank.ErrInvalidAmount),
		errors.Is(err, timebank.ErrUnknownReason):
		return http.StatusUnprocessableEntity
	}

	return http.StatusInternalServerError
}

// Error writes err as plain text. Unexpected errors are logged and hidden
// from the caller.
func Error(w http.ResponseWriter, r *http.Request, err error) {
	status := Status(err)
	if status == http.StatusInternalServerError {
		slog.Error("request failed", "method", r.Method, "path", r.URL.Path, "error", err)
		http.Error(w, "internal error", status)

		return
	}

	http.Error(w, err.Error(), status)
}
