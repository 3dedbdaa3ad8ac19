package server

import (
	"encoding/json"
	"errors"
	"fmt"
	"net/http"

	"github.com/rs/zerolog/hlog"

	"github.com/rayjc/jobly/sqlbuild"
	"github.com/rayjc/jobly/store"
)

// httpError is an error with a fixed status and client-facing message.
type httpError struct {
	status  int
	message string
}

func (e *httpError) Error() string {
	return e.message
}

func newError(status int, format string, a ...any) error {
	return &httpError{status: status, message: fmt.Sprintf(format, a...)}
}

type errorBody struct {
	Status  int    `json:"status"`
	Message string `json:"message"`
}

// fail writes err as a JSON error response. subject names the addressed
// record in not-found and conflict messages, e.g. "company acme".
func (s *Server) fail(w http.ResponseWriter, r *http.Request, err error, subject string) {
	status, message := statusFor(err, subject)
	if status >= http.StatusInternalServerError {
		hlog.FromRequest(r).Error().Err(err).Msg("request failed")
	} else {
		hlog.FromRequest(r).Debug().Err(err).Int("status", status).Msg("request rejected")
	}
	writeJSON(w, r, status, errorBody{Status: status, Message: message})
}

func statusFor(err error, subject string) (int, string) {
	var hErr *httpError
	var vErr *store.ValidationError
	switch {
	case errors.As(err, &hErr):
		return hErr.status, hErr.message
	case errors.As(err, &vErr):
		return http.StatusBadRequest, vErr.Message
	case errors.Is(err, sqlbuild.ErrEmptyUpdate):
		return http.StatusBadRequest, "No fields to update."
	case errors.Is(err, store.ErrNotFound):
		return http.StatusNotFound, fmt.Sprintf("Cannot find %s.", subject)
	case errors.Is(err, store.ErrConflict):
		return http.StatusForbidden, fmt.Sprintf("Duplicate %s.", subject)
	case errors.Is(err, store.ErrInvalidReference):
		return http.StatusForbidden, "Referenced record does not exist."
	case errors.Is(err, store.ErrConstraint):
		return http.StatusForbidden, "Value violates a data constraint."
	default:
		return http.StatusInternalServerError, "Internal Server Error"
	}
}

func writeJSON(w http.ResponseWriter, r *http.Request, status int, v any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	if err := json.NewEncoder(w).Encode(v); err != nil {
		hlog.FromRequest(r).Warn().Err(err).Msg("failed to write response")
	}
}
