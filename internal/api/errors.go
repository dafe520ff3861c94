package api

import (
	"context"
	"errors"
	"net/http"

	"github.com/MikeSquared-Agency/tempo/internal/account"
	"github.com/MikeSquared-Agency/tempo/internal/calendar"
)

// writeError maps domain errors to HTTP status codes. Internal errors are
// logged and reported without detail.
func (s *Server) writeError(w http.ResponseWriter, r *http.Request, err error) {
	var ce *calendar.ConflictError
	switch {
	case errors.As(err, &ce):
		writeJSON(w, http.StatusConflict, map[string]any{
			"error":     err.Error(),
			"message":   "The requested time conflicts with existing events.",
			"conflicts": []calendar.ConflictReport{ce.Report},
		})
	case errors.Is(err, calendar.ErrValidation), errors.Is(err, calendar.ErrParse):
		writeJSON(w, http.StatusBadRequest, map[string]string{"error": err.Error()})
	case errors.Is(err, account.ErrUserExists):
		writeJSON(w, http.StatusConflict, map[string]string{"error": "User already exists"})
	case errors.Is(err, account.ErrInvalidCredentials):
		writeJSON(w, http.StatusUnauthorized, map[string]string{"error": "Invalid email or password"})
	case errors.Is(err, account.ErrUnauthenticated):
		writeJSON(w, http.StatusUnauthorized, map[string]string{"error": "Authentication required"})
	case errors.Is(err, calendar.ErrNotFound):
		writeJSON(w, http.StatusNotFound, map[string]string{"error": err.Error()})
	case errors.Is(err, context.DeadlineExceeded):
		writeJSON(w, http.StatusGatewayTimeout, map[string]string{"error": "request timed out"})
	default:
		s.logger.Error("request failed", "method", r.Method, "path", r.URL.Path, "error", err)
		writeJSON(w, http.StatusInternalServerError, map[string]string{"error": "internal error"})
	}
}
