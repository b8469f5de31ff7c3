// Package api provides HTTP handlers for the Playdo API.
//
//nolint:revive // "api" package name is intentionally concise for this layer.
package api

import (
	"encoding/json"
	"errors"
	"log/slog"
	"net/http"
	"strconv"

	"github.com/go-chi/chi/v5"

	"github.com/playdo-labs/playdo/internal/auth"
	"github.com/playdo-labs/playdo/internal/domain"
)

// maxBodyBytes caps request bodies.
const maxBodyBytes = 1 << 20

// JSON writes a JSON response with the given status code.
func JSON(w http.ResponseWriter, status int, v interface{}) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	if err := json.NewEncoder(w).Encode(v); err != nil {
		slog.Error("failed to encode response", "error", err)
	}
}

// Error writes a JSON error response.
func Error(w http.ResponseWriter, status int, message string) {
	JSON(w, status, map[string]string{"error": message})
}

// decodeJSON reads a size-limited JSON body into v and writes the error
// response itself when it fails.
func decodeJSON(w http.ResponseWriter, r *http.Request, v interface{}) bool {
	r.Body = http.MaxBytesReader(w, r.Body, maxBodyBytes)
	if err := json.NewDecoder(r.Body).Decode(v); err != nil {
		var tooLarge *http.MaxBytesError
		if errors.As(err, &tooLarge) {
			Error(w, http.StatusRequestEntityTooLarge, "request body too large")
			return false
		}
		Error(w, http.StatusBadRequest, "Invalid JSON body")
		return false
	}
	return true
}

// pathID parses a positive integer URL parameter.
func pathID(r *http.Request, name string) (int64, bool) {
	id, err := strconv.ParseInt(chi.URLParam(r, name), 10, 64)
	if err != nil || id <= 0 {
		return 0, false
	}
	return id, true
}

// writeDomainError maps error kinds to HTTP status codes.
func writeDomainError(w http.ResponseWriter, r *http.Request, err error) {
	var (
		validation *domain.ValidationError
		notFound   *domain.NotFoundError
		conflict   *domain.ConflictError
		bridgeErr  *domain.BridgeError
	)

	switch {
	case errors.As(err, &validation):
		resp := map[string]string{"error": validation.Message}
		if validation.Field != "" {
			resp["field"] = validation.Field
		}
		JSON(w, http.StatusBadRequest, resp)
	case errors.As(err, &notFound):
		Error(w, http.StatusNotFound, notFound.Error())
	case errors.As(err, &conflict):
		Error(w, http.StatusConflict, conflict.Message)
	case errors.Is(err, auth.ErrInvalidCredentials):
		Error(w, http.StatusUnauthorized, "Invalid credentials")
	case errors.As(err, &bridgeErr):
		slog.ErrorContext(r.Context(), "response bridge error",
			"provider", bridgeErr.Provider,
			"path", r.URL.Path,
			"error", err)
		Error(w, http.StatusBadGateway, "The tutor is unavailable right now. Please try again.")
	default:
		slog.ErrorContext(r.Context(), "request failed",
			"path", r.URL.Path,
			"error", err)
		Error(w, http.StatusInternalServerError, "internal server error")
	}
}
