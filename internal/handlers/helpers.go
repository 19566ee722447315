package handlers

import (
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"net/http"

	"github.com/ternarybob/agenthub/internal/common"
	"github.com/ternarybob/arbor"
)

// maxRequestBody caps JSON request bodies
const maxRequestBody = 1 << 20

// WriteJSON writes a JSON response with the specified status code and data.
func WriteJSON(w http.ResponseWriter, statusCode int, data interface{}) error {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(statusCode)
	return json.NewEncoder(w).Encode(data)
}

// WriteSuccess writes {"success": true} plus the given entity under key.
// An empty key writes the bare envelope.
func WriteSuccess(w http.ResponseWriter, key string, value interface{}) error {
	body := map[string]interface{}{"success": true}
	if key != "" {
		body[key] = value
	}
	return WriteJSON(w, http.StatusOK, body)
}

// WriteError writes a standard error JSON response.
func WriteError(w http.ResponseWriter, statusCode int, message string) error {
	return WriteJSON(w, statusCode, map[string]interface{}{
		"success": false,
		"error":   message,
	})
}

// StatusForError maps a service error to its HTTP status code
func StatusForError(err error) int {
	switch {
	case errors.Is(err, common.ErrValidation):
		return http.StatusBadRequest
	case errors.Is(err, common.ErrNotFound):
		return http.StatusNotFound
	case errors.Is(err, common.ErrConflict):
		return http.StatusConflict
	case errors.Is(err, common.ErrUpstream):
		return http.StatusBadGateway
	case errors.Is(err, common.ErrClosed):
		return http.StatusServiceUnavailable
	default:
		return http.StatusInternalServerError
	}
}

// WriteServiceError writes err with its mapped status. Internal errors are
// logged and reported without detail.
func WriteServiceError(w http.ResponseWriter, logger arbor.ILogger, r *http.Request, err error) {
	status := StatusForError(err)
	message := err.Error()
	if status == http.StatusInternalServerError {
		logger.Error().Err(err).Str("method", r.Method).Str("path", r.URL.Path).Msg("Request failed")
		message = "internal server error"
	}
	WriteError(w, status, message)
}

// DecodeJSON reads a JSON body into v. A missing or malformed body is a validation error.
func DecodeJSON(r *http.Request, v interface{}) error {
	if r.Body == nil {
		return common.NewValidationError("body", "request body is required")
	}
	decoder := json.NewDecoder(io.LimitReader(r.Body, maxRequestBody))
	if err := decoder.Decode(v); err != nil {
		if errors.Is(err, io.EOF) {
			return common.NewValidationError("body", "request body is required")
		}
		return common.NewValidationError("body", fmt.Sprintf("invalid JSON: %v", err))
	}
	return nil
}
