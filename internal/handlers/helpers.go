package handlers

import (
	"encoding/json"
	"errors"
	"io"
	"net/http"
	"strconv"

	"github.com/ternarybob/runpack/internal/interfaces"
	"github.com/ternarybob/runpack/internal/services/lifecycle"
)

// maxRequestBody caps request bodies well above the largest payload limit
// so oversized payloads still reach the validator for a 400 with a
// limit-specific message.
const maxRequestBody = 4 << 20

// WriteJSON writes a JSON response with the specified status code and data.
func WriteJSON(w http.ResponseWriter, statusCode int, data interface{}) error {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(statusCode)
	return json.NewEncoder(w).Encode(data)
}

// WriteError writes a standard error JSON response `{error, details?}`.
func WriteError(w http.ResponseWriter, statusCode int, message string, details ...string) error {
	body := map[string]string{"error": message}
	if len(details) > 0 && details[0] != "" {
		body["details"] = details[0]
	}
	return WriteJSON(w, statusCode, body)
}

// DecodeJSON reads and decodes a JSON request body into dst.
func DecodeJSON(w http.ResponseWriter, r *http.Request, dst interface{}) bool {
	body, err := io.ReadAll(io.LimitReader(r.Body, maxRequestBody))
	if err != nil {
		WriteError(w, http.StatusBadRequest, "failed to read request body", err.Error())
		return false
	}
	if err := json.Unmarshal(body, dst); err != nil {
		WriteError(w, http.StatusBadRequest, "invalid JSON body", err.Error())
		return false
	}
	return true
}

// ParseLimit reads the limit query parameter, falling back to def.
func ParseLimit(r *http.Request, def int) int {
	if s := r.URL.Query().Get("limit"); s != "" {
		if parsed, err := strconv.Atoi(s); err == nil && parsed > 0 {
			return parsed
		}
	}
	return def
}

// WriteLifecycleError translates lifecycle and storage errors to HTTP
// status codes: conflict 409, precondition violations 400, unknown ids
// 404, everything else 500.
func WriteLifecycleError(w http.ResponseWriter, err error) {
	switch {
	case errors.Is(err, lifecycle.ErrClaimConflict):
		WriteError(w, http.StatusConflict, err.Error())
	case errors.Is(err, lifecycle.ErrNotClaimed), errors.Is(err, lifecycle.ErrNotLive), errors.Is(err, lifecycle.ErrUnknownRunner):
		WriteError(w, http.StatusBadRequest, err.Error())
	case errors.Is(err, interfaces.ErrNotFound):
		WriteError(w, http.StatusNotFound, "not found")
	default:
		WriteError(w, http.StatusInternalServerError, "internal error", err.Error())
	}
}
