package web

// errors.go provides unified error response handling for the web layer.
//
// Every error is logged with its technical detail and request ID, then mapped
// through core.MapError so clients receive a stable code, a message and a
// suggested action.

import (
	"encoding/json"
	"errors"
	"log/slog"
	"net/http"

	"github.com/JonMunkholm/shiptrack/internal/core"
	"github.com/JonMunkholm/shiptrack/internal/logging"
)

var (
	errRateLimited = errors.New("rate limit exceeded")
	errBadRequest  = errors.New("invalid request body")
)

// ErrorResponse represents the JSON structure for API error responses.
// Includes both machine-readable (Code) and human-readable (Message, Action) fields.
type ErrorResponse struct {
	Error   string `json:"error"`
	Message string `json:"message"`
	Action  string `json:"action,omitempty"`
	Code    string `json:"code"`
}

// fail responds with the status that matches err.
func fail(w http.ResponseWriter, r *http.Request, err error) {
	respondError(w, r, err, statusFor(err))
}

// respondError logs the technical error server-side and writes the mapped
// user message as JSON. Server faults and errors without a known message are
// logged at error level, the rest at warn.
func respondError(w http.ResponseWriter, r *http.Request, err error, statusCode int) {
	userMsg := core.MapError(err)

	logger := logging.FromContext(r.Context())
	attrs := []any{
		"path", r.URL.Path,
		"method", r.Method,
		"status", statusCode,
		"error", err.Error(),
		"code", userMsg.Code,
	}
	if statusCode >= http.StatusInternalServerError || !core.IsUserFacing(err) {
		logger.Error("request error", attrs...)
	} else {
		logger.Warn("request error", attrs...)
	}

	respondErrorJSON(w, userMsg, statusCode)
}

// respondErrorJSON writes a JSON error response.
func respondErrorJSON(w http.ResponseWriter, msg core.UserMessage, statusCode int) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(statusCode)
	json.NewEncoder(w).Encode(ErrorResponse{
		Error:   msg.Message,
		Message: msg.Message,
		Action:  msg.Action,
		Code:    msg.Code,
	})
}

// statusFor maps an error to an HTTP status code.
func statusFor(err error) int {
	var decErr *core.DecodeError
	var expErr *core.ExportError

	switch {
	case errors.Is(err, core.ErrFileTooLarge):
		return http.StatusRequestEntityTooLarge
	case errors.Is(err, core.ErrManifestNotFound),
		errors.Is(err, core.ErrRecordNotFound),
		errors.Is(err, core.ErrRunNotFound):
		return http.StatusNotFound
	case errors.Is(err, core.ErrRunInProgress),
		errors.Is(err, core.ErrNoActiveRun):
		return http.StatusConflict
	case errors.Is(err, core.ErrTooManyRuns):
		return http.StatusServiceUnavailable
	case errors.Is(err, errRateLimited):
		return http.StatusTooManyRequests
	case errors.Is(err, core.ErrUnsupportedFormat),
		errors.Is(err, core.ErrUnknownField),
		errors.Is(err, core.ErrNothingSelected),
		errors.Is(err, errBadRequest),
		errors.As(err, &decErr):
		return http.StatusBadRequest
	case errors.As(err, &expErr):
		return http.StatusInternalServerError
	}

	// Unknown match mode is a plain error from the normalizer.
	if core.MapError(err).Code == "DEC005" {
		return http.StatusBadRequest
	}
	return http.StatusInternalServerError
}

// writeJSON encodes v as JSON with the given status.
// Encoding errors are logged since headers are already sent.
func writeJSON(w http.ResponseWriter, status int, v any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	if err := json.NewEncoder(w).Encode(v); err != nil {
		slog.Error("json encode error", "error", err)
	}
}
