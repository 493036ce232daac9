package httpapi

import (
	"encoding/json"
	"log/slog"
	"net/http"
)

type errorResponse struct {
	Error     string `json:"error"`
	Message   string `json:"message"`
	RequestID string `json:"request_id,omitempty"`
}

// respond writes v as JSON. Encoding failures can only be logged since the
// status line is already out.
func respond(w http.ResponseWriter, r *http.Request, logger *slog.Logger, status int, v any) {
	w.Header().Set("Content-Type", "application/json; charset=utf-8")
	w.WriteHeader(status)
	if err := json.NewEncoder(w).Encode(v); err != nil {
		logger.Error("failed to write response",
			"path", r.URL.Path,
			"request_id", RequestID(r.Context()),
			"error", err,
		)
	}
}

// fail writes an error body carrying the request id, so a client report can
// be matched with the server log line.
func fail(w http.ResponseWriter, r *http.Request, logger *slog.Logger, status int, msg string) {
	respond(w, r, logger, status, errorResponse{
		Error:     http.StatusText(status),
		Message:   msg,
		RequestID: RequestID(r.Context()),
	})
}
