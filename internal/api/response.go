package api

import (
	"encoding/json"
	"log/slog"
	"net/http"
)

// internalErrorBody is sent in place of a payload that cannot be encoded.
var internalErrorBody = []byte(`{"status":"error","message":"Internal server error"}`)

// respond encodes payload before touching the response, so an encoding
// failure still yields a well-formed 500.
func (s *Server) respond(w http.ResponseWriter, status int, payload any) {
	body, err := json.Marshal(payload)
	if err != nil {
		slog.Error("Server.respond: failed to encode response", "error", err, "status", status)
		body, status = internalErrorBody, http.StatusInternalServerError
	}
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	if _, err := w.Write(body); err != nil {
		slog.Warn("Server.respond: failed to write response", "error", err)
	}
}
