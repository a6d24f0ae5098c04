package api

import (
	"encoding/json"
	"errors"
	"log/slog"
	"net/http"

	"github.com/trashtotreasure/treasure/internal/claim"
)

// envelope is the body of every API response.
type envelope struct {
	Success bool   `json:"success"`
	Message string `json:"message,omitempty"`
	Data    any    `json:"data,omitempty"`
}

// jsonResponse writes a successful envelope with the given status code.
func jsonResponse(w http.ResponseWriter, status int, message string, data any) {
	writeEnvelope(w, status, envelope{Success: true, Message: message, Data: data})
}

// jsonError writes a failed envelope.
func jsonError(w http.ResponseWriter, status int, message string) {
	writeEnvelope(w, status, envelope{Success: false, Message: message})
}

func writeEnvelope(w http.ResponseWriter, status int, body envelope) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	if err := json.NewEncoder(w).Encode(body); err != nil {
		slog.Error("encoding response", "error", err)
	}
}

// statusForKind maps failure kinds to HTTP status codes.
var statusForKind = map[claim.Kind]int{
	claim.KindNotFound:   http.StatusNotFound,
	claim.KindForbidden:  http.StatusForbidden,
	claim.KindConflict:   http.StatusConflict,
	claim.KindValidation: http.StatusBadRequest,
	claim.KindInternal:   http.StatusInternalServerError,
}

// respondError reports an operation error. Internal errors are logged and
// hidden from the client.
func respondError(w http.ResponseWriter, r *http.Request, err error) {
	kind := claim.KindOf(err)
	if kind == claim.KindInternal {
		slog.Error("request failed", "method", r.Method, "path", r.URL.Path, "error", err)
		jsonError(w, http.StatusInternalServerError, "internal error")
		return
	}
	msg := err.Error()
	var cerr *claim.Error
	if errors.As(err, &cerr) {
		msg = cerr.Message
	}
	jsonError(w, statusForKind[kind], msg)
}

// maxJSONBody bounds JSON request bodies.
const maxJSONBody = 1 << 20

// decodeJSON decodes a JSON request body into the given target.
func decodeJSON(w http.ResponseWriter, r *http.Request, target any) error {
	defer r.Body.Close()
	return json.NewDecoder(http.MaxBytesReader(w, r.Body, maxJSONBody)).Decode(target)
}
