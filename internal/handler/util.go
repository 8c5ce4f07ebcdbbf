// Package handler implements the HTTP API surface.
package handler

import (
	"encoding/json"
	"net/http"

	"go.uber.org/zap"

	"github.com/parley-chat/messaging-platform/internal/apperr"
	"github.com/parley-chat/messaging-platform/pkg/logger"
)

// errorBody is the wire shape of every error response.
type errorBody struct {
	Kind    string `json:"kind"`
	Code    string `json:"code,omitempty"`
	Message string `json:"message"`
}

type errorEnvelope struct {
	Error errorBody `json:"error"`
}

// writeJSON writes a JSON response with the given status.
func writeJSON(w http.ResponseWriter, status int, v interface{}) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	if v != nil {
		if err := json.NewEncoder(w).Encode(v); err != nil {
			logger.Global().Error("failed to encode response", zap.Error(err))
		}
	}
}

// writeError maps an error onto the stable error envelope. Anything outside
// the taxonomy becomes a generic internal error so internals never leak.
func writeError(w http.ResponseWriter, err error) {
	ae := apperr.From(err)
	if ae.Kind == apperr.KindInternal {
		logger.Global().Error("internal error", zap.Error(err))
	}
	writeJSON(w, ae.Kind.Status(), errorEnvelope{Error: errorBody{
		Kind:    string(ae.Kind),
		Code:    ae.Code,
		Message: ae.Message,
	}})
}

// decodeJSON decodes a request body, rejecting malformed payloads.
func decodeJSON(r *http.Request, v interface{}) error {
	if err := json.NewDecoder(r.Body).Decode(v); err != nil {
		return apperr.BadRequest("invalid request body")
	}
	return nil
}
