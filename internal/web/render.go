package web

import (
	"encoding/json"
	"log/slog"
	"net/http"

	"github.com/imgprompt/imgprompt/internal/errors"
)

// errorBody is the "error" member of a failed response.
type errorBody struct {
	Code    string `json:"code"`
	Message string `json:"message"`
}

// renderJSON writes {"ok":true, ...fields}.
func renderJSON(w http.ResponseWriter, status int, fields map[string]any) {
	body := make(map[string]any, len(fields)+1)
	for k, v := range fields {
		body[k] = v
	}
	body["ok"] = true
	writeJSON(w, status, body)
}

// renderError writes {"ok":false,"error":{code,message}}. Messages of
// non-public errors are replaced so file paths never reach the client.
func renderError(w http.ResponseWriter, logger *slog.Logger, err error) {
	hErr := errors.As(err)

	message := hErr.Message
	if !hErr.Public() {
		if logger != nil {
			logger.Error("request failed", "code", string(hErr.Code), "error", hErr.Message)
		}
		message = "internal error"
	}

	writeJSON(w, hErr.Status, map[string]any{
		"ok":    false,
		"error": errorBody{Code: string(hErr.Code), Message: message},
	})
}

func writeJSON(w http.ResponseWriter, status int, body any) {
	w.Header().Set("Content-Type", "application/json; charset=utf-8")
	w.Header().Set("Cache-Control", "no-store")
	w.WriteHeader(status)
	_ = json.NewEncoder(w).Encode(body)
}
