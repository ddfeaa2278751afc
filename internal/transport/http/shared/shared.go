// Package shared centralizes JSON response writing for all handlers.
package shared

import (
	"encoding/json"
	"errors"
	"net/http"

	dErrors "flowledger/pkg/domain-errors"
)

// WriteError translates a domain error into the JSON error envelope.
// Keeping one choke point ensures every failure surfaces the same shape:
// {"error": CODE, "message": ...}.
func WriteError(w http.ResponseWriter, err error) {
	code := dErrors.CodeInternal
	message := "internal error"

	var de *dErrors.DomainError
	if errors.As(err, &de) {
		code = de.Code
		message = de.Message
	}

	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(dErrors.ToHTTPStatus(code))
	_ = json.NewEncoder(w).Encode(map[string]string{
		"error":   string(code),
		"message": message,
	})
}

// WriteJSON writes a JSON body with the given status.
func WriteJSON(w http.ResponseWriter, status int, body any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	_ = json.NewEncoder(w).Encode(body)
}

// DecodeAndValidate decodes a JSON request body and runs its Validate
// method when it has one. On failure the error response is already
// written and ok is false.
func DecodeAndValidate[T any](w http.ResponseWriter, r *http.Request) (*T, bool) {
	var req T
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		WriteError(w, dErrors.New(dErrors.CodeBadRequest, "invalid JSON body"))
		return nil, false
	}
	if v, ok := any(&req).(interface{ Validate() error }); ok {
		if err := v.Validate(); err != nil {
			WriteError(w, err)
			return nil, false
		}
	}
	return &req, true
}
