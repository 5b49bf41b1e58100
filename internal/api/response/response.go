package response

import (
	"encoding/json"
	"net/http"
)

// JSON writes v as the response body with the given status.
func JSON(w http.ResponseWriter, status int, v any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	json.NewEncoder(w).Encode(v)
}

// OK writes v with 200.
func OK(w http.ResponseWriter, v any) {
	JSON(w, http.StatusOK, v)
}

// Error writes a flat error body: {"error": message, "code": code, ...details}. Details
// never override the error or code keys.
func Error(w http.ResponseWriter, status int, code, message string, details map[string]any) {
	body := make(map[string]any, len(details)+2)
	for k, v := range details {
		body[k] = v
	}
	body["error"] = message
	body["code"] = code
	JSON(w, status, body)
}
