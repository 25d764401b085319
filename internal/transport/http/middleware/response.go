package middleware

import (
	"encoding/json"
	"net/http"
)

// errorBody matches the error envelope the handlers write, so clients parse one shape
// whether a request was stopped here or by a handler.
type errorBody struct {
	Error     string `json:"error"`
	ErrorCode int    `json:"error_code"`
}

// abort ends the request with status and msg.
func abort(w http.ResponseWriter, status int, msg string) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	_ = json.NewEncoder(w).Encode(errorBody{Error: msg, ErrorCode: status})
}
