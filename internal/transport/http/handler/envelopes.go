package handler

import (
	"encoding/json"
	"net/http"

	"github.com/go-enroll-api/internal/domain"
)

// MessageEnvelope is the generic response wrapper.
type MessageEnvelope struct {
	Message   string `json:"message,omitempty"`
	Error     string `json:"error,omitempty"`
	ErrorCode int    `json:"error_code,omitempty"`
}

// AuthEnvelope wraps login, refresh and verified-registration responses.
type AuthEnvelope struct {
	Bearer       string          `json:"Bearer,omitempty"`
	RefreshToken string          `json:"refresh_token,omitempty"`
	Session      *domain.Session `json:"session,omitempty"`
	Message      string          `json:"message,omitempty"`
}

// SessionEnvelope wraps current-session responses.
type SessionEnvelope struct {
	Session *domain.Session `json:"session,omitempty"`
}

// UserEnvelope wraps a single user.
type UserEnvelope struct {
	User    *domain.User `json:"user"`
	Message string       `json:"message,omitempty"`
}

// PaginatedUsersEnvelope wraps cursor-paginated user list responses.
type PaginatedUsersEnvelope struct {
	PerPage    int           `json:"per_page"`
	NextCursor string        `json:"next_cursor,omitempty"`
	Data       []domain.User `json:"data"`
}

func writeJSON(w http.ResponseWriter, status int, v interface{}) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	_ = json.NewEncoder(w).Encode(v)
}

func writeError(w http.ResponseWriter, status int, msg string) {
	writeJSON(w, status, MessageEnvelope{Error: msg, ErrorCode: status})
}

func authEnvelope(res *domain.AuthResult, msg string) AuthEnvelope {
	return AuthEnvelope{
		Bearer:       res.Bearer,
		RefreshToken: res.RefreshToken,
		Session:      res.Session,
		Message:      msg,
	}
}
