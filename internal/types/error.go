package types

import "strings"

// SessionError is the at-most-one live error a session carries, as
// reported by the remote runtime.
type SessionError struct {
	SessionKey string `json:"session_key"`
	Name       string `json:"name"`
	Message    string `json:"message,omitempty"`
}

// Signature keys error dismissal: dismissing an error suppresses its
// banner only until a distinct error (different signature) arrives.
func (e *SessionError) Signature() string {
	if e == nil {
		return ""
	}
	return strings.ToLower(strings.TrimSpace(e.Name)) + "|" + strings.TrimSpace(e.Message)
}
