package types

import "time"

// Permission is an approval request raised by the runtime for a session.
// While one is pending the session reports pending_permission status.
type Permission struct {
	ID         string    `json:"id"`
	SessionKey string    `json:"session_key"`
	Kind       string    `json:"kind,omitempty"`
	Title      string    `json:"title,omitempty"`
	Command    string    `json:"command,omitempty"`
	Reason     string    `json:"reason,omitempty"`
	CreatedAt  time.Time `json:"created_at"`
}
