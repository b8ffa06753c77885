package types

import "time"

type SessionStatus string

const (
	SessionStatusIdle              SessionStatus = "idle"
	SessionStatusBusy              SessionStatus = "busy"
	SessionStatusRetry             SessionStatus = "retry"
	SessionStatusPendingPermission SessionStatus = "pending_permission"
)

// Session is one agent conversation, keyed by the composite (directory,
// remote id) pair so the same remote id in two projects never collides.
type Session struct {
	Key       string         `json:"key"`
	RemoteID  string         `json:"remote_id"`
	Directory string         `json:"directory"`
	ProjectID string         `json:"project_id,omitempty"`
	ParentKey string         `json:"parent_key,omitempty"`
	Title     string         `json:"title,omitempty"`
	Status    SessionStatus  `json:"status"`
	CreatedAt time.Time      `json:"created_at"`
	UpdatedAt time.Time      `json:"updated_at"`
	Summary   SessionSummary `json:"summary"`
}

type SessionSummary struct {
	Additions int `json:"additions"`
	Deletions int `json:"deletions"`
	Files     int `json:"files"`
}

func (s *Session) Root() bool {
	return s == nil || s.ParentKey == ""
}
