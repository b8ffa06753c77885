package types

import "encoding/json"

// Event is one raw push-event from the runtime's global stream. Type tags
// the payload; Directory qualifies the event to a project when present
// (absent means the background/global stream). Properties stay raw until
// the normalizer decodes the kind-specific shape.
type Event struct {
	Type       string          `json:"type"`
	Directory  string          `json:"directory,omitempty"`
	Properties json.RawMessage `json:"properties,omitempty"`
}

// Event kinds the core understands. Anything else falls through the
// normalizer's default branch.
const (
	EventSessionCreated    = "session.created"
	EventSessionUpdated    = "session.updated"
	EventSessionDeleted    = "session.deleted"
	EventSessionStatus     = "session.status"
	EventSessionDiff       = "session.diff"
	EventSessionError      = "session.error"
	EventMessageUpdated    = "message.updated"
	EventMessageRemoved    = "message.removed"
	EventPartUpdated       = "message.part.updated"
	EventPartRemoved       = "message.part.removed"
	EventPermissionUpdated = "permission.updated"
	EventPermissionReplied = "permission.replied"
	EventTodoUpdated       = "todo.updated"
	EventProjectUpdated    = "project.updated"
)
