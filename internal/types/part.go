package types

import "time"

type PartKind string

const (
	PartText       PartKind = "text"
	PartReasoning  PartKind = "reasoning"
	PartTool       PartKind = "tool"
	PartFile       PartKind = "file"
	PartPatch      PartKind = "patch"
	PartAgent      PartKind = "agent"
	PartSubtask    PartKind = "subtask"
	PartRetry      PartKind = "retry"
	PartCompaction PartKind = "compaction"
	PartStepStart  PartKind = "step-start"
	PartStepFinish PartKind = "step-finish"
	PartSnapshot   PartKind = "snapshot"
)

type ToolStatus string

const (
	ToolStatusPending   ToolStatus = "pending"
	ToolStatusRunning   ToolStatus = "running"
	ToolStatusCompleted ToolStatus = "completed"
	ToolStatusError     ToolStatus = "error"
)

// Part is one semantic chunk of a message. Kind selects which of the
// optional payloads is populated; consumers switch on Kind with an
// explicit default branch for kinds they do not render.
type Part struct {
	ID         string     `json:"id"`
	MessageID  string     `json:"message_id"`
	SessionKey string     `json:"session_key"`
	Kind       PartKind   `json:"kind"`
	StartedAt  *time.Time `json:"started_at,omitempty"`
	EndedAt    *time.Time `json:"ended_at,omitempty"`

	Text     string        `json:"text,omitempty"`
	Tool     *ToolState    `json:"tool,omitempty"`
	File     *FileRef      `json:"file,omitempty"`
	Patch    *PatchState   `json:"patch,omitempty"`
	Agent    *AgentRef     `json:"agent,omitempty"`
	Subtask  *SubtaskState `json:"subtask,omitempty"`
	Retry    *RetryState   `json:"retry,omitempty"`
	Snapshot string        `json:"snapshot,omitempty"`
}

// Streaming is derived from part state, never stored: a part still has
// the remote runtime producing it exactly while it lacks an end time.
func (p *Part) Streaming() bool {
	return p != nil && p.EndedAt == nil
}

type ToolState struct {
	CallID   string         `json:"call_id,omitempty"`
	Name     string         `json:"name"`
	Status   ToolStatus     `json:"status"`
	Title    string         `json:"title,omitempty"`
	Input    map[string]any `json:"input,omitempty"`
	Output   string         `json:"output,omitempty"`
	Error    string         `json:"error,omitempty"`
	Metadata map[string]any `json:"metadata,omitempty"`
}

type FileRef struct {
	Path string `json:"path"`
	Mime string `json:"mime,omitempty"`
	URL  string `json:"url,omitempty"`
}

type PatchState struct {
	Hash  string   `json:"hash,omitempty"`
	Files []string `json:"files,omitempty"`
}

// AgentRef points a part at the sub-agent session it spawned.
type AgentRef struct {
	Name       string `json:"name,omitempty"`
	SessionKey string `json:"session_key,omitempty"`
}

type SubtaskState struct {
	Description string `json:"description,omitempty"`
	Prompt      string `json:"prompt,omitempty"`
	SessionKey  string `json:"session_key,omitempty"`
}

type RetryState struct {
	Attempt int    `json:"attempt"`
	Reason  string `json:"reason,omitempty"`
}
