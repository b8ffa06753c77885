// Package wire holds the runtime's JSON shapes and their conversion to
// the canonical model. Both the HTTP client and the event normalizer
// decode the same shapes; timestamps arrive as epoch millis inside
// `time` envelopes.
package wire

import (
	"strings"
	"time"

	"canopy/internal/sessionkey"
	"canopy/internal/types"
)

type TimeEnvelope struct {
	Created   int64  `json:"created,omitempty"`
	Updated   int64  `json:"updated,omitempty"`
	Completed int64  `json:"completed,omitempty"`
	Start     int64  `json:"start,omitempty"`
	End       *int64 `json:"end,omitempty"`
}

type Session struct {
	ID        string       `json:"id"`
	ProjectID string       `json:"projectID,omitempty"`
	Directory string       `json:"directory,omitempty"`
	ParentID  string       `json:"parentID,omitempty"`
	Title     string       `json:"title,omitempty"`
	Time      TimeEnvelope `json:"time"`
	Summary   *Summary     `json:"summary,omitempty"`
}

type Summary struct {
	Additions int `json:"additions"`
	Deletions int `json:"deletions"`
	Files     int `json:"files"`
}

type Project struct {
	ID        string       `json:"id"`
	Name      string       `json:"name,omitempty"`
	Directory string       `json:"worktree,omitempty"`
	Time      TimeEnvelope `json:"time"`
}

type MessageEnvelope struct {
	Info  MessageInfo `json:"info"`
	Parts []Part      `json:"parts,omitempty"`
}

type MessageInfo struct {
	ID         string       `json:"id"`
	SessionID  string       `json:"sessionID"`
	Role       string       `json:"role"`
	ParentID   string       `json:"parentID,omitempty"`
	ProviderID string       `json:"providerID,omitempty"`
	ModelID    string       `json:"modelID,omitempty"`
	Time       TimeEnvelope `json:"time"`
	Tokens     *Tokens      `json:"tokens,omitempty"`
	Cost       float64      `json:"cost,omitempty"`
	Finish     string       `json:"finish,omitempty"`
	Error      *Error       `json:"error,omitempty"`
}

type Tokens struct {
	Input     int64 `json:"input,omitempty"`
	Output    int64 `json:"output,omitempty"`
	Reasoning int64 `json:"reasoning,omitempty"`
	Cache     struct {
		Read  int64 `json:"read,omitempty"`
		Write int64 `json:"write,omitempty"`
	} `json:"cache,omitempty"`
}

type Error struct {
	Name    string `json:"name,omitempty"`
	Message string `json:"message,omitempty"`
	Data    struct {
		Message string `json:"message,omitempty"`
	} `json:"data,omitempty"`
}

func (e *Error) Text() string {
	if e == nil {
		return ""
	}
	if msg := strings.TrimSpace(e.Message); msg != "" {
		return msg
	}
	if msg := strings.TrimSpace(e.Data.Message); msg != "" {
		return msg
	}
	return strings.TrimSpace(e.Name)
}

type Part struct {
	ID        string         `json:"id"`
	MessageID string         `json:"messageID"`
	SessionID string         `json:"sessionID"`
	Type      string         `json:"type"`
	Text      string         `json:"text,omitempty"`
	Time      *TimeEnvelope  `json:"time,omitempty"`
	CallID    string         `json:"callID,omitempty"`
	Tool      string         `json:"tool,omitempty"`
	State     *ToolState     `json:"state,omitempty"`
	Filename  string         `json:"filename,omitempty"`
	Mime      string         `json:"mime,omitempty"`
	URL       string         `json:"url,omitempty"`
	Hash      string         `json:"hash,omitempty"`
	Files     []string       `json:"files,omitempty"`
	Name      string         `json:"name,omitempty"`
	Source    map[string]any `json:"source,omitempty"`
	Snapshot  string         `json:"snapshot,omitempty"`
	Attempt   int            `json:"attempt,omitempty"`
	Reason    string         `json:"reason,omitempty"`
}

type ToolState struct {
	Status   string         `json:"status"`
	Title    string         `json:"title,omitempty"`
	Input    map[string]any `json:"input,omitempty"`
	Output   string         `json:"output,omitempty"`
	Error    string         `json:"error,omitempty"`
	Metadata map[string]any `json:"metadata,omitempty"`
	Time     *TimeEnvelope  `json:"time,omitempty"`
}

type Diff struct {
	Path      string `json:"path"`
	Additions int    `json:"additions"`
	Deletions int    `json:"deletions"`
}

type Todo struct {
	ID      string `json:"id"`
	Content string `json:"content"`
	Status  string `json:"status"`
}

func EpochMillis(ms int64) time.Time {
	if ms <= 0 {
		return time.Time{}
	}
	return time.UnixMilli(ms).UTC()
}

func EpochMillisPtr(ms *int64) *time.Time {
	if ms == nil || *ms <= 0 {
		return nil
	}
	when := time.UnixMilli(*ms).UTC()
	return &when
}

// ToSession converts a wire session, defaulting the directory half of
// the key to the given directory when the payload omits its own.
func (s Session) ToSession(directory string) *types.Session {
	if dir := strings.TrimSpace(s.Directory); dir != "" {
		directory = dir
	}
	session := &types.Session{
		Key:       sessionkey.Build(directory, s.ID),
		RemoteID:  s.ID,
		Directory: directory,
		ProjectID: s.ProjectID,
		Title:     s.Title,
		Status:    types.SessionStatusIdle,
		CreatedAt: EpochMillis(s.Time.Created),
		UpdatedAt: EpochMillis(s.Time.Updated),
	}
	if s.ParentID != "" {
		session.ParentKey = sessionkey.Build(directory, s.ParentID)
	}
	if s.Summary != nil {
		session.Summary = types.SessionSummary{
			Additions: s.Summary.Additions,
			Deletions: s.Summary.Deletions,
			Files:     s.Summary.Files,
		}
	}
	return session
}

func (p Project) ToProject() types.Project {
	return types.Project{
		ID:        p.ID,
		Name:      p.Name,
		Directory: p.Directory,
		CreatedAt: EpochMillis(p.Time.Created),
		UpdatedAt: EpochMillis(p.Time.Updated),
	}
}

func (m MessageInfo) ToMessage(sessionKey string) *types.Message {
	msg := &types.Message{
		ID:           m.ID,
		SessionKey:   sessionKey,
		Role:         types.MessageRole(strings.ToLower(strings.TrimSpace(m.Role))),
		ParentID:     m.ParentID,
		ProviderID:   m.ProviderID,
		ModelID:      m.ModelID,
		CreatedAt:    EpochMillis(m.Time.Created),
		Cost:         m.Cost,
		FinishReason: m.Finish,
	}
	if m.Time.Completed > 0 {
		completed := EpochMillis(m.Time.Completed)
		msg.CompletedAt = &completed
	}
	if m.Tokens != nil {
		msg.Tokens = types.TokenUsage{
			Input:      m.Tokens.Input,
			Output:     m.Tokens.Output,
			Reasoning:  m.Tokens.Reasoning,
			CacheRead:  m.Tokens.Cache.Read,
			CacheWrite: m.Tokens.Cache.Write,
		}
	}
	if m.Error != nil {
		msg.Error = m.Error.Text()
	}
	return msg
}

func (p Part) ToPart(sessionKey string) *types.Part {
	part := &types.Part{
		ID:         p.ID,
		MessageID:  p.MessageID,
		SessionKey: sessionKey,
		Kind:       types.PartKind(strings.ToLower(strings.TrimSpace(p.Type))),
		Text:       p.Text,
		Snapshot:   p.Snapshot,
	}
	if p.Time != nil {
		part.StartedAt = EpochMillisPtr(&p.Time.Start)
		part.EndedAt = EpochMillisPtr(p.Time.End)
	}
	switch part.Kind {
	case types.PartTool:
		tool := &types.ToolState{
			CallID: p.CallID,
			Name:   p.Tool,
			Status: types.ToolStatusPending,
		}
		if p.State != nil {
			tool.Status = types.ToolStatus(strings.ToLower(strings.TrimSpace(p.State.Status)))
			tool.Title = p.State.Title
			tool.Input = p.State.Input
			tool.Output = p.State.Output
			tool.Error = p.State.Error
			tool.Metadata = p.State.Metadata
			if p.State.Time != nil {
				if part.StartedAt == nil {
					part.StartedAt = EpochMillisPtr(&p.State.Time.Start)
				}
				if part.EndedAt == nil {
					part.EndedAt = EpochMillisPtr(p.State.Time.End)
				}
			}
		}
		part.Tool = tool
	case types.PartFile:
		part.File = &types.FileRef{Path: p.Filename, Mime: p.Mime, URL: p.URL}
	case types.PartPatch:
		part.Patch = &types.PatchState{Hash: p.Hash, Files: p.Files}
	case types.PartAgent:
		ref := &types.AgentRef{Name: p.Name}
		if p.Source != nil {
			if id, ok := p.Source["sessionID"].(string); ok && id != "" {
				if directory, _, parsed := sessionkey.Parse(sessionKey); parsed {
					ref.SessionKey = sessionkey.Build(directory, id)
				}
			}
		}
		part.Agent = ref
	case types.PartSubtask:
		part.Subtask = &types.SubtaskState{Description: p.Reason, Prompt: p.Text}
	case types.PartRetry:
		part.Retry = &types.RetryState{Attempt: p.Attempt, Reason: p.Reason}
	default:
		// text, reasoning, compaction, step markers and unknown kinds
		// carry nothing beyond the common fields.
	}
	return part
}

func (e MessageEnvelope) ToMessageWithParts(sessionKey string) types.MessageWithParts {
	out := types.MessageWithParts{Message: e.Info.ToMessage(sessionKey)}
	if len(e.Parts) > 0 {
		out.Parts = make([]*types.Part, 0, len(e.Parts))
		for _, part := range e.Parts {
			out.Parts = append(out.Parts, part.ToPart(sessionKey))
		}
	}
	return out
}

func (t Todo) ToTodo() types.Todo {
	return types.Todo{
		ID:      t.ID,
		Content: t.Content,
		Status:  types.TodoStatus(strings.ToLower(strings.TrimSpace(t.Status))),
	}
}

func (d Diff) ToFileDiff() types.FileDiff {
	return types.FileDiff{Path: d.Path, Additions: d.Additions, Deletions: d.Deletions}
}
