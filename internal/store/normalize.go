package store

import (
	"encoding/json"
	"errors"
	"fmt"
	"strings"

	"canopy/internal/sessionkey"
	"canopy/internal/types"
	"canopy/internal/wire"
)

// change is one atomic store mutation, produced by normalizeEvent from
// exactly one raw event. apply runs under the store lock and returns the
// topics whose subscribers must be re-invoked.
type change interface {
	apply(s *Store) []string
}

// errUnknownEvent marks kinds outside the closed set. The store counts
// them and moves on; they are not a decode failure.
var errUnknownEvent = errors.New("unknown event kind")

type sessionUpsert struct {
	session *types.Session
}

type sessionDeleted struct {
	key string
}

type statusChange struct {
	key    string
	status types.SessionStatus
}

type diffChange struct {
	key   string
	files []types.FileDiff
}

type errorChange struct {
	key string
	err *types.SessionError
}

type messageUpsert struct {
	msg *types.Message
}

type messageRemoved struct {
	key       string
	messageID string
}

type partUpsert struct {
	part *types.Part
}

type partRemoved struct {
	key       string
	messageID string
	partID    string
}

type permissionRaised struct {
	perm *types.Permission
}

type permissionSettled struct {
	key          string
	permissionID string
}

type todosChange struct {
	key   string
	todos []types.Todo
}

type projectChange struct {
	project types.Project
}

// normalizeEvent converts one raw push-event into a change with the
// composite session key already substituted for the bare remote id.
// fallbackDirectory fills in for events on the global stream that omit
// a directory qualifier. It never panics: unknown kinds return
// errUnknownEvent, payloads missing required fields return a decode
// error, and both leave the store untouched.
func normalizeEvent(evt types.Event, fallbackDirectory string) (change, error) {
	directory := strings.TrimSpace(evt.Directory)
	if directory == "" {
		directory = fallbackDirectory
	}
	key := func(remoteID string) (string, error) {
		remoteID = strings.TrimSpace(remoteID)
		if remoteID == "" {
			return "", fmt.Errorf("%s: session id missing", evt.Type)
		}
		return sessionkey.Build(directory, remoteID), nil
	}

	switch evt.Type {
	case types.EventSessionCreated, types.EventSessionUpdated:
		var props struct {
			Info wire.Session `json:"info"`
		}
		if err := json.Unmarshal(evt.Properties, &props); err != nil {
			return nil, fmt.Errorf("%s: %w", evt.Type, err)
		}
		if strings.TrimSpace(props.Info.ID) == "" {
			return nil, fmt.Errorf("%s: session id missing", evt.Type)
		}
		return sessionUpsert{session: props.Info.ToSession(directory)}, nil

	case types.EventSessionDeleted:
		var props struct {
			Info wire.Session `json:"info"`
		}
		if err := json.Unmarshal(evt.Properties, &props); err != nil {
			return nil, fmt.Errorf("%s: %w", evt.Type, err)
		}
		k, err := key(props.Info.ID)
		if err != nil {
			return nil, err
		}
		return sessionDeleted{key: k}, nil

	case types.EventSessionStatus:
		var props struct {
			SessionID string `json:"sessionID"`
			Status    struct {
				Type string `json:"type"`
			} `json:"status"`
		}
		if err := json.Unmarshal(evt.Properties, &props); err != nil {
			return nil, fmt.Errorf("%s: %w", evt.Type, err)
		}
		k, err := key(props.SessionID)
		if err != nil {
			return nil, err
		}
		return statusChange{key: k, status: parseStatus(props.Status.Type)}, nil

	case types.EventSessionDiff:
		var props struct {
			SessionID string      `json:"sessionID"`
			Diff      []wire.Diff `json:"diff"`
		}
		if err := json.Unmarshal(evt.Properties, &props); err != nil {
			return nil, fmt.Errorf("%s: %w", evt.Type, err)
		}
		k, err := key(props.SessionID)
		if err != nil {
			return nil, err
		}
		files := make([]types.FileDiff, 0, len(props.Diff))
		for _, d := range props.Diff {
			files = append(files, d.ToFileDiff())
		}
		return diffChange{key: k, files: files}, nil

	case types.EventSessionError:
		var props struct {
			SessionID string      `json:"sessionID"`
			Error     *wire.Error `json:"error"`
		}
		if err := json.Unmarshal(evt.Properties, &props); err != nil {
			return nil, fmt.Errorf("%s: %w", evt.Type, err)
		}
		k, err := key(props.SessionID)
		if err != nil {
			return nil, err
		}
		if props.Error == nil {
			return errorChange{key: k, err: nil}, nil
		}
		return errorChange{key: k, err: &types.SessionError{
			SessionKey: k,
			Name:       props.Error.Name,
			Message:    props.Error.Text(),
		}}, nil

	case types.EventMessageUpdated:
		var props struct {
			Info wire.MessageInfo `json:"info"`
		}
		if err := json.Unmarshal(evt.Properties, &props); err != nil {
			return nil, fmt.Errorf("%s: %w", evt.Type, err)
		}
		if strings.TrimSpace(props.Info.ID) == "" {
			return nil, fmt.Errorf("%s: message id missing", evt.Type)
		}
		k, err := key(props.Info.SessionID)
		if err != nil {
			return nil, err
		}
		return messageUpsert{msg: props.Info.ToMessage(k)}, nil

	case types.EventMessageRemoved:
		var props struct {
			SessionID string `json:"sessionID"`
			MessageID string `json:"messageID"`
		}
		if err := json.Unmarshal(evt.Properties, &props); err != nil {
			return nil, fmt.Errorf("%s: %w", evt.Type, err)
		}
		if strings.TrimSpace(props.MessageID) == "" {
			return nil, fmt.Errorf("%s: message id missing", evt.Type)
		}
		k, err := key(props.SessionID)
		if err != nil {
			return nil, err
		}
		return messageRemoved{key: k, messageID: props.MessageID}, nil

	case types.EventPartUpdated:
		var props struct {
			Part *wire.Part `json:"part"`
		}
		if err := json.Unmarshal(evt.Properties, &props); err != nil {
			return nil, fmt.Errorf("%s: %w", evt.Type, err)
		}
		if props.Part == nil || strings.TrimSpace(props.Part.ID) == "" || strings.TrimSpace(props.Part.MessageID) == "" {
			return nil, fmt.Errorf("%s: part identity missing", evt.Type)
		}
		k, err := key(props.Part.SessionID)
		if err != nil {
			return nil, err
		}
		return partUpsert{part: props.Part.ToPart(k)}, nil

	case types.EventPartRemoved:
		var props struct {
			Part      *wire.Part `json:"part"`
			SessionID string     `json:"sessionID"`
			MessageID string     `json:"messageID"`
			PartID    string     `json:"partID"`
		}
		if err := json.Unmarshal(evt.Properties, &props); err != nil {
			return nil, fmt.Errorf("%s: %w", evt.Type, err)
		}
		sessionID, messageID, partID := props.SessionID, props.MessageID, props.PartID
		if props.Part != nil {
			sessionID, messageID, partID = props.Part.SessionID, props.Part.MessageID, props.Part.ID
		}
		if strings.TrimSpace(messageID) == "" || strings.TrimSpace(partID) == "" {
			return nil, fmt.Errorf("%s: part identity missing", evt.Type)
		}
		k, err := key(sessionID)
		if err != nil {
			return nil, err
		}
		return partRemoved{key: k, messageID: messageID, partID: partID}, nil

	case types.EventPermissionUpdated:
		var props struct {
			ID        string            `json:"id"`
			SessionID string            `json:"sessionID"`
			Type      string            `json:"type"`
			Title     string            `json:"title"`
			Time      wire.TimeEnvelope `json:"time"`
			Metadata  struct {
				Command string `json:"command"`
				Reason  string `json:"reason"`
			} `json:"metadata"`
		}
		if err := json.Unmarshal(evt.Properties, &props); err != nil {
			return nil, fmt.Errorf("%s: %w", evt.Type, err)
		}
		if strings.TrimSpace(props.ID) == "" {
			return nil, fmt.Errorf("%s: permission id missing", evt.Type)
		}
		k, err := key(props.SessionID)
		if err != nil {
			return nil, err
		}
		return permissionRaised{perm: &types.Permission{
			ID:         props.ID,
			SessionKey: k,
			Kind:       props.Type,
			Title:      props.Title,
			Command:    props.Metadata.Command,
			Reason:     props.Metadata.Reason,
			CreatedAt:  wire.EpochMillis(props.Time.Created),
		}}, nil

	case types.EventPermissionReplied:
		var props struct {
			SessionID    string `json:"sessionID"`
			PermissionID string `json:"permissionID"`
		}
		if err := json.Unmarshal(evt.Properties, &props); err != nil {
			return nil, fmt.Errorf("%s: %w", evt.Type, err)
		}
		if strings.TrimSpace(props.PermissionID) == "" {
			return nil, fmt.Errorf("%s: permission id missing", evt.Type)
		}
		k, err := key(props.SessionID)
		if err != nil {
			return nil, err
		}
		return permissionSettled{key: k, permissionID: props.PermissionID}, nil

	case types.EventTodoUpdated:
		var props struct {
			SessionID string      `json:"sessionID"`
			Todos     []wire.Todo `json:"todos"`
		}
		if err := json.Unmarshal(evt.Properties, &props); err != nil {
			return nil, fmt.Errorf("%s: %w", evt.Type, err)
		}
		k, err := key(props.SessionID)
		if err != nil {
			return nil, err
		}
		todos := make([]types.Todo, 0, len(props.Todos))
		for _, t := range props.Todos {
			todos = append(todos, t.ToTodo())
		}
		return todosChange{key: k, todos: todos}, nil

	case types.EventProjectUpdated:
		var props struct {
			Info wire.Project `json:"info"`
		}
		if err := json.Unmarshal(evt.Properties, &props); err != nil {
			return nil, fmt.Errorf("%s: %w", evt.Type, err)
		}
		if strings.TrimSpace(props.Info.ID) == "" {
			return nil, fmt.Errorf("%s: project id missing", evt.Type)
		}
		return projectChange{project: props.Info.ToProject()}, nil

	default:
		return nil, errUnknownEvent
	}
}

func parseStatus(raw string) types.SessionStatus {
	switch strings.ToLower(strings.TrimSpace(raw)) {
	case "busy", "running":
		return types.SessionStatusBusy
	case "retry":
		return types.SessionStatusRetry
	case "pending_permission", "permission":
		return types.SessionStatusPendingPermission
	default:
		return types.SessionStatusIdle
	}
}
