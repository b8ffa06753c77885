package client

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"net/http"
	"net/url"
	"strings"
	"time"

	"canopy/internal/sessionkey"
	"canopy/internal/types"
	"canopy/internal/wire"
)

// Client talks to the agent runtime over its JSON HTTP API. All calls are
// idempotent reads or explicit writes; the hydration manager is the only
// core component that issues fetches.
type Client struct {
	baseURL    string
	username   string
	token      string
	httpClient *http.Client
}

type Config struct {
	BaseURL  string
	Username string
	Token    string
	Timeout  time.Duration
}

func New(cfg Config) (*Client, error) {
	baseURL := strings.TrimSpace(cfg.BaseURL)
	if baseURL == "" {
		return nil, errors.New("runtime base_url is required")
	}
	parsed, err := url.Parse(baseURL)
	if err != nil {
		return nil, fmt.Errorf("invalid base_url: %w", err)
	}
	if parsed.Scheme == "" || parsed.Host == "" {
		return nil, fmt.Errorf("invalid base_url: %s", baseURL)
	}
	timeout := cfg.Timeout
	if timeout <= 0 {
		timeout = 30 * time.Second
	}
	username := strings.TrimSpace(cfg.Username)
	if username == "" {
		username = "opencode"
	}
	return &Client{
		baseURL:    strings.TrimRight(parsed.String(), "/"),
		username:   username,
		token:      strings.TrimSpace(cfg.Token),
		httpClient: &http.Client{Timeout: timeout},
	}, nil
}

type APIError struct {
	Method     string
	Path       string
	StatusCode int
	Message    string
}

func (e *APIError) Error() string {
	if e == nil {
		return "runtime request failed"
	}
	msg := strings.TrimSpace(e.Message)
	if msg == "" {
		msg = http.StatusText(e.StatusCode)
	}
	return fmt.Sprintf("runtime request failed (%s %s): %s", e.Method, e.Path, msg)
}

func AsAPIError(err error) *APIError {
	var apiErr *APIError
	if errors.As(err, &apiErr) {
		return apiErr
	}
	return nil
}

func (c *Client) ListProjects(ctx context.Context) ([]types.Project, error) {
	var payload []wire.Project
	if err := c.doJSON(ctx, http.MethodGet, "/project", nil, &payload); err != nil {
		return nil, err
	}
	out := make([]types.Project, 0, len(payload))
	for _, dto := range payload {
		out = append(out, dto.ToProject())
	}
	return out, nil
}

func (c *Client) ListSessions(ctx context.Context, directory string) ([]*types.Session, error) {
	path := withDirectory("/session", directory)
	var payload []wire.Session
	if err := c.doJSON(ctx, http.MethodGet, path, nil, &payload); err != nil {
		return nil, err
	}
	out := make([]*types.Session, 0, len(payload))
	for _, dto := range payload {
		out = append(out, dto.ToSession(directory))
	}
	return out, nil
}

// ListMessages fetches the full message history for a session, with parts.
func (c *Client) ListMessages(ctx context.Context, sessionKey string) ([]types.MessageWithParts, error) {
	directory, remoteID, ok := sessionkey.Parse(sessionKey)
	if !ok {
		return nil, fmt.Errorf("invalid session key: %q", sessionKey)
	}
	path := withDirectory(fmt.Sprintf("/session/%s/message", url.PathEscape(remoteID)), directory)
	var payload []wire.MessageEnvelope
	if err := c.doJSON(ctx, http.MethodGet, path, nil, &payload); err != nil {
		return nil, err
	}
	out := make([]types.MessageWithParts, 0, len(payload))
	for _, dto := range payload {
		out = append(out, dto.ToMessageWithParts(sessionKey))
	}
	return out, nil
}

func (c *Client) FetchDiff(ctx context.Context, sessionKey string) ([]types.FileDiff, error) {
	directory, remoteID, ok := sessionkey.Parse(sessionKey)
	if !ok {
		return nil, fmt.Errorf("invalid session key: %q", sessionKey)
	}
	path := withDirectory(fmt.Sprintf("/session/%s/diff", url.PathEscape(remoteID)), directory)
	var payload []wire.Diff
	if err := c.doJSON(ctx, http.MethodGet, path, nil, &payload); err != nil {
		return nil, err
	}
	out := make([]types.FileDiff, 0, len(payload))
	for _, dto := range payload {
		out = append(out, dto.ToFileDiff())
	}
	return out, nil
}

func (c *Client) CreateSession(ctx context.Context, directory, title string) (*types.Session, error) {
	payload := map[string]any{}
	if title = strings.TrimSpace(title); title != "" {
		payload["title"] = title
	}
	var result wire.Session
	path := withDirectory("/session", directory)
	if err := c.doJSON(ctx, http.MethodPost, path, payload, &result); err != nil {
		return nil, err
	}
	if strings.TrimSpace(result.ID) == "" {
		return nil, errors.New("session id missing from server response")
	}
	return result.ToSession(directory), nil
}

// ForkSession creates a child session under the given parent.
func (c *Client) ForkSession(ctx context.Context, parentKey, title string) (*types.Session, error) {
	directory, remoteID, ok := sessionkey.Parse(parentKey)
	if !ok {
		return nil, fmt.Errorf("invalid session key: %q", parentKey)
	}
	payload := map[string]any{"parentID": remoteID}
	if title = strings.TrimSpace(title); title != "" {
		payload["title"] = title
	}
	var result wire.Session
	path := withDirectory("/session", directory)
	if err := c.doJSON(ctx, http.MethodPost, path, payload, &result); err != nil {
		return nil, err
	}
	if strings.TrimSpace(result.ID) == "" {
		return nil, errors.New("session id missing from server response")
	}
	session := result.ToSession(directory)
	if session.ParentKey == "" {
		session.ParentKey = parentKey
	}
	return session, nil
}

func (c *Client) SendPrompt(ctx context.Context, sessionKey, text string) error {
	directory, remoteID, ok := sessionkey.Parse(sessionKey)
	if !ok {
		return fmt.Errorf("invalid session key: %q", sessionKey)
	}
	text = strings.TrimSpace(text)
	if text == "" {
		return errors.New("text is required")
	}
	body := map[string]any{
		"parts": []map[string]any{{"type": "text", "text": text}},
	}
	path := withDirectory(fmt.Sprintf("/session/%s/message", url.PathEscape(remoteID)), directory)
	return c.doJSON(ctx, http.MethodPost, path, body, nil)
}

func (c *Client) AbortSession(ctx context.Context, sessionKey string) error {
	directory, remoteID, ok := sessionkey.Parse(sessionKey)
	if !ok {
		return fmt.Errorf("invalid session key: %q", sessionKey)
	}
	path := withDirectory(fmt.Sprintf("/session/%s/abort", url.PathEscape(remoteID)), directory)
	return c.doJSON(ctx, http.MethodPost, path, map[string]any{}, nil)
}

func (c *Client) ReplyPermission(ctx context.Context, sessionKey, permissionID, response string) error {
	directory, remoteID, ok := sessionkey.Parse(sessionKey)
	if !ok {
		return fmt.Errorf("invalid session key: %q", sessionKey)
	}
	permissionID = strings.TrimSpace(permissionID)
	if permissionID == "" {
		return errors.New("permission id is required")
	}
	path := withDirectory(
		fmt.Sprintf("/session/%s/permissions/%s", url.PathEscape(remoteID), url.PathEscape(permissionID)),
		directory,
	)
	return c.doJSON(ctx, http.MethodPost, path, map[string]any{"response": response}, nil)
}

func (c *Client) doJSON(ctx context.Context, method, path string, body any, out any) error {
	path = "/" + strings.TrimLeft(strings.TrimSpace(path), "/")
	endpoint := c.baseURL + path

	var payload io.Reader
	if body != nil {
		data, err := json.Marshal(body)
		if err != nil {
			return err
		}
		payload = bytes.NewReader(data)
	}

	req, err := http.NewRequestWithContext(ctx, method, endpoint, payload)
	if err != nil {
		return err
	}
	req.Header.Set("Accept", "application/json")
	if body != nil {
		req.Header.Set("Content-Type", "application/json")
	}
	if c.token != "" {
		req.SetBasicAuth(c.username, c.token)
	}

	resp, err := c.httpClient.Do(req)
	if err != nil {
		return err
	}
	defer resp.Body.Close()

	if resp.StatusCode < 200 || resp.StatusCode >= 300 {
		raw, _ := io.ReadAll(io.LimitReader(resp.Body, 4096))
		msg := strings.TrimSpace(string(raw))
		if msg == "" {
			msg = resp.Status
		}
		return &APIError{Method: method, Path: path, StatusCode: resp.StatusCode, Message: msg}
	}
	if out == nil {
		return nil
	}
	return json.NewDecoder(resp.Body).Decode(out)
}

func withDirectory(path, directory string) string {
	directory = strings.TrimSpace(directory)
	if directory == "" {
		return path
	}
	separator := "?"
	if strings.Contains(path, "?") {
		separator = "&"
	}
	return path + separator + "directory=" + url.QueryEscape(directory)
}
