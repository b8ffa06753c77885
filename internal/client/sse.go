package client

import (
	"bufio"
	"context"
	"encoding/json"
	"io"
	"net/http"
	"strings"
	"sync"

	"canopy/internal/types"
)

// Subscribe opens the runtime's global event stream. Events for every
// project arrive on one channel; the returned cancel func tears the
// stream down and is safe to call more than once.
func (c *Client) Subscribe(ctx context.Context) (<-chan types.Event, func(), error) {
	streamCtx, streamCancel := context.WithCancel(ctx)

	req, err := http.NewRequestWithContext(streamCtx, http.MethodGet, c.baseURL+"/event", nil)
	if err != nil {
		streamCancel()
		return nil, nil, err
	}
	req.Header.Set("Accept", "text/event-stream")
	if c.token != "" {
		req.SetBasicAuth(c.username, c.token)
	}

	// The stream outlives any per-request timeout; reuse the transport
	// but not the client deadline.
	streamClient := &http.Client{Transport: c.httpClient.Transport}
	resp, err := streamClient.Do(req)
	if err != nil {
		streamCancel()
		return nil, nil, err
	}
	if resp.StatusCode < 200 || resp.StatusCode >= 300 {
		raw, _ := io.ReadAll(io.LimitReader(resp.Body, 4096))
		_ = resp.Body.Close()
		streamCancel()
		return nil, nil, &APIError{
			Method:     http.MethodGet,
			Path:       "/event",
			StatusCode: resp.StatusCode,
			Message:    strings.TrimSpace(string(raw)),
		}
	}

	out := make(chan types.Event, 256)
	go func() {
		defer close(out)
		defer streamCancel()
		defer resp.Body.Close()

		scanner := bufio.NewScanner(resp.Body)
		scanner.Buffer(make([]byte, 0, 64*1024), 1024*1024)
		dataLines := make([]string, 0, 8)

		emit := func(payload string) bool {
			payload = strings.TrimSpace(payload)
			if payload == "" {
				return true
			}
			event, ok := decodeStreamEvent(payload)
			if !ok {
				return true
			}
			select {
			case <-streamCtx.Done():
				return false
			case out <- event:
				return true
			}
		}

		for scanner.Scan() {
			line := strings.TrimSpace(scanner.Text())
			if strings.HasPrefix(line, "data:") {
				dataLines = append(dataLines, strings.TrimSpace(strings.TrimPrefix(line, "data:")))
				continue
			}
			if line != "" {
				continue
			}
			if len(dataLines) == 0 {
				continue
			}
			if !emit(strings.Join(dataLines, "\n")) {
				return
			}
			dataLines = dataLines[:0]
		}
		if len(dataLines) > 0 {
			_ = emit(strings.Join(dataLines, "\n"))
		}
	}()

	var once sync.Once
	cancel := func() {
		once.Do(func() {
			streamCancel()
			_ = resp.Body.Close()
		})
	}
	return out, cancel, nil
}

func decodeStreamEvent(payload string) (types.Event, bool) {
	var event types.Event
	if err := json.Unmarshal([]byte(payload), &event); err != nil {
		return types.Event{}, false
	}
	if strings.TrimSpace(event.Type) == "" {
		return types.Event{}, false
	}
	if event.Directory == "" && len(event.Properties) > 0 {
		// Some server builds qualify the event inside properties instead
		// of at the top level.
		var probe struct {
			Directory string `json:"directory"`
		}
		if err := json.Unmarshal(event.Properties, &probe); err == nil {
			event.Directory = probe.Directory
		}
	}
	return event, true
}
