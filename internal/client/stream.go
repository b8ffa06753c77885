package client

import (
	"context"
	"sync"
	"time"

	"canopy/internal/logging"
	"canopy/internal/types"
)

type StreamState string

const (
	StreamDisconnected StreamState = "disconnected"
	StreamConnecting   StreamState = "connecting"
	StreamConnected    StreamState = "connected"
	StreamBackoff      StreamState = "backoff"
)

const (
	streamBackoffMin = 250 * time.Millisecond
	streamBackoffMax = 30 * time.Second
)

// Stream supervises the long-lived event subscription: it reconnects
// with bounded backoff when the stream drops and exposes a connectivity
// state consumers can subscribe to. Run exits only when the context is
// canceled.
type Stream struct {
	client *Client
	logger logging.Logger

	mu      sync.Mutex
	state   StreamState
	onState func(StreamState)

	events chan types.Event
}

func NewStream(client *Client, logger logging.Logger) *Stream {
	if logger == nil {
		logger = logging.Nop()
	}
	return &Stream{
		client: client,
		logger: logger,
		state:  StreamDisconnected,
		events: make(chan types.Event, 256),
	}
}

// Events is the merged event channel across reconnects. Closed when Run
// returns.
func (s *Stream) Events() <-chan types.Event {
	return s.events
}

func (s *Stream) State() StreamState {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.state
}

// OnStateChange registers a single observer for connectivity changes.
// The callback runs on the supervisor goroutine and must not block.
func (s *Stream) OnStateChange(fn func(StreamState)) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.onState = fn
}

func (s *Stream) setState(state StreamState) {
	s.mu.Lock()
	changed := s.state != state
	s.state = state
	fn := s.onState
	s.mu.Unlock()
	if changed && fn != nil {
		fn(state)
	}
}

// Run drives the reconnect loop until ctx is canceled.
func (s *Stream) Run(ctx context.Context) {
	defer close(s.events)
	defer s.setState(StreamDisconnected)

	delay := streamBackoffMin
	for {
		if ctx.Err() != nil {
			return
		}
		s.setState(StreamConnecting)
		incoming, cancel, err := s.client.Subscribe(ctx)
		if err != nil {
			s.logger.Warn("event stream connect failed", logging.F("err", err), logging.F("retry_in", delay))
			s.setState(StreamBackoff)
			if !sleepCtx(ctx, delay) {
				return
			}
			delay = nextBackoff(delay)
			continue
		}

		s.setState(StreamConnected)
		delay = streamBackoffMin
		s.pump(ctx, incoming)
		cancel()
		if ctx.Err() != nil {
			return
		}
		s.logger.Warn("event stream dropped", logging.F("retry_in", delay))
		s.setState(StreamBackoff)
		if !sleepCtx(ctx, delay) {
			return
		}
		delay = nextBackoff(delay)
	}
}

func (s *Stream) pump(ctx context.Context, incoming <-chan types.Event) {
	for {
		select {
		case <-ctx.Done():
			return
		case event, ok := <-incoming:
			if !ok {
				return
			}
			select {
			case s.events <- event:
			case <-ctx.Done():
				return
			}
		}
	}
}

func nextBackoff(delay time.Duration) time.Duration {
	delay *= 2
	if delay > streamBackoffMax {
		delay = streamBackoffMax
	}
	return delay
}

func sleepCtx(ctx context.Context, delay time.Duration) bool {
	timer := time.NewTimer(delay)
	defer timer.Stop()
	select {
	case <-ctx.Done():
		return false
	case <-timer.C:
		return true
	}
}
