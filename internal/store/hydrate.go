package store

import (
	"context"
	"sync"
	"time"

	"golang.org/x/sync/singleflight"

	"canopy/internal/logging"
	"canopy/internal/types"
)

// DefaultHydratedCap bounds how many sessions keep full message history
// in memory at once.
const DefaultHydratedCap = 24

// Fetcher is the outbound half of hydration. The runtime client
// implements it; both calls are idempotent and safe to repeat.
type Fetcher interface {
	ListMessages(ctx context.Context, sessionKey string) ([]types.MessageWithParts, error)
	FetchDiff(ctx context.Context, sessionKey string) ([]types.FileDiff, error)
}

type hydrationState struct {
	lastHydratedAt time.Time
	needsHydration bool
	lastUsed       time.Time
}

// Hydrator fetches full message history on demand, tracks per-session
// freshness, and evicts cold sessions past the limit. It doubles as the
// store's admission gate: background sessions skip live message traffic
// and are marked stale instead, catching up with one fetch when opened.
type Hydrator struct {
	store   *Store
	fetcher Fetcher
	logger  logging.Logger
	limit   int

	mu     sync.Mutex
	state  map[string]*hydrationState
	active string

	group singleflight.Group
}

func NewHydrator(store *Store, fetcher Fetcher, limit int, logger logging.Logger) *Hydrator {
	if limit <= 0 {
		limit = DefaultHydratedCap
	}
	if logger == nil {
		logger = logging.Nop()
	}
	h := &Hydrator{
		store:   store,
		fetcher: fetcher,
		logger:  logger,
		limit:   limit,
		state:   make(map[string]*hydrationState),
	}
	store.SetGate(h)
	return h
}

// SetActive pins the foreground session: it is never evicted and its
// message traffic is always applied live.
func (h *Hydrator) SetActive(key string) {
	h.mu.Lock()
	h.active = key
	h.mu.Unlock()
	h.store.SetActive(key)
}

// AdmitMessageTraffic implements Gate. Only the active session receives
// message and part events live; everyone else is marked stale.
func (h *Hydrator) AdmitMessageTraffic(sessionKey string) bool {
	h.mu.Lock()
	defer h.mu.Unlock()
	if sessionKey == h.active {
		return true
	}
	h.markStaleLocked(sessionKey)
	return false
}

func (h *Hydrator) markStaleLocked(key string) {
	state := h.state[key]
	if state == nil {
		state = &hydrationState{needsHydration: true}
		h.state[key] = state
		return
	}
	state.needsHydration = true
}

// MarkStale flags a session so the next EnsureHydrated re-fetches.
func (h *Hydrator) MarkStale(key string) {
	h.mu.Lock()
	h.markStaleLocked(key)
	h.mu.Unlock()
}

// NeedsHydration reports whether opening the session would fetch.
func (h *Hydrator) NeedsHydration(key string) bool {
	h.mu.Lock()
	defer h.mu.Unlock()
	state := h.state[key]
	return state == nil || state.needsHydration
}

// EnsureHydrated makes the session's full history present in the store.
// Fresh sessions are a no-op unless forced; force is reserved for an
// explicit user refresh, never fired speculatively. Concurrent calls for
// one key collapse into a single in-flight fetch.
func (h *Hydrator) EnsureHydrated(ctx context.Context, key string, force bool) error {
	h.mu.Lock()
	state := h.state[key]
	if state != nil && !state.needsHydration && !force {
		state.lastUsed = time.Now()
		h.mu.Unlock()
		return nil
	}
	h.mu.Unlock()

	_, err, _ := h.group.Do(key, func() (any, error) {
		history, err := h.fetcher.ListMessages(ctx, key)
		if err != nil {
			return nil, err
		}
		h.store.ReplaceMessages(key, history)
		now := time.Now()
		h.mu.Lock()
		h.state[key] = &hydrationState{lastHydratedAt: now, lastUsed: now}
		evict := h.evictionCandidatesLocked()
		h.mu.Unlock()
		for _, cold := range evict {
			h.logger.Debug("session evicted", logging.F("session", cold))
			h.store.EvictSession(cold)
		}
		return nil, nil
	})
	if err != nil {
		h.logger.Warn("hydration failed", logging.F("session", key), logging.F("error", err))
	}
	return err
}

// RefreshDiff re-fetches per-file change stats for a session.
func (h *Hydrator) RefreshDiff(ctx context.Context, key string) error {
	files, err := h.fetcher.FetchDiff(ctx, key)
	if err != nil {
		return err
	}
	h.store.ReplaceDiff(key, files)
	return nil
}

// evictionCandidatesLocked picks least-recently-used hydrated sessions
// beyond the cap. The active session is never a candidate, whatever its
// recency. Chosen sessions flip to needsHydration so a later open
// re-fetches.
func (h *Hydrator) evictionCandidatesLocked() []string {
	type entry struct {
		key  string
		used time.Time
	}
	var hydrated []entry
	for key, state := range h.state {
		if !state.needsHydration {
			hydrated = append(hydrated, entry{key: key, used: state.lastUsed})
		}
	}
	over := len(hydrated) - h.limit
	if over <= 0 {
		return nil
	}
	for i := 1; i < len(hydrated); i++ {
		for j := i; j > 0 && hydrated[j].used.Before(hydrated[j-1].used); j-- {
			hydrated[j], hydrated[j-1] = hydrated[j-1], hydrated[j]
		}
	}
	var out []string
	for _, candidate := range hydrated {
		if len(out) == over {
			break
		}
		if candidate.key == h.active {
			continue
		}
		h.state[candidate.key].needsHydration = true
		h.state[candidate.key].lastHydratedAt = time.Time{}
		out = append(out, candidate.key)
	}
	return out
}
