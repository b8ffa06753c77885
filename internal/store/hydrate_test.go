package store

import (
	"context"
	"fmt"
	"sync"
	"testing"
	"time"

	"canopy/internal/sessionkey"
	"canopy/internal/types"
)

type fakeFetcher struct {
	mu      sync.Mutex
	fetches map[string]int
	history map[string][]types.MessageWithParts
}

func newFakeFetcher() *fakeFetcher {
	return &fakeFetcher{
		fetches: make(map[string]int),
		history: make(map[string][]types.MessageWithParts),
	}
}

func (f *fakeFetcher) ListMessages(_ context.Context, sessionKey string) ([]types.MessageWithParts, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.fetches[sessionKey]++
	return f.history[sessionKey], nil
}

func (f *fakeFetcher) FetchDiff(_ context.Context, _ string) ([]types.FileDiff, error) {
	return nil, nil
}

func (f *fakeFetcher) count(sessionKey string) int {
	f.mu.Lock()
	defer f.mu.Unlock()
	return f.fetches[sessionKey]
}

func TestBackgroundPartEventsDeferToOneFetch(t *testing.T) {
	s := New(nil)
	fetcher := newFakeFetcher()
	h := NewHydrator(s, fetcher, 8, nil)

	s.Apply(sessionEvent(t, types.EventSessionCreated, "/work/a", "fg"))
	s.Apply(sessionEvent(t, types.EventSessionCreated, "/work/a", "bg"))
	fgKey := sessionkey.Build("/work/a", "fg")
	bgKey := sessionkey.Build("/work/a", "bg")
	h.SetActive(fgKey)

	var flattenFires int
	s.Subscribe(TopicParts(bgKey, "m1"), func() { flattenFires++ })

	for i := 0; i < 10; i++ {
		s.Apply(partEvent(t, "/work/a", "bg", "m1", fmt.Sprintf("p%d", i), nil))
	}

	if flattenFires != 0 {
		t.Fatalf("background part events must not reach subscribers, got %d fires", flattenFires)
	}
	if got := len(s.Parts(bgKey, "m1")); got != 0 {
		t.Fatalf("background parts must not be applied live, got %d", got)
	}
	if fetcher.count(bgKey) != 0 {
		t.Fatalf("background events must not trigger fetches, got %d", fetcher.count(bgKey))
	}
	if !h.NeedsHydration(bgKey) {
		t.Fatalf("background traffic should mark the session stale")
	}
	_, _, deferred := s.Counters()
	if deferred != 10 {
		t.Fatalf("expected 10 deferred events, got %d", deferred)
	}

	// Opening the session catches up with exactly one fetch.
	h.SetActive(bgKey)
	if err := h.EnsureHydrated(context.Background(), bgKey, false); err != nil {
		t.Fatalf("hydrate: %v", err)
	}
	if err := h.EnsureHydrated(context.Background(), bgKey, false); err != nil {
		t.Fatalf("hydrate: %v", err)
	}
	if fetcher.count(bgKey) != 1 {
		t.Fatalf("expected exactly one hydration fetch, got %d", fetcher.count(bgKey))
	}
}

func TestEnsureHydratedCacheHitAndForce(t *testing.T) {
	s := New(nil)
	fetcher := newFakeFetcher()
	key := sessionkey.Build("/work/a", "s1")
	fetcher.history[key] = []types.MessageWithParts{
		{Message: &types.Message{ID: "m1", SessionKey: key, Role: types.MessageRoleUser, CreatedAt: time.UnixMilli(1000)}},
	}
	h := NewHydrator(s, fetcher, 8, nil)

	if err := h.EnsureHydrated(context.Background(), key, false); err != nil {
		t.Fatalf("hydrate: %v", err)
	}
	if len(s.Messages(key)) != 1 {
		t.Fatalf("hydration should install history")
	}
	if err := h.EnsureHydrated(context.Background(), key, false); err != nil {
		t.Fatalf("hydrate: %v", err)
	}
	if fetcher.count(key) != 1 {
		t.Fatalf("fresh session must be a cache hit, got %d fetches", fetcher.count(key))
	}

	if err := h.EnsureHydrated(context.Background(), key, true); err != nil {
		t.Fatalf("forced hydrate: %v", err)
	}
	if fetcher.count(key) != 2 {
		t.Fatalf("force must bypass the cache, got %d fetches", fetcher.count(key))
	}
}

func TestEvictionSkipsActiveSession(t *testing.T) {
	s := New(nil)
	fetcher := newFakeFetcher()
	h := NewHydrator(s, fetcher, 2, nil)

	keys := make([]string, 0, 3)
	for i := 0; i < 3; i++ {
		id := fmt.Sprintf("s%d", i)
		key := sessionkey.Build("/work/a", id)
		keys = append(keys, key)
		fetcher.history[key] = []types.MessageWithParts{
			{Message: &types.Message{ID: "m1", SessionKey: key, Role: types.MessageRoleUser}},
		}
	}

	// The active session is hydrated first, making it the LRU entry.
	h.SetActive(keys[0])
	for _, key := range keys {
		if err := h.EnsureHydrated(context.Background(), key, false); err != nil {
			t.Fatalf("hydrate %s: %v", key, err)
		}
		time.Sleep(2 * time.Millisecond)
	}

	if len(s.Messages(keys[0])) != 1 {
		t.Fatalf("active session must never be evicted")
	}
	if h.NeedsHydration(keys[0]) {
		t.Fatalf("active session should stay fresh")
	}
	if !h.NeedsHydration(keys[1]) {
		t.Fatalf("coldest background session should be evicted instead of the active one")
	}
	if len(s.Messages(keys[1])) != 0 {
		t.Fatalf("evicted session's messages should be cleared")
	}
}
