package flatten

import (
	"testing"
	"time"

	"canopy/internal/types"
)

func userMsg(id string) *types.Message {
	return &types.Message{ID: id, Role: types.MessageRoleUser, CreatedAt: time.UnixMilli(1000)}
}

func assistantMsg(id string) *types.Message {
	return &types.Message{ID: id, Role: types.MessageRoleAssistant, CreatedAt: time.UnixMilli(2000)}
}

func textPart(msgID, id, text string, ended *time.Time) *types.Part {
	return &types.Part{ID: id, MessageID: msgID, Kind: types.PartText, Text: text, EndedAt: ended}
}

func partsIndex(parts ...*types.Part) func(string) []*types.Part {
	byMsg := make(map[string][]*types.Part)
	for _, p := range parts {
		byMsg[p.MessageID] = append(byMsg[p.MessageID], p)
	}
	return func(messageID string) []*types.Part { return byMsg[messageID] }
}

func TestFlattenEmitsRowsInOrder(t *testing.T) {
	f := New()
	messages := []*types.Message{userMsg("u1"), assistantMsg("a1")}
	ended := time.UnixMilli(3000)
	partsOf := partsIndex(
		textPart("a1", "p1", "first", &ended),
		textPart("a1", "p2", "second", nil),
	)

	items := f.Flatten(messages, partsOf)
	wantIDs := []string{"msg:u1", "hdr:a1", "part:a1/p1", "part:a1/p2"}
	if len(items) != len(wantIDs) {
		t.Fatalf("got %d items, want %d", len(items), len(wantIDs))
	}
	for i, want := range wantIDs {
		if items[i].ID != want {
			t.Fatalf("item %d id = %q, want %q", i, items[i].ID, want)
		}
	}
	if items[0].Kind != KindUserMessage || items[1].Kind != KindAssistantHeader {
		t.Fatalf("wrong kinds: %s %s", items[0].Kind, items[1].Kind)
	}
	if !items[0].FirstInTurn || !items[3].LastInTurn {
		t.Fatalf("turn boundary flags missing")
	}
	if items[2].Streaming || !items[3].Streaming {
		t.Fatalf("streaming flags wrong: %v %v", items[2].Streaming, items[3].Streaming)
	}
}

func TestFlattenIsDeterministic(t *testing.T) {
	build := func() ([]*types.Message, func(string) []*types.Part) {
		return []*types.Message{userMsg("u1"), assistantMsg("a1")},
			partsIndex(textPart("a1", "p1", "body", nil))
	}

	m1, p1 := build()
	m2, p2 := build()
	first := New().Flatten(m1, p1)
	second := New().Flatten(m2, p2)

	if len(first) != len(second) {
		t.Fatalf("lengths differ: %d vs %d", len(first), len(second))
	}
	for i := range first {
		if first[i].ID != second[i].ID {
			t.Fatalf("item %d id differs: %q vs %q", i, first[i].ID, second[i].ID)
		}
	}
}

func TestFlattenReusesUnchangedTurns(t *testing.T) {
	f := New()
	oldTurn := []*types.Message{userMsg("u1"), assistantMsg("a1")}
	oldPart := textPart("a1", "p1", "done", nil)
	newPart := textPart("a2", "p2", "in progress", nil)
	messages := append(oldTurn, userMsg("u2"), assistantMsg("a2"))
	partsOf := partsIndex(oldPart, newPart)

	before := f.Flatten(messages, partsOf)

	// Mutate only the second turn's part.
	newPart.Text = "in progress, longer now"
	after := f.Flatten(messages, partsOf)

	if &before[0] == &after[0] {
		t.Fatalf("expected fresh top-level slices")
	}
	// The unchanged turn's rows must be the cached ones.
	if before[0].ID != after[0].ID || before[2].ID != after[2].ID {
		t.Fatalf("unchanged turn ids drifted")
	}
	if cached := f.turns["u1"]; cached == nil {
		t.Fatalf("first turn should stay cached")
	} else if cached.items[0].ID != "msg:u1" {
		t.Fatalf("cache holds wrong rows: %v", cached.items[0].ID)
	}

	// Dropping a turn clears its cache entry.
	shrunk := f.Flatten(oldTurn, partsIndex(oldPart))
	if len(shrunk) != 3 {
		t.Fatalf("expected 3 rows after shrink, got %d", len(shrunk))
	}
	if f.turns["u2"] != nil {
		t.Fatalf("vanished turn should drop from the cache")
	}
}

func TestStreamingForcesExpansionAndPinsOnFinish(t *testing.T) {
	policy := NewPolicy([]types.PartKind{types.PartPatch})
	streaming := Item{
		ID:        "part:a1/p1",
		Kind:      KindPart,
		Part:      textPart("a1", "p1", "live", nil),
		Streaming: true,
	}

	policy.Observe([]Item{streaming})
	if !policy.Expanded(streaming) {
		t.Fatalf("streaming row must be force-expanded")
	}

	ended := time.UnixMilli(4000)
	finished := streaming
	finished.Part = textPart("a1", "p1", "live", &ended)
	finished.Streaming = false

	policy.Observe([]Item{finished})
	if !policy.Expanded(finished) {
		t.Fatalf("finished stream must stay expanded without a user toggle")
	}
}

func TestUserCollapseDuringStreamWinsAfterFinish(t *testing.T) {
	policy := NewPolicy(nil)
	streaming := Item{
		ID:        "part:a1/p1",
		Kind:      KindPart,
		Part:      textPart("a1", "p1", "live", nil),
		Streaming: true,
	}
	policy.Observe([]Item{streaming})

	policy.Toggle(streaming)
	if !policy.Expanded(streaming) {
		t.Fatalf("live stream stays open even after a collapse toggle")
	}

	ended := time.UnixMilli(4000)
	finished := streaming
	finished.Part = textPart("a1", "p1", "live", &ended)
	finished.Streaming = false
	policy.Observe([]Item{finished})

	if policy.Expanded(finished) {
		t.Fatalf("explicit collapse must win once the stream finishes")
	}
}

func TestDefaultExpandedKindsAndToggles(t *testing.T) {
	policy := NewPolicy([]types.PartKind{types.PartPatch})
	patch := Item{
		ID:   "part:a1/p1",
		Kind: KindPart,
		Part: &types.Part{ID: "p1", MessageID: "a1", Kind: types.PartPatch, EndedAt: &time.Time{}},
	}
	text := Item{
		ID:   "part:a1/p2",
		Kind: KindPart,
		Part: &types.Part{ID: "p2", MessageID: "a1", Kind: types.PartText, EndedAt: &time.Time{}},
	}

	if !policy.Expanded(patch) {
		t.Fatalf("patch rows default expanded")
	}
	if policy.Expanded(text) {
		t.Fatalf("text rows default collapsed")
	}

	policy.Toggle(text)
	if !policy.Expanded(text) {
		t.Fatalf("toggle should expand a collapsed row")
	}
	policy.Toggle(patch)
	if policy.Expanded(patch) {
		t.Fatalf("toggle should collapse a default-expanded row")
	}
}
