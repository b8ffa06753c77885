// Package flatten converts a session's nested message/part structure
// into the ordered row sequence the virtualized transcript renders, with
// turn-level reuse so background mutations never force a full rebuild.
package flatten

import (
	"hash/fnv"
	"strconv"

	"canopy/internal/types"
)

type ItemKind string

const (
	KindUserMessage     ItemKind = "user-message"
	KindAssistantHeader ItemKind = "assistant-header"
	KindPart            ItemKind = "part"
)

// Item is one renderable row. ID derives from the underlying entity,
// never from array position, so a virtualization index keyed by it
// survives recomputation.
type Item struct {
	ID          string
	Kind        ItemKind
	Message     *types.Message
	Part        *types.Part
	FirstInTurn bool
	LastInTurn  bool
	Streaming   bool
}

func messageItemID(msg *types.Message) string {
	if msg.Role == types.MessageRoleUser {
		return "msg:" + msg.ID
	}
	return "hdr:" + msg.ID
}

func partItemID(part *types.Part) string {
	return "part:" + part.MessageID + "/" + part.ID
}

// Flattener caches flattened rows per turn. A turn is one user message
// plus the assistant messages that answer it; its rows are rebuilt only
// when the cheap signature over its message and part state changes.
type Flattener struct {
	turns map[string]*turnCache
}

type turnCache struct {
	signature uint64
	items     []Item
}

func New() *Flattener {
	return &Flattener{turns: make(map[string]*turnCache)}
}

// Flatten emits, for each message in order, a user-message or
// assistant-header row followed by one row per part. Deterministic:
// identical inputs produce identical ids in identical order, and an
// unchanged turn returns the previously built slice untouched.
func (f *Flattener) Flatten(messages []*types.Message, partsOf func(messageID string) []*types.Part) []Item {
	if partsOf == nil {
		partsOf = func(string) []*types.Part { return nil }
	}
	turns := splitTurns(messages)
	live := make(map[string]struct{}, len(turns))
	out := make([]Item, 0, len(messages)*2)
	for _, turn := range turns {
		live[turn.id] = struct{}{}
		signature := turnSignature(turn.messages, partsOf)
		cached := f.turns[turn.id]
		if cached == nil || cached.signature != signature {
			cached = &turnCache{signature: signature, items: buildTurn(turn.messages, partsOf)}
			f.turns[turn.id] = cached
		}
		out = append(out, cached.items...)
	}
	for id := range f.turns {
		if _, ok := live[id]; !ok {
			delete(f.turns, id)
		}
	}
	return out
}

type turn struct {
	id       string
	messages []*types.Message
}

// splitTurns groups a user message with the assistant messages that
// follow it. Leading assistant messages form a turn of their own.
func splitTurns(messages []*types.Message) []turn {
	var turns []turn
	for _, msg := range messages {
		if msg == nil {
			continue
		}
		if msg.Role == types.MessageRoleUser || len(turns) == 0 {
			turns = append(turns, turn{id: msg.ID})
		}
		last := &turns[len(turns)-1]
		last.messages = append(last.messages, msg)
	}
	return turns
}

func buildTurn(messages []*types.Message, partsOf func(messageID string) []*types.Part) []Item {
	var items []Item
	for _, msg := range messages {
		kind := KindAssistantHeader
		if msg.Role == types.MessageRoleUser {
			kind = KindUserMessage
		}
		items = append(items, Item{ID: messageItemID(msg), Kind: kind, Message: msg})
		for _, part := range partsOf(msg.ID) {
			if part == nil {
				continue
			}
			items = append(items, Item{
				ID:        partItemID(part),
				Kind:      KindPart,
				Message:   msg,
				Part:      part,
				Streaming: part.Streaming(),
			})
		}
	}
	if len(items) > 0 {
		items[0].FirstInTurn = true
		items[len(items)-1].LastInTurn = true
	}
	return items
}

// turnSignature hashes the identity and progress markers of a turn:
// message ids and completion, part ids, end markers, text growth and
// tool status. Anything that should change a row changes the hash.
func turnSignature(messages []*types.Message, partsOf func(messageID string) []*types.Part) uint64 {
	h := fnv.New64a()
	write := func(s string) {
		_, _ = h.Write([]byte(s))
		_, _ = h.Write([]byte{0})
	}
	for _, msg := range messages {
		write(msg.ID)
		write(string(msg.Role))
		write(msg.Error)
		if msg.CompletedAt != nil {
			write(strconv.FormatInt(msg.CompletedAt.UnixMilli(), 10))
		}
		for _, part := range partsOf(msg.ID) {
			if part == nil {
				continue
			}
			write(part.ID)
			write(string(part.Kind))
			write(strconv.Itoa(len(part.Text)))
			if part.EndedAt != nil {
				write(strconv.FormatInt(part.EndedAt.UnixMilli(), 10))
			}
			if part.Tool != nil {
				write(string(part.Tool.Status))
				write(strconv.Itoa(len(part.Tool.Output)))
			}
		}
	}
	return h.Sum64()
}
