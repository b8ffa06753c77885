package flatten

import "canopy/internal/types"

// Policy decides expanded/collapsed per row. Each row's state machine is
// independent: collapsed unless its kind is default-expanded, force-open
// while streaming, and pinned open once its stream finishes so content
// the user is reading never disappears.
type Policy struct {
	defaultExpanded map[types.PartKind]struct{}
	overrides       map[string]bool
	pinned          map[string]struct{}
	classification  map[string]bool
	wasStreaming    map[string]bool
}

func NewPolicy(defaultExpanded []types.PartKind) *Policy {
	kinds := make(map[types.PartKind]struct{}, len(defaultExpanded))
	for _, kind := range defaultExpanded {
		kinds[kind] = struct{}{}
	}
	return &Policy{
		defaultExpanded: kinds,
		overrides:       make(map[string]bool),
		pinned:          make(map[string]struct{}),
		classification:  make(map[string]bool),
		wasStreaming:    make(map[string]bool),
	}
}

func (p *Policy) defaultFor(item Item) bool {
	if item.Kind != KindPart || item.Part == nil {
		return false
	}
	_, ok := p.defaultExpanded[item.Part.Kind]
	return ok
}

// Observe tracks streaming transitions across a freshly flattened slice.
// A row that just finished streaming is pinned expanded unless the user
// had explicitly collapsed it; rows whose default classification changed
// drop their stale override.
func (p *Policy) Observe(items []Item) {
	for _, item := range items {
		if item.Kind != KindPart {
			continue
		}
		class := p.defaultFor(item)
		if prev, seen := p.classification[item.ID]; seen && prev != class {
			delete(p.overrides, item.ID)
		}
		p.classification[item.ID] = class

		if p.wasStreaming[item.ID] && !item.Streaming {
			if override, ok := p.overrides[item.ID]; !ok || override {
				p.pinned[item.ID] = struct{}{}
			}
		}
		p.wasStreaming[item.ID] = item.Streaming
	}
}

// Expanded reports a row's effective state. Only a live stream is
// force-open; historical siblings follow overrides, pins and defaults.
func (p *Policy) Expanded(item Item) bool {
	if item.Kind != KindPart {
		return true
	}
	if item.Streaming {
		return true
	}
	if override, ok := p.overrides[item.ID]; ok {
		return override
	}
	if _, ok := p.pinned[item.ID]; ok {
		return true
	}
	return p.defaultFor(item)
}

// Toggle flips a row and records the choice as an override that outlasts
// recomputation. Toggling while streaming records the preference for
// after the stream ends; the live row stays open.
func (p *Policy) Toggle(item Item) {
	if item.Kind != KindPart {
		return
	}
	current := p.Expanded(item)
	if item.Streaming {
		expanded := true
		if override, ok := p.overrides[item.ID]; ok {
			expanded = override
		}
		p.overrides[item.ID] = !expanded
		return
	}
	p.overrides[item.ID] = !current
	if !p.overrides[item.ID] {
		delete(p.pinned, item.ID)
	}
}
