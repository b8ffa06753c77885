// Package tree derives the session hierarchy from the store's flat
// session collection: parent/child structure, aggregate statistics, and
// 2-D node positions for the graph view.
package tree

import (
	"sort"

	"canopy/internal/types"
)

type Node struct {
	Session  *types.Session
	Depth    int
	Children []*Node
}

type Tree struct {
	Roots []*Node
	// Cyclic lists keys whose parent chain loops back on itself. They
	// are promoted to roots with the looping edge dropped, so neither
	// member of a cycle ever appears in the other's subtree.
	Cyclic []string
}

// Build groups sessions by parent key and attaches children depth-first.
// Sessions whose parent is absent or unresolvable become roots; sibling
// groups sort by creation time ascending with the key as a stable
// tiebreak. It never loops or overflows on corrupted parent chains.
func Build(sessions []*types.Session) *Tree {
	byKey := make(map[string]*types.Session, len(sessions))
	for _, session := range sessions {
		if session != nil && session.Key != "" {
			byKey[session.Key] = session
		}
	}

	cyclic := cyclicKeys(byKey)

	children := make(map[string][]*types.Session)
	var roots []*types.Session
	for _, session := range byKey {
		if _, looped := cyclic[session.Key]; looped {
			roots = append(roots, session)
			continue
		}
		parent := session.ParentKey
		if parent == "" || byKey[parent] == nil {
			roots = append(roots, session)
			continue
		}
		children[parent] = append(children[parent], session)
	}
	sortSiblings(roots)
	for _, group := range children {
		sortSiblings(group)
	}

	t := &Tree{}
	for key := range cyclic {
		t.Cyclic = append(t.Cyclic, key)
	}
	sort.Strings(t.Cyclic)

	onPath := make(map[string]struct{}, len(byKey))
	for _, root := range roots {
		if node := attach(root, 0, children, onPath); node != nil {
			t.Roots = append(t.Roots, node)
		}
	}
	return t
}

// attach builds one subtree. onPath is the current root-to-node path;
// meeting a key already on it truncates that branch instead of
// recursing forever.
func attach(session *types.Session, depth int, children map[string][]*types.Session, onPath map[string]struct{}) *Node {
	if _, seen := onPath[session.Key]; seen {
		return nil
	}
	onPath[session.Key] = struct{}{}
	node := &Node{Session: session, Depth: depth}
	for _, child := range children[session.Key] {
		if sub := attach(child, depth+1, children, onPath); sub != nil {
			node.Children = append(node.Children, sub)
		}
	}
	delete(onPath, session.Key)
	return node
}

// cyclicKeys finds every session whose parent chain returns to itself.
func cyclicKeys(byKey map[string]*types.Session) map[string]struct{} {
	out := make(map[string]struct{})
	for start := range byKey {
		seen := map[string]struct{}{start: {}}
		current := byKey[start]
		for {
			parent := current.ParentKey
			if parent == "" || byKey[parent] == nil {
				break
			}
			if parent == start {
				out[start] = struct{}{}
				break
			}
			if _, visited := seen[parent]; visited {
				// Chain loops somewhere above start; start itself is
				// not on the cycle.
				break
			}
			seen[parent] = struct{}{}
			current = byKey[parent]
		}
	}
	return out
}

func sortSiblings(group []*types.Session) {
	sort.SliceStable(group, func(i, j int) bool {
		if group[i].CreatedAt.Equal(group[j].CreatedAt) {
			return group[i].Key < group[j].Key
		}
		return group[i].CreatedAt.Before(group[j].CreatedAt)
	})
}

type Stats struct {
	Total     int
	Roots     int
	SubAgents int
	MaxDepth  int
	PerDepth  map[int]int
}

// ComputeStats walks the tree once.
func (t *Tree) ComputeStats() Stats {
	stats := Stats{PerDepth: make(map[int]int)}
	if t == nil {
		return stats
	}
	var walk func(node *Node)
	walk = func(node *Node) {
		stats.Total++
		stats.PerDepth[node.Depth]++
		if node.Depth > stats.MaxDepth {
			stats.MaxDepth = node.Depth
		}
		if node.Depth == 0 {
			stats.Roots++
		} else {
			stats.SubAgents++
		}
		for _, child := range node.Children {
			walk(child)
		}
	}
	for _, root := range t.Roots {
		walk(root)
	}
	return stats
}

// PathTo returns the root-to-session chain of keys, or nil when the
// session is not in the tree.
func (t *Tree) PathTo(key string) []string {
	if t == nil || key == "" {
		return nil
	}
	var search func(node *Node, path []string) []string
	search = func(node *Node, path []string) []string {
		path = append(path, node.Session.Key)
		if node.Session.Key == key {
			out := make([]string, len(path))
			copy(out, path)
			return out
		}
		for _, child := range node.Children {
			if found := search(child, path); found != nil {
				return found
			}
		}
		return nil
	}
	for _, root := range t.Roots {
		if found := search(root, nil); found != nil {
			return found
		}
	}
	return nil
}

// Descendants returns every key under the given session, depth-first.
// Missing sessions yield an empty slice.
func (t *Tree) Descendants(key string) []string {
	node := t.find(key)
	if node == nil {
		return nil
	}
	var out []string
	var walk func(n *Node)
	walk = func(n *Node) {
		for _, child := range n.Children {
			out = append(out, child.Session.Key)
			walk(child)
		}
	}
	walk(node)
	return out
}

func (t *Tree) find(key string) *Node {
	if t == nil || key == "" {
		return nil
	}
	var search func(node *Node) *Node
	search = func(node *Node) *Node {
		if node.Session.Key == key {
			return node
		}
		for _, child := range node.Children {
			if found := search(child); found != nil {
				return found
			}
		}
		return nil
	}
	for _, root := range t.Roots {
		if found := search(root); found != nil {
			return found
		}
	}
	return nil
}
