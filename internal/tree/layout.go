package tree

import (
	"sync"
	"time"
)

type Direction string

const (
	DirectionVertical   Direction = "vertical"
	DirectionHorizontal Direction = "horizontal"
)

const DefaultDebounce = 40 * time.Millisecond

type LayoutConfig struct {
	Direction    Direction
	NodeSpacing  int
	DepthSpacing int
	Debounce     time.Duration
}

func (c LayoutConfig) withDefaults() LayoutConfig {
	if c.Direction != DirectionHorizontal {
		c.Direction = DirectionVertical
	}
	if c.NodeSpacing <= 0 {
		c.NodeSpacing = 4
	}
	if c.DepthSpacing <= 0 {
		c.DepthSpacing = 8
	}
	if c.Debounce <= 0 {
		c.Debounce = DefaultDebounce
	}
	return c
}

type Position struct {
	X int
	Y int
}

// Layout computes layered positions: depth fixes one axis, and leaves
// take consecutive slots on the other with parents centered over their
// children. Deterministic for a given tree and config.
func Layout(t *Tree, cfg LayoutConfig) map[string]Position {
	cfg = cfg.withDefaults()
	positions := make(map[string]Position)
	if t == nil {
		return positions
	}
	nextSlot := 0
	var place func(node *Node) int
	place = func(node *Node) int {
		var slot int
		if len(node.Children) == 0 {
			slot = nextSlot
			nextSlot += cfg.NodeSpacing
		} else {
			first, last := 0, 0
			for i, child := range node.Children {
				at := place(child)
				if i == 0 {
					first = at
				}
				last = at
			}
			slot = (first + last) / 2
		}
		depth := node.Depth * cfg.DepthSpacing
		if cfg.Direction == DirectionHorizontal {
			positions[node.Session.Key] = Position{X: depth, Y: slot}
		} else {
			positions[node.Session.Key] = Position{X: slot, Y: depth}
		}
		return slot
	}
	for _, root := range t.Roots {
		place(root)
	}
	return positions
}

// Scheduler coalesces bursts of structural changes into one layout pass
// over the final state. A pending pass is superseded by a newer burst
// and canceled on Close; a superseded pass never delivers stale
// positions.
type Scheduler struct {
	cfg     LayoutConfig
	source  func() *Tree
	deliver func(map[string]Position)

	mu     sync.Mutex
	timer  *time.Timer
	gen    uint64
	closed bool
}

// NewScheduler wires a layout pipeline: source snapshots the current
// tree, deliver receives the finished positions.
func NewScheduler(cfg LayoutConfig, source func() *Tree, deliver func(map[string]Position)) *Scheduler {
	return &Scheduler{cfg: cfg.withDefaults(), source: source, deliver: deliver}
}

// Invalidate notes a structural change. The layout pass runs once the
// debounce window closes without another call.
func (s *Scheduler) Invalidate() {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.closed {
		return
	}
	s.gen++
	gen := s.gen
	if s.timer != nil {
		s.timer.Stop()
	}
	s.timer = time.AfterFunc(s.cfg.Debounce, func() { s.run(gen) })
}

func (s *Scheduler) run(gen uint64) {
	s.mu.Lock()
	if s.closed || gen != s.gen {
		s.mu.Unlock()
		return
	}
	s.mu.Unlock()

	positions := Layout(s.source(), s.cfg)

	// A burst that started while we were computing wins; drop this pass.
	s.mu.Lock()
	stale := s.closed || gen != s.gen
	s.mu.Unlock()
	if stale {
		return
	}
	s.deliver(positions)
}

// Flush runs any pending pass immediately, for tests and teardown paths
// that cannot wait out the debounce window.
func (s *Scheduler) Flush() {
	s.mu.Lock()
	if s.closed || s.timer == nil {
		s.mu.Unlock()
		return
	}
	s.timer.Stop()
	s.timer = nil
	gen := s.gen
	s.mu.Unlock()
	s.run(gen)
}

func (s *Scheduler) Close() {
	s.mu.Lock()
	s.closed = true
	if s.timer != nil {
		s.timer.Stop()
		s.timer = nil
	}
	s.mu.Unlock()
}
