package tree

import (
	"reflect"
	"testing"
	"time"

	"canopy/internal/types"
)

func session(key, parent string, createdMilli int64) *types.Session {
	return &types.Session{
		Key:       key,
		ParentKey: parent,
		CreatedAt: time.UnixMilli(createdMilli),
	}
}

func TestBuildOrdersSiblingsByCreationThenKey(t *testing.T) {
	tr := Build([]*types.Session{
		session("root", "", 100),
		session("child-b", "root", 200),
		session("child-a", "root", 300),
		session("child-c", "root", 200),
	})

	if len(tr.Roots) != 1 {
		t.Fatalf("expected one root, got %d", len(tr.Roots))
	}
	var keys []string
	for _, child := range tr.Roots[0].Children {
		keys = append(keys, child.Session.Key)
	}
	want := []string{"child-b", "child-c", "child-a"}
	if !reflect.DeepEqual(keys, want) {
		t.Fatalf("sibling order = %v, want %v", keys, want)
	}
}

func TestBuildTreatsOrphansAsRoots(t *testing.T) {
	tr := Build([]*types.Session{
		session("a", "", 100),
		session("orphan", "missing-parent", 200),
	})
	if len(tr.Roots) != 2 {
		t.Fatalf("orphan should become a root, got %d roots", len(tr.Roots))
	}
}

func TestBuildSurvivesParentCycle(t *testing.T) {
	done := make(chan *Tree, 1)
	go func() {
		done <- Build([]*types.Session{
			session("a", "b", 100),
			session("b", "a", 200),
			session("c", "a", 300),
		})
	}()

	var tr *Tree
	select {
	case tr = <-done:
	case <-time.After(2 * time.Second):
		t.Fatalf("Build did not terminate on a parent cycle")
	}

	if len(tr.Cyclic) != 2 {
		t.Fatalf("expected both cycle members flagged, got %v", tr.Cyclic)
	}
	if got := tr.Descendants("a"); len(got) != 1 || got[0] != "c" {
		t.Fatalf("a should keep only its non-cyclic child, got %v", got)
	}
	if got := tr.Descendants("b"); len(got) != 0 {
		t.Fatalf("b must not contain its cycle partner, got %v", got)
	}
	if len(tr.Roots) != 2 {
		t.Fatalf("both cycle members should surface as roots, got %d", len(tr.Roots))
	}
}

func TestComputeStats(t *testing.T) {
	tr := Build([]*types.Session{
		session("r1", "", 100),
		session("r2", "", 200),
		session("r1c1", "r1", 300),
		session("r1c2", "r1", 400),
		session("r1c1g1", "r1c1", 500),
	})

	stats := tr.ComputeStats()
	if stats.Total != 5 || stats.Roots != 2 || stats.SubAgents != 3 {
		t.Fatalf("counts = %+v", stats)
	}
	if stats.MaxDepth != 2 {
		t.Fatalf("max depth = %d, want 2", stats.MaxDepth)
	}
	if stats.PerDepth[0] != 2 || stats.PerDepth[1] != 2 || stats.PerDepth[2] != 1 {
		t.Fatalf("per-depth = %v", stats.PerDepth)
	}
}

func TestPathToAndDescendantsAreTotal(t *testing.T) {
	tr := Build([]*types.Session{
		session("r", "", 100),
		session("c", "r", 200),
		session("g", "c", 300),
	})

	want := []string{"r", "c", "g"}
	if got := tr.PathTo("g"); !reflect.DeepEqual(got, want) {
		t.Fatalf("PathTo = %v, want %v", got, want)
	}
	if got := tr.PathTo("nope"); got != nil {
		t.Fatalf("missing key should yield nil path, got %v", got)
	}
	if got := tr.Descendants("nope"); got != nil {
		t.Fatalf("missing key should yield no descendants, got %v", got)
	}
}

func TestLayoutIsDeterministicAndCentersParents(t *testing.T) {
	sessions := []*types.Session{
		session("r", "", 100),
		session("c1", "r", 200),
		session("c2", "r", 300),
	}
	cfg := LayoutConfig{Direction: DirectionVertical, NodeSpacing: 4, DepthSpacing: 8}

	first := Layout(Build(sessions), cfg)
	second := Layout(Build(sessions), cfg)
	if !reflect.DeepEqual(first, second) {
		t.Fatalf("layout must be deterministic: %v vs %v", first, second)
	}

	if first["c1"].Y != 8 || first["c2"].Y != 8 {
		t.Fatalf("children should sit one depth step down: %v", first)
	}
	wantX := (first["c1"].X + first["c2"].X) / 2
	if first["r"].X != wantX {
		t.Fatalf("parent should center over children: root %v children %v %v", first["r"], first["c1"], first["c2"])
	}
}

func TestSchedulerCoalescesBursts(t *testing.T) {
	sessions := []*types.Session{session("r", "", 100)}
	passes := make(chan map[string]Position, 8)
	s := NewScheduler(
		LayoutConfig{Debounce: 20 * time.Millisecond},
		func() *Tree { return Build(sessions) },
		func(p map[string]Position) { passes <- p },
	)
	defer s.Close()

	for i := 0; i < 10; i++ {
		s.Invalidate()
	}

	select {
	case <-passes:
	case <-time.After(2 * time.Second):
		t.Fatalf("debounced pass never ran")
	}
	select {
	case <-passes:
		t.Fatalf("burst should collapse into a single pass")
	case <-time.After(100 * time.Millisecond):
	}
}

func TestSchedulerCloseCancelsPending(t *testing.T) {
	passes := make(chan map[string]Position, 1)
	s := NewScheduler(
		LayoutConfig{Debounce: 20 * time.Millisecond},
		func() *Tree { return Build(nil) },
		func(p map[string]Position) { passes <- p },
	)
	s.Invalidate()
	s.Close()

	select {
	case <-passes:
		t.Fatalf("closed scheduler must not deliver")
	case <-time.After(100 * time.Millisecond):
	}
}
