package app

import (
	"strings"
	"testing"
	"time"

	"canopy/internal/types"
)

func TestRebuildTreeProducesDepthFirstRows(t *testing.T) {
	m := newTestModel(t)
	base := time.Date(2026, 3, 1, 12, 0, 0, 0, time.UTC)
	m.store.ReplaceSessions("/work/app", []*types.Session{
		{Key: "%2Fwork%2Fapp::root", RemoteID: "root", Directory: "/work/app", Title: "root", CreatedAt: base},
		{Key: "%2Fwork%2Fapp::child", RemoteID: "child", Directory: "/work/app", Title: "child",
			ParentKey: "%2Fwork%2Fapp::root", CreatedAt: base.Add(time.Minute)},
		{Key: "%2Fwork%2Fapp::other", RemoteID: "other", Directory: "/work/app", Title: "other",
			CreatedAt: base.Add(2 * time.Minute)},
	})
	m.rebuildTree()

	if len(m.rows) != 3 {
		t.Fatalf("rows = %d, want 3", len(m.rows))
	}
	if m.rows[0].key != "%2Fwork%2Fapp::root" || m.rows[0].depth != 0 {
		t.Fatalf("row 0 = %+v", m.rows[0])
	}
	if m.rows[1].key != "%2Fwork%2Fapp::child" || m.rows[1].depth != 1 {
		t.Fatalf("child should follow its parent indented, got %+v", m.rows[1])
	}
	if m.rows[2].key != "%2Fwork%2Fapp::other" {
		t.Fatalf("row 2 = %+v", m.rows[2])
	}
}

func TestRebuildTreeClampsSelection(t *testing.T) {
	m := newTestModel(t)
	m.store.ReplaceSessions("/work/app", []*types.Session{
		{Key: "%2Fwork%2Fapp::a", RemoteID: "a", Directory: "/work/app"},
	})
	m.selected = 5
	m.rebuildTree()
	if m.selected != 0 {
		t.Fatalf("selected = %d, want clamped to 0", m.selected)
	}
}

func TestSidebarRendersTitlesAndGlyphs(t *testing.T) {
	m := newTestModel(t)
	m.store.ReplaceSessions("/work/app", []*types.Session{
		{Key: "%2Fwork%2Fapp::a", RemoteID: "ses_a", Directory: "/work/app",
			Title: "investigate flaky test", Status: types.SessionStatusBusy},
	})
	m.rebuildTree()

	out := m.renderSidebar(10)
	if !strings.Contains(out, "investigate flaky test") {
		t.Fatalf("title missing:\n%s", out)
	}
	if !strings.Contains(out, "●") {
		t.Fatalf("busy glyph missing:\n%s", out)
	}
}

func TestSessionTitleFallsBackToRemoteID(t *testing.T) {
	session := &types.Session{RemoteID: "ses_xyz"}
	if got := sessionTitle(session); got != "ses_xyz" {
		t.Fatalf("got %q", got)
	}
}

func TestPadLineWidths(t *testing.T) {
	if got := padLine("ab", 5); got != "ab   " {
		t.Fatalf("pad got %q", got)
	}
	if got := padLine("abcdefgh", 5); len([]rune(got)) > 5 {
		t.Fatalf("truncate got %q", got)
	}
}
