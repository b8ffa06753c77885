package app

import (
	"strings"

	"github.com/mattn/go-runewidth"

	"canopy/internal/types"
)

const sidebarMinWidth = 24

func (m *Model) sidebarWidth() int {
	w := m.width / 3
	if w < sidebarMinWidth {
		w = sidebarMinWidth
	}
	if w > 48 {
		w = 48
	}
	return w
}

// renderSidebar draws the session tree as a depth-indented list. Rows
// come from rebuildTree, which walks the forest depth first.
func (m *Model) renderSidebar(height int) string {
	width := m.sidebarWidth()
	var b strings.Builder
	b.WriteString(headerStyle.Render(padLine("sessions", width)))
	b.WriteByte('\n')

	top := 0
	visible := height - 1
	if visible < 1 {
		visible = 1
	}
	if m.selected >= top+visible {
		top = m.selected - visible + 1
	}

	for i := top; i < len(m.rows) && i < top+visible; i++ {
		row := m.rows[i]
		session := m.store.Session(row.key)
		if session == nil {
			continue
		}
		line := sidebarLine(session, row.depth, width, row.key == m.store.Active())
		if i == m.selected && m.focus == focusSidebar {
			line = selectedStyle.Render(padLine(sidebarPlain(session, row.depth), width))
		}
		b.WriteString(line)
		b.WriteByte('\n')
	}
	return strings.TrimRight(b.String(), "\n")
}

func sidebarLine(session *types.Session, depth, width int, active bool) string {
	marker := " "
	if active {
		marker = "▸"
	}
	text := marker + strings.Repeat("  ", depth) + sessionTitle(session)
	text = runewidth.Truncate(text, width-2, "…")
	return statusGlyph(string(session.Status)) + " " + sessionStyle.Render(text)
}

func sidebarPlain(session *types.Session, depth int) string {
	return "  " + strings.Repeat("  ", depth) + sessionTitle(session)
}

func sessionTitle(session *types.Session) string {
	if session.Title != "" {
		return session.Title
	}
	return session.RemoteID
}

func padLine(text string, width int) string {
	gap := width - runewidth.StringWidth(text)
	if gap <= 0 {
		return runewidth.Truncate(text, width, "…")
	}
	return text + strings.Repeat(" ", gap)
}
