package app

import (
	"strings"

	"github.com/mattn/go-runewidth"

	"canopy/internal/tree"
)

const graphCellWidth = 14

// renderGraph paints the session forest on a character canvas using the
// scheduler's most recent layout. Sessions without a position yet (the
// debounce window) simply do not appear until the next layout lands.
func (m *Model) renderGraph(width, height int) string {
	if len(m.positions) == 0 {
		return helpStyle.Render("computing layout…")
	}

	maxX, maxY := 0, 0
	for _, pos := range m.positions {
		if pos.X > maxX {
			maxX = pos.X
		}
		if pos.Y > maxY {
			maxY = pos.Y
		}
	}

	rows := maxY + 1
	cols := (maxX + 1) * graphCellWidth
	if rows > height {
		rows = height
	}
	canvas := make([][]rune, rows)
	for i := range canvas {
		canvas[i] = []rune(strings.Repeat(" ", cols))
	}

	for _, root := range m.tree.Roots {
		m.paintNode(canvas, root, true)
	}

	var b strings.Builder
	for _, line := range canvas {
		text := strings.TrimRight(string(line), " ")
		b.WriteString(runewidth.Truncate(text, width, "…"))
		b.WriteByte('\n')
	}
	return strings.TrimRight(b.String(), "\n")
}

func (m *Model) paintNode(canvas [][]rune, node *tree.Node, root bool) {
	pos, ok := m.positions[node.Session.Key]
	if ok && pos.Y < len(canvas) {
		label := runewidth.Truncate(sessionTitle(node.Session), graphCellWidth-3, "…")
		if node.Session.Key == m.store.Active() {
			label = "[" + label + "]"
		}
		paintText(canvas[pos.Y], pos.X*graphCellWidth, label)
		if !root {
			paintText(canvas[pos.Y], pos.X*graphCellWidth-2, "└▸")
		}
	}
	for _, child := range node.Children {
		m.paintNode(canvas, child, false)
	}
}

func paintText(row []rune, col int, text string) {
	for _, r := range text {
		if col < 0 {
			col++
			continue
		}
		if col >= len(row) {
			return
		}
		row[col] = r
		col += runewidth.RuneWidth(r)
	}
}
