package app

import (
	"fmt"
	"strings"

	"github.com/mattn/go-runewidth"

	"canopy/internal/flatten"
	"canopy/internal/types"
)

func (m *Model) transcriptWidth() int {
	w := m.width - m.sidebarWidth() - 1
	if w < 20 {
		w = 20
	}
	return w
}

func (m *Model) resizePanes() {
	m.vp.SetWidth(m.transcriptWidth())
	h := m.height - 2
	if h < 3 {
		h = 3
	}
	m.vp.SetHeight(h)
	if len(m.items) > 0 {
		m.vp.SetContent(m.renderTranscript())
	}
}

// renderTranscript turns the flattened items into viewport content.
// Expansion is decided per row by the policy; collapsed rows render a
// one-line summary with the hidden line count.
func (m *Model) renderTranscript() string {
	width := m.transcriptWidth()
	var b strings.Builder
	for i, item := range m.items {
		selected := m.focus == focusTranscript && i == m.itemCursor
		b.WriteString(m.renderItem(item, width, selected))
		b.WriteByte('\n')
		if item.LastInTurn {
			b.WriteString(dividerStyle.Render(strings.Repeat("─", min(width, 40))))
			b.WriteByte('\n')
		}
	}
	return strings.TrimRight(b.String(), "\n")
}

func (m *Model) renderItem(item flatten.Item, width int, selected bool) string {
	cursor := "  "
	if selected {
		cursor = "> "
	}
	switch item.Kind {
	case flatten.KindUserMessage:
		return cursor + userRowStyle.Render("you")
	case flatten.KindAssistantHeader:
		label := "assistant"
		if item.Message != nil && item.Message.Error != "" {
			label += " " + errorBannerStyle.Render(" error ")
		}
		return cursor + assistantRowStyle.Render(label)
	case flatten.KindPart:
		return cursor + m.renderPart(item, width-2)
	}
	return cursor
}

func (m *Model) renderPart(item flatten.Item, width int) string {
	part := item.Part
	if part == nil {
		return ""
	}
	expanded := m.policy.Expanded(item)
	label := partLabel(part)
	if item.Streaming {
		label = streamingRowStyle.Render(label + " …")
	} else {
		label = partRowStyle.Render(label)
	}
	if !expanded {
		return label + " " + collapsedRowStyle.Render(collapsedSummary(part, width))
	}
	body := partBody(part, width)
	if body == "" {
		return label
	}
	return label + "\n" + body
}

func partLabel(part *types.Part) string {
	switch part.Kind {
	case types.PartText:
		return ""
	case types.PartTool:
		if part.Tool != nil && part.Tool.Name != "" {
			return "⚙ " + part.Tool.Name
		}
		return "⚙ tool"
	case types.PartReasoning:
		return "∴ reasoning"
	case types.PartFile:
		if part.File != nil && part.File.Path != "" {
			return "⊞ " + part.File.Path
		}
		return "⊞ file"
	case types.PartPatch:
		return "± patch"
	case types.PartAgent:
		return "⇶ sub-agent"
	case types.PartSubtask:
		return "⇶ subtask"
	case types.PartRetry:
		return "↻ retry"
	case types.PartCompaction:
		return "∿ compacted"
	case types.PartStepStart, types.PartStepFinish, types.PartSnapshot:
		return "· " + string(part.Kind)
	}
	return string(part.Kind)
}

func collapsedSummary(part *types.Part, width int) string {
	var text string
	switch part.Kind {
	case types.PartTool:
		if part.Tool != nil {
			text = fmt.Sprintf("[%s, %d output lines]",
				part.Tool.Status, strings.Count(part.Tool.Output, "\n")+1)
		}
	case types.PartPatch:
		if part.Patch != nil {
			text = fmt.Sprintf("[%d files]", len(part.Patch.Files))
		}
	default:
		text = "[" + firstLine(part.Text) + "]"
	}
	return runewidth.Truncate(text, width, "…")
}

func partBody(part *types.Part, width int) string {
	switch part.Kind {
	case types.PartText:
		return renderMarkdown(part.Text, width)
	case types.PartReasoning:
		return collapsedRowStyle.Render(hardTruncateLines(part.Text, width))
	case types.PartTool:
		if part.Tool == nil {
			return ""
		}
		out := part.Tool.Output
		if out == "" && part.Tool.Error != "" {
			out = part.Tool.Error
		}
		return hardTruncateLines(out, width)
	case types.PartFile:
		if part.File != nil {
			return part.File.URL
		}
	case types.PartPatch:
		if part.Patch != nil {
			return strings.Join(part.Patch.Files, "\n")
		}
	case types.PartRetry:
		if part.Retry != nil {
			return fmt.Sprintf("attempt %d: %s", part.Retry.Attempt, part.Retry.Reason)
		}
	case types.PartAgent, types.PartSubtask:
		return part.Text
	}
	return ""
}

func firstLine(text string) string {
	if i := strings.IndexByte(text, '\n'); i >= 0 {
		return text[:i]
	}
	return text
}

func hardTruncateLines(text string, width int) string {
	lines := strings.Split(strings.TrimRight(text, "\n"), "\n")
	for i, line := range lines {
		lines[i] = runewidth.Truncate(line, width, "…")
	}
	return strings.Join(lines, "\n")
}
