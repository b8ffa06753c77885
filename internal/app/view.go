package app

import (
	"fmt"
	"strings"

	tea "charm.land/bubbletea/v2"
	"charm.land/lipgloss/v2"

	"canopy/internal/types"
)

// View wraps the composed frame; the alt screen flag lives on the view
// in bubbletea v2 rather than on a program option.
func (m *Model) View() tea.View {
	view := tea.NewView(m.render())
	view.AltScreen = true
	return view
}

func (m *Model) render() string {
	if m.width == 0 {
		return "loading…"
	}
	paneHeight := m.height - 2
	if paneHeight < 3 {
		paneHeight = 3
	}

	sidebar := lipgloss.NewStyle().
		Width(m.sidebarWidth()).
		Height(paneHeight).
		Render(m.renderSidebar(paneHeight))

	var pane string
	if m.mode == modeGraph {
		pane = m.renderGraph(m.transcriptWidth(), paneHeight)
	} else {
		pane = m.transcriptPane()
	}
	pane = lipgloss.NewStyle().
		Width(m.transcriptWidth()).
		Height(paneHeight).
		Render(pane)

	body := lipgloss.JoinHorizontal(lipgloss.Top, sidebar, dividerStyle.Render("│"), pane)
	return body + "\n" + m.renderStatusLine()
}

// transcriptPane stacks the banners the transcript must not scroll away
// (pending permission, visible session error) above the viewport.
func (m *Model) transcriptPane() string {
	key := m.store.Active()
	if key == "" {
		return helpStyle.Render("enter to open a session")
	}
	var sections []string
	if perms := m.store.Permissions(key); len(perms) > 0 {
		perm := perms[0]
		label := perm.Title
		if perm.Command != "" {
			label = perm.Command
		}
		sections = append(sections,
			permissionTagStyle.Render(" permission ")+" "+label+helpStyle.Render("  a approve · d deny"))
	}
	if sessErr := m.store.VisibleError(key); sessErr != nil {
		sections = append(sections,
			errorBannerStyle.Render(" "+sessErr.Name+" ")+" "+sessErr.Message+helpStyle.Render("  x dismiss"))
	}
	sections = append(sections, m.vp.View())
	return strings.Join(sections, "\n")
}

func (m *Model) renderStatusLine() string {
	conn := disconnectedStyle.Render("offline")
	if m.store.Connected() {
		conn = connectedStyle.Render("online")
	}

	stats := m.tree.ComputeStats()
	left := fmt.Sprintf("%s  %d sessions · %d roots · depth %d",
		conn, stats.Total, stats.Roots, stats.MaxDepth)

	if key := m.store.Active(); key != "" {
		if session := m.store.Session(key); session != nil {
			summary := session.Summary
			if summary.Files > 0 {
				left += statusStyle.Render(fmt.Sprintf("  ·  +%d −%d in %d files",
					summary.Additions, summary.Deletions, summary.Files))
			}
		}
		if todos := m.store.Todos(key); len(todos) > 0 {
			done := 0
			for _, todo := range todos {
				if todo.Status == types.TodoStatusCompleted {
					done++
				}
			}
			left += statusStyle.Render(fmt.Sprintf("  ·  todos %d/%d", done, len(todos)))
		}
	}
	if m.copyNotice != "" {
		left += "  " + statusStyle.Render(m.copyNotice)
	}

	help := helpStyle.Render("enter open · r refresh · e expand · y yank · g graph · q quit")
	gap := m.width - lipgloss.Width(left) - lipgloss.Width(help)
	if gap < 1 {
		return left
	}
	return left + strings.Repeat(" ", gap) + help
}
