package app

import "charm.land/lipgloss/v2"

var (
	headerStyle        = lipgloss.NewStyle().Bold(true).Foreground(lipgloss.Color("63"))
	helpStyle          = lipgloss.NewStyle().Foreground(lipgloss.Color("241"))
	statusStyle        = lipgloss.NewStyle().Foreground(lipgloss.Color("245"))
	connectedStyle     = lipgloss.NewStyle().Foreground(lipgloss.Color("70"))
	disconnectedStyle  = lipgloss.NewStyle().Foreground(lipgloss.Color("203")).Bold(true)
	sessionStyle       = lipgloss.NewStyle().Foreground(lipgloss.Color("252"))
	sessionBusyStyle   = lipgloss.NewStyle().Foreground(lipgloss.Color("110")).Bold(true)
	sessionRetryStyle  = lipgloss.NewStyle().Foreground(lipgloss.Color("179"))
	sessionPermStyle   = lipgloss.NewStyle().Foreground(lipgloss.Color("208")).Bold(true)
	selectedStyle      = lipgloss.NewStyle().Foreground(lipgloss.Color("230")).Background(lipgloss.Color("236"))
	userRowStyle       = lipgloss.NewStyle().Foreground(lipgloss.Color("153")).Bold(true)
	assistantRowStyle  = lipgloss.NewStyle().Foreground(lipgloss.Color("146"))
	partRowStyle       = lipgloss.NewStyle().Foreground(lipgloss.Color("250"))
	collapsedRowStyle  = lipgloss.NewStyle().Foreground(lipgloss.Color("243"))
	streamingRowStyle  = lipgloss.NewStyle().Foreground(lipgloss.Color("120"))
	errorBannerStyle   = lipgloss.NewStyle().Foreground(lipgloss.Color("230")).Background(lipgloss.Color("88")).Bold(true)
	permissionTagStyle = lipgloss.NewStyle().Foreground(lipgloss.Color("230")).Background(lipgloss.Color("166")).Bold(true)
	dividerStyle       = lipgloss.NewStyle().Foreground(lipgloss.Color("238"))
)

func statusGlyph(status string) string {
	switch status {
	case "busy":
		return sessionBusyStyle.Render("●")
	case "retry":
		return sessionRetryStyle.Render("↻")
	case "pending_permission":
		return sessionPermStyle.Render("?")
	default:
		return statusStyle.Render("○")
	}
}
