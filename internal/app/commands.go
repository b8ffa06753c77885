package app

import (
	"context"
	"time"

	tea "charm.land/bubbletea/v2"

	"canopy/internal/client"
	"canopy/internal/logging"
	"canopy/internal/tree"
	"canopy/internal/types"
)

type eventMsg struct {
	event types.Event
	ok    bool
}

type layoutMsg struct {
	positions map[string]tree.Position
}

type projectsLoadedMsg struct {
	projects []types.Project
	err      error
}

type sessionsLoadedMsg struct {
	directory string
	sessions  []*types.Session
	err       error
}

type hydratedMsg struct {
	key string
	err error
}

type diffLoadedMsg struct {
	key string
	err error
}

type tickMsg time.Time

// waitForEvent blocks on the runtime stream. Applying the event happens
// in Update, so every store mutation runs on the program loop.
func waitForEvent(events <-chan types.Event) tea.Cmd {
	return func() tea.Msg {
		evt, ok := <-events
		return eventMsg{event: evt, ok: ok}
	}
}

func waitForLayout(layouts <-chan map[string]tree.Position) tea.Cmd {
	return func() tea.Msg {
		return layoutMsg{positions: <-layouts}
	}
}

func tickCmd() tea.Cmd {
	return tea.Tick(time.Second, func(t time.Time) tea.Msg { return tickMsg(t) })
}

func (m *Model) loadProjectsCmd() tea.Cmd {
	api := m.client
	return func() tea.Msg {
		ctx, cancel := context.WithTimeout(context.Background(), 15*time.Second)
		defer cancel()
		projects, err := api.ListProjects(ctx)
		return projectsLoadedMsg{projects: projects, err: err}
	}
}

func (m *Model) loadSessionsCmd(directory string) tea.Cmd {
	api := m.client
	return func() tea.Msg {
		ctx, cancel := context.WithTimeout(context.Background(), 15*time.Second)
		defer cancel()
		sessions, err := api.ListSessions(ctx, directory)
		return sessionsLoadedMsg{directory: directory, sessions: sessions, err: err}
	}
}

// hydrateCmd fetches full history for a session. force is reserved for
// the explicit refresh key; opening a session never forces.
func (m *Model) hydrateCmd(key string, force bool) tea.Cmd {
	hydrator := m.hydrator
	return func() tea.Msg {
		ctx, cancel := context.WithTimeout(context.Background(), 30*time.Second)
		defer cancel()
		return hydratedMsg{key: key, err: hydrator.EnsureHydrated(ctx, key, force)}
	}
}

func (m *Model) refreshDiffCmd(key string) tea.Cmd {
	hydrator := m.hydrator
	return func() tea.Msg {
		ctx, cancel := context.WithTimeout(context.Background(), 15*time.Second)
		defer cancel()
		return diffLoadedMsg{key: key, err: hydrator.RefreshDiff(ctx, key)}
	}
}

func (m *Model) newSessionCmd(directory string) tea.Cmd {
	api := m.client
	logger := m.logger
	return func() tea.Msg {
		ctx, cancel := context.WithTimeout(context.Background(), 15*time.Second)
		defer cancel()
		if _, err := api.CreateSession(ctx, directory, ""); err != nil {
			logger.Warn("create session failed",
				logging.F("directory", directory), logging.F("error", err))
		}
		return nil
	}
}

// forkSessionCmd branches a new session off the given one. The new row
// arrives through the event stream, no local insert needed.
func (m *Model) forkSessionCmd(parentKey string) tea.Cmd {
	api := m.client
	logger := m.logger
	return func() tea.Msg {
		ctx, cancel := context.WithTimeout(context.Background(), 15*time.Second)
		defer cancel()
		if _, err := api.ForkSession(ctx, parentKey, ""); err != nil {
			logger.Warn("fork failed", logging.F("session", parentKey), logging.F("error", err))
		}
		return nil
	}
}

func (m *Model) abortSessionCmd(key string) tea.Cmd {
	api := m.client
	logger := m.logger
	return func() tea.Msg {
		ctx, cancel := context.WithTimeout(context.Background(), 15*time.Second)
		defer cancel()
		if err := api.AbortSession(ctx, key); err != nil {
			logger.Warn("abort failed", logging.F("session", key), logging.F("error", err))
		}
		return nil
	}
}

func (m *Model) replyPermissionCmd(key, permissionID, response string) tea.Cmd {
	api := m.client
	return func() tea.Msg {
		ctx, cancel := context.WithTimeout(context.Background(), 15*time.Second)
		defer cancel()
		err := api.ReplyPermission(ctx, key, permissionID, response)
		if apiErr := client.AsAPIError(err); apiErr != nil {
			m.logger.Warn("permission reply failed",
				logging.F("session", key), logging.F("status", apiErr.StatusCode))
		}
		return hydratedMsg{key: key, err: nil}
	}
}
