// Package app is the terminal front end: a session tree sidebar, a
// virtualized transcript pane, and a graph view, all reading through the
// store's scoped subscriptions.
package app

import (
	"context"
	"sync/atomic"
	"time"

	"charm.land/bubbles/v2/viewport"
	tea "charm.land/bubbletea/v2"

	"canopy/internal/client"
	"canopy/internal/config"
	"canopy/internal/flatten"
	"canopy/internal/logging"
	"canopy/internal/store"
	"canopy/internal/tree"
	"canopy/internal/types"
)

type paneFocus int

const (
	focusSidebar paneFocus = iota
	focusTranscript
)

type viewMode int

const (
	modeTranscript viewMode = iota
	modeGraph
)

// Deps carries the wired collaborators. Everything is constructed in
// cmd/canopy and owned by the caller; Run tears down its own stream.
type Deps struct {
	Config   config.Config
	Logger   logging.Logger
	Client   *client.Client
	Store    *store.Store
	Hydrator *store.Hydrator
	Hints    *store.HintStore
}

type Model struct {
	cfg      config.Config
	logger   logging.Logger
	client   *client.Client
	store    *store.Store
	hydrator *store.Hydrator
	hints    *store.HintStore
	stream   *client.Stream

	events  <-chan types.Event
	layouts chan map[string]tree.Position

	scheduler *tree.Scheduler
	flattener *flatten.Flattener
	policy    *flatten.Policy

	width  int
	height int
	vp     viewport.Model

	focus paneFocus
	mode  viewMode

	tree      *tree.Tree
	positions map[string]tree.Position
	rows      []sidebarRow
	selected  int

	items      []flatten.Item
	itemCursor int
	follow     bool

	// Store callbacks can fire from the hydration goroutine (its fetch
	// installs history via ReplaceMessages), so the dirty flags are the
	// one piece of Model state shared across goroutines.
	treeDirty       atomic.Bool
	transcriptDirty atomic.Bool
	unsubTree       func()
	transcriptSubs  []func()

	copyNotice string
	copyExpiry time.Time
}

type sidebarRow struct {
	key   string
	depth int
}

// Run wires the stream, builds the model and blocks until quit.
func Run(deps Deps) error {
	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	stream := client.NewStream(deps.Client, deps.Logger)
	go stream.Run(ctx)

	m := newModel(deps, stream)
	program := tea.NewProgram(m)
	_, err := program.Run()
	m.teardown()
	return err
}

func newModel(deps Deps, stream *client.Stream) *Model {
	logger := deps.Logger
	if logger == nil {
		logger = logging.Nop()
	}
	m := &Model{
		cfg:       deps.Config,
		logger:    logger,
		client:    deps.Client,
		store:     deps.Store,
		hydrator:  deps.Hydrator,
		hints:     deps.Hints,
		stream:    stream,
		events:    stream.Events(),
		layouts:   make(chan map[string]tree.Position, 1),
		flattener: flatten.New(),
		policy:    flatten.NewPolicy(partKinds(deps.Config.DefaultExpandedKinds())),
		vp:        viewport.New(viewport.WithWidth(40), viewport.WithHeight(10)),
		tree:      tree.Build(nil),
		follow:    true,
	}
	m.scheduler = tree.NewScheduler(
		tree.LayoutConfig{
			Direction:    tree.Direction(deps.Config.LayoutDirection()),
			NodeSpacing:  deps.Config.LayoutNodeSpacing(),
			DepthSpacing: deps.Config.LayoutDepthSpacing(),
			Debounce:     deps.Config.LayoutDebounce(),
		},
		func() *tree.Tree { return tree.Build(m.store.Sessions()) },
		func(positions map[string]tree.Position) {
			select {
			case m.layouts <- positions:
			default:
			}
		},
	)
	// Scoped subscriptions only set atomic dirty flags: they can fire
	// from the hydration goroutine as well as from Apply on the loop,
	// and the loop folds them in on the next message.
	m.unsubTree = m.store.Subscribe(store.TopicSessions, func() {
		m.treeDirty.Store(true)
	})
	if dismissals, err := m.hints.Dismissals(); err == nil {
		m.store.RestoreDismissals(dismissals)
	}
	return m
}

func partKinds(names []string) []types.PartKind {
	out := make([]types.PartKind, 0, len(names))
	for _, name := range names {
		out = append(out, types.PartKind(name))
	}
	return out
}

func (m *Model) teardown() {
	m.scheduler.Close()
	if m.unsubTree != nil {
		m.unsubTree()
	}
	m.dropTranscriptSubs()
	m.store.Close()
}

func (m *Model) dropTranscriptSubs() {
	for _, cancel := range m.transcriptSubs {
		cancel()
	}
	m.transcriptSubs = nil
}

func (m *Model) Init() tea.Cmd {
	return tea.Batch(
		waitForEvent(m.events),
		waitForLayout(m.layouts),
		tickCmd(),
		m.loadProjectsCmd(),
	)
}

func (m *Model) Update(msg tea.Msg) (tea.Model, tea.Cmd) {
	switch msg := msg.(type) {
	case tea.WindowSizeMsg:
		m.width = msg.Width
		m.height = msg.Height
		m.resizePanes()
		return m, nil

	case tea.KeyMsg:
		return m.handleKey(msg)

	case eventMsg:
		if !msg.ok {
			return m, nil
		}
		m.store.Apply(msg.event)
		m.store.SetConnected(m.stream.State() == client.StreamConnected)
		cmd := m.afterMutation()
		return m, tea.Batch(waitForEvent(m.events), cmd)

	case layoutMsg:
		m.positions = msg.positions
		return m, waitForLayout(m.layouts)

	case projectsLoadedMsg:
		if msg.err != nil {
			m.logger.Warn("project list failed", logging.F("error", msg.err))
			return m, nil
		}
		m.store.ReplaceProjects(msg.projects)
		var cmds []tea.Cmd
		for _, project := range msg.projects {
			cmds = append(cmds, m.loadSessionsCmd(project.Directory))
		}
		return m, tea.Batch(cmds...)

	case sessionsLoadedMsg:
		if msg.err != nil {
			m.logger.Warn("session list failed",
				logging.F("directory", msg.directory), logging.F("error", msg.err))
			return m, nil
		}
		m.store.ReplaceSessions(msg.directory, msg.sessions)
		cmd := m.afterMutation()
		if m.store.Active() == "" {
			if last, err := m.hints.LastActive(); err == nil && last != "" && m.store.Session(last) != nil {
				return m, tea.Batch(cmd, m.openSession(last))
			}
		}
		return m, cmd

	case hydratedMsg:
		if msg.err != nil {
			m.logger.Warn("hydration failed",
				logging.F("session", msg.key), logging.F("error", msg.err))
		}
		if msg.key == m.store.Active() {
			m.transcriptDirty.Store(true)
		}
		return m, m.afterMutation()

	case diffLoadedMsg:
		if msg.err != nil {
			m.logger.Warn("diff refresh failed",
				logging.F("session", msg.key), logging.F("error", msg.err))
		}
		return m, nil

	case tickMsg:
		m.store.SetConnected(m.stream.State() == client.StreamConnected)
		if m.copyNotice != "" && time.Now().After(m.copyExpiry) {
			m.copyNotice = ""
		}
		return m, tickCmd()
	}

	var cmd tea.Cmd
	m.vp, cmd = m.vp.Update(msg)
	return m, cmd
}

// afterMutation folds dirty flags raised by subscriptions into derived
// state: tree rebuild plus debounced layout, transcript re-flatten.
func (m *Model) afterMutation() tea.Cmd {
	if m.treeDirty.CompareAndSwap(true, false) {
		m.rebuildTree()
		m.scheduler.Invalidate()
	}
	if m.transcriptDirty.CompareAndSwap(true, false) {
		m.rebuildTranscript()
	}
	return nil
}

func (m *Model) rebuildTree() {
	m.tree = tree.Build(m.store.Sessions())
	for _, key := range m.tree.Cyclic {
		m.logger.Warn("session parent cycle", logging.F("session", key))
	}
	m.rows = m.rows[:0]
	var walk func(node *tree.Node)
	walk = func(node *tree.Node) {
		m.rows = append(m.rows, sidebarRow{key: node.Session.Key, depth: node.Depth})
		for _, child := range node.Children {
			walk(child)
		}
	}
	for _, root := range m.tree.Roots {
		walk(root)
	}
	if m.selected >= len(m.rows) {
		m.selected = len(m.rows) - 1
	}
	if m.selected < 0 {
		m.selected = 0
	}
}

// rebuildTranscript re-flattens the active session and re-scopes the
// part subscriptions to its current message set.
func (m *Model) rebuildTranscript() {
	key := m.store.Active()
	if key == "" {
		m.items = nil
		m.dropTranscriptSubs()
		m.vp.SetContent("")
		return
	}
	messages := m.store.Messages(key)
	m.items = m.flattener.Flatten(messages, func(messageID string) []*types.Part {
		return m.store.Parts(key, messageID)
	})
	m.policy.Observe(m.items)

	m.dropTranscriptSubs()
	markDirty := func() { m.transcriptDirty.Store(true) }
	m.transcriptSubs = append(m.transcriptSubs, m.store.Subscribe(store.TopicMessages(key), markDirty))
	for _, message := range messages {
		m.transcriptSubs = append(m.transcriptSubs,
			m.store.Subscribe(store.TopicParts(key, message.ID), markDirty))
	}

	if m.itemCursor >= len(m.items) {
		m.itemCursor = len(m.items) - 1
	}
	if m.itemCursor < 0 {
		m.itemCursor = 0
	}
	m.vp.SetContent(m.renderTranscript())
	if m.follow {
		m.vp.GotoBottom()
	}
}

func (m *Model) openSession(key string) tea.Cmd {
	m.hydrator.SetActive(key)
	if err := m.hints.SaveLastActive(key); err != nil {
		m.logger.Debug("hint save failed", logging.F("error", err))
	}
	m.itemCursor = 0
	m.follow = true
	m.transcriptDirty.Store(true)
	cmd := m.afterMutation()
	return tea.Batch(cmd, m.hydrateCmd(key, false), m.refreshDiffCmd(key))
}

func (m *Model) selectedKey() string {
	if m.selected < 0 || m.selected >= len(m.rows) {
		return ""
	}
	return m.rows[m.selected].key
}

func (m *Model) handleKey(msg tea.KeyMsg) (tea.Model, tea.Cmd) {
	switch msg.String() {
	case "q", "ctrl+c":
		return m, tea.Quit

	case "tab":
		if m.focus == focusSidebar {
			m.focus = focusTranscript
		} else {
			m.focus = focusSidebar
		}
		return m, nil

	case "g":
		if m.mode == modeGraph {
			m.mode = modeTranscript
		} else {
			m.mode = modeGraph
		}
		return m, nil

	case "up", "k":
		if m.focus == focusSidebar {
			if m.selected > 0 {
				m.selected--
			}
			return m, nil
		}
		if m.itemCursor > 0 {
			m.itemCursor--
			m.follow = false
			m.vp.SetContent(m.renderTranscript())
		}
		return m, nil

	case "down", "j":
		if m.focus == focusSidebar {
			if m.selected < len(m.rows)-1 {
				m.selected++
			}
			return m, nil
		}
		if m.itemCursor < len(m.items)-1 {
			m.itemCursor++
			if m.itemCursor == len(m.items)-1 {
				m.follow = true
			}
			m.vp.SetContent(m.renderTranscript())
		}
		return m, nil

	case "G":
		if m.focus == focusTranscript {
			m.follow = true
			m.itemCursor = len(m.items) - 1
			if m.itemCursor < 0 {
				m.itemCursor = 0
			}
			m.vp.SetContent(m.renderTranscript())
			m.vp.GotoBottom()
		}
		return m, nil

	case "enter":
		if m.focus == focusSidebar {
			if key := m.selectedKey(); key != "" {
				return m, m.openSession(key)
			}
		}
		return m, nil

	case "n":
		directory := ""
		if key := m.selectedKey(); key != "" {
			if session := m.store.Session(key); session != nil {
				directory = session.Directory
			}
		}
		if directory == "" {
			if projects := m.store.Projects(); len(projects) > 0 {
				directory = projects[0].Directory
			}
		}
		if directory != "" {
			return m, m.newSessionCmd(directory)
		}
		return m, nil

	case "f":
		if m.focus == focusSidebar {
			if key := m.selectedKey(); key != "" {
				return m, m.forkSessionCmd(key)
			}
		}
		return m, nil

	case "ctrl+x":
		if key := m.store.Active(); key != "" {
			return m, m.abortSessionCmd(key)
		}
		return m, nil

	case "r":
		// Manual refresh is the one trigger that bypasses a fresh cache.
		if key := m.store.Active(); key != "" {
			return m, tea.Batch(m.hydrateCmd(key, true), m.refreshDiffCmd(key))
		}
		return m, nil

	case "e", " ", "space":
		if m.focus == focusTranscript && m.itemCursor < len(m.items) {
			m.policy.Toggle(m.items[m.itemCursor])
			m.vp.SetContent(m.renderTranscript())
		}
		return m, nil

	case "y":
		if m.focus == focusTranscript && m.itemCursor < len(m.items) {
			m.copyItem(m.items[m.itemCursor])
		}
		return m, nil

	case "x":
		if key := m.store.Active(); key != "" {
			if m.store.DismissError(key) {
				if err := m.hints.SaveDismissal(key, m.store.Dismissals()[key]); err != nil {
					m.logger.Debug("dismissal save failed", logging.F("error", err))
				}
			}
		}
		return m, nil

	case "a":
		if key := m.store.Active(); key != "" {
			if perms := m.store.Permissions(key); len(perms) > 0 {
				return m, m.replyPermissionCmd(key, perms[0].ID, "once")
			}
		}
		return m, nil

	case "d":
		if key := m.store.Active(); key != "" {
			if perms := m.store.Permissions(key); len(perms) > 0 {
				return m, m.replyPermissionCmd(key, perms[0].ID, "reject")
			}
		}
		return m, nil
	}

	if m.focus == focusTranscript {
		var cmd tea.Cmd
		m.vp, cmd = m.vp.Update(msg)
		return m, cmd
	}
	return m, nil
}

func (m *Model) copyItem(item flatten.Item) {
	text := itemCopyText(item)
	if text == "" {
		return
	}
	if err := copyTextToClipboard(text); err != nil {
		m.copyNotice = "copy failed: " + err.Error()
	} else {
		m.copyNotice = "copied"
	}
	m.copyExpiry = time.Now().Add(3 * time.Second)
}
