// Package store holds the canonical in-memory model: sessions, messages,
// parts, diffs, errors and permissions across every project, fed by the
// runtime's event stream and read through scoped subscriptions. The store
// is the single source of truth; tree, layout and flattened rows are pure
// functions of it.
package store

import (
	"sort"
	"strings"
	"sync"

	"github.com/google/uuid"

	"canopy/internal/logging"
	"canopy/internal/sessionkey"
	"canopy/internal/types"
)

// Topic names scope subscriptions to the narrowest key practical, so a
// burst of background part updates never re-invokes a consumer watching
// an unrelated session.
const (
	TopicSessions     = "sessions"
	TopicProjects     = "projects"
	TopicConnectivity = "connectivity"
	TopicActive       = "active"
)

func TopicSession(key string) string  { return "session:" + key }
func TopicMessages(key string) string { return "messages:" + key }
func TopicParts(key, messageID string) string {
	return "parts:" + key + ":" + messageID
}
func TopicDiff(key string) string        { return "diff:" + key }
func TopicError(key string) string       { return "error:" + key }
func TopicTodos(key string) string       { return "todos:" + key }
func TopicPermissions(key string) string { return "permissions:" + key }

// Gate admits or defers per-session message traffic. The hydration
// manager installs one so background sessions skip high-frequency event
// kinds and catch up with a single fetch when opened.
type Gate interface {
	AdmitMessageTraffic(sessionKey string) bool
}

// Store is one workspace connection's model. Construct with New and
// discard with Close; two connections never share a Store.
type Store struct {
	mu     sync.Mutex
	logger logging.Logger

	projects    map[string]types.Project
	sessions    map[string]*types.Session
	messages    map[string][]*types.Message
	parts       map[string][]*types.Part
	diffs       map[string][]types.FileDiff
	sessionErrs map[string]*types.SessionError
	dismissed   map[string]string
	todos       map[string][]types.Todo
	permissions map[string][]types.Permission

	activeKey       string
	activeDirectory string
	connected       bool
	gate            Gate

	droppedEvents  uint64
	unknownEvents  uint64
	deferredEvents uint64

	subsMu sync.RWMutex
	subs   map[string]map[string]func()
	closed bool
}

func New(logger logging.Logger) *Store {
	if logger == nil {
		logger = logging.Nop()
	}
	return &Store{
		logger:      logger,
		projects:    make(map[string]types.Project),
		sessions:    make(map[string]*types.Session),
		messages:    make(map[string][]*types.Message),
		parts:       make(map[string][]*types.Part),
		diffs:       make(map[string][]types.FileDiff),
		sessionErrs: make(map[string]*types.SessionError),
		dismissed:   make(map[string]string),
		todos:       make(map[string][]types.Todo),
		permissions: make(map[string][]types.Permission),
		subs:        make(map[string]map[string]func()),
	}
}

// Close drops every subscription. Peek reads keep working so teardown
// code can still inspect state.
func (s *Store) Close() {
	s.subsMu.Lock()
	s.closed = true
	s.subs = make(map[string]map[string]func())
	s.subsMu.Unlock()
}

// SetGate installs the admission policy for message-level traffic.
func (s *Store) SetGate(gate Gate) {
	s.mu.Lock()
	s.gate = gate
	s.mu.Unlock()
}

// Subscribe re-invokes fn after every mutation touching topic. The
// returned cancel is idempotent.
func (s *Store) Subscribe(topic string, fn func()) func() {
	if fn == nil {
		return func() {}
	}
	id := uuid.NewString()
	s.subsMu.Lock()
	if s.closed {
		s.subsMu.Unlock()
		return func() {}
	}
	if s.subs[topic] == nil {
		s.subs[topic] = make(map[string]func())
	}
	s.subs[topic][id] = fn
	s.subsMu.Unlock()

	var once sync.Once
	return func() {
		once.Do(func() {
			s.subsMu.Lock()
			if fns := s.subs[topic]; fns != nil {
				delete(fns, id)
				if len(fns) == 0 {
					delete(s.subs, topic)
				}
			}
			s.subsMu.Unlock()
		})
	}
}

func (s *Store) notify(topics []string) {
	if len(topics) == 0 {
		return
	}
	seen := make(map[string]struct{}, len(topics))
	var fns []func()
	s.subsMu.RLock()
	for _, topic := range topics {
		if _, dup := seen[topic]; dup {
			continue
		}
		seen[topic] = struct{}{}
		for _, fn := range s.subs[topic] {
			fns = append(fns, fn)
		}
	}
	s.subsMu.RUnlock()
	for _, fn := range fns {
		fn()
	}
}

// Apply ingests one raw event as exactly one atomic mutation. Unknown
// kinds and malformed payloads are counted and dropped; they never reach
// subscribers and never crash the pipeline.
func (s *Store) Apply(evt types.Event) {
	s.mu.Lock()
	mutation, err := normalizeEvent(evt, s.activeDirectory)
	if err != nil {
		if err == errUnknownEvent {
			s.unknownEvents++
			s.mu.Unlock()
			s.logger.Debug("event ignored", logging.F("type", evt.Type))
			return
		}
		s.droppedEvents++
		s.mu.Unlock()
		s.logger.Warn("event dropped", logging.F("type", evt.Type), logging.F("error", err))
		return
	}
	if key, gated := messageTraffic(mutation); gated {
		gate := s.gate
		if gate != nil && key != s.activeKey {
			s.mu.Unlock()
			if !gate.AdmitMessageTraffic(key) {
				s.mu.Lock()
				s.deferredEvents++
				s.mu.Unlock()
				return
			}
			s.mu.Lock()
		}
	}
	topics := mutation.apply(s)
	s.mu.Unlock()
	s.notify(topics)
}

// messageTraffic reports the session key of high-frequency message-level
// changes, the only kinds the background gate may defer.
func messageTraffic(c change) (string, bool) {
	switch m := c.(type) {
	case partUpsert:
		return m.part.SessionKey, true
	case partRemoved:
		return m.key, true
	case messageUpsert:
		return m.msg.SessionKey, true
	case messageRemoved:
		return m.key, true
	default:
		return "", false
	}
}

// SetActive marks the foreground session. Its directory becomes the
// fallback qualifier for events arriving on the global stream.
func (s *Store) SetActive(key string) {
	s.mu.Lock()
	if s.activeKey == key {
		s.mu.Unlock()
		return
	}
	s.activeKey = key
	if directory, _, ok := sessionkey.Parse(key); ok {
		s.activeDirectory = directory
	}
	s.mu.Unlock()
	s.notify([]string{TopicActive})
}

func (s *Store) Active() string {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.activeKey
}

func (s *Store) SetConnected(connected bool) {
	s.mu.Lock()
	if s.connected == connected {
		s.mu.Unlock()
		return
	}
	s.connected = connected
	s.mu.Unlock()
	s.notify([]string{TopicConnectivity})
}

func (s *Store) Connected() bool {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.connected
}

// Counters reports dropped (malformed), unknown-kind, and deferred
// (background-gated) event totals since construction.
func (s *Store) Counters() (dropped, unknown, deferred uint64) {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.droppedEvents, s.unknownEvents, s.deferredEvents
}

// ReplaceProjects swaps in a fresh project list from the runtime.
func (s *Store) ReplaceProjects(projects []types.Project) {
	s.mu.Lock()
	s.projects = make(map[string]types.Project, len(projects))
	for _, p := range projects {
		s.projects[p.ID] = p
	}
	topics := append([]string{TopicProjects}, s.backfillProjectsLocked()...)
	s.mu.Unlock()
	s.notify(topics)
}

func (s *Store) Projects() []types.Project {
	s.mu.Lock()
	out := make([]types.Project, 0, len(s.projects))
	for _, p := range s.projects {
		out = append(out, p)
	}
	s.mu.Unlock()
	sort.Slice(out, func(i, j int) bool { return out[i].Directory < out[j].Directory })
	return out
}

// ReplaceSessions merges a full session listing for one directory, as
// returned by the runtime. Sessions outside that directory are untouched.
func (s *Store) ReplaceSessions(directory string, sessions []*types.Session) {
	topics := make([]string, 0, len(sessions)+1)
	s.mu.Lock()
	for _, session := range sessions {
		if session == nil || session.Directory != directory {
			continue
		}
		topics = append(topics, sessionUpsert{session: session}.apply(s)...)
	}
	s.mu.Unlock()
	s.notify(topics)
}

// ReplaceMessages installs a hydration result: the full message/part
// history for one session, replacing whatever was held before.
func (s *Store) ReplaceMessages(key string, history []types.MessageWithParts) {
	s.mu.Lock()
	for partKey := range s.parts {
		if strings.HasPrefix(partKey, key+"/") {
			delete(s.parts, partKey)
		}
	}
	msgs := make([]*types.Message, 0, len(history))
	topics := []string{TopicMessages(key)}
	for _, entry := range history {
		if entry.Message == nil {
			continue
		}
		msgs = append(msgs, entry.Message)
		if len(entry.Parts) > 0 {
			s.parts[partKeyFor(key, entry.Message.ID)] = entry.Parts
		}
		topics = append(topics, TopicParts(key, entry.Message.ID))
	}
	s.messages[key] = msgs
	s.mu.Unlock()
	s.notify(topics)
}

// EvictSession drops a session's hydrated data (messages, parts, diff)
// while keeping the session row itself, so the tree stays intact and a
// later open re-fetches transparently.
func (s *Store) EvictSession(key string) {
	s.mu.Lock()
	_, hadMessages := s.messages[key]
	_, hadDiff := s.diffs[key]
	if !hadMessages && !hadDiff {
		s.mu.Unlock()
		return
	}
	delete(s.messages, key)
	for partKey := range s.parts {
		if strings.HasPrefix(partKey, key+"/") {
			delete(s.parts, partKey)
		}
	}
	delete(s.diffs, key)
	s.mu.Unlock()
	s.notify([]string{TopicMessages(key), TopicDiff(key)})
}

// ReplaceDiff installs an on-demand diff fetch result.
func (s *Store) ReplaceDiff(key string, files []types.FileDiff) {
	s.mu.Lock()
	topics := diffChange{key: key, files: files}.apply(s)
	s.mu.Unlock()
	s.notify(topics)
}

// Session peeks one session without subscribing.
func (s *Store) Session(key string) *types.Session {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.sessions[key]
}

// Sessions peeks every known session, ordered by key for determinism.
func (s *Store) Sessions() []*types.Session {
	s.mu.Lock()
	out := make([]*types.Session, 0, len(s.sessions))
	for _, session := range s.sessions {
		out = append(out, session)
	}
	s.mu.Unlock()
	sort.Slice(out, func(i, j int) bool { return out[i].Key < out[j].Key })
	return out
}

// Messages peeks a session's messages in creation order.
func (s *Store) Messages(key string) []*types.Message {
	s.mu.Lock()
	defer s.mu.Unlock()
	msgs := s.messages[key]
	out := make([]*types.Message, len(msgs))
	copy(out, msgs)
	return out
}

// Parts peeks one message's parts in part order.
func (s *Store) Parts(key, messageID string) []*types.Part {
	s.mu.Lock()
	defer s.mu.Unlock()
	parts := s.parts[partKeyFor(key, messageID)]
	out := make([]*types.Part, len(parts))
	copy(out, parts)
	return out
}

func (s *Store) Diff(key string) []types.FileDiff {
	s.mu.Lock()
	defer s.mu.Unlock()
	files := s.diffs[key]
	out := make([]types.FileDiff, len(files))
	copy(out, files)
	return out
}

func (s *Store) Todos(key string) []types.Todo {
	s.mu.Lock()
	defer s.mu.Unlock()
	todos := s.todos[key]
	out := make([]types.Todo, len(todos))
	copy(out, todos)
	return out
}

func (s *Store) Permissions(key string) []types.Permission {
	s.mu.Lock()
	defer s.mu.Unlock()
	perms := s.permissions[key]
	out := make([]types.Permission, len(perms))
	copy(out, perms)
	return out
}

func partKeyFor(sessionKey, messageID string) string {
	return sessionKey + "/" + messageID
}

// resolveProjectLocked fills a missing ProjectID from the current
// project snapshot. Sessions arriving before their project is listed
// stay unresolved and are back-filled when project data lands.
func (s *Store) resolveProjectLocked(session *types.Session) {
	if session.ProjectID != "" {
		return
	}
	projects := make([]types.Project, 0, len(s.projects))
	for _, p := range s.projects {
		projects = append(projects, p)
	}
	if resolved := sessionkey.Resolve(session.Key, projects); resolved != nil {
		session.ProjectID = resolved.ProjectID
	}
}

func (c sessionUpsert) apply(s *Store) []string {
	incoming := c.session
	existing := s.sessions[incoming.Key]
	if existing == nil {
		copied := *incoming
		s.resolveProjectLocked(&copied)
		s.sessions[copied.Key] = &copied
		return []string{TopicSessions, TopicSession(copied.Key)}
	}
	// Last-writer-wins on the event's own clock; zero means the payload
	// carried no timestamp and arrival order decides.
	if !incoming.UpdatedAt.IsZero() && incoming.UpdatedAt.Before(existing.UpdatedAt) {
		return nil
	}
	merged := *incoming
	merged.Status = existing.Status
	if merged.CreatedAt.IsZero() {
		merged.CreatedAt = existing.CreatedAt
	}
	if merged.UpdatedAt.IsZero() {
		merged.UpdatedAt = existing.UpdatedAt
	}
	if merged.ProjectID == "" {
		merged.ProjectID = existing.ProjectID
	}
	s.resolveProjectLocked(&merged)
	if merged.ParentKey == "" {
		merged.ParentKey = existing.ParentKey
	}
	if merged.Title == "" {
		merged.Title = existing.Title
	}
	s.sessions[merged.Key] = &merged
	return []string{TopicSessions, TopicSession(merged.Key)}
}

// sessionDeleted purges the session and every dependent collection in
// the same mutation, so no consumer can observe a half-deleted session.
func (c sessionDeleted) apply(s *Store) []string {
	if _, ok := s.sessions[c.key]; !ok {
		return nil
	}
	delete(s.sessions, c.key)
	delete(s.messages, c.key)
	for partKey := range s.parts {
		if strings.HasPrefix(partKey, c.key+"/") {
			delete(s.parts, partKey)
		}
	}
	delete(s.diffs, c.key)
	delete(s.sessionErrs, c.key)
	delete(s.dismissed, c.key)
	delete(s.todos, c.key)
	delete(s.permissions, c.key)
	if s.activeKey == c.key {
		s.activeKey = ""
	}
	return []string{TopicSessions, TopicSession(c.key)}
}

func (c statusChange) apply(s *Store) []string {
	session := s.sessions[c.key]
	if session == nil || session.Status == c.status {
		return nil
	}
	updated := *session
	updated.Status = c.status
	s.sessions[c.key] = &updated
	return []string{TopicSessions, TopicSession(c.key)}
}

func (c diffChange) apply(s *Store) []string {
	s.diffs[c.key] = c.files
	topics := []string{TopicDiff(c.key)}
	if session := s.sessions[c.key]; session != nil {
		summary := types.SessionSummary{Files: len(c.files)}
		for _, f := range c.files {
			summary.Additions += f.Additions
			summary.Deletions += f.Deletions
		}
		if session.Summary != summary {
			updated := *session
			updated.Summary = summary
			s.sessions[c.key] = &updated
			topics = append(topics, TopicSessions, TopicSession(c.key))
		}
	}
	return topics
}

func (c errorChange) apply(s *Store) []string {
	if c.err == nil {
		if _, ok := s.sessionErrs[c.key]; !ok {
			return nil
		}
		delete(s.sessionErrs, c.key)
		return []string{TopicError(c.key)}
	}
	s.sessionErrs[c.key] = c.err
	return []string{TopicError(c.key)}
}

// messageUpsert finds-or-inserts by id, keeping creation order. Applying
// the same event twice leaves the list unchanged.
func (c messageUpsert) apply(s *Store) []string {
	key := c.msg.SessionKey
	msgs := s.messages[key]
	for i, existing := range msgs {
		if existing.ID == c.msg.ID {
			msgs[i] = c.msg
			return []string{TopicMessages(key)}
		}
	}
	at := sort.Search(len(msgs), func(i int) bool {
		if msgs[i].CreatedAt.Equal(c.msg.CreatedAt) {
			return msgs[i].ID > c.msg.ID
		}
		return msgs[i].CreatedAt.After(c.msg.CreatedAt)
	})
	msgs = append(msgs, nil)
	copy(msgs[at+1:], msgs[at:])
	msgs[at] = c.msg
	s.messages[key] = msgs
	return []string{TopicMessages(key)}
}

func (c messageRemoved) apply(s *Store) []string {
	msgs := s.messages[c.key]
	for i, existing := range msgs {
		if existing.ID == c.messageID {
			s.messages[c.key] = append(msgs[:i:i], msgs[i+1:]...)
			delete(s.parts, partKeyFor(c.key, c.messageID))
			return []string{TopicMessages(c.key), TopicParts(c.key, c.messageID)}
		}
	}
	return nil
}

// partUpsert finds-or-appends by part id within the owning message's
// list, never duplicating.
func (c partUpsert) apply(s *Store) []string {
	key := partKeyFor(c.part.SessionKey, c.part.MessageID)
	parts := s.parts[key]
	for i, existing := range parts {
		if existing.ID == c.part.ID {
			parts[i] = c.part
			return []string{TopicParts(c.part.SessionKey, c.part.MessageID)}
		}
	}
	s.parts[key] = append(parts, c.part)
	return []string{TopicParts(c.part.SessionKey, c.part.MessageID)}
}

func (c partRemoved) apply(s *Store) []string {
	key := partKeyFor(c.key, c.messageID)
	parts := s.parts[key]
	for i, existing := range parts {
		if existing.ID == c.partID {
			s.parts[key] = append(parts[:i:i], parts[i+1:]...)
			return []string{TopicParts(c.key, c.messageID)}
		}
	}
	return nil
}

func (c permissionRaised) apply(s *Store) []string {
	key := c.perm.SessionKey
	topics := []string{TopicPermissions(key)}
	// A pending permission blocks the run, so the session reports
	// pending_permission until every permission is settled.
	if session := s.sessions[key]; session != nil && session.Status != types.SessionStatusPendingPermission {
		updated := *session
		updated.Status = types.SessionStatusPendingPermission
		s.sessions[key] = &updated
		topics = append(topics, TopicSessions, TopicSession(key))
	}
	perms := s.permissions[key]
	for i, existing := range perms {
		if existing.ID == c.perm.ID {
			perms[i] = *c.perm
			return topics
		}
	}
	s.permissions[key] = append(perms, *c.perm)
	return topics
}

func (c permissionSettled) apply(s *Store) []string {
	perms := s.permissions[c.key]
	for i, existing := range perms {
		if existing.ID == c.permissionID {
			s.permissions[c.key] = append(perms[:i:i], perms[i+1:]...)
			topics := []string{TopicPermissions(c.key)}
			if len(s.permissions[c.key]) > 0 {
				return topics
			}
			// Last permission settled: the run resumes, so drop back to
			// busy until the runtime reports otherwise.
			if session := s.sessions[c.key]; session != nil && session.Status == types.SessionStatusPendingPermission {
				updated := *session
				updated.Status = types.SessionStatusBusy
				s.sessions[c.key] = &updated
				topics = append(topics, TopicSessions, TopicSession(c.key))
			}
			return topics
		}
	}
	return nil
}

func (c todosChange) apply(s *Store) []string {
	s.todos[c.key] = c.todos
	return []string{TopicTodos(c.key)}
}

func (c projectChange) apply(s *Store) []string {
	s.projects[c.project.ID] = c.project
	return append([]string{TopicProjects}, s.backfillProjectsLocked()...)
}

// backfillProjectsLocked retries project resolution for sessions that
// arrived before their project was listed.
func (s *Store) backfillProjectsLocked() []string {
	var topics []string
	for key, session := range s.sessions {
		if session.ProjectID != "" {
			continue
		}
		updated := *session
		s.resolveProjectLocked(&updated)
		if updated.ProjectID == "" {
			continue
		}
		s.sessions[key] = &updated
		if topics == nil {
			topics = append(topics, TopicSessions)
		}
		topics = append(topics, TopicSession(key))
	}
	return topics
}
