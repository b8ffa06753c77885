package store

import (
	"encoding/json"
	"testing"

	"canopy/internal/sessionkey"
	"canopy/internal/types"
)

func rawEvent(t *testing.T, kind string, properties map[string]any) types.Event {
	t.Helper()
	raw, err := json.Marshal(properties)
	if err != nil {
		t.Fatalf("marshal properties: %v", err)
	}
	return types.Event{Type: kind, Properties: raw}
}

func sessionEvent(t *testing.T, kind, directory, id string) types.Event {
	t.Helper()
	evt := rawEvent(t, kind, map[string]any{
		"info": map[string]any{
			"id":   id,
			"time": map[string]any{"created": 1000, "updated": 2000},
		},
	})
	evt.Directory = directory
	return evt
}

func partEvent(t *testing.T, directory, sessionID, messageID, partID string, ended *int64) types.Event {
	t.Helper()
	part := map[string]any{
		"id":        partID,
		"messageID": messageID,
		"sessionID": sessionID,
		"type":      "text",
		"text":      "hello",
		"time":      map[string]any{"start": 5000},
	}
	if ended != nil {
		part["time"] = map[string]any{"start": 5000, "end": *ended}
	}
	evt := rawEvent(t, types.EventPartUpdated, map[string]any{"part": part})
	evt.Directory = directory
	return evt
}

func TestApplyPartUpdatedIsIdempotent(t *testing.T) {
	s := New(nil)
	s.Apply(sessionEvent(t, types.EventSessionCreated, "/work/a", "s1"))
	key := sessionkey.Build("/work/a", "s1")
	s.SetActive(key)

	evt := partEvent(t, "/work/a", "s1", "m1", "p1", nil)
	s.Apply(evt)
	s.Apply(evt)

	parts := s.Parts(key, "m1")
	if len(parts) != 1 {
		t.Fatalf("expected one part after duplicate apply, got %d", len(parts))
	}
	if !parts[0].Streaming() {
		t.Fatalf("part without end time should be streaming")
	}

	ended := int64(9000)
	s.Apply(partEvent(t, "/work/a", "s1", "m1", "p1", &ended))
	parts = s.Parts(key, "m1")
	if len(parts) != 1 {
		t.Fatalf("expected update in place, got %d parts", len(parts))
	}
	if parts[0].Streaming() {
		t.Fatalf("part with end time should not be streaming")
	}
}

func TestSameRemoteIDAcrossProjectsStaysDistinct(t *testing.T) {
	s := New(nil)
	s.Apply(sessionEvent(t, types.EventSessionCreated, "/work/a", "42"))
	s.Apply(sessionEvent(t, types.EventSessionCreated, "/work/b", "42"))

	keyA := sessionkey.Build("/work/a", "42")
	keyB := sessionkey.Build("/work/b", "42")
	if keyA == keyB {
		t.Fatalf("composite keys must differ across projects")
	}
	if len(s.Sessions()) != 2 {
		t.Fatalf("expected two distinct sessions, got %d", len(s.Sessions()))
	}

	s.SetActive(keyA)
	s.Apply(partEvent(t, "/work/a", "42", "m1", "p1", nil))
	if got := len(s.Parts(keyA, "m1")); got != 1 {
		t.Fatalf("project A message missing its part, got %d", got)
	}
	if got := len(s.Parts(keyB, "m1")); got != 0 {
		t.Fatalf("project B must not see project A's parts, got %d", got)
	}
}

func TestSessionDeletedCascades(t *testing.T) {
	s := New(nil)
	s.Apply(sessionEvent(t, types.EventSessionCreated, "/work/a", "s1"))
	key := sessionkey.Build("/work/a", "s1")
	s.SetActive(key)
	s.Apply(partEvent(t, "/work/a", "s1", "m1", "p1", nil))
	s.ReplaceDiff(key, []types.FileDiff{{Path: "main.go", Additions: 3}})

	del := rawEvent(t, types.EventSessionDeleted, map[string]any{
		"info": map[string]any{"id": "s1"},
	})
	del.Directory = "/work/a"
	s.Apply(del)

	if s.Session(key) != nil {
		t.Fatalf("session should be gone")
	}
	if len(s.Parts(key, "m1")) != 0 {
		t.Fatalf("parts should be purged with the session")
	}
	if len(s.Diff(key)) != 0 {
		t.Fatalf("diff should be purged with the session")
	}
}

func TestStaleSessionUpdateIsIgnored(t *testing.T) {
	s := New(nil)
	fresh := rawEvent(t, types.EventSessionUpdated, map[string]any{
		"info": map[string]any{
			"id":    "s1",
			"title": "new title",
			"time":  map[string]any{"created": 1000, "updated": 5000},
		},
	})
	fresh.Directory = "/work/a"
	s.Apply(fresh)

	stale := rawEvent(t, types.EventSessionUpdated, map[string]any{
		"info": map[string]any{
			"id":    "s1",
			"title": "old title",
			"time":  map[string]any{"created": 1000, "updated": 3000},
		},
	})
	stale.Directory = "/work/a"
	s.Apply(stale)

	session := s.Session(sessionkey.Build("/work/a", "s1"))
	if session == nil || session.Title != "new title" {
		t.Fatalf("stale update must not win, got %+v", session)
	}
}

func TestStatusChangePreservedAcrossUpsert(t *testing.T) {
	s := New(nil)
	s.Apply(sessionEvent(t, types.EventSessionCreated, "/work/a", "s1"))
	key := sessionkey.Build("/work/a", "s1")

	status := rawEvent(t, types.EventSessionStatus, map[string]any{
		"sessionID": "s1",
		"status":    map[string]any{"type": "busy"},
	})
	status.Directory = "/work/a"
	s.Apply(status)

	update := rawEvent(t, types.EventSessionUpdated, map[string]any{
		"info": map[string]any{
			"id":    "s1",
			"title": "renamed",
			"time":  map[string]any{"created": 1000, "updated": 3000},
		},
	})
	update.Directory = "/work/a"
	s.Apply(update)

	session := s.Session(key)
	if session.Status != types.SessionStatusBusy {
		t.Fatalf("session.updated must not clobber status, got %s", session.Status)
	}
	if session.Title != "renamed" {
		t.Fatalf("scalar merge lost the title, got %q", session.Title)
	}
}

func TestUnknownAndMalformedEventsAreCounted(t *testing.T) {
	s := New(nil)
	s.Apply(types.Event{Type: "installation.updated", Properties: json.RawMessage(`{}`)})
	s.Apply(types.Event{Type: types.EventPartUpdated, Properties: json.RawMessage(`{"part":{"id":""}}`)})
	s.Apply(types.Event{Type: types.EventSessionStatus, Properties: json.RawMessage(`not json`)})

	dropped, unknown, _ := s.Counters()
	if unknown != 1 {
		t.Fatalf("expected 1 unknown event, got %d", unknown)
	}
	if dropped != 2 {
		t.Fatalf("expected 2 dropped events, got %d", dropped)
	}
	if len(s.Sessions()) != 0 {
		t.Fatalf("bad events must not mutate state")
	}
}

func TestSubscriptionsAreScoped(t *testing.T) {
	s := New(nil)
	s.Apply(sessionEvent(t, types.EventSessionCreated, "/work/a", "s1"))
	s.Apply(sessionEvent(t, types.EventSessionCreated, "/work/a", "s2"))
	keyA := sessionkey.Build("/work/a", "s1")
	keyB := sessionkey.Build("/work/a", "s2")
	s.SetActive(keyA)

	var sessionFires, partFiresA, partFiresB int
	s.Subscribe(TopicSessions, func() { sessionFires++ })
	s.Subscribe(TopicParts(keyA, "m1"), func() { partFiresA++ })
	cancel := s.Subscribe(TopicParts(keyB, "m1"), func() { partFiresB++ })

	s.Apply(partEvent(t, "/work/a", "s1", "m1", "p1", nil))

	if sessionFires != 0 {
		t.Fatalf("part update must not fire session subscribers, got %d", sessionFires)
	}
	if partFiresA != 1 {
		t.Fatalf("scoped part subscriber should fire once, got %d", partFiresA)
	}
	if partFiresB != 0 {
		t.Fatalf("other session's part subscriber must stay quiet, got %d", partFiresB)
	}

	cancel()
	cancel() // idempotent
	s.SetActive(keyB)
	s.Apply(partEvent(t, "/work/a", "s2", "m1", "p1", nil))
	if partFiresB != 0 {
		t.Fatalf("canceled subscriber must not fire, got %d", partFiresB)
	}
}

func TestErrorDismissalKeyedBySignature(t *testing.T) {
	s := New(nil)
	s.Apply(sessionEvent(t, types.EventSessionCreated, "/work/a", "s1"))
	key := sessionkey.Build("/work/a", "s1")

	errEvt := func(name, message string) types.Event {
		evt := rawEvent(t, types.EventSessionError, map[string]any{
			"sessionID": "s1",
			"error":     map[string]any{"name": name, "message": message},
		})
		evt.Directory = "/work/a"
		return evt
	}

	s.Apply(errEvt("MessageOutputLengthError", "too long"))
	if s.VisibleError(key) == nil {
		t.Fatalf("dismissable error should be visible")
	}
	if !s.DismissError(key) {
		t.Fatalf("dismiss should succeed")
	}
	if s.VisibleError(key) != nil {
		t.Fatalf("dismissed error should be hidden")
	}

	// Same signature again: stays dismissed.
	s.Apply(errEvt("MessageOutputLengthError", "too long"))
	if s.VisibleError(key) != nil {
		t.Fatalf("identical error must not reopen the banner")
	}

	// Distinct error: banner reopens.
	s.Apply(errEvt("UnknownError", "boom"))
	if s.VisibleError(key) == nil {
		t.Fatalf("distinct error must reopen the banner")
	}

	// Hidden class never shows.
	s.Apply(errEvt("MessageAbortedError", "user aborted"))
	if s.VisibleError(key) != nil {
		t.Fatalf("aborted errors are never shown")
	}
}

func TestCriticalErrorsCannotBeDismissed(t *testing.T) {
	s := New(nil)
	s.Apply(sessionEvent(t, types.EventSessionCreated, "/work/a", "s1"))
	key := sessionkey.Build("/work/a", "s1")

	evt := rawEvent(t, types.EventSessionError, map[string]any{
		"sessionID": "s1",
		"error":     map[string]any{"name": "ProviderAuthError", "message": "bad token"},
	})
	evt.Directory = "/work/a"
	s.Apply(evt)

	if s.DismissError(key) {
		t.Fatalf("critical errors must not be dismissable")
	}
	if s.VisibleError(key) == nil {
		t.Fatalf("critical error should remain visible")
	}
}

func TestPermissionLifecycle(t *testing.T) {
	s := New(nil)
	s.Apply(sessionEvent(t, types.EventSessionCreated, "/work/a", "s1"))
	key := sessionkey.Build("/work/a", "s1")

	raised := rawEvent(t, types.EventPermissionUpdated, map[string]any{
		"id":        "perm1",
		"sessionID": "s1",
		"type":      "bash",
		"title":     "run tests",
		"metadata":  map[string]any{"command": "go test ./..."},
	})
	raised.Directory = "/work/a"
	s.Apply(raised)

	perms := s.Permissions(key)
	if len(perms) != 1 || perms[0].Command != "go test ./..." {
		t.Fatalf("permission not recorded: %+v", perms)
	}
	if got := s.Session(key).Status; got != types.SessionStatusPendingPermission {
		t.Fatalf("status = %q, want pending_permission while a permission waits", got)
	}

	replied := rawEvent(t, types.EventPermissionReplied, map[string]any{
		"sessionID":    "s1",
		"permissionID": "perm1",
		"response":     "once",
	})
	replied.Directory = "/work/a"
	s.Apply(replied)

	if len(s.Permissions(key)) != 0 {
		t.Fatalf("replied permission should be cleared")
	}
	if got := s.Session(key).Status; got != types.SessionStatusBusy {
		t.Fatalf("status = %q, want busy after the last permission settles", got)
	}
}

func TestPermissionStatusHoldsUntilAllSettle(t *testing.T) {
	s := New(nil)
	s.Apply(sessionEvent(t, types.EventSessionCreated, "/work/a", "s1"))
	key := sessionkey.Build("/work/a", "s1")

	for _, id := range []string{"perm1", "perm2"} {
		raised := rawEvent(t, types.EventPermissionUpdated, map[string]any{
			"id":        id,
			"sessionID": "s1",
			"type":      "bash",
		})
		raised.Directory = "/work/a"
		s.Apply(raised)
	}

	replied := rawEvent(t, types.EventPermissionReplied, map[string]any{
		"sessionID":    "s1",
		"permissionID": "perm1",
		"response":     "reject",
	})
	replied.Directory = "/work/a"
	s.Apply(replied)

	if got := s.Session(key).Status; got != types.SessionStatusPendingPermission {
		t.Fatalf("status = %q, want pending_permission while perm2 still waits", got)
	}
}

func TestDiffEventUpdatesSummary(t *testing.T) {
	s := New(nil)
	s.Apply(sessionEvent(t, types.EventSessionCreated, "/work/a", "s1"))
	key := sessionkey.Build("/work/a", "s1")

	evt := rawEvent(t, types.EventSessionDiff, map[string]any{
		"sessionID": "s1",
		"diff": []map[string]any{
			{"path": "a.go", "additions": 4, "deletions": 1},
			{"path": "b.go", "additions": 2, "deletions": 0},
		},
	})
	evt.Directory = "/work/a"
	s.Apply(evt)

	session := s.Session(key)
	want := types.SessionSummary{Additions: 6, Deletions: 1, Files: 2}
	if session.Summary != want {
		t.Fatalf("summary = %+v, want %+v", session.Summary, want)
	}
}

func TestProjectIDResolvedOnUpsertAndBackfill(t *testing.T) {
	s := New(nil)
	defer s.Close()

	// Session lands before its project is listed: key resolution has no
	// snapshot to match against yet.
	s.Apply(sessionEvent(t, types.EventSessionCreated, "/work/a", "s1"))
	key := sessionkey.Build("/work/a", "s1")
	if got := s.Session(key).ProjectID; got != "" {
		t.Fatalf("ProjectID = %q before project listing, want empty", got)
	}

	s.ReplaceProjects([]types.Project{
		{ID: "proj_a", Directory: "/work/a"},
		{ID: "proj_b", Directory: "/work/b"},
	})
	if got := s.Session(key).ProjectID; got != "proj_a" {
		t.Fatalf("ProjectID = %q after project listing, want proj_a", got)
	}

	// With the snapshot in place a new session resolves on first upsert.
	s.Apply(sessionEvent(t, types.EventSessionCreated, "/work/b", "s2"))
	other := sessionkey.Build("/work/b", "s2")
	if got := s.Session(other).ProjectID; got != "proj_b" {
		t.Fatalf("ProjectID = %q on upsert, want proj_b", got)
	}
}
