package app

import (
	"errors"
	"strings"
	"testing"
	"time"

	"canopy/internal/flatten"
	"canopy/internal/types"
)

func TestCopyTextFallsBackToOSC52(t *testing.T) {
	origSystem := clipboardWriteAll
	origOSC := clipboardWriteOSC52
	defer func() {
		clipboardWriteAll = origSystem
		clipboardWriteOSC52 = origOSC
	}()

	var oscText string
	clipboardWriteAll = func(string) error { return errors.New("no display") }
	clipboardWriteOSC52 = func(text string) error {
		oscText = text
		return nil
	}

	if err := copyTextToClipboard("hello"); err != nil {
		t.Fatalf("copyTextToClipboard: %v", err)
	}
	if oscText != "hello" {
		t.Fatalf("osc fallback got %q", oscText)
	}
}

func TestCopyTextReportsBothFailures(t *testing.T) {
	origSystem := clipboardWriteAll
	origOSC := clipboardWriteOSC52
	defer func() {
		clipboardWriteAll = origSystem
		clipboardWriteOSC52 = origOSC
	}()

	clipboardWriteAll = func(string) error { return errors.New("no display") }
	clipboardWriteOSC52 = func(string) error { return errors.New("no tty") }

	err := copyTextToClipboard("hello")
	if err == nil {
		t.Fatal("expected error when both paths fail")
	}
	if !strings.Contains(err.Error(), "no tty") {
		t.Fatalf("error should mention the OSC52 failure, got %v", err)
	}
}

func TestItemCopyTextPrefersToolOutput(t *testing.T) {
	ended := time.Now()
	part := &types.Part{
		ID:      "p1",
		Kind:    types.PartTool,
		EndedAt: &ended,
		Tool: &types.ToolState{
			Name:   "bash",
			Status: types.ToolStatusCompleted,
			Input:  map[string]any{"command": "ls"},
			Output: "README.md",
		},
	}
	got := itemCopyText(flatten.Item{Kind: flatten.KindPart, Part: part})
	if got != "README.md" {
		t.Fatalf("got %q, want tool output", got)
	}

	part.Tool.Output = ""
	got = itemCopyText(flatten.Item{Kind: flatten.KindPart, Part: part})
	if !strings.Contains(got, "ls") {
		t.Fatalf("got %q, want marshaled input", got)
	}
}

func TestItemCopyTextPlainText(t *testing.T) {
	part := &types.Part{ID: "p1", Kind: types.PartText, Text: "the answer"}
	if got := itemCopyText(flatten.Item{Kind: flatten.KindPart, Part: part}); got != "the answer" {
		t.Fatalf("got %q", got)
	}
}
