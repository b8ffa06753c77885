package app

import (
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"os"
	"strings"

	"github.com/atotto/clipboard"
	osc52 "github.com/aymanbagabas/go-osc52/v2"

	"canopy/internal/flatten"
	"canopy/internal/types"
)

var clipboardWriteAll = clipboard.WriteAll
var clipboardWriteOSC52 = writeOSC52Clipboard

// copyTextToClipboard tries the system clipboard first and falls back
// to an OSC52 escape written to the controlling terminal, which works
// over SSH where no display is available.
func copyTextToClipboard(text string) error {
	systemErr := clipboardWriteAll(text)
	if systemErr == nil {
		return nil
	}
	if oscErr := clipboardWriteOSC52(text); oscErr != nil {
		return combineClipboardErrors(systemErr, oscErr)
	}
	return nil
}

func itemCopyText(item flatten.Item) string {
	switch item.Kind {
	case flatten.KindUserMessage, flatten.KindAssistantHeader:
		if item.Message == nil {
			return ""
		}
		return item.Message.ID
	case flatten.KindPart:
		if item.Part == nil {
			return ""
		}
		return partCopyText(item.Part)
	}
	return ""
}

func partCopyText(part *types.Part) string {
	switch part.Kind {
	case types.PartTool:
		if part.Tool == nil {
			return ""
		}
		if part.Tool.Output != "" {
			return part.Tool.Output
		}
		if raw, err := json.Marshal(part.Tool.Input); err == nil {
			return string(raw)
		}
		return ""
	case types.PartFile:
		if part.File != nil {
			return part.File.URL
		}
	case types.PartPatch:
		if part.Patch != nil {
			return strings.Join(part.Patch.Files, "\n")
		}
	}
	return part.Text
}

func writeOSC52Clipboard(text string) error {
	if !shouldAttemptOSC52() {
		return errors.New("OSC52 unavailable for this terminal")
	}
	tty, err := os.OpenFile("/dev/tty", os.O_WRONLY, 0)
	if err != nil {
		return fmt.Errorf("open /dev/tty: %w", err)
	}
	defer tty.Close()
	return writeOSC52Sequence(tty, text)
}

func writeOSC52Sequence(w io.Writer, text string) error {
	termName := strings.ToLower(strings.TrimSpace(os.Getenv("TERM")))
	if os.Getenv("TMUX") != "" {
		// Emit both plain and tmux-wrapped OSC52 so either tmux
		// clipboard configuration picks it up.
		if _, err := osc52.New(text).WriteTo(w); err != nil {
			return err
		}
		_, err := osc52.New(text).Tmux().WriteTo(w)
		return err
	}
	if strings.HasPrefix(termName, "screen") {
		_, err := osc52.New(text).Screen().WriteTo(w)
		return err
	}
	_, err := osc52.New(text).WriteTo(w)
	return err
}

func shouldAttemptOSC52() bool {
	switch strings.ToLower(strings.TrimSpace(os.Getenv("CANOPY_DISABLE_OSC52"))) {
	case "1", "true", "yes", "on":
		return false
	}
	termName := strings.TrimSpace(os.Getenv("TERM"))
	if termName == "" || strings.EqualFold(termName, "dumb") {
		return false
	}
	return true
}

func combineClipboardErrors(systemErr, oscErr error) error {
	if missingDisplay() {
		return fmt.Errorf("no GUI clipboard available (DISPLAY/WAYLAND_DISPLAY unset); OSC52 fallback failed: %s", oscErr)
	}
	return fmt.Errorf("system clipboard failed: %s; OSC52 fallback failed: %s", systemErr, oscErr)
}

func missingDisplay() bool {
	return strings.TrimSpace(os.Getenv("DISPLAY")) == "" && strings.TrimSpace(os.Getenv("WAYLAND_DISPLAY")) == ""
}
