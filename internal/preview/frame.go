package preview

import "github.com/kristol07/ququ/internal/shortcut"

// Frame is one capture-state snapshot streamed to preview clients. Frames are
// sent whenever the capture session changes: recording started or stopped, a
// modifier went down while recording, a combination was committed or cleared.
type Frame struct {
	// Recording reports whether a capture session is in progress.
	Recording bool `json:"recording"`
	// Modifiers is the held-modifier state of the most recent key event while
	// recording; zero value otherwise.
	Modifiers shortcut.Modifiers `json:"modifiers"`
	// Display is the human-readable projection of the current value, or the
	// recording placeholder while a session is in progress.
	Display string `json:"display"`
	// Accelerator is the committed canonical accelerator. Empty while
	// recording and when no hotkey is set.
	Accelerator string `json:"accelerator"`
}
