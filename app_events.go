package main

import (
	"context"
	"log/slog"

	"github.com/kristol07/ququ/internal/preview"
	"github.com/kristol07/ququ/internal/shortcut"
)

// Runtime event names emitted to the frontend.
const (
	// eventHotkeyUpdated fires after a shortcut commit or clear has been
	// persisted and (for the global hotkey) re-registered.
	eventHotkeyUpdated = "hotkey:updated"
	// eventHotkeyTriggered fires when the registered global hotkey is pressed.
	eventHotkeyTriggered = "hotkey:triggered"
	// eventConfigUpdated carries the normalized config after a save or an
	// external config file change.
	eventConfigUpdated = "config:updated"
	// eventConfigLoadFailed surfaces non-fatal startup config problems.
	eventConfigLoadFailed = "config:load-failed"
	// eventOpenSettings asks the frontend to navigate to the settings page,
	// used by second-instance activation.
	eventOpenSettings = "app:open-settings"
)

// emitRuntimeEvent emits via the app context and delegates to emitRuntimeEventWithContext.
func (a *App) emitRuntimeEvent(name string, payload any) {
	a.emitRuntimeEventWithContext(a.runtimeContext(), name, payload)
}

// emitRuntimeEventWithContext emits a runtime event only when ctx is non-nil.
// Prefer this helper for best-effort contexts that may not be initialized yet.
func (a *App) emitRuntimeEventWithContext(ctx context.Context, name string, payload any) {
	if ctx == nil {
		slog.Warn("[EVENT] runtime event dropped because app context is nil", "event", name)
		return
	}
	runtimeEventsEmitFn(ctx, name, payload)
}

// hotkeyUpdatedEvent is the payload for eventHotkeyUpdated.
type hotkeyUpdatedEvent struct {
	Control     string `json:"control"`
	SessionID   string `json:"session_id"`
	Accelerator string `json:"accelerator"`
	Display     string `json:"display"`
}

// previewFrameLocked snapshots the capture state of one control for the
// preview hub. Caller must hold captureMu; the WebSocket write itself
// happens via Hub.Broadcast after release. Returns false when no hub is
// running: no auxiliary windows, nothing to send.
func (a *App) previewFrameLocked(entry *captureSession, mods shortcut.Modifiers) (preview.Frame, bool) {
	if a.previewHub == nil {
		return preview.Frame{}, false
	}
	frame := preview.Frame{
		Recording: entry.session.IsRecording(),
		Display:   entry.session.DisplayValue(),
	}
	if frame.Recording {
		if mods.Any() {
			frame.Modifiers = mods
		}
	} else {
		frame.Accelerator = entry.session.Value()
	}
	return frame, true
}
