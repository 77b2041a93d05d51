package main

import (
	"context"
	"log/slog"
	"strings"
	"time"

	"github.com/kristol07/ququ/internal/config"
	"github.com/kristol07/ququ/internal/hotkeys"
	"github.com/kristol07/ququ/internal/shortcut"

	"github.com/google/uuid"
)

// mainHotkeyControl is the control id of the global dictation hotkey input.
// Every other control id names an in-app viewer shortcut and is persisted
// under Config.ViewerShortcuts.
const mainHotkeyControl = "hotkey"

const (
	recordingPlaceholder = "Press shortcut"
	emptyPlaceholder     = "Click to set shortcut"

	historyRecordTimeout = 3 * time.Second
)

// captureSession pairs one frontend shortcut control with its recording
// state machine. The id is a per-instance uuid used in logs and events.
type captureSession struct {
	id      string
	control string
	session *shortcut.Session
}

// KeyDownEvent is one raw key-down event forwarded by the frontend while a
// capture session is recording.
type KeyDownEvent struct {
	Key   string `json:"key"`
	Ctrl  bool   `json:"ctrl"`
	Alt   bool   `json:"alt"`
	Shift bool   `json:"shift"`
	Meta  bool   `json:"meta"`
}

func (e KeyDownEvent) modifiers() shortcut.Modifiers {
	return shortcut.Modifiers{Ctrl: e.Ctrl, Alt: e.Alt, Shift: e.Shift, Meta: e.Meta}
}

// commitRequest is one staged shortcut commit or clear. Session.OnChange
// fires while captureMu is held; the request captures everything the commit
// flow needs so persistence, hotkey re-registration, history, and events can
// run after the lock is released.
type commitRequest struct {
	control   string
	sessionID string
	canonical string
	display   string
}

// StartHotkeyCapture begins recording for the given control. Returns false
// when the control id is empty, the session is disabled, or a recording is
// already in progress. Starting the global hotkey control unregisters the
// active hotkey so its own chord can be recaptured.
func (a *App) StartHotkeyCapture(control string) bool {
	control = strings.TrimSpace(control)
	if control == "" {
		slog.Warn("[capture] start rejected: empty control id")
		return false
	}

	a.captureMu.Lock()
	entry := a.ensureCaptureLocked(control)
	if !entry.session.Start() {
		a.captureMu.Unlock()
		return false
	}
	slog.Debug("[capture] recording started", "control", control, "session", entry.id)
	if control == mainHotkeyControl {
		a.suspendGlobalHotkey()
	}
	frame, ok := a.previewFrameLocked(entry, shortcut.Modifiers{})
	a.captureMu.Unlock()

	if ok {
		a.previewHub.Broadcast(frame)
	}
	return true
}

// CaptureKeyDown feeds one key-down event to the control's session. The
// returned flag reports whether the event was consumed; the frontend must
// suppress default handling for consumed events so host shortcuts do not
// fire mid-recording.
func (a *App) CaptureKeyDown(control string, evt KeyDownEvent) bool {
	a.captureMu.Lock()

	entry, ok := a.captures[strings.TrimSpace(control)]
	if !ok {
		a.captureMu.Unlock()
		return false
	}

	mods := evt.modifiers()
	result, handled := entry.session.HandleKeyDown(mods, evt.Key)
	if !handled {
		a.captureMu.Unlock()
		return false
	}

	switch result {
	case shortcut.KeyCancelled:
		slog.Debug("[capture] recording cancelled", "control", entry.control, "session", entry.id)
		if entry.control == mainHotkeyControl {
			a.resumeGlobalHotkey()
		}
	case shortcut.KeyCommitted:
		slog.Info("[capture] combination committed",
			"control", entry.control,
			"session", entry.id,
			"accelerator", entry.session.Value(),
		)
	}
	commits := a.takePendingCommitsLocked()
	frame, hasFrame := a.previewFrameLocked(entry, mods)
	a.captureMu.Unlock()

	a.runCommits(commits)
	if hasFrame {
		a.previewHub.Broadcast(frame)
	}
	return true
}

// CancelHotkeyCapture aborts an active recording with rollback, mirroring a
// focus loss in the frontend. Safe to call for idle or unknown controls.
func (a *App) CancelHotkeyCapture(control string) {
	a.captureMu.Lock()

	entry, ok := a.captures[strings.TrimSpace(control)]
	if !ok || !entry.session.IsRecording() {
		a.captureMu.Unlock()
		return
	}
	entry.session.Blur()
	slog.Debug("[capture] recording blurred", "control", entry.control, "session", entry.id)
	if entry.control == mainHotkeyControl {
		a.resumeGlobalHotkey()
	}
	frame, hasFrame := a.previewFrameLocked(entry, shortcut.Modifiers{})
	a.captureMu.Unlock()

	if hasFrame {
		a.previewHub.Broadcast(frame)
	}
}

// ClearHotkey removes the committed shortcut for the control. The cleared
// value persists as an explicit empty accelerator; for the global hotkey
// control this disables system-wide registration until a new chord is set.
func (a *App) ClearHotkey(control string) bool {
	control = strings.TrimSpace(control)
	if control == "" {
		return false
	}

	a.captureMu.Lock()
	entry := a.ensureCaptureLocked(control)
	if !entry.session.Clear() {
		a.captureMu.Unlock()
		return false
	}
	commits := a.takePendingCommitsLocked()
	frame, hasFrame := a.previewFrameLocked(entry, shortcut.Modifiers{})
	a.captureMu.Unlock()

	a.runCommits(commits)
	if hasFrame {
		a.previewHub.Broadcast(frame)
	}
	return true
}

// HotkeyDisplayValue returns the label the control should render: the
// recording placeholder while capturing, the empty placeholder when no value
// is set, and otherwise the formatted committed value.
func (a *App) HotkeyDisplayValue(control string) string {
	control = strings.TrimSpace(control)
	if control == "" {
		return ""
	}

	a.captureMu.Lock()
	defer a.captureMu.Unlock()
	return a.ensureCaptureLocked(control).session.DisplayValue()
}

// IsCapturing reports whether the control is currently recording.
func (a *App) IsCapturing(control string) bool {
	a.captureMu.Lock()
	defer a.captureMu.Unlock()

	entry, ok := a.captures[strings.TrimSpace(control)]
	return ok && entry.session.IsRecording()
}

// ensureCaptureLocked returns the capture session for control, creating it
// from the current config on first use. Caller must hold captureMu.
func (a *App) ensureCaptureLocked(control string) *captureSession {
	if entry, ok := a.captures[control]; ok {
		return entry
	}

	cfg := a.getConfigSnapshot()
	formatter := shortcut.NewFormatter(shortcut.FormatterOptions{
		ApplePlatform: shortcut.IsApplePlatform(),
		SpaceLabel:    cfg.SpaceLabel(),
	})
	entry := &captureSession{id: uuid.NewString(), control: control}
	entry.session = shortcut.NewSession(shortcut.SessionOptions{
		Formatter:            formatter,
		RecordingPlaceholder: recordingPlaceholder,
		EmptyPlaceholder:     emptyPlaceholder,
		OnChange: func(canonical string) {
			// Fires with captureMu held; stage the commit for the caller.
			a.pendingCommits = append(a.pendingCommits, commitRequest{
				control:   entry.control,
				sessionID: entry.id,
				canonical: canonical,
				display:   entry.session.DisplayValue(),
			})
		},
	})
	entry.session.SetValue(committedShortcut(cfg, control))
	a.captures[control] = entry
	return entry
}

// committedShortcut returns the persisted accelerator for a control id.
func committedShortcut(cfg config.Config, control string) string {
	if control == mainHotkeyControl {
		return cfg.Hotkey
	}
	return cfg.ViewerShortcuts[control]
}

// takePendingCommitsLocked drains the staged commits. Caller must hold
// captureMu and run the result via runCommits after releasing it.
func (a *App) takePendingCommitsLocked() []commitRequest {
	commits := a.pendingCommits
	a.pendingCommits = nil
	return commits
}

// runCommits executes staged commits in staging order. Must be called
// without captureMu held: the flow does disk and network I/O.
func (a *App) runCommits(commits []commitRequest) {
	for _, req := range commits {
		a.commitShortcutChange(req)
	}
}

// commitShortcutChange runs the commit flow after a session emitted a new
// canonical value (or "" on clear): persist the config, re-register the
// global hotkey, append a history row, and notify the frontend.
func (a *App) commitShortcutChange(req commitRequest) {
	if req.control == mainHotkeyControl && req.canonical != "" {
		if _, err := hotkeys.ParseBinding(req.canonical); err != nil {
			// Sessions only emit canonical combinations, so this indicates a
			// key the OS layer cannot map. Keep the value persisted but warn.
			slog.Warn("[capture] committed accelerator is not registrable",
				"control", req.control,
				"accelerator", req.canonical,
				"error", err,
			)
		}
	}

	event, err := a.mutateConfigWithLock(func(cfg *config.Config) {
		if req.control == mainHotkeyControl {
			cfg.Hotkey = req.canonical
			return
		}
		if cfg.ViewerShortcuts == nil {
			cfg.ViewerShortcuts = map[string]string{}
		}
		if req.canonical == "" {
			delete(cfg.ViewerShortcuts, req.control)
		} else {
			cfg.ViewerShortcuts[req.control] = req.canonical
		}
	})
	if err != nil {
		slog.Warn("[WARN-CONFIG] shortcut commit could not be persisted",
			"control", req.control, "error", err)
		a.emitRuntimeEvent(eventConfigLoadFailed, map[string]string{
			"message": "Failed to save shortcut change: " + err.Error(),
		})
	} else {
		a.emitRuntimeEvent(eventConfigUpdated, event)
	}

	if req.control == mainHotkeyControl {
		a.applyGlobalHotkey(req.canonical)
	}

	a.recordHotkeyChange(req.control, req.canonical)
	a.emitRuntimeEvent(eventHotkeyUpdated, hotkeyUpdatedEvent{
		Control:     req.control,
		SessionID:   req.sessionID,
		Accelerator: req.canonical,
		Display:     req.display,
	})
}

// recordHotkeyChange appends one row to the audit history. Failures are
// logged and swallowed: history is diagnostics, not state.
func (a *App) recordHotkeyChange(control string, canonical string) {
	store, err := a.requireHistory()
	if err != nil {
		slog.Debug("[capture] skip history record", "error", err)
		return
	}
	historyControl := control
	if control != mainHotkeyControl {
		historyControl = "viewer:" + control
	}
	ctx, cancel := context.WithTimeout(context.Background(), historyRecordTimeout)
	defer cancel()
	if last, ok, err := store.LastForControl(ctx, historyControl); err == nil && ok && last.Accelerator == canonical {
		// Re-recording the identical chord is not a change worth auditing.
		slog.Debug("[capture] accelerator unchanged, skipping history row", "control", historyControl)
		return
	}
	if _, err := store.Record(ctx, historyControl, canonical); err != nil {
		slog.Warn("[WARN-HISTORY] failed to record hotkey change",
			"control", historyControl, "error", err)
	}
}

// refreshCaptureSessions drops idle sessions so they are rebuilt against the
// given config on next use (new formatter locale, new committed values).
// Recording sessions are left alone; their snapshot rollback stays valid.
func (a *App) refreshCaptureSessions() {
	a.captureMu.Lock()
	defer a.captureMu.Unlock()
	for control, entry := range a.captures {
		if !entry.session.IsRecording() {
			delete(a.captures, control)
		}
	}
}
