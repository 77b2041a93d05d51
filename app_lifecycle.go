package main

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"path/filepath"
	"reflect"
	"strings"
	"time"

	"github.com/kristol07/ququ/internal/config"
	"github.com/kristol07/ququ/internal/history"
	"github.com/kristol07/ququ/internal/ipc"
	"github.com/kristol07/ququ/internal/preview"
	"github.com/kristol07/ququ/internal/workerutil"

	"github.com/wailsapp/wails/v2/pkg/runtime"
)

type appRuntimeLogger interface {
	Warningf(context.Context, string, ...interface{})
	Infof(context.Context, string, ...interface{})
	Errorf(context.Context, string, ...interface{})
}

type wailsRuntimeLogger struct{}

func formatRuntimeLogMessage(message string, args ...interface{}) string {
	if len(args) == 0 {
		return message
	}
	return fmt.Sprintf(message, args...)
}

func (wailsRuntimeLogger) Warningf(ctx context.Context, message string, args ...interface{}) {
	if ctx == nil {
		slog.Warn(formatRuntimeLogMessage(message, args...))
		return
	}
	runtime.LogWarningf(ctx, message, args...)
}

func (wailsRuntimeLogger) Infof(ctx context.Context, message string, args ...interface{}) {
	if ctx == nil {
		slog.Info(formatRuntimeLogMessage(message, args...))
		return
	}
	runtime.LogInfof(ctx, message, args...)
}

func (wailsRuntimeLogger) Errorf(ctx context.Context, message string, args ...interface{}) {
	if ctx == nil {
		slog.Error(formatRuntimeLogMessage(message, args...))
		return
	}
	runtime.LogErrorf(ctx, message, args...)
}

var (
	runtimeEventsEmitFn                            = runtime.EventsEmit
	runtimeLogger                 appRuntimeLogger = wailsRuntimeLogger{}
	newPipeServerFn                                = ipc.NewPipeServer
	runtimeWindowIsMinimisedFn                     = runtime.WindowIsMinimised
	runtimeWindowHideFn                            = runtime.WindowHide
	runtimeWindowShowFn                            = runtime.WindowShow
	runtimeWindowUnminimiseFn                      = runtime.WindowUnminimise
	runtimeWindowSetAlwaysOnTopFn                  = runtime.WindowSetAlwaysOnTop
)

const (
	shutdownWaitTimeout = 10 * time.Second
	historyFileName     = "history.db"
)

func (a *App) addPendingConfigLoadWarning(message string) {
	trimmed := strings.TrimSpace(message)
	if trimmed == "" {
		return
	}
	a.startupWarnMu.Lock()
	a.configLoadWarnings = append(a.configLoadWarnings, trimmed)
	a.startupWarnMu.Unlock()
}

func (a *App) consumePendingConfigLoadWarning() string {
	a.startupWarnMu.Lock()
	defer a.startupWarnMu.Unlock()
	if len(a.configLoadWarnings) == 0 {
		return ""
	}
	message := strings.Join(a.configLoadWarnings, "\n")
	a.configLoadWarnings = nil
	return message
}

func (a *App) startup(ctx context.Context) {
	setConsoleUTF8()

	a.setRuntimeContext(ctx)
	a.setWindowVisible(true)

	a.configPath = config.DefaultPath()
	for _, message := range config.ConsumeDefaultPathWarnings() {
		a.addPendingConfigLoadWarning(message)
	}

	cfg, err := config.EnsureFile(a.configPath)
	if err != nil {
		// Config load/parse failures are non-fatal. Continue startup with
		// defaults and surface a warning to the user.
		cfg = config.DefaultConfig()
		a.addPendingConfigLoadWarning(
			"Failed to load config file at startup. Running with defaults. Error: " + err.Error(),
		)
		runtimeLogger.Warningf(ctx, "failed to load config from %s: %v", a.configPath, err)
	}
	a.setConfigSnapshot(cfg)

	bgCtx, cancel := context.WithCancel(context.Background())
	a.bgCancel = cancel

	a.openHistoryStore(ctx, cfg)
	a.startPreviewHub(ctx, bgCtx, cfg)
	a.startPipeServer(ctx)
	a.configureGlobalHotkey()
	a.startConfigWatcher(bgCtx)
	a.flushPendingConfigLoadWarnings()
}

func (a *App) openHistoryStore(logCtx context.Context, cfg config.Config) {
	if a.configPath == "" {
		return
	}
	path := filepath.Join(filepath.Dir(a.configPath), historyFileName)
	store, err := history.Open(path, cfg.HistoryLimit)
	if err != nil {
		runtimeLogger.Warningf(logCtx, "history store unavailable: %v", err)
		a.addPendingConfigLoadWarning(
			"Failed to open the hotkey history store. Changes will not be recorded. Error: " + err.Error(),
		)
		return
	}
	a.historyStore = store
}

func (a *App) startPreviewHub(logCtx context.Context, bgCtx context.Context, cfg config.Config) {
	addr := ""
	if cfg.PreviewPort > 0 {
		addr = fmt.Sprintf("127.0.0.1:%d", cfg.PreviewPort)
	}
	hub := preview.NewHub(preview.HubOptions{Addr: addr})
	if err := hub.Start(bgCtx); err != nil {
		runtimeLogger.Warningf(logCtx, "preview server failed: %v", err)
		a.addPendingConfigLoadWarning(
			"Failed to start the capture preview server. Auxiliary windows will not update live. Error: " + err.Error(),
		)
		return
	}
	a.previewHub = hub
	runtimeLogger.Infof(logCtx, "preview server listening: %s", hub.URL())
}

func (a *App) startPipeServer(logCtx context.Context) {
	a.pipeServer = newPipeServerFn(ipc.DefaultPipeName(), activationHandler{app: a})
	err := a.pipeServer.Start()
	switch {
	case errors.Is(err, ipc.ErrUnsupported):
		slog.Info("[DEBUG-IPC] activation pipe not supported on this platform, second instances will not signal this one")
	case err != nil:
		runtimeLogger.Errorf(logCtx, "activation pipe server failed: %v", err)
		a.addPendingConfigLoadWarning(
			"Failed to start the activation pipe server. A second instance cannot focus this window. Error: " + err.Error(),
		)
	default:
		runtimeLogger.Infof(logCtx, "activation pipe listening: %s", a.pipeServer.PipeName())
	}
}

func (a *App) startConfigWatcher(bgCtx context.Context) {
	if a.configPath == "" {
		return
	}
	watcher, err := config.NewWatcher(a.configPath, a.handleConfigReload)
	if err != nil {
		slog.Warn("[WARN-CONFIG] config watcher unavailable, external edits require a restart", "error", err)
		return
	}
	a.configWatcher = watcher
	workerutil.RunWithPanicRecovery(bgCtx, "config-watcher", &a.bgWG, watcher.Run, workerutil.RecoveryOptions{
		IsShutdown: a.shuttingDown.Load,
	})
}

// handleConfigReload applies an externally edited config file: it refreshes
// the in-memory snapshot, re-registers the hotkey when the accelerator
// changed, and notifies the frontend. Saves from this process round-trip
// through the watcher too; the DeepEqual check drops those echoes.
func (a *App) handleConfigReload(cfg config.Config) {
	current := a.getConfigSnapshot()
	if reflect.DeepEqual(current, cfg) {
		return
	}
	slog.Info("[WARN-CONFIG] config file changed on disk, applying", "path", a.configPath)
	a.setConfigSnapshot(cfg)
	a.applySavedConfig(current, cfg)

	version := a.configEventVersion.Add(1)
	a.emitRuntimeEvent(eventConfigUpdated, configUpdatedEvent{
		Config:             config.Clone(cfg),
		Version:            version,
		UpdatedAtUnixMilli: time.Now().UnixMilli(),
	})
}

func (a *App) shutdown(_ context.Context) {
	a.shuttingDown.Store(true)
	logCtx := a.runtimeContext()

	if a.bgCancel != nil {
		a.bgCancel()
		a.bgCancel = nil
	}
	if a.configWatcher != nil {
		if err := a.configWatcher.Close(); err != nil {
			runtimeLogger.Warningf(logCtx, "config watcher close failed: %v", err)
		}
	}
	if !waitWithTimeout(a.bgWG.Wait, shutdownWaitTimeout) {
		runtimeLogger.Warningf(logCtx, "timed out waiting for background workers during shutdown")
	}

	if a.hotkeys != nil {
		if err := a.hotkeys.Stop(); err != nil {
			runtimeLogger.Warningf(logCtx, "hotkeys stop failed: %v", err)
		}
	}
	if a.pipeServer != nil {
		if err := a.pipeServer.Stop(); err != nil {
			runtimeLogger.Warningf(logCtx, "pipe server stop failed: %v", err)
		}
	}
	if a.previewHub != nil {
		if err := a.previewHub.Stop(); err != nil {
			runtimeLogger.Warningf(logCtx, "preview server stop failed: %v", err)
		}
	}
	if a.historyStore != nil {
		if err := a.historyStore.Close(); err != nil {
			runtimeLogger.Warningf(logCtx, "history store close failed: %v", err)
		}
	}
}

func waitWithTimeout(waitFn func(), timeout time.Duration) bool {
	// Best effort timeout guard for shutdown paths. The waiting goroutine may
	// outlive timeout when waitFn blocks indefinitely, but this function is only
	// used during process shutdown where eventual completion is expected.
	done := make(chan struct{})
	go func() {
		waitFn()
		close(done)
	}()

	timer := time.NewTimer(timeout)
	defer func() {
		if !timer.Stop() {
			select {
			case <-timer.C:
			default:
			}
		}
	}()

	select {
	case <-done:
		return true
	case <-timer.C:
		return false
	}
}

// configureGlobalHotkey registers the persisted accelerator at startup.
func (a *App) configureGlobalHotkey() {
	cfg := a.getConfigSnapshot()
	spec := strings.TrimSpace(cfg.Hotkey)
	if spec == "" {
		slog.Info("[hotkey] no global hotkey configured, registration skipped")
		return
	}
	a.applyGlobalHotkey(spec)
}

// applyGlobalHotkey replaces the active system-wide registration with spec.
// Empty spec unregisters without replacement (the user cleared the hotkey).
func (a *App) applyGlobalHotkey(spec string) {
	mgr, err := a.requireHotkeys()
	if err != nil {
		slog.Warn("[hotkey] registration skipped", "error", err)
		return
	}
	logCtx := a.runtimeContext()
	if err := mgr.Stop(); err != nil {
		runtimeLogger.Warningf(logCtx, "global hotkey unregister failed: %v", err)
	}
	spec = strings.TrimSpace(spec)
	if spec == "" {
		slog.Info("[hotkey] global hotkey disabled")
		return
	}
	if err := mgr.Start(spec, a.onGlobalHotkey); err != nil {
		runtimeLogger.Warningf(logCtx, "global hotkey registration failed: %v", err)
		a.emitRuntimeEvent(eventConfigLoadFailed, map[string]string{
			"message": "Failed to register the global hotkey " + spec + ": " + err.Error(),
		})
		return
	}
	runtimeLogger.Infof(logCtx, "global hotkey registered: %s", mgr.ActiveBinding())
}

// suspendGlobalHotkey unregisters the active hotkey for the duration of a
// capture session so the frontend can record the hotkey's own chord.
func (a *App) suspendGlobalHotkey() {
	mgr, err := a.requireHotkeys()
	if err != nil {
		return
	}
	if err := mgr.Stop(); err != nil {
		slog.Warn("[hotkey] suspend failed", "error", err)
		return
	}
	slog.Debug("[hotkey] registration suspended while recording")
}

// resumeGlobalHotkey restores the persisted registration after a capture
// session ended without a commit.
func (a *App) resumeGlobalHotkey() {
	a.applyGlobalHotkey(a.getConfigSnapshot().Hotkey)
}

// onGlobalHotkey runs on the hotkey message-loop goroutine when the
// registered chord fires.
func (a *App) onGlobalHotkey() {
	a.emitRuntimeEvent(eventHotkeyTriggered, map[string]string{
		"accelerator": a.getConfigSnapshot().Hotkey,
	})
	a.toggleOverlay()
}

// activationHandler serves requests from secondary ququ processes.
type activationHandler struct {
	app *App
}

func (h activationHandler) Handle(req ipc.Request) ipc.Response {
	switch req.Action {
	case ipc.ActionActivate:
		h.app.bringWindowToFront()
		return ipc.Response{OK: true}
	case ipc.ActionOpenSettings:
		h.app.bringWindowToFront()
		h.app.emitRuntimeEvent(eventOpenSettings, req.Args)
		return ipc.Response{OK: true}
	default:
		slog.Warn("[DEBUG-IPC] unknown activation action", "action", req.Action)
		return ipc.Response{OK: false, Error: "unknown action: " + req.Action}
	}
}

// bringWindowToFront shows and raises the application window.
// Used when a second instance signals the first to activate.
func (a *App) bringWindowToFront() {
	ctx := a.runtimeContext()
	if ctx == nil {
		slog.Warn("[DEBUG-IPC] bringWindowToFront dropped because runtime context is nil")
		return
	}
	a.raiseWindow(ctx)
	a.setWindowVisible(true)
}

func (a *App) raiseWindow(ctx context.Context) {
	runtimeWindowShowFn(ctx)
	runtimeWindowUnminimiseFn(ctx)
	runtimeWindowSetAlwaysOnTopFn(ctx, true)
	runtimeWindowSetAlwaysOnTopFn(ctx, false)
}

func (a *App) setWindowVisible(visible bool) {
	a.windowMu.Lock()
	a.windowVisible = visible
	a.windowMu.Unlock()
}

// toggleOverlay shows or hides the dictation window when the global hotkey
// fires.
func (a *App) toggleOverlay() {
	// CAS guard prevents double-toggle when a second hotkey press fires
	// while OS window operations are in progress.
	if !a.windowToggling.CompareAndSwap(false, true) {
		slog.Debug("[hotkey] toggle already in progress, skipping")
		return
	}
	defer a.windowToggling.Store(false)

	ctx := a.runtimeContext()
	if ctx == nil {
		return
	}

	// Read OS window state outside the lock; no Wails runtime API inside a mutex.
	isMinimised := runtimeWindowIsMinimisedFn(ctx)

	a.windowMu.Lock()
	currentlyVisible := a.windowVisible && !isMinimised
	a.windowMu.Unlock()

	if currentlyVisible {
		runtimeWindowHideFn(ctx)
	} else {
		a.raiseWindow(ctx)
	}

	a.setWindowVisible(!currentlyVisible)
}
