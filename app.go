package main

import (
	"context"
	"log/slog"
	"sync"
	"sync/atomic"

	"github.com/kristol07/ququ/internal/config"
	"github.com/kristol07/ququ/internal/history"
	"github.com/kristol07/ququ/internal/hotkeys"
	"github.com/kristol07/ququ/internal/ipc"
	"github.com/kristol07/ququ/internal/preview"
)

// App is the Wails-bound application service.
type App struct {
	// Runtime context lifecycle.
	ctx   context.Context
	ctxMu sync.RWMutex

	// Configuration state and startup warnings.
	// Lock ordering (outer -> inner):
	//   captureMu -> cfgSaveMu -> cfgMu
	//
	// The capture API holds captureMu only for session state changes; commits
	// staged via pendingCommits run after release so config fsync and preview
	// writes never stall HotkeyDisplayValue/IsCapturing on other controls.
	// cfgSaveMu/cfgMu must never wait on captureMu.
	//
	// Independent locks: do not assume ordering across these.
	//   windowMu, startupWarnMu, ctxMu
	cfgMu              sync.RWMutex
	cfgSaveMu          sync.Mutex
	configEventVersion atomic.Uint64
	cfg                config.Config
	configPath         string
	startupWarnMu      sync.Mutex
	configLoadWarnings []string

	// Capture registry: one recording session per frontend shortcut control.
	// Sessions are not goroutine-safe; captureMu serializes all access.
	// pendingCommits holds commits staged by Session.OnChange until the
	// staging capture call has released captureMu.
	captureMu      sync.Mutex
	captures       map[string]*captureSession
	pendingCommits []commitRequest

	// Backend services.
	hotkeys       *hotkeys.Manager
	pipeServer    *ipc.PipeServer
	previewHub    *preview.Hub
	historyStore  *history.Store
	configWatcher *config.Watcher

	// Window visibility state.
	windowMu       sync.Mutex
	windowVisible  bool
	windowToggling atomic.Bool // CAS guard to prevent concurrent toggleOverlay
	shuttingDown   atomic.Bool // set at the start of shutdown(); checked by worker recovery loops

	// Background worker cancellation/waits.
	bgCancel context.CancelFunc
	bgWG     sync.WaitGroup
}

// NewApp creates the app service.
func NewApp() *App {
	return &App{
		captures: map[string]*captureSession{},
		hotkeys:  hotkeys.NewManager(),
	}
}

// GetPreviewURL returns the WebSocket endpoint for the capture preview
// stream. Auxiliary windows call this on mount to receive live frames while
// a shortcut is being recorded. Returns empty string if the preview server
// is not available.
func (a *App) GetPreviewURL() string {
	if a.previewHub == nil {
		slog.Debug("[DEBUG-PREVIEW] previewHub is nil, preview URL unavailable")
		return ""
	}
	return a.previewHub.URL()
}
