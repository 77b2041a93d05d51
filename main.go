package main

import (
	"embed"
	"errors"
	"log/slog"
	"os"

	"github.com/kristol07/ququ/internal/ipc"
	"github.com/kristol07/ququ/internal/singleinstance"

	"github.com/wailsapp/wails/v2"
	"github.com/wailsapp/wails/v2/pkg/options"
	"github.com/wailsapp/wails/v2/pkg/options/assetserver"
)

//go:embed all:frontend/dist
var assets embed.FS

func main() {
	// Single-instance check BEFORE any Wails/WebView2 initialization.
	// Two simultaneous instances corrupt WebView2 browser process IME state.
	mutexLock, err := singleinstance.TryLock(singleinstance.DefaultMutexName())
	if errors.Is(err, singleinstance.ErrAlreadyRunning) {
		slog.Info("[DEBUG-SINGLE] another instance is already running, signaling activation")
		if _, sendErr := ipc.Send("", activationRequest(os.Args[1:])); sendErr != nil {
			slog.Warn("[DEBUG-SINGLE] failed to signal existing instance", "error", sendErr)
		}
		return
	}
	if err != nil {
		// Mutex creation failed for an unexpected reason. Continue startup
		// without the single-instance guard rather than refusing to launch.
		slog.Warn("[DEBUG-SINGLE] mutex creation failed, proceeding without single-instance guard", "error", err)
	}
	if mutexLock != nil {
		defer func() {
			if releaseErr := mutexLock.Release(); releaseErr != nil {
				slog.Warn("[DEBUG-SINGLE] mutex release failed", "error", releaseErr)
			}
		}()
	}

	app := NewApp()

	err = wails.Run(&options.App{
		Title:     "ququ",
		Width:     420,
		Height:    560,
		MinWidth:  360,
		MinHeight: 480,
		AssetServer: &assetserver.Options{
			Assets: assets,
		},
		BackgroundColour: &options.RGBA{R: 18, G: 18, B: 24, A: 1},
		OnStartup:        app.startup,
		OnShutdown:       app.shutdown,
		Bind: []any{
			app,
		},
	})

	if err != nil {
		slog.Error("[DEBUG-SINGLE] wails run failed", "error", err)
	}
}

// activationRequest maps launch arguments of a second instance onto the
// request forwarded to the running one. `ququ --settings` focuses the
// settings page; anything else just raises the window.
func activationRequest(args []string) ipc.Request {
	for _, arg := range args {
		if arg == "--settings" {
			return ipc.Request{Action: ipc.ActionOpenSettings}
		}
	}
	return ipc.Request{Action: ipc.ActionActivate}
}
