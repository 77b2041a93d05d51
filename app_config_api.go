package main

import (
	"time"

	"github.com/kristol07/ququ/internal/config"
)

type configUpdatedEvent struct {
	Config             config.Config `json:"config"`
	Version            uint64        `json:"version"`
	UpdatedAtUnixMilli int64         `json:"updated_at_unix_milli"`
}

// GetConfig returns loaded config.
func (a *App) GetConfig() config.Config {
	return a.getConfigSnapshot()
}

// GetConfigAndFlushWarnings returns loaded config and emits any pending startup warnings.
func (a *App) GetConfigAndFlushWarnings() config.Config {
	a.flushPendingConfigLoadWarnings()
	return a.getConfigSnapshot()
}

func (a *App) flushPendingConfigLoadWarnings() {
	ctx := a.runtimeContext()
	if ctx == nil {
		return
	}
	if warning := a.consumePendingConfigLoadWarning(); warning != "" {
		a.emitRuntimeEventWithContext(ctx, eventConfigLoadFailed, map[string]string{
			"message": warning,
		})
	}
}

// GetSupportedLocales returns the locale identifiers the settings UI can offer.
func (a *App) GetSupportedLocales() []string {
	return config.SupportedLocaleList()
}

// SaveConfig validates and persists cfg to disk, then updates in-memory config.
// The config:updated event carries the normalized config (with defaults filled).
// Shortcut-bearing fields flow through the same normalization as the capture
// commit path, so a frontend settings form cannot persist a non-canonical
// accelerator.
func (a *App) SaveConfig(cfg config.Config) error {
	previous := a.getConfigSnapshot()
	event, err := a.saveConfigWithLock(cfg)
	if err != nil {
		return err
	}
	a.applySavedConfig(previous, event.Config)
	// Event emission intentionally happens outside cfgSaveMu. Concurrent saves
	// are ordered by Version, and frontend consumers must treat the highest
	// version as authoritative.
	a.emitRuntimeEvent(eventConfigUpdated, event)
	return nil
}

// applySavedConfig propagates runtime side effects of a config change:
// re-registering the global hotkey when its accelerator changed and dropping
// stale capture sessions when display settings changed.
func (a *App) applySavedConfig(previous config.Config, current config.Config) {
	if previous.Hotkey != current.Hotkey {
		a.applyGlobalHotkey(current.Hotkey)
	}
	if previous.Locale != current.Locale || previous.Hotkey != current.Hotkey {
		a.refreshCaptureSessions()
	}
}

// saveConfigWithLock persists cfg, updates the in-memory snapshot, and bumps
// the event version under cfgSaveMu.
func (a *App) saveConfigWithLock(cfg config.Config) (configUpdatedEvent, error) {
	return a.mutateConfigWithLock(func(dst *config.Config) { *dst = cfg })
}

// mutateConfigWithLock applies mutate to the current snapshot and persists
// the result. The read-modify-write runs under cfgSaveMu so concurrent
// commits cannot overwrite each other's field changes.
func (a *App) mutateConfigWithLock(mutate func(*config.Config)) (configUpdatedEvent, error) {
	a.cfgSaveMu.Lock()
	defer a.cfgSaveMu.Unlock()

	cfg := a.getConfigSnapshot()
	mutate(&cfg)
	normalized, err := config.Save(a.configPath, cfg)
	if err != nil {
		return configUpdatedEvent{}, err
	}
	a.setConfigSnapshot(normalized)
	version := a.configEventVersion.Add(1)

	return configUpdatedEvent{
		Config:             config.Clone(normalized),
		Version:            version,
		UpdatedAtUnixMilli: time.Now().UnixMilli(),
	}, nil
}
