package main

import (
	"errors"

	"github.com/kristol07/ququ/internal/history"
	"github.com/kristol07/ququ/internal/hotkeys"
)

func (a *App) requireHotkeys() (*hotkeys.Manager, error) {
	if a.hotkeys == nil {
		return nil, errors.New("hotkey manager is unavailable")
	}
	return a.hotkeys, nil
}

func (a *App) requireHistory() (*history.Store, error) {
	if a.historyStore == nil {
		return nil, errors.New("history store is unavailable")
	}
	return a.historyStore, nil
}
