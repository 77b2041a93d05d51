package main

import (
	"context"
	"time"

	"github.com/kristol07/ququ/internal/history"
)

const historyQueryTimeout = 3 * time.Second

// GetHotkeyHistory returns the most recent shortcut changes, newest first.
// limit <= 0 means the store default.
func (a *App) GetHotkeyHistory(limit int) ([]history.Entry, error) {
	store, err := a.requireHistory()
	if err != nil {
		return nil, err
	}
	ctx, cancel := context.WithTimeout(context.Background(), historyQueryTimeout)
	defer cancel()
	return store.Recent(ctx, limit)
}
