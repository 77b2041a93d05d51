package history

import (
	"context"
	"path/filepath"
	"testing"
	"time"
)

func newTestStore(t *testing.T, limit int) *Store {
	t.Helper()
	store, err := Open(filepath.Join(t.TempDir(), "history.db"), limit)
	if err != nil {
		t.Fatalf("Open returned error: %v", err)
	}
	t.Cleanup(func() {
		if err := store.Close(); err != nil {
			t.Errorf("Close returned error: %v", err)
		}
	})
	return store
}

// setClock makes timestamps strictly increasing and deterministic.
func setClock(t *testing.T) func() time.Time {
	t.Helper()
	base := time.Date(2026, 3, 1, 12, 0, 0, 0, time.UTC)
	calls := 0
	original := timeNowFn
	timeNowFn = func() time.Time {
		calls++
		return base.Add(time.Duration(calls) * time.Second)
	}
	t.Cleanup(func() { timeNowFn = original })
	return timeNowFn
}

func TestRecordAndRecent(t *testing.T) {
	setClock(t)
	store := newTestStore(t, 10)
	ctx := context.Background()

	first, err := store.Record(ctx, "hotkey", "CommandOrControl+Shift+Space")
	if err != nil {
		t.Fatalf("Record returned error: %v", err)
	}
	if first.ID == "" {
		t.Fatal("Record returned empty ID")
	}
	second, err := store.Record(ctx, "hotkey", "CommandOrControl+Shift+k")
	if err != nil {
		t.Fatalf("Record returned error: %v", err)
	}

	entries, err := store.Recent(ctx, 0)
	if err != nil {
		t.Fatalf("Recent returned error: %v", err)
	}
	if len(entries) != 2 {
		t.Fatalf("len(entries) = %d, want 2", len(entries))
	}
	if entries[0].ID != second.ID {
		t.Fatalf("entries[0].ID = %q, want newest %q", entries[0].ID, second.ID)
	}
	if entries[1].ID != first.ID {
		t.Fatalf("entries[1].ID = %q, want oldest %q", entries[1].ID, first.ID)
	}
	if entries[0].Accelerator != "CommandOrControl+Shift+k" {
		t.Fatalf("entries[0].Accelerator = %q", entries[0].Accelerator)
	}
}

func TestRecordClearedHotkeyKeepsEmptyAccelerator(t *testing.T) {
	setClock(t)
	store := newTestStore(t, 10)
	ctx := context.Background()

	if _, err := store.Record(ctx, "hotkey", ""); err != nil {
		t.Fatalf("Record returned error: %v", err)
	}

	entries, err := store.Recent(ctx, 1)
	if err != nil {
		t.Fatalf("Recent returned error: %v", err)
	}
	if len(entries) != 1 || entries[0].Accelerator != "" {
		t.Fatalf("entries = %+v, want one entry with empty accelerator", entries)
	}
}

func TestRecordRejectsEmptyControl(t *testing.T) {
	store := newTestStore(t, 10)

	if _, err := store.Record(context.Background(), "", "CommandOrControl+k"); err == nil {
		t.Fatal("Record with empty control succeeded, want error")
	}
}

func TestRecordPrunesBeyondLimit(t *testing.T) {
	setClock(t)
	store := newTestStore(t, 3)
	ctx := context.Background()

	accelerators := []string{"Alt+F1", "Alt+F2", "Alt+F3", "Alt+F4", "Alt+F5"}
	for _, accel := range accelerators {
		if _, err := store.Record(ctx, "hotkey", accel); err != nil {
			t.Fatalf("Record(%q) returned error: %v", accel, err)
		}
	}

	entries, err := store.Recent(ctx, 0)
	if err != nil {
		t.Fatalf("Recent returned error: %v", err)
	}
	if len(entries) != 3 {
		t.Fatalf("len(entries) = %d, want 3 after pruning", len(entries))
	}
	want := []string{"Alt+F5", "Alt+F4", "Alt+F3"}
	for i, entry := range entries {
		if entry.Accelerator != want[i] {
			t.Fatalf("entries[%d].Accelerator = %q, want %q", i, entry.Accelerator, want[i])
		}
	}
}

func TestLastForControl(t *testing.T) {
	setClock(t)
	store := newTestStore(t, 10)
	ctx := context.Background()

	if _, err := store.Record(ctx, "hotkey", "Alt+F1"); err != nil {
		t.Fatalf("Record returned error: %v", err)
	}
	if _, err := store.Record(ctx, "viewer:transcript", "CommandOrControl+t"); err != nil {
		t.Fatalf("Record returned error: %v", err)
	}
	if _, err := store.Record(ctx, "hotkey", "Alt+F2"); err != nil {
		t.Fatalf("Record returned error: %v", err)
	}

	entry, ok, err := store.LastForControl(ctx, "hotkey")
	if err != nil {
		t.Fatalf("LastForControl returned error: %v", err)
	}
	if !ok {
		t.Fatal("LastForControl found no entry, want one")
	}
	if entry.Accelerator != "Alt+F2" {
		t.Fatalf("Accelerator = %q, want %q", entry.Accelerator, "Alt+F2")
	}

	_, ok, err = store.LastForControl(ctx, "missing")
	if err != nil {
		t.Fatalf("LastForControl returned error: %v", err)
	}
	if ok {
		t.Fatal("LastForControl found an entry for unknown control")
	}
}

func TestOpenSurvivesReopen(t *testing.T) {
	setClock(t)
	path := filepath.Join(t.TempDir(), "history.db")
	ctx := context.Background()

	store, err := Open(path, 10)
	if err != nil {
		t.Fatalf("Open returned error: %v", err)
	}
	if _, err := store.Record(ctx, "hotkey", "Alt+F1"); err != nil {
		t.Fatalf("Record returned error: %v", err)
	}
	if err := store.Close(); err != nil {
		t.Fatalf("Close returned error: %v", err)
	}

	reopened, err := Open(path, 10)
	if err != nil {
		t.Fatalf("reopen returned error: %v", err)
	}
	defer reopened.Close()

	entries, err := reopened.Recent(ctx, 0)
	if err != nil {
		t.Fatalf("Recent returned error: %v", err)
	}
	if len(entries) != 1 || entries[0].Accelerator != "Alt+F1" {
		t.Fatalf("entries = %+v, want the previously recorded row", entries)
	}
}

func TestOpenRejectsBadArguments(t *testing.T) {
	if _, err := Open("", 10); err == nil {
		t.Fatal("Open(\"\") succeeded, want error")
	}
	if _, err := Open(filepath.Join(t.TempDir(), "history.db"), 0); err == nil {
		t.Fatal("Open with zero limit succeeded, want error")
	}
}
