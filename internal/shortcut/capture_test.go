package shortcut

import "testing"

func newTestSession(t *testing.T) (*Session, *[]string) {
	t.Helper()
	var changes []string
	s := NewSession(SessionOptions{
		Formatter:            NewFormatter(FormatterOptions{}),
		RecordingPlaceholder: "Press shortcut...",
		EmptyPlaceholder:     "Click to set",
		OnChange:             func(v string) { changes = append(changes, v) },
	})
	return s, &changes
}

func TestSessionCommit(t *testing.T) {
	s, changes := newTestSession(t)

	if !s.Start() {
		t.Fatal("Start() = false, want true")
	}
	if !s.IsRecording() {
		t.Fatal("session not recording after Start")
	}
	if got := s.DisplayValue(); got != "Press shortcut..." {
		t.Fatalf("DisplayValue() while recording = %q, want placeholder", got)
	}

	result, handled := s.HandleKeyDown(Modifiers{Ctrl: true, Shift: true}, "k")
	if result != KeyCommitted || !handled {
		t.Fatalf("HandleKeyDown = (%v, %v), want (KeyCommitted, true)", result, handled)
	}
	if s.IsRecording() {
		t.Fatal("session still recording after commit")
	}
	if got := s.Value(); got != "CommandOrControl+Shift+k" {
		t.Fatalf("Value() = %q, want CommandOrControl+Shift+k", got)
	}
	if got := s.DisplayValue(); got != "Ctrl + ⇧ + k" {
		t.Fatalf("DisplayValue() = %q, want formatted label", got)
	}
	if len(*changes) != 1 || (*changes)[0] != "CommandOrControl+Shift+k" {
		t.Fatalf("OnChange calls = %v, want exactly one commit", *changes)
	}
}

func TestSessionModifierOnlyStaysRecording(t *testing.T) {
	s, changes := newTestSession(t)
	s.Start()

	for _, key := range []string{"Control", "Shift", "Meta", "Alt"} {
		result, handled := s.HandleKeyDown(Modifiers{Ctrl: true}, key)
		if result != KeyPending || !handled {
			t.Fatalf("HandleKeyDown(%q) = (%v, %v), want (KeyPending, true)", key, result, handled)
		}
		if !s.IsRecording() {
			t.Fatalf("session left recording on modifier key %q", key)
		}
		if got := s.DisplayValue(); got != "Press shortcut..." {
			t.Fatalf("DisplayValue() changed to %q during modifier-only input", got)
		}
	}
	if len(*changes) != 0 {
		t.Fatalf("OnChange fired %v during modifier-only input", *changes)
	}
}

func TestSessionCancelRollsBack(t *testing.T) {
	s, changes := newTestSession(t)
	s.SetValue("Shift+a")
	s.Start()

	result, handled := s.HandleKeyDown(Modifiers{}, "Escape")
	if result != KeyCancelled || !handled {
		t.Fatalf("HandleKeyDown(Escape) = (%v, %v), want (KeyCancelled, true)", result, handled)
	}
	if s.IsRecording() {
		t.Fatal("session still recording after cancel")
	}
	if got := s.Value(); got != "Shift+a" {
		t.Fatalf("Value() after cancel = %q, want Shift+a", got)
	}
	if got := s.DisplayValue(); got != "⇧ + a" {
		t.Fatalf("DisplayValue() after cancel = %q, want restored label", got)
	}
	if len(*changes) != 0 {
		t.Fatalf("OnChange fired on cancel: %v", *changes)
	}
}

func TestSessionBlurCancels(t *testing.T) {
	s, _ := newTestSession(t)
	s.SetValue("Alt+x")
	s.Start()
	s.Blur()

	if s.IsRecording() {
		t.Fatal("session still recording after blur")
	}
	if got := s.Value(); got != "Alt+x" {
		t.Fatalf("Value() after blur = %q, want Alt+x", got)
	}

	// Blur while idle stays a no-op.
	s.Blur()
	if s.IsRecording() || s.Value() != "Alt+x" {
		t.Fatal("idle blur mutated session state")
	}
}

func TestSessionIdleIgnoresKeys(t *testing.T) {
	s, changes := newTestSession(t)
	s.SetValue("Shift+a")

	result, handled := s.HandleKeyDown(Modifiers{Ctrl: true}, "k")
	if result != KeyIgnored || handled {
		t.Fatalf("idle HandleKeyDown = (%v, %v), want (KeyIgnored, false)", result, handled)
	}
	if got := s.Value(); got != "Shift+a" {
		t.Fatalf("idle key event mutated value to %q", got)
	}
	if len(*changes) != 0 {
		t.Fatalf("idle key event fired OnChange: %v", *changes)
	}
}

func TestSessionClear(t *testing.T) {
	s, changes := newTestSession(t)
	s.SetValue("Shift+a")

	if !s.Clear() {
		t.Fatal("Clear() = false, want true")
	}
	if got := s.Value(); got != "" {
		t.Fatalf("Value() after clear = %q, want \"\"", got)
	}
	if got := s.DisplayValue(); got != "Click to set" {
		t.Fatalf("DisplayValue() after clear = %q, want empty placeholder", got)
	}
	if len(*changes) != 1 || (*changes)[0] != "" {
		t.Fatalf("OnChange calls after clear = %v, want one empty commit", *changes)
	}

	// Clearing an already-empty value reports no change.
	if s.Clear() {
		t.Fatal("Clear() on empty value = true, want false")
	}
	if len(*changes) != 1 {
		t.Fatalf("OnChange fired for no-op clear: %v", *changes)
	}
}

func TestSessionDisabled(t *testing.T) {
	s, changes := newTestSession(t)
	s.SetValue("Shift+a")
	s.SetDisabled(true)

	if s.Start() {
		t.Fatal("Start() succeeded while disabled")
	}
	if s.Clear() {
		t.Fatal("Clear() succeeded while disabled")
	}
	if len(*changes) != 0 {
		t.Fatalf("disabled session fired OnChange: %v", *changes)
	}

	s.SetDisabled(false)
	if !s.Start() {
		t.Fatal("Start() failed after re-enable")
	}

	// Disabling mid-recording cancels with rollback.
	s.SetDisabled(true)
	if s.IsRecording() {
		t.Fatal("session still recording after disable")
	}
	if got := s.Value(); got != "Shift+a" {
		t.Fatalf("Value() after mid-recording disable = %q, want Shift+a", got)
	}
}

func TestSessionRestartAfterCommit(t *testing.T) {
	s, changes := newTestSession(t)

	s.Start()
	s.HandleKeyDown(Modifiers{Ctrl: true}, "a")
	s.Start()
	s.HandleKeyDown(Modifiers{Shift: true}, "b")

	want := []string{"CommandOrControl+a", "Shift+b"}
	if len(*changes) != len(want) {
		t.Fatalf("OnChange calls = %v, want %v", *changes, want)
	}
	for i := range want {
		if (*changes)[i] != want[i] {
			t.Fatalf("OnChange[%d] = %q, want %q", i, (*changes)[i], want[i])
		}
	}
}

// Exhaustive small-sequence check: after any prefix of events containing a
// blur, the session is idle.
func TestSessionNeverRecordsPastBlur(t *testing.T) {
	s, _ := newTestSession(t)
	s.Start()
	s.HandleKeyDown(Modifiers{Ctrl: true}, "Control")
	s.Blur()
	s.HandleKeyDown(Modifiers{Ctrl: true}, "k")
	s.Blur()

	if s.IsRecording() {
		t.Fatal("session recording after blur sequence")
	}
	if got := s.Value(); got != "" {
		t.Fatalf("post-blur key event committed %q", got)
	}
}
