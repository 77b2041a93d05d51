package shortcut

// cancelKeyName is the key identifier that aborts an active recording.
const cancelKeyName = "Escape"

// KeyResult classifies the outcome of feeding one key-down event to a
// Session.
type KeyResult int

const (
	// KeyIgnored: the session was idle; the event was not intercepted.
	KeyIgnored KeyResult = iota
	// KeyPending: modifier-only input, the session stays recording.
	KeyPending
	// KeyCancelled: the cancel key ended the recording, value rolled back.
	KeyCancelled
	// KeyCommitted: a valid combination was accepted and emitted.
	KeyCommitted
)

// SessionOptions configures a capture Session.
type SessionOptions struct {
	// Formatter renders the committed value for DisplayValue. Required.
	Formatter *Formatter
	// RecordingPlaceholder is shown while the session is recording.
	RecordingPlaceholder string
	// EmptyPlaceholder is shown while idle with no committed value.
	EmptyPlaceholder string
	// OnChange is invoked exactly once per successful commit with the new
	// canonical value, and once per clear with "". May be nil.
	OnChange func(canonical string)
}

// Session is the recording state machine behind one shortcut input control.
// It owns no rendering: the shell forwards raw key-down, blur, and click
// events and queries DisplayValue/IsRecording on every render.
//
// All processing is synchronous inside the caller's event handler; a Session
// must not be shared across goroutines.
type Session struct {
	formatter            *Formatter
	recordingPlaceholder string
	emptyPlaceholder     string
	onChange             func(string)

	recording bool
	disabled  bool
	value     string // committed canonical value, "" when cleared
	snapshot  string // rollback value captured on Start
}

// NewSession creates an idle Session with an empty committed value.
func NewSession(opts SessionOptions) *Session {
	formatter := opts.Formatter
	if formatter == nil {
		formatter = NewFormatter(FormatterOptions{})
	}
	return &Session{
		formatter:            formatter,
		recordingPlaceholder: opts.RecordingPlaceholder,
		emptyPlaceholder:     opts.EmptyPlaceholder,
		onChange:             opts.OnChange,
	}
}

// SetValue replaces the committed canonical value from outside, e.g. when the
// collaborator reloads persisted state. Ignored while recording: the active
// snapshot stays authoritative for rollback.
func (s *Session) SetValue(canonical string) {
	if s.recording {
		return
	}
	s.value = canonical
}

// Value returns the committed canonical value.
func (s *Session) Value() string { return s.value }

// SetDisabled gates Start and Clear. Disabling mid-recording cancels the
// recording with rollback.
func (s *Session) SetDisabled(disabled bool) {
	s.disabled = disabled
	if disabled && s.recording {
		s.cancel()
	}
}

// IsRecording reports whether the session is capturing key events.
func (s *Session) IsRecording() bool { return s.recording }

// Start moves the session from Idle to Recording and snapshots the current
// value for rollback. Returns false when disabled or already recording.
func (s *Session) Start() bool {
	if s.disabled || s.recording {
		return false
	}
	s.snapshot = s.value
	s.recording = true
	return true
}

// HandleKeyDown feeds one raw key-down event to the session. The handled
// return is true for every event processed while recording; the shell must
// then suppress the event's default behavior so host shortcuts do not fire
// during capture. While idle, events are ignored and not intercepted.
func (s *Session) HandleKeyDown(mods Modifiers, key string) (KeyResult, bool) {
	if !s.recording {
		return KeyIgnored, false
	}
	if key == cancelKeyName {
		s.cancel()
		return KeyCancelled, true
	}

	combo := Canonicalize(mods, key)
	if combo.IsEmpty() {
		// Modifier-only input: keep waiting for a usable primary key.
		return KeyPending, true
	}

	s.value = combo.String()
	s.recording = false
	s.snapshot = ""
	if s.onChange != nil {
		s.onChange(s.value)
	}
	return KeyCommitted, true
}

// Blur cancels an active recording with the same rollback behavior as the
// cancel key. No sequence of events can leave the session recording after a
// blur has been processed.
func (s *Session) Blur() {
	if !s.recording {
		return
	}
	s.cancel()
}

// Clear resets the committed value to the empty combination. Only effective
// while idle and enabled; returns whether the value was cleared.
func (s *Session) Clear() bool {
	if s.disabled || s.recording {
		return false
	}
	if s.value == "" {
		return false
	}
	s.value = ""
	if s.onChange != nil {
		s.onChange("")
	}
	return true
}

// DisplayValue returns the label the shell should paint: the recording
// placeholder while capturing, the empty placeholder while idle with no
// value, and otherwise the formatted committed value. The label is always
// re-derived from the canonical value; it is never stored.
func (s *Session) DisplayValue() string {
	if s.recording {
		return s.recordingPlaceholder
	}
	if s.value == "" {
		return s.emptyPlaceholder
	}
	return s.formatter.Format(s.value)
}

func (s *Session) cancel() {
	s.value = s.snapshot
	s.snapshot = ""
	s.recording = false
}
