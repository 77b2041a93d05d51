package hotkeys

import (
	"strings"
	"testing"
)

func TestParseBindingSuccess(t *testing.T) {
	tests := []struct {
		name     string
		spec     string
		wantNorm string
		wantCmd  bool
		wantShft bool
		wantAlt  bool
		wantKey  string
	}{
		{
			name:     "default binding",
			spec:     "CommandOrControl+Shift+Space",
			wantNorm: "CommandOrControl+Shift+Space",
			wantCmd:  true,
			wantShft: true,
			wantKey:  "Space",
		},
		{
			name:     "letter key",
			spec:     "CommandOrControl+k",
			wantNorm: "CommandOrControl+k",
			wantCmd:  true,
			wantKey:  "k",
		},
		{
			name:     "function key with alt",
			spec:     "Alt+F12",
			wantNorm: "Alt+F12",
			wantAlt:  true,
			wantKey:  "F12",
		},
		{
			name:     "bare key",
			spec:     "F5",
			wantNorm: "F5",
			wantKey:  "F5",
		},
		{
			name:     "backtick",
			spec:     "CommandOrControl+`",
			wantNorm: "CommandOrControl+`",
			wantCmd:  true,
			wantKey:  "`",
		},
		{
			name:     "plus token",
			spec:     "CommandOrControl+Shift+Plus",
			wantNorm: "CommandOrControl+Shift+Plus",
			wantCmd:  true,
			wantShft: true,
			wantKey:  "Plus",
		},
		{
			name:     "arrow key",
			spec:     "Shift+ArrowLeft",
			wantNorm: "Shift+ArrowLeft",
			wantShft: true,
			wantKey:  "ArrowLeft",
		},
		{
			name:     "surrounding whitespace trimmed",
			spec:     "  CommandOrControl+Shift+k  ",
			wantNorm: "CommandOrControl+Shift+k",
			wantCmd:  true,
			wantShft: true,
			wantKey:  "k",
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			b, err := ParseBinding(tt.spec)
			if err != nil {
				t.Fatalf("ParseBinding(%q) returned error: %v", tt.spec, err)
			}
			if b.Normalized() != tt.wantNorm {
				t.Fatalf("Normalized() = %q, want %q", b.Normalized(), tt.wantNorm)
			}
			if b.HasCommandOrControl() != tt.wantCmd || b.HasShift() != tt.wantShft || b.HasAlt() != tt.wantAlt {
				t.Fatalf("modifiers = (%v,%v,%v), want (%v,%v,%v)",
					b.HasCommandOrControl(), b.HasShift(), b.HasAlt(),
					tt.wantCmd, tt.wantShft, tt.wantAlt)
			}
			if b.Key() != tt.wantKey {
				t.Fatalf("Key() = %q, want %q", b.Key(), tt.wantKey)
			}
		})
	}
}

func TestParseBindingErrors(t *testing.T) {
	tests := []struct {
		name    string
		spec    string
		wantSub string
	}{
		{name: "empty spec", spec: "", wantSub: "empty"},
		{name: "whitespace only", spec: "   ", wantSub: "empty"},
		{name: "modifier only", spec: "CommandOrControl+Shift", wantSub: "parse hotkey"},
		{name: "key before modifier", spec: "k+Shift", wantSub: "parse hotkey"},
		{name: "trailing separator", spec: "CommandOrControl+k+", wantSub: "parse hotkey"},
		{name: "unknown named key", spec: "CommandOrControl+Bogus", wantSub: "unsupported key token"},
		{name: "function key out of range", spec: "CommandOrControl+F25", wantSub: "unsupported key token"},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			_, err := ParseBinding(tt.spec)
			if err == nil {
				t.Fatalf("ParseBinding(%q) succeeded, want error", tt.spec)
			}
			if !strings.Contains(err.Error(), tt.wantSub) {
				t.Fatalf("ParseBinding(%q) error = %q, want substring %q", tt.spec, err, tt.wantSub)
			}
		})
	}
}

func TestParseBindingAcceptsEveryCaptureResult(t *testing.T) {
	// Anything the capture layer can commit must be registrable, modulo the
	// platform virtual-key table.
	keys := []string{"a", "z", "A", "0", "9", "F1", "F24", "Space", "Plus", "Enter", "Tab",
		"ArrowUp", "ArrowDown", "ArrowRight", "Delete", "Home", "End", ",", ".", "/", ";", "'", "[", "]", "-", "="}
	prefixes := []string{"", "CommandOrControl+", "Shift+", "Alt+", "CommandOrControl+Shift+Alt+"}

	for _, prefix := range prefixes {
		for _, key := range keys {
			spec := prefix + key
			if _, err := ParseBinding(spec); err != nil {
				t.Fatalf("ParseBinding(%q) returned error: %v", spec, err)
			}
		}
	}
}
