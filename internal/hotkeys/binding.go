// Package hotkeys registers system-wide hotkeys from canonical accelerator
// strings ("CommandOrControl+Shift+Space"). Registration is implemented on
// Windows; other targets validate bindings but never fire.
package hotkeys

import (
	"fmt"
	"strings"
	"unicode"
	"unicode/utf8"

	"github.com/kristol07/ququ/internal/shortcut"
)

// Binding describes a parsed global hotkey in accelerator terms.
// Construct only via ParseBinding to guarantee invariant consistency.
type Binding struct {
	commandOrControl bool
	shift            bool
	alt              bool
	key              string
	normalized       string
}

// HasCommandOrControl reports whether the primary modifier is held. It maps
// to Ctrl on Windows and Linux and to Cmd on macOS.
func (b Binding) HasCommandOrControl() bool { return b.commandOrControl }

// HasShift reports whether Shift is part of the binding.
func (b Binding) HasShift() bool { return b.shift }

// HasAlt reports whether Alt is part of the binding.
func (b Binding) HasAlt() bool { return b.alt }

// Key returns the primary key token.
func (b Binding) Key() string { return b.key }

// Normalized returns the canonical accelerator string.
func (b Binding) Normalized() string { return b.normalized }

// Named keys accepted as primary key tokens, beyond single printable
// characters and function keys. Names follow the KeyboardEvent.key values
// the capture layer passes through.
var namedKeys = map[string]struct{}{
	shortcut.TokenSpace: {},
	shortcut.TokenPlus:  {},
	"Tab":               {},
	"Enter":             {},
	"Backspace":         {},
	"Delete":            {},
	"Insert":            {},
	"Home":              {},
	"End":               {},
	"PageUp":            {},
	"PageDown":          {},
	"ArrowUp":           {},
	"ArrowDown":         {},
	"ArrowLeft":         {},
	"ArrowRight":        {},
}

// ParseBinding parses a canonical accelerator like "CommandOrControl+Shift+k".
// Every non-empty combination the capture core can emit is accepted; key
// tokens outside the registrable set are rejected here rather than at
// OS-registration time so that callers get portable error messages.
func ParseBinding(spec string) (Binding, error) {
	combo, err := shortcut.Parse(strings.TrimSpace(spec))
	if err != nil {
		return Binding{}, fmt.Errorf("parse hotkey %q: %w", spec, err)
	}
	if combo.IsEmpty() {
		return Binding{}, fmt.Errorf("hotkey spec is empty")
	}
	if err := validateKeyToken(combo.Key()); err != nil {
		return Binding{}, fmt.Errorf("hotkey %q: %w", spec, err)
	}
	return Binding{
		commandOrControl: combo.HasCommandOrControl(),
		shift:            combo.HasShift(),
		alt:              combo.HasAlt(),
		key:              combo.Key(),
		normalized:       combo.String(),
	}, nil
}

func validateKeyToken(token string) error {
	if _, ok := namedKeys[token]; ok {
		return nil
	}
	if isFunctionKey(token) {
		return nil
	}
	if utf8.RuneCountInString(token) == 1 {
		r, _ := utf8.DecodeRuneInString(token)
		if unicode.IsGraphic(r) && !unicode.IsSpace(r) {
			return nil
		}
	}
	return fmt.Errorf("unsupported key token %q", token)
}

// isFunctionKey reports whether token is F1..F24.
func isFunctionKey(token string) bool {
	if len(token) < 2 || len(token) > 3 || token[0] != 'F' {
		return false
	}
	n := 0
	for _, c := range token[1:] {
		if c < '0' || c > '9' {
			return false
		}
		n = n*10 + int(c-'0')
	}
	return n >= 1 && n <= 24
}
