// Package shortcut implements the hotkey capture core: canonicalization of
// raw key events into accelerator strings, human-readable formatting, and the
// recording state machine behind the shortcut input control.
package shortcut

import (
	"fmt"
	"strings"
)

// Canonical accelerator tokens. CommandOrControl is the platform-neutral
// fusion of the host's Control (Windows/Linux) and Command (macOS) keys.
const (
	TokenCommandOrControl = "CommandOrControl"
	TokenShift            = "Shift"
	TokenAlt              = "Alt"
	TokenSpace            = "Space"
	TokenPlus             = "Plus"
)

// separator joins tokens in the serialized canonical form.
const separator = "+"

// Modifiers is the raw modifier flag state carried by a key event.
type Modifiers struct {
	Ctrl  bool `json:"ctrl"`
	Alt   bool `json:"alt"`
	Shift bool `json:"shift"`
	Meta  bool `json:"meta"`
}

// Any reports whether at least one modifier flag is set.
func (m Modifiers) Any() bool {
	return m.Ctrl || m.Alt || m.Shift || m.Meta
}

// Combination is a canonical hotkey combination: ordered unique modifier
// tokens followed by exactly one primary key token. The zero value is the
// cleared/empty combination. Construct only via Canonicalize or Parse so the
// invariants hold: fixed modifier order, no duplicates, no modifier-only
// combinations.
type Combination struct {
	commandOrControl bool
	shift            bool
	alt              bool
	key              string
}

// IsEmpty reports whether c is the cleared combination.
func (c Combination) IsEmpty() bool {
	return c.key == ""
}

// Key returns the primary key token, or "" for the empty combination.
func (c Combination) Key() string { return c.key }

// HasCommandOrControl reports whether the fused primary modifier is present.
func (c Combination) HasCommandOrControl() bool { return c.commandOrControl }

// HasShift reports whether Shift is present.
func (c Combination) HasShift() bool { return c.shift }

// HasAlt reports whether Alt is present.
func (c Combination) HasAlt() bool { return c.alt }

// Tokens returns the combination's tokens in canonical order:
// CommandOrControl, Shift, Alt, then the primary key. Empty combinations
// yield nil.
func (c Combination) Tokens() []string {
	if c.IsEmpty() {
		return nil
	}
	tokens := make([]string, 0, 4)
	if c.commandOrControl {
		tokens = append(tokens, TokenCommandOrControl)
	}
	if c.shift {
		tokens = append(tokens, TokenShift)
	}
	if c.alt {
		tokens = append(tokens, TokenAlt)
	}
	return append(tokens, c.key)
}

// String returns the serialized canonical form, tokens joined by "+".
// The empty combination serializes to "".
func (c Combination) String() string {
	return strings.Join(c.Tokens(), separator)
}

// Parse reconstructs a Combination from a serialized accelerator string.
// Modifier tokens are accepted in any order and deduplicated; String() always
// re-serializes in canonical order, so Parse followed by String is a fixed
// point on canonical input. The empty string parses to the empty combination.
// Modifier-only strings are rejected: they violate the "no combination
// without a primary key" invariant and must never have been emitted.
func Parse(raw string) (Combination, error) {
	trimmed := strings.TrimSpace(raw)
	if trimmed == "" {
		return Combination{}, nil
	}

	var c Combination
	parts := strings.Split(trimmed, separator)
	for i, token := range parts {
		switch token {
		case TokenCommandOrControl:
			c.commandOrControl = true
		case TokenShift:
			c.shift = true
		case TokenAlt:
			c.alt = true
		default:
			if i != len(parts)-1 {
				return Combination{}, fmt.Errorf("unexpected token %q before end of accelerator %q", token, raw)
			}
			if token == "" {
				return Combination{}, fmt.Errorf("empty key token in accelerator %q", raw)
			}
			c.key = token
		}
	}
	if c.key == "" {
		return Combination{}, fmt.Errorf("accelerator %q has no primary key", raw)
	}
	return c, nil
}
