package shortcut

import "strings"

// Display glyphs for modifier tokens. CommandOrControl renders as the
// Command glyph on Apple hosts and the literal "Ctrl" elsewhere.
const (
	glyphCommand = "⌘" // ⌘
	glyphShift   = "⇧" // ⇧
	glyphAlt     = "⌥" // ⌥

	displaySeparator = " + "

	defaultSpaceLabel = "Space"
)

// FormatterOptions configures a Formatter. Platform detection is read once by
// the caller (see platform.go) and injected here so the formatter stays pure
// and testable without environment mocking.
type FormatterOptions struct {
	// ApplePlatform selects the Command glyph for CommandOrControl.
	ApplePlatform bool
	// SpaceLabel is the localized word substituted for the Space token.
	// Empty means the English default.
	SpaceLabel string
}

// Formatter projects canonical accelerator strings onto human-readable
// labels. The canonical string stays the single source of truth; labels are
// always re-derived, never stored.
type Formatter struct {
	primaryLabel string
	spaceLabel   string
}

// NewFormatter creates a Formatter for the given options.
func NewFormatter(opts FormatterOptions) *Formatter {
	primary := "Ctrl"
	if opts.ApplePlatform {
		primary = glyphCommand
	}
	space := opts.SpaceLabel
	if space == "" {
		space = defaultSpaceLabel
	}
	return &Formatter{primaryLabel: primary, spaceLabel: space}
}

// Format returns the human-readable label for a canonical accelerator
// string. Total function: empty input yields the empty label, unknown tokens
// pass through unchanged.
func (f *Formatter) Format(canonical string) string {
	if canonical == "" {
		return ""
	}
	tokens := strings.Split(canonical, separator)
	labels := make([]string, len(tokens))
	for i, token := range tokens {
		labels[i] = f.formatToken(token)
	}
	return strings.Join(labels, displaySeparator)
}

func (f *Formatter) formatToken(token string) string {
	switch token {
	case TokenCommandOrControl:
		return f.primaryLabel
	case TokenShift:
		return glyphShift
	case TokenAlt:
		return glyphAlt
	case TokenSpace:
		return f.spaceLabel
	case TokenPlus:
		return "+"
	default:
		return token
	}
}
