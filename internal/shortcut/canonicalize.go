package shortcut

// Raw key identifiers that are modifier keys. A key-down for one of these
// carries no primary key: the press is already represented by the modifier
// flags on the event.
var modifierKeyNames = map[string]struct{}{
	"Control": {},
	"Alt":     {},
	"Shift":   {},
	"Meta":    {},
}

// IsModifierKeyName reports whether key identifies a modifier key.
func IsModifierKeyName(key string) bool {
	_, ok := modifierKeyNames[key]
	return ok
}

// Canonicalize maps the modifier flags and the triggering key identifier into
// a canonical Combination.
//
// Fusion rule: Meta and Ctrl both collapse into a single CommandOrControl
// token, Meta taking precedence; a combination never carries both raw forms
// and never carries two CommandOrControl tokens. A key identifier that is
// itself a modifier key contributes no primary key. When no usable primary
// key remains, the empty combination is returned and callers must leave any
// stored value untouched.
//
// Pure function: no side effects, never panics, malformed input degrades to
// the empty combination.
func Canonicalize(mods Modifiers, key string) Combination {
	if key == "" || IsModifierKeyName(key) {
		return Combination{}
	}

	var c Combination
	if mods.Meta || mods.Ctrl {
		c.commandOrControl = true
	}
	c.shift = mods.Shift
	c.alt = mods.Alt
	c.key = substitutePrimaryKey(key)
	return c
}

// substitutePrimaryKey applies symbolic substitutions to raw key identifiers.
// The literal space and plus characters are not usable inside a
// "+"-separated accelerator, so they are stored as the Space and Plus
// tokens. Every serialized combination must survive Parse unchanged.
func substitutePrimaryKey(key string) string {
	switch key {
	case " ":
		return TokenSpace
	case separator:
		return TokenPlus
	}
	return key
}
