//go:build windows

package hotkeys

import (
	"fmt"
	"strconv"
)

// Modifier represents a Win32 hotkey modifier bitmask.
type Modifier uint32

// VKey represents a Win32 virtual-key code.
type VKey uint32

const (
	modAlt     Modifier = 0x0001
	modControl Modifier = 0x0002
	modShift   Modifier = 0x0004
)

const (
	vkBackspace VKey = 0x08
	vkTab       VKey = 0x09
	vkReturn    VKey = 0x0D
	vkSpace     VKey = 0x20
	vkPageUp    VKey = 0x21
	vkPageDown  VKey = 0x22
	vkEnd       VKey = 0x23
	vkHome      VKey = 0x24
	vkLeft      VKey = 0x25
	vkUp        VKey = 0x26
	vkRight     VKey = 0x27
	vkDown      VKey = 0x28
	vkInsert    VKey = 0x2D
	vkDelete    VKey = 0x2E
	vkF1        VKey = 0x70 // F1..F24 are contiguous through 0x87
	vkOEMPlus   VKey = 0xBB
)

var windowsKeyByName = map[string]VKey{
	"Space":      vkSpace,
	"Tab":        vkTab,
	"Enter":      vkReturn,
	"Backspace":  vkBackspace,
	"Delete":     vkDelete,
	"Insert":     vkInsert,
	"Home":       vkHome,
	"End":        vkEnd,
	"PageUp":     vkPageUp,
	"PageDown":   vkPageDown,
	"ArrowUp":    vkUp,
	"ArrowDown":  vkDown,
	"ArrowLeft":  vkLeft,
	"ArrowRight": vkRight,
	"Plus":       vkOEMPlus,
}

// OEM punctuation codes for the US layout. Shifted variants share the
// physical key, so both characters map to the same code. The shifted '='
// never appears here: the capture core stores it as the Plus token.
var windowsOEMByChar = map[byte]VKey{
	';': 0xBA, ':': 0xBA,
	'=': vkOEMPlus,
	',': 0xBC, '<': 0xBC,
	'-': 0xBD, '_': 0xBD,
	'.': 0xBE, '>': 0xBE,
	'/': 0xBF, '?': 0xBF,
	'`': 0xC0, '~': 0xC0,
	'[': 0xDB, '{': 0xDB,
	'\\': 0xDC, '|': 0xDC,
	']': 0xDD, '}': 0xDD,
	'\'': 0xDE, '"': 0xDE,
}

// Shifted digit characters back to the digit key that produces them.
var windowsShiftedDigits = map[byte]byte{
	')': '0', '!': '1', '@': '2', '#': '3', '$': '4',
	'%': '5', '^': '6', '&': '7', '*': '8', '(': '9',
}

// win32 resolves the binding into the RegisterHotKey modifier bitmask and
// virtual-key code. CommandOrControl resolves to Ctrl on Windows.
func (b Binding) win32() (Modifier, VKey, error) {
	var modifiers Modifier
	if b.commandOrControl {
		modifiers |= modControl
	}
	if b.shift {
		modifiers |= modShift
	}
	if b.alt {
		modifiers |= modAlt
	}

	key, err := windowsVirtualKey(b.key)
	if err != nil {
		return 0, 0, err
	}
	return modifiers, key, nil
}

func windowsVirtualKey(token string) (VKey, error) {
	if key, ok := windowsKeyByName[token]; ok {
		return key, nil
	}
	if isFunctionKey(token) {
		n, _ := strconv.Atoi(token[1:])
		return vkF1 + VKey(n-1), nil
	}
	if len(token) == 1 {
		ch := token[0]
		switch {
		case ch >= 'a' && ch <= 'z':
			return VKey(ch - 'a' + 'A'), nil
		case ch >= 'A' && ch <= 'Z', ch >= '0' && ch <= '9':
			return VKey(ch), nil
		}
		if digit, ok := windowsShiftedDigits[ch]; ok {
			return VKey(digit), nil
		}
		if key, ok := windowsOEMByChar[ch]; ok {
			return key, nil
		}
	}
	return 0, fmt.Errorf("key %q has no Windows virtual-key mapping", token)
}
