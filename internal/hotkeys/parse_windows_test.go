//go:build windows

package hotkeys

import (
	"testing"
	"unsafe"
)

func TestWin32Resolution(t *testing.T) {
	tests := []struct {
		name     string
		spec     string
		wantMods Modifier
		wantKey  VKey
	}{
		{
			name:     "primary modifier resolves to Ctrl",
			spec:     "CommandOrControl+Shift+Space",
			wantMods: modControl | modShift,
			wantKey:  vkSpace,
		},
		{
			name:     "lowercase letter resolves to uppercase virtual key",
			spec:     "CommandOrControl+k",
			wantMods: modControl,
			wantKey:  VKey('K'),
		},
		{
			name:     "digit key",
			spec:     "Alt+3",
			wantMods: modAlt,
			wantKey:  VKey('3'),
		},
		{
			name:     "function key",
			spec:     "CommandOrControl+F12",
			wantMods: modControl,
			wantKey:  vkF1 + 11,
		},
		{
			name:     "backtick resolves to OEM code",
			spec:     "CommandOrControl+`",
			wantMods: modControl,
			wantKey:  VKey(0xC0),
		},
		{
			name:     "shifted punctuation shares the physical key",
			spec:     "Shift+~",
			wantMods: modShift,
			wantKey:  VKey(0xC0),
		},
		{
			name:     "shifted digit resolves to the digit key",
			spec:     "Shift+!",
			wantMods: modShift,
			wantKey:  VKey('1'),
		},
		{
			name:     "arrow key",
			spec:     "Alt+ArrowLeft",
			wantMods: modAlt,
			wantKey:  vkLeft,
		},
		{
			name:     "plus token shares the equals physical key",
			spec:     "Shift+Plus",
			wantMods: modShift,
			wantKey:  vkOEMPlus,
		},
		{
			name:     "equals resolves to the OEM plus code",
			spec:     "CommandOrControl+=",
			wantMods: modControl,
			wantKey:  vkOEMPlus,
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			b, err := ParseBinding(tt.spec)
			if err != nil {
				t.Fatalf("ParseBinding(%q) returned error: %v", tt.spec, err)
			}
			mods, key, err := b.win32()
			if err != nil {
				t.Fatalf("win32() returned error: %v", err)
			}
			if mods != tt.wantMods {
				t.Fatalf("modifiers = 0x%X, want 0x%X", mods, tt.wantMods)
			}
			if key != tt.wantKey {
				t.Fatalf("key = 0x%X, want 0x%X", key, tt.wantKey)
			}
		})
	}
}

func TestWin32ResolutionUnmappableKey(t *testing.T) {
	// Accepted by ParseBinding (a single printable rune) but outside the US
	// layout virtual-key tables.
	b, err := ParseBinding("CommandOrControl+é")
	if err != nil {
		t.Fatalf("ParseBinding returned error: %v", err)
	}
	if _, _, err := b.win32(); err == nil {
		t.Fatal("win32() succeeded for unmappable key, want error")
	}
}

// TestWinMsgSize verifies that the winMsg struct matches the Win32 MSG layout.
func TestWinMsgSize(t *testing.T) {
	// On amd64 (64-bit): 48 bytes. On 386 (32-bit): 28 bytes.
	ptrSize := unsafe.Sizeof(uintptr(0))
	var expectedSize uintptr
	switch ptrSize {
	case 8: // 64-bit
		expectedSize = 48
	case 4: // 32-bit
		expectedSize = 28
	default:
		t.Skipf("unknown pointer size %d", ptrSize)
	}
	if got := unsafe.Sizeof(winMsg{}); got != expectedSize {
		t.Fatalf("unsafe.Sizeof(winMsg{}) = %d, want %d (pointer size=%d)", got, expectedSize, ptrSize)
	}
}
