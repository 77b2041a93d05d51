package shortcut

import "runtime"

// IsApplePlatform reports whether the host uses the Command key convention.
// Callers read this once at startup and inject the result via
// FormatterOptions; nothing in this package consults the environment after
// construction.
func IsApplePlatform() bool {
	return runtime.GOOS == "darwin"
}
