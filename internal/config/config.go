package config

import (
	"errors"
	"fmt"
	"io"
	"log/slog"
	"maps"
	"os"
	"path/filepath"
	"reflect"
	"runtime"
	"sort"
	"strings"
	"sync"
	"time"

	"go.yaml.in/yaml/v3"

	"github.com/kristol07/ququ/internal/hotkeys"
	"github.com/kristol07/ququ/internal/shortcut"
)

const (
	maxConfigFileBytes int64 = 1 << 20 // 1MB
	maxRenameRetry           = 10
	// Windows file lock releases (antivirus/indexing) typically settle quickly.
	// Use a short linear backoff: baseDelay * (1..maxRenameRetry).
	renameRetryBaseDelay = 10 * time.Millisecond
	// maxValidPort is the highest TCP/UDP port number (2^16 - 1).
	// Port 0 is valid and means "OS auto-assign".
	maxValidPort = 65535
	// maxHistoryLimit caps hotkey history retention; the history store prunes
	// to this many rows at most.
	maxHistoryLimit = 10000
)

// defaultConfigDirFn is a test seam; tests override it to simulate
// directory-resolution failures in validateConfigPath.
var defaultConfigDirFn = defaultConfigDir
var userHomeDirFn = os.UserHomeDir
var defaultPathWarningState struct {
	mu       sync.Mutex
	messages []string
}

func recordDefaultPathWarning(message string) {
	trimmed := strings.TrimSpace(message)
	if trimmed == "" {
		return
	}
	defaultPathWarningState.mu.Lock()
	defaultPathWarningState.messages = append(defaultPathWarningState.messages, trimmed)
	defaultPathWarningState.mu.Unlock()
}

// ConsumeDefaultPathWarnings returns and clears path-resolution warnings
// accumulated during DefaultPath() calls.
func ConsumeDefaultPathWarnings() []string {
	defaultPathWarningState.mu.Lock()
	defer defaultPathWarningState.mu.Unlock()
	if len(defaultPathWarningState.messages) == 0 {
		return nil
	}
	out := make([]string, len(defaultPathWarningState.messages))
	copy(out, defaultPathWarningState.messages)
	defaultPathWarningState.messages = nil
	return out
}

// Config is ququ runtime configuration.
type Config struct {
	// Hotkey is the global accelerator that toggles the recording window.
	// Empty string disables global registration entirely.
	Hotkey string `yaml:"hotkey" json:"hotkey"`
	// ViewerShortcuts maps in-app view IDs to accelerator strings.
	// Example: {"transcript": "CommandOrControl+Shift+t"}.
	// When nil or a key is absent, the frontend uses its compiled-in default.
	ViewerShortcuts map[string]string `yaml:"viewer_shortcuts,omitempty" json:"viewer_shortcuts,omitempty"`
	// Locale selects display-language conventions such as the localized word
	// for the Space key in shortcut labels.
	Locale string `yaml:"locale" json:"locale"`
	// PreviewPort is the port for the local WebSocket server that streams
	// capture preview frames to auxiliary windows. 0 (default) lets the OS
	// assign an available port, which is recommended to avoid conflicts.
	PreviewPort int `yaml:"preview_port" json:"preview_port"`
	// HistoryLimit bounds the number of hotkey change records kept in the
	// local history store. 0 means use the built-in default.
	HistoryLimit int `yaml:"history_limit" json:"history_limit"`
}

// supportedLocales maps locale identifiers to the localized label for the
// Space key in shortcut display strings.
var supportedLocales = map[string]string{
	"en": "Space",
	"zh": "空格",
	"ja": "スペース",
}

// DefaultHotkey is the accelerator registered on first run.
const DefaultHotkey = "CommandOrControl+Shift+Space"

const defaultHistoryLimit = 200

// DefaultConfig returns default values for a fresh install.
func DefaultConfig() Config {
	return Config{
		Hotkey:       DefaultHotkey,
		Locale:       "en",
		HistoryLimit: defaultHistoryLimit,
	}
}

// SpaceLabel returns the localized word used for the Space key in shortcut
// display strings, falling back to English for unknown locales.
func (c Config) SpaceLabel() string {
	if label, ok := supportedLocales[c.Locale]; ok {
		return label
	}
	return supportedLocales["en"]
}

// DefaultPath resolves the config file path, preferring LOCALAPPDATA over
// APPDATA, falling back to ~/.config when both are unset, and then to
// os.TempDir() if the home directory cannot be resolved.
// The temp-dir fallback is not a stable persistence location and may vary
// between sessions depending on environment configuration.
func DefaultPath() string {
	base := strings.TrimSpace(os.Getenv("LOCALAPPDATA"))
	if base == "" {
		base = strings.TrimSpace(os.Getenv("APPDATA"))
	}
	if base == "" {
		home, err := userHomeDirFn()
		if err != nil {
			// Keep config path resolvable even in restricted environments.
			slog.Warn("[WARN-CONFIG] using temp dir as config path fallback", "error", err)
			recordDefaultPathWarning(
				"Config path fallback: failed to resolve LOCALAPPDATA/APPDATA/home directory. Using temp directory; settings persistence may be limited.",
			)
			base = os.TempDir()
		} else {
			base = filepath.Join(home, ".config")
		}
	}
	return filepath.Join(base, "ququ", "config.yaml")
}

// Load reads the config file. If the file does not exist, defaults are
// returned. Field validation is non-fatal: invalid values are logged and
// replaced with defaults so that startup never fails on a hand-edited file.
func Load(path string) (Config, error) {
	cfg := DefaultConfig()
	if path == "" {
		return cfg, errors.New("config path required")
	}

	raw, err := readLimitedFile(path, maxConfigFileBytes)
	if err != nil {
		if errors.Is(err, os.ErrNotExist) {
			return cfg, nil
		}
		return cfg, err
	}
	if len(raw) == 0 {
		return cfg, nil
	}
	if err := yaml.Unmarshal(raw, &cfg); err != nil {
		slog.Warn("[WARN-CONFIG] failed to parse config, using defaults", "path", path, "error", err)
		return DefaultConfig(), err
	}

	rawMap, metadataErr := parseRawConfigMetadata(raw)
	if metadataErr != nil {
		slog.Warn("[WARN-CONFIG] failed to parse config metadata", "error", metadataErr)
	} else {
		migrateLegacyFields(&cfg, rawMap)
	}

	applyDefaultsAndValidate(&cfg, rawMap)
	return cfg, nil
}

// EnsureFile writes default config if missing and returns loaded config.
func EnsureFile(path string) (Config, error) {
	cfg, err := Load(path)
	if err != nil {
		return cfg, err
	}
	if _, statErr := os.Stat(path); errors.Is(statErr, os.ErrNotExist) {
		if _, err := Save(path, cfg); err != nil {
			return cfg, err
		}
	}
	return cfg, nil
}

// SupportedLocaleList returns the locale identifiers for UI display.
// The result is sorted alphabetically for consistent ordering.
func SupportedLocaleList() []string {
	locales := make([]string, 0, len(supportedLocales))
	for l := range supportedLocales {
		locales = append(locales, l)
	}
	sort.Strings(locales)
	return locales
}

// Clone returns a deep copy of cfg.
// Use this when sharing config snapshots across goroutines or package boundaries.
func Clone(src Config) Config {
	dst := src
	if src.ViewerShortcuts != nil {
		dst.ViewerShortcuts = make(map[string]string, len(src.ViewerShortcuts))
		maps.Copy(dst.ViewerShortcuts, src.ViewerShortcuts)
	}
	return dst
}

// Save validates cfg, fills defaults, and atomically writes to path.
// Returns the normalized config that was actually written to disk.
// Uses the same validation rules as Load.
func Save(path string, cfg Config) (Config, error) {
	normalizedPath, err := validateConfigPath(path)
	if err != nil {
		return cfg, err
	}
	applyDefaultsAndValidate(&cfg, nil)

	raw, err := yaml.Marshal(cfg)
	if err != nil {
		return cfg, fmt.Errorf("save config: marshal: %w", err)
	}
	if err := atomicWrite(normalizedPath, raw); err != nil {
		return cfg, err
	}
	slog.Debug("[DEBUG-CONFIG] config saved", "path", path)
	return cfg, nil
}

// atomicWrite writes config data using temp-file + rename to avoid partial
// writes and retries rename on Windows to tolerate transient file locks.
func atomicWrite(path string, data []byte) (err error) {
	dir := filepath.Dir(path)
	if err = os.MkdirAll(dir, 0o700); err != nil {
		return fmt.Errorf("save config: mkdir: %w", err)
	}

	// Atomic write: temp file + rename in same directory ensures
	// same-filesystem rename and prevents partial writes on crash.
	tmpFile, err := os.CreateTemp(dir, ".config.yaml.tmp.*")
	if err != nil {
		return fmt.Errorf("save config: create temp: %w", err)
	}
	tmpPath := tmpFile.Name()

	defer func() {
		if tmpFile != nil {
			if closeErr := tmpFile.Close(); closeErr != nil && !errors.Is(closeErr, os.ErrClosed) {
				slog.Warn("[WARN-CONFIG] failed to close temp file", "path", tmpPath, "error", closeErr)
			}
		}
		if err != nil {
			if removeErr := os.Remove(tmpPath); removeErr != nil && !errors.Is(removeErr, os.ErrNotExist) {
				slog.Warn("[WARN-CONFIG] failed to remove temp file", "path", tmpPath, "error", removeErr)
			}
		}
	}()

	if err = tmpFile.Chmod(0o600); err != nil {
		return fmt.Errorf("save config: chmod temp: %w", err)
	}
	if _, err = tmpFile.Write(data); err != nil {
		return fmt.Errorf("save config: write: %w", err)
	}
	if err = tmpFile.Sync(); err != nil {
		return fmt.Errorf("save config: sync: %w", err)
	}
	err = tmpFile.Close()
	tmpFile = nil
	if err != nil {
		return fmt.Errorf("save config: close: %w", err)
	}

	if err = renameFileWithRetry(tmpPath, path); err != nil {
		return fmt.Errorf("save config: rename: %w", err)
	}
	return nil
}

// validateConfigPath normalizes path and enforces that config writes stay
// inside the default config directory when that directory is resolvable.
func validateConfigPath(path string) (string, error) {
	trimmedPath := strings.TrimSpace(path)
	if trimmedPath == "" {
		return "", errors.New("config path required")
	}
	absolutePath, err := filepath.Abs(trimmedPath)
	if err != nil {
		return "", fmt.Errorf("save config: resolve path: %w", err)
	}

	expectedDir, err := defaultConfigDirFn()
	if err != nil {
		return "", fmt.Errorf("save config: resolve config dir: %w", err)
	}
	absoluteExpectedDir, err := filepath.Abs(expectedDir)
	if err != nil {
		return "", fmt.Errorf("save config: resolve config dir: %w", err)
	}
	if !pathWithinDir(absolutePath, absoluteExpectedDir) {
		return "", fmt.Errorf("save config: path outside config directory: %q", absolutePath)
	}

	return absolutePath, nil
}

func defaultConfigDir() (string, error) {
	return filepath.Dir(DefaultPath()), nil
}

// pathWithinDir blocks directory traversal by ensuring path is under dir.
// It also rejects Windows cross-drive escapes because filepath.Rel returns
// an absolute path when roots differ.
func pathWithinDir(path string, dir string) bool {
	relativePath, err := filepath.Rel(filepath.Clean(dir), filepath.Clean(path))
	if err != nil {
		return false
	}
	if relativePath == "." {
		return true
	}
	if relativePath == ".." || strings.HasPrefix(relativePath, ".."+string(os.PathSeparator)) {
		return false
	}
	return !filepath.IsAbs(relativePath)
}

// applyDefaultsAndValidate fills missing defaults and validates cfg in-place.
// MUTATES: cfg is directly modified.
// Used by both Load and Save to ensure consistent normalization. All checks
// are non-fatal: a broken field falls back to its default with a warning so
// the application always starts.
func applyDefaultsAndValidate(cfg *Config, rawMap map[string]any) {
	defaults := DefaultConfig()
	if isZeroConfig(*cfg) {
		if _, explicitHotkey := rawMap["hotkey"]; !explicitHotkey {
			*cfg = defaults
			return
		}
	}

	validateHotkey(cfg, rawMap, defaults.Hotkey)
	validateLocale(cfg, defaults.Locale)
	validatePreviewPort(cfg)
	validateHistoryLimit(cfg, defaults.HistoryLimit)
	cfg.ViewerShortcuts = sanitizeViewerShortcuts(cfg.ViewerShortcuts)
}

// validateHotkey normalizes the global hotkey accelerator. An empty hotkey
// means the user opted out of global registration and is preserved, except
// when the config file simply omitted the field (rawMap is the parsed file;
// nil means cfg came from the application, where empty is always intentional).
// Unparseable or unregistrable accelerators fall back to the default.
func validateHotkey(cfg *Config, rawMap map[string]any, fallback string) {
	trimmed := strings.TrimSpace(cfg.Hotkey)
	if trimmed == "" {
		if rawMap != nil {
			if _, explicit := rawMap["hotkey"]; !explicit {
				cfg.Hotkey = fallback
				return
			}
		}
		cfg.Hotkey = ""
		return
	}
	binding, err := hotkeys.ParseBinding(trimmed)
	if err != nil {
		slog.Warn("[WARN-CONFIG] invalid hotkey, falling back to default",
			"configured", trimmed, "default", fallback, "error", err)
		cfg.Hotkey = fallback
		return
	}
	cfg.Hotkey = binding.Normalized()
}

// validateLocale resets unknown locales to the default (non-fatal).
func validateLocale(cfg *Config, fallback string) {
	locale := strings.TrimSpace(cfg.Locale)
	if locale == "" {
		cfg.Locale = fallback
		return
	}
	if _, ok := supportedLocales[locale]; !ok {
		slog.Warn("[WARN-CONFIG] unsupported locale, falling back",
			"configured", locale, "default", fallback)
		cfg.Locale = fallback
		return
	}
	cfg.Locale = locale
}

// validatePreviewPort checks that PreviewPort is within the valid TCP port
// range (0-65535). Port 0 means "let the OS auto-assign an available port".
// Invalid values are logged and reset to 0 (auto-assign) to keep the
// application startable even with a misconfigured config file.
func validatePreviewPort(cfg *Config) {
	if cfg.PreviewPort < 0 || cfg.PreviewPort > maxValidPort {
		slog.Warn("[WARN-CONFIG] preview_port out of valid range (0-65535), falling back to 0 (auto-assign)",
			"configured", cfg.PreviewPort, "max", maxValidPort)
		cfg.PreviewPort = 0
	}
}

// validateHistoryLimit clamps HistoryLimit into [1, maxHistoryLimit], with 0
// and negatives mapping to the default.
func validateHistoryLimit(cfg *Config, fallback int) {
	switch {
	case cfg.HistoryLimit <= 0:
		if cfg.HistoryLimit < 0 {
			slog.Warn("[WARN-CONFIG] negative history_limit, falling back", "configured", cfg.HistoryLimit, "default", fallback)
		}
		cfg.HistoryLimit = fallback
	case cfg.HistoryLimit > maxHistoryLimit:
		slog.Warn("[WARN-CONFIG] history_limit exceeds maximum, clamping",
			"configured", cfg.HistoryLimit, "max", maxHistoryLimit)
		cfg.HistoryLimit = maxHistoryLimit
	}
}

// sanitizeViewerShortcuts validates and normalizes viewer shortcut entries.
// Entries with empty IDs or unparseable accelerators are dropped with warning
// logs; surviving accelerators are rewritten in canonical form. Keys are
// processed in sorted order for deterministic logging.
// Returns nil when the input is empty or all entries are removed.
func sanitizeViewerShortcuts(entries map[string]string) map[string]string {
	if len(entries) == 0 {
		return nil
	}
	sortedIDs := make([]string, 0, len(entries))
	for id := range entries {
		sortedIDs = append(sortedIDs, id)
	}
	sort.Strings(sortedIDs)

	cleaned := make(map[string]string, len(entries))
	for _, id := range sortedIDs {
		accel := strings.TrimSpace(entries[id])
		trimmedID := strings.TrimSpace(id)
		if trimmedID == "" {
			slog.Debug("[DEBUG-CONFIG] viewer_shortcuts: dropped entry with empty view id")
			continue
		}
		if accel == "" {
			slog.Warn("[WARN-CONFIG] viewer_shortcuts: dropped entry with empty shortcut", "view", trimmedID)
			continue
		}
		combo, err := shortcut.Parse(accel)
		if err != nil || combo.IsEmpty() {
			slog.Warn("[WARN-CONFIG] viewer_shortcuts: dropped unparseable shortcut",
				"view", trimmedID, "shortcut", accel, "error", err)
			continue
		}
		cleaned[trimmedID] = combo.String()
	}
	if len(cleaned) == 0 {
		return nil
	}
	return cleaned
}

// parseRawConfigMetadata unmarshals raw YAML into a generic map used only
// for metadata checks (legacy fields and explicit-empty detection).
func parseRawConfigMetadata(raw []byte) (map[string]any, error) {
	var rawMap map[string]any
	if err := yaml.Unmarshal(raw, &rawMap); err != nil {
		return nil, err
	}
	return rawMap, nil
}

// migrateLegacyFields adopts values from renamed fields that yaml.Unmarshal
// silently ignores. "global_hotkey" was the pre-1.0 name for "hotkey".
func migrateLegacyFields(cfg *Config, rawMap map[string]any) {
	legacy, has := rawMap["global_hotkey"].(string)
	if !has {
		return
	}
	if _, hasCurrent := rawMap["hotkey"]; hasCurrent {
		slog.Warn("[WARN-CONFIG] deprecated field ignored: global_hotkey is superseded by hotkey")
		return
	}
	slog.Warn("[WARN-CONFIG] deprecated field global_hotkey adopted as hotkey; rename it in config.yaml")
	cfg.Hotkey = legacy
}

func readLimitedFile(path string, maxBytes int64) ([]byte, error) {
	file, err := os.Open(path)
	if err != nil {
		return nil, err
	}
	defer file.Close()

	limited := io.LimitReader(file, maxBytes+1)
	raw, err := io.ReadAll(limited)
	if err != nil {
		return nil, err
	}
	if int64(len(raw)) > maxBytes {
		return nil, fmt.Errorf("config file exceeds %d bytes", maxBytes)
	}
	return raw, nil
}

func isZeroConfig(cfg Config) bool {
	// reflect.DeepEqual guards against field-addition drift that manual checks miss.
	return reflect.DeepEqual(cfg, Config{})
}

func renameFileWithRetry(sourcePath string, targetPath string) error {
	var lastErr error
	for attempt := range maxRenameRetry {
		err := os.Rename(sourcePath, targetPath)
		if err == nil {
			return nil
		}
		lastErr = err
		if runtime.GOOS != "windows" {
			return err
		}
		time.Sleep(time.Duration(attempt+1) * renameRetryBaseDelay)
	}
	return lastErr
}
