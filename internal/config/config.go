package config

import (
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"strings"
	"time"

	"github.com/BurntSushi/toml"
)

// Defaults match the values a freshly written config.txt carries.
const (
	DefaultCopyDebounceSec   = 2.0
	DefaultHistoryServerPort = 3000
	DefaultHistoryMaxEntries = 300
	DefaultLogLevel          = "info"
	DefaultLogFile           = "logs/imgprompt.log"
)

// Config holds the [app] settings the history subsystem consumes.
type Config struct {
	// CopyDebounceSec suppresses a repeated copy of identical text within this window.
	CopyDebounceSec float64

	// HistoryServerPort is the preferred loopback port. If it is taken the
	// server tries the next ports up.
	HistoryServerPort int

	// HistoryMaxEntries is the live page capacity. Zero or negative archives
	// every appended entry immediately.
	HistoryMaxEntries int

	// HistoryConfirmDelete makes history pages ask before deleting an entry.
	HistoryConfirmDelete bool

	// HistoryMCPEnabled mounts the MCP endpoint on the local server.
	HistoryMCPEnabled bool

	// LogFile is resolved against the base dir when relative. Empty disables file logging.
	LogFile string

	// LogLevel is one of debug, info, warn, error.
	LogLevel string

	// Warnings collects normalization notes produced while loading.
	Warnings []string
}

// DefaultConfig returns the default configuration.
func DefaultConfig() *Config {
	return &Config{
		CopyDebounceSec:      DefaultCopyDebounceSec,
		HistoryServerPort:    DefaultHistoryServerPort,
		HistoryMaxEntries:    DefaultHistoryMaxEntries,
		HistoryConfirmDelete: true,
		HistoryMCPEnabled:    true,
		LogFile:              DefaultLogFile,
		LogLevel:             DefaultLogLevel,
	}
}

// CopyDebounce returns the debounce window as a duration.
func (c *Config) CopyDebounce() time.Duration {
	return time.Duration(c.CopyDebounceSec * float64(time.Second))
}

// Load reads the [app] table from the TOML file at path.
// Returns default config if the file doesn't exist.
func Load(path string) (*Config, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		if errors.Is(err, os.ErrNotExist) {
			return DefaultConfig(), nil
		}
		return nil, err
	}
	return Parse(string(data))
}

// Parse decodes config text. Only the [app] table is interpreted; the
// choice-list sections belong to the prompt UI.
func Parse(text string) (*Config, error) {
	var doc struct {
		App map[string]any `toml:"app"`
	}
	if _, err := toml.Decode(text, &doc); err != nil {
		return nil, fmt.Errorf("failed to parse config: %w", err)
	}
	return fromTable(doc.App), nil
}

// fromTable applies the normalization rules to a raw [app] table.
// Values are read loosely (integers accepted where floats are expected)
// because config.txt is hand edited.
func fromTable(app map[string]any) *Config {
	cfg := DefaultConfig()
	if app == nil {
		return cfg
	}

	if v, ok := app["copy_debounce_sec"]; ok {
		if f, ok := toFloat(v); ok && f >= 0 {
			cfg.CopyDebounceSec = f
		} else {
			cfg.warnf("copy_debounce_sec %v is invalid; using %v", v, DefaultCopyDebounceSec)
		}
	}

	if v, ok := app["history_server_port"]; ok {
		if n, ok := toInt(v); ok && n >= 1 && n <= 65535 {
			cfg.HistoryServerPort = int(n)
		} else {
			cfg.warnf("history_server_port %v is invalid; using %d", v, DefaultHistoryServerPort)
		}
	}

	if v, ok := app["history_max_entries"]; ok {
		if n, ok := toInt(v); ok {
			cfg.HistoryMaxEntries = int(n)
		} else {
			cfg.warnf("history_max_entries %v is invalid; using %d", v, DefaultHistoryMaxEntries)
		}
	}

	if v, ok := app["history_confirm_delete"].(bool); ok {
		cfg.HistoryConfirmDelete = v
	}
	if v, ok := app["history_mcp_enabled"].(bool); ok {
		cfg.HistoryMCPEnabled = v
	}

	if v, ok := app["log_file"].(string); ok {
		cfg.LogFile = strings.TrimSpace(v)
	}
	if v, ok := app["log_level"].(string); ok {
		switch level := strings.ToLower(strings.TrimSpace(v)); level {
		case "debug", "info", "warn", "error":
			cfg.LogLevel = level
		default:
			cfg.warnf("log_level %q is invalid; using %q", v, DefaultLogLevel)
		}
	}

	return cfg
}

// LogPath returns the absolute log file path, or "" when file logging is off.
func (c *Config) LogPath(baseDir string) string {
	if c.LogFile == "" {
		return ""
	}
	if filepath.IsAbs(c.LogFile) {
		return c.LogFile
	}
	return filepath.Join(baseDir, filepath.FromSlash(c.LogFile))
}

func (c *Config) warnf(format string, args ...any) {
	c.Warnings = append(c.Warnings, fmt.Sprintf(format, args...))
}

func toFloat(v any) (float64, bool) {
	switch n := v.(type) {
	case float64:
		return n, true
	case int64:
		return float64(n), true
	}
	return 0, false
}

func toInt(v any) (int64, bool) {
	switch n := v.(type) {
	case int64:
		return n, true
	case float64:
		if n == float64(int64(n)) {
			return int64(n), true
		}
	}
	return 0, false
}
