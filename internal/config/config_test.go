package config

import (
	"os"
	"path/filepath"
	"testing"
	"time"
)

func TestLoad_DefaultWhenMissing(t *testing.T) {
	tmpDir := t.TempDir()

	cfg, err := Load(filepath.Join(tmpDir, ConfigFileName))
	if err != nil {
		t.Fatalf("Load() error = %v", err)
	}
	want := DefaultConfig()
	if cfg.HistoryMaxEntries != want.HistoryMaxEntries {
		t.Fatalf("HistoryMaxEntries = %d, want %d", cfg.HistoryMaxEntries, want.HistoryMaxEntries)
	}
	if cfg.HistoryServerPort != want.HistoryServerPort {
		t.Fatalf("HistoryServerPort = %d, want %d", cfg.HistoryServerPort, want.HistoryServerPort)
	}
	if cfg.CopyDebounceSec != want.CopyDebounceSec {
		t.Fatalf("CopyDebounceSec = %v, want %v", cfg.CopyDebounceSec, want.CopyDebounceSec)
	}
}

func TestLoad_OverridesFromFile(t *testing.T) {
	tmpDir := t.TempDir()
	configPath := filepath.Join(tmpDir, ConfigFileName)

	text := `
[app]
delimiter = ", "
copy_debounce_sec = 0.5
history_server_port = 3100
history_max_entries = 50
history_confirm_delete = false
log_level = "DEBUG"

[[sections]]
name = "prompt"
`
	if err := os.WriteFile(configPath, []byte(text), 0600); err != nil {
		t.Fatalf("WriteFile() error = %v", err)
	}

	cfg, err := Load(configPath)
	if err != nil {
		t.Fatalf("Load() error = %v", err)
	}
	if cfg.CopyDebounceSec != 0.5 {
		t.Errorf("CopyDebounceSec = %v, want 0.5", cfg.CopyDebounceSec)
	}
	if cfg.HistoryServerPort != 3100 {
		t.Errorf("HistoryServerPort = %d, want 3100", cfg.HistoryServerPort)
	}
	if cfg.HistoryMaxEntries != 50 {
		t.Errorf("HistoryMaxEntries = %d, want 50", cfg.HistoryMaxEntries)
	}
	if cfg.HistoryConfirmDelete {
		t.Error("HistoryConfirmDelete = true, want false")
	}
	if cfg.LogLevel != "debug" {
		t.Errorf("LogLevel = %q, want %q", cfg.LogLevel, "debug")
	}
	if len(cfg.Warnings) != 0 {
		t.Errorf("Warnings = %v, want none", cfg.Warnings)
	}
}

func TestLoad_InvalidTOML(t *testing.T) {
	tmpDir := t.TempDir()
	configPath := filepath.Join(tmpDir, ConfigFileName)

	if err := os.WriteFile(configPath, []byte("[app\ncopy_debounce_sec = "), 0600); err != nil {
		t.Fatalf("WriteFile() error = %v", err)
	}

	if _, err := Load(configPath); err == nil {
		t.Fatalf("Load() expected error, got nil")
	}
}

func TestParse_IntegerDebounce(t *testing.T) {
	cfg, err := Parse("[app]\ncopy_debounce_sec = 3\n")
	if err != nil {
		t.Fatalf("Parse() error = %v", err)
	}
	if cfg.CopyDebounceSec != 3 {
		t.Errorf("CopyDebounceSec = %v, want 3", cfg.CopyDebounceSec)
	}
	if cfg.CopyDebounce() != 3*time.Second {
		t.Errorf("CopyDebounce() = %v, want 3s", cfg.CopyDebounce())
	}
}

func TestParse_NormalizesInvalidValues(t *testing.T) {
	cfg, err := Parse(`
[app]
copy_debounce_sec = -1
history_server_port = 70000
log_level = "loud"
`)
	if err != nil {
		t.Fatalf("Parse() error = %v", err)
	}
	if cfg.CopyDebounceSec != DefaultCopyDebounceSec {
		t.Errorf("CopyDebounceSec = %v, want default", cfg.CopyDebounceSec)
	}
	if cfg.HistoryServerPort != DefaultHistoryServerPort {
		t.Errorf("HistoryServerPort = %d, want default", cfg.HistoryServerPort)
	}
	if cfg.LogLevel != DefaultLogLevel {
		t.Errorf("LogLevel = %q, want default", cfg.LogLevel)
	}
	if len(cfg.Warnings) != 3 {
		t.Errorf("Warnings = %v, want 3 entries", cfg.Warnings)
	}
}

func TestParse_NonPositiveCapacityIsKept(t *testing.T) {
	for _, text := range []string{"[app]\nhistory_max_entries = 0\n", "[app]\nhistory_max_entries = -5\n"} {
		cfg, err := Parse(text)
		if err != nil {
			t.Fatalf("Parse(%q) error = %v", text, err)
		}
		if cfg.HistoryMaxEntries > 0 {
			t.Errorf("Parse(%q).HistoryMaxEntries = %d, want non-positive", text, cfg.HistoryMaxEntries)
		}
	}
}

func TestParse_NoAppTable(t *testing.T) {
	cfg, err := Parse("[[sections]]\nname = \"prompt\"\n")
	if err != nil {
		t.Fatalf("Parse() error = %v", err)
	}
	if cfg.HistoryMaxEntries != DefaultHistoryMaxEntries {
		t.Errorf("HistoryMaxEntries = %d, want default", cfg.HistoryMaxEntries)
	}
}

func TestLogPath(t *testing.T) {
	base := t.TempDir()
	cfg := DefaultConfig()

	if got := cfg.LogPath(base); got != filepath.Join(base, "logs", "imgprompt.log") {
		t.Errorf("LogPath() = %q", got)
	}

	abs := filepath.Join(base, "elsewhere.log")
	cfg.LogFile = abs
	if got := cfg.LogPath(base); got != abs {
		t.Errorf("LogPath() = %q, want %q", got, abs)
	}

	cfg.LogFile = ""
	if got := cfg.LogPath(base); got != "" {
		t.Errorf("LogPath() = %q, want empty", got)
	}
}

func TestResolvePath(t *testing.T) {
	base := t.TempDir()

	// Neither candidate exists: first default.
	if got := ResolvePath("", base); got != filepath.Join(base, ConfigFileName) {
		t.Errorf("ResolvePath() = %q", got)
	}

	nested := filepath.Join(base, "config")
	if err := os.MkdirAll(nested, 0755); err != nil {
		t.Fatal(err)
	}
	if err := os.WriteFile(filepath.Join(nested, ConfigFileName), []byte(""), 0600); err != nil {
		t.Fatal(err)
	}
	if got := ResolvePath("", base); got != filepath.Join(nested, ConfigFileName) {
		t.Errorf("ResolvePath() = %q, want nested config", got)
	}

	explicit := filepath.Join(base, "custom.toml")
	if got := ResolvePath(explicit, base); got != explicit {
		t.Errorf("ResolvePath(explicit) = %q, want %q", got, explicit)
	}
}
