package config

import (
	"os"
	"path/filepath"
	"strings"
	"testing"

	"github.com/patrickspencer/taskhist/internal/eventlog"
)

func writeConfig(t *testing.T, body string) string {
	t.Helper()
	cfgPath := filepath.Join(t.TempDir(), "taskhist.yaml")
	if err := os.WriteFile(cfgPath, []byte(body), 0644); err != nil {
		t.Fatalf("write config: %v", err)
	}
	return cfgPath
}

func TestLoadConfigDefaults(t *testing.T) {
	t.Parallel()

	cfg, err := LoadConfig(writeConfig(t, "{}\n"))
	if err != nil {
		t.Fatalf("LoadConfig: %v", err)
	}

	if cfg.Listen != ":8080" {
		t.Fatalf("expected default listen :8080, got %q", cfg.Listen)
	}
	if cfg.LogLevel != "info" || cfg.LogFormat != "console" {
		t.Fatalf("unexpected log defaults %q/%q", cfg.LogLevel, cfg.LogFormat)
	}
	if cfg.History.Source != "auto" || cfg.History.Path != eventlog.DefaultLogPath {
		t.Fatalf("unexpected history defaults %+v", cfg.History)
	}
	if cfg.History.Channel != eventlog.DefaultChannel {
		t.Fatalf("expected default channel, got %q", cfg.History.Channel)
	}
	if cfg.History.Malformed != "fail" {
		t.Fatalf("expected fail-fast by default, got %q", cfg.History.Malformed)
	}
	if cfg.Tasks.Source != "powershell" {
		t.Fatalf("expected powershell task source, got %q", cfg.Tasks.Source)
	}
	if !cfg.Archive.IsEnabled() {
		t.Fatal("expected archive enabled by default")
	}
	if got, want := cfg.Archive.Path, filepath.Join(cfg.DataDir, "taskhist.db"); got != want {
		t.Fatalf("expected archive path %q, got %q", want, got)
	}
	if cfg.Collector.HistorySchedule != "*/15 * * * *" || cfg.Collector.SnapshotSchedule != "@hourly" {
		t.Fatalf("unexpected collector defaults %+v", cfg.Collector)
	}

	home, err := os.UserHomeDir()
	if err != nil || home == "" {
		t.Fatalf("UserHomeDir unavailable for test: %v", err)
	}
	if want := filepath.Join(home, ".local", "share", "taskhist"); cfg.DataDir != want {
		t.Fatalf("expected default data_dir %q, got %q", want, cfg.DataDir)
	}
}

func TestLoadConfigExpandsTildePaths(t *testing.T) {
	t.Parallel()

	body := `
data_dir: "~/taskhist-data"
history:
  source: file
  path: "~/exports/operational.xml"
tasks:
  source: inventory
  inventory_dir: "~/inventory"
archive:
  path: "~/archive.db"
`
	cfg, err := LoadConfig(writeConfig(t, body))
	if err != nil {
		t.Fatalf("LoadConfig: %v", err)
	}

	home, err := os.UserHomeDir()
	if err != nil || home == "" {
		t.Fatalf("UserHomeDir unavailable for test: %v", err)
	}

	if got, want := cfg.DataDir, filepath.Join(home, "taskhist-data"); got != want {
		t.Fatalf("expected expanded data_dir %q, got %q", want, got)
	}
	if got, want := cfg.History.Path, filepath.Join(home, "exports", "operational.xml"); got != want {
		t.Fatalf("expected expanded history.path %q, got %q", want, got)
	}
	if got, want := cfg.Tasks.InventoryDir, filepath.Join(home, "inventory"); got != want {
		t.Fatalf("expected expanded tasks.inventory_dir %q, got %q", want, got)
	}
	if got, want := cfg.Archive.Path, filepath.Join(home, "archive.db"); got != want {
		t.Fatalf("expected expanded archive.path %q, got %q", want, got)
	}
}

func TestLoadConfigTimeouts(t *testing.T) {
	t.Parallel()

	cfg, err := LoadConfig(writeConfig(t, "history:\n  timeout: 30s\n"))
	if err != nil {
		t.Fatalf("LoadConfig: %v", err)
	}
	d, err := cfg.HistoryTimeout()
	if err != nil || d.Seconds() != 30 {
		t.Fatalf("expected 30s history timeout, got %v (%v)", d, err)
	}
	if d, _ := cfg.TasksTimeout(); d != 0 {
		t.Fatalf("expected no tasks timeout, got %v", d)
	}
}

func TestLoadConfigRejectsInvalid(t *testing.T) {
	t.Parallel()

	cases := map[string]string{
		"history source": "history:\n  source: registry\n",
		"malformed":      "history:\n  malformed: ignore\n",
		"tasks source":   "tasks:\n  source: com\n",
		"inventory":      "tasks:\n  source: inventory\n",
		"timeout":        "tasks:\n  timeout: soon\n",
	}
	for name, body := range cases {
		if _, err := LoadConfig(writeConfig(t, body)); err == nil {
			t.Fatalf("%s: expected validation error", name)
		}
	}
}

func TestLoadConfigArchiveDisabled(t *testing.T) {
	t.Parallel()

	cfg, err := LoadConfig(writeConfig(t, "archive:\n  enabled: false\n"))
	if err != nil {
		t.Fatalf("LoadConfig: %v", err)
	}
	if cfg.Archive.IsEnabled() {
		t.Fatal("expected archive disabled")
	}
}

func TestLoadMissingExplicitFile(t *testing.T) {
	t.Parallel()

	_, err := Load(filepath.Join(t.TempDir(), "missing.yaml"))
	if err == nil || !strings.Contains(err.Error(), "missing.yaml") {
		t.Fatalf("expected error naming the missing file, got %v", err)
	}
}

func TestDefault(t *testing.T) {
	t.Parallel()

	cfg := Default()
	if err := cfg.Validate(); err != nil {
		t.Fatalf("default config invalid: %v", err)
	}
}
