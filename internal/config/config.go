package config

import (
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"strings"
	"time"

	"gopkg.in/yaml.v3"

	"github.com/patrickspencer/taskhist/internal/eventlog"
)

// HistoryConfig selects and tunes the operational log source.
type HistoryConfig struct {
	// Source is "auto", "file" or "wevtutil". "auto" reads Path as an XML
	// export when it ends in .xml and through wevtutil otherwise.
	Source    string `yaml:"source"`
	Path      string `yaml:"path"`
	Channel   string `yaml:"channel"`
	Wevtutil  string `yaml:"wevtutil"`
	Reverse   bool   `yaml:"reverse"`
	Malformed string `yaml:"malformed"`
	Timeout   string `yaml:"timeout"`
}

// TasksConfig selects where registered tasks are read from.
type TasksConfig struct {
	// Source is "powershell", "inventory" or "archive".
	Source       string `yaml:"source"`
	InventoryDir string `yaml:"inventory_dir"`
	PowerShell   string `yaml:"powershell"`
	Timeout      string `yaml:"timeout"`
}

// ArchiveConfig controls the SQLite history archive.
type ArchiveConfig struct {
	Enabled *bool  `yaml:"enabled"`
	Path    string `yaml:"path"`
}

// IsEnabled returns whether the archive is enabled. Defaults to true when
// unset.
func (c ArchiveConfig) IsEnabled() bool {
	if c.Enabled == nil {
		return true
	}
	return *c.Enabled
}

// CollectorConfig holds the cron schedules used by serve.
type CollectorConfig struct {
	HistorySchedule  string `yaml:"history_schedule"`
	SnapshotSchedule string `yaml:"snapshot_schedule"`
}

// Config is the top-level configuration parsed from taskhist.yaml.
type Config struct {
	Listen    string          `yaml:"listen"`
	DataDir   string          `yaml:"data_dir"`
	LogLevel  string          `yaml:"log_level"`
	LogFormat string          `yaml:"log_format"`
	History   HistoryConfig   `yaml:"history"`
	Tasks     TasksConfig     `yaml:"tasks"`
	Archive   ArchiveConfig   `yaml:"archive"`
	Collector CollectorConfig `yaml:"collector"`
}

// HistoryTimeout parses History.Timeout. Empty means no timeout.
func (c *Config) HistoryTimeout() (time.Duration, error) {
	return parseTimeout("history.timeout", c.History.Timeout)
}

// TasksTimeout parses Tasks.Timeout. Empty means no timeout.
func (c *Config) TasksTimeout() (time.Duration, error) {
	return parseTimeout("tasks.timeout", c.Tasks.Timeout)
}

func parseTimeout(field, value string) (time.Duration, error) {
	if value == "" {
		return 0, nil
	}
	d, err := time.ParseDuration(value)
	if err != nil {
		return 0, fmt.Errorf("%s: %w", field, err)
	}
	return d, nil
}

func applyDefaults(c *Config) {
	if c.Listen == "" {
		c.Listen = ":8080"
	}
	if c.DataDir == "" {
		c.DataDir = defaultDataDir()
	}
	c.DataDir = expandPath(c.DataDir)
	if c.LogLevel == "" {
		c.LogLevel = "info"
	}
	if c.LogFormat == "" {
		c.LogFormat = "console"
	}

	if c.History.Source == "" {
		c.History.Source = "auto"
	}
	if c.History.Path == "" && c.History.Source != "wevtutil" {
		c.History.Path = eventlog.DefaultLogPath
	}
	c.History.Path = expandPath(c.History.Path)
	if c.History.Channel == "" {
		c.History.Channel = eventlog.DefaultChannel
	}
	if c.History.Wevtutil == "" {
		c.History.Wevtutil = "wevtutil.exe"
	}
	if c.History.Malformed == "" {
		c.History.Malformed = "fail"
	}

	if c.Tasks.Source == "" {
		c.Tasks.Source = "powershell"
	}
	if c.Tasks.PowerShell == "" {
		c.Tasks.PowerShell = "powershell.exe"
	}
	c.Tasks.InventoryDir = expandPath(c.Tasks.InventoryDir)

	if c.Archive.Path == "" {
		c.Archive.Path = filepath.Join(c.DataDir, "taskhist.db")
	} else {
		c.Archive.Path = expandPath(c.Archive.Path)
	}
	if c.Archive.Enabled == nil {
		t := true
		c.Archive.Enabled = &t
	}

	if c.Collector.HistorySchedule == "" {
		c.Collector.HistorySchedule = "*/15 * * * *"
	}
	if c.Collector.SnapshotSchedule == "" {
		c.Collector.SnapshotSchedule = "@hourly"
	}
}

// Validate reports settings that cannot work.
func (c *Config) Validate() error {
	switch c.History.Source {
	case "auto", "file", "wevtutil":
	default:
		return fmt.Errorf("history.source: unknown source %q", c.History.Source)
	}
	switch c.History.Malformed {
	case "fail", "skip":
	default:
		return fmt.Errorf("history.malformed: must be fail or skip, got %q", c.History.Malformed)
	}
	switch c.Tasks.Source {
	case "powershell", "archive":
	case "inventory":
		if c.Tasks.InventoryDir == "" {
			return errors.New("tasks.inventory_dir is required when tasks.source is inventory")
		}
	default:
		return fmt.Errorf("tasks.source: unknown source %q", c.Tasks.Source)
	}
	if _, err := c.HistoryTimeout(); err != nil {
		return err
	}
	if _, err := c.TasksTimeout(); err != nil {
		return err
	}
	return nil
}

func defaultDataDir() string {
	home, err := os.UserHomeDir()
	if err != nil || strings.TrimSpace(home) == "" {
		return "./data"
	}
	return filepath.Join(home, ".local", "share", "taskhist")
}

// DefaultPath is the config file read when --config is not given.
func DefaultPath() string {
	home, err := os.UserHomeDir()
	if err != nil || strings.TrimSpace(home) == "" {
		return "taskhist.yaml"
	}
	return filepath.Join(home, ".config", "taskhist", "taskhist.yaml")
}

func expandPath(value string) string {
	v := strings.TrimSpace(value)
	if v == "" {
		return value
	}

	v = os.ExpandEnv(v)

	home, err := os.UserHomeDir()
	if err != nil || strings.TrimSpace(home) == "" {
		return v
	}

	if v == "~" {
		return home
	}
	if strings.HasPrefix(v, "~/") {
		return filepath.Join(home, v[2:])
	}
	if strings.HasPrefix(v, "~\\") {
		return filepath.Join(home, v[2:])
	}
	return v
}

// Default returns the configuration used when no file is present.
func Default() *Config {
	var cfg Config
	applyDefaults(&cfg)
	return &cfg
}

// LoadConfig reads a YAML configuration file from path and returns
// a Config with defaults applied for any unset fields.
func LoadConfig(path string) (*Config, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, err
	}

	var cfg Config
	if err := yaml.Unmarshal(data, &cfg); err != nil {
		return nil, err
	}

	applyDefaults(&cfg)
	if err := cfg.Validate(); err != nil {
		return nil, fmt.Errorf("%s: %w", path, err)
	}
	return &cfg, nil
}

// Load reads path, falling back to Default when path is the default location
// and no file exists there.
func Load(path string) (*Config, error) {
	explicit := path != ""
	if !explicit {
		path = DefaultPath()
	}
	cfg, err := LoadConfig(path)
	if err != nil && !explicit && errors.Is(err, os.ErrNotExist) {
		return Default(), nil
	}
	return cfg, err
}
