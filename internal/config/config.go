package config

import (
	"bytes"
	"errors"
	"fmt"
	"io"
	"os"
	"path/filepath"
	"strings"
	"time"

	"github.com/caarlos0/env/v11"
	"gopkg.in/yaml.v3"

	"github.com/Aman-CERP/contentindex/internal/lifecycle"
	"github.com/Aman-CERP/contentindex/internal/logging"
	"github.com/Aman-CERP/contentindex/internal/valueset"
)

// ProjectFileNames are the config file names looked up in the working directory.
var ProjectFileNames = []string{".contentindex.yaml", ".contentindex.yml"}

// Backends are the accepted index backend names. Empty selects the default.
var Backends = []string{"bleve", "sqlite"}

// Default index names.
const (
	InternalIndex = "InternalIndex"
	ExternalIndex = "ExternalIndex"
	MembersIndex  = "MembersIndex"
)

// Config represents the complete contentindex configuration.
type Config struct {
	Version      int           `yaml:"version" json:"version"`
	DataDir      string        `yaml:"data_dir" json:"data_dir"`
	MainInstance string        `yaml:"main_instance" json:"main_instance"`
	Content      ContentConfig `yaml:"content" json:"content"`
	Indexes      []IndexConfig `yaml:"indexes" json:"indexes"`
	Worker       WorkerConfig  `yaml:"worker" json:"worker"`
	Breaker      BreakerConfig `yaml:"breaker" json:"breaker"`
	Access       AccessConfig  `yaml:"access" json:"access"`
	Logging      LoggingConfig `yaml:"logging" json:"logging"`
}

// ContentConfig locates the content database.
type ContentConfig struct {
	// Database is the SQLite file. Empty means <data_dir>/content.db.
	Database string `yaml:"database" json:"database"`
}

// IndexConfig declares one named index.
type IndexConfig struct {
	Name string `yaml:"name" json:"name"`
	// Backend is "bleve" (default) or "sqlite".
	Backend string `yaml:"backend" json:"backend"`
	// Path is the index location without extension. Empty means <data_dir>/indexes/<name>.
	Path string `yaml:"path" json:"path"`
	// Categories limits the entity categories routed to the index. Empty accepts all.
	Categories []string `yaml:"categories,omitempty" json:"categories,omitempty"`

	EnableDefaultEventHandler bool     `yaml:"enable_default_event_handler" json:"enable_default_event_handler"`
	PublishedValuesOnly       bool     `yaml:"published_values_only" json:"published_values_only"`
	IncludeItemTypes          []string `yaml:"include_item_types,omitempty" json:"include_item_types,omitempty"`
	ExcludeItemTypes          []string `yaml:"exclude_item_types,omitempty" json:"exclude_item_types,omitempty"`
	IncludeFields             []string `yaml:"include_fields,omitempty" json:"include_fields,omitempty"`
	ExcludeFields             []string `yaml:"exclude_fields,omitempty" json:"exclude_fields,omitempty"`
	ParentID                  int      `yaml:"parent_id" json:"parent_id"`
	IncludeProtected          bool     `yaml:"include_protected" json:"include_protected"`
}

// WorkerConfig configures the background index worker.
type WorkerConfig struct {
	Workers        int    `yaml:"workers" json:"workers"`
	QueueSize      int    `yaml:"queue_size" json:"queue_size"`
	ItemTimeout    string `yaml:"item_timeout" json:"item_timeout"`
	EnqueueTimeout string `yaml:"enqueue_timeout" json:"enqueue_timeout"`
}

// BreakerConfig configures the per-index circuit breakers.
type BreakerConfig struct {
	MaxFailures  int    `yaml:"max_failures" json:"max_failures"`
	ResetTimeout string `yaml:"reset_timeout" json:"reset_timeout"`
}

// AccessConfig configures the protected-path cache.
type AccessConfig struct {
	CacheSize int `yaml:"cache_size" json:"cache_size"`
}

// LoggingConfig configures logging for long-running commands.
type LoggingConfig struct {
	Level     string `yaml:"level" json:"level"`
	File      string `yaml:"file" json:"file"`
	MaxSizeMB int    `yaml:"max_size_mb" json:"max_size_mb"`
	MaxFiles  int    `yaml:"max_files" json:"max_files"`
	Stderr    bool   `yaml:"stderr" json:"stderr"`
}

// envOverrides are read from CONTENTINDEX_* variables.
type envOverrides struct {
	LogLevel     string        `env:"LOG_LEVEL"`
	DataDir      string        `env:"DATA_DIR"`
	Database     string        `env:"DATABASE"`
	Workers      int           `env:"WORKERS"`
	QueueSize    int           `env:"QUEUE_SIZE"`
	ItemTimeout  time.Duration `env:"ITEM_TIMEOUT"`
	MainInstance string        `env:"MAIN_INSTANCE"`
}

// EnvPrefix prefixes every environment override.
const EnvPrefix = "CONTENTINDEX_"

// NewConfig creates a Config with defaults.
func NewConfig() *Config {
	return &Config{
		Version:      1,
		DataDir:      defaultDataDir(),
		MainInstance: string(lifecycle.RoleAuto),
		Indexes:      DefaultIndexes(),
		Worker: WorkerConfig{
			Workers:        2,
			QueueSize:      1024,
			ItemTimeout:    "5s",
			EnqueueTimeout: "50ms",
		},
		Breaker: BreakerConfig{
			MaxFailures:  5,
			ResetTimeout: "30s",
		},
		Access: AccessConfig{
			CacheSize: 4096,
		},
		Logging: LoggingConfig{
			Level:     "info",
			MaxSizeMB: 10,
			MaxFiles:  5,
			Stderr:    false,
		},
	}
}

// DefaultIndexes returns the three indexes of a stock install.
func DefaultIndexes() []IndexConfig {
	return []IndexConfig{
		{
			Name:                      InternalIndex,
			Categories:                []string{string(valueset.CategoryContent), string(valueset.CategoryMedia)},
			EnableDefaultEventHandler: true,
			IncludeProtected:          true,
		},
		{
			Name:                      ExternalIndex,
			Categories:                []string{string(valueset.CategoryContent), string(valueset.CategoryMedia)},
			EnableDefaultEventHandler: true,
			PublishedValuesOnly:       true,
		},
		{
			Name:                      MembersIndex,
			Categories:                []string{string(valueset.CategoryMember)},
			EnableDefaultEventHandler: true,
		},
	}
}

func defaultDataDir() string {
	home, err := os.UserHomeDir()
	if err != nil {
		return filepath.Join(os.TempDir(), ".contentindex")
	}
	return filepath.Join(home, ".contentindex")
}

// GetUserConfigPath returns the path of the user configuration file:
// $XDG_CONFIG_HOME/contentindex/config.yaml or ~/.config/contentindex/config.yaml.
func GetUserConfigPath() string {
	if xdg := os.Getenv("XDG_CONFIG_HOME"); xdg != "" {
		return filepath.Join(xdg, "contentindex", "config.yaml")
	}
	home, err := os.UserHomeDir()
	if err != nil {
		return filepath.Join(os.TempDir(), ".config", "contentindex", "config.yaml")
	}
	return filepath.Join(home, ".config", "contentindex", "config.yaml")
}

// Load loads configuration for the project in dir. Precedence, lowest first:
//  1. Defaults
//  2. User config (GetUserConfigPath)
//  3. Project config (.contentindex.yaml in dir)
//  4. Environment variables (CONTENTINDEX_*)
func Load(dir string) (*Config, error) {
	return load(func() (string, error) {
		for _, name := range ProjectFileNames {
			path := filepath.Join(dir, name)
			if fileExists(path) {
				return path, nil
			}
		}
		return "", nil
	})
}

// LoadFile is Load with an explicit project file, which must exist.
func LoadFile(path string) (*Config, error) {
	return load(func() (string, error) {
		if !fileExists(path) {
			return "", fmt.Errorf("config file not found: %s", path)
		}
		return path, nil
	})
}

func load(projectFile func() (string, error)) (*Config, error) {
	cfg := NewConfig()

	if user := GetUserConfigPath(); fileExists(user) {
		if err := cfg.loadYAML(user); err != nil {
			return nil, fmt.Errorf("failed to load user config: %w", err)
		}
	}

	path, err := projectFile()
	if err != nil {
		return nil, err
	}
	if path != "" {
		if err := cfg.loadYAML(path); err != nil {
			return nil, err
		}
	}

	if err := cfg.applyEnvOverrides(); err != nil {
		return nil, err
	}
	return cfg, nil
}

// loadYAML decodes path over c. Keys absent from the file keep their current
// values; a present indexes list replaces the current one.
func (c *Config) loadYAML(path string) error {
	data, err := os.ReadFile(path)
	if err != nil {
		return fmt.Errorf("failed to read %s: %w", path, err)
	}
	if err := c.decode(bytes.NewReader(data)); err != nil {
		return fmt.Errorf("failed to parse %s: %w", path, err)
	}
	return nil
}

func (c *Config) decode(r io.Reader) error {
	dec := yaml.NewDecoder(r)
	dec.KnownFields(true)
	if err := dec.Decode(c); err != nil && !errors.Is(err, io.EOF) {
		return err
	}
	return nil
}

// applyEnvOverrides applies CONTENTINDEX_* environment variables.
func (c *Config) applyEnvOverrides() error {
	var o envOverrides
	if err := env.ParseWithOptions(&o, env.Options{Prefix: EnvPrefix}); err != nil {
		return fmt.Errorf("invalid environment: %w", err)
	}

	if o.LogLevel != "" {
		c.Logging.Level = o.LogLevel
	}
	if o.DataDir != "" {
		c.DataDir = o.DataDir
	}
	if o.Database != "" {
		c.Content.Database = o.Database
	}
	if o.Workers > 0 {
		c.Worker.Workers = o.Workers
	}
	if o.QueueSize > 0 {
		c.Worker.QueueSize = o.QueueSize
	}
	if o.ItemTimeout > 0 {
		c.Worker.ItemTimeout = o.ItemTimeout.String()
	}
	if o.MainInstance != "" {
		c.MainInstance = o.MainInstance
	}
	return nil
}

// Validate reports the first invalid setting.
func (c *Config) Validate() error {
	if c.DataDir == "" {
		return fmt.Errorf("data_dir must not be empty")
	}
	if _, err := lifecycle.ParseRole(c.MainInstance); err != nil {
		return fmt.Errorf("main_instance: %w", err)
	}

	seen := make(map[string]bool, len(c.Indexes))
	for i, idx := range c.Indexes {
		if idx.Name == "" {
			return fmt.Errorf("indexes[%d].name must not be empty", i)
		}
		if seen[strings.ToLower(idx.Name)] {
			return fmt.Errorf("duplicate index name %q", idx.Name)
		}
		seen[strings.ToLower(idx.Name)] = true

		if idx.Backend != "" && !contains(Backends, idx.Backend) {
			return fmt.Errorf("indexes[%d].backend must be one of %s, got %q", i, strings.Join(Backends, ", "), idx.Backend)
		}
		if _, err := idx.Configuration(); err != nil {
			return fmt.Errorf("indexes[%d]: %w", i, err)
		}
	}

	if c.Worker.Workers <= 0 {
		return fmt.Errorf("worker.workers must be positive, got %d", c.Worker.Workers)
	}
	if c.Worker.QueueSize <= 0 {
		return fmt.Errorf("worker.queue_size must be positive, got %d", c.Worker.QueueSize)
	}
	durations := map[string]string{
		"worker.item_timeout":    c.Worker.ItemTimeout,
		"worker.enqueue_timeout": c.Worker.EnqueueTimeout,
		"breaker.reset_timeout":  c.Breaker.ResetTimeout,
	}
	for name, value := range durations {
		if _, err := parseDuration(value); err != nil {
			return fmt.Errorf("%s: %w", name, err)
		}
	}
	if c.Breaker.MaxFailures < 0 {
		return fmt.Errorf("breaker.max_failures must be non-negative, got %d", c.Breaker.MaxFailures)
	}
	if c.Access.CacheSize < 0 {
		return fmt.Errorf("access.cache_size must be non-negative, got %d", c.Access.CacheSize)
	}
	if !logging.ValidLevel(c.Logging.Level) {
		return fmt.Errorf("logging.level must be 'debug', 'info', 'warn', or 'error', got %s", c.Logging.Level)
	}
	return nil
}

// Configuration converts the declaration into the validator's configuration.
func (i IndexConfig) Configuration() (valueset.IndexConfiguration, error) {
	cats := make([]valueset.Category, 0, len(i.Categories))
	for _, name := range i.Categories {
		cat, ok := valueset.ParseCategory(name)
		if !ok {
			return valueset.IndexConfiguration{}, fmt.Errorf("unknown category %q", name)
		}
		cats = append(cats, cat)
	}
	if i.ParentID < 0 && i.ParentID != valueset.RootID {
		return valueset.IndexConfiguration{}, fmt.Errorf("parent_id must be a node id, got %d", i.ParentID)
	}
	return valueset.IndexConfiguration{
		EnableDefaultEventHandler: i.EnableDefaultEventHandler,
		PublishedValuesOnly:       i.PublishedValuesOnly,
		Categories:                cats,
		IncludeItemTypes:          i.IncludeItemTypes,
		ExcludeItemTypes:          i.ExcludeItemTypes,
		IncludeFields:             i.IncludeFields,
		ExcludeFields:             i.ExcludeFields,
		ParentID:                  i.ParentID,
		IncludeProtected:          i.IncludeProtected,
	}, nil
}

// DatabasePath returns the content database location.
func (c *Config) DatabasePath() string {
	if c.Content.Database != "" {
		return c.Content.Database
	}
	return filepath.Join(c.DataDir, "content.db")
}

// Durations returns the parsed worker and breaker timeouts. Call after Validate.
func (c *Config) Durations() (itemTimeout, enqueueTimeout, breakerReset time.Duration) {
	itemTimeout, _ = parseDuration(c.Worker.ItemTimeout)
	enqueueTimeout, _ = parseDuration(c.Worker.EnqueueTimeout)
	breakerReset, _ = parseDuration(c.Breaker.ResetTimeout)
	return
}

// LogConfig returns the logging configuration. An empty file means the
// default log path.
func (c *Config) LogConfig() logging.Config {
	path := c.Logging.File
	if path == "" {
		path = logging.DefaultLogPath()
	}
	return logging.Config{
		Level:         c.Logging.Level,
		FilePath:      path,
		MaxSizeMB:     c.Logging.MaxSizeMB,
		MaxFiles:      c.Logging.MaxFiles,
		WriteToStderr: c.Logging.Stderr,
	}
}

// WriteYAML writes the configuration to a YAML file.
func (c *Config) WriteYAML(path string) error {
	data, err := yaml.Marshal(c)
	if err != nil {
		return fmt.Errorf("failed to marshal config: %w", err)
	}
	if err := os.WriteFile(path, data, 0644); err != nil {
		return fmt.Errorf("failed to write config file: %w", err)
	}
	return nil
}

// parseDuration parses a duration; empty means zero (use the default).
func parseDuration(s string) (time.Duration, error) {
	if s == "" {
		return 0, nil
	}
	d, err := time.ParseDuration(s)
	if err != nil {
		return 0, err
	}
	if d < 0 {
		return 0, fmt.Errorf("duration must not be negative, got %s", s)
	}
	return d, nil
}

func contains(list []string, s string) bool {
	for _, item := range list {
		if item == s {
			return true
		}
	}
	return false
}

func fileExists(path string) bool {
	info, err := os.Stat(path)
	return err == nil && !info.IsDir()
}
