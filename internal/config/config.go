package config

import (
	"fmt"
	"os"
	"path/filepath"
	"runtime"
	"strconv"
	"strings"

	"gopkg.in/yaml.v3"
)

// WalSyncMode selects the WAL fsync strategy.
type WalSyncMode string

const (
	WalSyncPerWrite WalSyncMode = "per_write"
	WalSyncBatched  WalSyncMode = "batched"
)

// Config represents the complete vectordb engine configuration.
// It mirrors the configuration options recognized by the core (spec §6).
type Config struct {
	Version int `yaml:"version" json:"version"`

	// DataDir is the root directory for all collections.
	DataDir string `yaml:"data_dir" json:"data_dir"`

	WAL        WALConfig        `yaml:"wal" json:"wal"`
	Store      StoreConfig      `yaml:"store" json:"store"`
	HNSW       HNSWConfig       `yaml:"hnsw" json:"hnsw"`
	Search     SearchConfig     `yaml:"search" json:"search"`
	Server     ServerConfig     `yaml:"server" json:"server"`
	Logging    LoggingConfig    `yaml:"logging" json:"logging"`
	Compaction CompactionConfig `yaml:"compaction" json:"compaction"`
}

// WALConfig configures the write-ahead log fsync strategy.
type WALConfig struct {
	// SyncMode selects per_write (fsync after every record) or batched
	// (fsync on a timer, see FsyncIntervalMs).
	SyncMode WalSyncMode `yaml:"sync_mode" json:"sync_mode"`
	// FsyncIntervalMs is the fsync period when SyncMode is "batched".
	FsyncIntervalMs int `yaml:"fsync_interval_ms" json:"fsync_interval_ms"`
}

// StoreConfig configures the mmap-backed vector store.
type StoreConfig struct {
	// InitialCapacity is the initial slot count for newly created collections.
	InitialCapacity int `yaml:"memory_map_initial_capacity" json:"memory_map_initial_capacity"`
}

// HNSWConfig configures per-collection HNSW defaults, overridable at
// create_collection time.
type HNSWConfig struct {
	M              int `yaml:"m" json:"m"`
	EfConstruction int `yaml:"ef_construction" json:"ef_construction"`
	EfSearchDefault int `yaml:"ef_search_default" json:"ef_search_default"`
	MaxLayer       int `yaml:"max_layer" json:"max_layer"`
}

// SearchConfig configures search-time tuning.
type SearchConfig struct {
	// FilterOverfetch is the multiplier applied to ef when a post-filter is
	// supplied, to compensate for candidates dropped by the filter.
	FilterOverfetch float64 `yaml:"search_filter_overfetch" json:"search_filter_overfetch"`
}

// ServerConfig configures the worker pool and REST collaborator.
type ServerConfig struct {
	// WorkerThreads bounds the number of concurrently in-flight search calls
	// dispatched by the REST layer.
	WorkerThreads int    `yaml:"worker_threads" json:"worker_threads"`
	Host          string `yaml:"host" json:"host"`
	Port          int    `yaml:"port" json:"port"`
}

// LoggingConfig configures the engine's structured logging.
type LoggingConfig struct {
	Level string `yaml:"level" json:"level"`
	Debug bool   `yaml:"debug" json:"debug"`
}

// CompactionConfig holds tombstone-compaction settings. They are loaded and
// validated here; no component of the engine reads them, and no compaction
// runs automatically.
type CompactionConfig struct {
	// Enabled records whether compaction is enabled (see CompactionConfig).
	Enabled bool `yaml:"enabled" json:"enabled"`
	// TombstoneThreshold is the tombstone ratio that triggers compaction
	// eligibility: tombstones/total > threshold.
	TombstoneThreshold float64 `yaml:"tombstone_threshold" json:"tombstone_threshold"`
	// MinTombstoneCount is the minimum tombstone count before compaction is
	// considered, to avoid compacting small collections with noisy ratios.
	MinTombstoneCount int `yaml:"min_tombstone_count" json:"min_tombstone_count"`
}

// NewConfig creates a new Config with sensible defaults.
func NewConfig() *Config {
	return &Config{
		Version: 1,
		DataDir: defaultDataDir(),
		WAL: WALConfig{
			SyncMode:        WalSyncPerWrite,
			FsyncIntervalMs: 100,
		},
		Store: StoreConfig{
			InitialCapacity: 1024,
		},
		HNSW: HNSWConfig{
			M:               16,
			EfConstruction:  200,
			EfSearchDefault: 64,
			MaxLayer:        16,
		},
		Search: SearchConfig{
			FilterOverfetch: 2.0,
		},
		Server: ServerConfig{
			WorkerThreads: runtime.NumCPU(),
			Host:          "127.0.0.1",
			Port:          8080,
		},
		Logging: LoggingConfig{
			Level: "info",
			Debug: false,
		},
		Compaction: CompactionConfig{
			Enabled:            true,
			TombstoneThreshold: 0.2,
			MinTombstoneCount:  100,
		},
	}
}

// defaultDataDir returns the default data directory (~/.vectordb/data/).
func defaultDataDir() string {
	home, err := os.UserHomeDir()
	if err != nil {
		return filepath.Join(os.TempDir(), ".vectordb", "data")
	}
	return filepath.Join(home, ".vectordb", "data")
}

// GetUserConfigPath returns the path to the user/global configuration file.
// It follows the XDG Base Directory specification:
//   - $XDG_CONFIG_HOME/vectordb/config.yaml (if XDG_CONFIG_HOME is set)
//   - ~/.config/vectordb/config.yaml (default)
func GetUserConfigPath() string {
	if xdg := os.Getenv("XDG_CONFIG_HOME"); xdg != "" {
		return filepath.Join(xdg, "vectordb", "config.yaml")
	}
	home, err := os.UserHomeDir()
	if err != nil {
		return filepath.Join(os.TempDir(), ".config", "vectordb", "config.yaml")
	}
	return filepath.Join(home, ".config", "vectordb", "config.yaml")
}

// GetUserConfigDir returns the directory containing the user configuration.
func GetUserConfigDir() string {
	return filepath.Dir(GetUserConfigPath())
}

// UserConfigExists returns true if the user configuration file exists.
func UserConfigExists() bool {
	return fileExists(GetUserConfigPath())
}

// loadUserConfig loads the user/global configuration file if it exists.
// Returns nil config and nil error if the file doesn't exist (that's OK).
func loadUserConfig() (*Config, error) {
	configPath := GetUserConfigPath()

	if !fileExists(configPath) {
		return nil, nil
	}

	cfg := NewConfig()
	if err := cfg.loadYAML(configPath); err != nil {
		return nil, fmt.Errorf("failed to load user config from %s: %w", configPath, err)
	}

	return cfg, nil
}

// Load loads configuration from the specified directory.
// It applies configuration in order of increasing precedence:
//  1. Hardcoded defaults
//  2. User/global config (~/.config/vectordb/config.yaml)
//  3. Project config (.vectordb.yaml in the given directory)
//  4. Environment variables (VECTORDB_*)
func Load(dir string) (*Config, error) {
	cfg := NewConfig()

	if userCfg, err := loadUserConfig(); err != nil {
		return nil, fmt.Errorf("failed to load user config: %w", err)
	} else if userCfg != nil {
		cfg.mergeWith(userCfg)
	}

	if err := cfg.loadFromFile(dir); err != nil {
		return nil, err
	}

	cfg.applyEnvOverrides()

	if err := cfg.Validate(); err != nil {
		return nil, fmt.Errorf("invalid configuration: %w", err)
	}

	return cfg, nil
}

// loadFromFile attempts to load configuration from .vectordb.yaml or .vectordb.yml.
func (c *Config) loadFromFile(dir string) error {
	yamlPath := filepath.Join(dir, ".vectordb.yaml")
	if _, err := os.Stat(yamlPath); err == nil {
		return c.loadYAML(yamlPath)
	}

	ymlPath := filepath.Join(dir, ".vectordb.yml")
	if _, err := os.Stat(ymlPath); err == nil {
		return c.loadYAML(ymlPath)
	}

	return nil
}

// loadYAML loads and merges configuration from a YAML file.
func (c *Config) loadYAML(path string) error {
	data, err := os.ReadFile(path)
	if err != nil {
		return fmt.Errorf("failed to read config file %s: %w", path, err)
	}

	var parsed Config
	if err := yaml.Unmarshal(data, &parsed); err != nil {
		return fmt.Errorf("failed to parse config file %s: %w", path, err)
	}

	c.mergeWith(&parsed)
	return nil
}

// mergeWith merges non-zero values from other into c.
func (c *Config) mergeWith(other *Config) {
	if other.Version != 0 {
		c.Version = other.Version
	}
	if other.DataDir != "" {
		c.DataDir = other.DataDir
	}

	if other.WAL.SyncMode != "" {
		c.WAL.SyncMode = other.WAL.SyncMode
	}
	if other.WAL.FsyncIntervalMs != 0 {
		c.WAL.FsyncIntervalMs = other.WAL.FsyncIntervalMs
	}

	if other.Store.InitialCapacity != 0 {
		c.Store.InitialCapacity = other.Store.InitialCapacity
	}

	if other.HNSW.M != 0 {
		c.HNSW.M = other.HNSW.M
	}
	if other.HNSW.EfConstruction != 0 {
		c.HNSW.EfConstruction = other.HNSW.EfConstruction
	}
	if other.HNSW.EfSearchDefault != 0 {
		c.HNSW.EfSearchDefault = other.HNSW.EfSearchDefault
	}
	if other.HNSW.MaxLayer != 0 {
		c.HNSW.MaxLayer = other.HNSW.MaxLayer
	}

	if other.Search.FilterOverfetch != 0 {
		c.Search.FilterOverfetch = other.Search.FilterOverfetch
	}

	if other.Server.WorkerThreads != 0 {
		c.Server.WorkerThreads = other.Server.WorkerThreads
	}
	if other.Server.Host != "" {
		c.Server.Host = other.Server.Host
	}
	if other.Server.Port != 0 {
		c.Server.Port = other.Server.Port
	}

	if other.Logging.Level != "" {
		c.Logging.Level = other.Logging.Level
	}
	if other.Logging.Debug {
		c.Logging.Debug = other.Logging.Debug
	}

	if other.Compaction.TombstoneThreshold != 0 || other.Compaction.MinTombstoneCount != 0 {
		c.Compaction.Enabled = other.Compaction.Enabled
	}
	if other.Compaction.TombstoneThreshold != 0 {
		c.Compaction.TombstoneThreshold = other.Compaction.TombstoneThreshold
	}
	if other.Compaction.MinTombstoneCount != 0 {
		c.Compaction.MinTombstoneCount = other.Compaction.MinTombstoneCount
	}
}

// applyEnvOverrides applies VECTORDB_* environment variable overrides.
func (c *Config) applyEnvOverrides() {
	if v := os.Getenv("VECTORDB_DATA_DIR"); v != "" {
		c.DataDir = v
	}
	if v := os.Getenv("VECTORDB_WAL_SYNC_MODE"); v != "" {
		c.WAL.SyncMode = WalSyncMode(v)
	}
	if v := os.Getenv("VECTORDB_WAL_FSYNC_INTERVAL_MS"); v != "" {
		if n, err := strconv.Atoi(v); err == nil && n > 0 {
			c.WAL.FsyncIntervalMs = n
		}
	}
	if v := os.Getenv("VECTORDB_HNSW_M"); v != "" {
		if n, err := strconv.Atoi(v); err == nil && n > 0 {
			c.HNSW.M = n
		}
	}
	if v := os.Getenv("VECTORDB_HNSW_EF_CONSTRUCTION"); v != "" {
		if n, err := strconv.Atoi(v); err == nil && n > 0 {
			c.HNSW.EfConstruction = n
		}
	}
	if v := os.Getenv("VECTORDB_SEARCH_FILTER_OVERFETCH"); v != "" {
		if f, err := parseFloat64(v); err == nil && f >= 1.0 {
			c.Search.FilterOverfetch = f
		}
	}
	if v := os.Getenv("VECTORDB_WORKER_THREADS"); v != "" {
		if n, err := strconv.Atoi(v); err == nil && n > 0 {
			c.Server.WorkerThreads = n
		}
	}
	if v := os.Getenv("VECTORDB_LOG_LEVEL"); v != "" {
		c.Logging.Level = v
	}
	if v := os.Getenv("VECTORDB_DEBUG"); v != "" {
		c.Logging.Debug = strings.ToLower(v) == "true" || v == "1"
	}
	if v := os.Getenv("VECTORDB_COMPACTION_ENABLED"); v != "" {
		c.Compaction.Enabled = strings.ToLower(v) == "true" || v == "1"
	}
}

// parseFloat64 parses a string to float64, used for config parsing.
func parseFloat64(s string) (float64, error) {
	var f float64
	_, err := fmt.Sscanf(strings.TrimSpace(s), "%f", &f)
	return f, err
}

// fileExists checks if a file exists and is not a directory.
func fileExists(path string) bool {
	info, err := os.Stat(path)
	if err != nil {
		return false
	}
	return !info.IsDir()
}

// Validate validates the configuration and returns an error if invalid.
func (c *Config) Validate() error {
	if c.DataDir == "" {
		return fmt.Errorf("data_dir must not be empty")
	}

	switch c.WAL.SyncMode {
	case WalSyncPerWrite, WalSyncBatched:
	default:
		return fmt.Errorf("wal.sync_mode must be 'per_write' or 'batched', got %q", c.WAL.SyncMode)
	}
	if c.WAL.SyncMode == WalSyncBatched && c.WAL.FsyncIntervalMs <= 0 {
		return fmt.Errorf("wal.fsync_interval_ms must be positive when sync_mode is batched, got %d", c.WAL.FsyncIntervalMs)
	}

	if c.Store.InitialCapacity <= 0 {
		return fmt.Errorf("store.memory_map_initial_capacity must be positive, got %d", c.Store.InitialCapacity)
	}

	if c.HNSW.M <= 0 {
		return fmt.Errorf("hnsw.m must be positive, got %d", c.HNSW.M)
	}
	if c.HNSW.EfConstruction <= 0 {
		return fmt.Errorf("hnsw.ef_construction must be positive, got %d", c.HNSW.EfConstruction)
	}
	if c.HNSW.EfSearchDefault <= 0 {
		return fmt.Errorf("hnsw.ef_search_default must be positive, got %d", c.HNSW.EfSearchDefault)
	}
	if c.HNSW.MaxLayer <= 0 {
		return fmt.Errorf("hnsw.max_layer must be positive, got %d", c.HNSW.MaxLayer)
	}

	if c.Search.FilterOverfetch < 1.0 {
		return fmt.Errorf("search.search_filter_overfetch must be >= 1.0, got %f", c.Search.FilterOverfetch)
	}

	if c.Server.WorkerThreads <= 0 {
		return fmt.Errorf("server.worker_threads must be positive, got %d", c.Server.WorkerThreads)
	}

	validLevels := map[string]bool{"debug": true, "info": true, "warn": true, "error": true}
	if !validLevels[strings.ToLower(c.Logging.Level)] {
		return fmt.Errorf("logging.level must be 'debug', 'info', 'warn', or 'error', got %s", c.Logging.Level)
	}

	if c.Compaction.TombstoneThreshold < 0 || c.Compaction.TombstoneThreshold > 1 {
		return fmt.Errorf("compaction.tombstone_threshold must be between 0 and 1, got %f", c.Compaction.TombstoneThreshold)
	}

	return nil
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

// LoadUserConfig loads the user configuration file.
// Returns nil config and nil error if the file doesn't exist.
func LoadUserConfig() (*Config, error) {
	return loadUserConfig()
}
