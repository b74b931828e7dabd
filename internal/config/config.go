// Package config loads the cache subsystem's tunables from a YAML file,
// falling back to compiled-in defaults for anything the file omits.
// Grounded on utils/conn.go's getEnv convention and on
// smart_cache.py's _load_config (defaults merged with an optional
// on-disk override, tolerant of a missing file).
package config

import (
	"fmt"
	"os"
	"time"

	"gopkg.in/yaml.v3"

	"github.com/Archerouyang/project-alpha/internal/pipelineerr"
)

// DiskBackend selects the TieredCache's disk-tier implementation.
type DiskBackend string

const (
	DiskBackendFile  DiskBackend = "file"
	DiskBackendRedis DiskBackend = "redis"
)

// CacheConfig is the validated set of cache tunables. Durations are
// stored as seconds in the YAML file (matching smart_cache.py's
// config.yaml) and converted to time.Duration by Seconds accessors.
type CacheConfig struct {
	DataTTLSeconds     int64       `yaml:"data_ttl_seconds"`
	ChartTTLSeconds    int64       `yaml:"chart_ttl_seconds"`
	AnalysisTTLSeconds int64       `yaml:"analysis_ttl_seconds"`
	MaxMemoryEntries   int         `yaml:"max_memory_entries"`
	MaxDiskSizeMB      int64       `yaml:"max_disk_size_mb"`
	CleanupIntervalSec int64       `yaml:"cleanup_interval_seconds"`
	StoragePath        string      `yaml:"storage_path"`
	Enabled            bool        `yaml:"enabled"`
	DiskBackend        DiskBackend `yaml:"disk_backend"`
	RedisAddr          string      `yaml:"redis_addr"`
}

// Default returns the compiled-in defaults, matching smart_cache.py's
// DEFAULT_CONFIG: 5 minute data TTL, 10 minute chart TTL, 30 minute
// analysis TTL, 1000 in-memory entries, 500MB disk budget, an hourly
// sweep, and a local ./cache_data directory.
func Default() CacheConfig {
	return CacheConfig{
		DataTTLSeconds:     300,
		ChartTTLSeconds:    600,
		AnalysisTTLSeconds: 1800,
		MaxMemoryEntries:   1000,
		MaxDiskSizeMB:      500,
		CleanupIntervalSec: 3600,
		StoragePath:        "./cache_data",
		Enabled:            true,
		DiskBackend:        DiskBackendFile,
	}
}

// Load reads path and overlays it onto Default(). A missing file is not
// an error — it means "use the defaults," mirroring smart_cache.py
// tolerating an absent config.yaml. A malformed file, or a file whose
// values fail Validate, is a ConfigInvalid error and is meant to be
// fatal at startup.
func Load(path string) (CacheConfig, error) {
	cfg := Default()
	data, err := os.ReadFile(path)
	if err != nil {
		if os.IsNotExist(err) {
			return cfg, nil
		}
		return cfg, pipelineerr.Wrap(pipelineerr.ConfigInvalid, "config", err)
	}
	if err := yaml.Unmarshal(data, &cfg); err != nil {
		return cfg, pipelineerr.Wrap(pipelineerr.ConfigInvalid, "config", err)
	}
	if err := cfg.Validate(); err != nil {
		return cfg, pipelineerr.Wrap(pipelineerr.ConfigInvalid, "config", err)
	}
	return cfg, nil
}

// Validate enforces the startup invariants: all TTLs and sizes
// strictly positive, storage path non-empty, disk backend one of the
// two known values.
func (c CacheConfig) Validate() error {
	if c.DataTTLSeconds <= 0 || c.ChartTTLSeconds <= 0 || c.AnalysisTTLSeconds <= 0 {
		return fmt.Errorf("ttl values must be positive: data=%d chart=%d analysis=%d",
			c.DataTTLSeconds, c.ChartTTLSeconds, c.AnalysisTTLSeconds)
	}
	if c.MaxMemoryEntries <= 0 {
		return fmt.Errorf("max_memory_entries must be positive, got %d", c.MaxMemoryEntries)
	}
	if c.MaxDiskSizeMB <= 0 {
		return fmt.Errorf("max_disk_size_mb must be positive, got %d", c.MaxDiskSizeMB)
	}
	if c.CleanupIntervalSec <= 0 {
		return fmt.Errorf("cleanup_interval_seconds must be positive, got %d", c.CleanupIntervalSec)
	}
	if c.StoragePath == "" {
		return fmt.Errorf("storage_path must not be empty")
	}
	switch c.DiskBackend {
	case DiskBackendFile, DiskBackendRedis, "":
	default:
		return fmt.Errorf("disk_backend must be %q or %q, got %q", DiskBackendFile, DiskBackendRedis, c.DiskBackend)
	}
	if c.DiskBackend == DiskBackendRedis && c.RedisAddr == "" {
		return fmt.Errorf("redis_addr is required when disk_backend is %q", DiskBackendRedis)
	}
	return nil
}

// ResolvedDiskBackend returns DiskBackendFile when the field was left
// at its zero value, so callers never have to special-case "".
func (c CacheConfig) ResolvedDiskBackend() DiskBackend {
	if c.DiskBackend == "" {
		return DiskBackendFile
	}
	return c.DiskBackend
}

func (c CacheConfig) DataTTL() time.Duration     { return time.Duration(c.DataTTLSeconds) * time.Second }
func (c CacheConfig) ChartTTL() time.Duration    { return time.Duration(c.ChartTTLSeconds) * time.Second }
func (c CacheConfig) AnalysisTTL() time.Duration { return time.Duration(c.AnalysisTTLSeconds) * time.Second }
func (c CacheConfig) CleanupInterval() time.Duration {
	return time.Duration(c.CleanupIntervalSec) * time.Second
}

// TTLFor returns the configured TTL for a bucket.
func (c CacheConfig) TTLFor(bucket string) time.Duration {
	switch bucket {
	case "data":
		return c.DataTTL()
	case "chart":
		return c.ChartTTL()
	case "analysis":
		return c.AnalysisTTL()
	default:
		return c.DataTTL()
	}
}

// getEnv reads an environment variable with a fallback default, the
// same convention utils/conn.go uses throughout.
func getEnv(key, fallback string) string {
	if v, ok := os.LookupEnv(key); ok && v != "" {
		return v
	}
	return fallback
}

// EnvPolygonKey, EnvGeminiKey and EnvDatabaseURL are the environment
// variables the process-level wiring (cmd/reportgen) reads for
// external credentials, matching the POLYGON_API_KEY /
// GEMINI_API_KEY / DB_* convention.
func EnvPolygonKey() string  { return getEnv("POLYGON_API_KEY", "") }
func EnvGeminiKey() string   { return getEnv("GEMINI_API_KEY", "") }
func EnvDatabaseURL() string { return getEnv("DATABASE_URL", "") }
func EnvRedisAddr() string   { return getEnv("REDIS_ADDR", "localhost:6379") }
