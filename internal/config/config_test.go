package config

import (
	"os"
	"path/filepath"
	"testing"
)

func TestLoadMissingFileReturnsDefaults(t *testing.T) {
	cfg, err := Load(filepath.Join(t.TempDir(), "does-not-exist.yaml"))
	if err != nil {
		t.Fatalf("expected no error for missing file, got %v", err)
	}
	if cfg != Default() {
		t.Fatalf("expected defaults, got %+v", cfg)
	}
}

func TestLoadOverridesDefaults(t *testing.T) {
	path := filepath.Join(t.TempDir(), "cache.yaml")
	content := "data_ttl_seconds: 60\nmax_memory_entries: 5\n"
	if err := os.WriteFile(path, []byte(content), 0o644); err != nil {
		t.Fatalf("failed to write test config: %v", err)
	}
	cfg, err := Load(path)
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if cfg.DataTTLSeconds != 60 {
		t.Errorf("DataTTLSeconds = %d, want 60", cfg.DataTTLSeconds)
	}
	if cfg.MaxMemoryEntries != 5 {
		t.Errorf("MaxMemoryEntries = %d, want 5", cfg.MaxMemoryEntries)
	}
	if cfg.ChartTTLSeconds != Default().ChartTTLSeconds {
		t.Errorf("expected ChartTTLSeconds to keep its default, got %d", cfg.ChartTTLSeconds)
	}
}

func TestLoadRejectsInvalidValues(t *testing.T) {
	path := filepath.Join(t.TempDir(), "cache.yaml")
	if err := os.WriteFile(path, []byte("data_ttl_seconds: -5\n"), 0o644); err != nil {
		t.Fatalf("failed to write test config: %v", err)
	}
	if _, err := Load(path); err == nil {
		t.Fatal("expected negative ttl to be rejected")
	}
}

func TestValidateRequiresRedisAddr(t *testing.T) {
	cfg := Default()
	cfg.DiskBackend = DiskBackendRedis
	if err := cfg.Validate(); err == nil {
		t.Fatal("expected redis backend without redis_addr to fail validation")
	}
	cfg.RedisAddr = "localhost:6379"
	if err := cfg.Validate(); err != nil {
		t.Fatalf("expected valid config, got %v", err)
	}
}

func TestResolvedDiskBackendDefaultsToFile(t *testing.T) {
	cfg := Default()
	cfg.DiskBackend = ""
	if cfg.ResolvedDiskBackend() != DiskBackendFile {
		t.Fatalf("expected file backend default, got %q", cfg.ResolvedDiskBackend())
	}
}
