package infra

import (
	"testing"
	"time"
)

func setRequired(t *testing.T) {
	t.Helper()
	t.Setenv("DATABASE_URL", "postgres://example")
	t.Setenv("JWT_SECRET", "test-secret")
}

func TestLoadConfigDefaults(t *testing.T) {
	setRequired(t)
	t.Setenv("PORT", "")
	t.Setenv("STORAGE_BASE_URL", "")
	t.Setenv("POLL_INTERVAL", "")
	t.Setenv("POLL_MAX_DURATION", "")

	cfg, err := LoadConfig()
	if err != nil {
		t.Fatalf("LoadConfig returned error: %v", err)
	}
	if cfg.PollInterval != 2*time.Second {
		t.Fatalf("PollInterval = %s, want 2s", cfg.PollInterval)
	}
	if cfg.PollMaxDuration != 30*time.Minute {
		t.Fatalf("PollMaxDuration = %s, want 30m", cfg.PollMaxDuration)
	}
	if cfg.StorageBaseURL != "http://localhost:8080/static" {
		t.Fatalf("StorageBaseURL mismatch: %q", cfg.StorageBaseURL)
	}
	if cfg.MirrorCollection != "carousel_jobs" {
		t.Fatalf("MirrorCollection mismatch: %q", cfg.MirrorCollection)
	}
}

func TestLoadConfigInheritsPortInStorageBaseURL(t *testing.T) {
	setRequired(t)
	t.Setenv("PORT", "1919")
	t.Setenv("STORAGE_BASE_URL", "")

	cfg, err := LoadConfig()
	if err != nil {
		t.Fatalf("LoadConfig returned error: %v", err)
	}
	if cfg.StorageBaseURL != "http://localhost:1919/static" {
		t.Fatalf("StorageBaseURL mismatch: %q", cfg.StorageBaseURL)
	}
}

func TestLoadConfigParsesDurations(t *testing.T) {
	setRequired(t)
	t.Setenv("POLL_INTERVAL", "500ms")
	t.Setenv("POLL_MAX_DURATION", "90")

	cfg, err := LoadConfig()
	if err != nil {
		t.Fatalf("LoadConfig returned error: %v", err)
	}
	if cfg.PollInterval != 500*time.Millisecond {
		t.Fatalf("PollInterval = %s", cfg.PollInterval)
	}
	if cfg.PollMaxDuration != 90*time.Second {
		t.Fatalf("PollMaxDuration = %s", cfg.PollMaxDuration)
	}
}

func TestLoadConfigRejectsInvertedPollBounds(t *testing.T) {
	setRequired(t)
	t.Setenv("POLL_INTERVAL", "10s")
	t.Setenv("POLL_MAX_DURATION", "5s")

	if _, err := LoadConfig(); err == nil {
		t.Fatal("expected error for max duration below interval")
	}
}

func TestLoadConfigRequiresSecrets(t *testing.T) {
	t.Setenv("DATABASE_URL", "")
	t.Setenv("JWT_SECRET", "x")
	if _, err := LoadConfig(); err == nil {
		t.Fatal("expected DATABASE_URL error")
	}
	t.Setenv("DATABASE_URL", "postgres://example")
	t.Setenv("JWT_SECRET", "")
	if _, err := LoadConfig(); err == nil {
		t.Fatal("expected JWT_SECRET error")
	}
}

func TestLoadConfigParsesOriginsAndConcurrency(t *testing.T) {
	setRequired(t)
	t.Setenv("CORS_ALLOWED_ORIGINS", " https://app.example.com ,,https://admin.example.com")
	t.Setenv("WORKER_CONCURRENCY", "4")

	cfg, err := LoadConfig()
	if err != nil {
		t.Fatalf("LoadConfig returned error: %v", err)
	}
	if len(cfg.CORSOrigins) != 2 || cfg.CORSOrigins[0] != "https://app.example.com" || cfg.CORSOrigins[1] != "https://admin.example.com" {
		t.Fatalf("CORSOrigins = %v", cfg.CORSOrigins)
	}
	if cfg.WorkerConcurrency != 4 {
		t.Fatalf("WorkerConcurrency = %d", cfg.WorkerConcurrency)
	}
}
