package config

import (
	"os"
	"path/filepath"
	"testing"
)

func TestLoadDefaultsWhenNoFile(t *testing.T) {
	t.Setenv("CAPSD_CONFIG_DIR", t.TempDir())

	cfg, err := Load()
	if err != nil {
		t.Fatalf("load: %v", err)
	}
	if cfg.APIURL != DefaultAPIURL {
		t.Fatalf("api url = %s", cfg.APIURL)
	}
	if cfg.Uploads.ChunkSizeBytes != DefaultChunkSizeBytes {
		t.Fatalf("chunk size = %d", cfg.Uploads.ChunkSizeBytes)
	}
	if cfg.Uploads.MaxUploadBytes != 512*1024*1024 {
		t.Fatalf("max upload bytes = %d", cfg.Uploads.MaxUploadBytes)
	}
	if cfg.Quotas.MaxSessionsPerSubject != DefaultQuotaMaxSessions {
		t.Fatalf("max sessions = %d", cfg.Quotas.MaxSessionsPerSubject)
	}
	if cfg.Blobs.Root == "" {
		t.Fatal("blob root must default next to the db")
	}
}

func TestLoadReadsConfigFile(t *testing.T) {
	dir := t.TempDir()
	t.Setenv("CAPSD_CONFIG_DIR", dir)

	content := `
api_url = "http://10.0.0.1:9000"

[uploads]
chunk_size_bytes = 524288
session_timeout_seconds = 120

[quotas]
max_sessions_per_subject = 7

[tokens]
active_key = "k1"
default_ttl_seconds = 60

[tokens.keys]
k1 = "0123456789abcdef0123456789abcdef"
`
	if err := os.WriteFile(filepath.Join(dir, configFileName), []byte(content), 0o644); err != nil {
		t.Fatalf("write config: %v", err)
	}

	cfg, err := Load()
	if err != nil {
		t.Fatalf("load: %v", err)
	}
	if cfg.APIURL != "http://10.0.0.1:9000" {
		t.Fatalf("api url = %s", cfg.APIURL)
	}
	if cfg.Uploads.ChunkSizeBytes != 524288 {
		t.Fatalf("chunk size = %d", cfg.Uploads.ChunkSizeBytes)
	}
	if cfg.Uploads.SessionTimeoutSecs != 120 {
		t.Fatalf("session timeout = %d", cfg.Uploads.SessionTimeoutSecs)
	}
	if cfg.Quotas.MaxSessionsPerSubject != 7 {
		t.Fatalf("max sessions = %d", cfg.Quotas.MaxSessionsPerSubject)
	}
	if cfg.Tokens.ActiveKeyID != "k1" || cfg.Tokens.Keys["k1"] == "" {
		t.Fatalf("token keyring not loaded: %+v", cfg.Tokens)
	}
}

func TestLoadClampsOversizedChunk(t *testing.T) {
	dir := t.TempDir()
	t.Setenv("CAPSD_CONFIG_DIR", dir)

	content := "[uploads]\nchunk_size_bytes = 16777216\n"
	if err := os.WriteFile(filepath.Join(dir, configFileName), []byte(content), 0o644); err != nil {
		t.Fatalf("write config: %v", err)
	}

	cfg, err := Load()
	if err != nil {
		t.Fatalf("load: %v", err)
	}
	if cfg.Uploads.ChunkSizeBytes != MaxChunkSizeBytes {
		t.Fatalf("chunk size must clamp to hard cap, got %d", cfg.Uploads.ChunkSizeBytes)
	}
}

func TestTokenKeyEnvOverride(t *testing.T) {
	t.Setenv("CAPSD_CONFIG_DIR", t.TempDir())
	t.Setenv("CAPSD_TOKEN_KEY", "env-key:fedcba9876543210fedcba9876543210")

	cfg, err := Load()
	if err != nil {
		t.Fatalf("load: %v", err)
	}
	if cfg.Tokens.Keys["env-key"] != "fedcba9876543210fedcba9876543210" {
		t.Fatal("env keyring entry missing")
	}
	if cfg.Tokens.ActiveKeyID != "env-key" {
		t.Fatalf("active key = %s", cfg.Tokens.ActiveKeyID)
	}
}

func TestTokenKeyEnvRejectsMalformed(t *testing.T) {
	t.Setenv("CAPSD_CONFIG_DIR", t.TempDir())
	t.Setenv("CAPSD_TOKEN_KEY", "missing-separator")

	if _, err := Load(); err == nil {
		t.Fatal("expected error for malformed CAPSD_TOKEN_KEY")
	}
}

func TestSetKeyRoundTrip(t *testing.T) {
	path := filepath.Join(t.TempDir(), configFileName)

	if err := SetKey(path, "quotas.max_uploads_per_day", "250"); err != nil {
		t.Fatalf("set key: %v", err)
	}
	if err := SetKey(path, "api_url", "http://example:1"); err != nil {
		t.Fatalf("set second key: %v", err)
	}
	if err := SetKey(path, "nope.nope", "1"); err == nil {
		t.Fatal("unknown key must be rejected")
	}
	if err := SetKey(path, "uploads.chunk_size_bytes", "-5"); err == nil {
		t.Fatal("negative value must be rejected")
	}

	t.Setenv("CAPSD_CONFIG_DIR", filepath.Dir(path))
	cfg, err := Load()
	if err != nil {
		t.Fatalf("load: %v", err)
	}
	if cfg.Quotas.MaxUploadsPerDay != 250 {
		t.Fatalf("max uploads per day = %d", cfg.Quotas.MaxUploadsPerDay)
	}
	if cfg.APIURL != "http://example:1" {
		t.Fatalf("api url = %s", cfg.APIURL)
	}
}
