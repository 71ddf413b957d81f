package config

import (
	"fmt"
	"os"
	"path/filepath"
	"strconv"
	"strings"
	"time"

	"github.com/BurntSushi/toml"
)

const (
	DefaultAPIURL     = "http://127.0.0.1:7433"
	DefaultDBFileName = ".capsd.db"

	DefaultUploadMaxBytes       int64 = 512 * 1024 * 1024
	DefaultChunkSizeBytes       int64 = 1 * 1024 * 1024
	MaxChunkSizeBytes           int64 = 2 * 1024 * 1024
	DefaultInlineThresholdBytes int64 = 256 * 1024
	DefaultSessionTimeoutSecs         = 30 * 60
	DefaultSweepIntervalSecs          = 5 * 60

	DefaultQuotaMaxSessions        = 3
	DefaultQuotaMaxDailyUploads    = 1000
	DefaultQuotaMaxStoredBytes     = int64(10) * 1024 * 1024 * 1024

	DefaultTokenTTLSecs    = 15 * 60
	DefaultTokenMaxTTLSecs = 24 * 60 * 60

	DefaultBlobGCBatchSize = 500

	configDirEnvKey = "CAPSD_CONFIG_DIR"

	configFileName = ".capsd.toml"
)

// UploadConfig bounds the chunked upload pipeline.
type UploadConfig struct {
	MaxUploadBytes       int64 `toml:"max_upload_bytes"`
	ChunkSizeBytes       int64 `toml:"chunk_size_bytes"`
	InlineThresholdBytes int64 `toml:"inline_threshold_bytes"`
	SessionTimeoutSecs   int   `toml:"session_timeout_seconds"`
	SweepIntervalSecs    int   `toml:"sweep_interval_seconds"`
}

// QuotaConfig holds per-subject ceilings.
type QuotaConfig struct {
	MaxSessionsPerSubject int   `toml:"max_sessions_per_subject"`
	MaxUploadsPerDay      int   `toml:"max_uploads_per_day"`
	MaxStoredBytes        int64 `toml:"max_stored_bytes"`
}

// TokenConfig configures the capability token keyring.
type TokenConfig struct {
	Keys           map[string]string `toml:"keys"`
	ActiveKeyID    string            `toml:"active_key"`
	DefaultTTLSecs int               `toml:"default_ttl_seconds"`
	MaxTTLSecs     int               `toml:"max_ttl_seconds"`
	Issuer         string            `toml:"issuer"`
}

// BlobConfig configures the content-addressed blob tree.
type BlobConfig struct {
	Root        string `toml:"root"`
	GCBatchSize int    `toml:"gc_batch_size"`
}

// Config defines runtime configuration for capsd.
type Config struct {
	APIURL  string       `toml:"api_url"`
	DBPath  string       `toml:"db_path"`
	Uploads UploadConfig `toml:"uploads"`
	Quotas  QuotaConfig  `toml:"quotas"`
	Tokens  TokenConfig  `toml:"tokens"`
	Blobs   BlobConfig   `toml:"blobs"`
}

// Default returns default configuration values.
func Default() Config {
	return Config{
		APIURL: DefaultAPIURL,
		DBPath: "",
		Uploads: UploadConfig{
			MaxUploadBytes:       DefaultUploadMaxBytes,
			ChunkSizeBytes:       DefaultChunkSizeBytes,
			InlineThresholdBytes: DefaultInlineThresholdBytes,
			SessionTimeoutSecs:   DefaultSessionTimeoutSecs,
			SweepIntervalSecs:    DefaultSweepIntervalSecs,
		},
		Quotas: QuotaConfig{
			MaxSessionsPerSubject: DefaultQuotaMaxSessions,
			MaxUploadsPerDay:      DefaultQuotaMaxDailyUploads,
			MaxStoredBytes:        DefaultQuotaMaxStoredBytes,
		},
		Tokens: TokenConfig{
			DefaultTTLSecs: DefaultTokenTTLSecs,
			MaxTTLSecs:     DefaultTokenMaxTTLSecs,
			Issuer:         "capsd",
		},
		Blobs: BlobConfig{
			GCBatchSize: DefaultBlobGCBatchSize,
		},
	}
}

// SessionTimeout returns the session timeout as a duration.
func (u UploadConfig) SessionTimeout() time.Duration {
	return time.Duration(u.SessionTimeoutSecs) * time.Second
}

// SweepInterval returns the sweep interval as a duration.
func (u UploadConfig) SweepInterval() time.Duration {
	return time.Duration(u.SweepIntervalSecs) * time.Second
}

// DefaultTTL returns the default token lifetime as a duration.
func (t TokenConfig) DefaultTTL() time.Duration {
	return time.Duration(t.DefaultTTLSecs) * time.Second
}

// MaxTTL returns the token lifetime ceiling as a duration.
func (t TokenConfig) MaxTTL() time.Duration {
	return time.Duration(t.MaxTTLSecs) * time.Second
}

func loadFile(path string, cfg *Config) error {
	_, err := loadFileIfExists(path, cfg)
	return err
}

func loadFileIfExists(path string, cfg *Config) (bool, error) {
	info, err := os.Stat(path)
	if err != nil {
		if os.IsNotExist(err) {
			return false, nil
		}
		return false, err
	}
	if info.IsDir() {
		return false, nil
	}
	if _, err := toml.DecodeFile(path, cfg); err != nil {
		return false, fmt.Errorf("failed to parse config %s: %w", path, err)
	}
	return true, nil
}

func overrideConfigPath() (string, bool) {
	dir := strings.TrimSpace(os.Getenv(configDirEnvKey))
	if dir == "" {
		return "", false
	}
	return filepath.Join(dir, configFileName), true
}

var allowedKeys = []string{
	"api_url",
	"db_path",
	"uploads.max_upload_bytes",
	"uploads.chunk_size_bytes",
	"uploads.inline_threshold_bytes",
	"uploads.session_timeout_seconds",
	"uploads.sweep_interval_seconds",
	"quotas.max_sessions_per_subject",
	"quotas.max_uploads_per_day",
	"quotas.max_stored_bytes",
	"tokens.active_key",
	"tokens.default_ttl_seconds",
	"tokens.max_ttl_seconds",
	"tokens.issuer",
	"blobs.root",
	"blobs.gc_batch_size",
}

// AllowedKeys returns the set of valid config keys.
func AllowedKeys() []string {
	return allowedKeys
}

// IsAllowedKey checks if a key is a valid config key.
func IsAllowedKey(key string) bool {
	for _, k := range allowedKeys {
		if k == key {
			return true
		}
	}
	return false
}

// Get returns the value of a config key.
func (c *Config) Get(key string) (string, error) {
	switch key {
	case "api_url":
		return c.APIURL, nil
	case "db_path":
		return c.DBPath, nil
	case "uploads.max_upload_bytes":
		return strconv.FormatInt(c.Uploads.MaxUploadBytes, 10), nil
	case "uploads.chunk_size_bytes":
		return strconv.FormatInt(c.Uploads.ChunkSizeBytes, 10), nil
	case "uploads.inline_threshold_bytes":
		return strconv.FormatInt(c.Uploads.InlineThresholdBytes, 10), nil
	case "uploads.session_timeout_seconds":
		return strconv.Itoa(c.Uploads.SessionTimeoutSecs), nil
	case "uploads.sweep_interval_seconds":
		return strconv.Itoa(c.Uploads.SweepIntervalSecs), nil
	case "quotas.max_sessions_per_subject":
		return strconv.Itoa(c.Quotas.MaxSessionsPerSubject), nil
	case "quotas.max_uploads_per_day":
		return strconv.Itoa(c.Quotas.MaxUploadsPerDay), nil
	case "quotas.max_stored_bytes":
		return strconv.FormatInt(c.Quotas.MaxStoredBytes, 10), nil
	case "tokens.active_key":
		return c.Tokens.ActiveKeyID, nil
	case "tokens.default_ttl_seconds":
		return strconv.Itoa(c.Tokens.DefaultTTLSecs), nil
	case "tokens.max_ttl_seconds":
		return strconv.Itoa(c.Tokens.MaxTTLSecs), nil
	case "tokens.issuer":
		return c.Tokens.Issuer, nil
	case "blobs.root":
		return c.Blobs.Root, nil
	case "blobs.gc_batch_size":
		return strconv.Itoa(c.Blobs.GCBatchSize), nil
	default:
		return "", fmt.Errorf("unknown key: %s", key)
	}
}

// GlobalPath returns the path to the global config file.
func GlobalPath() (string, error) {
	if path, ok := overrideConfigPath(); ok {
		return path, nil
	}
	home, err := os.UserHomeDir()
	if err != nil {
		return "", err
	}
	return filepath.Join(home, configFileName), nil
}

// SetKey reads the TOML file at path, sets key=value, and writes it back.
func SetKey(path, key, value string) error {
	if !IsAllowedKey(key) {
		return fmt.Errorf("unknown key: %s", key)
	}

	data := make(map[string]any)
	if _, err := os.Stat(path); err == nil {
		if _, err := toml.DecodeFile(path, &data); err != nil {
			return fmt.Errorf("parse %s: %w", path, err)
		}
	}

	parsedValue, err := parseSetValue(key, value)
	if err != nil {
		return err
	}
	if err := setNestedKey(data, strings.Split(key, "."), parsedValue); err != nil {
		return err
	}

	if err := os.MkdirAll(filepath.Dir(path), 0o755); err != nil {
		return err
	}

	f, err := os.Create(path)
	if err != nil {
		return err
	}
	defer f.Close()

	return toml.NewEncoder(f).Encode(data)
}

// Load reads config from the global file and applies env overrides.
func Load() (*Config, error) {
	cfg := Default()

	if overridePath, ok := overrideConfigPath(); ok {
		if err := loadFile(overridePath, &cfg); err != nil {
			return nil, err
		}
	} else if home, err := os.UserHomeDir(); err == nil {
		if err := loadFile(filepath.Join(home, configFileName), &cfg); err != nil {
			return nil, err
		}
	}

	if cfg.DBPath == "" {
		if cwd, err := os.Getwd(); err == nil {
			cfg.DBPath = filepath.Join(cwd, DefaultDBFileName)
		}
	}
	if cfg.Blobs.Root == "" {
		cfg.Blobs.Root = filepath.Join(filepath.Dir(cfg.DBPath), ".capsd-blobs")
	}

	if apiURL := os.Getenv("CAPSD_API_URL"); apiURL != "" {
		cfg.APIURL = apiURL
	}
	if dbPath := os.Getenv("CAPSD_DB"); dbPath != "" {
		cfg.DBPath = dbPath
	}
	if blobRoot := os.Getenv("CAPSD_BLOB_ROOT"); blobRoot != "" {
		cfg.Blobs.Root = blobRoot
	}

	// CAPSD_TOKEN_KEY=kid:secret injects or replaces one keyring entry, so
	// deployments can keep secrets out of the config file.
	if raw := strings.TrimSpace(os.Getenv("CAPSD_TOKEN_KEY")); raw != "" {
		kid, secret, ok := strings.Cut(raw, ":")
		if !ok || strings.TrimSpace(kid) == "" {
			return nil, fmt.Errorf("CAPSD_TOKEN_KEY must be of the form kid:secret")
		}
		if cfg.Tokens.Keys == nil {
			cfg.Tokens.Keys = map[string]string{}
		}
		cfg.Tokens.Keys[strings.TrimSpace(kid)] = secret
		if cfg.Tokens.ActiveKeyID == "" {
			cfg.Tokens.ActiveKeyID = strings.TrimSpace(kid)
		}
	}

	cfg.normalizeLimits()

	return &cfg, nil
}

func parseSetValue(key, value string) (any, error) {
	value = strings.TrimSpace(value)
	switch key {
	case "uploads.max_upload_bytes", "uploads.chunk_size_bytes",
		"uploads.inline_threshold_bytes", "quotas.max_stored_bytes":
		parsed, err := strconv.ParseInt(value, 10, 64)
		if err != nil || parsed <= 0 {
			return nil, fmt.Errorf("%s must be a positive integer", key)
		}
		return parsed, nil
	case "uploads.session_timeout_seconds", "uploads.sweep_interval_seconds",
		"quotas.max_sessions_per_subject", "quotas.max_uploads_per_day",
		"tokens.default_ttl_seconds", "tokens.max_ttl_seconds", "blobs.gc_batch_size":
		parsed, err := strconv.Atoi(value)
		if err != nil || parsed <= 0 {
			return nil, fmt.Errorf("%s must be a positive integer", key)
		}
		return parsed, nil
	default:
		return value, nil
	}
}

func setNestedKey(data map[string]any, parts []string, value any) error {
	if len(parts) == 0 {
		return fmt.Errorf("invalid config key")
	}
	if len(parts) == 1 {
		data[parts[0]] = value
		return nil
	}
	childRaw, ok := data[parts[0]]
	if !ok {
		child := map[string]any{}
		data[parts[0]] = child
		return setNestedKey(child, parts[1:], value)
	}
	child, ok := childRaw.(map[string]any)
	if !ok {
		return fmt.Errorf("cannot set nested key %q", strings.Join(parts, "."))
	}
	return setNestedKey(child, parts[1:], value)
}

func (c *Config) normalizeLimits() {
	if c.Uploads.MaxUploadBytes <= 0 {
		c.Uploads.MaxUploadBytes = DefaultUploadMaxBytes
	}
	if c.Uploads.ChunkSizeBytes <= 0 {
		c.Uploads.ChunkSizeBytes = DefaultChunkSizeBytes
	}
	// The per-chunk ceiling has a hard cap regardless of configuration.
	if c.Uploads.ChunkSizeBytes > MaxChunkSizeBytes {
		c.Uploads.ChunkSizeBytes = MaxChunkSizeBytes
	}
	if c.Uploads.InlineThresholdBytes <= 0 {
		c.Uploads.InlineThresholdBytes = DefaultInlineThresholdBytes
	}
	if c.Uploads.SessionTimeoutSecs <= 0 {
		c.Uploads.SessionTimeoutSecs = DefaultSessionTimeoutSecs
	}
	if c.Uploads.SweepIntervalSecs <= 0 {
		c.Uploads.SweepIntervalSecs = DefaultSweepIntervalSecs
	}
	if c.Quotas.MaxSessionsPerSubject <= 0 {
		c.Quotas.MaxSessionsPerSubject = DefaultQuotaMaxSessions
	}
	if c.Quotas.MaxUploadsPerDay <= 0 {
		c.Quotas.MaxUploadsPerDay = DefaultQuotaMaxDailyUploads
	}
	if c.Quotas.MaxStoredBytes <= 0 {
		c.Quotas.MaxStoredBytes = DefaultQuotaMaxStoredBytes
	}
	if c.Tokens.DefaultTTLSecs <= 0 {
		c.Tokens.DefaultTTLSecs = DefaultTokenTTLSecs
	}
	if c.Tokens.MaxTTLSecs <= 0 {
		c.Tokens.MaxTTLSecs = DefaultTokenMaxTTLSecs
	}
	if c.Tokens.DefaultTTLSecs > c.Tokens.MaxTTLSecs {
		c.Tokens.DefaultTTLSecs = c.Tokens.MaxTTLSecs
	}
	if c.Blobs.GCBatchSize <= 0 {
		c.Blobs.GCBatchSize = DefaultBlobGCBatchSize
	}
}
