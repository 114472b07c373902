package config

import (
	"fmt"
	"io"
	"os"
	"path/filepath"
	"time"

	"github.com/BurntSushi/toml"
)

// Defaults applied by ApplyDefaults to unset fields.
const (
	DefaultCacheTTL      = time.Hour
	DefaultTestParam     = "almaseo_test_redirect"
	DefaultRetentionCap  = 20
	DefaultQueueSize     = 256
	DefaultWorkers       = 2
	DefaultServerAddress = "127.0.0.1:8080"
	DefaultCacheEntries  = 128
)

// Config represents the main configuration for almaseo.
type Config struct {
	SiteID     string           `toml:"site_id"`
	BaseDir    string           `toml:"base_dir"`
	LogDir     string           `toml:"log_dir"`
	Site       SiteConfig       `toml:"site"`
	Database   DatabaseConfig   `toml:"database"`
	Cache      CacheConfig      `toml:"cache"`
	Redirects  RedirectsConfig  `toml:"redirects"`
	History    HistoryConfig    `toml:"history"`
	Dispatch   DispatchConfig   `toml:"dispatch"`
	Server     ServerConfig     `toml:"server"`
	Log        LogConfig        `toml:"log"`
	Archive    ArchiveConfig    `toml:"archive"`
	Encryption EncryptionConfig `toml:"encryption"`
}

// Duration is a time.Duration written as a string such as "1h" or "90s".
type Duration struct {
	time.Duration
}

func (d Duration) MarshalText() ([]byte, error) {
	return []byte(d.String()), nil
}

func (d *Duration) UnmarshalText(text []byte) error {
	v, err := time.ParseDuration(string(text))
	if err != nil {
		return fmt.Errorf("invalid duration %q: %w", text, err)
	}
	d.Duration = v
	return nil
}

// SiteConfig describes the public site redirects are served for.
type SiteConfig struct {
	BaseURL string `toml:"base_url"` // e.g. https://example.com/blog
}

// DatabaseConfig represents configuration for the redirect and history database.
// This uses a tagged union pattern - the Type field determines which other fields are relevant.
type DatabaseConfig struct {
	Type    string `toml:"type"`               // "sqlite" or "memory"
	DataDir string `toml:"data_dir,omitempty"` // only used for type=sqlite
}

// CacheConfig selects where the enabled-redirect index is cached.
// This uses a tagged union pattern - the Type field determines which other fields are relevant.
type CacheConfig struct {
	Type string `toml:"type"` // "memory", "redis" or "none"

	// Memory-specific fields (only used when Type == "memory")
	MaxEntries int `toml:"max_entries,omitempty"`

	// Redis-specific fields (only used when Type == "redis")
	RedisURL  string `toml:"redis_url,omitempty"`
	KeyPrefix string `toml:"key_prefix,omitempty"`
}

// RedirectsConfig holds redirect serving settings.
type RedirectsConfig struct {
	CacheTTL  Duration `toml:"cache_ttl"`
	TestParam string   `toml:"test_param"`
}

// FieldConfig maps a tracked field name to its post meta key.
type FieldConfig struct {
	Name    string `toml:"name"`
	MetaKey string `toml:"meta_key"`
}

// HistoryConfig holds metadata history settings.
type HistoryConfig struct {
	RetentionCap int           `toml:"retention_cap"`
	Fields       []FieldConfig `toml:"fields,omitempty"`
}

// DispatchConfig sizes the background task queue.
type DispatchConfig struct {
	QueueSize int `toml:"queue_size"`
	Workers   int `toml:"workers"`
}

// ServerConfig holds the HTTP listener settings.
type ServerConfig struct {
	Address    string `toml:"address"`
	AdminToken string `toml:"admin_token"`
}

// LogConfig holds logging settings.
type LogConfig struct {
	Level  string `toml:"level"`  // "debug", "info", "warn" or "error"
	Format string `toml:"format"` // "text" or "json"
}

// ArchiveConfig represents configuration for the export and backup archive.
// This uses a tagged union pattern - the Type field determines which other fields are relevant.
type ArchiveConfig struct {
	Type string `toml:"type"` // "memory", "filesystem" or "s3"

	// FileSystem-specific fields (only used when Type == "filesystem")
	FSRoot string `toml:"fs_root,omitempty"`

	// S3-specific fields (only used when Type == "s3")
	S3Bucket   string `toml:"s3_bucket,omitempty"`
	S3Prefix   string `toml:"s3_prefix,omitempty"`
	S3Region   string `toml:"s3_region,omitempty"`
	S3Endpoint string `toml:"s3_endpoint,omitempty"` // for S3-compatible stores such as MinIO

	// Static credentials; when empty the default AWS credential chain is used.
	S3AccessKeyID     string `toml:"s3_access_key_id,omitempty"`
	S3SecretAccessKey string `toml:"s3_secret_access_key,omitempty"`
}

// EncryptionConfig holds paths to the age key pair used for encrypted exports.
type EncryptionConfig struct {
	Type           string `toml:"type"` // "age" (default) or "test"
	PublicKeyPath  string `toml:"public_key_path"`
	PrivateKeyPath string `toml:"private_key_path"`
}

// NewConfig creates a new Config with the provided values and defaults for a
// single-machine install rooted at baseDir.
func NewConfig(siteID, baseDir string) *Config {
	cfg := &Config{
		SiteID:   siteID,
		BaseDir:  baseDir,
		LogDir:   filepath.Join(baseDir, "log"),
		Site:     SiteConfig{BaseURL: "http://localhost"},
		Database: DatabaseConfig{Type: "sqlite", DataDir: filepath.Join(baseDir, "db")},
		Cache:    CacheConfig{Type: "memory"},
		Log:      LogConfig{Level: "info", Format: "text"},
		Archive:  ArchiveConfig{Type: "filesystem", FSRoot: filepath.Join(baseDir, "archive")},
		Encryption: EncryptionConfig{
			Type:           "age",
			PublicKeyPath:  filepath.Join(baseDir, "keys", "almaseo.pub"),
			PrivateKeyPath: filepath.Join(baseDir, "keys", "almaseo.key"),
		},
	}
	cfg.ApplyDefaults()
	return cfg
}

// ApplyDefaults fills unset tunables with their default values.
func (c *Config) ApplyDefaults() {
	if c.Cache.Type == "memory" && c.Cache.MaxEntries <= 0 {
		c.Cache.MaxEntries = DefaultCacheEntries
	}
	if c.Redirects.CacheTTL.Duration <= 0 {
		c.Redirects.CacheTTL = Duration{DefaultCacheTTL}
	}
	if c.Redirects.TestParam == "" {
		c.Redirects.TestParam = DefaultTestParam
	}
	if c.History.RetentionCap <= 0 {
		c.History.RetentionCap = DefaultRetentionCap
	}
	if c.Dispatch.QueueSize <= 0 {
		c.Dispatch.QueueSize = DefaultQueueSize
	}
	if c.Dispatch.Workers <= 0 {
		c.Dispatch.Workers = DefaultWorkers
	}
	if c.Server.Address == "" {
		c.Server.Address = DefaultServerAddress
	}
}

// Manager handles reading and writing configuration.
type Manager struct{}

// Read decodes a Config from the provided reader and applies defaults.
func (m *Manager) Read(r io.Reader) (*Config, error) {
	var cfg Config
	if _, err := toml.NewDecoder(r).Decode(&cfg); err != nil {
		return nil, fmt.Errorf("failed to decode config: %w", err)
	}
	cfg.ApplyDefaults()
	return &cfg, nil
}

// Write encodes a Config to the provided writer.
func (m *Manager) Write(w io.Writer, cfg *Config) error {
	if err := toml.NewEncoder(w).Encode(cfg); err != nil {
		return fmt.Errorf("failed to encode config: %w", err)
	}
	return nil
}

// ReadFromFile reads a Config from the specified file path.
func ReadFromFile(path string) (*Config, error) {
	f, err := os.Open(path)
	if err != nil {
		return nil, fmt.Errorf("failed to open config file: %w", err)
	}
	defer f.Close()

	m := &Manager{}
	cfg, err := m.Read(f)
	if err != nil {
		return nil, fmt.Errorf("reading config from %s: %w", path, err)
	}
	return cfg, nil
}

// writeToFile writes a Config to the specified file path.
// The file holds the admin token, so it is created owner-readable only.
func writeToFile(path string, cfg *Config) error {
	dir := filepath.Dir(path)
	if err := os.MkdirAll(dir, 0755); err != nil {
		return fmt.Errorf("failed to create config directory: %w", err)
	}

	f, err := os.OpenFile(path, os.O_WRONLY|os.O_CREATE|os.O_TRUNC, 0600)
	if err != nil {
		return fmt.Errorf("failed to create config file: %w", err)
	}
	defer f.Close()

	m := &Manager{}
	if err := m.Write(f, cfg); err != nil {
		return fmt.Errorf("writing config to %s: %w", path, err)
	}
	return nil
}

// Init initializes a new config file at the specified path with the provided Config.
func Init(path string, cfg *Config) error {
	if _, err := os.Stat(path); err == nil {
		return fmt.Errorf("config file already exists at %s", path)
	}

	if err := writeToFile(path, cfg); err != nil {
		return fmt.Errorf("initializing config: %w", err)
	}
	return nil
}
