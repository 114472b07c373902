package config

import (
	"bytes"
	"os"
	"path/filepath"
	"strings"
	"testing"
	"time"
)

func TestManager_ReadWrite_RoundTrip(t *testing.T) {
	original := &Config{
		SiteID:   "test-site-abc",
		BaseDir:  "/home/user/.local/share/almaseo",
		LogDir:   "/home/user/.local/share/almaseo/log",
		Site:     SiteConfig{BaseURL: "https://example.com/blog"},
		Database: DatabaseConfig{Type: "sqlite", DataDir: "/home/user/.local/share/almaseo/db"},
		Cache:    CacheConfig{Type: "redis", RedisURL: "redis://localhost:6379/0", KeyPrefix: "site1:"},
		Redirects: RedirectsConfig{
			CacheTTL:  Duration{90 * time.Second},
			TestParam: "preview",
		},
		History: HistoryConfig{
			RetentionCap: 5,
			Fields: []FieldConfig{
				{Name: "title", MetaKey: "_yoast_wpseo_title"},
				{Name: "schema_json", MetaKey: "_custom_schema"},
			},
		},
		Archive: ArchiveConfig{Type: "s3", S3Bucket: "seo-exports", S3Prefix: "site1/", S3Region: "eu-west-1"},
		Encryption: EncryptionConfig{
			Type:           "age",
			PublicKeyPath:  "/home/user/.local/share/almaseo/keys/almaseo.pub",
			PrivateKeyPath: "/home/user/.local/share/almaseo/keys/almaseo.key",
		},
	}

	var buf bytes.Buffer
	m := &Manager{}

	if err := m.Write(&buf, original); err != nil {
		t.Fatalf("Write() error = %v", err)
	}
	if !strings.Contains(buf.String(), `cache_ttl = "1m30s"`) {
		t.Errorf("encoded config missing duration string:\n%s", buf.String())
	}

	got, err := m.Read(&buf)
	if err != nil {
		t.Fatalf("Read() error = %v", err)
	}

	if got.SiteID != original.SiteID {
		t.Errorf("SiteID = %q, want %q", got.SiteID, original.SiteID)
	}
	if got.Site.BaseURL != original.Site.BaseURL {
		t.Errorf("Site.BaseURL = %q, want %q", got.Site.BaseURL, original.Site.BaseURL)
	}
	if got.Cache.Type != "redis" || got.Cache.KeyPrefix != "site1:" {
		t.Errorf("Cache = %+v, want redis with prefix site1:", got.Cache)
	}
	if got.Redirects.CacheTTL.Duration != 90*time.Second {
		t.Errorf("Redirects.CacheTTL = %v, want 90s", got.Redirects.CacheTTL.Duration)
	}
	if got.Redirects.TestParam != "preview" {
		t.Errorf("Redirects.TestParam = %q, want %q", got.Redirects.TestParam, "preview")
	}
	if got.History.RetentionCap != 5 {
		t.Errorf("History.RetentionCap = %d, want 5", got.History.RetentionCap)
	}
	if len(got.History.Fields) != 2 {
		t.Fatalf("len(History.Fields) = %d, want 2", len(got.History.Fields))
	}
	if got.History.Fields[1].MetaKey != "_custom_schema" {
		t.Errorf("History.Fields[1].MetaKey = %q, want %q", got.History.Fields[1].MetaKey, "_custom_schema")
	}
	if got.Archive.S3Bucket != "seo-exports" {
		t.Errorf("Archive.S3Bucket = %q, want %q", got.Archive.S3Bucket, "seo-exports")
	}
	if got.Encryption.PrivateKeyPath != original.Encryption.PrivateKeyPath {
		t.Errorf("Encryption.PrivateKeyPath = %q, want %q", got.Encryption.PrivateKeyPath, original.Encryption.PrivateKeyPath)
	}
	// Read fills in defaults for unset sections.
	if got.Dispatch.Workers != DefaultWorkers {
		t.Errorf("Dispatch.Workers = %d, want %d", got.Dispatch.Workers, DefaultWorkers)
	}
}

func TestManager_Read_Defaults(t *testing.T) {
	m := &Manager{}
	got, err := m.Read(strings.NewReader(`site_id = "s1"`))
	if err != nil {
		t.Fatalf("Read() error = %v", err)
	}

	if got.Redirects.CacheTTL.Duration != time.Hour {
		t.Errorf("CacheTTL = %v, want 1h", got.Redirects.CacheTTL.Duration)
	}
	if got.Redirects.TestParam != "almaseo_test_redirect" {
		t.Errorf("TestParam = %q, want %q", got.Redirects.TestParam, "almaseo_test_redirect")
	}
	if got.History.RetentionCap != 20 {
		t.Errorf("RetentionCap = %d, want 20", got.History.RetentionCap)
	}
	if got.Server.Address != DefaultServerAddress {
		t.Errorf("Server.Address = %q, want %q", got.Server.Address, DefaultServerAddress)
	}
}

func TestManager_Read_InvalidDuration(t *testing.T) {
	m := &Manager{}
	_, err := m.Read(strings.NewReader("[redirects]\ncache_ttl = \"soon\"\n"))
	if err == nil {
		t.Fatal("Read() expected error for invalid duration")
	}
}

func TestNewConfig(t *testing.T) {
	cfg := NewConfig("site-1", "/data/almaseo")

	if cfg.SiteID != "site-1" {
		t.Errorf("SiteID = %q, want %q", cfg.SiteID, "site-1")
	}
	if cfg.BaseDir != "/data/almaseo" {
		t.Errorf("BaseDir = %q, want %q", cfg.BaseDir, "/data/almaseo")
	}
	if cfg.LogDir != "/data/almaseo/log" {
		t.Errorf("LogDir = %q, want %q", cfg.LogDir, "/data/almaseo/log")
	}
	if cfg.Database.DataDir != "/data/almaseo/db" {
		t.Errorf("Database.DataDir = %q, want %q", cfg.Database.DataDir, "/data/almaseo/db")
	}
	if cfg.Archive.FSRoot != "/data/almaseo/archive" {
		t.Errorf("Archive.FSRoot = %q, want %q", cfg.Archive.FSRoot, "/data/almaseo/archive")
	}
	if cfg.Encryption.PublicKeyPath != "/data/almaseo/keys/almaseo.pub" {
		t.Errorf("Encryption.PublicKeyPath = %q, want %q", cfg.Encryption.PublicKeyPath, "/data/almaseo/keys/almaseo.pub")
	}
	if cfg.Encryption.PrivateKeyPath != "/data/almaseo/keys/almaseo.key" {
		t.Errorf("Encryption.PrivateKeyPath = %q, want %q", cfg.Encryption.PrivateKeyPath, "/data/almaseo/keys/almaseo.key")
	}
	if cfg.Cache.MaxEntries != DefaultCacheEntries {
		t.Errorf("Cache.MaxEntries = %d, want %d", cfg.Cache.MaxEntries, DefaultCacheEntries)
	}
}

func TestInit(t *testing.T) {
	t.Run("creates config file", func(t *testing.T) {
		dir := t.TempDir()
		path := filepath.Join(dir, "almaseo.toml")
		cfg := NewConfig("s1", dir)

		if err := Init(path, cfg); err != nil {
			t.Fatalf("Init() error = %v", err)
		}

		info, err := os.Stat(path)
		if err != nil {
			t.Fatalf("config file not created: %v", err)
		}
		if perm := info.Mode().Perm(); perm != 0600 {
			t.Errorf("config file mode = %o, want 600", perm)
		}
	})

	t.Run("fails if file already exists", func(t *testing.T) {
		dir := t.TempDir()
		path := filepath.Join(dir, "almaseo.toml")
		cfg := NewConfig("s1", dir)

		if err := Init(path, cfg); err != nil {
			t.Fatalf("first Init() error = %v", err)
		}

		err := Init(path, cfg)
		if err == nil {
			t.Fatal("second Init() expected error")
		}
	})
}

func TestReadFromFile(t *testing.T) {
	t.Run("reads valid config", func(t *testing.T) {
		dir := t.TempDir()
		path := filepath.Join(dir, "almaseo.toml")
		cfg := NewConfig("read-test", dir)
		cfg.Database = DatabaseConfig{Type: "memory"}

		if err := Init(path, cfg); err != nil {
			t.Fatalf("Init() error = %v", err)
		}

		got, err := ReadFromFile(path)
		if err != nil {
			t.Fatalf("ReadFromFile() error = %v", err)
		}
		if got.SiteID != "read-test" {
			t.Errorf("SiteID = %q, want %q", got.SiteID, "read-test")
		}
		if got.Database.Type != "memory" {
			t.Errorf("Database.Type = %q, want %q", got.Database.Type, "memory")
		}
	})

	t.Run("returns error for missing file", func(t *testing.T) {
		_, err := ReadFromFile("/nonexistent/path/almaseo.toml")
		if err == nil {
			t.Fatal("ReadFromFile() expected error for missing file")
		}
	})
}
