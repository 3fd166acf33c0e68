package config

import (
	"fmt"
	"io"
	"os"
	"path/filepath"

	"github.com/BurntSushi/toml"
)

// Config represents the main configuration for ecorpus.
type Config struct {
	BaseDir  string         `toml:"base_dir"`
	LogDir   string         `toml:"log_dir"`
	Public   bool           `toml:"public"`
	Database DatabaseConfig `toml:"database"`
	Objects  ObjectsConfig  `toml:"objects"`
	Cache    CacheConfig    `toml:"cache"`
}

// DatabaseConfig locates the SQLite database holding scenes, files and documents.
type DatabaseConfig struct {
	Path           string `toml:"path"`
	MigrationsPath string `toml:"migrations_path,omitempty"` // empty means the embedded migrations
	BusyTimeoutMS  int    `toml:"busy_timeout_ms,omitempty"`
}

// ObjectsConfig represents configuration for the content object store.
// This uses a tagged union pattern - the Type field determines which other fields are relevant.
type ObjectsConfig struct {
	Type string `toml:"type"` // "filesystem", "memory" or "s3"

	// Root holds the objects of a filesystem store, and spools uploads for s3.
	Root string `toml:"root,omitempty"`

	// S3-specific fields (only used when Type == "s3")
	S3Bucket   string `toml:"s3_bucket,omitempty"`
	S3Prefix   string `toml:"s3_prefix,omitempty"`
	S3Region   string `toml:"s3_region,omitempty"`
	S3Endpoint string `toml:"s3_endpoint,omitempty"`

	// Static credentials; the default AWS credential chain is used when empty.
	S3AccessKeyID     string `toml:"s3_access_key_id,omitempty"`
	S3SecretAccessKey string `toml:"s3_secret_access_key,omitempty"`
}

// CacheConfig sizes the in-process caches.
type CacheConfig struct {
	Documents int `toml:"documents"` // document generations kept in memory; 0 disables
}

// DefaultDocumentCacheSize is used by NewConfig.
const DefaultDocumentCacheSize = 128

// NewConfig creates a new Config rooted at baseDir with filesystem objects.
func NewConfig(baseDir string) *Config {
	return &Config{
		BaseDir: baseDir,
		LogDir:  filepath.Join(baseDir, "log"),
		Database: DatabaseConfig{
			Path: filepath.Join(baseDir, "database.db"),
		},
		Objects: ObjectsConfig{
			Type: "filesystem",
			Root: filepath.Join(baseDir, "objects"),
		},
		Cache: CacheConfig{Documents: DefaultDocumentCacheSize},
	}
}

// Validate checks that the fields required by the selected backends are set.
func (c *Config) Validate() error {
	if c.Database.Path == "" {
		return fmt.Errorf("database.path is required")
	}
	if c.Database.BusyTimeoutMS < 0 {
		return fmt.Errorf("database.busy_timeout_ms must not be negative")
	}
	switch c.Objects.Type {
	case "filesystem":
		if c.Objects.Root == "" {
			return fmt.Errorf("objects.root is required for filesystem objects")
		}
	case "s3":
		if c.Objects.S3Bucket == "" {
			return fmt.Errorf("objects.s3_bucket is required for s3 objects")
		}
	case "memory":
	default:
		return fmt.Errorf("unknown objects type: %q", c.Objects.Type)
	}
	if c.Cache.Documents < 0 {
		return fmt.Errorf("cache.documents must not be negative")
	}
	return nil
}

// Manager handles reading and writing configuration.
type Manager struct{}

// Read decodes a Config from the provided reader.
func (m *Manager) Read(r io.Reader) (*Config, error) {
	var cfg Config
	if _, err := toml.NewDecoder(r).Decode(&cfg); err != nil {
		return nil, fmt.Errorf("failed to decode config: %w", err)
	}
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

func writeToFile(path string, cfg *Config) error {
	dir := filepath.Dir(path)
	if err := os.MkdirAll(dir, 0755); err != nil {
		return fmt.Errorf("failed to create config directory: %w", err)
	}

	f, err := os.Create(path)
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

// Init writes cfg to path. It refuses to overwrite an existing file.
func Init(path string, cfg *Config) error {
	if _, err := os.Stat(path); err == nil {
		return fmt.Errorf("config file already exists at %s", path)
	}

	if err := writeToFile(path, cfg); err != nil {
		return fmt.Errorf("initializing config: %w", err)
	}
	return nil
}
