package config

import (
	"fmt"
	"io"
	"os"
	"path/filepath"

	"github.com/BurntSushi/toml"
)

// Config represents the main configuration for dds.
type Config struct {
	LogDir   string         `toml:"log_dir"`
	Database DatabaseConfig `toml:"database"`
	Graph    GraphConfig    `toml:"graph"`
	Storage  StorageConfig  `toml:"storage"`
	Auth     AuthConfig     `toml:"auth"`
}

// DatabaseConfig configures the relational store.
// This uses a tagged union pattern - the Type field determines which other fields are relevant.
type DatabaseConfig struct {
	Type    string `toml:"type"`               // "sqlite" or "memory"
	DataDir string `toml:"data_dir,omitempty"` // only used for type=sqlite
}

// GraphConfig configures the provenance graph store.
// This uses a tagged union pattern - the Type field determines which other fields are relevant.
type GraphConfig struct {
	Type string `toml:"type"` // "surreal" or "memory"

	// SurrealDB-specific fields (only used when Type == "surreal")
	URL       string `toml:"url,omitempty"`
	Namespace string `toml:"namespace,omitempty"`
	Database  string `toml:"database,omitempty"`
	Username  string `toml:"username,omitempty"`
	Password  string `toml:"password,omitempty"`
}

// StorageConfig configures the storage gateway the engine signs transfer
// URLs against.
// This uses a tagged union pattern - the Type field determines which other fields are relevant.
type StorageConfig struct {
	Type string `toml:"type"` // "s3" or "memory"

	// S3-specific fields (only used when Type == "s3")
	S3Region          string `toml:"s3_region,omitempty"`
	S3Endpoint        string `toml:"s3_endpoint,omitempty"` // custom endpoint for MinIO-style backends
	S3AccessKeyID     string `toml:"s3_access_key_id,omitempty"`
	S3SecretAccessKey string `toml:"s3_secret_access_key,omitempty"`
	SignedURLMinutes  int    `toml:"signed_url_minutes"` // expiry for signed URLs; defaults to 15
}

// AuthConfig configures the authentication service registry.
type AuthConfig struct {
	// DefaultServiceType is assigned to untyped legacy
	// authentication_service rows by the reconciliation pass.
	DefaultServiceType string `toml:"default_service_type,omitempty"` // "duke" or "openid"
	ServiceID          string `toml:"service_id,omitempty"`
	Secret             string `toml:"secret,omitempty"` // token-signing secret for the duke service
}

// NewConfig creates a Config with default values rooted at baseDir.
func NewConfig(baseDir string) *Config {
	return &Config{
		LogDir:   filepath.Join(baseDir, "log"),
		Database: DatabaseConfig{Type: "sqlite", DataDir: filepath.Join(baseDir, "db")},
		Graph:    GraphConfig{Type: "memory"},
		Storage:  StorageConfig{Type: "memory", SignedURLMinutes: 15},
	}
}

// Manager handles reading and writing configuration.
type Manager struct{}

// Read decodes a Config from the provided reader.
func (m *Manager) Read(r io.Reader) (*Config, error) {
	var cfg Config
	if _, err := toml.NewDecoder(r).Decode(&cfg); err != nil {
		return nil, fmt.Errorf("failed to decode config: %w", err)
	}
	if cfg.Storage.SignedURLMinutes <= 0 {
		cfg.Storage.SignedURLMinutes = 15
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

// Init initializes a new config file at the specified path.
func Init(path string, cfg *Config) error {
	if _, err := os.Stat(path); err == nil {
		return fmt.Errorf("config file already exists at %s", path)
	}

	if err := writeToFile(path, cfg); err != nil {
		return fmt.Errorf("initializing config: %w", err)
	}
	return nil
}
