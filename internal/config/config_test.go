package config

import (
	"bytes"
	"path/filepath"
	"strings"
	"testing"
)

func TestManager_ReadWrite_RoundTrip(t *testing.T) {
	original := &Config{
		LogDir:   "/home/user/.local/share/dds/log",
		Database: DatabaseConfig{Type: "sqlite", DataDir: "/home/user/.local/share/dds/db"},
		Graph: GraphConfig{
			Type:      "surreal",
			URL:       "ws://localhost:8000/rpc",
			Namespace: "dds",
			Database:  "provenance",
			Username:  "root",
			Password:  "root",
		},
		Storage: StorageConfig{
			Type:             "s3",
			S3Region:         "us-east-1",
			S3Endpoint:       "http://localhost:9000",
			SignedURLMinutes: 30,
		},
		Auth: AuthConfig{
			DefaultServiceType: "duke",
			ServiceID:          "duke-shib",
			Secret:             "token-secret",
		},
	}

	var buf bytes.Buffer
	m := &Manager{}

	if err := m.Write(&buf, original); err != nil {
		t.Fatalf("Write() error = %v", err)
	}

	got, err := m.Read(&buf)
	if err != nil {
		t.Fatalf("Read() error = %v", err)
	}

	if got.LogDir != original.LogDir {
		t.Errorf("LogDir = %q, want %q", got.LogDir, original.LogDir)
	}
	if got.Database.Type != "sqlite" {
		t.Errorf("Database.Type = %q, want sqlite", got.Database.Type)
	}
	if got.Graph.URL != "ws://localhost:8000/rpc" {
		t.Errorf("Graph.URL = %q, want %q", got.Graph.URL, "ws://localhost:8000/rpc")
	}
	if got.Storage.S3Endpoint != "http://localhost:9000" {
		t.Errorf("Storage.S3Endpoint = %q, want %q", got.Storage.S3Endpoint, "http://localhost:9000")
	}
	if got.Storage.SignedURLMinutes != 30 {
		t.Errorf("Storage.SignedURLMinutes = %d, want 30", got.Storage.SignedURLMinutes)
	}
	if got.Auth.DefaultServiceType != "duke" {
		t.Errorf("Auth.DefaultServiceType = %q, want duke", got.Auth.DefaultServiceType)
	}
}

func TestManager_Read_DefaultsSignedURLMinutes(t *testing.T) {
	toml := `
log_dir = "/tmp/log"

[storage]
type = "memory"
`
	m := &Manager{}
	cfg, err := m.Read(strings.NewReader(toml))
	if err != nil {
		t.Fatalf("Read() error = %v", err)
	}
	if cfg.Storage.SignedURLMinutes != 15 {
		t.Errorf("SignedURLMinutes = %d, want default 15", cfg.Storage.SignedURLMinutes)
	}
}

func TestNewConfig(t *testing.T) {
	cfg := NewConfig("/data/dds")

	if cfg.LogDir != filepath.Join("/data/dds", "log") {
		t.Errorf("LogDir = %q, want under base dir", cfg.LogDir)
	}
	if cfg.Database.Type != "sqlite" {
		t.Errorf("Database.Type = %q, want sqlite", cfg.Database.Type)
	}
	if cfg.Storage.SignedURLMinutes != 15 {
		t.Errorf("SignedURLMinutes = %d, want 15", cfg.Storage.SignedURLMinutes)
	}
}

func TestInit(t *testing.T) {
	t.Run("writes a new config file", func(t *testing.T) {
		path := filepath.Join(t.TempDir(), "dds.toml")
		cfg := NewConfig("/data/dds")

		if err := Init(path, cfg); err != nil {
			t.Fatalf("Init() error = %v", err)
		}

		got, err := ReadFromFile(path)
		if err != nil {
			t.Fatalf("ReadFromFile() error = %v", err)
		}
		if got.Database.DataDir != cfg.Database.DataDir {
			t.Errorf("DataDir = %q, want %q", got.Database.DataDir, cfg.Database.DataDir)
		}
	})

	t.Run("refuses to overwrite an existing file", func(t *testing.T) {
		path := filepath.Join(t.TempDir(), "dds.toml")
		cfg := NewConfig("/data/dds")

		if err := Init(path, cfg); err != nil {
			t.Fatalf("first Init() error = %v", err)
		}
		if err := Init(path, cfg); err == nil {
			t.Error("second Init() expected error for existing file")
		}
	})
}
