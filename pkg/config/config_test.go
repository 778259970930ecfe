package config_test

import (
	"errors"
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/piwi3910/xfrserver/pkg/config"
)

func validConfig() *config.Config {
	cfg := config.DefaultConfig()
	cfg.Zone.Origin = "example.com."
	cfg.Zone.Serials = map[uint32]string{1: "zones/1.zone", 2: "zones/2.zone"}

	return cfg
}

func TestDefaultConfig(t *testing.T) {
	t.Parallel()
	cfg := config.DefaultConfig()

	if cfg.Server.ListenAddress != "127.0.0.1:5300" {
		t.Errorf("Expected default listen address 127.0.0.1:5300, got %s", cfg.Server.ListenAddress)
	}

	if !cfg.Server.ReusePort {
		t.Error("Expected SO_REUSEPORT to be enabled by default")
	}

	if cfg.Server.ReadTimeout != 0 {
		t.Errorf("Expected no read timeout by default, got %v", cfg.Server.ReadTimeout)
	}

	if cfg.UDP.BufferSize != 512 {
		t.Errorf("Expected UDP buffer size 512, got %d", cfg.UDP.BufferSize)
	}

	if cfg.UDP.StopOnMalformed {
		t.Error("Expected UDP loop to survive malformed queries by default")
	}

	if cfg.API.ListenAddress != "127.0.0.1:8053" {
		t.Errorf("Expected default API address 127.0.0.1:8053, got %s", cfg.API.ListenAddress)
	}

	if cfg.Control.ListenAddress != "127.0.0.1:9053" {
		t.Errorf("Expected default control address 127.0.0.1:9053, got %s", cfg.Control.ListenAddress)
	}

	if len(cfg.Zone.Serials) != 0 {
		t.Errorf("Expected no default serials, got %d", len(cfg.Zone.Serials))
	}
}

func TestLoadFromFile(t *testing.T) {
	t.Parallel()

	tmpDir := t.TempDir()
	configPath := filepath.Join(tmpDir, "config.yaml")

	configContent := `
server:
  listen_address: "127.0.0.1:5353"
  reuse_port: false
  read_timeout: 5s
  transfer_history: 10

udp:
  stop_on_malformed: true

api:
  listen_address: ""

zone:
  origin: example.com.
  serials:
    1: /var/zones/example.com.1
    2: /var/zones/example.com.2

logging:
  level: debug
  format: json
`

	if err := os.WriteFile(configPath, []byte(configContent), 0o600); err != nil {
		t.Fatalf("Failed to write test config: %v", err)
	}

	cfg, err := config.LoadFromFile(configPath)
	if err != nil {
		t.Fatalf("Failed to load config: %v", err)
	}

	if cfg.Server.ListenAddress != "127.0.0.1:5353" {
		t.Errorf("Expected listen address 127.0.0.1:5353, got %s", cfg.Server.ListenAddress)
	}

	if cfg.Server.ReusePort {
		t.Error("Expected reuse_port to be disabled")
	}

	if cfg.Server.ReadTimeout != 5*time.Second {
		t.Errorf("Expected read timeout 5s, got %v", cfg.Server.ReadTimeout)
	}

	if !cfg.UDP.StopOnMalformed {
		t.Error("Expected stop_on_malformed to be set")
	}

	if cfg.API.ListenAddress != "" {
		t.Errorf("Expected API to be disabled, got %s", cfg.API.ListenAddress)
	}

	// Unset values keep their defaults
	if cfg.Control.ListenAddress != "127.0.0.1:9053" {
		t.Errorf("Expected default control address, got %s", cfg.Control.ListenAddress)
	}

	if got := cfg.Zone.Serials[2]; got != "/var/zones/example.com.2" {
		t.Errorf("Expected zone file for serial 2, got %q", got)
	}

	if cfg.Logging.Format != "json" {
		t.Errorf("Expected json log format, got %s", cfg.Logging.Format)
	}
}

func TestLoadFromFile_NotFound(t *testing.T) {
	t.Parallel()

	_, err := config.LoadFromFile("/nonexistent/config.yaml")
	if !errors.Is(err, config.ErrConfigNotFound) {
		t.Errorf("Expected ErrConfigNotFound, got %v", err)
	}
}

func TestLoadFromFileOrDefault(t *testing.T) {
	t.Parallel()

	cfg, err := config.LoadFromFileOrDefault("/nonexistent/config.yaml")
	if err != nil {
		t.Fatalf("Expected no error for missing file, got: %v", err)
	}

	if cfg.Server.ListenAddress != "127.0.0.1:5300" {
		t.Error("Expected default config when file doesn't exist")
	}
}

func TestLoadFromFile_InvalidYAML(t *testing.T) {
	t.Parallel()

	configPath := filepath.Join(t.TempDir(), "config.yaml")
	if err := os.WriteFile(configPath, []byte("server: [unterminated"), 0o600); err != nil {
		t.Fatal(err)
	}

	if _, err := config.LoadFromFile(configPath); err == nil {
		t.Error("Expected parse error")
	}
}

func TestApplyEnv(t *testing.T) {
	t.Setenv("XFRTEST_SERVER__LISTEN_ADDRESS", "127.0.0.1:6300")
	t.Setenv("XFRTEST_SERVER__READ_TIMEOUT", "2s")
	t.Setenv("XFRTEST_UDP__WORKERS", "4")
	t.Setenv("XFRTEST_API__CORS_ORIGINS", "http://a.test,http://b.test")
	t.Setenv("XFRTEST_ZONE__SERIALS__3", "/zones/3.zone")
	t.Setenv("XFRTEST_LOGGING__LEVEL", "warn")

	cfg := validConfig()
	if err := cfg.ApplyEnv("XFRTEST_"); err != nil {
		t.Fatalf("ApplyEnv failed: %v", err)
	}

	if cfg.Server.ListenAddress != "127.0.0.1:6300" {
		t.Errorf("Expected overridden listen address, got %s", cfg.Server.ListenAddress)
	}

	if cfg.Server.ReadTimeout != 2*time.Second {
		t.Errorf("Expected read timeout 2s, got %v", cfg.Server.ReadTimeout)
	}

	if cfg.UDP.Workers != 4 {
		t.Errorf("Expected 4 UDP workers, got %d", cfg.UDP.Workers)
	}

	if len(cfg.API.CORSOrigins) != 2 || cfg.API.CORSOrigins[1] != "http://b.test" {
		t.Errorf("Expected two CORS origins, got %v", cfg.API.CORSOrigins)
	}

	if got := cfg.Zone.Serials[3]; got != "/zones/3.zone" {
		t.Errorf("Expected serial 3 from env, got %q", got)
	}

	// Serials from the file survive the overlay
	if got := cfg.Zone.Serials[1]; got != "zones/1.zone" {
		t.Errorf("Expected serial 1 to be kept, got %q", got)
	}

	if cfg.Logging.Level != "warn" {
		t.Errorf("Expected log level warn, got %s", cfg.Logging.Level)
	}
}

func TestConfigValidation(t *testing.T) {
	t.Parallel()

	tests := []struct {
		name    string
		modify  func(*config.Config)
		wantErr bool
	}{
		{
			name:    "Valid config",
			modify:  func(c *config.Config) {},
			wantErr: false,
		},
		{
			name:    "No zone serials",
			modify:  func(c *config.Config) { c.Zone.Serials = nil },
			wantErr: true,
		},
		{
			name:    "Empty zone file path",
			modify:  func(c *config.Config) { c.Zone.Serials[3] = "" },
			wantErr: true,
		},
		{
			name:    "Missing listen address",
			modify:  func(c *config.Config) { c.Server.ListenAddress = "" },
			wantErr: true,
		},
		{
			name:    "Wildcard listen address",
			modify:  func(c *config.Config) { c.Server.ListenAddress = "0.0.0.0:5300" },
			wantErr: true,
		},
		{
			name:    "Routable listen address",
			modify:  func(c *config.Config) { c.Server.ListenAddress = "192.0.2.7:5300" },
			wantErr: true,
		},
		{
			name:    "Non-local hostname",
			modify:  func(c *config.Config) { c.Server.ListenAddress = "example.org:53" },
			wantErr: true,
		},
		{
			name:    "Empty listen host",
			modify:  func(c *config.Config) { c.Server.ListenAddress = ":5300" },
			wantErr: true,
		},
		{
			name:    "Localhost listen address",
			modify:  func(c *config.Config) { c.Server.ListenAddress = "localhost:5300" },
			wantErr: false,
		},
		{
			name:    "Disabled API",
			modify:  func(c *config.Config) { c.API.ListenAddress = "" },
			wantErr: false,
		},
		{
			name:    "Malformed control address",
			modify:  func(c *config.Config) { c.Control.ListenAddress = "localhost" },
			wantErr: true,
		},
		{
			name:    "Zero UDP workers",
			modify:  func(c *config.Config) { c.UDP.Workers = 0 },
			wantErr: true,
		},
		{
			name: "Multiple UDP workers without reuse_port",
			modify: func(c *config.Config) {
				c.UDP.Workers = 2
				c.Server.ReusePort = false
			},
			wantErr: true,
		},
		{
			name:    "UDP buffer too small",
			modify:  func(c *config.Config) { c.UDP.BufferSize = 100 },
			wantErr: true,
		},
		{
			name:    "Negative read timeout",
			modify:  func(c *config.Config) { c.Server.ReadTimeout = -time.Second },
			wantErr: true,
		},
		{
			name:    "Invalid log level",
			modify:  func(c *config.Config) { c.Logging.Level = "verbose" },
			wantErr: true,
		},
		{
			name:    "Invalid log format",
			modify:  func(c *config.Config) { c.Logging.Format = "xml" },
			wantErr: true,
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			t.Parallel()
			cfg := validConfig()
			tt.modify(cfg)

			err := cfg.Validate()
			if (err != nil) != tt.wantErr {
				t.Errorf("Validate() error = %v, wantErr %v", err, tt.wantErr)
			}
			if err != nil && !errors.Is(err, config.ErrInvalidConfig) {
				t.Errorf("Expected ErrInvalidConfig, got %v", err)
			}
		})
	}
}

func TestSaveToFile(t *testing.T) {
	t.Parallel()

	configPath := filepath.Join(t.TempDir(), "config.yaml")
	original := validConfig()
	original.Server.MaxConnections = 42

	if err := original.SaveToFile(configPath); err != nil {
		t.Fatalf("SaveToFile failed: %v", err)
	}

	loaded, err := config.LoadFromFile(configPath)
	if err != nil {
		t.Fatalf("Failed to reload config: %v", err)
	}

	if loaded.Server.MaxConnections != 42 {
		t.Errorf("Expected max connections 42, got %d", loaded.Server.MaxConnections)
	}

	if loaded.Zone.Serials[2] != original.Zone.Serials[2] {
		t.Errorf("Expected serial 2 path %q, got %q", original.Zone.Serials[2], loaded.Zone.Serials[2])
	}
}
