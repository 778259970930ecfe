// Package config provides YAML configuration support for the transfer server.
package config

import (
	"errors"
	"fmt"
	"net"
	"os"
	"strings"
	"time"

	"github.com/go-playground/validator/v10"
	"github.com/knadh/koanf/providers/env/v2"
	"github.com/knadh/koanf/v2"
	"gopkg.in/yaml.v3"
)

// DefaultEnvPrefix is the prefix of environment variables that override file settings.
const DefaultEnvPrefix = "XFRSERVER_"

// Configuration errors.
var (
	ErrInvalidConfig  = errors.New("invalid configuration")
	ErrConfigNotFound = errors.New("configuration file not found")
)

// Config represents the complete server configuration.
type Config struct {
	Server  ServerConfig  `yaml:"server"`
	UDP     UDPConfig     `yaml:"udp"`
	API     APIConfig     `yaml:"api"`
	Control ControlConfig `yaml:"control"`
	Zone    ZoneConfig    `yaml:"zone"`
	Logging LoggingConfig `yaml:"logging"`
}

// ServerConfig holds the DNS listener configuration shared by TCP and UDP.
type ServerConfig struct {
	// ListenAddress is the loopback address both TCP and UDP listen on
	ListenAddress string `yaml:"listen_address" validate:"required,hostname_port"`

	// ReusePort sets SO_REUSEPORT on the listening sockets
	ReusePort bool `yaml:"reuse_port"`

	// MaxConnections limits concurrent TCP transfers (0 = unlimited)
	MaxConnections int `yaml:"max_connections" validate:"gte=0"`

	// ReadTimeout bounds how long a TCP client may take to send its query (0 = none)
	ReadTimeout time.Duration `yaml:"read_timeout" validate:"gte=0"`

	// WriteTimeout bounds writing a TCP reply (0 = none)
	WriteTimeout time.Duration `yaml:"write_timeout" validate:"gte=0"`

	// TransferHistory is how many answered transfers are remembered for inspection
	TransferHistory int `yaml:"transfer_history" validate:"gte=0"`

	// GracefulShutdownTimeout is the timeout for graceful shutdown
	GracefulShutdownTimeout time.Duration `yaml:"graceful_shutdown_timeout" validate:"gte=0"`
}

// UDPConfig holds configuration for the SOA responder.
type UDPConfig struct {
	// Workers is the number of UDP sockets (more than one requires reuse_port)
	Workers int `yaml:"workers" validate:"gte=1"`

	// BufferSize is the largest datagram read
	BufferSize int `yaml:"buffer_size" validate:"gte=512,lte=65535"`

	// StopOnMalformed ends the receive loop on the first malformed query
	StopOnMalformed bool `yaml:"stop_on_malformed"`
}

// APIConfig holds REST control API configuration.
type APIConfig struct {
	// ListenAddress is the HTTP address (empty to disable)
	ListenAddress string `yaml:"listen_address" validate:"omitempty,hostname_port"`

	// CORSOrigins lists origins allowed to call the API
	CORSOrigins []string `yaml:"cors_origins"`

	// Auth configures optional token authentication
	Auth AuthConfig `yaml:"auth"`
}

// AuthConfig holds REST authentication settings.
// Authentication is disabled when PasswordHash is empty.
type AuthConfig struct {
	// PasswordHash is a bcrypt hash of the control password
	PasswordHash string `yaml:"password_hash"`

	// JWTSecret signs issued tokens (random per process when empty)
	JWTSecret string `yaml:"jwt_secret"`

	// TokenExpiry is the lifetime of issued tokens
	TokenExpiry time.Duration `yaml:"token_expiry" validate:"gt=0"`
}

// ControlConfig holds gRPC control service configuration.
type ControlConfig struct {
	// ListenAddress is the gRPC address (empty to disable)
	ListenAddress string `yaml:"listen_address" validate:"omitempty,hostname_port"`
}

// ZoneConfig describes the zone snapshots to serve.
type ZoneConfig struct {
	// Origin is the zone apex; relative names in zone files resolve against it
	Origin string `yaml:"origin" validate:"omitempty,fqdn|hostname_rfc1123"`

	// Serials maps each serial to the zone file holding that version
	Serials map[uint32]string `yaml:"serials" validate:"required,min=1,dive,required"`
}

// LoggingConfig holds logging-related configuration.
type LoggingConfig struct {
	// Level is the log level: "debug", "info", "warn", "error"
	Level string `yaml:"level" validate:"oneof=debug info warn error"`

	// Format is the log format: "json" or "console"
	Format string `yaml:"format" validate:"oneof=json console"`
}

// DefaultConfig returns a configuration with sensible defaults.
// Zone serials have no default and must be configured.
func DefaultConfig() *Config {
	return &Config{
		Server: ServerConfig{
			ListenAddress:           "127.0.0.1:5300",
			ReusePort:               true,
			MaxConnections:          1000,
			ReadTimeout:             0,
			WriteTimeout:            0,
			TransferHistory:         64,
			GracefulShutdownTimeout: 10 * time.Second,
		},
		UDP: UDPConfig{
			Workers:         1,
			BufferSize:      512,
			StopOnMalformed: false,
		},
		API: APIConfig{
			ListenAddress: "127.0.0.1:8053",
			CORSOrigins:   []string{"*"},
			Auth: AuthConfig{
				PasswordHash: "",
				JWTSecret:    "",
				TokenExpiry:  24 * time.Hour,
			},
		},
		Control: ControlConfig{
			ListenAddress: "127.0.0.1:9053",
		},
		Zone: ZoneConfig{
			Origin:  "",
			Serials: map[uint32]string{},
		},
		Logging: LoggingConfig{
			Level:  "info",
			Format: "console",
		},
	}
}

// LoadFromFile loads configuration from a YAML file on top of the defaults.
func LoadFromFile(path string) (*Config, error) {
	cfg := DefaultConfig()

	if _, err := os.Stat(path); os.IsNotExist(err) {
		return nil, fmt.Errorf("%w: %s", ErrConfigNotFound, path)
	}

	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("failed to read config file: %w", err)
	}

	if err := yaml.Unmarshal(data, cfg); err != nil {
		return nil, fmt.Errorf("failed to parse config file: %w", err)
	}

	return cfg, nil
}

// LoadFromFileOrDefault loads configuration from a YAML file.
// If the file doesn't exist, returns default configuration without error.
func LoadFromFileOrDefault(path string) (*Config, error) {
	cfg, err := LoadFromFile(path)
	if err != nil {
		if errors.Is(err, ErrConfigNotFound) {
			return DefaultConfig(), nil
		}
		return nil, err
	}
	return cfg, nil
}

// ApplyEnv overlays environment variables carrying prefix onto the configuration.
// A double underscore separates nesting levels, so XFRSERVER_SERVER__LISTEN_ADDRESS
// sets server.listen_address and XFRSERVER_ZONE__SERIALS__3 sets the file for serial 3.
// Comma-separated values become lists.
func (c *Config) ApplyEnv(prefix string) error {
	k := koanf.New(".")

	err := k.Load(env.Provider(".", env.Opt{
		Prefix: prefix,
		TransformFunc: func(key, value string) (string, any) {
			key = strings.ToLower(strings.TrimPrefix(key, prefix))
			key = strings.ReplaceAll(key, "__", ".")
			if strings.Contains(value, ",") {
				return key, strings.Split(value, ",")
			}
			return key, value
		},
	}), nil)
	if err != nil {
		return fmt.Errorf("error loading env: %w", err)
	}

	if err := k.UnmarshalWithConf("", c, koanf.UnmarshalConf{Tag: "yaml"}); err != nil {
		return fmt.Errorf("error unmarshalling env: %w", err)
	}

	return nil
}

// Validate validates the configuration.
func (c *Config) Validate() error {
	validate := validator.New(validator.WithRequiredStructEnabled())

	if err := validate.Struct(c); err != nil {
		return fmt.Errorf("%w: %w", ErrInvalidConfig, err)
	}

	if c.UDP.Workers > 1 && !c.Server.ReusePort {
		return fmt.Errorf("%w: %d UDP workers require server.reuse_port", ErrInvalidConfig, c.UDP.Workers)
	}

	if !isLoopback(c.Server.ListenAddress) {
		return fmt.Errorf("%w: server.listen_address %q is not a loopback address", ErrInvalidConfig, c.Server.ListenAddress)
	}

	return nil
}

// isLoopback reports whether a host:port address names localhost or a loopback IP.
func isLoopback(address string) bool {
	host, _, err := net.SplitHostPort(address)
	if err != nil {
		return false
	}
	if strings.EqualFold(host, "localhost") {
		return true
	}
	ip := net.ParseIP(host)

	return ip != nil && ip.IsLoopback()
}

// SaveToFile saves the configuration to a YAML file.
func (c *Config) SaveToFile(path string) error {
	data, err := yaml.Marshal(c)
	if err != nil {
		return fmt.Errorf("failed to marshal config: %w", err)
	}

	if err := os.WriteFile(path, data, 0o600); err != nil {
		return fmt.Errorf("failed to write config file: %w", err)
	}

	return nil
}
