package app

import (
	"errors"
	"fmt"
	"log/slog"
	"os"
	"os/user"
	"path/filepath"
	"time"

	"github.com/go-playground/validator/v10"

	"github.com/florianilch/otterbox/internal/cache"
	"github.com/florianilch/otterbox/internal/credstore"
)

// LogFormat represents the logging output format.
type LogFormat string

const (
	LogFormatText       LogFormat = "text"
	LogFormatJSON       LogFormat = "json"
	LogFormatOTLP       LogFormat = "otlp"
	LogFormatStdoutOTel LogFormat = "stdout-otel"
)

// CredentialStorageType represents the different storage types supported for credentials.
type CredentialStorageType string

const (
	CredentialStorageTypeFile    CredentialStorageType = "file"
	CredentialStorageTypeEnv     CredentialStorageType = "env"
	CredentialStorageTypeKeyring CredentialStorageType = "keyring"
)

// keyringService is the OS keyring service name credentials are stored under.
const keyringService = "otterbox-credentials"

// Default configuration values
const (
	DefaultConfigLogFormat       = LogFormatText
	DefaultConfigServerBaseURL   = "https://demo.funkwhale.audio"
	DefaultConfigHTTPTimeout     = 30 * time.Second
	DefaultConfigAuthStorage     = CredentialStorageTypeFile
	DefaultConfigAuthEnvPrefix   = "FUNKWHALE_"
	DefaultConfigGatewayHost     = "127.0.0.1"
	DefaultConfigGatewayPort     = 4010
	DefaultConfigShutdownTimeout = 5 * time.Second
)

// ServerConfig describes the music server.
type ServerConfig struct {
	BaseURL string `json:"base_url" validate:"required,url"`
	// Anonymous sends requests without credentials.
	Anonymous bool `json:"anonymous"`
}

// HTTPConfig holds outbound HTTP settings.
type HTTPConfig struct {
	// Timeout bounds a single request, including reading the body.
	Timeout time.Duration `json:"timeout" validate:"gte=0"`
}

// AuthConfig describes where account credentials are stored.
type AuthConfig struct {
	Storage CredentialStorageType `json:"storage" validate:"required,oneof=file env keyring"`

	// Storage-specific settings (mutually exclusive based on Storage type)
	File        string `json:"file,omitempty"`         // For file storage: path to credentials file
	EnvPrefix   string `json:"env_prefix,omitempty"`   // For env storage: prefix of USERNAME/PASSWORD/ACCESS_TOKEN
	KeyringUser string `json:"keyring_user,omitempty"` // For keyring storage: user identifier
}

// NewCredentialStore creates a credstore.Store from the authentication configuration.
func (a *AuthConfig) NewCredentialStore() (credstore.Store, error) {
	switch a.Storage {
	case CredentialStorageTypeFile:
		return credstore.NewFileStore(a.File)
	case CredentialStorageTypeEnv:
		return credstore.NewEnvStore(a.EnvPrefix)
	case CredentialStorageTypeKeyring:
		return credstore.NewKeyringStore(keyringService, a.KeyringUser)
	default:
		return nil, fmt.Errorf("unsupported storage type: %s", a.Storage)
	}
}

// Writable reports whether the storage can hold a new username and password.
func (a *AuthConfig) Writable() bool {
	return a.Storage != CredentialStorageTypeEnv
}

// CacheConfig holds content cache settings.
type CacheConfig struct {
	Disabled bool   `json:"disabled"`
	Dir      string `json:"dir,omitempty"`
}

// GatewayConfig holds the local gateway listener settings.
type GatewayConfig struct {
	Host string `json:"host" validate:"hostname_rfc1123|ip"`
	Port uint16 `json:"port"` // Port range 0-65535 handled by uint16 type
}

// ShutdownConfig holds shutdown behavior configuration.
type ShutdownConfig struct {
	// Timeout for graceful shutdown.
	Timeout time.Duration `json:"timeout"`
}

// Config holds the application's configuration.
type Config struct {
	// LogLevel for logging output (defaults to Info if unset).
	LogLevel  slog.Level `json:"log_level"`
	LogFormat LogFormat  `json:"log_format" validate:"oneof=text json otlp stdout-otel"`
	// LogFile receives text/json logs with rotation instead of stderr.
	LogFile string `json:"log_file,omitempty"`
	// LogOTLPProtocol selects the otlp transport (http/protobuf or grpc).
	// Empty defers to OTEL_EXPORTER_OTLP_PROTOCOL.
	LogOTLPProtocol string         `json:"log_otlp_protocol,omitempty" validate:"omitempty,oneof=http/protobuf grpc"`
	Server          ServerConfig   `json:"server"`
	HTTP            HTTPConfig     `json:"http"`
	Auth            AuthConfig     `json:"auth"`
	Cache           CacheConfig    `json:"cache"`
	Gateway         GatewayConfig  `json:"gateway"`
	Shutdown        ShutdownConfig `json:"shutdown"`
}

// Default creates a new Config with default values applied.
func Default() (*Config, error) {
	cfg := &Config{}
	if err := cfg.ApplyDefaults(); err != nil {
		return nil, fmt.Errorf("failed to apply defaults: %w", err)
	}
	return cfg, nil
}

// ApplyDefaults fills unset config fields with sensible defaults.
func (c *Config) ApplyDefaults() error {
	if c.LogFormat == "" {
		c.LogFormat = DefaultConfigLogFormat
	}
	if c.Server.BaseURL == "" {
		c.Server.BaseURL = DefaultConfigServerBaseURL
	}
	if c.HTTP.Timeout == 0 {
		c.HTTP.Timeout = DefaultConfigHTTPTimeout
	}
	if c.Auth.Storage == "" {
		c.Auth.Storage = DefaultConfigAuthStorage
	}
	if c.Gateway.Host == "" {
		c.Gateway.Host = DefaultConfigGatewayHost
	}
	if c.Gateway.Port == 0 {
		c.Gateway.Port = DefaultConfigGatewayPort
	}
	if c.Shutdown.Timeout == 0 {
		c.Shutdown.Timeout = DefaultConfigShutdownTimeout
	}

	// Dynamic defaults based on storage type
	switch c.Auth.Storage {
	case CredentialStorageTypeFile:
		if c.Auth.File == "" {
			configDir, err := os.UserConfigDir()
			if err != nil {
				return fmt.Errorf("auth.file required (auto-detect failed: %w)", err)
			}
			c.Auth.File = filepath.Join(configDir, "otterbox", "credentials.json")
		}
	case CredentialStorageTypeKeyring:
		if c.Auth.KeyringUser == "" {
			currentUser, err := user.Current()
			if err != nil {
				return fmt.Errorf("auth.keyring_user required (auto-detect failed: %w)", err)
			}
			c.Auth.KeyringUser = currentUser.Username
		}
	case CredentialStorageTypeEnv:
		if c.Auth.EnvPrefix == "" {
			c.Auth.EnvPrefix = DefaultConfigAuthEnvPrefix
		}
	}

	if !c.Cache.Disabled && c.Cache.Dir == "" {
		dir, err := cache.DefaultDir()
		if err != nil {
			return fmt.Errorf("cache.dir required (auto-detect failed: %w)", err)
		}
		c.Cache.Dir = dir
	}

	return nil
}

// Validate validates the configuration using struct tags and enum values.
func (c *Config) Validate() error {
	if err := validator.New().Struct(c); err != nil {
		return err
	}

	switch c.Auth.Storage {
	case CredentialStorageTypeFile:
		if c.Auth.File == "" {
			return errors.New("file path required for file storage")
		}
	case CredentialStorageTypeEnv:
		if c.Auth.EnvPrefix == "" {
			return errors.New("env_prefix required for env storage")
		}
	case CredentialStorageTypeKeyring:
		if c.Auth.KeyringUser == "" {
			return errors.New("keyring_user required for keyring storage")
		}
	}

	if !c.Cache.Disabled && c.Cache.Dir == "" {
		return errors.New("cache.dir required unless the cache is disabled")
	}

	return nil
}
