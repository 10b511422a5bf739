// Package config provides configuration management for the infrakt
// control plane.
//
// Configuration is loaded with the following precedence (later sources
// override earlier ones):
//  1. Default values
//  2. ~/.infrakt/config.yaml (optional)
//  3. Environment variables with the INFRAKT_ prefix
package config

import (
	"fmt"
	"path/filepath"
	"strings"
	"time"

	homedir "github.com/mitchellh/go-homedir"
	"github.com/spf13/viper"
)

// Config holds all control-plane settings.
type Config struct {
	// Home is the control-plane state directory, default ~/.infrakt.
	Home string `mapstructure:"home"`

	// Port is the HTTP API listen port.
	Port int `mapstructure:"port"`

	// AllowedOrigins is the CORS allow-list.
	AllowedOrigins []string `mapstructure:"allowed_origins"`

	// LogLevel is one of debug, info, warn, error.
	LogLevel string `mapstructure:"log_level"`

	// LogFormat is "text" or "json".
	LogFormat string `mapstructure:"log_format"`

	// ACMEEmail is used when provisioning the reverse proxy.
	ACMEEmail string `mapstructure:"acme_email"`

	// UpdateSecret guards the optional self-update webhook route.
	UpdateSecret string `mapstructure:"update_secret"`

	// UpdateComposeFile is the compose file the self-update route
	// re-applies on the control-plane host.
	UpdateComposeFile string `mapstructure:"update_compose_file"`

	// ReleaseImageTag is the image tag pulled by the self-update route.
	ReleaseImageTag string `mapstructure:"release_image_tag"`

	// ShutdownTimeout is the graceful HTTP shutdown window.
	ShutdownTimeout time.Duration `mapstructure:"shutdown_timeout"`
}

// Load reads configuration from defaults, the optional config file and
// the environment.
func Load() (*Config, error) {
	home, err := homedir.Expand("~/.infrakt")
	if err != nil {
		return nil, fmt.Errorf("failed to resolve home directory: %w", err)
	}

	v := viper.New()
	v.SetDefault("home", home)
	v.SetDefault("port", 8090)
	v.SetDefault("allowed_origins", []string{})
	v.SetDefault("log_level", "info")
	v.SetDefault("log_format", "text")
	v.SetDefault("acme_email", "")
	v.SetDefault("update_secret", "")
	v.SetDefault("update_compose_file", "")
	v.SetDefault("release_image_tag", "latest")
	v.SetDefault("shutdown_timeout", 10*time.Second)

	v.SetEnvPrefix("INFRAKT")
	v.SetEnvKeyReplacer(strings.NewReplacer(".", "_"))
	v.AutomaticEnv()

	// The config file lives in the effective state directory, so an
	// INFRAKT_HOME override relocates it too.
	v.SetConfigName("config")
	v.SetConfigType("yaml")
	v.AddConfigPath(v.GetString("home"))

	// The config file is optional; only a malformed file is fatal.
	if err := v.ReadInConfig(); err != nil {
		if _, ok := err.(viper.ConfigFileNotFoundError); !ok {
			return nil, fmt.Errorf("failed to read config file: %w", err)
		}
	}

	cfg := &Config{}
	if err := v.Unmarshal(cfg); err != nil {
		return nil, fmt.Errorf("failed to unmarshal config: %w", err)
	}

	// A single comma-joined INFRAKT_ALLOWED_ORIGINS value is accepted.
	if len(cfg.AllowedOrigins) == 1 && strings.Contains(cfg.AllowedOrigins[0], ",") {
		cfg.AllowedOrigins = strings.Split(cfg.AllowedOrigins[0], ",")
		for i := range cfg.AllowedOrigins {
			cfg.AllowedOrigins[i] = strings.TrimSpace(cfg.AllowedOrigins[i])
		}
	}

	return cfg, nil
}

// DatabasePath is the embedded database location.
func (c *Config) DatabasePath() string { return filepath.Join(c.Home, "infrakt.db") }

// APIKeyPath holds the plaintext platform key, mode 600.
func (c *Config) APIKeyPath() string { return filepath.Join(c.Home, "api_key.txt") }

// MasterKeyPath holds the symmetric master key, mode 600.
func (c *Config) MasterKeyPath() string { return filepath.Join(c.Home, "master.key") }

// DeployKeysPath holds the hashed deploy keys, mode 600.
func (c *Config) DeployKeysPath() string { return filepath.Join(c.Home, "deploy_keys.json") }

// EnvsDir holds per-app encrypted env JSON files.
func (c *Config) EnvsDir() string { return filepath.Join(c.Home, "envs") }

// KeysDir holds managed SSH key pairs.
func (c *Config) KeysDir() string { return filepath.Join(c.Home, "keys") }

// BackupsDir holds locally downloaded database backups.
func (c *Config) BackupsDir() string { return filepath.Join(c.Home, "backups") }
