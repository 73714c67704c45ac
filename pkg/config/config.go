package config

import (
	"errors"
	"fmt"
	"io/fs"

	"github.com/spf13/viper"
)

// ExposureConfig is the user's settings for one remote-access channel.
type ExposureConfig struct {
	Enabled    bool   `mapstructure:"enabled"`
	Dependency string `mapstructure:"dependency"` // helper binary the channel needs
	Hostname   string `mapstructure:"hostname"`   // channel-specific endpoint config
}

// GatewayConfig is the secondary-bind settings for remote access.
type GatewayConfig struct {
	Enabled     bool                      `mapstructure:"enabled"`
	Bind        string                    `mapstructure:"bind"`
	Port        int                       `mapstructure:"port"`
	AllowWrites bool                      `mapstructure:"allowWrites"`
	Exposures   map[string]ExposureConfig `mapstructure:"exposures"`
}

// Config is the daemon configuration document at <root>/config.yaml.
// Absence of the file yields defaults; the daemon never writes it.
type Config struct {
	LogLevel      string          `mapstructure:"logLevel"`
	RuntimeBinary string          `mapstructure:"runtimeBinary"`
	ProxyAddr     string          `mapstructure:"proxyAddr"`
	DNSAddr       string          `mapstructure:"dnsAddr"`
	LogStoreURL   string          `mapstructure:"logStoreURL"`
	Gateway       GatewayConfig   `mapstructure:"gateway"`
	Extensions    map[string]bool `mapstructure:"extensions"`
}

// Load reads the configuration document, applying defaults for anything
// unset. A missing file is not an error.
func Load(path string) (*Config, error) {
	v := viper.New()
	v.SetConfigFile(path)
	v.SetConfigType("yaml")

	v.SetDefault("logLevel", "info")
	v.SetDefault("runtimeBinary", "docker")
	v.SetDefault("proxyAddr", "127.0.0.1:80")
	v.SetDefault("dnsAddr", "127.0.0.1:53")
	v.SetDefault("logStoreURL", "http://127.0.0.1:3100")
	v.SetDefault("gateway.enabled", false)
	v.SetDefault("gateway.bind", "127.0.0.1")
	v.SetDefault("gateway.port", 4885)
	v.SetDefault("gateway.allowWrites", false)

	if err := v.ReadInConfig(); err != nil {
		var notFound viper.ConfigFileNotFoundError
		if !errors.As(err, &notFound) && !errors.Is(err, fs.ErrNotExist) {
			return nil, fmt.Errorf("read config %s: %w", path, err)
		}
	}

	var cfg Config
	if err := v.Unmarshal(&cfg); err != nil {
		return nil, fmt.Errorf("decode config %s: %w", path, err)
	}
	if cfg.Extensions == nil {
		cfg.Extensions = make(map[string]bool)
	}
	if cfg.Gateway.Exposures == nil {
		cfg.Gateway.Exposures = make(map[string]ExposureConfig)
	}
	return &cfg, nil
}

// ExtensionEnabled reports whether the namespace's static handlers are
// active.
func (c *Config) ExtensionEnabled(namespace string) bool {
	return c.Extensions[namespace]
}

// Exposure returns the settings for a channel, zero-valued when unset.
func (c *Config) Exposure(kind string) ExposureConfig {
	return c.Gateway.Exposures[kind]
}
