package config

import (
	"fmt"
	"time"

	"github.com/spf13/viper"
)

// Config represents the application configuration
type Config struct {
	Server   ServerConfig   `mapstructure:"server"`
	Logging  LoggingConfig  `mapstructure:"logging"`
	Security SecurityConfig `mapstructure:"security"`
	Runtime  RuntimeConfig  `mapstructure:"runtime"`
	Remote   RemoteConfig   `mapstructure:"remote"`
}

// ServerConfig holds server configuration
type ServerConfig struct {
	Transport   string `mapstructure:"transport"`
	HTTPPort    int    `mapstructure:"http_port"`
	MetricsPort int    `mapstructure:"metrics_port"`
}

// LoggingConfig holds logging configuration
type LoggingConfig struct {
	Mode  string `mapstructure:"mode"`
	Level string `mapstructure:"level"`
}

// SecurityConfig holds the static capability policy applied to untrusted code.
// The denylist and allowlist are read once at startup and never mutated.
type SecurityConfig struct {
	Denylist  []string `mapstructure:"denylist"`
	Allowlist []string `mapstructure:"allowlist"`
}

// RuntimeConfig holds execution runtime configuration
type RuntimeConfig struct {
	JSDeadlineMs      int    `mapstructure:"js_deadline_ms"`
	PythonBin         string `mapstructure:"python_bin"`
	PipBin            string `mapstructure:"pip_bin"`
	InstallTimeoutSec int    `mapstructure:"install_timeout_sec"`
	DefaultTimeoutMs  int    `mapstructure:"default_timeout_ms"`
}

// RemoteConfig holds the optional remote runner service configuration.
// An empty endpoint means Python code runs in a local child process.
type RemoteConfig struct {
	Endpoint string `mapstructure:"endpoint"`
}

// New loads and validates the application configuration
func New() (*Config, error) {
	viper.SetConfigName("config")
	viper.SetConfigType("yaml")
	viper.AddConfigPath(".")
	viper.AddConfigPath("./config")

	// Set default values
	viper.SetDefault("server.transport", "stdio")
	viper.SetDefault("server.http_port", 8080)
	viper.SetDefault("server.metrics_port", 0)

	viper.SetDefault("logging.mode", "production")
	viper.SetDefault("logging.level", "info")

	// Capability names blocked for untrusted Python code. Keep in sync with
	// the dangerous-call catalogue in the sandbox validator, which covers
	// invocations that never appear in an import statement.
	viper.SetDefault("security.denylist", []string{
		"os", "sys", "subprocess", "socket", "shutil",
		"ctypes", "pickle", "marshal", "importlib",
	})
	viper.SetDefault("security.allowlist", []string{})

	viper.SetDefault("runtime.js_deadline_ms", 3000)
	viper.SetDefault("runtime.python_bin", "python3")
	viper.SetDefault("runtime.pip_bin", "pip3")
	viper.SetDefault("runtime.install_timeout_sec", 30)
	viper.SetDefault("runtime.default_timeout_ms", 30000)

	viper.SetDefault("remote.endpoint", "")

	if err := viper.ReadInConfig(); err != nil {
		if _, ok := err.(viper.ConfigFileNotFoundError); !ok {
			return nil, fmt.Errorf("error reading config file: %w", err)
		}
		// If config file not found, continue with defaults
	}

	var config Config
	if err := viper.Unmarshal(&config); err != nil {
		return nil, fmt.Errorf("error unmarshaling config: %w", err)
	}

	// Validate configuration
	if err := config.validate(); err != nil {
		return nil, fmt.Errorf("config validation error: %w", err)
	}

	return &config, nil
}

// validate ensures the configuration is valid
func (c *Config) validate() error {
	if c.Server.Transport != "stdio" && c.Server.Transport != "http" {
		return fmt.Errorf("invalid server.transport: %s, must be 'stdio' or 'http'", c.Server.Transport)
	}

	if c.Logging.Mode != "production" && c.Logging.Mode != "development" {
		return fmt.Errorf("invalid logging.mode: %s, must be 'production' or 'development'", c.Logging.Mode)
	}

	if c.Runtime.JSDeadlineMs <= 0 {
		return fmt.Errorf("runtime.js_deadline_ms must be positive, got: %d", c.Runtime.JSDeadlineMs)
	}

	if c.Runtime.PythonBin == "" {
		return fmt.Errorf("runtime.python_bin must not be empty")
	}

	if c.Runtime.InstallTimeoutSec <= 0 {
		return fmt.Errorf("runtime.install_timeout_sec must be positive, got: %d", c.Runtime.InstallTimeoutSec)
	}

	if c.Runtime.DefaultTimeoutMs <= 0 {
		return fmt.Errorf("runtime.default_timeout_ms must be positive, got: %d", c.Runtime.DefaultTimeoutMs)
	}

	return nil
}

// GetJSDeadline returns the in-process interpreter deadline as a duration
func (c *Config) GetJSDeadline() time.Duration {
	return time.Duration(c.Runtime.JSDeadlineMs) * time.Millisecond
}

// GetInstallTimeout returns the dependency install timeout as a duration
func (c *Config) GetInstallTimeout() time.Duration {
	return time.Duration(c.Runtime.InstallTimeoutSec) * time.Second
}
