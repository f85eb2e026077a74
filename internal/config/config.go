// Package config loads lcm-go's process-wide configuration, layering CLI
// flags over environment variables over an optional config file over
// defaults, the way dittofs's pkg/config/config.go layers viper: flags take
// precedence via pflag.FlagSet binding, LCM_* environment variables are
// picked up automatically, and a YAML file supplies the rest.
package config

import (
	"fmt"
	"os"
	"path/filepath"
	"strings"

	"github.com/spf13/pflag"
	"github.com/spf13/viper"
)

// Config is the process-wide configuration shared by the lcm-go CLI tools
// and library defaults.
type Config struct {
	// DefaultURL is the provider URL used when a caller doesn't specify one
	// explicitly, mirroring the original implementation's LCM_DEFAULT_URL
	// environment variable.
	DefaultURL string `mapstructure:"default_url"`

	Logging LoggingConfig `mapstructure:"logging"`
}

// LoggingConfig controls the internal/obs logger.
type LoggingConfig struct {
	Level string `mapstructure:"level"`
	JSON  bool   `mapstructure:"json"`
}

func defaults() Config {
	return Config{
		DefaultURL: "",
		Logging: LoggingConfig{
			Level: "info",
			JSON:  false,
		},
	}
}

// Load builds a Config from (in increasing precedence) built-in defaults,
// an optional YAML file at configPath (or the default search path if
// configPath is empty), LCM_* environment variables, and any flags already
// registered on flags (bind flags before calling Load so their values win).
func Load(configPath string, flags *pflag.FlagSet) (*Config, error) {
	v := viper.New()

	cfg := defaults()
	v.SetDefault("default_url", cfg.DefaultURL)
	v.SetDefault("logging.level", cfg.Logging.Level)
	v.SetDefault("logging.json", cfg.Logging.JSON)

	v.SetEnvPrefix("LCM")
	v.SetEnvKeyReplacer(strings.NewReplacer(".", "_"))
	v.AutomaticEnv()
	// The library's own default provider URL is looked up under the bare
	// "DEFAULT_URL" name (matching the original implementation's env var),
	// in addition to the LCM_-prefixed form AutomaticEnv already covers.
	_ = v.BindEnv("default_url", "DEFAULT_URL", "LCM_DEFAULT_URL")

	if configPath != "" {
		v.SetConfigFile(configPath)
	} else {
		v.AddConfigPath(defaultConfigDir())
		v.SetConfigName("config")
		v.SetConfigType("yaml")
	}

	if err := v.ReadInConfig(); err != nil {
		if !isConfigFileNotFound(err, configPath) {
			return nil, fmt.Errorf("config: read config file: %w", err)
		}
	}

	if flags != nil {
		if err := v.BindPFlags(flags); err != nil {
			return nil, fmt.Errorf("config: bind flags: %w", err)
		}
	}

	var out Config
	if err := v.Unmarshal(&out); err != nil {
		return nil, fmt.Errorf("config: unmarshal: %w", err)
	}
	return &out, nil
}

func isConfigFileNotFound(err error, explicitPath string) bool {
	if _, ok := err.(viper.ConfigFileNotFoundError); ok {
		return true
	}
	if explicitPath != "" && os.IsNotExist(err) {
		return true
	}
	return false
}

func defaultConfigDir() string {
	if xdg := os.Getenv("XDG_CONFIG_HOME"); xdg != "" {
		return filepath.Join(xdg, "lcm-go")
	}
	home, err := os.UserHomeDir()
	if err != nil {
		return "."
	}
	return filepath.Join(home, ".config", "lcm-go")
}
