// Package config provides configuration management for templens using Viper
// for flexible loading from files, environment variables, and command-line
// flags.
//
// The configuration system supports YAML files and environment variable
// overrides with the TEMPLENS_ prefix. It manages the projects to load at
// startup, the event stream server address, file watching, and logging.
package config

import (
	"fmt"
	"path/filepath"
	"strings"

	"github.com/spf13/viper"
)

// Viper decodes through mapstructure, so every multi-word key carries a
// mapstructure tag alongside the yaml tag used for encoding.
type Config struct {
	Server   ServerConfig    `yaml:"server" mapstructure:"server"`
	Projects []ProjectConfig `yaml:"projects" mapstructure:"projects"`
	Watch    WatchConfig     `yaml:"watch" mapstructure:"watch"`
	Log      LogConfig       `yaml:"log" mapstructure:"log"`
}

type ServerConfig struct {
	Host string `yaml:"host" mapstructure:"host"`
	Port int    `yaml:"port" mapstructure:"port"`
}

// ProjectConfig declares one project to register at startup.
type ProjectConfig struct {
	// Path is the project configuration file path (project identity).
	Path string `yaml:"path" mapstructure:"path"`
	// Root is the directory scanned for documents; defaults to the
	// directory of Path.
	Root string `yaml:"root" mapstructure:"root"`
	// LanguageVersion is the templ language version the project targets.
	LanguageVersion string `yaml:"language_version" mapstructure:"language_version"`
	// Extensions lists document extensions; defaults to [".templ"].
	Extensions []string `yaml:"extensions" mapstructure:"extensions"`
}

type WatchConfig struct {
	// DebounceMs groups rapid file changes arriving within this window.
	DebounceMs int `yaml:"debounce_ms" mapstructure:"debounce_ms"`
}

type LogConfig struct {
	Level  string `yaml:"level" mapstructure:"level"`
	Format string `yaml:"format" mapstructure:"format"`
}

// SetupEnv wires TEMPLENS_-prefixed environment variable overrides into
// viper, e.g. TEMPLENS_SERVER_PORT=8080.
func SetupEnv() {
	viper.SetEnvPrefix("TEMPLENS")
	viper.AutomaticEnv()
	viper.SetEnvKeyReplacer(strings.NewReplacer(".", "_"))
}

// setDefaults registers the scalar defaults with viper. AutomaticEnv only
// surfaces environment variables for keys viper knows, so the defaults must
// be registered rather than patched in after Unmarshal.
func setDefaults() {
	viper.SetDefault("server.host", "localhost")
	viper.SetDefault("server.port", 7331)
	viper.SetDefault("watch.debounce_ms", 300)
	// Empty default keeps the --log-level flag fallback in Load effective
	// while still registering the key for TEMPLENS_LOG_LEVEL.
	viper.SetDefault("log.level", "")
	viper.SetDefault("log.format", "text")
}

// Load builds a Config from viper's merged sources and applies defaults.
func Load() (*Config, error) {
	setDefaults()

	var config Config
	if err := viper.Unmarshal(&config); err != nil {
		return nil, fmt.Errorf("unmarshaling config: %w", err)
	}

	if config.Watch.DebounceMs <= 0 {
		config.Watch.DebounceMs = 300
	}
	if config.Log.Level == "" {
		config.Log.Level = viper.GetString("log-level")
	}
	if config.Log.Level == "" {
		config.Log.Level = "info"
	}

	for i := range config.Projects {
		p := &config.Projects[i]
		if p.Root == "" {
			p.Root = filepath.Dir(p.Path)
		}
		if p.LanguageVersion == "" {
			p.LanguageVersion = "latest"
		}
		if len(p.Extensions) == 0 {
			p.Extensions = []string{".templ"}
		}
	}

	return &config, config.Validate()
}

// Validate rejects configurations the core cannot run with.
func (c *Config) Validate() error {
	if c.Server.Port < 0 || c.Server.Port > 65535 {
		return fmt.Errorf("invalid server port %d", c.Server.Port)
	}
	seen := make(map[string]bool, len(c.Projects))
	for _, p := range c.Projects {
		if p.Path == "" {
			return fmt.Errorf("project with empty path")
		}
		if seen[p.Path] {
			return fmt.Errorf("duplicate project path %s", p.Path)
		}
		seen[p.Path] = true
	}
	return nil
}
