package config

import (
	"fmt"

	"github.com/spf13/viper"

	"github.com/opsup/opsup/internal/store"
	"github.com/opsup/opsup/internal/supervisor"
)

// Config is the top-level TOML structure.
//
//	cli_name = "opencode"
//	cli_paths = ["/usr/local/bin"]
//	working_directory = "/work/project"
//
//	[detection]
//	deadline = "15s"
//	fallback_ports = [4096, 8080]
//	prefix_candidates = ["/api"]
//
//	[[endpoints]]
//	name = "agents"
//	path = "/agent"
//	timeout = "10s"
//
//	[server]
//	listen = "127.0.0.1:7654"
//
//	[store]
//	type = "sqlite"
//	path = "/var/lib/opsup/opsup.db"
type Config struct {
	Supervisor supervisor.Config `mapstructure:",squash"`
	Store      store.Config      `mapstructure:"store"`
	Server     ServerConfig      `mapstructure:"server"`
	Log        LogConfig         `mapstructure:"log"`
}

// ServerConfig configures the local control API.
type ServerConfig struct {
	Listen   string `mapstructure:"listen"`
	BasePath string `mapstructure:"base_path"`
}

// LogConfig configures the supervisor's own logging (captured CLI output is
// configured separately under [capture]).
type LogConfig struct {
	Level string `mapstructure:"level"`
	Color bool   `mapstructure:"color"`
}

// Default returns the built-in configuration used when no file is given.
func Default() *Config {
	return &Config{
		Server: ServerConfig{Listen: "127.0.0.1:7654"},
		Log:    LogConfig{Level: "info", Color: true},
	}
}

// Load reads a TOML config file. An empty path yields Default().
func Load(path string) (*Config, error) {
	if path == "" {
		return Default(), nil
	}
	v := viper.New()
	v.SetConfigFile(path)
	v.SetConfigType("toml")
	if err := v.ReadInConfig(); err != nil {
		return nil, fmt.Errorf("read config %s: %w", path, err)
	}
	cfg := Default()
	if err := v.Unmarshal(cfg); err != nil {
		return nil, fmt.Errorf("parse config %s: %w", path, err)
	}
	return cfg, nil
}
