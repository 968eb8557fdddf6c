package config

import (
	"fmt"
	"os"
	"strconv"
	"strings"

	"gopkg.in/yaml.v3"
)

// Config defines server configuration. It is built once in main and passed by
// reference; request handlers never read the environment.
type Config struct {
	API       APIConfig       `yaml:"api"`
	Server    ServerConfig    `yaml:"server"`
	Transport TransportConfig `yaml:"transport"`
	Auth      AuthConfig      `yaml:"auth"`
	Log       LogConfig       `yaml:"log"`
	Docs      DocsConfig      `yaml:"docs"`
}

// APIConfig locates the AnyDB backend and optionally carries default
// credentials for single-tenant operation without per-call headers.
type APIConfig struct {
	BaseURL string `yaml:"base_url"`
	Key     string `yaml:"key"`
	Email   string `yaml:"email"`
}

type ServerConfig struct {
	Host string `yaml:"host"`
	Port int    `yaml:"port"`
}

type TransportConfig struct {
	Mode string `yaml:"mode"` // "stdio" or "http"
}

// AuthConfig lists tokens that grant access to this service itself (not to
// AnyDB). Empty means auth is disabled, the local single-tenant mode.
type AuthConfig struct {
	Tokens []string `yaml:"tokens"`
}

type LogConfig struct {
	Level string `yaml:"level"`
}

// DocsConfig optionally points at a directory of markdown files to serve as
// extra MCP resources.
type DocsConfig struct {
	Path string `yaml:"path"`
}

// Load reads configuration from an optional YAML file and environment
// variables, environment winning.
func Load() (Config, error) {
	cfg := Config{
		API: APIConfig{
			BaseURL: "https://api.anydb.com",
		},
		Server: ServerConfig{
			Host: "0.0.0.0",
			Port: 8080,
		},
		Transport: TransportConfig{
			Mode: "stdio",
		},
		Log: LogConfig{
			Level: "info",
		},
	}

	if path := os.Getenv("ANYDB_CONFIG_PATH"); path != "" {
		if err := loadFromFile(path, &cfg); err != nil {
			return Config{}, err
		}
	}

	if baseURL := os.Getenv("ANYDB_API_BASE_URL"); baseURL != "" {
		cfg.API.BaseURL = baseURL
	}
	if key := os.Getenv("ANYDB_API_KEY"); key != "" {
		cfg.API.Key = key
	}
	if email := os.Getenv("ANYDB_USER_EMAIL"); email != "" {
		cfg.API.Email = email
	}
	if mode := os.Getenv("ANYDB_TRANSPORT"); mode != "" {
		cfg.Transport.Mode = mode
	}
	if host := os.Getenv("ANYDB_SERVER_HOST"); host != "" {
		cfg.Server.Host = host
	}
	if portStr := os.Getenv("ANYDB_SERVER_PORT"); portStr != "" {
		port, err := strconv.Atoi(portStr)
		if err != nil {
			return Config{}, fmt.Errorf("invalid ANYDB_SERVER_PORT: %w", err)
		}
		cfg.Server.Port = port
	}
	if tokens := os.Getenv("ANYDB_AUTH_TOKENS"); tokens != "" {
		cfg.Auth.Tokens = splitTokens(tokens)
	}
	if level := os.Getenv("ANYDB_LOG_LEVEL"); level != "" {
		cfg.Log.Level = level
	}
	if docsPath := os.Getenv("ANYDB_DOCS_PATH"); docsPath != "" {
		cfg.Docs.Path = docsPath
	}

	if cfg.Transport.Mode != "stdio" && cfg.Transport.Mode != "http" {
		return Config{}, fmt.Errorf("invalid transport mode %q (want stdio or http)", cfg.Transport.Mode)
	}

	return cfg, nil
}

func loadFromFile(path string, cfg *Config) error {
	data, err := os.ReadFile(path)
	if err != nil {
		return fmt.Errorf("read config file: %w", err)
	}
	if err := yaml.Unmarshal(data, cfg); err != nil {
		return fmt.Errorf("parse config file: %w", err)
	}
	return nil
}

func splitTokens(raw string) []string {
	var tokens []string
	for _, token := range strings.Split(raw, ",") {
		if token = strings.TrimSpace(token); token != "" {
			tokens = append(tokens, token)
		}
	}
	return tokens
}
