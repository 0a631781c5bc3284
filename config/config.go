// Package config holds the proxy binary's configuration: defaults,
// overlaid by an optional YAML file, overlaid by environment variables.
package config

import (
	"fmt"
	"os"
	"strconv"
	"strings"
	"time"

	"gopkg.in/yaml.v3"

	"github.com/Millione/grpc-web/cors"
)

type Config struct {
	Server ServerConfig `yaml:"server"`
	Web    WebConfig    `yaml:"web"`
	CORS   CORSConfig   `yaml:"cors"`
	Log    LogConfig    `yaml:"log"`
}

type ServerConfig struct {
	Addr                   string `yaml:"addr"`
	ShutdownTimeoutSeconds int    `yaml:"shutdown_timeout_seconds"`
}

// ShutdownTimeout is how long a draining server waits for open calls.
func (c ServerConfig) ShutdownTimeout() time.Duration {
	return time.Duration(c.ShutdownTimeoutSeconds) * time.Second
}

type WebConfig struct {
	// MaxFrameSize caps request frame payloads in bytes; 0 keeps the
	// library default.
	MaxFrameSize uint32 `yaml:"max_frame_size"`
	WebSockets   bool   `yaml:"websockets"`
}

type CORSConfig struct {
	AllowedOrigins   []string `yaml:"allowed_origins"`
	AllowedHeaders   []string `yaml:"allowed_headers"`
	AllowedMethods   []string `yaml:"allowed_methods"`
	ExposedHeaders   []string `yaml:"exposed_headers"`
	AllowCredentials bool     `yaml:"allow_credentials"`
	MaxAgeSeconds    int      `yaml:"max_age_seconds"`
}

// Rules converts the section into the cross-origin rule set the web
// handler takes.
func (c CORSConfig) Rules() cors.Config {
	return cors.Config{
		AllowedOrigins:   c.AllowedOrigins,
		AllowedHeaders:   c.AllowedHeaders,
		AllowedMethods:   c.AllowedMethods,
		ExposedHeaders:   c.ExposedHeaders,
		AllowCredentials: c.AllowCredentials,
		MaxAge:           time.Duration(c.MaxAgeSeconds) * time.Second,
	}
}

type LogConfig struct {
	// Level is one of debug, info, warn, error.
	Level       string `yaml:"level"`
	Development bool   `yaml:"development"`
}

// Default returns the configuration used when nothing is specified.
func Default() *Config {
	return &Config{
		Server: ServerConfig{
			Addr:                   ":8080",
			ShutdownTimeoutSeconds: 10,
		},
		Log: LogConfig{
			Level: "info",
		},
	}
}

// Load builds the configuration: defaults, then the YAML file at path if
// path is non-empty, then environment variables.
func Load(path string) (*Config, error) {
	cfg := Default()
	if path != "" {
		data, err := os.ReadFile(path)
		if err != nil {
			return nil, fmt.Errorf("config: read %s: %w", path, err)
		}
		if err := yaml.Unmarshal(data, cfg); err != nil {
			return nil, fmt.Errorf("config: parse %s: %w", path, err)
		}
	}
	cfg.applyEnv()
	return cfg, nil
}

func (c *Config) applyEnv() {
	c.Server.Addr = getEnv("GRPCWEB_ADDR", c.Server.Addr)
	c.Server.ShutdownTimeoutSeconds = getIntEnv("GRPCWEB_SHUTDOWN_TIMEOUT_SECONDS", c.Server.ShutdownTimeoutSeconds)

	c.Web.MaxFrameSize = uint32(getIntEnv("GRPCWEB_MAX_FRAME_SIZE", int(c.Web.MaxFrameSize)))
	c.Web.WebSockets = getBoolEnv("GRPCWEB_WEBSOCKETS", c.Web.WebSockets)

	c.CORS.AllowedOrigins = getListEnv("GRPCWEB_ALLOWED_ORIGINS", c.CORS.AllowedOrigins)
	c.CORS.AllowedHeaders = getListEnv("GRPCWEB_ALLOWED_HEADERS", c.CORS.AllowedHeaders)
	c.CORS.AllowedMethods = getListEnv("GRPCWEB_ALLOWED_METHODS", c.CORS.AllowedMethods)
	c.CORS.ExposedHeaders = getListEnv("GRPCWEB_EXPOSED_HEADERS", c.CORS.ExposedHeaders)
	c.CORS.AllowCredentials = getBoolEnv("GRPCWEB_ALLOW_CREDENTIALS", c.CORS.AllowCredentials)
	c.CORS.MaxAgeSeconds = getIntEnv("GRPCWEB_MAX_AGE_SECONDS", c.CORS.MaxAgeSeconds)

	c.Log.Level = getEnv("GRPCWEB_LOG_LEVEL", c.Log.Level)
	c.Log.Development = getBoolEnv("GRPCWEB_LOG_DEVELOPMENT", c.Log.Development)
}

func getEnv(key, defaultValue string) string {
	if value := os.Getenv(key); value != "" {
		return value
	}
	return defaultValue
}

func getIntEnv(key string, defaultValue int) int {
	if value := os.Getenv(key); value != "" {
		if n, err := strconv.Atoi(value); err == nil {
			return n
		}
	}
	return defaultValue
}

func getBoolEnv(key string, defaultValue bool) bool {
	if value := os.Getenv(key); value != "" {
		if b, err := strconv.ParseBool(value); err == nil {
			return b
		}
	}
	return defaultValue
}

func getListEnv(key string, defaultValue []string) []string {
	value := os.Getenv(key)
	if value == "" {
		return defaultValue
	}
	var out []string
	for _, item := range strings.Split(value, ",") {
		if item = strings.TrimSpace(item); item != "" {
			out = append(out, item)
		}
	}
	return out
}
