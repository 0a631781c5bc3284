package config

import (
	"os"
	"path/filepath"
	"reflect"
	"testing"
	"time"
)

func TestDefault(t *testing.T) {
	cfg := Default()
	if cfg.Server.Addr != ":8080" {
		t.Errorf("Server.Addr = %q, want %q", cfg.Server.Addr, ":8080")
	}
	if got := cfg.Server.ShutdownTimeout(); got != 10*time.Second {
		t.Errorf("ShutdownTimeout() = %v, want %v", got, 10*time.Second)
	}
	if cfg.Log.Level != "info" {
		t.Errorf("Log.Level = %q, want %q", cfg.Log.Level, "info")
	}
	if cfg.Web.WebSockets {
		t.Error("Web.WebSockets = true, want false by default")
	}
}

func TestLoadFile(t *testing.T) {
	path := filepath.Join(t.TempDir(), "config.yaml")
	body := `
server:
  addr: ":9090"
  shutdown_timeout_seconds: 3
web:
  max_frame_size: 1048576
  websockets: true
cors:
  allowed_origins:
    - https://app.example.com
  allowed_headers:
    - content-type
    - x-grpc-web
  max_age_seconds: 600
log:
  level: debug
  development: true
`
	if err := os.WriteFile(path, []byte(body), 0o600); err != nil {
		t.Fatalf("WriteFile() error = %v", err)
	}

	cfg, err := Load(path)
	if err != nil {
		t.Fatalf("Load() error = %v", err)
	}
	if cfg.Server.Addr != ":9090" {
		t.Errorf("Server.Addr = %q, want %q", cfg.Server.Addr, ":9090")
	}
	if cfg.Web.MaxFrameSize != 1048576 {
		t.Errorf("Web.MaxFrameSize = %d, want %d", cfg.Web.MaxFrameSize, 1048576)
	}
	if !cfg.Web.WebSockets {
		t.Error("Web.WebSockets = false, want true")
	}
	wantOrigins := []string{"https://app.example.com"}
	if !reflect.DeepEqual(cfg.CORS.AllowedOrigins, wantOrigins) {
		t.Errorf("CORS.AllowedOrigins = %v, want %v", cfg.CORS.AllowedOrigins, wantOrigins)
	}
	if cfg.Log.Level != "debug" || !cfg.Log.Development {
		t.Errorf("Log = %+v, want debug development logger", cfg.Log)
	}

	rules := cfg.CORS.Rules()
	if rules.MaxAge != 10*time.Minute {
		t.Errorf("Rules().MaxAge = %v, want %v", rules.MaxAge, 10*time.Minute)
	}
	wantHeaders := []string{"content-type", "x-grpc-web"}
	if !reflect.DeepEqual(rules.AllowedHeaders, wantHeaders) {
		t.Errorf("Rules().AllowedHeaders = %v, want %v", rules.AllowedHeaders, wantHeaders)
	}
}

func TestLoadMissingFile(t *testing.T) {
	if _, err := Load(filepath.Join(t.TempDir(), "absent.yaml")); err == nil {
		t.Error("Load() on a missing file: want error, got nil")
	}
}

func TestLoadBadYAML(t *testing.T) {
	path := filepath.Join(t.TempDir(), "config.yaml")
	if err := os.WriteFile(path, []byte("server: ["), 0o600); err != nil {
		t.Fatalf("WriteFile() error = %v", err)
	}
	if _, err := Load(path); err == nil {
		t.Error("Load() on bad YAML: want error, got nil")
	}
}

func TestEnvOverrides(t *testing.T) {
	t.Setenv("GRPCWEB_ADDR", ":7070")
	t.Setenv("GRPCWEB_WEBSOCKETS", "true")
	t.Setenv("GRPCWEB_MAX_FRAME_SIZE", "2048")
	t.Setenv("GRPCWEB_ALLOWED_ORIGINS", "https://a.example.com, https://b.example.com")
	t.Setenv("GRPCWEB_LOG_LEVEL", "warn")

	cfg, err := Load("")
	if err != nil {
		t.Fatalf("Load() error = %v", err)
	}
	if cfg.Server.Addr != ":7070" {
		t.Errorf("Server.Addr = %q, want %q", cfg.Server.Addr, ":7070")
	}
	if !cfg.Web.WebSockets {
		t.Error("Web.WebSockets = false, want true")
	}
	if cfg.Web.MaxFrameSize != 2048 {
		t.Errorf("Web.MaxFrameSize = %d, want 2048", cfg.Web.MaxFrameSize)
	}
	wantOrigins := []string{"https://a.example.com", "https://b.example.com"}
	if !reflect.DeepEqual(cfg.CORS.AllowedOrigins, wantOrigins) {
		t.Errorf("CORS.AllowedOrigins = %v, want %v", cfg.CORS.AllowedOrigins, wantOrigins)
	}
	if cfg.Log.Level != "warn" {
		t.Errorf("Log.Level = %q, want %q", cfg.Log.Level, "warn")
	}
}

func TestEnvOverridesFile(t *testing.T) {
	path := filepath.Join(t.TempDir(), "config.yaml")
	if err := os.WriteFile(path, []byte("server:\n  addr: \":9090\"\n"), 0o600); err != nil {
		t.Fatalf("WriteFile() error = %v", err)
	}
	t.Setenv("GRPCWEB_ADDR", ":6060")

	cfg, err := Load(path)
	if err != nil {
		t.Fatalf("Load() error = %v", err)
	}
	if cfg.Server.Addr != ":6060" {
		t.Errorf("Server.Addr = %q, want environment to win over the file", cfg.Server.Addr)
	}
}
