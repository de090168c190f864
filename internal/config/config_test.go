package config

import (
	"os"
	"path/filepath"
	"strings"
	"testing"
	"time"
)

func writeConfig(t *testing.T, body string) string {
	t.Helper()
	path := filepath.Join(t.TempDir(), "vitalsops.yaml")
	if err := os.WriteFile(path, []byte(body), 0o644); err != nil {
		t.Fatalf("failed to write temp file: %v", err)
	}
	return path
}

func TestLoadConfig_Valid(t *testing.T) {
	path := writeConfig(t, `
api_url: https://portal.example/api
history_cap: 50
stream:
  transport: mqtt
  mqtt_broker: tcp://broker:1883
  backoff_min: 250ms
  backoff_max: 10s
credentials:
  store: redis
log:
  level: debug
  format: json
`)
	cfg, err := Load(path)
	if err != nil {
		t.Fatalf("Load() returned error: %v", err)
	}
	if cfg.APIURL != "https://portal.example/api" || cfg.HistoryCap != 50 {
		t.Errorf("unexpected top-level values: %+v", cfg)
	}
	if cfg.Stream.Transport != TransportMQTT || cfg.Stream.BackoffMin != 250*time.Millisecond {
		t.Errorf("unexpected stream: %+v", cfg.Stream)
	}
	// untouched keys keep their defaults
	if cfg.Stream.SimSoldiers != 8 || cfg.Credentials.RedisPrefix != "vitalsops" {
		t.Errorf("defaults lost: %+v", cfg)
	}
}

func TestLoadConfig_MissingFileUsesDefaults(t *testing.T) {
	cfg, err := Load(filepath.Join(t.TempDir(), "absent.yaml"))
	if err != nil {
		t.Fatalf("Load() returned error: %v", err)
	}
	if cfg.HistoryCap != 30 || cfg.Stream.Transport != TransportWebsocket {
		t.Errorf("unexpected defaults: %+v", cfg)
	}
}

func TestLoadConfig_SchemaRejects(t *testing.T) {
	cases := map[string]string{
		"unknown transport": "stream:\n  transport: carrier-pigeon\n",
		"unknown key":       "colour: green\n",
		"negative cap":      "history_cap: -1\n",
		"bad duration":      "request_timeout: soon\n",
		"bad log level":     "log:\n  level: loud\n",
	}
	for name, body := range cases {
		t.Run(name, func(t *testing.T) {
			if _, err := Load(writeConfig(t, body)); err == nil {
				t.Fatalf("expected validation error")
			}
		})
	}
}

func TestLoadConfig_BackoffOrder(t *testing.T) {
	path := writeConfig(t, "stream:\n  backoff_min: 10s\n  backoff_max: 1s\n")
	if _, err := Load(path); err == nil || !strings.Contains(err.Error(), "backoff_max") {
		t.Fatalf("expected backoff order error, got %v", err)
	}
}

func TestLoadConfig_EnvOverrides(t *testing.T) {
	t.Setenv("VITALSOPS_API_URL", "http://env/api")
	t.Setenv("VITALSOPS_TOKEN_STORE", "redis")
	t.Setenv("REDIS_ADDR", "redis:6380")
	t.Setenv("GREPTIMEDB_ENDPOINT", "greptime:4001")
	t.Setenv("VITALSOPS_HISTORY_CAP", "12")

	cfg, err := Load("")
	if err != nil {
		t.Fatalf("Load() returned error: %v", err)
	}
	if cfg.APIURL != "http://env/api" || cfg.Credentials.Store != "redis" || cfg.Credentials.RedisAddr != "redis:6380" {
		t.Errorf("env not applied: %+v", cfg)
	}
	if cfg.Archive.GreptimeEndpoint != "greptime:4001" || cfg.HistoryCap != 12 {
		t.Errorf("env not applied: %+v", cfg)
	}

	t.Setenv("VITALSOPS_TOKEN_STORE", "keyring")
	if _, err := Load(""); err == nil {
		t.Fatalf("expected error for unknown token store")
	}
}

func TestValidateWithCue_ExampleConfig(t *testing.T) {
	data, err := os.ReadFile("../../config/vitalsops.example.yaml")
	if err != nil {
		t.Fatalf("read example: %v", err)
	}
	if err := ValidateWithCue("vitalsops.example.yaml", data); err != nil {
		t.Fatalf("example config invalid: %v", err)
	}
}
