// YAML config loader with CUE validation integration
package config

import (
	"errors"
	"fmt"
	"io/fs"
	"os"
	"path/filepath"
	"strconv"
	"time"

	"gopkg.in/yaml.v3"
)

// Stream selects and configures the push transport.
type Stream struct {
	Transport       string        `yaml:"transport"`
	URL             string        `yaml:"url"`
	MQTTBroker      string        `yaml:"mqtt_broker"`
	MQTTTopicPrefix string        `yaml:"mqtt_topic_prefix"`
	MQTTUsername    string        `yaml:"mqtt_username"`
	MQTTPassword    string        `yaml:"mqtt_password"`
	ReplayFile      string        `yaml:"replay_file"`
	ReplaySpeed     float64       `yaml:"replay_speed"`
	SimSoldiers     int           `yaml:"sim_soldiers"`
	SimInterval     time.Duration `yaml:"sim_interval"`
	SimSeed         int64         `yaml:"sim_seed"`
	BackoffMin      time.Duration `yaml:"backoff_min"`
	BackoffMax      time.Duration `yaml:"backoff_max"`
}

// Credentials selects where the session credential is persisted.
type Credentials struct {
	Store       string `yaml:"store"`
	Path        string `yaml:"path"`
	RedisAddr   string `yaml:"redis_addr"`
	RedisPrefix string `yaml:"redis_prefix"`
}

// Archive enables recording of pushed readings.
type Archive struct {
	File             string `yaml:"file"`
	GreptimeEndpoint string `yaml:"greptime_endpoint"`
	GreptimeDatabase string `yaml:"greptime_database"`
}

// Log configures the process logger.
type Log struct {
	Level  string `yaml:"level"`
	Format string `yaml:"format"`
	File   string `yaml:"file"`
}

// Config is the root console configuration.
type Config struct {
	APIURL         string        `yaml:"api_url"`
	RequestTimeout time.Duration `yaml:"request_timeout"`
	HistoryCap     int           `yaml:"history_cap"`
	StatusAddr     string        `yaml:"status_addr"`
	Stream         Stream        `yaml:"stream"`
	Credentials    Credentials   `yaml:"credentials"`
	Archive        Archive       `yaml:"archive"`
	Log            Log           `yaml:"log"`
}

// Transport names.
const (
	TransportWebsocket = "websocket"
	TransportMQTT      = "mqtt"
	TransportReplay    = "replay"
	TransportSim       = "sim"
	TransportNone      = "none"
)

// Default returns the built-in configuration.
func Default() *Config {
	return &Config{
		APIURL:         "http://localhost:5000/api",
		RequestTimeout: 15 * time.Second,
		HistoryCap:     30,
		Stream: Stream{
			Transport:       TransportWebsocket,
			URL:             "ws://localhost:5000/ws",
			MQTTBroker:      "tcp://localhost:1883",
			MQTTTopicPrefix: "vitalsops",
			ReplaySpeed:     1,
			SimSoldiers:     8,
			SimInterval:     time.Second,
			BackoffMin:      500 * time.Millisecond,
			BackoffMax:      30 * time.Second,
		},
		Credentials: Credentials{
			Store:       "file",
			RedisAddr:   "localhost:6379",
			RedisPrefix: "vitalsops",
		},
		Archive: Archive{GreptimeDatabase: "public"},
		Log:     Log{Level: "info", Format: "text"},
	}
}

// DefaultPath returns the per-user config file location.
func DefaultPath() string {
	dir, err := os.UserConfigDir()
	if err != nil {
		return "vitalsops.yaml"
	}
	return filepath.Join(dir, "vitalsops", "config.yaml")
}

// Load reads configPath over the defaults, validates it against the CUE
// schema and applies environment overrides. A missing file yields the
// defaults.
func Load(configPath string) (*Config, error) {
	cfg := Default()
	if configPath != "" {
		data, err := os.ReadFile(configPath)
		switch {
		case errors.Is(err, fs.ErrNotExist):
		case err != nil:
			return nil, fmt.Errorf("read config: %w", err)
		default:
			if err := ValidateWithCue(configPath, data); err != nil {
				return nil, err
			}
			if err := yaml.Unmarshal(data, cfg); err != nil {
				return nil, fmt.Errorf("decode config: %w", err)
			}
		}
	}
	if err := applyEnv(cfg); err != nil {
		return nil, err
	}
	if cfg.Stream.BackoffMax < cfg.Stream.BackoffMin {
		return nil, fmt.Errorf("stream.backoff_max %s is below backoff_min %s", cfg.Stream.BackoffMax, cfg.Stream.BackoffMin)
	}
	return cfg, nil
}

func applyEnv(cfg *Config) error {
	if v := os.Getenv("VITALSOPS_API_URL"); v != "" {
		cfg.APIURL = v
	}
	if v := os.Getenv("VITALSOPS_STREAM_URL"); v != "" {
		cfg.Stream.URL = v
	}
	if v := os.Getenv("VITALSOPS_TRANSPORT"); v != "" {
		switch v {
		case TransportWebsocket, TransportMQTT, TransportReplay, TransportSim, TransportNone:
			cfg.Stream.Transport = v
		default:
			return fmt.Errorf("VITALSOPS_TRANSPORT: unknown transport %q", v)
		}
	}
	if v := os.Getenv("MQTT_BROKER"); v != "" {
		cfg.Stream.MQTTBroker = v
	}
	if v := os.Getenv("VITALSOPS_TOKEN_STORE"); v != "" {
		if v != "file" && v != "redis" {
			return fmt.Errorf("VITALSOPS_TOKEN_STORE: unknown store %q", v)
		}
		cfg.Credentials.Store = v
	}
	if v := os.Getenv("REDIS_ADDR"); v != "" {
		cfg.Credentials.RedisAddr = v
	}
	if v := os.Getenv("GREPTIMEDB_ENDPOINT"); v != "" {
		cfg.Archive.GreptimeEndpoint = v
	}
	if v := os.Getenv("GREPTIMEDB_DATABASE"); v != "" {
		cfg.Archive.GreptimeDatabase = v
	}
	if v := os.Getenv("VITALSOPS_HISTORY_CAP"); v != "" {
		n, err := strconv.Atoi(v)
		if err != nil || n <= 0 {
			return fmt.Errorf("VITALSOPS_HISTORY_CAP: invalid value %q", v)
		}
		cfg.HistoryCap = n
	}
	if v := os.Getenv("VITALSOPS_LOG_LEVEL"); v != "" {
		cfg.Log.Level = v
	}
	return nil
}
