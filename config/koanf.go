package config

import (
	"fmt"
	"os"
	"strings"
	"time"

	"github.com/knadh/koanf/parsers/yaml"
	"github.com/knadh/koanf/providers/env"
	"github.com/knadh/koanf/providers/file"
	"github.com/knadh/koanf/providers/structs"
	"github.com/knadh/koanf/v2"
)

// EnvPrefix is the prefix of every environment variable read by Load.
const EnvPrefix = "LOGSHIP_"

// ConfigPathEnvVar overrides the config file path when Load gets none.
const ConfigPathEnvVar = "LOGSHIP_CONFIG"

// DefaultConfigPaths are searched in order when no path is given.
var DefaultConfigPaths = []string{
	"logship.yaml",
	"logship.yml",
	"/etc/logship/logship.yaml",
}

// defaultConfig returns the built-in defaults, the lowest layer.
func defaultConfig() *Config {
	hostname, _ := os.Hostname()
	return &Config{
		Hostname: hostname,
		Remote: RemoteConfig{
			Address:      "",
			Backoff:      time.Second,
			DialTimeout:  0,
			WriteTimeout: 0,
			Redeliver:    false,
			DrainTimeout: 5 * time.Second,
		},
		Sink: SinkConfig{
			Kind:   SinkConsole,
			Format: "text",
			Filter: "info",
			Async:  false,
			Caller: false,
			File: FileSinkConfig{
				Path:       "",
				MaxBackups: 5,
			},
		},
		Metrics: MetricsConfig{
			Listen: "",
		},
	}
}

// Load builds a Config from three layers:
//  1. Defaults
//  2. The YAML file at path, or the first of DefaultConfigPaths that
//     exists when path is empty
//  3. LOGSHIP_ environment variables
//
// Overrides, typically bound to command-line flags, are applied last.
// The result is validated before it is returned.
func Load(path string, overrides ...func(*Config)) (*Config, error) {
	k := koanf.New(".")

	if err := k.Load(structs.Provider(defaultConfig(), "koanf"), nil); err != nil {
		return nil, fmt.Errorf("failed to load defaults: %w", err)
	}

	if path == "" {
		path = findConfigFile()
	} else if _, err := os.Stat(path); err != nil {
		return nil, fmt.Errorf("config file %s: %w", path, err)
	}
	if path != "" {
		if err := k.Load(file.Provider(path), yaml.Parser()); err != nil {
			return nil, fmt.Errorf("failed to load config file %s: %w", path, err)
		}
	}

	if err := k.Load(env.Provider(EnvPrefix, ".", envTransformFunc), nil); err != nil {
		return nil, fmt.Errorf("failed to load environment variables: %w", err)
	}

	cfg := &Config{}
	if err := k.Unmarshal("", cfg); err != nil {
		return nil, fmt.Errorf("failed to unmarshal configuration: %w", err)
	}
	for _, override := range overrides {
		override(cfg)
	}

	if err := cfg.Validate(); err != nil {
		return nil, fmt.Errorf("configuration validation failed: %w", err)
	}
	return cfg, nil
}

// findConfigFile returns the first existing config file, or "".
func findConfigFile() string {
	if envPath := os.Getenv(ConfigPathEnvVar); envPath != "" {
		if _, err := os.Stat(envPath); err == nil {
			return envPath
		}
	}
	for _, path := range DefaultConfigPaths {
		if _, err := os.Stat(path); err == nil {
			return path
		}
	}
	return ""
}

// envMappings maps variable names, without the prefix and lower-cased,
// to koanf paths.
var envMappings = map[string]string{
	"hostname": "hostname",

	"remote_address":       "remote.address",
	"remote_backoff":       "remote.backoff",
	"remote_dial_timeout":  "remote.dial_timeout",
	"remote_write_timeout": "remote.write_timeout",
	"remote_redeliver":     "remote.redeliver",
	"remote_drain_timeout": "remote.drain_timeout",

	"sink_kind":   "sink.kind",
	"sink_format": "sink.format",
	"sink_filter": "sink.filter",
	"log":         "sink.filter",
	"sink_async":  "sink.async",
	"sink_caller": "sink.caller",

	"sink_file_path":            "sink.file.path",
	"sink_file_max_size":        "sink.file.max_size",
	"sink_file_max_age":         "sink.file.max_age",
	"sink_file_max_backups":     "sink.file.max_backups",
	"sink_file_rotate_interval": "sink.file.rotate_interval",
	"sink_file_compress":        "sink.file.compress",

	"metrics_listen": "metrics.listen",
}

// envTransformFunc maps LOGSHIP_REMOTE_ADDRESS to remote.address and so
// on. Unknown variables map to "" and are ignored.
//
// LOGSHIP_LOG is an alias for LOGSHIP_SINK_FILTER.
func envTransformFunc(key string) string {
	key = strings.ToLower(strings.TrimPrefix(key, EnvPrefix))
	return envMappings[key]
}
