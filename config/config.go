// Package config loads logship settings from defaults, an optional YAML
// file and LOGSHIP_ environment variables, in that order of precedence
// (lowest first).
package config

import (
	"time"
)

// Config is the complete logship configuration.
type Config struct {
	// Hostname stamped on every shipped message.
	// Default: os.Hostname()
	Hostname string `koanf:"hostname"`

	Remote  RemoteConfig  `koanf:"remote"`
	Sink    SinkConfig    `koanf:"sink"`
	Metrics MetricsConfig `koanf:"metrics"`
}

// RemoteConfig describes the collector connection.
type RemoteConfig struct {
	// Address of the collector, host:port. Required.
	Address string `koanf:"address"`

	// Backoff is the fixed wait between failed connection attempts.
	// Default: 1s
	Backoff time.Duration `koanf:"backoff"`

	// DialTimeout and WriteTimeout bound network calls. 0 disables them.
	DialTimeout  time.Duration `koanf:"dial_timeout"`
	WriteTimeout time.Duration `koanf:"write_timeout"`

	// Redeliver resends a message whose write failed instead of dropping it.
	Redeliver bool `koanf:"redeliver"`

	// DrainTimeout bounds how long shutdown waits for queued messages.
	// Default: 5s
	DrainTimeout time.Duration `koanf:"drain_timeout"`
}

// SinkConfig describes the local sink.
type SinkConfig struct {
	// Kind is one of console, file, zap or none.
	// Default: console
	Kind string `koanf:"kind"`

	// Format is text or json. Ignored by the zap sink.
	// Default: text
	Format string `koanf:"format"`

	// Filter holds directives such as "info,auth=debug,db::pool=trace".
	// It also decides which records are shipped.
	// Default: info
	Filter string `koanf:"filter"`

	// Async writes through a background goroutine.
	Async bool `koanf:"async"`

	// Caller adds file:line to local output.
	Caller bool `koanf:"caller"`

	File FileSinkConfig `koanf:"file"`
}

// FileSinkConfig is used when Kind is file.
type FileSinkConfig struct {
	Path           string        `koanf:"path"`
	MaxSize        int64         `koanf:"max_size"`
	MaxAge         time.Duration `koanf:"max_age"`
	MaxBackups     int           `koanf:"max_backups"`
	RotateInterval time.Duration `koanf:"rotate_interval"`
	Compress       bool          `koanf:"compress"`
}

// MetricsConfig controls the prometheus endpoint of the demo command.
type MetricsConfig struct {
	// Listen address for /metrics. Empty disables the endpoint.
	Listen string `koanf:"listen"`
}

// Sink kinds.
const (
	SinkConsole = "console"
	SinkFile    = "file"
	SinkZap     = "zap"
	SinkNone    = "none"
)
