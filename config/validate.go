package config

import (
	"errors"
	"fmt"
	"net"
	"strings"

	"github.com/philipp01105/logship/formatter"
	"github.com/philipp01105/logship/handler"
)

// ErrNoRemoteAddress is returned by Validate when remote.address is unset.
var ErrNoRemoteAddress = errors.New("remote.address is required (LOGSHIP_REMOTE_ADDRESS)")

// Validate checks that required configuration is present and valid.
func (c *Config) Validate() error {
	if err := c.validateRemote(); err != nil {
		return err
	}
	return c.validateSink()
}

func (c *Config) validateRemote() error {
	if c.Remote.Address == "" {
		return ErrNoRemoteAddress
	}
	if _, _, err := net.SplitHostPort(c.Remote.Address); err != nil {
		return fmt.Errorf("remote.address %q: %w", c.Remote.Address, err)
	}
	if c.Remote.Backoff <= 0 {
		return fmt.Errorf("remote.backoff must be positive, got %v", c.Remote.Backoff)
	}
	if c.Remote.DialTimeout < 0 || c.Remote.WriteTimeout < 0 || c.Remote.DrainTimeout < 0 {
		return fmt.Errorf("remote timeouts must not be negative")
	}
	return nil
}

func (c *Config) validateSink() error {
	switch strings.ToLower(c.Sink.Kind) {
	case SinkConsole, SinkZap, SinkNone:
	case SinkFile:
		if c.Sink.File.Path == "" {
			return fmt.Errorf("sink.file.path is required when sink.kind is %q", SinkFile)
		}
		if c.Sink.File.MaxSize < 0 || c.Sink.File.MaxBackups < 0 {
			return fmt.Errorf("sink.file limits must not be negative")
		}
	default:
		return fmt.Errorf("sink.kind must be one of console, file, zap, none; got %q", c.Sink.Kind)
	}

	if _, err := formatter.New(c.Sink.Format, formatter.Config{}); err != nil {
		return fmt.Errorf("sink.format: %w", err)
	}
	if _, err := handler.ParseFilter(c.Sink.Filter); err != nil {
		return fmt.Errorf("sink.filter: %w", err)
	}
	return nil
}
