package config

import (
	"fmt"
	"strings"

	"github.com/prometheus/client_golang/prometheus"
	"go.uber.org/zap"

	"github.com/philipp01105/logship/diag"
	"github.com/philipp01105/logship/formatter"
	"github.com/philipp01105/logship/forwarder"
	"github.com/philipp01105/logship/handler"
	"github.com/philipp01105/logship/handler/consolehandler"
	"github.com/philipp01105/logship/handler/filehandler"
)

// BuildSink creates the local handler described by the sink section.
// Kind none yields nil: the forwarder then only ships, using the filter.
func (c *Config) BuildSink() (handler.Handler, error) {
	filter, err := handler.ParseFilter(c.Sink.Filter)
	if err != nil {
		return nil, fmt.Errorf("sink.filter: %w", err)
	}
	fmtr, err := formatter.New(c.Sink.Format, formatter.Config{IncludeCaller: c.Sink.Caller})
	if err != nil {
		return nil, fmt.Errorf("sink.format: %w", err)
	}

	switch strings.ToLower(c.Sink.Kind) {
	case SinkConsole, "":
		return consolehandler.NewConsoleHandler(consolehandler.ConsoleConfig{
			Formatter: fmtr,
			Filter:    filter,
			Async:     c.Sink.Async,
		}), nil
	case SinkFile:
		return filehandler.NewFileHandler(filehandler.FileConfig{
			Filename:       c.Sink.File.Path,
			Formatter:      fmtr,
			Filter:         filter,
			Async:          c.Sink.Async,
			MaxSize:        c.Sink.File.MaxSize,
			MaxAge:         c.Sink.File.MaxAge,
			MaxBackups:     c.Sink.File.MaxBackups,
			RotateInterval: c.Sink.File.RotateInterval,
			Compress:       c.Sink.File.Compress,
		})
	case SinkZap:
		zcfg := zap.NewProductionConfig()
		zcfg.Level = zap.NewAtomicLevelAt(zap.DebugLevel)
		zcfg.DisableCaller = !c.Sink.Caller
		l, err := zcfg.Build()
		if err != nil {
			return nil, fmt.Errorf("sink zap logger: %w", err)
		}
		return handler.NewZapHandler(l, filter), nil
	case SinkNone:
		return nil, nil
	default:
		return nil, fmt.Errorf("unknown sink.kind %q", c.Sink.Kind)
	}
}

// ForwarderConfig turns the configuration into forwarder settings. sink
// may be nil; the sink filter is then applied by the forwarder itself.
func (c *Config) ForwarderConfig(sink handler.Handler, reporter diag.Reporter, reg prometheus.Registerer) (forwarder.Config, error) {
	filter, err := handler.ParseFilter(c.Sink.Filter)
	if err != nil {
		return forwarder.Config{}, fmt.Errorf("sink.filter: %w", err)
	}
	return forwarder.Config{
		Hostname:     c.Hostname,
		Address:      c.Remote.Address,
		Sink:         sink,
		Filter:       filter,
		Backoff:      c.Remote.Backoff,
		DialTimeout:  c.Remote.DialTimeout,
		WriteTimeout: c.Remote.WriteTimeout,
		Redeliver:    c.Remote.Redeliver,
		Reporter:     reporter,
		Registerer:   reg,
		DrainTimeout: c.Remote.DrainTimeout,
	}, nil
}
