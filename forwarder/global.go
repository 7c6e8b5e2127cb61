package forwarder

import (
	"context"
	"errors"
	"log/slog"
	"sync"

	"github.com/philipp01105/logship/core"
	"github.com/philipp01105/logship/handler"
	"github.com/philipp01105/logship/logger"
)

// ErrAlreadyInitialized is returned by every Init call after the first
// successful one.
var ErrAlreadyInitialized = errors.New("forwarder: already initialized")

var (
	globalMu sync.Mutex
	global   *Forwarder
)

// Init creates the process-wide Forwarder for hostname and remoteAddress
// with sink as the local handler, starts its delivery worker, and
// installs it as the default logger (at Trace, leaving filtering to the
// sink) and as the default slog handler.
//
// Only the first successful call has an effect; later calls return
// ErrAlreadyInitialized. A call that fails validation can be retried.
func Init(hostname, remoteAddress string, sink handler.Handler) error {
	return InitConfig(Config{
		Hostname: hostname,
		Address:  remoteAddress,
		Sink:     sink,
	})
}

// InitConfig is Init with full control over the Forwarder settings.
func InitConfig(cfg Config) error {
	globalMu.Lock()
	defer globalMu.Unlock()
	if global != nil {
		return ErrAlreadyInitialized
	}

	f, err := New(cfg)
	if err != nil {
		return err
	}
	if err := f.Start(context.Background()); err != nil {
		return err
	}
	global = f

	logger.SetDefault(logger.NewBuilder().
		WithHandler(f).
		WithLevel(core.TraceLevel).
		Build())
	slog.SetDefault(slog.New(handler.NewSlogHandler(f, core.TraceLevel, "")))
	return nil
}

// Default returns the Forwarder installed by Init, or nil.
func Default() *Forwarder {
	globalMu.Lock()
	defer globalMu.Unlock()
	return global
}
