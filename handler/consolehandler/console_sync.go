package consolehandler

import (
	"github.com/philipp01105/logship/core"
)

// SyncConsoleHandler writes each entry on the caller's goroutine. It is
// the sink to pair with the remote forwarder when the local echo must
// be complete before the log call returns.
type SyncConsoleHandler struct {
	consoleBase
}

// newSyncConsoleHandler creates a new synchronous console handler.
func newSyncConsoleHandler(cfg ConsoleConfig) *SyncConsoleHandler {
	h := &SyncConsoleHandler{}
	h.init(cfg)
	return h
}

// Handle processes a log entry synchronously.
func (h *SyncConsoleHandler) Handle(entry *core.Entry) error {
	return h.write(entry)
}

// Flush flushes a buffering writer.
func (h *SyncConsoleHandler) Flush() error {
	return h.flushWriter()
}

// CanRecycleEntry returns true because sync handler processes entries immediately.
func (h *SyncConsoleHandler) CanRecycleEntry() bool {
	return true
}

// Close closes the handler.
func (h *SyncConsoleHandler) Close() error {
	select {
	case <-h.closed:
		return nil // Already closed
	default:
		close(h.closed)
	}
	return h.flushWriter()
}
