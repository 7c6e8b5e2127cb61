package filehandler

import (
	"os"

	"github.com/philipp01105/logship/core"
	"github.com/philipp01105/logship/handler"
)

// SyncFileHandler writes each entry into the file's bufio.Writer on the
// caller's goroutine. Entries reach the file when the buffer fills, on
// Flush, or on Close.
type SyncFileHandler struct {
	fileBase
}

// newSyncFileHandler creates a new synchronous file handler.
func newSyncFileHandler(cfg FileConfig, file *os.File, fileSize int64) *SyncFileHandler {
	h := &SyncFileHandler{}
	initFileBase(&h.fileBase, cfg, file, fileSize)
	return h
}

// Handle processes a log entry synchronously. It returns
// handler.ErrClosed once the file has been closed.
func (h *SyncFileHandler) Handle(entry *core.Entry) error {
	select {
	case <-h.closed:
		return handler.ErrClosed
	default:
	}
	return h.write(entry)
}

// Flush writes buffered entries to the file.
func (h *SyncFileHandler) Flush() error {
	return h.flushBuffered()
}

// CanRecycleEntry returns true because sync handler processes entries immediately.
func (h *SyncFileHandler) CanRecycleEntry() bool {
	return true
}

// Close closes the handler and the underlying file.
func (h *SyncFileHandler) Close() error {
	select {
	case <-h.closed:
		return nil // Already closed
	default:
		close(h.closed)
	}
	return h.closeFile()
}
