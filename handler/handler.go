package handler

import (
	"errors"
	"time"

	"github.com/philipp01105/logship/core"
)

// ErrClosed is returned by sinks that refuse work after Close.
var ErrClosed = errors.New("handler: closed")

// Handler is a local sink: it decides which records it wants and renders
// them somewhere (console, file, another logging library).
type Handler interface {
	// Enabled reports whether a record at level for target would be written.
	Enabled(level core.Level, target string) bool

	// Handle processes a log entry
	Handle(entry *core.Entry) error

	// Flush writes out any buffered entries
	Flush() error

	// Close closes the handler and releases resources
	Close() error
}

// StatsProvider is implemented by handlers that track dropped, blocked
// and processed counts.
type StatsProvider interface {
	Stats() Snapshot
}

// CanRecycle reports whether the caller may return entry to the pool
// once h.Handle has returned. Handlers that keep the entry after Handle
// returns (async handlers) opt out by returning false from CanRecycleEntry.
func CanRecycle(h Handler) bool {
	if rc, ok := h.(interface{ CanRecycleEntry() bool }); ok {
		return rc.CanRecycleEntry()
	}
	return false
}

// NewStoppedTimer returns a timer that is stopped and drained, ready for
// Reset. Async handlers keep one around for the Block overflow policy so
// they do not allocate a timer per blocked entry.
func NewStoppedTimer() *time.Timer {
	t := time.NewTimer(time.Hour)
	if !t.Stop() {
		<-t.C
	}
	return t
}
