package handler

import (
	"errors"

	"github.com/philipp01105/logship/core"
)

// MultiHandler sends log entries to multiple handlers
type MultiHandler struct {
	handlers     []Handler
	recycleEntry bool // true when every child supports entry recycling
}

// NewMultiHandler creates a new multi-handler
func NewMultiHandler(handlers ...Handler) *MultiHandler {
	m := &MultiHandler{
		handlers:     handlers,
		recycleEntry: true,
	}
	for _, h := range handlers {
		if !CanRecycle(h) {
			m.recycleEntry = false
		}
	}
	return m
}

// Enabled reports whether at least one child wants the record.
func (h *MultiHandler) Enabled(level core.Level, target string) bool {
	for _, child := range h.handlers {
		if child.Enabled(level, target) {
			return true
		}
	}
	return false
}

// Handle sends the entry to every child that has it enabled.
// Errors from all children are joined.
func (h *MultiHandler) Handle(entry *core.Entry) error {
	var errs []error
	for _, child := range h.handlers {
		if !child.Enabled(entry.Level, entry.Target) {
			continue
		}
		if err := child.Handle(entry); err != nil {
			errs = append(errs, err)
		}
	}
	return errors.Join(errs...)
}

// Flush flushes all handlers
func (h *MultiHandler) Flush() error {
	var errs []error
	for _, child := range h.handlers {
		if err := child.Flush(); err != nil {
			errs = append(errs, err)
		}
	}
	return errors.Join(errs...)
}

// CanRecycleEntry returns true if the caller can recycle the entry after Handle returns.
// This is safe when all child handlers process entries synchronously.
func (h *MultiHandler) CanRecycleEntry() bool {
	return h.recycleEntry
}

// Close closes all handlers
func (h *MultiHandler) Close() error {
	var errs []error
	for _, child := range h.handlers {
		if err := child.Close(); err != nil {
			errs = append(errs, err)
		}
	}
	return errors.Join(errs...)
}
