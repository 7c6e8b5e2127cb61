package handler

import (
	"bytes"
	"sync"

	"github.com/philipp01105/logship/core"
	"github.com/philipp01105/logship/formatter"
)

// bufferHandler is a synchronous sink rendering text into a buffer.
type bufferHandler struct {
	mu      sync.Mutex
	buf     bytes.Buffer
	filter  *Filter
	fmt     *formatter.TextFormatter
	entries []core.Entry
	flushes int
	closed  bool
}

func newBufferHandler(filter *Filter) *bufferHandler {
	return &bufferHandler{filter: filter, fmt: formatter.NewTextFormatter(formatter.Config{})}
}

func (h *bufferHandler) Enabled(level core.Level, target string) bool {
	return h.filter.Enabled(level, target)
}

func (h *bufferHandler) Handle(entry *core.Entry) error {
	h.mu.Lock()
	defer h.mu.Unlock()
	cp := *entry
	cp.Fields = append([]core.Field(nil), entry.Fields...)
	h.entries = append(h.entries, cp)
	h.fmt.FormatEntry(entry, &h.buf)
	return nil
}

func (h *bufferHandler) Flush() error {
	h.mu.Lock()
	h.flushes++
	h.mu.Unlock()
	return nil
}

func (h *bufferHandler) Close() error {
	h.mu.Lock()
	h.closed = true
	h.mu.Unlock()
	return nil
}

func (h *bufferHandler) CanRecycleEntry() bool { return true }

func (h *bufferHandler) String() string {
	h.mu.Lock()
	defer h.mu.Unlock()
	return h.buf.String()
}

func (h *bufferHandler) Len() int {
	h.mu.Lock()
	defer h.mu.Unlock()
	return len(h.entries)
}
