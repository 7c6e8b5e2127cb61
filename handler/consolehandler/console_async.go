package consolehandler

import (
	"sync"
	"time"

	"github.com/philipp01105/logship/core"
	"github.com/philipp01105/logship/handler"
)

// AsyncConsoleHandler is an asynchronous console handler with isolated
// queue and overflow logic. Entries are formatted and written by a
// dedicated background goroutine.
type AsyncConsoleHandler struct {
	consoleBase
	queue          chan *core.Entry
	flushReq       chan chan struct{}
	wg             sync.WaitGroup
	closeMu        sync.RWMutex // held for reading while enqueueing
	isClosed       bool
	overflowPolicy map[core.Level]handler.OverflowPolicy
	blockTimeout   time.Duration
	drainTimeout   time.Duration
	blockMu        sync.Mutex // guards blockTimer
	blockTimer     *time.Timer
}

// newAsyncConsoleHandler creates a new asynchronous console handler.
func newAsyncConsoleHandler(cfg ConsoleConfig) *AsyncConsoleHandler {
	h := &AsyncConsoleHandler{
		overflowPolicy: cfg.OverflowPolicy,
		blockTimeout:   cfg.BlockTimeout,
		drainTimeout:   cfg.DrainTimeout,
		blockTimer:     handler.NewStoppedTimer(),
	}
	h.init(cfg)

	h.queue = make(chan *core.Entry, cfg.BufferSize)
	h.flushReq = make(chan chan struct{})
	h.wg.Add(1)
	go h.process()

	return h
}

// Handle sends a log entry to the async queue with overflow policy handling.
// After Close the entry is written synchronously.
func (h *AsyncConsoleHandler) Handle(entry *core.Entry) error {
	h.closeMu.RLock()
	defer h.closeMu.RUnlock()
	if h.isClosed {
		err := h.write(entry)
		core.PutEntry(entry)
		return err
	}

	policy, ok := h.overflowPolicy[entry.Level]
	if !ok {
		policy = handler.DropNewest
	}

	switch policy {
	case handler.Block:
		select {
		case h.queue <- entry:
			return nil
		default:
		}
		return h.blockSend(entry)

	case handler.DropOldest:
		select {
		case h.queue <- entry:
			return nil
		default:
			select {
			case old := <-h.queue:
				h.stats.IncrementDropped(old.Level)
				core.PutEntry(old)
			default:
			}
			select {
			case h.queue <- entry:
				return nil
			default:
				h.stats.IncrementDropped(entry.Level)
				core.PutEntry(entry)
				return nil
			}
		}

	default:
		select {
		case h.queue <- entry:
			return nil
		default:
			h.stats.IncrementDropped(entry.Level)
			core.PutEntry(entry)
			return nil
		}
	}
}

// blockSend waits up to blockTimeout for queue space and falls back to a
// synchronous write on timeout.
func (h *AsyncConsoleHandler) blockSend(entry *core.Entry) error {
	h.blockMu.Lock()
	h.blockTimer.Reset(h.blockTimeout)
	select {
	case h.queue <- entry:
		stopTimer(h.blockTimer)
		h.blockMu.Unlock()
		return nil
	case <-h.blockTimer.C:
		h.blockMu.Unlock()
		h.stats.IncrementBlocked()
		err := h.write(entry)
		core.PutEntry(entry)
		return err
	}
}

func stopTimer(t *time.Timer) {
	if !t.Stop() {
		select {
		case <-t.C:
		default:
		}
	}
}

// CanRecycleEntry returns false because the async handler processes entries
// in a background goroutine after Handle returns.
func (h *AsyncConsoleHandler) CanRecycleEntry() bool {
	return false
}

// Flush blocks until every entry queued before the call has been written.
func (h *AsyncConsoleHandler) Flush() error {
	done := make(chan struct{})
	select {
	case h.flushReq <- done:
		<-done
	case <-h.closed:
	}
	return h.flushWriter()
}

func (h *AsyncConsoleHandler) writeQueued(entry *core.Entry) {
	// Write failures are not reported back to the caller, who has long
	// since returned; they simply do not count as processed.
	_ = h.write(entry)
	core.PutEntry(entry)
}

// drain writes everything currently queued without blocking.
func (h *AsyncConsoleHandler) drain(deadline <-chan time.Time) {
	for {
		select {
		case entry := <-h.queue:
			h.writeQueued(entry)
		case <-deadline:
			return
		default:
			return
		}
	}
}

// process handles async log processing
func (h *AsyncConsoleHandler) process() {
	defer h.wg.Done()

	for {
		select {
		case entry := <-h.queue:
			h.writeQueued(entry)
			h.drain(nil)
		case done := <-h.flushReq:
			h.drain(nil)
			close(done)
		case <-h.closed:
			h.drain(time.After(h.drainTimeout))
			return
		}
	}
}

// Close closes the handler, draining the queue with a timeout.
func (h *AsyncConsoleHandler) Close() error {
	h.closeMu.Lock()
	if h.isClosed {
		h.closeMu.Unlock()
		return nil
	}
	h.isClosed = true
	close(h.closed)
	h.closeMu.Unlock()

	h.wg.Wait()
	return h.flushWriter()
}
