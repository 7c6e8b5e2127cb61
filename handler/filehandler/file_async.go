package filehandler

import (
	"os"
	"sync"
	"time"

	"github.com/philipp01105/logship/core"
	"github.com/philipp01105/logship/handler"
)

// AsyncFileHandler is an asynchronous file handler with isolated queue
// and overflow logic. A dedicated background goroutine formats entries
// and performs rotation.
type AsyncFileHandler struct {
	fileBase
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

// newAsyncFileHandler creates a new asynchronous file handler.
func newAsyncFileHandler(cfg FileConfig, file *os.File, fileSize int64) *AsyncFileHandler {
	h := &AsyncFileHandler{
		overflowPolicy: cfg.OverflowPolicy,
		blockTimeout:   cfg.BlockTimeout,
		drainTimeout:   cfg.DrainTimeout,
		blockTimer:     handler.NewStoppedTimer(),
	}
	initFileBase(&h.fileBase, cfg, file, fileSize)

	h.queue = make(chan *core.Entry, cfg.BufferSize)
	h.flushReq = make(chan chan struct{})
	h.wg.Add(1)
	go h.process()

	return h
}

// Handle sends a log entry to the async queue with overflow policy handling.
// It returns handler.ErrClosed once the file has been closed.
func (h *AsyncFileHandler) Handle(entry *core.Entry) error {
	h.closeMu.RLock()
	defer h.closeMu.RUnlock()
	if h.isClosed {
		core.PutEntry(entry)
		return handler.ErrClosed
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
		h.blockMu.Lock()
		h.blockTimer.Reset(h.blockTimeout)
		select {
		case h.queue <- entry:
			if !h.blockTimer.Stop() {
				select {
				case <-h.blockTimer.C:
				default:
				}
			}
			h.blockMu.Unlock()
			return nil
		case <-h.blockTimer.C:
			h.blockMu.Unlock()
			// Timeout - fall back to synchronous write
			h.stats.IncrementBlocked()
			err := h.write(entry)
			core.PutEntry(entry)
			return err
		}

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

// CanRecycleEntry returns false because the async handler processes entries
// in a background goroutine after Handle returns.
func (h *AsyncFileHandler) CanRecycleEntry() bool {
	return false
}

// Flush waits until every entry queued before the call has been written,
// then flushes the bufio buffer to the file.
func (h *AsyncFileHandler) Flush() error {
	done := make(chan struct{})
	select {
	case h.flushReq <- done:
		<-done
	case <-h.closed:
		return nil
	}
	return h.flushBuffered()
}

func (h *AsyncFileHandler) writeQueued(entry *core.Entry) {
	_ = h.write(entry)
	core.PutEntry(entry)
}

// drain writes everything currently queued without blocking.
func (h *AsyncFileHandler) drain(deadline <-chan time.Time) {
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
func (h *AsyncFileHandler) process() {
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

// Close drains the queue with a timeout, then flushes and closes the file.
func (h *AsyncFileHandler) Close() error {
	h.closeMu.Lock()
	if h.isClosed {
		h.closeMu.Unlock()
		return nil
	}
	h.isClosed = true
	close(h.closed)
	h.closeMu.Unlock()

	h.wg.Wait()
	return h.closeFile()
}
