// Package forwarder captures log records, writes them to a local sink and
// ships them to a remote collector without ever blocking the caller on
// the network.
//
// A Forwarder is a handler.Handler, so it plugs into logger.Builder and
// the slog adapter like any other sink:
//
//	f, err := forwarder.New(forwarder.Config{
//	    Hostname: "web-1",
//	    Address:  "logs.internal:9000",
//	    Sink:     consolehandler.NewConsoleHandler(consolehandler.ConsoleConfig{}),
//	})
//	if err != nil { ... }
//	f.Start(ctx)
//	log := logger.NewBuilder().WithHandler(f).WithTarget("api").Build()
//
// Init does the same once per process and installs the result as the
// default logger and the default slog handler.
package forwarder

import (
	"context"
	"errors"
	"fmt"
	"os"
	"sync"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/thejerf/suture/v4"

	"github.com/philipp01105/logship/core"
	"github.com/philipp01105/logship/delivery"
	"github.com/philipp01105/logship/diag"
	"github.com/philipp01105/logship/handler"
	"github.com/philipp01105/logship/queue"
	"github.com/philipp01105/logship/wire"
)

// DefaultDrainTimeout is how long Close waits for queued records to reach
// the collector.
const DefaultDrainTimeout = 5 * time.Second

// ErrAlreadyStarted is returned by Start when the worker is already running.
var ErrAlreadyStarted = errors.New("forwarder: already started")

// ErrWorkerStopped is wrapped by Shutdown when the worker stopped, for
// example because its supervisor did, before the queue was drained.
var ErrWorkerStopped = errors.New("forwarder: worker stopped")

// osHostname is swapped in tests.
var osHostname = os.Hostname

// Config configures a Forwarder.
type Config struct {
	// Hostname stamped on every message (default: os.Hostname()).
	Hostname string
	// Address of the collector, host:port. Required.
	Address string
	// Sink is the local handler. It decides which records are enabled.
	// When nil, records pass Filter and are only shipped.
	Sink handler.Handler
	// Filter used when Sink is nil (default: Info and above).
	Filter *handler.Filter

	// Backoff between failed connection attempts (default: 1s).
	Backoff time.Duration
	// DialTimeout and WriteTimeout bound network calls (default: none).
	DialTimeout  time.Duration
	WriteTimeout time.Duration
	// Redeliver retries a payload whose write failed instead of dropping it.
	Redeliver bool
	// Dialer used to reach the collector (default: &net.Dialer{}).
	Dialer delivery.Dialer

	// Reporter receives internal failures (default: JSON lines on stderr).
	Reporter diag.Reporter
	// Registerer for metrics. Nil leaves them unregistered.
	Registerer prometheus.Registerer
	// DrainTimeout bounds Close (default: DefaultDrainTimeout).
	DrainTimeout time.Duration
}

// Forwarder is the capture front-end. It is safe for concurrent use.
type Forwarder struct {
	hostname     string
	sink         handler.Handler
	recycle      bool
	queue        *queue.Queue
	worker       *delivery.Worker
	reporter     diag.Reporter
	metrics      *metrics
	drainTimeout time.Duration

	startMu    sync.Mutex
	started    bool
	supervised bool
	current    *run

	closeOnce sync.Once
	closeErr  error
}

// New builds a Forwarder and its delivery worker. Nothing is sent until
// Start is called or Service is handed to a supervisor; records logged
// before that are queued.
func New(cfg Config) (*Forwarder, error) {
	if cfg.Hostname == "" {
		// An unknown hostname is shipped as "".
		cfg.Hostname, _ = osHostname()
	}
	if cfg.Sink == nil {
		cfg.Sink = filterOnly{filter: cfg.Filter}
	}
	if cfg.Reporter == nil {
		cfg.Reporter = diag.NewStderrReporter()
	}
	if cfg.DrainTimeout <= 0 {
		cfg.DrainTimeout = DefaultDrainTimeout
	}

	q := queue.New()
	w, err := delivery.New(delivery.Config{
		Address:      cfg.Address,
		Queue:        q,
		Backoff:      cfg.Backoff,
		DialTimeout:  cfg.DialTimeout,
		WriteTimeout: cfg.WriteTimeout,
		Redeliver:    cfg.Redeliver,
		Dialer:       cfg.Dialer,
		Reporter:     cfg.Reporter,
		Registerer:   cfg.Registerer,
	})
	if err != nil {
		return nil, fmt.Errorf("forwarder: %w", err)
	}

	return &Forwarder{
		hostname:     cfg.Hostname,
		sink:         cfg.Sink,
		recycle:      handler.CanRecycle(cfg.Sink),
		queue:        q,
		worker:       w,
		reporter:     cfg.Reporter,
		metrics:      newMetrics(cfg.Registerer),
		drainTimeout: cfg.DrainTimeout,
	}, nil
}

// Hostname returns the hostname stamped on outgoing messages.
func (f *Forwarder) Hostname() string {
	return f.hostname
}

// Sink returns the local handler.
func (f *Forwarder) Sink() handler.Handler {
	return f.sink
}

// Record logs msg for target at level. It writes to the local sink and
// queues the message for the collector; it never blocks on the network
// and never fails.
func (f *Forwarder) Record(level core.Level, target, msg string) {
	if !f.sink.Enabled(level, target) {
		return
	}
	payload, encErr := wire.Encode(wire.NewMessage(f.hostname, level, target, msg))

	entry := core.GetEntry()
	entry.Time = time.Now()
	entry.Level = level
	entry.Target = target
	entry.Message = msg
	_ = f.sink.Handle(entry)
	if f.recycle {
		core.PutEntry(entry)
	}

	f.enqueue(payload, encErr)
}

// Enabled reports whether the local sink enables the record.
func (f *Forwarder) Enabled(level core.Level, target string) bool {
	return f.sink.Enabled(level, target)
}

// Handle implements handler.Handler. The entry, fields included, goes to
// the local sink; level, target and message are shipped. The error from
// the sink is not returned.
func (f *Forwarder) Handle(entry *core.Entry) error {
	if !f.sink.Enabled(entry.Level, entry.Target) {
		return nil
	}
	// Encode before the sink sees the entry: an async sink may recycle it.
	payload, encErr := wire.Encode(wire.FromEntry(f.hostname, entry))
	_ = f.sink.Handle(entry)
	f.enqueue(payload, encErr)
	return nil
}

// CanRecycleEntry follows the sink: the Forwarder itself never keeps entries.
func (f *Forwarder) CanRecycleEntry() bool {
	return f.recycle
}

func (f *Forwarder) enqueue(payload []byte, encErr error) {
	f.metrics.records.Inc()
	if encErr != nil {
		f.metrics.serializeFailures.Inc()
		diag.Stamp(f.reporter, diag.Event{Kind: diag.KindSerialize, Err: encErr})
		return
	}
	if err := f.queue.Push(payload); err != nil {
		f.metrics.enqueueFailures.Inc()
		diag.Stamp(f.reporter, diag.Event{Kind: diag.KindEnqueue, Err: err, Size: len(payload)})
	}
}

// Flush flushes the local sink. Queued remote messages are not waited for.
func (f *Forwarder) Flush() error {
	return f.sink.Flush()
}

// Service returns the delivery worker wrapped for use under a suture
// supervisor. Use either Service or Start, not both. While the service is
// running, Shutdown and Close drain through it as they do after Start.
func (f *Forwarder) Service() suture.Service {
	return &service{f: f}
}

// Start runs the delivery worker in a new goroutine until ctx is
// cancelled or the Forwarder is closed.
func (f *Forwarder) Start(ctx context.Context) error {
	r, err := f.beginRun(ctx, false)
	if err != nil {
		return err
	}
	go func() {
		defer f.endRun(r)
		_ = f.worker.Serve(r.ctx)
	}()
	return nil
}

// run is one execution of the delivery worker.
type run struct {
	ctx    context.Context
	cancel context.CancelFunc
	done   chan struct{}
}

func (f *Forwarder) beginRun(ctx context.Context, supervised bool) (*run, error) {
	f.startMu.Lock()
	defer f.startMu.Unlock()
	if f.current != nil || (f.started && !(supervised && f.supervised)) {
		return nil, ErrAlreadyStarted
	}
	f.started = true
	f.supervised = supervised
	r := &run{done: make(chan struct{})}
	r.ctx, r.cancel = context.WithCancel(ctx)
	f.current = r
	return r, nil
}

func (f *Forwarder) endRun(r *run) {
	r.cancel()
	f.startMu.Lock()
	if f.current == r {
		f.current = nil
	}
	f.startMu.Unlock()
	close(r.done)
}

// service runs the worker as a supervised run. A supervisor may restart
// it; each restart is a new run.
type service struct {
	f *Forwarder
}

func (s *service) Serve(ctx context.Context) error {
	r, err := s.f.beginRun(ctx, true)
	if err != nil {
		return err
	}
	defer s.f.endRun(r)
	return s.f.worker.Serve(r.ctx)
}

func (s *service) String() string {
	return s.f.worker.String()
}

// Shutdown stops accepting records and waits until the queue is drained
// to the collector or ctx ends, whichever comes first. The local sink is
// left open. Records still undelivered when the worker stops are counted
// in the returned error. Without a running worker there is nothing to
// drain and Shutdown returns nil.
func (f *Forwarder) Shutdown(ctx context.Context) error {
	f.queue.Close()

	f.startMu.Lock()
	r := f.current
	f.startMu.Unlock()
	if r == nil {
		return nil
	}

	var cause error
	select {
	case <-r.done:
	case <-ctx.Done():
		r.cancel()
		<-r.done
		cause = ctx.Err()
	}

	left := f.queue.Len() + f.worker.Pending()
	if left == 0 && cause == nil {
		return nil
	}
	if cause == nil {
		cause = ErrWorkerStopped
	}
	return fmt.Errorf("forwarder: %d messages not delivered: %w", left, cause)
}

// Close shuts the pipeline down within the drain timeout, then closes the
// local sink.
func (f *Forwarder) Close() error {
	f.closeOnce.Do(func() {
		ctx, cancel := context.WithTimeout(context.Background(), f.drainTimeout)
		defer cancel()
		f.closeErr = errors.Join(f.Shutdown(ctx), f.sink.Close())
	})
	return f.closeErr
}

// Stats is a snapshot of forwarding counters.
type Stats struct {
	delivery.MetricsSnapshot
	Records           uint64
	SerializeFailures uint64
	EnqueueFailures   uint64
}

// Stats returns the current counters.
func (f *Forwarder) Stats() Stats {
	return Stats{
		MetricsSnapshot:   f.worker.Stats(),
		Records:           counterValue(f.metrics.records),
		SerializeFailures: counterValue(f.metrics.serializeFailures),
		EnqueueFailures:   counterValue(f.metrics.enqueueFailures),
	}
}

// filterOnly is the sink used when none is configured.
type filterOnly struct {
	filter *handler.Filter
}

func (s filterOnly) Enabled(level core.Level, target string) bool {
	return s.filter.Enabled(level, target)
}

func (filterOnly) Handle(*core.Entry) error { return nil }
func (filterOnly) Flush() error             { return nil }
func (filterOnly) Close() error             { return nil }
func (filterOnly) CanRecycleEntry() bool    { return true }

var _ handler.Handler = (*Forwarder)(nil)
