// Package delivery owns the connection to the remote collector. A single
// Worker pops encoded payloads from the queue in order and writes each as
// one NUL-terminated frame, reconnecting after a fixed backoff whenever
// the connection fails.
package delivery

import (
	"bufio"
	"context"
	"errors"
	"fmt"
	"net"
	"sync/atomic"
	"time"

	"github.com/cenkalti/backoff/v4"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/thejerf/suture/v4"

	"github.com/philipp01105/logship/diag"
	"github.com/philipp01105/logship/queue"
	"github.com/philipp01105/logship/wire"
)

// DefaultBackoff is the wait between failed connection attempts.
const DefaultBackoff = time.Second

var (
	// ErrNoAddress is returned by New when Config.Address is empty.
	ErrNoAddress = errors.New("delivery: remote address is required")
	// ErrNoQueue is returned by New when Config.Queue is nil.
	ErrNoQueue = errors.New("delivery: queue is required")
	// ErrAlreadyRunning is returned by Serve when another Serve call on
	// the same Worker has not returned yet.
	ErrAlreadyRunning = errors.New("delivery: worker already running")
)

// Dialer opens connections to the collector. *net.Dialer satisfies it.
type Dialer interface {
	DialContext(ctx context.Context, network, address string) (net.Conn, error)
}

// Config configures a Worker.
type Config struct {
	// Address of the collector, host:port.
	Address string
	// Queue the worker consumes. Required.
	Queue *queue.Queue
	// Backoff between failed attempts (default: 1s).
	Backoff time.Duration
	// DialTimeout bounds each connection attempt (default: none).
	DialTimeout time.Duration
	// WriteTimeout bounds each frame write (default: none).
	WriteTimeout time.Duration
	// Redeliver keeps a payload whose write failed and sends it first on
	// the next connection. When false the payload is dropped.
	Redeliver bool
	// Dialer used to connect (default: &net.Dialer{}).
	Dialer Dialer
	// Reporter receives failure events (default: diag.Discard).
	Reporter diag.Reporter
	// Registerer for the worker's metrics. Nil leaves them unregistered.
	Registerer prometheus.Registerer
}

// Worker is the delivery back-end. It implements suture.Service.
type Worker struct {
	addr         string
	queue        *queue.Queue
	interval     time.Duration
	dialTimeout  time.Duration
	writeTimeout time.Duration
	redeliver    bool
	dialer       Dialer
	reporter     diag.Reporter
	metrics      *Metrics

	running atomic.Bool
	// pending is a payload awaiting redelivery. Only touched by Serve;
	// hasPending mirrors it for Pending.
	pending    []byte
	hasPending atomic.Bool
}

// New validates cfg and returns an idle Worker. Call Serve to run it.
func New(cfg Config) (*Worker, error) {
	if cfg.Address == "" {
		return nil, ErrNoAddress
	}
	if cfg.Queue == nil {
		return nil, ErrNoQueue
	}
	if cfg.Backoff <= 0 {
		cfg.Backoff = DefaultBackoff
	}
	if cfg.Dialer == nil {
		cfg.Dialer = &net.Dialer{}
	}
	if cfg.Reporter == nil {
		cfg.Reporter = diag.Discard
	}
	q := cfg.Queue
	return &Worker{
		addr:         cfg.Address,
		queue:        q,
		interval:     cfg.Backoff,
		dialTimeout:  cfg.DialTimeout,
		writeTimeout: cfg.WriteTimeout,
		redeliver:    cfg.Redeliver,
		dialer:       cfg.Dialer,
		reporter:     cfg.Reporter,
		metrics:      newMetrics(cfg.Registerer, func() float64 { return float64(q.Len()) }),
	}, nil
}

// String implements fmt.Stringer. Suture uses it to name the service.
func (w *Worker) String() string {
	return "logship-delivery(" + w.addr + ")"
}

// Address returns the collector address.
func (w *Worker) Address() string {
	return w.addr
}

// Pending returns 1 while a payload is held back for the next connection
// (after a failed write with Redeliver, or when Serve was cancelled
// mid-write) and 0 otherwise.
func (w *Worker) Pending() int {
	if w.hasPending.Load() {
		return 1
	}
	return 0
}

// Stats returns the current counters.
func (w *Worker) Stats() MetricsSnapshot {
	s := w.metrics.snapshot()
	s.QueueDepth = w.queue.Len()
	return s
}

// sessionError is a failed session that should be retried after the backoff.
type sessionError struct {
	kind    diag.Kind
	size    int
	dropped bool
	err     error
}

func (e *sessionError) Error() string {
	return fmt.Sprintf("%s failure: %v", e.kind, e.err)
}

func (e *sessionError) Unwrap() error { return e.err }

// Serve implements suture.Service. It connects, sends, and reconnects
// until ctx is cancelled (returns ctx.Err()) or the queue is closed and
// drained (returns suture.ErrDoNotRestart).
func (w *Worker) Serve(ctx context.Context) error {
	if !w.running.CompareAndSwap(false, true) {
		return ErrAlreadyRunning
	}
	defer w.running.Store(false)

	b := backoff.WithContext(backoff.NewConstantBackOff(w.interval), ctx)
	err := backoff.RetryNotify(func() error {
		return w.session(ctx)
	}, b, w.notify)
	if err == nil {
		return nil
	}
	if errors.Is(err, queue.ErrClosed) {
		return suture.ErrDoNotRestart
	}
	return err
}

// notify reports a failed session before the backoff sleep.
func (w *Worker) notify(err error, _ time.Duration) {
	var se *sessionError
	if !errors.As(err, &se) {
		return
	}
	diag.Stamp(w.reporter, diag.Event{
		Kind:    se.kind,
		Err:     se.err,
		Address: w.addr,
		Size:    se.size,
	})
	if se.dropped {
		diag.Stamp(w.reporter, diag.Event{
			Kind:    diag.KindDrop,
			Address: w.addr,
			Size:    se.size,
		})
	}
}

func (w *Worker) dial(ctx context.Context) (net.Conn, error) {
	if w.dialTimeout > 0 {
		var cancel context.CancelFunc
		ctx, cancel = context.WithTimeout(ctx, w.dialTimeout)
		defer cancel()
	}
	return w.dialer.DialContext(ctx, "tcp", w.addr)
}

// session runs one connection until it fails. It never returns nil.
func (w *Worker) session(ctx context.Context) error {
	conn, err := w.dial(ctx)
	if err != nil {
		if ctx.Err() != nil {
			return backoff.Permanent(ctx.Err())
		}
		w.metrics.connectFailures.Inc()
		return &sessionError{kind: diag.KindConnect, err: err}
	}
	w.metrics.connects.Inc()
	defer conn.Close()

	// Unblock a write stuck on a wedged socket when ctx ends.
	stop := context.AfterFunc(ctx, func() { _ = conn.Close() })
	defer stop()

	bw := bufio.NewWriter(conn)
	for {
		payload := w.pending
		w.setPending(nil)
		if payload == nil {
			payload, err = w.queue.Pop(ctx)
			if err != nil {
				return backoff.Permanent(err)
			}
		}

		if err := w.writeFrame(conn, bw, payload); err != nil {
			if ctx.Err() != nil {
				w.setPending(payload)
				return backoff.Permanent(ctx.Err())
			}
			w.metrics.writeFailures.Inc()
			return &sessionError{kind: diag.KindWrite, size: len(payload), dropped: w.failed(payload), err: err}
		}
		w.metrics.delivered.Inc()
	}
}

// failed keeps payload for redelivery or drops it. It reports whether the
// payload was dropped; notify reports the drop after the write failure.
func (w *Worker) failed(payload []byte) bool {
	if w.redeliver {
		w.setPending(payload)
		return false
	}
	w.metrics.dropped.Inc()
	return true
}

func (w *Worker) setPending(payload []byte) {
	w.pending = payload
	w.hasPending.Store(payload != nil)
}

func (w *Worker) writeFrame(conn net.Conn, bw *bufio.Writer, payload []byte) error {
	if w.writeTimeout > 0 {
		if err := conn.SetWriteDeadline(time.Now().Add(w.writeTimeout)); err != nil {
			return err
		}
	}
	if _, err := bw.Write(payload); err != nil {
		return err
	}
	if err := bw.WriteByte(wire.Delimiter); err != nil {
		return err
	}
	return bw.Flush()
}

var _ suture.Service = (*Worker)(nil)
