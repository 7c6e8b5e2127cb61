package delivery

import (
	"context"
	"errors"
	"net"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/require"

	"github.com/philipp01105/logship/collector"
	"github.com/philipp01105/logship/core"
	"github.com/philipp01105/logship/queue"
	"github.com/philipp01105/logship/wire"
)

// testCollector is a loopback collector that records every frame.
type testCollector struct {
	*collector.Server
	frames chan collector.Frame
}

func startCollector(t *testing.T, addr string) *testCollector {
	t.Helper()
	tc := &testCollector{frames: make(chan collector.Frame, 1024)}
	srv, err := collector.Listen(collector.Config{
		Address: addr,
		OnFrame: func(f collector.Frame) { tc.frames <- f },
	})
	require.NoError(t, err)
	tc.Server = srv

	ctx, cancel := context.WithCancel(context.Background())
	done := make(chan struct{})
	go func() {
		defer close(done)
		_ = srv.Serve(ctx)
	}()
	t.Cleanup(func() {
		cancel()
		<-done
	})
	return tc
}

func (tc *testCollector) next(t *testing.T, timeout time.Duration) collector.Frame {
	t.Helper()
	select {
	case f := <-tc.frames:
		return f
	case <-time.After(timeout):
		t.Fatal("timed out waiting for frame")
		return collector.Frame{}
	}
}

// freeAddr returns a loopback address nothing is listening on.
func freeAddr(t *testing.T) string {
	t.Helper()
	ln, err := net.Listen("tcp", "127.0.0.1:0")
	require.NoError(t, err)
	addr := ln.Addr().String()
	require.NoError(t, ln.Close())
	return addr
}

func encode(t testing.TB, level core.Level, target, msg string) []byte {
	t.Helper()
	payload, err := wire.Encode(wire.NewMessage("host1", level, target, msg))
	require.NoError(t, err)
	return payload
}

func pushAll(t *testing.T, q *queue.Queue, msgs ...string) {
	t.Helper()
	for _, m := range msgs {
		require.NoError(t, q.Push(encode(t, core.InfoLevel, "test", m)))
	}
}

// runWorker starts w.Serve and returns a stop function that cancels it and
// returns Serve's error.
func runWorker(t *testing.T, w *Worker) (stop func() error) {
	t.Helper()
	ctx, cancel := context.WithCancel(context.Background())
	errc := make(chan error, 1)
	go func() { errc <- w.Serve(ctx) }()

	var once sync.Once
	var err error
	stop = func() error {
		once.Do(func() {
			cancel()
			select {
			case err = <-errc:
			case <-time.After(3 * time.Second):
				err = errors.New("worker did not stop")
			}
		})
		return err
	}
	t.Cleanup(func() { _ = stop() })
	return stop
}

var errInjected = errors.New("injected write failure")

// scriptedConn is a net.Conn whose writes either fail or land in a shared
// buffer. Only the methods the worker uses are implemented.
type scriptedConn struct {
	net.Conn
	fail   bool
	mu     *sync.Mutex
	out    *[]byte
	closed chan struct{}
	once   sync.Once
}

func (c *scriptedConn) Write(p []byte) (int, error) {
	if c.fail {
		return 0, errInjected
	}
	c.mu.Lock()
	*c.out = append(*c.out, p...)
	c.mu.Unlock()
	return len(p), nil
}

func (c *scriptedConn) Close() error {
	c.once.Do(func() { close(c.closed) })
	return nil
}

func (c *scriptedConn) SetWriteDeadline(time.Time) error { return nil }

// scriptedDialer hands out one scriptedConn per dial. The first
// failFirst connections fail every write.
type scriptedDialer struct {
	mu        sync.Mutex
	failFirst int
	dials     int
	out       []byte
}

func (d *scriptedDialer) DialContext(ctx context.Context, network, address string) (net.Conn, error) {
	d.mu.Lock()
	defer d.mu.Unlock()
	d.dials++
	return &scriptedConn{
		fail:   d.dials <= d.failFirst,
		mu:     &d.mu,
		out:    &d.out,
		closed: make(chan struct{}),
	}, nil
}

func (d *scriptedDialer) written() string {
	d.mu.Lock()
	defer d.mu.Unlock()
	return string(d.out)
}

// blockingDialer never connects; it waits for ctx.
type blockingDialer struct {
	started chan struct{}
}

func (d *blockingDialer) DialContext(ctx context.Context, network, address string) (net.Conn, error) {
	select {
	case d.started <- struct{}{}:
	default:
	}
	<-ctx.Done()
	return nil, ctx.Err()
}

func benchCollector(b *testing.B) (string, *queue.Queue) {
	b.Helper()
	srv, err := collector.Listen(collector.Config{Address: "127.0.0.1:0"})
	require.NoError(b, err)
	ctx, cancel := context.WithCancel(context.Background())
	go func() { _ = srv.Serve(ctx) }()
	b.Cleanup(cancel)
	return srv.Addr(), queue.New()
}
