package forwarder

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
	"github.com/philipp01105/logship/handler"
)

// recordingSink is a local sink that keeps a copy of every entry.
type recordingSink struct {
	filter *handler.Filter

	mu      sync.Mutex
	entries []core.Entry
	flushes int
	closed  bool
}

func newRecordingSink(directives string) *recordingSink {
	return &recordingSink{filter: handler.MustParseFilter(directives)}
}

func (s *recordingSink) Enabled(level core.Level, target string) bool {
	return s.filter.Enabled(level, target)
}

func (s *recordingSink) Handle(entry *core.Entry) error {
	cp := *entry
	cp.Fields = append([]core.Field(nil), entry.Fields...)
	s.mu.Lock()
	s.entries = append(s.entries, cp)
	s.mu.Unlock()
	return nil
}

func (s *recordingSink) Flush() error {
	s.mu.Lock()
	s.flushes++
	s.mu.Unlock()
	return nil
}

func (s *recordingSink) Close() error {
	s.mu.Lock()
	s.closed = true
	s.mu.Unlock()
	return nil
}

func (s *recordingSink) CanRecycleEntry() bool { return true }

func (s *recordingSink) all() []core.Entry {
	s.mu.Lock()
	defer s.mu.Unlock()
	return append([]core.Entry(nil), s.entries...)
}

type testCollector struct {
	*collector.Server
	frames chan collector.Frame
}

func startCollector(t *testing.T, addr string) *testCollector {
	t.Helper()
	tc := &testCollector{frames: make(chan collector.Frame, 4096)}
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

func (tc *testCollector) next(t *testing.T) collector.Frame {
	t.Helper()
	select {
	case f := <-tc.frames:
		return f
	case <-time.After(3 * time.Second):
		t.Fatal("timed out waiting for frame")
		return collector.Frame{}
	}
}

func freeAddr(t *testing.T) string {
	t.Helper()
	ln, err := net.Listen("tcp", "127.0.0.1:0")
	require.NoError(t, err)
	addr := ln.Addr().String()
	require.NoError(t, ln.Close())
	return addr
}

// brokenDialer connects instantly, but every write on its connections fails.
type brokenDialer struct{}

func (brokenDialer) DialContext(context.Context, string, string) (net.Conn, error) {
	return brokenConn{}, nil
}

type brokenConn struct{ net.Conn }

func (brokenConn) Write([]byte) (int, error) { return 0, errors.New("connection reset") }
func (brokenConn) Close() error { return nil }
func (brokenConn) SetWriteDeadline(time.Time) error { return nil }

func workerRunning(f *Forwarder) bool {
	f.startMu.Lock()
	defer f.startMu.Unlock()
	return f.current != nil
}
