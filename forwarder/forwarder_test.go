package forwarder

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"sync"
	"testing"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"github.com/thejerf/suture/v4"

	"github.com/philipp01105/logship/core"
	"github.com/philipp01105/logship/delivery"
	"github.com/philipp01105/logship/diag"
	"github.com/philipp01105/logship/handler"
	"github.com/philipp01105/logship/logger"
	"github.com/philipp01105/logship/queue"
	"github.com/philipp01105/logship/wire"
)

func newTestForwarder(t *testing.T, addr string, sink handler.Handler, rec diag.Reporter) *Forwarder {
	t.Helper()
	f, err := New(Config{
		Hostname:     "host1",
		Address:      addr,
		Sink:         sink,
		Backoff:      50 * time.Millisecond,
		Reporter:     rec,
		DrainTimeout: time.Second,
	})
	require.NoError(t, err)
	t.Cleanup(func() { _ = f.Close() })
	return f
}

func TestNew_RequiresAddress(t *testing.T) {
	_, err := New(Config{Hostname: "h", Reporter: diag.Discard})
	assert.ErrorIs(t, err, delivery.ErrNoAddress)
}

func TestNew_DefaultsHostname(t *testing.T) {
	f, err := New(Config{Address: "127.0.0.1:1", Reporter: diag.Discard})
	require.NoError(t, err)
	assert.NotEmpty(t, f.Hostname())
}

func TestNew_HostnameLookupFails(t *testing.T) {
	prev := osHostname
	osHostname = func() (string, error) { return "", errors.New("no uts namespace") }
	t.Cleanup(func() { osHostname = prev })

	f, err := New(Config{Address: "127.0.0.1:1", Reporter: diag.Discard})
	require.NoError(t, err)
	assert.Equal(t, "", f.Hostname())
}

func TestRecord_FrameOnTheWire(t *testing.T) {
	tc := startCollector(t, "127.0.0.1:0")
	sink := newRecordingSink("info")
	f := newTestForwarder(t, tc.Addr(), sink, diag.NewRecorder())
	require.NoError(t, f.Start(context.Background()))

	f.Record(core.InfoLevel, "auth", "login ok")

	frame := tc.next(t)
	assert.Equal(t, `{"hostname":"host1","level":"INFO","message":"login ok","module":"auth"}`, string(frame.Raw))

	entries := sink.all()
	require.Len(t, entries, 1)
	assert.Equal(t, "auth", entries[0].Target)
	assert.Equal(t, "login ok", entries[0].Message)
}

func TestRecord_DisabledHasNoEffect(t *testing.T) {
	sink := newRecordingSink("warn")
	f := newTestForwarder(t, "127.0.0.1:1", sink, diag.NewRecorder())

	f.Record(core.InfoLevel, "auth", "ignored")

	assert.Empty(t, sink.all())
	assert.Zero(t, f.queue.Len())
	assert.Zero(t, f.Stats().Records)
}

func TestRecord_CollectorDownStillWritesSink(t *testing.T) {
	addr := freeAddr(t)
	rec := diag.NewRecorder()
	sink := newRecordingSink("trace")
	f := newTestForwarder(t, addr, sink, rec)
	require.NoError(t, f.Start(context.Background()))

	start := time.Now()
	for i := 0; i < 100; i++ {
		f.Record(core.DebugLevel, "app", fmt.Sprintf("m%d", i))
	}
	assert.Less(t, time.Since(start), 500*time.Millisecond)
	assert.Len(t, sink.all(), 100)
	assert.True(t, rec.Wait(diag.KindConnect, 1, 2*time.Second))

	// Once the collector shows up the backlog drains in order.
	tc := startCollector(t, addr)
	for i := 0; i < 100; i++ {
		assert.Equal(t, fmt.Sprintf("m%d", i), tc.next(t).Message.Message)
	}
}

func TestRecord_ConcurrentProducersKeepOrder(t *testing.T) {
	tc := startCollector(t, "127.0.0.1:0")
	f := newTestForwarder(t, tc.Addr(), newRecordingSink("info"), diag.NewRecorder())
	require.NoError(t, f.Start(context.Background()))

	const producers = 8
	const perProducer = 200
	var wg sync.WaitGroup
	for p := 0; p < producers; p++ {
		wg.Add(1)
		go func(p int) {
			defer wg.Done()
			for i := 0; i < perProducer; i++ {
				f.Record(core.InfoLevel, fmt.Sprintf("p%d", p), fmt.Sprint(i))
			}
		}(p)
	}
	wg.Wait()

	next := map[string]int{}
	for n := 0; n < producers*perProducer; n++ {
		m := tc.next(t).Message
		require.Equal(t, fmt.Sprint(next[m.Module]), m.Message, "producer %s out of order", m.Module)
		next[m.Module]++
	}
}

func TestRecord_AfterShutdownReportsEnqueue(t *testing.T) {
	rec := diag.NewRecorder()
	sink := newRecordingSink("info")
	f := newTestForwarder(t, "127.0.0.1:1", sink, rec)
	require.NoError(t, f.Shutdown(context.Background()))

	f.Record(core.ErrorLevel, "app", "late")

	assert.Len(t, sink.all(), 1)
	require.Equal(t, 1, rec.Count(diag.KindEnqueue))
	assert.ErrorIs(t, rec.Events()[0].Err, queue.ErrClosed)
	assert.Equal(t, uint64(1), f.Stats().EnqueueFailures)
}

func TestHandle_FieldsStayLocal(t *testing.T) {
	tc := startCollector(t, "127.0.0.1:0")
	sink := newRecordingSink("info")
	f := newTestForwarder(t, tc.Addr(), sink, diag.NewRecorder())
	require.NoError(t, f.Start(context.Background()))

	log := logger.NewBuilder().WithHandler(f).WithTarget("http").Build()
	log.Info("request handled", logger.Int("status", 200))
	log.Debug("filtered by the sink")

	frame := tc.next(t)
	assert.Equal(t, wire.Message{Hostname: "host1", Level: "INFO", Message: "request handled", Module: "http"}, frame.Message)
	assert.NotContains(t, string(frame.Raw), "status")

	entries := sink.all()
	require.Len(t, entries, 1)
	require.Len(t, entries[0].Fields, 1)
	assert.Equal(t, "status", entries[0].Fields[0].Key)
}

func TestSlogBridge(t *testing.T) {
	tc := startCollector(t, "127.0.0.1:0")
	f := newTestForwarder(t, tc.Addr(), newRecordingSink("info,db=trace"), diag.NewRecorder())
	require.NoError(t, f.Start(context.Background()))

	l := slog.New(handler.NewSlogHandler(f, core.TraceLevel, "api"))
	l.Debug("dropped by the filter")
	l.With(handler.TargetKey, "db").Debug("query")
	l.Warn("slow")

	first := tc.next(t).Message
	assert.Equal(t, "db", first.Module)
	assert.Equal(t, "DEBUG", first.Level)
	second := tc.next(t).Message
	assert.Equal(t, "api", second.Module)
	assert.Equal(t, "WARN", second.Level)
}

func TestClose_DrainsQueue(t *testing.T) {
	tc := startCollector(t, "127.0.0.1:0")
	sink := newRecordingSink("info")
	f, err := New(Config{Hostname: "host1", Address: tc.Addr(), Sink: sink, Reporter: diag.Discard})
	require.NoError(t, err)

	for i := 0; i < 10; i++ {
		f.Record(core.InfoLevel, "app", fmt.Sprint(i))
	}
	require.NoError(t, f.Start(context.Background()))
	require.NoError(t, f.Close())
	require.NoError(t, f.Close())

	for i := 0; i < 10; i++ {
		assert.Equal(t, fmt.Sprint(i), tc.next(t).Message.Message)
	}
	sink.mu.Lock()
	assert.True(t, sink.closed)
	sink.mu.Unlock()
}

func TestShutdown_TimesOutWhenUnreachable(t *testing.T) {
	f := newTestForwarder(t, freeAddr(t), newRecordingSink("info"), diag.Discard)
	require.NoError(t, f.Start(context.Background()))
	f.Record(core.InfoLevel, "app", "stuck")

	ctx, cancel := context.WithTimeout(context.Background(), 100*time.Millisecond)
	defer cancel()
	err := f.Shutdown(ctx)
	assert.ErrorIs(t, err, context.DeadlineExceeded)
}

func TestShutdown_CountsRedeliveryPayload(t *testing.T) {
	f, err := New(Config{
		Hostname:  "host1",
		Address:   "collector:9000",
		Sink:      newRecordingSink("info"),
		Backoff:   10 * time.Millisecond,
		Redeliver: true,
		Dialer:    brokenDialer{},
		Reporter:  diag.Discard,
	})
	require.NoError(t, err)
	require.NoError(t, f.Start(context.Background()))

	f.Record(core.InfoLevel, "app", "held back")
	require.Eventually(t, func() bool { return f.worker.Pending() == 1 }, 2*time.Second, 5*time.Millisecond)
	assert.Zero(t, f.queue.Len())

	ctx, cancel := context.WithTimeout(context.Background(), 50*time.Millisecond)
	defer cancel()
	err = f.Shutdown(ctx)
	assert.ErrorIs(t, err, context.DeadlineExceeded)
	assert.Contains(t, err.Error(), "1 messages not delivered")
}

func TestShutdown_DrainsSupervisedRun(t *testing.T) {
	tc := startCollector(t, "127.0.0.1:0")
	f, err := New(Config{
		Hostname: "host1",
		Address:  tc.Addr(),
		Sink:     newRecordingSink("info"),
		Reporter: diag.Discard,
	})
	require.NoError(t, err)

	sup := suture.NewSimple("logship")
	sup.Add(f.Service())
	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()
	errc := sup.ServeBackground(ctx)

	require.Eventually(t, func() bool { return workerRunning(f) }, 2*time.Second, 5*time.Millisecond)

	for i := 0; i < 3; i++ {
		f.Record(core.InfoLevel, "jobs", fmt.Sprintf("job %d", i))
	}
	require.NoError(t, f.Shutdown(context.Background()))
	for i := 0; i < 3; i++ {
		assert.Equal(t, fmt.Sprintf("job %d", i), tc.next(t).Message.Message)
	}

	cancel()
	<-errc
}

func TestShutdown_SupervisorStopsFirst(t *testing.T) {
	f, err := New(Config{
		Hostname: "host1",
		Address:  freeAddr(t),
		Sink:     newRecordingSink("info"),
		Backoff:  10 * time.Millisecond,
		Reporter: diag.Discard,
	})
	require.NoError(t, err)

	sup := suture.NewSimple("logship")
	sup.Add(f.Service())
	ctx, cancel := context.WithCancel(context.Background())
	errc := sup.ServeBackground(ctx)

	f.Record(core.InfoLevel, "app", "never sent")
	require.Eventually(t, func() bool { return workerRunning(f) }, 2*time.Second, 5*time.Millisecond)

	shutdownErr := make(chan error, 1)
	go func() { shutdownErr <- f.Shutdown(context.Background()) }()
	require.Eventually(t, f.queue.Closed, time.Second, time.Millisecond)
	time.Sleep(20 * time.Millisecond)

	cancel()
	<-errc
	select {
	case err := <-shutdownErr:
		assert.ErrorIs(t, err, ErrWorkerStopped)
		assert.Contains(t, err.Error(), "1 messages not delivered")
	case <-time.After(2 * time.Second):
		t.Fatal("Shutdown did not return after the supervisor stopped")
	}
}

func TestService_ExclusiveWithStart(t *testing.T) {
	f := newTestForwarder(t, freeAddr(t), nil, diag.Discard)
	require.NoError(t, f.Start(context.Background()))
	assert.ErrorIs(t, f.Service().Serve(context.Background()), ErrAlreadyStarted)
}

func TestStart_Twice(t *testing.T) {
	f := newTestForwarder(t, freeAddr(t), nil, diag.Discard)
	require.NoError(t, f.Start(context.Background()))
	assert.ErrorIs(t, f.Start(context.Background()), ErrAlreadyStarted)
}

func TestNilSinkUsesFilter(t *testing.T) {
	f, err := New(Config{
		Hostname: "h",
		Address:  "127.0.0.1:1",
		Filter:   handler.MustParseFilter("error"),
		Reporter: diag.Discard,
	})
	require.NoError(t, err)

	f.Record(core.WarnLevel, "app", "no")
	f.Record(core.ErrorLevel, "app", "yes")
	assert.Equal(t, 1, f.queue.Len())
	assert.NoError(t, f.Flush())
}

func TestFlush_DelegatesToSink(t *testing.T) {
	sink := newRecordingSink("info")
	f := newTestForwarder(t, "127.0.0.1:1", sink, diag.Discard)
	require.NoError(t, f.Flush())
	sink.mu.Lock()
	assert.Equal(t, 1, sink.flushes)
	sink.mu.Unlock()
}

func TestService_UnderSupervisor(t *testing.T) {
	tc := startCollector(t, "127.0.0.1:0")
	reg := prometheus.NewRegistry()
	f, err := New(Config{
		Hostname:   "host1",
		Address:    tc.Addr(),
		Sink:       newRecordingSink("info"),
		Reporter:   diag.Discard,
		Registerer: reg,
	})
	require.NoError(t, err)

	sup := suture.NewSimple("logship")
	sup.Add(f.Service())
	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()
	errc := sup.ServeBackground(ctx)

	f.Record(core.WarnLevel, "jobs", "retrying")
	assert.Equal(t, "retrying", tc.next(t).Message.Message)

	families, err := reg.Gather()
	require.NoError(t, err)
	var names []string
	for _, mf := range families {
		names = append(names, mf.GetName())
	}
	assert.Contains(t, names, "logship_forwarder_records_total")
	assert.Contains(t, names, "logship_delivery_delivered_total")

	cancel()
	<-errc
}

func BenchmarkRecord(b *testing.B) {
	f, err := New(Config{
		Hostname: "host1",
		Address:  "127.0.0.1:1",
		Reporter: diag.Discard,
	})
	require.NoError(b, err)

	b.ReportAllocs()
	b.ResetTimer()
	for i := 0; i < b.N; i++ {
		f.Record(core.InfoLevel, "bench", "benchmark message")
		if i%1024 == 0 {
			for {
				if _, ok := f.queue.TryPop(); !ok {
					break
				}
			}
		}
	}
}
