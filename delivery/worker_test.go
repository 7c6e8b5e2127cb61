package delivery

import (
	"context"
	"fmt"
	"strings"
	"testing"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"github.com/thejerf/suture/v4"

	"github.com/philipp01105/logship/core"
	"github.com/philipp01105/logship/diag"
	"github.com/philipp01105/logship/queue"
)

func TestNew_Validation(t *testing.T) {
	_, err := New(Config{Queue: queue.New()})
	assert.ErrorIs(t, err, ErrNoAddress)

	_, err = New(Config{Address: "127.0.0.1:1"})
	assert.ErrorIs(t, err, ErrNoQueue)

	w, err := New(Config{Address: "127.0.0.1:1", Queue: queue.New()})
	require.NoError(t, err)
	assert.Equal(t, DefaultBackoff, w.interval)
	assert.Equal(t, "logship-delivery(127.0.0.1:1)", w.String())
}

func TestWorker_ExactFrameBytes(t *testing.T) {
	tc := startCollector(t, "127.0.0.1:0")
	q := queue.New()
	require.NoError(t, q.Push(encode(t, core.InfoLevel, "auth", "login ok")))

	w, err := New(Config{Address: tc.Addr(), Queue: q})
	require.NoError(t, err)
	runWorker(t, w)

	f := tc.next(t, 2*time.Second)
	require.NoError(t, f.Err)
	assert.Equal(t, `{"hostname":"host1","level":"INFO","message":"login ok","module":"auth"}`, string(f.Raw))
}

func TestWorker_DeliversInOrder(t *testing.T) {
	tc := startCollector(t, "127.0.0.1:0")
	q := queue.New()

	const n = 500
	msgs := make([]string, n)
	for i := range msgs {
		msgs[i] = fmt.Sprintf("msg-%03d", i)
	}
	pushAll(t, q, msgs...)

	w, err := New(Config{Address: tc.Addr(), Queue: q})
	require.NoError(t, err)
	runWorker(t, w)

	for i := 0; i < n; i++ {
		f := tc.next(t, 2*time.Second)
		require.Equal(t, msgs[i], f.Message.Message)
	}
	require.Eventually(t, func() bool { return w.Stats().Delivered == n }, 2*time.Second, 5*time.Millisecond)
	assert.Equal(t, uint64(1), w.Stats().Connects)
	assert.Zero(t, w.Stats().QueueDepth)
}

func TestWorker_CollectorUnreachableAtStartup(t *testing.T) {
	addr := freeAddr(t)
	rec := diag.NewRecorder()
	q := queue.New()
	pushAll(t, q, "a", "b", "c")

	w, err := New(Config{
		Address:  addr,
		Queue:    q,
		Backoff:  50 * time.Millisecond,
		Reporter: rec,
	})
	require.NoError(t, err)
	runWorker(t, w)

	require.True(t, rec.Wait(diag.KindConnect, 2, 2*time.Second), "expected repeated connect failures")
	for _, ev := range rec.Events() {
		assert.Equal(t, addr, ev.Address)
	}
	pushAll(t, q, "d")
	assert.Equal(t, 4, q.Len())

	tc := startCollector(t, addr)
	for _, want := range []string{"a", "b", "c", "d"} {
		f := tc.next(t, 2*time.Second)
		assert.Equal(t, want, f.Message.Message)
	}
	assert.GreaterOrEqual(t, w.Stats().ConnectFailures, uint64(2))
}

func TestWorker_ReconnectsAfterReset(t *testing.T) {
	tc := startCollector(t, "127.0.0.1:0")
	rec := diag.NewRecorder()
	q := queue.New()

	w, err := New(Config{
		Address:  tc.Addr(),
		Queue:    q,
		Backoff:  20 * time.Millisecond,
		Reporter: rec,
	})
	require.NoError(t, err)
	runWorker(t, w)

	pushAll(t, q, "before")
	first := tc.next(t, 2*time.Second)
	assert.Equal(t, "before", first.Message.Message)

	tc.DropConnections()

	// Writes into a reset socket may succeed once before failing, so keep
	// producing until something arrives on a new connection.
	deadline := time.Now().Add(5 * time.Second)
	for i := 0; ; i++ {
		require.True(t, time.Now().Before(deadline), "no frame arrived on a new connection")
		pushAll(t, q, fmt.Sprintf("after-%d", i))
		select {
		case f := <-tc.frames:
			if f.ConnID != first.ConnID {
				assert.True(t, strings.HasPrefix(f.Message.Message, "after-"))
				assert.GreaterOrEqual(t, rec.Count(diag.KindWrite), 1)
				assert.GreaterOrEqual(t, w.Stats().Connects, uint64(2))
				return
			}
		case <-time.After(20 * time.Millisecond):
		}
	}
}

func TestWorker_DropsFailedPayloadByDefault(t *testing.T) {
	d := &scriptedDialer{failFirst: 1}
	rec := diag.NewRecorder()
	q := queue.New()
	pushAll(t, q, "lost", "kept")

	w, err := New(Config{
		Address:  "collector:9000",
		Queue:    q,
		Backoff:  10 * time.Millisecond,
		Dialer:   d,
		Reporter: rec,
	})
	require.NoError(t, err)
	runWorker(t, w)

	require.Eventually(t, func() bool { return strings.Contains(d.written(), `"kept"`) }, 2*time.Second, 5*time.Millisecond)
	assert.NotContains(t, d.written(), `"lost"`)
	assert.Equal(t, 1, rec.Count(diag.KindWrite))
	assert.Equal(t, 1, rec.Count(diag.KindDrop))

	// The write failure is reported before the drop it caused.
	var kinds []diag.Kind
	for _, ev := range rec.Events() {
		if ev.Kind == diag.KindWrite || ev.Kind == diag.KindDrop {
			kinds = append(kinds, ev.Kind)
		}
	}
	assert.Equal(t, []diag.Kind{diag.KindWrite, diag.KindDrop}, kinds)

	require.Eventually(t, func() bool { return w.Stats().Delivered == 1 }, time.Second, 5*time.Millisecond)
	s := w.Stats()
	assert.Equal(t, uint64(1), s.Dropped)
	assert.Equal(t, uint64(1), s.WriteFailures)
}

func TestWorker_Redeliver(t *testing.T) {
	d := &scriptedDialer{failFirst: 2}
	rec := diag.NewRecorder()
	q := queue.New()
	pushAll(t, q, "first", "second")

	w, err := New(Config{
		Address:   "collector:9000",
		Queue:     q,
		Backoff:   10 * time.Millisecond,
		Redeliver: true,
		Dialer:    d,
		Reporter:  rec,
	})
	require.NoError(t, err)
	runWorker(t, w)

	require.Eventually(t, func() bool { return strings.Count(d.written(), "\x00") == 2 }, 2*time.Second, 5*time.Millisecond)
	frames := strings.Split(strings.TrimSuffix(d.written(), "\x00"), "\x00")
	require.Len(t, frames, 2)
	assert.Contains(t, frames[0], `"first"`)
	assert.Contains(t, frames[1], `"second"`)
	assert.Equal(t, 2, rec.Count(diag.KindWrite))
	assert.Zero(t, rec.Count(diag.KindDrop))
	require.Eventually(t, func() bool { return w.Stats().Delivered == 2 }, time.Second, 5*time.Millisecond)
	assert.Zero(t, w.Stats().Dropped)
}

func TestWorker_CancelWhileDialing(t *testing.T) {
	d := &blockingDialer{started: make(chan struct{}, 1)}
	w, err := New(Config{Address: "collector:9000", Queue: queue.New(), Dialer: d})
	require.NoError(t, err)
	stop := runWorker(t, w)

	<-d.started
	assert.ErrorIs(t, stop(), context.Canceled)
}

func TestWorker_CancelWhileIdle(t *testing.T) {
	tc := startCollector(t, "127.0.0.1:0")
	w, err := New(Config{Address: tc.Addr(), Queue: queue.New()})
	require.NoError(t, err)
	stop := runWorker(t, w)

	require.Eventually(t, func() bool { return tc.ConnectionCount() == 1 }, 2*time.Second, 5*time.Millisecond)
	assert.ErrorIs(t, stop(), context.Canceled)
}

func TestWorker_CancelDuringBackoff(t *testing.T) {
	rec := diag.NewRecorder()
	w, err := New(Config{
		Address:  freeAddr(t),
		Queue:    queue.New(),
		Backoff:  time.Hour,
		Reporter: rec,
	})
	require.NoError(t, err)
	stop := runWorker(t, w)

	require.True(t, rec.Wait(diag.KindConnect, 1, 2*time.Second))
	start := time.Now()
	assert.ErrorIs(t, stop(), context.Canceled)
	assert.Less(t, time.Since(start), time.Second)
}

func TestWorker_ClosedQueueStopsWithoutRestart(t *testing.T) {
	tc := startCollector(t, "127.0.0.1:0")
	q := queue.New()
	pushAll(t, q, "x", "y")
	q.Close()

	w, err := New(Config{Address: tc.Addr(), Queue: q})
	require.NoError(t, err)

	err = w.Serve(context.Background())
	assert.ErrorIs(t, err, suture.ErrDoNotRestart)
	assert.Equal(t, "x", tc.next(t, time.Second).Message.Message)
	assert.Equal(t, "y", tc.next(t, time.Second).Message.Message)
}

func TestWorker_AlreadyRunning(t *testing.T) {
	d := &blockingDialer{started: make(chan struct{}, 1)}
	w, err := New(Config{Address: "collector:9000", Queue: queue.New(), Dialer: d})
	require.NoError(t, err)
	runWorker(t, w)

	<-d.started
	assert.ErrorIs(t, w.Serve(context.Background()), ErrAlreadyRunning)
}

func TestWorker_UnderSupervisor(t *testing.T) {
	tc := startCollector(t, "127.0.0.1:0")
	q := queue.New()
	w, err := New(Config{Address: tc.Addr(), Queue: q})
	require.NoError(t, err)

	sup := suture.NewSimple("logship-test")
	sup.Add(w)
	ctx, cancel := context.WithCancel(context.Background())
	errc := sup.ServeBackground(ctx)

	pushAll(t, q, "supervised")
	assert.Equal(t, "supervised", tc.next(t, 2*time.Second).Message.Message)

	cancel()
	select {
	case <-errc:
	case <-time.After(3 * time.Second):
		t.Fatal("supervisor did not stop")
	}
}

func TestWorker_MetricsRegistered(t *testing.T) {
	reg := prometheus.NewRegistry()
	q := queue.New()
	pushAll(t, q, "pending")

	_, err := New(Config{Address: "127.0.0.1:1", Queue: q, Registerer: reg})
	require.NoError(t, err)

	families, err := reg.Gather()
	require.NoError(t, err)
	names := map[string]float64{}
	for _, mf := range families {
		for _, m := range mf.GetMetric() {
			if g := m.GetGauge(); g != nil {
				names[mf.GetName()] = g.GetValue()
			} else {
				names[mf.GetName()] = m.GetCounter().GetValue()
			}
		}
	}
	for _, n := range []string{
		"logship_delivery_delivered_total",
		"logship_delivery_dropped_total",
		"logship_delivery_connects_total",
		"logship_delivery_connect_failures_total",
		"logship_delivery_write_failures_total",
		"logship_delivery_queue_depth",
	} {
		assert.Contains(t, names, n)
	}
	assert.Equal(t, float64(1), names["logship_delivery_queue_depth"])
}

func BenchmarkWorker_Loopback(b *testing.B) {
	srv, q := benchCollector(b)
	w, err := New(Config{Address: srv, Queue: q})
	require.NoError(b, err)
	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()
	go func() { _ = w.Serve(ctx) }()

	payload := encode(b, core.InfoLevel, "bench", "benchmark message")
	b.ReportAllocs()
	b.ResetTimer()
	for i := 0; i < b.N; i++ {
		_ = q.Push(payload)
	}
	for w.Stats().Delivered < uint64(b.N) {
		time.Sleep(time.Millisecond)
	}
}
