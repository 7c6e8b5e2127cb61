// logship-demo emits sample records through the forwarder so a collector
// and the local sink can be watched side by side.
//
// Configuration comes from an optional YAML file, LOGSHIP_ environment
// variables and flags, in increasing precedence. Supervisor events are
// logged through log/slog, which the forwarder has taken over, so they
// are shipped like any other record.
package main

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"math/rand/v2"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/collectors"
	"github.com/prometheus/client_golang/prometheus/promhttp"
	"github.com/spf13/pflag"
	"github.com/thejerf/suture/v4"
	"github.com/thejerf/sutureslog"

	"github.com/philipp01105/logship/config"
	"github.com/philipp01105/logship/diag"
	"github.com/philipp01105/logship/forwarder"
	"github.com/philipp01105/logship/handler"
	"github.com/philipp01105/logship/logger"
)

func main() {
	if err := run(); err != nil {
		fmt.Fprintf(os.Stderr, "error: %v\n", err)
		os.Exit(1)
	}
}

func run() error {
	var (
		configPath    string
		remote        string
		hostname      string
		filter        string
		metricsListen string
		interval      time.Duration
	)

	flagSet := pflag.NewFlagSet("logship-demo", pflag.ContinueOnError)
	flagSet.StringVarP(&configPath, "config", "c", "", "path to YAML config (default: logship.yaml or $LOGSHIP_CONFIG)")
	flagSet.StringVarP(&remote, "remote", "r", "", "collector address host:port")
	flagSet.StringVar(&hostname, "hostname", "", "hostname stamped on shipped messages")
	flagSet.StringVar(&filter, "filter", "", `filter directives, e.g. "info,auth=debug"`)
	flagSet.StringVar(&metricsListen, "metrics-listen", "", "serve /metrics on this address")
	flagSet.DurationVar(&interval, "interval", 500*time.Millisecond, "delay between sample records")
	flagSet.BoolP("help", "h", false, "show help")

	if err := flagSet.Parse(os.Args[1:]); err != nil {
		if errors.Is(err, pflag.ErrHelp) {
			printHelp(flagSet)
			return nil
		}
		return err
	}
	if help, _ := flagSet.GetBool("help"); help {
		printHelp(flagSet)
		return nil
	}

	cfg, err := config.Load(configPath, func(c *config.Config) {
		if remote != "" {
			c.Remote.Address = remote
		}
		if hostname != "" {
			c.Hostname = hostname
		}
		if filter != "" {
			c.Sink.Filter = filter
		}
		if metricsListen != "" {
			c.Metrics.Listen = metricsListen
		}
	})
	if err != nil {
		return err
	}

	sink, err := cfg.BuildSink()
	if err != nil {
		return err
	}

	reporter := diag.NewStderrReporter()
	defer reporter.Sync()

	reg := prometheus.NewRegistry()
	reg.MustRegister(collectors.NewGoCollector(), collectors.NewProcessCollector(collectors.ProcessCollectorOpts{}))

	fc, err := cfg.ForwarderConfig(sink, reporter, reg)
	if err != nil {
		return err
	}
	if err := forwarder.InitConfig(fc); err != nil {
		return fmt.Errorf("start forwarder: %w", err)
	}
	fwd := forwarder.Default()

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	hook := &sutureslog.Handler{Logger: slog.Default().With(handler.TargetKey, "supervisor")}
	sup := suture.New("logship-demo", suture.Spec{
		EventHook: hook.MustHook(),
		Timeout:   5 * time.Second,
	})
	sup.Add(&emitter{interval: interval})
	if cfg.Metrics.Listen != "" {
		sup.Add(&metricsServer{addr: cfg.Metrics.Listen, reg: reg})
	}

	slog.Info("logship demo started",
		"remote", cfg.Remote.Address,
		"hostname", fwd.Hostname(),
		"filter", cfg.Sink.Filter)

	supErr := sup.Serve(ctx)
	if ctx.Err() != nil {
		supErr = nil
	}

	stats := fwd.Stats()
	closeErr := fwd.Close()
	fmt.Fprintf(os.Stderr, "records=%d delivered=%d dropped=%d connects=%d\n",
		stats.Records, stats.Delivered, stats.Dropped, stats.Connects)
	return errors.Join(supErr, closeErr)
}

// emitter produces a steady mix of records across levels and targets.
type emitter struct {
	interval time.Duration
}

var sampleTargets = []string{"app", "auth", "db::pool", "http"}

func (e *emitter) Serve(ctx context.Context) error {
	loggers := make([]*logger.Logger, len(sampleTargets))
	for i, target := range sampleTargets {
		loggers[i] = logger.Named(target)
	}

	ticker := time.NewTicker(e.interval)
	defer ticker.Stop()

	for n := 1; ; n++ {
		select {
		case <-ctx.Done():
			return ctx.Err()
		case <-ticker.C:
		}

		l := loggers[rand.IntN(len(loggers))]
		switch r := rand.IntN(20); {
		case r == 0:
			l.Errorf("request %d failed: upstream timeout", n)
		case r < 3:
			l.Warnf("request %d slow: %dms", n, 200+rand.IntN(800))
		case r < 10:
			l.Infof("request %d served", n)
		case r < 15:
			l.Debugf("request %d cache hit", n)
		default:
			l.Tracef("request %d headers parsed", n)
		}
	}
}

func (e *emitter) String() string { return "sample-emitter" }

// metricsServer exposes reg on /metrics until its context ends.
type metricsServer struct {
	addr string
	reg  *prometheus.Registry
}

func (m *metricsServer) Serve(ctx context.Context) error {
	mux := http.NewServeMux()
	mux.Handle("/metrics", promhttp.HandlerFor(m.reg, promhttp.HandlerOpts{Registry: m.reg}))
	srv := &http.Server{
		Addr:              m.addr,
		Handler:           mux,
		ReadHeaderTimeout: 5 * time.Second,
	}

	errCh := make(chan error, 1)
	go func() { errCh <- srv.ListenAndServe() }()

	select {
	case err := <-errCh:
		return fmt.Errorf("metrics server: %w", err)
	case <-ctx.Done():
		shutdownCtx, cancel := context.WithTimeout(context.Background(), 2*time.Second)
		defer cancel()
		_ = srv.Shutdown(shutdownCtx)
		return ctx.Err()
	}
}

func (m *metricsServer) String() string { return "metrics-http(" + m.addr + ")" }

func printHelp(flagSet *pflag.FlagSet) {
	fmt.Fprintf(os.Stderr, `logship-demo emits sample records to a logship collector.

Usage:
  logship-demo [flags]

Examples:
  # Ship to a local collector, echo debug and above
  logship-demo --remote 127.0.0.1:7000 --filter debug

  # Use a config file and expose metrics
  logship-demo -c logship.yaml --metrics-listen :9100

Flags:
`)
	flagSet.PrintDefaults()
}
