// logship-collector accepts logship connections and prints every message
// it receives. It is a debugging aid, not a log store.
package main

import (
	"context"
	"errors"
	"fmt"
	"os"
	"os/signal"
	"syscall"

	"github.com/spf13/pflag"
	"go.uber.org/zap"
	"go.uber.org/zap/zapcore"

	"github.com/philipp01105/logship/collector"
)

func main() {
	if err := run(); err != nil {
		fmt.Fprintf(os.Stderr, "error: %v\n", err)
		os.Exit(1)
	}
}

func run() error {
	var (
		listen       string
		jsonOutput   bool
		maxFrameSize int
	)

	flagSet := pflag.NewFlagSet("logship-collector", pflag.ContinueOnError)
	flagSet.StringVarP(&listen, "listen", "l", "127.0.0.1:7000", "address to accept connections on")
	flagSet.BoolVar(&jsonOutput, "json", false, "print messages as JSON instead of console text")
	flagSet.IntVar(&maxFrameSize, "max-frame-size", collector.DefaultMaxFrameSize, "largest accepted frame in bytes")
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

	out := newOutput(jsonOutput)
	defer func() { _ = out.Sync() }()

	srv, err := collector.Listen(collector.Config{
		Address:      listen,
		MaxFrameSize: maxFrameSize,
		OnFrame:      func(f collector.Frame) { printFrame(out, f) },
		OnConnect: func(connID, remote string) {
			out.Info("connected", zap.String("conn", connID), zap.String("remote", remote))
		},
		OnDisconnect: func(connID string, err error) {
			if err != nil {
				out.Warn("disconnected", zap.String("conn", connID), zap.Error(err))
				return
			}
			out.Info("disconnected", zap.String("conn", connID))
		},
	})
	if err != nil {
		return err
	}

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	out.Info("listening", zap.String("address", srv.Addr()))
	err = srv.Serve(ctx)
	out.Info("stopped", zap.Uint64("frames", srv.Frames()))
	if errors.Is(err, context.Canceled) {
		return nil
	}
	return err
}

// newOutput builds the logger that renders received messages.
func newOutput(jsonOutput bool) *zap.Logger {
	encCfg := zap.NewProductionEncoderConfig()
	encCfg.EncodeTime = zapcore.ISO8601TimeEncoder
	var enc zapcore.Encoder
	if jsonOutput {
		enc = zapcore.NewJSONEncoder(encCfg)
	} else {
		encCfg.EncodeLevel = zapcore.CapitalLevelEncoder
		enc = zapcore.NewConsoleEncoder(encCfg)
	}
	core := zapcore.NewCore(enc, zapcore.Lock(os.Stdout), zapcore.DebugLevel)
	return zap.New(core).Named("collector")
}

func printFrame(out *zap.Logger, f collector.Frame) {
	if f.Err != nil {
		out.Warn("undecodable frame",
			zap.String("conn", f.ConnID),
			zap.ByteString("raw", f.Raw),
			zap.Error(f.Err))
		return
	}
	m := f.Message
	out.Info(m.Message,
		zap.String("host", m.Hostname),
		zap.String("level", m.Level),
		zap.String("module", m.Module),
		zap.String("conn", f.ConnID))
}

func printHelp(flagSet *pflag.FlagSet) {
	fmt.Fprintf(os.Stderr, `logship-collector prints messages shipped by logship clients.

Usage:
  logship-collector [flags]

Flags:
`)
	flagSet.PrintDefaults()
}
