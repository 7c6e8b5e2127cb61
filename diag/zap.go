package diag

import (
	"os"

	"go.uber.org/zap"
	"go.uber.org/zap/zapcore"
)

// ZapReporter logs each event through a *zap.Logger. Connect failures are
// logged at Warn since they repeat every backoff interval during an
// outage; everything else is logged at Error.
type ZapReporter struct {
	logger *zap.Logger
}

// NewZapReporter returns a reporter writing to l under the "logship" name.
func NewZapReporter(l *zap.Logger) *ZapReporter {
	if l == nil {
		l = zap.NewNop()
	}
	return &ZapReporter{logger: l.Named("logship")}
}

// NewStderrReporter returns a reporter that writes JSON lines to stderr.
func NewStderrReporter() *ZapReporter {
	encCfg := zap.NewProductionEncoderConfig()
	encCfg.EncodeTime = zapcore.ISO8601TimeEncoder
	core := zapcore.NewCore(
		zapcore.NewJSONEncoder(encCfg),
		zapcore.Lock(os.Stderr),
		zapcore.DebugLevel,
	)
	return NewZapReporter(zap.New(core))
}

// Report implements Reporter.
func (r *ZapReporter) Report(ev Event) {
	level := zapcore.ErrorLevel
	if ev.Kind == KindConnect {
		level = zapcore.WarnLevel
	}
	ce := r.logger.Check(level, "log forwarding "+ev.Kind.String()+" failure")
	if ce == nil {
		return
	}
	if !ev.Time.IsZero() {
		ce.Time = ev.Time
	}
	fields := make([]zap.Field, 0, 4)
	fields = append(fields, zap.Stringer("kind", ev.Kind))
	if ev.Err != nil {
		fields = append(fields, zap.Error(ev.Err))
	}
	if ev.Address != "" {
		fields = append(fields, zap.String("address", ev.Address))
	}
	if ev.Size > 0 {
		fields = append(fields, zap.Int("size", ev.Size))
	}
	ce.Write(fields...)
}

// Sync flushes the underlying logger.
func (r *ZapReporter) Sync() error {
	return r.logger.Sync()
}
