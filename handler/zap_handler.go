package handler

import (
	"time"

	"go.uber.org/zap"
	"go.uber.org/zap/zapcore"

	"github.com/philipp01105/logship/core"
)

// ZapHandler is a local sink that writes through a *zap.Logger. The entry's
// target becomes the zap logger name, so zap encoders render it in their
// usual "logger" key.
type ZapHandler struct {
	logger *zap.Logger
	filter *Filter
}

// NewZapHandler wraps l. A nil filter defers entirely to the zap core's own
// level; otherwise both must enable a record for it to be written.
func NewZapHandler(l *zap.Logger, filter *Filter) *ZapHandler {
	if l == nil {
		l = zap.NewNop()
	}
	return &ZapHandler{logger: l, filter: filter}
}

// Enabled reports whether both the filter and the zap core accept the record.
func (h *ZapHandler) Enabled(level core.Level, target string) bool {
	if h.filter != nil && !h.filter.Enabled(level, target) {
		return false
	}
	return h.logger.Core().Enabled(zapLevel(level))
}

// Handle writes the entry as one zap entry.
func (h *ZapHandler) Handle(entry *core.Entry) error {
	ce := h.logger.Check(zapLevel(entry.Level), entry.Message)
	if ce == nil {
		return nil
	}
	if entry.Target != "" {
		ce.LoggerName = entry.Target
	}
	if !entry.Time.IsZero() {
		ce.Time = entry.Time
	}
	if entry.Caller.Defined {
		ce.Caller = zapcore.NewEntryCaller(0, entry.Caller.File, entry.Caller.Line, true)
	}
	if len(entry.Fields) == 0 {
		ce.Write()
		return nil
	}
	fields := make([]zap.Field, 0, len(entry.Fields))
	for _, f := range entry.Fields {
		fields = append(fields, zapField(f))
	}
	ce.Write(fields...)
	return nil
}

// CanRecycleEntry returns true because zap encodes the entry before Write returns.
func (h *ZapHandler) CanRecycleEntry() bool {
	return true
}

// Flush syncs the underlying zap core.
func (h *ZapHandler) Flush() error {
	return h.logger.Sync()
}

// Close syncs the underlying zap core. The logger itself stays usable.
func (h *ZapHandler) Close() error {
	return h.logger.Sync()
}

// zapLevel maps a core.Level to zap. zap has no trace level, so Trace
// shares Debug.
func zapLevel(l core.Level) zapcore.Level {
	switch l {
	case core.TraceLevel, core.DebugLevel:
		return zapcore.DebugLevel
	case core.InfoLevel:
		return zapcore.InfoLevel
	case core.WarnLevel:
		return zapcore.WarnLevel
	default:
		return zapcore.ErrorLevel
	}
}

func zapField(f core.Field) zap.Field {
	switch f.Type {
	case core.StringType:
		return zap.String(f.Key, f.Str)
	case core.IntType, core.Int64Type:
		return zap.Int64(f.Key, f.Int64)
	case core.Float64Type:
		return zap.Float64(f.Key, f.Float64)
	case core.BoolType:
		return zap.Bool(f.Key, f.Int64 == 1)
	case core.TimeType:
		return zap.Time(f.Key, time.Unix(0, f.Int64))
	case core.DurationType:
		return zap.Duration(f.Key, time.Duration(f.Int64))
	case core.ErrorType:
		return zap.String(f.Key, f.Str)
	default:
		return zap.Any(f.Key, f.Any)
	}
}
