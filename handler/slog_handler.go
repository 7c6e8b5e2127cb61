package handler

import (
	"context"
	"log/slog"

	"github.com/philipp01105/logship/core"
)

// TargetKey is the slog attribute key that overrides the target of a
// single record, e.g. slog.Info("login ok", handler.TargetKey, "auth").
const TargetKey = "target"

// SlogHandler is an adapter that implements slog.Handler on top of a Handler.
// It lets code written against log/slog feed the same sinks (and the remote
// forwarder) as the native logger.
type SlogHandler struct {
	handler Handler
	level   core.Level
	target  string
	attrs   []core.Field
	group   string
}

// NewSlogHandler creates a new slog.Handler adapter wrapping the given Handler.
// Records are attributed to target unless they carry a TargetKey attribute.
func NewSlogHandler(h Handler, level core.Level, target string) *SlogHandler {
	return &SlogHandler{
		handler: h,
		level:   level,
		target:  target,
	}
}

// Enabled reports whether the handler handles records at the given level.
func (s *SlogHandler) Enabled(_ context.Context, level slog.Level) bool {
	l := slogLevelToCore(level)
	return l >= s.level && s.handler.Enabled(l, s.target)
}

// Handle converts a slog.Record to a core.Entry and passes it to the wrapped handler.
func (s *SlogHandler) Handle(_ context.Context, record slog.Record) error {
	entry := core.GetEntry()
	if !record.Time.IsZero() {
		entry.Time = record.Time
	}
	entry.Level = slogLevelToCore(record.Level)
	entry.Target = s.target
	entry.Message = record.Message

	// Add pre-configured attrs
	if len(s.attrs) > 0 {
		entry.Fields = append(entry.Fields, s.attrs...)
	}

	// Add record attrs
	record.Attrs(func(a slog.Attr) bool {
		if a.Key == TargetKey && s.group == "" {
			entry.Target = a.Value.String()
			return true
		}
		entry.Fields = appendSlogAttr(entry.Fields, s.group, a)
		return true
	})

	// The target attribute may have routed the record somewhere the
	// sink has disabled.
	if entry.Target != s.target && !s.handler.Enabled(entry.Level, entry.Target) {
		core.PutEntry(entry)
		return nil
	}

	err := s.handler.Handle(entry)
	if CanRecycle(s.handler) {
		core.PutEntry(entry)
	}
	return err
}

// WithAttrs returns a new SlogHandler with additional attributes.
func (s *SlogHandler) WithAttrs(attrs []slog.Attr) slog.Handler {
	target := s.target
	newAttrs := make([]core.Field, len(s.attrs), len(s.attrs)+len(attrs))
	copy(newAttrs, s.attrs)
	for _, a := range attrs {
		if a.Key == TargetKey && s.group == "" {
			target = a.Value.String()
			continue
		}
		newAttrs = appendSlogAttr(newAttrs, s.group, a)
	}
	return &SlogHandler{
		handler: s.handler,
		level:   s.level,
		target:  target,
		attrs:   newAttrs,
		group:   s.group,
	}
}

// WithGroup returns a new SlogHandler with the given group name.
func (s *SlogHandler) WithGroup(name string) slog.Handler {
	if name == "" {
		return s
	}
	newGroup := name
	if s.group != "" {
		newGroup = s.group + "." + name
	}
	newAttrs := make([]core.Field, len(s.attrs))
	copy(newAttrs, s.attrs)
	return &SlogHandler{
		handler: s.handler,
		level:   s.level,
		target:  s.target,
		attrs:   newAttrs,
		group:   newGroup,
	}
}

// slogLevelToCore converts a slog.Level to a core.Level.
// Anything below slog.LevelDebug maps to Trace.
func slogLevelToCore(level slog.Level) core.Level {
	switch {
	case level >= slog.LevelError:
		return core.ErrorLevel
	case level >= slog.LevelWarn:
		return core.WarnLevel
	case level >= slog.LevelInfo:
		return core.InfoLevel
	case level >= slog.LevelDebug:
		return core.DebugLevel
	default:
		return core.TraceLevel
	}
}

// appendSlogAttr converts a slog.Attr to fields, prefixing keys with the
// group. Group attrs are flattened into one field per member.
func appendSlogAttr(dst []core.Field, group string, a slog.Attr) []core.Field {
	key := a.Key
	if group != "" {
		key = group + "." + a.Key
	}

	a.Value = a.Value.Resolve()

	switch a.Value.Kind() {
	case slog.KindString:
		return append(dst, core.Field{Key: key, Type: core.StringType, Str: a.Value.String()})
	case slog.KindInt64:
		return append(dst, core.Field{Key: key, Type: core.Int64Type, Int64: a.Value.Int64()})
	case slog.KindUint64:
		return append(dst, core.Field{Key: key, Type: core.Int64Type, Int64: int64(a.Value.Uint64())})
	case slog.KindFloat64:
		return append(dst, core.Field{Key: key, Type: core.Float64Type, Float64: a.Value.Float64()})
	case slog.KindBool:
		return append(dst, core.FieldOf(key, a.Value.Bool()))
	case slog.KindTime:
		return append(dst, core.FieldOf(key, a.Value.Time()))
	case slog.KindDuration:
		return append(dst, core.Field{Key: key, Type: core.DurationType, Int64: int64(a.Value.Duration())})
	case slog.KindGroup:
		for _, member := range a.Value.Group() {
			dst = appendSlogAttr(dst, key, member)
		}
		return dst
	default:
		return append(dst, core.FieldOf(key, a.Value.Any()))
	}
}
