package logger

import (
	"fmt"
	"time"

	"github.com/philipp01105/logship/core"
)

// Typed field constructors. Fields decorate local sink output only; the
// remote collector receives the message text alone.

func String(key, val string) core.Field { return core.FieldOf(key, val) }
func Int(key string, val int) core.Field { return core.FieldOf(key, val) }
func Int64(key string, val int64) core.Field { return core.FieldOf(key, val) }
func Float64(key string, val float64) core.Field { return core.FieldOf(key, val) }
func Bool(key string, val bool) core.Field { return core.FieldOf(key, val) }
func Time(key string, val time.Time) core.Field { return core.FieldOf(key, val) }
func Duration(key string, val time.Duration) core.Field { return core.FieldOf(key, val) }

// Err stores err under the "error" key. A nil error yields an empty value.
func Err(err error) core.Field {
	return NamedErr("error", err)
}

// NamedErr stores err under key.
func NamedErr(key string, err error) core.Field {
	if err == nil {
		return core.Field{Key: key, Type: core.ErrorType}
	}
	return core.FieldOf(key, err)
}

// Stringer renders val lazily at format time.
func Stringer(key string, val fmt.Stringer) core.Field {
	return core.Field{Key: key, Type: core.AnyType, Any: val}
}

// Any picks the most specific field type for val.
func Any(key string, val interface{}) core.Field {
	return core.FieldOf(key, val)
}
