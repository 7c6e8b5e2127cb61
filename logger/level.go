package logger

import (
	"github.com/philipp01105/logship/core"
)

// Level Re-export type and constants for convenience
type Level = core.Level

const (
	TraceLevel = core.TraceLevel
	DebugLevel = core.DebugLevel
	InfoLevel  = core.InfoLevel
	WarnLevel  = core.WarnLevel
	ErrorLevel = core.ErrorLevel
)

// ParseLevel converts a string to a Level. Unknown names give InfoLevel.
func ParseLevel(s string) Level {
	l, _ := core.ParseLevel(s)
	return l
}
