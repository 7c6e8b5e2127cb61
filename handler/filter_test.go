package handler

import (
	"testing"

	"github.com/philipp01105/logship/core"
)

func TestParseFilter(t *testing.T) {
	f, err := ParseFilter("warn, auth=debug, db::pool=trace, noisy=off, metrics")
	if err != nil {
		t.Fatalf("ParseFilter() error = %v", err)
	}

	tests := []struct {
		level  core.Level
		target string
		want   bool
	}{
		{core.InfoLevel, "http", false},
		{core.WarnLevel, "http", true},
		{core.DebugLevel, "auth", true},
		{core.TraceLevel, "auth", false},
		{core.DebugLevel, "auth::session", true},
		{core.DebugLevel, "authz", false},
		{core.TraceLevel, "db::pool", true},
		{core.DebugLevel, "db", false},
		{core.ErrorLevel, "noisy", false},
		{core.ErrorLevel, "noisy.child", false},
		{core.TraceLevel, "metrics", true},
		{core.WarnLevel, "", true},
	}

	for _, tt := range tests {
		if got := f.Enabled(tt.level, tt.target); got != tt.want {
			t.Errorf("Enabled(%v, %q) = %v, want %v", tt.level, tt.target, got, tt.want)
		}
	}
}

func TestParseFilter_DefaultsToInfo(t *testing.T) {
	f, err := ParseFilter("")
	if err != nil {
		t.Fatalf("ParseFilter() error = %v", err)
	}
	if f.Enabled(core.DebugLevel, "any") {
		t.Error("Debug enabled with empty filter")
	}
	if !f.Enabled(core.InfoLevel, "any") {
		t.Error("Info disabled with empty filter")
	}
}

func TestParseFilter_Off(t *testing.T) {
	f := MustParseFilter("off,auth=info")
	if f.Enabled(core.ErrorLevel, "http") {
		t.Error("global off should disable untargeted records")
	}
	if !f.Enabled(core.InfoLevel, "auth") {
		t.Error("auth=info should override global off")
	}
}

func TestParseFilter_Errors(t *testing.T) {
	for _, directives := range []string{"auth=loud", "=debug"} {
		if _, err := ParseFilter(directives); err == nil {
			t.Errorf("ParseFilter(%q) expected error", directives)
		}
	}
}

func TestNilFilter(t *testing.T) {
	var f *Filter
	if f.Enabled(core.DebugLevel, "x") {
		t.Error("nil filter should disable Debug")
	}
	if !f.Enabled(core.ErrorLevel, "x") {
		t.Error("nil filter should enable Error")
	}
}

func TestNewLevelFilter(t *testing.T) {
	f := NewLevelFilter(core.TraceLevel)
	if !f.Enabled(core.TraceLevel, "anything") {
		t.Error("Trace filter should enable Trace")
	}
}

func BenchmarkFilterEnabled(b *testing.B) {
	f := MustParseFilter("info,auth=debug,db::pool=trace,noisy=off")
	b.ReportAllocs()
	for i := 0; i < b.N; i++ {
		f.Enabled(core.DebugLevel, "db::pool::conn")
	}
}
