package logger

import (
	"errors"
	"net/netip"
	"testing"
	"time"

	"github.com/philipp01105/logship/core"
)

func TestFieldHelpers(t *testing.T) {
	tests := []struct {
		name  string
		field core.Field
		typ   core.FieldType
		value string
	}{
		{"string", String("k", "v"), core.StringType, "v"},
		{"int", Int("k", 42), core.IntType, "42"},
		{"int64", Int64("k", -7), core.Int64Type, "-7"},
		{"float", Float64("k", 1.5), core.Float64Type, "1.5"},
		{"bool", Bool("k", true), core.BoolType, "true"},
		{"duration", Duration("k", 1500*time.Millisecond), core.DurationType, "1.5s"},
		{"err", Err(errors.New("boom")), core.ErrorType, "boom"},
		{"nil err", Err(nil), core.ErrorType, ""},
		{"named err", NamedErr("cause", errors.New("eof")), core.ErrorType, "eof"},
		{"any picks type", Any("k", "text"), core.StringType, "text"},
		{"stringer", Stringer("k", netip.MustParseAddr("10.0.0.1")), core.AnyType, "10.0.0.1"},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			if tt.field.Type != tt.typ {
				t.Errorf("Type = %v, want %v", tt.field.Type, tt.typ)
			}
			if got := tt.field.StringValue(); got != tt.value {
				t.Errorf("StringValue() = %q, want %q", got, tt.value)
			}
		})
	}

	if f := NamedErr("cause", nil); f.Key != "cause" {
		t.Errorf("NamedErr key = %q", f.Key)
	}
	if f := Err(nil); f.Key != "error" {
		t.Errorf("Err key = %q", f.Key)
	}
}
