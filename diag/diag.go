// Package diag reports internal failures of the forwarding pipeline.
//
// Events go to a Reporter, never to the remote collector and never back
// to the code that emitted the log. The default reporter writes one JSON
// line per event to stderr through zap.
package diag

import (
	"time"
)

// Kind classifies an Event.
type Kind uint8

const (
	// KindSerialize: a record could not be encoded and was not enqueued.
	KindSerialize Kind = iota
	// KindEnqueue: the queue refused a payload (it was closed).
	KindEnqueue
	// KindConnect: dialing the collector failed.
	KindConnect
	// KindWrite: writing or flushing a frame failed; the connection was dropped.
	KindWrite
	// KindDrop: a payload was discarded after a failed write.
	KindDrop
)

var kindNames = [...]string{
	KindSerialize: "serialize",
	KindEnqueue:   "enqueue",
	KindConnect:   "connect",
	KindWrite:     "write",
	KindDrop:      "drop",
}

// String returns the lower-case name of the kind.
func (k Kind) String() string {
	if int(k) < len(kindNames) {
		return kindNames[k]
	}
	return "unknown"
}

// Event describes one internal failure.
type Event struct {
	Kind    Kind
	Err     error
	Address string // remote collector, for connect/write/drop
	Size    int    // payload bytes, when a payload is involved
	Time    time.Time
}

// Reporter receives diagnostic events. Implementations must be safe for
// concurrent use and must not block for long.
type Reporter interface {
	Report(Event)
}

// ReporterFunc adapts a function to Reporter.
type ReporterFunc func(Event)

// Report calls f(ev).
func (f ReporterFunc) Report(ev Event) { f(ev) }

type discard struct{}

func (discard) Report(Event) {}

// Discard drops every event.
var Discard Reporter = discard{}

// Stamp fills in ev.Time if unset and hands ev to r. A nil r discards.
func Stamp(r Reporter, ev Event) {
	if r == nil {
		return
	}
	if ev.Time.IsZero() {
		ev.Time = time.Now()
	}
	r.Report(ev)
}
