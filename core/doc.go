// Package core defines the shared types used across logship.
//
// It provides the Level type (Trace through Error), the Entry type that
// represents a single log event, and the Field type for structured
// key-value pairs that only the local sinks render.
//
// Every Entry carries a Target: the name of the component that emitted it.
// Targets drive per-component filtering in the local sink and become the
// "module" key of the message shipped to the remote collector.
//
// Entry objects are pooled via sync.Pool to keep the hot path
// allocation-free. Callers get an Entry with GetEntry and must
// return it with PutEntry once every handler has consumed it.
package core
