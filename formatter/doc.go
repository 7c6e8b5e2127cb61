// Package formatter defines how log entries are rendered by local sinks.
//
// It exposes three interfaces: Formatter, which returns a []byte,
// WriterFormatter, which writes directly to an io.Writer, and
// BufferFormatter, which formats into a caller-owned bytes.Buffer.
// Handlers check for the optional interfaces at construction time and
// prefer them when available, eliminating the intermediate byte slice
// allocation on the write path.
//
// Both built-in formatters (TextFormatter and JSONFormatter) implement
// all three. The text layout is "TIME [LEVEL] target: message k=v"; the
// JSON layout adds a "target" key next to "level".
//
// These formatters only serve the local sinks. The message shipped to
// the remote collector has its own fixed shape, defined by package wire.
//
// Buffers larger than 64 KiB are not returned to the pool to prevent
// a single large log line from permanently inflating memory usage.
package formatter
