// Package handler provides the Handler interface, the local-sink capability
// used by the logger and by the remote forwarder, and its built-in helpers.
//
// A Handler answers Enabled(level, target) before any work is done, so a
// disabled record costs one filter lookup. Filtering is usually delegated
// to a Filter, parsed from directives such as "info,auth=debug,noisy=off".
//
// Concrete sinks live in subpackages:
//
//   - consolehandler writes formatted entries to any io.Writer (default: stdout).
//   - filehandler writes to a file with rotation by size, age, or interval.
//
// This package also holds the adapters that do not own an output:
//
//   - MultiHandler fans out a single entry to every child that enables it.
//   - SlogHandler adapts a Handler to log/slog.Handler.
//   - ZapHandler renders entries through an existing *zap.Logger.
//
// Async sinks apply a per-level OverflowPolicy when their bounded queue is
// full: DropNewest (default for Trace through Warn), DropOldest, or Block
// with a timeout (default for Error). Dropped, blocked and processed counts
// are tracked in Stats and exposed through StatsProvider.
package handler
