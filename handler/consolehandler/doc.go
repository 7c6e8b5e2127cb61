// Package consolehandler provides console output handlers that write
// formatted log entries to any io.Writer (default: os.Stdout).
//
// Handlers are split into specialized sync and async variants:
//
//   - SyncConsoleHandler writes on the caller's goroutine. Uses TryLock
//     for zero-alloc parallel formatting.
//   - AsyncConsoleHandler provides an isolated queue with per-level
//     OverflowPolicy and a dedicated background goroutine. Flush waits
//     for everything queued so far to be written.
//
// Both consult ConsoleConfig.Filter in Enabled; a nil filter keeps Info
// and above. The factory function NewConsoleHandler chooses the variant
// based on the Async field in ConsoleConfig.
package consolehandler
