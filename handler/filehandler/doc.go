// Package filehandler provides file output handlers that write formatted
// log entries to files with automatic rotation by size, age, or interval.
//
// Handlers are split into specialized sync and async variants:
//
//   - SyncFileHandler writes into a bufio.Writer on the caller's goroutine.
//   - AsyncFileHandler provides an isolated queue with per-level
//     OverflowPolicy and a dedicated background goroutine.
//
// Rotated files are renamed to "<name>.<timestamp>" and the oldest are
// removed beyond MaxBackups. Flush pushes buffered output to the file;
// Close also fsyncs it. The factory function NewFileHandler chooses the
// variant based on the Async field in FileConfig.
package filehandler
