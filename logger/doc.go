// Package logger is the public logging API. Most users only need to
// import this package.
//
// A Logger is immutable after construction. The fields, level, target
// and handler are set once via the Builder and never modified, so a
// Logger is safe for concurrent use without any locking on the read path.
//
// The package initializes a default Logger (async, InfoLevel, text
// format to stdout) in init(). The package-level functions Info,
// Error, Debugf, etc. delegate to this default instance, so simple
// programs can log without any setup:
//
//	logger.Info("ready", logger.Int("port", 8080))
//
// forwarder.Init replaces the default with one that also ships every
// enabled entry to a remote collector.
//
// For custom configuration, use the Builder:
//
//	log := logger.NewBuilder().
//	    WithHandler(myHandler).
//	    WithLevel(logger.DebugLevel).
//	    WithTarget("api").
//	    WithCaller(true).
//	    Build()
//
// Every entry carries a target (module name) that handlers filter on.
// Named returns a Logger for another target; With returns one carrying
// additional default fields:
//
//	authLog := log.Named("auth")
//	reqLog := log.With(logger.String("request_id", id))
//
// The level check happens before any allocation; the handler's Enabled
// is consulted next, still before an Entry is taken from the pool.
package logger
