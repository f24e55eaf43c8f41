// Package logging provides structured logging for panebus.
//
// It wraps Go's log/slog package to produce JSON log lines, either on stderr
// (the default for one-shot commands like "panebus emit") or appended to
// {dir}/panebus.log when a log directory is configured.
//
// # Child Loggers
//
// Context is attached by deriving child loggers. Each child inherits all
// attributes of its parent:
//
//	logger, _ := logging.NewLogger("", logging.LevelInfo)
//	pubLog := logger.WithComponent("publisher").WithEndpoint("ipc:///tmp/panebus-1000/default")
//	pubLog.Warn("send failed", "error", err)
//
// Output:
//
//	{"time":"...","level":"WARN","msg":"send failed","component":"publisher","endpoint":"ipc:///...","error":"..."}
//
// Use [NopLogger] in tests and anywhere logging is optional.
package logging
