// Package observability provides logger construction for qcherd.
//
// The CLI uses a console-encoded zap logger writing to stderr so that
// structured command output (tables, JSONL) on stdout stays parseable.
package observability

import (
	"fmt"
	"os"

	"go.uber.org/zap"
	"go.uber.org/zap/zapcore"
)

// CLILogger is the process-wide logger used by commands.
//
// It defaults to a no-op logger so packages can log before Init runs
// (e.g. during flag parsing errors) without nil checks.
var CLILogger = zap.NewNop()

// Init configures CLILogger with the given level.
//
// Level accepts zap's textual levels ("debug", "info", "warn", "error").
// When json is true the logger emits structured JSON, otherwise a
// human-readable console encoding.
func Init(level string, json bool) error {
	lvl, err := zapcore.ParseLevel(level)
	if err != nil {
		return fmt.Errorf("invalid log level %q: %w", level, err)
	}

	encCfg := zap.NewProductionEncoderConfig()
	encCfg.EncodeTime = zapcore.ISO8601TimeEncoder

	var enc zapcore.Encoder
	if json {
		enc = zapcore.NewJSONEncoder(encCfg)
	} else {
		encCfg.EncodeLevel = zapcore.CapitalColorLevelEncoder
		enc = zapcore.NewConsoleEncoder(encCfg)
	}

	core := zapcore.NewCore(enc, zapcore.Lock(os.Stderr), lvl)
	CLILogger = zap.New(core)
	return nil
}

// Sync flushes any buffered log entries. Safe to call on a nop logger.
func Sync() {
	_ = CLILogger.Sync()
}
