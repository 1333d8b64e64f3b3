// Package observability wires up the structured logger shared by every CLI
// command.
package observability

import (
	"os"

	"go.uber.org/zap"
	"go.uber.org/zap/zapcore"
)

// CLILogger is the process-wide structured logger used by internal/cmd.
// InitLogger replaces it before any command runs; until then it is a no-op
// logger so packages can log unconditionally without nil checks.
var CLILogger *zap.Logger = zap.NewNop()

// InitLogger builds CLILogger from a verbosity level: -1 for quiet
// (warn and above only), 0 for the default (info and above), and 1+ for
// verbose (debug and above). Output goes to stderr so stdout stays free for
// `ls`/`dl` record output.
func InitLogger(verbosity int) error {
	level := zapcore.InfoLevel
	switch {
	case verbosity < 0:
		level = zapcore.WarnLevel
	case verbosity > 0:
		level = zapcore.DebugLevel
	}

	cfg := zap.NewProductionConfig()
	cfg.Level = zap.NewAtomicLevelAt(level)
	cfg.OutputPaths = []string{"stderr"}
	cfg.ErrorOutputPaths = []string{"stderr"}
	cfg.EncoderConfig.TimeKey = "ts"
	cfg.EncoderConfig.EncodeTime = zapcore.ISO8601TimeEncoder

	if isTerminal(os.Stderr) {
		cfg.Encoding = "console"
		cfg.EncoderConfig.EncodeLevel = zapcore.CapitalColorLevelEncoder
	}

	logger, err := cfg.Build()
	if err != nil {
		return err
	}

	CLILogger = logger
	return nil
}

// Sync flushes any buffered log entries. Errors are deliberately ignored
// since stderr sync routinely fails on
// terminals and there is nothing actionable to do about it.
func Sync() {
	_ = CLILogger.Sync()
}

func isTerminal(f *os.File) bool {
	info, err := f.Stat()
	if err != nil {
		return false
	}
	return (info.Mode() & os.ModeCharDevice) != 0
}
