package utils

import (
	"io"
	"log"
	"os"
	"path/filepath"

	"gopkg.in/natefinch/lumberjack.v2"
)

const logFlags = log.LstdFlags | log.Lmicroseconds | log.LUTC

// LogFileOptions controls the rotating file sink behind component loggers
type LogFileOptions struct {
	Path       string
	MaxSizeMB  int
	MaxBackups int
	MaxAgeDays int
	Compress   bool
}

// NewLogSink returns stdout, teed into a rotating file when opts.Path is set.
// Build it once per process: every logger sharing a file must share the sink.
func NewLogSink(opts LogFileOptions) io.Writer {
	if opts.Path == "" {
		return os.Stdout
	}
	if err := os.MkdirAll(filepath.Dir(opts.Path), 0o755); err != nil {
		log.Printf("log sink %s: falling back to stdout: %v", opts.Path, err)
		return os.Stdout
	}
	return io.MultiWriter(os.Stdout, &lumberjack.Logger{
		Filename:   opts.Path,
		MaxSize:    opts.MaxSizeMB,
		MaxBackups: opts.MaxBackups,
		MaxAge:     opts.MaxAgeDays,
		Compress:   opts.Compress,
	})
}

// NewLogger returns a logger with its own sink
func NewLogger(prefix string, opts LogFileOptions) *log.Logger {
	return ComponentLogger(prefix, NewLogSink(opts))
}

// ComponentLogger returns a prefixed logger on a shared sink; log.Logger is goroutine-safe
func ComponentLogger(prefix string, sink io.Writer) *log.Logger {
	return log.New(sink, prefix+" ", logFlags)
}

// DiscardLogger is used by tests and by components constructed without a logger
func DiscardLogger() *log.Logger {
	return log.New(io.Discard, "", 0)
}
