// Package logging routes log/slog records through a zap core: a console
// encoder on stdout and, optionally, a JSON file for later inspection.
// slog groups become nested JSON objects.
package logging

import (
	"fmt"
	"io"
	"log/slog"
	"os"
	"path/filepath"

	"go.uber.org/zap"
	"go.uber.org/zap/exp/zapslog"
	"go.uber.org/zap/zapcore"
)

// Options configures Init.
type Options struct {
	Level   string    // debug, info, warn or error; empty means info
	File    string    // optional JSON log file, written at debug level
	Console io.Writer // defaults to os.Stdout
}

// Init builds the zap-backed slog logger and installs it as slog's default.
// PRE: opts.Level is empty or a valid level name
// POST: slog.Default() writes through zap; the returned func flushes and closes the file
func Init(opts Options) (*slog.Logger, func(), error) {
	level := zapcore.InfoLevel
	if opts.Level != "" {
		l, err := zapcore.ParseLevel(opts.Level)
		if err != nil {
			return nil, nil, fmt.Errorf("invalid log level %q: %w", opts.Level, err)
		}
		level = l
	}
	console := opts.Console
	if console == nil {
		console = os.Stdout
	}

	consoleEncoderConfig := zap.NewDevelopmentEncoderConfig()
	consoleEncoderConfig.EncodeTime = zapcore.TimeEncoderOfLayout("15:04:05")
	consoleEncoderConfig.EncodeLevel = zapcore.CapitalLevelEncoder

	cores := []zapcore.Core{
		zapcore.NewCore(zapcore.NewConsoleEncoder(consoleEncoderConfig), zapcore.AddSync(console), level),
	}

	closeFile := func() {}
	if opts.File != "" {
		if err := os.MkdirAll(filepath.Dir(opts.File), 0o755); err != nil {
			return nil, nil, fmt.Errorf("failed to create log directory: %w", err)
		}
		f, err := os.OpenFile(opts.File, os.O_CREATE|os.O_WRONLY|os.O_APPEND, 0o644)
		if err != nil {
			return nil, nil, fmt.Errorf("failed to open log file: %w", err)
		}
		fileEncoderConfig := zap.NewProductionEncoderConfig()
		fileEncoderConfig.TimeKey = "timestamp"
		fileEncoderConfig.EncodeTime = zapcore.ISO8601TimeEncoder
		cores = append(cores, zapcore.NewCore(zapcore.NewJSONEncoder(fileEncoderConfig), zapcore.AddSync(f), zapcore.DebugLevel))
		closeFile = func() { f.Close() }
	}

	core := zapcore.NewTee(cores...)
	logger := slog.New(zapslog.NewHandler(core))
	slog.SetDefault(logger)
	return logger, func() {
		_ = core.Sync()
		closeFile()
	}, nil
}
