// Package logging builds the zap logger shared by the charles commands.
//
// Console output is human readable. When a log file is configured every
// entry is also written there as JSON, rotated by lumberjack.
package logging

import (
	"io"
	"os"

	"go.uber.org/zap"
	"go.uber.org/zap/zapcore"
	"gopkg.in/natefinch/lumberjack.v2"
)

// Options configures New
type Options struct {
	// Level is a zap level name ("debug", "info", ...). Unknown names mean info.
	Level string
	// Format is "console" or "json" for the console sink
	Format string
	// File enables the rotated JSON sink when not empty
	File       string
	MaxSizeMB  int
	MaxBackups int
	MaxAgeDays int
	Compress   bool
	// Debug adds caller information
	Debug bool
	Name  string
}

// New builds a logger writing to stderr
func New(opts Options) *zap.Logger {
	return NewWithWriter(opts, zapcore.Lock(os.Stderr))
}

// NewWithWriter builds a logger whose console sink is w
func NewWithWriter(opts Options, w zapcore.WriteSyncer) *zap.Logger {
	level := zap.NewAtomicLevel()
	if err := level.UnmarshalText([]byte(opts.Level)); err != nil || opts.Level == "" {
		level.SetLevel(zap.InfoLevel)
	}
	if opts.Debug {
		level.SetLevel(zap.DebugLevel)
	}

	cores := []zapcore.Core{zapcore.NewCore(encoder(opts.Format), w, level)}
	if opts.File != "" {
		cores = append(cores, zapcore.NewCore(encoder("json"), zapcore.AddSync(FileSink(opts)), level))
	}

	zopts := []zap.Option{zap.AddStacktrace(zap.ErrorLevel)}
	if opts.Debug {
		zopts = append(zopts, zap.AddCaller())
	}
	logger := zap.New(zapcore.NewTee(cores...), zopts...)
	if opts.Name != "" {
		logger = logger.Named(opts.Name)
	}
	return logger
}

// FileSink returns the rotating writer for opts.File
func FileSink(opts Options) io.Writer {
	return &lumberjack.Logger{
		Filename:   opts.File,
		MaxSize:    opts.MaxSizeMB,
		MaxBackups: opts.MaxBackups,
		MaxAge:     opts.MaxAgeDays,
		Compress:   opts.Compress,
	}
}

func encoder(format string) zapcore.Encoder {
	cfg := zap.NewProductionEncoderConfig()
	cfg.EncodeTime = zapcore.TimeEncoderOfLayout("2006-01-02T15:04:05.000Z07:00")
	if format == "json" {
		cfg.EncodeLevel = zapcore.CapitalLevelEncoder
		return zapcore.NewJSONEncoder(cfg)
	}
	cfg.EncodeLevel = zapcore.CapitalColorLevelEncoder
	return zapcore.NewConsoleEncoder(cfg)
}
