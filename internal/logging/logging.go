package logging

import (
	"fmt"
	"io"
	"os"
	"strings"

	"go.uber.org/zap"
	"go.uber.org/zap/zapcore"
	"gopkg.in/natefinch/lumberjack.v2"

	"github.com/goliatone/go-churnform/internal/config"
)

// Option customises the logger.
type Option func(*options)

type options struct {
	writer io.Writer
	fields []zap.Field
}

// WithWriter sends output to w instead of stderr or the configured file.
func WithWriter(w io.Writer) Option {
	return func(o *options) {
		o.writer = w
	}
}

// WithFields attaches fields to every entry.
func WithFields(fields ...zap.Field) Option {
	return func(o *options) {
		o.fields = append(o.fields, fields...)
	}
}

// New builds a zap logger from cfg. When cfg.File is set output goes to a
// lumberjack rotating file. The returned close function flushes the logger
// and closes the file.
func New(cfg config.LogConfig, opts ...Option) (*zap.Logger, func() error, error) {
	var o options
	for _, opt := range opts {
		if opt != nil {
			opt(&o)
		}
	}

	level := zap.NewAtomicLevel()
	if text := strings.TrimSpace(cfg.Level); text != "" {
		parsed, err := zap.ParseAtomicLevel(text)
		if err != nil {
			return nil, nil, fmt.Errorf("logging: level %q: %w", cfg.Level, err)
		}
		level = parsed
	}

	encoderCfg := zap.NewProductionEncoderConfig()
	encoderCfg.TimeKey = "ts"
	encoderCfg.EncodeTime = zapcore.ISO8601TimeEncoder
	var encoder zapcore.Encoder
	switch cfg.Format {
	case "", "json":
		encoder = zapcore.NewJSONEncoder(encoderCfg)
	case "console":
		encoder = zapcore.NewConsoleEncoder(encoderCfg)
	default:
		return nil, nil, fmt.Errorf("logging: unknown format %q", cfg.Format)
	}

	var (
		sink    zapcore.WriteSyncer
		closers []io.Closer
	)
	switch {
	case o.writer != nil:
		sink = zapcore.AddSync(o.writer)
	case strings.TrimSpace(cfg.File) != "":
		rotator := &lumberjack.Logger{
			Filename:   cfg.File,
			MaxSize:    cfg.MaxSizeMB,
			MaxBackups: cfg.MaxBackups,
			MaxAge:     cfg.MaxAgeDays,
			Compress:   cfg.Compress,
		}
		sink = zapcore.AddSync(rotator)
		closers = append(closers, rotator)
	default:
		sink = zapcore.Lock(os.Stderr)
	}

	logger := zap.New(zapcore.NewCore(encoder, sink, level), zap.AddCaller()).With(o.fields...)
	closeFn := func() error {
		_ = logger.Sync()
		for _, c := range closers {
			if err := c.Close(); err != nil {
				return err
			}
		}
		return nil
	}
	return logger, closeFn, nil
}

// Nop returns a logger that discards everything.
func Nop() *zap.SugaredLogger {
	return zap.NewNop().Sugar()
}
