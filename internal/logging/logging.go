// Package logging builds the zap logger used across site2md.
package logging

import (
	"fmt"
	"io"
	"os"
	"strings"

	"go.uber.org/zap"
	"go.uber.org/zap/zapcore"
	"gopkg.in/natefinch/lumberjack.v2"

	"github.com/amosWeiskopf/site2md/internal/config"
)

type nopCloser struct{}

func (nopCloser) Close() error { return nil }

// EncoderConfig is the production encoder with capital levels and ISO8601 time
func EncoderConfig() zapcore.EncoderConfig {
	encoderConfig := zap.NewProductionEncoderConfig()
	encoderConfig.EncodeLevel = zapcore.CapitalLevelEncoder
	encoderConfig.EncodeTime = zapcore.ISO8601TimeEncoder
	return encoderConfig
}

// ParseLevel maps a config level name onto a zap level
func ParseLevel(level string) (zapcore.Level, error) {
	var l zapcore.Level
	if err := l.UnmarshalText([]byte(strings.ToLower(strings.TrimSpace(level)))); err != nil {
		return zapcore.InfoLevel, fmt.Errorf("invalid log level %q: %w", level, err)
	}
	return l, nil
}

// New builds a logger from cfg. File outputs rotate through lumberjack, which
// does not expose Sync, so the returned Closer must be closed before exit to
// flush the file.
func New(cfg config.LoggingConfig) (*zap.Logger, io.Closer, error) {
	level, err := ParseLevel(cfg.Level)
	if err != nil {
		return nil, nil, err
	}

	var encoder zapcore.Encoder
	switch strings.ToLower(cfg.Format) {
	case "", "console":
		encoder = zapcore.NewConsoleEncoder(EncoderConfig())
	case "json":
		encoder = zapcore.NewJSONEncoder(EncoderConfig())
	default:
		return nil, nil, fmt.Errorf("invalid log format %q", cfg.Format)
	}

	var (
		writer zapcore.WriteSyncer
		closer io.Closer = nopCloser{}
	)
	switch cfg.OutputPath {
	case "", "stderr":
		writer = zapcore.Lock(zapcore.AddSync(os.Stderr))
	case "stdout":
		writer = zapcore.Lock(zapcore.AddSync(os.Stdout))
	default:
		rotator := &lumberjack.Logger{
			Filename:  cfg.OutputPath,
			MaxSize:   200,
			LocalTime: true,
			Compress:  true,
		}
		writer = zapcore.AddSync(rotator)
		closer = rotator
	}

	core := zapcore.NewCore(encoder, writer, level)
	logger := zap.New(core,
		zap.AddCaller(),
		zap.AddStacktrace(zapcore.DPanicLevel),
	)
	return logger, closer, nil
}
