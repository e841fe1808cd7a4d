// Package logging builds the node's zap logger and carries it through
// contexts.
package logging

import (
	"context"
	"os"

	"go.uber.org/zap"
	"go.uber.org/zap/zapcore"
	"gopkg.in/natefinch/lumberjack.v2"
)

type LoggerKey struct{}

func NewContext(ctx context.Context, logger *zap.Logger) context.Context {
	return context.WithValue(ctx, LoggerKey{}, logger)
}

// FromContext returns the logger stored in ctx, or a development logger
// writing to stdout.
func FromContext(ctx context.Context) *zap.Logger {
	if logger, ok := ctx.Value(LoggerKey{}).(*zap.Logger); ok {
		return logger
	}
	return New(zap.DebugLevel, false, FileConfig{})
}

// FileConfig enables a rotated log file next to stdout when Name is set.
type FileConfig struct {
	Name string
	// MaxFiles is the number of rotated files kept, 0 keeps all of them.
	MaxFiles int
	// MaxSize is the size in megabytes a file is rotated at.
	MaxSize int
}

func New(level zapcore.LevelEnabler, json bool, file FileConfig) *zap.Logger {
	var encoder zapcore.Encoder
	if json {
		encoder = zapcore.NewJSONEncoder(zap.NewProductionEncoderConfig())
	} else {
		encoder = zapcore.NewConsoleEncoder(zap.NewDevelopmentEncoderConfig())
	}

	consoleSyncer := zapcore.Lock(os.Stdout)
	cores := []zapcore.Core{zapcore.NewCore(encoder, consoleSyncer, level)}

	if file.Name != "" {
		fileLogger := &lumberjack.Logger{
			Filename:   file.Name,
			MaxSize:    file.MaxSize,
			MaxBackups: file.MaxFiles,
			Compress:   true,
		}
		cores = append(cores, zapcore.NewCore(encoder, zapcore.AddSync(fileLogger), zap.DebugLevel))
	}

	return zap.New(zapcore.NewTee(cores...))
}
