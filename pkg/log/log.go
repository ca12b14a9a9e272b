package log

import (
	"context"
	"io"
	"log/slog"
	"os"
)

type Logger interface {
	Debug(format string, v ...any)
	Info(format string, v ...any)
	Warn(format string, v ...any)
	Error(format string, v ...any)
}

type CtxLogger interface {
	CtxDebug(ctx context.Context, format string, v ...any)
	CtxInfo(ctx context.Context, format string, v ...any)
	CtxWarn(ctx context.Context, format string, v ...any)
	CtxError(ctx context.Context, format string, v ...any)
}

type Control interface {
	SetLevel(slog.Level)
	SetOutput(io.Writer)
}

type ILogger interface {
	Logger
	CtxLogger
	Control
}

var logger ILogger = newDefaultLogger(os.Stderr, slog.LevelInfo)

func SetLevel(lv slog.Level) {
	logger.SetLevel(lv)
}

func SetOutput(w io.Writer) {
	logger.SetOutput(w)
}

func DefaultLogger() ILogger {
	return logger
}

func SetLogger(v ILogger) {
	logger = v
}

func Info(format string, v ...any) {
	logger.Info(format, v...)
}

func Error(format string, v ...any) {
	logger.Error(format, v...)
}

func Debug(format string, v ...any) {
	logger.Debug(format, v...)
}

func Warn(format string, v ...any) {
	logger.Warn(format, v...)
}

func CtxInfo(ctx context.Context, format string, v ...any) {
	logger.CtxInfo(ctx, format, v...)
}

func CtxDebug(ctx context.Context, format string, v ...any) {
	logger.CtxDebug(ctx, format, v...)
}

func CtxWarn(ctx context.Context, format string, v ...any) {
	logger.CtxWarn(ctx, format, v...)
}

func CtxError(ctx context.Context, format string, v ...any) {
	logger.CtxError(ctx, format, v...)
}
