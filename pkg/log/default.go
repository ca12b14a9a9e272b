package log

import (
	"context"
	"fmt"
	"io"
	"log/slog"
	"strings"
	"sync/atomic"
)

// defaultLogger formats printf-style and writes through a slog text handler.
// Level and handler can be swapped while other goroutines are logging.
type defaultLogger struct {
	level   *slog.LevelVar
	handler atomic.Pointer[slog.Logger]
}

func newDefaultLogger(w io.Writer, lv slog.Level) *defaultLogger {
	d := &defaultLogger{level: new(slog.LevelVar)}
	d.level.Set(lv)
	d.SetOutput(w)
	return d
}

func (d *defaultLogger) SetLevel(lv slog.Level) {
	d.level.Set(lv)
}

func (d *defaultLogger) SetOutput(w io.Writer) {
	d.handler.Store(slog.New(slog.NewTextHandler(w, &slog.HandlerOptions{Level: d.level})))
}

func (d *defaultLogger) log(ctx context.Context, lv slog.Level, format string, v ...any) {
	l := d.handler.Load()
	if !l.Enabled(ctx, lv) {
		return
	}
	msg := format
	if len(v) > 0 {
		msg = fmt.Sprintf(format, v...)
	}
	l.Log(ctx, lv, msg)
}

func (d *defaultLogger) Debug(format string, v ...any) {
	d.log(context.Background(), slog.LevelDebug, format, v...)
}

func (d *defaultLogger) Info(format string, v ...any) {
	d.log(context.Background(), slog.LevelInfo, format, v...)
}

func (d *defaultLogger) Warn(format string, v ...any) {
	d.log(context.Background(), slog.LevelWarn, format, v...)
}

func (d *defaultLogger) Error(format string, v ...any) {
	d.log(context.Background(), slog.LevelError, format, v...)
}

func (d *defaultLogger) CtxDebug(ctx context.Context, format string, v ...any) {
	d.log(ctx, slog.LevelDebug, format, v...)
}

func (d *defaultLogger) CtxInfo(ctx context.Context, format string, v ...any) {
	d.log(ctx, slog.LevelInfo, format, v...)
}

func (d *defaultLogger) CtxWarn(ctx context.Context, format string, v ...any) {
	d.log(ctx, slog.LevelWarn, format, v...)
}

func (d *defaultLogger) CtxError(ctx context.Context, format string, v ...any) {
	d.log(ctx, slog.LevelError, format, v...)
}

// ParseLevel maps a config string ("debug", "info", "warn", "error") to a slog level.
// Unknown values fall back to info.
func ParseLevel(s string) slog.Level {
	var lv slog.Level
	if err := lv.UnmarshalText([]byte(strings.TrimSpace(s))); err != nil {
		return slog.LevelInfo
	}
	return lv
}
