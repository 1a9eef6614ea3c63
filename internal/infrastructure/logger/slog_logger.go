package logger

import (
	"fmt"
	"io"
	"log/slog"
	"os"
	"strings"
	"time"

	"posprint/internal/domain/ports"
)

// Config настройки логгера.
type Config struct {
	Level  string    // debug | info | warn | error
	Format string    // text | json
	Output io.Writer // по умолчанию os.Stderr
}

// SlogLogger реализует интерфейс ports.Logger поверх log/slog.
type SlogLogger struct {
	logger *slog.Logger
}

// New создает логгер по настройкам.
func New(cfg Config) (ports.Logger, error) {
	var level slog.Level
	if cfg.Level != "" {
		if err := level.UnmarshalText([]byte(cfg.Level)); err != nil {
			return nil, fmt.Errorf("logger: неизвестный уровень %q", cfg.Level)
		}
	}

	out := cfg.Output
	if out == nil {
		out = os.Stderr
	}

	opts := &slog.HandlerOptions{
		Level: level,
		ReplaceAttr: func(_ []string, a slog.Attr) slog.Attr {
			if a.Key == slog.TimeKey && a.Value.Kind() == slog.KindTime {
				a.Value = slog.StringValue(a.Value.Time().UTC().Format(time.RFC3339Nano))
			}
			return a
		},
	}

	var h slog.Handler
	switch strings.ToLower(cfg.Format) {
	case "", "text":
		h = slog.NewTextHandler(out, opts)
	case "json":
		h = slog.NewJSONHandler(out, opts)
	default:
		return nil, fmt.Errorf("logger: неизвестный формат %q", cfg.Format)
	}
	return &SlogLogger{logger: slog.New(h)}, nil
}

// NewNop возвращает логгер, который ничего не пишет.
func NewNop() ports.Logger {
	return &SlogLogger{logger: slog.New(slog.NewTextHandler(io.Discard, nil))}
}

// Debug выводит отладочную информацию.
func (l *SlogLogger) Debug(msg string, args ...any) {
	l.logger.Debug(format(msg, args))
}

// Info выводит информационные сообщения.
func (l *SlogLogger) Info(msg string, args ...any) {
	l.logger.Info(format(msg, args))
}

// Warn выводит предупреждения.
func (l *SlogLogger) Warn(msg string, args ...any) {
	l.logger.Warn(format(msg, args))
}

// Error выводит ошибки.
func (l *SlogLogger) Error(msg string, args ...any) {
	l.logger.Error(format(msg, args))
}

// Fatal выводит критические ошибки и завершает программу.
func (l *SlogLogger) Fatal(msg string, args ...any) {
	l.logger.Error(format(msg, args), "fatal", true)
	os.Exit(1)
}

// With возвращает логгер с дополнительным атрибутом.
func (l *SlogLogger) With(key string, value any) ports.Logger {
	return &SlogLogger{logger: l.logger.With(key, value)}
}

func format(msg string, args []any) string {
	if len(args) == 0 {
		return msg
	}
	return fmt.Sprintf(msg, args...)
}
