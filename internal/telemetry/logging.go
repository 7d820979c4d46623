package telemetry

import (
	"log/slog"
	"os"
	"strings"
)

// ParseLevel переводит значение LOG_LEVEL в slog.Level.
// Регистр не важен; пустое или неизвестное значение даёт Info.
func ParseLevel(s string) slog.Level {
	switch strings.ToUpper(s) {
	case "DEBUG":
		return slog.LevelDebug
	case "WARN":
		return slog.LevelWarn
	case "ERROR":
		return slog.LevelError
	default:
		return slog.LevelInfo
	}
}

// SetupLogger инициализирует глобальный логгер процесса.
//
// Каждая запись несёт атрибут service: сервер, агенты и CLI пишут
// в общий поток логов, и без него записи неразличимы по источнику.
// LOG_LEVEL задаёт уровень (DEBUG включает источник вызова),
// LOG_FORMAT=text переключает JSON на человекочитаемый вывод.
func SetupLogger(service string) *slog.Logger {
	level := ParseLevel(os.Getenv("LOG_LEVEL"))

	opts := &slog.HandlerOptions{
		Level:     level,
		AddSource: level == slog.LevelDebug,
	}

	var handler slog.Handler = slog.NewJSONHandler(os.Stdout, opts)
	if os.Getenv("LOG_FORMAT") == "text" {
		handler = slog.NewTextHandler(os.Stdout, opts)
	}

	logger := slog.New(handler).With("service", service)
	slog.SetDefault(logger)

	return logger
}
