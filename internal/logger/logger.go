// Package logger provides leveled structured logging.
package logger

import (
	"io"
	"os"
	"strings"
	"time"

	"github.com/rs/zerolog"
)

// Level represents a logging level.
type Level int

const (
	DebugLevel Level = iota
	InfoLevel
	WarnLevel
	ErrorLevel
)

func (l Level) zerolog() zerolog.Level {
	switch l {
	case DebugLevel:
		return zerolog.DebugLevel
	case WarnLevel:
		return zerolog.WarnLevel
	case ErrorLevel:
		return zerolog.ErrorLevel
	default:
		return zerolog.InfoLevel
	}
}

// ParseLevel maps a config string to a Level, defaulting to info.
func ParseLevel(level string) Level {
	switch strings.ToLower(level) {
	case "debug":
		return DebugLevel
	case "warn":
		return WarnLevel
	case "error":
		return ErrorLevel
	default:
		return InfoLevel
	}
}

// Logger is a leveled logger with optional fields.
type Logger struct {
	zl zerolog.Logger
}

var defaultLogger *Logger

// Init initializes the default logger with the specified level and format ("json" or "text").
func Init(level string, format string) {
	InitWriter(os.Stderr, level, format)
}

// InitWriter is Init with an explicit destination.
func InitWriter(w io.Writer, level string, format string) {
	zerolog.TimeFieldFormat = time.RFC3339Nano
	if strings.ToLower(format) == "text" {
		w = zerolog.ConsoleWriter{Out: w, TimeFormat: "15:04:05.000"}
	}
	zl := zerolog.New(w).
		Level(ParseLevel(level).zerolog()).
		With().
		Timestamp().
		CallerWithSkipFrameCount(3).
		Logger()
	defaultLogger = &Logger{zl: zl}
}

// With returns a logger carrying an extra field. Before Init it returns a no-op logger.
func With(key string, value any) *Logger {
	if defaultLogger == nil {
		return &Logger{zl: zerolog.Nop()}
	}
	return defaultLogger.With(key, value)
}

func (l *Logger) With(key string, value any) *Logger {
	return &Logger{zl: l.zl.With().Interface(key, value).Logger()}
}

func (l *Logger) Debug(format string, args ...interface{}) { l.zl.Debug().Msgf(format, args...) }
func (l *Logger) Info(format string, args ...interface{})  { l.zl.Info().Msgf(format, args...) }
func (l *Logger) Warn(format string, args ...interface{})  { l.zl.Warn().Msgf(format, args...) }
func (l *Logger) Error(format string, args ...interface{}) { l.zl.Error().Msgf(format, args...) }

func Debug(format string, args ...interface{}) {
	if defaultLogger != nil {
		defaultLogger.zl.Debug().Msgf(format, args...)
	}
}

func Info(format string, args ...interface{}) {
	if defaultLogger != nil {
		defaultLogger.zl.Info().Msgf(format, args...)
	}
}

func Warn(format string, args ...interface{}) {
	if defaultLogger != nil {
		defaultLogger.zl.Warn().Msgf(format, args...)
	}
}

func Error(format string, args ...interface{}) {
	if defaultLogger != nil {
		defaultLogger.zl.Error().Msgf(format, args...)
	}
}
