package main

import (
	"io"
	"os"
	"strings"
	"time"

	"github.com/rs/zerolog"

	"dashboard-service/indicator"
)

type LogLevel int

const (
	LogLevelNone  LogLevel = 0
	LogLevelError LogLevel = 1
	LogLevelWarn  LogLevel = 2
	LogLevelInfo  LogLevel = 3
	LogLevelDebug LogLevel = 4
)

var zerologLevels = map[LogLevel]zerolog.Level{
	LogLevelNone:  zerolog.Disabled,
	LogLevelError: zerolog.ErrorLevel,
	LogLevelWarn:  zerolog.WarnLevel,
	LogLevelInfo:  zerolog.InfoLevel,
	LogLevelDebug: zerolog.DebugLevel,
}

// LeveledLogger wraps a zerolog logger with log level filtering
type LeveledLogger struct {
	out      io.Writer
	logger   zerolog.Logger
	logLevel LogLevel
}

// NewLeveledLogger creates a logger for component. APP_ENV=dev selects the
// console writer, anything else logs JSON.
func NewLeveledLogger(component string, level LogLevel) *LeveledLogger {
	var out io.Writer = os.Stdout
	if strings.ToLower(os.Getenv("APP_ENV")) == "dev" {
		out = zerolog.ConsoleWriter{Out: os.Stdout, TimeFormat: time.RFC3339}
	}
	return newLeveledLogger(out, component, level)
}

func newLeveledLogger(out io.Writer, component string, level LogLevel) *LeveledLogger {
	z := zerolog.New(out).With().Timestamp().Str("component", component).Logger()
	return &LeveledLogger{
		out:      out,
		logger:   z.Level(zerologLevels[level]),
		logLevel: level,
	}
}

// With returns a logger for a sub component sharing output and level.
func (l *LeveledLogger) With(component string) *LeveledLogger {
	return newLeveledLogger(l.out, component, l.logLevel)
}

func (l *LeveledLogger) Debugf(format string, v ...interface{}) {
	if l.logLevel >= LogLevelDebug {
		l.logger.Debug().Msgf(format, v...)
	}
}

func (l *LeveledLogger) Infof(format string, v ...interface{}) {
	if l.logLevel >= LogLevelInfo {
		l.logger.Info().Msgf(format, v...)
	}
}

func (l *LeveledLogger) Warnf(format string, v ...interface{}) {
	if l.logLevel >= LogLevelWarn {
		l.logger.Warn().Msgf(format, v...)
	}
}

func (l *LeveledLogger) Errorf(format string, v ...interface{}) {
	if l.logLevel >= LogLevelError {
		l.logger.Error().Msgf(format, v...)
	}
}

var _ indicator.Logger = (*LeveledLogger)(nil)
