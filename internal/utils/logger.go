package utils

import (
	"github.com/rs/zerolog"
	"gopkg.in/natefinch/lumberjack.v2"
)

var logger zerolog.Logger

// InitLogger configures the global logger to write JSON lines to a rotating
// file. An unknown level falls back to info.
func InitLogger(file string, maxSizeMB, maxBackups, maxAgeDays int, compress bool, level string) {
	writer := &lumberjack.Logger{
		Filename:   file,
		MaxSize:    maxSizeMB,
		MaxBackups: maxBackups,
		MaxAge:     maxAgeDays,
		Compress:   compress,
	}

	lvl, err := zerolog.ParseLevel(level)
	if err != nil || lvl == zerolog.NoLevel {
		lvl = zerolog.InfoLevel
	}

	logger = zerolog.New(writer).With().Timestamp().Logger().Level(lvl)
}

// SetLogLevel changes the level of the global logger at runtime.
func SetLogLevel(level string) {
	lvl, err := zerolog.ParseLevel(level)
	if err != nil || lvl == zerolog.NoLevel {
		lvl = zerolog.InfoLevel
	}
	logger = logger.Level(lvl)
}

// SetLoggerForTest replaces the global logger. Test helper.
func SetLoggerForTest(l zerolog.Logger) {
	logger = l
}

// Debug logs a debug message with alternating key/value fields.
func Debug(msg string, kv ...interface{}) {
	logEvent(logger.Debug(), msg, kv)
}

// Info logs an info message with alternating key/value fields.
func Info(msg string, kv ...interface{}) {
	logEvent(logger.Info(), msg, kv)
}

// Warn logs a warning with alternating key/value fields.
func Warn(msg string, kv ...interface{}) {
	logEvent(logger.Warn(), msg, kv)
}

// Error logs an error with alternating key/value fields.
func Error(msg string, kv ...interface{}) {
	logEvent(logger.Error(), msg, kv)
}

func logEvent(e *zerolog.Event, msg string, kv []interface{}) {
	for i := 0; i+1 < len(kv); i += 2 {
		key, ok := kv[i].(string)
		if !ok {
			continue
		}
		e = e.Interface(key, kv[i+1])
	}
	e.Msg(msg)
}
