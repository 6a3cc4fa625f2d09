// Package logger provides a process-wide structured logger built on zerolog.
package logger

import (
	"os"
	"sync"
	"time"

	"github.com/rs/zerolog"
)

var (
	mu  sync.RWMutex
	log zerolog.Logger
)

func init() {
	zerolog.TimeFieldFormat = time.RFC3339
	Configure(os.Getenv("ENVIRONMENT"))
}

// Configure rebuilds the package logger for the given environment.
// "production" (or "prod") emits line-delimited JSON; anything else
// (including empty) emits a human-readable console writer for local dev.
func Configure(env string) {
	mu.Lock()
	defer mu.Unlock()

	level := zerolog.InfoLevel
	if lvl, err := zerolog.ParseLevel(os.Getenv("LOG_LEVEL")); err == nil {
		level = lvl
	}

	switch env {
	case "production", "prod":
		log = zerolog.New(os.Stdout).Level(level).With().Timestamp().Logger()
	default:
		writer := zerolog.ConsoleWriter{Out: os.Stdout, TimeFormat: "15:04:05"}
		log = zerolog.New(writer).Level(level).With().Timestamp().Logger()
	}
}

func current() zerolog.Logger {
	mu.RLock()
	defer mu.RUnlock()
	return log
}

func Debugf(format string, args ...interface{}) { l := current(); l.Debug().Msgf(format, args...) }
func Infof(format string, args ...interface{})  { l := current(); l.Info().Msgf(format, args...) }
func Warnf(format string, args ...interface{})  { l := current(); l.Warn().Msgf(format, args...) }
func Errorf(format string, args ...interface{}) { l := current(); l.Error().Msgf(format, args...) }

func Debug(msg string) { l := current(); l.Debug().Msg(msg) }
func Info(msg string)  { l := current(); l.Info().Msg(msg) }
func Warn(msg string)  { l := current(); l.Warn().Msg(msg) }
func Error(msg string) { l := current(); l.Error().Msg(msg) }

// With returns a child logger with the given key/value pair attached to
// every subsequent entry, for call sites that want structured fields
// instead of an interpolated message (e.g. per-session or per-deployment
// logging).
func With(key string, value string) zerolog.Logger {
	return current().With().Str(key, value).Logger()
}
