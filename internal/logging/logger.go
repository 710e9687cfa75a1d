// Package logging is a thin key/value facade over zerolog shared by every
// package in the service.
package logging

import (
	"fmt"
	"io"
	"os"
	"strings"
	"sync"

	"github.com/rs/zerolog"
	"gopkg.in/natefinch/lumberjack.v2"
)

var (
	mu     sync.RWMutex
	logger = zerolog.New(os.Stdout).With().Timestamp().Logger()
)

// Options configures the process-wide logger.
type Options struct {
	Level string
	// File, when set, adds a size-rotated file sink next to stdout.
	File string
}

// Setup replaces the process-wide logger. It is called once from main.
func Setup(opts Options) {
	var w io.Writer = os.Stdout
	if f := strings.TrimSpace(opts.File); f != "" {
		w = zerolog.MultiLevelWriter(os.Stdout, &lumberjack.Logger{
			Filename:   f,
			MaxSize:    10, // megabytes
			MaxBackups: 3,
			MaxAge:     7, // days
		})
	}
	l := zerolog.New(w).With().Timestamp().Logger().Level(parseLevel(opts.Level))

	mu.Lock()
	logger = l
	mu.Unlock()
}

// SetLoggerForTest swaps the logger, typically for one writing to a buffer.
func SetLoggerForTest(l zerolog.Logger) {
	mu.Lock()
	logger = l
	mu.Unlock()
}

// SetLogLevel changes the minimum level of the current logger.
func SetLogLevel(level string) {
	mu.Lock()
	logger = logger.Level(parseLevel(level))
	mu.Unlock()
}

func Debug(msg string, kv ...any) { log(zerolog.DebugLevel, msg, kv) }
func Info(msg string, kv ...any)  { log(zerolog.InfoLevel, msg, kv) }
func Warn(msg string, kv ...any)  { log(zerolog.WarnLevel, msg, kv) }
func Error(msg string, kv ...any) { log(zerolog.ErrorLevel, msg, kv) }

func log(level zerolog.Level, msg string, kv []any) {
	mu.RLock()
	l := logger
	mu.RUnlock()

	ev := l.WithLevel(level)
	if ev == nil {
		return
	}
	for i := 0; i < len(kv); i += 2 {
		key := fmt.Sprint(kv[i])
		if i+1 >= len(kv) {
			ev = ev.Interface(key, nil)
			break
		}
		if err, ok := kv[i+1].(error); ok {
			ev = ev.AnErr(key, err)
			continue
		}
		ev = ev.Interface(key, kv[i+1])
	}
	ev.Msg(msg)
}

func parseLevel(level string) zerolog.Level {
	lvl, err := zerolog.ParseLevel(strings.ToLower(strings.TrimSpace(level)))
	if err != nil || level == "" {
		return zerolog.InfoLevel
	}
	return lvl
}
