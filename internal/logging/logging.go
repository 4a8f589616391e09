// Package logging wraps zerolog with component-scoped sub-loggers. Each
// component receives its own *Logger from a single owning Garden
// aggregate; there is no process-wide logger singleton.
package logging

import (
	"io"
	"os"
	"time"

	"github.com/rs/zerolog"
)

// Options configures the root logger created for a Garden aggregate.
type Options struct {
	Level         string
	HumanReadable bool
	Writer        io.Writer
}

// Logger is a thin handle around a zerolog.Logger scoped to one component.
type Logger struct {
	z zerolog.Logger
}

// New builds the root Logger for a process. Pass the result to each
// component constructor via With, never as a package-level variable.
func New(opts Options) *Logger {
	level, err := zerolog.ParseLevel(opts.Level)
	if err != nil {
		level = zerolog.InfoLevel
	}

	writer := opts.Writer
	if writer == nil {
		writer = os.Stderr
	}
	if opts.HumanReadable {
		writer = zerolog.ConsoleWriter{Out: writer, TimeFormat: time.RFC3339}
	}

	z := zerolog.New(writer).Level(level).With().Timestamp().Logger()
	return &Logger{z: z}
}

// With returns a derived Logger tagged with the given component name.
func (l *Logger) With(component string) *Logger {
	if l == nil {
		return New(Options{Level: "info"}).With(component)
	}
	return &Logger{z: l.z.With().Str("component", component).Logger()}
}

func (l *Logger) Debug(msg string, fields ...interface{}) { l.event(l.z.Debug(), msg, fields) }
func (l *Logger) Info(msg string, fields ...interface{})  { l.event(l.z.Info(), msg, fields) }
func (l *Logger) Warn(msg string, fields ...interface{})  { l.event(l.z.Warn(), msg, fields) }

func (l *Logger) Error(err error, msg string, fields ...interface{}) {
	ev := l.z.Error()
	if err != nil {
		ev = ev.Err(err)
	}
	l.event(ev, msg, fields)
}

// event applies key/value pairs (alternating string key, any value) to an
// in-flight zerolog event and emits it.
func (l *Logger) event(ev *zerolog.Event, msg string, fields []interface{}) {
	if l == nil {
		return
	}
	for i := 0; i+1 < len(fields); i += 2 {
		key, ok := fields[i].(string)
		if !ok {
			continue
		}
		ev = ev.Interface(key, fields[i+1])
	}
	ev.Msg(msg)
}
