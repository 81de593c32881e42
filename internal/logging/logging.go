// Package logging provides the leveled, correlation-tagged logger every
// component receives by injection. There is no package-level singleton; the
// instance is constructed once in bootstrap and handed down, so tests can
// substitute one writing to a buffer.
package logging

import (
	"io"
	"time"

	"github.com/sirupsen/logrus"

	"github.com/manu030/geoconsole-credits/internal/errs"
)

// Fields is the structured context attached to a log line. Error values are
// sanitized before emission and never appear raw.
type Fields map[string]any

type Logger struct {
	l           *logrus.Logger
	base        logrus.Fields
	onSensitive func()
}

type Option func(*Logger)

// WithSensitiveHook registers a callback invoked whenever a sanitized error
// turned out to be sensitive, so metrics can count redactions without the
// logger depending on the metrics package.
func WithSensitiveHook(fn func()) Option {
	return func(lg *Logger) { lg.onSensitive = fn }
}

// New builds a logger writing to out. In development mode the output is
// human-readable text and debug lines are emitted; in production it is
// one-line JSON and debug is suppressed.
func New(out io.Writer, development bool, opts ...Option) *Logger {
	l := logrus.New()
	l.SetOutput(out)
	if development {
		l.SetLevel(logrus.DebugLevel)
		l.SetFormatter(&logrus.TextFormatter{
			FullTimestamp:   true,
			TimestampFormat: time.RFC3339,
		})
	} else {
		l.SetLevel(logrus.InfoLevel)
		l.SetFormatter(&logrus.JSONFormatter{
			TimestampFormat: time.RFC3339,
		})
	}
	lg := &Logger{l: l, base: logrus.Fields{}}
	for _, opt := range opts {
		opt(lg)
	}
	return lg
}

// Child returns a logger that merges fields under every subsequent call.
// Explicit per-call fields win over the preset ones.
func (lg *Logger) Child(fields Fields) *Logger {
	merged := make(logrus.Fields, len(lg.base)+len(fields))
	for k, v := range lg.base {
		merged[k] = v
	}
	for k, v := range fields {
		merged[k] = v
	}
	return &Logger{l: lg.l, base: merged, onSensitive: lg.onSensitive}
}

func (lg *Logger) Debug(msg string, fields Fields) { lg.emit(logrus.DebugLevel, msg, fields) }
func (lg *Logger) Info(msg string, fields Fields)  { lg.emit(logrus.InfoLevel, msg, fields) }
func (lg *Logger) Warn(msg string, fields Fields)  { lg.emit(logrus.WarnLevel, msg, fields) }
func (lg *Logger) Error(msg string, fields Fields) { lg.emit(logrus.ErrorLevel, msg, fields) }

func (lg *Logger) emit(level logrus.Level, msg string, fields Fields) {
	out := make(logrus.Fields, len(lg.base)+len(fields)+2)
	for k, v := range lg.base {
		out[k] = v
	}
	for k, v := range fields {
		out[k] = v
	}
	var errKeys []string
	for k, v := range out {
		if _, ok := v.(error); ok {
			errKeys = append(errKeys, k)
		}
	}
	for _, k := range errKeys {
		s := errs.Sanitize(out[k].(error))
		out[k] = s.Message
		out[k+"_kind"] = s.Kind.String()
		if s.Sensitive && lg.onSensitive != nil {
			lg.onSensitive()
		}
	}
	if _, ok := out["correlation_id"]; !ok {
		out["correlation_id"] = "no-correlation-id"
	}
	lg.l.WithFields(out).Log(level, msg)
}
