package logger

import (
	"io"
	"os"
	"strings"

	"github.com/sirupsen/logrus"
)

type Field struct {
	Key   string
	Value interface{}
}

func WithField(key string, value interface{}) Field {
	return Field{Key: key, Value: value}
}

type Logger interface {
	SetLogLevel(level string)

	Info(msg string, fields ...Field)
	Warn(msg string, fields ...Field)
	Error(msg string, fields ...Field)
	Debug(msg string, fields ...Field)

	With(fields ...Field) Logger
}

type logrusLogger struct {
	entry *logrus.Entry
}

var _ Logger = (*logrusLogger)(nil)

// New returns a logger writing to w. format is "json" or "text".
func New(w io.Writer, format, level string) Logger {
	l := logrus.New()
	l.SetOutput(w)
	if strings.EqualFold(format, "json") {
		l.SetFormatter(&logrus.JSONFormatter{})
	} else {
		l.SetFormatter(&logrus.TextFormatter{FullTimestamp: true})
	}
	out := &logrusLogger{entry: logrus.NewEntry(l)}
	out.SetLogLevel(level)
	return out
}

// NewStderr is New writing to os.Stderr, so command output on stdout stays clean.
func NewStderr(format, level string) Logger {
	return New(os.Stderr, format, level)
}

func NewNop() Logger {
	return New(io.Discard, "text", "error")
}

func (l *logrusLogger) SetLogLevel(level string) {
	switch strings.ToLower(level) {
	case "debug":
		l.entry.Logger.SetLevel(logrus.DebugLevel)
	case "warn":
		l.entry.Logger.SetLevel(logrus.WarnLevel)
	case "error":
		l.entry.Logger.SetLevel(logrus.ErrorLevel)
	default:
		l.entry.Logger.SetLevel(logrus.InfoLevel)
	}
}

func (l *logrusLogger) Info(msg string, fields ...Field) {
	l.entry.WithFields(fmtFields(fields)).Info(msg)
}

func (l *logrusLogger) Warn(msg string, fields ...Field) {
	l.entry.WithFields(fmtFields(fields)).Warn(msg)
}

func (l *logrusLogger) Error(msg string, fields ...Field) {
	l.entry.WithFields(fmtFields(fields)).Error(msg)
}

func (l *logrusLogger) Debug(msg string, fields ...Field) {
	l.entry.WithFields(fmtFields(fields)).Debug(msg)
}

func (l *logrusLogger) With(fields ...Field) Logger {
	return &logrusLogger{entry: l.entry.WithFields(fmtFields(fields))}
}

func fmtFields(fields []Field) logrus.Fields {
	out := make(logrus.Fields, len(fields))
	for _, f := range fields {
		if err, ok := f.Value.(error); ok {
			out[f.Key] = err.Error()
			continue
		}
		out[f.Key] = f.Value
	}
	return out
}
