package telemetry

import (
	"context"
	"io"
	"sync"

	"github.com/sirupsen/logrus"
	"go.opentelemetry.io/otel/trace"
)

var (
	logger     *logrus.Logger
	baseFields logrus.Fields
	loggerMu   sync.RWMutex
)

// InitLogger configures the process logger. Calling it again replaces
// the previous configuration.
func InitLogger(cfg *Config) {
	l := logrus.New()

	level, err := logrus.ParseLevel(cfg.LogLevel)
	if err != nil {
		level = logrus.InfoLevel
	}
	l.SetLevel(level)

	if cfg.LogFormat == "text" {
		l.SetFormatter(&logrus.TextFormatter{FullTimestamp: true})
	} else {
		l.SetFormatter(&logrus.JSONFormatter{
			TimestampFormat: "2006-01-02T15:04:05.000Z07:00",
			FieldMap: logrus.FieldMap{
				logrus.FieldKeyTime:  "@timestamp",
				logrus.FieldKeyLevel: "level",
				logrus.FieldKeyMsg:   "message",
			},
		})
	}

	loggerMu.Lock()
	defer loggerMu.Unlock()
	logger = l
	baseFields = logrus.Fields{
		"service.name":    cfg.ServiceName,
		"service.version": cfg.ServiceVersion,
		"environment":     cfg.Environment,
	}
}

// SetOutput redirects the logger, mainly for tests.
func SetOutput(w io.Writer) {
	L().SetOutput(w)
}

// L returns the process logger, or logrus' standard logger before InitLogger.
func L() *logrus.Logger {
	loggerMu.RLock()
	defer loggerMu.RUnlock()
	if logger == nil {
		return logrus.StandardLogger()
	}
	return logger
}

// Entry returns a log entry carrying the service fields.
func Entry() *logrus.Entry {
	loggerMu.RLock()
	fields := baseFields
	loggerMu.RUnlock()
	return L().WithFields(fields)
}

// WithContext adds trace information to the logger
func WithContext(ctx context.Context) *logrus.Entry {
	entry := Entry().WithContext(ctx)

	span := trace.SpanFromContext(ctx)
	if span.SpanContext().IsValid() {
		entry = entry.WithFields(logrus.Fields{
			"trace.id": span.SpanContext().TraceID().String(),
			"span.id":  span.SpanContext().SpanID().String(),
		})
	}

	return entry
}
