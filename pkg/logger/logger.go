package logger

import (
	"os"

	"github.com/sirupsen/logrus"

	"docstack/internal/models"
)

// Logger wraps logrus to provide structured logging in the LogEntry shape.
type Logger struct {
	entry *logrus.Entry
}

// Init configures the global logrus settings. JSON output matters: the log
// collector parses these fields downstream.
func Init(level logrus.Level) {
	logrus.SetFormatter(&logrus.JSONFormatter{
		FieldMap: logrus.FieldMap{
			logrus.FieldKeyTime:  "timestamp",
			logrus.FieldKeyLevel: "level",
			logrus.FieldKeyMsg:   "message",
		},
	})
	logrus.SetOutput(os.Stdout)
	logrus.SetLevel(level)
}

// ParseLevel maps a config string to a logrus level, defaulting to info.
func ParseLevel(s string) logrus.Level {
	lvl, err := logrus.ParseLevel(s)
	if err != nil {
		return logrus.InfoLevel
	}
	return lvl
}

// New creates a Logger pre-seeded with the identifying fields.
func New(serviceName, traceID, userID string) *Logger {
	return &Logger{
		entry: logrus.WithFields(logrus.Fields{
			"service_name": serviceName,
			"trace_id":     traceID,
			"user_id":      userID,
		}),
	}
}

// WithRequest attaches HTTP request info to the entry.
func (l *Logger) WithRequest(req models.RequestInfo) *Logger {
	return &Logger{entry: l.entry.WithField("request_info", req)}
}

// WithError attaches structured error info to the entry.
func (l *Logger) WithError(err models.ErrorInfo) *Logger {
	return &Logger{entry: l.entry.WithField("error", err)}
}

// WithPayload attaches arbitrary business data to the entry.
func (l *Logger) WithPayload(payload map[string]interface{}) *Logger {
	return &Logger{entry: l.entry.WithField("payload", payload)}
}

func (l *Logger) Info(message string)  { l.entry.Info(message) }
func (l *Logger) Warn(message string)  { l.entry.Warn(message) }
func (l *Logger) Error(message string) { l.entry.Error(message) }
func (l *Logger) Debug(message string) { l.entry.Debug(message) }
func (l *Logger) Fatal(message string) { l.entry.Fatal(message) }
