package observability

import "github.com/sirupsen/logrus"

type Logger interface {
	Info(args ...interface{})
	Error(args ...interface{})
	Debug(args ...interface{})
	Warn(args ...interface{})
	WithField(key string, value interface{}) Logger
	WithError(err error) Logger
}

type logrusLogger struct {
	logger *logrus.Logger
	entry  *logrus.Entry
}

// NewLogger returns a JSON logger tagged with the service name, so log lines
// from the four deployables stay distinguishable in an aggregated stream.
func NewLogger(service string) Logger {
	log := logrus.New()
	log.SetFormatter(&logrus.JSONFormatter{})
	return &logrusLogger{logger: log, entry: log.WithField("service", service)}
}

func (l *logrusLogger) Info(args ...interface{}) {
	l.entry.Info(args...)
}

func (l *logrusLogger) Error(args ...interface{}) {
	l.entry.Error(args...)
}

func (l *logrusLogger) Debug(args ...interface{}) {
	l.entry.Debug(args...)
}

func (l *logrusLogger) Warn(args ...interface{}) {
	l.entry.Warn(args...)
}

func (l *logrusLogger) WithField(key string, value interface{}) Logger {
	return &logrusLogger{logger: l.logger, entry: l.entry.WithField(key, value)}
}

func (l *logrusLogger) WithError(err error) Logger {
	return &logrusLogger{logger: l.logger, entry: l.entry.WithError(err)}
}

// Nop discards everything; tests pass it where a Logger is required.
func Nop() Logger {
	log := logrus.New()
	log.SetLevel(logrus.PanicLevel)
	return &logrusLogger{logger: log, entry: logrus.NewEntry(log)}
}
