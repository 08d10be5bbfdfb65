package entmigrate

import (
	"fmt"

	"github.com/sirupsen/logrus"
)

type defaultLogger struct {
	logger *logrus.Logger
}

func newDefaultLogger() *defaultLogger {
	l := logrus.New()
	l.SetFormatter(&logrus.TextFormatter{
		DisableColors:   true,
		FullTimestamp:   true,
		TimestampFormat: "2006-01-02 15:04:05",
	})
	return &defaultLogger{logger: l}
}

func (l *defaultLogger) Debug(msg string, args ...any) {
	l.logger.WithFields(toFields(args...)).Debug(msg)
}

func (l *defaultLogger) Info(msg string, args ...any) {
	l.logger.WithFields(toFields(args...)).Info(msg)
}

func (l *defaultLogger) Warn(msg string, args ...any) {
	l.logger.WithFields(toFields(args...)).Warn(msg)
}

func (l *defaultLogger) Error(msg string, args ...any) {
	l.logger.WithFields(toFields(args...)).Error(msg)
}

// toFields folds key/value pairs into logrus fields. A trailing key without
// a value is kept with an empty placeholder.
func toFields(args ...any) logrus.Fields {
	fields := logrus.Fields{}
	for i := 0; i < len(args); i += 2 {
		key := fmt.Sprintf("%v", args[i])
		if i+1 < len(args) {
			fields[key] = args[i+1]
		} else {
			fields[key] = ""
		}
	}
	return fields
}
