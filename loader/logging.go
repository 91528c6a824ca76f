package loader

import (
	"io"

	"github.com/sirupsen/logrus"
)

// newDefaultLogger builds a logrus.Logger honoring cfg.LogLevel. Each
// cache/component binds its own fields once at construction time via
// *logrus.Entry, carried on every subsequent call rather than passed
// around loose.
func newDefaultLogger(cfg Config) *logrus.Logger {
	logger := logrus.New()
	lvl, err := logrus.ParseLevel(cfg.LogLevel)
	if err != nil {
		lvl = logrus.InfoLevel
	}
	logger.SetLevel(lvl)
	return logger
}

// discardLogger is used by tests: a real *logrus.Entry that writes
// nowhere. New does not use it; a nil logger there gets newDefaultLogger.
func discardLogger() *logrus.Entry {
	logger := logrus.New()
	logger.SetOutput(io.Discard)
	return logrus.NewEntry(logger)
}
