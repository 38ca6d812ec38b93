// Package logger is the console logger of the go-amqp command line tool.
//
// Library packages log through github.com/go-i2p/logger, which is switched on
// with DEBUG_I2P. The CLI reports progress and outcomes here instead, at the
// level chosen with --log-level or logging.level.
package logger

import (
	"io"
	"os"
	"strings"
	"sync"

	"github.com/samber/oops"
	"github.com/sirupsen/logrus"
)

var (
	log  *Logger
	once sync.Once
)

// Fields is an alias so callers need not import logrus.
type Fields = logrus.Fields

type Logger struct {
	*logrus.Logger
}

// GetLogger returns the process wide CLI logger, creating it on first use.
// It writes to stderr at info level until SetLevel says otherwise.
func GetLogger() *Logger {
	once.Do(func() {
		l := logrus.New()
		l.SetOutput(os.Stderr)
		l.SetLevel(logrus.InfoLevel)
		l.SetFormatter(&logrus.TextFormatter{DisableTimestamp: true})
		log = &Logger{Logger: l}
	})
	return log
}

// SetLevel parses name ("debug", "info", "warn", "error" or "off") and applies
// it. An empty name keeps the current level.
func SetLevel(name string) error {
	l := GetLogger()
	switch strings.ToLower(strings.TrimSpace(name)) {
	case "":
		return nil
	case "off", "none":
		l.SetOutput(io.Discard)
		return nil
	}
	level, err := logrus.ParseLevel(name)
	if err != nil {
		return oops.Wrapf(err, "invalid log level %q", name)
	}
	l.SetLevel(level)
	return nil
}

// SetOutput redirects the CLI logger, mostly for tests.
func SetOutput(w io.Writer) {
	GetLogger().Logger.SetOutput(w)
}
