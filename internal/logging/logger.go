// Package logging provides component-scoped logrus loggers.
package logging

import (
	"io"
	"os"
	"strings"
	"sync"

	"github.com/sirupsen/logrus"
)

var (
	base      = logrus.New()
	loggers   = make(map[string]*logrus.Entry)
	loggersMu sync.Mutex
)

func init() {
	base.SetOutput(os.Stderr)
	base.SetFormatter(&logrus.TextFormatter{FullTimestamp: true})
	level := logrus.InfoLevel
	if env := os.Getenv("TRIPASSIST_LOG_LEVEL"); env != "" {
		if parsed, err := logrus.ParseLevel(env); err == nil {
			level = parsed
		}
	}
	base.SetLevel(level)
}

// NewLogger returns the logger for a component. Loggers are cached per component
// and share the process-wide output, level and formatter.
func NewLogger(component string) *logrus.Entry {
	loggersMu.Lock()
	defer loggersMu.Unlock()

	if logger, exists := loggers[component]; exists {
		return logger
	}
	logger := base.WithField("component", component)
	loggers[component] = logger
	return logger
}

// Configure applies a level ("debug", "info", ...) and a format ("text" or "json").
// An empty level keeps the current one.
func Configure(level, format string) error {
	if level != "" {
		parsed, err := logrus.ParseLevel(level)
		if err != nil {
			return err
		}
		base.SetLevel(parsed)
	}
	switch strings.ToLower(format) {
	case "json":
		base.SetFormatter(&logrus.JSONFormatter{})
	case "", "text":
		base.SetFormatter(&logrus.TextFormatter{FullTimestamp: true})
	default:
		base.Warnf("Unknown log format %q, keeping text", format)
	}
	return nil
}

// SetOutput redirects every component logger.
func SetOutput(w io.Writer) {
	base.SetOutput(w)
}
