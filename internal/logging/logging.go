// Package logging configures the shared logrus logger and hands out component loggers.
package logging

import (
	"fmt"
	"io"
	"strings"

	"github.com/sirupsen/logrus"
)

var base = logrus.New()

// NewLogger returns a logger tagged with the component name
func NewLogger(component string) *logrus.Entry {
	return base.WithField("component", component)
}

// Configure sets the level and output format of every component logger. format is "text" or "json".
func Configure(level, format string, out io.Writer) error {
	if level != "" {
		lvl, err := logrus.ParseLevel(level)
		if err != nil {
			return fmt.Errorf("invalid log level %q: %w", level, err)
		}
		base.SetLevel(lvl)
	}

	switch strings.ToLower(format) {
	case "", "text":
		base.SetFormatter(&logrus.TextFormatter{FullTimestamp: true})
	case "json":
		base.SetFormatter(&logrus.JSONFormatter{})
	default:
		return fmt.Errorf("invalid log format %q", format)
	}

	if out != nil {
		base.SetOutput(out)
	}
	return nil
}
