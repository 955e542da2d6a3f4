// Package logging configures the process-wide logrus logger.
package logging

import (
	"io"

	log "github.com/sirupsen/logrus"
)

// Setup directs log output to w at the given level. format is "json" for
// JSON lines and anything else for logrus text. An unknown level falls back
// to info and is reported as an error after the logger is configured.
func Setup(level, format string, w io.Writer) error {
	log.SetOutput(w)

	if format == "json" {
		log.SetFormatter(&log.JSONFormatter{})
	} else {
		log.SetFormatter(&log.TextFormatter{FullTimestamp: true})
	}

	parsed, err := log.ParseLevel(level)
	if err != nil {
		log.SetLevel(log.InfoLevel)
		return err
	}
	log.SetLevel(parsed)
	return nil
}
