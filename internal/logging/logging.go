// Package logging configures the process-wide logrus logger for the
// CLI. All packages log through the standard logrus singleton; only the
// command entrypoint calls Setup.
package logging

import (
	"io"
	"os"

	log "github.com/sirupsen/logrus"
	"gopkg.in/natefinch/lumberjack.v2"
)

// Setup applies the global logging configuration. Verbosity wins over
// quiet when both are set. A non-empty logFile mirrors output into a
// size-rotated file next to stderr.
func Setup(verbose, quiet bool, logFile string) {
	log.SetFormatter(&log.TextFormatter{
		FullTimestamp: true,
	})

	switch {
	case verbose:
		log.SetLevel(log.DebugLevel)
	case quiet:
		log.SetLevel(log.ErrorLevel)
	default:
		log.SetLevel(log.InfoLevel)
	}

	if logFile == "" {
		log.SetOutput(os.Stderr)
		return
	}
	rotated := &lumberjack.Logger{
		Filename:   logFile,
		MaxSize:    10, // megabytes
		MaxBackups: 3,
		MaxAge:     28, // days
	}
	log.SetOutput(io.MultiWriter(os.Stderr, rotated))
}
