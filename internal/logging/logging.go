// Package logging configures the go-logging backends shared by every package
// logger in the service.
package logging

import (
	"os"
	"strings"

	"github.com/natefinch/lumberjack"
	"github.com/op/go-logging"
)

var stdoutLogFormat = logging.MustStringFormatter(
	`%{color:reset}%{color}%{time:2006-01-02 15:04:05.000} [%{level}] [%{module}/%{shortfunc}] %{message}`,
)

var fileLogFormat = logging.MustStringFormatter(
	`%{time:2006-01-02 15:04:05.000} [%{level}] [%{module}/%{shortfunc}] %{message}`,
)

// Options controls Setup.
type Options struct {
	// Level is one of debug, info, notice, warning, error, critical.
	Level string
	// File, when set, receives a copy of every record with rotation.
	File string
}

// Setup installs the stdout backend and, if configured, a rotating file
// backend. It returns the rotating writer so callers can close it on exit.
func Setup(opts Options) *lumberjack.Logger {
	backendStdout := logging.NewLogBackend(os.Stdout, "", 0)
	backendStdoutFormatter := logging.NewBackendFormatter(backendStdout, stdoutLogFormat)

	var w *lumberjack.Logger
	if opts.File != "" {
		w = &lumberjack.Logger{
			Filename:   opts.File,
			MaxSize:    10, // Megabytes
			MaxBackups: 3,
			MaxAge:     30, // Days
		}
		backendFile := logging.NewLogBackend(w, "", 0)
		backendFileFormatter := logging.NewBackendFormatter(backendFile, fileLogFormat)
		logging.SetBackend(backendFileFormatter, backendStdoutFormatter)
	} else {
		logging.SetBackend(backendStdoutFormatter)
	}

	logging.SetLevel(ParseLevel(opts.Level), "")
	return w
}

// ParseLevel maps a config string to a go-logging level, defaulting to INFO.
func ParseLevel(s string) logging.Level {
	switch strings.ToLower(strings.TrimSpace(s)) {
	case "debug":
		return logging.DEBUG
	case "notice":
		return logging.NOTICE
	case "warning", "warn":
		return logging.WARNING
	case "error":
		return logging.ERROR
	case "critical":
		return logging.CRITICAL
	default:
		return logging.INFO
	}
}
