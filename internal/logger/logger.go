// Package logger builds the zerolog logger shared by the tally service and
// the command line tool.
package logger

import (
	"fmt"
	"io"
	"os"
	"strings"
	"time"

	"github.com/rs/zerolog"
)

// Environment variables read by NewLogger.
const (
	EnvLogLevel      = "GOTALLY_LOG_LEVEL"
	EnvLogFormatJSON = "GOTALLY_LOG_FORMAT_JSON"
)

// NewLogger instantiates the zerolog configuration on stderr. Stdout is left
// to the command output.
func NewLogger() *zerolog.Logger {
	return NewLoggerTo(os.Stderr)
}

// NewLoggerTo is NewLogger with an explicit destination.
func NewLoggerTo(w io.Writer) *zerolog.Logger {
	zerolog.SetGlobalLevel(parseLevel(os.Getenv(EnvLogLevel)))

	var logger zerolog.Logger
	if strings.TrimSpace(os.Getenv(EnvLogFormatJSON)) == "" {
		output := zerolog.ConsoleWriter{Out: w, NoColor: true, TimeFormat: time.RFC3339}
		output.FormatLevel = func(i any) string {
			return strings.ToUpper(fmt.Sprintf("| %s |", i))
		}
		output.FormatMessage = func(i any) string {
			return fmt.Sprintf("%s", i)
		}
		logger = zerolog.New(output).With().Timestamp().Logger()
	} else {
		logger = zerolog.New(w).With().Timestamp().Logger()
	}
	return &logger
}

func parseLevel(raw string) zerolog.Level {
	switch strings.ToLower(strings.TrimSpace(raw)) {
	case "panic":
		return zerolog.PanicLevel
	case "fatal":
		return zerolog.FatalLevel
	case "error":
		return zerolog.ErrorLevel
	case "warn":
		return zerolog.WarnLevel
	case "debug":
		return zerolog.DebugLevel
	case "trace":
		return zerolog.TraceLevel
	case "disabled":
		return zerolog.Disabled
	default:
		return zerolog.InfoLevel
	}
}
