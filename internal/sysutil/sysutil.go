// Package sysutil holds small process-level helpers shared by cmd/server
// and the config loader: global logger setup and environment value parsing.
package sysutil

import (
	"io"
	"os"
	"strings"
	"time"

	"github.com/rs/zerolog"
	"github.com/rs/zerolog/log"
)

// ParseLevel maps a level name to a zerolog.Level. Matching ignores case and
// surrounding space, "warning" is accepted for warn, and blank or unknown
// names resolve to info. "trace" and "disabled" are honoured.
func ParseLevel(lvl string) zerolog.Level {
	s := strings.ToLower(strings.TrimSpace(lvl))
	if s == "warning" {
		s = "warn"
	}
	l, err := zerolog.ParseLevel(s)
	if err != nil || l == zerolog.NoLevel {
		return zerolog.InfoLevel
	}
	return l
}

// SetLogLevel sets the global zerolog level from a name, see ParseLevel.
func SetLogLevel(lvl string) {
	zerolog.SetGlobalLevel(ParseLevel(lvl))
}

// ConfigureLogging applies the process-wide logging settings: the global
// level, RFC3339Nano timestamps and, when pretty is set, a console writer on
// out (stderr when nil). It returns the base logger tagged with service.
func ConfigureLogging(level string, pretty bool, service string, out io.Writer) zerolog.Logger {
	SetLogLevel(level)
	zerolog.TimeFieldFormat = time.RFC3339Nano
	if out == nil {
		out = os.Stderr
	}
	if pretty {
		log.Logger = log.Output(zerolog.ConsoleWriter{Out: out, TimeFormat: time.RFC3339})
	} else {
		log.Logger = zerolog.New(out).With().Timestamp().Logger()
	}
	return log.With().Str("service", service).Logger()
}

// IsTruthy reports whether an environment value means "on": 1, true, yes,
// y or on, in any case.
func IsTruthy(v string) bool {
	switch strings.ToLower(strings.TrimSpace(v)) {
	case "1", "true", "yes", "y", "on":
		return true
	}
	return false
}

// FirstNonEmpty returns the first value that is not blank, unmodified, or ""
// when every value is blank.
func FirstNonEmpty(vals ...string) string {
	for _, v := range vals {
		if strings.TrimSpace(v) != "" {
			return v
		}
	}
	return ""
}
