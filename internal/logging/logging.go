// Package logging builds the service's zerolog logger.
package logging

import (
	"io"
	"os"
	"strings"
	"time"

	pkgerrors "github.com/pkg/errors"
	"github.com/rs/zerolog"
	"github.com/rs/zerolog/log"
	zpkgerrors "github.com/rs/zerolog/pkgerrors"
)

// New returns a logger tagged with the service name. Development output is
// human readable; everything else is JSON on stdout. Events logged with
// .Stack() carry a stack trace even for plain errors.
func New(service, level string, development bool) zerolog.Logger {
	zerolog.ErrorStackMarshaler = marshalStack

	var out io.Writer = os.Stdout
	if development {
		out = zerolog.ConsoleWriter{Out: os.Stderr, TimeFormat: time.RFC3339}
	}

	lvl, err := zerolog.ParseLevel(strings.ToLower(level))
	if err != nil || lvl == zerolog.NoLevel {
		lvl = zerolog.InfoLevel
	}

	return zerolog.New(out).Level(lvl).With().
		Str("service", service).
		Timestamp().
		Logger()
}

// SetGlobal installs l as the package-level logger and the default context logger.
func SetGlobal(l zerolog.Logger) {
	log.Logger = l
	zerolog.DefaultContextLogger = &l
}

func marshalStack(err error) interface{} {
	type stackTracer interface{ StackTrace() pkgerrors.StackTrace }
	if _, ok := err.(stackTracer); !ok {
		err = pkgerrors.WithStack(err)
	}
	return zpkgerrors.MarshalStack(err)
}
