// Package logging sets up the process-wide structured logger. Every
// component logs through this logger instead of the standard library's
// log package, the way the distributed-storage reference in the retrieval
// pack threads a single zerolog.Logger through its services.
package logging

import (
	"os"

	"github.com/rs/zerolog"
)

// New builds the process-wide logger. In production mode it emits JSON;
// otherwise it uses zerolog's human-readable console writer.
func New(environment string) zerolog.Logger {
	zerolog.TimeFieldFormat = zerolog.TimeFormatUnix

	if environment == "production" {
		return zerolog.New(os.Stdout).With().Timestamp().Logger()
	}

	writer := zerolog.ConsoleWriter{Out: os.Stderr, TimeFormat: "15:04:05"}
	return zerolog.New(writer).With().Timestamp().Logger()
}
