// Package rlog wires the process-wide zerolog logger the way
// gosuda-portal's cmd/relay-server/main.go does: a console writer for
// local/dev runs, a parsed level from configuration, field-based call
// sites everywhere else in the program.
package rlog

import (
	"os"
	"time"

	"github.com/rs/zerolog"
	"github.com/rs/zerolog/log"
)

// Init configures the global zerolog logger at the given level name
// (any name zerolog.ParseLevel accepts, such as "debug", "info",
// "warn", "error"; a name it rejects falls back to "info"). It must be
// called once, early in main.
func Init(levelName string) {
	log.Logger = log.Output(zerolog.ConsoleWriter{Out: os.Stdout, TimeFormat: time.RFC3339})

	level, err := zerolog.ParseLevel(levelName)
	if err != nil {
		level = zerolog.InfoLevel
	}
	zerolog.SetGlobalLevel(level)
}
