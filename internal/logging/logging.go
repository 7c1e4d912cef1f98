// Package logging constructs the structured loggers used across the
// wallet's subsystems (spec.md's ambient stack: identity, notestore,
// discovery, reconcile, orchestrator each get one). Every logger is
// zerolog, tagged with a "component" field so log aggregation can filter
// by subsystem; library code only ever logs at Debug/Info/Warn — Fatal is
// reserved for cmd/ entrypoints.
package logging

import (
	"os"

	"github.com/rs/zerolog"
)

// New builds a component-tagged logger writing structured JSON to stderr.
func New(component string) zerolog.Logger {
	return zerolog.New(os.Stderr).With().
		Timestamp().
		Str("component", component).
		Logger()
}
