// Package corelog centralizes the per-subsystem btclog.Logger wiring
// used across the chain core, mirroring lnd's own log.go: every package
// declares a package-level `log` variable and a `UseLogger` setter, and
// registers both here under a short subsystem tag. A caller of this
// package can then redirect every subsystem to a concrete backend (e.g.
// a rotating file) at startup with a single SetBackend call.
package corelog

import (
	"github.com/btcsuite/btclog"
)

// Disabled is the no-op logger every subsystem starts out with, matching
// lnd's convention of defaulting to silence until a backend is wired up
// by the embedding application.
var Disabled = btclog.Disabled

var subsystems = make(map[string]func(btclog.Logger))

// RegisterSubsystem associates tag (conventionally an all-caps short
// code, e.g. "AGGR", "RDM", "AQ") with a package's UseLogger setter, so
// that SetBackend and SetSubsystemLevel can reach it later.
func RegisterSubsystem(tag string, useLogger func(btclog.Logger)) {
	subsystems[tag] = useLogger
}

// SetBackend redirects every registered subsystem to write through
// backend, each tagged with its own subsystem code and levelled at
// level.
func SetBackend(backend btclog.Backend, level btclog.Level) {
	for tag, use := range subsystems {
		logger := backend.Logger(tag)
		logger.SetLevel(level)
		use(logger)
	}
}

// Subsystems returns the tags of every registered subsystem, primarily
// for operator-facing `debuglevel` style introspection.
func Subsystems() []string {
	tags := make([]string, 0, len(subsystems))
	for tag := range subsystems {
		tags = append(tags, tag)
	}
	return tags
}
