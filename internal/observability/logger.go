package observability

import (
	"github.com/rs/zerolog"
	"github.com/rs/zerolog/log"
)

// Logger derives a child of the global logger tagged with component.
func Logger(component string) zerolog.Logger {
	return log.Logger.With().Str("component", component).Logger()
}

// NodeLogger tags the global logger with the node name and role for the
// lifetime of the process.
func NodeLogger(node, role string) zerolog.Logger {
	logger := log.Logger.With().Str("node", node).Str("role", role).Logger()
	log.Logger = logger
	return logger
}
