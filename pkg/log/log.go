package log

import (
	"io"
	"os"
	"strings"
	"time"

	"github.com/rs/zerolog"
)

// base is the process root logger. Until Init runs it writes to stdout at
// the default level so failures during early startup are never lost.
var base = zerolog.New(os.Stdout).With().Timestamp().Logger()

// Config holds logging configuration
type Config struct {
	// Level is a zerolog level name (debug, info, warn, error)
	Level string

	// JSONOutput selects machine-readable output over the console writer
	JSONOutput bool

	// Output defaults to stdout
	Output io.Writer
}

// Init builds the process root logger. Unknown level names fall back to
// info rather than failing agent startup over a typo.
func Init(cfg Config) {
	level, err := zerolog.ParseLevel(strings.ToLower(cfg.Level))
	if err != nil || level == zerolog.NoLevel {
		level = zerolog.InfoLevel
	}

	out := cfg.Output
	if out == nil {
		out = os.Stdout
	}
	if !cfg.JSONOutput {
		out = zerolog.ConsoleWriter{Out: out, TimeFormat: time.RFC3339}
	}

	base = zerolog.New(out).Level(level).With().Timestamp().Logger()
}

// WithComponent returns a child logger tagged with the subsystem name
func WithComponent(name string) zerolog.Logger {
	return base.With().Str("component", name).Logger()
}

// ForNode returns the agent's root logger carrying the node identity
func ForNode(nodeUUID string) zerolog.Logger {
	return base.With().Str("node_uuid", nodeUUID).Logger()
}

// ForPlan returns a component logger carrying the shortened plan ID. Every
// log line of one plan execution shares this prefix, so a grep for the
// prefix reconstructs the run.
func ForPlan(component, planID string) zerolog.Logger {
	return base.With().
		Str("component", component).
		Str("plan_id", ShortPlanID(planID)).
		Logger()
}

// ForPair extends a plan logger with the volumes of one work pair
func ForPair(logger zerolog.Logger, source, dest string) zerolog.Logger {
	return logger.With().Str("source", source).Str("dest", dest).Logger()
}

// ShortPlanID truncates a 128-hex plan ID to a log-friendly prefix. The
// full ID is recoverable from the status output or the history store;
// twelve characters are plenty to tell plans apart in a log stream.
func ShortPlanID(planID string) string {
	const width = 12
	if len(planID) <= width {
		return planID
	}
	return planID[:width]
}
