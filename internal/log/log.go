package log

import (
	"io"
	"os"
	"strings"

	hclog "github.com/hashicorp/go-hclog"
)

// L is the process-wide logger. The CLI replaces it once flags are parsed.
var L hclog.Logger

func init() {
	L = New(hclog.Info, "text", os.Stderr)
}

// New creates a logger writing to w.
//
// format is "text" or "json". Setting TRACE in the environment forces
// trace level regardless of level.
func New(level hclog.Level, format string, w io.Writer) hclog.Logger {
	if str := os.Getenv("TRACE"); str != "" {
		level = hclog.Trace
	}
	return hclog.New(&hclog.LoggerOptions{
		Name:       "spindle",
		Level:      level,
		Output:     w,
		JSONFormat: strings.EqualFold(format, "json"),
	})
}

// ParseLevel converts a level name to an hclog.Level.
// Returns hclog.Info for unrecognized values.
func ParseLevel(s string) hclog.Level {
	switch l := hclog.LevelFromString(s); l {
	case hclog.NoLevel, hclog.Off:
		return hclog.Info
	default:
		return l
	}
}
