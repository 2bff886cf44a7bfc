package infra

import (
	"io"
	"os"
	"strings"

	"github.com/phuslu/log"
)

// SetupLogger configures the global phuslu logger. format is "console" for
// colored human output or "json" for one JSON object per line.
func SetupLogger(level, format string, w io.Writer) {
	if w == nil {
		w = os.Stderr
	}
	lvl := log.ParseLevel(strings.ToLower(level))

	var writer log.Writer
	switch strings.ToLower(format) {
	case "json":
		writer = &log.IOWriter{Writer: w}
	default:
		writer = &log.ConsoleWriter{
			Writer:         w,
			ColorOutput:    w == os.Stderr || w == os.Stdout,
			EndWithMessage: true,
		}
	}

	log.DefaultLogger = log.Logger{
		Level:      lvl,
		Caller:     0,
		TimeFormat: "15:04:05",
		Writer:     writer,
	}
}
