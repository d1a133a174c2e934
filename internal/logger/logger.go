package logger

import (
	"io"
	"os"
	"time"

	"github.com/charmbracelet/log"
	"github.com/muesli/termenv"
)

// Options configures the process-wide logger.
type Options struct {
	Debug   bool      // engine frames, unwinding and instruction traces
	NoColor bool      // plain text output
	Output  io.Writer // os.Stderr when nil
}

// Init installs the default logger used by every package and returns it
func Init(opts Options) *log.Logger {
	w := opts.Output
	if w == nil {
		w = os.Stderr
	}

	l := log.NewWithOptions(w, log.Options{
		ReportCaller:    opts.Debug,
		ReportTimestamp: false,
		TimeFormat:      time.RFC3339,
		Prefix:          "BYTERUN",
		Level:           log.WarnLevel,
	})
	if opts.Debug {
		l.SetLevel(log.DebugLevel)
	}

	l.SetColorProfile(termenv.ANSI256)
	if opts.NoColor {
		l.SetColorProfile(termenv.Ascii)
	}

	log.SetDefault(l)
	return l
}
