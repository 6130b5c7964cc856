package bootstrap

import (
	"io"
	"os"
	"strings"

	"github.com/labstack/gommon/log"
	"github.com/mattn/go-isatty"
)

// NewLogger builds the application logger. Color is enabled only when out
// is a terminal.
func NewLogger(level string, out io.Writer) *log.Logger {
	logger := log.New("tikz-playground")
	logger.SetOutput(out)
	logger.SetHeader("${time_rfc3339} ${level} ${prefix}")
	logger.SetLevel(parseLevel(level))

	if f, ok := out.(*os.File); ok && (isatty.IsTerminal(f.Fd()) || isatty.IsCygwinTerminal(f.Fd())) {
		logger.EnableColor()
	} else {
		logger.DisableColor()
	}
	return logger
}

func parseLevel(level string) log.Lvl {
	switch strings.ToLower(strings.TrimSpace(level)) {
	case "debug":
		return log.DEBUG
	case "warn", "warning":
		return log.WARN
	case "error":
		return log.ERROR
	case "off":
		return log.OFF
	default:
		return log.INFO
	}
}
