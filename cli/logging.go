package cli

import (
	"os"

	"github.com/phuslu/log"

	"github.com/richinex/querygate/config"
)

// ConfigureLogging sets the process-wide logger. Logs go to stderr so that
// stdout stays clean for answers and the MCP stdio transport.
func ConfigureLogging(cfg config.LogConfig, verbose bool) {
	level := log.ParseLevel(cfg.Level)
	if verbose {
		level = log.DebugLevel
	}

	var writer log.Writer = &log.ConsoleWriter{Writer: os.Stderr, ColorOutput: true}
	if cfg.Format == "json" {
		writer = &log.IOWriter{Writer: os.Stderr}
	}

	log.DefaultLogger = log.Logger{
		Level:  level,
		Writer: writer,
	}
}
