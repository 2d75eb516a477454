// Package ui provides terminal styling, logging setup and table rendering for chunkstore.
package ui

import (
	"os"

	"github.com/charmbracelet/log"
)

// LogLevelEnv overrides the starting log level, e.g. CHUNKSTORE_LOG_LEVEL=warn.
const LogLevelEnv = "CHUNKSTORE_LOG_LEVEL"

// baseLevel is the level restored when debug output is switched off.
var baseLevel = log.InfoLevel

// InitLogger sends the package logger to stderr, keeping stdout free for command output and
// the MCP stream.
func InitLogger() {
	log.SetOutput(os.Stderr)
	log.SetReportCaller(false)
	log.SetReportTimestamp(false)

	baseLevel = log.InfoLevel
	if v := os.Getenv(LogLevelEnv); v != "" {
		if lvl, err := log.ParseLevel(v); err == nil {
			baseLevel = lvl
		} else {
			log.Warn("Ignoring invalid log level", "env", LogLevelEnv, "value", v)
		}
	}
	log.SetLevel(baseLevel)
}

// SetDebug switches debug output on, with timestamps, or back to the base level.
func SetDebug(enabled bool) {
	log.SetReportTimestamp(enabled)
	if enabled {
		log.SetLevel(log.DebugLevel)
		return
	}
	log.SetLevel(baseLevel)
}
