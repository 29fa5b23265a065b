package util

import (
	"os"
	"strings"
	"time"

	"github.com/rs/zerolog"
)

var (
	Logger zerolog.Logger
)

func parseLevel(inlevel string) zerolog.Level {
	switch strings.ToLower(inlevel) {
	case "debug":
		return zerolog.DebugLevel
	case "trace":
		return zerolog.TraceLevel
	case "warn":
		return zerolog.WarnLevel
	case "error":
		return zerolog.ErrorLevel
	default:
		return zerolog.InfoLevel
	}
}

// LogInit builds the global logger. The threshold is the zerolog global level so
// SetLogLevel reaches every logger derived from Logger.
func LogInit(inlevel string) {
	level := parseLevel(inlevel)
	zerolog.SetGlobalLevel(level)
	Logger = zerolog.New(
		zerolog.ConsoleWriter{Out: os.Stderr, TimeFormat: time.RFC3339},
	).With().Timestamp().Caller().Logger()

	Logger.Info().Msgf("logging initialized at level %v", level)
}

// SetLogLevel changes the level of every logger at runtime. It is safe to call
// while other goroutines log.
func SetLogLevel(inlevel string) {
	level := parseLevel(inlevel)
	if zerolog.GlobalLevel() == level {
		return
	}
	zerolog.SetGlobalLevel(level)
	Logger.Info().Msgf("log level changed to %v", level)
}
