package logger

import (
	"fmt"
	"io"
	"os"
	"strings"
	"sync"
	"time"

	"github.com/rs/zerolog"
)

// LogLevel constants
const (
	LogLevelError = "error"
	LogLevelWarn  = "warn"
	LogLevelInfo  = "info"
	LogLevelDebug = "debug"
	LogLevelTrace = "trace"
)

// Output formats
const (
	FormatText = "text"
	FormatJSON = "json"
)

// LoggingConfig represents the logging configuration
type LoggingConfig struct {
	Level  string `yaml:"level" mapstructure:"level"`
	Format string `yaml:"format" mapstructure:"format"` // text (console) or json
	File   string `yaml:"file" mapstructure:"file"`
}

var (
	mu     sync.RWMutex
	global = newZerolog(os.Stdout, FormatText).Level(zerolog.InfoLevel)
)

func newZerolog(w io.Writer, format string) zerolog.Logger {
	if strings.ToLower(format) != FormatJSON {
		w = zerolog.ConsoleWriter{Out: w, TimeFormat: time.RFC3339, NoColor: true}
	}
	return zerolog.New(w).With().Timestamp().Logger()
}

// ParseLevel maps a configured level name to a zerolog level.
// Unknown names fall back to info.
func ParseLevel(level string) zerolog.Level {
	switch strings.ToLower(level) {
	case LogLevelError:
		return zerolog.ErrorLevel
	case LogLevelWarn:
		return zerolog.WarnLevel
	case LogLevelDebug:
		return zerolog.DebugLevel
	case LogLevelTrace:
		return zerolog.TraceLevel
	default:
		return zerolog.InfoLevel
	}
}

// Setup installs the process-wide logger described by config.
// The returned function closes the log file, if one was opened.
func Setup(config LoggingConfig) (func() error, error) {
	var out io.Writer = os.Stdout
	closer := func() error { return nil }

	if config.File != "" && config.File != "-" {
		// #nosec G304 - path comes from the operator's configuration
		f, err := os.OpenFile(config.File, os.O_CREATE|os.O_WRONLY|os.O_APPEND, 0600)
		if err != nil {
			return closer, fmt.Errorf("failed to open log file %s: %w", config.File, err)
		}
		out = f
		closer = f.Close
	}

	SetOutput(out, config.Format, config.Level)
	return closer, nil
}

// SetOutput replaces the global logger destination, format and level.
func SetOutput(w io.Writer, format, level string) {
	l := newZerolog(w, format).Level(ParseLevel(level))
	mu.Lock()
	global = l
	mu.Unlock()
}

// Logger returns the underlying zerolog logger for callers that want structured fields.
func Logger() zerolog.Logger {
	mu.RLock()
	defer mu.RUnlock()
	return global
}

// Component returns a child logger tagged with the component name.
func Component(name string) zerolog.Logger {
	return Logger().With().Str("component", name).Logger()
}

// LogStartup logs startup messages that should always be visible regardless of log level
func LogStartup(format string, args ...interface{}) {
	l := Logger()
	l.Log().Str("level", "startup").Msgf(format, args...)
}

// Helper functions for global logging
func LogError(format string, args ...interface{}) {
	l := Logger()
	l.Error().Msgf(format, args...)
}

func LogWarn(format string, args ...interface{}) {
	l := Logger()
	l.Warn().Msgf(format, args...)
}

func LogInfo(format string, args ...interface{}) {
	l := Logger()
	l.Info().Msgf(format, args...)
}

func LogDebug(format string, args ...interface{}) {
	l := Logger()
	l.Debug().Msgf(format, args...)
}

func LogTrace(format string, args ...interface{}) {
	l := Logger()
	l.Trace().Msgf(format, args...)
}

// IsDebugEnabled checks if debug logging is enabled
func IsDebugEnabled() bool {
	l := Logger()
	return l.GetLevel() <= zerolog.DebugLevel
}

// IsTraceEnabled checks if trace logging is enabled
func IsTraceEnabled() bool {
	l := Logger()
	return l.GetLevel() <= zerolog.TraceLevel
}

// LogFrame logs a raw Modbus frame at debug level with its topic and direction.
func LogFrame(direction, topic string, frame []byte) {
	l := Logger()
	l.Debug().
		Str("direction", direction).
		Str("topic", topic).
		Hex("frame", frame).
		Int("len", len(frame)).
		Msg("modbus frame")
}
