package logger

import (
	"fmt"
	"sync"

	"github.com/rs/zerolog"
)

// ILogger is the logging dependency handed to components that are unit tested
// with a MockLogger.
type ILogger interface {
	LogInfo(format string, args ...interface{})
	LogWarn(format string, args ...interface{})
	LogError(format string, args ...interface{})
	LogDebug(format string, args ...interface{})
}

// StandardLogger writes through the global zerolog logger with a component field
type StandardLogger struct {
	component string
}

// NewStandardLogger creates a logger tagged with component
func NewStandardLogger(component string) ILogger {
	return &StandardLogger{component: component}
}

func (l *StandardLogger) emit(level zerolog.Level, format string, args []interface{}) {
	zl := Logger()
	if l.component != "" {
		zl = Component(l.component)
	}
	zl.WithLevel(level).Msgf(format, args...)
}

func (l *StandardLogger) LogInfo(format string, args ...interface{}) {
	l.emit(zerolog.InfoLevel, format, args)
}

func (l *StandardLogger) LogWarn(format string, args ...interface{}) {
	l.emit(zerolog.WarnLevel, format, args)
}

func (l *StandardLogger) LogError(format string, args ...interface{}) {
	l.emit(zerolog.ErrorLevel, format, args)
}

func (l *StandardLogger) LogDebug(format string, args ...interface{}) {
	l.emit(zerolog.DebugLevel, format, args)
}

// MockLogger records formatted messages by level. Safe for concurrent use:
// the router and the scheduler log from their own goroutines.
type MockLogger struct {
	mu       sync.Mutex
	messages map[zerolog.Level][]string
}

// NewMockLogger creates an empty recording logger
func NewMockLogger() *MockLogger {
	return &MockLogger{messages: make(map[zerolog.Level][]string)}
}

func (l *MockLogger) record(level zerolog.Level, format string, args []interface{}) {
	l.mu.Lock()
	defer l.mu.Unlock()
	l.messages[level] = append(l.messages[level], fmt.Sprintf(format, args...))
}

func (l *MockLogger) LogInfo(format string, args ...interface{}) {
	l.record(zerolog.InfoLevel, format, args)
}

func (l *MockLogger) LogWarn(format string, args ...interface{}) {
	l.record(zerolog.WarnLevel, format, args)
}

func (l *MockLogger) LogError(format string, args ...interface{}) {
	l.record(zerolog.ErrorLevel, format, args)
}

func (l *MockLogger) LogDebug(format string, args ...interface{}) {
	l.record(zerolog.DebugLevel, format, args)
}

// Messages returns a copy of what was recorded at level
func (l *MockLogger) Messages(level zerolog.Level) []string {
	l.mu.Lock()
	defer l.mu.Unlock()
	return append([]string(nil), l.messages[level]...)
}

// Reset forgets everything recorded so far
func (l *MockLogger) Reset() {
	l.mu.Lock()
	defer l.mu.Unlock()
	l.messages = make(map[zerolog.Level][]string)
}

func (l *MockLogger) count(level zerolog.Level) int {
	l.mu.Lock()
	defer l.mu.Unlock()
	return len(l.messages[level])
}

func (l *MockLogger) ErrorCount() int       { return l.count(zerolog.ErrorLevel) }
func (l *MockLogger) WarnCount() int        { return l.count(zerolog.WarnLevel) }
func (l *MockLogger) HasErrorMessage() bool { return l.ErrorCount() > 0 }
func (l *MockLogger) HasWarnMessage() bool  { return l.WarnCount() > 0 }

// Errors returns the recorded error messages
func (l *MockLogger) Errors() []string { return l.Messages(zerolog.ErrorLevel) }

var (
	_ ILogger = (*StandardLogger)(nil)
	_ ILogger = (*MockLogger)(nil)
)
