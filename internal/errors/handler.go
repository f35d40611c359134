package errors

import (
	"errors"

	"heating-mqtt-bridge/internal/logger"
)

// ErrorRecorder counts handled errors by kind
type ErrorRecorder interface {
	RecordError(kind string)
}

// ErrorHandler provides centralized error handling
type ErrorHandler struct {
	log      logger.ILogger
	recorder ErrorRecorder
}

// NewErrorHandler creates a new error handler. recorder may be nil.
func NewErrorHandler(log logger.ILogger, recorder ErrorRecorder) *ErrorHandler {
	if log == nil {
		log = logger.NewStandardLogger("errors")
	}
	return &ErrorHandler{
		log:      log,
		recorder: recorder,
	}
}

// Handle logs an error at its severity and records its kind
func (h *ErrorHandler) Handle(err error) {
	if err == nil {
		return
	}

	if h.recorder != nil {
		h.recorder.RecordError(Kind(err))
	}

	var (
		transportErr   *TransportError
		frameErr       *FrameError
		frameTypeErr   *FrameTypeError
		persistenceErr *PersistenceError
		configErr      *ConfigError
		bridgeErr      *BridgeError
	)
	switch {
	case errors.As(err, &frameErr):
		h.logAt(frameErr.Severity, "Frame rejected: %s", err.Error())
	case errors.As(err, &frameTypeErr):
		h.logAt(frameTypeErr.Severity, "Frame ignored: %s", err.Error())
	case errors.As(err, &transportErr):
		h.logAt(transportErr.Severity, "MQTT Error: %s", err.Error())
	case errors.As(err, &persistenceErr):
		h.logAt(persistenceErr.Severity, "Persistence Error: %s", err.Error())
	case errors.As(err, &configErr):
		h.log.LogError("🔴 CRITICAL Configuration Error: %s", err.Error())
	case errors.As(err, &bridgeErr):
		h.logAt(bridgeErr.Severity, "Error: %s", err.Error())
	default:
		h.log.LogError("❌ Untyped Error: %v", err)
	}
}

func (h *ErrorHandler) logAt(severity ErrorSeverity, format string, args ...interface{}) {
	switch severity {
	case SeverityCritical:
		h.log.LogError("🔴 CRITICAL "+format, args...)
	case SeverityError:
		h.log.LogError("❌ "+format, args...)
	case SeverityWarning:
		h.log.LogWarn("⚠️ "+format, args...)
	default:
		h.log.LogInfo("ℹ️ "+format, args...)
	}
}

type severityCarrier interface {
	GetSeverity() ErrorSeverity
}

// IsRecoverable returns true if the error is recoverable
func IsRecoverable(err error) bool {
	if err == nil {
		return true
	}

	var configErr *ConfigError
	if errors.As(err, &configErr) {
		return false // Config errors are not recoverable
	}
	var sev severityCarrier
	if errors.As(err, &sev) {
		return sev.GetSeverity() != SeverityCritical
	}
	return true // Unknown errors are assumed recoverable
}

type codeCarrier interface {
	DiagnosticCode() int
}

// GetDiagnosticCode returns the code of the first typed error in err's chain
func GetDiagnosticCode(err error) int {
	if err == nil {
		return CodeOK
	}
	var c codeCarrier
	if errors.As(err, &c) {
		return c.DiagnosticCode()
	}
	return CodeGeneric
}
