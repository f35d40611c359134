package errors

import (
	"errors"
	"fmt"
)

// Sentinel kinds, matched with errors.Is.
var (
	ErrTransportUnavailable  = errors.New("transport unavailable")
	ErrCrcMismatch           = errors.New("crc mismatch")
	ErrMalformedLength       = errors.New("malformed length")
	ErrUnrecognizedFrameType = errors.New("unrecognized frame type")
	ErrPersistenceFailure    = errors.New("persistence failure")
)

// Diagnostic codes
const (
	CodeOK          = 0
	CodeConfig      = 1
	CodeTransport   = 2
	CodeFrame       = 3
	CodeFrameType   = 4
	CodePersistence = 5
	CodeGeneric     = 99
)

// ErrorSeverity defines the severity level of an error
type ErrorSeverity int

const (
	SeverityInfo ErrorSeverity = iota
	SeverityWarning
	SeverityError
	SeverityCritical
)

// String returns the string representation of the severity
func (s ErrorSeverity) String() string {
	switch s {
	case SeverityInfo:
		return "INFO"
	case SeverityWarning:
		return "WARNING"
	case SeverityError:
		return "ERROR"
	case SeverityCritical:
		return "CRITICAL"
	default:
		return "UNKNOWN"
	}
}

// BridgeError is the base error type for all bridge errors
type BridgeError struct {
	Op       string        // Operation that failed
	Err      error         // Underlying error
	Severity ErrorSeverity // Error severity
	Code     int           // Diagnostic code
}

// Error implements the error interface
func (e *BridgeError) Error() string {
	if e.Err != nil {
		return fmt.Sprintf("[%s] %s: %v", e.Severity, e.Op, e.Err)
	}
	return fmt.Sprintf("[%s] %s", e.Severity, e.Op)
}

// Unwrap returns the underlying error
func (e *BridgeError) Unwrap() error {
	return e.Err
}

// GetSeverity returns the severity; promoted to every typed error
func (e *BridgeError) GetSeverity() ErrorSeverity {
	return e.Severity
}

// DiagnosticCode returns the code; promoted to every typed error
func (e *BridgeError) DiagnosticCode() int {
	return e.Code
}

// TransportError represents a failed publish or subscribe on the MQTT broker
type TransportError struct {
	BridgeError
	Broker string
	Topic  string
}

// NewTransportError creates a new transport error
func NewTransportError(op string, err error, broker, topic string) *TransportError {
	return &TransportError{
		BridgeError: BridgeError{
			Op:       op,
			Err:      err,
			Severity: SeverityError,
			Code:     CodeTransport,
		},
		Broker: broker,
		Topic:  topic,
	}
}

// Error implements the error interface
func (e *TransportError) Error() string {
	if e.Topic != "" {
		return fmt.Sprintf("[%s] MQTT broker '%s' (topic: %s): %s: %v",
			e.Severity, e.Broker, e.Topic, e.Op, e.Err)
	}
	return fmt.Sprintf("[%s] MQTT broker '%s': %s: %v",
		e.Severity, e.Broker, e.Op, e.Err)
}

// Is reports every transport error as ErrTransportUnavailable
func (e *TransportError) Is(target error) bool {
	return target == ErrTransportUnavailable
}

// FrameError represents an inbound frame rejected by the codec (CRC or length)
type FrameError struct {
	BridgeError
	Frame []byte
}

// NewFrameError creates a frame error of the given kind (ErrCrcMismatch or ErrMalformedLength)
func NewFrameError(kind error, frame []byte, detail string) *FrameError {
	raw := make([]byte, len(frame))
	copy(raw, frame)
	return &FrameError{
		BridgeError: BridgeError{
			Op:       "decode frame",
			Err:      fmt.Errorf("%w: %s", kind, detail),
			Severity: SeverityWarning,
			Code:     CodeFrame,
		},
		Frame: raw,
	}
}

// Error implements the error interface
func (e *FrameError) Error() string {
	return fmt.Sprintf("[%s] %s: %v (frame % X)", e.Severity, e.Op, e.Err, e.Frame)
}

// FrameTypeError represents a well-formed frame from an unexpected address/function pair
type FrameTypeError struct {
	BridgeError
	Address  uint8
	Function uint8
}

// NewFrameTypeError creates a new unrecognized frame type error
func NewFrameTypeError(address, function uint8) *FrameTypeError {
	return &FrameTypeError{
		BridgeError: BridgeError{
			Op:       "decode readings",
			Err:      ErrUnrecognizedFrameType,
			Severity: SeverityWarning,
			Code:     CodeFrameType,
		},
		Address:  address,
		Function: function,
	}
}

// Error implements the error interface
func (e *FrameTypeError) Error() string {
	return fmt.Sprintf("[%s] %s: %v (address 0x%02X, function 0x%02X)",
		e.Severity, e.Op, e.Err, e.Address, e.Function)
}

// PersistenceError represents a failed append on the persistence sink
type PersistenceError struct {
	BridgeError
	Collection string
	Type       string
}

// NewPersistenceError creates a new persistence error
func NewPersistenceError(op string, err error, collection, recordType string) *PersistenceError {
	return &PersistenceError{
		BridgeError: BridgeError{
			Op:       op,
			Err:      err,
			Severity: SeverityError,
			Code:     CodePersistence,
		},
		Collection: collection,
		Type:       recordType,
	}
}

// Error implements the error interface
func (e *PersistenceError) Error() string {
	return fmt.Sprintf("[%s] Collection '%s' (type %s): %s: %v",
		e.Severity, e.Collection, e.Type, e.Op, e.Err)
}

// Is reports every persistence error as ErrPersistenceFailure
func (e *PersistenceError) Is(target error) bool {
	return target == ErrPersistenceFailure
}

// ConfigError represents configuration errors
type ConfigError struct {
	BridgeError
	Field string
}

// NewConfigError creates a new configuration error
func NewConfigError(field string, err error) *ConfigError {
	return &ConfigError{
		BridgeError: BridgeError{
			Op:       "validate",
			Err:      err,
			Severity: SeverityCritical, // Config errors are critical
			Code:     CodeConfig,
		},
		Field: field,
	}
}

// Error implements the error interface
func (e *ConfigError) Error() string {
	if e.Field != "" {
		return fmt.Sprintf("[%s] Configuration field '%s': %v", e.Severity, e.Field, e.Err)
	}
	return fmt.Sprintf("[%s] Configuration: %v", e.Severity, e.Err)
}

// Kind returns a short label for the error category, used as a metrics label
func Kind(err error) string {
	switch {
	case err == nil:
		return ""
	case errors.Is(err, ErrCrcMismatch):
		return "crc_mismatch"
	case errors.Is(err, ErrMalformedLength):
		return "malformed_length"
	case errors.Is(err, ErrUnrecognizedFrameType):
		return "unrecognized_frame_type"
	case errors.Is(err, ErrTransportUnavailable):
		return "transport_unavailable"
	case errors.Is(err, ErrPersistenceFailure):
		return "persistence_failure"
	}
	var cfgErr *ConfigError
	if errors.As(err, &cfgErr) {
		return "config"
	}
	return "unknown"
}
