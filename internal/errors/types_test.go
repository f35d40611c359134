package errors

import (
	"errors"
	"fmt"
	"strings"
	"testing"

	"heating-mqtt-bridge/internal/logger"
)

func TestSentinelMatching(t *testing.T) {
	tests := []struct {
		name     string
		err      error
		sentinel error
		kind     string
	}{
		{"crc", NewFrameError(ErrCrcMismatch, []byte{0x01, 0x03}, "trailer 0x0000"), ErrCrcMismatch, "crc_mismatch"},
		{"length", NewFrameError(ErrMalformedLength, []byte{0x01}, "short"), ErrMalformedLength, "malformed_length"},
		{"frame type", NewFrameTypeError(0x03, 0x03), ErrUnrecognizedFrameType, "unrecognized_frame_type"},
		{"transport", NewTransportError("publish", fmt.Errorf("not connected"), "tcp://b:1883", "device/sub"), ErrTransportUnavailable, "transport_unavailable"},
		{"persistence", NewPersistenceError("append", fmt.Errorf("disk full"), "sensor_temperature", "inlet"), ErrPersistenceFailure, "persistence_failure"},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			wrapped := fmt.Errorf("outer: %w", tt.err)
			if !errors.Is(wrapped, tt.sentinel) {
				t.Errorf("errors.Is(%v, %v) = false", wrapped, tt.sentinel)
			}
			if got := Kind(wrapped); got != tt.kind {
				t.Errorf("Kind() = %q, want %q", got, tt.kind)
			}
		})
	}
}

func TestErrorUnwrapping(t *testing.T) {
	baseErr := fmt.Errorf("connection refused")
	transportErr := NewTransportError("subscribe", baseErr, "tcp://localhost:1883", "device/pub")

	if !errors.Is(transportErr, baseErr) {
		t.Error("Expected transport error to wrap base error")
	}
	if errors.Is(transportErr, ErrPersistenceFailure) {
		t.Error("Transport error must not match persistence sentinel")
	}
}

func TestFrameErrorCopiesFrame(t *testing.T) {
	frame := []byte{0x01, 0x03, 0x04}
	err := NewFrameError(ErrMalformedLength, frame, "byte count mismatch")
	frame[0] = 0xFF

	if err.Frame[0] != 0x01 {
		t.Errorf("Frame was aliased, got first byte 0x%02X", err.Frame[0])
	}
	if !strings.Contains(err.Error(), "01 03 04") {
		t.Errorf("Expected hex frame in message, got %q", err.Error())
	}
}

func TestIsRecoverable(t *testing.T) {
	tests := []struct {
		name string
		err  error
		want bool
	}{
		{"nil", nil, true},
		{"config", NewConfigError("mqtt.broker", fmt.Errorf("required")), false},
		{"transport", NewTransportError("publish", fmt.Errorf("x"), "b", "t"), true},
		{"frame", NewFrameError(ErrCrcMismatch, nil, "x"), true},
		{"critical bridge", &BridgeError{Op: "start", Severity: SeverityCritical}, false},
		{"untyped", fmt.Errorf("plain"), true},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			if got := IsRecoverable(tt.err); got != tt.want {
				t.Errorf("IsRecoverable() = %v, want %v", got, tt.want)
			}
		})
	}
}

func TestGetDiagnosticCode(t *testing.T) {
	if code := GetDiagnosticCode(nil); code != CodeOK {
		t.Errorf("Expected %d for nil, got %d", CodeOK, code)
	}
	if code := GetDiagnosticCode(NewFrameTypeError(1, 4)); code != CodeFrameType {
		t.Errorf("Expected %d, got %d", CodeFrameType, code)
	}
	wrapped := fmt.Errorf("heater poll: %w", NewTransportError("publish", ErrTransportUnavailable, "b", "t"))
	if code := GetDiagnosticCode(wrapped); code != CodeTransport {
		t.Errorf("Expected %d through wrapping, got %d", CodeTransport, code)
	}
	if code := GetDiagnosticCode(fmt.Errorf("load: %w", NewConfigError("mqtt.broker", fmt.Errorf("required")))); code != CodeConfig {
		t.Errorf("Expected %d through wrapping, got %d", CodeConfig, code)
	}
	if code := GetDiagnosticCode(fmt.Errorf("plain")); code != CodeGeneric {
		t.Errorf("Expected %d, got %d", CodeGeneric, code)
	}
}

type countingRecorder struct {
	kinds []string
}

func (c *countingRecorder) RecordError(kind string) {
	c.kinds = append(c.kinds, kind)
}

func TestErrorHandlerLogsBySeverity(t *testing.T) {
	log := logger.NewMockLogger()
	rec := &countingRecorder{}
	h := NewErrorHandler(log, rec)

	h.Handle(nil)
	h.Handle(NewFrameError(ErrCrcMismatch, []byte{0x01}, "bad"))
	h.Handle(NewPersistenceError("append", fmt.Errorf("timeout"), "sensor_humidity", "room"))
	h.Handle(fmt.Errorf("something else"))

	if log.WarnCount() != 1 {
		t.Errorf("Expected 1 warning, got %d", log.WarnCount())
	}
	if log.ErrorCount() != 2 {
		t.Errorf("Expected 2 errors, got %d", log.ErrorCount())
	}
	if errs := log.Errors(); len(errs) == 0 || !strings.Contains(errs[0], "sensor_humidity") {
		t.Errorf("Expected persistence error to mention collection, got %v", errs)
	}
	want := []string{"crc_mismatch", "persistence_failure", "unknown"}
	if strings.Join(rec.kinds, ",") != strings.Join(want, ",") {
		t.Errorf("Recorded kinds %v, want %v", rec.kinds, want)
	}
	t.Logf("✅ Handler recorded %v", rec.kinds)
}
