package main

import (
	"fmt"
	"testing"

	bridgeerrors "heating-mqtt-bridge/internal/errors"
)

func TestExitCode(t *testing.T) {
	tests := []struct {
		name string
		err  error
		want int
	}{
		{"wrapped config", fmt.Errorf("error loading configuration: %w",
			bridgeerrors.NewConfigError("mqtt.broker", fmt.Errorf("is not specified"))), bridgeerrors.CodeConfig},
		{"wrapped transport", fmt.Errorf("subscribe device/pub: %w",
			bridgeerrors.NewTransportError("subscribe", fmt.Errorf("refused"), "tcp://b:1883", "device/pub")), bridgeerrors.CodeTransport},
		{"untyped", fmt.Errorf("http server: address in use"), bridgeerrors.CodeGeneric},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			if got := exitCode(tt.err); got != tt.want {
				t.Errorf("exitCode() = %d, want %d", got, tt.want)
			}
		})
	}
}
