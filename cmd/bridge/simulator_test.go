package main

import (
	"testing"
	"time"

	"heating-mqtt-bridge/internal/config"
	"heating-mqtt-bridge/internal/modbus"
	"heating-mqtt-bridge/internal/reading"
)

func TestSimulatorAnswersCanonicalQueries(t *testing.T) {
	fixed := time.Unix(1700000005, 0)
	topics := config.TopicSettings{Device: "device/sub", Response: "device/pub"}
	sim := newSimulator(topics, func() time.Time { return fixed })

	tests := []struct {
		name  string
		query modbus.RequestFrame
		want  map[reading.Kind]int64
	}{
		{"heater", modbus.HeaterQuery, map[reading.Kind]int64{reading.KindInlet: 455, reading.KindOutlet: 385}},
		{"room", modbus.RoomQuery, map[reading.Kind]int64{reading.KindRoom: 206, reading.KindHumidity: 555}},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			replyTopic, reply, ok := sim.Respond(topics.Device, tt.query.Bytes())
			if !ok {
				t.Fatal("Expected a reply")
			}
			if replyTopic != topics.Response {
				t.Errorf("Reply topic = %s, want %s", replyTopic, topics.Response)
			}
			frame, err := modbus.Decode(reply)
			if err != nil {
				t.Fatalf("Reply does not decode: %v", err)
			}
			readings, err := reading.Decode(frame, fixed)
			if err != nil {
				t.Fatalf("reading.Decode() error: %v", err)
			}
			for _, rd := range readings {
				if rd.Tenths != tt.want[rd.Kind] {
					t.Errorf("%s = %d, want %d", rd.Kind, rd.Tenths, tt.want[rd.Kind])
				}
			}
			t.Logf("✅ %s reply: % X", tt.name, reply)
		})
	}
}

func TestSimulatorIgnoresOtherTraffic(t *testing.T) {
	topics := config.TopicSettings{Device: "device/sub", Response: "device/pub"}
	sim := newSimulator(topics, time.Now)

	if _, _, ok := sim.Respond("other/topic", modbus.HeaterQuery.Bytes()); ok {
		t.Error("Replied on a foreign topic")
	}
	corrupt := modbus.HeaterQuery.Bytes()
	corrupt[7] ^= 0xFF
	if _, _, ok := sim.Respond(topics.Device, corrupt); ok {
		t.Error("Replied to a corrupt frame")
	}
	if _, _, ok := sim.Respond(topics.Device, modbus.Encode(0x07, modbus.FuncReadHoldingRegisters, 0, 2)); ok {
		t.Error("Replied for an unknown slave")
	}
}

func TestStaleAfter(t *testing.T) {
	got := staleAfter(config.PollingSettings{HeaterInterval: 10 * time.Second, RoomInterval: 30 * time.Second})
	if got != 90*time.Second {
		t.Errorf("staleAfter = %v, want 90s", got)
	}
}
