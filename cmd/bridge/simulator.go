package main

import (
	"time"

	"heating-mqtt-bridge/internal/config"
	"heating-mqtt-bridge/internal/logger"
	"heating-mqtt-bridge/internal/modbus"
)

// simulator stands in for the RS-485 gateway and its two slaves when running
// with --simulate. Values drift slowly with the clock so stored series move.
type simulator struct {
	topics config.TopicSettings
	now    func() time.Time
}

func newSimulator(topics config.TopicSettings, now func() time.Time) *simulator {
	return &simulator{topics: topics, now: now}
}

// Respond answers the canonical heater and room queries published on the device topic
func (s *simulator) Respond(topic string, payload []byte) (string, []byte, bool) {
	if topic != s.topics.Device {
		return "", nil, false
	}
	req, err := modbus.DecodeRequest(payload)
	if err != nil {
		logger.LogDebug("🧪 Simulator ignored frame: %v", err)
		return "", nil, false
	}

	drift := uint16(s.now().Unix() % 20)
	var registers []uint16
	switch {
	case req.Address == modbus.AddressHeater && req.Function == modbus.FuncReadHoldingRegisters:
		inlet := 450 + drift
		registers = []uint16{inlet, inlet - 70}
	case req.Address == modbus.AddressRoom && req.Function == modbus.FuncReadInputRegisters:
		registers = []uint16{205 + drift/4, 550 + drift}
	default:
		return "", nil, false
	}
	return s.topics.Response, modbus.EncodeResponse(req.Address, req.Function, registers...), true
}
