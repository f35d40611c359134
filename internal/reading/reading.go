package reading

import (
	"fmt"
	"strconv"
	"time"

	bridgeerrors "heating-mqtt-bridge/internal/errors"
	"heating-mqtt-bridge/internal/modbus"
)

// Kind identifies what a reading measures
type Kind string

const (
	KindInlet    Kind = "inlet"
	KindOutlet   Kind = "outlet"
	KindRoom     Kind = "room"
	KindHumidity Kind = "humidity"
)

// Unit returns the unit the reading is expressed in
func (k Kind) Unit() string {
	if k == KindHumidity {
		return "%"
	}
	return "°C"
}

// SensorReading is one decoded measurement. Value is kept in tenths so it
// always carries exactly one fractional digit.
type SensorReading struct {
	Kind       Kind
	Tenths     int64
	ObservedAt time.Time
}

// Value returns the measurement as a float, e.g. 66.6
func (r SensorReading) Value() float64 {
	return float64(r.Tenths) / 10
}

// String formats the value with exactly one decimal
func (r SensorReading) String() string {
	return FormatTenths(r.Tenths)
}

// FormatTenths renders a tenths count as a decimal with one fractional digit
func FormatTenths(tenths int64) string {
	sign := ""
	if tenths < 0 {
		sign = "-"
		tenths = -tenths
	}
	return sign + strconv.FormatInt(tenths/10, 10) + "." + strconv.FormatInt(tenths%10, 10)
}

// RoundTenths scales v to tenths, rounding half away from zero at the
// second decimal place.
func RoundTenths(v float64) int64 {
	if v < 0 {
		return -RoundTenths(-v)
	}
	return int64(v*10 + 0.5)
}

// layout maps the registers of a known response to reading kinds, in order
type layout struct {
	name  string
	kinds []Kind
}

type frameKey struct {
	address  byte
	function byte
}

var layouts = map[frameKey]layout{
	{modbus.AddressHeater, modbus.FuncReadHoldingRegisters}: {name: "heater", kinds: []Kind{KindInlet, KindOutlet}},
	{modbus.AddressRoom, modbus.FuncReadInputRegisters}:     {name: "room", kinds: []Kind{KindRoom, KindHumidity}},
}

// Decode turns a validated response frame into readings stamped with now.
// Each raw register is divided by 10.
func Decode(frame *modbus.ResponseFrame, now time.Time) ([]SensorReading, error) {
	if frame == nil {
		return nil, fmt.Errorf("decode readings: %w", bridgeerrors.ErrMalformedLength)
	}

	address, function := frame.Key()
	l, ok := layouts[frameKey{address, function}]
	if !ok {
		return nil, bridgeerrors.NewFrameTypeError(address, function)
	}

	if len(frame.Registers) != len(l.kinds) {
		raw := make([]byte, 0, 3)
		raw = append(raw, frame.Address, frame.Function, frame.ByteCount)
		return nil, bridgeerrors.NewFrameError(bridgeerrors.ErrMalformedLength, raw,
			fmt.Sprintf("%s response needs %d registers, got %d", l.name, len(l.kinds), len(frame.Registers)))
	}

	readings := make([]SensorReading, len(l.kinds))
	for i, kind := range l.kinds {
		readings[i] = SensorReading{
			Kind:       kind,
			Tenths:     RoundTenths(float64(frame.Registers[i]) / 10.0),
			ObservedAt: now,
		}
	}
	return readings, nil
}
