package modbus

import (
	"encoding/binary"
	"fmt"

	"heating-mqtt-bridge/internal/crc"
	bridgeerrors "heating-mqtt-bridge/internal/errors"
)

// Function codes understood by the bridge
const (
	FuncReadHoldingRegisters byte = 0x03
	FuncReadInputRegisters   byte = 0x04

	exceptionFlag byte = 0x80
)

// Device addresses on the RTU segment behind the gateway
const (
	AddressHeater byte = 0x01
	AddressRoom   byte = 0x02
)

const (
	requestLength   = 8 // addr + fn + start(2) + count(2) + crc(2)
	minResponseSize = 5 // addr + fn + byteCount + crc(2)
)

// RequestFrame is a read request for a contiguous register block
type RequestFrame struct {
	Address       byte
	Function      byte
	StartRegister uint16
	RegisterCount uint16
	CRC           uint16
}

// Canonical polls. Bytes() on these yields 01 03 00 00 00 02 C4 0B and 02 04 00 00 00 02 71 F8.
var (
	HeaterQuery = NewRequest(AddressHeater, FuncReadHoldingRegisters, 0x0000, 2)
	RoomQuery   = NewRequest(AddressRoom, FuncReadInputRegisters, 0x0000, 2)
)

// NewRequest builds a request frame with its CRC filled in
func NewRequest(address, function byte, start, count uint16) RequestFrame {
	raw := Encode(address, function, start, count)
	return RequestFrame{
		Address:       address,
		Function:      function,
		StartRegister: start,
		RegisterCount: count,
		CRC:           crc.Trailer(raw),
	}
}

// Bytes returns the wire representation of the request
func (r RequestFrame) Bytes() []byte {
	return Encode(r.Address, r.Function, r.StartRegister, r.RegisterCount)
}

// String returns the frame as an uppercase hex string
func (r RequestFrame) String() string {
	return fmt.Sprintf("%X", r.Bytes())
}

// Encode builds a complete Modbus RTU read request:
// address, function, start (BE), count (BE), CRC (LE).
func Encode(address, function byte, start, count uint16) []byte {
	command := make([]byte, 6)
	command[0] = address
	command[1] = function
	binary.BigEndian.PutUint16(command[2:4], start)
	binary.BigEndian.PutUint16(command[4:6], count)

	return crc.AppendCRC(command)
}

// DecodeRequest parses an 8-byte request frame. It is the inverse of Encode.
func DecodeRequest(b []byte) (*RequestFrame, error) {
	if len(b) != requestLength {
		return nil, bridgeerrors.NewFrameError(bridgeerrors.ErrMalformedLength, b,
			fmt.Sprintf("request must be %d bytes, got %d", requestLength, len(b)))
	}
	if !crc.VerifyCRC(b) {
		return nil, bridgeerrors.NewFrameError(bridgeerrors.ErrCrcMismatch, b,
			fmt.Sprintf("trailer 0x%04X, computed 0x%04X", crc.Trailer(b), crc.CRC16(b[:len(b)-2])))
	}

	return &RequestFrame{
		Address:       b[0],
		Function:      b[1],
		StartRegister: binary.BigEndian.Uint16(b[2:4]),
		RegisterCount: binary.BigEndian.Uint16(b[4:6]),
		CRC:           crc.Trailer(b),
	}, nil
}

// ResponseFrame is a validated read response
type ResponseFrame struct {
	Address   byte
	Function  byte
	ByteCount byte
	Registers []uint16
	CRC       uint16
}

// Key returns the (address, function) pair used to route the frame
func (f *ResponseFrame) Key() (byte, byte) {
	return f.Address, f.Function
}

// Decode validates and parses a response frame.
// Frames are checked for minimum size, then CRC, then byte count; any failure rejects the whole frame.
func Decode(b []byte) (*ResponseFrame, error) {
	if len(b) < minResponseSize {
		return nil, bridgeerrors.NewFrameError(bridgeerrors.ErrMalformedLength, b,
			fmt.Sprintf("frame too short: %d bytes", len(b)))
	}
	if !crc.VerifyCRC(b) {
		return nil, bridgeerrors.NewFrameError(bridgeerrors.ErrCrcMismatch, b,
			fmt.Sprintf("trailer 0x%04X, computed 0x%04X", crc.Trailer(b), crc.CRC16(b[:len(b)-2])))
	}

	if b[1]&exceptionFlag != 0 {
		return nil, bridgeerrors.NewFrameError(bridgeerrors.ErrMalformedLength, b,
			fmt.Sprintf("device exception 0x%02X for function 0x%02X", b[2], b[1]&^exceptionFlag))
	}

	byteCount := int(b[2])
	payload := len(b) - minResponseSize
	if byteCount != payload || byteCount%2 != 0 {
		return nil, bridgeerrors.NewFrameError(bridgeerrors.ErrMalformedLength, b,
			fmt.Sprintf("byte count %d, payload %d bytes", byteCount, payload))
	}

	registers := make([]uint16, byteCount/2)
	for i := range registers {
		registers[i] = binary.BigEndian.Uint16(b[3+2*i : 5+2*i])
	}

	return &ResponseFrame{
		Address:   b[0],
		Function:  b[1],
		ByteCount: b[2],
		Registers: registers,
		CRC:       crc.Trailer(b),
	}, nil
}

// EncodeResponse builds a response frame for the given registers.
// Used by device simulators and tests.
func EncodeResponse(address, function byte, registers ...uint16) []byte {
	frame := make([]byte, 3+2*len(registers))
	frame[0] = address
	frame[1] = function
	frame[2] = byte(2 * len(registers))
	for i, r := range registers {
		binary.BigEndian.PutUint16(frame[3+2*i:], r)
	}
	return crc.AppendCRC(frame)
}
