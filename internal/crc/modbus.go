package crc

import (
	"github.com/sigurn/crc16"
)

// Reflected polynomial 0xA001 (0x8005 normal form), initial register 0xFFFF.
var table = crc16.MakeTable(crc16.CRC16_MODBUS)

// CRC16 calculates the Modbus RTU CRC16 checksum
func CRC16(data []byte) uint16 {
	return crc16.Checksum(data, table)
}

// VerifyCRC verifies the CRC16 checksum trailing a Modbus RTU frame.
// The trailer is little-endian: low byte first, then high byte.
func VerifyCRC(data []byte) bool {
	if len(data) < 3 {
		return false
	}
	return CRC16(data[:len(data)-2]) == Trailer(data)
}

// Trailer returns the little-endian CRC stored in the last two bytes of data.
// Callers must ensure len(data) >= 2.
func Trailer(data []byte) uint16 {
	return uint16(data[len(data)-2]) | uint16(data[len(data)-1])<<8
}

// AppendCRC returns a copy of data with its CRC16 appended in little-endian order
func AppendCRC(data []byte) []byte {
	crc := CRC16(data)

	result := make([]byte, len(data)+2)
	copy(result, data)
	result[len(data)] = byte(crc & 0xFF)
	result[len(data)+1] = byte(crc >> 8)

	return result
}
