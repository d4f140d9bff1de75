package iec104

import (
	"encoding/binary"
	"math"
)

func serializeLittleEndianUint16(i uint16) []byte {
	bytes := make([]byte, 2, 2)
	binary.LittleEndian.PutUint16(bytes, i)
	return bytes
}

func parseLittleEndianUint16(x []byte) uint16 {
	return binary.LittleEndian.Uint16(x)
}

func parseLittleEndianInt16(x []byte) int16 {
	return int16(parseLittleEndianUint16(x))
}

func serializeLittleEndianUint32(i uint32) []byte {
	bytes := make([]byte, 4, 4)
	binary.LittleEndian.PutUint32(bytes, i)
	return bytes
}

func parseLittleEndianUint32(x []byte) uint32 {
	return binary.LittleEndian.Uint32(x)
}

func serializeLittleEndianFloat32(f float32) []byte {
	return serializeLittleEndianUint32(math.Float32bits(f))
}

func parseLittleEndianFloat32(x []byte) float32 {
	return math.Float32frombits(parseLittleEndianUint32(x))
}

// parseIOA24 reads a 3-byte little-endian address, the width IEC-104 uses
// for information object addresses.
func parseIOA24(x []byte) uint32 {
	return uint32(x[0]) | uint32(x[1])<<8 | uint32(x[2])<<16
}

func serializeIOA24(v uint32) []byte {
	return []byte{byte(v), byte(v >> 8), byte(v >> 16)}
}
