package config

import (
	"encoding/binary"
	"fmt"
	"math"
)

// EncodeInt64 renders v as 8 bytes little-endian two's complement (spec §6).
func EncodeInt64(v int64) []byte {
	b := make([]byte, 8)
	binary.LittleEndian.PutUint64(b, uint64(v))
	return b
}

// DecodeInt64 is the inverse of EncodeInt64.
func DecodeInt64(value []byte) (int64, error) {
	if len(value) != 8 {
		return 0, fmt.Errorf("config: malformed int64 value of length %d", len(value))
	}
	return int64(binary.LittleEndian.Uint64(value)), nil
}

// EncodeBool renders v as a single 0/1 byte.
func EncodeBool(v bool) []byte {
	if v {
		return []byte{1}
	}
	return []byte{0}
}

// DecodeBool is the inverse of EncodeBool.
func DecodeBool(value []byte) (bool, error) {
	if len(value) != 1 {
		return false, fmt.Errorf("config: malformed bool value of length %d", len(value))
	}
	return value[0] != 0, nil
}

// EncodeDouble renders v as 8 bytes IEEE-754 little-endian.
func EncodeDouble(v float64) []byte {
	b := make([]byte, 8)
	binary.LittleEndian.PutUint64(b, math.Float64bits(v))
	return b
}

// DecodeDouble is the inverse of EncodeDouble.
func DecodeDouble(value []byte) (float64, error) {
	if len(value) != 8 {
		return 0, fmt.Errorf("config: malformed double value of length %d", len(value))
	}
	return math.Float64frombits(binary.LittleEndian.Uint64(value)), nil
}

// EncodeString renders v as raw UTF-8 bytes, no terminator.
func EncodeString(v string) []byte {
	return []byte(v)
}

// DecodeString is the inverse of EncodeString.
func DecodeString(value []byte) (string, error) {
	return string(value), nil
}
