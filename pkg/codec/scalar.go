// Package codec reads fixed-width numeric samples from byte streams.
//
// Every reader consumes exactly the number of bytes of its sample. A stream
// that ends early yields an error and never a partially assembled value.
package codec

import (
	"encoding/binary"
	"fmt"
	"io"
	"math"
)

// maxU16 is the divisor that maps an unsigned 16-bit sample onto [0, 1]
const maxU16 = float32(math.MaxUint16)

// ReadFloat32BE reads a big-endian IEEE-754 single precision value
func ReadFloat32BE(r io.Reader) (float32, error) {
	return ReadFloat32(r, binary.BigEndian)
}

// ReadNormalizedU16BE reads a big-endian unsigned 16-bit sample and rescales it to [0, 1]
func ReadNormalizedU16BE(r io.Reader) (float32, error) {
	return ReadNormalizedU16(r, binary.BigEndian)
}

// ReadFloat32 reads an IEEE-754 single precision value in the given byte order
func ReadFloat32(r io.Reader, order binary.ByteOrder) (float32, error) {
	var buf [4]byte
	if _, err := io.ReadFull(r, buf[:]); err != nil {
		return 0, fmt.Errorf("codec: read float32: %w", err)
	}
	return math.Float32frombits(order.Uint32(buf[:])), nil
}

// ReadNormalizedU16 reads an unsigned 16-bit sample in the given byte order and rescales it to [0, 1]
func ReadNormalizedU16(r io.Reader, order binary.ByteOrder) (float32, error) {
	v, err := ReadUint16(r, order)
	if err != nil {
		return 0, err
	}
	return float32(v) / maxU16, nil
}

// ReadUint16 reads an unsigned 16-bit integer in the given byte order
func ReadUint16(r io.Reader, order binary.ByteOrder) (uint16, error) {
	var buf [2]byte
	if _, err := io.ReadFull(r, buf[:]); err != nil {
		return 0, fmt.Errorf("codec: read uint16: %w", err)
	}
	return order.Uint16(buf[:]), nil
}

// ReadUint32 reads an unsigned 32-bit integer in the given byte order
func ReadUint32(r io.Reader, order binary.ByteOrder) (uint32, error) {
	var buf [4]byte
	if _, err := io.ReadFull(r, buf[:]); err != nil {
		return 0, fmt.Errorf("codec: read uint32: %w", err)
	}
	return order.Uint32(buf[:]), nil
}

// ReadFloat64 reads an IEEE-754 double precision value in the given byte order
func ReadFloat64(r io.Reader, order binary.ByteOrder) (float64, error) {
	var buf [8]byte
	if _, err := io.ReadFull(r, buf[:]); err != nil {
		return 0, fmt.Errorf("codec: read float64: %w", err)
	}
	return math.Float64frombits(order.Uint64(buf[:])), nil
}
