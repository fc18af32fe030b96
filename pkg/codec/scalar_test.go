package codec

import (
	"bytes"
	"encoding/binary"
	"io"
	"math"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestReadFloat32BE(t *testing.T) {
	tests := []struct {
		name     string
		input    []byte
		expected float32
	}{
		{"one", []byte{0x3f, 0x80, 0x00, 0x00}, 1.0},
		{"negative two", []byte{0xc0, 0x00, 0x00, 0x00}, -2.0},
		{"zero", []byte{0x00, 0x00, 0x00, 0x00}, 0.0},
		{"pi", []byte{0x40, 0x49, 0x0f, 0xdb}, math.Float32frombits(0x40490fdb)},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			got, err := ReadFloat32BE(bytes.NewReader(tt.input))
			require.NoError(t, err)
			assert.Equal(t, tt.expected, got)
		})
	}
}

func TestReadFloat32BEConsumesExactlyFourBytes(t *testing.T) {
	r := bytes.NewReader([]byte{0x3f, 0x80, 0x00, 0x00, 0xaa})
	_, err := ReadFloat32BE(r)
	require.NoError(t, err)
	assert.Equal(t, 1, r.Len())
}

func TestShortReadsFail(t *testing.T) {
	_, err := ReadFloat32BE(bytes.NewReader([]byte{0x3f, 0x80, 0x00}))
	assert.ErrorIs(t, err, io.ErrUnexpectedEOF)

	_, err = ReadNormalizedU16BE(bytes.NewReader([]byte{0xff}))
	assert.ErrorIs(t, err, io.ErrUnexpectedEOF)

	_, err = ReadNormalizedU16BE(bytes.NewReader(nil))
	assert.ErrorIs(t, err, io.EOF)
}

func TestReadNormalizedU16BEExtremes(t *testing.T) {
	lo, err := ReadNormalizedU16BE(bytes.NewReader([]byte{0x00, 0x00}))
	require.NoError(t, err)
	assert.Equal(t, float32(0), lo)

	hi, err := ReadNormalizedU16BE(bytes.NewReader([]byte{0xff, 0xff}))
	require.NoError(t, err)
	assert.Equal(t, float32(1), hi)
}

func TestReadNormalizedU16BEMonotonic(t *testing.T) {
	buf := make([]byte, 2*65536)
	for v := 0; v <= math.MaxUint16; v++ {
		binary.BigEndian.PutUint16(buf[2*v:], uint16(v))
	}

	r := bytes.NewReader(buf)
	prev := float32(-1)
	for v := 0; v <= math.MaxUint16; v++ {
		got, err := ReadNormalizedU16BE(r)
		require.NoError(t, err)
		if got < prev {
			t.Fatalf("value %d decoded to %v, below previous %v", v, got, prev)
		}
		prev = got
	}
}

func TestLittleEndianVariants(t *testing.T) {
	var buf bytes.Buffer
	require.NoError(t, binary.Write(&buf, binary.LittleEndian, float32(0.5)))
	require.NoError(t, binary.Write(&buf, binary.LittleEndian, uint16(65535)))
	require.NoError(t, binary.Write(&buf, binary.LittleEndian, uint32(7)))
	require.NoError(t, binary.Write(&buf, binary.LittleEndian, float64(-3.25)))

	f, err := ReadFloat32(&buf, binary.LittleEndian)
	require.NoError(t, err)
	assert.Equal(t, float32(0.5), f)

	n, err := ReadNormalizedU16(&buf, binary.LittleEndian)
	require.NoError(t, err)
	assert.Equal(t, float32(1), n)

	u, err := ReadUint32(&buf, binary.LittleEndian)
	require.NoError(t, err)
	assert.Equal(t, uint32(7), u)

	d, err := ReadFloat64(&buf, binary.LittleEndian)
	require.NoError(t, err)
	assert.Equal(t, -3.25, d)
}
