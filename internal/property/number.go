package property

import (
	"encoding/binary"
	"math"
)

// Num is a registration-time numeric constant used for defaults and bounds.
// It is converted to the property's own encoding when registered.
type Num struct {
	i       int64
	f       float64
	isFloat bool
}

func Int(v int64) *Num     { return &Num{i: v} }
func Float(v float64) *Num { return &Num{f: v, isFloat: true} }

func (n Num) Int64() int64 {
	if n.isFloat {
		return int64(n.f)
	}
	return n.i
}

func (n Num) Float64() float64 {
	if n.isFloat {
		return n.f
	}
	return float64(n.i)
}

// encodeNum converts n to the little-endian encoding of a fixed type.
func encodeNum(t TypeInfo, n Num) []byte {
	buf := make([]byte, t.Size)
	switch t.Number {
	case NumberFloat:
		putFloat(buf, n.Float64())
	case NumberBool:
		if n.Float64() != 0 {
			buf[0] = 1
		}
	default:
		putUint(buf, uint64(n.Int64()))
	}
	return buf
}

func putUint(buf []byte, v uint64) {
	for i := range buf {
		buf[i] = byte(v >> (8 * uint(i)))
	}
}

func putFloat(buf []byte, v float64) {
	if len(buf) == 4 {
		binary.LittleEndian.PutUint32(buf, math.Float32bits(float32(v)))
		return
	}
	binary.LittleEndian.PutUint64(buf, math.Float64bits(v))
}

func readUint(buf []byte) uint64 {
	var v uint64
	for i := range buf {
		v |= uint64(buf[i]) << (8 * uint(i))
	}
	return v
}

func readInt(buf []byte) int64 {
	v := readUint(buf)
	shift := 64 - 8*uint(len(buf))
	return int64(v<<shift) >> shift
}

func readFloat(buf []byte) float64 {
	if len(buf) == 4 {
		return float64(math.Float32frombits(binary.LittleEndian.Uint32(buf)))
	}
	return math.Float64frombits(binary.LittleEndian.Uint64(buf))
}

// compareFixed orders two encodings of the same numeric type.
func compareFixed(t TypeInfo, a, b []byte) int {
	switch t.Number {
	case NumberFloat:
		x, y := readFloat(a), readFloat(b)
		switch {
		case x < y:
			return -1
		case x > y:
			return 1
		}
	case NumberUint, NumberBool:
		x, y := readUint(a), readUint(b)
		switch {
		case x < y:
			return -1
		case x > y:
			return 1
		}
	default:
		x, y := readInt(a), readInt(b)
		switch {
		case x < y:
			return -1
		case x > y:
			return 1
		}
	}
	return 0
}

// fixedAsInt64 converts a fixed encoding to an integer, truncating floats.
func fixedAsInt64(t TypeInfo, buf []byte) int64 {
	switch t.Number {
	case NumberFloat:
		return int64(readFloat(buf))
	case NumberBool:
		if buf[0] != 0 {
			return 1
		}
		return 0
	case NumberUint:
		return int64(readUint(buf))
	default:
		return readInt(buf)
	}
}

func clone(b []byte) []byte {
	if len(b) == 0 {
		return nil
	}
	c := make([]byte, len(b))
	copy(c, b)
	return c
}

// NumberOf decodes a fixed encoding as a float64, the number type of the
// scripting layer.
func NumberOf(t TypeInfo, data []byte) float64 {
	switch t.Number {
	case NumberFloat:
		return readFloat(data)
	case NumberBool:
		if data[0] != 0 {
			return 1
		}
		return 0
	case NumberUint:
		return float64(readUint(data))
	default:
		return float64(readInt(data))
	}
}

// EncodeNumber encodes v as the fixed type t. Integer types truncate.
func EncodeNumber(t TypeInfo, v float64) []byte {
	if t.Number == NumberUint && v >= 1<<63 {
		buf := make([]byte, t.Size)
		putUint(buf, uint64(v))
		return buf
	}
	return encodeNum(t, Num{f: v, isFloat: true})
}
