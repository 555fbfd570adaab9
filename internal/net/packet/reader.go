package packet

import (
	"encoding/binary"
	"errors"
	"fmt"

	"golang.org/x/text/encoding/traditionalchinese"
)

// ErrShortRead is returned by Err when a read ran past the end of the data.
var ErrShortRead = errors.New("packet: short read")

// Reader reads little-endian fields from a payload. A read past the end
// returns zero values and makes Err non-nil; later reads keep failing.
type Reader struct {
	data []byte
	off  int
	err  error
}

// NewReader reads a replication packet. Byte 0 is always the opcode.
func NewReader(data []byte) *Reader {
	return &Reader{data: data, off: 1} // skip opcode byte
}

// NewRawReader reads from offset 0, for payloads without an opcode.
func NewRawReader(data []byte) *Reader {
	return &Reader{data: data}
}

func (r *Reader) Opcode() byte {
	if len(r.data) == 0 {
		return 0
	}
	return r.data[0]
}

// Err returns the first short read, if any.
func (r *Reader) Err() error { return r.err }

func (r *Reader) need(n int) bool {
	if r.err != nil {
		return false
	}
	if n < 0 || r.off+n > len(r.data) {
		r.err = fmt.Errorf("%w: need %d bytes at offset %d, have %d", ErrShortRead, n, r.off, len(r.data)-r.off)
		r.off = len(r.data)
		return false
	}
	return true
}

// ReadC reads 1 unsigned byte.
func (r *Reader) ReadC() byte {
	if !r.need(1) {
		return 0
	}
	v := r.data[r.off]
	r.off++
	return v
}

// ReadH reads 2 bytes as little-endian uint16.
func (r *Reader) ReadH() uint16 {
	if !r.need(2) {
		return 0
	}
	v := binary.LittleEndian.Uint16(r.data[r.off:])
	r.off += 2
	return v
}

// ReadD reads 4 bytes as little-endian int32.
func (r *Reader) ReadD() int32 {
	return int32(r.ReadDU())
}

// ReadDU reads 4 bytes as little-endian uint32.
func (r *Reader) ReadDU() uint32 {
	if !r.need(4) {
		return 0
	}
	v := binary.LittleEndian.Uint32(r.data[r.off:])
	r.off += 4
	return v
}

// ReadQ reads 8 bytes as little-endian uint64.
func (r *Reader) ReadQ() uint64 {
	if !r.need(8) {
		return 0
	}
	v := binary.LittleEndian.Uint64(r.data[r.off:])
	r.off += 8
	return v
}

// ReadS reads a null-terminated MS950 (Big5) string and returns UTF-8.
func (r *Reader) ReadS() string {
	if r.err != nil {
		return ""
	}
	start := r.off
	for r.off < len(r.data) {
		if r.data[r.off] == 0 {
			raw := r.data[start:r.off]
			r.off++ // skip null terminator
			return ms950ToUTF8(raw)
		}
		r.off++
	}
	r.err = fmt.Errorf("%w: unterminated string at offset %d", ErrShortRead, start)
	return ""
}

// ms950ToUTF8 converts MS950 (Big5) bytes to a UTF-8 string.
// Pure ASCII passes through unchanged; only multi-byte sequences are decoded.
func ms950ToUTF8(raw []byte) string {
	if len(raw) == 0 {
		return ""
	}
	allASCII := true
	for _, b := range raw {
		if b >= 0x80 {
			allASCII = false
			break
		}
	}
	if allASCII {
		return string(raw)
	}
	decoded, err := traditionalchinese.Big5.NewDecoder().Bytes(raw)
	if err != nil {
		return string(raw) // fallback to raw bytes
	}
	return string(decoded)
}

// ReadBytes reads n raw bytes into a new slice.
func (r *Reader) ReadBytes(n int) []byte {
	if !r.need(n) {
		return nil
	}
	b := make([]byte, n)
	copy(b, r.data[r.off:r.off+n])
	r.off += n
	return b
}

// ReadBlob reads a u32 length followed by that many bytes.
func (r *Reader) ReadBlob() []byte {
	n := r.ReadDU()
	if r.err != nil {
		return nil
	}
	return r.ReadBytes(int(n))
}

// Remaining returns the number of unread bytes.
func (r *Reader) Remaining() int {
	return len(r.data) - r.off
}
