package packet

import (
	"encoding/binary"
	"unicode/utf8"

	"golang.org/x/text/encoding/traditionalchinese"
)

// Writer appends little-endian fields to a growing payload. Writes never
// fail; Bytes returns the result.
type Writer struct {
	buf []byte
}

// NewWriterSize preallocates n bytes.
func NewWriterSize(n int) *Writer {
	return &Writer{buf: make([]byte, 0, n)}
}

// NewWriterWithOpcode starts a replication packet.
func NewWriterWithOpcode(opcode byte) *Writer {
	w := NewWriterSize(32)
	w.WriteC(opcode)
	return w
}

func (w *Writer) WriteC(v byte) { w.buf = append(w.buf, v) }

// WriteBool writes 1 or 0.
func (w *Writer) WriteBool(v bool) {
	if v {
		w.WriteC(1)
		return
	}
	w.WriteC(0)
}

func (w *Writer) WriteH(v uint16) { w.buf = binary.LittleEndian.AppendUint16(w.buf, v) }

// WriteD writes a signed 32-bit value, such as a property enum.
func (w *Writer) WriteD(v int32) { w.buf = binary.LittleEndian.AppendUint32(w.buf, uint32(v)) }

func (w *Writer) WriteDU(v uint32) { w.buf = binary.LittleEndian.AppendUint32(w.buf, v) }

func (w *Writer) WriteQ(v uint64) { w.buf = binary.LittleEndian.AppendUint64(w.buf, v) }

// WriteS writes s as null-terminated MS950 (Big5). ASCII is copied as is;
// text Big5 cannot encode falls back to its UTF-8 bytes.
func (w *Writer) WriteS(s string) {
	if !isASCII(s) && utf8.ValidString(s) {
		if enc, err := traditionalchinese.Big5.NewEncoder().String(s); err == nil {
			s = enc
		}
	}
	w.buf = append(w.buf, s...)
	w.buf = append(w.buf, 0)
}

func isASCII(s string) bool {
	for i := 0; i < len(s); i++ {
		if s[i] >= utf8.RuneSelf {
			return false
		}
	}
	return true
}

func (w *Writer) WriteBytes(b []byte) { w.buf = append(w.buf, b...) }

// WriteBlob writes a u32 length followed by b.
func (w *Writer) WriteBlob(b []byte) {
	w.WriteDU(uint32(len(b)))
	w.buf = append(w.buf, b...)
}

// Bytes returns the payload. The slice aliases the writer's buffer.
func (w *Writer) Bytes() []byte { return w.buf }
