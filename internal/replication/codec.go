package replication

import (
	"fmt"

	"github.com/l1jgo/propsrv/internal/net/packet"
	"github.com/l1jgo/propsrv/internal/property"
)

// Replication opcodes.
const (
	OpSnapshot byte = 0x01
	OpDelta    byte = 0x02
	OpDestroy  byte = 0x03
)

// EncodeSnapshot writes the peer-visible state of one entity:
// opcode, id, class name, shared layout fingerprint, buffer count, then
// each Store buffer length-prefixed.
func EncodeSnapshot(id uint64, props *property.Properties, withProtected bool) []byte {
	reg := props.Registrator()
	whole, bufs := props.Store(withProtected)

	w := packet.NewWriterSize(48 + len(reg.Class()) + whole + 4*len(bufs))
	w.WriteC(OpSnapshot)
	w.WriteQ(id)
	w.WriteS(reg.Class())
	fp := reg.SharedFingerprint()
	w.WriteBytes(fp[:])
	w.WriteBool(withProtected)
	w.WriteH(uint16(len(bufs)))
	for _, b := range bufs {
		w.WriteBlob(b)
	}
	return w.Bytes()
}

// EncodeDelta writes the current value of one property. Virtual
// properties are read through their getter.
func EncodeDelta(id uint64, props *property.Properties, prop *property.Property) []byte {
	data := props.GetData(prop)
	w := packet.NewWriterSize(20 + len(data))
	w.WriteC(OpDelta)
	w.WriteQ(id)
	w.WriteD(prop.EnumValue())
	w.WriteBlob(data)
	return w.Bytes()
}

func EncodeDestroy(id uint64) []byte {
	w := packet.NewWriterWithOpcode(OpDestroy)
	w.WriteQ(id)
	return w.Bytes()
}

type snapshot struct {
	id            uint64
	class         string
	fingerprint   [32]byte
	withProtected bool
	bufs          [][]byte
}

func decodeSnapshot(r *packet.Reader) (snapshot, error) {
	var s snapshot
	s.id = r.ReadQ()
	s.class = r.ReadS()
	copy(s.fingerprint[:], r.ReadBytes(32))
	s.withProtected = r.ReadC() != 0
	n := int(r.ReadH())
	if r.Err() == nil && n*4 > r.Remaining() {
		return s, fmt.Errorf("%w: %d buffers in %d bytes", property.ErrMalformedStream, n, r.Remaining())
	}
	s.bufs = make([][]byte, 0, n)
	for i := 0; i < n; i++ {
		s.bufs = append(s.bufs, r.ReadBlob())
	}
	if err := r.Err(); err != nil {
		return s, fmt.Errorf("%w: %w", property.ErrMalformedStream, err)
	}
	if r.Remaining() != 0 {
		return s, fmt.Errorf("%w: %d trailing bytes", property.ErrMalformedStream, r.Remaining())
	}
	return s, nil
}

type delta struct {
	id   uint64
	enum int32
	data []byte
}

func decodeDelta(r *packet.Reader) (delta, error) {
	d := delta{
		id:   r.ReadQ(),
		enum: r.ReadD(),
		data: r.ReadBlob(),
	}
	if err := r.Err(); err != nil {
		return d, fmt.Errorf("%w: %w", property.ErrMalformedStream, err)
	}
	return d, nil
}
