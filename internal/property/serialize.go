package property

import (
	"fmt"

	"github.com/l1jgo/propsrv/internal/net/packet"
)

// Stream layout, all integers little-endian:
//
//	u32 count
//	count * (u16 name_len, name, u8 type_len, type, u32 data_len, data)

type streamEntry struct {
	name     string
	typeName string
	data     []byte
}

// Save writes every stored, non-temporary property in registry order
// followed by the unresolved store.
func (p *Properties) Save() []byte {
	count := p.reg.serializedCount + len(p.unresolved)
	w := packet.NewWriterSize(4 + p.reg.wholePodSize + 32*count)
	w.WriteDU(uint32(count))
	for _, prop := range p.reg.props {
		if !prop.HasStorage() || prop.temporary {
			continue
		}
		writeEntry(w, prop.name, prop.typeName, p.RawData(prop))
	}
	for _, u := range p.unresolved {
		writeEntry(w, u.Name, u.TypeName, u.Data)
	}
	return w.Bytes()
}

func writeEntry(w *packet.Writer, name, typeName string, data []byte) {
	w.WriteH(uint16(len(name)))
	w.WriteBytes([]byte(name))
	w.WriteC(uint8(len(typeName)))
	w.WriteBytes([]byte(typeName))
	w.WriteBlob(data)
}

// Load applies a stream written by Save without running callbacks. Entries
// are matched by name and type name; every other entry goes to the
// unresolved store. The stream is parsed completely before anything is
// applied, so a malformed stream leaves the block untouched.
func (p *Properties) Load(data []byte) error {
	entries, err := parseStream(data)
	if err != nil {
		return err
	}

	p.unresolved = p.unresolved[:0]
	for _, e := range entries {
		prop := p.reg.Find(e.name)
		if prop != nil && prop.HasStorage() && prop.typeName == e.typeName && prop.ValidRawSize(len(e.data)) {
			p.storeRaw(prop, e.data)
			continue
		}
		p.unresolved = append(p.unresolved, UnresolvedProperty{Name: e.name, TypeName: e.typeName, Data: e.data})
	}
	return nil
}

func parseStream(data []byte) ([]streamEntry, error) {
	r := packet.NewRawReader(data)
	count := r.ReadDU()
	if err := r.Err(); err != nil {
		return nil, fmt.Errorf("%w: %w", ErrMalformedStream, err)
	}
	// Each entry takes at least 7 bytes.
	if uint64(count)*7 > uint64(r.Remaining()) {
		return nil, fmt.Errorf("%w: %d entries in %d bytes", ErrMalformedStream, count, r.Remaining())
	}

	entries := make([]streamEntry, 0, count)
	for i := uint32(0); i < count; i++ {
		name := r.ReadBytes(int(r.ReadH()))
		typeName := r.ReadBytes(int(r.ReadC()))
		value := r.ReadBlob()
		if err := r.Err(); err != nil {
			return nil, fmt.Errorf("%w: entry %d: %w", ErrMalformedStream, i, err)
		}
		entries = append(entries, streamEntry{name: string(name), typeName: string(typeName), data: value})
	}
	if r.Remaining() != 0 {
		return nil, fmt.Errorf("%w: %d trailing bytes", ErrMalformedStream, r.Remaining())
	}
	return entries, nil
}

// ParseStream decodes a saved stream without a registrator, for tools.
func ParseStream(data []byte) ([]UnresolvedProperty, error) {
	entries, err := parseStream(data)
	if err != nil {
		return nil, err
	}
	out := make([]UnresolvedProperty, len(entries))
	for i, e := range entries {
		out[i] = UnresolvedProperty{Name: e.name, TypeName: e.typeName, Data: e.data}
	}
	return out, nil
}
