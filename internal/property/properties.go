package property

import (
	"fmt"
	"math/rand/v2"
)

// UnresolvedProperty is a loaded field that matched no registered property
// by name and type. It is written back unchanged by Save.
type UnresolvedProperty struct {
	Name     string
	TypeName string
	Data     []byte
}

// Properties is the storage block of one entity instance. It is not safe
// for concurrent use; the host serializes access per entity.
type Properties struct {
	reg        *Registrator
	owner      any
	pod        []byte
	complex    [][]byte
	unresolved []UnresolvedProperty
	sendIgnore *Property
	inGetter   []bool
}

// New creates a storage block for a finished registrator. Fixed fields get
// their default, random bytes when registered with GenerateRandom, or zero.
func New(reg *Registrator, owner any) *Properties {
	if !reg.finished {
		panic(fmt.Sprintf("property: %s used before FinishRegistration", reg.class))
	}
	p := &Properties{
		reg:     reg,
		owner:   owner,
		pod:     reg.acquireArena(),
		complex: make([][]byte, reg.complexCount),
	}
	for _, prop := range reg.props {
		if prop.podOffset < 0 {
			continue
		}
		field := p.pod[prop.podOffset : prop.podOffset+prop.typ.Size]
		switch {
		case prop.defaultValue != nil:
			copy(field, prop.defaultValue)
		case prop.generateRandom:
			for i := range field {
				field[i] = byte(rand.Uint32())
			}
		}
	}
	return p
}

// Release returns the arena to the registrator pool. The block must not be
// used afterwards.
func (p *Properties) Release() {
	if p.pod == nil {
		return
	}
	p.reg.releaseArena(p.pod)
	p.pod = nil
	p.complex = nil
	p.unresolved = nil
}

func (p *Properties) Registrator() *Registrator { return p.reg }
func (p *Properties) Owner() any                { return p.owner }

// SetOwner rebinds the entity passed to callbacks.
func (p *Properties) SetOwner(owner any) { p.owner = owner }

// RawData returns the stored bytes of a property without callbacks. The
// slice aliases storage and must not be modified or retained. Properties
// without storage return nil.
func (p *Properties) RawData(prop *Property) []byte {
	p.mustOwn(prop)
	switch {
	case prop.podOffset >= 0:
		return p.pod[prop.podOffset : prop.podOffset+prop.typ.Size : prop.podOffset+prop.typ.Size]
	case prop.complexIndex >= 0:
		return p.complex[prop.complexIndex]
	default:
		return nil
	}
}

// SetRawData writes raw bytes. With runCallbacks false nothing but the
// stored bytes change; with true the write runs the full set path,
// including clamping and no-op suppression. A size that does not fit the
// property panics.
func (p *Properties) SetRawData(prop *Property, data []byte, runCallbacks bool) error {
	p.mustOwn(prop)
	if !prop.ValidRawSize(len(data)) {
		panic(fmt.Sprintf("property: %s raw size %d does not fit %s", prop, len(data), prop.typeName))
	}
	if runCallbacks {
		return p.setValue(prop, data)
	}
	if !prop.HasStorage() {
		return fmt.Errorf("%w: %s has no storage", ErrNotWritable, prop)
	}
	p.storeRaw(prop, data)
	return nil
}

func (p *Properties) storeRaw(prop *Property, data []byte) {
	if prop.podOffset >= 0 {
		copy(p.pod[prop.podOffset:prop.podOffset+prop.typ.Size], data)
		return
	}
	p.complex[prop.complexIndex] = clone(data)
}

func (p *Properties) mustOwn(prop *Property) {
	if prop == nil || prop.reg != p.reg {
		panic(fmt.Sprintf("property: %v does not belong to %s", prop, p.reg.class))
	}
}

// CloneFrom copies every stored value and the unresolved store of other
// without running callbacks.
func (p *Properties) CloneFrom(other *Properties) error {
	if other.reg != p.reg {
		return fmt.Errorf("%w: %s from %s", ErrRegistratorMismatch, p.reg.class, other.reg.class)
	}
	if p == other {
		return nil
	}
	copy(p.pod, other.pod)
	for _, prop := range p.reg.props {
		if prop.complexIndex >= 0 {
			if err := p.SetRawData(prop, other.complex[prop.complexIndex], false); err != nil {
				return err
			}
		}
	}
	p.unresolved = p.unresolved[:0]
	for _, u := range other.unresolved {
		p.unresolved = append(p.unresolved, UnresolvedProperty{Name: u.Name, TypeName: u.TypeName, Data: clone(u.Data)})
	}
	return nil
}

func (p *Properties) storeLayout(withProtected bool) (int, []int) {
	if withProtected {
		return p.reg.publicSpace.size + p.reg.protectedSpace.size, p.reg.sharedComplex
	}
	return p.reg.publicSpace.size, p.reg.publicComplex
}

// Store snapshots the peer-visible state. The first buffer is the public
// slice of the fixed arena (public and protected with withProtected); then
// one buffer per visible complex property in registry order, empty values
// included. The int is the total byte size of all buffers.
func (p *Properties) Store(withProtected bool) (int, [][]byte) {
	podSize, complexProps := p.storeLayout(withProtected)
	bufs := make([][]byte, 0, 1+len(complexProps))

	head := make([]byte, podSize)
	copy(head, p.pod[:podSize])
	bufs = append(bufs, head)
	whole := podSize

	for _, idx := range complexProps {
		prop := p.reg.props[idx]
		src := p.complex[prop.complexIndex]
		buf := make([]byte, len(src))
		copy(buf, src)
		bufs = append(bufs, buf)
		whole += len(buf)
	}
	return whole, bufs
}

// Restore applies buffers produced by Store with the same withProtected
// flag on a registrator with the same layout. No callbacks run. Buffers
// that do not fit the layout are refused before anything is written.
func (p *Properties) Restore(withProtected bool, bufs [][]byte) error {
	podSize, complexProps := p.storeLayout(withProtected)
	if len(bufs) != 1+len(complexProps) {
		return fmt.Errorf("%w: %d buffers, want %d", ErrMalformedStream, len(bufs), 1+len(complexProps))
	}
	if len(bufs[0]) != podSize {
		return fmt.Errorf("%w: fixed slice is %d bytes, want %d", ErrMalformedStream, len(bufs[0]), podSize)
	}
	for i, idx := range complexProps {
		prop := p.reg.props[idx]
		if !prop.ValidRawSize(len(bufs[1+i])) {
			return fmt.Errorf("%w: %s buffer is %d bytes", ErrMalformedStream, prop, len(bufs[1+i]))
		}
	}

	copy(p.pod[:podSize], bufs[0])
	for i, idx := range complexProps {
		p.storeRaw(p.reg.props[idx], bufs[1+i])
	}
	return nil
}

// FindData returns the arena bytes of a stored fixed property by name, for
// hot paths that skip the accessor. Writes through the slice bypass
// callbacks. Returns nil for unknown, complex or virtual properties.
func (p *Properties) FindData(name string) []byte {
	prop := p.reg.Find(name)
	if prop == nil || prop.podOffset < 0 {
		return nil
	}
	end := prop.podOffset + prop.typ.Size
	return p.pod[prop.podOffset:end:end]
}

// Unresolved returns a copy of the unresolved store.
func (p *Properties) Unresolved() []UnresolvedProperty {
	out := make([]UnresolvedProperty, len(p.unresolved))
	for i, u := range p.unresolved {
		out[i] = UnresolvedProperty{Name: u.Name, TypeName: u.TypeName, Data: clone(u.Data)}
	}
	return out
}

// SetSendIgnore suppresses the send callback for writes to prop until
// ClearSendIgnore. Nesting panics.
func (p *Properties) SetSendIgnore(prop *Property) {
	if p.sendIgnore != nil {
		panic(fmt.Sprintf("property: send ignore already set for %s", p.sendIgnore))
	}
	p.sendIgnore = prop
}

func (p *Properties) ClearSendIgnore() { p.sendIgnore = nil }

// WithSendIgnore runs fn with the send callback of prop suppressed.
func (p *Properties) WithSendIgnore(prop *Property, fn func() error) error {
	p.SetSendIgnore(prop)
	defer p.ClearSendIgnore()
	return fn()
}

// GetValueAsInt reads a fixed property by enum value as an integer.
func (p *Properties) GetValueAsInt(enum int32) (int64, error) {
	prop := p.reg.FindByEnum(enum)
	if prop == nil {
		return 0, fmt.Errorf("%w: enum %d in %s", ErrUnknownProperty, enum, p.reg.class)
	}
	if !prop.IsFixed() {
		return 0, fmt.Errorf("%w: %s", ErrNotFixed, prop)
	}
	return fixedAsInt64(prop.typ, p.getValue(prop)), nil
}

// SetValueAsInt writes a fixed property by enum value.
func (p *Properties) SetValueAsInt(enum int32, v int64) error {
	prop := p.reg.FindByEnum(enum)
	if prop == nil {
		return fmt.Errorf("%w: enum %d in %s", ErrUnknownProperty, enum, p.reg.class)
	}
	return p.setInt(prop, v)
}

// SetValueAsIntByName writes a fixed property by name.
func (p *Properties) SetValueAsIntByName(name string, v int64) error {
	prop := p.reg.Find(name)
	if prop == nil {
		return fmt.Errorf("%w: %s::%s", ErrUnknownProperty, p.reg.class, name)
	}
	return p.setInt(prop, v)
}

func (p *Properties) setInt(prop *Property, v int64) error {
	if !prop.IsFixed() {
		return fmt.Errorf("%w: %s", ErrNotFixed, prop)
	}
	if !prop.writable {
		return fmt.Errorf("%w: %s", ErrNotWritable, prop)
	}
	return p.setValue(prop, encodeNum(prop.typ, *Int(v)))
}
