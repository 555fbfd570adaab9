package property

// Property describes one registered field of an entity class. It is built by
// Registrator.Register and must not change after FinishRegistration, except
// for callback bindings made during the single-threaded startup phase.
type Property struct {
	reg       *Registrator
	index     int
	name      string
	typeName  string
	typ       TypeInfo
	access    Access
	group     string
	enumValue int32

	readable       bool
	writable       bool
	isConst        bool
	temporary      bool
	generateRandom bool

	podOffset    int // -1 when not fixed or not stored
	complexIndex int // -1 when not complex or not stored

	defaultValue []byte
	minValue     []byte
	maxValue     []byte

	getCallback  HandlerToken
	setCallbacks []HandlerToken
	nativeSet    NativeSetFunc
	nativeSend   NativeSendFunc
}

func (p *Property) Registrator() *Registrator { return p.reg }
func (p *Property) Index() int                { return p.index }
func (p *Property) Name() string              { return p.name }
func (p *Property) TypeName() string          { return p.typeName }
func (p *Property) Type() TypeInfo            { return p.typ }
func (p *Property) Access() Access            { return p.access }
func (p *Property) Group() string             { return p.group }
func (p *Property) EnumValue() int32          { return p.enumValue }
func (p *Property) IsReadable() bool          { return p.readable }
func (p *Property) IsWritable() bool          { return p.writable }
func (p *Property) IsConst() bool             { return p.isConst }
func (p *Property) IsTemporary() bool         { return p.temporary }
func (p *Property) IsVirtual() bool           { return p.access.IsVirtual() }
func (p *Property) IsFixed() bool             { return p.typ.Kind == KindFixed }
func (p *Property) IsText() bool              { return p.typ.Kind == KindText }
func (p *Property) IsList() bool              { return p.typ.Kind == KindList }
func (p *Property) Size() int                 { return p.typ.Size }

// PodOffset returns the arena offset of a stored fixed property.
func (p *Property) PodOffset() (int, bool) { return p.podOffset, p.podOffset >= 0 }

// ComplexIndex returns the complex slot of a stored text or list property.
func (p *Property) ComplexIndex() (int, bool) { return p.complexIndex, p.complexIndex >= 0 }

// HasStorage reports whether the property owns bytes in a Properties block.
func (p *Property) HasStorage() bool { return p.podOffset >= 0 || p.complexIndex >= 0 }

// HasDefault reports whether an explicit default was registered.
func (p *Property) HasDefault() bool { return p.defaultValue != nil }

// Bounds reports whether min or max clamping is configured.
func (p *Property) Bounds() (hasMin, hasMax bool) { return p.minValue != nil, p.maxValue != nil }

func (p *Property) String() string {
	if p.reg == nil {
		return p.name
	}
	return p.reg.class + "::" + p.name
}

func (p *Property) hasSetCallbacks() bool {
	return len(p.setCallbacks) > 0 || p.nativeSet != nil
}

// ValidRawSize reports whether n bytes are a well-formed raw value.
func (p *Property) ValidRawSize(n int) bool {
	switch p.typ.Kind {
	case KindFixed:
		return n == p.typ.Size
	case KindList:
		return n%p.typ.Size == 0
	default:
		return true
	}
}

// zeroValue is what failed reads degrade to.
func (p *Property) zeroValue() []byte {
	if p.IsFixed() {
		return make([]byte, p.typ.Size)
	}
	return nil
}

// clamp returns the clamped encoding of data, or nil when data is in range.
func (p *Property) clamp(data []byte) []byte {
	if p.typ.Number == NumberBool {
		return nil
	}
	if p.maxValue != nil && compareFixed(p.typ, data, p.maxValue) > 0 {
		return clone(p.maxValue)
	}
	if p.minValue != nil && compareFixed(p.typ, data, p.minValue) < 0 {
		return clone(p.minValue)
	}
	return nil
}
