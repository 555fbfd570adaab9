package property

import (
	"encoding/binary"
	"fmt"
	"sort"
	"sync"

	"github.com/cespare/xxhash/v2"
	"go.uber.org/zap"
	"golang.org/x/crypto/blake2b"
)

// Options are the optional parts of a registration.
type Options struct {
	Group          string
	GenerateRandom bool
	Const          bool
	Temporary      bool // stored and replicated, never saved
	Default        *Num
	Min            *Num
	Max            *Num
}

// Registrator owns the property layout of one entity class.
//
// Register and FinishRegistration must run on one goroutine before any
// Properties block is created from the registrator; concurrent registration
// is a precondition violation. After FinishRegistration the layout is frozen
// and only the arena pool is mutated, under poolMu.
type Registrator struct {
	class    string
	side     Side
	types    TypeResolver
	log      *zap.Logger
	finished bool
	defaults Options

	props  []*Property
	byName map[string]*Property
	byEnum map[int32]*Property
	groups map[string][]*Property

	publicSpace    podSpace
	protectedSpace podSpace
	privateSpace   podSpace
	wholePodSize   int

	complexCount     int
	serializedCount  int
	publicComplex    []int // registry indices, registry order
	protectedComplex []int
	sharedComplex    []int // public and protected, registry order

	poolMu sync.Mutex
	pool   [][]byte

	invoker           Invoker
	errSink           func(*Property, error)
	fingerprint       [32]byte
	sharedFingerprint [32]byte
}

// NewRegistrator creates an empty registrator. A nil resolver uses
// NewTypeTable, a nil logger discards output.
func NewRegistrator(class string, side Side, types TypeResolver, log *zap.Logger) *Registrator {
	if types == nil {
		types = NewTypeTable()
	}
	if log == nil {
		log = zap.NewNop()
	}
	r := &Registrator{
		class:  class,
		side:   side,
		types:  types,
		log:    log.With(zap.String("class", class)),
		byName: make(map[string]*Property, 64),
		byEnum: make(map[int32]*Property, 64),
		groups: make(map[string][]*Property),
	}
	r.errSink = r.logError
	return r
}

func (r *Registrator) Class() string { return r.class }
func (r *Registrator) Side() Side    { return r.side }

// Finished reports whether FinishRegistration has run.
func (r *Registrator) Finished() bool { return r.finished }

// Count returns the number of registered properties.
func (r *Registrator) Count() int { return len(r.props) }

// Get returns the property at a registry index, or nil.
func (r *Registrator) Get(index int) *Property {
	if index < 0 || index >= len(r.props) {
		return nil
	}
	return r.props[index]
}

// Find returns the property with the given name, or nil.
func (r *Registrator) Find(name string) *Property { return r.byName[name] }

// FindByEnum returns the property with the given enum value, or nil.
func (r *Registrator) FindByEnum(enum int32) *Property { return r.byEnum[enum] }

// Group returns the properties registered under a group, in registry order.
func (r *Registrator) Group(name string) []*Property {
	return append([]*Property(nil), r.groups[name]...)
}

// Properties returns every registered property in registry order.
func (r *Registrator) Properties() []*Property {
	return append([]*Property(nil), r.props...)
}

func (r *Registrator) PublicSize() int      { return r.publicSpace.size }
func (r *Registrator) ProtectedSize() int   { return r.protectedSpace.size }
func (r *Registrator) PrivateSize() int     { return r.privateSpace.size }
func (r *Registrator) WholePodSize() int    { return r.wholePodSize }
func (r *Registrator) ComplexCount() int    { return r.complexCount }
func (r *Registrator) SerializedCount() int { return r.serializedCount }

// Fingerprint identifies the frozen layout. Two registrators with equal
// fingerprints can exchange Store/Restore buffers.
func (r *Registrator) Fingerprint() [32]byte { return r.fingerprint }

// SharedFingerprint hashes only the peer-visible layout, so a server and a
// client registrator of the same class agree on it.
func (r *Registrator) SharedFingerprint() [32]byte { return r.sharedFingerprint }

// SetDefaults sets the group and bounds applied to later Register calls
// that leave them empty. Passing a zero Options clears them.
func (r *Registrator) SetDefaults(opts Options) {
	r.defaults = Options{Group: opts.Group, Min: opts.Min, Max: opts.Max}
}

// SetInvoker installs the handler invoker used for get/set callbacks.
func (r *Registrator) SetInvoker(inv Invoker) { r.invoker = inv }

// SetErrorSink replaces the sink that receives recoverable read failures.
func (r *Registrator) SetErrorSink(fn func(*Property, error)) {
	if fn == nil {
		fn = r.logError
	}
	r.errSink = fn
}

func (r *Registrator) logError(prop *Property, err error) {
	r.log.Warn("property access failed",
		zap.String("property", prop.name),
		zap.String("type", prop.typeName),
		zap.Error(err),
	)
}

func (r *Registrator) report(prop *Property, err error) {
	r.errSink(prop, err)
}

// Register appends a property to the class layout.
func (r *Registrator) Register(typeName, name string, access Access, opts Options) (*Property, error) {
	fail := func(err error) (*Property, error) {
		return nil, &RegistrationError{Class: r.class, Property: name, Err: err}
	}

	if r.finished {
		return fail(ErrRegistrationFinished)
	}
	if name == "" || len(name) > 0xFFFF {
		return fail(ErrInvalidName)
	}
	if !access.Valid() {
		return fail(fmt.Errorf("%w: 0x%04X", ErrInvalidAccess, uint16(access)))
	}
	if len(typeName) > 0xFF {
		return fail(fmt.Errorf("%w: type name too long", ErrInvalidType))
	}
	typ, ok := r.types.Resolve(typeName)
	if !ok {
		return fail(fmt.Errorf("%w: %q", ErrInvalidType, typeName))
	}
	if typ.Handle {
		return fail(fmt.Errorf("%w: %q", ErrHandleTypeNotAllowed, typeName))
	}
	switch typ.Kind {
	case KindFixed, KindList:
		if typ.Size != 1 && typ.Size != 2 && typ.Size != 4 && typ.Size != 8 {
			return fail(fmt.Errorf("%w: %q is %d bytes", ErrSizeNotSupported, typeName, typ.Size))
		}
	case KindText:
	default:
		return fail(fmt.Errorf("%w: %q", ErrInvalidType, typeName))
	}
	if _, dup := r.byName[name]; dup {
		return fail(ErrDuplicateName)
	}
	enum := int32(uint32(xxhash.Sum64String(r.class + "::" + name)))
	if other, dup := r.byEnum[enum]; dup {
		return fail(fmt.Errorf("%w: enum value collides with %s", ErrDuplicateName, other.name))
	}

	if opts.Group == "" {
		opts.Group = r.defaults.Group
	}
	if opts.Min == nil {
		opts.Min = r.defaults.Min
	}
	if opts.Max == nil {
		opts.Max = r.defaults.Max
	}

	// Side-specific fields do not exist on the wrong side; public and
	// protected fields are read-only on the client unless modifiable.
	disableGet, disableSet := false, false
	if r.side == SideServer && access.IsClientOnly() {
		disableGet, disableSet = true, true
	}
	if r.side == SideClient && access.IsServerOnly() {
		disableGet, disableSet = true, true
	}
	if r.side == SideClient && (access.IsPublic() || access.IsProtected()) && !access.IsModifiable() {
		disableSet = true
	}
	if opts.Const {
		disableSet = true
	}

	prop := &Property{
		reg:            r,
		index:          len(r.props),
		name:           name,
		typeName:       typeName,
		typ:            typ,
		access:         access,
		group:          opts.Group,
		enumValue:      enum,
		readable:       !disableGet,
		writable:       !disableSet,
		isConst:        opts.Const,
		temporary:      opts.Temporary,
		podOffset:      -1,
		complexIndex:   -1,
		generateRandom: opts.GenerateRandom && typ.Kind == KindFixed,
	}

	if typ.Kind == KindFixed {
		if opts.Default != nil {
			prop.defaultValue = encodeNum(typ, *opts.Default)
		}
		if typ.Number != NumberBool {
			if opts.Min != nil {
				prop.minValue = encodeNum(typ, *opts.Min)
			}
			if opts.Max != nil {
				prop.maxValue = encodeNum(typ, *opts.Max)
			}
		}
	}

	if !disableGet && !access.IsVirtual() {
		if typ.Kind == KindFixed {
			prop.podOffset = r.space(access.Tier()).alloc(typ.Size)
			r.wholePodSize = r.publicSpace.size + r.protectedSpace.size + r.privateSpace.size
		} else {
			prop.complexIndex = r.complexCount
			r.complexCount++
			switch access.Tier() {
			case TierPublic:
				r.publicComplex = append(r.publicComplex, prop.index)
				r.sharedComplex = append(r.sharedComplex, prop.index)
			case TierProtected:
				r.protectedComplex = append(r.protectedComplex, prop.index)
				r.sharedComplex = append(r.sharedComplex, prop.index)
			}
		}
		if !prop.temporary {
			r.serializedCount++
		}
	}

	r.props = append(r.props, prop)
	r.byName[name] = prop
	r.byEnum[enum] = prop
	if prop.group != "" {
		r.groups[prop.group] = append(r.groups[prop.group], prop)
	}

	r.log.Debug("property registered",
		zap.String("property", name),
		zap.String("type", typeName),
		zap.Stringer("access", access),
		zap.Int("pod_offset", prop.podOffset),
		zap.Int("complex_index", prop.complexIndex),
	)
	return prop, nil
}

func (r *Registrator) space(t Tier) *podSpace {
	switch t {
	case TierPublic:
		return &r.publicSpace
	case TierProtected:
		return &r.protectedSpace
	default:
		return &r.privateSpace
	}
}

// FinishRegistration freezes the layout: protected offsets move behind the
// public tier, private offsets behind both, giving one arena laid out
// public|protected|private. Calling it twice panics.
func (r *Registrator) FinishRegistration() {
	if r.finished {
		panic(fmt.Sprintf("property: registration of %s finished twice", r.class))
	}
	r.finished = true

	pub, prot := r.publicSpace.size, r.protectedSpace.size
	for _, p := range r.props {
		if p.podOffset < 0 {
			continue
		}
		switch p.access.Tier() {
		case TierProtected:
			p.podOffset += pub
		case TierPrivate:
			p.podOffset += pub + prot
		}
	}
	r.fingerprint = r.computeFingerprint(false)
	r.sharedFingerprint = r.computeFingerprint(true)

	r.log.Info("property registration finished",
		zap.Int("properties", len(r.props)),
		zap.Int("pod_size", r.wholePodSize),
		zap.Int("complex", r.complexCount),
	)
}

// computeFingerprint hashes the layout. The shared variant covers only
// public and protected properties, which both sides lay out identically.
func (r *Registrator) computeFingerprint(shared bool) [32]byte {
	var buf []byte
	put := func(v int) {
		buf = binary.LittleEndian.AppendUint32(buf, uint32(int32(v)))
	}
	buf = append(buf, r.class...)
	put(r.publicSpace.size)
	put(r.protectedSpace.size)
	if !shared {
		put(r.privateSpace.size)
	}
	for _, p := range r.props {
		if shared && p.access.Tier() == TierPrivate {
			continue
		}
		buf = append(buf, p.name...)
		buf = append(buf, 0)
		buf = append(buf, p.typeName...)
		buf = append(buf, 0)
		put(int(p.access))
		put(p.podOffset)
		if !shared {
			put(p.complexIndex)
		}
	}
	return blake2b.Sum256(buf)
}

// Layout describes where one property lives, for diagnostics.
type Layout struct {
	Name         string `json:"name"`
	Type         string `json:"type"`
	Access       string `json:"access"`
	Tier         string `json:"tier"`
	PodOffset    int    `json:"pod_offset"`
	Size         int    `json:"size"`
	ComplexIndex int    `json:"complex_index"`
}

// Layouts returns the layout of every stored property ordered by arena
// offset, complex slots last.
func (r *Registrator) Layouts() []Layout {
	out := make([]Layout, 0, len(r.props))
	for _, p := range r.props {
		if !p.HasStorage() {
			continue
		}
		out = append(out, Layout{
			Name:         p.name,
			Type:         p.typeName,
			Access:       p.access.String(),
			Tier:         p.access.Tier().String(),
			PodOffset:    p.podOffset,
			Size:         p.typ.Size,
			ComplexIndex: p.complexIndex,
		})
	}
	sort.SliceStable(out, func(i, j int) bool {
		a, b := out[i], out[j]
		if (a.PodOffset < 0) != (b.PodOffset < 0) {
			return a.PodOffset >= 0
		}
		if a.PodOffset >= 0 {
			return a.PodOffset < b.PodOffset
		}
		return a.ComplexIndex < b.ComplexIndex
	})
	return out
}

// SetGetCallback binds the read handler of a virtual property.
func (r *Registrator) SetGetCallback(name string, token HandlerToken) error {
	prop := r.byName[name]
	if prop == nil {
		return fmt.Errorf("%w: %s::%s", ErrUnknownProperty, r.class, name)
	}
	if !prop.IsVirtual() {
		return fmt.Errorf("%w: get callback on non-virtual %s", ErrInvalidAccess, prop)
	}
	prop.getCallback = token
	return nil
}

// AddSetCallback appends a change handler to a property.
func (r *Registrator) AddSetCallback(name string, token HandlerToken) error {
	prop := r.byName[name]
	if prop == nil {
		return fmt.Errorf("%w: %s::%s", ErrUnknownProperty, r.class, name)
	}
	prop.setCallbacks = append(prop.setCallbacks, token)
	return nil
}

// SetNativeSetCallback installs the engine-internal change reaction.
func (r *Registrator) SetNativeSetCallback(name string, fn NativeSetFunc) error {
	prop := r.byName[name]
	if prop == nil {
		return fmt.Errorf("%w: %s::%s", ErrUnknownProperty, r.class, name)
	}
	prop.nativeSet = fn
	return nil
}

// SetNativeSendCallback installs the replication callback on every property.
func (r *Registrator) SetNativeSendCallback(fn NativeSendFunc) {
	for _, p := range r.props {
		p.nativeSend = fn
	}
}

func (r *Registrator) invoke(call Call) ([]byte, error) {
	if r.invoker == nil {
		return nil, ErrNoInvoker
	}
	return r.invoker.Invoke(call)
}

// shouldSend applies the replication gate: the server sends everything the
// client can see, the client only sends fields it may modify.
func (r *Registrator) shouldSend(p *Property) bool {
	if r.side == SideServer {
		return p.access&(PublicMask|ProtectedMask) != 0
	}
	return p.access&ModifiableMask != 0
}

func (r *Registrator) acquireArena() []byte {
	r.poolMu.Lock()
	var buf []byte
	if n := len(r.pool); n > 0 {
		buf = r.pool[n-1]
		r.pool = r.pool[:n-1]
	}
	r.poolMu.Unlock()

	if buf == nil {
		return make([]byte, r.wholePodSize)
	}
	clear(buf)
	return buf
}

func (r *Registrator) releaseArena(buf []byte) {
	if len(buf) != r.wholePodSize {
		return
	}
	r.poolMu.Lock()
	r.pool = append(r.pool, buf)
	r.poolMu.Unlock()
}

// PooledArenas returns the number of arenas waiting for reuse.
func (r *Registrator) PooledArenas() int {
	r.poolMu.Lock()
	defer r.poolMu.Unlock()
	return len(r.pool)
}
