package property

import (
	"fmt"
	"strings"
)

// Kind is the storage kind of a property value.
type Kind uint8

const (
	KindFixed Kind = iota + 1 // inline in the fixed arena
	KindText                  // variable length UTF-8 text
	KindList                  // variable length list of fixed elements
)

func (k Kind) String() string {
	switch k {
	case KindFixed:
		return "fixed"
	case KindText:
		return "text"
	case KindList:
		return "list"
	default:
		return fmt.Sprintf("Kind(%d)", int(k))
	}
}

// Number classifies the bytes of a fixed value (or list element) for
// clamping, integer access and text conversion.
type Number uint8

const (
	NumberInt Number = iota
	NumberUint
	NumberFloat
	NumberBool
)

// TypeInfo is the resolved classification of a property type name.
type TypeInfo struct {
	Name   string
	Kind   Kind
	Size   int // value size for fixed, element size for lists
	Number Number
	Handle bool // object reference; never storable
	Enum   bool
}

// TypeResolver classifies type names at registration time.
type TypeResolver interface {
	Resolve(typeName string) (TypeInfo, bool)
}

// TypeTable is the built-in TypeResolver. It knows the primitive types,
// "string", lists written as "array<T>" or "T[]", registered enums and
// registered handle types. Any name ending in "@" is a handle.
type TypeTable struct {
	types   map[string]TypeInfo
	handles map[string]bool
}

func NewTypeTable() *TypeTable {
	t := &TypeTable{
		types:   make(map[string]TypeInfo, 24),
		handles: make(map[string]bool),
	}
	for _, p := range []struct {
		name string
		size int
		num  Number
	}{
		{"int8", 1, NumberInt},
		{"int16", 2, NumberInt},
		{"int32", 4, NumberInt},
		{"int", 4, NumberInt},
		{"int64", 8, NumberInt},
		{"uint8", 1, NumberUint},
		{"uint16", 2, NumberUint},
		{"uint32", 4, NumberUint},
		{"uint", 4, NumberUint},
		{"uint64", 8, NumberUint},
		{"hash", 4, NumberUint},
		{"float", 4, NumberFloat},
		{"double", 8, NumberFloat},
		{"bool", 1, NumberBool},
	} {
		t.types[p.name] = TypeInfo{Name: p.name, Kind: KindFixed, Size: p.size, Number: p.num}
	}
	t.types["string"] = TypeInfo{Name: "string", Kind: KindText}
	return t
}

// AddEnum registers a 4-byte enum type.
func (t *TypeTable) AddEnum(name string) {
	t.types[name] = TypeInfo{Name: name, Kind: KindFixed, Size: 4, Number: NumberInt, Enum: true}
}

// AddFixed registers a fixed type of an arbitrary size. Sizes other than
// 1, 2, 4 and 8 resolve but are refused by Register.
func (t *TypeTable) AddFixed(name string, size int, num Number) {
	t.types[name] = TypeInfo{Name: name, Kind: KindFixed, Size: size, Number: num}
}

// AddHandle registers an entity reference type.
func (t *TypeTable) AddHandle(name string) {
	t.handles[name] = true
}

func (t *TypeTable) Resolve(typeName string) (TypeInfo, bool) {
	name := strings.TrimSpace(typeName)
	if name == "" {
		return TypeInfo{}, false
	}
	if strings.HasSuffix(name, "@") || t.handles[name] {
		return TypeInfo{Name: name, Handle: true}, true
	}
	if elem, ok := listElement(name); ok {
		et, ok := t.Resolve(elem)
		if !ok {
			return TypeInfo{}, false
		}
		if et.Handle {
			return TypeInfo{Name: name, Handle: true}, true
		}
		if et.Kind != KindFixed {
			return TypeInfo{}, false
		}
		return TypeInfo{Name: name, Kind: KindList, Size: et.Size, Number: et.Number, Enum: et.Enum}, true
	}
	ti, ok := t.types[name]
	if !ok {
		return TypeInfo{}, false
	}
	return ti, true
}

func listElement(name string) (string, bool) {
	if strings.HasPrefix(name, "array<") && strings.HasSuffix(name, ">") {
		return name[len("array<") : len(name)-1], true
	}
	if strings.HasSuffix(name, "[]") {
		return name[:len(name)-2], true
	}
	return "", false
}
