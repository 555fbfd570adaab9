package property

import (
	"encoding/binary"
	"fmt"
)

// Fixed is the set of Go types that map onto fixed property values. Plain
// int and uint are excluded because their size depends on the platform.
type Fixed interface {
	~int8 | ~int16 | ~int32 | ~int64 |
		~uint8 | ~uint16 | ~uint32 | ~uint64 |
		~float32 | ~float64 | ~bool
}

func checkFixed[T Fixed](prop *Property) error {
	var zero T
	if !prop.IsFixed() {
		return fmt.Errorf("%w: %s is %s", ErrNotFixed, prop, prop.typ.Kind)
	}
	if n := binary.Size(zero); n != prop.typ.Size {
		return fmt.Errorf("%w: %s holds %d bytes, %T has %d", ErrInvalidType, prop, prop.typ.Size, zero, n)
	}
	return nil
}

func checkList[T Fixed](prop *Property) error {
	var zero T
	if !prop.IsList() {
		return fmt.Errorf("%w: %s is %s", ErrInvalidType, prop, prop.typ.Kind)
	}
	if n := binary.Size(zero); n != prop.typ.Size {
		return fmt.Errorf("%w: %s elements are %d bytes, %T has %d", ErrInvalidType, prop, prop.typ.Size, zero, n)
	}
	return nil
}

func checkWrite(p *Properties, prop *Property) error {
	p.mustOwn(prop)
	if !prop.writable {
		return fmt.Errorf("%w: %s", ErrNotWritable, prop)
	}
	return nil
}

// Get reads a fixed property. Errors are reported to the registrator sink
// and read as the zero value.
func Get[T Fixed](p *Properties, prop *Property) T {
	var v T
	p.mustOwn(prop)
	if err := checkFixed[T](prop); err != nil {
		p.reg.report(prop, err)
		return v
	}
	if _, err := binary.Decode(p.getValue(prop), binary.LittleEndian, &v); err != nil {
		p.reg.report(prop, err)
	}
	return v
}

// Set writes a fixed property through the full set path.
func Set[T Fixed](p *Properties, prop *Property, v T) error {
	if err := checkWrite(p, prop); err != nil {
		return err
	}
	if err := checkFixed[T](prop); err != nil {
		return err
	}
	data, err := binary.Append(nil, binary.LittleEndian, v)
	if err != nil {
		return err
	}
	return p.setValue(prop, data)
}

// GetText reads a text property.
func GetText(p *Properties, prop *Property) string {
	p.mustOwn(prop)
	if !prop.IsText() {
		p.reg.report(prop, fmt.Errorf("%w: %s is %s", ErrInvalidType, prop, prop.typ.Kind))
		return ""
	}
	return string(p.getValue(prop))
}

// SetText writes a text property.
func SetText(p *Properties, prop *Property, s string) error {
	if err := checkWrite(p, prop); err != nil {
		return err
	}
	if !prop.IsText() {
		return fmt.Errorf("%w: %s is %s", ErrInvalidType, prop, prop.typ.Kind)
	}
	return p.setValue(prop, []byte(s))
}

// GetList reads a list property into a new slice.
func GetList[T Fixed](p *Properties, prop *Property) []T {
	p.mustOwn(prop)
	if err := checkList[T](prop); err != nil {
		p.reg.report(prop, err)
		return nil
	}
	data := p.getValue(prop)
	if len(data) == 0 {
		return nil
	}
	out := make([]T, len(data)/prop.typ.Size)
	if _, err := binary.Decode(data, binary.LittleEndian, out); err != nil {
		p.reg.report(prop, err)
		return nil
	}
	return out
}

// SetList writes a list property.
func SetList[T Fixed](p *Properties, prop *Property, vs []T) error {
	if err := checkWrite(p, prop); err != nil {
		return err
	}
	if err := checkList[T](prop); err != nil {
		return err
	}
	var data []byte
	if len(vs) > 0 {
		var err error
		if data, err = binary.Append(nil, binary.LittleEndian, vs); err != nil {
			return err
		}
	}
	return p.setValue(prop, data)
}

// GetData returns an owned copy of the raw value, running the getter of
// virtual properties.
func (p *Properties) GetData(prop *Property) []byte {
	p.mustOwn(prop)
	return p.getValue(prop)
}
