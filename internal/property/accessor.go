package property

import (
	"bytes"
	"fmt"
)

// getValue returns an owned copy of the current value. Failures are
// reported to the registrator sink and read as the zero value.
func (p *Properties) getValue(prop *Property) []byte {
	if !prop.readable {
		p.reg.report(prop, ErrNotReadable)
		return prop.zeroValue()
	}
	if !prop.IsVirtual() {
		if prop.podOffset >= 0 {
			return clone(p.pod[prop.podOffset : prop.podOffset+prop.typ.Size])
		}
		return clone(p.complex[prop.complexIndex])
	}

	if prop.getCallback == 0 {
		p.reg.report(prop, ErrGetCallbackMissing)
		return prop.zeroValue()
	}
	if p.inGetter == nil {
		p.inGetter = make([]bool, len(p.reg.props))
	}
	if p.inGetter[prop.index] {
		p.reg.report(prop, ErrRecursiveCallback)
		return prop.zeroValue()
	}

	out, err := p.invokeGetter(prop)
	if err != nil {
		p.reg.report(prop, fmt.Errorf("%w: %w", ErrHandlerFailed, err))
		return prop.zeroValue()
	}
	if !prop.ValidRawSize(len(out)) {
		p.reg.report(prop, fmt.Errorf("%w: handler returned %d bytes", ErrHandlerFailed, len(out)))
		return prop.zeroValue()
	}
	return clone(out)
}

func (p *Properties) invokeGetter(prop *Property) ([]byte, error) {
	p.inGetter[prop.index] = true
	defer func() { p.inGetter[prop.index] = false }()
	return p.reg.invoke(Call{Kind: CallGet, Token: prop.getCallback, Props: p, Property: prop})
}

// setValue runs the full write path: clamp, no-op check, store, callbacks.
func (p *Properties) setValue(prop *Property, data []byte) error {
	if prop.IsVirtual() {
		return p.setVirtual(prop, data)
	}
	if prop.podOffset >= 0 {
		return p.setFixed(prop, data, false)
	}
	if prop.complexIndex < 0 {
		return fmt.Errorf("%w: %s has no storage", ErrNotWritable, prop)
	}

	cur := p.complex[prop.complexIndex]
	if bytes.Equal(cur, data) {
		return nil
	}
	// The old buffer is replaced, not overwritten, so it can serve as the
	// previous value for the callbacks.
	p.complex[prop.complexIndex] = clone(data)
	p.afterChange(prop, cur)
	return nil
}

func (p *Properties) setFixed(prop *Property, data []byte, clamped bool) error {
	if !clamped {
		if c := prop.clamp(data); c != nil {
			return p.setFixed(prop, c, true)
		}
	}

	field := p.pod[prop.podOffset : prop.podOffset+prop.typ.Size]
	if bytes.Equal(field, data) {
		return nil
	}
	old := clone(field)
	copy(field, data)
	p.afterChange(prop, old)
	return nil
}

// setVirtual hands the value to the set callbacks; there is nothing to
// store and nothing to replicate.
func (p *Properties) setVirtual(prop *Property, data []byte) error {
	if !prop.hasSetCallbacks() {
		return fmt.Errorf("%w: %s", ErrSetCallbackMissing, prop)
	}
	for _, tok := range prop.setCallbacks {
		call := Call{Kind: CallSet, Token: tok, Props: p, Property: prop, NewValue: clone(data)}
		if _, err := p.reg.invoke(call); err != nil {
			return fmt.Errorf("%w: %s: %w", ErrHandlerFailed, prop, err)
		}
	}
	if prop.nativeSet != nil {
		prop.nativeSet(p, prop, clone(data), nil)
	}
	return nil
}

// afterChange fires the callback chain for a genuine change: script set
// callbacks, the native set callback, then the send callback.
func (p *Properties) afterChange(prop *Property, old []byte) {
	for _, tok := range prop.setCallbacks {
		call := Call{
			Kind:     CallSet,
			Token:    tok,
			Props:    p,
			Property: prop,
			OldValue: old,
			NewValue: p.current(prop),
		}
		if _, err := p.reg.invoke(call); err != nil {
			p.reg.report(prop, fmt.Errorf("%w: %w", ErrHandlerFailed, err))
			break
		}
	}

	if prop.nativeSet != nil {
		prop.nativeSet(p, prop, p.current(prop), old)
	}

	if prop.nativeSend == nil || p.sendIgnore == prop || !p.reg.shouldSend(prop) {
		return
	}
	// A native callback may have put the old value back.
	if prop.nativeSet != nil && prop.podOffset >= 0 && bytes.Equal(p.RawData(prop), old) {
		return
	}
	prop.nativeSend(p, prop)
}

func (p *Properties) current(prop *Property) []byte {
	if prop.podOffset >= 0 {
		return clone(p.pod[prop.podOffset : prop.podOffset+prop.typ.Size])
	}
	return clone(p.complex[prop.complexIndex])
}
