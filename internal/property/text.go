package property

import (
	"bytes"
	"errors"
	"fmt"
	"sort"
	"strconv"
	"strings"
)

// SaveToText renders the stored, non-temporary properties as text keyed by
// property name. Zero values are skipped, and so are values equal to base
// when base is non-nil.
func (p *Properties) SaveToText(base *Properties) map[string]string {
	if base != nil && base.reg != p.reg {
		base = nil
	}
	out := make(map[string]string)
	for _, prop := range p.reg.props {
		if !prop.HasStorage() || prop.temporary {
			continue
		}
		data := p.RawData(prop)
		if isZero(data) {
			continue
		}
		if base != nil && bytes.Equal(data, base.RawData(prop)) {
			continue
		}
		out[prop.name] = FormatValue(prop, data)
	}
	return out
}

// LoadFromText applies values written by SaveToText without running
// callbacks. Keys starting with "$" are skipped. Unknown keys and bad values
// are collected into the returned error while the rest still loads.
func (p *Properties) LoadFromText(values map[string]string) error {
	keys := make([]string, 0, len(values))
	for k := range values {
		if !strings.HasPrefix(k, "$") {
			keys = append(keys, k)
		}
	}
	sort.Strings(keys)

	var errs []error
	for _, k := range keys {
		prop := p.reg.Find(k)
		if prop == nil {
			errs = append(errs, fmt.Errorf("%w: %s::%s", ErrUnknownProperty, p.reg.class, k))
			continue
		}
		if !prop.HasStorage() {
			errs = append(errs, fmt.Errorf("%w: %s has no storage", ErrNotWritable, prop))
			continue
		}
		data, err := parseValue(prop, values[k])
		if err != nil {
			errs = append(errs, fmt.Errorf("%s: %w", prop, err))
			continue
		}
		p.storeRaw(prop, data)
	}
	return errors.Join(errs...)
}

func isZero(data []byte) bool {
	for _, b := range data {
		if b != 0 {
			return false
		}
	}
	return true
}

// FormatValue renders raw property bytes in the SaveToText form.
func FormatValue(prop *Property, data []byte) string {
	switch prop.typ.Kind {
	case KindText:
		return quoteText(string(data))
	case KindList:
		n := prop.typ.Size
		parts := make([]string, 0, len(data)/n)
		for off := 0; off+n <= len(data); off += n {
			parts = append(parts, formatFixed(prop.typ, data[off:off+n]))
		}
		return strings.Join(parts, " ")
	default:
		return formatFixed(prop.typ, data)
	}
}

func formatFixed(t TypeInfo, data []byte) string {
	switch t.Number {
	case NumberFloat:
		return strconv.FormatFloat(readFloat(data), 'g', -1, 8*len(data))
	case NumberBool:
		return strconv.FormatBool(data[0] != 0)
	case NumberUint:
		return strconv.FormatUint(readUint(data), 10)
	default:
		return strconv.FormatInt(readInt(data), 10)
	}
}

func parseValue(prop *Property, s string) ([]byte, error) {
	switch prop.typ.Kind {
	case KindText:
		return []byte(unquoteText(s)), nil
	case KindList:
		fields := strings.Fields(s)
		out := make([]byte, 0, len(fields)*prop.typ.Size)
		for _, f := range fields {
			v, err := parseFixed(prop.typ, f)
			if err != nil {
				return nil, err
			}
			out = append(out, v...)
		}
		return out, nil
	default:
		return parseFixed(prop.typ, strings.TrimSpace(s))
	}
}

func parseFixed(t TypeInfo, s string) ([]byte, error) {
	buf := make([]byte, t.Size)
	bits := 8 * t.Size
	switch t.Number {
	case NumberFloat:
		v, err := strconv.ParseFloat(s, bits)
		if err != nil {
			return nil, err
		}
		putFloat(buf, v)
	case NumberBool:
		v, err := strconv.ParseBool(s)
		if err != nil {
			return nil, err
		}
		if v {
			buf[0] = 1
		}
	case NumberUint:
		v, err := strconv.ParseUint(s, 0, bits)
		if err != nil {
			return nil, err
		}
		putUint(buf, v)
	default:
		v, err := strconv.ParseInt(s, 0, bits)
		if err != nil {
			return nil, err
		}
		putUint(buf, uint64(v))
	}
	return buf, nil
}

var (
	textEscaper   = strings.NewReplacer(`\`, `\\`, "\n", `\n`, "{", `\{`, "}", `\}`)
	textUnescaper = strings.NewReplacer(`\\`, `\`, `\n`, "\n", `\{`, "{", `\}`, "}")
)

// quoteText escapes s and wraps it in braces when it has leading or
// trailing blanks.
func quoteText(s string) string {
	e := textEscaper.Replace(s)
	if s != strings.TrimSpace(s) {
		return "{" + e + "}"
	}
	return e
}

// An escaped value never starts with a raw brace, so one marks wrapping.
func unquoteText(s string) string {
	if len(s) >= 2 && s[0] == '{' && s[len(s)-1] == '}' {
		s = s[1 : len(s)-1]
	}
	return textUnescaper.Replace(s)
}
