package classfile

import (
	"encoding/binary"
	"fmt"
	"math"
)

// Marshal encodes the class to bytes.
// Format:
//
//	[magic:4] [version:2] [flags:2]
//	[name] [super] [source_file]
//	[const_count:2] [constants:...]
//	[field_count:2] [fields:...]
//	[method_count:2] [methods:...]
//
// Strings are a 2-byte length followed by UTF-8 bytes, except string
// constants which use a 4-byte length.
func Marshal(c *Class) ([]byte, error) {
	if c.Name == "" {
		return nil, fmt.Errorf("cannot marshal class without a name")
	}
	e := &encoder{buf: make([]byte, 0, 256)}
	e.buf = append(e.buf, Magic...)
	e.u16(FormatVersion)
	e.u16(uint16(c.Flags))
	e.str(c.Name)
	e.str(c.Super)
	e.str(c.SourceFile)

	e.count(len(c.Constants), "constants")
	for _, k := range c.Constants {
		e.buf = append(e.buf, byte(k.Kind))
		switch k.Kind {
		case ConstLong:
			e.u64(uint64(k.Long))
		case ConstDouble:
			e.u64(math.Float64bits(k.Double))
		case ConstString:
			e.u32(uint32(len(k.Str)))
			e.buf = append(e.buf, k.Str...)
		case ConstClass:
			e.str(k.Class)
		case ConstField, ConstMethod:
			e.str(k.Class)
			e.str(k.Name)
			e.str(k.Desc)
		default:
			return nil, fmt.Errorf("class %s: unknown constant kind %d", c.Name, k.Kind)
		}
	}

	e.count(len(c.Fields), "fields")
	for _, f := range c.Fields {
		e.str(f.Name)
		e.str(f.Desc)
		e.u16(uint16(f.Flags))
	}

	e.count(len(c.Methods), "methods")
	for _, m := range c.Methods {
		e.str(m.Name)
		e.str(m.Desc)
		e.u16(uint16(m.Flags))
		e.u16(m.MaxLocals)
		e.u32(uint32(len(m.Code)))
		e.buf = append(e.buf, m.Code...)
		e.count(len(m.Handlers), "handlers")
		for _, h := range m.Handlers {
			e.u32(h.Start)
			e.u32(h.End)
			e.u32(h.Target)
			e.str(h.CatchType)
		}
		e.count(len(m.Lines), "line entries")
		for _, l := range m.Lines {
			e.u32(l.Offset)
			e.u32(l.Line)
		}
	}

	if e.err != nil {
		return nil, fmt.Errorf("class %s: %w", c.Name, e.err)
	}
	return e.buf, nil
}

// Unmarshal decodes a class from bytes. The result is not verified; see
// Verify.
func Unmarshal(data []byte) (*Class, error) {
	if len(data) < 8 {
		return nil, fmt.Errorf("class data too short: need at least 8 bytes, got %d", len(data))
	}
	if string(data[0:4]) != string(Magic) {
		return nil, fmt.Errorf("invalid class magic: expected %q, got %q", Magic, data[0:4])
	}
	d := &decoder{data: data, pos: 4}
	version := d.u16()
	if version > FormatVersion {
		return nil, fmt.Errorf("class format version %d is newer than supported version %d", version, FormatVersion)
	}

	c := &Class{}
	c.Flags = ClassFlags(d.u16())
	c.Name = d.str()
	c.Super = d.str()
	c.SourceFile = d.str()

	n := int(d.u16())
	c.Constants = make([]Constant, 0, n)
	for i := 0; i < n && d.err == nil; i++ {
		k := Constant{Kind: ConstKind(d.u8())}
		switch k.Kind {
		case ConstLong:
			k.Long = int64(d.u64())
		case ConstDouble:
			k.Double = math.Float64frombits(d.u64())
		case ConstString:
			k.Str = string(d.bytes(int(d.u32())))
		case ConstClass:
			k.Class = d.str()
		case ConstField, ConstMethod:
			k.Class = d.str()
			k.Name = d.str()
			k.Desc = d.str()
		default:
			d.fail("unknown constant kind %d at index %d", k.Kind, i)
		}
		c.Constants = append(c.Constants, k)
	}

	n = int(d.u16())
	for i := 0; i < n && d.err == nil; i++ {
		c.Fields = append(c.Fields, Field{Name: d.str(), Desc: d.str(), Flags: FieldFlags(d.u16())})
	}

	n = int(d.u16())
	for i := 0; i < n && d.err == nil; i++ {
		m := &Method{}
		m.Name = d.str()
		m.Desc = d.str()
		m.Flags = MethodFlags(d.u16())
		m.MaxLocals = d.u16()
		m.Code = append([]byte(nil), d.bytes(int(d.u32()))...)
		hn := int(d.u16())
		for j := 0; j < hn && d.err == nil; j++ {
			m.Handlers = append(m.Handlers, Handler{Start: d.u32(), End: d.u32(), Target: d.u32(), CatchType: d.str()})
		}
		ln := int(d.u16())
		for j := 0; j < ln && d.err == nil; j++ {
			m.Lines = append(m.Lines, LineEntry{Offset: d.u32(), Line: d.u32()})
		}
		c.Methods = append(c.Methods, m)
	}

	if d.err != nil {
		return nil, d.err
	}
	if d.pos != len(data) {
		return nil, fmt.Errorf("class %s: %d trailing bytes", c.Name, len(data)-d.pos)
	}
	return c, nil
}

type encoder struct {
	buf []byte
	err error
}

func (e *encoder) u16(v uint16) { e.buf = binary.BigEndian.AppendUint16(e.buf, v) }
func (e *encoder) u32(v uint32) { e.buf = binary.BigEndian.AppendUint32(e.buf, v) }
func (e *encoder) u64(v uint64) { e.buf = binary.BigEndian.AppendUint64(e.buf, v) }

func (e *encoder) str(s string) {
	if len(s) > math.MaxUint16 && e.err == nil {
		e.err = fmt.Errorf("string of %d bytes exceeds format limit", len(s))
	}
	e.u16(uint16(len(s)))
	e.buf = append(e.buf, s...)
}

func (e *encoder) count(n int, what string) {
	if n > math.MaxUint16 && e.err == nil {
		e.err = fmt.Errorf("too many %s: %d", what, n)
	}
	e.u16(uint16(n))
}

// decoder reads big-endian values and remembers the first error.
type decoder struct {
	data []byte
	pos  int
	err  error
}

func (d *decoder) fail(format string, args ...any) {
	if d.err == nil {
		d.err = fmt.Errorf(format, args...)
	}
}

func (d *decoder) need(n int) bool {
	if d.err != nil {
		return false
	}
	if n < 0 || d.pos+n > len(d.data) {
		d.fail("unexpected end of class data: need %d bytes at pos %d", n, d.pos)
		return false
	}
	return true
}

func (d *decoder) u8() byte {
	if !d.need(1) {
		return 0
	}
	v := d.data[d.pos]
	d.pos++
	return v
}

func (d *decoder) u16() uint16 {
	if !d.need(2) {
		return 0
	}
	v := binary.BigEndian.Uint16(d.data[d.pos:])
	d.pos += 2
	return v
}

func (d *decoder) u32() uint32 {
	if !d.need(4) {
		return 0
	}
	v := binary.BigEndian.Uint32(d.data[d.pos:])
	d.pos += 4
	return v
}

func (d *decoder) u64() uint64 {
	if !d.need(8) {
		return 0
	}
	v := binary.BigEndian.Uint64(d.data[d.pos:])
	d.pos += 8
	return v
}

func (d *decoder) bytes(n int) []byte {
	if !d.need(n) {
		return nil
	}
	b := d.data[d.pos : d.pos+n]
	d.pos += n
	return b
}

func (d *decoder) str() string {
	return string(d.bytes(int(d.u16())))
}
