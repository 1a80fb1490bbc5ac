package vm

import (
	"fmt"
	"math"
	"strconv"
	"strings"
	"unicode/utf16"
)

// Value is any value the VM manipulates:
//
//	Int     int32
//	Long    int64
//	Double  float64
//	Boolean bool
//	Char    uint16
//	String  *String
//	objects *Object
//	null    nil
type Value any

// String is an immutable sequence of UTF-16 code units. Length and indexing
// count code units, which is the contract the language relies on when it
// iterates over text as a stream of Char.
type String struct {
	units []uint16
}

// NewString encodes s as UTF-16.
func NewString(s string) *String {
	return &String{units: utf16.Encode([]rune(s))}
}

// NewStringUnits wraps code units directly.
func NewStringUnits(units []uint16) *String {
	return &String{units: units}
}

// Len returns the number of code units.
func (s *String) Len() int { return len(s.units) }

// At returns the code unit at i.
func (s *String) At(i int) uint16 { return s.units[i] }

// Units returns a copy of the code units.
func (s *String) Units() []uint16 { return append([]uint16(nil), s.units...) }

// String decodes the code units back to Go text.
func (s *String) String() string {
	if s == nil {
		return "null"
	}
	return string(utf16.Decode(s.units))
}

// Equal compares contents.
func (s *String) Equal(o *String) bool {
	if s == nil || o == nil {
		return s == o
	}
	if len(s.units) != len(o.units) {
		return false
	}
	for i := range s.units {
		if s.units[i] != o.units[i] {
			return false
		}
	}
	return true
}

func concat(a, b *String) *String {
	units := make([]uint16, 0, a.Len()+b.Len())
	units = append(units, a.units...)
	units = append(units, b.units...)
	return &String{units: units}
}

// Object is an instance of a linked class.
type Object struct {
	Class  *Class
	Fields []Value
	id     uint64
}

// Field returns the value of a named field.
func (o *Object) Field(name string) (Value, bool) {
	idx, ok := o.Class.fieldIndex[name]
	if !ok {
		return nil, false
	}
	return o.Fields[idx], true
}

// ID returns the identity hash of the object.
func (o *Object) ID() uint64 { return o.id }

func (o *Object) String() string {
	return fmt.Sprintf("%s@%x", o.Class.Name, o.id)
}

// zeroValue returns the default value of a field descriptor.
func zeroValue(desc string) Value {
	switch desc {
	case "I":
		return int32(0)
	case "J":
		return int64(0)
	case "D":
		return float64(0)
	case "Z":
		return false
	case "C":
		return uint16(0)
	}
	return nil
}

// FormatDouble renders a Double the way the language prints it: integral
// values keep a trailing ".0".
func FormatDouble(f float64) string {
	switch {
	case math.IsNaN(f):
		return "NaN"
	case math.IsInf(f, 1):
		return "Infinity"
	case math.IsInf(f, -1):
		return "-Infinity"
	}
	s := strconv.FormatFloat(f, 'g', -1, 64)
	if !strings.ContainsAny(s, ".eEn") {
		s += ".0"
	}
	return s
}

// typeName describes a value for error messages.
func typeName(v Value) string {
	switch v := v.(type) {
	case nil:
		return "null"
	case int32:
		return "Int"
	case int64:
		return "Long"
	case float64:
		return "Double"
	case bool:
		return "Boolean"
	case uint16:
		return "Char"
	case *String:
		return "String"
	case *Object:
		return v.Class.Name
	}
	return fmt.Sprintf("%T", v)
}
