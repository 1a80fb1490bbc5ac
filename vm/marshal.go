package vm

import (
	"fmt"
	"math"
	"unicode/utf16"

	"github.com/chazu/tern/classfile"
)

// Marshal converts a Go value to a VM value for a parameter of type desc.
//
//	I    int32, int (range checked)
//	J    int64, int, int32
//	D    float64, float32, int
//	Z    bool
//	C    uint16, rune in the BMP, one-character string
//	Ltern/lang/String;  string, nil
//	L... *Object, nil
func Marshal(desc string, v any) (Value, error) {
	switch desc {
	case classfile.DescInt:
		switch x := v.(type) {
		case int32:
			return x, nil
		case int:
			if x < math.MinInt32 || x > math.MaxInt32 {
				return nil, fmt.Errorf("%d overflows Int", x)
			}
			return int32(x), nil
		}
	case classfile.DescLong:
		switch x := v.(type) {
		case int64:
			return x, nil
		case int:
			return int64(x), nil
		case int32:
			return int64(x), nil
		}
	case classfile.DescDouble:
		switch x := v.(type) {
		case float64:
			return x, nil
		case float32:
			return float64(x), nil
		case int:
			return float64(x), nil
		}
	case classfile.DescBool:
		if x, ok := v.(bool); ok {
			return x, nil
		}
	case classfile.DescChar:
		switch x := v.(type) {
		case uint16:
			return x, nil
		case rune:
			if x < 0 || x > 0xFFFF || utf16.IsSurrogate(x) {
				return nil, fmt.Errorf("rune %U is not a single Char", x)
			}
			return uint16(x), nil
		case string:
			units := utf16.Encode([]rune(x))
			if len(units) != 1 {
				return nil, fmt.Errorf("string %q is not a single Char", x)
			}
			return units[0], nil
		}
	case classfile.DescString:
		switch x := v.(type) {
		case nil:
			return nil, nil
		case string:
			return NewString(x), nil
		case *String:
			return x, nil
		}
	default:
		if _, ok := classfile.ClassOfDesc(desc); !ok {
			return nil, fmt.Errorf("invalid parameter descriptor %q", desc)
		}
		switch x := v.(type) {
		case nil:
			return nil, nil
		case *Object:
			return x, nil
		}
	}
	return nil, fmt.Errorf("cannot pass %T as %s", v, classfile.TypeName(desc))
}

// Unmarshal converts a VM value back to Go: primitives keep their Go types,
// strings become string, Unit and null become nil, objects stay *Object.
func Unmarshal(v Value) any {
	switch x := v.(type) {
	case *String:
		if x == nil {
			return nil
		}
		return x.String()
	case *Object:
		if x == nil {
			return nil
		}
		return x
	}
	return v
}
