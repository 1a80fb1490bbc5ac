package classfile

import (
	"fmt"
	"strings"
)

// Primitive type descriptors.
const (
	DescInt    = "I"
	DescLong   = "J"
	DescDouble = "D"
	DescBool   = "Z"
	DescChar   = "C"
	DescVoid   = "V"
)

// StringClass is the host string class.
const StringClass = "tern.lang.String"

// DescString is the descriptor of StringClass.
var DescString = ObjectDesc(StringClass)

// ObjectDesc returns the descriptor of a reference type: tern.lang.String
// becomes Ltern/lang/String;.
func ObjectDesc(class string) string {
	return "L" + strings.ReplaceAll(class, ".", "/") + ";"
}

// ClassOfDesc returns the class named by a reference descriptor.
func ClassOfDesc(desc string) (string, bool) {
	if len(desc) < 3 || desc[0] != 'L' || desc[len(desc)-1] != ';' {
		return "", false
	}
	return strings.ReplaceAll(desc[1:len(desc)-1], "/", "."), true
}

// KindOf returns the instruction kind for values of a field descriptor.
func KindOf(desc string) Kind {
	switch desc {
	case DescInt:
		return KindInt
	case DescLong:
		return KindLong
	case DescDouble:
		return KindDouble
	case DescBool:
		return KindBool
	case DescChar:
		return KindChar
	case DescString:
		return KindString
	}
	return KindRef
}

// MethodDesc builds a method descriptor from parameter and return descriptors.
func MethodDesc(ret string, params ...string) string {
	return "(" + strings.Join(params, "") + ")" + ret
}

// ParseMethodDesc splits a method descriptor into parameter and return
// descriptors.
func ParseMethodDesc(desc string) (params []string, ret string, err error) {
	if !strings.HasPrefix(desc, "(") {
		return nil, "", fmt.Errorf("malformed method descriptor %q: missing '('", desc)
	}
	pos := 1
	for pos < len(desc) && desc[pos] != ')' {
		d, n, err := nextFieldDesc(desc[pos:])
		if err != nil {
			return nil, "", fmt.Errorf("malformed method descriptor %q: %w", desc, err)
		}
		params = append(params, d)
		pos += n
	}
	if pos >= len(desc) {
		return nil, "", fmt.Errorf("malformed method descriptor %q: missing ')'", desc)
	}
	pos++
	rest := desc[pos:]
	if rest == DescVoid {
		return params, rest, nil
	}
	d, n, err := nextFieldDesc(rest)
	if err != nil || n != len(rest) {
		return nil, "", fmt.Errorf("malformed method descriptor %q: bad return type", desc)
	}
	return params, d, nil
}

// ValidFieldDesc reports whether desc is a single well-formed field descriptor.
func ValidFieldDesc(desc string) bool {
	_, n, err := nextFieldDesc(desc)
	return err == nil && n == len(desc)
}

func nextFieldDesc(s string) (string, int, error) {
	if s == "" {
		return "", 0, fmt.Errorf("unexpected end of descriptor")
	}
	switch s[0] {
	case 'I', 'J', 'D', 'Z', 'C':
		return s[:1], 1, nil
	case 'L':
		end := strings.IndexByte(s, ';')
		if end < 2 {
			return "", 0, fmt.Errorf("unterminated class descriptor %q", s)
		}
		return s[:end+1], end + 1, nil
	}
	return "", 0, fmt.Errorf("unknown descriptor character %q", s[0])
}

// TypeName renders a descriptor as a source-level type name.
func TypeName(desc string) string {
	switch desc {
	case DescInt:
		return "Int"
	case DescLong:
		return "Long"
	case DescDouble:
		return "Double"
	case DescBool:
		return "Boolean"
	case DescChar:
		return "Char"
	case DescVoid:
		return "Unit"
	}
	if class, ok := ClassOfDesc(desc); ok {
		return class
	}
	return desc
}

// ArgCount returns the number of parameters of a method descriptor.
func ArgCount(desc string) (int, error) {
	params, _, err := ParseMethodDesc(desc)
	return len(params), err
}
