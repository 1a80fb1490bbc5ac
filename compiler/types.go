package compiler

import (
	"strings"

	"github.com/chazu/tern/classfile"
)

// Type is the static type of an expression, represented by its descriptor.
// A few pseudo types exist only during checking.
type Type string

const (
	TypeInt    Type = classfile.DescInt
	TypeLong   Type = classfile.DescLong
	TypeDouble Type = classfile.DescDouble
	TypeBool   Type = classfile.DescBool
	TypeChar   Type = classfile.DescChar
	TypeUnit   Type = classfile.DescVoid

	// TypeNull is the type of the null literal.
	TypeNull Type = "null"
	// TypeNothing is the type of code that never completes normally.
	TypeNothing Type = "nothing"
	// typeInvalid marks an expression that already produced an error.
	typeInvalid Type = ""
	// typeInferred is the result of a function whose expression body has
	// not been checked yet.
	typeInferred Type = "<inferred>"
)

var (
	TypeString = Type(classfile.DescString)
	TypeAny    = Type(classfile.ObjectDesc(classfile.RootClass))
)

// ClassType returns the type of instances of a class.
func ClassType(name string) Type { return Type(classfile.ObjectDesc(name)) }

// builtinTypes maps the names usable without import to types.
var builtinTypes = map[string]Type{
	"Int":     TypeInt,
	"Long":    TypeLong,
	"Double":  TypeDouble,
	"Boolean": TypeBool,
	"Char":    TypeChar,
	"Unit":    TypeUnit,
}

// known reports whether t is a resolved type.
func known(t Type) bool { return t != typeInvalid && t != typeInferred }

// IsRef reports whether values of t are references.
func (t Type) IsRef() bool { return strings.HasPrefix(string(t), "L") }

// IsPrimitive reports whether t is one of the value types.
func (t Type) IsPrimitive() bool {
	switch t {
	case TypeInt, TypeLong, TypeDouble, TypeBool, TypeChar:
		return true
	}
	return false
}

// IsNumeric reports whether t supports arithmetic.
func (t Type) IsNumeric() bool {
	return t == TypeInt || t == TypeLong || t == TypeDouble
}

// HasValue reports whether an expression of type t leaves a value.
func (t Type) HasValue() bool {
	return t != TypeUnit && t != TypeNothing && t != typeInvalid
}

// ClassName returns the class of a reference type.
func (t Type) ClassName() string {
	name, _ := classfile.ClassOfDesc(string(t))
	return name
}

// Kind returns the instruction kind for values of t.
func (t Type) Kind() classfile.Kind {
	return classfile.KindOf(string(t))
}

func (t Type) String() string {
	switch t {
	case TypeNull:
		return "Nothing?"
	case TypeNothing:
		return "Nothing"
	case typeInvalid:
		return "<error>"
	}
	if t.IsRef() {
		name := t.ClassName()
		if classfile.PackageOf(name) == "tern.lang" {
			return classfile.SimpleName(name)
		}
		return name
	}
	return classfile.TypeName(string(t))
}

// numericJoin returns the promoted type of an arithmetic operation on a
// and b.
func numericJoin(a, b Type) Type {
	switch {
	case a == TypeDouble || b == TypeDouble:
		return TypeDouble
	case a == TypeLong || b == TypeLong:
		return TypeLong
	}
	return TypeInt
}
