package compiler

import "github.com/chazu/tern/classfile"

// arith describes how an arithmetic operator applies to its operand types.
type arith struct {
	result  Type
	operand Type // both operands are converted to this before the instruction
	concat  bool // string concatenation
}

// arithOp types x op y for + - * / %.
func arithOp(op TokenType, x, y Type) (arith, bool) {
	if op == TokenPlus && x == TypeString {
		return arith{result: TypeString, concat: true}, y.HasValue() || y == TypeNull
	}
	switch {
	case x.IsNumeric() && y.IsNumeric():
		t := numericJoin(x, y)
		return arith{result: t, operand: t}, true
	case x == TypeChar && y == TypeInt && (op == TokenPlus || op == TokenMinus):
		return arith{result: TypeChar, operand: TypeInt}, true
	case x == TypeChar && y == TypeChar && op == TokenMinus:
		return arith{result: TypeInt, operand: TypeInt}, true
	}
	return arith{}, false
}

// compareOp types x op y for == != < <= > >= and returns the type both
// operands are converted to plus the instruction kind.
func compareOp(op TokenType, x, y Type) (Type, classfile.Kind, bool) {
	switch {
	case x.IsNumeric() && y.IsNumeric():
		t := numericJoin(x, y)
		return t, t.Kind(), true
	case x == TypeChar && y == TypeChar:
		return TypeChar, classfile.KindChar, true
	}
	if op != TokenEq && op != TokenNotEq {
		return "", 0, false
	}
	isStr := func(t Type) bool { return t == TypeString || t == TypeNull }
	isRef := func(t Type) bool { return t.IsRef() || t == TypeNull }
	switch {
	case x == TypeBool && y == TypeBool:
		return TypeBool, classfile.KindBool, true
	case isStr(x) && isStr(y) && !(x == TypeNull && y == TypeNull):
		return TypeString, classfile.KindString, true
	case isRef(x) && isRef(y):
		return TypeAny, classfile.KindRef, true
	}
	return "", 0, false
}

// compoundOps maps compound assignment operators to their binary operator.
var compoundOps = map[TokenType]TokenType{
	TokenPlusEq:    TokenPlus,
	TokenMinusEq:   TokenMinus,
	TokenStarEq:    TokenStar,
	TokenSlashEq:   TokenSlash,
	TokenPercentEq: TokenPercent,
}

var arithOpcodes = map[TokenType]classfile.Opcode{
	TokenPlus:    classfile.OpAdd,
	TokenMinus:   classfile.OpSub,
	TokenStar:    classfile.OpMul,
	TokenSlash:   classfile.OpDiv,
	TokenPercent: classfile.OpRem,
}

var compareOpcodes = map[TokenType]classfile.Opcode{
	TokenEq:        classfile.OpEq,
	TokenNotEq:     classfile.OpNe,
	TokenLess:      classfile.OpLt,
	TokenLessEq:    classfile.OpLe,
	TokenGreater:   classfile.OpGt,
	TokenGreaterEq: classfile.OpGe,
}

// conversions lists the primitive conversion intrinsics.
var conversions = map[string]Type{
	"toInt":    TypeInt,
	"toLong":   TypeLong,
	"toDouble": TypeDouble,
	"toChar":   TypeChar,
}
