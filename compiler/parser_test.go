package compiler

import (
	"fmt"
	"strings"
	"testing"
)

func parseFile(t *testing.T, src string) *File {
	t.Helper()
	p := NewParser("test.tn", src)
	f := p.ParseFile()
	if errs := p.Errors(); len(errs) > 0 {
		t.Fatalf("parse errors: %v", errs)
	}
	return f
}

func parseExpr(t *testing.T, src string) Expr {
	t.Helper()
	p := NewParser("test.tn", src)
	x := p.ParseExpression()
	if errs := p.Errors(); len(errs) > 0 {
		t.Fatalf("parse %q: %v", src, errs)
	}
	return x
}

func TestParseFileDeclarations(t *testing.T) {
	src := `package demo.app

import std.Pair
import tern.lang.*

fun sum(a: Int, b: Int): Int = a + b

fun main() {
    println(sum(1, 2))
}

open class Shape(val name: String) {
    var area: Double = 0.0
    init { area = 1.0 }
    override fun toString(): String = name
}

class Square(val side: Int) : Shape("square")
`
	f := parseFile(t, src)
	if f.Package != "demo.app" {
		t.Errorf("Package = %q, want demo.app", f.Package)
	}
	if len(f.Imports) != 2 || f.Imports[0].Path != "std.Pair" || !f.Imports[1].Star || f.Imports[1].Path != "tern.lang" {
		t.Errorf("Imports = %+v", f.Imports)
	}
	if len(f.Funs) != 2 {
		t.Fatalf("got %d funs, want 2", len(f.Funs))
	}
	sum := f.Funs[0]
	if sum.Name != "sum" || len(sum.Params) != 2 || sum.Result.Name != "Int" || sum.ExprBody == nil {
		t.Errorf("sum = %+v", sum)
	}
	if f.Funs[1].Body == nil || len(f.Funs[1].Body.Stmts) != 1 {
		t.Errorf("main body = %+v", f.Funs[1].Body)
	}

	if len(f.Classes) != 2 {
		t.Fatalf("got %d classes, want 2", len(f.Classes))
	}
	shape := f.Classes[0]
	if len(shape.Params) != 1 || shape.Params[0].Prop != PropVal {
		t.Errorf("Shape params = %+v", shape.Params)
	}
	if len(shape.Members) != 3 {
		t.Fatalf("Shape has %d members, want 3", len(shape.Members))
	}
	if prop, ok := shape.Members[0].(*PropDecl); !ok || !prop.Mutable || prop.Name != "area" {
		t.Errorf("member 0 = %#v, want var area", shape.Members[0])
	}
	if _, ok := shape.Members[1].(*InitBlock); !ok {
		t.Errorf("member 1 = %T, want *InitBlock", shape.Members[1])
	}
	if fn, ok := shape.Members[2].(*FunDecl); !ok || !fn.Override {
		t.Errorf("member 2 = %#v, want override fun", shape.Members[2])
	}
	square := f.Classes[1]
	if square.Super == nil || square.Super.Name != "Shape" || len(square.SuperArgs) != 1 {
		t.Errorf("Square super = %+v args %d", square.Super, len(square.SuperArgs))
	}
}

func TestParsePrecedence(t *testing.T) {
	x := parseExpr(t, "a + b * c == d || !e && f")
	or, ok := x.(*BinaryExpr)
	if !ok || or.Op != TokenOrOr {
		t.Fatalf("top = %#v, want ||", x)
	}
	eq, ok := or.X.(*BinaryExpr)
	if !ok || eq.Op != TokenEq {
		t.Fatalf("left of || = %#v, want ==", or.X)
	}
	add, ok := eq.X.(*BinaryExpr)
	if !ok || add.Op != TokenPlus {
		t.Fatalf("left of == = %#v, want +", eq.X)
	}
	if mul, ok := add.Y.(*BinaryExpr); !ok || mul.Op != TokenStar {
		t.Errorf("right of + = %#v, want *", add.Y)
	}
	and, ok := or.Y.(*BinaryExpr)
	if !ok || and.Op != TokenAndAnd {
		t.Fatalf("right of || = %#v, want &&", or.Y)
	}
	if not, ok := and.X.(*UnaryExpr); !ok || not.Op != TokenBang {
		t.Errorf("left of && = %#v, want !e", and.X)
	}
}

func TestParseLeftAssociative(t *testing.T) {
	x := parseExpr(t, "a - b - c")
	outer := x.(*BinaryExpr)
	if _, ok := outer.X.(*BinaryExpr); !ok {
		t.Errorf("a - b - c parsed right associative")
	}
}

func TestParseNumbers(t *testing.T) {
	tests := []struct {
		src  string
		want Expr
	}{
		{"42", &IntLiteral{Value: 42}},
		{"-2147483648", &IntLiteral{Value: -2147483648}},
		{"2147483648", &LongLiteral{Value: 2147483648}},
		{"5L", &LongLiteral{Value: 5}},
		{"0xFF", &IntLiteral{Value: 255}},
		{"-9223372036854775808L", &LongLiteral{Value: -9223372036854775808}},
		{"2.5", &DoubleLiteral{Value: 2.5}},
	}
	for _, tt := range tests {
		x := parseExpr(t, tt.src)
		switch want := tt.want.(type) {
		case *IntLiteral:
			if got, ok := x.(*IntLiteral); !ok || got.Value != want.Value {
				t.Errorf("%s = %#v, want Int %d", tt.src, x, want.Value)
			}
		case *LongLiteral:
			if got, ok := x.(*LongLiteral); !ok || got.Value != want.Value {
				t.Errorf("%s = %#v, want Long %d", tt.src, x, want.Value)
			}
		case *DoubleLiteral:
			if got, ok := x.(*DoubleLiteral); !ok || got.Value != want.Value {
				t.Errorf("%s = %#v, want Double %v", tt.src, x, want.Value)
			}
		}
	}
}

func TestParseTemplate(t *testing.T) {
	x := parseExpr(t, `"a=$a, sum=${a + 1}\n"`)
	tmpl, ok := x.(*TemplateLiteral)
	if !ok {
		t.Fatalf("got %T, want *TemplateLiteral", x)
	}
	if len(tmpl.Parts) != 5 {
		t.Fatalf("got %d parts, want 5", len(tmpl.Parts))
	}
	if s, ok := tmpl.Parts[0].(*StringLiteral); !ok || s.Value != "a=" {
		t.Errorf("part 0 = %#v", tmpl.Parts[0])
	}
	if id, ok := tmpl.Parts[1].(*Ident); !ok || id.Name != "a" {
		t.Errorf("part 1 = %#v", tmpl.Parts[1])
	}
	if _, ok := tmpl.Parts[3].(*BinaryExpr); !ok {
		t.Errorf("part 3 = %#v", tmpl.Parts[3])
	}
	if s, ok := tmpl.Parts[4].(*StringLiteral); !ok || s.Value != "\n" {
		t.Errorf("part 4 = %#v", tmpl.Parts[4])
	}

	plain := parseExpr(t, `"cost: \$5 A"`)
	if s, ok := plain.(*StringLiteral); !ok || s.Value != "cost: $5 A" {
		t.Errorf("plain = %#v", plain)
	}
}

func TestParseCharLiterals(t *testing.T) {
	tests := map[string]uint16{
		`'a'`:      'a',
		`'\n'`:     '\n',
		`'\u00e9'`: 0xe9,
		`'é'`:      0xe9,
	}
	for src, want := range tests {
		x := parseExpr(t, src)
		if c, ok := x.(*CharLiteral); !ok || c.Value != want {
			t.Errorf("%s = %#v, want %d", src, x, want)
		}
	}
}

func TestParseStatements(t *testing.T) {
	src := `fun f() {
    val x = 1
    var y: Long = 2L
    y += 3L
    y++
    while (x < 10) { break }
    do { continue } while (false)
    for (c in "abc") println(c)
    for (i in 0 until 10) {}
    for (i in 10 downTo 0) {}
    for (i in 1..3) {}
    if (x > 0) println(x) else println(0)
    try { throw Exception("e") } catch (e: Exception) { return }
}`
	f := parseFile(t, src)
	stmts := f.Funs[0].Body.Stmts
	want := []string{"*compiler.VarDecl", "*compiler.VarDecl", "*compiler.AssignStmt", "*compiler.IncDecStmt",
		"*compiler.WhileStmt", "*compiler.WhileStmt", "*compiler.ForStmt", "*compiler.ForStmt",
		"*compiler.ForStmt", "*compiler.ForStmt", "*compiler.ExprStmt", "*compiler.ExprStmt"}
	if len(stmts) != len(want) {
		t.Fatalf("got %d statements, want %d", len(stmts), len(want))
	}
	for i, s := range stmts {
		if got := fmt.Sprintf("%T", s); got != want[i] {
			t.Errorf("stmt %d = %s, want %s", i, got, want[i])
		}
	}
	if !stmts[5].(*WhileStmt).DoWhile {
		t.Error("do-while not marked")
	}
	ranges := []RangeKind{RangeNone, RangeUntil, RangeDownTo, RangeClosed}
	for i, r := range ranges {
		if got := stmts[6+i].(*ForStmt).Range; got != r {
			t.Errorf("for %d range = %v, want %v", i, got, r)
		}
	}
	if ifx := stmts[10].(*ExprStmt).Expr.(*IfExpr); ifx.Else == nil {
		t.Error("else branch missing")
	}
	if tryx := stmts[11].(*ExprStmt).Expr.(*TryExpr); len(tryx.Catches) != 1 || tryx.Catches[0].Type.Name != "Exception" {
		t.Errorf("try = %+v", tryx)
	}
}

func TestParseElseOnNextLine(t *testing.T) {
	src := `fun f(x: Int): Int {
    return if (x > 0) {
        1
    }
    else {
        2
    }
}`
	f := parseFile(t, src)
	ret := f.Funs[0].Body.Stmts[0].(*ReturnStmt)
	if ifx, ok := ret.Value.(*IfExpr); !ok || ifx.Else == nil {
		t.Errorf("return value = %#v, want if/else", ret.Value)
	}
}

func TestParseMemberChainAcrossLines(t *testing.T) {
	x := parseExpr(t, "sb\n    .append(1)\n    .toString()")
	call, ok := x.(*CallExpr)
	if !ok {
		t.Fatalf("got %T, want *CallExpr", x)
	}
	if m := call.Fun.(*MemberExpr); m.Name != "toString" {
		t.Errorf("outer call = %s, want toString", m.Name)
	}
}

func TestParseErrors(t *testing.T) {
	tests := []struct {
		src  string
		want string
	}{
		{"fun f() { val x }", "variable x must be initialized"},
		{"fun f() { 1 = 2 }", "invalid assignment target"},
		{"fun f() { try { } finally { } }", "finally is not supported"},
		{"fun f() { try { } }", "try must have at least one catch"},
		{"class A : B", "supertype B must be initialized with a constructor call"},
		{"class A { val x }", "property x must have a type or an initializer"},
		{"fun f() = (1)(2)", "expression is not callable"},
		{"fun f() = 99999999999999999999", "out of range"},
		{"fun f() = 'ab'", "exactly one character"},
		{`fun f() = "\q"`, "illegal escape"},
		{"val x = 1", "expected declaration"},
		{"fun f() {}\nimport a.b", "imports must precede declarations"},
		{"fun f() = a +", "expected expression"},
	}
	for _, tt := range tests {
		p := NewParser("bad.tn", tt.src)
		p.ParseFile()
		errs := p.Errors()
		found := false
		for _, e := range errs {
			if strings.Contains(e.Message, tt.want) {
				found = true
			}
		}
		if !found {
			t.Errorf("%q: errors %v, want one containing %q", tt.src, errs, tt.want)
		}
	}
}

func TestDiagnosticPositions(t *testing.T) {
	p := NewParser("pos.tn", "fun f() {\n    val x\n}")
	p.ParseFile()
	errs := p.Errors()
	if len(errs) == 0 {
		t.Fatal("expected an error")
	}
	if got := errs[0].String(); !strings.HasPrefix(got, "pos.tn:2:") {
		t.Errorf("diagnostic = %q, want it on line 2", got)
	}
}
