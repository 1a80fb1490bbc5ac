package vm

import (
	"bytes"
	"errors"
	"math"
	"strings"
	"testing"

	"github.com/chazu/tern/classfile"
	"github.com/chazu/tern/loader"
	"github.com/chazu/tern/unit"
)

const demoFacade = "demo.Namespace"

func newFacade() *classfile.Class {
	c := classfile.NewClass(demoFacade)
	c.Flags = classfile.ClassFacade
	c.SourceFile = "demo.tn"
	return c
}

// newTestInterpreter defines classes in a fresh unit and returns an
// interpreter over it with the host classes behind.
func newTestInterpreter(t *testing.T, classes ...*classfile.Class) *Interpreter {
	t.Helper()
	store := unit.NewStore()
	for _, c := range classes {
		data, err := classfile.Marshal(c)
		if err != nil {
			t.Fatalf("Marshal %s: %v", c.Name, err)
		}
		if err := store.Put(c.Name, data); err != nil {
			t.Fatalf("Put %s: %v", c.Name, err)
		}
	}
	store.Seal()
	return NewInterpreter(loader.New(store, HostProvider()))
}

func invoke(t *testing.T, in *Interpreter, class, name, desc string, args ...Value) (Value, error) {
	t.Helper()
	c, err := in.LinkClass(class)
	if err != nil {
		t.Fatalf("LinkClass %s: %v", class, err)
	}
	m := c.DeclaredMethod(name, desc)
	if m == nil {
		t.Fatalf("no method %s%s in %s", name, desc, class)
	}
	return in.Invoke(m, args...)
}

func TestInvokeIntArithmetic(t *testing.T) {
	c := newFacade()
	m := c.AddMethod("calc", "(II)I", classfile.MethodStatic)
	m.MaxLocals = 2
	m.EmitU16(classfile.OpLoad, 0)
	m.EmitU16(classfile.OpLoad, 1)
	m.EmitU8(classfile.OpMul, byte(classfile.KindInt))
	m.EmitI32(classfile.OpIConst, 3)
	m.EmitU8(classfile.OpSub, byte(classfile.KindInt))
	m.Emit(classfile.OpReturn)

	in := newTestInterpreter(t, c)
	tests := []struct {
		a, b int32
		want int32
	}{
		{6, 7, 39},
		{0, 5, -3},
		{math.MaxInt32, 2, -5}, // wraps
	}
	for _, tt := range tests {
		got, err := invoke(t, in, demoFacade, "calc", "(II)I", tt.a, tt.b)
		if err != nil {
			t.Fatalf("calc(%d, %d): %v", tt.a, tt.b, err)
		}
		if got != tt.want {
			t.Errorf("calc(%d, %d) = %v, want %d", tt.a, tt.b, got, tt.want)
		}
	}
}

func TestDivisionByZeroIsHostError(t *testing.T) {
	c := newFacade()
	m := c.AddMethod("div", "(II)I", classfile.MethodStatic)
	m.MaxLocals = 2
	m.MarkLine(3)
	m.EmitU16(classfile.OpLoad, 0)
	m.EmitU16(classfile.OpLoad, 1)
	m.EmitU8(classfile.OpDiv, byte(classfile.KindInt))
	m.Emit(classfile.OpReturn)

	in := newTestInterpreter(t, c)
	_, err := invoke(t, in, demoFacade, "div", "(II)I", int32(1), int32(0))
	var he *HostError
	if !errors.As(err, &he) {
		t.Fatalf("err = %v, want *HostError", err)
	}
	if he.Kind != ArithmeticError {
		t.Errorf("Kind = %q, want %q", he.Kind, ArithmeticError)
	}
	if len(he.Trace) != 1 || he.Trace[0] != "demo.Namespace.div(demo.tn:3)" {
		t.Errorf("Trace = %v", he.Trace)
	}
}

func throwingClass() *classfile.Class {
	c := newFacade()
	exc := vmExceptionCtor(c)

	caught := c.AddMethod("caught", "()"+classfile.DescString, classfile.MethodStatic)
	caught.MaxLocals = 0
	caught.EmitU16(classfile.OpNew, c.ClassRef(ExceptionClass))
	caught.Emit(classfile.OpDup)
	caught.EmitU16(classfile.OpLdc, c.StringConstant("boom"))
	caught.EmitU16(classfile.OpInvokeSpecial, exc)
	caught.Emit(classfile.OpThrow)
	target := len(caught.Code)
	caught.EmitU16(classfile.OpGetField, c.FieldRef(ExceptionClass, "message", classfile.DescString))
	caught.Emit(classfile.OpReturn)
	caught.Handlers = []classfile.Handler{{Start: 0, End: uint32(target), Target: uint32(target), CatchType: ExceptionClass}}

	escapes := c.AddMethod("escapes", "()V", classfile.MethodStatic)
	escapes.MarkLine(7)
	escapes.EmitU16(classfile.OpLdc, c.StringConstant("bad input"))
	escapes.EmitU16(classfile.OpInvokeStatic, c.MethodRef(HostFacade, "error", "("+classfile.DescString+")V"))
	escapes.Emit(classfile.OpReturnVoid)
	return c
}

func vmExceptionCtor(c *classfile.Class) uint16 {
	return c.MethodRef(ExceptionClass, classfile.ConstructorName, "("+classfile.DescString+")V")
}

func TestThrowCaughtByHandler(t *testing.T) {
	in := newTestInterpreter(t, throwingClass())
	got, err := invoke(t, in, demoFacade, "caught", "()"+classfile.DescString)
	if err != nil {
		t.Fatalf("caught: %v", err)
	}
	if s, ok := got.(*String); !ok || s.String() != "boom" {
		t.Errorf("caught() = %v, want boom", got)
	}
}

func TestThrownEscapesWithTrace(t *testing.T) {
	in := newTestInterpreter(t, throwingClass())
	_, err := invoke(t, in, demoFacade, "escapes", "()V")
	var thrown *Thrown
	if !errors.As(err, &thrown) {
		t.Fatalf("err = %v, want *Thrown", err)
	}
	if thrown.ClassName() != ExceptionClass || thrown.Message() != "bad input" {
		t.Errorf("thrown = %s / %q", thrown.ClassName(), thrown.Message())
	}
	want := []string{"tern.lang.Namespace.error(Native Method)", "demo.Namespace.escapes(demo.tn:7)"}
	if strings.Join(thrown.Trace, "|") != strings.Join(want, "|") {
		t.Errorf("Trace = %v, want %v", thrown.Trace, want)
	}
}

func TestStringNativesAndPrintln(t *testing.T) {
	c := newFacade()
	m := c.AddMethod("show", "("+classfile.DescString+")C", classfile.MethodStatic)
	m.MaxLocals = 1
	m.EmitU16(classfile.OpLoad, 0)
	m.EmitU16(classfile.OpInvokeVirtual, c.MethodRef(StringClass, "length", "()I"))
	m.EmitU16(classfile.OpInvokeStatic, c.MethodRef(HostFacade, "println", "(I)V"))
	m.EmitU16(classfile.OpLoad, 0)
	m.EmitI32(classfile.OpIConst, 1)
	m.EmitU16(classfile.OpInvokeVirtual, c.MethodRef(StringClass, "get", "(I)C"))
	m.Emit(classfile.OpReturn)

	in := newTestInterpreter(t, c)
	var out bytes.Buffer
	in.Stdout = &out
	got, err := invoke(t, in, demoFacade, "show", "("+classfile.DescString+")C", NewString("239"))
	if err != nil {
		t.Fatalf("show: %v", err)
	}
	if got != uint16('3') {
		t.Errorf("show = %v, want '3'", got)
	}
	if out.String() != "3\n" {
		t.Errorf("output = %q, want %q", out.String(), "3\n")
	}

	_, err = invoke(t, in, demoFacade, "show", "("+classfile.DescString+")C", NewString("x"))
	var he *HostError
	if !errors.As(err, &he) || he.Kind != IndexError {
		t.Errorf("show(\"x\") err = %v, want %s", err, IndexError)
	}

	_, err = invoke(t, in, demoFacade, "show", "("+classfile.DescString+")C", nil)
	if !errors.As(err, &he) || he.Kind != NullError {
		t.Errorf("show(null) err = %v, want %s", err, NullError)
	}
}

func TestStackOverflow(t *testing.T) {
	c := newFacade()
	m := c.AddMethod("loop", "()V", classfile.MethodStatic)
	m.EmitU16(classfile.OpInvokeStatic, c.MethodRef(demoFacade, "loop", "()V"))
	m.Emit(classfile.OpReturnVoid)

	in := newTestInterpreter(t, c)
	in.MaxDepth = 50
	_, err := invoke(t, in, demoFacade, "loop", "()V")
	var he *HostError
	if !errors.As(err, &he) || he.Kind != StackOverflow {
		t.Fatalf("err = %v, want %s", err, StackOverflow)
	}
	if len(he.Trace) != 50 {
		t.Errorf("trace depth = %d, want 50", len(he.Trace))
	}
}

func TestMissingMethodIsLinkError(t *testing.T) {
	c := newFacade()
	m := c.AddMethod("broken", "()V", classfile.MethodStatic)
	m.EmitU16(classfile.OpInvokeStatic, c.MethodRef("demo.Gone", "f", "()V"))
	m.Emit(classfile.OpReturnVoid)
	m2 := c.AddMethod("absent", "()V", classfile.MethodStatic)
	m2.EmitU16(classfile.OpInvokeStatic, c.MethodRef(HostFacade, "nope", "()V"))
	m2.Emit(classfile.OpReturnVoid)

	in := newTestInterpreter(t, c)
	var le *LinkError
	_, err := invoke(t, in, demoFacade, "broken", "()V")
	if !errors.As(err, &le) || le.Kind != NoClassDef {
		t.Errorf("broken: err = %v, want %s", err, NoClassDef)
	}
	if !errors.Is(err, loader.ErrNotFound) {
		t.Errorf("broken: err should wrap loader.ErrNotFound")
	}
	_, err = invoke(t, in, demoFacade, "absent", "()V")
	if !errors.As(err, &le) || le.Kind != NoSuchMethod {
		t.Errorf("absent: err = %v, want %s", err, NoSuchMethod)
	}
}

func TestObjectsAndVirtualDispatch(t *testing.T) {
	box := classfile.NewClass("demo.Box")
	box.SourceFile = "demo.tn"
	box.Fields = []classfile.Field{{Name: "v", Desc: classfile.DescInt}}
	ctor := box.AddMethod(classfile.ConstructorName, "(I)V", 0)
	ctor.MaxLocals = 2
	ctor.EmitU16(classfile.OpLoad, 0)
	ctor.EmitU16(classfile.OpInvokeSpecial, box.MethodRef(AnyClass, classfile.ConstructorName, "()V"))
	ctor.EmitU16(classfile.OpLoad, 0)
	ctor.EmitU16(classfile.OpLoad, 1)
	ctor.EmitU16(classfile.OpPutField, box.FieldRef("demo.Box", "v", classfile.DescInt))
	ctor.Emit(classfile.OpReturnVoid)
	ts := box.AddMethod("toString", "()"+classfile.DescString, 0)
	ts.MaxLocals = 1
	ts.EmitU16(classfile.OpLdc, box.StringConstant("Box("))
	ts.EmitU16(classfile.OpLoad, 0)
	ts.EmitU16(classfile.OpGetField, box.FieldRef("demo.Box", "v", classfile.DescInt))
	ts.EmitU8(classfile.OpStringify, byte(classfile.KindInt))
	ts.Emit(classfile.OpConcat)
	ts.EmitU16(classfile.OpLdc, box.StringConstant(")"))
	ts.Emit(classfile.OpConcat)
	ts.Emit(classfile.OpReturn)

	c := newFacade()
	m := c.AddMethod("make", "()"+classfile.DescString, classfile.MethodStatic)
	m.EmitU16(classfile.OpNew, c.ClassRef("demo.Box"))
	m.Emit(classfile.OpDup)
	m.EmitI32(classfile.OpIConst, 42)
	m.EmitU16(classfile.OpInvokeSpecial, c.MethodRef("demo.Box", classfile.ConstructorName, "(I)V"))
	m.EmitU8(classfile.OpStringify, byte(classfile.KindRef))
	m.Emit(classfile.OpReturn)

	in := newTestInterpreter(t, box, c)
	got, err := invoke(t, in, demoFacade, "make", "()"+classfile.DescString)
	if err != nil {
		t.Fatalf("make: %v", err)
	}
	if Unmarshal(got) != "Box(42)" {
		t.Errorf("make() = %v, want Box(42)", Unmarshal(got))
	}
}

func TestConvert(t *testing.T) {
	tests := []struct {
		from, to classfile.Kind
		in       Value
		want     Value
	}{
		{classfile.KindInt, classfile.KindLong, int32(-4), int64(-4)},
		{classfile.KindLong, classfile.KindInt, int64(1 << 32), int32(0)},
		{classfile.KindDouble, classfile.KindInt, 3.9, int32(3)},
		{classfile.KindDouble, classfile.KindInt, -3.9, int32(-3)},
		{classfile.KindDouble, classfile.KindInt, 1e20, int32(math.MaxInt32)},
		{classfile.KindDouble, classfile.KindInt, math.NaN(), int32(0)},
		{classfile.KindChar, classfile.KindInt, uint16('7'), int32(55)},
		{classfile.KindInt, classfile.KindChar, int32(65), uint16('A')},
		{classfile.KindInt, classfile.KindDouble, int32(2), float64(2)},
	}
	for _, tt := range tests {
		got, err := convert(tt.from, tt.to, tt.in)
		if err != nil {
			t.Errorf("convert(%s->%s, %v): %v", tt.from, tt.to, tt.in, err)
			continue
		}
		if got != tt.want {
			t.Errorf("convert(%s->%s, %v) = %v (%T), want %v (%T)", tt.from, tt.to, tt.in, got, got, tt.want, tt.want)
		}
	}
	if _, err := convert(classfile.KindInt, classfile.KindLong, int64(1)); err == nil {
		t.Error("convert with mismatched kind should fail")
	}
}

func TestCompare(t *testing.T) {
	a, b := NewString("ab"), NewString("ab")
	tests := []struct {
		op   classfile.Opcode
		kind classfile.Kind
		x, y Value
		want bool
	}{
		{classfile.OpLt, classfile.KindInt, int32(1), int32(2), true},
		{classfile.OpGe, classfile.KindLong, int64(2), int64(2), true},
		{classfile.OpEq, classfile.KindDouble, math.NaN(), math.NaN(), false},
		{classfile.OpNe, classfile.KindDouble, math.NaN(), math.NaN(), true},
		{classfile.OpEq, classfile.KindString, a, b, true},
		{classfile.OpEq, classfile.KindRef, a, b, false},
		{classfile.OpEq, classfile.KindString, nil, nil, true},
		{classfile.OpNe, classfile.KindString, a, nil, true},
		{classfile.OpGt, classfile.KindChar, uint16('b'), uint16('a'), true},
	}
	for _, tt := range tests {
		got, err := compare(tt.op, tt.kind, tt.x, tt.y)
		if err != nil {
			t.Errorf("%s %s: %v", tt.op, tt.kind, err)
			continue
		}
		if got != tt.want {
			t.Errorf("%s %s (%v, %v) = %v, want %v", tt.op, tt.kind, tt.x, tt.y, got, tt.want)
		}
	}
	if _, err := compare(classfile.OpLt, classfile.KindBool, true, false); err == nil {
		t.Error("ordering Booleans should fail")
	}
}

func TestFormatDouble(t *testing.T) {
	tests := map[float64]string{
		3:           "3.0",
		2.5:         "2.5",
		-0.125:      "-0.125",
		math.Inf(1): "Infinity",
		1e21:        "1e+21",
	}
	for in, want := range tests {
		if got := FormatDouble(in); got != want {
			t.Errorf("FormatDouble(%v) = %q, want %q", in, got, want)
		}
	}
}
