package vm

import (
	"encoding/binary"
	"fmt"
	"io"
	"math"
	"strconv"
	"sync"
	"sync/atomic"

	"github.com/chazu/tern/classfile"
	"github.com/chazu/tern/loader"
)

// DefaultMaxDepth bounds nested calls before a StackOverflowError.
const DefaultMaxDepth = 1024

// NativeFunc implements a native method. For instance methods args[0] is
// the receiver.
type NativeFunc func(th *Thread, args []Value) (Value, error)

// Interpreter executes linked classes obtained from a resolver. Linked
// classes are cached per interpreter; invocations may run concurrently.
type Interpreter struct {
	resolver *loader.Resolver
	natives  map[string]NativeFunc

	// Stdout receives output of print/println. Defaults to io.Discard.
	Stdout io.Writer
	// MaxDepth bounds call nesting; zero means DefaultMaxDepth.
	MaxDepth int

	mu      sync.Mutex
	classes map[string]*Class
	nextID  atomic.Uint64
	outMu   sync.Mutex
}

// NewInterpreter creates an interpreter over r with the host natives
// registered.
func NewInterpreter(r *loader.Resolver) *Interpreter {
	in := &Interpreter{
		resolver: r,
		natives:  make(map[string]NativeFunc),
		Stdout:   io.Discard,
		classes:  make(map[string]*Class),
	}
	registerHostNatives(in)
	return in
}

// Resolver returns the resolver classes are linked through.
func (in *Interpreter) Resolver() *loader.Resolver { return in.resolver }

// RegisterNative binds a native implementation to class.name+desc. It must
// be called before the class is linked.
func (in *Interpreter) RegisterNative(class, name, desc string, fn NativeFunc) {
	in.natives[class+"."+name+desc] = fn
}

func (in *Interpreter) maxDepth() int {
	if in.MaxDepth > 0 {
		return in.MaxDepth
	}
	return DefaultMaxDepth
}

// Invoke calls m with args (receiver first for instance methods) on a new
// thread.
func (in *Interpreter) Invoke(m *Method, args ...Value) (Value, error) {
	th := &Thread{in: in}
	return th.call(m, args)
}

// Thread is the execution state of one invocation.
type Thread struct {
	in    *Interpreter
	depth int
}

// Interpreter returns the interpreter the thread runs on.
func (th *Thread) Interpreter() *Interpreter { return th.in }

func (th *Thread) call(m *Method, args []Value) (Value, error) {
	want := len(m.Params)
	if !m.IsStatic() {
		want++
	}
	if len(args) != want {
		return nil, hostErrorf(VerifyError, "%s called with %d arguments, want %d", m, len(args), want)
	}
	if m.native != nil {
		v, err := m.native(th, args)
		if err != nil {
			return nil, withFrame(err, m.Class.Name+"."+m.Info.Name+"(Native Method)")
		}
		return v, nil
	}
	if th.depth >= th.in.maxDepth() {
		return nil, hostErrorf(StackOverflow, "call depth exceeded %d", th.in.maxDepth())
	}
	th.depth++
	defer func() { th.depth-- }()
	return th.execute(m, args)
}

// frame is the operand stack and locals of one executing method.
type frame struct {
	locals []Value
	stack  []Value
	pc     int
	err    error
}

func (f *frame) push(v Value) { f.stack = append(f.stack, v) }

func (f *frame) pop() Value {
	if len(f.stack) == 0 {
		if f.err == nil {
			f.err = hostErrorf(VerifyError, "operand stack underflow")
		}
		return nil
	}
	v := f.stack[len(f.stack)-1]
	f.stack = f.stack[:len(f.stack)-1]
	return v
}

func (f *frame) popN(n int) []Value {
	if n > len(f.stack) {
		if f.err == nil {
			f.err = hostErrorf(VerifyError, "operand stack underflow")
		}
		return make([]Value, n)
	}
	out := make([]Value, n)
	copy(out, f.stack[len(f.stack)-n:])
	f.stack = f.stack[:len(f.stack)-n]
	return out
}

func (th *Thread) execute(m *Method, args []Value) (Value, error) {
	info := m.Info
	code := info.Code
	cf := m.Class.File

	f := &frame{locals: make([]Value, info.MaxLocals), stack: make([]Value, 0, 8)}
	copy(f.locals, args)

	for {
		if f.pc >= len(code) {
			return nil, withFrame(hostErrorf(VerifyError, "execution fell off the end of %s", m), th.frameName(m, f.pc))
		}
		start := f.pc
		op := classfile.Opcode(code[f.pc])
		n := op.InstructionLen()
		operands := code[f.pc+1 : f.pc+n]
		f.pc += n

		var err error
		switch op {
		case classfile.OpNop:

		case classfile.OpPop:
			f.pop()

		case classfile.OpDup:
			v := f.pop()
			f.push(v)
			f.push(v)

		case classfile.OpSwap:
			b := f.pop()
			a := f.pop()
			f.push(b)
			f.push(a)

		case classfile.OpIConst:
			f.push(int32(binary.BigEndian.Uint32(operands)))

		case classfile.OpLdc:
			k := cf.Constants[binary.BigEndian.Uint16(operands)]
			switch k.Kind {
			case classfile.ConstLong:
				f.push(k.Long)
			case classfile.ConstDouble:
				f.push(k.Double)
			default:
				f.push(NewString(k.Str))
			}

		case classfile.OpTrue:
			f.push(true)

		case classfile.OpFalse:
			f.push(false)

		case classfile.OpNull:
			f.push(nil)

		case classfile.OpCConst:
			f.push(binary.BigEndian.Uint16(operands))

		case classfile.OpLoad:
			f.push(f.locals[binary.BigEndian.Uint16(operands)])

		case classfile.OpStore:
			f.locals[binary.BigEndian.Uint16(operands)] = f.pop()

		case classfile.OpAdd, classfile.OpSub, classfile.OpMul, classfile.OpDiv, classfile.OpRem:
			b := f.pop()
			a := f.pop()
			var v Value
			if v, err = arith(op, classfile.Kind(operands[0]), a, b); err == nil {
				f.push(v)
			}

		case classfile.OpNeg:
			var v Value
			if v, err = negate(classfile.Kind(operands[0]), f.pop()); err == nil {
				f.push(v)
			}

		case classfile.OpConv:
			var v Value
			if v, err = convert(classfile.Kind(operands[0]), classfile.Kind(operands[1]), f.pop()); err == nil {
				f.push(v)
			}

		case classfile.OpEq, classfile.OpNe, classfile.OpLt, classfile.OpLe, classfile.OpGt, classfile.OpGe:
			b := f.pop()
			a := f.pop()
			var ok bool
			if ok, err = compare(op, classfile.Kind(operands[0]), a, b); err == nil {
				f.push(ok)
			}

		case classfile.OpNot:
			b, ok := f.pop().(bool)
			if !ok {
				err = hostErrorf(VerifyError, "NOT on non-Boolean")
			} else {
				f.push(!b)
			}

		case classfile.OpConcat:
			b := f.pop()
			a := f.pop()
			sa, ok1 := a.(*String)
			sb, ok2 := b.(*String)
			if !ok1 && a == nil {
				ok1 = true
			}
			if !ok2 && b == nil {
				ok2 = true
			}
			if !ok1 || !ok2 {
				err = hostErrorf(VerifyError, "CONCAT on %s and %s", typeName(a), typeName(b))
			} else {
				f.push(concat(orNull(sa), orNull(sb)))
			}

		case classfile.OpStringify:
			var s *String
			if s, err = th.Stringify(classfile.Kind(operands[0]), f.pop()); err == nil {
				f.push(s)
			}

		case classfile.OpJump:
			f.pc += int(int16(binary.BigEndian.Uint16(operands)))

		case classfile.OpJumpFalse, classfile.OpJumpTrue:
			cond, ok := f.pop().(bool)
			if !ok {
				err = hostErrorf(VerifyError, "%s on non-Boolean", op)
			} else if cond == (op == classfile.OpJumpTrue) {
				f.pc += int(int16(binary.BigEndian.Uint16(operands)))
			}

		case classfile.OpInvokeStatic:
			k := cf.Constants[binary.BigEndian.Uint16(operands)]
			var target *Method
			if target, err = th.in.staticMethod(k); err == nil {
				args := f.popN(len(target.Params))
				err = th.invokeAndPush(f, target, args)
			}

		case classfile.OpInvokeVirtual:
			k := cf.Constants[binary.BigEndian.Uint16(operands)]
			var decl *Method
			if decl, err = th.in.declaredMethod(k); err == nil {
				args := f.popN(len(decl.Params))
				recv := f.pop()
				var target *Method
				if target, err = th.virtualTarget(recv, k); err == nil {
					err = th.invokeAndPush(f, target, append([]Value{recv}, args...))
				}
			}

		case classfile.OpInvokeSpecial:
			k := cf.Constants[binary.BigEndian.Uint16(operands)]
			var target *Method
			if target, err = th.in.specialMethod(k); err == nil {
				args := f.popN(len(target.Params))
				recv := f.pop()
				if recv == nil {
					err = hostErrorf(NullError, "constructor %s called on null", target)
				} else {
					err = th.invokeAndPush(f, target, append([]Value{recv}, args...))
				}
			}

		case classfile.OpNew:
			k := cf.Constants[binary.BigEndian.Uint16(operands)]
			var c *Class
			if c, err = th.in.LinkClass(k.Class); err == nil {
				if c.File.Flags&classfile.ClassHost != 0 && c.Name == classfile.StringClass {
					err = hostErrorf(InstantiateError, "%s cannot be instantiated", c.Name)
				} else {
					f.push(th.in.newObject(c))
				}
			}

		case classfile.OpGetField:
			k := cf.Constants[binary.BigEndian.Uint16(operands)]
			var obj *Object
			var idx int
			if obj, idx, err = th.fieldSlot(f.pop(), k); err == nil {
				f.push(obj.Fields[idx])
			}

		case classfile.OpPutField:
			k := cf.Constants[binary.BigEndian.Uint16(operands)]
			v := f.pop()
			var obj *Object
			var idx int
			if obj, idx, err = th.fieldSlot(f.pop(), k); err == nil {
				obj.Fields[idx] = v
			}

		case classfile.OpThrow:
			obj, ok := f.pop().(*Object)
			switch {
			case !ok || obj == nil:
				err = hostErrorf(NullError, "throw of a non-exception value")
			case !obj.Class.IsSubclassOf(ExceptionClass):
				err = hostErrorf(VerifyError, "throw of %s which is not an exception", obj.Class.Name)
			default:
				err = &Thrown{Exception: obj}
			}

		case classfile.OpReturn:
			v := f.pop()
			if f.err != nil {
				return nil, withFrame(f.err, th.frameName(m, start))
			}
			return v, nil

		case classfile.OpReturnVoid:
			return nil, nil

		default:
			err = hostErrorf(VerifyError, "unknown opcode 0x%02X", byte(op))
		}

		if err == nil && f.err != nil {
			err = f.err
		}
		if err != nil {
			if t, ok := err.(*Thrown); ok {
				if h := findHandler(info, start, t.Exception.Class); h != nil {
					f.stack = append(f.stack[:0], t.Exception)
					f.pc = int(h.Target)
					continue
				}
			}
			return nil, withFrame(err, th.frameName(m, start))
		}
	}
}

func (th *Thread) invokeAndPush(f *frame, target *Method, args []Value) error {
	if f.err != nil {
		return f.err
	}
	ret, err := th.call(target, args)
	if err != nil {
		return err
	}
	if target.Return != classfile.DescVoid {
		f.push(ret)
	}
	return nil
}

func (in *Interpreter) staticMethod(k classfile.Constant) (*Method, error) {
	c, err := in.LinkClass(k.Class)
	if err != nil {
		return nil, err
	}
	m := c.DeclaredMethod(k.Name, k.Desc)
	if m == nil {
		return nil, &LinkError{Kind: NoSuchMethod, Class: k.Class, Member: k.Name + k.Desc}
	}
	if !m.IsStatic() {
		return nil, &LinkError{Kind: IncompatibleClass, Class: k.Class, Member: k.Name + k.Desc, Err: fmt.Errorf("expected static method")}
	}
	return m, nil
}

func (in *Interpreter) declaredMethod(k classfile.Constant) (*Method, error) {
	c, err := in.LinkClass(k.Class)
	if err != nil {
		return nil, err
	}
	m := c.LookupMethod(k.Name, k.Desc)
	if m == nil {
		return nil, &LinkError{Kind: NoSuchMethod, Class: k.Class, Member: k.Name + k.Desc}
	}
	if m.IsStatic() {
		return nil, &LinkError{Kind: IncompatibleClass, Class: k.Class, Member: k.Name + k.Desc, Err: fmt.Errorf("expected instance method")}
	}
	return m, nil
}

func (in *Interpreter) specialMethod(k classfile.Constant) (*Method, error) {
	c, err := in.LinkClass(k.Class)
	if err != nil {
		return nil, err
	}
	m := c.DeclaredMethod(k.Name, k.Desc)
	if m == nil || m.IsStatic() {
		return nil, &LinkError{Kind: NoSuchMethod, Class: k.Class, Member: k.Name + k.Desc}
	}
	return m, nil
}

// ClassOf returns the linked class of a reference value.
func (th *Thread) ClassOf(v Value) (*Class, error) {
	switch v := v.(type) {
	case *Object:
		return v.Class, nil
	case *String:
		return th.in.LinkClass(classfile.StringClass)
	}
	return nil, hostErrorf(VerifyError, "%s is not a reference", typeName(v))
}

func (th *Thread) virtualTarget(recv Value, k classfile.Constant) (*Method, error) {
	if recv == nil {
		return nil, hostErrorf(NullError, "cannot invoke %s.%s on null", k.Class, k.Name)
	}
	c, err := th.ClassOf(recv)
	if err != nil {
		return nil, err
	}
	if !c.IsSubclassOf(k.Class) {
		return nil, hostErrorf(VerifyError, "receiver %s is not a %s", c.Name, k.Class)
	}
	m := c.LookupMethod(k.Name, k.Desc)
	if m == nil {
		return nil, &LinkError{Kind: NoSuchMethod, Class: c.Name, Member: k.Name + k.Desc}
	}
	return m, nil
}

func (th *Thread) fieldSlot(v Value, k classfile.Constant) (*Object, int, error) {
	if _, err := th.in.LinkClass(k.Class); err != nil {
		return nil, 0, err
	}
	obj, ok := v.(*Object)
	if !ok || obj == nil {
		return nil, 0, hostErrorf(NullError, "field %s.%s of %s", k.Class, k.Name, typeName(v))
	}
	idx, ok := obj.Class.fieldIndex[k.Name]
	if !ok || obj.Class.fields[idx].Desc != k.Desc {
		return nil, 0, &LinkError{Kind: NoSuchField, Class: obj.Class.Name, Member: k.Name + ":" + k.Desc}
	}
	return obj, idx, nil
}

func findHandler(info *classfile.Method, pc int, c *Class) *classfile.Handler {
	for i := range info.Handlers {
		h := &info.Handlers[i]
		if pc >= int(h.Start) && pc < int(h.End) && c.IsSubclassOf(h.CatchType) {
			return h
		}
	}
	return nil
}

func (th *Thread) frameName(m *Method, pc int) string {
	file := m.Class.File.SourceFile
	if file == "" {
		file = "Unknown Source"
	}
	if line := m.Info.LineAt(pc); line > 0 {
		return fmt.Sprintf("%s.%s(%s:%d)", m.Class.Name, m.Info.Name, file, line)
	}
	return fmt.Sprintf("%s.%s(%s)", m.Class.Name, m.Info.Name, file)
}

// Stringify converts a value of the given kind to a String, calling
// toString() on objects.
func (th *Thread) Stringify(kind classfile.Kind, v Value) (*String, error) {
	switch kind {
	case classfile.KindInt, classfile.KindLong, classfile.KindDouble, classfile.KindBool, classfile.KindChar:
		s, err := formatScalar(kind, v)
		if err != nil {
			return nil, err
		}
		return s, nil
	}
	switch v := v.(type) {
	case nil:
		return NewString("null"), nil
	case *String:
		return v, nil
	case *Object:
		m := v.Class.LookupMethod("toString", classfile.MethodDesc(classfile.DescString))
		if m == nil {
			return NewString(v.String()), nil
		}
		res, err := th.call(m, []Value{v})
		if err != nil {
			return nil, err
		}
		s, ok := res.(*String)
		if !ok {
			return nil, hostErrorf(VerifyError, "%s.toString returned %s", v.Class.Name, typeName(res))
		}
		return orNull(s), nil
	}
	return nil, hostErrorf(VerifyError, "STRINGIFY %s on %s", kind, typeName(v))
}

func formatScalar(kind classfile.Kind, v Value) (*String, error) {
	switch x := v.(type) {
	case int32:
		if kind == classfile.KindInt {
			return NewString(strconv.FormatInt(int64(x), 10)), nil
		}
	case int64:
		if kind == classfile.KindLong {
			return NewString(strconv.FormatInt(x, 10)), nil
		}
	case float64:
		if kind == classfile.KindDouble {
			return NewString(FormatDouble(x)), nil
		}
	case bool:
		if kind == classfile.KindBool {
			return NewString(strconv.FormatBool(x)), nil
		}
	case uint16:
		if kind == classfile.KindChar {
			return NewStringUnits([]uint16{x}), nil
		}
	}
	return nil, kindMismatch("STRINGIFY", kind, v)
}

func orNull(s *String) *String {
	if s == nil {
		return NewString("null")
	}
	return s
}

func kindMismatch(op string, kind classfile.Kind, v Value) *HostError {
	return hostErrorf(VerifyError, "%s %s applied to %s", op, kind, typeName(v))
}

func arith(op classfile.Opcode, kind classfile.Kind, a, b Value) (Value, error) {
	switch kind {
	case classfile.KindInt:
		x, ok1 := a.(int32)
		y, ok2 := b.(int32)
		if !ok1 || !ok2 {
			return nil, kindMismatch(op.String(), kind, pickBad(ok1, a, b))
		}
		switch op {
		case classfile.OpAdd:
			return x + y, nil
		case classfile.OpSub:
			return x - y, nil
		case classfile.OpMul:
			return x * y, nil
		case classfile.OpDiv:
			if y == 0 {
				return nil, hostErrorf(ArithmeticError, "/ by zero")
			}
			return x / y, nil
		default:
			if y == 0 {
				return nil, hostErrorf(ArithmeticError, "/ by zero")
			}
			return x % y, nil
		}
	case classfile.KindLong:
		x, ok1 := a.(int64)
		y, ok2 := b.(int64)
		if !ok1 || !ok2 {
			return nil, kindMismatch(op.String(), kind, pickBad(ok1, a, b))
		}
		switch op {
		case classfile.OpAdd:
			return x + y, nil
		case classfile.OpSub:
			return x - y, nil
		case classfile.OpMul:
			return x * y, nil
		case classfile.OpDiv:
			if y == 0 {
				return nil, hostErrorf(ArithmeticError, "/ by zero")
			}
			return x / y, nil
		default:
			if y == 0 {
				return nil, hostErrorf(ArithmeticError, "/ by zero")
			}
			return x % y, nil
		}
	case classfile.KindDouble:
		x, ok1 := a.(float64)
		y, ok2 := b.(float64)
		if !ok1 || !ok2 {
			return nil, kindMismatch(op.String(), kind, pickBad(ok1, a, b))
		}
		switch op {
		case classfile.OpAdd:
			return x + y, nil
		case classfile.OpSub:
			return x - y, nil
		case classfile.OpMul:
			return x * y, nil
		case classfile.OpDiv:
			return x / y, nil
		default:
			return math.Mod(x, y), nil
		}
	}
	return nil, hostErrorf(VerifyError, "%s with kind %s", op, kind)
}

func pickBad(firstOK bool, a, b Value) Value {
	if firstOK {
		return b
	}
	return a
}

func negate(kind classfile.Kind, v Value) (Value, error) {
	switch x := v.(type) {
	case int32:
		if kind == classfile.KindInt {
			return -x, nil
		}
	case int64:
		if kind == classfile.KindLong {
			return -x, nil
		}
	case float64:
		if kind == classfile.KindDouble {
			return -x, nil
		}
	}
	return nil, kindMismatch("NEG", kind, v)
}

func compare(op classfile.Opcode, kind classfile.Kind, a, b Value) (bool, error) {
	ordered := func(c int) bool {
		switch op {
		case classfile.OpEq:
			return c == 0
		case classfile.OpNe:
			return c != 0
		case classfile.OpLt:
			return c < 0
		case classfile.OpLe:
			return c <= 0
		case classfile.OpGt:
			return c > 0
		default:
			return c >= 0
		}
	}
	equalityOnly := op == classfile.OpEq || op == classfile.OpNe

	switch kind {
	case classfile.KindInt:
		x, ok1 := a.(int32)
		y, ok2 := b.(int32)
		if ok1 && ok2 {
			return ordered(cmp3(x < y, x > y)), nil
		}
	case classfile.KindLong:
		x, ok1 := a.(int64)
		y, ok2 := b.(int64)
		if ok1 && ok2 {
			return ordered(cmp3(x < y, x > y)), nil
		}
	case classfile.KindChar:
		x, ok1 := a.(uint16)
		y, ok2 := b.(uint16)
		if ok1 && ok2 {
			return ordered(cmp3(x < y, x > y)), nil
		}
	case classfile.KindDouble:
		x, ok1 := a.(float64)
		y, ok2 := b.(float64)
		if ok1 && ok2 {
			if math.IsNaN(x) || math.IsNaN(y) {
				return op == classfile.OpNe, nil
			}
			return ordered(cmp3(x < y, x > y)), nil
		}
	case classfile.KindBool:
		x, ok1 := a.(bool)
		y, ok2 := b.(bool)
		if ok1 && ok2 && equalityOnly {
			return (x == y) == (op == classfile.OpEq), nil
		}
	case classfile.KindString:
		x, ok1 := a.(*String)
		y, ok2 := b.(*String)
		if (ok1 || a == nil) && (ok2 || b == nil) && equalityOnly {
			return x.Equal(y) == (op == classfile.OpEq), nil
		}
	case classfile.KindRef:
		if equalityOnly {
			return (a == b) == (op == classfile.OpEq), nil
		}
	}
	return false, hostErrorf(VerifyError, "%s %s applied to %s and %s", op, kind, typeName(a), typeName(b))
}

func cmp3(less, greater bool) int {
	switch {
	case less:
		return -1
	case greater:
		return 1
	}
	return 0
}

func convert(from, to classfile.Kind, v Value) (Value, error) {
	var i int64
	var d float64
	isFloat := false
	switch x := v.(type) {
	case int32:
		if from != classfile.KindInt {
			return nil, kindMismatch("CONV", from, v)
		}
		i = int64(x)
	case int64:
		if from != classfile.KindLong {
			return nil, kindMismatch("CONV", from, v)
		}
		i = x
	case uint16:
		if from != classfile.KindChar {
			return nil, kindMismatch("CONV", from, v)
		}
		i = int64(x)
	case float64:
		if from != classfile.KindDouble {
			return nil, kindMismatch("CONV", from, v)
		}
		d = x
		isFloat = true
	default:
		return nil, kindMismatch("CONV", from, v)
	}

	switch to {
	case classfile.KindInt:
		if isFloat {
			return int32(saturate(d, math.MinInt32, math.MaxInt32)), nil
		}
		return int32(i), nil
	case classfile.KindLong:
		if isFloat {
			return saturate(d, math.MinInt64, math.MaxInt64), nil
		}
		return i, nil
	case classfile.KindDouble:
		if isFloat {
			return d, nil
		}
		return float64(i), nil
	case classfile.KindChar:
		if isFloat {
			return uint16(int32(saturate(d, math.MinInt32, math.MaxInt32))), nil
		}
		return uint16(i), nil
	}
	return nil, hostErrorf(VerifyError, "CONV to %s", to)
}

// saturate truncates d toward zero, clamping to [lo, hi] and mapping NaN to 0.
func saturate(d float64, lo, hi int64) int64 {
	switch {
	case math.IsNaN(d):
		return 0
	case d <= float64(lo):
		return lo
	case d >= float64(hi):
		return hi
	}
	return int64(d)
}
