package vm

import (
	"fmt"
	"io"
	"strconv"
	"strings"
	"sync"

	"github.com/chazu/tern/classfile"
	"github.com/chazu/tern/loader"
)

// Host class names.
const (
	AnyClass       = classfile.RootClass
	StringClass    = classfile.StringClass
	ExceptionClass = "tern.lang.Exception"
	HostFacade     = "tern.lang.Namespace"
	HostPackage    = "tern.lang"
)

// HostProviderName is the provider name reported for host classes.
const HostProviderName = "host"

var descAny = classfile.ObjectDesc(AnyClass)

// printable lists the descriptors print/println accept, with the kind used
// to stringify each.
var printable = []struct {
	desc string
	kind classfile.Kind
}{
	{classfile.DescString, classfile.KindString},
	{classfile.DescInt, classfile.KindInt},
	{classfile.DescLong, classfile.KindLong},
	{classfile.DescDouble, classfile.KindDouble},
	{classfile.DescBool, classfile.KindBool},
	{classfile.DescChar, classfile.KindChar},
	{descAny, classfile.KindRef},
}

// HostClasses returns freshly built declarations of the host classes. Their
// methods are native and bound when an interpreter links them.
func HostClasses() []*classfile.Class {
	str := classfile.DescString

	anyc := classfile.NewClass(AnyClass)
	anyc.Flags = classfile.ClassHost
	native(anyc, classfile.ConstructorName, classfile.MethodDesc(classfile.DescVoid), false)
	native(anyc, "toString", classfile.MethodDesc(str), false)
	native(anyc, "hashCode", classfile.MethodDesc(classfile.DescInt), false)
	native(anyc, "equals", classfile.MethodDesc(classfile.DescBool, descAny), false)

	strc := classfile.NewClass(StringClass)
	strc.Flags = classfile.ClassHost
	native(strc, "length", classfile.MethodDesc(classfile.DescInt), false)
	native(strc, "get", classfile.MethodDesc(classfile.DescChar, classfile.DescInt), false)
	native(strc, "substring", classfile.MethodDesc(str, classfile.DescInt, classfile.DescInt), false)
	native(strc, "startsWith", classfile.MethodDesc(classfile.DescBool, str), false)
	native(strc, "endsWith", classfile.MethodDesc(classfile.DescBool, str), false)
	native(strc, "contains", classfile.MethodDesc(classfile.DescBool, str), false)
	native(strc, "indexOf", classfile.MethodDesc(classfile.DescInt, str), false)
	native(strc, "isEmpty", classfile.MethodDesc(classfile.DescBool), false)
	native(strc, "toInt", classfile.MethodDesc(classfile.DescInt), false)
	native(strc, "toLong", classfile.MethodDesc(classfile.DescLong), false)
	native(strc, "toString", classfile.MethodDesc(str), false)
	native(strc, "hashCode", classfile.MethodDesc(classfile.DescInt), false)
	native(strc, "equals", classfile.MethodDesc(classfile.DescBool, descAny), false)

	exc := classfile.NewClass(ExceptionClass)
	exc.Flags = classfile.ClassHost
	exc.Fields = append(exc.Fields, classfile.Field{Name: "message", Desc: str, Flags: classfile.FieldFinal})
	native(exc, classfile.ConstructorName, classfile.MethodDesc(classfile.DescVoid), false)
	native(exc, classfile.ConstructorName, classfile.MethodDesc(classfile.DescVoid, str), false)
	native(exc, "toString", classfile.MethodDesc(str), false)

	ns := classfile.NewClass(HostFacade)
	ns.Flags = classfile.ClassHost | classfile.ClassFacade
	for _, p := range printable {
		native(ns, "println", classfile.MethodDesc(classfile.DescVoid, p.desc), true)
		native(ns, "print", classfile.MethodDesc(classfile.DescVoid, p.desc), true)
	}
	native(ns, "println", classfile.MethodDesc(classfile.DescVoid), true)
	native(ns, "error", classfile.MethodDesc(classfile.DescVoid, str), true)

	return []*classfile.Class{anyc, strc, exc, ns}
}

func native(c *classfile.Class, name, desc string, static bool) {
	flags := classfile.MethodNative
	locals, err := classfile.ArgCount(desc)
	if err != nil {
		panic(fmt.Sprintf("vm: host method %s.%s: %v", c.Name, name, err))
	}
	if static {
		flags |= classfile.MethodStatic
	} else {
		locals++
	}
	m := c.AddMethod(name, desc, flags)
	m.MaxLocals = uint16(locals)
}

var hostBytes = sync.OnceValue(func() map[string][]byte {
	out := make(map[string][]byte)
	for _, c := range HostClasses() {
		data, err := classfile.Marshal(c)
		if err != nil {
			panic(fmt.Sprintf("vm: encoding host class %s: %v", c.Name, err))
		}
		out[c.Name] = data
	}
	return out
})

// HostProvider returns a provider serving the host classes. It is normally
// the last provider of every resolver.
func HostProvider() loader.Provider {
	return loader.NewMapProvider(HostProviderName, hostBytes())
}

// Throw builds an exception of the given class with message and returns it
// as a *Thrown error.
func (th *Thread) Throw(class, message string) error {
	c, err := th.in.LinkClass(class)
	if err != nil {
		return err
	}
	if !c.IsSubclassOf(ExceptionClass) {
		return hostErrorf(VerifyError, "%s is not an exception class", class)
	}
	obj := th.in.newObject(c)
	obj.Fields[c.fieldIndex["message"]] = NewString(message)
	return &Thrown{Exception: obj}
}

func (in *Interpreter) write(s string) error {
	in.outMu.Lock()
	defer in.outMu.Unlock()
	_, err := io.WriteString(in.Stdout, s)
	return err
}

func registerHostNatives(in *Interpreter) {
	str := classfile.DescString

	in.RegisterNative(AnyClass, classfile.ConstructorName, "()V", func(*Thread, []Value) (Value, error) {
		return nil, nil
	})
	in.RegisterNative(AnyClass, "toString", "()"+str, func(_ *Thread, args []Value) (Value, error) {
		if s, ok := args[0].(*String); ok {
			return s, nil
		}
		return NewString(fmt.Sprint(args[0])), nil
	})
	in.RegisterNative(AnyClass, "hashCode", "()I", func(_ *Thread, args []Value) (Value, error) {
		if o, ok := args[0].(*Object); ok {
			return int32(o.id), nil
		}
		return int32(0), nil
	})
	in.RegisterNative(AnyClass, "equals", "("+descAny+")Z", func(_ *Thread, args []Value) (Value, error) {
		return args[0] == args[1], nil
	})

	recv := func(args []Value) *String { return args[0].(*String) }
	in.RegisterNative(StringClass, "length", "()I", func(_ *Thread, args []Value) (Value, error) {
		return int32(recv(args).Len()), nil
	})
	in.RegisterNative(StringClass, "get", "(I)C", func(_ *Thread, args []Value) (Value, error) {
		s, i := recv(args), args[1].(int32)
		if i < 0 || int(i) >= s.Len() {
			return nil, hostErrorf(IndexError, "index %d out of bounds for length %d", i, s.Len())
		}
		return s.At(int(i)), nil
	})
	in.RegisterNative(StringClass, "substring", "(II)"+str, func(_ *Thread, args []Value) (Value, error) {
		s, from, to := recv(args), args[1].(int32), args[2].(int32)
		if from < 0 || to > int32(s.Len()) || from > to {
			return nil, hostErrorf(IndexError, "begin %d, end %d, length %d", from, to, s.Len())
		}
		return NewStringUnits(append([]uint16(nil), s.units[from:to]...)), nil
	})
	in.RegisterNative(StringClass, "startsWith", "("+str+")Z", func(_ *Thread, args []Value) (Value, error) {
		p, err := stringArg(args[1])
		if err != nil {
			return nil, err
		}
		return strings.HasPrefix(recv(args).String(), p.String()), nil
	})
	in.RegisterNative(StringClass, "endsWith", "("+str+")Z", func(_ *Thread, args []Value) (Value, error) {
		p, err := stringArg(args[1])
		if err != nil {
			return nil, err
		}
		return strings.HasSuffix(recv(args).String(), p.String()), nil
	})
	in.RegisterNative(StringClass, "contains", "("+str+")Z", func(_ *Thread, args []Value) (Value, error) {
		p, err := stringArg(args[1])
		if err != nil {
			return nil, err
		}
		return indexUnits(recv(args).units, p.units) >= 0, nil
	})
	in.RegisterNative(StringClass, "indexOf", "("+str+")I", func(_ *Thread, args []Value) (Value, error) {
		p, err := stringArg(args[1])
		if err != nil {
			return nil, err
		}
		return int32(indexUnits(recv(args).units, p.units)), nil
	})
	in.RegisterNative(StringClass, "isEmpty", "()Z", func(_ *Thread, args []Value) (Value, error) {
		return recv(args).Len() == 0, nil
	})
	in.RegisterNative(StringClass, "toInt", "()I", func(th *Thread, args []Value) (Value, error) {
		n, err := strconv.ParseInt(recv(args).String(), 10, 32)
		if err != nil {
			return nil, th.Throw(ExceptionClass, fmt.Sprintf("invalid Int %q", recv(args).String()))
		}
		return int32(n), nil
	})
	in.RegisterNative(StringClass, "toLong", "()J", func(th *Thread, args []Value) (Value, error) {
		n, err := strconv.ParseInt(recv(args).String(), 10, 64)
		if err != nil {
			return nil, th.Throw(ExceptionClass, fmt.Sprintf("invalid Long %q", recv(args).String()))
		}
		return n, nil
	})
	in.RegisterNative(StringClass, "toString", "()"+str, func(_ *Thread, args []Value) (Value, error) {
		return recv(args), nil
	})
	in.RegisterNative(StringClass, "hashCode", "()I", func(_ *Thread, args []Value) (Value, error) {
		var h int32
		for _, u := range recv(args).units {
			h = 31*h + int32(u)
		}
		return h, nil
	})
	in.RegisterNative(StringClass, "equals", "("+descAny+")Z", func(_ *Thread, args []Value) (Value, error) {
		o, ok := args[1].(*String)
		return ok && o != nil && recv(args).Equal(o), nil
	})

	in.RegisterNative(ExceptionClass, classfile.ConstructorName, "()V", func(*Thread, []Value) (Value, error) {
		return nil, nil
	})
	in.RegisterNative(ExceptionClass, classfile.ConstructorName, "("+str+")V", func(_ *Thread, args []Value) (Value, error) {
		obj := args[0].(*Object)
		obj.Fields[obj.Class.fieldIndex["message"]] = args[1]
		return nil, nil
	})
	in.RegisterNative(ExceptionClass, "toString", "()"+str, func(_ *Thread, args []Value) (Value, error) {
		t := &Thrown{Exception: args[0].(*Object)}
		return NewString(t.Error()), nil
	})

	for _, p := range printable {
		kind := p.kind
		in.RegisterNative(HostFacade, "println", "("+p.desc+")V", func(th *Thread, args []Value) (Value, error) {
			s, err := th.Stringify(kind, args[0])
			if err != nil {
				return nil, err
			}
			return nil, th.in.write(s.String() + "\n")
		})
		in.RegisterNative(HostFacade, "print", "("+p.desc+")V", func(th *Thread, args []Value) (Value, error) {
			s, err := th.Stringify(kind, args[0])
			if err != nil {
				return nil, err
			}
			return nil, th.in.write(s.String())
		})
	}
	in.RegisterNative(HostFacade, "println", "()V", func(th *Thread, _ []Value) (Value, error) {
		return nil, th.in.write("\n")
	})
	in.RegisterNative(HostFacade, "error", "("+str+")V", func(th *Thread, args []Value) (Value, error) {
		msg, _ := args[0].(*String)
		return nil, th.Throw(ExceptionClass, msg.String())
	})
}

func stringArg(v Value) (*String, error) {
	s, ok := v.(*String)
	if !ok || s == nil {
		return nil, hostErrorf(NullError, "String argument is %s", typeName(v))
	}
	return s, nil
}

func indexUnits(s, sub []uint16) int {
	for i := 0; i+len(sub) <= len(s); i++ {
		match := true
		for j := range sub {
			if s[i+j] != sub[j] {
				match = false
				break
			}
		}
		if match {
			return i
		}
	}
	return -1
}
