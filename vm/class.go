package vm

import (
	"fmt"

	"github.com/chazu/tern/classfile"
	"github.com/chazu/tern/loader"
)

// Class is a linked class: the resolved class file plus its superclass,
// field layout and bound methods.
type Class struct {
	Name     string
	File     *classfile.Class
	Resolved *loader.ResolvedClass
	Super    *Class

	fields     []classfile.Field // inherited fields first
	fieldIndex map[string]int
	methods    map[string]*Method
}

// Method is a method bound to its linked class.
type Method struct {
	Class  *Class
	Info   *classfile.Method
	Params []string
	Return string

	native NativeFunc
}

// Name returns the method name.
func (m *Method) Name() string { return m.Info.Name }

// Desc returns the method descriptor.
func (m *Method) Desc() string { return m.Info.Desc }

// IsStatic reports whether the method takes no receiver.
func (m *Method) IsStatic() bool { return m.Info.IsStatic() }

func (m *Method) String() string {
	return m.Class.Name + "." + m.Info.Name + m.Info.Desc
}

// LookupMethod finds name+desc in c or its superclasses.
func (c *Class) LookupMethod(name, desc string) *Method {
	for k := c; k != nil; k = k.Super {
		if m, ok := k.methods[name+desc]; ok {
			return m
		}
	}
	return nil
}

// DeclaredMethod finds name+desc in c only.
func (c *Class) DeclaredMethod(name, desc string) *Method {
	return c.methods[name+desc]
}

// MethodsNamed returns the methods of c (not inherited) called name, in
// declaration order.
func (c *Class) MethodsNamed(name string) []*Method {
	var out []*Method
	for _, info := range c.File.Methods {
		if info.Name == name {
			out = append(out, c.methods[info.Key()])
		}
	}
	return out
}

// IsSubclassOf reports whether c is name or inherits from it.
func (c *Class) IsSubclassOf(name string) bool {
	for k := c; k != nil; k = k.Super {
		if k.Name == name {
			return true
		}
	}
	return false
}

// FieldCount returns the number of instance fields including inherited ones.
func (c *Class) FieldCount() int { return len(c.fields) }

// LinkClass returns the linked class for name, resolving and linking it and
// its superclasses on first use. Linking is idempotent per interpreter.
func (in *Interpreter) LinkClass(name string) (*Class, error) {
	in.mu.Lock()
	if c, ok := in.classes[name]; ok {
		in.mu.Unlock()
		return c, nil
	}
	in.mu.Unlock()

	rc, err := in.resolver.Resolve(name)
	if err != nil {
		return nil, &LinkError{Kind: NoClassDef, Class: name, Err: err}
	}

	var super *Class
	if rc.Class.Super != "" {
		if rc.Class.Super == name {
			return nil, &LinkError{Kind: IncompatibleClass, Class: name, Err: fmt.Errorf("class is its own superclass")}
		}
		super, err = in.LinkClass(rc.Class.Super)
		if err != nil {
			return nil, err
		}
	}

	c := &Class{
		Name:       name,
		File:       rc.Class,
		Resolved:   rc,
		Super:      super,
		fieldIndex: make(map[string]int),
		methods:    make(map[string]*Method, len(rc.Class.Methods)),
	}
	if super != nil {
		c.fields = append(c.fields, super.fields...)
		for k, v := range super.fieldIndex {
			c.fieldIndex[k] = v
		}
	}
	for _, f := range rc.Class.Fields {
		if _, dup := c.fieldIndex[f.Name]; dup {
			return nil, &LinkError{Kind: IncompatibleClass, Class: name, Member: f.Name, Err: fmt.Errorf("field hides inherited field")}
		}
		c.fieldIndex[f.Name] = len(c.fields)
		c.fields = append(c.fields, f)
	}
	for _, info := range rc.Class.Methods {
		params, ret, err := classfile.ParseMethodDesc(info.Desc)
		if err != nil {
			return nil, &LinkError{Kind: IncompatibleClass, Class: name, Member: info.Name, Err: err}
		}
		m := &Method{Class: c, Info: info, Params: params, Return: ret}
		if info.IsNative() {
			fn, ok := in.natives[name+"."+info.Key()]
			if !ok {
				return nil, &LinkError{Kind: UnsatisfiedLink, Class: name, Member: info.Key()}
			}
			m.native = fn
		}
		c.methods[info.Key()] = m
	}

	in.mu.Lock()
	defer in.mu.Unlock()
	// another goroutine may have linked the same class meanwhile; keep the first
	if existing, ok := in.classes[name]; ok {
		return existing, nil
	}
	in.classes[name] = c
	return c, nil
}

// newObject allocates an instance with zeroed fields.
func (in *Interpreter) newObject(c *Class) *Object {
	fields := make([]Value, len(c.fields))
	for i, f := range c.fields {
		fields[i] = zeroValue(f.Desc)
	}
	return &Object{Class: c, Fields: fields, id: in.nextID.Add(1)}
}
