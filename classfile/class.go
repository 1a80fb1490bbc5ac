// Package classfile defines the in-memory class format produced by the tern
// compiler and executed by the tern VM.
//
// A Class is the unit of loading: one named type with a constant pool,
// fields and methods. Method bodies are stack-machine bytecode (see
// opcodes.go). Classes are exchanged as bytes (Marshal/Unmarshal) so that a
// compiled unit can be stored, archived and loaded without touching the
// compiler again.
package classfile

import (
	"encoding/binary"
	"fmt"
	"math"
)

// FormatVersion is the current class format version.
// Increment when making incompatible changes to the format.
const FormatVersion uint16 = 1

// Magic bytes for class files: "TERN".
var Magic = []byte{'T', 'E', 'R', 'N'}

// FacadeName is the simple name of the class holding a package's top-level
// functions.
const FacadeName = "Namespace"

// ConstructorName is the method name of constructors.
const ConstructorName = "<init>"

// RootClass is the implicit superclass of every class.
const RootClass = "tern.lang.Any"

// ClassFlags contains class-level attributes.
type ClassFlags uint16

const (
	// ClassFacade marks a package facade holding only static functions.
	ClassFacade ClassFlags = 1 << 0
	// ClassHost marks a class implemented by the host runtime.
	ClassHost ClassFlags = 1 << 1
)

// MethodFlags contains method-level attributes.
type MethodFlags uint16

const (
	MethodStatic MethodFlags = 1 << 0
	MethodNative MethodFlags = 1 << 1
)

// FieldFlags contains field-level attributes.
type FieldFlags uint16

const (
	// FieldFinal marks a field assigned only by the constructor (val).
	FieldFinal FieldFlags = 1 << 0
)

// ConstKind tags an entry of the constant pool.
type ConstKind uint8

const (
	ConstLong   ConstKind = 1
	ConstDouble ConstKind = 2
	ConstString ConstKind = 3
	ConstClass  ConstKind = 4
	ConstField  ConstKind = 5
	ConstMethod ConstKind = 6
)

// String returns a human-readable name for ConstKind.
func (k ConstKind) String() string {
	switch k {
	case ConstLong:
		return "Long"
	case ConstDouble:
		return "Double"
	case ConstString:
		return "String"
	case ConstClass:
		return "Class"
	case ConstField:
		return "Field"
	case ConstMethod:
		return "Method"
	default:
		return fmt.Sprintf("ConstKind(%d)", k)
	}
}

// Constant is one constant pool entry. Which fields are meaningful depends
// on Kind: Long, Double, Str for literals; Class for class references;
// Class, Name and Desc for member references.
type Constant struct {
	Kind   ConstKind
	Long   int64
	Double float64
	Str    string
	Class  string
	Name   string
	Desc   string
}

func (c Constant) equal(o Constant) bool {
	if c.Kind != o.Kind {
		return false
	}
	switch c.Kind {
	case ConstLong:
		return c.Long == o.Long
	case ConstDouble:
		return math.Float64bits(c.Double) == math.Float64bits(o.Double)
	case ConstString:
		return c.Str == o.Str
	case ConstClass:
		return c.Class == o.Class
	default:
		return c.Class == o.Class && c.Name == o.Name && c.Desc == o.Desc
	}
}

// Field describes an instance field.
type Field struct {
	Name  string
	Desc  string
	Flags FieldFlags
}

// Handler is an exception table entry. Code in [Start, End) that throws a
// CatchType instance continues at Target with the exception on the stack.
type Handler struct {
	Start     uint32
	End       uint32
	Target    uint32
	CatchType string
}

// LineEntry maps a bytecode offset to a source line.
type LineEntry struct {
	Offset uint32
	Line   uint32
}

// Method is a compiled function or constructor.
type Method struct {
	Name      string
	Desc      string
	Flags     MethodFlags
	MaxLocals uint16
	Code      []byte
	Handlers  []Handler
	Lines     []LineEntry
}

// IsStatic reports whether the method takes no receiver.
func (m *Method) IsStatic() bool { return m.Flags&MethodStatic != 0 }

// IsNative reports whether the method is implemented by the host.
func (m *Method) IsNative() bool { return m.Flags&MethodNative != 0 }

// Key returns the name+descriptor key identifying the method within its class.
func (m *Method) Key() string { return m.Name + m.Desc }

// Emit appends a single-byte opcode to the code section.
func (m *Method) Emit(op Opcode) int {
	offset := len(m.Code)
	m.Code = append(m.Code, byte(op))
	return offset
}

// EmitU8 appends an opcode with a single byte operand.
func (m *Method) EmitU8(op Opcode, v byte) int {
	offset := len(m.Code)
	m.Code = append(m.Code, byte(op), v)
	return offset
}

// EmitU16 appends an opcode with a 16-bit operand.
func (m *Method) EmitU16(op Opcode, v uint16) int {
	offset := len(m.Code)
	m.Code = append(m.Code, byte(op))
	m.Code = binary.BigEndian.AppendUint16(m.Code, v)
	return offset
}

// EmitI32 appends an opcode with a 32-bit operand.
func (m *Method) EmitI32(op Opcode, v int32) int {
	offset := len(m.Code)
	m.Code = append(m.Code, byte(op))
	m.Code = binary.BigEndian.AppendUint32(m.Code, uint32(v))
	return offset
}

// EmitJump emits a jump instruction with a placeholder offset.
// Returns the offset of the placeholder for later patching.
func (m *Method) EmitJump(op Opcode) int {
	offset := len(m.Code)
	m.Code = append(m.Code, byte(op), 0xFF, 0xFF)
	return offset + 1
}

// PatchJump patches a jump placeholder to land at the current position.
func (m *Method) PatchJump(placeholder int) error {
	return m.PatchJumpTo(placeholder, len(m.Code))
}

// PatchJumpTo patches a jump placeholder to land at target.
func (m *Method) PatchJumpTo(placeholder, target int) error {
	delta := target - (placeholder + 2)
	if delta < math.MinInt16 || delta > math.MaxInt16 {
		return fmt.Errorf("jump offset %d out of range in %s", delta, m.Name)
	}
	binary.BigEndian.PutUint16(m.Code[placeholder:], uint16(int16(delta)))
	return nil
}

// EmitLoop emits a backward jump to loopStart.
func (m *Method) EmitLoop(loopStart int) error {
	placeholder := m.EmitJump(OpJump)
	return m.PatchJumpTo(placeholder, loopStart)
}

// MarkLine records that code emitted from here on belongs to line.
func (m *Method) MarkLine(line int) {
	if line <= 0 {
		return
	}
	off := uint32(len(m.Code))
	if n := len(m.Lines); n > 0 {
		last := &m.Lines[n-1]
		if last.Line == uint32(line) {
			return
		}
		if last.Offset == off {
			last.Line = uint32(line)
			return
		}
	}
	m.Lines = append(m.Lines, LineEntry{Offset: off, Line: uint32(line)})
}

// LineAt returns the source line for a bytecode offset, or 0.
func (m *Method) LineAt(offset int) int {
	for i := len(m.Lines) - 1; i >= 0; i-- {
		if int(m.Lines[i].Offset) <= offset {
			return int(m.Lines[i].Line)
		}
	}
	return 0
}

// Class is one loadable class.
type Class struct {
	Name       string // fully qualified, dot separated
	Super      string // empty only for the root class
	Flags      ClassFlags
	SourceFile string
	Constants  []Constant
	Fields     []Field
	Methods    []*Method
}

// NewClass creates an empty class extending RootClass.
func NewClass(name string) *Class {
	c := &Class{Name: name}
	if name != RootClass {
		c.Super = RootClass
	}
	return c
}

// AddConstant adds an entry to the pool and returns its index.
// If an equal entry already exists, returns the existing index.
func (c *Class) AddConstant(k Constant) uint16 {
	for i, existing := range c.Constants {
		if existing.equal(k) {
			return uint16(i)
		}
	}
	idx := uint16(len(c.Constants))
	c.Constants = append(c.Constants, k)
	return idx
}

// StringConstant adds a string literal.
func (c *Class) StringConstant(s string) uint16 {
	return c.AddConstant(Constant{Kind: ConstString, Str: s})
}

// ClassRef adds a class reference.
func (c *Class) ClassRef(name string) uint16 {
	return c.AddConstant(Constant{Kind: ConstClass, Class: name})
}

// MethodRef adds a method reference.
func (c *Class) MethodRef(class, name, desc string) uint16 {
	return c.AddConstant(Constant{Kind: ConstMethod, Class: class, Name: name, Desc: desc})
}

// FieldRef adds a field reference.
func (c *Class) FieldRef(class, name, desc string) uint16 {
	return c.AddConstant(Constant{Kind: ConstField, Class: class, Name: name, Desc: desc})
}

// Constant returns the pool entry at index.
func (c *Class) Constant(index uint16) (Constant, error) {
	if int(index) >= len(c.Constants) {
		return Constant{}, fmt.Errorf("constant index %d out of range (pool size %d)", index, len(c.Constants))
	}
	return c.Constants[index], nil
}

// AddMethod appends a method and returns it.
func (c *Class) AddMethod(name, desc string, flags MethodFlags) *Method {
	m := &Method{Name: name, Desc: desc, Flags: flags}
	c.Methods = append(c.Methods, m)
	return m
}

// Method returns the method with the given name and descriptor.
func (c *Class) Method(name, desc string) *Method {
	for _, m := range c.Methods {
		if m.Name == name && m.Desc == desc {
			return m
		}
	}
	return nil
}

// MethodsNamed returns all overloads with the given name.
func (c *Class) MethodsNamed(name string) []*Method {
	var out []*Method
	for _, m := range c.Methods {
		if m.Name == name {
			out = append(out, m)
		}
	}
	return out
}

// Field returns the field with the given name.
func (c *Class) Field(name string) (Field, bool) {
	for _, f := range c.Fields {
		if f.Name == name {
			return f, true
		}
	}
	return Field{}, false
}

// IsFacade reports whether c holds top-level functions.
func (c *Class) IsFacade() bool { return c.Flags&ClassFacade != 0 }

// Package returns the package part of the class name ("" for the root package).
func (c *Class) Package() string { return PackageOf(c.Name) }

// PackageOf returns the package part of a fully qualified class name.
func PackageOf(name string) string {
	for i := len(name) - 1; i >= 0; i-- {
		if name[i] == '.' {
			return name[:i]
		}
	}
	return ""
}

// SimpleName returns the last segment of a fully qualified class name.
func SimpleName(name string) string {
	for i := len(name) - 1; i >= 0; i-- {
		if name[i] == '.' {
			return name[i+1:]
		}
	}
	return name
}

// Qualify joins a package and a simple name.
func Qualify(pkg, simple string) string {
	if pkg == "" {
		return simple
	}
	return pkg + "." + simple
}
