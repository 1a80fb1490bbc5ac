package harness

import (
	"fmt"
	"os"
	"path/filepath"
	"strings"
)

// SourceUnit is one program to verify: inline text or a file under the
// resource root, the entry point to invoke and the expected outcome. It is
// a value; the With methods return modified copies.
type SourceUnit struct {
	name   string
	text   string
	path   string
	entry  EntryPoint
	expect Expectation
	args   []any
}

// Inline creates a source unit from literal text. name is used in
// diagnostics and as the source file attribute of generated classes.
func Inline(name, text string) SourceUnit {
	return SourceUnit{name: name, text: text}
}

// File creates a source unit read from path, relative to the resource root
// of the orchestrator compiling it.
func File(path string) SourceUnit {
	return SourceUnit{name: filepath.Base(path), path: path}
}

// BoxEntry is the function invoked by Box units.
const BoxEntry = "box"

// Box creates a file source unit following the box convention: the
// top-level function box() must return "OK".
func Box(path string) SourceUnit {
	return File(path).WithEntry(Entry(BoxEntry)).Expecting(Returns("OK"))
}

// WithEntry returns a copy of s that invokes e with args.
func (s SourceUnit) WithEntry(e EntryPoint, args ...any) SourceUnit {
	s.entry = e
	s.args = append([]any(nil), args...)
	return s
}

// Expecting returns a copy of s with expectation x.
func (s SourceUnit) Expecting(x Expectation) SourceUnit {
	s.expect = x
	return s
}

func (s SourceUnit) Name() string             { return s.name }
func (s SourceUnit) Entry() EntryPoint        { return s.entry }
func (s SourceUnit) Expectation() Expectation { return s.expect }
func (s SourceUnit) Args() []any              { return append([]any(nil), s.args...) }

// IsFile reports whether the text comes from a file.
func (s SourceUnit) IsFile() bool { return s.path != "" }

// Text returns the source text, reading it from root when s is a file.
func (s SourceUnit) Text(root string) (string, error) {
	if s.path == "" {
		return s.text, nil
	}
	path := s.path
	if !filepath.IsAbs(path) {
		path = filepath.Join(root, path)
	}
	data, err := os.ReadFile(path)
	if err != nil {
		return "", fmt.Errorf("source %s: %w", s.path, err)
	}
	return string(data), nil
}

// EntryPoint designates the callable to invoke. Class defaults to the
// top-level function facade of the unit. The zero EntryPoint selects the
// unit's only top-level function. With Desc empty the callable is
// matched by name and argument count, and must be unique.
type EntryPoint struct {
	Class string
	Name  string
	Desc  string
}

// Entry names a top-level function.
func Entry(name string) EntryPoint { return EntryPoint{Name: name} }

// In returns a copy of e looked up in class.
func (e EntryPoint) In(class string) EntryPoint {
	e.Class = class
	return e
}

// WithDesc returns a copy of e restricted to one method descriptor.
func (e EntryPoint) WithDesc(desc string) EntryPoint {
	e.Desc = desc
	return e
}

// IsZero reports whether no entry point was designated.
func (e EntryPoint) IsZero() bool { return e.Name == "" }

func (e EntryPoint) String() string {
	var sb strings.Builder
	if e.Class != "" {
		sb.WriteString(e.Class)
		sb.WriteString(".")
	}
	sb.WriteString(e.Name)
	sb.WriteString(e.Desc)
	return sb.String()
}

// ExpectKind classifies expectations.
type ExpectKind int

const (
	// ExpectCompile requires that the unit compiles and every class loads.
	ExpectCompile ExpectKind = iota
	// ExpectNoThrow requires that the entry point returns normally.
	ExpectNoThrow
	// ExpectValue requires a specific return value.
	ExpectValue
	// ExpectFailure requires the entry point to fail.
	ExpectFailure
)

var expectKindNames = map[ExpectKind]string{
	ExpectCompile: "compile",
	ExpectNoThrow: "no-throw",
	ExpectValue:   "value",
	ExpectFailure: "failure",
}

func (k ExpectKind) String() string {
	if s, ok := expectKindNames[k]; ok {
		return s
	}
	return fmt.Sprintf("ExpectKind(%d)", int(k))
}

// Expectation is the expected outcome of a source unit.
type Expectation struct {
	Kind ExpectKind
	// Value is compared after conversion to the entry point's return type.
	Value any
	// Failure is the class (or a superclass) of the expected exception, or
	// the kind of an expected host error. Empty matches any failure.
	Failure string
	// Message must be contained in the failure message.
	Message string
	// Output, when set, must equal everything the program printed.
	Output *string
}

// CompileOnly expects the unit to compile and load.
func CompileOnly() Expectation { return Expectation{Kind: ExpectCompile} }

// NoThrow expects the entry point to return normally.
func NoThrow() Expectation { return Expectation{Kind: ExpectNoThrow} }

// Returns expects the entry point to return v.
func Returns(v any) Expectation { return Expectation{Kind: ExpectValue, Value: v} }

// Throws expects the entry point to fail with class (or a subclass) and a
// message containing message.
func Throws(class, message string) Expectation {
	return Expectation{Kind: ExpectFailure, Failure: class, Message: message}
}

// Printing returns a copy of x that also requires the printed output.
func (x Expectation) Printing(out string) Expectation {
	x.Output = &out
	return x
}
