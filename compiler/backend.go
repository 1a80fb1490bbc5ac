package compiler

import (
	"fmt"

	"github.com/chazu/tern/classfile"
	"github.com/chazu/tern/unit"
)

// SourceFile is one input file of a compilation.
type SourceFile struct {
	Name string
	Text string
}

// Generate compiles files against the library artifacts on classpath and
// returns the generated classes, facades included. Compile errors are
// reported as *Error.
func Generate(files []SourceFile, classpath []string) ([]*classfile.Class, error) {
	var diags []Diagnostic
	parsed := make([]*File, 0, len(files))
	for _, f := range files {
		p := NewParser(f.Name, f.Text)
		parsed = append(parsed, p.ParseFile())
		diags = append(diags, p.Errors()...)
	}
	if len(diags) > 0 {
		return nil, &Error{Diagnostics: diags}
	}

	table, err := newClassTable(classpath)
	if err != nil {
		return nil, err
	}
	defer table.close()

	in, classes, diags := check(parsed, table)
	if len(diags) > 0 {
		return nil, &Error{Diagnostics: diags}
	}
	out, err := generate(in, classes)
	if err != nil {
		return nil, err
	}
	for _, c := range out {
		if err := classfile.Verify(c); err != nil {
			return nil, fmt.Errorf("generated invalid class: %w", err)
		}
	}
	return out, nil
}

// Compile generates files and puts the encoded classes into out. Nothing is
// put unless the whole unit compiles.
func Compile(files []SourceFile, classpath []string, out *unit.Store) error {
	classes, err := Generate(files, classpath)
	if err != nil {
		return err
	}
	encoded := make([][]byte, len(classes))
	for i, c := range classes {
		if encoded[i], err = classfile.Marshal(c); err != nil {
			return fmt.Errorf("encode %s: %w", c.Name, err)
		}
	}
	for i, c := range classes {
		if err := out.Put(c.Name, encoded[i]); err != nil {
			return err
		}
	}
	return nil
}

// Backend adapts the compiler to the harness backend interface.
type Backend struct{}

// ParseAndGenerate compiles a single source text into out.
func (Backend) ParseAndGenerate(name, text string, classpath []string, out *unit.Store) error {
	return Compile([]SourceFile{{Name: name, Text: text}}, classpath, out)
}
