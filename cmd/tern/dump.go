package main

import (
	"flag"
	"fmt"
	"os"
	"path/filepath"
	"slices"

	"github.com/chazu/tern/artifact"
	"github.com/chazu/tern/classfile"
	"github.com/chazu/tern/harness"
	"github.com/chazu/tern/manifest"
)

// handleDumpCommand processes the `tern dump` subcommand.
// Usage:
//
//	tern dump file.tn        # compile and disassemble
//	tern dump lib.tlib       # disassemble an artifact
//	tern dump -class a.B x   # only one class
func handleDumpCommand(m *manifest.Manifest, args []string) int {
	fs := flag.NewFlagSet("dump", flag.ExitOnError)
	only := fs.String("class", "", "Print only this class")
	fs.Parse(args)
	if fs.NArg() != 1 {
		fmt.Fprintln(os.Stderr, "Error: dump takes one source file or artifact")
		return 2
	}
	path := fs.Arg(0)

	var classes []*classfile.Class
	var err error
	if filepath.Ext(path) == manifest.SourceExt {
		classes, err = dumpSource(m, path)
	} else {
		classes, err = dumpArtifact(path)
	}
	if err != nil {
		fmt.Fprintf(os.Stderr, "Error: %v\n", err)
		return 1
	}

	if *only != "" {
		for _, c := range classes {
			if c.Name == *only {
				fmt.Print(classfile.Text(c))
				return 0
			}
		}
		fmt.Fprintf(os.Stderr, "Error: %s has no class %s\n", path, *only)
		return 1
	}
	fmt.Print(classfile.UnitText(classes))
	return 0
}

func dumpSource(m *manifest.Manifest, path string) ([]*classfile.Class, error) {
	h, err := newHarness(m)
	if err != nil {
		return nil, err
	}
	u, err := h.Orchestrator.Compile(harness.File(absPath(path)), h.Classpath.Clone())
	if err != nil {
		return nil, err
	}
	return decodeAll(slices.Collect(u.Names()), u.Get)
}

func dumpArtifact(path string) ([]*classfile.Class, error) {
	a, err := artifact.Open(path)
	if err != nil {
		return nil, err
	}
	defer a.Close()
	names, err := a.Names()
	if err != nil {
		return nil, err
	}
	return decodeAll(names, a.Load)
}

// decodeAll decodes and verifies every named class.
func decodeAll(names []string, get func(string) ([]byte, error)) ([]*classfile.Class, error) {
	var classes []*classfile.Class
	for _, name := range names {
		data, err := get(name)
		if err != nil {
			return nil, err
		}
		c, err := classfile.Unmarshal(data)
		if err != nil {
			return nil, fmt.Errorf("%s: %w", name, err)
		}
		if err := classfile.Verify(c); err != nil {
			return nil, err
		}
		classes = append(classes, c)
	}
	return classes, nil
}
