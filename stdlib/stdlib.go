// Package stdlib carries the sources of the std runtime library and builds
// them into a library artifact that compilations put on their classpath.
package stdlib

import (
	"crypto/sha256"
	"embed"
	"encoding/hex"
	"fmt"
	"io/fs"
	"slices"

	"github.com/chazu/tern/artifact"
	"github.com/chazu/tern/compiler"
	"github.com/chazu/tern/unit"
)

//go:embed std/*.tn
var sources embed.FS

// Package is the package every std class lives in.
const Package = compiler.RuntimePackage

// Sources returns the std source files in name order.
func Sources() []compiler.SourceFile {
	names, err := fs.Glob(sources, "std/*.tn")
	if err != nil {
		panic(err)
	}
	slices.Sort(names)
	out := make([]compiler.SourceFile, 0, len(names))
	for _, name := range names {
		data, err := sources.ReadFile(name)
		if err != nil {
			panic(err)
		}
		out = append(out, compiler.SourceFile{Name: name, Text: string(data)})
	}
	return out
}

// Hash identifies the current std sources. Artifacts built from different
// sources never share a hash.
func Hash() string {
	h := sha256.New()
	for _, f := range Sources() {
		fmt.Fprintf(h, "%s\x00%d\x00%s", f.Name, len(f.Text), f.Text)
	}
	return hex.EncodeToString(h.Sum(nil))
}

// Compile compiles the std sources into a sealed unit.
func Compile() (*unit.Store, error) {
	store := unit.NewStore()
	if err := compiler.Compile(Sources(), nil, store); err != nil {
		return nil, fmt.Errorf("compile std: %w", err)
	}
	store.Seal()
	return store, nil
}

// Build compiles the std sources and writes them as an artifact at path.
// The layout follows the extension of path.
func Build(path string) error {
	store, err := Compile()
	if err != nil {
		return err
	}
	if err := artifact.Write(path, store); err != nil {
		return fmt.Errorf("write std artifact: %w", err)
	}
	log.Infof("wrote %d std classes to %s", store.Len(), path)
	return nil
}
